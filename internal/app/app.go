// Package app wires the hairtype components together for the lifetime of the
// process: one detector handle, one camera session controller and the
// persisted settings.
package app

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ayusman/hairtype/internal/capture"
	"github.com/ayusman/hairtype/internal/detector"
	"github.com/ayusman/hairtype/internal/session"
	"github.com/ayusman/hairtype/internal/store"
)

// Config holds configuration options for the application.
type Config struct {
	Store    *store.Store
	CameraID int
	// CameraFPS is the requested capture rate. Zero keeps the camera default.
	CameraFPS int
	// Detector configures backend selection when Backend is nil.
	Detector detector.Config
	// Threshold and Mirrored are used when the store holds no saved value.
	Threshold float64
	Mirrored  bool
	Logger    logrus.FieldLogger

	// Camera and Backend override the real device and detector. Tests use them.
	Camera  capture.Camera
	Backend detector.Detector
}

// Report is the result of a single-shot detection.
type Report struct {
	Set        detector.DetectionSet
	Detections []detector.Detection
	// Image is the annotated frame encoded as JPEG.
	Image     []byte
	Width     int
	Height    int
	Threshold float64
}

// App is the main application that owns the detector and the session controller.
type App struct {
	config     Config
	log        logrus.FieldLogger
	camera     capture.Camera
	detector   detector.Detector
	controller *session.Controller

	mu       sync.RWMutex
	last     detector.DetectionSet
	lastAt   time.Time
	lastFail error
}

// New creates a new App. Saved settings take precedence over the configured
// defaults.
func New(config Config) (*App, error) {
	log := config.Logger
	if log == nil {
		log = logrus.StandardLogger()
	}

	a := &App{
		config:   config,
		log:      log.WithField("component", "app"),
		camera:   config.Camera,
		detector: config.Backend,
	}

	if a.camera == nil {
		a.camera = capture.NewCamera(config.CameraID)
	}
	if config.CameraFPS > 0 {
		a.camera.SetFPS(config.CameraFPS)
	}
	if a.detector == nil {
		a.detector = selectDetector(config.Detector, a.log)
	}

	threshold, mirrored := a.restoreSettings()

	controller, err := session.New(session.Config{
		Camera:    a.camera,
		Detector:  a.detector,
		Threshold: threshold,
		Mirrored:  mirrored,
		Logger:    log,
	}, session.ConsumerFuncs{Result: a.recordResult, Failure: a.recordFailure})
	if err != nil {
		a.detector.Close()
		return nil, err
	}
	a.controller = controller

	return a, nil
}

// selectDetector prefers the ONNX model, then the helper process, and falls
// back to the mock detector so the rest of the app stays usable.
func selectDetector(config detector.Config, log logrus.FieldLogger) detector.Detector {
	if config.ModelPath != "" {
		yolo, err := detector.NewYOLODetector(config)
		if err == nil {
			log.WithField("model", config.ModelPath).Info("using ONNX hair detection")
			return yolo
		}
		log.WithError(err).Warn("ONNX model not available")
	}

	svc, err := detector.NewServiceDetector(config)
	if err == nil {
		log.Info("using helper process hair detection")
		return svc
	}

	log.WithError(err).Warn("no hair detection backend available, using mock detector")
	return detector.NewMockDetector()
}

// restoreSettings loads the saved threshold and mirror flag. Missing or
// invalid values fall back to the config.
func (a *App) restoreSettings() (threshold float64, mirrored bool) {
	threshold, mirrored = a.config.Threshold, a.config.Mirrored
	if a.config.Store == nil {
		return threshold, mirrored
	}

	settings := a.config.Store.Settings()
	if t, err := settings.Float(store.KeyThreshold); err == nil {
		if detector.ValidateThreshold(t) == nil {
			threshold = t
		} else {
			a.log.WithField("threshold", t).Warn("ignoring saved threshold")
		}
	} else if !errors.Is(err, store.ErrNotFound) {
		a.log.WithError(err).Warn("failed to load saved threshold")
	}

	if m, err := settings.Bool(store.KeyMirrored); err == nil {
		mirrored = m
	} else if !errors.Is(err, store.ErrNotFound) {
		a.log.WithError(err).Warn("failed to load saved mirror setting")
	}

	return threshold, mirrored
}

// Start begins a camera session.
func (a *App) Start() error {
	return a.controller.Start()
}

// Stop ends the camera session, if any.
func (a *App) Stop() error {
	return a.controller.Stop()
}

// Status returns the session controller status.
func (a *App) Status() session.Status {
	return a.controller.Status()
}

// AddConsumer registers c for session results and failures.
func (a *App) AddConsumer(c session.Consumer) {
	a.controller.AddConsumer(c)
}

// SetThreshold validates, applies and saves the session threshold.
func (a *App) SetThreshold(t float64) error {
	if err := a.controller.SetThreshold(t); err != nil {
		return err
	}
	if a.config.Store != nil {
		if err := a.config.Store.Settings().SetFloat(store.KeyThreshold, t); err != nil {
			return fmt.Errorf("save threshold: %w", err)
		}
	}
	return nil
}

// SetMirrored applies and saves the mirror flag.
func (a *App) SetMirrored(mirrored bool) error {
	a.controller.SetMirrored(mirrored)
	if a.config.Store != nil {
		if err := a.config.Store.Settings().SetBool(store.KeyMirrored, mirrored); err != nil {
			return fmt.Errorf("save mirror setting: %w", err)
		}
	}
	return nil
}

// DetectImage runs one detection over a single-shot source. The threshold and
// source kind are checked before the frame is acquired.
func (a *App) DetectImage(src capture.SingleShot, threshold float64) (*Report, error) {
	if err := detector.ValidateThreshold(threshold); err != nil {
		return nil, err
	}
	if err := capture.RequireKind(src, capture.KindSingleShot); err != nil {
		return nil, err
	}

	frame, err := src.Acquire()
	if err != nil {
		return nil, err
	}
	defer frame.Close()

	raw, err := a.detector.Predict(frame, threshold)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", session.ErrInference, err)
	}

	qualifying := detector.Filter(raw, threshold)
	detector.Annotate(frame, qualifying)

	img, err := detector.EncodeJPEG(frame)
	if err != nil {
		return nil, err
	}

	return &Report{
		Set:        detector.Normalize(raw, threshold),
		Detections: qualifying,
		Image:      img,
		Width:      frame.Cols(),
		Height:     frame.Rows(),
		Threshold:  threshold,
	}, nil
}

// DetectUpload decodes an uploaded image and runs DetectImage on it.
func (a *App) DetectUpload(r io.Reader, threshold float64) (*Report, error) {
	if err := detector.ValidateThreshold(threshold); err != nil {
		return nil, err
	}

	still, err := capture.DecodeStill(r)
	if err != nil {
		return nil, err
	}
	defer still.Close()

	return a.DetectImage(still, threshold)
}

// Last returns the most recent session detection set and when it was seen.
func (a *App) Last() (detector.DetectionSet, time.Time) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.last, a.lastAt
}

// LastFailure returns the failure that ended the most recent session, if any.
func (a *App) LastFailure() error {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.lastFail
}

func (a *App) recordResult(r session.Result) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.last = r.Set
	a.lastAt = r.CapturedAt
	a.lastFail = nil
}

func (a *App) recordFailure(sessionID string, err error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.lastFail = err
}

// Camera returns the camera instance.
func (a *App) Camera() capture.Camera {
	return a.camera
}

// Detector returns the detector handle.
func (a *App) Detector() detector.Detector {
	return a.detector
}

// Controller returns the session controller.
func (a *App) Controller() *session.Controller {
	return a.controller
}

// Close stops any session and releases the detector.
func (a *App) Close() error {
	if err := a.controller.Close(); err != nil {
		a.log.WithError(err).Warn("error stopping session")
	}
	if err := a.detector.Close(); err != nil {
		return fmt.Errorf("close detector: %w", err)
	}
	return nil
}

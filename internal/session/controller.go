// Package session runs continuous detection over a camera stream.
//
// A Controller owns the camera while a session is running. Each session runs
// in its own goroutine: read a frame, optionally mirror it, run the detector,
// normalize the detections, annotate and encode the frame, and hand a Result
// to the consumers. The loop checks for a stop request before every frame, so
// an in-flight inference always completes.
package session

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gocv.io/x/gocv"

	"github.com/ayusman/hairtype/internal/capture"
	"github.com/ayusman/hairtype/internal/detector"
)

var (
	// ErrNotIdle is returned by Start when a session is running or stopping.
	ErrNotIdle = errors.New("session is not idle")

	// ErrInference is reported when the detector fails during a session.
	ErrInference = errors.New("inference failed")
)

// State is the controller lifecycle state.
type State int

const (
	Idle State = iota
	Running
	// Stopping is transitional: a stop was requested and the loop has not exited yet.
	Stopping
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Running:
		return "running"
	case Stopping:
		return "stopping"
	default:
		return "unknown"
	}
}

// MarshalText renders the state name in JSON.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Status is a snapshot of the controller.
type Status struct {
	State     State   `json:"state"`
	Active    bool    `json:"active"`
	Threshold float64 `json:"threshold"`
	Mirrored  bool    `json:"mirrored"`
	// SessionID identifies the current or most recent session.
	SessionID string `json:"session_id,omitempty"`
	// Frames counts frames processed in the current or most recent session.
	Frames int `json:"frames"`
}

// Config holds the controller dependencies and initial settings.
type Config struct {
	Camera    capture.Camera
	Detector  detector.Detector
	Threshold float64
	Mirrored  bool
	Logger    logrus.FieldLogger
}

// Controller starts and stops detection sessions over one camera.
type Controller struct {
	camera    capture.Camera
	detector  detector.Detector
	consumers *Fanout
	log       logrus.FieldLogger

	// startMu serializes Start so the camera opens without holding mu.
	startMu sync.Mutex

	mu        sync.Mutex
	state     State
	threshold float64
	mirrored  bool
	sessionID string
	frames    int
	stopCh    chan struct{}
	done      chan struct{}
}

// New creates an idle Controller.
func New(config Config, consumers ...Consumer) (*Controller, error) {
	if config.Camera == nil {
		return nil, errors.New("session: camera is required")
	}
	if err := capture.RequireKind(config.Camera, capture.KindStream); err != nil {
		return nil, fmt.Errorf("session: %w", err)
	}
	if config.Detector == nil {
		return nil, errors.New("session: detector is required")
	}
	if err := detector.ValidateThreshold(config.Threshold); err != nil {
		return nil, err
	}

	log := config.Logger
	if log == nil {
		log = logrus.StandardLogger()
	}

	return &Controller{
		camera:    config.Camera,
		detector:  config.Detector,
		consumers: Consumers(consumers...),
		log:       log.WithField("component", "session"),
		state:     Idle,
		threshold: config.Threshold,
		mirrored:  config.Mirrored,
	}, nil
}

// AddConsumer registers c for results and failures of later frames.
func (c *Controller) AddConsumer(consumer Consumer) {
	c.consumers.Add(consumer)
}

// Start opens the camera and starts a session. It is only valid while Idle;
// otherwise it returns ErrNotIdle and changes nothing. When the camera cannot
// be opened the error wraps capture.ErrDeviceUnavailable and the controller
// stays Idle. Status and the setters do not wait for the device to open.
func (c *Controller) Start() error {
	c.startMu.Lock()
	defer c.startMu.Unlock()

	c.mu.Lock()
	state := c.state
	c.mu.Unlock()
	if state != Idle {
		return fmt.Errorf("%w: state is %s", ErrNotIdle, state)
	}

	if err := c.camera.Open(); err != nil {
		if !errors.Is(err, capture.ErrDeviceUnavailable) {
			err = fmt.Errorf("%w: %w", capture.ErrDeviceUnavailable, err)
		}
		c.log.WithError(err).Warn("camera unavailable")
		return err
	}
	fps := c.camera.FPS()

	c.mu.Lock()
	defer c.mu.Unlock()

	c.sessionID = uuid.NewString()
	c.frames = 0
	c.state = Running
	c.stopCh = make(chan struct{})
	c.done = make(chan struct{})

	go c.run(c.sessionID, c.stopCh, c.done)

	c.log.WithFields(logrus.Fields{
		"session_id": c.sessionID,
		"fps":        fps,
	}).Info("session started")
	return nil
}

// Stop ends the running session and waits until the camera is released.
// Stop while Idle does nothing. Stop while Stopping waits for that stop.
// It must not be called from a Consumer callback; use go c.Stop() there.
func (c *Controller) Stop() error {
	c.mu.Lock()
	switch c.state {
	case Idle:
		c.mu.Unlock()
		return nil
	case Running:
		c.state = Stopping
		close(c.stopCh)
	}
	done := c.done
	c.mu.Unlock()

	<-done
	return nil
}

// Close stops any running session.
func (c *Controller) Close() error {
	return c.Stop()
}

// SetThreshold changes the confidence threshold. It applies from the next frame.
func (c *Controller) SetThreshold(t float64) error {
	if err := detector.ValidateThreshold(t); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.threshold = t
	return nil
}

// SetMirrored toggles horizontal mirroring. It applies from the next frame.
func (c *Controller) SetMirrored(mirrored bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.mirrored = mirrored
}

// Status returns a snapshot of the controller.
func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Status{
		State:     c.state,
		Active:    c.state == Running,
		Threshold: c.threshold,
		Mirrored:  c.mirrored,
		SessionID: c.sessionID,
		Frames:    c.frames,
	}
}

// settings returns the values the next frame is processed with.
func (c *Controller) settings() (threshold float64, mirrored bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.threshold, c.mirrored
}

func (c *Controller) run(sessionID string, stopCh <-chan struct{}, done chan<- struct{}) {
	log := c.log.WithField("session_id", sessionID)
	failure := c.loop(sessionID, stopCh, log)

	if err := c.camera.Close(); err != nil {
		log.WithError(err).Warn("error closing camera")
	}

	c.mu.Lock()
	c.state = Idle
	frames := c.frames
	c.mu.Unlock()

	if failure != nil {
		log.WithError(failure).WithField("frames", frames).Error("session failed")
		c.consumers.HandleFailure(sessionID, failure)
	} else {
		log.WithField("frames", frames).Info("session stopped")
	}

	close(done)
}

// loop processes frames until a stop request, end of stream, or a fatal
// failure. It returns the failure to report, if any.
func (c *Controller) loop(sessionID string, stopCh <-chan struct{}, log logrus.FieldLogger) error {
	for seq := 1; ; seq++ {
		select {
		case <-stopCh:
			return nil
		default:
		}

		frame, err := c.camera.ReadFrame()
		if err != nil {
			if errors.Is(err, io.EOF) {
				log.Debug("end of stream")
				return nil
			}
			if !errors.Is(err, capture.ErrFrameRead) {
				err = fmt.Errorf("%w: %w", capture.ErrFrameRead, err)
			}
			return err
		}

		result, err := c.process(sessionID, seq, frame)
		if err != nil {
			return err
		}

		c.mu.Lock()
		c.frames = seq
		c.mu.Unlock()

		log.WithFields(logrus.Fields{
			"seq":        seq,
			"categories": result.Set.Categories(),
		}).Trace("frame processed")

		c.consumers.HandleResult(result)
	}
}

// process runs one frame through the pipeline and releases it.
func (c *Controller) process(sessionID string, seq int, frame *gocv.Mat) (Result, error) {
	defer frame.Close()

	threshold, mirrored := c.settings()
	capturedAt := time.Now()

	if mirrored {
		flipped := gocv.NewMat()
		defer flipped.Close()
		gocv.Flip(*frame, &flipped, 1)
		frame = &flipped
	}

	raw, err := c.detector.Predict(frame, threshold)
	if err != nil {
		return Result{}, fmt.Errorf("%w: frame %d: %w", ErrInference, seq, err)
	}

	set := detector.Normalize(raw, threshold)
	detector.Annotate(frame, detector.Filter(raw, threshold))

	img, err := detector.EncodeJPEG(frame)
	if err != nil {
		return Result{}, fmt.Errorf("frame %d: %w", seq, err)
	}

	return Result{
		SessionID:  sessionID,
		Seq:        seq,
		CapturedAt: capturedAt,
		Image:      img,
		Width:      frame.Cols(),
		Height:     frame.Rows(),
		Mirrored:   mirrored,
		Threshold:  threshold,
		Set:        set,
	}, nil
}

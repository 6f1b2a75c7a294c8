package main

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"runtime"
	"strings"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ayusman/hairtype/internal/app"
	"github.com/ayusman/hairtype/internal/config"
	"github.com/ayusman/hairtype/internal/detector"
	"github.com/ayusman/hairtype/internal/logging"
	"github.com/ayusman/hairtype/internal/server"
	"github.com/ayusman/hairtype/internal/session"
	"github.com/ayusman/hairtype/internal/store"
	"github.com/ayusman/hairtype/internal/tray"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.New(logging.Config{Level: cfg.LogLevel, File: cfg.LogFile})
	if err != nil {
		fmt.Fprintf(os.Stderr, "logging: %v\n", err)
		os.Exit(1)
	}

	if err := run(cfg, logger); err != nil {
		logger.WithError(err).Fatal("hairtype failed")
	}
}

func run(cfg config.Config, logger *logrus.Logger) error {
	logger.Info("Hairtype - hair texture detection")

	st, err := store.New(cfg.DBPath())
	if err != nil {
		return fmt.Errorf("initialize store: %w", err)
	}
	defer st.Close()

	detectorConfig := detector.DefaultConfig()
	detectorConfig.ModelPath = cfg.ModelPath
	detectorConfig.ScriptPath = cfg.ServiceScript
	detectorConfig.ServiceModel = cfg.ServiceModel
	if len(cfg.Classes) > 0 {
		detectorConfig.Classes = cfg.Classes
	}

	application, err := app.New(app.Config{
		Store:     st,
		CameraID:  cfg.CameraID,
		CameraFPS: cfg.CameraFPS,
		Detector:  detectorConfig,
		Threshold: cfg.Threshold,
		Mirrored:  cfg.Mirror,
		Logger:    logger,
	})
	if err != nil {
		return fmt.Errorf("initialize app: %w", err)
	}
	defer application.Close()

	webDir := cfg.WebDir
	if webDir == "" {
		webDir = findWebDir(cfg.DataDir)
	}
	if webDir != "" {
		logger.WithField("dir", webDir).Info("serving static files")
	}

	srv := server.New(server.Config{
		StaticDir:  webDir,
		Service:    application,
		UploadRate: cfg.UploadRate,
		MaxUpload:  cfg.MaxUpload,
		Logger:     logger,
	})

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe(cfg.Addr)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	if cfg.Tray {
		t := newTray(application, cfg.Addr, logger)
		go func() {
			select {
			case <-sigCh:
			case err := <-errCh:
				errCh <- err
			}
			t.Quit()
		}()
		// systray needs the main goroutine.
		t.Run()
	} else {
		select {
		case sig := <-sigCh:
			logger.WithField("signal", sig.String()).Info("shutting down")
		case err := <-errCh:
			if err != nil {
				return fmt.Errorf("server failed: %w", err)
			}
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.WithError(err).Warn("server shutdown")
	}

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
	default:
	}
	return nil
}

// newTray wires the tray menu to the app.
func newTray(a *app.App, addr string, logger logrus.FieldLogger) *tray.Tray {
	t := tray.New(a.Status().Mirrored)

	t.OnCamera(func(on bool) error {
		if on {
			if err := a.Start(); err != nil {
				logger.WithError(err).Warn("failed to open camera")
				return err
			}
			return nil
		}
		return a.Stop()
	})
	t.OnActive(func() bool { return a.Status().Active })
	t.OnMirror(func(mirrored bool) {
		if err := a.SetMirrored(mirrored); err != nil {
			logger.WithError(err).Warn("failed to save mirror setting")
		}
	})
	t.OnOpen(func() {
		if err := openBrowser(browserURL(addr)); err != nil {
			logger.WithError(err).Warn("failed to open browser")
		}
	})

	a.AddConsumer(session.ConsumerFuncs{
		Result: func(r session.Result) {
			var titles []string
			for _, c := range r.Set.Categories() {
				titles = append(titles, c.Title())
			}
			t.SetLast(titles)
			t.SetCameraOn(true)
		},
		Failure: func(sessionID string, err error) {
			t.SetCameraOn(false)
		},
	})

	return t
}

func browserURL(addr string) string {
	if strings.HasPrefix(addr, ":") {
		return "http://localhost" + addr
	}
	return "http://" + addr
}

func openBrowser(url string) error {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	default:
		cmd = exec.Command("xdg-open", url)
	}
	return cmd.Start()
}

// findWebDir searches for the web directory in common locations.
// It checks: "web", "../web", "../../web", and <dataDir>/web.
// Returns the first existing directory or empty string if none found.
func findWebDir(dataDir string) string {
	relativePaths := []string{"web", "../web", "../../web"}
	for _, p := range relativePaths {
		if info, err := os.Stat(p); err == nil && info.IsDir() {
			absPath, err := filepath.Abs(p)
			if err == nil {
				return absPath
			}
			return p
		}
	}

	dataWebDir := filepath.Join(dataDir, "web")
	if info, err := os.Stat(dataWebDir); err == nil && info.IsDir() {
		return dataWebDir
	}

	return ""
}

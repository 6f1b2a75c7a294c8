// Package server provides the HTTP server for the hairtype detection service.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/httprate"
	"github.com/sirupsen/logrus"

	"github.com/ayusman/hairtype/internal/server/api"
	"github.com/ayusman/hairtype/internal/session"
)

// DefaultUploadRate is the per-IP limit on detection uploads, per minute.
const DefaultUploadRate = 30

// Service is the app surface the server needs.
type Service interface {
	api.Service
	AddConsumer(c session.Consumer)
}

// Config holds the server configuration.
type Config struct {
	StaticDir string
	Service   Service
	// UploadRate limits POST /api/detect per client IP per minute.
	UploadRate int
	MaxUpload  int64
	Logger     logrus.FieldLogger
}

// Server represents the HTTP server for the hairtype application.
type Server struct {
	config Config
	mux    *http.ServeMux
	hub    *Hub
	log    logrus.FieldLogger
	start  time.Time
	http   *http.Server
}

// New creates a new Server with the given configuration. When a Service is
// configured the server subscribes its hub to session output.
func New(config Config) *Server {
	log := config.Logger
	if log == nil {
		log = logrus.StandardLogger()
	}

	s := &Server{
		config: config,
		mux:    http.NewServeMux(),
		hub:    NewHub(log),
		log:    log.WithField("component", "server"),
		start:  time.Now(),
	}
	s.http = &http.Server{
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.setupRoutes()
	return s
}

// setupRoutes configures all HTTP routes for the server.
func (s *Server) setupRoutes() {
	s.mux.HandleFunc("/api/health", s.handleHealth)

	guidance := api.NewGuidanceHandler()
	s.mux.Handle("/api/guidance", guidance)
	s.mux.Handle("/api/guidance/", guidance)

	// Detection and session routes need the app
	if s.config.Service != nil {
		s.config.Service.AddConsumer(s.hub)

		rate := s.config.UploadRate
		if rate <= 0 {
			rate = DefaultUploadRate
		}
		detect := api.NewDetectHandler(s.config.Service, s.config.MaxUpload, s.config.Logger)
		s.mux.Handle("/api/detect", httprate.LimitByIP(rate, time.Minute)(detect))

		sessionHandler := api.NewSessionHandler(s.config.Service, s.config.Logger)
		s.mux.Handle("/api/session", sessionHandler)
		s.mux.Handle("/api/session/", sessionHandler)
		s.mux.Handle("/api/session/stream", NewStreamHandler(s.hub))
		s.mux.Handle("/api/session/ws", NewResultsHandler(s.hub, s.config.Logger))
	}

	// Serve static files if StaticDir is configured
	if s.config.StaticDir != "" {
		fs := http.FileServer(http.Dir(s.config.StaticDir))
		s.mux.Handle("/", fs)
	}
}

// Hub returns the session output hub.
func (s *Server) Hub() *Hub {
	return s.hub
}

// ServeHTTP implements the http.Handler interface.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// handleHealth handles GET requests to /api/health.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	response := map[string]interface{}{
		"status": "ok",
		"uptime": time.Since(s.start).String(),
	}
	if s.config.Service != nil {
		response["session"] = s.config.Service.Status().State
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(response); err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
		return
	}
}

// ListenAndServe starts the HTTP server on the given address. It returns nil
// after Shutdown, including a Shutdown that happened before it was called.
func (s *Server) ListenAndServe(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	s.log.WithField("addr", ln.Addr().String()).Info("listening")

	if err := s.http.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

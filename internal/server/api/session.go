package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/ayusman/hairtype/internal/capture"
	"github.com/ayusman/hairtype/internal/detector"
	"github.com/ayusman/hairtype/internal/session"
)

// SessionHandler controls the camera session.
type SessionHandler struct {
	service Service
	log     logrus.FieldLogger
}

// NewSessionHandler creates a new SessionHandler.
func NewSessionHandler(service Service, log logrus.FieldLogger) *SessionHandler {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &SessionHandler{service: service, log: log.WithField("component", "api")}
}

type settingsRequest struct {
	Threshold *float64 `json:"threshold"`
	Mirrored  *bool    `json:"mirrored"`
}

// ServeHTTP routes /api/session, /api/session/start, /api/session/stop and
// /api/session/settings.
func (h *SessionHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/session")
	path = strings.Trim(path, "/")

	switch path {
	case "":
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		writeJSON(w, http.StatusOK, h.service.Status())
	case "start":
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		h.start(w, r)
	case "stop":
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		h.stop(w, r)
	case "settings":
		if r.Method != http.MethodPut {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		h.settings(w, r)
	default:
		writeError(w, http.StatusNotFound, "Not found")
	}
}

// start handles POST /api/session/start.
func (h *SessionHandler) start(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Start(); err != nil {
		switch {
		case errors.Is(err, session.ErrNotIdle):
			writeError(w, http.StatusConflict, "Session is already running")
		case errors.Is(err, capture.ErrDeviceUnavailable):
			writeError(w, http.StatusServiceUnavailable, "Camera is not available")
		default:
			h.log.WithError(err).Error("failed to start session")
			writeError(w, http.StatusInternalServerError, "Failed to start session")
		}
		return
	}
	writeJSON(w, http.StatusOK, h.service.Status())
}

// stop handles POST /api/session/stop. Stopping an idle session succeeds.
func (h *SessionHandler) stop(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Stop(); err != nil {
		h.log.WithError(err).Error("failed to stop session")
		writeError(w, http.StatusInternalServerError, "Failed to stop session")
		return
	}
	writeJSON(w, http.StatusOK, h.service.Status())
}

// settings handles PUT /api/session/settings. The threshold is validated
// before anything is applied.
func (h *SessionHandler) settings(w http.ResponseWriter, r *http.Request) {
	var req settingsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if req.Threshold != nil {
		if err := detector.ValidateThreshold(*req.Threshold); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		if err := h.service.SetThreshold(*req.Threshold); err != nil {
			h.log.WithError(err).Error("failed to set threshold")
			writeError(w, http.StatusInternalServerError, "Failed to save threshold")
			return
		}
	}

	if req.Mirrored != nil {
		if err := h.service.SetMirrored(*req.Mirrored); err != nil {
			h.log.WithError(err).Error("failed to set mirror")
			writeError(w, http.StatusInternalServerError, "Failed to save mirror setting")
			return
		}
	}

	writeJSON(w, http.StatusOK, h.service.Status())
}

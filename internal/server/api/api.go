// Package api provides the HTTP API handlers for the hairtype server.
package api

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/ayusman/hairtype/internal/app"
	"github.com/ayusman/hairtype/internal/session"
)

// Service is the part of the app the handlers drive.
type Service interface {
	DetectUpload(r io.Reader, threshold float64) (*app.Report, error)
	Start() error
	Stop() error
	Status() session.Status
	SetThreshold(t float64) error
	SetMirrored(mirrored bool) error
}

// errorResponse is the body of every error reply.
type errorResponse struct {
	Error string `json:"error"`
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

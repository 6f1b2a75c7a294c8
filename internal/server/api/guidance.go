package api

import (
	"net/http"
	"strings"

	"github.com/ayusman/hairtype/internal/hairtype"
)

// GuidanceHandler serves the care-guidance table.
type GuidanceHandler struct{}

// NewGuidanceHandler creates a new GuidanceHandler.
func NewGuidanceHandler() *GuidanceHandler {
	return &GuidanceHandler{}
}

type listGuidanceResponse struct {
	Guidance []hairtype.Guidance `json:"guidance"`
}

// ServeHTTP handles GET /api/guidance and GET /api/guidance/{category}.
// Unknown categories get the placeholder record, not a 404.
func (h *GuidanceHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	path := strings.TrimPrefix(r.URL.Path, "/api/guidance")
	path = strings.Trim(path, "/")

	if path == "" {
		writeJSON(w, http.StatusOK, listGuidanceResponse{Guidance: hairtype.Table()})
		return
	}

	writeJSON(w, http.StatusOK, hairtype.Lookup(path))
}

package api

import (
	"encoding/json"
	"net/http"
)

// Switch pauses and resumes detection.
type Switch interface {
	IsEnabled() bool
	SetEnabled(enabled bool)
}

type detectionState struct {
	Enabled bool `json:"enabled"`
}

// DetectionHandler serves GET and PUT /api/detection.
type DetectionHandler struct {
	sw Switch
}

// NewDetectionHandler creates a new DetectionHandler.
func NewDetectionHandler(sw Switch) *DetectionHandler {
	return &DetectionHandler{sw: sw}
}

func (h *DetectionHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, detectionState{Enabled: h.sw.IsEnabled()})
	case http.MethodPut:
		var req *detectionState
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req == nil {
			writeError(w, http.StatusBadRequest, "Invalid JSON")
			return
		}
		h.sw.SetEnabled(req.Enabled)
		writeJSON(w, http.StatusOK, detectionState{Enabled: h.sw.IsEnabled()})
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// Package hook runs external executables when alerts change state.
// Each hook lives in its own directory with a hook.json manifest and
// receives a JSON Request on stdin.
package hook

import (
	"encoding/json"

	"github.com/ayusman/kitchenwatch/internal/alert"
)

// ManifestFile is the manifest name looked up in each hook directory.
const ManifestFile = "hook.json"

// Events a hook can subscribe to.
const (
	EventAlert        = "alert"
	EventAcknowledged = "acknowledged"
	EventRearmed      = "rearmed"
)

// Manifest describes a hook's metadata and subscriptions.
type Manifest struct {
	Name        string   `json:"name"`
	Version     string   `json:"version"`
	Description string   `json:"description"`
	Executable  string   `json:"executable"`
	Events      []string `json:"events"`
	// Interactive hooks keep running until the user responds, so their
	// alert runs are not bound by the executor timeout.
	Interactive bool            `json:"interactive,omitempty"`
	Config      json.RawMessage `json:"config,omitempty"`
}

// Request is sent to a hook on stdin.
type Request struct {
	Event  string          `json:"event"`
	Alert  alert.Alert     `json:"alert"`
	Config json.RawMessage `json:"config,omitempty"`
}

// Response is read from a hook's stdout.
type Response struct {
	Success bool            `json:"success"`
	Error   string          `json:"error,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
	// Acknowledged lets an interactive hook report that the user responded.
	Acknowledged bool `json:"acknowledged,omitempty"`
}

// Hook is a discovered hook with its manifest and location.
type Hook struct {
	Manifest   Manifest
	Path       string
	Executable string
}

// Handles reports whether the hook subscribed to event. A manifest without
// events only receives alerts.
func (h *Hook) Handles(event string) bool {
	if len(h.Manifest.Events) == 0 {
		return event == EventAlert
	}
	for _, e := range h.Manifest.Events {
		if e == event {
			return true
		}
	}
	return false
}

package api

import (
	"net/http"
	"strings"

	"github.com/ayusman/kitchenwatch/internal/alert"
)

// AlertController is the part of the alert machine the API drives.
type AlertController interface {
	Status() alert.Status
	Acknowledge()
}

// AlertHandler serves the alert state and the remote acknowledgment.
//
//	GET  /api/alert      current state
//	POST /api/alert/ack  acknowledge ("Show me")
type AlertHandler struct {
	alerts AlertController
}

// NewAlertHandler creates a new AlertHandler.
func NewAlertHandler(c AlertController) *AlertHandler {
	return &AlertHandler{alerts: c}
}

func (h *AlertHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/alert")
	path = strings.Trim(path, "/")

	switch path {
	case "":
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		writeJSON(w, http.StatusOK, h.alerts.Status())

	case "ack":
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		h.acknowledge(w)

	default:
		writeError(w, http.StatusNotFound, "Not found")
	}
}

// acknowledge only records the request; the frame loop applies it on its
// next iteration, so the response is 202.
func (h *AlertHandler) acknowledge(w http.ResponseWriter) {
	st := h.alerts.Status()
	if st.State != alert.Alerted.String() {
		writeError(w, http.StatusConflict, "No alert waiting for acknowledgment")
		return
	}

	h.alerts.Acknowledge()
	st.Pending = true
	writeJSON(w, http.StatusAccepted, st)
}

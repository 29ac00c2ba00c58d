package store

import (
	"log/slog"
	"time"

	"github.com/ayusman/kitchenwatch/internal/alert"
)

// Recorder persists alert transitions as episodes. It implements alert.Listener.
// Write failures are logged; they never stop the frame loop.
type Recorder struct {
	episodes *EpisodeRepository
}

// NewRecorder creates a Recorder writing to s.
func NewRecorder(s *Store) *Recorder {
	return &Recorder{episodes: s.Episodes()}
}

func (r *Recorder) OnAlert(a alert.Alert, notifyErr error) {
	e := &Episode{
		ID:         a.ID,
		StartedAt:  a.Time,
		Frame:      a.Frame,
		Label:      a.Label,
		Confidence: float64(a.Confidence),
	}
	if notifyErr != nil {
		e.NotifyError = notifyErr.Error()
	}
	if err := r.episodes.Create(e); err != nil {
		slog.Warn("failed to record alert episode", "alert", a.ID, "err", err)
	}
}

func (r *Recorder) OnAcknowledge(id string, at time.Time) {
	if err := r.episodes.Acknowledge(id, at); err != nil {
		slog.Warn("failed to record acknowledgment", "alert", id, "err", err)
	}
}

func (r *Recorder) OnRearm(id string, at time.Time) {
	if err := r.episodes.Rearm(id, at); err != nil {
		slog.Warn("failed to record re-arm", "alert", id, "err", err)
	}
}

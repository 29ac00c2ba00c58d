// Package alert turns per-frame detection outcomes into at most one
// pending notification and tracks its acknowledgment.
package alert

import (
	"context"
	"time"
)

// State is the alert lifecycle state.
type State int

const (
	// Idle means no notification has been sent.
	Idle State = iota
	// Alerted means a notification was sent and is waiting for acknowledgment.
	Alerted
	// Acknowledged means the user responded; the alarm overlay is shown.
	Acknowledged
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Alerted:
		return "alerted"
	case Acknowledged:
		return "acknowledged"
	default:
		return "unknown"
	}
}

// Urgency levels, matching desktop notification conventions.
const (
	UrgencyLow      = "low"
	UrgencyNormal   = "normal"
	UrgencyCritical = "critical"
)

// Alert is the notification payload handed to a Notifier.
type Alert struct {
	ID         string    `json:"id"`
	Title      string    `json:"title"`
	Message    string    `json:"message"`
	Icon       string    `json:"icon,omitempty"`
	Urgency    string    `json:"urgency"`
	Action     string    `json:"action,omitempty"`
	Frame      int       `json:"frame"`
	Label      string    `json:"label,omitempty"`
	Confidence float32   `json:"confidence"`
	Time       time.Time `json:"time"`
}

// Notifier delivers an alert to the user. Implementations that offer an
// acknowledgment action call the AckFunc they were built with.
type Notifier interface {
	Notify(ctx context.Context, a Alert) error
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, a Alert) error

func (f NotifierFunc) Notify(ctx context.Context, a Alert) error { return f(ctx, a) }

// AckFunc records an acknowledgment. It is safe to call from any goroutine.
type AckFunc func()

// Listener observes state transitions, e.g. to persist them.
type Listener interface {
	OnAlert(a Alert, notifyErr error)
	OnAcknowledge(id string, at time.Time)
	OnRearm(id string, at time.Time)
}

// Observation is one frame's input to the machine.
type Observation struct {
	Frame      int
	Motion     bool
	Qualifying bool
	Label      string
	Confidence float32
}

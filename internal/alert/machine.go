package alert

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Policy configures notification content and re-arming.
type Policy struct {
	// RearmAfter returns the machine to Idle after this many consecutive
	// observed frames without a qualifying detection. 0 never re-arms, so
	// at most one notification is sent per process.
	RearmAfter int

	Title   string
	Message string
	Icon    string
	Action  string
}

// DefaultPolicy returns the one-shot policy with the default alarm text.
func DefaultPolicy() Policy {
	return Policy{
		Title:   "ALARM",
		Message: "KITCHEN UNDER ATTACK",
		Icon:    "dialog-error",
		Action:  "Show me",
	}
}

// Status is a point-in-time view of the machine.
type Status struct {
	State        string `json:"state"`
	Alert        *Alert `json:"alert,omitempty"`
	Pending      bool   `json:"ack_pending"`
	NotifyFailed bool   `json:"notify_failed"`
}

// Machine is the IDLE -> ALERTED -> ACKNOWLEDGED state machine.
//
// Observe and Poll are called from the frame loop. Acknowledge may be called
// from any goroutine (a tray click, an MQTT message, an HTTP request); it only
// sets a flag that the next Poll applies.
type Machine struct {
	policy    Policy
	notifier  Notifier
	listeners []Listener
	now       func() time.Time

	mu           sync.Mutex
	state        State
	current      Alert
	notifyFailed bool
	quiet        int

	ack atomic.Bool
}

// NewMachine creates a Machine in the Idle state.
func NewMachine(n Notifier, p Policy, listeners ...Listener) *Machine {
	if p.RearmAfter < 0 {
		p.RearmAfter = 0
	}
	return &Machine{
		policy:    p,
		notifier:  n,
		listeners: listeners,
		now:       time.Now,
	}
}

// AddListener registers l for future transitions.
func (m *Machine) AddListener(l Listener) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners = append(m.listeners, l)
}

// Observe feeds one frame's outcome. It returns true when this frame fired
// the notification. Frames whose detection failed must not be observed.
//
// A notifier error is logged and the machine stays Alerted, so a broken
// sink never causes a second notification.
func (m *Machine) Observe(ctx context.Context, obs Observation) bool {
	hit := obs.Motion && obs.Qualifying

	m.mu.Lock()
	switch m.state {
	case Idle:
		if !hit {
			m.mu.Unlock()
			return false
		}
		m.state = Alerted
		m.quiet = 0
		m.ack.Store(false)
		m.current = Alert{
			ID:         uuid.New().String(),
			Title:      m.policy.Title,
			Message:    m.policy.Message,
			Icon:       m.policy.Icon,
			Urgency:    UrgencyCritical,
			Action:     m.policy.Action,
			Frame:      obs.Frame,
			Label:      obs.Label,
			Confidence: obs.Confidence,
			Time:       m.now(),
		}
		a := m.current
		listeners := m.listeners
		m.mu.Unlock()

		var err error
		if m.notifier != nil {
			err = m.notifier.Notify(ctx, a)
		}
		if err != nil {
			slog.Warn("failed to send notification", "alert", a.ID, "err", err)
		}

		m.mu.Lock()
		m.notifyFailed = err != nil
		m.mu.Unlock()

		for _, l := range listeners {
			l.OnAlert(a, err)
		}
		return true

	default:
		if m.policy.RearmAfter == 0 {
			m.mu.Unlock()
			return false
		}
		if hit {
			m.quiet = 0
			m.mu.Unlock()
			return false
		}
		m.quiet++
		if m.quiet < m.policy.RearmAfter {
			m.mu.Unlock()
			return false
		}

		id := m.current.ID
		m.state = Idle
		m.quiet = 0
		m.ack.Store(false)
		listeners := m.listeners
		m.mu.Unlock()

		slog.Info("alert re-armed", "alert", id)
		at := m.now()
		for _, l := range listeners {
			l.OnRearm(id, at)
		}
		return false
	}
}

// Acknowledge records a user response. Safe for concurrent use.
func (m *Machine) Acknowledge() {
	m.ack.Store(true)
}

// Poll applies a pending acknowledgment. It returns true on the frame the
// machine moves to Acknowledged.
func (m *Machine) Poll() bool {
	if !m.ack.Load() {
		return false
	}

	m.mu.Lock()
	if m.state != Alerted {
		m.mu.Unlock()
		return false
	}
	m.state = Acknowledged
	id := m.current.ID
	listeners := m.listeners
	m.mu.Unlock()

	slog.Info("alert acknowledged", "alert", id)
	at := m.now()
	for _, l := range listeners {
		l.OnAcknowledge(id, at)
	}
	return true
}

// State returns the current state.
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// ShowOverlay reports whether the alarm overlay should be drawn.
func (m *Machine) ShowOverlay() bool {
	return m.State() == Acknowledged
}

// Current returns the active alert, if any.
func (m *Machine) Current() (Alert, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == Idle {
		return Alert{}, false
	}
	return m.current, true
}

// Status returns a snapshot for status endpoints.
func (m *Machine) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()

	st := Status{
		State:        m.state.String(),
		Pending:      m.state == Alerted && m.ack.Load(),
		NotifyFailed: m.notifyFailed,
	}
	if m.state != Idle {
		a := m.current
		st.Alert = &a
	}
	return st
}

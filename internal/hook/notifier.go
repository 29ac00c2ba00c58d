package hook

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ayusman/kitchenwatch/internal/alert"
)

// Notifier fans alert events out to subscribed hooks. It implements both
// alert.Notifier (for the alert itself) and alert.Listener (for the
// acknowledgment and re-arm events).
//
// Hooks run in the background: the frame loop never waits for a hook, and
// an interactive hook may report the acknowledgment whenever the user
// responds.
type Notifier struct {
	manager  *Manager
	executor *Executor
	ack      alert.AckFunc

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	current alert.Alert
	closed  bool
}

// NewNotifier creates a Notifier. ack is called when a hook reports that
// the user acknowledged the alert; it may be nil.
func NewNotifier(m *Manager, e *Executor, ack alert.AckFunc) *Notifier {
	ctx, cancel := context.WithCancel(context.Background())
	return &Notifier{manager: m, executor: e, ack: ack, ctx: ctx, cancel: cancel}
}

// Notify starts every hook subscribed to alerts and returns without
// waiting. Hook failures are logged.
func (n *Notifier) Notify(_ context.Context, a alert.Alert) error {
	n.mu.Lock()
	n.current = a
	n.mu.Unlock()

	n.start(EventAlert, a)
	return nil
}

func (n *Notifier) OnAlert(alert.Alert, error) {}

func (n *Notifier) OnAcknowledge(id string, at time.Time) {
	n.start(EventAcknowledged, n.last(id, at))
}

func (n *Notifier) OnRearm(id string, at time.Time) {
	n.start(EventRearmed, n.last(id, at))
}

// Wait blocks until every started hook run has finished.
func (n *Notifier) Wait() {
	n.wg.Wait()
}

// Close kills running hooks and waits for them.
func (n *Notifier) Close() {
	n.mu.Lock()
	n.closed = true
	n.mu.Unlock()

	n.cancel()
	n.wg.Wait()
}

func (n *Notifier) last(id string, at time.Time) alert.Alert {
	n.mu.Lock()
	defer n.mu.Unlock()

	a := n.current
	a.ID, a.Time = id, at
	return a
}

func (n *Notifier) start(event string, a alert.Alert) {
	if len(n.manager.Subscribed(event)) == 0 {
		return
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		return
	}

	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		if err := n.dispatch(n.ctx, event, a); err != nil {
			slog.Warn("hook delivery failed", "event", event, "alert", a.ID, "err", err)
		}
	}()
}

// dispatch runs the hooks for event concurrently and waits for all of
// them; a failing hook does not stop the rest.
func (n *Notifier) dispatch(ctx context.Context, event string, a alert.Alert) error {
	hooks := n.manager.Subscribed(event)
	errs := make([]error, len(hooks))

	var wg sync.WaitGroup
	for i, h := range hooks {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs[i] = n.run(ctx, h, event, a)
		}()
	}
	wg.Wait()
	return errors.Join(errs...)
}

func (n *Notifier) run(ctx context.Context, h *Hook, event string, a alert.Alert) error {
	timeout := n.executor.timeout
	if h.Manifest.Interactive && event == EventAlert {
		timeout = 0
	}

	resp, err := n.executor.Run(ctx, h, &Request{Event: event, Alert: a, Config: h.Manifest.Config}, timeout)
	if err != nil {
		slog.Warn("hook failed", "hook", h.Manifest.Name, "event", event, "err", err)
		return err
	}
	if !resp.Success {
		slog.Warn("hook reported failure", "hook", h.Manifest.Name, "event", event, "err", resp.Error)
		return fmt.Errorf("hook %s: %s", h.Manifest.Name, resp.Error)
	}
	if resp.Acknowledged && event == EventAlert && n.ack != nil {
		n.ack()
	}
	return nil
}

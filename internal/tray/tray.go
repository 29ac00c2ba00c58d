// Package tray provides a system tray interface for kitchenwatch. The tray
// doubles as a desktop notifier: an alert switches the title to the alarm
// text and enables a "Show me" item that acknowledges it.
package tray

import (
	"context"
	"sync"
	"time"

	"github.com/getlantern/systray"

	"github.com/ayusman/kitchenwatch/internal/alert"
)

// Tray represents the system tray application.
type Tray struct {
	onToggle    func(enabled bool)
	onDashboard func()
	onQuit      func()
	ack         alert.AckFunc
	enabled     bool
	ready       bool
	status      string
	alerted     bool
	mu          sync.RWMutex

	// Menu items stored for later updates
	menuStatus *systray.MenuItem
	menuShow   *systray.MenuItem
	menuToggle *systray.MenuItem
}

// New creates a new Tray. enabled is the initial detection state, usually
// restored from persisted settings.
func New(enabled bool) *Tray {
	return &Tray{
		enabled: enabled,
		status:  alert.Idle.String(),
	}
}

// OnToggle sets the callback function to be called when the enabled state is toggled.
func (t *Tray) OnToggle(fn func(enabled bool)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onToggle = fn
}

// OnShow sets the callback for the "Show me" item.
func (t *Tray) OnShow(fn alert.AckFunc) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.ack = fn
}

// OnDashboard sets the callback for the dashboard menu item.
func (t *Tray) OnDashboard(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onDashboard = fn
}

// OnQuit sets the callback function to be called when the quit menu item is clicked.
func (t *Tray) OnQuit(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onQuit = fn
}

// Run starts the system tray application.
// This function blocks until systray.Quit() is called, so it must run on
// the main goroutine on platforms that require it.
func (t *Tray) Run() {
	systray.Run(t.onReady, t.onExit)
}

// Quit stops the tray loop started by Run.
func (t *Tray) Quit() {
	systray.Quit()
}

// onReady is called when the system tray is ready.
// It sets up the menu structure.
func (t *Tray) onReady() {
	systray.SetTitle("kitchenwatch")
	systray.SetTooltip("Kitchen watcher")

	t.mu.Lock()
	t.menuStatus = systray.AddMenuItem("Status: "+t.status, "Alert state")
	t.menuStatus.Disable()
	t.menuShow = systray.AddMenuItem("Show me", "Acknowledge the alert")
	systray.AddSeparator()

	t.menuToggle = systray.AddMenuItem(toggleTitle(t.enabled), "Toggle detection")
	systray.AddSeparator()

	menuDashboard := systray.AddMenuItem("Open Dashboard...", "Open the live view in a browser")
	systray.AddSeparator()

	menuQuit := systray.AddMenuItem("Quit", "Quit kitchenwatch")
	t.ready = true
	t.refresh()
	t.mu.Unlock()

	go func() {
		for {
			select {
			case <-t.menuShow.ClickedCh:
				t.handleShow()
			case <-t.menuToggle.ClickedCh:
				t.handleToggle()
			case <-menuDashboard.ClickedCh:
				t.handleDashboard()
			case <-menuQuit.ClickedCh:
				t.handleQuit()
				return
			}
		}
	}()
}

func (t *Tray) onExit() {}

func toggleTitle(enabled bool) string {
	if enabled {
		return "● Detection enabled"
	}
	return "○ Detection paused"
}

// refresh must be called with t.mu held.
func (t *Tray) refresh() {
	if !t.ready {
		return
	}
	t.menuStatus.SetTitle("Status: " + t.status)
	t.menuToggle.SetTitle(toggleTitle(t.enabled))
	if t.alerted {
		systray.SetTitle("ALARM")
		t.menuShow.Enable()
	} else {
		systray.SetTitle("kitchenwatch")
		t.menuShow.Disable()
	}
}

// Notify implements alert.Notifier. It never fails; before the tray is
// ready the state is kept and shown once the menu exists.
func (t *Tray) Notify(_ context.Context, a alert.Alert) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.alerted = true
	t.status = a.Title + ": " + a.Message
	if t.ready {
		systray.SetTooltip(a.Message)
	}
	t.refresh()
	return nil
}

func (t *Tray) OnAlert(alert.Alert, error) {}

func (t *Tray) OnAcknowledge(string, time.Time) {
	t.setState(false, alert.Acknowledged.String())
}

func (t *Tray) OnRearm(string, time.Time) {
	t.setState(false, alert.Idle.String())
}

func (t *Tray) setState(alerted bool, status string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.alerted = alerted
	t.status = status
	t.refresh()
}

// handleShow handles the "Show me" item click.
func (t *Tray) handleShow() {
	t.mu.RLock()
	callback := t.ack
	alerted := t.alerted
	t.mu.RUnlock()

	if alerted && callback != nil {
		callback()
	}
}

// handleToggle handles the toggle menu item click.
func (t *Tray) handleToggle() {
	t.mu.Lock()
	t.enabled = !t.enabled
	enabled := t.enabled
	t.refresh()
	callback := t.onToggle
	t.mu.Unlock()

	// Call the callback outside the lock to prevent deadlocks
	if callback != nil {
		callback(enabled)
	}
}

func (t *Tray) handleDashboard() {
	t.mu.RLock()
	callback := t.onDashboard
	t.mu.RUnlock()

	if callback != nil {
		callback()
	}
}

// handleQuit handles the quit menu item click.
func (t *Tray) handleQuit() {
	t.mu.RLock()
	callback := t.onQuit
	t.mu.RUnlock()

	if callback != nil {
		callback()
	}

	systray.Quit()
}

// IsEnabled returns the current enabled state.
func (t *Tray) IsEnabled() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.enabled
}

// Status returns the text shown in the status item.
func (t *Tray) Status() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.status
}

// Alerted reports whether an unacknowledged alert is shown.
func (t *Tray) Alerted() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.alerted
}

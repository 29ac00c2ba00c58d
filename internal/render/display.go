package render

import (
	"sync"

	"gocv.io/x/gocv"
)

// Window names.
const (
	AlertWindow = "frame"
	DebugWindow = "debug"
)

// DefaultWaitMs is the per-frame UI event wait.
const DefaultWaitMs = 10

// Display shows frames in OpenCV windows. Windows are created on first use
// so a headless run that never shows anything never touches the GUI.
type Display struct {
	mu      sync.Mutex
	windows map[string]*gocv.Window
}

// NewDisplay creates a Display.
func NewDisplay() *Display {
	return &Display{windows: make(map[string]*gocv.Window)}
}

func (d *Display) window(name string) *gocv.Window {
	w, ok := d.windows[name]
	if !ok {
		w = gocv.NewWindow(name)
		d.windows[name] = w
	}
	return w
}

// Show displays frame in the named window.
func (d *Display) Show(name string, frame *gocv.Mat) {
	if frame == nil || frame.Empty() {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.window(name).IMShow(*frame)
}

// WaitKey pumps window events for up to ms milliseconds and returns the
// pressed key, or -1. Without any window it returns -1 immediately.
func (d *Display) WaitKey(ms int) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, w := range d.windows {
		return w.WaitKey(ms)
	}
	return -1
}

// Close destroys all windows.
func (d *Display) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	for name, w := range d.windows {
		w.Close()
		delete(d.windows, name)
	}
	return nil
}

// Package app wires the motion gate, the object detector and the alert
// machine into the kitchenwatch frame loop.
package app

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"gocv.io/x/gocv"

	"github.com/ayusman/kitchenwatch/internal/alert"
	"github.com/ayusman/kitchenwatch/internal/capture"
	"github.com/ayusman/kitchenwatch/internal/detector"
	"github.com/ayusman/kitchenwatch/internal/metrics"
	"github.com/ayusman/kitchenwatch/internal/store"
)

// ErrNoFrames is returned by Run when the source yields no seed frame.
var ErrNoFrames = errors.New("source produced no frames")

// Inferer is the capability shared by the motion gate and the object detector.
type Inferer[R any] interface {
	Infer(ctx context.Context, frame *gocv.Mat) (R, error)
}

// MotionGate is an Inferer that must be seeded with a background first.
type MotionGate interface {
	Inferer[capture.MotionResult]
	Initialize(frame *gocv.Mat) error
}

// Display shows frames in named windows.
type Display interface {
	Show(name string, frame *gocv.Mat)
	WaitKey(ms int) int
	Close() error
}

// FrameWriter receives every annotated frame, e.g. the output video.
type FrameWriter interface {
	Write(frame *gocv.Mat) error
}

// FramePublisher receives every annotated frame, e.g. the MJPEG hub.
type FramePublisher interface {
	PublishFrame(frame *gocv.Mat) error
}

// Settings persists the enable toggle.
type Settings interface {
	GetBool(key string, def bool) bool
	SetBool(key string, v bool) error
}

// Config holds the components of an App. Source, Motion, Detector and
// Alerts are required; the rest are optional.
type Config struct {
	Source   capture.Source
	Motion   MotionGate
	Detector Inferer[detector.Result]
	Alerts   *alert.Machine

	Writer   FrameWriter
	Frames   FramePublisher
	Display  Display
	Metrics  *metrics.Metrics
	Settings Settings

	// Banner replaces the default alarm text drawn once acknowledged.
	Banner string
	// Debug shows every frame in the debug window.
	Debug bool
}

// App is the detection pipeline controller.
type App struct {
	config  Config
	enabled bool
	mu      sync.RWMutex
}

// New creates an App. Detection starts enabled unless Settings says otherwise.
func New(config Config) (*App, error) {
	switch {
	case config.Source == nil:
		return nil, errors.New("app: source is required")
	case config.Motion == nil:
		return nil, errors.New("app: motion gate is required")
	case config.Detector == nil:
		return nil, errors.New("app: detector is required")
	case config.Alerts == nil:
		return nil, errors.New("app: alert machine is required")
	}

	enabled := true
	if config.Settings != nil {
		enabled = config.Settings.GetBool(store.SettingDetectionEnabled, true)
	}

	return &App{config: config, enabled: enabled}, nil
}

// SetEnabled pauses or resumes detection. Paused frames are still
// written and streamed.
func (a *App) SetEnabled(enabled bool) {
	a.mu.Lock()
	a.enabled = enabled
	a.mu.Unlock()

	slog.Info("detection toggled", "enabled", enabled)
	if a.config.Settings != nil {
		if err := a.config.Settings.SetBool(store.SettingDetectionEnabled, enabled); err != nil {
			slog.Warn("failed to persist detection state", "err", err)
		}
	}
}

// IsEnabled returns whether detection is currently enabled.
func (a *App) IsEnabled() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.enabled
}

// Alerts returns the alert machine.
func (a *App) Alerts() *alert.Machine {
	return a.config.Alerts
}

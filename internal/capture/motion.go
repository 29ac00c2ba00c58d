package capture

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync"

	"gocv.io/x/gocv"
)

// Motion gate defaults
const (
	// DefaultMovementThreshold is the percentage of changed pixels that must be exceeded.
	DefaultMovementThreshold = 20.0
	// DefaultDiffThreshold is the binary threshold applied to the absolute difference.
	DefaultDiffThreshold = 50
	// DefaultBlurSize is the Gaussian kernel size (15x15).
	DefaultBlurSize = 15
	// DefaultRefreshInterval is the number of evaluated frames between background refreshes.
	DefaultRefreshInterval = 1000
)

var (
	// ErrNotInitialized is returned when a frame is evaluated before the background was seeded.
	ErrNotInitialized = errors.New("motion detector has no background")
	// ErrFrameSizeChanged is returned under ResizeFail when a frame does not match the background.
	ErrFrameSizeChanged = errors.New("frame size differs from background")
	// ErrEmptyFrame is returned for nil or empty frames.
	ErrEmptyFrame = errors.New("empty frame")
)

// ResizePolicy decides what happens when frame dimensions stop matching the background.
type ResizePolicy int

const (
	// ResizeReseed replaces the background with the new frame and reports no motion.
	ResizeReseed ResizePolicy = iota
	// ResizeFail rejects the frame with ErrFrameSizeChanged.
	ResizeFail
)

// MotionConfig tunes the motion gate.
type MotionConfig struct {
	// MovementThreshold is a percentage (typically 10-90). Motion requires the
	// changed-pixel ratio to be strictly greater than MovementThreshold/100.
	MovementThreshold float64
	DiffThreshold     float32
	// BlurSize is the odd Gaussian kernel size. 0 disables blurring.
	BlurSize        int
	RefreshInterval int
	// RawSeed stores the seed frame without blurring it, while later
	// comparison frames are still blurred.
	RawSeed  bool
	OnResize ResizePolicy
}

// DefaultMotionConfig returns the default motion gate settings.
func DefaultMotionConfig() MotionConfig {
	return MotionConfig{
		MovementThreshold: DefaultMovementThreshold,
		DiffThreshold:     DefaultDiffThreshold,
		BlurSize:          DefaultBlurSize,
		RefreshInterval:   DefaultRefreshInterval,
		OnResize:          ResizeReseed,
	}
}

// MotionResult is the outcome of evaluating one frame.
type MotionResult struct {
	Moving bool
	// Ratio is the fraction of pixels whose difference exceeded DiffThreshold.
	Ratio float64
	// Refreshed is set when this frame replaced the background.
	Refreshed bool
	// Reseeded is set when a size change forced a new background.
	Reseeded bool
}

// MotionDetector compares each frame against a slowly refreshed
// background instead of the previous frame, so a person standing still
// in the scene keeps registering as motion until the next refresh.
type MotionDetector struct {
	cfg         MotionConfig
	background  gocv.Mat
	size        image.Point
	counter     int
	initialized bool
	mu          sync.Mutex
}

// NewMotionDetector creates a MotionDetector. Non-positive refresh intervals
// fall back to DefaultRefreshInterval.
func NewMotionDetector(cfg MotionConfig) *MotionDetector {
	if cfg.RefreshInterval <= 0 {
		cfg.RefreshInterval = DefaultRefreshInterval
	}
	return &MotionDetector{
		cfg:        cfg,
		background: gocv.NewMat(),
		counter:    cfg.RefreshInterval,
	}
}

// Initialize seeds the background from frame and resets the refresh counter.
func (m *MotionDetector) Initialize(frame *gocv.Mat) error {
	if frame == nil || frame.Empty() {
		return ErrEmptyFrame
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.seed(frame)
	return nil
}

// seed must be called with m.mu held.
func (m *MotionDetector) seed(frame *gocv.Mat) {
	gray := toGray(frame)
	defer gray.Close()

	if m.cfg.RawSeed {
		gray.CopyTo(&m.background)
	} else {
		blurred := m.blur(gray)
		blurred.CopyTo(&m.background)
		blurred.Close()
	}

	m.size = image.Pt(frame.Cols(), frame.Rows())
	m.counter = m.cfg.RefreshInterval
	m.initialized = true
}

// Evaluate reports whether frame shows motion against the background.
func (m *MotionDetector) Evaluate(frame *gocv.Mat) (bool, error) {
	res, err := m.Detect(frame)
	return res.Moving, err
}

// Infer is Detect behind the context-aware signature shared with the object detector.
func (m *MotionDetector) Infer(ctx context.Context, frame *gocv.Mat) (MotionResult, error) {
	if err := ctx.Err(); err != nil {
		return MotionResult{}, err
	}
	return m.Detect(frame)
}

// Detect evaluates one frame:
//  1. grayscale, then Gaussian blur
//  2. absolute difference against the background
//  3. binary threshold at DiffThreshold
//  4. ratio = changed pixels / total pixels
//  5. moving = ratio > MovementThreshold/100
//
// Every call counts down the refresh counter. When it reaches zero the
// blurred frame becomes the new background, the counter restarts and
// the frame reports no motion.
func (m *MotionDetector) Detect(frame *gocv.Mat) (MotionResult, error) {
	if frame == nil || frame.Empty() {
		return MotionResult{}, ErrEmptyFrame
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.initialized {
		return MotionResult{}, ErrNotInitialized
	}

	if size := image.Pt(frame.Cols(), frame.Rows()); size != m.size {
		if m.cfg.OnResize == ResizeFail {
			return MotionResult{}, fmt.Errorf("%w: got %v, background %v", ErrFrameSizeChanged, size, m.size)
		}
		m.seed(frame)
		return MotionResult{Reseeded: true}, nil
	}

	gray := toGray(frame)
	defer gray.Close()

	blurred := m.blur(gray)
	defer blurred.Close()

	diff := gocv.NewMat()
	defer diff.Close()
	gocv.AbsDiff(blurred, m.background, &diff)

	thresh := gocv.NewMat()
	defer thresh.Close()
	gocv.Threshold(diff, &thresh, m.cfg.DiffThreshold, 255, gocv.ThresholdBinary)

	changed := gocv.CountNonZero(thresh)
	total := thresh.Rows() * thresh.Cols()

	res := MotionResult{
		Ratio:  float64(changed) / float64(total),
		Moving: exceedsThreshold(changed, total, m.cfg.MovementThreshold),
	}

	m.counter--
	if m.counter <= 0 {
		blurred.CopyTo(&m.background)
		m.counter = m.cfg.RefreshInterval
		res.Moving = false
		res.Refreshed = true
	}

	return res, nil
}

// exceedsThreshold reports changed/total > percent/100. A ratio equal to
// the threshold is not motion.
func exceedsThreshold(changed, total int, percent float64) bool {
	if total <= 0 {
		return false
	}
	return float64(changed)/float64(total) > percent/100
}

func toGray(frame *gocv.Mat) gocv.Mat {
	gray := gocv.NewMat()
	switch frame.Channels() {
	case 1:
		frame.CopyTo(&gray)
	case 4:
		gocv.CvtColor(*frame, &gray, gocv.ColorBGRAToGray)
	default:
		gocv.CvtColor(*frame, &gray, gocv.ColorBGRToGray)
	}
	return gray
}

// blur returns a new Mat; the caller closes it.
func (m *MotionDetector) blur(gray gocv.Mat) gocv.Mat {
	out := gocv.NewMat()
	if m.cfg.BlurSize <= 0 {
		gray.CopyTo(&out)
		return out
	}
	k := m.cfg.BlurSize
	gocv.GaussianBlur(gray, &out, image.Point{X: k, Y: k}, 0, 0, gocv.BorderDefault)
	return out
}

// Counter returns the number of evaluations left before the next refresh.
func (m *MotionDetector) Counter() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.counter
}

// Background returns a copy of the current background. The caller closes it.
func (m *MotionDetector) Background() gocv.Mat {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.background.Clone()
}

// Initialized reports whether a background has been seeded.
func (m *MotionDetector) Initialized() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.initialized
}

// Reset drops the background; the next Initialize seeds a new one.
func (m *MotionDetector) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.release()
}

// Close releases resources used by the motion detector.
func (m *MotionDetector) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.release()
}

func (m *MotionDetector) release() {
	if !m.background.Empty() {
		m.background.Close()
		m.background = gocv.NewMat()
	}
	m.initialized = false
	m.size = image.Point{}
	m.counter = m.cfg.RefreshInterval
}

// SetThreshold sets the movement threshold percentage.
// Values less than or equal to 0 are ignored.
func (m *MotionDetector) SetThreshold(threshold float64) {
	if threshold <= 0 {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.cfg.MovementThreshold = threshold
}

// Threshold returns the current movement threshold percentage.
func (m *MotionDetector) Threshold() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.cfg.MovementThreshold
}

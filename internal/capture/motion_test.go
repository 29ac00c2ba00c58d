package capture

import (
	"context"
	"errors"
	"image"
	"testing"

	"gocv.io/x/gocv"
)

// grayFrame returns a single-channel frame filled with value.
func grayFrame(rows, cols int, value float64) gocv.Mat {
	m := gocv.NewMatWithSize(rows, cols, gocv.MatTypeCV8U)
	m.SetTo(gocv.NewScalar(value, 0, 0, 0))
	return m
}

// fillRect paints r on frame with value.
func fillRect(frame *gocv.Mat, r image.Rectangle, value float64) {
	roi := frame.Region(r)
	roi.SetTo(gocv.NewScalar(value, value, value, 0))
	roi.Close()
}

func TestNewMotionDetector(t *testing.T) {
	tests := []struct {
		name        string
		cfg         MotionConfig
		wantRefresh int
	}{
		{
			name:        "defaults",
			cfg:         DefaultMotionConfig(),
			wantRefresh: 1000,
		},
		{
			name:        "zero refresh falls back",
			cfg:         MotionConfig{MovementThreshold: 20},
			wantRefresh: 1000,
		},
		{
			name:        "custom refresh",
			cfg:         MotionConfig{MovementThreshold: 20, RefreshInterval: 5},
			wantRefresh: 5,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			md := NewMotionDetector(tt.cfg)
			defer md.Close()

			if md.Initialized() {
				t.Error("motion detector should not be initialized initially")
			}
			if got := md.Counter(); got != tt.wantRefresh {
				t.Errorf("Counter() = %d, want %d", got, tt.wantRefresh)
			}
		})
	}
}

func TestDefaultMotionConfig(t *testing.T) {
	cfg := DefaultMotionConfig()

	if cfg.MovementThreshold != 20 {
		t.Errorf("MovementThreshold = %v, want 20", cfg.MovementThreshold)
	}
	if cfg.DiffThreshold != 50 {
		t.Errorf("DiffThreshold = %v, want 50", cfg.DiffThreshold)
	}
	if cfg.BlurSize != 15 {
		t.Errorf("BlurSize = %d, want 15", cfg.BlurSize)
	}
	if cfg.RefreshInterval != 1000 {
		t.Errorf("RefreshInterval = %d, want 1000", cfg.RefreshInterval)
	}
	if cfg.RawSeed {
		t.Error("RawSeed should default to false")
	}
	if cfg.OnResize != ResizeReseed {
		t.Errorf("OnResize = %v, want ResizeReseed", cfg.OnResize)
	}
}

func TestExceedsThreshold(t *testing.T) {
	tests := []struct {
		name    string
		changed int
		total   int
		percent float64
		want    bool
	}{
		{"equal is not motion", 2000, 10000, 20, false},
		{"one pixel over", 2001, 10000, 20, true},
		{"below", 1999, 10000, 20, false},
		{"nothing changed", 0, 10000, 20, false},
		{"everything changed at 90", 10000, 10000, 90, true},
		{"empty frame", 0, 0, 20, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := exceedsThreshold(tt.changed, tt.total, tt.percent); got != tt.want {
				t.Errorf("exceedsThreshold(%d, %d, %v) = %v, want %v", tt.changed, tt.total, tt.percent, got, tt.want)
			}
		})
	}
}

func TestMotionDetector_NotInitialized(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping test that requires GoCV Mat creation")
	}

	md := NewMotionDetector(DefaultMotionConfig())
	defer md.Close()

	frame := grayFrame(120, 160, 0)
	defer frame.Close()

	if _, err := md.Evaluate(&frame); !errors.Is(err, ErrNotInitialized) {
		t.Errorf("Evaluate() error = %v, want ErrNotInitialized", err)
	}
	if err := md.Initialize(nil); !errors.Is(err, ErrEmptyFrame) {
		t.Errorf("Initialize(nil) error = %v, want ErrEmptyFrame", err)
	}
}

func TestMotionDetector_StaticSceneNeverMoves(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping test that requires GoCV Mat creation")
	}

	md := NewMotionDetector(DefaultMotionConfig())
	defer md.Close()

	frame := gocv.NewMatWithSize(240, 320, gocv.MatTypeCV8UC3)
	defer frame.Close()
	fillRect(&frame, image.Rect(100, 60, 200, 180), 200)

	if err := md.Initialize(&frame); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}

	for i := 0; i < 50; i++ {
		res, err := md.Detect(&frame)
		if err != nil {
			t.Fatalf("Detect() frame %d error = %v", i, err)
		}
		if res.Moving {
			t.Fatalf("frame %d: static scene reported motion, ratio = %f", i, res.Ratio)
		}
		if res.Ratio != 0 {
			t.Fatalf("frame %d: ratio = %f, want 0", i, res.Ratio)
		}
	}
}

func TestMotionDetector_WithMotion(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping test that requires GoCV Mat creation")
	}

	md := NewMotionDetector(DefaultMotionConfig())
	defer md.Close()

	blackFrame := gocv.NewMatWithSize(480, 640, gocv.MatTypeCV8UC3)
	defer blackFrame.Close()

	whiteFrame := gocv.NewMatWithSize(480, 640, gocv.MatTypeCV8UC3)
	defer whiteFrame.Close()
	whiteFrame.SetTo(gocv.NewScalar(255, 255, 255, 0))

	md.Initialize(&blackFrame)

	res, err := md.Infer(context.Background(), &whiteFrame)
	if err != nil {
		t.Fatalf("Infer() error = %v", err)
	}
	if !res.Moving {
		t.Errorf("black to white should detect motion, ratio = %f", res.Ratio)
	}
	if res.Ratio < 0.5 {
		t.Errorf("ratio = %f, expected > 0.5 for black to white transition", res.Ratio)
	}

	// The background is not updated by an ordinary frame, so motion persists.
	moving, err := md.Evaluate(&whiteFrame)
	if err != nil || !moving {
		t.Errorf("second white frame: moving = %v, err = %v, want motion", moving, err)
	}
}

func TestMotionDetector_ThresholdBoundary(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping test that requires GoCV Mat creation")
	}

	cfg := DefaultMotionConfig()
	cfg.BlurSize = 0

	tests := []struct {
		name       string
		extraPixel bool
		want       bool
	}{
		{name: "exactly 20 percent", extraPixel: false, want: false},
		{name: "one pixel over 20 percent", extraPixel: true, want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			md := NewMotionDetector(cfg)
			defer md.Close()

			seed := grayFrame(100, 100, 0)
			defer seed.Close()
			md.Initialize(&seed)

			frame := grayFrame(100, 100, 0)
			defer frame.Close()
			fillRect(&frame, image.Rect(0, 0, 100, 20), 255)
			if tt.extraPixel {
				frame.SetUCharAt(20, 0, 255)
			}

			res, err := md.Detect(&frame)
			if err != nil {
				t.Fatalf("Detect() error = %v", err)
			}
			if res.Moving != tt.want {
				t.Errorf("Moving = %v, want %v (ratio %f)", res.Moving, tt.want, res.Ratio)
			}
		})
	}
}

func TestMotionDetector_Refresh(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping test that requires GoCV Mat creation")
	}

	cfg := DefaultMotionConfig()
	cfg.RefreshInterval = 3

	md := NewMotionDetector(cfg)
	defer md.Close()

	seed := grayFrame(120, 160, 0)
	defer seed.Close()
	md.Initialize(&seed)

	frame := grayFrame(120, 160, 0)
	defer frame.Close()
	fillRect(&frame, image.Rect(0, 0, 160, 80), 255)

	for i := 0; i < 2; i++ {
		res, _ := md.Detect(&frame)
		if !res.Moving || res.Refreshed {
			t.Fatalf("frame %d: Moving = %v Refreshed = %v, want motion without refresh", i, res.Moving, res.Refreshed)
		}
		if got := md.Counter(); got != 3-(i+1) {
			t.Fatalf("frame %d: Counter() = %d, want %d", i, got, 3-(i+1))
		}
	}

	// Third evaluation hits the refresh: motion is forced off.
	res, err := md.Detect(&frame)
	if err != nil {
		t.Fatalf("Detect() error = %v", err)
	}
	if res.Moving {
		t.Error("refresh frame must report no motion")
	}
	if !res.Refreshed {
		t.Error("expected Refreshed on the third frame")
	}
	if got := md.Counter(); got != 3 {
		t.Errorf("Counter() = %d after refresh, want 3", got)
	}

	// The background is now the blurred grayscale of the refresh frame.
	want := gocv.NewMat()
	defer want.Close()
	gocv.GaussianBlur(frame, &want, image.Pt(cfg.BlurSize, cfg.BlurSize), 0, 0, gocv.BorderDefault)

	bg := md.Background()
	defer bg.Close()

	diff := gocv.NewMat()
	defer diff.Close()
	gocv.AbsDiff(bg, want, &diff)
	if n := gocv.CountNonZero(diff); n != 0 {
		t.Errorf("background differs from last blurred frame in %d pixels", n)
	}

	res, _ = md.Detect(&frame)
	if res.Moving {
		t.Errorf("frame matching the refreshed background reported motion, ratio = %f", res.Ratio)
	}
}

func TestMotionDetector_SeedBlur(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping test that requires GoCV Mat creation")
	}

	frame := grayFrame(120, 160, 0)
	defer frame.Close()
	fillRect(&frame, image.Rect(40, 30, 120, 90), 255)

	normalized := NewMotionDetector(DefaultMotionConfig())
	defer normalized.Close()
	normalized.Initialize(&frame)

	res, _ := normalized.Detect(&frame)
	if res.Ratio != 0 {
		t.Errorf("blurred seed: ratio = %f, want 0 for the seed frame itself", res.Ratio)
	}

	cfg := DefaultMotionConfig()
	cfg.RawSeed = true
	raw := NewMotionDetector(cfg)
	defer raw.Close()
	raw.Initialize(&frame)

	res, _ = raw.Detect(&frame)
	if res.Ratio == 0 {
		t.Error("raw seed: expected edge differences between sharp seed and blurred frame")
	}
}

func TestMotionDetector_FrameSizeChange(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping test that requires GoCV Mat creation")
	}

	seed := grayFrame(120, 160, 0)
	defer seed.Close()
	bigger := grayFrame(240, 320, 255)
	defer bigger.Close()

	t.Run("reseed", func(t *testing.T) {
		md := NewMotionDetector(DefaultMotionConfig())
		defer md.Close()
		md.Initialize(&seed)

		res, err := md.Detect(&bigger)
		if err != nil {
			t.Fatalf("Detect() error = %v", err)
		}
		if res.Moving || !res.Reseeded {
			t.Errorf("Moving = %v Reseeded = %v, want reseed without motion", res.Moving, res.Reseeded)
		}

		res, _ = md.Detect(&bigger)
		if res.Moving {
			t.Error("frame matching the reseeded background reported motion")
		}
	})

	t.Run("fail", func(t *testing.T) {
		cfg := DefaultMotionConfig()
		cfg.OnResize = ResizeFail
		md := NewMotionDetector(cfg)
		defer md.Close()
		md.Initialize(&seed)

		if _, err := md.Detect(&bigger); !errors.Is(err, ErrFrameSizeChanged) {
			t.Errorf("Detect() error = %v, want ErrFrameSizeChanged", err)
		}
	})
}

func TestMotionDetector_Reset(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping test that requires GoCV Mat creation")
	}

	md := NewMotionDetector(DefaultMotionConfig())
	defer md.Close()

	frame := grayFrame(120, 160, 0)
	defer frame.Close()

	md.Initialize(&frame)
	if !md.Initialized() {
		t.Error("detector should be initialized after Initialize")
	}

	md.Reset()

	if md.Initialized() {
		t.Error("detector should not be initialized after Reset")
	}
	bg := md.Background()
	defer bg.Close()
	if !bg.Empty() {
		t.Error("background should be empty after Reset")
	}
}

func TestMotionDetector_SetThreshold(t *testing.T) {
	md := NewMotionDetector(DefaultMotionConfig())
	defer md.Close()

	md.SetThreshold(35)
	if got := md.Threshold(); got != 35 {
		t.Errorf("Threshold() = %v, want 35 after SetThreshold", got)
	}

	md.SetThreshold(-1)
	if got := md.Threshold(); got != 35 {
		t.Errorf("negative threshold should be ignored, got %v", got)
	}
}

func TestMotionDetector_Close_Multiple(t *testing.T) {
	md := NewMotionDetector(DefaultMotionConfig())

	// Close multiple times should not panic
	md.Close()
	md.Close()
}

package detector

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"
)

// fakeRuntime reports the first input pixel back as the confidence of a
// single person detection, so each result can be matched to its frame.
type fakeRuntime struct {
	inputs []TensorInfo
	delay  time.Duration
	err    error

	inflight    atomic.Int32
	maxInflight atomic.Int32
	runs        atomic.Int32
	closed      atomic.Bool

	mu       sync.Mutex
	lastInfo []float32
}

func newFakeRuntime(withInfo bool) *fakeRuntime {
	rt := &fakeRuntime{inputs: []TensorInfo{{Name: "data", Shape: []int64{1, 3, 8, 8}}}}
	if withInfo {
		rt.inputs = append([]TensorInfo{{Name: "im_info", Shape: []int64{1, 3}}}, rt.inputs...)
	}
	return rt
}

func (f *fakeRuntime) Inputs() []TensorInfo { return f.inputs }

func (f *fakeRuntime) Outputs() []TensorInfo {
	return []TensorInfo{{Name: "detection_out", Shape: []int64{1, 1, 1, 7}}}
}

func (f *fakeRuntime) Run(inputs []Tensor) ([]Tensor, error) {
	n := f.inflight.Add(1)
	defer f.inflight.Add(-1)
	for {
		prev := f.maxInflight.Load()
		if n <= prev || f.maxInflight.CompareAndSwap(prev, n) {
			break
		}
	}
	f.runs.Add(1)

	time.Sleep(f.delay)
	if f.err != nil {
		return nil, f.err
	}

	var pixel float32
	for _, in := range inputs {
		switch in.Name {
		case "data":
			pixel = in.Data[0]
		case "im_info":
			f.mu.Lock()
			f.lastInfo = append([]float32(nil), in.Data...)
			f.mu.Unlock()
		}
	}

	return []Tensor{{
		Name: "detection_out",
		Data: []float32{0, 1, pixel / 255, 0, 0, 1, 1},
	}}, nil
}

func (f *fakeRuntime) Close() error {
	f.closed.Store(true)
	return nil
}

func filledFrame(value float64) gocv.Mat {
	m := gocv.NewMatWithSize(48, 64, gocv.MatTypeCV8UC3)
	m.SetTo(gocv.NewScalar(value, value, value, 0))
	return m
}

func newTestDetector(t *testing.T, rt Runtime, cfg Config) *ObjectDetector {
	t.Helper()
	d, err := NewObjectDetectorWithRuntime(rt, cfg)
	require.NoError(t, err)
	t.Cleanup(func() { d.Close() })
	return d
}

func TestNewObjectDetector_RejectsTopology(t *testing.T) {
	rt := &fakeRuntime{inputs: []TensorInfo{{Name: "x", Shape: []int64{1, 300, 300}}}}

	_, err := NewObjectDetectorWithRuntime(rt, DefaultConfig())
	assert.ErrorIs(t, err, ErrUnsupportedTopology)
}

func TestNewObjectDetector_RejectsThreshold(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ProbThreshold = 1.5

	_, err := NewObjectDetectorWithRuntime(newFakeRuntime(false), cfg)
	assert.Error(t, err)
}

func TestObjectDetector_Infer(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping test that requires GoCV Mat creation")
	}

	cfg := DefaultConfig()
	cfg.ProbThreshold = 0.5
	cfg.Labels = []string{"background", "person"}
	d := newTestDetector(t, newFakeRuntime(false), cfg)

	assert.Equal(t, 8, d.InputSize().X)

	bright := filledFrame(204)
	defer bright.Close()

	res, err := d.Infer(context.Background(), &bright)
	require.NoError(t, err)
	require.Len(t, res.Detections, 1)
	assert.True(t, res.Qualifying)
	assert.Equal(t, "person", res.Detections[0].Label)
	assert.InDelta(t, 0.8, res.Detections[0].Confidence, 1e-3)

	dark := filledFrame(51)
	defer dark.Close()

	res, err = d.Infer(context.Background(), &dark)
	require.NoError(t, err)
	assert.Empty(t, res.Detections)
	assert.False(t, res.Qualifying)
}

func TestObjectDetector_FillsImageInfo(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping test that requires GoCV Mat creation")
	}

	rt := newFakeRuntime(true)
	d := newTestDetector(t, rt, DefaultConfig())

	frame := filledFrame(100)
	defer frame.Close()

	_, err := d.Infer(context.Background(), &frame)
	require.NoError(t, err)

	rt.mu.Lock()
	defer rt.mu.Unlock()
	assert.Equal(t, []float32{8, 8, 1}, rt.lastInfo)
}

func TestObjectDetector_SingleInFlight(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping test that requires GoCV Mat creation")
	}

	rt := newFakeRuntime(false)
	rt.delay = 5 * time.Millisecond
	cfg := DefaultConfig()
	cfg.ProbThreshold = 0.01
	d := newTestDetector(t, rt, cfg)

	values := []float64{25, 50, 75, 100, 125, 150, 175, 200, 225, 250}

	var wg sync.WaitGroup
	errs := make(chan error, len(values))
	for _, v := range values {
		wg.Add(1)
		go func(v float64) {
			defer wg.Done()

			frame := filledFrame(v)
			defer frame.Close()

			res, err := d.Infer(context.Background(), &frame)
			if err != nil {
				errs <- err
				return
			}
			if len(res.Detections) != 1 {
				errs <- errors.New("missing detection")
				return
			}
			if got := float64(res.Detections[0].Confidence) * 255; got < v-0.5 || got > v+0.5 {
				errs <- errors.New("result does not belong to the submitted frame")
			}
		}(v)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Error(err)
	}
	assert.Equal(t, int32(1), rt.maxInflight.Load())
	assert.Equal(t, int32(len(values)), rt.runs.Load())
}

func TestObjectDetector_RuntimeFailure(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping test that requires GoCV Mat creation")
	}

	rt := newFakeRuntime(false)
	rt.err = errors.New("device lost")
	d := newTestDetector(t, rt, DefaultConfig())

	frame := filledFrame(200)
	defer frame.Close()

	res, err := d.Infer(context.Background(), &frame)
	assert.ErrorIs(t, err, ErrInferenceFailed)
	assert.ErrorContains(t, err, "device lost")
	assert.False(t, res.Qualifying)
}

func TestObjectDetector_TimeoutKeepsSlot(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping test that requires GoCV Mat creation")
	}

	rt := newFakeRuntime(false)
	rt.delay = 200 * time.Millisecond
	cfg := DefaultConfig()
	cfg.InferTimeout = 20 * time.Millisecond
	d := newTestDetector(t, rt, cfg)

	frame := filledFrame(200)
	defer frame.Close()

	req, err := d.StartAsync(context.Background(), &frame)
	require.NoError(t, err)

	_, err = req.Wait(context.Background())
	assert.ErrorIs(t, err, ErrInferenceTimeout)
	assert.ErrorIs(t, err, ErrInferenceFailed)

	// The abandoned request still owns the slot.
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = d.StartAsync(ctx, &frame)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, int32(1), rt.runs.Load())

	<-req.Done()

	rt.delay = 0
	_, err = d.Infer(context.Background(), &frame)
	assert.NoError(t, err)
	assert.Equal(t, int32(1), rt.maxInflight.Load())
}

func TestObjectDetector_Close(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping test that requires GoCV Mat creation")
	}

	rt := newFakeRuntime(false)
	d, err := NewObjectDetectorWithRuntime(rt, DefaultConfig())
	require.NoError(t, err)

	require.NoError(t, d.Close())
	assert.True(t, rt.closed.Load())
	assert.NoError(t, d.Close())

	frame := filledFrame(200)
	defer frame.Close()

	_, err = d.Infer(context.Background(), &frame)
	assert.ErrorIs(t, err, ErrDetectorClosed)
}

func TestObjectDetector_EmptyFrame(t *testing.T) {
	d := newTestDetector(t, newFakeRuntime(false), DefaultConfig())

	_, err := d.Infer(context.Background(), nil)
	assert.ErrorIs(t, err, ErrEmptyFrame)
}

func TestMockDetector(t *testing.T) {
	m := NewMockDetector()
	m.SetResult(EmptyResult())
	m.SetSequence(PersonResult(0.9))

	res, err := m.Infer(context.Background(), nil)
	require.NoError(t, err)
	assert.True(t, res.Qualifying)

	res, err = m.Infer(context.Background(), nil)
	require.NoError(t, err)
	assert.False(t, res.Qualifying)

	m.SetError(ErrInferenceFailed)
	_, err = m.Infer(context.Background(), nil)
	assert.ErrorIs(t, err, ErrInferenceFailed)
	assert.Equal(t, 3, m.Calls())
}

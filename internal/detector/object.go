package detector

import (
	"context"
	"fmt"
	"image"
	"sync/atomic"
	"time"

	"gocv.io/x/gocv"
)

// ObjectDetector implements Detector on top of a Runtime. It owns exactly
// one request slot: at most one inference is in flight at any time, and the
// slot is only released once the runtime call has returned.
type ObjectDetector struct {
	cfg  Config
	rt   Runtime
	topo topology

	slot   chan struct{}
	closed atomic.Bool
}

// NewObjectDetector loads the model named by cfg.ModelPath.
func NewObjectDetector(cfg Config) (*ObjectDetector, error) {
	rt, err := OpenRuntime(cfg)
	if err != nil {
		return nil, err
	}

	d, err := NewObjectDetectorWithRuntime(rt, cfg)
	if err != nil {
		rt.Close()
		return nil, err
	}
	return d, nil
}

// NewObjectDetectorWithRuntime validates the runtime's topology and wraps it.
func NewObjectDetectorWithRuntime(rt Runtime, cfg Config) (*ObjectDetector, error) {
	if cfg.ProbThreshold < 0 || cfg.ProbThreshold >= 1 {
		return nil, fmt.Errorf("probability threshold %v out of range [0, 1)", cfg.ProbThreshold)
	}

	topo, err := resolveTopology(rt.Inputs(), rt.Outputs())
	if err != nil {
		return nil, err
	}

	return &ObjectDetector{
		cfg:  cfg,
		rt:   rt,
		topo: topo,
		slot: make(chan struct{}, 1),
	}, nil
}

// InputSize returns the model's image input size as width x height.
func (d *ObjectDetector) InputSize() image.Point {
	h, w := d.topo.imageSize()
	return image.Pt(w, h)
}

// Request is a submitted inference.
type Request struct {
	done    chan struct{}
	timeout time.Duration
	result  Result
	err     error
}

// Done is closed when the runtime call has returned.
func (r *Request) Done() <-chan struct{} { return r.done }

// Wait blocks until the request completes, ctx ends, or the configured
// timeout elapses. Abandoning a request does not free the detector's slot
// early.
func (r *Request) Wait(ctx context.Context) (Result, error) {
	var timeout <-chan time.Time
	if r.timeout > 0 {
		t := time.NewTimer(r.timeout)
		defer t.Stop()
		timeout = t.C
	}

	select {
	case <-r.done:
		return r.result, r.err
	case <-ctx.Done():
		return Result{}, ctx.Err()
	case <-timeout:
		return Result{}, fmt.Errorf("%w after %s", ErrInferenceTimeout, r.timeout)
	}
}

// StartAsync waits for the request slot, preprocesses frame and submits it.
// frame may be reused by the caller as soon as StartAsync returns.
func (d *ObjectDetector) StartAsync(ctx context.Context, frame *gocv.Mat) (*Request, error) {
	if d.closed.Load() {
		return nil, ErrDetectorClosed
	}
	if frame == nil || frame.Empty() {
		return nil, ErrEmptyFrame
	}

	select {
	case d.slot <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	if d.closed.Load() {
		<-d.slot
		return nil, ErrDetectorClosed
	}

	inputs, err := d.inputs(frame)
	if err != nil {
		<-d.slot
		return nil, err
	}

	req := &Request{done: make(chan struct{}), timeout: d.cfg.InferTimeout}
	size := image.Pt(frame.Cols(), frame.Rows())
	start := time.Now()

	go func() {
		outs, err := d.rt.Run(inputs)
		switch {
		case err != nil:
			req.err = fmt.Errorf("%w: %v", ErrInferenceFailed, err)
		case len(outs) != 1:
			req.err = fmt.Errorf("%w: runtime returned %d outputs", ErrInferenceFailed, len(outs))
		default:
			req.result = decode(outs[0], size, d.cfg)
			req.result.Latency = time.Since(start)
		}

		<-d.slot
		close(req.done)
	}()

	return req, nil
}

// Infer submits frame and blocks on the same request.
func (d *ObjectDetector) Infer(ctx context.Context, frame *gocv.Mat) (Result, error) {
	req, err := d.StartAsync(ctx, frame)
	if err != nil {
		return Result{}, err
	}
	return req.Wait(ctx)
}

func (d *ObjectDetector) inputs(frame *gocv.Mat) ([]Tensor, error) {
	img, err := preprocess(frame, d.topo.image)
	if err != nil {
		return nil, fmt.Errorf("preprocess: %w", err)
	}

	inputs := []Tensor{img}
	h, w := d.topo.imageSize()
	for _, info := range d.topo.info {
		inputs = append(inputs, infoTensor(info, h, w))
	}
	return inputs, nil
}

// Close waits for an in-flight request to finish and releases the runtime.
func (d *ObjectDetector) Close() error {
	if d.closed.Swap(true) {
		return nil
	}
	d.slot <- struct{}{}
	defer func() { <-d.slot }()
	return d.rt.Close()
}

// Package detector runs object detection on video frames through an
// inference runtime with a single in-flight request.
package detector

import (
	"context"
	"errors"
	"fmt"
	"image"
	"time"

	"gocv.io/x/gocv"
)

var (
	// ErrUnsupportedTopology is returned when a model does not have exactly one
	// output and one 4-D image input (plus optional 2-D image info inputs).
	ErrUnsupportedTopology = errors.New("unsupported model topology")
	// ErrInferenceFailed marks a runtime failure. It is never reported as "no detection".
	ErrInferenceFailed = errors.New("inference failed")
	// ErrInferenceTimeout is returned by Wait when the configured timeout elapses.
	ErrInferenceTimeout = fmt.Errorf("%w: timed out", ErrInferenceFailed)
	// ErrDetectorClosed is returned after Close.
	ErrDetectorClosed = errors.New("detector is closed")
	// ErrUnknownRuntime is returned for model files no runtime can load.
	ErrUnknownRuntime = errors.New("no runtime for model format")
	// ErrEmptyFrame is returned for nil or empty frames.
	ErrEmptyFrame = errors.New("empty frame")
)

// Detector defines the interface for object detection implementations.
type Detector interface {
	// Infer runs detection on frame and blocks until the result is ready.
	Infer(ctx context.Context, frame *gocv.Mat) (Result, error)

	// Close releases any resources held by the detector.
	Close() error
}

// Detection is a single object found in a frame.
type Detection struct {
	ClassID    int
	Label      string
	Confidence float32
	// Box is in source frame pixels.
	Box image.Rectangle
	// Target is set when ClassID is one of the configured target classes.
	Target bool
}

// Result holds the detections of one frame that passed the probability threshold.
type Result struct {
	Detections []Detection
	// Qualifying is set when at least one detection belongs to a target class.
	Qualifying bool
	Latency    time.Duration
}

// Best returns the highest-confidence qualifying detection.
func (r Result) Best() (Detection, bool) {
	var best Detection
	found := false
	for _, d := range r.Detections {
		if d.Target && (!found || d.Confidence > best.Confidence) {
			best = d
			found = true
		}
	}
	return best, found
}

// Config holds configuration options for object detection.
type Config struct {
	// ModelPath is the model descriptor: an OpenVINO IR .xml (weights in the
	// sibling .bin) or an .onnx file.
	ModelPath string

	// Device is the inference device name (CPU, GPU, MYRIAD, ...).
	Device string

	// CPUExtension is an optional custom-kernel library, CPU only.
	CPUExtension string

	// ProbThreshold drops detections whose confidence does not exceed it.
	ProbThreshold float32

	// TargetClasses are the class ids that make a frame qualifying.
	// Empty means any class.
	TargetClasses []int

	// Labels maps class ids to names.
	Labels []string

	// InferTimeout bounds Wait. Zero waits until the runtime returns or ctx ends.
	InferTimeout time.Duration

	// RuntimeLibrary is the onnxruntime shared library path for .onnx models.
	RuntimeLibrary string
}

// DefaultConfig returns a Config with sensible default values.
func DefaultConfig() Config {
	return Config{
		Device:        "CPU",
		ProbThreshold: 0.5,
	}
}

// IsTarget reports whether classID makes a frame qualifying.
func (c Config) IsTarget(classID int) bool {
	if len(c.TargetClasses) == 0 {
		return true
	}
	for _, id := range c.TargetClasses {
		if id == classID {
			return true
		}
	}
	return false
}

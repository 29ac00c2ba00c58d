package detector

import (
	"context"
	"image"
	"sync"

	"gocv.io/x/gocv"
)

// PersonClassID is the class id person detectors report for a person.
const PersonClassID = 1

// MockDetector is a test implementation of the Detector interface.
// It allows tests to control the detection results.
type MockDetector struct {
	mu       sync.Mutex
	result   Result
	sequence []Result
	err      error
	calls    int
}

// NewMockDetector creates a new MockDetector instance.
func NewMockDetector() *MockDetector {
	return &MockDetector{}
}

// SetResult sets the result returned once any queued sequence is used up.
func (m *MockDetector) SetResult(r Result) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.result = r
}

// SetSequence queues results returned by successive Infer calls.
func (m *MockDetector) SetSequence(results ...Result) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sequence = append([]Result(nil), results...)
}

// SetError sets the error that will be returned by Infer.
func (m *MockDetector) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// Calls returns how many times Infer was invoked.
func (m *MockDetector) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// Infer returns the next queued result, the pre-configured result, or error.
func (m *MockDetector) Infer(ctx context.Context, frame *gocv.Mat) (Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls++
	if m.err != nil {
		return Result{}, m.err
	}
	if len(m.sequence) > 0 {
		r := m.sequence[0]
		m.sequence = m.sequence[1:]
		return r, nil
	}
	return m.result, nil
}

// Close is a no-op for the mock detector.
func (m *MockDetector) Close() error {
	return nil
}

// PersonResult returns a qualifying Result holding one person detection.
func PersonResult(confidence float32) Result {
	return Result{
		Detections: []Detection{{
			ClassID:    PersonClassID,
			Label:      "person",
			Confidence: confidence,
			Box:        image.Rect(40, 30, 120, 200),
			Target:     true,
		}},
		Qualifying: true,
	}
}

// EmptyResult returns a Result without detections.
func EmptyResult() Result {
	return Result{}
}

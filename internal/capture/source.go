// Package capture provides frame sources and the motion gate built on GoCV (OpenCV).
package capture

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"sync"

	"gocv.io/x/gocv"
)

// DefaultFPS is reported when a source cannot tell its own frame rate.
const DefaultFPS = 25.0

var (
	// ErrSourceNotOpen is returned when reading from a source that is not open.
	ErrSourceNotOpen = errors.New("source is not open")
	// ErrEndOfStream is returned once a source has no more frames.
	// A failed camera read is treated the same way.
	ErrEndOfStream = errors.New("end of stream")
)

// Source yields frames one at a time. The caller owns and must close
// every Mat returned by ReadFrame.
type Source interface {
	Open() error
	Close() error
	ReadFrame() (*gocv.Mat, error)
	FPS() float64
	IsOpen() bool
}

// Open resolves an input argument to a Source and opens it.
// An integer selects a camera device ("0" is the default camera),
// anything else is a video or image file path that must exist.
func Open(input string) (Source, error) {
	var src Source
	if id, err := strconv.Atoi(input); err == nil {
		src = NewCamera(id)
	} else {
		if _, err := os.Stat(input); err != nil {
			return nil, fmt.Errorf("input %q: %w", input, err)
		}
		src = NewVideoFile(input)
	}

	if err := src.Open(); err != nil {
		return nil, fmt.Errorf("open input %q: %w", input, err)
	}
	return src, nil
}

// videoSource reads frames through gocv.VideoCapture, which covers both
// camera devices and files.
type videoSource struct {
	target  any
	capture *gocv.VideoCapture
	mu      sync.Mutex
	running bool
}

// NewCamera creates a Source for the camera with the given device ID.
func NewCamera(deviceID int) Source {
	return &videoSource{target: deviceID}
}

// NewVideoFile creates a Source that plays back a video or image file.
func NewVideoFile(path string) Source {
	return &videoSource{target: path}
}

func (s *videoSource) Open() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return nil
	}

	capture, err := gocv.OpenVideoCapture(s.target)
	if err != nil {
		return err
	}
	if !capture.IsOpened() {
		capture.Close()
		return fmt.Errorf("video capture %v did not open", s.target)
	}

	s.capture = capture
	s.running = true

	return nil
}

func (s *videoSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running || s.capture == nil {
		s.running = false
		return nil
	}

	err := s.capture.Close()
	s.capture = nil
	s.running = false

	return err
}

// ReadFrame reads the next frame. A failed or empty read ends the stream.
func (s *videoSource) ReadFrame() (*gocv.Mat, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running || s.capture == nil {
		return nil, ErrSourceNotOpen
	}

	mat := gocv.NewMat()
	if ok := s.capture.Read(&mat); !ok || mat.Empty() {
		mat.Close()
		return nil, ErrEndOfStream
	}

	return &mat, nil
}

// FPS returns the frame rate reported by the capture backend, or DefaultFPS.
func (s *videoSource) FPS() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.capture == nil {
		return DefaultFPS
	}
	if fps := s.capture.Get(gocv.VideoCaptureFPS); fps > 0 {
		return fps
	}
	return DefaultFPS
}

func (s *videoSource) IsOpen() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.running
}

package capture

import (
	"fmt"
	"sync"

	"gocv.io/x/gocv"
)

// DefaultCodec is the FourCC used for output video.
const DefaultCodec = "MJPG"

// Writer records frames to a video file. The file is created on the first
// Write so its dimensions follow the stream.
type Writer struct {
	path   string
	codec  string
	fps    float64
	writer *gocv.VideoWriter
	mu     sync.Mutex
}

// NewWriter creates a Writer for path at the given frame rate.
func NewWriter(path string, fps float64) *Writer {
	if fps <= 0 {
		fps = DefaultFPS
	}
	return &Writer{path: path, codec: DefaultCodec, fps: fps}
}

// Write appends frame to the output, opening the file on first use.
func (w *Writer) Write(frame *gocv.Mat) error {
	if frame == nil || frame.Empty() {
		return ErrEmptyFrame
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.writer == nil {
		vw, err := gocv.VideoWriterFile(w.path, w.codec, w.fps, frame.Cols(), frame.Rows(), frame.Channels() > 1)
		if err != nil {
			return fmt.Errorf("open output %q: %w", w.path, err)
		}
		w.writer = vw
	}

	return w.writer.Write(*frame)
}

// Path returns the output file path.
func (w *Writer) Path() string { return w.path }

// Close flushes and closes the output file. Closing an unused Writer is a no-op.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.writer == nil {
		return nil
	}
	err := w.writer.Close()
	w.writer = nil
	return err
}

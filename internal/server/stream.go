package server

import (
	"fmt"
	"net/http"
	"sync"
	"time"

	"gocv.io/x/gocv"
)

// FrameHub holds the most recent annotated frame as JPEG. The frame loop
// publishes into it; stream clients wait for the next frame.
type FrameHub struct {
	mu     sync.RWMutex
	jpeg   []byte
	seq    uint64
	notify chan struct{}
}

// NewFrameHub creates an empty FrameHub.
func NewFrameHub() *FrameHub {
	return &FrameHub{notify: make(chan struct{})}
}

// PublishFrame encodes frame as JPEG and publishes it.
func (h *FrameHub) PublishFrame(frame *gocv.Mat) error {
	if frame == nil || frame.Empty() {
		return nil
	}
	buf, err := gocv.IMEncode(gocv.JPEGFileExt, *frame)
	if err != nil {
		return fmt.Errorf("encode frame: %w", err)
	}
	defer buf.Close()

	// GetBytes aliases C memory that Close frees.
	data := append([]byte(nil), buf.GetBytes()...)
	h.Publish(data)
	return nil
}

// Publish replaces the latest frame and wakes every waiting client.
func (h *FrameHub) Publish(jpeg []byte) {
	h.mu.Lock()
	h.jpeg = jpeg
	h.seq++
	close(h.notify)
	h.notify = make(chan struct{})
	h.mu.Unlock()
}

// Latest returns the latest frame and its sequence number. seq is 0 before
// anything was published.
func (h *FrameHub) Latest() ([]byte, uint64) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.jpeg, h.seq
}

// next returns the latest frame when it is newer than after, or a channel
// that is closed on the next Publish.
func (h *FrameHub) next(after uint64) ([]byte, uint64, <-chan struct{}) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.seq > after {
		return h.jpeg, h.seq, nil
	}
	return nil, h.seq, h.notify
}

// StreamHandler serves the annotated frames as MJPEG.
type StreamHandler struct {
	hub      *FrameHub
	interval time.Duration
}

// NewStreamHandler creates a new StreamHandler. maxFPS limits the rate sent
// to each client; 0 sends every published frame.
func NewStreamHandler(hub *FrameHub, maxFPS int) *StreamHandler {
	h := &StreamHandler{hub: hub}
	if maxFPS > 0 {
		h.interval = time.Second / time.Duration(maxFPS)
	}
	return h
}

// ServeHTTP streams MJPEG frames to connected clients.
func (h *StreamHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	w.Header().Set("Content-Type", "multipart/x-mixed-replace; boundary=frame")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	var seq uint64
	for {
		frame, latest, wait := h.hub.next(seq)
		if wait != nil {
			select {
			case <-r.Context().Done():
				return
			case <-wait:
				continue
			}
		}
		seq = latest

		fmt.Fprintf(w, "--frame\r\n")
		fmt.Fprintf(w, "Content-Type: image/jpeg\r\n")
		fmt.Fprintf(w, "Content-Length: %d\r\n\r\n", len(frame))
		if _, err := w.Write(frame); err != nil {
			return
		}
		fmt.Fprintf(w, "\r\n")

		if f, ok := w.(http.Flusher); ok {
			f.Flush()
		}

		if h.interval > 0 {
			select {
			case <-r.Context().Done():
				return
			case <-time.After(h.interval):
			}
		}
	}
}

// SnapshotHandler serves the latest frame as a single JPEG.
type SnapshotHandler struct {
	hub *FrameHub
}

func (h SnapshotHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	frame, seq := h.hub.Latest()
	if seq == 0 {
		http.Error(w, "No frame yet", http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Cache-Control", "no-cache")
	w.Write(frame)
}

// Package testdata builds synthetic frames for pipeline tests.
package testdata

import (
	"image"

	"gocv.io/x/gocv"
)

// Frame size used by the fixtures.
const (
	Rows = 240
	Cols = 320
)

// Intruder covers about 56% of a fixture frame, well past the default
// 20% movement threshold.
var Intruder = image.Rect(40, 30, 280, 210)

// Blank returns a black BGR frame.
func Blank() *gocv.Mat {
	m := gocv.NewMatWithSize(Rows, Cols, gocv.MatTypeCV8UC3)
	m.SetTo(gocv.NewScalar(0, 0, 0, 0))
	return &m
}

// WithRect returns a black frame with r painted white.
func WithRect(r image.Rectangle) *gocv.Mat {
	m := Blank()
	roi := m.Region(r)
	roi.SetTo(gocv.NewScalar(255, 255, 255, 0))
	roi.Close()
	return m
}

// Scenario returns a seed frame followed by one still frame and two frames
// showing the intruder.
func Scenario() []*gocv.Mat {
	return []*gocv.Mat{Blank(), Blank(), WithRect(Intruder), WithRect(Intruder)}
}

// Close releases every frame.
func Close(frames []*gocv.Mat) {
	for _, f := range frames {
		f.Close()
	}
}

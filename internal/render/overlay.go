// Package render draws detections and the alarm banner onto frames and
// shows them in OpenCV windows.
package render

import (
	"fmt"
	"image"
	"image/color"
	"math"
	"strconv"
	"time"

	"gocv.io/x/gocv"

	"github.com/ayusman/kitchenwatch/internal/detector"
)

// DefaultBanner is drawn on every frame once an alert is acknowledged.
const DefaultBanner = "Kitchen Under ATTACK!!"

var (
	bannerColor = color.RGBA{R: 255, A: 255}
	statsColor  = color.RGBA{R: 10, G: 255, B: 200, A: 255}
)

// ClassColor derives a stable box color from a class id, so different
// classes stay distinguishable without a palette.
func ClassColor(classID int) color.RGBA {
	c := func(scale float64) uint8 {
		return uint8(math.Min(float64(classID)*scale, 255))
	}
	return color.RGBA{R: c(5), G: c(7), B: c(12.5), A: 255}
}

// DetectionLabel formats the caption drawn above a box, e.g. "person 87.5 %".
func DetectionLabel(d detector.Detection) string {
	name := d.Label
	if name == "" {
		name = strconv.Itoa(d.ClassID)
	}
	pct := math.Round(float64(d.Confidence)*1000) / 10
	return name + " " + strconv.FormatFloat(pct, 'f', -1, 64) + " %"
}

// DrawDetections draws each detection's box and caption.
func DrawDetections(frame *gocv.Mat, dets []detector.Detection) {
	for _, d := range dets {
		c := ClassColor(d.ClassID)
		gocv.Rectangle(frame, d.Box, c, 2)
		gocv.PutText(frame, DetectionLabel(d), image.Pt(d.Box.Min.X, d.Box.Min.Y-7), gocv.FontHersheyComplex, 0.6, c, 1)
	}
}

// DrawBanner draws the alarm text in the top-left corner.
func DrawBanner(frame *gocv.Mat, text string) {
	if text == "" {
		text = DefaultBanner
	}
	gocv.PutText(frame, text, image.Pt(15, 40), gocv.FontHersheyComplex, 1, bannerColor, 2)
}

// InferenceTimeMessage formats a detector latency for display.
func InferenceTimeMessage(d time.Duration) string {
	return fmt.Sprintf("Inference time: %.3f ms", float64(d)/float64(time.Millisecond))
}

// DrawInferenceTime draws the latency along the bottom edge so it never
// overlaps the banner.
func DrawInferenceTime(frame *gocv.Mat, d time.Duration) {
	gocv.PutText(frame, InferenceTimeMessage(d), image.Pt(10, frame.Rows()-20), gocv.FontHersheyComplex, 0.5, statsColor, 1)
}

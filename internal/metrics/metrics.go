// Package metrics exposes pipeline counters to Prometheus.
package metrics

import (
	"math"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ayusman/kitchenwatch/internal/alert"
)

const namespace = "kitchenwatch"

// Metrics holds all application metrics. The zero value is not usable;
// create one with New. A nil *Metrics ignores every update.
type Metrics struct {
	// Frame loop counters
	Frames              atomic.Uint64
	MotionFrames        atomic.Uint64
	BackgroundRefreshes atomic.Uint64

	// Detector counters
	Inferences        atomic.Uint64
	InferenceFailures atomic.Uint64

	// Alert counters
	Alerts          atomic.Uint64
	Acknowledgments atomic.Uint64
	NotifyFailures  atomic.Uint64

	// motionRatio stores math.Float64bits of the last ratio.
	motionRatio atomic.Uint64

	inferenceSeconds prometheus.Histogram
	registry         *prometheus.Registry
}

// New creates a new Metrics instance with its own Prometheus registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		inferenceSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "inference_seconds",
			Help:      "Object detector inference latency",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}),
	}
	m.registerPrometheusMetrics()
	return m
}

func (m *Metrics) counter(name, help string, v *atomic.Uint64) {
	m.registry.MustRegister(prometheus.NewCounterFunc(
		prometheus.CounterOpts{Namespace: namespace, Name: name, Help: help},
		func() float64 { return float64(v.Load()) },
	))
}

func (m *Metrics) registerPrometheusMetrics() {
	m.counter("frames_total", "Frames read from the input stream", &m.Frames)
	m.counter("motion_frames_total", "Frames where the motion gate opened", &m.MotionFrames)
	m.counter("background_refreshes_total", "Background model refreshes", &m.BackgroundRefreshes)
	m.counter("inferences_total", "Object detector inferences", &m.Inferences)
	m.counter("inference_failures_total", "Object detector inferences that failed", &m.InferenceFailures)
	m.counter("alerts_total", "Alerts raised", &m.Alerts)
	m.counter("acknowledgements_total", "Alerts acknowledged", &m.Acknowledgments)
	m.counter("notify_failures_total", "Alerts whose notification failed", &m.NotifyFailures)

	m.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "motion_ratio",
			Help:      "Fraction of changed pixels in the last evaluated frame",
		},
		m.MotionRatio,
	))

	m.registry.MustRegister(m.inferenceSeconds)
}

// ObserveFrame records one frame read from the input.
func (m *Metrics) ObserveFrame() {
	if m == nil {
		return
	}
	m.Frames.Add(1)
}

// ObserveMotion records a motion gate evaluation.
func (m *Metrics) ObserveMotion(moving, refreshed bool, ratio float64) {
	if m == nil {
		return
	}
	if moving {
		m.MotionFrames.Add(1)
	}
	if refreshed {
		m.BackgroundRefreshes.Add(1)
	}
	m.motionRatio.Store(math.Float64bits(ratio))
}

// ObserveInference records a detector call and its latency.
func (m *Metrics) ObserveInference(d time.Duration, err error) {
	if m == nil {
		return
	}
	m.Inferences.Add(1)
	if err != nil {
		m.InferenceFailures.Add(1)
		return
	}
	m.inferenceSeconds.Observe(d.Seconds())
}

// MotionRatio returns the last recorded motion ratio.
func (m *Metrics) MotionRatio() float64 {
	return math.Float64frombits(m.motionRatio.Load())
}

// OnAlert implements alert.Listener.
func (m *Metrics) OnAlert(_ alert.Alert, notifyErr error) {
	m.Alerts.Add(1)
	if notifyErr != nil {
		m.NotifyFailures.Add(1)
	}
}

func (m *Metrics) OnAcknowledge(string, time.Time) { m.Acknowledgments.Add(1) }

func (m *Metrics) OnRearm(string, time.Time) {}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns the Prometheus HTTP handler
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"gocv.io/x/gocv"

	"github.com/ayusman/kitchenwatch/internal/alert"
	"github.com/ayusman/kitchenwatch/internal/capture"
	"github.com/ayusman/kitchenwatch/internal/detector"
	"github.com/ayusman/kitchenwatch/internal/render"
)

// FrameResult is the outcome of one processed frame.
type FrameResult struct {
	Index  int
	Motion capture.MotionResult
	// Detection is nil when the detector did not run.
	Detection *detector.Result
	// Fired is set on the frame that sent the notification.
	Fired bool
}

// Process runs one frame through the pipeline:
//  1. motion gate
//  2. object detector, only when the gate reports motion
//  3. alert machine
//
// An error from either model skips the frame; the alert machine does not
// see it, so a failed inference is never mistaken for an empty kitchen.
func (a *App) Process(ctx context.Context, frame *gocv.Mat, index int) (FrameResult, error) {
	res := FrameResult{Index: index}

	motion, err := a.config.Motion.Infer(ctx, frame)
	if err != nil {
		return res, fmt.Errorf("motion gate: %w", err)
	}
	res.Motion = motion
	a.config.Metrics.ObserveMotion(motion.Moving, motion.Refreshed, motion.Ratio)

	obs := alert.Observation{Frame: index, Motion: motion.Moving}

	if motion.Moving {
		start := time.Now()
		det, err := a.config.Detector.Infer(ctx, frame)
		a.config.Metrics.ObserveInference(time.Since(start), err)
		if err != nil {
			return res, fmt.Errorf("detector: %w", err)
		}
		res.Detection = &det

		obs.Qualifying = det.Qualifying
		if best, ok := det.Best(); ok {
			obs.Label = best.Label
			obs.Confidence = best.Confidence
		}
	}

	res.Fired = a.config.Alerts.Observe(ctx, obs)
	return res, nil
}

// Run seeds the motion gate from the first frame and processes the rest
// of the stream. It returns nil when the stream ends, ctx is canceled or
// the user presses q or Esc in a window.
func (a *App) Run(ctx context.Context) error {
	first, err := a.config.Source.ReadFrame()
	if err != nil {
		if errors.Is(err, capture.ErrEndOfStream) {
			return ErrNoFrames
		}
		return fmt.Errorf("read seed frame: %w", err)
	}
	err = a.config.Motion.Initialize(first)
	first.Close()
	if err != nil {
		return fmt.Errorf("seed background: %w", err)
	}
	slog.Info("background seeded")

	for index := 1; ; index++ {
		if ctx.Err() != nil {
			return nil
		}

		frame, err := a.config.Source.ReadFrame()
		if err != nil {
			if !errors.Is(err, capture.ErrEndOfStream) {
				slog.Warn("frame read failed, stopping", "frame", index, "err", err)
			}
			slog.Info("stream ended", "frames", index-1)
			return nil
		}

		a.step(ctx, frame, index)
		frame.Close()

		if a.config.Display != nil {
			if key := a.config.Display.WaitKey(render.DefaultWaitMs); key == 'q' || key == 27 {
				return nil
			}
		}
	}
}

// step processes, annotates and emits one frame.
func (a *App) step(ctx context.Context, frame *gocv.Mat, index int) {
	a.config.Metrics.ObserveFrame()
	a.config.Alerts.Poll()

	if a.config.Debug && a.config.Display != nil {
		a.config.Display.Show(render.DebugWindow, frame)
	}

	if a.IsEnabled() {
		res, err := a.Process(ctx, frame, index)
		switch {
		case err == nil:
			if res.Fired {
				slog.Info("alert raised", "frame", index)
			}
		case errors.Is(err, context.Canceled):
		default:
			slog.Warn("frame skipped", "frame", index, "err", err)
		}

		if res.Detection != nil {
			render.DrawDetections(frame, res.Detection.Detections)
			render.DrawInferenceTime(frame, res.Detection.Latency)
		}
	}

	overlay := a.config.Alerts.ShowOverlay()
	if overlay {
		render.DrawBanner(frame, a.config.Banner)
	}

	if a.config.Writer != nil {
		if err := a.config.Writer.Write(frame); err != nil {
			slog.Warn("failed to write output frame", "frame", index, "err", err)
		}
	}
	if a.config.Frames != nil {
		if err := a.config.Frames.PublishFrame(frame); err != nil {
			slog.Debug("failed to publish frame", "frame", index, "err", err)
		}
	}
	if overlay && a.config.Display != nil {
		a.config.Display.Show(render.AlertWindow, frame)
	}
}

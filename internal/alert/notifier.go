package alert

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// Fanout delivers an alert to every notifier. One failing sink does not stop
// the others; the joined error is returned.
type Fanout []Notifier

func (f Fanout) Notify(ctx context.Context, a Alert) error {
	var errs []error
	for i, n := range f {
		if err := n.Notify(ctx, a); err != nil {
			slog.Warn("notifier failed", "notifier", fmt.Sprintf("%T", n), "index", i, "alert", a.ID, "err", err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// LogNotifier writes alerts to the structured log.
type LogNotifier struct {
	Logger *slog.Logger
}

func (n LogNotifier) Notify(_ context.Context, a Alert) error {
	logger := n.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Warn(a.Title,
		"message", a.Message,
		"alert", a.ID,
		"frame", a.Frame,
		"label", a.Label,
		"confidence", a.Confidence,
	)
	return nil
}

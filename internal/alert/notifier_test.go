package alert

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFanout(t *testing.T) {
	good := &recordingNotifier{}
	bad := &recordingNotifier{err: errors.New("broker unreachable")}
	after := &recordingNotifier{}

	err := Fanout{good, bad, after}.Notify(context.Background(), Alert{ID: "a1"})

	assert.ErrorContains(t, err, "broker unreachable")
	assert.Equal(t, 1, good.count())
	assert.Equal(t, 1, bad.count())
	assert.Equal(t, 1, after.count(), "a failing sink must not stop later sinks")
}

func TestFanout_Empty(t *testing.T) {
	assert.NoError(t, Fanout{}.Notify(context.Background(), Alert{}))
}

func TestNotifierFunc(t *testing.T) {
	var got Alert
	n := NotifierFunc(func(_ context.Context, a Alert) error {
		got = a
		return nil
	})

	assert.NoError(t, n.Notify(context.Background(), Alert{ID: "x"}))
	assert.Equal(t, "x", got.ID)
}

func TestLogNotifier(t *testing.T) {
	var buf bytes.Buffer
	n := LogNotifier{Logger: slog.New(slog.NewTextHandler(&buf, nil))}

	err := n.Notify(context.Background(), Alert{ID: "a1", Title: "ALARM", Message: "KITCHEN UNDER ATTACK"})

	assert.NoError(t, err)
	assert.Contains(t, buf.String(), "ALARM")
	assert.Contains(t, buf.String(), "KITCHEN UNDER ATTACK")
	assert.Contains(t, buf.String(), "a1")
}

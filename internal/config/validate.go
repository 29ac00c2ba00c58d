package config

import (
	"fmt"
	"strings"

	"github.com/ayusman/kitchenwatch/internal/logging"
)

// Validate checks the configuration and reports every problem at once.
func (c *Config) Validate() error {
	var problems []string
	add := func(format string, args ...any) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	if c.Model == "" {
		add("model is required")
	}
	if c.Input == "" {
		add("input is required")
	}
	if c.Device == "" {
		add("device is required")
	}
	if c.ProbThreshold <= 0 || c.ProbThreshold >= 1 {
		add("prob_threshold must be in (0, 1), got %v", c.ProbThreshold)
	}
	if c.CPUExtension != "" && !strings.EqualFold(c.Device, "CPU") {
		add("cpu_extension is only supported with the CPU device, got %s", c.Device)
	}
	for _, id := range c.TargetClasses {
		if id < 0 {
			add("target class ids must be >= 0, got %d", id)
		}
	}
	if c.InferTimeout < 0 {
		add("infer_timeout must be >= 0")
	}

	m := c.Motion
	if m.MovementThreshold < 1 || m.MovementThreshold > 99 {
		add("motion.movement_threshold must be in [1, 99], got %v", m.MovementThreshold)
	}
	if m.DiffThreshold < 0 || m.DiffThreshold > 255 {
		add("motion.diff_threshold must be in [0, 255], got %v", m.DiffThreshold)
	}
	if m.BlurSize < 0 || (m.BlurSize > 0 && m.BlurSize%2 == 0) {
		add("motion.blur_size must be 0 or odd, got %d", m.BlurSize)
	}
	if m.RefreshFrames < 1 {
		add("motion.refresh_frames must be >= 1, got %d", m.RefreshFrames)
	}
	if m.OnResize != "reseed" && m.OnResize != "fail" {
		add("motion.on_resize must be reseed or fail, got %q", m.OnResize)
	}

	if c.Alert.RearmAfter < 0 {
		add("alert.rearm_after must be >= 0, got %d", c.Alert.RearmAfter)
	}
	if c.HTTP.StreamFPS < 0 {
		add("http.stream_fps must be >= 0")
	}
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		add("mqtt.qos must be 0, 1 or 2, got %d", c.MQTT.QoS)
	}
	if c.Hooks.Timeout <= 0 {
		add("hooks.timeout must be > 0")
	}

	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		add("log.level: %v", err)
	}
	if c.Log.Format != logging.FormatText && c.Log.Format != logging.FormatJSON {
		add("log.format must be text or json, got %q", c.Log.Format)
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(problems, "; "))
	}
	return nil
}

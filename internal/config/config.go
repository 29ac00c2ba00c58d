// Package config loads kitchenwatch settings from defaults, an optional
// YAML file and command-line flags, in that order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ayusman/kitchenwatch/internal/alert"
	"github.com/ayusman/kitchenwatch/internal/capture"
	"github.com/ayusman/kitchenwatch/internal/detector"
	"github.com/ayusman/kitchenwatch/internal/render"
)

// ErrInvalidConfig wraps every validation failure.
var ErrInvalidConfig = errors.New("invalid configuration")

// DefaultProbThreshold is used when no threshold is configured. It is
// stricter than the detector library default of 0.5 that the flag documents.
const DefaultProbThreshold = 0.8

// Config represents the complete kitchenwatch configuration.
type Config struct {
	Model         string  `yaml:"model"`
	Input         string  `yaml:"input"`
	Output        string  `yaml:"output"`
	Device        string  `yaml:"device"`
	CPUExtension  string  `yaml:"cpu_extension"`
	ProbThreshold float64 `yaml:"prob_threshold"`
	Labels        string  `yaml:"labels"`
	TargetClasses []int   `yaml:"target_classes"`
	// ORTLib is the onnxruntime shared library for .onnx models.
	ORTLib       string        `yaml:"ort_lib"`
	InferTimeout time.Duration `yaml:"infer_timeout"`

	Debug  bool `yaml:"debug"`
	NoShow bool `yaml:"no_show"`

	Motion MotionConfig `yaml:"motion"`
	Alert  AlertConfig  `yaml:"alert"`
	HTTP   HTTPConfig   `yaml:"http"`
	MQTT   MQTTConfig   `yaml:"mqtt"`
	Hooks  HooksConfig  `yaml:"hooks"`
	Log    LogConfig    `yaml:"log"`

	EventDB string `yaml:"event_db"`
	Tray    bool   `yaml:"tray"`
}

// MotionConfig contains motion gate settings.
type MotionConfig struct {
	// MovementThreshold is a percentage of changed pixels (typically 10-90).
	MovementThreshold float64 `yaml:"movement_threshold"`
	DiffThreshold     float64 `yaml:"diff_threshold"`
	BlurSize          int     `yaml:"blur_size"`
	RefreshFrames     int     `yaml:"refresh_frames"`
	RawSeed           bool    `yaml:"raw_seed"`
	// OnResize is "reseed" or "fail".
	OnResize string `yaml:"on_resize"`
}

// AlertConfig contains notification text and re-arm settings.
type AlertConfig struct {
	RearmAfter int    `yaml:"rearm_after"`
	Title      string `yaml:"title"`
	Message    string `yaml:"message"`
	Icon       string `yaml:"icon"`
	Action     string `yaml:"action"`
	Banner     string `yaml:"banner"`
}

// HTTPConfig contains the status server settings. An empty Addr disables it.
type HTTPConfig struct {
	Addr      string `yaml:"addr"`
	StaticDir string `yaml:"static_dir"`
	StreamFPS int    `yaml:"stream_fps"`
}

// MQTTConfig contains MQTT broker settings. An empty Broker disables it.
type MQTTConfig struct {
	Broker   string `yaml:"broker"`
	Topic    string `yaml:"topic"`
	ClientID string `yaml:"client_id"`
	QoS      int    `yaml:"qos"`
}

// HooksConfig locates external alert hooks. An empty Dir disables them.
type HooksConfig struct {
	Dir     string        `yaml:"dir"`
	Timeout time.Duration `yaml:"timeout"`
}

// LogConfig selects the log level and handler format.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the configuration used when nothing overrides it.
func Default() *Config {
	p := alert.DefaultPolicy()
	return &Config{
		Device:        "CPU",
		ProbThreshold: DefaultProbThreshold,
		Motion: MotionConfig{
			MovementThreshold: capture.DefaultMovementThreshold,
			DiffThreshold:     capture.DefaultDiffThreshold,
			BlurSize:          capture.DefaultBlurSize,
			RefreshFrames:     capture.DefaultRefreshInterval,
			OnResize:          "reseed",
		},
		Alert: AlertConfig{
			Title:   p.Title,
			Message: p.Message,
			Icon:    p.Icon,
			Action:  p.Action,
			Banner:  render.DefaultBanner,
		},
		HTTP:  HTTPConfig{StreamFPS: 15},
		MQTT:  MQTTConfig{Topic: "kitchenwatch/alerts", ClientID: "kitchenwatch", QoS: 1},
		Hooks: HooksConfig{Timeout: 10 * time.Second},
		Log:   LogConfig{Level: "info", Format: "text"},
	}
}

// LoadFile reads a YAML file over cfg. Keys absent from the file keep
// their current values.
func LoadFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config: %w", err)
	}
	return nil
}

// Load reads path over the defaults and validates the result.
func Load(path string) (*Config, error) {
	cfg := Default()
	if err := LoadFile(cfg, path); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// DetectorConfig converts the settings for detector.NewObjectDetector.
func (c *Config) DetectorConfig(labels []string) detector.Config {
	return detector.Config{
		ModelPath:      c.Model,
		Device:         c.Device,
		CPUExtension:   c.CPUExtension,
		ProbThreshold:  float32(c.ProbThreshold),
		TargetClasses:  c.TargetClasses,
		Labels:         labels,
		InferTimeout:   c.InferTimeout,
		RuntimeLibrary: c.ORTLib,
	}
}

// MotionGateConfig converts the settings for capture.NewMotionDetector.
func (c *Config) MotionGateConfig() capture.MotionConfig {
	mc := capture.MotionConfig{
		MovementThreshold: c.Motion.MovementThreshold,
		DiffThreshold:     float32(c.Motion.DiffThreshold),
		BlurSize:          c.Motion.BlurSize,
		RefreshInterval:   c.Motion.RefreshFrames,
		RawSeed:           c.Motion.RawSeed,
	}
	if c.Motion.OnResize == "fail" {
		mc.OnResize = capture.ResizeFail
	}
	return mc
}

// AlertPolicy converts the settings for alert.NewMachine.
func (c *Config) AlertPolicy() alert.Policy {
	return alert.Policy{
		RearmAfter: c.Alert.RearmAfter,
		Title:      c.Alert.Title,
		Message:    c.Alert.Message,
		Icon:       c.Alert.Icon,
		Action:     c.Alert.Action,
	}
}

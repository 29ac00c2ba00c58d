package config

import (
	"flag"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/ayusman/kitchenwatch/internal/detector"
)

// intList is a flag.Value accepting a comma list, repeatable.
type intList []int

func (l *intList) String() string {
	parts := make([]string, len(*l))
	for i, v := range *l {
		parts[i] = strconv.Itoa(v)
	}
	return strings.Join(parts, ",")
}

func (l *intList) Set(s string) error {
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		v, err := strconv.Atoi(part)
		if err != nil {
			return fmt.Errorf("invalid class id %q", part)
		}
		*l = append(*l, v)
	}
	return nil
}

// bind registers every flag on fs, writing into cfg. prob receives the
// probability threshold separately because its documented default differs
// from the one used when it is absent.
func bind(fs *flag.FlagSet, cfg *Config, prob *float64, configPath *string) {
	fs.StringVar(configPath, "config", "", "YAML configuration file")

	fs.StringVar(&cfg.Model, "model", cfg.Model, "Path to the model descriptor (.xml OpenVINO IR with sibling .bin, or .onnx)")
	fs.StringVar(&cfg.Input, "input", cfg.Input, "Video file path or camera index (0 for the default camera)")
	fs.StringVar(&cfg.Output, "output", cfg.Output, "Optional annotated output video path")
	fs.StringVar(&cfg.Device, "device", cfg.Device, "Inference device: CPU, GPU, GPU_FP16, MYRIAD, HDDL or FPGA")
	fs.StringVar(&cfg.CPUExtension, "cpu_extension", cfg.CPUExtension, "Custom kernel library for the CPU device")
	fs.Float64Var(prob, "prob_threshold", float64(detector.DefaultConfig().ProbThreshold), "Probability threshold for detections")
	fs.StringVar(&cfg.Labels, "labels", cfg.Labels, "Labels file, one class name per line")
	fs.Var((*intList)(&cfg.TargetClasses), "target_class", "Class id that raises the alert (repeatable or comma separated; default any)")
	fs.StringVar(&cfg.ORTLib, "ort_lib", cfg.ORTLib, "onnxruntime shared library for .onnx models")
	fs.DurationVar(&cfg.InferTimeout, "infer_timeout", cfg.InferTimeout, "Maximum wait for one inference (0 waits indefinitely)")
	fs.BoolVar(&cfg.Debug, "debug", cfg.Debug, "Show every frame in the debug window")
	fs.BoolVar(&cfg.NoShow, "no_show", cfg.NoShow, "Do not open any window")

	fs.Float64Var(&cfg.Motion.MovementThreshold, "movement_threshold", cfg.Motion.MovementThreshold, "Percentage of changed pixels that counts as motion")
	fs.IntVar(&cfg.Motion.RefreshFrames, "refresh_frames", cfg.Motion.RefreshFrames, "Frames between background refreshes")
	fs.IntVar(&cfg.Alert.RearmAfter, "rearm_after", cfg.Alert.RearmAfter, "Quiet frames before a new alert may fire (0 never re-arms)")

	fs.StringVar(&cfg.HTTP.Addr, "http_addr", cfg.HTTP.Addr, "Status server address, e.g. :8080 (empty disables)")
	fs.StringVar(&cfg.EventDB, "event_db", cfg.EventDB, "SQLite file for the alert episode log (empty disables)")
	fs.StringVar(&cfg.MQTT.Broker, "mqtt_broker", cfg.MQTT.Broker, "MQTT broker host:port (empty disables)")
	fs.StringVar(&cfg.MQTT.Topic, "mqtt_topic", cfg.MQTT.Topic, "MQTT base topic; acknowledgments are read from <topic>/ack")
	fs.StringVar(&cfg.Hooks.Dir, "hooks_dir", cfg.Hooks.Dir, "Directory of alert hooks (empty disables)")
	fs.BoolVar(&cfg.Tray, "tray", cfg.Tray, "Show the system tray icon")

	fs.StringVar(&cfg.Log.Level, "log_level", cfg.Log.Level, "Log level: debug, info, warn or error")
	fs.StringVar(&cfg.Log.Format, "log_format", cfg.Log.Format, "Log format: text or json")
}

// Parse builds the configuration from defaults, the file named by
// --config and the explicitly given flags, then validates it.
func Parse(name string, args []string, output io.Writer) (*Config, error) {
	// First pass only finds --config.
	var configPath string
	var prob float64
	pre := flag.NewFlagSet(name, flag.ContinueOnError)
	pre.SetOutput(output)
	bind(pre, Default(), &prob, &configPath)
	if err := pre.Parse(args); err != nil {
		return nil, err
	}

	cfg := Default()
	if configPath != "" {
		if err := LoadFile(cfg, configPath); err != nil {
			return nil, err
		}
	}

	// Second pass binds to the loaded values so only given flags override them.
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fileTargets := cfg.TargetClasses
	cfg.TargetClasses = nil
	bind(fs, cfg, &prob, &configPath)
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	setFlags := map[string]bool{}
	fs.Visit(func(f *flag.Flag) { setFlags[f.Name] = true })

	if setFlags["prob_threshold"] {
		cfg.ProbThreshold = prob
	}
	if !setFlags["target_class"] {
		cfg.TargetClasses = fileTargets
	}
	if fs.NArg() > 0 {
		return nil, fmt.Errorf("%w: unexpected arguments %v", ErrInvalidConfig, fs.Args())
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

package detector

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
)

var (
	ortOnce sync.Once
	ortErr  error
)

// initORT loads the onnxruntime shared library once per process.
func initORT(lib string) error {
	ortOnce.Do(func() {
		if lib != "" {
			ort.SetSharedLibraryPath(lib)
		}
		ortErr = ort.InitializeEnvironment()
	})
	return ortErr
}

// ortRuntime runs .onnx models through ONNX Runtime. Non-CPU devices go
// through the OpenVINO execution provider.
type ortRuntime struct {
	session *ort.DynamicAdvancedSession
	inputs  []TensorInfo
	outputs []TensorInfo
}

func openORTRuntime(cfg Config) (Runtime, error) {
	if err := initORT(findRuntimeLibrary(cfg.RuntimeLibrary)); err != nil {
		return nil, fmt.Errorf("initialize onnxruntime: %w", err)
	}

	ins, outs, err := ort.GetInputOutputInfo(cfg.ModelPath)
	if err != nil {
		return nil, fmt.Errorf("read model %q: %w", cfg.ModelPath, err)
	}

	options, err := ort.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("session options: %w", err)
	}
	defer options.Destroy()

	if err := options.SetGraphOptimizationLevel(ort.GraphOptimizationLevelEnableExtended); err != nil {
		return nil, fmt.Errorf("set optimization level: %w", err)
	}

	if !strings.EqualFold(cfg.Device, "CPU") {
		err := options.AppendExecutionProviderOpenVINO(map[string]string{
			"device_type": strings.ToUpper(cfg.Device),
		})
		if err != nil {
			return nil, fmt.Errorf("enable OpenVINO for %s: %w", cfg.Device, err)
		}
	}

	if cfg.CPUExtension != "" {
		slog.Warn("cpu extension is only loaded for OpenVINO IR models, ignoring",
			"extension", cfg.CPUExtension, "model", cfg.ModelPath)
	}

	r := &ortRuntime{
		inputs:  ortInfo(ins),
		outputs: ortInfo(outs),
	}

	r.session, err = ort.NewDynamicAdvancedSession(cfg.ModelPath, infoNames(r.inputs), infoNames(r.outputs), options)
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}

	return r, nil
}

func (r *ortRuntime) Inputs() []TensorInfo  { return r.inputs }
func (r *ortRuntime) Outputs() []TensorInfo { return r.outputs }

// Run binds inputs by name in session order. Outputs are allocated by
// onnxruntime and copied out before being destroyed.
func (r *ortRuntime) Run(inputs []Tensor) ([]Tensor, error) {
	byName := make(map[string]Tensor, len(inputs))
	for _, in := range inputs {
		byName[in.Name] = in
	}

	values := make([]ort.Value, len(r.inputs))
	for i, info := range r.inputs {
		in, ok := byName[info.Name]
		if !ok {
			return nil, fmt.Errorf("missing input %q", info.Name)
		}
		t, err := ort.NewTensor(ort.NewShape(in.Shape...), in.Data)
		if err != nil {
			return nil, fmt.Errorf("input %q: %w", info.Name, err)
		}
		defer t.Destroy()
		values[i] = t
	}

	outputs := make([]ort.Value, len(r.outputs))
	if err := r.session.Run(values, outputs); err != nil {
		return nil, err
	}

	result := make([]Tensor, len(outputs))
	for i, v := range outputs {
		if v == nil {
			continue
		}
		defer v.Destroy()

		t, ok := v.(*ort.Tensor[float32])
		if !ok {
			return nil, fmt.Errorf("output %q is %T, want float32 tensor", r.outputs[i].Name, v)
		}
		data := make([]float32, len(t.GetData()))
		copy(data, t.GetData())
		result[i] = Tensor{
			Name:  r.outputs[i].Name,
			Shape: append([]int64(nil), t.GetShape()...),
			Data:  data,
		}
	}

	return result, nil
}

func (r *ortRuntime) Close() error {
	if r.session == nil {
		return nil
	}
	err := r.session.Destroy()
	r.session = nil
	return err
}

func ortInfo(infos []ort.InputOutputInfo) []TensorInfo {
	out := make([]TensorInfo, len(infos))
	for i, info := range infos {
		out[i] = TensorInfo{Name: info.Name, Shape: append([]int64(nil), info.Dimensions...)}
	}
	return out
}

func infoNames(infos []TensorInfo) []string {
	names := make([]string, len(infos))
	for i, info := range infos {
		names[i] = info.Name
	}
	return names
}

// findRuntimeLibrary returns the onnxruntime library to load. An explicit
// path wins, then $ONNXRUNTIME_LIB, then a third_party/ directory next to the
// working directory or executable. An empty result lets onnxruntime_go use
// its platform default name.
func findRuntimeLibrary(explicit string) string {
	if explicit != "" {
		return explicit
	}
	if env := os.Getenv("ONNXRUNTIME_LIB"); env != "" {
		return env
	}

	name := "onnxruntime.so"
	switch runtime.GOOS {
	case "darwin":
		name = "libonnxruntime.dylib"
	case "windows":
		name = "onnxruntime.dll"
	case "linux":
		if runtime.GOARCH == "arm64" {
			name = "onnxruntime_arm64.so"
		}
	}

	var execDir string
	if execPath, err := os.Executable(); err == nil {
		execDir = filepath.Dir(execPath)
	}

	candidates := []string{
		filepath.Join("third_party", name),
		filepath.Join("..", "third_party", name),
		filepath.Join(execDir, "third_party", name),
	}
	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			if abs, err := filepath.Abs(path); err == nil {
				return abs
			}
			return path
		}
	}
	return ""
}

package detector

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"unsafe"

	"gocv.io/x/gocv"
)

// dnnRuntime runs OpenVINO IR models through OpenCV's DNN module with the
// OpenVINO (Inference Engine) backend.
type dnnRuntime struct {
	net     gocv.Net
	inputs  []TensorInfo
	outputs []TensorInfo
}

// dnnTargets maps device names to OpenCV DNN targets.
var dnnTargets = map[string]gocv.NetTargetType{
	"CPU":      gocv.NetTargetCPU,
	"GPU":      gocv.NetTargetFP32,
	"GPU_FP16": gocv.NetTargetFP16,
	"MYRIAD":   gocv.NetTargetVPU,
	"FPGA":     gocv.NetTargetFPGA,
}

func openDNNRuntime(cfg Config) (Runtime, error) {
	device := strings.ToUpper(cfg.Device)
	target, ok := dnnTargets[device]
	if !ok {
		return nil, fmt.Errorf("unsupported device %q", cfg.Device)
	}

	weights := strings.TrimSuffix(cfg.ModelPath, filepath.Ext(cfg.ModelPath)) + ".bin"
	if _, err := os.Stat(weights); err != nil {
		return nil, fmt.Errorf("model weights: %w", err)
	}

	inputs, outputs, err := readIR(cfg.ModelPath)
	if err != nil {
		return nil, err
	}

	if cfg.CPUExtension != "" {
		if device == "CPU" {
			// OpenCV hands libraries found in these directories to the CPU plugin.
			os.Setenv("OPENCV_DNN_IE_EXTRA_PLUGIN_PATH", filepath.Dir(cfg.CPUExtension))
		} else {
			slog.Warn("cpu extension ignored for non-CPU device", "device", cfg.Device)
		}
	}

	net := gocv.ReadNet(weights, cfg.ModelPath)
	if net.Empty() {
		return nil, fmt.Errorf("load model %q", cfg.ModelPath)
	}
	net.SetPreferableBackend(gocv.NetBackendOpenVINO)
	net.SetPreferableTarget(target)

	slog.Debug("loaded IR model", "model", cfg.ModelPath, "device", device,
		"inputs", len(inputs), "outputs", len(outputs))

	return &dnnRuntime{net: net, inputs: inputs, outputs: outputs}, nil
}

func (r *dnnRuntime) Inputs() []TensorInfo  { return r.inputs }
func (r *dnnRuntime) Outputs() []TensorInfo { return r.outputs }

func (r *dnnRuntime) Run(inputs []Tensor) ([]Tensor, error) {
	mats := make([]gocv.Mat, 0, len(inputs))
	defer func() {
		for _, m := range mats {
			m.Close()
		}
	}()

	for _, in := range inputs {
		sizes := make([]int, len(in.Shape))
		for i, d := range in.Shape {
			sizes[i] = int(d)
		}
		m, err := gocv.NewMatWithSizesFromBytes(sizes, gocv.MatTypeCV32F, float32Bytes(in.Data))
		if err != nil {
			return nil, fmt.Errorf("input %q: %w", in.Name, err)
		}
		mats = append(mats, m)
		r.net.SetInput(m, in.Name)
	}

	out := r.net.Forward("")
	defer out.Close()
	runtime.KeepAlive(inputs)

	if out.Empty() {
		return nil, errors.New("forward produced no output")
	}

	data, err := out.DataPtrFloat32()
	if err != nil {
		return nil, fmt.Errorf("read output: %w", err)
	}

	shape := make([]int64, 0, 4)
	for _, d := range out.Size() {
		shape = append(shape, int64(d))
	}

	name := ""
	if len(r.outputs) > 0 {
		name = r.outputs[0].Name
	}

	return []Tensor{{
		Name:  name,
		Shape: shape,
		Data:  append([]float32(nil), data...),
	}}, nil
}

func (r *dnnRuntime) Close() error {
	return r.net.Close()
}

// float32Bytes views data as raw bytes without copying.
func float32Bytes(data []float32) []byte {
	if len(data) == 0 {
		return nil
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(unsafe.SliceData(data))), len(data)*4)
}

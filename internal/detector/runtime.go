package detector

import (
	"fmt"
	"path/filepath"
	"strings"
)

// TensorInfo describes a model input or output. Unknown dimensions are negative.
type TensorInfo struct {
	Name  string
	Shape []int64
}

// Tensor is a named float32 tensor in row-major order.
type Tensor struct {
	Name  string
	Shape []int64
	Data  []float32
}

// Runtime executes a loaded model. Run is never called concurrently by
// ObjectDetector.
type Runtime interface {
	Inputs() []TensorInfo
	Outputs() []TensorInfo
	Run(inputs []Tensor) ([]Tensor, error)
	Close() error
}

// OpenRuntime loads cfg.ModelPath with the runtime matching its extension.
func OpenRuntime(cfg Config) (Runtime, error) {
	switch strings.ToLower(filepath.Ext(cfg.ModelPath)) {
	case ".xml":
		return openDNNRuntime(cfg)
	case ".onnx":
		return openORTRuntime(cfg)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownRuntime, cfg.ModelPath)
	}
}

// topology is the resolved input/output layout of a model.
type topology struct {
	image  TensorInfo
	info   []TensorInfo
	output TensorInfo
}

// imageSize returns the image input's height and width.
func (t topology) imageSize() (h, w int) {
	return int(t.image.Shape[2]), int(t.image.Shape[3])
}

// resolveTopology accepts exactly one output, exactly one 4-D NCHW image
// input and any number of 2-D image info inputs.
func resolveTopology(inputs, outputs []TensorInfo) (topology, error) {
	var topo topology

	if len(outputs) != 1 {
		return topo, fmt.Errorf("%w: model has %d outputs, want 1", ErrUnsupportedTopology, len(outputs))
	}
	topo.output = outputs[0]

	found := false
	for _, in := range inputs {
		switch len(in.Shape) {
		case 4:
			if found {
				return topo, fmt.Errorf("%w: more than one image input (%q)", ErrUnsupportedTopology, in.Name)
			}
			topo.image = in
			found = true
		case 2:
			topo.info = append(topo.info, in)
		default:
			return topo, fmt.Errorf("%w: input %q has %d dimensions", ErrUnsupportedTopology, in.Name, len(in.Shape))
		}
	}
	if !found {
		return topo, fmt.Errorf("%w: no 4-D image input", ErrUnsupportedTopology)
	}

	shape := topo.image.Shape
	if shape[1] != 1 && shape[1] != 3 {
		return topo, fmt.Errorf("%w: image input %q has %d channels", ErrUnsupportedTopology, topo.image.Name, shape[1])
	}
	if shape[2] <= 0 || shape[3] <= 0 {
		return topo, fmt.Errorf("%w: image input %q has dynamic spatial size %v", ErrUnsupportedTopology, topo.image.Name, shape)
	}

	return topo, nil
}

// infoTensor fills a 2-D image info input with [H, W, 1] on every row.
func infoTensor(info TensorInfo, h, w int) Tensor {
	rows := max(info.Shape[0], 1)
	cols := info.Shape[1]
	if cols <= 0 {
		cols = 3
	}

	data := make([]float32, rows*cols)
	for r := int64(0); r < rows; r++ {
		row := data[r*cols : (r+1)*cols]
		values := []float32{float32(h), float32(w), 1}
		for i := range row {
			if i < len(values) {
				row[i] = values[i]
			} else {
				row[i] = 1
			}
		}
	}

	return Tensor{Name: info.Name, Shape: []int64{rows, cols}, Data: data}
}

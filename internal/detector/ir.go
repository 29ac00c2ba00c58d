package detector

import (
	"encoding/xml"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// irNet is the subset of an OpenVINO IR descriptor needed to learn the
// model's inputs and outputs before loading it.
type irNet struct {
	Layers []irLayer `xml:"layers>layer"`
	Edges  []irEdge  `xml:"edges>edge"`
}

type irLayer struct {
	ID   string `xml:"id,attr"`
	Name string `xml:"name,attr"`
	Type string `xml:"type,attr"`
	Data struct {
		Shape string `xml:"shape,attr"`
	} `xml:"data"`
	Outputs []irPort `xml:"output>port"`
}

type irPort struct {
	Dims []string `xml:"dim"`
}

type irEdge struct {
	FromLayer string `xml:"from-layer,attr"`
	ToLayer   string `xml:"to-layer,attr"`
}

// readIR parses the descriptor at path and returns its inputs and outputs.
// Inputs are Parameter (IR v10+) or Input (IR v7) layers. Outputs are the
// producers of Result layers, or, for IR v7, layers nothing consumes.
func readIR(path string) (inputs, outputs []TensorInfo, err error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("read IR: %w", err)
	}

	var net irNet
	if err := xml.Unmarshal(raw, &net); err != nil {
		return nil, nil, fmt.Errorf("parse IR %q: %w", path, err)
	}

	byID := make(map[string]irLayer, len(net.Layers))
	for _, l := range net.Layers {
		byID[l.ID] = l
	}

	consumed := make(map[string]bool)
	producer := make(map[string]string)
	for _, e := range net.Edges {
		consumed[e.FromLayer] = true
		producer[e.ToLayer] = e.FromLayer
	}

	hasResult := false
	for _, l := range net.Layers {
		switch l.Type {
		case "Parameter", "Input":
			inputs = append(inputs, TensorInfo{Name: l.Name, Shape: l.shape()})
		case "Result":
			hasResult = true
			src, ok := byID[producer[l.ID]]
			if !ok {
				src = l
			}
			outputs = append(outputs, TensorInfo{Name: src.Name, Shape: src.shape()})
		}
	}

	if !hasResult {
		for _, l := range net.Layers {
			if l.Type != "Parameter" && l.Type != "Input" && !consumed[l.ID] {
				outputs = append(outputs, TensorInfo{Name: l.Name, Shape: l.shape()})
			}
		}
	}

	return inputs, outputs, nil
}

// shape reads the first output port's dims, falling back to the data
// shape attribute. Dynamic dims ("?" or "-1") become -1.
func (l irLayer) shape() []int64 {
	var dims []string
	if len(l.Outputs) > 0 && len(l.Outputs[0].Dims) > 0 {
		dims = l.Outputs[0].Dims
	} else if l.Data.Shape != "" {
		dims = strings.Split(l.Data.Shape, ",")
	}

	shape := make([]int64, len(dims))
	for i, d := range dims {
		v, err := strconv.ParseInt(strings.TrimSpace(d), 10, 64)
		if err != nil {
			v = -1
		}
		shape[i] = v
	}
	return shape
}

package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	LayoutNHWC = "nhwc"
	LayoutNCHW = "nchw"

	ChannelsRGB = "rgb"
	ChannelsBGR = "bgr"
)

// Metadata describes the tensors of an exported classifier and the labels of
// its output vector, in output order.
type Metadata struct {
	InputName    string   `json:"input_name" yaml:"input_name"`
	OutputName   string   `json:"output_name" yaml:"output_name"`
	InputShape   []int64  `json:"input_shape" yaml:"input_shape"`
	OutputShape  []int64  `json:"output_shape" yaml:"output_shape"`
	Classes      []string `json:"classes" yaml:"classes"`
	ImageSize    int      `json:"image_size" yaml:"image_size"`
	Layout       string   `json:"layout" yaml:"layout"`
	ChannelOrder string   `json:"channel_order" yaml:"channel_order"`
}

var ErrInvalidMetadata = errors.New("invalid model metadata")

// LoadMetadata reads a JSON or YAML metadata document, picked by extension,
// and validates it.
func LoadMetadata(path string) (Metadata, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Metadata{}, fmt.Errorf("failed to read metadata: %w", err)
	}

	var md Metadata
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(raw, &md)
	default:
		err = json.Unmarshal(raw, &md)
	}
	if err != nil {
		return Metadata{}, fmt.Errorf("failed to parse metadata: %w", err)
	}

	if err := md.Normalize(); err != nil {
		return Metadata{}, err
	}
	return md, nil
}

// Normalize fills defaults and checks that shapes, layout and labels agree.
// A label set that does not match the output width is rejected, since it
// would silently map probabilities to the wrong names.
func (m *Metadata) Normalize() error {
	if m.InputName == "" {
		m.InputName = "input"
	}
	if m.OutputName == "" {
		m.OutputName = "output"
	}
	m.Layout = strings.ToLower(m.Layout)
	if m.Layout == "" {
		m.Layout = LayoutNHWC
	}
	m.ChannelOrder = strings.ToLower(m.ChannelOrder)
	if m.ChannelOrder == "" {
		m.ChannelOrder = ChannelsRGB
	}

	if m.Layout != LayoutNHWC && m.Layout != LayoutNCHW {
		return fmt.Errorf("%w: unknown layout %q", ErrInvalidMetadata, m.Layout)
	}
	if m.ChannelOrder != ChannelsRGB && m.ChannelOrder != ChannelsBGR {
		return fmt.Errorf("%w: unknown channel order %q", ErrInvalidMetadata, m.ChannelOrder)
	}

	if len(m.InputShape) != 4 {
		return fmt.Errorf("%w: input shape %v is not rank 4", ErrInvalidMetadata, m.InputShape)
	}
	// Exported models often leave the batch axis dynamic.
	if m.InputShape[0] <= 0 {
		m.InputShape[0] = 1
	}
	if len(m.OutputShape) == 2 && m.OutputShape[0] <= 0 {
		m.OutputShape[0] = 1
	}
	if m.InputShape[0] != 1 {
		return fmt.Errorf("%w: batch size must be 1, got %d", ErrInvalidMetadata, m.InputShape[0])
	}
	for _, dim := range m.InputShape {
		if dim <= 0 {
			return fmt.Errorf("%w: input shape %v has a non-positive dimension", ErrInvalidMetadata, m.InputShape)
		}
	}

	height, width, channels := m.dims()
	if channels != 3 {
		return fmt.Errorf("%w: expected 3 channels for layout %s, got %d", ErrInvalidMetadata, m.Layout, channels)
	}
	if m.ImageSize != 0 && (int64(m.ImageSize) != height || int64(m.ImageSize) != width) {
		return fmt.Errorf("%w: image_size %d disagrees with input shape %v", ErrInvalidMetadata, m.ImageSize, m.InputShape)
	}

	if len(m.OutputShape) != 2 || m.OutputShape[0] != 1 || m.OutputShape[1] <= 0 {
		return fmt.Errorf("%w: output shape %v must be [1, classes]", ErrInvalidMetadata, m.OutputShape)
	}
	if int64(len(m.Classes)) != m.OutputShape[1] {
		return fmt.Errorf("%w: %d class labels for %d model outputs", ErrInvalidMetadata, len(m.Classes), m.OutputShape[1])
	}
	return nil
}

// ImageDims returns the height and width the preprocessor must resize to.
func (m Metadata) ImageDims() (height, width int) {
	h, w, _ := m.dims()
	return int(h), int(w)
}

// InputSize is the number of float32 values in one input tensor.
func (m Metadata) InputSize() int {
	size := 1
	for _, dim := range m.InputShape {
		size *= int(dim)
	}
	return size
}

func (m Metadata) dims() (height, width, channels int64) {
	if len(m.InputShape) != 4 {
		return 0, 0, 0
	}
	if m.Layout == LayoutNCHW {
		return m.InputShape[2], m.InputShape[3], m.InputShape[1]
	}
	return m.InputShape[1], m.InputShape[2], m.InputShape[3]
}

package config

import (
	"bytes"
	_ "embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

//go:embed layers.yaml
var defaultLayersYAML []byte

// Layers describes the ensemble: its layers in vote order and the quorum
type Layers struct {
	Quorum int         `yaml:"quorum"`
	Layers []LayerSpec `yaml:"layers"`
}

// LayerSpec is one detector and embedder pair with its own threshold
type LayerSpec struct {
	Name      string        `yaml:"name"`
	Detector  DetectorSpec  `yaml:"detector"`
	Fallback  *DetectorSpec `yaml:"fallback,omitempty"`
	Embedder  EmbedderSpec  `yaml:"embedder"`
	Threshold float64       `yaml:"threshold"`
}

type DetectorSpec struct {
	// Type is deepface, insightface, rekognition or mock
	Type     string  `yaml:"type"`
	Backend  string  `yaml:"backend,omitempty"`
	MinScore float64 `yaml:"min_score,omitempty"`
}

type EmbedderSpec struct {
	// Type is deepface, insightface or mock
	Type  string `yaml:"type"`
	Model string `yaml:"model,omitempty"`
}

// LoadLayers reads the layer file at path, or the built-in ensemble when
// path is empty. A positive quorum overrides the file's.
func LoadLayers(path string, quorum int) (*Layers, error) {
	data := defaultLayersYAML
	if path != "" {
		var err error
		data, err = os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read layers file: %w", err)
		}
	}

	layers, err := ParseLayers(data)
	if err != nil {
		return nil, fmt.Errorf("layers file %q: %w", path, err)
	}
	if quorum > 0 {
		layers.Quorum = quorum
	}
	return layers, nil
}

// ParseLayers decodes a layer file; unknown fields are rejected
func ParseLayers(data []byte) (*Layers, error) {
	var layers Layers
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&layers); err != nil {
		return nil, fmt.Errorf("parse layers: %w", err)
	}
	if len(layers.Layers) == 0 {
		return nil, fmt.Errorf("parse layers: no layers defined")
	}
	if layers.Quorum == 0 {
		layers.Quorum = (len(layers.Layers) / 2) + 1
	}
	return &layers, nil
}

// DefaultLayers returns the built-in ensemble
func DefaultLayers() *Layers {
	layers, err := ParseLayers(defaultLayersYAML)
	if err != nil {
		panic("failed to parse embedded layers.yaml: " + err.Error())
	}
	return layers
}

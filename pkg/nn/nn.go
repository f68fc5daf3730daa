package nn

import (
	"bufio"
	"encoding/json"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Package nn is a Neural Network interface layer.
// The inference engine itself is opaque: an image goes in, and a list of normalized
// boxes, labels and confidences comes out. To load a model, use the engine package.

const DefaultProbabilityThreshold = 0.5
const DefaultNmsIouThreshold = 0.3
const DefaultMaxResults = 3
const DefaultNumThreads = 2

// NN object detection parameters
type DetectionParams struct {
	ProbabilityThreshold float32 // Value between 0 and 1. Lower values will find more objects. Zero value will use the default.
	NmsIouThreshold      float32 // Value between 0 and 1. Lower values will merge more objects together into one. Zero value will use the default.
	MaxResults           int     // Keep only the N most confident objects. Zero value will use the default.
}

// Create a default DetectionParams object
func NewDetectionParams() *DetectionParams {
	return &DetectionParams{
		ProbabilityThreshold: DefaultProbabilityThreshold,
		NmsIouThreshold:      DefaultNmsIouThreshold,
		MaxResults:           DefaultMaxResults,
	}
}

// Return a copy of p, with zero values replaced by defaults
func (p *DetectionParams) WithDefaults() DetectionParams {
	c := DetectionParams{}
	if p != nil {
		c = *p
	}
	if c.ProbabilityThreshold == 0 {
		c.ProbabilityThreshold = DefaultProbabilityThreshold
	}
	if c.NmsIouThreshold == 0 {
		c.NmsIouThreshold = DefaultNmsIouThreshold
	}
	if c.MaxResults == 0 {
		c.MaxResults = DefaultMaxResults
	}
	return c
}

// ModelSetup is everything an engine loader needs in order to produce a ready-to-use engine.
// Changing any of these fields requires the engine to be thrown away and loaded again.
type ModelSetup struct {
	Engine          string // "replay" or "remote"
	ModelPath       string // Replay: labels JSON. Remote: ignored.
	MetadataPath    string // ModelConfig JSON, or Ultralytics metadata.yaml
	URL             string // Remote inference endpoint
	Encoding        string // Remote payload: "jpeg" or "tensor"
	UseAcceleration bool   // true = GPU delegate, false = CPU
	NumThreads      int
	Params          DetectionParams
}

func NewModelSetup() *ModelSetup {
	return &ModelSetup{
		Engine:          "replay",
		Encoding:        "jpeg",
		UseAcceleration: true,
		NumThreads:      DefaultNumThreads,
		Params:          *NewDetectionParams(),
	}
}

// Timing of a single inference run
type EngineStats struct {
	Preprocess time.Duration
	Inference  time.Duration
}

// Engine is given an image, and returns zero or more detected objects.
// Boxes are normalized to [0,1] relative to the image that was passed in.
type Engine interface {
	// Close releases the engine. You MUST call this when finished.
	Close()

	// Detect runs inference on an image that is already in the model's input geometry
	Detect(img *image.NRGBA) ([]RawDetection, *EngineStats, error)

	// Model Config.
	// Callers assume that ModelConfig will remain constant, so don't change it
	// once the engine has been created.
	Config() *ModelConfig
}

// Loader creates an engine. It corresponds to loadModel(config, useAcceleration).
type Loader func(setup *ModelSetup) (Engine, error)

// ModelConfig is saved in a JSON file along with the weights of the NN model
type ModelConfig struct {
	Architecture string   `json:"architecture"` // eg "yolov8"
	Width        int      `json:"width"`        // eg 320
	Height       int      `json:"height"`       // eg 256
	Classes      []string `json:"classes"`      // eg ["hot", "bad_frame", ...]
}

func (c *ModelConfig) Validate() error {
	if c.Width <= 0 || c.Height <= 0 {
		return fmt.Errorf("Invalid model input size %v x %v", c.Width, c.Height)
	}
	if len(c.Classes) == 0 {
		return fmt.Errorf("Model has no classes")
	}
	return nil
}

// Load model config from a JSON file
func LoadModelConfig(filename string) (*ModelConfig, error) {
	b, err := os.ReadFile(filename)
	if err != nil {
		return nil, err
	}
	config := &ModelConfig{}
	err = json.Unmarshal(b, config)
	if err != nil {
		return nil, err
	}
	return config, nil
}

// ultralyticsMetadata is the subset of an Ultralytics export's metadata.yaml that we need
type ultralyticsMetadata struct {
	Task   string         `yaml:"task"`
	ImgSz  []int          `yaml:"imgsz"`
	Names  map[int]string `yaml:"names"`
	Author string         `yaml:"author"`
}

// LoadModelMetadata reads either our own JSON ModelConfig, or the metadata.yaml that
// Ultralytics writes next to an exported model.
func LoadModelMetadata(filename string) (*ModelConfig, error) {
	var config *ModelConfig
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".yaml", ".yml":
		b, err := os.ReadFile(filename)
		if err != nil {
			return nil, err
		}
		meta := ultralyticsMetadata{}
		if err := yaml.Unmarshal(b, &meta); err != nil {
			return nil, fmt.Errorf("Error parsing %v: %w", filename, err)
		}
		config = &ModelConfig{
			Architecture: meta.Task,
			Classes:      make([]string, len(meta.Names)),
		}
		for id, name := range meta.Names {
			if id < 0 || id >= len(meta.Names) {
				return nil, fmt.Errorf("Class ids in %v are not contiguous (found %v)", filename, id)
			}
			config.Classes[id] = name
		}
		// imgsz is [height, width]
		switch len(meta.ImgSz) {
		case 1:
			config.Width, config.Height = meta.ImgSz[0], meta.ImgSz[0]
		case 2:
			config.Width, config.Height = meta.ImgSz[1], meta.ImgSz[0]
		}
	default:
		c, err := LoadModelConfig(filename)
		if err != nil {
			return nil, fmt.Errorf("Error loading %v: %w", filename, err)
		}
		config = c
	}
	if len(config.Classes) == 0 {
		// Fall back to a plain list of names next to the metadata
		labelsFile := filepath.Join(filepath.Dir(filename), ClassFilename)
		if classes, err := LoadClassFile(labelsFile); err == nil {
			config.Classes = classes
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("Error loading %v: %w", labelsFile, err)
		}
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("Error loading %v: %w", filename, err)
	}
	return config, nil
}

// ClassFilename is the class list that LoadModelMetadata looks for when the metadata has no class names
const ClassFilename = "labels.txt"

// Load a text file with class names on each line
func LoadClassFile(filename string) ([]string, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	classes := []string{}
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line != "" {
			classes = append(classes, line)
		}
	}
	return classes, scanner.Err()
}

// Package config is the JSON configuration of a warmcold session.
// Any change to a Config requires the session to be re-initialized.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/cyclopcam/warmcold/pkg/detect"
	"github.com/cyclopcam/warmcold/pkg/engine"
	"github.com/cyclopcam/warmcold/pkg/geometry"
	"github.com/cyclopcam/warmcold/pkg/nn"
)

// Allowed ranges of the user-facing detector settings
const (
	MinThreshold  = 0.1
	MaxThreshold  = 0.8
	MinMaxResults = 1
	MaxMaxResults = 5
	MinThreads    = 1
	MaxThreads    = 4
)

const (
	DelegateGPU = "gpu"
	DelegateCPU = "cpu"
)

const (
	SourceDir       = "dir"       // Watch a directory for new screenshots
	SourceSynthetic = "synthetic" // Generated test frames
)

type Model struct {
	Engine   string `json:"engine"`   // replay | remote
	Path     string `json:"path"`     // Replay: labels JSON
	Metadata string `json:"metadata"` // ModelConfig JSON, or Ultralytics metadata.yaml. May be an http(s) URL.
	URL      string `json:"url"`      // Remote inference endpoint
	Encoding string `json:"encoding"` // Remote payload: jpeg | tensor
}

type Detector struct {
	Threshold  float32 `json:"threshold"`  // Confidence threshold
	IoU        float32 `json:"iou"`        // NMS IoU threshold
	MaxResults int     `json:"maxResults"` // Keep only the N most confident objects
	Threads    int     `json:"threads"`
	Delegate   string  `json:"delegate"` // gpu | cpu
}

type Geometry struct {
	Aspect       geometry.Aspect `json:"aspect"`
	Anchor       string          `json:"anchor"` // topleft | top | center
	OffsetY      int             `json:"offsetY"`
	Rotation     int             `json:"rotation"` // Degrees counter-clockwise as seen on screen. Android's postRotate(-90) is 90 here.
	TargetWidth  int             `json:"targetWidth"`
	TargetHeight int             `json:"targetHeight"`
	DivisorX     float64         `json:"divisorX"`
	DivisorY     float64         `json:"divisorY"`
	Mapping      string          `json:"mapping"` // inverse | reference
}

type Source struct {
	Kind       string `json:"kind"`       // dir | synthetic
	Dir        string `json:"dir"`        // For dir
	Width      int    `json:"width"`      // For synthetic
	Height     int    `json:"height"`     // For synthetic
	IntervalMS int    `json:"intervalMS"` // For synthetic
}

type Overlay struct {
	ShowBoxes    bool `json:"showBoxes"`
	ScreenWidth  int  `json:"screenWidth"`
	ScreenHeight int  `json:"screenHeight"`
}

type Config struct {
	Model      Model    `json:"model"`
	Detector   Detector `json:"detector"`
	Geometry   Geometry `json:"geometry"`
	Source     Source   `json:"source"`
	Overlay    Overlay  `json:"overlay"`
	CacheDir   string   `json:"cacheDir"`   // Downloaded model metadata
	DumpFrames bool     `json:"dumpFrames"` // Write sample raw and model input frames to DumpDir
	DumpDir    string   `json:"dumpDir"`
}

func Default() *Config {
	policy := geometry.DefaultPolicy()
	return &Config{
		Model: Model{
			Engine:   engine.KindReplay,
			Encoding: engine.EncodingJPEG,
		},
		Detector: Detector{
			Threshold:  nn.DefaultProbabilityThreshold,
			IoU:        nn.DefaultNmsIouThreshold,
			MaxResults: nn.DefaultMaxResults,
			Threads:    nn.DefaultNumThreads,
			Delegate:   DelegateGPU,
		},
		Geometry: Geometry{
			Aspect:   policy.Aspect,
			Anchor:   policy.Anchor.String(),
			OffsetY:  policy.OffsetY,
			Rotation: policy.Rotation,
			DivisorX: policy.DivisorX,
			DivisorY: policy.DivisorY,
			Mapping:  "inverse",
		},
		Source: Source{
			Kind:       SourceSynthetic,
			Width:      1080,
			Height:     2400,
			IntervalMS: 100,
		},
		Overlay: Overlay{
			ShowBoxes:    false,
			ScreenWidth:  1080,
			ScreenHeight: 2400,
		},
		CacheDir: os.TempDir(),
		DumpDir:  os.TempDir(),
	}
}

// Validate returns all problems with the config, joined together
func (c *Config) Validate() error {
	errs := []error{}
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	switch c.Model.Engine {
	case engine.KindReplay:
		if c.Model.Path == "" {
			add("model.path is required for the replay engine")
		}
	case engine.KindRemote:
		if c.Model.URL == "" {
			add("model.url is required for the remote engine")
		}
		if c.Model.Encoding != "" && c.Model.Encoding != engine.EncodingJPEG && c.Model.Encoding != engine.EncodingTensor {
			add("model.encoding must be %v or %v", engine.EncodingJPEG, engine.EncodingTensor)
		}
	default:
		add("Unknown model engine '%v'", c.Model.Engine)
	}
	if c.Model.Metadata == "" {
		add("model.metadata is required")
	}

	d := &c.Detector
	if d.Threshold < MinThreshold || d.Threshold > MaxThreshold {
		add("detector.threshold %v is outside [%v, %v]", d.Threshold, MinThreshold, MaxThreshold)
	}
	if d.IoU <= 0 || d.IoU >= 1 {
		add("detector.iou %v must be between 0 and 1", d.IoU)
	}
	if d.MaxResults < MinMaxResults || d.MaxResults > MaxMaxResults {
		add("detector.maxResults %v is outside [%v, %v]", d.MaxResults, MinMaxResults, MaxMaxResults)
	}
	if d.Threads < MinThreads || d.Threads > MaxThreads {
		add("detector.threads %v is outside [%v, %v]", d.Threads, MinThreads, MaxThreads)
	}
	if d.Delegate != DelegateGPU && d.Delegate != DelegateCPU {
		add("detector.delegate must be %v or %v", DelegateGPU, DelegateCPU)
	}

	if _, err := c.Policy(); err != nil {
		errs = append(errs, err)
	}
	if _, err := c.DetectOptions(); err != nil {
		errs = append(errs, err)
	}

	switch c.Source.Kind {
	case SourceDir:
		if c.Source.Dir == "" {
			add("source.dir is required for a directory source")
		}
	case SourceSynthetic:
		if c.Source.Width <= 0 || c.Source.Height <= 0 || c.Source.IntervalMS <= 0 {
			add("source width, height and intervalMS must be positive for a synthetic source")
		}
	default:
		add("Unknown source kind '%v'", c.Source.Kind)
	}

	if c.Overlay.ScreenWidth <= 0 || c.Overlay.ScreenHeight <= 0 {
		add("overlay screen size must be positive")
	}
	return errors.Join(errs...)
}

// Policy returns the geometry policy
func (c *Config) Policy() (geometry.Policy, error) {
	g := &c.Geometry
	anchor, err := geometry.ParseAnchor(g.Anchor)
	if err != nil {
		return geometry.Policy{}, err
	}
	if !g.Aspect.Valid() {
		return geometry.Policy{}, fmt.Errorf("Invalid geometry.aspect %v", g.Aspect)
	}
	if _, err := geometry.ParseRotation(g.Rotation); err != nil {
		return geometry.Policy{}, err
	}
	return geometry.Policy{
		Aspect:       g.Aspect,
		Anchor:       anchor,
		OffsetY:      g.OffsetY,
		Rotation:     g.Rotation,
		TargetWidth:  g.TargetWidth,
		TargetHeight: g.TargetHeight,
		DivisorX:     g.DivisorX,
		DivisorY:     g.DivisorY,
	}, nil
}

// DetectOptions returns the detection adapter options. The aspect is shared with Policy.
func (c *Config) DetectOptions() (detect.Options, error) {
	opts := detect.Options{Aspect: c.Geometry.Aspect}
	switch c.Geometry.Mapping {
	case "inverse", "":
		opts.Mapping = detect.BoxMappingInverse
	case "reference":
		opts.Mapping = detect.BoxMappingReference
	default:
		return opts, fmt.Errorf("Unknown geometry.mapping '%v'", c.Geometry.Mapping)
	}
	return opts, nil
}

func (c *Config) ModelSetup() *nn.ModelSetup {
	setup := nn.NewModelSetup()
	setup.Engine = c.Model.Engine
	setup.ModelPath = c.Model.Path
	setup.MetadataPath = c.Model.Metadata
	setup.URL = c.Model.URL
	if c.Model.Encoding != "" {
		setup.Encoding = c.Model.Encoding
	}
	setup.UseAcceleration = c.Detector.Delegate == DelegateGPU
	setup.NumThreads = c.Detector.Threads
	setup.Params = nn.DetectionParams{
		ProbabilityThreshold: c.Detector.Threshold,
		NmsIouThreshold:      c.Detector.IoU,
		MaxResults:           c.Detector.MaxResults,
	}
	return setup
}

func (c *Config) SourceInterval() time.Duration {
	return time.Duration(c.Source.IntervalMS) * time.Millisecond
}

// Clone returns a deep copy
func (c *Config) Clone() *Config {
	cp := *c
	return &cp
}

// LoadConfig reads a JSON config file. Fields that are missing from the file keep their default values.
func LoadConfig(filename string) (*Config, error) {
	if filename == "" {
		filename = "warmcold.json"
	}
	raw, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("Error loading %v: %w", filename, err)
	}
	cfg := Default()
	if err := json.Unmarshal(raw, cfg); err != nil {
		return nil, fmt.Errorf("Error loading as JSON %v: %w", filename, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("Invalid config %v: %w", filename, err)
	}
	return cfg, nil
}

// Save writes the config as indented JSON
func (c *Config) Save(filename string) error {
	raw, err := json.MarshalIndent(c, "", "\t")
	if err != nil {
		return err
	}
	return os.WriteFile(filename, raw, 0644)
}

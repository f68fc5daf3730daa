// Package detect runs an inference engine on a model input image,
// and maps the results back into display coordinates.
package detect

import (
	"errors"
	"fmt"
	"image"
	"time"

	"github.com/cyclopcam/warmcold/pkg/geometry"
	"github.com/cyclopcam/warmcold/pkg/nn"
	"github.com/cyclopcam/warmcold/server/log"
)

// ErrAspectMismatch means the adapter and the geometry plan disagree about the crop aspect.
// Boxes would be spatially wrong, so this is a programming error, not a per-frame failure.
var ErrAspectMismatch = errors.New("detector aspect does not match crop aspect")

type BoxMapping int

const (
	// Boxes are mapped through the plan's exact inverse, into raw frame coordinates
	BoxMappingInverse BoxMapping = iota
	// Boxes are only de-normalized against ReferenceSize, and not un-rotated or un-cropped
	BoxMappingReference
)

type Options struct {
	Aspect  geometry.Aspect
	Mapping BoxMapping
}

func DefaultOptions() Options {
	return Options{
		Aspect:  geometry.DefaultAspect,
		Mapping: BoxMappingInverse,
	}
}

type Stats struct {
	Preprocess  time.Duration // Engine-side input preparation
	Inference   time.Duration
	Postprocess time.Duration // Threshold, NMS, and coordinate mapping
	Total       time.Duration
}

// Result of one detection run. It is immutable once returned.
type Result struct {
	Detections  []nn.Detection
	ImageWidth  int // Width of the space that Detections are in
	ImageHeight int // Height of the space that Detections are in
	ModelWidth  int
	ModelHeight int
	Stats       Stats
}

// Adapter owns an inference engine.
// It is used by a single goroutine, and is not thread safe.
type Adapter struct {
	log    log.Log
	engine nn.Engine
	params nn.DetectionParams
	opts   Options
}

// NewAdapter loads the engine. Any failure is returned immediately, without retry.
func NewAdapter(logger log.Log, loader nn.Loader, setup *nn.ModelSetup, opts Options) (*Adapter, error) {
	if !opts.Aspect.Valid() {
		return nil, fmt.Errorf("Invalid detector aspect %v", opts.Aspect)
	}
	engine, err := loader(setup)
	if err != nil {
		return nil, fmt.Errorf("Failed to load model: %w", err)
	}
	a := &Adapter{
		log:    logger,
		engine: engine,
		params: setup.Params.WithDefaults(),
		opts:   opts,
	}
	cfg := engine.Config()
	logger.Infof("Detector ready: %v x %v, threshold %.2f, IoU %.2f, max results %v", cfg.Width, cfg.Height, a.params.ProbabilityThreshold, a.params.NmsIouThreshold, a.params.MaxResults)
	return a, nil
}

func (a *Adapter) Close() {
	if a.engine != nil {
		a.engine.Close()
		a.engine = nil
	}
}

func (a *Adapter) ModelConfig() *nn.ModelConfig {
	return a.engine.Config()
}

func (a *Adapter) Params() nn.DetectionParams {
	return a.params
}

// Detect runs inference on img, which must have been produced by plan.Apply.
func (a *Adapter) Detect(img *image.NRGBA, plan *geometry.Plan) (*Result, error) {
	if plan.Aspect != a.opts.Aspect {
		return nil, fmt.Errorf("%w: detector %v, crop %v", ErrAspectMismatch, a.opts.Aspect, plan.Aspect)
	}
	start := time.Now()
	raw, engineStats, err := a.engine.Detect(img)
	if err != nil {
		return nil, err
	}
	inferenceDone := time.Now()

	kept := nn.Postprocess(raw, &a.params)

	modelW := img.Rect.Dx()
	modelH := img.Rect.Dy()
	result := &Result{
		Detections:  make([]nn.Detection, 0, len(kept)),
		ModelWidth:  modelW,
		ModelHeight: modelH,
	}

	switch a.opts.Mapping {
	case BoxMappingReference:
		refW, refH := ReferenceSize(modelW, modelH, plan.Rotation, a.opts.Aspect)
		result.ImageWidth, result.ImageHeight = refW, refH
		for _, r := range kept {
			result.Detections = append(result.Detections, nn.Detection{
				Box:      Denormalize(r.Box, refW, refH),
				Category: nn.Category{Label: r.Label, Confidence: r.Confidence},
			})
		}
	default:
		result.ImageWidth, result.ImageHeight = plan.FrameWidth, plan.FrameHeight
		for _, r := range kept {
			result.Detections = append(result.Detections, nn.Detection{
				Box:      MapToDisplay(Denormalize(r.Box, modelW, modelH), plan),
				Category: nn.Category{Label: r.Label, Confidence: r.Confidence},
			})
		}
	}

	end := time.Now()
	result.Stats.Postprocess = end.Sub(inferenceDone)
	result.Stats.Total = end.Sub(start)
	if engineStats != nil {
		result.Stats.Preprocess = engineStats.Preprocess
		result.Stats.Inference = engineStats.Inference
	} else {
		result.Stats.Inference = inferenceDone.Sub(start)
	}
	return result, nil
}

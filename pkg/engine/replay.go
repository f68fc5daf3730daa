package engine

import (
	"encoding/json"
	"fmt"
	"image"
	"os"
	"sync"
	"time"

	"github.com/cyclopcam/warmcold/pkg/gen"
	"github.com/cyclopcam/warmcold/pkg/nn"
)

// Replay is an engine that plays back a recorded sequence of detections.
// Each call to Detect returns the next frame's objects, looping at the end.
// It is useful for testing the whole pipeline without a real model.
type Replay struct {
	config *nn.ModelConfig

	lock   sync.Mutex
	frames []*nn.ImageLabels
	next   int
}

// NewReplay loads a labels file (see nn.VideoLabels)
func NewReplay(config *nn.ModelConfig, labelsFile string) (*Replay, error) {
	b, err := os.ReadFile(labelsFile)
	if err != nil {
		return nil, err
	}
	labels := nn.VideoLabels{}
	if err := json.Unmarshal(b, &labels); err != nil {
		return nil, fmt.Errorf("Error loading %v: %w", labelsFile, err)
	}
	if len(labels.Frames) == 0 {
		return nil, fmt.Errorf("Error loading %v: no frames", labelsFile)
	}
	return NewReplayFromFrames(config, labels.Frames), nil
}

func NewReplayFromFrames(config *nn.ModelConfig, frames []*nn.ImageLabels) *Replay {
	return &Replay{
		config: config,
		frames: frames,
	}
}

func (r *Replay) Close() {
}

func (r *Replay) Config() *nn.ModelConfig {
	return r.config
}

func (r *Replay) Detect(img *image.NRGBA) ([]nn.RawDetection, *nn.EngineStats, error) {
	start := time.Now()
	if img.Rect.Dx() != r.config.Width || img.Rect.Dy() != r.config.Height {
		return nil, nil, fmt.Errorf("Replay engine expects %v x %v input, but got %v x %v", r.config.Width, r.config.Height, img.Rect.Dx(), img.Rect.Dy())
	}
	r.lock.Lock()
	frame := r.frames[r.next]
	r.next = (r.next + 1) % len(r.frames)
	r.lock.Unlock()

	// Postprocess sorts in place
	return gen.CopySlice(frame.Objects), &nn.EngineStats{Inference: time.Since(start)}, nil
}

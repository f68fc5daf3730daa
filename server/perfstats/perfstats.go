// Package perfstats is a single place where we record the performance of the
// stages of the frame pipeline, so that it's easy to compare different engines,
// and the performance of different hardware.
package perfstats

import (
	"fmt"
	"strings"
	"sync/atomic"
	"time"
)

type PerfStats struct {
	TransformNanoseconds   atomic.Uint64 // Crop, rotate, scale
	InferenceNanoseconds   atomic.Uint64
	PostprocessNanoseconds atomic.Uint64 // Threshold, NMS, coordinate mapping
	PublishNanoseconds     atomic.Uint64 // Time from post to apply on the surface
}

var Stats = PerfStats{}

// Update a moving average with a new sample
func Update(stat *atomic.Uint64, value int64) {
	vu := uint64(value)
	// We don't bother about strict correctness here, with CompareAndSwap,
	// because this is just sampled stats, and it's OK to miss one or two samples.
	if stat.Load() == 0 {
		stat.Store(vu)
	} else {
		stat.Store((stat.Load()*63 + vu) >> 6)
	}
}

func UpdateDuration(stat *atomic.Uint64, d time.Duration) {
	Update(stat, d.Nanoseconds())
}

func ms(stat *atomic.Uint64) float64 {
	return float64(stat.Load()) / 1e6
}

func (s *PerfStats) Reset() {
	s.TransformNanoseconds.Store(0)
	s.InferenceNanoseconds.Store(0)
	s.PostprocessNanoseconds.Store(0)
	s.PublishNanoseconds.Store(0)
}

// Snapshot returns the averages in milliseconds
func (s *PerfStats) Snapshot() map[string]float64 {
	return map[string]float64{
		"transformMS":   ms(&s.TransformNanoseconds),
		"inferenceMS":   ms(&s.InferenceNanoseconds),
		"postprocessMS": ms(&s.PostprocessNanoseconds),
		"publishMS":     ms(&s.PublishNanoseconds),
	}
}

func (s *PerfStats) String() string {
	b := &strings.Builder{}
	fmt.Fprintf(b, "transform %0.2f ms, inference %0.2f ms, postprocess %0.2f ms, publish %0.2f ms",
		ms(&s.TransformNanoseconds), ms(&s.InferenceNanoseconds), ms(&s.PostprocessNanoseconds), ms(&s.PublishNanoseconds))
	return b.String()
}

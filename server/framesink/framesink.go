// Package framesink runs the per-frame pipeline on a background goroutine:
// acquire the latest frame, transform it, detect objects, and publish the result
// to the render context.
package framesink

import (
	"errors"
	"fmt"
	"image"
	"math"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cyclopcam/warmcold/pkg/detect"
	"github.com/cyclopcam/warmcold/pkg/engine"
	"github.com/cyclopcam/warmcold/pkg/geometry"
	"github.com/cyclopcam/warmcold/pkg/nn"
	"github.com/cyclopcam/warmcold/pkg/perfstats"
	"github.com/cyclopcam/warmcold/server/capture"
	"github.com/cyclopcam/warmcold/server/log"
	serverstats "github.com/cyclopcam/warmcold/server/perfstats"
	"github.com/cyclopcam/warmcold/server/surface"
)

type State int32

const (
	StateIdle State = iota
	StateCapturing
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateCapturing:
		return "capturing"
	case StateStopped:
		return "stopped"
	}
	return "unknown"
}

// Stage of the frame that is currently being processed
type Stage int32

const (
	StageWaiting Stage = iota // No frame in flight
	StageAcquiring
	StageTransforming
	StageDetecting
	StagePublishing
)

func (s Stage) String() string {
	switch s {
	case StageWaiting:
		return "waiting"
	case StageAcquiring:
		return "acquiring"
	case StageTransforming:
		return "transforming"
	case StageDetecting:
		return "detecting"
	case StagePublishing:
		return "publishing"
	}
	return "unknown"
}

// Detector is satisfied by *detect.Adapter
type Detector interface {
	Detect(img *image.NRGBA, plan *geometry.Plan) (*detect.Result, error)
}

// Publisher is satisfied by *surface.Surface
type Publisher interface {
	BeginGeneration() uint64
	Publish(generation uint64, u surface.Update) bool
}

// FrameResult is everything produced from one frame.
// It is immutable once published, and is also the event that frame listeners receive.
type FrameResult struct {
	Generation  uint64         `json:"generation"`
	FrameID     int64          `json:"frameID"`
	CapturedAt  time.Time      `json:"capturedAt"`
	Detections  []nn.Detection `json:"detections"`
	ImageWidth  int            `json:"imageWidth"`
	ImageHeight int            `json:"imageHeight"`
	ModelWidth  int            `json:"modelWidth"`
	ModelHeight int            `json:"modelHeight"`
	Transform   time.Duration  `json:"transform"`
	Stats       detect.Stats   `json:"stats"`
}

type Options struct {
	Policy     geometry.Policy
	DumpFrames bool   // Write the first raw frame and model input of each size as JPEG
	DumpDir    string // Where to write dumped frames
	OnFailed   func(err error) // Called from the worker goroutine after it has exited
}

// Stats is a snapshot of the sink's counters
type Stats struct {
	State     string            `json:"state"`
	Stage     string            `json:"stage"`
	Frames    int64             `json:"frames"`    // Frames acquired
	Published int64             `json:"published"` // Results published
	Skipped   int64             `json:"skipped"`   // Frames skipped due to recoverable errors
	Inference perfstats.Summary `json:"inference"` // Recent inference times (ms)
	Transform time.Duration     `json:"transform"` // Average crop/rotate/resize time
	Error     string            `json:"error,omitempty"`
}

type FrameSink struct {
	log       log.Log
	source    capture.Source
	detector  Detector
	publisher Publisher
	opts      Options

	generation uint64
	state      atomic.Int32
	stage      atomic.Int32
	wake       chan struct{}
	mustStop   atomic.Bool
	stop       chan struct{}
	stopped    chan struct{}
	started    atomic.Bool
	stopOnce   sync.Once
	throttle   *log.Throttle

	nFrames    atomic.Int64
	nPublished atomic.Int64
	nSkipped   atomic.Int64

	statsLock sync.Mutex
	inference *perfstats.Window
	transform perfstats.TimeAccumulator
	err       error

	// Owned by the worker goroutine
	plan      *geometry.Plan
	dumped    map[string]bool
	lastStats time.Time
	nStats    int
}

func New(logger log.Log, source capture.Source, detector Detector, publisher Publisher, opts Options) *FrameSink {
	s := &FrameSink{
		log:       log.NewPrefixLogger(logger, "FrameSink:"),
		source:    source,
		detector:  detector,
		publisher: publisher,
		opts:      opts,
		wake:      make(chan struct{}, 1),
		stop:      make(chan struct{}),
		stopped:   make(chan struct{}),
		throttle:  log.NewThrottle(15 * time.Second),
		inference: perfstats.NewWindow(64),
		dumped:    map[string]bool{},
	}
	s.state.Store(int32(StateIdle))
	return s
}

func (s *FrameSink) State() State {
	return State(s.state.Load())
}

func (s *FrameSink) Stage() Stage {
	return Stage(s.stage.Load())
}

func (s *FrameSink) Generation() uint64 {
	return s.generation
}

// Err returns the error that stopped the sink, if any
func (s *FrameSink) Err() error {
	s.statsLock.Lock()
	defer s.statsLock.Unlock()
	return s.err
}

// Start begins a new generation, starts the worker, and starts the capture source
func (s *FrameSink) Start() error {
	if !s.state.CompareAndSwap(int32(StateIdle), int32(StateCapturing)) {
		return fmt.Errorf("Frame sink can only be started once")
	}
	s.generation = s.publisher.BeginGeneration()
	s.lastStats = time.Now()
	go s.run()
	if err := s.source.Start(s.onFrameAvailable); err != nil {
		s.shutdownWorker()
		s.state.Store(int32(StateStopped))
		return fmt.Errorf("Failed to start capture source %v: %w", s.source.Name(), err)
	}
	s.started.Store(true)
	s.log.Infof("Capturing from %v (generation %v)", s.source.Name(), s.generation)
	return nil
}

// Stop invalidates any results still in flight, stops the worker (letting the current
// frame finish), and then closes the capture source.
// Stop is safe to call more than once, and from an OnFailed callback.
func (s *FrameSink) Stop() {
	s.state.CompareAndSwap(int32(StateIdle), int32(StateStopped))
	if !s.started.Load() {
		return
	}
	s.stopOnce.Do(func() {
		s.state.Store(int32(StateStopped))
		s.publisher.BeginGeneration()
		s.shutdownWorker()
		if err := s.source.Close(); err != nil {
			s.log.Warnf("Error closing capture source: %v", err)
		}
		s.log.Infof("Stopped after %v frames (%v published, %v skipped)", s.nFrames.Load(), s.nPublished.Load(), s.nSkipped.Load())
	})
}

func (s *FrameSink) shutdownWorker() {
	if s.mustStop.Swap(true) {
		return
	}
	close(s.stop)
	<-s.stopped
}

// Called by the capture source. This must never block, and never runs inference.
// A capacity-1 channel coalesces notifications, so a burst of frames results in a single
// acquire of the newest one.
func (s *FrameSink) onFrameAvailable() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *FrameSink) run() {
	var failure error
	defer func() {
		close(s.stopped)
		if failure != nil && s.opts.OnFailed != nil {
			s.opts.OnFailed(failure)
		}
	}()
	for !s.mustStop.Load() {
		select {
		case <-s.stop:
			return
		case <-s.wake:
		}
		if s.mustStop.Load() {
			return
		}
		err := s.processLatest()
		s.stage.Store(int32(StageWaiting))
		if err != nil {
			s.fail(err)
			failure = err
			return
		}
		s.logStats()
	}
}

// isContractViolation returns true for errors that will happen on every frame,
// because the configuration itself is wrong.
func isContractViolation(err error) bool {
	var rotErr *geometry.UnsupportedRotationError
	return errors.Is(err, detect.ErrAspectMismatch) || errors.As(err, &rotErr)
}

func (s *FrameSink) fail(err error) {
	s.log.Errorf("Stopping: %v", err)
	s.statsLock.Lock()
	s.err = err
	s.statsLock.Unlock()
	s.state.Store(int32(StateStopped))
	// Leave the overlay empty rather than frozen on the last result
	s.publisher.Publish(s.generation, surface.Update{Detections: []nn.Detection{}})
}

func (s *FrameSink) skip(format string, args ...any) {
	s.nSkipped.Add(1)
	s.throttle.Warnf(s.log, format, args...)
}

// planFor returns a cached plan, recomputing it if the frame size changes
func (s *FrameSink) planFor(width, height int) (*geometry.Plan, error) {
	if s.plan != nil && s.plan.Matches(width, height) {
		return s.plan, nil
	}
	plan, err := geometry.NewPlan(width, height, s.opts.Policy)
	if err != nil {
		return nil, err
	}
	s.log.Infof("New transform plan: %v", plan)
	s.plan = plan
	return plan, nil
}

// processLatest handles one frame. Only errors that should end the session are returned.
func (s *FrameSink) processLatest() error {
	s.stage.Store(int32(StageAcquiring))
	frame, err := s.source.AcquireLatest()
	if errors.Is(err, capture.ErrNoFrame) {
		s.log.Debugf("No frame available")
		return nil
	} else if err != nil {
		s.skip("Failed to acquire frame: %v", err)
		return nil
	}
	s.nFrames.Add(1)

	s.stage.Store(int32(StageTransforming))
	start := time.Now()
	plan, err := s.planFor(frame.Width, frame.Height)
	if err != nil {
		if isContractViolation(err) {
			return err
		}
		s.skip("Skipping frame %v: %v", frame.ID, err)
		return nil
	}
	img, err := plan.Apply(frame)
	if err != nil {
		s.skip("Skipping frame %v: %v", frame.ID, err)
		return nil
	}
	transformTime := time.Since(start)
	serverstats.UpdateDuration(&serverstats.Stats.TransformNanoseconds, transformTime)
	s.statsLock.Lock()
	s.transform.AddSample(transformTime)
	s.statsLock.Unlock()
	if s.opts.DumpFrames {
		s.dumpFrame(frame, img)
	}

	s.stage.Store(int32(StageDetecting))
	res, err := s.detector.Detect(img, plan)
	if err != nil {
		if isContractViolation(err) {
			return err
		}
		s.nSkipped.Add(1)
		s.throttle.Errorf(s.log, "Error detecting objects: %v", err)
		return nil
	}
	serverstats.UpdateDuration(&serverstats.Stats.InferenceNanoseconds, res.Stats.Inference)
	serverstats.UpdateDuration(&serverstats.Stats.PostprocessNanoseconds, res.Stats.Postprocess)
	s.statsLock.Lock()
	s.inference.Add(res.Stats.Inference)
	s.statsLock.Unlock()

	s.stage.Store(int32(StagePublishing))
	result := &FrameResult{
		Generation:  s.generation,
		FrameID:     frame.ID,
		CapturedAt:  frame.CapturedAt,
		Detections:  res.Detections,
		ImageWidth:  res.ImageWidth,
		ImageHeight: res.ImageHeight,
		ModelWidth:  res.ModelWidth,
		ModelHeight: res.ModelHeight,
		Transform:   transformTime,
		Stats:       res.Stats,
	}
	if s.publisher.Publish(s.generation, surface.Update{
		Detections:  result.Detections,
		ImageWidth:  result.ImageWidth,
		ImageHeight: result.ImageHeight,
		Event:       result,
	}) {
		s.nPublished.Add(1)
	} else {
		s.log.Debugf("Discarded result of frame %v from stale generation %v", frame.ID, s.generation)
	}
	return nil
}

func (s *FrameSink) Stats() Stats {
	s.statsLock.Lock()
	st := Stats{
		State:     s.State().String(),
		Stage:     s.Stage().String(),
		Frames:    s.nFrames.Load(),
		Published: s.nPublished.Load(),
		Skipped:   s.nSkipped.Load(),
		Inference: s.inference.Summary(),
		Transform: s.transform.Average(),
	}
	if s.err != nil {
		st.Error = s.err.Error()
	}
	s.statsLock.Unlock()
	return st
}

// Log stats on an exponentially growing interval, so that a long running
// session doesn't fill the log.
func (s *FrameSink) logStats() {
	interval := 10 * math.Pow(1.5, float64(s.nStats))
	interval = max(interval, 5)
	interval = min(interval, 3600)
	if time.Since(s.lastStats) < time.Duration(interval)*time.Second {
		return
	}
	s.nStats++
	s.lastStats = time.Now()
	st := s.Stats()
	s.log.Infof("%v frames, %v published, %v skipped. Transform %v. Inference %.1f ms (p95 %.1f ms). %v",
		st.Frames, st.Published, st.Skipped, st.Transform, st.Inference.Mean, st.Inference.P95, serverstats.Stats.String())
}

func (s *FrameSink) dumpFrame(frame *geometry.Frame, nnImg *image.NRGBA) {
	key := fmt.Sprintf("%vx%v", frame.Width, frame.Height)
	if s.dumped[key] {
		return
	}
	s.dumped[key] = true
	raw, err := frame.Image()
	if err != nil {
		return
	}
	for variant, img := range map[string]*image.NRGBA{"raw": raw, "nn": nnImg} {
		b, err := engine.EncodeJPEG(img, 95)
		if err != nil {
			s.log.Warnf("Failed to encode %v frame: %v", variant, err)
			continue
		}
		filename := filepath.Join(s.opts.DumpDir, fmt.Sprintf("frame-%v-%v.jpg", key, variant))
		if err := os.WriteFile(filename, b, 0644); err != nil {
			s.log.Warnf("Failed to write %v: %v", filename, err)
		}
	}
}

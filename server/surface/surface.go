// Package surface is the render context. It owns all mutable overlay state
// (detections, scale factor, score, visibility), and is the only goroutine that writes it.
// Other goroutines send it work with non-blocking posts.
package surface

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/cyclopcam/warmcold/pkg/event"
	"github.com/cyclopcam/warmcold/pkg/nn"
	"github.com/cyclopcam/warmcold/pkg/overlay"
	"github.com/cyclopcam/warmcold/pkg/score"
	"github.com/cyclopcam/warmcold/server/log"
	"github.com/cyclopcam/warmcold/server/perfstats"
)

// DefaultFrameInterval is the animation tick period (about 60 Hz)
const DefaultFrameInterval = 16 * time.Millisecond

type Options struct {
	Width          int // Size of the box overlay view
	Height         int
	IndicatorWidth int
	FrameInterval  time.Duration
	BoxesVisible   bool
	Style          overlay.Style
	Clock          clock.Clock // nil = wall clock
}

func DefaultOptions() Options {
	return Options{
		Width:          1080,
		Height:         1412,
		IndicatorWidth: 1080,
		FrameInterval:  DefaultFrameInterval,
		BoxesVisible:   false,
		Style:          overlay.DefaultStyle(),
	}
}

// Update is the payload of one detection batch, as published by a frame sink
type Update struct {
	Detections  []nn.Detection // Not modified after publishing
	ImageWidth  int
	ImageHeight int
	Event       any // Sent to FrameListeners after the overlays are updated
}

type Surface struct {
	// Receives Update.Event after every applied update, on the surface goroutine
	FrameListeners event.Sender
	// Receives a *overlay.Scene whenever the scene changes, on the surface goroutine
	SceneListeners event.Sender

	log      log.Log
	clock    clock.Clock
	renderer *overlay.Renderer
	interval time.Duration

	queueLock  sync.Mutex
	queue      []func()
	wake       chan struct{}
	generation atomic.Uint64
	latest     atomic.Pointer[overlay.Scene]
	stop       chan struct{}
	stopped    chan struct{}
	stopOnce   sync.Once

	// Everything below is owned by the surface goroutine
	detections     []nn.Detection
	scaleFactor    float64
	imageWidth     int // Source image size of the last results
	imageHeight    int
	width          int
	height         int
	indicatorWidth int
	boxesVisible   bool
	aggregator     *score.Aggregator
	smoother       *score.Smoother
	animating      bool
	ticker         *clock.Ticker
	nTicks         int64
}

// Start creates the surface and starts its goroutine
func Start(logger log.Log, opts Options) *Surface {
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}
	if opts.FrameInterval <= 0 {
		opts.FrameInterval = DefaultFrameInterval
	}
	if opts.Style.TextSize == 0 {
		opts.Style = overlay.DefaultStyle()
	}
	s := &Surface{
		log:            log.NewPrefixLogger(logger, "Surface:"),
		clock:          opts.Clock,
		renderer:       overlay.NewRenderer(opts.Style),
		interval:       opts.FrameInterval,
		wake:           make(chan struct{}, 1),
		stop:           make(chan struct{}),
		stopped:        make(chan struct{}),
		scaleFactor:    1,
		width:          opts.Width,
		height:         opts.Height,
		indicatorWidth: opts.IndicatorWidth,
		boxesVisible:   opts.BoxesVisible,
		aggregator:     score.NewAggregator(),
		smoother:       score.NewSmoother(),
	}
	s.render()
	go s.run()
	return s
}

// Close stops the surface goroutine. Posts after Close are ignored.
func (s *Surface) Close() {
	s.stopOnce.Do(func() {
		close(s.stop)
		<-s.stopped
	})
}

// Post queues fn to run on the surface goroutine. It never blocks.
// Returns false if the surface has been closed.
func (s *Surface) Post(fn func()) bool {
	select {
	case <-s.stop:
		return false
	default:
	}
	s.queueLock.Lock()
	s.queue = append(s.queue, fn)
	s.queueLock.Unlock()
	select {
	case s.wake <- struct{}{}:
	default:
	}
	return true
}

// Flush waits until everything posted before it has been applied
func (s *Surface) Flush() {
	done := make(chan struct{})
	if !s.Post(func() { close(done) }) {
		return
	}
	select {
	case <-done:
	case <-s.stopped:
	}
}

// BeginGeneration invalidates all results from previous sessions, and returns the new generation token
func (s *Surface) BeginGeneration() uint64 {
	return s.generation.Add(1)
}

func (s *Surface) Generation() uint64 {
	return s.generation.Load()
}

// Publish applies a detection batch, unless its generation is stale.
// The generation is checked before posting, and again when the update is applied.
func (s *Surface) Publish(generation uint64, u Update) bool {
	if generation != s.generation.Load() {
		return false
	}
	postedAt := time.Now()
	return s.Post(func() {
		if generation != s.generation.Load() {
			return
		}
		perfstats.UpdateDuration(&perfstats.Stats.PublishNanoseconds, time.Since(postedAt))
		s.setResults(u.Detections, u.ImageHeight, u.ImageWidth)
		s.updateScore(u.Detections)
		if u.Event != nil {
			s.FrameListeners.SendEvent(u.Event)
		}
	})
}

// SetResults replaces the detections on the box overlay
func (s *Surface) SetResults(dets []nn.Detection, imageHeight, imageWidth int) {
	s.Post(func() { s.setResults(dets, imageHeight, imageWidth) })
}

// UpdateScore computes a new target score, and starts animating toward it
func (s *Surface) UpdateScore(dets []nn.Detection) {
	s.Post(func() { s.updateScore(dets) })
}

// Clear removes all boxes
func (s *Surface) Clear() {
	s.Post(func() {
		s.detections = nil
		s.render()
	})
}

// ResetScore forces the displayed and target score to zero, and stops any animation
func (s *Surface) ResetScore() {
	s.Post(func() {
		s.smoother.Reset()
		s.aggregator.Reset()
		s.animating = false
		s.render()
	})
}

// Resize changes the size of the overlay views
func (s *Surface) Resize(width, height, indicatorWidth int) {
	s.Post(func() {
		s.width = width
		s.height = height
		s.indicatorWidth = indicatorWidth
		s.updateScaleFactor()
		s.render()
	})
}

func (s *Surface) SetBoxesVisible(visible bool) {
	s.Post(func() {
		s.boxesVisible = visible
		s.render()
	})
}

// LatestScene returns the most recently rendered scene. It is safe to call from any goroutine.
func (s *Surface) LatestScene() *overlay.Scene {
	return s.latest.Load()
}

func (s *Surface) setResults(dets []nn.Detection, imageHeight, imageWidth int) {
	s.detections = dets
	if imageWidth > 0 && imageHeight > 0 {
		s.imageWidth = imageWidth
		s.imageHeight = imageHeight
	}
	s.updateScaleFactor()
	s.render()
}

// updateScaleFactor must run whenever the view size or the source image size changes
func (s *Surface) updateScaleFactor() {
	if s.imageWidth > 0 && s.imageHeight > 0 {
		s.scaleFactor = max(float64(s.width)/float64(s.imageWidth), float64(s.height)/float64(s.imageHeight))
	}
}

func (s *Surface) updateScore(dets []nn.Detection) {
	target := s.aggregator.Aggregate(dets)
	s.smoother.SetTarget(target)
	if !s.smoother.Settled() {
		s.animating = true
	}
	s.render()
}

func (s *Surface) run() {
	defer close(s.stopped)
	for {
		var tick <-chan time.Time
		if s.ticker != nil {
			tick = s.ticker.C
		}
		select {
		case <-s.stop:
			if s.ticker != nil {
				s.ticker.Stop()
			}
			return
		case <-s.wake:
			s.queueLock.Lock()
			work := s.queue
			s.queue = nil
			s.queueLock.Unlock()
			for _, fn := range work {
				fn()
				s.scheduleTicks()
			}
		case <-tick:
			s.tick()
		}
		s.scheduleTicks()
	}
}

// tick is one animation frame
func (s *Surface) tick() {
	s.nTicks++
	s.animating = s.smoother.Tick()
	s.render()
}

func (s *Surface) scheduleTicks() {
	if s.animating && s.ticker == nil {
		s.ticker = s.clock.Ticker(s.interval)
	} else if !s.animating && s.ticker != nil {
		s.ticker.Stop()
		s.ticker = nil
	}
}

func (s *Surface) render() {
	scene := &overlay.Scene{
		Width:           s.width,
		Height:          s.height,
		Boxes:           s.renderer.Boxes(s.detections, s.scaleFactor, s.boxesVisible),
		IndicatorWidth:  s.indicatorWidth,
		IndicatorHeight: s.renderer.IndicatorHeight(),
		Indicator:       s.renderer.Indicator(s.indicatorWidth, s.smoother.Current(), s.smoother.Target(), s.aggregator.MaxObserved()),
		Score:           s.smoother.Current(),
		Target:          s.smoother.Target(),
	}
	s.latest.Store(scene)
	s.SceneListeners.SendEvent(scene)
}

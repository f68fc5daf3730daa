package capture

import (
	"image"
	"image/color"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/cyclopcam/warmcold/pkg/geometry"
	"github.com/cyclopcam/warmcold/server/log"
)

// SyntheticSource generates frames on a timer. Each frame has a bright square that
// moves across a dark background. Rows are padded, the way screen capture buffers often are.
type SyntheticSource struct {
	Width      int
	Height     int
	RowPadding int // Extra pixels at the end of each row
	Interval   time.Duration

	log       log.Log
	clock     clock.Clock
	slot      LatestSlot
	nextID    int64
	lock      sync.Mutex
	ticker    *clock.Ticker
	available func()
	stop      chan struct{}
	stopped   chan struct{}
}

func NewSyntheticSource(logger log.Log, c clock.Clock, width, height int, interval time.Duration) *SyntheticSource {
	if c == nil {
		c = clock.New()
	}
	return &SyntheticSource{
		Width:      width,
		Height:     height,
		RowPadding: 16,
		Interval:   interval,
		log:        logger,
		clock:      c,
	}
}

func (s *SyntheticSource) Name() string {
	return "synthetic"
}

func (s *SyntheticSource) Start(onAvailable func()) error {
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.ticker != nil {
		return nil
	}
	s.ticker = s.clock.Ticker(s.Interval)
	s.available = onAvailable
	s.stop = make(chan struct{})
	s.stopped = make(chan struct{})
	s.log.Infof("Synthetic capture %v x %v every %v", s.Width, s.Height, s.Interval)
	ticker, stop, stopped := s.ticker, s.stop, s.stopped
	go func() {
		defer close(stopped)
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				s.Emit()
			}
		}
	}()
	return nil
}

// Emit produces one frame immediately, without waiting for the timer.
// The consumer is notified if the source has been started.
func (s *SyntheticSource) Emit() *geometry.Frame {
	f := s.generate()
	s.slot.Put(f)
	s.lock.Lock()
	available := s.available
	s.lock.Unlock()
	if available != nil {
		available()
	}
	return f
}

func (s *SyntheticSource) generate() *geometry.Frame {
	s.lock.Lock()
	s.nextID++
	id := s.nextID
	s.lock.Unlock()

	stride := (s.Width + s.RowPadding) * 4
	img := &image.NRGBA{
		Pix:    make([]byte, stride*s.Height),
		Stride: stride,
		Rect:   image.Rect(0, 0, s.Width, s.Height),
	}
	bg := color.NRGBA{20, 20, 30, 255}
	fg := color.NRGBA{250, 120, 40, 255}
	size := max(s.Width/8, 1)
	x0 := int(id*7) % max(s.Width-size, 1)
	y0 := s.Height / 2
	for y := 0; y < s.Height; y++ {
		for x := 0; x < s.Width; x++ {
			c := bg
			if x >= x0 && x < x0+size && y >= y0 && y < y0+size {
				c = fg
			}
			img.SetNRGBA(x, y, c)
		}
	}
	return geometry.NewFrame(img, id, s.clock.Now())
}

func (s *SyntheticSource) AcquireLatest() (*geometry.Frame, error) {
	return s.slot.AcquireLatest()
}

func (s *SyntheticSource) Close() error {
	s.lock.Lock()
	ticker := s.ticker
	s.ticker = nil
	s.available = nil
	s.lock.Unlock()
	if ticker == nil {
		return nil
	}
	ticker.Stop()
	close(s.stop)
	<-s.stopped
	s.slot.Clear()
	return nil
}

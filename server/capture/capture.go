// Package capture produces raw frames for the pipeline.
// A Source notifies its consumer when a new frame is available, and the consumer
// acquires only the most recent one. Frames that are never acquired are dropped.
package capture

import (
	"errors"
	"sync"

	"github.com/cyclopcam/warmcold/pkg/geometry"
)

// ErrNoFrame means there is no new frame to acquire. This is not a failure.
var ErrNoFrame = errors.New("no frame available")

type Source interface {
	// Start begins producing frames. onAvailable is called from the source's own goroutine,
	// and must return quickly.
	Start(onAvailable func()) error

	// AcquireLatest returns the newest frame that hasn't been acquired yet, or ErrNoFrame.
	AcquireLatest() (*geometry.Frame, error)

	// Close stops the source and releases its resources
	Close() error

	Name() string
}

// LatestSlot holds the single most recent frame.
// Writers overwrite it, and readers take whatever is there.
type LatestSlot struct {
	lock     sync.Mutex
	frame    *geometry.Frame
	acquired bool // The frame in the slot has already been handed out
	nPut     int64
	nDropped int64
}

// Put replaces the frame in the slot. If the previous frame was never acquired, it is dropped.
func (s *LatestSlot) Put(f *geometry.Frame) {
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.frame != nil && !s.acquired {
		s.nDropped++
	}
	s.frame = f
	s.acquired = false
	s.nPut++
}

// AcquireLatest returns the frame in the slot, unless it has already been acquired
func (s *LatestSlot) AcquireLatest() (*geometry.Frame, error) {
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.frame == nil || s.acquired {
		return nil, ErrNoFrame
	}
	s.acquired = true
	return s.frame, nil
}

// Counts returns the number of frames put into the slot, and the number that were overwritten before being acquired
func (s *LatestSlot) Counts() (put, dropped int64) {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.nPut, s.nDropped
}

func (s *LatestSlot) Clear() {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.frame = nil
	s.acquired = false
}

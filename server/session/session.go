// Package session owns the lifecycle of a detection session: the engine, the capture
// source, and the frame sink that connects them to the surface.
package session

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/cyclopcam/warmcold/pkg/detect"
	"github.com/cyclopcam/warmcold/pkg/nn"
	"github.com/cyclopcam/warmcold/server/capture"
	"github.com/cyclopcam/warmcold/server/config"
	"github.com/cyclopcam/warmcold/server/framesink"
	"github.com/cyclopcam/warmcold/server/log"
	"github.com/cyclopcam/warmcold/server/surface"
	"github.com/google/uuid"
)

var ErrSessionActive = errors.New("a session is already running")
var ErrNotCurrent = errors.New("session is not running")

// SourceFactory creates the capture source for a session
type SourceFactory func(cfg *config.Config) (capture.Source, error)

// DefaultSourceFactory builds a directory watcher or a synthetic source, depending on the config
func DefaultSourceFactory(logger log.Log, c clock.Clock) SourceFactory {
	return func(cfg *config.Config) (capture.Source, error) {
		switch cfg.Source.Kind {
		case config.SourceDir:
			return capture.NewDirSource(logger, cfg.Source.Dir), nil
		case config.SourceSynthetic:
			return capture.NewSyntheticSource(logger, c, cfg.Source.Width, cfg.Source.Height, cfg.SourceInterval()), nil
		}
		return nil, fmt.Errorf("Unknown source kind '%v'", cfg.Source.Kind)
	}
}

// Handle is a running session
type Handle struct {
	ID        uuid.UUID
	Config    *config.Config
	StartedAt time.Time

	log     log.Log
	adapter *detect.Adapter
	sink    *framesink.FrameSink

	lock   sync.Mutex
	failed error
}

// Err returns the error that caused the session to fail, or nil
func (h *Handle) Err() error {
	h.lock.Lock()
	defer h.lock.Unlock()
	return h.failed
}

func (h *Handle) Stats() framesink.Stats {
	return h.sink.Stats()
}

func (h *Handle) ModelConfig() *nn.ModelConfig {
	return h.adapter.ModelConfig()
}

type Manager struct {
	log       log.Log
	surface   *surface.Surface
	loader    nn.Loader
	newSource SourceFactory

	lock    sync.Mutex
	current *Handle
}

func NewManager(logger log.Log, surf *surface.Surface, loader nn.Loader, newSource SourceFactory) *Manager {
	return &Manager{
		log:       logger,
		surface:   surf,
		loader:    loader,
		newSource: newSource,
	}
}

// Current returns the running session, or nil
func (m *Manager) Current() *Handle {
	m.lock.Lock()
	defer m.lock.Unlock()
	return m.current
}

// Start loads the engine, opens the capture source, and starts processing frames.
// Any failure here is returned as-is, and nothing is retried.
func (m *Manager) Start(cfg *config.Config) (*Handle, error) {
	m.lock.Lock()
	defer m.lock.Unlock()
	if m.current != nil {
		return nil, ErrSessionActive
	}
	return m.startLocked(cfg)
}

func (m *Manager) startLocked(cfg *config.Config) (*Handle, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	policy, err := cfg.Policy()
	if err != nil {
		return nil, err
	}
	detectOpts, err := cfg.DetectOptions()
	if err != nil {
		return nil, err
	}

	h := &Handle{
		ID:        uuid.New(),
		Config:    cfg.Clone(),
		StartedAt: time.Now(),
	}
	h.log = log.NewPrefixLogger(m.log, fmt.Sprintf("Session %v:", h.ID.String()[:8]))

	h.adapter, err = detect.NewAdapter(h.log, m.loader, cfg.ModelSetup(), detectOpts)
	if err != nil {
		h.log.Errorf("%v", err)
		return nil, err
	}
	source, err := m.newSource(cfg)
	if err != nil {
		h.adapter.Close()
		return nil, err
	}

	layout := surface.LayoutForScreen(cfg.Overlay.ScreenWidth, cfg.Overlay.ScreenHeight)
	m.surface.Resize(cfg.Overlay.ScreenWidth, layout.OverlayHeight, cfg.Overlay.ScreenWidth)
	m.surface.SetBoxesVisible(cfg.Overlay.ShowBoxes)

	h.sink = framesink.New(h.log, source, h.adapter, m.surface, framesink.Options{
		Policy:     policy,
		DumpFrames: cfg.DumpFrames,
		DumpDir:    cfg.DumpDir,
		OnFailed: func(err error) {
			h.lock.Lock()
			h.failed = err
			h.lock.Unlock()
		},
	})
	if err := h.sink.Start(); err != nil {
		h.log.Errorf("%v", err)
		h.adapter.Close()
		return nil, err
	}
	m.current = h
	h.log.Infof("Started (%v engine, %v source)", cfg.Model.Engine, source.Name())
	return h, nil
}

// Stop stops the session, clears the boxes and resets the score to zero
func (m *Manager) Stop(h *Handle) error {
	m.lock.Lock()
	defer m.lock.Unlock()
	if h == nil || h != m.current {
		return ErrNotCurrent
	}
	m.stopLocked()
	return nil
}

// StopCurrent stops whatever session is running. It is a no-op if nothing is running.
func (m *Manager) StopCurrent() {
	m.lock.Lock()
	defer m.lock.Unlock()
	if m.current != nil {
		m.stopLocked()
	}
}

func (m *Manager) stopLocked() {
	h := m.current
	m.current = nil
	// Reverse order of Start
	h.sink.Stop()
	h.adapter.Close()
	m.surface.Clear()
	m.surface.ResetScore()
	h.log.Infof("Stopped after %v", time.Since(h.StartedAt).Truncate(time.Second))
}

// Reconfigure tears down the running session (if any), and starts a new one with cfg.
// The engine is always re-initialized, even if only a detector parameter changed.
func (m *Manager) Reconfigure(cfg *config.Config) (*Handle, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	m.lock.Lock()
	defer m.lock.Unlock()
	if m.current != nil {
		m.stopLocked()
	}
	return m.startLocked(cfg)
}

// Package server hosts a warmcold session behind an HTTP API, and owns the
// surface that outlives individual sessions.
package server

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/cyclopcam/logs"
	"github.com/cyclopcam/warmcold/pkg/nn"
	"github.com/cyclopcam/warmcold/server/config"
	"github.com/cyclopcam/warmcold/server/session"
	"github.com/cyclopcam/warmcold/server/surface"
	"github.com/julienschmidt/httprouter"
)

type Server struct {
	Log              logs.Log
	Surface          *surface.Surface
	Sessions         *session.Manager
	ShutdownComplete chan error // Receives one value when Shutdown has finished

	configFile   string // If not empty, config changes made over the API are saved here
	configLock   sync.Mutex
	config       *config.Config
	signalIn     chan os.Signal
	httpLock     sync.Mutex
	httpServer   *http.Server
	httpRouter   *httprouter.Router
	shutdownOnce sync.Once
}

// NewServer creates the surface and the session manager. No session is started.
func NewServer(logger logs.Log, cfg *config.Config, configFile string, loader nn.Loader, sources session.SourceFactory) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	layout := surface.LayoutForScreen(cfg.Overlay.ScreenWidth, cfg.Overlay.ScreenHeight)
	surfOpts := layout.Options(cfg.Overlay.ScreenWidth)
	surfOpts.BoxesVisible = cfg.Overlay.ShowBoxes
	surf := surface.Start(logger, surfOpts)

	s := &Server{
		Log:              logger,
		Surface:          surf,
		Sessions:         session.NewManager(logger, surf, loader, sources),
		ShutdownComplete: make(chan error, 1),
		configFile:       configFile,
		config:           cfg.Clone(),
	}
	s.setupHttpRoutes()
	return s, nil
}

// Config returns a copy of the current configuration
func (s *Server) Config() *config.Config {
	s.configLock.Lock()
	defer s.configLock.Unlock()
	return s.config.Clone()
}

// StartSession starts a session with the current configuration
func (s *Server) StartSession() (*session.Handle, error) {
	return s.Sessions.Start(s.Config())
}

// Handler is the HTTP API
func (s *Server) Handler() http.Handler {
	return s.httpRouter
}

// port example: ":8080"
// ListenHTTP blocks until the server is shut down.
func (s *Server) ListenHTTP(port string) error {
	s.Log.Infof("Listening on %v", port)
	s.httpLock.Lock()
	s.httpServer = &http.Server{
		Addr:    port,
		Handler: s.httpRouter,
	}
	srv := s.httpServer
	s.httpLock.Unlock()
	err := srv.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (s *Server) ListenForKillSignals() {
	s.signalIn = make(chan os.Signal, 1)
	signal.Notify(s.signalIn, os.Interrupt, syscall.SIGTERM)
	go func() {
		sig, ok := <-s.signalIn
		if ok {
			s.Log.Infof("Received OS signal '%v'. Shutting down", sig.String())
			s.Shutdown()
		}
	}()
}

// Shutdown stops the session, the surface, and the HTTP server.
// It is safe to call more than once.
func (s *Server) Shutdown() {
	s.shutdownOnce.Do(func() {
		s.Log.Infof("Shutdown")
		if s.signalIn != nil {
			signal.Stop(s.signalIn)
			close(s.signalIn)
		}
		s.Sessions.StopCurrent()
		s.Surface.Close()

		var err error
		s.httpLock.Lock()
		srv := s.httpServer
		s.httpLock.Unlock()
		if srv != nil {
			s.Log.Infof("Closing HTTP server")
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			err = srv.Shutdown(ctx)
			cancel()
		}
		if err != nil {
			s.Log.Warnf("Shutdown complete, with error: %v", err)
		} else {
			s.Log.Infof("Shutdown complete")
		}
		s.ShutdownComplete <- err
	})
}

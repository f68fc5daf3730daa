package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/cyclopcam/warmcold/pkg/nn"
	"github.com/cyclopcam/warmcold/server/framesink"
	"github.com/cyclopcam/warmcold/server/perfstats"
	"github.com/cyclopcam/warmcold/server/session"
	"github.com/cyclopcam/www"
	"github.com/julienschmidt/httprouter"
)

type sessionJSON struct {
	ID        string          `json:"id"`
	StartedAt time.Time       `json:"startedAt"`
	Model     *nn.ModelConfig `json:"model"`
	Sink      framesink.Stats `json:"sink"`
	Error     string          `json:"error,omitempty"`
}

type statsJSON struct {
	Session  *sessionJSON       `json:"session"` // nil if no session is running
	Pipeline map[string]float64 `json:"pipeline"`
	Score    float64            `json:"score"`
	Target   float64            `json:"target"`
}

func toSessionJSON(h *session.Handle) *sessionJSON {
	j := &sessionJSON{
		ID:        h.ID.String(),
		StartedAt: h.StartedAt,
		Model:     h.ModelConfig(),
		Sink:      h.Stats(),
	}
	if err := h.Err(); err != nil {
		j.Error = err.Error()
	}
	return j
}

func (s *Server) httpStats(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	j := statsJSON{
		Pipeline: perfstats.Stats.Snapshot(),
	}
	if h := s.Sessions.Current(); h != nil {
		j.Session = toSessionJSON(h)
	}
	if scene := s.Surface.LatestScene(); scene != nil {
		j.Score = scene.Score
		j.Target = scene.Target
	}
	www.SendJSON(w, &j)
}

func (s *Server) httpSessionStart(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	h, err := s.StartSession()
	if errors.Is(err, session.ErrSessionActive) {
		www.PanicBadRequestf("%v", err)
	}
	www.Check(err)
	www.SendJSON(w, toSessionJSON(h))
}

func (s *Server) httpSessionStop(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	s.Sessions.StopCurrent()
	s.Surface.Flush()
	www.SendOK(w)
}

func (s *Server) httpGetConfig(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	www.SendJSON(w, s.Config())
}

// The body may be a partial config. Fields that are absent keep their current value.
// If a session is running, it is restarted with the new config.
func (s *Server) httpSetConfig(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	s.configLock.Lock()
	defer s.configLock.Unlock()

	cfg := s.config.Clone()
	www.ReadJSON(w, r, cfg, 1024*1024)
	if err := cfg.Validate(); err != nil {
		www.PanicBadRequestf("%v", err)
	}
	if s.Sessions.Current() != nil {
		if _, err := s.Sessions.Reconfigure(cfg); err != nil {
			www.PanicBadRequestf("Failed to restart session: %v", err)
		}
	} else {
		s.Surface.SetBoxesVisible(cfg.Overlay.ShowBoxes)
	}
	s.config = cfg
	if s.configFile != "" {
		if err := cfg.Save(s.configFile); err != nil {
			s.Log.Errorf("Failed to save config to %v: %v", s.configFile, err)
		}
	}
	www.SendJSON(w, cfg)
}

package server

import (
	"net/http"

	"github.com/cyclopcam/warmcold/pkg/overlay"
	"github.com/cyclopcam/warmcold/server/streamer"
	"github.com/cyclopcam/www"
	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

func (s *Server) httpOverlayScene(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	www.CacheNever(w)
	www.SendJSON(w, s.Surface.LatestScene())
}

func (s *Server) httpOverlayPNG(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	b, err := overlay.EncodePNG(s.Surface.LatestScene())
	www.Check(err)
	www.CacheNever(w)
	w.Header().Set("Content-Type", "image/png")
	w.Write(b)
}

// Add ?png=1 to receive a rasterized PNG after every scene
func (s *Server) httpOverlayWebSocket(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	sendPNG := www.QueryValue(r, "png") == "1"
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.Log.Errorf("websocket upgrade failed: %v", err)
		return
	}
	streamer.RunOverlayWebSocketStreamer(s.Log, conn, s.Surface, sendPNG)
}

func (s *Server) httpOverlayClear(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	s.Surface.Clear()
	www.SendOK(w)
}

func (s *Server) httpScoreReset(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	s.Surface.ResetScore()
	www.SendOK(w)
}

package server

import (
	"net/http"
	"time"

	"github.com/cyclopcam/www"
	"github.com/go-chi/httprate"
	"github.com/julienschmidt/httprouter"
)

func (s *Server) setupHttpRoutes() {
	router := httprouter.New()

	handle := func(method, route string, handle httprouter.Handle) {
		www.Handle(s.Log, router, method, route, handle)
	}

	// Anything that re-initializes the engine is expensive, so we don't let a
	// misbehaving client hammer it.
	ratelimited := func(method, route string, handle httprouter.Handle, requestLimit int, windowLength time.Duration) {
		limited := httprate.Limit(requestLimit, windowLength, httprate.WithKeyFuncs(httprate.KeyByIP))
		www.Handle(s.Log, router, method, route, func(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
			limited(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				handle(w, r, params)
			})).ServeHTTP(w, r)
		})
	}

	handle("GET", "/api/overlay/scene", s.httpOverlayScene)
	handle("GET", "/api/overlay/latest.png", s.httpOverlayPNG)
	handle("GET", "/api/ws/overlay", s.httpOverlayWebSocket)
	handle("POST", "/api/overlay/clear", s.httpOverlayClear)
	handle("POST", "/api/score/reset", s.httpScoreReset)
	handle("GET", "/api/stats", s.httpStats)
	handle("GET", "/api/config", s.httpGetConfig)
	ratelimited("POST", "/api/config", s.httpSetConfig, 5, time.Second)
	ratelimited("POST", "/api/session/start", s.httpSessionStart, 5, time.Second)
	handle("POST", "/api/session/stop", s.httpSessionStop)

	s.httpRouter = router
}

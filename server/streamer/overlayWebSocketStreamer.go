package streamer

import (
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/cyclopcam/warmcold/pkg/event"
	"github.com/cyclopcam/warmcold/pkg/gen"
	"github.com/cyclopcam/warmcold/pkg/overlay"
	"github.com/cyclopcam/warmcold/server/framesink"
	"github.com/cyclopcam/warmcold/server/log"
	"github.com/cyclopcam/warmcold/server/surface"
	"github.com/gorilla/websocket"
)

type webSocketMsg int

const (
	webSocketMsgPause  webSocketMsg = iota // pause stream (eg browser tab deactivated)
	webSocketMsgResume                     // resume stream (eg browser tab reactivated)
)

// Sent by client over websocket
type webSocketJSON struct {
	Command string `json:"command"`
}

// Queued data that must be sent over the websocket.
// Exactly one of scene or frame is non-nil.
type webSocketSendPacket struct {
	scene *overlay.Scene
	frame *framesink.FrameResult
}

// TEXT frames carry this JSON. If the streamer was created with sendPNG, then every
// "scene" message is followed by a BINARY frame with the rasterized scene.
type webSocketSendStringMessage struct {
	Type  string                 `json:"type"` // "scene" or "frame"
	Scene *overlay.Scene         `json:"scene,omitempty"`
	Frame *framesink.FrameResult `json:"frame,omitempty"`
}

// Number of messages that we will buffer on the send side, before dropping them.
// Scenes are produced at the animation rate, so a slow client will drop some, which is fine,
// because each scene is complete.
const WebSocketSendBufferSize = 30

// Size of the channel between the surface goroutine and our main loop
const incomingBufferSize = 30

var nextWebSocketStreamerID int64

type OverlayWebSocketStreamer struct {
	log           log.Log
	streamerID    int64 // Intended to aid in logging/debugging
	sendPNG       bool
	incoming      chan any
	closed        atomic.Bool
	paused        atomic.Bool
	fromWebSocket chan webSocketMsg
	sendQueue     chan webSocketSendPacket
	nDropped      atomic.Int64
	nSent         int64
	lastDropMsg   time.Time
	lastLogTime   time.Time
}

// RunOverlayWebSocketStreamer streams scenes and frame results from surf to conn, until
// the client disconnects. It blocks until then.
func RunOverlayWebSocketStreamer(logger log.Log, conn *websocket.Conn, surf *surface.Surface, sendPNG bool) {
	streamerID := atomic.AddInt64(&nextWebSocketStreamerID, 1)

	streamer := &OverlayWebSocketStreamer{
		log:        log.NewPrefixLogger(logger, fmt.Sprintf("Overlay WebSocket %v", streamerID)),
		streamerID: streamerID,
		sendPNG:    sendPNG,
		incoming:   make(chan any, incomingBufferSize),
		sendQueue:  make(chan webSocketSendPacket, WebSocketSendBufferSize),
	}
	streamer.run(conn, surf)
}

// OnEvent is called on the surface goroutine, so it must never block
func (s *OverlayWebSocketStreamer) OnEvent(sender *event.Sender, ev any) {
	if s.closed.Load() || s.paused.Load() {
		return
	}
	select {
	case s.incoming <- ev:
	default:
		s.nDropped.Add(1)
	}
}

func (s *OverlayWebSocketStreamer) enqueue(pkt webSocketSendPacket) {
	now := time.Now()
	if len(s.sendQueue) >= WebSocketSendBufferSize {
		n := s.nDropped.Add(1)
		if now.Sub(s.lastDropMsg) > 5*time.Second {
			s.log.Infof("Dropped %v/%v messages", n, n+s.nSent)
			s.lastDropMsg = now
		}
		return
	}
	s.nSent++
	if now.Sub(s.lastLogTime) > 60*time.Second {
		s.log.Infof("Sent %v/%v messages", s.nSent, s.nDropped.Load()+s.nSent)
		s.lastLogTime = now
	}
	s.sendQueue <- pkt
}

func (s *OverlayWebSocketStreamer) onEvent(ev any) {
	switch v := ev.(type) {
	case *overlay.Scene:
		s.enqueue(webSocketSendPacket{scene: v})
	case *framesink.FrameResult:
		s.enqueue(webSocketSendPacket{frame: v})
	}
}

// onEvents sends every frame result, but only the newest scene.
func (s *OverlayWebSocketStreamer) onEvents(events []any) {
	lastScene := -1
	for i, ev := range events {
		if _, ok := ev.(*overlay.Scene); ok {
			lastScene = i
		}
	}
	for i, ev := range events {
		if _, isScene := ev.(*overlay.Scene); isScene && i != lastScene {
			continue
		}
		s.onEvent(ev)
	}
}

func (s *OverlayWebSocketStreamer) run(conn *websocket.Conn, surf *surface.Surface) {
	defer conn.Close()

	s.fromWebSocket = make(chan webSocketMsg, 1)
	go s.webSocketReader(conn)
	go s.webSocketWriter(conn)

	// Start with whatever is on screen right now
	if scene := surf.LatestScene(); scene != nil {
		s.onEvent(scene)
	}

	surf.SceneListeners.AddListener(s)
	surf.FrameListeners.AddListener(s)
	defer surf.SceneListeners.RemoveListener(s)
	defer surf.FrameListeners.RemoveListener(s)

	for !s.closed.Load() {
		select {
		case ev := <-s.incoming:
			pending := append([]any{ev}, gen.DrainChannelIntoSlice(s.incoming)...)
			if !s.paused.Load() {
				s.onEvents(pending)
			}
		case wsMsg, ok := <-s.fromWebSocket:
			if !ok {
				s.log.Infof("Closed by client")
				s.closed.Store(true)
				continue
			}
			switch wsMsg {
			case webSocketMsgPause:
				s.paused.Store(true)
			case webSocketMsgResume:
				s.paused.Store(false)
				if scene := surf.LatestScene(); scene != nil {
					s.onEvent(scene)
				}
			}
		}
	}
	close(s.sendQueue)
}

// Read from the websocket and post to our own channel, so that we can
// run a single loop that handles reads from websocket and events from the surface.
func (s *OverlayWebSocketStreamer) webSocketReader(conn *websocket.Conn) {
	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			break
		}
		if msgType == websocket.TextMessage {
			msg := webSocketJSON{}
			if err := json.Unmarshal(data, &msg); err != nil {
				s.log.Infof("webSocketReader failed to decode JSON: %v", err)
			} else {
				s.log.Debugf("Received %v command from websocket", msg.Command)
				switch msg.Command {
				case "pause":
					s.fromWebSocket <- webSocketMsgPause
				case "resume":
					s.fromWebSocket <- webSocketMsgResume
				default:
					s.log.Infof("Unknown websocket message from client: '%v'", msg.Command)
				}
			}
		}
	}
	close(s.fromWebSocket)
}

// Run a thread that is responsible for writing to the websocket.
// We run this on a separate thread so that a slow client can't
// hold up the surface goroutine.
func (s *OverlayWebSocketStreamer) webSocketWriter(conn *websocket.Conn) {
	for {
		pkt, more := <-s.sendQueue
		if !more || s.closed.Load() {
			break
		}
		if s.paused.Load() {
			// When paused, drop all queued messages
			continue
		}
		out := webSocketSendStringMessage{}
		if pkt.scene != nil {
			out.Type = "scene"
			out.Scene = pkt.scene
		} else {
			out.Type = "frame"
			out.Frame = pkt.frame
		}
		j, err := json.Marshal(&out)
		if err != nil {
			s.log.Errorf("Failed to marshal websocket string message: %v", err)
			continue
		}
		if err := conn.WriteMessage(websocket.TextMessage, j); err != nil {
			s.log.Infof("Error writing to websocket: %v", err)
			continue
		}
		if s.sendPNG && pkt.scene != nil {
			png, err := overlay.EncodePNG(pkt.scene)
			if err != nil {
				s.log.Errorf("Failed to encode scene: %v", err)
				continue
			}
			if err := conn.WriteMessage(websocket.BinaryMessage, png); err != nil {
				s.log.Infof("Error writing to websocket: %v", err)
			}
		}
	}
}

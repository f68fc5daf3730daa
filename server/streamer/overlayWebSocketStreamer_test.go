package streamer

import (
	"bytes"
	"encoding/json"
	"image/png"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/cyclopcam/warmcold/server/framesink"
	"github.com/cyclopcam/warmcold/server/log"
	"github.com/cyclopcam/warmcold/server/surface"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

type received struct {
	Type  string                 `json:"type"`
	Frame *framesink.FrameResult `json:"frame"`
}

func TestOverlayStreamer(t *testing.T) {
	opts := surface.DefaultOptions()
	opts.Width = 200
	opts.Height = 300
	opts.IndicatorWidth = 200
	surf := surface.Start(log.NewTestingLog(t), opts)
	t.Cleanup(surf.Close)

	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		RunOverlayWebSocketStreamer(log.NewTestingLog(t), conn, surf, true)
	}))
	t.Cleanup(srv.Close)

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	// The current scene is sent immediately, followed by its PNG
	msgType, data, err := conn.ReadMessage()
	require.NoError(t, err)
	require.Equal(t, websocket.TextMessage, msgType)
	msg := received{}
	require.NoError(t, json.Unmarshal(data, &msg))
	require.Equal(t, "scene", msg.Type)

	msgType, data, err = conn.ReadMessage()
	require.NoError(t, err)
	require.Equal(t, websocket.BinaryMessage, msgType)
	img, err := png.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	require.Equal(t, 200, img.Bounds().Dx())

	// Keep publishing until the streamer has registered as a listener and forwarded a frame
	gen := surf.BeginGeneration()
	done := make(chan struct{})
	defer close(done)
	go func() {
		for {
			select {
			case <-done:
				return
			case <-time.After(10 * time.Millisecond):
				surf.Publish(gen, surface.Update{Event: &framesink.FrameResult{FrameID: 42, Generation: gen}})
			}
		}
	}()

	for {
		msgType, data, err = conn.ReadMessage()
		require.NoError(t, err)
		if msgType != websocket.TextMessage {
			continue
		}
		msg = received{}
		require.NoError(t, json.Unmarshal(data, &msg))
		if msg.Type == "frame" {
			require.EqualValues(t, 42, msg.Frame.FrameID)
			break
		}
	}
}

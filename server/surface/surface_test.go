package surface

import (
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/cyclopcam/warmcold/pkg/event"
	"github.com/cyclopcam/warmcold/pkg/nn"
	"github.com/cyclopcam/warmcold/pkg/overlay"
	"github.com/cyclopcam/warmcold/server/log"
	"github.com/stretchr/testify/require"
)

func det(label string, conf float32) nn.Detection {
	return nn.Detection{
		Box:      nn.RectF{Left: 10, Top: 20, Right: 110, Bottom: 220},
		Category: nn.Category{Label: label, Confidence: conf},
	}
}

func startTestSurface(t *testing.T) (*Surface, *clock.Mock) {
	mock := clock.NewMock()
	opts := DefaultOptions()
	opts.Clock = mock
	opts.BoxesVisible = true
	opts.Width = 1080
	opts.Height = 1412
	s := Start(log.NewTestingLog(t), opts)
	t.Cleanup(s.Close)
	return s, mock
}

// state reads goroutine-owned fields, on the surface goroutine
func state(s *Surface) (ticks int64, animating bool, scale float64) {
	done := make(chan struct{})
	s.Post(func() {
		ticks = s.nTicks
		animating = s.animating
		scale = s.scaleFactor
		close(done)
	})
	<-done
	return
}

// step advances the clock by one frame, and waits for the tick to be processed
func step(t *testing.T, s *Surface, mock *clock.Mock) {
	before, _, _ := state(s)
	mock.Add(DefaultFrameInterval)
	require.Eventually(t, func() bool {
		n, _, _ := state(s)
		return n > before
	}, time.Second, time.Millisecond)
}

func animateToRest(t *testing.T, s *Surface, mock *clock.Mock) int {
	n := 0
	for {
		_, animating, _ := state(s)
		if !animating {
			return n
		}
		step(t, s, mock)
		n++
		require.Less(t, n, 1000)
	}
}

func TestScoreAnimation(t *testing.T) {
	s, mock := startTestSurface(t)
	s.UpdateScore([]nn.Detection{det("cat", 0.9), det("bad_frame", 0.3)})
	s.Flush()
	require.InDelta(t, 1.2, s.LatestScene().Target, 1e-6)
	require.Equal(t, 0.0, s.LatestScene().Score)

	require.Equal(t, 12, animateToRest(t, s, mock))
	require.InDelta(t, 1.2, s.LatestScene().Score, 1e-6)

	// The ticker stops once settled
	ticks, _, _ := state(s)
	mock.Add(10 * DefaultFrameInterval)
	s.Flush()
	after, _, _ := state(s)
	require.Equal(t, ticks, after)

	// Same target again does not restart the animation
	s.UpdateScore([]nn.Detection{det("cat", 0.9), det("bad_frame", 0.3)})
	_, animating, _ := state(s)
	require.False(t, animating)
}

func TestEmptyBatchClearsBoxesAndDecays(t *testing.T) {
	s, mock := startTestSurface(t)
	gen := s.BeginGeneration()
	require.True(t, s.Publish(gen, Update{Detections: []nn.Detection{det("cat", 0.9), det("bad_frame", 0.3)}, ImageWidth: 540, ImageHeight: 706}))
	s.Flush()
	require.Len(t, s.LatestScene().Boxes, 6)
	animateToRest(t, s, mock)

	require.True(t, s.Publish(gen, Update{Detections: []nn.Detection{}, ImageWidth: 540, ImageHeight: 706}))
	s.Flush()
	scene := s.LatestScene()
	require.Empty(t, scene.Boxes)
	require.Equal(t, 0.0, scene.Target)
	require.Equal(t, 12, animateToRest(t, s, mock))
	require.Equal(t, 0.0, s.LatestScene().Score)
}

func TestScaleFactor(t *testing.T) {
	s, _ := startTestSurface(t)
	s.SetResults([]nn.Detection{det("cat", 0.9)}, 706, 540)
	_, _, scale := state(s)
	require.Equal(t, 2.0, scale)
	boxes := s.LatestScene().Boxes
	require.Equal(t, overlay.Rect{X1: 20, Y1: 40, X2: 220, Y2: 440}, boxes[0].Rect)

	// Both dimensions are considered, and the larger ratio wins
	s.SetResults([]nn.Detection{det("cat", 0.9)}, 1412, 270)
	_, _, scale = state(s)
	require.Equal(t, 4.0, scale)

	s.SetBoxesVisible(false)
	s.Flush()
	require.Empty(t, s.LatestScene().Boxes)

	s.SetBoxesVisible(true)
	s.Clear()
	s.Flush()
	require.Empty(t, s.LatestScene().Boxes)

	s.SetResults([]nn.Detection{det("cat", 0.9)}, 706, 540)
	_, _, scale = state(s)
	require.Equal(t, 2.0, scale)

	// A resize rescales the existing boxes without waiting for new results
	s.Resize(540, 706, 540)
	s.Flush()
	require.Equal(t, 540, s.LatestScene().Width)
	require.Equal(t, 540, s.LatestScene().IndicatorWidth)
	_, _, scale = state(s)
	require.Equal(t, 1.0, scale)
	boxes = s.LatestScene().Boxes
	require.Len(t, boxes, 1)
	require.Equal(t, overlay.Rect{X1: 10, Y1: 20, X2: 110, Y2: 220}, boxes[0].Rect)
}

type recorder struct {
	lock   sync.Mutex
	events []any
}

func (r *recorder) OnEvent(sender *event.Sender, ev any) {
	r.lock.Lock()
	r.events = append(r.events, ev)
	r.lock.Unlock()
}

func TestStaleGenerationDiscarded(t *testing.T) {
	s, _ := startTestSurface(t)
	rec := &recorder{}
	s.FrameListeners.AddListener(rec)

	old := s.BeginGeneration()
	current := s.BeginGeneration()
	require.False(t, s.Publish(old, Update{Detections: []nn.Detection{det("cat", 0.9)}, Event: "old"}))

	// Posted while current, but the session ends before it is applied
	hold := make(chan struct{})
	s.Post(func() { <-hold })
	require.True(t, s.Publish(current, Update{Detections: []nn.Detection{det("cat", 0.9)}, Event: "late"}))
	s.BeginGeneration()
	close(hold)
	s.Flush()

	require.Empty(t, rec.events)
	require.Empty(t, s.LatestScene().Boxes)
	require.Equal(t, 0.0, s.LatestScene().Target)

	gen := s.Generation()
	require.True(t, s.Publish(gen, Update{Detections: []nn.Detection{det("cat", 0.9)}, Event: "ok"}))
	s.Flush()
	require.Equal(t, []any{"ok"}, rec.events)
}

func TestResetScore(t *testing.T) {
	s, mock := startTestSurface(t)
	s.UpdateScore([]nn.Detection{det("cat", 2)})
	step(t, s, mock)
	s.ResetScore()
	s.Flush()
	scene := s.LatestScene()
	require.Equal(t, 0.0, scene.Score)
	require.Equal(t, 0.0, scene.Target)
	_, animating, _ := state(s)
	require.False(t, animating)
}

func TestPostAfterClose(t *testing.T) {
	s, _ := startTestSurface(t)
	s.Close()
	require.False(t, s.Post(func() {}))
	s.Flush()
}

func TestLayout(t *testing.T) {
	l := LayoutForScreen(1080, 2400)
	require.Equal(t, 300, l.OverlayY)
	require.Equal(t, 1411, l.OverlayHeight)
	require.Equal(t, 50, l.IndicatorY)
	require.Equal(t, 220, l.IndicatorHeight)
	require.Equal(t, 1411, l.Options(1080).Height)
}

package session

import (
	"errors"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/cyclopcam/warmcold/pkg/engine"
	"github.com/cyclopcam/warmcold/pkg/nn"
	"github.com/cyclopcam/warmcold/server/capture"
	"github.com/cyclopcam/warmcold/server/config"
	"github.com/cyclopcam/warmcold/server/log"
	"github.com/cyclopcam/warmcold/server/surface"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Model.Path = "labels.json"
	cfg.Model.Metadata = "model.json"
	cfg.Geometry.Anchor = "center"
	cfg.Geometry.OffsetY = 0
	cfg.Geometry.Rotation = 0
	cfg.Geometry.TargetWidth = 30
	cfg.Geometry.TargetHeight = 40
	cfg.Source.Width = 300
	cfg.Source.Height = 400
	cfg.Source.IntervalMS = 100
	cfg.Overlay.ShowBoxes = true
	return cfg
}

func replayLoader(setup *nn.ModelSetup) (nn.Engine, error) {
	modelConfig := &nn.ModelConfig{Architecture: "yolov8", Width: 30, Height: 40, Classes: []string{"bad_frame", "hot"}}
	return engine.NewReplayFromFrames(modelConfig, []*nn.ImageLabels{
		{Objects: []nn.RawDetection{{Label: "hot", Confidence: 0.8, Box: nn.RectF{Left: 0.1, Top: 0.1, Right: 0.5, Bottom: 0.5}}}},
	}), nil
}

func newTestManager(t *testing.T, loader nn.Loader) (*Manager, *surface.Surface, *clock.Mock) {
	surf := surface.Start(log.NewTestingLog(t), surface.DefaultOptions())
	t.Cleanup(surf.Close)
	mock := clock.NewMock()
	logger := log.NewTestingLog(t)
	m := NewManager(logger, surf, loader, DefaultSourceFactory(logger, mock))
	t.Cleanup(m.StopCurrent)
	return m, surf, mock
}

func TestStartStop(t *testing.T) {
	m, surf, mock := newTestManager(t, replayLoader)

	h, err := m.Start(testConfig())
	require.NoError(t, err)
	require.NotEqual(t, uuid.Nil, h.ID)
	require.Equal(t, h, m.Current())
	require.Equal(t, 30, h.ModelConfig().Width)

	_, err = m.Start(testConfig())
	require.ErrorIs(t, err, ErrSessionActive)

	mock.Add(100 * time.Millisecond)
	require.Eventually(t, func() bool {
		scene := surf.LatestScene()
		return scene != nil && len(scene.Boxes) == 3 && scene.Target > 0
	}, 2*time.Second, time.Millisecond)
	require.EqualValues(t, 1, h.Stats().Published)

	require.NoError(t, m.Stop(h))
	require.Nil(t, m.Current())
	surf.Flush()
	scene := surf.LatestScene()
	require.Empty(t, scene.Boxes)
	require.Equal(t, 0.0, scene.Score)
	require.Equal(t, 0.0, scene.Target)

	require.ErrorIs(t, m.Stop(h), ErrNotCurrent)
}

func TestReconfigure(t *testing.T) {
	m, _, _ := newTestManager(t, replayLoader)

	h1, err := m.Start(testConfig())
	require.NoError(t, err)

	cfg := testConfig()
	cfg.Detector.Threshold = 0.7
	h2, err := m.Reconfigure(cfg)
	require.NoError(t, err)
	require.NotEqual(t, h1.ID, h2.ID)
	require.Equal(t, h2, m.Current())
	require.EqualValues(t, 0.7, h2.Config.Detector.Threshold)
	require.ErrorIs(t, m.Stop(h1), ErrNotCurrent)

	// An invalid config leaves the running session alone
	bad := testConfig()
	bad.Detector.Threads = 10
	_, err = m.Reconfigure(bad)
	require.Error(t, err)
	require.Equal(t, h2, m.Current())
}

func TestStartFailures(t *testing.T) {
	m, _, _ := newTestManager(t, func(setup *nn.ModelSetup) (nn.Engine, error) {
		return nil, errors.New("model file is corrupt")
	})
	_, err := m.Start(testConfig())
	require.ErrorContains(t, err, "model file is corrupt")
	require.Nil(t, m.Current())

	m, _, _ = newTestManager(t, replayLoader)
	cfg := testConfig()
	cfg.Source.Kind = config.SourceDir
	cfg.Source.Dir = t.TempDir() + "/missing"
	_, err = m.Start(cfg)
	require.Error(t, err)
	require.Nil(t, m.Current())
}

func TestDefaultSourceFactory(t *testing.T) {
	factory := DefaultSourceFactory(log.NewTestingLog(t), clock.NewMock())
	cfg := testConfig()
	src, err := factory(cfg)
	require.NoError(t, err)
	require.IsType(t, &capture.SyntheticSource{}, src)

	cfg.Source.Kind = config.SourceDir
	cfg.Source.Dir = t.TempDir()
	src, err = factory(cfg)
	require.NoError(t, err)
	require.IsType(t, &capture.DirSource{}, src)

	cfg.Source.Kind = "camera"
	_, err = factory(cfg)
	require.Error(t, err)
}

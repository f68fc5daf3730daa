package detect

import (
	"errors"
	"image"
	"testing"

	"github.com/cyclopcam/warmcold/pkg/geometry"
	"github.com/cyclopcam/warmcold/pkg/nn"
	"github.com/cyclopcam/warmcold/server/log"
	"github.com/stretchr/testify/require"
)

type fakeEngine struct {
	config *nn.ModelConfig
	dets   []nn.RawDetection
	err    error
	closed bool
}

func (f *fakeEngine) Close() { f.closed = true }

func (f *fakeEngine) Config() *nn.ModelConfig { return f.config }

func (f *fakeEngine) Detect(img *image.NRGBA) ([]nn.RawDetection, *nn.EngineStats, error) {
	if f.err != nil {
		return nil, nil, f.err
	}
	return f.dets, &nn.EngineStats{}, nil
}

func loaderFor(e *fakeEngine) nn.Loader {
	return func(setup *nn.ModelSetup) (nn.Engine, error) {
		return e, nil
	}
}

func testPlan(t *testing.T) *geometry.Plan {
	policy := geometry.DefaultPolicy()
	policy.TargetWidth = 640
	policy.TargetHeight = 480
	plan, err := geometry.NewPlan(1080, 2400, policy)
	require.NoError(t, err)
	return plan
}

func TestAdapterMapsToDisplay(t *testing.T) {
	plan := testPlan(t)
	// Crop is (0,300)-(1080,1740), rotated to 1440 x 1080, scaled to 640 x 480.
	// A box covering the whole model input maps to the whole crop.
	eng := &fakeEngine{
		config: &nn.ModelConfig{Width: 640, Height: 480, Classes: []string{"hot"}},
		dets: []nn.RawDetection{
			{Box: nn.RectF{Left: 0, Top: 0, Right: 1, Bottom: 1}, Label: "hot", Confidence: 0.9},
			{Box: nn.RectF{Left: 0, Top: 0, Right: 0.5, Bottom: 0.5}, Label: "hot", Confidence: 0.4}, // below threshold
		},
	}
	a, err := NewAdapter(log.NewTestingLog(t), loaderFor(eng), nn.NewModelSetup(), DefaultOptions())
	require.NoError(t, err)
	defer a.Close()

	img := image.NewNRGBA(image.Rect(0, 0, 640, 480))
	res, err := a.Detect(img, plan)
	require.NoError(t, err)
	require.Len(t, res.Detections, 1)
	require.Equal(t, 1080, res.ImageWidth)
	require.Equal(t, 2400, res.ImageHeight)
	require.Equal(t, 640, res.ModelWidth)
	box := res.Detections[0].Box
	require.InDelta(t, 0, box.Left, 1e-2)
	require.InDelta(t, 300, box.Top, 1e-2)
	require.InDelta(t, 1080, box.Right, 1e-2)
	require.InDelta(t, 1740, box.Bottom, 1e-2)
	require.Equal(t, "hot", res.Detections[0].Category.Label)

	// The model's top-left corner is the crop's top-right corner
	eng.dets = []nn.RawDetection{{Box: nn.RectF{Left: 0, Top: 0, Right: 0.25, Bottom: 0.25}, Label: "hot", Confidence: 0.9}}
	res, err = a.Detect(img, plan)
	require.NoError(t, err)
	box = res.Detections[0].Box
	require.InDelta(t, 1080-270, box.Left, 1e-2)
	require.InDelta(t, 300, box.Top, 1e-2)
	require.InDelta(t, 1080, box.Right, 1e-2)
	require.InDelta(t, 300+360, box.Bottom, 1e-2)

	a.Close()
	require.True(t, eng.closed)
}

func TestAdapterReferenceMapping(t *testing.T) {
	plan := testPlan(t)
	eng := &fakeEngine{
		config: &nn.ModelConfig{Width: 640, Height: 480, Classes: []string{"hot"}},
		dets:   []nn.RawDetection{{Box: nn.RectF{Left: 0.5, Top: 0.5, Right: 1, Bottom: 1}, Label: "hot", Confidence: 0.9}},
	}
	opts := DefaultOptions()
	opts.Mapping = BoxMappingReference
	a, err := NewAdapter(log.NewTestingLog(t), loaderFor(eng), nn.NewModelSetup(), opts)
	require.NoError(t, err)
	res, err := a.Detect(image.NewNRGBA(image.Rect(0, 0, 640, 480)), plan)
	require.NoError(t, err)
	// Rotated 90: height is the base, width = 480 * 3/4
	require.Equal(t, 360, res.ImageWidth)
	require.Equal(t, 480, res.ImageHeight)
	require.Equal(t, nn.RectF{Left: 180, Top: 240, Right: 360, Bottom: 480}, res.Detections[0].Box)
}

func TestReferenceSizeMatchesCropAspect(t *testing.T) {
	aspect := geometry.DefaultAspect
	for _, rot := range []geometry.Rotation{geometry.Rotate0, geometry.Rotate90, geometry.Rotate180, geometry.Rotate270} {
		w, h := ReferenceSize(480, 480, rot, aspect)
		require.Equal(t, w*aspect.H, h*aspect.W, "%v", rot)
	}
	w, h := ReferenceSize(300, 400, geometry.Rotate0, aspect)
	require.Equal(t, 300, w)
	require.Equal(t, 400, h)
	// Height follows the crop aspect, not a fixed landscape 4:3 (which would give 225)
	require.NotEqual(t, 300*3/4, h)
	w, h = ReferenceSize(300, 999, geometry.Rotate180, aspect)
	require.Equal(t, 300, w)
	require.Equal(t, 400, h)
	w, h = ReferenceSize(400, 300, geometry.Rotate270, aspect)
	require.Equal(t, 225, w)
	require.Equal(t, 300, h)
}

func TestAspectMismatch(t *testing.T) {
	plan := testPlan(t)
	eng := &fakeEngine{config: &nn.ModelConfig{Width: 640, Height: 480, Classes: []string{"hot"}}}
	opts := DefaultOptions()
	opts.Aspect = geometry.Aspect{W: 9, H: 16}
	a, err := NewAdapter(log.NewTestingLog(t), loaderFor(eng), nn.NewModelSetup(), opts)
	require.NoError(t, err)
	_, err = a.Detect(image.NewNRGBA(image.Rect(0, 0, 640, 480)), plan)
	require.ErrorIs(t, err, ErrAspectMismatch)
}

func TestAdapterErrors(t *testing.T) {
	loadErr := errors.New("no such model")
	_, err := NewAdapter(log.NewTestingLog(t), func(setup *nn.ModelSetup) (nn.Engine, error) {
		return nil, loadErr
	}, nn.NewModelSetup(), DefaultOptions())
	require.ErrorIs(t, err, loadErr)

	eng := &fakeEngine{config: &nn.ModelConfig{Width: 640, Height: 480}, err: errors.New("inference failed")}
	a, err := NewAdapter(log.NewTestingLog(t), loaderFor(eng), nn.NewModelSetup(), DefaultOptions())
	require.NoError(t, err)
	_, err = a.Detect(image.NewNRGBA(image.Rect(0, 0, 640, 480)), testPlan(t))
	require.ErrorContains(t, err, "inference failed")
}

package capture

import (
	"image"
	"image/color"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/cyclopcam/warmcold/pkg/geometry"
	"github.com/cyclopcam/warmcold/server/log"
	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/require"
)

func frameWithID(id int64) *geometry.Frame {
	return geometry.NewFrame(image.NewNRGBA(image.Rect(0, 0, 4, 4)), id, time.Now())
}

func TestLatestSlot(t *testing.T) {
	s := LatestSlot{}
	_, err := s.AcquireLatest()
	require.ErrorIs(t, err, ErrNoFrame)

	s.Put(frameWithID(1))
	s.Put(frameWithID(2))
	s.Put(frameWithID(3))
	f, err := s.AcquireLatest()
	require.NoError(t, err)
	require.Equal(t, int64(3), f.ID)

	// Same frame is not handed out twice
	_, err = s.AcquireLatest()
	require.ErrorIs(t, err, ErrNoFrame)

	put, dropped := s.Counts()
	require.Equal(t, int64(3), put)
	require.Equal(t, int64(2), dropped)

	s.Put(frameWithID(4))
	f, err = s.AcquireLatest()
	require.NoError(t, err)
	require.Equal(t, int64(4), f.ID)
	_, dropped = s.Counts()
	require.Equal(t, int64(2), dropped)
}

func TestLatestSlotFrameIDZero(t *testing.T) {
	s := LatestSlot{}
	s.Put(frameWithID(0))
	f, err := s.AcquireLatest()
	require.NoError(t, err)
	require.Equal(t, int64(0), f.ID)
	_, err = s.AcquireLatest()
	require.ErrorIs(t, err, ErrNoFrame)

	// Frames that reuse an ID are still new frames
	s.Put(frameWithID(0))
	s.Put(frameWithID(0))
	_, err = s.AcquireLatest()
	require.NoError(t, err)
	_, dropped := s.Counts()
	require.Equal(t, int64(1), dropped)

	s.Put(frameWithID(5))
	s.Clear()
	_, err = s.AcquireLatest()
	require.ErrorIs(t, err, ErrNoFrame)
}

func TestSyntheticSource(t *testing.T) {
	mock := clock.NewMock()
	src := NewSyntheticSource(log.NewTestingLog(t), mock, 120, 160, 100*time.Millisecond)
	var notified atomic.Int32
	require.NoError(t, src.Start(func() { notified.Add(1) }))

	mock.Add(100 * time.Millisecond)
	require.Eventually(t, func() bool { return notified.Load() >= 1 }, time.Second, time.Millisecond)

	f, err := src.AcquireLatest()
	require.NoError(t, err)
	require.Equal(t, 120, f.Width)
	require.Equal(t, 160, f.Height)
	require.Equal(t, 16*4, f.RowPadding())
	require.NoError(t, f.Validate())

	_, err = src.AcquireLatest()
	require.ErrorIs(t, err, ErrNoFrame)

	// Emit skips the timer, and still notifies the consumer
	before := notified.Load()
	emitted := src.Emit()
	require.Equal(t, before+1, notified.Load())
	require.Equal(t, f.ID+1, emitted.ID)
	f, err = src.AcquireLatest()
	require.NoError(t, err)
	require.Same(t, emitted, f)

	require.NoError(t, src.Close())
	require.NoError(t, src.Close())

	// After Close there is nobody to notify
	src.Emit()
	require.Equal(t, before+1, notified.Load())
}

func TestDirSource(t *testing.T) {
	dir := t.TempDir()
	img := image.NewNRGBA(image.Rect(0, 0, 30, 40))
	for i := range img.Pix {
		img.Pix[i] = 200
	}
	img.SetNRGBA(0, 0, color.NRGBA{1, 2, 3, 255})
	require.NoError(t, imaging.Save(img, filepath.Join(dir, "existing.png")))

	src := NewDirSource(log.NewTestingLog(t), dir)
	var notified atomic.Int32
	require.NoError(t, src.Start(func() { notified.Add(1) }))
	defer src.Close()

	// The existing file is loaded immediately
	require.Equal(t, int32(1), notified.Load())
	f, err := src.AcquireLatest()
	require.NoError(t, err)
	require.Equal(t, 30, f.Width)
	require.Equal(t, 40, f.Height)
	fimg, err := f.Image()
	require.NoError(t, err)
	require.Equal(t, color.NRGBA{1, 2, 3, 255}, fimg.NRGBAAt(0, 0))

	// A new file is picked up by the watcher
	require.NoError(t, imaging.Save(imaging.Resize(img, 60, 80, imaging.NearestNeighbor), filepath.Join(dir, "next.png")))
	require.Eventually(t, func() bool {
		f, err := src.AcquireLatest()
		return err == nil && f.Width == 60
	}, 5*time.Second, 10*time.Millisecond)

	require.Error(t, NewDirSource(log.NewTestingLog(t), filepath.Join(dir, "missing")).Start(func() {}))
}

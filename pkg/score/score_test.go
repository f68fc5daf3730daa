package score

import (
	"math"
	"math/rand"
	"testing"

	"github.com/cyclopcam/warmcold/pkg/nn"
	"github.com/stretchr/testify/require"
)

func det(label string, conf float32) nn.Detection {
	return nn.Detection{Category: nn.Category{Label: label, Confidence: conf}}
}

func TestTargetScore(t *testing.T) {
	dets := []nn.Detection{det("cat", 0.9), det("bad_frame", 0.3)}
	require.InDelta(t, 1.2, TargetScore(dets, DefaultNegativeLabel, DefaultMultiplier), 1e-6)

	// Case insensitive negative label
	dets = []nn.Detection{det("cat", 0.2), det("BAD_FRAME", 0.9)}
	require.Equal(t, 0.0, TargetScore(dets, DefaultNegativeLabel, DefaultMultiplier))

	require.Equal(t, 0.0, TargetScore(nil, DefaultNegativeLabel, DefaultMultiplier))
}

func TestAggregatorCeiling(t *testing.T) {
	a := NewAggregator()
	require.Equal(t, InitialMaxScore, a.MaxObserved())

	rng := rand.New(rand.NewSource(3))
	prev := a.MaxObserved()
	for i := 0; i < 500; i++ {
		dets := []nn.Detection{}
		n := rng.Intn(6)
		for j := 0; j < n; j++ {
			label := "hot"
			if rng.Intn(3) == 0 {
				label = "bad_frame"
			}
			dets = append(dets, det(label, rng.Float32()*3))
		}
		s := a.Aggregate(dets)
		require.GreaterOrEqual(t, s, 0.0)
		require.GreaterOrEqual(t, a.MaxObserved(), prev)
		require.GreaterOrEqual(t, a.MaxObserved(), s)
		prev = a.MaxObserved()
	}
	require.Greater(t, a.MaxObserved(), InitialMaxScore)

	a.Reset()
	require.Equal(t, InitialMaxScore, a.MaxObserved())
}

func TestSmootherConvergesInTwelveTicks(t *testing.T) {
	s := NewSmoother()
	s.SetTarget(1.2)
	ticks := 0
	for s.Tick() {
		ticks++
		require.Less(t, ticks, 100)
	}
	// The final call snaps to the target and reports that animation has stopped
	ticks++
	require.Equal(t, 12, ticks)
	require.Equal(t, 1.2, s.Current())
	require.True(t, s.Settled())
}

func TestSmootherReversesToZero(t *testing.T) {
	s := NewSmoother()
	s.SetTarget(1.2)
	for s.Tick() {
	}
	s.SetTarget(0)
	ticks := 1
	for s.Tick() {
		ticks++
	}
	require.Equal(t, 12, ticks)
	require.Equal(t, 0.0, s.Current())
}

func TestSmootherBoundAndNoOvershoot(t *testing.T) {
	rng := rand.New(rand.NewSource(4))
	for i := 0; i < 200; i++ {
		s := NewSmoother()
		s.current = rng.Float64()*20 - 10
		target := rng.Float64()*20 - 10
		s.SetTarget(target)
		start := s.current
		bound := int(math.Ceil(math.Abs(target-start)/s.MaxStep)) + 1
		ticks := 0
		for {
			before := s.current
			moving := s.Tick()
			ticks++
			require.LessOrEqual(t, math.Abs(s.current-before), s.MaxStep*(1+1e-6))
			// never past the target
			if target >= start {
				require.LessOrEqual(t, s.current, target)
			} else {
				require.GreaterOrEqual(t, s.current, target)
			}
			if !moving {
				break
			}
		}
		require.LessOrEqual(t, ticks, bound)
		require.Equal(t, target, s.current)

		// Once settled, ticking is idempotent
		require.False(t, s.Tick())
		require.Equal(t, target, s.current)
	}
}

func TestSmootherReset(t *testing.T) {
	s := NewSmoother()
	s.SetTarget(3)
	s.Tick()
	s.Reset()
	require.Equal(t, 0.0, s.Current())
	require.Equal(t, 0.0, s.Target())
	require.False(t, s.Tick())
}

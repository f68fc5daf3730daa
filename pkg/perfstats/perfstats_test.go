package perfstats

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestTimeAccumulator(t *testing.T) {
	a := TimeAccumulator{}
	require.Equal(t, time.Duration(0), a.Average())
	a.AddSample(10 * time.Millisecond)
	a.AddSample(20 * time.Millisecond)
	require.Equal(t, 15*time.Millisecond, a.Average())
	a.Reset()
	require.Equal(t, int64(0), a.Samples)
}

func TestWindow(t *testing.T) {
	w := NewWindow(5) // rounded up to 8
	require.Equal(t, Summary{}, w.Summary())
	for i := 1; i <= 20; i++ {
		w.Add(time.Duration(i) * time.Millisecond)
	}
	require.Equal(t, 8, w.Len())
	s := w.Summary()
	// Only 13..20 remain
	require.Equal(t, 8, s.Count)
	require.InDelta(t, 16.5, s.Mean, 1e-9)
	require.Equal(t, 20.0, s.Max)
	require.Equal(t, 16.0, s.P50)
	require.Equal(t, 20.0, s.P95)
}

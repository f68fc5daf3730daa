package perfstats

import (
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestUpdate(t *testing.T) {
	var v atomic.Uint64
	Update(&v, 6400)
	require.Equal(t, uint64(6400), v.Load())
	Update(&v, 0)
	require.Equal(t, uint64(6300), v.Load())

	s := PerfStats{}
	Update(&s.InferenceNanoseconds, 2_000_000)
	require.Equal(t, 2.0, s.Snapshot()["inferenceMS"])
	require.Contains(t, s.String(), "inference 2.00 ms")
	s.Reset()
	require.Equal(t, 0.0, s.Snapshot()["inferenceMS"])
}

package gen

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestClamp(t *testing.T) {
	require.Equal(t, 0.1, Clamp(0.05, 0.1, 0.8))
	require.Equal(t, 0.8, Clamp(0.95, 0.1, 0.8))
	require.Equal(t, 3, Clamp(3, 1, 5))
	require.Equal(t, float32(2), Abs(float32(-2)))
	require.Equal(t, -1.0, Sign(-0.3))
	require.Equal(t, 0.0, Sign(0.0))
}

func TestDrainChannel(t *testing.T) {
	ch := make(chan int, 5)
	ch <- 1
	ch <- 2
	ch <- 3
	require.Equal(t, []int{1, 2, 3}, DrainChannelIntoSlice(ch))
	require.Equal(t, []int{}, DrainChannelIntoSlice(ch))
}

func TestCopySlice(t *testing.T) {
	a := []int{1, 2, 3}
	b := CopySlice(a)
	b[0] = 9
	require.Equal(t, 1, a[0])
	require.Nil(t, CopySlice[int](nil))
}

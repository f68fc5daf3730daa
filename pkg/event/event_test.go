package event

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSender(t *testing.T) {
	s := &Sender{}
	got := []any{}
	a := NewFuncListener(func(ev any) { got = append(got, ev) })
	b := NewFuncListener(func(ev any) { got = append(got, "b") })

	s.AddListener(a)
	s.AddListener(a)
	s.AddListener(b)
	require.Equal(t, 2, s.NumListeners())

	s.SendEvent(1)
	require.Equal(t, []any{1, "b"}, got)

	s.RemoveListener(a)
	s.RemoveListener(a)
	require.Equal(t, 1, s.NumListeners())
	s.SendEvent(2)
	require.Equal(t, []any{1, "b", "b"}, got)
}

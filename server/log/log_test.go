package log

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type captureLog struct {
	lines []string
}

func (c *captureLog) Debugf(format string, a ...interface{}) { c.add("D", format, a...) }
func (c *captureLog) Infof(format string, a ...interface{})  { c.add("I", format, a...) }
func (c *captureLog) Warnf(format string, a ...interface{})  { c.add("W", format, a...) }
func (c *captureLog) Errorf(format string, a ...interface{}) { c.add("E", format, a...) }

func (c *captureLog) add(level, format string, a ...interface{}) {
	c.lines = append(c.lines, level+" "+fmt.Sprintf(format, a...))
}

func TestPrefixLogger(t *testing.T) {
	c := &captureLog{}
	p := NewPrefixLogger(c, "FrameSink:")
	p.Infof("frame %v", 3)
	p.Errorf("boom")
	require.Equal(t, []string{"I FrameSink: frame 3", "E FrameSink: boom"}, c.lines)
}

func TestThrottle(t *testing.T) {
	c := &captureLog{}
	th := NewThrottle(time.Hour)
	th.Errorf(c, "fail %v", 1)
	th.Errorf(c, "fail %v", 2)
	th.Errorf(c, "fail %v", 3)
	require.Equal(t, []string{"E fail 1"}, c.lines)

	th.Interval = 0
	th.Errorf(c, "fail %v", 4)
	require.Equal(t, "E fail 4 (2 similar messages suppressed)", c.lines[1])
}

// Package log is the logging surface used by the pipeline.
// The backend is github.com/cyclopcam/logs; this package narrows it to the calls we make,
// and adds prefixing and throttling.
package log

import (
	"sync"
	"testing"
	"time"

	"github.com/cyclopcam/logs"
)

type Log interface {
	Debugf(format string, a ...interface{})
	Infof(format string, a ...interface{})
	Warnf(format string, a ...interface{})
	Errorf(format string, a ...interface{})
}

// NewLog creates the process logger (stdout, or GCP if configured via environment)
func NewLog() (Log, error) {
	return logs.NewLog()
}

func NewTestingLog(t *testing.T) Log {
	return logs.NewTestingLog(t)
}

// Throttle limits how often a repeating message is emitted, so that a hot loop which is
// failing on every frame doesn't flood the log.
type Throttle struct {
	Interval time.Duration

	lock       sync.Mutex
	lastAt     time.Time
	suppressed int
}

func NewThrottle(interval time.Duration) *Throttle {
	return &Throttle{Interval: interval}
}

// Allow returns true if the caller may log now. 'suppressed' is the number of messages
// that were swallowed since the last allowed message.
func (t *Throttle) Allow() (ok bool, suppressed int) {
	t.lock.Lock()
	defer t.lock.Unlock()
	now := time.Now()
	if now.Sub(t.lastAt) < t.Interval {
		t.suppressed++
		return false, 0
	}
	t.lastAt = now
	suppressed = t.suppressed
	t.suppressed = 0
	return true, suppressed
}

// Errorf logs through 'l' if the throttle allows it
func (t *Throttle) Errorf(l Log, format string, a ...interface{}) {
	if ok, suppressed := t.Allow(); ok {
		if suppressed != 0 {
			format += " (%v similar messages suppressed)"
			a = append(a, suppressed)
		}
		l.Errorf(format, a...)
	}
}

// Warnf logs through 'l' if the throttle allows it
func (t *Throttle) Warnf(l Log, format string, a ...interface{}) {
	if ok, suppressed := t.Allow(); ok {
		if suppressed != 0 {
			format += " (%v similar messages suppressed)"
			a = append(a, suppressed)
		}
		l.Warnf(format, a...)
	}
}

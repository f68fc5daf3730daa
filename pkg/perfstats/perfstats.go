// Package perfstats has small helpers for measuring how long things take
package perfstats

import (
	"math"
	"sort"
	"time"

	"github.com/bmharper/ringbuffer"
	"gonum.org/v1/gonum/stat"
)

// Accumulate samples of how long something took
type TimeAccumulator struct {
	Samples int64
	Total   time.Duration
}

func (a *TimeAccumulator) Reset() {
	a.Samples = 0
	a.Total = 0
}

func (a *TimeAccumulator) AddSample(v time.Duration) {
	a.Samples++
	a.Total += v
}

func (a *TimeAccumulator) Average() time.Duration {
	if a.Samples == 0 {
		return 0
	}
	return time.Duration(a.Total.Nanoseconds() / a.Samples)
}

// Window keeps the most recent N durations, for computing percentiles.
// It is not thread safe.
type Window struct {
	samples ringbuffer.RingP[float64] // milliseconds
}

// Summary of a Window, in milliseconds
type Summary struct {
	Count  int     `json:"count"`
	Mean   float64 `json:"mean"`
	StdDev float64 `json:"stdDev"`
	P50    float64 `json:"p50"`
	P95    float64 `json:"p95"`
	Max    float64 `json:"max"`
}

// NewWindow rounds size up to a power of 2
func NewWindow(size int) *Window {
	return &Window{
		samples: ringbuffer.NewRingP[float64](nextPowerOf2(max(size, 2))),
	}
}

func nextPowerOf2(n int) int {
	return 1 << int(math.Ceil(math.Log2(float64(n))))
}

func (w *Window) Add(d time.Duration) {
	w.samples.Add(float64(d.Nanoseconds()) / 1e6)
}

func (w *Window) Len() int {
	return w.samples.Len()
}

func (w *Window) Summary() Summary {
	n := w.samples.Len()
	if n == 0 {
		return Summary{}
	}
	x := make([]float64, n)
	for i := 0; i < n; i++ {
		x[i] = w.samples.Peek(i)
	}
	sort.Float64s(x)
	s := Summary{
		Count: n,
		P50:   stat.Quantile(0.5, stat.Empirical, x, nil),
		P95:   stat.Quantile(0.95, stat.Empirical, x, nil),
		Max:   x[n-1],
	}
	if n > 1 {
		s.Mean, s.StdDev = stat.MeanStdDev(x, nil)
	} else {
		s.Mean = x[0]
	}
	return s
}

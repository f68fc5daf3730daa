// Package score turns a batch of detections into a single warm/cold number,
// and animates a displayed value toward it.
package score

import (
	"strings"

	"github.com/cyclopcam/warmcold/pkg/nn"
)

const DefaultNegativeLabel = "bad_frame"
const DefaultMultiplier = 2.0

// InitialMaxScore is the display ceiling before any larger score has been seen
const InitialMaxScore = 7.0

// TargetScore is max(0, multiplier * sum), where each detection contributes +confidence,
// or -confidence if its label is the negative label (case insensitive).
func TargetScore(dets []nn.Detection, negativeLabel string, multiplier float64) float64 {
	sum := 0.0
	for _, d := range dets {
		if strings.EqualFold(d.Category.Label, negativeLabel) {
			sum -= float64(d.Category.Confidence)
		} else {
			sum += float64(d.Category.Confidence)
		}
	}
	return max(0, multiplier*sum)
}

// Aggregator computes target scores, and remembers the largest score seen,
// which becomes the full-scale value of the indicator.
// It is not thread safe. The render context owns it.
type Aggregator struct {
	NegativeLabel string
	Multiplier    float64

	maxObserved float64
}

func NewAggregator() *Aggregator {
	return &Aggregator{
		NegativeLabel: DefaultNegativeLabel,
		Multiplier:    DefaultMultiplier,
		maxObserved:   InitialMaxScore,
	}
}

// Aggregate returns the target score for this batch of detections
func (a *Aggregator) Aggregate(dets []nn.Detection) float64 {
	s := TargetScore(dets, a.NegativeLabel, a.Multiplier)
	if s > a.maxObserved {
		a.maxObserved = s
	}
	return s
}

// MaxObserved never decreases, except via Reset
func (a *Aggregator) MaxObserved() float64 {
	return a.maxObserved
}

func (a *Aggregator) Reset() {
	a.maxObserved = InitialMaxScore
}

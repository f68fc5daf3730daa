package score

import (
	"github.com/cyclopcam/warmcold/pkg/gen"
)

// DefaultMaxStep is the largest change in displayed score per animation tick
const DefaultMaxStep = 0.1

// A step is considered to reach the target if it is within this relative tolerance,
// so that repeated float addition doesn't produce an extra tiny tick.
const stepTolerance = 1e-9

// Smoother moves a displayed value toward a target at a bounded rate.
// Both fields start at zero. It is not thread safe.
type Smoother struct {
	MaxStep float64

	current float64
	target  float64
}

func NewSmoother() *Smoother {
	return &Smoother{MaxStep: DefaultMaxStep}
}

func (s *Smoother) SetTarget(target float64) {
	s.target = target
}

// Tick advances one animation frame.
// Returns true if the value is still moving, and another tick should be scheduled.
func (s *Smoother) Tick() bool {
	diff := s.target - s.current
	if gen.Abs(diff) > s.MaxStep*(1+stepTolerance) {
		s.current += gen.Sign(diff) * s.MaxStep
		return true
	}
	s.current = s.target
	return false
}

func (s *Smoother) Current() float64 {
	return s.current
}

func (s *Smoother) Target() float64 {
	return s.target
}

// Settled is true when the displayed value has reached the target
func (s *Smoother) Settled() bool {
	return s.current == s.target
}

func (s *Smoother) Reset() {
	s.current = 0
	s.target = 0
}

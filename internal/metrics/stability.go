package metrics

import (
	"github.com/san-kum/chemsim/internal/chem"
	"github.com/san-kum/chemsim/internal/sim"
)

// Stability is the fraction of steps that converged.
type Stability struct {
	name      string
	converged int
	samples   int
}

func NewStability() *Stability {
	return &Stability{
		name: "stability",
	}
}

func (s *Stability) Name() string {
	return s.name
}

func (s *Stability) Observe(step sim.Step) {
	s.samples++
	if step.Result.Status == chem.Converged {
		s.converged++
	}
}

func (s *Stability) Value() float64 {
	if s.samples == 0 {
		return 1.0
	}
	return float64(s.converged) / float64(s.samples)
}

func (s *Stability) Reset() {
	s.converged = 0
	s.samples = 0
}

package metrics

import "github.com/san-kum/chemsim/internal/sim"

// Effort is the mean number of right-hand side evaluations per step.
type Effort struct {
	name    string
	sum     float64
	samples int
}

func NewEffort() *Effort {
	return &Effort{
		name: "effort",
	}
}

func (e *Effort) Name() string {
	return e.name
}

func (e *Effort) Observe(step sim.Step) {
	e.sum += float64(step.Result.Stats.FunctionCalls)
	e.samples++
}

func (e *Effort) Value() float64 {
	if e.samples == 0 {
		return 0
	}
	return e.sum / float64(e.samples)
}

func (e *Effort) Reset() {
	e.sum = 0
	e.samples = 0
}

package sim

import (
	"fmt"

	"github.com/san-kum/chemsim/internal/chem"
)

// Step is what observers and metrics see after every Solve.
type Step struct {
	Index  int
	Time   float64
	Result chem.Result

	// Concentrations holds the mean over grid cells, in species order.
	Concentrations []float64
}

type Metric interface {
	Name() string
	Observe(s Step)
	Value() float64
	Reset()
}

type Observer interface {
	OnStep(s Step)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(Step)

func (f ObserverFunc) OnStep(s Step) { f(s) }

// Initial describes a box applied uniformly to every grid cell.
type Initial struct {
	Conditions     chem.Conditions
	Concentrations map[string]float64
	RateParameters map[string]float64
}

type Config struct {
	Dt       float64
	Duration float64
	Cells    int

	// StopOnFailure ends the run at the first step whose status is neither
	// Converged nor AcceptingUnconvergedIntegration.
	StopOnFailure bool
}

func DefaultConfig() Config {
	return Config{
		Dt:            60,
		Duration:      3600,
		Cells:         1,
		StopOnFailure: true,
	}
}

type Result struct {
	Species        []string
	Times          []float64
	Concentrations [][]float64
	Statuses       []chem.Status
	Stats          chem.Stats
	Metrics        map[string]float64
	StepsTaken     int
	Errors         []error
}

// Final returns the last recorded mean concentration of species, or false.
func (r *Result) Final(species string) (float64, bool) {
	if len(r.Concentrations) == 0 {
		return 0, false
	}
	for i, name := range r.Species {
		if name == species {
			return r.Concentrations[len(r.Concentrations)-1][i], true
		}
	}
	return 0, false
}

type SimError struct {
	Time    float64
	Step    int
	Status  chem.Status
	Message string
}

func (e SimError) Error() string {
	return fmt.Sprintf("step %d (t=%.4f): %s: %s", e.Step, e.Time, e.Status, e.Message)
}

// Package integrators advances groups of grid cells through one chemistry
// time step with stiff implicit schemes.
package integrators

import (
	"math"

	"github.com/san-kum/chemsim/internal/chem"
	"github.com/san-kum/chemsim/internal/kinetics"
)

// Parameters tune step-size control for both schemes.
type Parameters struct {
	AbsoluteTolerance float64 `yaml:"absolute_tolerance"`
	RelativeTolerance float64 `yaml:"relative_tolerance"`

	HMin   float64 `yaml:"h_min"`
	HMax   float64 `yaml:"h_max"`
	HStart float64 `yaml:"h_start"`

	MaxSteps int `yaml:"max_steps"`

	FacMin  float64 `yaml:"fac_min"`
	FacMax  float64 `yaml:"fac_max"`
	FacSafe float64 `yaml:"fac_safe"`

	// MaxSingular is the number of singular decompositions tolerated per step.
	MaxSingular int `yaml:"max_singular"`

	// Backward Euler only.
	NewtonIterations int       `yaml:"newton_iterations"`
	Reductions       []float64 `yaml:"reductions"`
}

func DefaultParameters() Parameters {
	return Parameters{
		AbsoluteTolerance: 1e-3,
		RelativeTolerance: 1e-4,
		MaxSteps:          1000,
		FacMin:            0.2,
		FacMax:            6,
		FacSafe:           0.9,
		MaxSingular:       5,
		NewtonIterations:  11,
		Reductions:        []float64{0.5, 0.5, 0.5, 0.5, 0.1},
	}
}

// withDefaults replaces unset fields with their defaults.
func (p Parameters) withDefaults() Parameters {
	d := DefaultParameters()
	if p.AbsoluteTolerance <= 0 {
		p.AbsoluteTolerance = d.AbsoluteTolerance
	}
	if p.RelativeTolerance <= 0 {
		p.RelativeTolerance = d.RelativeTolerance
	}
	if p.MaxSteps <= 0 {
		p.MaxSteps = d.MaxSteps
	}
	if p.FacMin <= 0 {
		p.FacMin = d.FacMin
	}
	if p.FacMax <= 0 {
		p.FacMax = d.FacMax
	}
	if p.FacSafe <= 0 {
		p.FacSafe = d.FacSafe
	}
	if p.MaxSingular <= 0 {
		p.MaxSingular = d.MaxSingular
	}
	if p.NewtonIterations <= 0 {
		p.NewtonIterations = d.NewtonIterations
	}
	if len(p.Reductions) == 0 {
		p.Reductions = d.Reductions
	}
	return p
}

// Group is a set of grid cells advanced with a shared step size. Y and K
// hold one dense vector per cell; Y is updated in place.
type Group struct {
	Processes *kinetics.ProcessSet
	Y         [][]float64
	K         [][]float64
}

// Integrator advances a group from 0 to tEnd. Implementations keep scratch
// buffers and are not safe for concurrent use.
type Integrator interface {
	Name() string
	Integrate(g *Group, tEnd float64) chem.Result
}

const roundoff = 1e-14

func finished(t, tEnd float64) bool {
	return tEnd-t <= roundoff*tEnd
}

// advance returns t+h, snapping to tEnd on the last step.
func advance(t, h, tEnd float64) float64 {
	if h >= tEnd-t {
		return tEnd
	}
	return t + h
}

// invalid reports NaNDetected or InfDetected for the first bad value in y.
func invalid(y [][]float64) (chem.Status, bool) {
	for _, cell := range y {
		for _, v := range cell {
			if math.IsNaN(v) {
				return chem.NaNDetected, true
			}
			if math.IsInf(v, 0) {
				return chem.InfDetected, true
			}
		}
	}
	return chem.Running, false
}

func copyCells(dst, src [][]float64) {
	for c := range src {
		copy(dst[c], src[c])
	}
}

func makeCells(cells, n int) [][]float64 {
	buf := make([]float64, cells*n)
	out := make([][]float64, cells)
	for c := range out {
		out[c] = buf[c*n : (c+1)*n : (c+1)*n]
	}
	return out
}

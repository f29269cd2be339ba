package metrics

import (
	"math"

	"github.com/san-kum/chemsim/internal/sim"
)

// MassDrift tracks the largest relative change of the summed concentration
// of a set of species since the first observed step. It is only meaningful
// for species that are produced and consumed in equal amounts.
type MassDrift struct {
	name     string
	columns  []int
	initial  float64
	maxDrift float64
	samples  int
}

// NewMassDrift watches the species at the given columns of the species
// ordering. An empty column list watches every species.
func NewMassDrift(columns ...int) *MassDrift {
	return &MassDrift{
		name:    "mass_drift",
		columns: columns,
	}
}

func (m *MassDrift) Name() string { return m.name }

func (m *MassDrift) Observe(step sim.Step) {
	total := m.total(step.Concentrations)
	if m.samples == 0 {
		m.initial = total
	}
	m.samples++

	if m.initial != 0 {
		drift := math.Abs(total-m.initial) / math.Abs(m.initial)
		m.maxDrift = math.Max(m.maxDrift, drift)
	}
}

func (m *MassDrift) total(c []float64) float64 {
	if len(m.columns) == 0 {
		sum := 0.0
		for _, v := range c {
			sum += v
		}
		return sum
	}
	sum := 0.0
	for _, col := range m.columns {
		if col < len(c) {
			sum += c[col]
		}
	}
	return sum
}

func (m *MassDrift) Value() float64 {
	return m.maxDrift
}

func (m *MassDrift) Reset() {
	m.initial = 0
	m.maxDrift = 0
	m.samples = 0
}

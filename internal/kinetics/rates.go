package kinetics

import (
	"math"

	"github.com/san-kum/chemsim/internal/chem"
	"github.com/san-kum/chemsim/internal/mechanism"
)

// Arrhenius evaluates k = A exp(C/T) (T/D)^B (1 + E P).
func Arrhenius(a mechanism.Arrhenius, c chem.Conditions) float64 {
	d := a.D
	if d == 0 {
		d = 300
	}
	k := a.A
	if a.C != 0 {
		k *= math.Exp(a.C / c.Temperature)
	}
	if a.B != 0 {
		k *= math.Pow(c.Temperature/d, a.B)
	}
	return k * (1 + a.E*c.Pressure)
}

// Troe evaluates the fall-off expression with third body M = air density.
func Troe(p mechanism.Troe, c chem.Conditions) float64 {
	t := c.Temperature
	k0 := p.K0A * math.Exp(p.K0C/t) * math.Pow(t/300, p.K0B)
	kinf := p.KinfA * math.Exp(p.KinfC/t) * math.Pow(t/300, p.KinfB)
	k0M := k0 * c.AirDensity
	if k0M == 0 {
		return 0
	}
	// a zero high-pressure limit leaves the low-pressure rate
	if kinf == 0 {
		return k0M
	}
	ratio := k0M / kinf
	n := p.N
	if n == 0 {
		n = 1
	}
	x := math.Log10(ratio) / n
	return k0M / (1 + ratio) * math.Pow(p.Fc, 1/(1+x*x))
}

// Package kinetics turns a mechanism into the right-hand side and Jacobian
// of the mass-action ODE system integrated for every grid cell.
package kinetics

import (
	"fmt"
	"math"

	"github.com/san-kum/chemsim/internal/chem"
	"github.com/san-kum/chemsim/internal/mechanism"
)

type term struct {
	species int
	coeff   float64
}

type process struct {
	reactants []term
	products  []term
	rate      mechanism.RateConstant
	param     int // rate parameter column, -1 unless user defined
}

// ProcessSet is the compiled form of a mechanism for one species and rate
// parameter ordering. It holds no per-cell data and is safe for concurrent use.
type ProcessSet struct {
	species   int
	params    int
	constant  []bool
	processes []process
}

// NewProcessSet compiles m against the given orderings.
func NewProcessSet(m *mechanism.Mechanism, species, params chem.Ordering) (*ProcessSet, error) {
	ps := &ProcessSet{
		species:  len(species),
		params:   len(params),
		constant: make([]bool, len(species)),
	}
	for _, s := range m.Species {
		idx, ok := species[s.Name]
		if !ok {
			return nil, fmt.Errorf("%w: species %s", chem.ErrUnknownVariable, s.Name)
		}
		ps.constant[idx] = s.Constant
	}

	resolve := func(terms []mechanism.Term) ([]term, error) {
		out := make([]term, 0, len(terms))
		for _, t := range terms {
			idx, ok := species[t.Species]
			if !ok {
				return nil, fmt.Errorf("%w: species %s", chem.ErrUnknownVariable, t.Species)
			}
			out = append(out, term{species: idx, coeff: t.Coeff()})
		}
		return out, nil
	}

	for i, r := range m.Reactions {
		p := process{rate: r.Rate, param: -1}
		var err error
		if p.reactants, err = resolve(r.Reactants); err != nil {
			return nil, fmt.Errorf("reaction %d: %w", i, err)
		}
		if p.products, err = resolve(r.Products); err != nil {
			return nil, fmt.Errorf("reaction %d: %w", i, err)
		}
		if r.Rate.Type == mechanism.UserDefinedRate {
			col, ok := params[r.Rate.UserDefined.Label]
			if !ok {
				return nil, fmt.Errorf("reaction %d: %w: rate parameter %s", i, chem.ErrUnknownVariable, r.Rate.UserDefined.Label)
			}
			p.param = col
		}
		ps.processes = append(ps.processes, p)
	}
	return ps, nil
}

func (ps *ProcessSet) NumberOfSpecies() int   { return ps.species }
func (ps *ProcessSet) NumberOfReactions() int { return len(ps.processes) }

// RateConstants fills k with one rate constant per reaction for a cell with
// conditions c and dense rate parameters params.
func (ps *ProcessSet) RateConstants(c chem.Conditions, params, k []float64) {
	c = c.WithAirDensity()
	for i, p := range ps.processes {
		switch p.rate.Type {
		case mechanism.ArrheniusRate:
			k[i] = Arrhenius(*p.rate.Arrhenius, c)
		case mechanism.TroeRate:
			k[i] = Troe(*p.rate.Troe, c)
		case mechanism.UserDefinedRate:
			k[i] = p.rate.UserDefined.Scaling * params[p.param]
		}
	}
}

// Forcing overwrites f with dy/dt at y.
func (ps *ProcessSet) Forcing(y, k, f []float64) {
	clear(f)
	for i, p := range ps.processes {
		r := k[i]
		for _, t := range p.reactants {
			r *= power(y[t.species], t.coeff)
		}
		for _, t := range p.reactants {
			f[t.species] -= t.coeff * r
		}
		for _, t := range p.products {
			f[t.species] += t.coeff * r
		}
	}
	for s, c := range ps.constant {
		if c {
			f[s] = 0
		}
	}
}

// Jacobian overwrites jac, row-major n by n, with df_i/dy_j at y.
func (ps *ProcessSet) Jacobian(y, k, jac []float64) {
	n := ps.species
	clear(jac)
	for i, p := range ps.processes {
		for a, wrt := range p.reactants {
			d := k[i] * wrt.coeff * power(y[wrt.species], wrt.coeff-1)
			for b, t := range p.reactants {
				if b != a {
					d *= power(y[t.species], t.coeff)
				}
			}
			col := wrt.species
			for _, t := range p.reactants {
				jac[t.species*n+col] -= t.coeff * d
			}
			for _, t := range p.products {
				jac[t.species*n+col] += t.coeff * d
			}
		}
	}
	for s, c := range ps.constant {
		if c {
			clear(jac[s*n : (s+1)*n])
		}
	}
}

func power(x, e float64) float64 {
	switch e {
	case 0:
		return 1
	case 1:
		return x
	case 2:
		return x * x
	}
	return math.Pow(x, e)
}

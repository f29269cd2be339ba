// Package mechanism describes chemical systems consumed by solver backends.
package mechanism

import (
	"errors"
	"fmt"
)

// RateType names the rate-constant law of a reaction.
type RateType string

const (
	ArrheniusRate   RateType = "arrhenius"
	TroeRate        RateType = "troe"
	UserDefinedRate RateType = "user_defined"
)

// Mechanism is an immutable description of a chemical system.
type Mechanism struct {
	Name      string     `yaml:"name"`
	Species   []Species  `yaml:"species"`
	Reactions []Reaction `yaml:"reactions"`
}

type Species struct {
	Name            string  `yaml:"name"`
	MolecularWeight float64 `yaml:"molecular_weight,omitempty"`
	// Constant species keep their concentration through a solve.
	Constant bool `yaml:"constant,omitempty"`
}

type Term struct {
	Species     string  `yaml:"species"`
	Coefficient float64 `yaml:"coefficient,omitempty"`
}

// Coeff returns the stoichiometric coefficient, defaulting to 1.
func (t Term) Coeff() float64 {
	if t.Coefficient == 0 {
		return 1
	}
	return t.Coefficient
}

type Reaction struct {
	Name      string       `yaml:"name,omitempty"`
	Reactants []Term       `yaml:"reactants"`
	Products  []Term       `yaml:"products,omitempty"`
	Rate      RateConstant `yaml:"rate"`
}

// RateConstant is a tagged record; only the block matching Type is read.
type RateConstant struct {
	Type        RateType     `yaml:"type"`
	Arrhenius   *Arrhenius   `yaml:"arrhenius,omitempty"`
	Troe        *Troe        `yaml:"troe,omitempty"`
	UserDefined *UserDefined `yaml:"user_defined,omitempty"`
}

// Arrhenius: k = A exp(C/T) (T/D)^B (1 + E P).
type Arrhenius struct {
	A float64 `yaml:"A"`
	B float64 `yaml:"B"`
	C float64 `yaml:"C"`
	D float64 `yaml:"D"`
	E float64 `yaml:"E"`
}

// Troe is the pressure-dependent fall-off law.
type Troe struct {
	K0A   float64 `yaml:"k0_A"`
	K0B   float64 `yaml:"k0_B"`
	K0C   float64 `yaml:"k0_C"`
	KinfA float64 `yaml:"kinf_A"`
	KinfB float64 `yaml:"kinf_B"`
	KinfC float64 `yaml:"kinf_C"`
	Fc    float64 `yaml:"Fc"`
	N     float64 `yaml:"N"`
}

// UserDefined reads its value from a per-cell rate parameter.
type UserDefined struct {
	Label   string  `yaml:"label"`
	Scaling float64 `yaml:"scaling,omitempty"`
}

// Errors returned by Validate.
var (
	ErrEmpty            = errors.New("mechanism: no species")
	ErrDuplicateSpecies = errors.New("mechanism: duplicate species")
	ErrUnknownSpecies   = errors.New("mechanism: reaction references unknown species")
	ErrBadRate          = errors.New("mechanism: invalid rate constant")
)

// Validate checks names, references and rate blocks, and fills defaults.
func (m *Mechanism) Validate() error {
	if len(m.Species) == 0 {
		return ErrEmpty
	}
	seen := make(map[string]bool, len(m.Species))
	for _, s := range m.Species {
		if s.Name == "" {
			return fmt.Errorf("%w: empty name", ErrUnknownSpecies)
		}
		if seen[s.Name] {
			return fmt.Errorf("%w: %s", ErrDuplicateSpecies, s.Name)
		}
		seen[s.Name] = true
	}
	for i := range m.Reactions {
		r := &m.Reactions[i]
		if len(r.Reactants) == 0 {
			return fmt.Errorf("reaction %d (%s): no reactants", i, r.Name)
		}
		for _, t := range append(append([]Term{}, r.Reactants...), r.Products...) {
			if !seen[t.Species] {
				return fmt.Errorf("%w: reaction %d (%s): %s", ErrUnknownSpecies, i, r.Name, t.Species)
			}
		}
		if err := r.Rate.normalize(); err != nil {
			return fmt.Errorf("reaction %d (%s): %w", i, r.Name, err)
		}
	}
	return nil
}

func (rc *RateConstant) normalize() error {
	switch rc.Type {
	case ArrheniusRate, "":
		rc.Type = ArrheniusRate
		if rc.Arrhenius == nil {
			rc.Arrhenius = &Arrhenius{A: 1}
		}
		if rc.Arrhenius.D == 0 {
			rc.Arrhenius.D = 300
		}
	case TroeRate:
		if rc.Troe == nil {
			return fmt.Errorf("%w: troe parameters missing", ErrBadRate)
		}
		if rc.Troe.Fc == 0 {
			rc.Troe.Fc = 0.6
		}
		if rc.Troe.N == 0 {
			rc.Troe.N = 1
		}
	case UserDefinedRate:
		if rc.UserDefined == nil || rc.UserDefined.Label == "" {
			return fmt.Errorf("%w: user_defined label missing", ErrBadRate)
		}
		if rc.UserDefined.Scaling == 0 {
			rc.UserDefined.Scaling = 1
		}
	default:
		return fmt.Errorf("%w: unknown type %q", ErrBadRate, rc.Type)
	}
	return nil
}

// SpeciesNames returns species names in declaration order.
func (m *Mechanism) SpeciesNames() []string {
	names := make([]string, len(m.Species))
	for i, s := range m.Species {
		names[i] = s.Name
	}
	return names
}

// UserDefinedLabels returns the distinct rate parameter labels in order of
// first appearance.
func (m *Mechanism) UserDefinedLabels() []string {
	var labels []string
	seen := make(map[string]bool)
	for _, r := range m.Reactions {
		if r.Rate.Type != UserDefinedRate || r.Rate.UserDefined == nil {
			continue
		}
		l := r.Rate.UserDefined.Label
		if !seen[l] {
			seen[l] = true
			labels = append(labels, l)
		}
	}
	return labels
}

// Clone returns a deep copy that can be validated or edited independently.
func (m *Mechanism) Clone() *Mechanism {
	out := &Mechanism{
		Name:      m.Name,
		Species:   append([]Species(nil), m.Species...),
		Reactions: make([]Reaction, len(m.Reactions)),
	}
	for i, r := range m.Reactions {
		r.Reactants = append([]Term(nil), r.Reactants...)
		r.Products = append([]Term(nil), r.Products...)
		if r.Rate.Arrhenius != nil {
			a := *r.Rate.Arrhenius
			r.Rate.Arrhenius = &a
		}
		if r.Rate.Troe != nil {
			t := *r.Rate.Troe
			r.Rate.Troe = &t
		}
		if r.Rate.UserDefined != nil {
			u := *r.Rate.UserDefined
			r.Rate.UserDefined = &u
		}
		out.Reactions[i] = r
	}
	return out
}

package state

import (
	"fmt"

	"github.com/san-kum/chemsim/internal/chem"
)

// Orderings are the name-to-column maps shared by every state of a backend.
type Orderings struct {
	Species        chem.Ordering
	RateParameters chem.Ordering
}

// State owns the buffers of one set of grid cells laid out as M.
type State[M Matrix] struct {
	solverType chem.SolverType
	orderings  Orderings

	concentrations M
	rateParams     M
	conditions     []chem.Conditions
}

// New allocates a zeroed state of cells grid cells.
func New[M Matrix](t chem.SolverType, layout Layout[M], cells int, o Orderings) *State[M] {
	return &State[M]{
		solverType:     t,
		orderings:      o,
		concentrations: layout.New(cells, len(o.Species)),
		rateParams:     layout.New(cells, len(o.RateParameters)),
		conditions:     make([]chem.Conditions, cells),
	}
}

func (s *State[M]) SolverType() chem.SolverType { return s.solverType }
func (s *State[M]) NumberOfGridCells() int      { return len(s.conditions) }
func (s *State[M]) NumberOfSpecies() int        { return s.concentrations.Cols() }
func (s *State[M]) VectorSize() int             { return s.concentrations.VectorSize() }

func (s *State[M]) NumberOfUserDefinedRateParameters() int { return s.rateParams.Cols() }

func (s *State[M]) Conditions() []chem.Conditions { return s.conditions }

func (s *State[M]) SetConditions(cell int, c chem.Conditions) error {
	if err := s.checkCell(cell); err != nil {
		return err
	}
	s.conditions[cell] = c
	return nil
}

func (s *State[M]) Concentrations() []float64                      { return s.concentrations.Data() }
func (s *State[M]) ConcentrationsStrides() chem.Strides            { return s.concentrations.Strides() }
func (s *State[M]) UserDefinedRateParameters() []float64           { return s.rateParams.Data() }
func (s *State[M]) UserDefinedRateParametersStrides() chem.Strides { return s.rateParams.Strides() }

func (s *State[M]) SpeciesOrdering() chem.Ordering       { return s.orderings.Species.Clone() }
func (s *State[M]) RateParameterOrdering() chem.Ordering { return s.orderings.RateParameters.Clone() }

// Matches reports whether the state was laid out with orderings o.
func (s *State[M]) Matches(o Orderings) bool {
	return s.orderings.Species.Equal(o.Species) && s.orderings.RateParameters.Equal(o.RateParameters)
}

// ConcentrationMatrix exposes the typed concentration buffer to integrators.
func (s *State[M]) ConcentrationMatrix() M { return s.concentrations }

// RateParameterMatrix exposes the typed rate parameter buffer to integrators.
func (s *State[M]) RateParameterMatrix() M { return s.rateParams }

func (s *State[M]) Concentration(cell int, species string) (float64, error) {
	col, err := s.column(cell, s.orderings.Species, species)
	if err != nil {
		return 0, err
	}
	return s.concentrations.At(cell, col), nil
}

func (s *State[M]) SetConcentration(cell int, species string, value float64) error {
	col, err := s.column(cell, s.orderings.Species, species)
	if err != nil {
		return err
	}
	s.concentrations.Set(cell, col, value)
	return nil
}

func (s *State[M]) RateParameter(cell int, label string) (float64, error) {
	col, err := s.column(cell, s.orderings.RateParameters, label)
	if err != nil {
		return 0, err
	}
	return s.rateParams.At(cell, col), nil
}

func (s *State[M]) SetRateParameter(cell int, label string, value float64) error {
	col, err := s.column(cell, s.orderings.RateParameters, label)
	if err != nil {
		return err
	}
	s.rateParams.Set(cell, col, value)
	return nil
}

func (s *State[M]) column(cell int, o chem.Ordering, name string) (int, error) {
	if err := s.checkCell(cell); err != nil {
		return 0, err
	}
	col, ok := o[name]
	if !ok {
		return 0, fmt.Errorf("%w: %s", chem.ErrUnknownVariable, name)
	}
	return col, nil
}

func (s *State[M]) checkCell(cell int) error {
	if cell < 0 || cell >= len(s.conditions) {
		return fmt.Errorf("grid cell %d out of range [0, %d)", cell, len(s.conditions))
	}
	return nil
}

var (
	_ chem.State = (*State[*StandardMatrix])(nil)
	_ chem.State = (*State[*VectorMatrix])(nil)
)

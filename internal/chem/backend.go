package chem

// State exposes a backend's per-grid-cell data independent of its layout.
//
// Slices returned by the buffer accessors are the live buffers: writes are
// seen by the next Solve on the same state. Callers that index them by hand
// use the matching Strides together with VectorSize. Orderings are copies.
//
// States that hold device memory also implement io.Closer; sim.Release frees
// them.
type State interface {
	SolverType() SolverType
	NumberOfGridCells() int
	NumberOfSpecies() int
	NumberOfUserDefinedRateParameters() int
	VectorSize() int

	Conditions() []Conditions
	SetConditions(cell int, c Conditions) error

	Concentrations() []float64
	ConcentrationsStrides() Strides
	UserDefinedRateParameters() []float64
	UserDefinedRateParametersStrides() Strides

	SpeciesOrdering() Ordering
	RateParameterOrdering() Ordering

	Concentration(cell int, species string) (float64, error)
	SetConcentration(cell int, species string, value float64) error
	RateParameter(cell int, label string) (float64, error)
	SetRateParameter(cell int, label string, value float64) error
}

// Backend owns one configured integrator for one mechanism.
type Backend interface {
	Type() SolverType
	CreateState(numberOfGridCells int) (State, error)
	Solve(s State, timeStep float64) (Result, error)
	SpeciesOrdering() Ordering
	RateParameterOrdering() Ordering
	VectorSize() int
	MaximumNumberOfGridCells() int
}

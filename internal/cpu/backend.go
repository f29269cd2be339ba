// Package cpu implements the in-process solver backends.
//
// Four selectors are served: Rosenbrock and BackwardEuler, each in the
// vector-grouped and the standard (row-major) layout. Every combination is
// fixed at construction, so a Solve only has to confirm the state came from
// the same combination.
package cpu

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/san-kum/chemsim/internal/chem"
	"github.com/san-kum/chemsim/internal/integrators"
	"github.com/san-kum/chemsim/internal/kinetics"
	"github.com/san-kum/chemsim/internal/mechanism"
	"github.com/san-kum/chemsim/internal/state"
)

const (
	DefaultVectorSize               = 4
	DefaultMaximumNumberOfGridCells = 1 << 16
)

type Options struct {
	// VectorSize is the group width of the vector-ordered selectors.
	VectorSize int

	// MaximumNumberOfGridCells caps CreateState.
	MaximumNumberOfGridCells int

	Parameters integrators.Parameters
	Callbacks  *chem.Callbacks
	Logger     *zap.Logger
}

func (o Options) withDefaults() Options {
	if o.VectorSize <= 0 {
		o.VectorSize = DefaultVectorSize
	}
	if o.MaximumNumberOfGridCells <= 0 {
		o.MaximumNumberOfGridCells = DefaultMaximumNumberOfGridCells
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	return o
}

// Backend is a CPU solver for one mechanism and one selector. Solve calls on
// the same Backend are serialized.
type Backend struct {
	typ       chem.SolverType
	maxCells  int
	vector    int
	orderings state.Orderings
	log       *zap.Logger

	mu     sync.Mutex
	engine solver
	solves atomic.Uint64
}

// New builds the backend for selector t. Selectors that are not served on the
// CPU yield a *chem.SolverTypeError.
func New(m *mechanism.Mechanism, t chem.SolverType, opts Options) (*Backend, error) {
	if m == nil {
		return nil, errors.New("cpu: nil mechanism")
	}
	opts = opts.withDefaults()

	m = m.Clone()
	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("cpu: %w", err)
	}
	o := state.Orderings{
		Species:        chem.NewOrdering(m.SpeciesNames()),
		RateParameters: chem.NewOrdering(m.UserDefinedLabels()),
	}
	ps, err := kinetics.NewProcessSet(m, o.Species, o.RateParameters)
	if err != nil {
		return nil, fmt.Errorf("cpu: %w", err)
	}

	b := &Backend{
		typ:       t,
		maxCells:  opts.MaximumNumberOfGridCells,
		orderings: o,
		log:       opts.Logger.With(zap.Stringer("solver", t), zap.String("mechanism", m.Name)),
	}

	vec := state.Vector{Size: opts.VectorSize}
	switch t {
	case chem.Rosenbrock:
		b.engine = newEngine[*state.VectorMatrix](t, vec, integrators.NewRosenbrock(opts.Parameters), o, ps, opts.Callbacks)
		b.vector = opts.VectorSize
	case chem.RosenbrockStandardOrder:
		b.engine = newEngine[*state.StandardMatrix](t, state.Standard{}, integrators.NewRosenbrock(opts.Parameters), o, ps, opts.Callbacks)
		b.vector = 1
	case chem.BackwardEuler:
		b.engine = newEngine[*state.VectorMatrix](t, vec, integrators.NewBackwardEuler(opts.Parameters), o, ps, opts.Callbacks)
		b.vector = opts.VectorSize
	case chem.BackwardEulerStandardOrder:
		b.engine = newEngine[*state.StandardMatrix](t, state.Standard{}, integrators.NewBackwardEuler(opts.Parameters), o, ps, opts.Callbacks)
		b.vector = 1
	default:
		return nil, &chem.SolverTypeError{Type: t, Backend: "cpu"}
	}

	b.log.Debug("backend created",
		zap.Int("species", len(o.Species)),
		zap.Int("rate_parameters", len(o.RateParameters)),
		zap.Int("vector_size", b.vector),
	)
	return b, nil
}

func (b *Backend) Type() chem.SolverType         { return b.typ }
func (b *Backend) VectorSize() int               { return b.vector }
func (b *Backend) MaximumNumberOfGridCells() int { return b.maxCells }

// Solves returns the number of Solve calls that ran to completion.
func (b *Backend) Solves() uint64 { return b.solves.Load() }

func (b *Backend) CreateState(n int) (chem.State, error) {
	if n < 1 {
		return nil, fmt.Errorf("%w: %d", chem.ErrInvalidGridCells, n)
	}
	if n > b.maxCells {
		return nil, fmt.Errorf("%w: %d > %d", chem.ErrTooManyGridCells, n, b.maxCells)
	}
	return b.engine.newState(n), nil
}

func (b *Backend) SpeciesOrdering() chem.Ordering       { return b.orderings.Species.Clone() }
func (b *Backend) RateParameterOrdering() chem.Ordering { return b.orderings.RateParameters.Clone() }

// Solve advances s by timeStep seconds in place.
func (b *Backend) Solve(s chem.State, timeStep float64) (chem.Result, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	res, err := b.engine.solve(s, timeStep)
	if err != nil {
		b.log.Debug("solve rejected", zap.Error(err))
		return res, err
	}
	b.solves.Add(1)

	if res.Status != chem.Converged {
		b.log.Warn("solve did not converge",
			zap.Stringer("status", res.Status),
			zap.Float64("time_step", timeStep),
			zap.Float64("final_time", res.Stats.FinalTime),
		)
	}
	return res, nil
}

var _ chem.Backend = (*Backend)(nil)

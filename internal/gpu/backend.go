// Package gpu implements the CudaRosenbrock backend served by the optional
// GPU module. Concentrations live on the device between the upload and
// download phases of each Solve.
package gpu

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/san-kum/chemsim/internal/chem"
	"github.com/san-kum/chemsim/internal/compute"
	"github.com/san-kum/chemsim/internal/integrators"
	"github.com/san-kum/chemsim/internal/kinetics"
	"github.com/san-kum/chemsim/internal/mechanism"
	"github.com/san-kum/chemsim/internal/state"
)

const (
	DefaultVectorSize               = 32
	DefaultMaximumNumberOfGridCells = 1 << 20
)

type Options struct {
	VectorSize               int
	MaximumNumberOfGridCells int
	Parameters               integrators.Parameters
	Callbacks                *chem.Callbacks
	Logger                   *zap.Logger
}

// Backend is a Rosenbrock solver whose state buffers are mirrored on a
// compute.Runtime.
type Backend struct {
	rt        compute.Runtime
	log       *zap.Logger
	vector    int
	maxCells  int
	orderings state.Orderings
	processes *kinetics.ProcessSet
	callbacks *chem.Callbacks

	mu         sync.Mutex
	integrator *integrators.Rosenbrock
	settings   compute.Buffer
	states     map[*State]struct{}
	closed     bool
	solves     atomic.Uint64
}

// New builds a CudaRosenbrock backend on rt. The runtime stays owned by the
// caller and must outlive the backend.
func New(m *mechanism.Mechanism, rt compute.Runtime, opts Options) (*Backend, error) {
	if m == nil {
		return nil, errors.New("gpu: nil mechanism")
	}
	if rt == nil || rt.DeviceCount() == 0 {
		return nil, chem.ErrNoDevices
	}
	if opts.VectorSize <= 0 {
		opts.VectorSize = DefaultVectorSize
	}
	if opts.MaximumNumberOfGridCells <= 0 {
		opts.MaximumNumberOfGridCells = DefaultMaximumNumberOfGridCells
	}
	if opts.Logger == nil {
		opts.Logger = zap.L()
	}

	m = m.Clone()
	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("gpu: %w", err)
	}
	o := state.Orderings{
		Species:        chem.NewOrdering(m.SpeciesNames()),
		RateParameters: chem.NewOrdering(m.UserDefinedLabels()),
	}
	ps, err := kinetics.NewProcessSet(m, o.Species, o.RateParameters)
	if err != nil {
		return nil, fmt.Errorf("gpu: %w", err)
	}

	b := &Backend{
		rt:         rt,
		log:        opts.Logger.With(zap.Stringer("solver", chem.CudaRosenbrock), zap.String("runtime", rt.Name())),
		vector:     opts.VectorSize,
		maxCells:   opts.MaximumNumberOfGridCells,
		orderings:  o,
		processes:  ps,
		callbacks:  opts.Callbacks,
		integrator: integrators.NewRosenbrock(opts.Parameters),
		states:     make(map[*State]struct{}),
	}

	settings := []float64{float64(opts.VectorSize), float64(ps.NumberOfSpecies()), float64(ps.NumberOfReactions())}
	if b.settings, err = rt.Alloc(len(settings)); err != nil {
		return nil, fmt.Errorf("gpu: allocate settings: %w", err)
	}
	if err := b.settings.Upload(settings); err != nil {
		_ = b.settings.Free()
		return nil, fmt.Errorf("gpu: upload settings: %w", err)
	}
	b.log.Debug("backend created", zap.Int("vector_size", b.vector))
	return b, nil
}

func (b *Backend) Type() chem.SolverType         { return chem.CudaRosenbrock }
func (b *Backend) VectorSize() int               { return b.vector }
func (b *Backend) MaximumNumberOfGridCells() int { return b.maxCells }

// Solves returns the number of Solve calls that ran to completion.
func (b *Backend) Solves() uint64 { return b.solves.Load() }

func (b *Backend) SpeciesOrdering() chem.Ordering       { return b.orderings.Species.Clone() }
func (b *Backend) RateParameterOrdering() chem.Ordering { return b.orderings.RateParameters.Clone() }

func (b *Backend) CreateState(n int) (chem.State, error) {
	if n < 1 {
		return nil, fmt.Errorf("%w: %d", chem.ErrInvalidGridCells, n)
	}
	if n > b.maxCells {
		return nil, fmt.Errorf("%w: %d > %d", chem.ErrTooManyGridCells, n, b.maxCells)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, chem.ErrClosed
	}

	host := state.New[*state.VectorMatrix](chem.CudaRosenbrock, state.Vector{Size: b.vector}, n, b.orderings)
	s := &State{State: host, backend: b, condHost: make([]float64, n*conditionWidth)}

	var allocated []compute.Buffer
	alloc := func(size int) (compute.Buffer, error) {
		buf, err := b.rt.Alloc(size)
		if err == nil {
			allocated = append(allocated, buf)
		}
		return buf, err
	}
	var err error
	if s.conc, err = alloc(len(host.Concentrations())); err == nil {
		if s.params, err = alloc(len(host.UserDefinedRateParameters())); err == nil {
			s.conds, err = alloc(len(s.condHost))
		}
	}
	if err != nil {
		for _, buf := range allocated {
			_ = buf.Free()
		}
		return nil, fmt.Errorf("gpu: allocate state: %w", err)
	}

	b.states[s] = struct{}{}
	return s, nil
}

// Solve uploads the state, launches the Rosenbrock kernel over the device
// buffers and downloads the concentrations.
func (b *Backend) Solve(cs chem.State, timeStep float64) (chem.Result, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return chem.Result{}, chem.ErrClosed
	}
	s, ok := cs.(*State)
	if !ok || s == nil || s.backend != b || s.freed {
		var st chem.SolverType
		if ok && s != nil {
			st = s.SolverType()
		} else if !ok && cs != nil {
			st = cs.SolverType()
		}
		return chem.Result{}, &chem.CombinationError{Solver: chem.CudaRosenbrock, State: st, Reason: "state not created by this backend"}
	}
	if timeStep < 0 || math.IsNaN(timeStep) || math.IsInf(timeStep, 0) {
		return chem.Result{}, fmt.Errorf("%w: %v", chem.ErrInvalidTimeStep, timeStep)
	}
	if timeStep == 0 {
		b.solves.Add(1)
		return chem.NewResult(0), nil
	}

	b.applyCallbacks(s)

	if err := s.upload(); err != nil {
		return chem.Result{}, fmt.Errorf("gpu: upload: %w", err)
	}

	res := chem.NewResult(timeStep)
	kernel := b.kernel(s, timeStep, &res)
	if err := b.rt.Launch(kernel, s.conc, s.params, s.conds, b.settings); err != nil {
		return chem.Result{}, fmt.Errorf("gpu: launch: %w", err)
	}

	if err := s.download(); err != nil {
		return chem.Result{}, fmt.Errorf("gpu: download: %w", err)
	}
	b.solves.Add(1)

	if res.Status != chem.Converged {
		b.log.Warn("solve did not converge", zap.Stringer("status", res.Status), zap.Float64("time_step", timeStep))
	}
	return res, nil
}

func (b *Backend) applyCallbacks(s *State) {
	if b.callbacks == nil {
		return
	}
	conds := s.Conditions()
	rp := s.RateParameterMatrix()
	for label, col := range b.orderings.RateParameters {
		for cell := range conds {
			if v, ok := b.callbacks.Evaluate(label, conds[cell]); ok {
				rp.Set(cell, col, v)
			}
		}
	}
}

// kernel integrates every group of the state over the device views:
// concentrations, rate parameters, conditions, settings.
func (b *Backend) kernel(s *State, dt float64, res *chem.Result) compute.Kernel {
	return func(views [][]float64) error {
		conc, params, conds, settings := views[0], views[1], views[2], views[3]
		if int(settings[0]) != b.vector {
			return fmt.Errorf("gpu: device vector size %v, want %d", settings[0], b.vector)
		}
		cm := s.ConcentrationMatrix()
		pm := s.RateParameterMatrix()

		n := s.NumberOfGridCells()
		species := b.processes.NumberOfSpecies()
		labels := len(b.orderings.RateParameters)
		g := integrators.Group{
			Processes: b.processes,
			Y:         cells(b.vector, species),
			K:         cells(b.vector, b.processes.NumberOfReactions()),
		}
		p := make([]float64, labels)

		for first := 0; first < n; first += b.vector {
			size := min(b.vector, n-first)
			group := g
			group.Y = g.Y[:size]
			group.K = g.K[:size]
			for c := 0; c < size; c++ {
				cell := first + c
				for i := 0; i < species; i++ {
					group.Y[c][i] = conc[cm.Index(cell, i)]
				}
				for i := 0; i < labels; i++ {
					p[i] = params[pm.Index(cell, i)]
				}
				cond := chem.Conditions{
					Temperature: conds[cell*conditionWidth],
					Pressure:    conds[cell*conditionWidth+1],
					AirDensity:  conds[cell*conditionWidth+2],
				}
				b.processes.RateConstants(cond, p, group.K[c])
			}

			res.Merge(b.integrator.Integrate(&group, dt))

			for c := 0; c < size; c++ {
				for i, y := range group.Y[c] {
					conc[cm.Index(first+c, i)] = y
				}
			}
		}
		return nil
	}
}

// Close frees the device buffers of every state and of the backend. The
// runtime itself is left for the module to tear down.
func (b *Backend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true

	var errs []error
	for s := range b.states {
		errs = append(errs, s.free())
		delete(b.states, s)
	}
	errs = append(errs, b.settings.Free())
	b.log.Debug("backend closed")
	return errors.Join(errs...)
}

func cells(count, n int) [][]float64 {
	buf := make([]float64, count*n)
	out := make([][]float64, count)
	for c := range out {
		out[c] = buf[c*n : (c+1)*n : (c+1)*n]
	}
	return out
}

var _ chem.Backend = (*Backend)(nil)

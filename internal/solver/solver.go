// Package solver is the entry point for building chemistry backends. It hides
// whether a backend lives in this process or in the optional GPU module and
// makes sure every backend is released by the side that allocated it.
package solver

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/san-kum/chemsim/internal/chem"
	"github.com/san-kum/chemsim/internal/cpu"
	"github.com/san-kum/chemsim/internal/loader"
	"github.com/san-kum/chemsim/internal/mechanism"
)

// Observer receives the outcome of every Solve.
type Observer interface {
	ObserveSolve(t chem.SolverType, cells int, elapsed time.Duration, res chem.Result, err error)
}

type Options struct {
	// FallbackToCPU builds a CPU Rosenbrock backend when the GPU backend
	// is requested but unavailable.
	FallbackToCPU bool

	// Loader defaults to loader.Default().
	Loader *loader.Loader

	CPU      cpu.Options
	Logger   *zap.Logger
	Observer Observer
}

// Solver owns one backend handle.
type Solver struct {
	handle    *chem.Handle
	requested chem.SolverType
	module    bool
	loader    *loader.Loader
	log       *zap.Logger
	obs       Observer

	once sync.Once
}

// New builds a backend of type t for mechanism m.
func New(m *mechanism.Mechanism, t chem.SolverType, opts Options) (*Solver, error) {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Loader == nil {
		opts.Loader = loader.Default()
	}
	if opts.CPU.Logger == nil {
		opts.CPU.Logger = opts.Logger
	}
	s := &Solver{
		requested: t,
		loader:    opts.Loader,
		log:       opts.Logger.Named("solver"),
		obs:       opts.Observer,
	}

	if !t.IsGPU() {
		b, err := cpu.New(m, t, opts.CPU)
		if err != nil {
			return nil, err
		}
		s.handle = chem.NewHandle(b, nil)
		return s, nil
	}

	h, err := opts.Loader.CreateRosenbrockSolver(m)
	switch {
	case err == nil:
		s.handle = h
		s.module = true
		return s, nil
	case chem.IsUnavailable(err) && opts.FallbackToCPU:
		s.log.Warn("gpu backend unavailable, falling back to cpu",
			zap.Stringer("requested", t), zap.Error(err))
		b, cerr := cpu.New(m, chem.Rosenbrock, opts.CPU)
		if cerr != nil {
			return nil, cerr
		}
		s.handle = chem.NewHandle(b, nil)
		return s, nil
	default:
		return nil, fmt.Errorf("%s backend: %w", t, err)
	}
}

// GPUAvailable reports whether the GPU module can be loaded and sees a device.
func GPUAvailable() bool {
	return loader.Default().HasDevices()
}

// Type is the selector actually served, which differs from Requested after
// a CPU fallback.
func (s *Solver) Type() chem.SolverType      { return s.handle.Type() }
func (s *Solver) Requested() chem.SolverType { return s.requested }

// FellBack reports whether a GPU request is being served on the CPU.
func (s *Solver) FellBack() bool { return s.requested.IsGPU() && !s.module }

// Backend exposes the underlying backend.
func (s *Solver) Backend() chem.Backend { return s.handle.Backend }

func (s *Solver) CreateState(numberOfGridCells int) (chem.State, error) {
	if s.handle.Closed() {
		return nil, chem.ErrClosed
	}
	return s.handle.CreateState(numberOfGridCells)
}

// Solve advances st by timeStep seconds.
func (s *Solver) Solve(st chem.State, timeStep float64) (chem.Result, error) {
	if s.handle.Closed() {
		return chem.Result{}, chem.ErrClosed
	}
	start := time.Now()
	res, err := s.handle.Solve(st, timeStep)
	if s.obs != nil {
		cells := 0
		if st != nil {
			cells = st.NumberOfGridCells()
		}
		s.obs.ObserveSolve(s.Type(), cells, time.Since(start), res, err)
	}
	return res, err
}

func (s *Solver) SpeciesOrdering() chem.Ordering       { return s.handle.SpeciesOrdering() }
func (s *Solver) RateParameterOrdering() chem.Ordering { return s.handle.RateParameterOrdering() }
func (s *Solver) VectorSize() int                      { return s.handle.VectorSize() }
func (s *Solver) MaximumNumberOfGridCells() int        { return s.handle.MaximumNumberOfGridCells() }

// Close releases the backend and, for module backends, lets the module free
// its device resources once nothing else holds them. Close is idempotent.
func (s *Solver) Close() error {
	var err error
	s.once.Do(func() {
		err = s.handle.Close()
		if s.module {
			s.loader.CleanUp()
		}
	})
	return err
}

// IsUnavailable reports whether err from New means the backend cannot run in
// this process.
func IsUnavailable(err error) bool { return chem.IsUnavailable(err) }

var _ chem.Backend = (*Solver)(nil)

package cpu

import (
	"fmt"
	"math"

	"github.com/san-kum/chemsim/internal/chem"
	"github.com/san-kum/chemsim/internal/integrators"
	"github.com/san-kum/chemsim/internal/kinetics"
	"github.com/san-kum/chemsim/internal/state"
)

// solver is the layout-erased view of an engine held by Backend.
type solver interface {
	newState(cells int) chem.State
	solve(s chem.State, dt float64) (chem.Result, error)
}

// engine is one of the four closed (layout, integrator) combinations.
type engine[M state.Matrix] struct {
	typ        chem.SolverType
	layout     state.Layout[M]
	integrator integrators.Integrator
	orderings  state.Orderings
	processes  *kinetics.ProcessSet
	callbacks  *chem.Callbacks

	group  integrators.Group
	params [][]float64
}

func newEngine[M state.Matrix](t chem.SolverType, layout state.Layout[M], integ integrators.Integrator, o state.Orderings, ps *kinetics.ProcessSet, cb *chem.Callbacks) *engine[M] {
	v := layout.VectorSize()
	if v < 1 {
		v = 1
	}
	return &engine[M]{
		typ:        t,
		layout:     layout,
		integrator: integ,
		orderings:  o,
		processes:  ps,
		callbacks:  cb,
		group: integrators.Group{
			Processes: ps,
			Y:         cells(v, len(o.Species)),
			K:         cells(v, ps.NumberOfReactions()),
		},
		params: cells(v, len(o.RateParameters)),
	}
}

func (e *engine[M]) newState(n int) chem.State {
	return state.New[M](e.typ, e.layout, n, e.orderings)
}

func (e *engine[M]) solve(s chem.State, dt float64) (chem.Result, error) {
	st, err := e.check(s)
	if err != nil {
		return chem.Result{}, err
	}
	if dt < 0 || math.IsNaN(dt) || math.IsInf(dt, 0) {
		return chem.Result{}, fmt.Errorf("%w: %v", chem.ErrInvalidTimeStep, dt)
	}
	if dt == 0 {
		return chem.NewResult(0), nil
	}

	e.applyCallbacks(st)

	conc := st.ConcentrationMatrix()
	rp := st.RateParameterMatrix()
	conds := st.Conditions()
	n := st.NumberOfGridCells()
	v := len(e.group.Y)

	res := chem.NewResult(dt)
	for first := 0; first < n; first += v {
		size := min(v, n-first)
		g := e.group
		g.Y = g.Y[:size]
		g.K = g.K[:size]
		for c := 0; c < size; c++ {
			cell := first + c
			for i := range g.Y[c] {
				g.Y[c][i] = conc.At(cell, i)
			}
			for i := range e.params[c] {
				e.params[c][i] = rp.At(cell, i)
			}
			e.processes.RateConstants(conds[cell], e.params[c], g.K[c])
		}

		res.Merge(e.integrator.Integrate(&g, dt))

		for c := 0; c < size; c++ {
			for i, y := range g.Y[c] {
				conc.Set(first+c, i, y)
			}
		}
	}
	return res, nil
}

// check asserts s was created by this engine's layout and mechanism. It does
// not touch the state.
func (e *engine[M]) check(s chem.State) (*state.State[M], error) {
	st, ok := s.(*state.State[M])
	if !ok {
		return nil, e.mismatch(s, fmt.Sprintf("state of type %T", s))
	}
	if st == nil {
		return nil, &chem.CombinationError{Solver: e.typ, Reason: "nil state"}
	}
	if st.SolverType() != e.typ {
		return nil, e.mismatch(s, "state created for a different solver type")
	}
	if !st.Matches(e.orderings) {
		return nil, e.mismatch(s, "state created for a different mechanism")
	}
	if st.VectorSize() != len(e.group.Y) {
		return nil, e.mismatch(s, fmt.Sprintf("vector size %d, want %d", st.VectorSize(), len(e.group.Y)))
	}
	return st, nil
}

func (e *engine[M]) mismatch(s chem.State, reason string) error {
	var st chem.SolverType
	if s != nil {
		st = s.SolverType()
	}
	return &chem.CombinationError{Solver: e.typ, State: st, Reason: reason}
}

// applyCallbacks overwrites every registered rate parameter with its
// callback value for each cell.
func (e *engine[M]) applyCallbacks(st *state.State[M]) {
	if e.callbacks == nil {
		return
	}
	conds := st.Conditions()
	rp := st.RateParameterMatrix()
	for label, col := range e.orderings.RateParameters {
		for cell := range conds {
			if v, ok := e.callbacks.Evaluate(label, conds[cell]); ok {
				rp.Set(cell, col, v)
			}
		}
	}
}

func cells(count, n int) [][]float64 {
	buf := make([]float64, count*n)
	out := make([][]float64, count)
	for c := range out {
		out[c] = buf[c*n : (c+1)*n : (c+1)*n]
	}
	return out
}

package integrators

import (
	"math"

	"github.com/san-kum/chemsim/internal/chem"
)

// growAfter is the number of consecutive converged steps before the step
// size doubles.
const growAfter = 3

type BackwardEuler struct {
	params Parameters

	n, cells           int
	f, jac, yNew, yOld [][]float64
	delta, rhs         [][]float64
	ls                 *linearSystem
}

func NewBackwardEuler(p Parameters) *BackwardEuler {
	return &BackwardEuler{params: p.withDefaults()}
}

func (b *BackwardEuler) Name() string { return "backward_euler" }

func (b *BackwardEuler) ensureScratch(n, cells int) {
	if b.n == n && b.cells == cells {
		return
	}
	b.n, b.cells = n, cells
	b.f = makeCells(cells, n)
	b.jac = makeCells(cells, n*n)
	b.yNew = makeCells(cells, n)
	b.yOld = makeCells(cells, n)
	b.delta = makeCells(cells, n)
	b.rhs = makeCells(cells, n)
	b.ls = newLinearSystem(n, cells)
}

// Integrate solves y_{n+1} = y_n + h f(y_{n+1}) with a simplified Newton
// iteration. A step that does not converge is retried with the next
// reduction factor; once the factors are used up the step is accepted as is
// and the result reports AcceptingUnconvergedIntegration. A converged step
// restores the full set of factors.
func (b *BackwardEuler) Integrate(g *Group, tEnd float64) chem.Result {
	p := b.params
	ps := g.Processes
	b.ensureScratch(ps.NumberOfSpecies(), len(g.Y))

	res := chem.Result{Status: chem.Running}
	st := &res.Stats

	hMax := tEnd
	if p.HMax > 0 {
		hMax = math.Min(p.HMax, tEnd)
	}
	h := hMax
	if p.HStart > 0 {
		h = math.Min(p.HStart, hMax)
	}
	hMin := math.Max(p.HMin, roundoff*tEnd)

	t := 0.0
	failures := 0
	successes := 0
	unconverged := false

	for !finished(t, tEnd) {
		if st.NumberOfSteps >= uint64(p.MaxSteps) {
			res.Status = chem.ConvergenceExceededMaxSteps
			break
		}
		if h < hMin {
			res.Status = chem.StepSizeTooSmall
			break
		}
		hs := math.Min(h, tEnd-t)
		st.NumberOfSteps++

		copyCells(b.yOld, g.Y)
		copyCells(b.yNew, g.Y)
		for c, y := range g.Y {
			ps.Jacobian(y, g.K[c], b.jac[c])
		}
		st.JacobianUpdates++
		st.Decompositions++

		converged := b.ls.factor(b.jac, 1/hs) && b.newton(g, hs, st)

		if status, bad := invalid(b.yNew); bad {
			res.Status = status
			break
		}

		if !converged {
			successes = 0
			if failures < len(p.Reductions) {
				st.Rejected++
				h = hs * p.Reductions[failures]
				failures++
				continue
			}
			unconverged = true
		} else {
			successes++
			failures = 0
		}

		st.Accepted++
		t = advance(t, hs, tEnd)
		copyCells(g.Y, b.yNew)
		h = hs
		if successes >= growAfter {
			successes = 0
			h = math.Min(2*hs, hMax)
		}
	}

	if res.Status == chem.Running {
		res.Status = chem.Converged
		if unconverged {
			res.Status = chem.AcceptingUnconvergedIntegration
		}
	}
	st.FinalTime = t
	return res
}

// newton iterates on yNew and reports whether every correction fell within
// tolerance.
func (b *BackwardEuler) newton(g *Group, h float64, st *chem.Stats) bool {
	p := b.params
	ps := g.Processes
	for it := 0; it < p.NewtonIterations; it++ {
		st.FunctionCalls++
		st.Solves++
		done := true
		for c := range g.Y {
			ps.Forcing(b.yNew[c], g.K[c], b.f[c])
			for i := range b.rhs[c] {
				b.rhs[c][i] = b.f[c][i] - (b.yNew[c][i]-b.yOld[c][i])/h
			}
			b.ls.solve(c, b.delta[c], b.rhs[c])
			for i, d := range b.delta[c] {
				b.yNew[c][i] += d
				if math.Abs(d) > p.AbsoluteTolerance+p.RelativeTolerance*math.Abs(b.yNew[c][i]) {
					done = false
				}
			}
		}
		if done {
			return true
		}
	}
	return false
}

package integrators

import (
	"math"

	"github.com/san-kum/chemsim/internal/chem"
)

// Two-stage, second-order L-stable Rosenbrock coefficients (ROS2).
var (
	rosGamma = 1 + 1/math.Sqrt2

	rosA21 = 1 / rosGamma
	rosC21 = -2 / rosGamma
	rosM1  = 3 / (2 * rosGamma)
	rosM2  = 1 / (2 * rosGamma)
	rosE1  = 1 / (2 * rosGamma)
	rosE2  = 1 / (2 * rosGamma)
)

const rosOrder = 2

// minStart is the initial step when neither HStart nor HMin is set.
const minStart = 1e-5

type Rosenbrock struct {
	params Parameters

	n, cells          int
	f, jac, k1, k2    [][]float64
	yNew, yErr, stage [][]float64
	ls                *linearSystem
}

func NewRosenbrock(p Parameters) *Rosenbrock {
	return &Rosenbrock{params: p.withDefaults()}
}

func (r *Rosenbrock) Name() string { return "rosenbrock" }

func (r *Rosenbrock) ensureScratch(n, cells int) {
	if r.n == n && r.cells == cells {
		return
	}
	r.n, r.cells = n, cells
	r.f = makeCells(cells, n)
	r.jac = makeCells(cells, n*n)
	r.k1 = makeCells(cells, n)
	r.k2 = makeCells(cells, n)
	r.yNew = makeCells(cells, n)
	r.yErr = makeCells(cells, n)
	r.stage = makeCells(cells, n)
	r.ls = newLinearSystem(n, cells)
}

func (r *Rosenbrock) Integrate(g *Group, tEnd float64) chem.Result {
	p := r.params
	ps := g.Processes
	n := ps.NumberOfSpecies()
	r.ensureScratch(n, len(g.Y))

	res := chem.Result{Status: chem.Running}
	st := &res.Stats

	hMin := math.Max(p.HMin, roundoff*tEnd)
	hMax := tEnd
	if p.HMax > 0 {
		hMax = math.Min(p.HMax, tEnd)
	}
	h := p.HStart
	if h <= 0 {
		h = math.Max(p.HMin, minStart)
	}
	h = math.Min(h, hMax)

	t := 0.0
	singular := 0
	rejectedLast := false

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

		for c, y := range g.Y {
			ps.Forcing(y, g.K[c], r.f[c])
			ps.Jacobian(y, g.K[c], r.jac[c])
		}
		st.FunctionCalls++
		st.JacobianUpdates++

		st.Decompositions++
		if !r.ls.factor(r.jac, 1/(hs*rosGamma)) {
			singular++
			if singular > p.MaxSingular {
				res.Status = chem.RepeatedlySingularMatrix
				break
			}
			h = hs / 2
			continue
		}

		for c, y := range g.Y {
			r.ls.solve(c, r.k1[c], r.f[c])
			for i := range y {
				r.stage[c][i] = y[i] + rosA21*r.k1[c][i]
			}
			ps.Forcing(r.stage[c], g.K[c], r.f[c])
			for i := range y {
				r.f[c][i] += rosC21 / hs * r.k1[c][i]
			}
			r.ls.solve(c, r.k2[c], r.f[c])
			for i := range y {
				r.yNew[c][i] = y[i] + rosM1*r.k1[c][i] + rosM2*r.k2[c][i]
				r.yErr[c][i] = rosE1*r.k1[c][i] + rosE2*r.k2[c][i]
			}
		}
		st.FunctionCalls++
		st.Solves += 2

		if status, bad := invalid(r.yNew); bad {
			res.Status = status
			break
		}

		errNorm := r.errorNorm(g.Y)
		fac := math.Min(p.FacMax, math.Max(p.FacMin, p.FacSafe/math.Pow(errNorm, 1.0/rosOrder)))

		if errNorm <= 1 {
			st.Accepted++
			t = advance(t, hs, tEnd)
			copyCells(g.Y, r.yNew)
			if rejectedLast {
				fac = math.Min(fac, 1)
			}
			rejectedLast = false
			h = math.Min(hs*fac, hMax)
		} else {
			st.Rejected++
			rejectedLast = true
			h = hs * fac
		}
	}

	if res.Status == chem.Running {
		res.Status = chem.Converged
	}
	st.FinalTime = t
	return res
}

// errorNorm is the RMS of the scaled error over every species of every cell.
func (r *Rosenbrock) errorNorm(y [][]float64) float64 {
	p := r.params
	sum := 0.0
	count := 0
	for c := range y {
		for i, v := range y[c] {
			scale := p.AbsoluteTolerance + p.RelativeTolerance*math.Max(math.Abs(v), math.Abs(r.yNew[c][i]))
			e := r.yErr[c][i] / scale
			sum += e * e
			count++
		}
	}
	if count == 0 {
		return 0
	}
	return math.Sqrt(sum / float64(count))
}

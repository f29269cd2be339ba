package integrators

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// linearSystem holds one LU decomposition of (diag*I - J) per grid cell.
type linearSystem struct {
	n  int
	a  *mat.Dense
	lu []mat.LU
}

func newLinearSystem(n, cells int) *linearSystem {
	return &linearSystem{
		n:  n,
		a:  mat.NewDense(n, n, nil),
		lu: make([]mat.LU, cells),
	}
}

// factor decomposes diag*I - jac[c] for every cell and reports whether all
// matrices were non-singular.
func (ls *linearSystem) factor(jac [][]float64, diag float64) bool {
	n := ls.n
	ok := true
	for c := range jac {
		for i := 0; i < n; i++ {
			for j := 0; j < n; j++ {
				v := -jac[c][i*n+j]
				if i == j {
					v += diag
				}
				ls.a.Set(i, j, v)
			}
		}
		ls.lu[c].Factorize(ls.a)
		if math.IsInf(ls.lu[c].Cond(), 1) {
			ok = false
		}
	}
	return ok
}

// solve writes the solution of the cell's system with right-hand side b to x.
// x and b must not overlap.
func (ls *linearSystem) solve(cell int, x, b []float64) {
	dst := mat.NewVecDense(ls.n, x)
	// ill-conditioned systems still return a usable solution
	_ = ls.lu[cell].SolveVecTo(dst, false, mat.NewVecDense(ls.n, b))
}

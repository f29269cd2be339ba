// Package optim searches run parameters for the best objective value.
package optim

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"math"
	"runtime"

	"golang.org/x/sync/errgroup"
)

// Objective evaluates one parameter point; lower is better.
type Objective func(ctx context.Context, params map[string]float64) (float64, error)

type GridSearch struct {
	paramNames []string
	ranges     [][]float64
	workers    int
}

func NewGridSearch(params []string, ranges [][]float64) *GridSearch {
	return &GridSearch{paramNames: params, ranges: ranges, workers: runtime.GOMAXPROCS(0)}
}

// WithWorkers bounds the number of points evaluated at once.
func (g *GridSearch) WithWorkers(n int) *GridSearch {
	if n > 0 {
		g.workers = n
	}
	return g
}

// Point is one evaluated parameter combination.
type Point struct {
	Params map[string]float64
	Value  float64
	Err    error
}

type Best struct {
	Params map[string]float64
	Value  float64
	// Points holds every evaluation in grid order.
	Points []Point
}

// Failed counts points whose objective returned an error.
func (b *Best) Failed() int {
	n := 0
	for _, p := range b.Points {
		if p.Err != nil {
			n++
		}
	}
	return n
}

// Points enumerates the grid, the last parameter varying fastest.
func (g *GridSearch) Points() []map[string]float64 {
	var out []map[string]float64
	g.searchRecursive(0, map[string]float64{}, &out)
	return out
}

func (g *GridSearch) searchRecursive(depth int, current map[string]float64, out *[]map[string]float64) {
	if depth == len(g.paramNames) {
		*out = append(*out, current)
		return
	}

	paramName := g.paramNames[depth]
	for _, val := range g.ranges[depth] {
		newParams := maps.Clone(current)
		newParams[paramName] = val
		g.searchRecursive(depth+1, newParams, out)
	}
}

// Search evaluates every point of the grid. Points whose objective fails
// or returns NaN are recorded and skipped; Search only fails when the grid
// is malformed, ctx ends, or no point could be evaluated.
func (g *GridSearch) Search(ctx context.Context, objective Objective) (*Best, error) {
	if len(g.paramNames) == 0 || len(g.paramNames) != len(g.ranges) {
		return nil, fmt.Errorf("grid search: %d names for %d ranges", len(g.paramNames), len(g.ranges))
	}
	for i, r := range g.ranges {
		if len(r) == 0 {
			return nil, fmt.Errorf("grid search: empty range for %s", g.paramNames[i])
		}
	}

	grid := g.Points()
	points := make([]Point, len(grid))

	eg, gctx := errgroup.WithContext(ctx)
	eg.SetLimit(g.workers)
	for i, params := range grid {
		eg.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			v, err := objective(gctx, params)
			if err == nil && math.IsNaN(v) {
				err = errors.New("objective is NaN")
			}
			points[i] = Point{Params: params, Value: v, Err: err}
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	best := &Best{Value: math.Inf(1), Points: points}
	for _, p := range points {
		if p.Err == nil && (best.Params == nil || p.Value < best.Value) {
			best.Value = p.Value
			best.Params = p.Params
		}
	}
	if best.Params == nil {
		return best, fmt.Errorf("grid search: all %d points failed: %w", len(points), points[0].Err)
	}
	return best, nil
}

// Linspace returns n evenly spaced values from lo to hi inclusive.
func Linspace(lo, hi float64, n int) []float64 {
	if n <= 1 {
		return []float64{lo}
	}
	out := make([]float64, n)
	step := (hi - lo) / float64(n-1)
	for i := range out {
		out[i] = lo + float64(i)*step
	}
	return out
}

// Logspace returns n values spaced evenly in log10 from lo to hi inclusive.
func Logspace(lo, hi float64, n int) []float64 {
	exps := Linspace(math.Log10(lo), math.Log10(hi), n)
	for i, e := range exps {
		exps[i] = math.Pow(10, e)
	}
	return exps
}

package automation

import (
	"context"
	"fmt"
	"maps"
	"math"
	"slices"

	"github.com/san-kum/chemsim/internal/config"
	"github.com/san-kum/chemsim/internal/mechanism"
	"github.com/san-kum/chemsim/internal/optim"
)

// Target is the final mean concentration a sweep tries to reach.
type Target struct {
	Species string
	Value   float64
}

// Apply returns a copy of base with params written into it. Names that are
// user-defined rate labels of the mechanism set rate parameters; all other
// names set initial concentrations.
func Apply(base *config.Config, labels []string, params map[string]float64) *config.Config {
	cfg := *base
	cfg.Initial = maps.Clone(base.Initial)
	cfg.RateParameters = maps.Clone(base.RateParameters)
	if cfg.Initial == nil {
		cfg.Initial = make(map[string]float64)
	}
	if cfg.RateParameters == nil {
		cfg.RateParameters = make(map[string]float64)
	}
	for name, v := range params {
		if slices.Contains(labels, name) {
			cfg.RateParameters[name] = v
		} else {
			cfg.Initial[name] = v
		}
	}
	return &cfg
}

// Sweep runs base once per grid point and ranks points by the distance of
// the target species' final concentration from the target value.
func Sweep(ctx context.Context, base *config.Config, grid *optim.GridSearch, target Target, opts Options) (*optim.Best, error) {
	mech, err := mechanism.Resolve(base.Mechanism)
	if err != nil {
		return nil, err
	}
	if !slices.Contains(mech.SpeciesNames(), target.Species) {
		return nil, fmt.Errorf("sweep: unknown target species %q", target.Species)
	}
	labels := mech.UserDefinedLabels()

	return grid.Search(ctx, func(ctx context.Context, params map[string]float64) (float64, error) {
		outcome, err := Execute(ctx, Apply(base, labels, params), opts)
		if err != nil {
			return 0, err
		}
		if n := len(outcome.Result.Errors); n > 0 {
			return 0, fmt.Errorf("%d failed steps: %w", n, outcome.Result.Errors[0])
		}
		v, _ := outcome.Result.Final(target.Species)
		return math.Abs(v - target.Value), nil
	})
}

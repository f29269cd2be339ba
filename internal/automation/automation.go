// Package automation runs box models from configs: one at a time, or as a
// scripted scenario of several runs.
package automation

import (
	"context"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/san-kum/chemsim/internal/chem"
	"github.com/san-kum/chemsim/internal/config"
	"github.com/san-kum/chemsim/internal/cpu"
	"github.com/san-kum/chemsim/internal/loader"
	"github.com/san-kum/chemsim/internal/mechanism"
	"github.com/san-kum/chemsim/internal/metrics"
	"github.com/san-kum/chemsim/internal/sim"
	"github.com/san-kum/chemsim/internal/solver"
)

type Options struct {
	Logger   *zap.Logger
	Observer solver.Observer
	// Loader defaults to loader.Default().
	Loader *loader.Loader
	// Metrics builds fresh run metrics; DefaultMetrics when nil.
	Metrics func() []sim.Metric
}

func DefaultMetrics() []sim.Metric {
	return []sim.Metric{metrics.NewStability(), metrics.NewEffort(), metrics.NewMassDrift()}
}

// Outcome is a finished run.
type Outcome struct {
	Name      string
	Config    *config.Config
	Mechanism string
	Solver    chem.SolverType
	Requested chem.SolverType
	Result    *sim.Result
	Elapsed   time.Duration
}

// Build resolves the mechanism of cfg and constructs its solver.
func Build(cfg *config.Config, opts Options) (*solver.Solver, *mechanism.Mechanism, error) {
	mech, err := mechanism.Resolve(cfg.Mechanism)
	if err != nil {
		return nil, nil, err
	}
	t, err := cfg.SolverType()
	if err != nil {
		return nil, nil, err
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	s, err := solver.New(mech, t, solver.Options{
		FallbackToCPU: cfg.FallbackToCPU,
		Loader:        opts.Loader,
		CPU: cpu.Options{
			VectorSize: cfg.VectorSize,
			Parameters: cfg.Integrator,
			Logger:     log,
		},
		Logger:   log,
		Observer: opts.Observer,
	})
	if err != nil {
		return nil, nil, err
	}
	return s, mech, nil
}

// Execute runs cfg to completion on a solver of its own. A cancelled run
// returns the partial outcome together with ctx.Err().
func Execute(ctx context.Context, cfg *config.Config, opts Options) (*Outcome, error) {
	s, mech, err := Build(cfg, opts)
	if err != nil {
		return nil, err
	}
	defer s.Close()

	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	build := opts.Metrics
	if build == nil {
		build = DefaultMetrics
	}
	simulator := sim.New(s, log)
	for _, m := range build() {
		simulator.AddMetric(m)
	}

	start := time.Now()
	result, err := simulator.Run(ctx, cfg.GetInitial(), cfg.GetSimConfig())
	outcome := &Outcome{
		Config:    cfg,
		Mechanism: mech.Name,
		Solver:    s.Type(),
		Requested: s.Requested(),
		Result:    result,
		Elapsed:   time.Since(start),
	}
	if err != nil {
		if result == nil {
			return nil, err
		}
		return outcome, err
	}
	return outcome, nil
}

// Scenario defines a scripted sequence of runs.
type Scenario struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	Steps       []Step `yaml:"steps"`
}

// Step is one run of a scenario; its config fields sit inline next to name.
type Step struct {
	Name   string
	Config *config.Config
}

func (s *Step) UnmarshalYAML(n *yaml.Node) error {
	var meta struct {
		Name string `yaml:"name"`
	}
	if err := n.Decode(&meta); err != nil {
		return err
	}
	cfg := config.DefaultConfig()
	cfg.Initial = nil
	if err := n.Decode(cfg); err != nil {
		return err
	}
	s.Name = meta.Name
	s.Config = cfg
	return nil
}

// LoadScenario loads a scenario from a YAML file and validates every step.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var scenario Scenario
	if err := yaml.Unmarshal(data, &scenario); err != nil {
		return nil, fmt.Errorf("scenario %s: %w", path, err)
	}
	if len(scenario.Steps) == 0 {
		return nil, fmt.Errorf("scenario %s: no steps", path)
	}
	for i, step := range scenario.Steps {
		if step.Name == "" {
			scenario.Steps[i].Name = fmt.Sprintf("step-%d", i+1)
		}
		if err := step.Config.Validate(); err != nil {
			return nil, fmt.Errorf("scenario %s step %d: %w", path, i+1, err)
		}
	}
	return &scenario, nil
}

// RunScenario executes all steps in order and stops at the first error.
// done, when set, is called after every finished step.
func RunScenario(ctx context.Context, scenario *Scenario, opts Options, done func(*Outcome)) ([]*Outcome, error) {
	outcomes := make([]*Outcome, 0, len(scenario.Steps))
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}

	for i, step := range scenario.Steps {
		log.Info("scenario step",
			zap.String("scenario", scenario.Name),
			zap.Int("step", i+1),
			zap.Int("of", len(scenario.Steps)),
			zap.String("name", step.Name))

		outcome, err := Execute(ctx, step.Config, opts)
		if err != nil {
			return outcomes, fmt.Errorf("step %d (%s): %w", i+1, step.Name, err)
		}
		outcome.Name = step.Name
		outcomes = append(outcomes, outcome)
		if done != nil {
			done(outcome)
		}
	}

	return outcomes, nil
}

// Package sim runs box-model scenarios: a backend, a uniformly initialised
// grid and a sequence of fixed-size chemistry steps.
package sim

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"

	"go.uber.org/zap"

	"github.com/san-kum/chemsim/internal/chem"
)

type Simulator struct {
	backend   chem.Backend
	log       *zap.Logger
	metrics   []Metric
	observers []Observer
}

func New(backend chem.Backend, log *zap.Logger) *Simulator {
	if log == nil {
		log = zap.NewNop()
	}
	return &Simulator{
		backend:   backend,
		log:       log.Named("sim"),
		metrics:   make([]Metric, 0),
		observers: make([]Observer, 0),
	}
}

func (s *Simulator) AddMetric(m Metric)     { s.metrics = append(s.metrics, m) }
func (s *Simulator) AddObserver(o Observer) { s.observers = append(s.observers, o) }

// Run integrates init for cfg.Duration seconds. The context is checked
// between steps; a cancelled run returns the partial result with ctx.Err().
func (s *Simulator) Run(ctx context.Context, init Initial, cfg Config) (*Result, error) {
	if err := validateConfig(cfg); err != nil {
		return nil, err
	}

	st, err := NewState(s.backend, init, cfg.Cells)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := Release(st); err != nil {
			s.log.Warn("release state", zap.Error(err))
		}
	}()

	species := st.SpeciesOrdering().Names()
	steps := int(math.Ceil(cfg.Duration/cfg.Dt - 1e-9))
	result := &Result{
		Species:        species,
		Times:          make([]float64, 0, steps+1),
		Concentrations: make([][]float64, 0, steps+1),
		Statuses:       make([]chem.Status, 0, steps),
		Metrics:        make(map[string]float64),
		Errors:         make([]error, 0),
	}

	for _, m := range s.metrics {
		m.Reset()
	}

	t := 0.0
	result.Times = append(result.Times, t)
	result.Concentrations = append(result.Concentrations, Means(st))

	for i := 0; i < steps; i++ {
		select {
		case <-ctx.Done():
			return result, ctx.Err()
		default:
		}

		dt := math.Min(cfg.Dt, cfg.Duration-t)
		res, err := s.backend.Solve(st, dt)
		if err != nil {
			return result, fmt.Errorf("step %d: %w", i, err)
		}
		t = math.Min(t+dt, cfg.Duration)
		if i == steps-1 {
			t = cfg.Duration
		}
		accumulate(&result.Stats, res.Stats, t)

		step := Step{Index: i, Time: t, Result: res, Concentrations: Means(st)}
		result.StepsTaken++
		result.Times = append(result.Times, t)
		result.Concentrations = append(result.Concentrations, step.Concentrations)
		result.Statuses = append(result.Statuses, res.Status)

		for _, m := range s.metrics {
			m.Observe(step)
		}
		for _, obs := range s.observers {
			obs.OnStep(step)
		}

		if failed(res.Status) {
			err := SimError{Time: t, Step: i, Status: res.Status, Message: "integration did not converge"}
			result.Errors = append(result.Errors, err)
			s.log.Warn("step failed", zap.Int("step", i), zap.Float64("t", t), zap.Stringer("status", res.Status))
			if cfg.StopOnFailure {
				break
			}
		}
	}

	for _, m := range s.metrics {
		result.Metrics[m.Name()] = m.Value()
	}
	return result, nil
}

func validateConfig(cfg Config) error {
	if !(cfg.Dt > 0) || math.IsInf(cfg.Dt, 0) {
		return fmt.Errorf("dt must be positive, got %f", cfg.Dt)
	}
	if !(cfg.Duration > 0) || math.IsInf(cfg.Duration, 0) {
		return fmt.Errorf("duration must be positive, got %f", cfg.Duration)
	}
	if cfg.Cells < 1 {
		return fmt.Errorf("cells must be at least 1, got %d", cfg.Cells)
	}
	return nil
}

// NewState creates a state of the given size on b with every cell set to init.
func NewState(b chem.Backend, init Initial, cells int) (chem.State, error) {
	st, err := b.CreateState(cells)
	if err != nil {
		return nil, fmt.Errorf("create state: %w", err)
	}
	if err := Apply(st, init); err != nil {
		return nil, errors.Join(err, Release(st))
	}
	return st, nil
}

// Release frees the backend resources held by st, if it holds any. States
// of in-process backends are plain memory and need no release.
func Release(st chem.State) error {
	if c, ok := st.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// Apply writes init into every grid cell of st.
func Apply(st chem.State, init Initial) error {
	for cell := 0; cell < st.NumberOfGridCells(); cell++ {
		if err := st.SetConditions(cell, init.Conditions); err != nil {
			return err
		}
		for name, v := range init.Concentrations {
			if err := st.SetConcentration(cell, name, v); err != nil {
				return fmt.Errorf("initial concentration: %w", err)
			}
		}
		for label, v := range init.RateParameters {
			if err := st.SetRateParameter(cell, label, v); err != nil {
				return fmt.Errorf("rate parameter: %w", err)
			}
		}
	}
	return nil
}

// Means averages every species over the grid cells, in species order.
func Means(st chem.State) []float64 {
	n := st.NumberOfSpecies()
	v := st.VectorSize()
	cells := st.NumberOfGridCells()
	strides := st.ConcentrationsStrides()
	data := st.Concentrations()

	out := make([]float64, n)
	for col := range out {
		sum := 0.0
		for cell := 0; cell < cells; cell++ {
			sum += data[strides.Index(cell, col, n, v)]
		}
		out[col] = sum / float64(cells)
	}
	return out
}

func accumulate(total *chem.Stats, s chem.Stats, t float64) {
	total.FunctionCalls += s.FunctionCalls
	total.JacobianUpdates += s.JacobianUpdates
	total.NumberOfSteps += s.NumberOfSteps
	total.Accepted += s.Accepted
	total.Rejected += s.Rejected
	total.Decompositions += s.Decompositions
	total.Solves += s.Solves
	total.FinalTime = t
}

func failed(s chem.Status) bool {
	return s != chem.Converged && s != chem.AcceptingUnconvergedIntegration
}

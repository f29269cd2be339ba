// Package metrics holds per-run figures of merit for box-model runs and the
// Prometheus collectors fed by every Solve.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/san-kum/chemsim/internal/chem"
)

const (
	solverLabel = "solver"
	statusLabel = "status"
)

// SolveMetrics records every Solve outcome. It satisfies solver.Observer.
type SolveMetrics struct {
	solves    *prometheus.CounterVec
	failures  *prometheus.CounterVec
	duration  *prometheus.HistogramVec
	steps     *prometheus.CounterVec
	rejected  *prometheus.CounterVec
	gridCells *prometheus.GaugeVec
}

func NewSolveMetrics(namespace string, registerer prometheus.Registerer) (*SolveMetrics, error) {
	m := &SolveMetrics{
		solves: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "solves_total",
				Help:      "number of completed solve calls by final integrator status",
			},
			[]string{solverLabel, statusLabel},
		),
		failures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "solve_errors_total",
				Help:      "number of solve calls rejected with an error",
			},
			[]string{solverLabel},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "solve_duration_seconds",
				Help:      "wall time of a solve call",
				Buckets:   prometheus.ExponentialBuckets(1e-5, 4, 12),
			},
			[]string{solverLabel},
		),
		steps: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "integrator_steps_total",
				Help:      "number of internal integrator steps",
			},
			[]string{solverLabel},
		),
		rejected: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "integrator_rejected_steps_total",
				Help:      "number of internal integrator steps rejected by error control",
			},
			[]string{solverLabel},
		),
		gridCells: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "grid_cells",
				Help:      "number of grid cells in the last solved state",
			},
			[]string{solverLabel},
		),
	}

	for _, c := range []prometheus.Collector{m.solves, m.failures, m.duration, m.steps, m.rejected, m.gridCells} {
		if err := registerer.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *SolveMetrics) ObserveSolve(t chem.SolverType, cells int, elapsed time.Duration, res chem.Result, err error) {
	solver := t.String()
	if err != nil {
		m.failures.WithLabelValues(solver).Inc()
		return
	}
	m.solves.WithLabelValues(solver, res.Status.String()).Inc()
	m.duration.WithLabelValues(solver).Observe(elapsed.Seconds())
	m.steps.WithLabelValues(solver).Add(float64(res.Stats.NumberOfSteps))
	m.rejected.WithLabelValues(solver).Add(float64(res.Stats.Rejected))
	m.gridCells.WithLabelValues(solver).Set(float64(cells))
}

package automation

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/san-kum/chemsim/internal/chem"
	"github.com/san-kum/chemsim/internal/config"
	"github.com/san-kum/chemsim/internal/loader"
)

func missingModule() *loader.Loader {
	return loader.New(loader.Options{
		Paths: []string{"/nonexistent/chemsim_cuda.so"},
		Opener: loader.OpenerFunc(func(path string) (loader.Library, error) {
			return nil, errors.New("no such file")
		}),
	})
}

func TestExecute(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Duration = 600

	outcome, err := Execute(context.Background(), cfg, Options{})
	require.NoError(t, err)

	assert.Equal(t, "decay", outcome.Mechanism)
	assert.Equal(t, chem.Rosenbrock, outcome.Solver)
	assert.Equal(t, 10, outcome.Result.StepsTaken)
	assert.Equal(t, 1.0, outcome.Result.Metrics["stability"])

	a, ok := outcome.Result.Final("A")
	require.True(t, ok)
	assert.Less(t, a, 1.0)
}

func TestExecuteFallsBackToCPU(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Solver = "cuda"
	cfg.Duration = 120

	_, err := Execute(context.Background(), cfg, Options{Loader: missingModule()})
	assert.ErrorIs(t, err, chem.ErrBackendUnavailable)

	cfg.FallbackToCPU = true
	outcome, err := Execute(context.Background(), cfg, Options{Loader: missingModule()})
	require.NoError(t, err)
	assert.Equal(t, chem.CudaRosenbrock, outcome.Requested)
	assert.Equal(t, chem.Rosenbrock, outcome.Solver)
}

func TestExecuteCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	outcome, err := Execute(ctx, config.DefaultConfig(), Options{})
	require.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, outcome)
	assert.Zero(t, outcome.Result.StepsTaken)
}

func TestExecuteUnknownMechanism(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Mechanism = filepath.Join(t.TempDir(), "missing.yaml")
	_, err := Execute(context.Background(), cfg, Options{})
	assert.Error(t, err)
}

const scenarioYAML = `
name: decay-study
description: slow then stiff loss of B
steps:
  - name: slow
    mechanism: decay
    dt: 60
    duration: 600
    initial: {A: 1}
    rate_parameters: {USER.B_loss: 1.0e-4}
  - mechanism: decay
    solver: backward_euler
    dt: 10
    duration: 100
    cells: 3
    initial: {A: 1}
    rate_parameters: {USER.B_loss: 50}
`

func writeScenario(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "scenario.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func TestLoadScenario(t *testing.T) {
	sc, err := LoadScenario(writeScenario(t, scenarioYAML))
	require.NoError(t, err)

	assert.Equal(t, "decay-study", sc.Name)
	require.Len(t, sc.Steps, 2)
	assert.Equal(t, "slow", sc.Steps[0].Name)
	assert.Equal(t, "step-2", sc.Steps[1].Name)

	// unset fields keep their defaults
	assert.Equal(t, config.DefaultSolver, sc.Steps[0].Config.Solver)
	assert.Equal(t, config.DefaultTemperature, sc.Steps[0].Config.Conditions.Temperature)
	assert.Equal(t, 3, sc.Steps[1].Config.Cells)
	assert.Equal(t, 50.0, sc.Steps[1].Config.RateParameters["USER.B_loss"])
}

func TestLoadScenarioErrors(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"no steps", "name: empty\n"},
		{"invalid step", "steps:\n  - mechanism: decay\n    dt: -1\n"},
		{"syntax", "steps: [\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadScenario(writeScenario(t, tt.body))
			assert.Error(t, err)
		})
	}

	_, err := LoadScenario(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestRunScenario(t *testing.T) {
	sc, err := LoadScenario(writeScenario(t, scenarioYAML))
	require.NoError(t, err)

	var seen []string
	outcomes, err := RunScenario(context.Background(), sc, Options{}, func(o *Outcome) {
		seen = append(seen, o.Name)
	})
	require.NoError(t, err)
	require.Len(t, outcomes, 2)
	assert.Equal(t, []string{"slow", "step-2"}, seen)
	assert.Equal(t, chem.BackwardEuler, outcomes[1].Solver)
	assert.Equal(t, 10, outcomes[1].Result.StepsTaken)
}

func TestRunScenarioStopsAtFirstError(t *testing.T) {
	sc, err := LoadScenario(writeScenario(t, scenarioYAML))
	require.NoError(t, err)
	sc.Steps[0].Config.Solver = "cuda"

	outcomes, err := RunScenario(context.Background(), sc, Options{Loader: missingModule()}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "step 1 (slow)")
	assert.Empty(t, outcomes)
}

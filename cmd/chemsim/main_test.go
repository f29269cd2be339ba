package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/san-kum/chemsim/internal/chem"
	"github.com/san-kum/chemsim/internal/loader"
	"github.com/san-kum/chemsim/internal/mechanism"
	"github.com/san-kum/chemsim/internal/storage"
)

func parsed(t *testing.T, args ...string) *cobra.Command {
	t.Helper()
	cmd, _, err := newRootCmd().Find(args[:1])
	require.NoError(t, err)
	require.NoError(t, cmd.ParseFlags(args[1:]))
	return cmd
}

func TestLoadConfigFlagsOverridePreset(t *testing.T) {
	cfg, err := loadConfig(parsed(t, "run", "--preset", "stiff", "--dt", "5"))
	require.NoError(t, err)

	assert.Equal(t, "decay", cfg.Mechanism)
	assert.Equal(t, "backward_euler", cfg.Solver)
	assert.Equal(t, 5.0, cfg.Dt)
	assert.Equal(t, 600.0, cfg.Duration)
	assert.Equal(t, 4, cfg.Cells)
	assert.Equal(t, 50.0, cfg.RateParameters["USER.B_loss"])
}

func TestLoadConfigErrors(t *testing.T) {
	_, err := loadConfig(parsed(t, "run", "--preset", "missing"))
	assert.ErrorContains(t, err, "unknown preset")

	_, err = loadConfig(parsed(t, "run", "--solver", "simplex"))
	assert.ErrorIs(t, err, chem.ErrSolverTypeNotSupported)

	_, err = loadConfig(parsed(t, "run", "--cells", "0"))
	assert.Error(t, err)
}

func TestRunStoresRun(t *testing.T) {
	dir := t.TempDir()
	root := newRootCmd()
	root.SetArgs([]string{"run", "--data", dir, "--time", "600", "--log-level", "error"})
	require.NoError(t, root.Execute())

	runs, err := storage.New(dir).List()
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "decay", runs[0].Mechanism)
	assert.Equal(t, "Rosenbrock", runs[0].Solver)
	assert.Equal(t, 10, runs[0].Steps)
	assert.Contains(t, runs[0].Metrics, "stability")
}

func TestBackendRowsWithoutModule(t *testing.T) {
	m, _ := mechanism.Preset("box5")
	ld := loader.New(loader.Options{Paths: []string{filepath.Join(t.TempDir(), "missing.so")}})

	rows := backendRows(m, ld)
	require.Len(t, rows, len(chem.SolverTypes()))
	for _, r := range rows[:4] {
		assert.True(t, r.Available, r.Name)
		assert.Positive(t, r.MaxCells)
	}
	gpu := rows[4]
	assert.Equal(t, "CudaRosenbrock", gpu.Name)
	assert.False(t, gpu.Available)
	assert.Contains(t, gpu.Note, "not available")
}

func TestMechanismWritesFile(t *testing.T) {
	out := filepath.Join(t.TempDir(), "chapman.yaml")
	root := newRootCmd()
	root.SetArgs([]string{"mechanism", "chapman", "--out", out})
	require.NoError(t, root.Execute())

	m, err := mechanism.Load(out)
	require.NoError(t, err)
	assert.Equal(t, "chapman", m.Name)
	assert.Len(t, m.Reactions, 6)
}

func TestParseParam(t *testing.T) {
	name, values, err := parseParam("USER.B_loss=0, 0.5,1")
	require.NoError(t, err)
	assert.Equal(t, "USER.B_loss", name)
	assert.Equal(t, []float64{0, 0.5, 1}, values)

	name, values, err = parseParam("A=1e-2:1:3")
	require.NoError(t, err)
	assert.Equal(t, "A", name)
	require.Len(t, values, 3)
	assert.InEpsilon(t, 0.1, values[1], 1e-12)

	for _, bad := range []string{"A", "=1", "A=", "A=x", "A=0:1:3", "A=1:2:0"} {
		_, _, err := parseParam(bad)
		assert.Error(t, err, bad)
	}
}

func TestParseTarget(t *testing.T) {
	tgt, err := parseTarget("B=0.25")
	require.NoError(t, err)
	assert.Equal(t, "B", tgt.Species)
	assert.Equal(t, 0.25, tgt.Value)

	_, err = parseTarget("B")
	assert.Error(t, err)
	_, err = parseTarget("B=high")
	assert.Error(t, err)
}

func TestBatchStoresEveryStep(t *testing.T) {
	dir := t.TempDir()
	scenario := filepath.Join(dir, "scenario.yaml")
	require.NoError(t, os.WriteFile(scenario, []byte(`
name: pair
steps:
  - name: ros
    duration: 120
    initial: {A: 1}
  - name: be
    solver: backward_euler
    duration: 120
    initial: {A: 2}
`), 0644))

	root := newRootCmd()
	root.SetArgs([]string{"batch", scenario, "--data", filepath.Join(dir, "runs"), "--log-level", "error"})
	require.NoError(t, root.Execute())

	runs, err := storage.New(filepath.Join(dir, "runs")).List()
	require.NoError(t, err)
	require.Len(t, runs, 2)
	solvers := []string{runs[0].Solver, runs[1].Solver}
	assert.ElementsMatch(t, []string{"Rosenbrock", "BackwardEuler"}, solvers)
}

func TestExportSVG(t *testing.T) {
	dir := t.TempDir()
	root := newRootCmd()
	root.SetArgs([]string{"run", "--data", dir, "--time", "300", "--log-level", "error"})
	require.NoError(t, root.Execute())

	runs, err := storage.New(dir).List()
	require.NoError(t, err)
	require.Len(t, runs, 1)

	out := filepath.Join(dir, "run.svg")
	root = newRootCmd()
	root.SetArgs([]string{"export", runs[0].ID, "--data", dir, "--svg", out, "--species", "A,B"})
	require.NoError(t, root.Execute())

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, 2, strings.Count(string(data), "<path"))
}

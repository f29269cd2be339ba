package cpu

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/san-kum/chemsim/internal/chem"
	"github.com/san-kum/chemsim/internal/mechanism"
)

var cpuTypes = []chem.SolverType{
	chem.Rosenbrock,
	chem.RosenbrockStandardOrder,
	chem.BackwardEuler,
	chem.BackwardEulerStandardOrder,
}

var room = chem.Conditions{Temperature: 298.15, Pressure: 101325}

func preset(t *testing.T, name string) *mechanism.Mechanism {
	t.Helper()
	m, ok := mechanism.Preset(name)
	require.True(t, ok)
	return m
}

func newBackend(t *testing.T, name string, st chem.SolverType, opts Options) *Backend {
	t.Helper()
	b, err := New(preset(t, name), st, opts)
	require.NoError(t, err)
	return b
}

func snapshot(s chem.State) []float64 {
	return append([]float64(nil), s.Concentrations()...)
}

func TestFiveSpeciesWithoutReactions(t *testing.T) {
	tests := []struct {
		name  string
		cells [][]float64
	}{
		{"two cells", [][]float64{{1, 2, 3, 4, 5}, {6, 7, 8, 9, 10}}},
		{"three cells", [][]float64{{1, 2, 3, 4, 5}, {2, 4, 6, 8, 10}, {3, 6, 9, 12, 15}}},
	}
	for _, tt := range tests {
		for _, st := range cpuTypes {
			t.Run(tt.name+"/"+st.String(), func(t *testing.T) {
				b := newBackend(t, "box5", st, Options{})
				s, err := b.CreateState(len(tt.cells))
				require.NoError(t, err)

				names := s.SpeciesOrdering().Names()
				for cell, values := range tt.cells {
					require.NoError(t, s.SetConditions(cell, room))
					for i, name := range names {
						require.NoError(t, s.SetConcentration(cell, name, values[i]))
					}
				}
				before := snapshot(s)

				res, err := b.Solve(s, 100)
				require.NoError(t, err)
				assert.Equal(t, chem.Converged, res.Status)
				assert.Equal(t, 100.0, res.Stats.FinalTime)
				assert.Equal(t, before, s.Concentrations())

				for cell, values := range tt.cells {
					for i, name := range names {
						got, err := s.Concentration(cell, name)
						require.NoError(t, err)
						assert.Equal(t, values[i], got, "cell %d %s", cell, name)
					}
				}
			})
		}
	}
}

func TestZeroTimeStepIsIdentity(t *testing.T) {
	for _, st := range cpuTypes {
		t.Run(st.String(), func(t *testing.T) {
			b := newBackend(t, "chapman", st, Options{})
			s, err := b.CreateState(5)
			require.NoError(t, err)
			for i := range s.Concentrations() {
				s.Concentrations()[i] = float64(i) + 0.5
			}
			before := snapshot(s)

			res, err := b.Solve(s, 0)
			require.NoError(t, err)
			assert.Equal(t, chem.Converged, res.Status)
			assert.Equal(t, before, s.Concentrations())
		})
	}
}

func TestNegativeTimeStep(t *testing.T) {
	b := newBackend(t, "decay", chem.Rosenbrock, Options{})
	s, err := b.CreateState(1)
	require.NoError(t, err)

	_, err = b.Solve(s, -1)
	assert.ErrorIs(t, err, chem.ErrInvalidTimeStep)
	assert.Zero(t, b.Solves())
}

func TestDecayAcrossLayouts(t *testing.T) {
	results := make(map[chem.SolverType][]float64)
	for _, st := range cpuTypes {
		b := newBackend(t, "decay", st, Options{VectorSize: 3})
		s, err := b.CreateState(7)
		require.NoError(t, err)
		for cell := 0; cell < 7; cell++ {
			require.NoError(t, s.SetConditions(cell, room))
			require.NoError(t, s.SetConcentration(cell, "A", 1+float64(cell)))
			require.NoError(t, s.SetRateParameter(cell, "USER.B_loss", 1e-3))
		}

		res, err := b.Solve(s, 60)
		require.NoError(t, err)
		require.Equal(t, chem.Converged, res.Status, st.String())

		var got []float64
		for cell := 0; cell < 7; cell++ {
			a, _ := s.Concentration(cell, "A")
			bb, _ := s.Concentration(cell, "B")
			c, _ := s.Concentration(cell, "C")
			assert.InDelta(t, 1+float64(cell), a+bb+c, 1e-9, "mass in cell %d", cell)
			assert.Less(t, a, 1+float64(cell))
			got = append(got, a)
		}
		results[st] = got
	}

	// grouping changes the shared step size, not the answer
	assert.InDeltaSlice(t, results[chem.Rosenbrock], results[chem.RosenbrockStandardOrder], 1e-2)
	assert.InDeltaSlice(t, results[chem.BackwardEuler], results[chem.BackwardEulerStandardOrder], 1e-2)
}

func TestCrossBackendStateRejected(t *testing.T) {
	vector := newBackend(t, "decay", chem.Rosenbrock, Options{})
	standard := newBackend(t, "decay", chem.RosenbrockStandardOrder, Options{})
	be := newBackend(t, "decay", chem.BackwardEulerStandardOrder, Options{})
	other := newBackend(t, "chapman", chem.RosenbrockStandardOrder, Options{})

	s, err := standard.CreateState(2)
	require.NoError(t, err)
	require.NoError(t, s.SetConcentration(0, "A", 1))
	before := snapshot(s)

	for name, b := range map[string]*Backend{"layout": vector, "scheme": be, "mechanism": other} {
		t.Run(name, func(t *testing.T) {
			_, err := b.Solve(s, 10)
			require.Error(t, err)
			assert.True(t, errors.Is(err, chem.ErrUnsupportedCombination))

			var ce *chem.CombinationError
			require.ErrorAs(t, err, &ce)
			assert.Equal(t, b.Type(), ce.Solver)
			assert.Zero(t, b.Solves())
		})
	}
	assert.Equal(t, before, s.Concentrations())
}

func TestVectorSizeMismatchRejected(t *testing.T) {
	wide := newBackend(t, "decay", chem.Rosenbrock, Options{VectorSize: 8})
	narrow := newBackend(t, "decay", chem.Rosenbrock, Options{VectorSize: 2})

	s, err := wide.CreateState(4)
	require.NoError(t, err)
	_, err = narrow.Solve(s, 1)
	assert.ErrorIs(t, err, chem.ErrUnsupportedCombination)
}

func TestUnsupportedSolverType(t *testing.T) {
	for _, st := range []chem.SolverType{chem.CudaRosenbrock, chem.UnknownSolver, chem.SolverType(99)} {
		_, err := New(preset(t, "decay"), st, Options{})
		require.Error(t, err)
		assert.ErrorIs(t, err, chem.ErrSolverTypeNotSupported)
		assert.Contains(t, err.Error(), st.String())
	}
}

func TestCreateStateLimits(t *testing.T) {
	b := newBackend(t, "decay", chem.BackwardEuler, Options{MaximumNumberOfGridCells: 10})
	assert.Equal(t, 10, b.MaximumNumberOfGridCells())

	_, err := b.CreateState(11)
	assert.ErrorIs(t, err, chem.ErrTooManyGridCells)
	_, err = b.CreateState(0)
	assert.ErrorIs(t, err, chem.ErrInvalidGridCells)

	s, err := b.CreateState(10)
	require.NoError(t, err)
	assert.Equal(t, 10, s.NumberOfGridCells())
}

func TestVectorSize(t *testing.T) {
	tests := []struct {
		st   chem.SolverType
		opts Options
		want int
	}{
		{chem.Rosenbrock, Options{}, DefaultVectorSize},
		{chem.BackwardEuler, Options{VectorSize: 16}, 16},
		{chem.RosenbrockStandardOrder, Options{VectorSize: 16}, 1},
		{chem.BackwardEulerStandardOrder, Options{}, 1},
	}
	for _, tt := range tests {
		b := newBackend(t, "box5", tt.st, tt.opts)
		assert.Equal(t, tt.want, b.VectorSize(), tt.st.String())

		s, err := b.CreateState(1)
		require.NoError(t, err)
		assert.Equal(t, tt.want, s.VectorSize())
	}
}

func TestOrderings(t *testing.T) {
	b := newBackend(t, "chapman", chem.Rosenbrock, Options{})
	assert.Equal(t, []string{"M", "O2", "O", "O1D", "O3"}, b.SpeciesOrdering().Names())
	assert.Equal(t, []string{"PHOTO.O2_1", "PHOTO.O3_1", "PHOTO.O3_2"}, b.RateParameterOrdering().Names())
}

func TestOrderingsAreCopies(t *testing.T) {
	for _, st := range cpuTypes {
		t.Run(st.String(), func(t *testing.T) {
			b := newBackend(t, "box5", st, Options{})
			s, err := b.CreateState(1)
			require.NoError(t, err)

			o := b.SpeciesOrdering()
			o["A"], o["C"] = 2, 0
			so := s.SpeciesOrdering()
			so["B"] = 4
			b.RateParameterOrdering()["X"] = 9

			assert.Equal(t, 0, s.SpeciesOrdering()["A"])
			assert.Equal(t, 1, b.SpeciesOrdering()["B"])
			assert.Empty(t, b.RateParameterOrdering())

			require.NoError(t, s.SetConcentration(0, "A", 7))
			assert.Equal(t, 7.0, s.Concentrations()[0])

			later, err := b.CreateState(1)
			require.NoError(t, err)
			assert.Equal(t, []string{"A", "B", "C", "D", "E"}, later.SpeciesOrdering().Names())

			_, err = b.Solve(s, 1)
			require.NoError(t, err)
		})
	}
}

func TestCallbacksOverwriteRateParameters(t *testing.T) {
	cb := chem.NewCallbacks()
	cb.Register("USER.B_loss", func(c chem.Conditions) float64 { return c.Temperature * 1e-5 })

	b := newBackend(t, "decay", chem.RosenbrockStandardOrder, Options{Callbacks: cb})
	s, err := b.CreateState(2)
	require.NoError(t, err)
	require.NoError(t, s.SetConditions(0, chem.Conditions{Temperature: 200}))
	require.NoError(t, s.SetConditions(1, chem.Conditions{Temperature: 300}))

	_, err = b.Solve(s, 1)
	require.NoError(t, err)

	v0, _ := s.RateParameter(0, "USER.B_loss")
	v1, _ := s.RateParameter(1, "USER.B_loss")
	assert.InDelta(t, 2e-3, v0, 1e-15)
	assert.InDelta(t, 3e-3, v1, 1e-15)
	assert.EqualValues(t, 1, b.Solves())
}

func TestRateParametersDriveSolve(t *testing.T) {
	b := newBackend(t, "decay", chem.Rosenbrock, Options{})
	s, err := b.CreateState(2)
	require.NoError(t, err)
	for cell := 0; cell < 2; cell++ {
		require.NoError(t, s.SetConditions(cell, room))
		require.NoError(t, s.SetConcentration(cell, "B", 1))
	}
	require.NoError(t, s.SetRateParameter(1, "USER.B_loss", 0.1))

	_, err = b.Solve(s, 10)
	require.NoError(t, err)

	c0, _ := s.Concentration(0, "C")
	c1, _ := s.Concentration(1, "C")
	assert.Zero(t, c0)
	assert.Greater(t, c1, 0.5)
}

package state

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/san-kum/chemsim/internal/chem"
)

func testOrderings() Orderings {
	return Orderings{
		Species:        chem.NewOrdering([]string{"A", "B", "C"}),
		RateParameters: chem.NewOrdering([]string{"PHOTO.A", "EMIS.B"}),
	}
}

func layouts(cells int) map[string]chem.State {
	return map[string]chem.State{
		"standard": New[*StandardMatrix](chem.RosenbrockStandardOrder, Standard{}, cells, testOrderings()),
		"vector":   New[*VectorMatrix](chem.Rosenbrock, Vector{Size: 4}, cells, testOrderings()),
	}
}

func TestStridesMatchNamedAccess(t *testing.T) {
	for cells := 1; cells <= 17; cells++ {
		for name, st := range layouts(cells) {
			species := st.SpeciesOrdering()
			params := st.RateParameterOrdering()
			v := st.VectorSize()

			for cell := 0; cell < cells; cell++ {
				for sp, col := range species {
					want := float64(cell*100 + col)
					require.NoError(t, st.SetConcentration(cell, sp, want))

					idx := st.ConcentrationsStrides().Index(cell, col, st.NumberOfSpecies(), v)
					require.Equal(t, want, st.Concentrations()[idx], "%s cells=%d cell=%d species=%s", name, cells, cell, sp)
				}
				for label, col := range params {
					want := float64(-cell*10 - col)
					idx := st.UserDefinedRateParametersStrides().Index(cell, col, st.NumberOfUserDefinedRateParameters(), v)
					st.UserDefinedRateParameters()[idx] = want

					got, err := st.RateParameter(cell, label)
					require.NoError(t, err)
					require.Equal(t, want, got, "%s cells=%d cell=%d label=%s", name, cells, cell, label)
				}
			}
		}
	}
}

func TestVectorMatrixLayout(t *testing.T) {
	m := NewVectorMatrix(5, 3, 4)
	require.Equal(t, 2, m.Groups())
	require.Len(t, m.Data(), 2*3*4)

	m.Set(5, 2, 7)
	// group 1, column 2, row 1
	require.Equal(t, 7.0, m.Data()[(1*3+2)*4+1])
	require.Equal(t, chem.Strides{Row: 1, Column: 4}, m.Strides())
}

func TestStandardMatrixLayout(t *testing.T) {
	m := NewStandardMatrix(2, 3)
	m.Set(1, 2, 9)
	require.Equal(t, 9.0, m.Data()[5])
	require.Equal(t, chem.Strides{Row: 3, Column: 1}, m.Strides())
	require.Equal(t, 1, m.VectorSize())
}

func TestBuffersAreLive(t *testing.T) {
	st := New[*VectorMatrix](chem.Rosenbrock, Vector{Size: 2}, 3, testOrderings())
	st.Concentrations()[0] = 42

	got, err := st.Concentration(0, "A")
	require.NoError(t, err)
	require.Equal(t, 42.0, got)

	st.Conditions()[2] = chem.Conditions{Temperature: 250}
	require.Equal(t, 250.0, st.Conditions()[2].Temperature)
}

func TestNamedAccessErrors(t *testing.T) {
	st := New[*StandardMatrix](chem.RosenbrockStandardOrder, Standard{}, 2, testOrderings())

	err := st.SetConcentration(0, "Z", 1)
	require.True(t, errors.Is(err, chem.ErrUnknownVariable))

	_, err = st.Concentration(2, "A")
	require.Error(t, err)

	require.Error(t, st.SetConditions(-1, chem.Conditions{}))
	require.NoError(t, st.SetConditions(1, chem.Conditions{Temperature: 300}))
}

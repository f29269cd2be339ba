package integrators

import (
	"math"
	"testing"

	"github.com/san-kum/chemsim/internal/chem"
	"github.com/san-kum/chemsim/internal/kinetics"
	"github.com/san-kum/chemsim/internal/mechanism"
)

// decayGroup builds A -> B with rate k for each initial A in a0.
func decayGroup(t testing.TB, k float64, a0 ...float64) *Group {
	t.Helper()
	m := &mechanism.Mechanism{
		Species: []mechanism.Species{{Name: "A"}, {Name: "B"}},
		Reactions: []mechanism.Reaction{{
			Reactants: []mechanism.Term{{Species: "A"}},
			Products:  []mechanism.Term{{Species: "B"}},
			Rate:      mechanism.RateConstant{Type: mechanism.ArrheniusRate, Arrhenius: &mechanism.Arrhenius{A: k}},
		}},
	}
	if err := m.Validate(); err != nil {
		t.Fatal(err)
	}
	ps, err := kinetics.NewProcessSet(m, chem.NewOrdering(m.SpeciesNames()), chem.Ordering{})
	if err != nil {
		t.Fatal(err)
	}
	g := &Group{Processes: ps, Y: makeCells(len(a0), 2), K: makeCells(len(a0), 1)}
	for c, a := range a0 {
		g.Y[c][0] = a
		g.K[c][0] = k
	}
	return g
}

func tight() Parameters {
	p := DefaultParameters()
	p.AbsoluteTolerance = 1e-10
	p.RelativeTolerance = 1e-6
	p.MaxSteps = 100000
	return p
}

func TestRosenbrockDecayMatchesAnalytic(t *testing.T) {
	g := decayGroup(t, 0.5, 1, 2, 0.25)
	res := NewRosenbrock(tight()).Integrate(g, 2)

	if res.Status != chem.Converged {
		t.Fatalf("status = %v, want Converged", res.Status)
	}
	if res.Stats.FinalTime != 2 {
		t.Errorf("final time = %v, want 2", res.Stats.FinalTime)
	}
	for c, a0 := range []float64{1, 2, 0.25} {
		want := a0 * math.Exp(-1)
		if got := g.Y[c][0]; math.Abs(got-want) > 1e-5*a0 {
			t.Errorf("cell %d: A = %v, want %v", c, got, want)
		}
		if total := g.Y[c][0] + g.Y[c][1]; math.Abs(total-a0) > 1e-12 {
			t.Errorf("cell %d: mass not conserved: %v", c, total)
		}
	}
	if res.Stats.Accepted == 0 || res.Stats.FunctionCalls == 0 || res.Stats.Decompositions == 0 {
		t.Errorf("counters not updated: %+v", res.Stats)
	}
}

func TestBackwardEulerDecay(t *testing.T) {
	g := decayGroup(t, 0.5, 1)
	res := NewBackwardEuler(DefaultParameters()).Integrate(g, 2)

	if res.Status != chem.Converged {
		t.Fatalf("status = %v, want Converged", res.Status)
	}
	a := g.Y[0][0]
	if a <= 0 || a >= 1 {
		t.Errorf("A = %v, want within (0, 1)", a)
	}
	if total := a + g.Y[0][1]; math.Abs(total-1) > 1e-9 {
		t.Errorf("mass not conserved: %v", total)
	}
}

func TestZeroRateLeavesConcentrations(t *testing.T) {
	for _, integ := range []Integrator{NewRosenbrock(DefaultParameters()), NewBackwardEuler(DefaultParameters())} {
		t.Run(integ.Name(), func(t *testing.T) {
			g := decayGroup(t, 0, 3, 4)
			res := integ.Integrate(g, 100)
			if res.Status != chem.Converged {
				t.Fatalf("status = %v, want Converged", res.Status)
			}
			if g.Y[0][0] != 3 || g.Y[1][0] != 4 || g.Y[0][1] != 0 {
				t.Errorf("concentrations changed: %v", g.Y)
			}
		})
	}
}

func TestNaNDetected(t *testing.T) {
	for _, integ := range []Integrator{NewRosenbrock(DefaultParameters()), NewBackwardEuler(DefaultParameters())} {
		t.Run(integ.Name(), func(t *testing.T) {
			g := decayGroup(t, 1, math.NaN())
			if res := integ.Integrate(g, 1); res.Status != chem.NaNDetected {
				t.Errorf("status = %v, want NaNDetected", res.Status)
			}
		})
	}
}

func TestMaxStepsExceeded(t *testing.T) {
	p := DefaultParameters()
	p.MaxSteps = 1

	g := decayGroup(t, 1, 1)
	res := NewRosenbrock(p).Integrate(g, 100)
	if res.Status != chem.ConvergenceExceededMaxSteps {
		t.Errorf("status = %v, want ConvergenceExceededMaxSteps", res.Status)
	}
	if res.Stats.FinalTime >= 100 {
		t.Errorf("final time = %v, want < 100", res.Stats.FinalTime)
	}
}

func TestBackwardEulerAcceptsUnconverged(t *testing.T) {
	p := DefaultParameters()
	p.NewtonIterations = 1
	p.AbsoluteTolerance = 1e-300
	p.RelativeTolerance = 1e-300
	p.Reductions = []float64{0.5}

	g := decayGroup(t, 0.5, 1)
	res := NewBackwardEuler(p).Integrate(g, 1)
	if res.Status != chem.AcceptingUnconvergedIntegration {
		t.Errorf("status = %v, want AcceptingUnconvergedIntegration", res.Status)
	}
	if res.Stats.FinalTime != 1 {
		t.Errorf("final time = %v, want 1", res.Stats.FinalTime)
	}
}

// decayAndGrowth builds A -> B with rate kDecay and C -> 2C with rate kGrowth
// in a single cell.
func decayAndGrowth(t testing.TB, kDecay, kGrowth, a0, c0 float64) *Group {
	t.Helper()
	m := &mechanism.Mechanism{
		Species: []mechanism.Species{{Name: "A"}, {Name: "B"}, {Name: "C"}},
		Reactions: []mechanism.Reaction{
			{
				Reactants: []mechanism.Term{{Species: "A"}},
				Products:  []mechanism.Term{{Species: "B"}},
				Rate:      mechanism.RateConstant{Type: mechanism.ArrheniusRate, Arrhenius: &mechanism.Arrhenius{A: kDecay}},
			},
			{
				Reactants: []mechanism.Term{{Species: "C"}},
				Products:  []mechanism.Term{{Species: "C", Coefficient: 2}},
				Rate:      mechanism.RateConstant{Type: mechanism.ArrheniusRate, Arrhenius: &mechanism.Arrhenius{A: kGrowth}},
			},
		},
	}
	if err := m.Validate(); err != nil {
		t.Fatal(err)
	}
	ps, err := kinetics.NewProcessSet(m, chem.NewOrdering(m.SpeciesNames()), chem.Ordering{})
	if err != nil {
		t.Fatal(err)
	}
	g := &Group{Processes: ps, Y: makeCells(1, 3), K: makeCells(1, 2)}
	g.Y[0][0] = a0
	g.Y[0][2] = c0
	g.K[0][0] = kDecay
	g.K[0][1] = kGrowth
	return g
}

func TestBackwardEulerReductionsRestoredAfterConvergedStep(t *testing.T) {
	// One Newton iteration converges only while every update stays below
	// AbsoluteTolerance. The fast decay of A fails the first steps and uses up
	// the single reduction; after A has decayed the steps converge, until the
	// growth of C fails a doubled step again. That step must be retried.
	p := DefaultParameters()
	p.NewtonIterations = 1
	p.AbsoluteTolerance = 0.03
	p.RelativeTolerance = 1e-300
	p.HStart = 1
	p.HMax = 1
	p.Reductions = []float64{0.5}

	g := decayAndGrowth(t, 10, 0.5, 1, 0.01)
	res := NewBackwardEuler(p).Integrate(g, 4)

	if res.Status != chem.AcceptingUnconvergedIntegration {
		t.Errorf("status = %v, want AcceptingUnconvergedIntegration", res.Status)
	}
	if res.Stats.FinalTime != 4 {
		t.Errorf("final time = %v, want 4", res.Stats.FinalTime)
	}
	if res.Stats.Rejected != 2 {
		t.Errorf("rejected = %d, want 2", res.Stats.Rejected)
	}
	if res.Stats.Accepted != 8 {
		t.Errorf("accepted = %d, want 8", res.Stats.Accepted)
	}
}

func BenchmarkRosenbrock(b *testing.B) {
	integ := NewRosenbrock(DefaultParameters())
	for i := 0; i < b.N; i++ {
		g := decayGroup(b, 0.5, 1, 1, 1, 1)
		integ.Integrate(g, 10)
	}
}

func BenchmarkBackwardEuler(b *testing.B) {
	integ := NewBackwardEuler(DefaultParameters())
	for i := 0; i < b.N; i++ {
		g := decayGroup(b, 0.5, 1, 1, 1, 1)
		integ.Integrate(g, 10)
	}
}

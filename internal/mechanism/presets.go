package mechanism

import "sort"

var presets = map[string]func() *Mechanism{
	"box5":    box5,
	"decay":   decay,
	"chapman": chapman,
	"troe":    troe,
}

// Preset returns a fresh, validated copy of a built-in mechanism.
func Preset(name string) (*Mechanism, bool) {
	fn, ok := presets[name]
	if !ok {
		return nil, false
	}
	m := fn()
	if err := m.Validate(); err != nil {
		panic("mechanism: invalid preset " + name + ": " + err.Error())
	}
	return m, true
}

// ListPresets returns the built-in mechanism names, sorted.
func ListPresets() []string {
	names := make([]string, 0, len(presets))
	for name := range presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func box5() *Mechanism {
	return &Mechanism{
		Name:    "box5",
		Species: []Species{{Name: "A"}, {Name: "B"}, {Name: "C"}, {Name: "D"}, {Name: "E"}},
	}
}

func decay() *Mechanism {
	return &Mechanism{
		Name:    "decay",
		Species: []Species{{Name: "A"}, {Name: "B"}, {Name: "C"}},
		Reactions: []Reaction{
			{
				Name:      "A->B",
				Reactants: []Term{{Species: "A"}},
				Products:  []Term{{Species: "B"}},
				Rate:      RateConstant{Type: ArrheniusRate, Arrhenius: &Arrhenius{A: 4.0e-3}},
			},
			{
				Name:      "B->C",
				Reactants: []Term{{Species: "B"}},
				Products:  []Term{{Species: "C"}},
				Rate:      RateConstant{Type: UserDefinedRate, UserDefined: &UserDefined{Label: "USER.B_loss"}},
			},
		},
	}
}

func chapman() *Mechanism {
	photo := func(label string) RateConstant {
		return RateConstant{Type: UserDefinedRate, UserDefined: &UserDefined{Label: label}}
	}
	return &Mechanism{
		Name: "chapman",
		Species: []Species{
			{Name: "M", Constant: true},
			{Name: "O2", MolecularWeight: 0.032},
			{Name: "O", MolecularWeight: 0.016},
			{Name: "O1D", MolecularWeight: 0.016},
			{Name: "O3", MolecularWeight: 0.048},
		},
		Reactions: []Reaction{
			{
				Name:      "O2_1",
				Reactants: []Term{{Species: "O2"}},
				Products:  []Term{{Species: "O", Coefficient: 2}},
				Rate:      photo("PHOTO.O2_1"),
			},
			{
				Name:      "O3_1",
				Reactants: []Term{{Species: "O3"}},
				Products:  []Term{{Species: "O1D"}, {Species: "O2"}},
				Rate:      photo("PHOTO.O3_1"),
			},
			{
				Name:      "O3_2",
				Reactants: []Term{{Species: "O3"}},
				Products:  []Term{{Species: "O"}, {Species: "O2"}},
				Rate:      photo("PHOTO.O3_2"),
			},
			{
				Name:      "O1D_quench",
				Reactants: []Term{{Species: "O1D"}, {Species: "M"}},
				Products:  []Term{{Species: "O"}, {Species: "M"}},
				Rate:      RateConstant{Type: ArrheniusRate, Arrhenius: &Arrhenius{A: 2.15e-11 * avogadroCm3, C: 110}},
			},
			{
				Name:      "O3_formation",
				Reactants: []Term{{Species: "O"}, {Species: "O2"}, {Species: "M"}},
				Products:  []Term{{Species: "O3"}, {Species: "M"}},
				Rate:      RateConstant{Type: ArrheniusRate, Arrhenius: &Arrhenius{A: 6.0e-34 * avogadroCm3 * avogadroCm3, B: -2.4}},
			},
			{
				Name:      "O_O3",
				Reactants: []Term{{Species: "O"}, {Species: "O3"}},
				Products:  []Term{{Species: "O2", Coefficient: 2}},
				Rate:      RateConstant{Type: ArrheniusRate, Arrhenius: &Arrhenius{A: 8.0e-12 * avogadroCm3, C: -2060}},
			},
		},
	}
}

func troe() *Mechanism {
	return &Mechanism{
		Name:    "troe",
		Species: []Species{{Name: "A"}, {Name: "B"}},
		Reactions: []Reaction{
			{
				Name:      "A->B",
				Reactants: []Term{{Species: "A"}},
				Products:  []Term{{Species: "B"}},
				Rate: RateConstant{Type: TroeRate, Troe: &Troe{
					K0A: 4.4e-32 * avogadroCm3, K0B: -1.3,
					KinfA: 4.7e-11, KinfB: -0.2,
				}},
			},
		},
	}
}

// avogadroCm3 converts molecule cm-3 based rates to mol m-3 based rates.
const avogadroCm3 = 6.02214076e23 * 1e-6

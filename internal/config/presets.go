package config

import (
	"sort"

	"github.com/san-kum/chemsim/internal/chem"
)

var Presets = map[string]map[string]*Config{
	"decay": {
		"slow": {
			Mechanism: "decay", Solver: "rosenbrock", Dt: 60, Duration: 3600, Cells: 1,
			Initial:        map[string]float64{"A": 1},
			RateParameters: map[string]float64{"USER.B_loss": 1e-4},
		},
		"stiff": {
			Mechanism: "decay", Solver: "backward_euler", Dt: 10, Duration: 600, Cells: 4,
			Initial:        map[string]float64{"A": 1},
			RateParameters: map[string]float64{"USER.B_loss": 50},
		},
	},
	"chapman": {
		"noon": {
			Mechanism: "chapman", Solver: "rosenbrock", Dt: 300, Duration: 86400, Cells: 1,
			Conditions: chem.Conditions{Temperature: 227, Pressure: 1200},
			Initial:    map[string]float64{"M": 9.9e17, "O2": 2.1e17, "O3": 1e12},
			RateParameters: map[string]float64{
				"PHOTO.O2_1": 1e-11,
				"PHOTO.O3_1": 1e-4,
				"PHOTO.O3_2": 1e-3,
			},
		},
		"night": {
			Mechanism: "chapman", Solver: "rosenbrock_standard", Dt: 300, Duration: 43200, Cells: 1,
			Conditions: chem.Conditions{Temperature: 220, Pressure: 1200},
			Initial:    map[string]float64{"M": 9.9e17, "O2": 2.1e17, "O3": 1e12, "O": 1e7},
		},
	},
	"troe": {
		"surface": {
			Mechanism: "troe", Solver: "rosenbrock", Dt: 1, Duration: 60, Cells: 8,
			Conditions: chem.Conditions{Temperature: 298.15, Pressure: 101325},
			Initial:    map[string]float64{"A": 1},
		},
	},
}

// GetPreset returns a copy of the named preset with defaults filled in.
func GetPreset(mechanism, preset string) *Config {
	mechPresets, ok := Presets[mechanism]
	if !ok {
		return nil
	}
	p, ok := mechPresets[preset]
	if !ok {
		return nil
	}
	cfg := DefaultConfig()
	cfg.Mechanism = p.Mechanism
	cfg.Solver = p.Solver
	cfg.Dt = p.Dt
	cfg.Duration = p.Duration
	cfg.Cells = p.Cells
	if p.Conditions.Temperature > 0 {
		cfg.Conditions = p.Conditions
	}
	cfg.Initial = clone(p.Initial)
	cfg.RateParameters = clone(p.RateParameters)
	return cfg
}

func ListPresets(mechanism string) []string {
	mechPresets, ok := Presets[mechanism]
	if !ok {
		return nil
	}
	names := make([]string, 0, len(mechPresets))
	for name := range mechPresets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func clone(m map[string]float64) map[string]float64 {
	if m == nil {
		return nil
	}
	out := make(map[string]float64, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Package config reads and writes box-model run files.
package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/san-kum/chemsim/internal/chem"
	"github.com/san-kum/chemsim/internal/integrators"
	"github.com/san-kum/chemsim/internal/sim"
)

const (
	DefaultMechanism   = "decay"
	DefaultSolver      = "rosenbrock"
	DefaultDt          = 60.0
	DefaultDuration    = 3600.0
	DefaultCells       = 1
	DefaultTemperature = 298.15
	DefaultPressure    = 101325.0
)

type Config struct {
	Mechanism      string                 `yaml:"mechanism"`
	Solver         string                 `yaml:"solver"`
	FallbackToCPU  bool                   `yaml:"fallback_to_cpu"`
	Dt             float64                `yaml:"dt"`
	Duration       float64                `yaml:"duration"`
	Cells          int                    `yaml:"cells"`
	VectorSize     int                    `yaml:"vector_size,omitempty"`
	Conditions     chem.Conditions        `yaml:"conditions"`
	Initial        map[string]float64     `yaml:"initial"`
	RateParameters map[string]float64     `yaml:"rate_parameters,omitempty"`
	Integrator     integrators.Parameters `yaml:"integrator"`
	Log            LogConfig              `yaml:"log"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

func DefaultConfig() *Config {
	return &Config{
		Mechanism: DefaultMechanism,
		Solver:    DefaultSolver,
		Dt:        DefaultDt,
		Duration:  DefaultDuration,
		Cells:     DefaultCells,
		Conditions: chem.Conditions{
			Temperature: DefaultTemperature,
			Pressure:    DefaultPressure,
		},
		Initial:    map[string]float64{"A": 1},
		Integrator: integrators.DefaultParameters(),
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := DefaultConfig()
	// a run file replaces the default initial box instead of merging into it
	cfg.Initial = nil
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// Validate checks the fields a run cannot start without.
func (c *Config) Validate() error {
	var errs []error
	if c.Mechanism == "" {
		errs = append(errs, errors.New("mechanism is required"))
	}
	if _, err := chem.ParseSolverType(c.Solver); err != nil {
		errs = append(errs, err)
	}
	if !(c.Dt > 0) {
		errs = append(errs, fmt.Errorf("dt must be positive, got %v", c.Dt))
	}
	if !(c.Duration > 0) {
		errs = append(errs, fmt.Errorf("duration must be positive, got %v", c.Duration))
	}
	if c.Cells < 1 {
		errs = append(errs, fmt.Errorf("cells must be at least 1, got %d", c.Cells))
	}
	if c.Conditions.Temperature <= 0 {
		errs = append(errs, fmt.Errorf("temperature must be positive, got %v", c.Conditions.Temperature))
	}
	return errors.Join(errs...)
}

func (c *Config) SolverType() (chem.SolverType, error) {
	return chem.ParseSolverType(c.Solver)
}

func (c *Config) GetInitial() sim.Initial {
	return sim.Initial{
		Conditions:     c.Conditions,
		Concentrations: c.Initial,
		RateParameters: c.RateParameters,
	}
}

func (c *Config) GetSimConfig() sim.Config {
	return sim.Config{
		Dt:            c.Dt,
		Duration:      c.Duration,
		Cells:         c.Cells,
		StopOnFailure: true,
	}
}

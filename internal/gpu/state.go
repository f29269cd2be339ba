package gpu

import (
	"errors"

	"github.com/san-kum/chemsim/internal/compute"
	"github.com/san-kum/chemsim/internal/state"
)

// conditionWidth is the number of values per cell in the conditions buffer:
// temperature, pressure, air density.
const conditionWidth = 3

// State keeps the host buffers callers read and write, mirrored by device
// buffers that are only synchronized inside Solve.
type State struct {
	*state.State[*state.VectorMatrix]

	backend *Backend

	conc   compute.Buffer
	params compute.Buffer
	conds  compute.Buffer

	condHost []float64
	freed    bool
}

func (s *State) upload() error {
	for cell, c := range s.Conditions() {
		c = c.WithAirDensity()
		s.condHost[cell*conditionWidth] = c.Temperature
		s.condHost[cell*conditionWidth+1] = c.Pressure
		s.condHost[cell*conditionWidth+2] = c.AirDensity
	}
	return errors.Join(
		s.conc.Upload(s.Concentrations()),
		s.params.Upload(s.UserDefinedRateParameters()),
		s.conds.Upload(s.condHost),
	)
}

func (s *State) download() error {
	return s.conc.Download(s.Concentrations())
}

// Close frees the device buffers of s. Host values stay readable, but the
// state can no longer be solved. Closing after the backend closed is a no-op.
func (s *State) Close() error {
	b := s.backend
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.states[s]; !ok {
		return nil
	}
	delete(b.states, s)
	return s.free()
}

func (s *State) free() error {
	if s.freed {
		return nil
	}
	s.freed = true
	return errors.Join(s.conc.Free(), s.params.Free(), s.conds.Free())
}

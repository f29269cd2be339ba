package chem

import (
	"errors"
	"fmt"
)

// Domain errors for backend and state operations.
var (
	// ErrSolverTypeNotSupported indicates a selector the backend cannot build.
	ErrSolverTypeNotSupported = errors.New("chem: solver type not supported")

	// ErrUnsupportedCombination indicates a state handed to a backend that did not create its layout.
	ErrUnsupportedCombination = errors.New("chem: unsupported solver/state combination")

	// ErrTooManyGridCells indicates a state request above the backend maximum.
	ErrTooManyGridCells = errors.New("chem: number of grid cells exceeds backend maximum")

	// ErrInvalidGridCells indicates a state request for fewer than one grid cell.
	ErrInvalidGridCells = errors.New("chem: number of grid cells must be at least 1")

	// ErrInvalidTimeStep indicates a negative or non-finite time step.
	ErrInvalidTimeStep = errors.New("chem: invalid time step")

	// ErrBackendUnavailable indicates the requested backend cannot be used in this process.
	ErrBackendUnavailable = errors.New("chem: requested backend not available")

	// ErrNoDevices indicates the GPU module loaded but reports no usable device.
	ErrNoDevices = errors.New("chem: no GPU devices available")

	// ErrUnknownVariable indicates a species or rate parameter name missing from the ordering.
	ErrUnknownVariable = errors.New("chem: unknown variable")

	// ErrClosed indicates use of a backend after its handle was released.
	ErrClosed = errors.New("chem: backend closed")
)

// SolverTypeError names the selector a backend refused to build.
type SolverTypeError struct {
	Type    SolverType
	Backend string
}

func (e *SolverTypeError) Error() string {
	return fmt.Sprintf("%s backend: solver type not supported: %s", e.Backend, e.Type)
}

func (e *SolverTypeError) Unwrap() error {
	return ErrSolverTypeNotSupported
}

// CombinationError reports a state that does not belong to the backend it was passed to.
type CombinationError struct {
	Solver SolverType
	State  SolverType
	Reason string
}

func (e *CombinationError) Error() string {
	return fmt.Sprintf("unsupported solver/state combination: solver %s, state %s: %s", e.Solver, e.State, e.Reason)
}

func (e *CombinationError) Unwrap() error {
	return ErrUnsupportedCombination
}

// IsUnavailable reports whether err means the backend could not be used here,
// as opposed to a configuration or contract failure.
func IsUnavailable(err error) bool {
	return errors.Is(err, ErrBackendUnavailable) || errors.Is(err, ErrNoDevices)
}

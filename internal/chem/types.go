package chem

import (
	"fmt"
	"maps"
	"math"
	"sort"
	"strings"
)

// SolverType selects an integration scheme, a memory layout and a device.
type SolverType int

const (
	UnknownSolver SolverType = iota
	// Rosenbrock uses the vector-grouped layout on the CPU.
	Rosenbrock
	// RosenbrockStandardOrder uses the row-major layout on the CPU.
	RosenbrockStandardOrder
	// BackwardEuler uses the vector-grouped layout on the CPU.
	BackwardEuler
	// BackwardEulerStandardOrder uses the row-major layout on the CPU.
	BackwardEulerStandardOrder
	// CudaRosenbrock runs in the optional GPU module.
	CudaRosenbrock
)

var solverTypeNames = map[SolverType]string{
	Rosenbrock:                 "Rosenbrock",
	RosenbrockStandardOrder:    "RosenbrockStandardOrder",
	BackwardEuler:              "BackwardEuler",
	BackwardEulerStandardOrder: "BackwardEulerStandardOrder",
	CudaRosenbrock:             "CudaRosenbrock",
}

func (t SolverType) String() string {
	if name, ok := solverTypeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("SolverType(%d)", int(t))
}

// IsGPU reports whether the selector must be served by the GPU module.
func (t SolverType) IsGPU() bool { return t == CudaRosenbrock }

// IsVectorOrdered reports whether the selector uses the vector-grouped layout.
func (t SolverType) IsVectorOrdered() bool {
	return t == Rosenbrock || t == BackwardEuler || t == CudaRosenbrock
}

// SolverTypes lists every known selector in declaration order.
func SolverTypes() []SolverType {
	return []SolverType{Rosenbrock, RosenbrockStandardOrder, BackwardEuler, BackwardEulerStandardOrder, CudaRosenbrock}
}

// ParseSolverType accepts the canonical names plus the short CLI aliases.
func ParseSolverType(s string) (SolverType, error) {
	key := strings.ToLower(strings.TrimSpace(s))
	key = strings.NewReplacer("-", "", "_", "", " ", "").Replace(key)
	switch key {
	case "rosenbrock", "vectorrosenbrock", "ros":
		return Rosenbrock, nil
	case "rosenbrockstandardorder", "rosenbrockstandard", "rosstd":
		return RosenbrockStandardOrder, nil
	case "backwardeuler", "vectorbackwardeuler", "be":
		return BackwardEuler, nil
	case "backwardeulerstandardorder", "backwardeulerstandard", "bestd":
		return BackwardEulerStandardOrder, nil
	case "cudarosenbrock", "cuda", "gpu":
		return CudaRosenbrock, nil
	}
	return UnknownSolver, fmt.Errorf("%w: %q", ErrSolverTypeNotSupported, s)
}

// Conditions are the environmental conditions of one grid cell.
type Conditions struct {
	Temperature float64 `yaml:"temperature" json:"temperature"` // K
	Pressure    float64 `yaml:"pressure" json:"pressure"`       // Pa
	AirDensity  float64 `yaml:"air_density" json:"air_density"` // mol m-3
}

// GasConstant is the universal gas constant in J K-1 mol-1.
const GasConstant = 8.31446261815324

// WithAirDensity fills AirDensity from the ideal gas law when it is unset.
func (c Conditions) WithAirDensity() Conditions {
	if c.AirDensity == 0 && c.Temperature > 0 {
		c.AirDensity = c.Pressure / (GasConstant * c.Temperature)
	}
	return c
}

// Ordering maps a species name or rate parameter label to its column in a
// grid cell's variable block.
type Ordering map[string]int

// Names returns the names sorted by column index.
func (o Ordering) Names() []string {
	names := make([]string, 0, len(o))
	for name := range o {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool { return o[names[i]] < o[names[j]] })
	return names
}

// Equal reports whether both orderings hold the same name/index pairs.
func (o Ordering) Equal(other Ordering) bool {
	if len(o) != len(other) {
		return false
	}
	for k, v := range o {
		if w, ok := other[k]; !ok || w != v {
			return false
		}
	}
	return true
}

// Clone returns an independent copy. Backends and states hand out clones so
// their own column assignment never changes.
func (o Ordering) Clone() Ordering { return maps.Clone(o) }

// NewOrdering assigns columns to names in the given order.
func NewOrdering(names []string) Ordering {
	o := make(Ordering, len(names))
	for i, n := range names {
		o[n] = i
	}
	return o
}

// Strides describe how to step through a flat buffer.
//
// For V = VectorSize and N variables the flat index of (cell, variable) is
//
//	(cell/V)*N*V + (cell%V)*Row + variable*Column
//
// which reduces to cell*N + variable for the standard layout (V = 1).
type Strides struct {
	Row    int
	Column int
}

// Index returns the flat index of (cell, variable) for n variables per cell
// and vector size v.
func (s Strides) Index(cell, variable, n, v int) int {
	if v < 1 {
		v = 1
	}
	return (cell/v)*n*v + (cell%v)*s.Row + variable*s.Column
}

// Status is the terminal state of one Solve call.
type Status int

const (
	NotYetCalled Status = iota
	Running
	Converged
	ConvergenceExceededMaxSteps
	StepSizeTooSmall
	RepeatedlySingularMatrix
	NaNDetected
	InfDetected
	AcceptingUnconvergedIntegration
)

var statusNames = [...]string{
	"NotYetCalled",
	"Running",
	"Converged",
	"ConvergenceExceededMaxSteps",
	"StepSizeTooSmall",
	"RepeatedlySingularMatrix",
	"NaNDetected",
	"InfDetected",
	"AcceptingUnconvergedIntegration",
}

func (s Status) String() string {
	if int(s) >= 0 && int(s) < len(statusNames) {
		return statusNames[s]
	}
	return fmt.Sprintf("Status(%d)", int(s))
}

// Severity orders terminal statuses so merged results keep the worst outcome.
func (s Status) Severity() int {
	switch s {
	case Converged:
		return 0
	case AcceptingUnconvergedIntegration:
		return 1
	case ConvergenceExceededMaxSteps:
		return 2
	case StepSizeTooSmall:
		return 3
	case RepeatedlySingularMatrix:
		return 4
	case InfDetected:
		return 5
	case NaNDetected:
		return 6
	}
	return -1
}

// Stats counts the work done during one Solve call.
type Stats struct {
	FunctionCalls   uint64  `json:"function_calls"`
	JacobianUpdates uint64  `json:"jacobian_updates"`
	NumberOfSteps   uint64  `json:"number_of_steps"`
	Accepted        uint64  `json:"accepted"`
	Rejected        uint64  `json:"rejected"`
	Decompositions  uint64  `json:"decompositions"`
	Solves          uint64  `json:"solves"`
	FinalTime       float64 `json:"final_time"`
}

// Add accumulates counters; FinalTime keeps the smallest time reached so a
// merged record reports how far every group got.
func (s *Stats) Add(o Stats) {
	s.FunctionCalls += o.FunctionCalls
	s.JacobianUpdates += o.JacobianUpdates
	s.NumberOfSteps += o.NumberOfSteps
	s.Accepted += o.Accepted
	s.Rejected += o.Rejected
	s.Decompositions += o.Decompositions
	s.Solves += o.Solves
	s.FinalTime = math.Min(s.FinalTime, o.FinalTime)
}

// Result is returned by every Solve call that could be attempted.
type Result struct {
	Status Status
	Stats  Stats
}

// Merge folds a group result into r, keeping the most severe status.
func (r *Result) Merge(o Result) {
	if o.Status.Severity() > r.Status.Severity() {
		r.Status = o.Status
	}
	r.Stats.Add(o.Stats)
}

// NewResult starts a merge at the given final time.
func NewResult(finalTime float64) Result {
	return Result{Status: Converged, Stats: Stats{FinalTime: finalTime}}
}

// Package state holds the numeric buffers a solver integrates in place.
//
// Two layouts are provided. StandardMatrix is row-major with one grid cell's
// variables contiguous. VectorMatrix packs groups of V grid cells so that
// each variable of a group is contiguous, which suits SIMD-width loops.
package state

import "github.com/san-kum/chemsim/internal/chem"

// Matrix is a flat buffer of rows (grid cells) by columns (variables).
type Matrix interface {
	Rows() int
	Cols() int
	VectorSize() int
	Index(row, col int) int
	At(row, col int) float64
	Set(row, col int, v float64)
	Data() []float64
	Strides() chem.Strides
}

// StandardMatrix stores element (r, c) at r*cols + c.
type StandardMatrix struct {
	rows, cols int
	data       []float64
}

func NewStandardMatrix(rows, cols int) *StandardMatrix {
	return &StandardMatrix{rows: rows, cols: cols, data: make([]float64, rows*cols)}
}

func (m *StandardMatrix) Rows() int               { return m.rows }
func (m *StandardMatrix) Cols() int               { return m.cols }
func (m *StandardMatrix) VectorSize() int         { return 1 }
func (m *StandardMatrix) Index(r, c int) int      { return r*m.cols + c }
func (m *StandardMatrix) At(r, c int) float64     { return m.data[r*m.cols+c] }
func (m *StandardMatrix) Set(r, c int, v float64) { m.data[r*m.cols+c] = v }
func (m *StandardMatrix) Data() []float64         { return m.data }
func (m *StandardMatrix) Strides() chem.Strides   { return chem.Strides{Row: m.cols, Column: 1} }

// VectorMatrix stores element (r, c) at ((r/V)*cols + c)*V + r%V. The buffer
// is padded to a whole number of groups.
type VectorMatrix struct {
	rows, cols, size int
	data             []float64
}

func NewVectorMatrix(rows, cols, vectorSize int) *VectorMatrix {
	if vectorSize < 1 {
		vectorSize = 1
	}
	groups := (rows + vectorSize - 1) / vectorSize
	return &VectorMatrix{
		rows: rows,
		cols: cols,
		size: vectorSize,
		data: make([]float64, groups*cols*vectorSize),
	}
}

func (m *VectorMatrix) Rows() int       { return m.rows }
func (m *VectorMatrix) Cols() int       { return m.cols }
func (m *VectorMatrix) VectorSize() int { return m.size }

func (m *VectorMatrix) Index(r, c int) int {
	return ((r/m.size)*m.cols+c)*m.size + r%m.size
}

func (m *VectorMatrix) At(r, c int) float64     { return m.data[m.Index(r, c)] }
func (m *VectorMatrix) Set(r, c int, v float64) { m.data[m.Index(r, c)] = v }
func (m *VectorMatrix) Data() []float64         { return m.data }
func (m *VectorMatrix) Strides() chem.Strides   { return chem.Strides{Row: 1, Column: m.size} }

// Groups returns the number of V-sized groups, counting a partial last group.
func (m *VectorMatrix) Groups() int { return (m.rows + m.size - 1) / m.size }

// Layout builds matrices of one concrete type.
type Layout[M Matrix] interface {
	New(rows, cols int) M
	VectorSize() int
}

// Standard is the row-major layout.
type Standard struct{}

func (Standard) New(rows, cols int) *StandardMatrix { return NewStandardMatrix(rows, cols) }
func (Standard) VectorSize() int                    { return 1 }

// Vector is the blocked layout with groups of Size grid cells.
type Vector struct{ Size int }

func (v Vector) New(rows, cols int) *VectorMatrix { return NewVectorMatrix(rows, cols, v.Size) }
func (v Vector) VectorSize() int                  { return v.Size }

package symbolic

import (
	"fmt"
	"strings"
)

// Matrix is a dense row-major matrix of expressions.
type Matrix struct {
	rows, cols int
	data       []Expr
}

// NewMatrix returns a rows x cols matrix of zero constants.
func NewMatrix(rows, cols int) *Matrix {
	data := make([]Expr, rows*cols)
	for i := range data {
		data[i] = Const(0)
	}
	return &Matrix{rows: rows, cols: cols, data: data}
}

// NewMatrixFrom returns a matrix built from row-major data.
func NewMatrixFrom(rows, cols int, data []Expr) (*Matrix, error) {
	if len(data) != rows*cols {
		return nil, fmt.Errorf("%w: %d elements for %dx%d matrix", ErrDims, len(data), rows, cols)
	}
	d := make([]Expr, len(data))
	copy(d, data)
	return &Matrix{rows: rows, cols: cols, data: d}, nil
}

// ColumnMatrix returns v as a len(v) x 1 matrix.
func ColumnMatrix(v Vector) *Matrix {
	m, _ := NewMatrixFrom(len(v), 1, v)
	return m
}

// ScalarMatrix returns e as a 1x1 matrix.
func ScalarMatrix(e Expr) *Matrix {
	return &Matrix{rows: 1, cols: 1, data: []Expr{e}}
}

// Dims returns matrix dimensions.
func (m *Matrix) Dims() (r, c int) { return m.rows, m.cols }

// At returns element (i, j).
func (m *Matrix) At(i, j int) Expr { return m.data[i*m.cols+j] }

// Set sets element (i, j).
func (m *Matrix) Set(i, j int, e Expr) { m.data[i*m.cols+j] = e }

// Row returns row i as a vector.
func (m *Matrix) Row(i int) Vector {
	v := make(Vector, m.cols)
	copy(v, m.data[i*m.cols:(i+1)*m.cols])
	return v
}

// Col returns column j as a vector.
func (m *Matrix) Col(j int) Vector {
	v := make(Vector, m.rows)
	for i := range v {
		v[i] = m.At(i, j)
	}
	return v
}

// T returns the transpose of m.
func (m *Matrix) T() *Matrix {
	t := NewMatrix(m.cols, m.rows)
	for i := 0; i < m.rows; i++ {
		for j := 0; j < m.cols; j++ {
			t.Set(j, i, m.At(i, j))
		}
	}
	return t
}

// MulVec returns m * v.
func (m *Matrix) MulVec(v Vector) (Vector, error) {
	if m.cols != len(v) {
		return nil, fmt.Errorf("%w: %dx%d times %d", ErrDims, m.rows, m.cols, len(v))
	}
	out := make(Vector, m.rows)
	for i := range out {
		e, _ := m.Row(i).Dot(v)
		out[i] = e
	}
	return out, nil
}

// VecMul returns v' * m as a vector.
func (m *Matrix) VecMul(v Vector) (Vector, error) {
	return m.T().MulVec(v)
}

// Add returns m + o.
func (m *Matrix) Add(o *Matrix) (*Matrix, error) {
	if m.rows != o.rows || m.cols != o.cols {
		return nil, fmt.Errorf("%w: add %dx%d and %dx%d", ErrDims, m.rows, m.cols, o.rows, o.cols)
	}
	out := NewMatrix(m.rows, m.cols)
	for i := range m.data {
		out.data[i] = Sum(m.data[i], o.data[i])
	}
	return out, nil
}

// Scale returns s * m.
func (m *Matrix) Scale(s Expr) *Matrix {
	out := NewMatrix(m.rows, m.cols)
	for i := range m.data {
		out.data[i] = Product(s, m.data[i])
	}
	return out
}

// Vars adds the names of all variables in m to set.
func (m *Matrix) Vars(set map[string]struct{}) {
	for _, e := range m.data {
		e.Vars(set)
	}
}

// String returns a row-wise representation of m.
func (m *Matrix) String() string {
	rows := make([]string, m.rows)
	for i := range rows {
		rows[i] = m.Row(i).String()
	}
	return "[" + strings.Join(rows, ", ") + "]"
}

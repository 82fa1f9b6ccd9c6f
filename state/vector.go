package state

import (
	"fmt"
	"math"
	"strings"

	"gonum.org/v1/gonum/mat"
)

// Vector is a state or input vector with named components.
// It implements mat.Vector. Arithmetic returns new vectors.
type Vector struct {
	layout *Layout
	data   []float64
}

// FromVec returns a vector with layout l holding a copy of v.
func FromVec(l *Layout, v mat.Vector) (*Vector, error) {
	if v.Len() != l.Len() {
		return nil, fmt.Errorf("%w: vector length %d, layout length %d", ErrInvalid, v.Len(), l.Len())
	}
	d := make([]float64, v.Len())
	for i := range d {
		d[i] = v.AtVec(i)
	}
	return &Vector{layout: l, data: d}, nil
}

// Layout returns the vector layout.
func (v *Vector) Layout() *Layout { return v.layout }

// Dims implements mat.Matrix.
func (v *Vector) Dims() (r, c int) { return len(v.data), 1 }

// At implements mat.Matrix.
func (v *Vector) At(i, j int) float64 {
	if j != 0 {
		panic(mat.ErrColAccess)
	}
	return v.data[i]
}

// T implements mat.Matrix.
func (v *Vector) T() mat.Matrix { return mat.Transpose{Matrix: v} }

// AtVec implements mat.Vector.
func (v *Vector) AtVec(i int) float64 { return v.data[i] }

// Len implements mat.Vector.
func (v *Vector) Len() int { return len(v.data) }

// Get returns the named component.
func (v *Vector) Get(name string) (float64, error) {
	i, ok := v.layout.Index(name)
	if !ok {
		return 0, fmt.Errorf("%w: unknown component %q", ErrInvalid, name)
	}
	return v.data[i], nil
}

// Set sets the named component.
func (v *Vector) Set(name string, val float64) error {
	i, ok := v.layout.Index(name)
	if !ok {
		return fmt.Errorf("%w: unknown component %q", ErrInvalid, name)
	}
	v.data[i] = val
	return nil
}

// Q returns a copy of the position-like block.
func (v *Vector) Q() []float64 {
	return append([]float64(nil), v.data[:v.layout.dimQ]...)
}

// V returns a copy of the velocity-like block.
func (v *Vector) V() []float64 {
	return append([]float64(nil), v.data[v.layout.dimQ:]...)
}

// Slice returns a copy of the vector values.
func (v *Vector) Slice() []float64 {
	return append([]float64(nil), v.data...)
}

// VecDense returns the values as a new *mat.VecDense.
func (v *Vector) VecDense() *mat.VecDense {
	return mat.NewVecDense(len(v.data), v.Slice())
}

// Clone returns a deep copy of v.
func (v *Vector) Clone() *Vector {
	return &Vector{layout: v.layout, data: v.Slice()}
}

// Add returns v + o.
func (v *Vector) Add(o mat.Vector) (*Vector, error) {
	return v.combine(o, func(a, b float64) float64 { return a + b })
}

// Sub returns v - o.
func (v *Vector) Sub(o mat.Vector) (*Vector, error) {
	return v.combine(o, func(a, b float64) float64 { return a - b })
}

// Scale returns s*v.
func (v *Vector) Scale(s float64) *Vector {
	out := v.Clone()
	for i := range out.data {
		out.data[i] *= s
	}
	return out
}

// Equal reports whether v and o have the same length and all components
// differ by at most tol.
func (v *Vector) Equal(o mat.Vector, tol float64) bool {
	if o.Len() != len(v.data) {
		return false
	}
	for i, x := range v.data {
		if math.Abs(x-o.AtVec(i)) > tol {
			return false
		}
	}
	return true
}

func (v *Vector) combine(o mat.Vector, op func(a, b float64) float64) (*Vector, error) {
	if o.Len() != len(v.data) {
		return nil, fmt.Errorf("%w: length %d and %d", ErrInvalid, len(v.data), o.Len())
	}
	out := v.Clone()
	for i := range out.data {
		out.data[i] = op(out.data[i], o.AtVec(i))
	}
	return out, nil
}

// String implements the Stringer interface.
func (v *Vector) String() string {
	parts := make([]string, len(v.data))
	for i, n := range v.layout.names {
		parts[i] = fmt.Sprintf("%s=%g", n, v.data[i])
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

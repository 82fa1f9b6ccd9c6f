package controller

import (
	"fmt"
	"math"

	control "github.com/milosgajdos/go-control"
	"github.com/milosgajdos/go-control/matrix"
	"gonum.org/v1/gonum/mat"
)

// Box is the elementwise constraint Lower <= v <= Upper.
// Unbounded sides are +-Inf.
type Box struct {
	// Lower is the lower bound
	Lower *mat.VecDense
	// Upper is the upper bound
	Upper *mat.VecDense
}

// NewBox creates new Box and returns it.
// It returns error if the bounds differ in length, are empty or cross.
func NewBox(lower, upper []float64) (*Box, error) {
	if len(lower) == 0 || len(lower) != len(upper) {
		return nil, fmt.Errorf("%w: box bounds have %d and %d components", control.ErrConfig, len(lower), len(upper))
	}

	for i := range lower {
		if lower[i] > upper[i] || math.IsNaN(lower[i]) || math.IsNaN(upper[i]) {
			return nil, fmt.Errorf("%w: box bound %d: %g > %g", control.ErrConfig, i, lower[i], upper[i])
		}
	}

	return &Box{
		Lower: mat.NewVecDense(len(lower), append([]float64(nil), lower...)),
		Upper: mat.NewVecDense(len(upper), append([]float64(nil), upper...)),
	}, nil
}

// NewUniformBox creates new n dimensional Box with the same bounds on
// every component.
func NewUniformBox(n int, lower, upper float64) (*Box, error) {
	if n < 1 {
		return nil, fmt.Errorf("%w: box dimension %d", control.ErrConfig, n)
	}

	lo, up := make([]float64, n), make([]float64, n)
	for i := range lo {
		lo[i], up[i] = lower, upper
	}

	return NewBox(lo, up)
}

// Len returns the box dimension.
func (b *Box) Len() int { return b.Lower.Len() }

// Clamp clamps v into the box in place.
func (b *Box) Clamp(v *mat.VecDense) {
	matrix.Clamp(v, b.Lower, b.Upper)
}

// Contains reports whether v lies in the box enlarged by tol.
func (b *Box) Contains(v mat.Vector, tol float64) bool {
	if v.Len() != b.Len() {
		return false
	}
	for i := 0; i < v.Len(); i++ {
		if x := v.AtVec(i); x < b.Lower.AtVec(i)-tol || x > b.Upper.AtVec(i)+tol {
			return false
		}
	}
	return true
}

// Affine returns the box as an affine constraint with identity transform.
func (b *Box) Affine() *Affine {
	return &Affine{
		T:     matrix.Identity(b.Len(), 1),
		Lower: mat.VecDenseCopyOf(b.Lower),
		Upper: mat.VecDenseCopyOf(b.Upper),
	}
}

// Affine is the constraint Lower <= T*v <= Upper.
type Affine struct {
	// T is the constraint transform
	T *mat.Dense
	// Lower is the lower bound
	Lower *mat.VecDense
	// Upper is the upper bound
	Upper *mat.VecDense
}

// NewAffine creates new Affine constraint and returns it.
// It returns error if the bounds do not match the rows of T or cross.
func NewAffine(T mat.Matrix, lower, upper []float64) (*Affine, error) {
	if T == nil {
		return nil, fmt.Errorf("%w: nil constraint transform", control.ErrConfig)
	}

	b, err := NewBox(lower, upper)
	if err != nil {
		return nil, err
	}

	if r, _ := T.Dims(); r != b.Len() {
		return nil, fmt.Errorf("%w: constraint transform has %d rows for %d bounds", control.ErrConfig, r, b.Len())
	}

	return &Affine{T: mat.DenseCopyOf(T), Lower: b.Lower, Upper: b.Upper}, nil
}

// NewSingleBound creates an Affine constraint bounded on one side only:
// T*v <= bound if upper is true, T*v >= bound otherwise.
func NewSingleBound(T mat.Matrix, bound []float64, upper bool) (*Affine, error) {
	inf := make([]float64, len(bound))
	for i := range inf {
		inf[i] = math.Inf(1)
		if upper {
			inf[i] = math.Inf(-1)
		}
	}

	if upper {
		return NewAffine(T, inf, bound)
	}
	return NewAffine(T, bound, inf)
}

// Dims returns the number of constraint rows and the constrained vector length.
func (a *Affine) Dims() (rows, cols int) { return a.T.Dims() }

// ExpandInput returns kron(I_n, [T 0]) acting on the QP decision vector
// [u_0, x_1, ..., u_{n-1}, x_n] with states of dimension nx.
func (a *Affine) ExpandInput(nx, n int) *mat.Dense {
	r, nu := a.Dims()
	blk := mat.NewDense(r, nu+nx, nil)
	matrix.SetBlock(blk, 0, 0, a.T)
	return matrix.Kron(matrix.Identity(n, 1), blk)
}

// ExpandState returns kron(I_n, [0 T]) acting on the QP decision vector
// [u_0, x_1, ..., u_{n-1}, x_n] with inputs of dimension nu.
func (a *Affine) ExpandState(nu, n int) *mat.Dense {
	r, nx := a.Dims()
	blk := mat.NewDense(r, nu+nx, nil)
	matrix.SetBlock(blk, 0, nu, a.T)
	return matrix.Kron(matrix.Identity(n, 1), blk)
}

// ExpandBounds repeats the bounds n times.
func (a *Affine) ExpandBounds(n int) (lower, upper []float64) {
	lo, up := a.Lower.RawVector().Data, a.Upper.RawVector().Data
	for i := 0; i < n; i++ {
		lower = append(lower, lo...)
		upper = append(upper, up...)
	}
	return lower, upper
}

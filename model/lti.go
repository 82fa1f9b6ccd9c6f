package model

import (
	"fmt"

	control "github.com/milosgajdos/go-control"
	"github.com/milosgajdos/go-control/state"
	"github.com/milosgajdos/go-control/symbolic"
	"gonum.org/v1/gonum/mat"
)

// LTI is a linear time-invariant system dx/dt = A*x + B*u
type LTI struct {
	// A is the state matrix
	A *mat.Dense
	// B is the input matrix
	B *mat.Dense

	sl *state.Layout
	il *state.Layout
}

// NewLTI creates new LTI model with state components x0..xn-1 and input
// components u0..um-1. Every state component is position-like.
// It returns error if A is not square or B does not match A.
func NewLTI(A, B mat.Matrix) (*LTI, error) {
	if A == nil || B == nil {
		return nil, fmt.Errorf("%w: nil system matrix", control.ErrConfig)
	}

	n, _ := A.Dims()
	_, m := B.Dims()

	return NewLTIWithLayout(A, B, state.MustLayout(names("x", n), n), state.MustLayout(names("u", m), m))
}

// NewLTIWithLayout creates new LTI model with explicit state and input layouts.
func NewLTIWithLayout(A, B mat.Matrix, sl, il *state.Layout) (*LTI, error) {
	if A == nil || B == nil {
		return nil, fmt.Errorf("%w: nil system matrix", control.ErrConfig)
	}

	ar, ac := A.Dims()
	if ar != ac {
		return nil, fmt.Errorf("%w: state matrix must be square, got %dx%d", control.ErrConfig, ar, ac)
	}

	br, bc := B.Dims()
	if br != ar {
		return nil, fmt.Errorf("%w: input matrix has %d rows, want %d", control.ErrConfig, br, ar)
	}

	if sl.Len() != ar || il.Len() != bc {
		return nil, fmt.Errorf("%w: layouts %d/%d do not match system %d/%d", control.ErrConfig, sl.Len(), il.Len(), ar, bc)
	}

	return &LTI{
		A:  mat.DenseCopyOf(A),
		B:  mat.DenseCopyOf(B),
		sl: sl,
		il: il,
	}, nil
}

func names(prefix string, n int) []string {
	ns := make([]string, n)
	for i := range ns {
		ns[i] = fmt.Sprintf("%s%d", prefix, i)
	}
	return ns
}

// Dynamics returns A*x + B*u.
func (l *LTI) Dynamics(x, u mat.Vector) (*mat.VecDense, error) {
	if err := checkDims(l.sl, l.il, x, u); err != nil {
		return nil, err
	}

	out := new(mat.VecDense)
	out.MulVec(l.A, x)

	if u != nil {
		outU := new(mat.VecDense)
		outU.MulVec(l.B, u)
		out.AddVec(out, outU)
	}

	return out, nil
}

// Dims returns state and input dimensions.
func (l *LTI) Dims() (int, int) {
	_, in := l.A.Dims()
	_, out := l.B.Dims()

	return in, out
}

// StateLayout returns the state layout.
func (l *LTI) StateLayout() *state.Layout { return l.sl }

// InputLayout returns the input layout.
func (l *LTI) InputLayout() *state.Layout { return l.il }

// StateMatrix returns a copy of A.
func (l *LTI) StateMatrix() mat.Matrix {
	m := &mat.Dense{}
	m.CloneFrom(l.A)

	return m
}

// InputMatrix returns a copy of B.
func (l *LTI) InputMatrix() mat.Matrix {
	m := &mat.Dense{}
	m.CloneFrom(l.B)

	return m
}

// Register binds the state and input symbols in reg.
func (l *LTI) Register(reg *symbolic.Registry) error {
	return register(reg, l.sl, l.il, nil, nil)
}

// DynamicsSymbolic returns A*x + B*u with constant coefficients.
func (l *LTI) DynamicsSymbolic(x, u symbolic.Vector, _ *symbolic.Registry) (symbolic.Vector, error) {
	if err := checkSymbolic(l.sl, l.il, x, u); err != nil {
		return nil, err
	}

	n, m := l.Dims()
	out := make(symbolic.Vector, n)
	for i := 0; i < n; i++ {
		terms := make([]symbolic.Expr, 0, n+m)
		for j := 0; j < n; j++ {
			terms = append(terms, symbolic.Product(symbolic.Num(l.A.At(i, j)), x[j]))
		}
		for j := 0; j < m; j++ {
			terms = append(terms, symbolic.Product(symbolic.Num(l.B.At(i, j)), symAt(u, j)))
		}
		out[i] = symbolic.Sum(terms...)
	}

	return out, nil
}

// Params returns no parameters: the system matrices are constants.
func (l *LTI) Params() ([]string, []float64) { return nil, nil }

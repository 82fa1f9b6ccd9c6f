// Package matrix provides dense block helpers and linear solves used by the
// discretizers, solvers and controllers.
package matrix

import (
	"errors"
	"fmt"
	"math"

	control "github.com/milosgajdos/go-control"
	mx "github.com/milosgajdos/matrix"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// Identity returns an n x n identity matrix scaled by val.
// It panics if n is not positive.
func Identity(n int, val float64) *mat.Dense {
	m, err := mx.NewDenseValIdentity(n, val)
	if err != nil {
		panic(err)
	}
	return m
}

// SetBlock copies src into dst with its top left corner at (i, j).
// It panics if src does not fit.
func SetBlock(dst *mat.Dense, i, j int, src mat.Matrix) {
	r, c := src.Dims()
	dst.Slice(i, i+r, j, j+c).(*mat.Dense).Copy(src)
}

// Block returns a copy of the r x c block of m starting at (i, j).
func Block(m mat.Matrix, i, j, r, c int) *mat.Dense {
	out := mat.NewDense(r, c, nil)
	for ii := 0; ii < r; ii++ {
		for jj := 0; jj < c; jj++ {
			out.Set(ii, jj, m.At(i+ii, j+jj))
		}
	}
	return out
}

// Kron returns the Kronecker product of a and b.
func Kron(a, b mat.Matrix) *mat.Dense {
	var k mat.Dense
	k.Kronecker(a, b)
	return &k
}

// VStack stacks matrices vertically. Nil matrices are skipped.
// It returns error if column counts differ.
func VStack(ms ...mat.Matrix) (*mat.Dense, error) {
	rows, cols := 0, -1
	for _, m := range ms {
		if m == nil {
			continue
		}
		r, c := m.Dims()
		if cols >= 0 && c != cols {
			return nil, fmt.Errorf("%w: stacking %d and %d columns", control.ErrConfig, cols, c)
		}
		cols = c
		rows += r
	}
	if cols < 0 {
		return nil, fmt.Errorf("%w: nothing to stack", control.ErrConfig)
	}

	out := mat.NewDense(rows, cols, nil)
	i := 0
	for _, m := range ms {
		if m == nil {
			continue
		}
		r, _ := m.Dims()
		SetBlock(out, i, 0, m)
		i += r
	}
	return out, nil
}

// VStackVec concatenates vectors. Nil vectors are skipped.
func VStackVec(vs ...mat.Vector) *mat.VecDense {
	var data []float64
	for _, v := range vs {
		if v == nil {
			continue
		}
		for i := 0; i < v.Len(); i++ {
			data = append(data, v.AtVec(i))
		}
	}
	if len(data) == 0 {
		return &mat.VecDense{}
	}
	return mat.NewVecDense(len(data), data)
}

// AMax returns the largest absolute element of m.
func AMax(m mat.Matrix) float64 {
	r, c := m.Dims()
	amax := 0.0
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			if a := math.Abs(m.At(i, j)); a > amax {
				amax = a
			}
		}
	}
	return amax
}

// RowSums returns a slice containing m row sums.
// It panics if m is nil.
func RowSums(m *mat.Dense) []float64 {
	rows, _ := m.Dims()
	sum := make([]float64, rows)

	for i := 0; i < rows; i++ {
		sum[i] = floats.Sum(m.RawRowView(i))
	}

	return sum
}

// IsSymmetric reports whether m is square and symmetric within tol.
func IsSymmetric(m mat.Matrix, tol float64) bool {
	r, c := m.Dims()
	if r != c {
		return false
	}
	for i := 0; i < r; i++ {
		for j := i + 1; j < c; j++ {
			if math.Abs(m.At(i, j)-m.At(j, i)) > tol*math.Max(1, math.Abs(m.At(i, j))) {
				return false
			}
		}
	}
	return true
}

// Symmetrize returns (m + m')/2 as a *mat.SymDense. m must be square.
func Symmetrize(m mat.Matrix) *mat.SymDense {
	n, _ := m.Dims()
	s := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			s.SetSym(i, j, 0.5*(m.At(i, j)+m.At(j, i)))
		}
	}
	return s
}

// IsPosDef reports whether the symmetric part of m is positive definite.
func IsPosDef(m mat.Matrix) bool {
	var chol mat.Cholesky
	return chol.Factorize(Symmetrize(m))
}

// Solve solves a*x = b. When a is symmetric it tries a Cholesky
// factorization first and falls back to LU otherwise. It returns
// control.ErrEvaluation if a is singular.
func Solve(a, b mat.Matrix) (*mat.Dense, error) {
	r, c := a.Dims()
	if r != c {
		return nil, fmt.Errorf("%w: solve with %dx%d matrix", control.ErrConfig, r, c)
	}
	if br, _ := b.Dims(); br != r {
		return nil, fmt.Errorf("%w: solve %dx%d with %d rows", control.ErrConfig, r, c, br)
	}

	x := new(mat.Dense)
	if IsSymmetric(a, 1e-10) {
		var chol mat.Cholesky
		if chol.Factorize(Symmetrize(a)) {
			if err := chol.SolveTo(x, b); err == nil && finite(x) {
				return x, nil
			}
		}
	}

	var lu mat.LU
	lu.Factorize(a)
	if err := lu.SolveTo(x, false, b); err != nil {
		var cond mat.Condition
		if !errors.As(err, &cond) || math.IsInf(float64(cond), 1) {
			return nil, fmt.Errorf("%w: singular matrix: %v", control.ErrEvaluation, err)
		}
	}
	if !finite(x) {
		return nil, fmt.Errorf("%w: non-finite solution", control.ErrEvaluation)
	}

	return x, nil
}

// SolveVec solves a*x = b for a vector b.
func SolveVec(a mat.Matrix, b mat.Vector) (*mat.VecDense, error) {
	x, err := Solve(a, b)
	if err != nil {
		return nil, err
	}
	return mat.VecDenseCopyOf(x.ColView(0)), nil
}

// ExpSeries returns exp(m) computed with a truncated power series.
// Summation stops when the Frobenius norm of the last term falls below tol
// or after maxTerms terms.
func ExpSeries(m mat.Matrix, maxTerms int, tol float64) *mat.Dense {
	n, _ := m.Dims()
	sum := Identity(n, 1)
	term := Identity(n, 1)
	for k := 1; k <= maxTerms; k++ {
		var next mat.Dense
		next.Mul(term, m)
		next.Scale(1/float64(k), &next)
		term = &next
		sum.Add(sum, term)
		if mat.Norm(term, 2) < tol {
			break
		}
	}
	return sum
}

// Clamp limits every element of v to [lo_i, hi_i] in place.
// Nil bounds are ignored.
func Clamp(v *mat.VecDense, lo, hi mat.Vector) {
	for i := 0; i < v.Len(); i++ {
		x := v.AtVec(i)
		if lo != nil && x < lo.AtVec(i) {
			x = lo.AtVec(i)
		}
		if hi != nil && x > hi.AtVec(i) {
			x = hi.AtVec(i)
		}
		v.SetVec(i, x)
	}
}

func finite(m mat.Matrix) bool {
	r, c := m.Dims()
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			v := m.At(i, j)
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return false
			}
		}
	}
	return true
}

// Format returns m formatted for printing.
func Format(m mat.Matrix) fmt.Formatter {
	return mat.Formatted(m, mat.Prefix(""), mat.Squeeze())
}

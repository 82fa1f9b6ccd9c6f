package discretizer

import (
	"fmt"
	"math"

	control "github.com/milosgajdos/go-control"
	"github.com/milosgajdos/go-control/matrix"
	"gonum.org/v1/gonum/mat"
)

// ZOH is the zero-order hold discretization of a linear model
//
//	[Ad Bd] = [I 0] exp([[A B], [0 0]]*dt)
//
// The exponential is computed once for a fixed dt.
type ZOH struct {
	model control.LinearModel
	dt    float64
	ad    *mat.Dense
	bd    *mat.Dense
}

// NewZOH creates new ZOH for model m and time step dt using a power series
// of at most maxTerms terms truncated at tol.
// It returns error if the model has velocity components or dt is not positive.
func NewZOH(m control.LinearModel, dt float64, maxTerms int, tol float64) (*ZOH, error) {
	if m.StateLayout().DimV() > 0 {
		return nil, fmt.Errorf("%w: zero-order hold requires a model without velocity components", control.ErrUnexpected)
	}

	if dt <= 0 {
		return nil, fmt.Errorf("%w: non-positive time step %g", control.ErrConfig, dt)
	}

	if maxTerms < 1 || tol <= 0 {
		return nil, fmt.Errorf("%w: invalid power series %d terms, tolerance %g", control.ErrConfig, maxTerms, tol)
	}

	n, _ := m.StateMatrix().Dims()
	_, k := m.InputMatrix().Dims()

	aug := mat.NewDense(n+k, n+k, nil)
	matrix.SetBlock(aug, 0, 0, m.StateMatrix())
	matrix.SetBlock(aug, 0, n, m.InputMatrix())
	aug.Scale(dt, aug)

	e := matrix.ExpSeries(aug, maxTerms, tol)

	return &ZOH{
		model: m,
		dt:    dt,
		ad:    matrix.Block(e, 0, 0, n, n),
		bd:    matrix.Block(e, 0, n, n, k),
	}, nil
}

// Matrices returns copies of the discrete state and input matrices.
func (z *ZOH) Matrices() (ad, bd *mat.Dense) {
	return mat.DenseCopyOf(z.ad), mat.DenseCopyOf(z.bd)
}

// Dt returns the time step the matrices were computed for.
func (z *ZOH) Dt() float64 { return z.dt }

// Model returns the discretized model.
func (z *ZOH) Model() control.Model { return z.model }

// Step returns Ad*x + Bd*u. A nil u is a zero input.
// It returns control.ErrDiscretizer if dt differs from the construction dt.
func (z *ZOH) Step(x, u mat.Vector, dt float64) (*mat.VecDense, error) {
	if math.Abs(dt-z.dt) > 1e-12 {
		return nil, fmt.Errorf("%w: zero-order hold built for dt %g, got %g", control.ErrDiscretizer, z.dt, dt)
	}

	n, k := z.bd.Dims()
	if x == nil || x.Len() != n {
		return nil, fmt.Errorf("%w: state vector must have %d components", control.ErrConfig, n)
	}

	next := new(mat.VecDense)
	next.MulVec(z.ad, x)

	if u != nil {
		if u.Len() != k {
			return nil, fmt.Errorf("%w: input vector has %d components, want %d", control.ErrConfig, u.Len(), k)
		}
		var bu mat.VecDense
		bu.MulVec(z.bd, u)
		next.AddVec(next, &bu)
	}

	return next, nil
}

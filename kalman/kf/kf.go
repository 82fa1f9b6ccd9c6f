// Package kf implements the linear Kalman filter for discrete systems
// x+ = A*x + B*u observed through y = C*x + D*u.
package kf

import (
	"fmt"

	control "github.com/milosgajdos/go-control"
	"github.com/milosgajdos/go-control/estimate"
	"github.com/milosgajdos/go-control/kalman"
	"github.com/milosgajdos/go-control/model"
	"github.com/milosgajdos/go-control/sim"
	"gonum.org/v1/gonum/mat"
)

// KF is Kalman Filter
type KF struct {
	// a is the state matrix
	a *mat.Dense
	// b is the input matrix, nil without inputs
	b *mat.Dense
	// out is the measurement model
	out *sim.Output
	// q is process noise covariance
	q *mat.SymDense
	// r is measurement noise covariance
	r *mat.SymDense
	// p is the filter covariance
	p *mat.SymDense
	// pNext is the predicted covariance
	pNext *mat.SymDense
	// k is Kalman gain
	k *mat.Dense
}

// New creates new KF and returns it.
// It accepts the following parameters:
//   - a, b: discrete state and input matrices; b may be nil
//   - out:  measurement model
//   - init: initial condition whose covariance starts the filter
//   - q:    process noise; nil or noise.None for none
//   - r:    measurement noise; nil or noise.None for none
//
// It returns error if the matrices, the output or the noise covariances do
// not agree in dimensions.
func New(a, b mat.Matrix, out *sim.Output, init *model.InitCond, q, r control.Noise) (*KF, error) {
	if a == nil || out == nil || init == nil {
		return nil, fmt.Errorf("%w: filter needs a state matrix, an output and an initial condition", control.ErrConfig)
	}

	nx, nc := a.Dims()
	if nx != nc {
		return nil, fmt.Errorf("%w: invalid state matrix dimensions: [%d x %d]", control.ErrConfig, nx, nc)
	}

	f := &KF{a: mat.DenseCopyOf(a), out: out}

	if b != nil {
		if rows, cols := b.Dims(); rows != nx {
			return nil, fmt.Errorf("%w: invalid input matrix dimensions: [%d x %d]", control.ErrConfig, rows, cols)
		}
		f.b = mat.DenseCopyOf(b)
	}

	ox, _, ny := out.Dims()
	if ox != nx {
		return nil, fmt.Errorf("%w: output measures %d states, system has %d", control.ErrConfig, ox, nx)
	}

	if init.Cov().SymmetricDim() != nx {
		return nil, fmt.Errorf("%w: invalid initial covariance dimension: %d", control.ErrConfig, init.Cov().SymmetricDim())
	}

	var err error
	if f.q, err = kalman.NoiseCov(q, nx); err != nil {
		return nil, err
	}
	if f.r, err = kalman.NoiseCov(r, ny); err != nil {
		return nil, err
	}

	f.p = mat.NewSymDense(nx, nil)
	f.p.CopySym(init.Cov())
	f.pNext = mat.NewSymDense(nx, nil)
	f.pNext.CopySym(init.Cov())
	f.k = mat.NewDense(nx, ny, nil)

	return f, nil
}

// Predict propagates x under input u to the next step and returns its estimate.
// A nil u is a zero input.
func (k *KF) Predict(x, u mat.Vector) (*estimate.Estimate, error) {
	nx, _ := k.a.Dims()
	if x == nil || x.Len() != nx {
		return nil, fmt.Errorf("%w: state must have %d components", control.ErrConfig, nx)
	}

	xNext := new(mat.VecDense)
	xNext.MulVec(k.a, x)

	if u != nil && k.b != nil {
		if _, nu := k.b.Dims(); u.Len() != nu {
			return nil, fmt.Errorf("%w: input must have %d components", control.ErrConfig, nu)
		}
		var bu mat.VecDense
		bu.MulVec(k.b, u)
		xNext.AddVec(xNext, &bu)
	}

	k.pNext = kalman.Propagate(k.a, k.p, k.q)

	return estimate.New(xNext, k.pNext)
}

// Update corrects state x using the measurement y given input u and
// returns corrected estimate. The covariance of the last Predict is used;
// before the first Predict that is the initial covariance.
func (k *KF) Update(x, u, y mat.Vector) (*estimate.Estimate, error) {
	_, _, ny := k.out.Dims()
	if y == nil || y.Len() != ny {
		return nil, fmt.Errorf("%w: measurement must have %d components", control.ErrConfig, ny)
	}

	yHat, err := k.out.Observe(x, u, nil)
	if err != nil {
		return nil, err
	}

	inn := new(mat.VecDense)
	inn.SubVec(y, yHat)

	xc, p, gain, err := kalman.Correct(x, inn, k.out.C, k.pNext, k.r)
	if err != nil {
		return nil, err
	}

	k.p, k.pNext, k.k = p, p, gain

	return estimate.New(xc, p)
}

// Run predicts the state after x under u and corrects it with y.
func (k *KF) Run(x, u, y mat.Vector) (*estimate.Estimate, error) {
	pred, err := k.Predict(x, u)
	if err != nil {
		return nil, err
	}

	return k.Update(pred.Val(), u, y)
}

// Cov returns KF covariance
func (k *KF) Cov() *mat.SymDense {
	cov := mat.NewSymDense(k.p.SymmetricDim(), nil)
	cov.CopySym(k.p)

	return cov
}

// SetCov sets KF covariance matrix to cov.
// It returns error if either cov is nil or its dimensions are not the same as KF covariance dimensions.
func (k *KF) SetCov(cov mat.Symmetric) error {
	if cov == nil {
		return fmt.Errorf("%w: invalid covariance matrix", control.ErrConfig)
	}

	if cov.SymmetricDim() != k.p.SymmetricDim() {
		return fmt.Errorf("%w: invalid covariance matrix dims: [%d x %d]", control.ErrConfig, cov.SymmetricDim(), cov.SymmetricDim())
	}

	k.p.CopySym(cov)
	k.pNext.CopySym(cov)

	return nil
}

// Gain returns Kalman gain
func (k *KF) Gain() *mat.Dense {
	return mat.DenseCopyOf(k.k)
}

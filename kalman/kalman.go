// Package kalman implements Kalman filters that estimate the state of a
// discretized plant from its measured output, and the observer that turns
// a state feedback policy into an output feedback one.
package kalman

import (
	"fmt"

	control "github.com/milosgajdos/go-control"
	"github.com/milosgajdos/go-control/estimate"
	"github.com/milosgajdos/go-control/matrix"
	"github.com/milosgajdos/go-control/noise"
	"github.com/milosgajdos/go-control/sim"
	"gonum.org/v1/gonum/mat"
)

// Filter estimates the state of a discrete system from measurements
type Filter interface {
	// Predict propagates the estimate x under input u to the next step
	Predict(x, u mat.Vector) (*estimate.Estimate, error)
	// Update corrects the predicted state x with measurement y
	Update(x, u, y mat.Vector) (*estimate.Estimate, error)
	// Cov returns the filter covariance
	Cov() *mat.SymDense
	// Gain returns the last Kalman gain
	Gain() *mat.Dense
}

// NoiseCov returns the covariance of n or a zero dim x dim matrix if n is
// nil or noise.None. It returns error if the covariance is not dim x dim.
func NoiseCov(n control.Noise, dim int) (*mat.SymDense, error) {
	cov := mat.NewSymDense(dim, nil)
	if noise.IsNone(n) {
		return cov, nil
	}
	if c := n.Cov(); c.SymmetricDim() != dim {
		return nil, fmt.Errorf("%w: noise covariance is %dx%[2]d, want %dx%[3]d", control.ErrConfig, c.SymmetricDim(), dim)
	}
	cov.CopySym(n.Cov())
	return cov, nil
}

// Propagate returns A*P*A' + Q.
func Propagate(a mat.Matrix, p, q mat.Symmetric) *mat.SymDense {
	var ap, apa mat.Dense
	ap.Mul(a, p)
	apa.Mul(&ap, a.T())
	apa.Add(&apa, q)

	return matrix.Symmetrize(&apa)
}

// Correct corrects state x with innovation inn given the observation
// matrix h, the predicted covariance p and the measurement covariance r.
// The covariance is updated in the Joseph form
//
//	P = (I - KH)P(I - KH)' + KRK'
//
// It returns the corrected state, its covariance and the Kalman gain.
func Correct(x, inn mat.Vector, h mat.Matrix, p, r mat.Symmetric) (*mat.VecDense, *mat.SymDense, *mat.Dense, error) {
	nx := x.Len()

	// P*H'
	var pht mat.Dense
	pht.Mul(p, h.T())

	// H*P*H' + R
	var s mat.Dense
	s.Mul(h, &pht)
	s.Add(&s, r)

	// K = P*H'*S^-1 computed as (S' \ (P*H')')'
	var kt mat.Dense
	if err := kt.Solve(s.T(), pht.T()); err != nil {
		return nil, nil, nil, fmt.Errorf("%w: innovation covariance is singular: %v", control.ErrEvaluation, err)
	}
	gain := mat.DenseCopyOf(kt.T())

	xc := new(mat.VecDense)
	xc.MulVec(gain, inn)
	xc.AddVec(xc, x)

	// I - K*H
	a := matrix.Identity(nx, 1)
	var kh mat.Dense
	kh.Mul(gain, h)
	a.Sub(a, &kh)

	var apa, kr, krk mat.Dense
	apa.Mul(a, p)
	apa.Mul(&apa, a.T())
	kr.Mul(gain, r)
	krk.Mul(&kr, gain.T())
	apa.Add(&apa, &krk)

	return xc, matrix.Symmetrize(&apa), gain, nil
}

// Observer returns an output feedback policy for sim.ClosedLoop. It keeps
// a state estimate starting at x0, corrects it with every measurement
// using f and feeds the estimate to policy.
func Observer(f Filter, x0 mat.Vector, policy sim.Policy) sim.Policy {
	xhat := mat.VecDenseCopyOf(x0)
	var prev mat.Vector

	return func(k int, y mat.Vector) (*mat.VecDense, error) {
		x := mat.Vector(xhat)
		if k > 0 {
			pred, err := f.Predict(xhat, prev)
			if err != nil {
				return nil, err
			}
			x = pred.Val()
		}

		est, err := f.Update(x, prev, y)
		if err != nil {
			return nil, err
		}
		xhat = est.Val()

		u, err := policy(k, xhat)
		if err != nil {
			return nil, err
		}
		if u != nil {
			prev = u
		}

		return u, nil
	}
}

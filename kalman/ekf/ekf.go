// Package ekf implements the extended Kalman filter for nonlinear plants.
// The state covariance is propagated through the Jacobians of the
// discretized dynamics at the current estimate.
package ekf

import (
	"fmt"

	control "github.com/milosgajdos/go-control"
	"github.com/milosgajdos/go-control/estimate"
	"github.com/milosgajdos/go-control/kalman"
	"github.com/milosgajdos/go-control/linearize"
	"github.com/milosgajdos/go-control/model"
	"github.com/milosgajdos/go-control/sim"
	"gonum.org/v1/gonum/mat"
)

// EKF is Extended Kalman Filter
type EKF struct {
	// plant propagates the state estimate
	plant *sim.Sim
	// lin linearizes the discrete dynamics
	lin linearize.Linearizer
	// dt is the time step
	dt float64
	// out is the measurement model
	out *sim.Output
	// q is process noise covariance
	q *mat.SymDense
	// r is measurement noise covariance
	r *mat.SymDense
	// f is the last propagation Jacobian
	f *mat.Dense
	// p is the filter covariance
	p *mat.SymDense
	// pNext is the predicted covariance
	pNext *mat.SymDense
	// k is Kalman gain
	k *mat.Dense
}

// New creates new EKF and returns it.
// It accepts the following parameters:
//   - plant: simulator stepping the estimate
//   - lin:   linearizer of the plant discretizer
//   - dt:    time step
//   - out:   measurement model
//   - init:  initial condition whose covariance starts the filter
//   - q:     process noise; nil or noise.None for none
//   - r:     measurement noise; nil or noise.None for none
//
// It returns error if either of the following conditions is met:
//   - plant, lin, out or init is nil or dt is not positive
//   - out or init do not match the plant dimensions
//   - the noise covariances do not match the state or output dimension
func New(plant *sim.Sim, lin linearize.Linearizer, dt float64, out *sim.Output, init *model.InitCond, q, r control.Noise) (*EKF, error) {
	if plant == nil || lin == nil || out == nil || init == nil {
		return nil, fmt.Errorf("%w: filter needs a plant, a linearizer, an output and an initial condition", control.ErrConfig)
	}
	if dt <= 0 {
		return nil, fmt.Errorf("%w: non-positive time step %g", control.ErrConfig, dt)
	}

	nx, _ := plant.Dims()
	ox, _, ny := out.Dims()
	if ox != nx {
		return nil, fmt.Errorf("%w: output measures %d states, plant has %d", control.ErrConfig, ox, nx)
	}
	if init.Cov().SymmetricDim() != nx {
		return nil, fmt.Errorf("%w: invalid initial covariance dimension: %d", control.ErrConfig, init.Cov().SymmetricDim())
	}

	qc, err := kalman.NoiseCov(q, nx)
	if err != nil {
		return nil, err
	}
	rc, err := kalman.NoiseCov(r, ny)
	if err != nil {
		return nil, err
	}

	p := mat.NewSymDense(nx, nil)
	p.CopySym(init.Cov())
	pNext := mat.NewSymDense(nx, nil)
	pNext.CopySym(init.Cov())

	return &EKF{
		plant: plant,
		lin:   lin,
		dt:    dt,
		out:   out,
		q:     qc,
		r:     rc,
		f:     mat.NewDense(nx, nx, nil),
		p:     p,
		pNext: pNext,
		k:     mat.NewDense(nx, ny, nil),
	}, nil
}

// Predict steps x under input u and propagates the covariance through the
// Jacobian of the step at (x, u). A nil u is a zero input.
func (k *EKF) Predict(x, u mat.Vector) (*estimate.Estimate, error) {
	nx, nu := k.plant.Dims()
	if x == nil || x.Len() != nx {
		return nil, fmt.Errorf("%w: state must have %d components", control.ErrConfig, nx)
	}
	if u == nil {
		u = mat.NewVecDense(nu, nil)
	}

	xNext, err := k.plant.Step(x, u, k.dt)
	if err != nil {
		return nil, fmt.Errorf("system state propagation failed: %w", err)
	}

	a, _, err := k.lin.Jacobians(x, u)
	if err != nil {
		return nil, err
	}
	k.f = a

	k.pNext = kalman.Propagate(a, k.p, k.q)

	return estimate.New(xNext, k.pNext)
}

// Update corrects state x using the measurement y given input u and
// returns corrected estimate.
func (k *EKF) Update(x, u, y mat.Vector) (*estimate.Estimate, error) {
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
func (k *EKF) Run(x, u, y mat.Vector) (*estimate.Estimate, error) {
	pred, err := k.Predict(x, u)
	if err != nil {
		return nil, err
	}

	return k.Update(pred.Val(), u, y)
}

// Jacobian returns the propagation Jacobian of the last Predict.
func (k *EKF) Jacobian() *mat.Dense {
	return mat.DenseCopyOf(k.f)
}

// Cov returns EKF covariance
func (k *EKF) Cov() *mat.SymDense {
	cov := mat.NewSymDense(k.p.SymmetricDim(), nil)
	cov.CopySym(k.p)

	return cov
}

// Gain returns Kalman gain
func (k *EKF) Gain() *mat.Dense {
	return mat.DenseCopyOf(k.k)
}

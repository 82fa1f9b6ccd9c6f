// Package ddp implements iterative LQR and differential dynamic programming
// with an optional box-constrained backward pass.
package ddp

import (
	"fmt"
	"math"

	control "github.com/milosgajdos/go-control"
	"github.com/milosgajdos/go-control/controller"
	"github.com/milosgajdos/go-control/cost"
	"github.com/milosgajdos/go-control/linearize"
	"github.com/milosgajdos/go-control/sim"
	"github.com/milosgajdos/go-control/state"
	"gonum.org/v1/gonum/mat"
)

// Controller is an iLQR or DDP trajectory optimizer.
type Controller struct {
	*controller.Base
	cfg  Config
	cost *cost.Quadratic
	lin  linearize.Linearizer
	sec  linearize.SecondOrder

	xs    []*mat.VecDense
	us    []*mat.VecDense
	ff    []*mat.VecDense
	fb     []*mat.Dense
	costs  []float64
	status Status
}

// Status is the outcome of the last Solve
type Status int

const (
	// Unsolved means Solve was not called yet
	Unsolved Status = iota
	// Converged means the expected decrease fell below tolerance
	Converged
	// MaxIterReached means the iteration cap was hit
	MaxIterReached
	// LineSearchFailed means no step decreased the cost
	LineSearchFailed
)

// String implements the Stringer interface.
func (s Status) String() string {
	switch s {
	case Unsolved:
		return "unsolved"
	case Converged:
		return "converged"
	case MaxIterReached:
		return "maximum iterations reached"
	case LineSearchFailed:
		return "line search failed"
	}
	return fmt.Sprintf("Status(%d)", int(s))
}

// New creates new Controller and returns it.
// It returns error if the options, the weights or cfg are invalid, the
// plant can not be linearized or DDP mode is requested for a linearizer
// without second order derivatives.
func New(plant *sim.Sim, w controller.Weights, o *controller.Options, cfg Config) (*Controller, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	base, err := controller.NewBase(plant, o)
	if err != nil {
		return nil, err
	}

	c, err := base.Cost(w)
	if err != nil {
		return nil, err
	}

	lin, err := controller.NewLinearizer(plant.Discretizer(), base.Options())
	if err != nil {
		return nil, err
	}

	ctrl := &Controller{
		Base: base,
		cfg:  cfg,
		cost: c,
		lin:  lin,
	}

	if cfg.Mode == DDP {
		sec, ok := lin.(linearize.SecondOrder)
		if !ok {
			return nil, fmt.Errorf("%w: %T has no second order derivatives", control.ErrUnexpected, lin)
		}
		ctrl.sec = sec
	}

	return ctrl, nil
}

// Costs returns the trajectory cost after every accepted iteration.
// The first entry is the cost of the initial guess.
func (c *Controller) Costs() []float64 {
	return append([]float64(nil), c.costs...)
}

// Status returns the outcome of the last Solve.
func (c *Controller) Status() Status { return c.status }

// Gains returns the feedforward and feedback terms of the last backward pass.
func (c *Controller) Gains() ([]*mat.VecDense, []*mat.Dense) {
	fb := make([]*mat.Dense, len(c.fb))
	for k, K := range c.fb {
		fb[k] = mat.DenseCopyOf(K)
	}
	return state.Clone(c.ff), fb
}

// Solve optimizes the trajectory starting at x0. The initial guess holds
// the input operating point. With process noise configured the returned
// trajectory is the noisy closed-loop execution of the optimized policy
// u = u_k - K_k(x - x_k).
func (c *Controller) Solve(x0 mat.Vector) (*state.Trajectory, error) {
	if err := c.CheckState(x0); err != nil {
		return nil, err
	}

	opts := c.Options()
	n := opts.Steps()

	us := make([]*mat.VecDense, n-1)
	for k := range us {
		us[k] = mat.VecDenseCopyOf(opts.InputOp)
		if opts.InputLimits != nil {
			opts.InputLimits.Clamp(us[k])
		}
	}

	xs, err := c.Plant().Rollout(x0, us, opts.Dt, n)
	if err != nil {
		return nil, err
	}

	j, err := c.cost.Cost(xs, us)
	if err != nil {
		return nil, err
	}

	c.xs, c.us, c.costs = xs, us, []float64{j}
	c.status = MaxIterReached
	last := math.Inf(1)
	// stale marks gains computed around a trajectory that was since replaced
	stale := true

	for iter := 0; iter < c.cfg.MaxIter; iter++ {
		dj, err := c.backward()
		if err != nil {
			return nil, fmt.Errorf("iteration %d: %w", iter, err)
		}
		stale = false

		opts.Logger.Debugw("ddp backward pass", "iter", iter, "cost", j, "expected_decrease", dj)

		if dj < c.cfg.Tol {
			c.status = Converged
			break
		}

		xs, us, jn, ok, err := c.forward(x0, j)
		if err != nil {
			return nil, fmt.Errorf("iteration %d: %w", iter, err)
		}
		if !ok {
			if iter == 0 {
				c.status = LineSearchFailed
				return nil, fmt.Errorf("%w: line search could not decrease initial cost %g", control.ErrEvaluation, j)
			}
			c.status = LineSearchFailed
			opts.Logger.Warnw("ddp line search failed", "iter", iter, "cost", j, "expected_decrease", dj)
			break
		}

		c.xs, c.us, j = xs, us, jn
		c.costs = append(c.costs, j)
		stale = true

		if math.Abs(dj-last) < c.cfg.Tol {
			c.status = Converged
			break
		}
		last = dj
	}

	if stale {
		if _, err := c.backward(); err != nil {
			return nil, err
		}
	}

	if c.status == MaxIterReached {
		opts.Logger.Warnw("ddp reached maximum iterations", "iterations", c.cfg.MaxIter, "cost", j)
	}

	pn, err := c.Process()
	if err != nil {
		return nil, err
	}

	if !pn.Enabled() {
		c.SetInputs(c.us)
		return state.NewTrajectory(state.Clone(c.xs), state.Clone(c.us))
	}

	return c.Execute(x0, c.policy(), pn)
}

// policy returns the feedback policy around the optimized trajectory.
func (c *Controller) policy() sim.Policy {
	return func(k int, x mat.Vector) (*mat.VecDense, error) {
		dx := mat.VecDenseCopyOf(x)
		dx.SubVec(dx, c.xs[k])

		u := new(mat.VecDense)
		u.MulVec(c.fb[k], dx)
		u.SubVec(c.us[k], u)
		return u, nil
	}
}

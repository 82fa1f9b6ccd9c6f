// Package shooting implements indirect (Pontryagin) shooting: the inputs
// follow the costate from a backward pass along the simulated trajectory.
package shooting

import (
	"fmt"
	"math"

	control "github.com/milosgajdos/go-control"
	"github.com/milosgajdos/go-control/controller"
	"github.com/milosgajdos/go-control/cost"
	"github.com/milosgajdos/go-control/linearize"
	"github.com/milosgajdos/go-control/matrix"
	"github.com/milosgajdos/go-control/sim"
	"github.com/milosgajdos/go-control/state"
	"go.uber.org/multierr"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// Config configures the shooting iteration.
type Config struct {
	// MaxIter caps the outer iterations
	MaxIter int `yaml:"max_iter"`
	// LineSearchIter caps the step halvings
	LineSearchIter int `yaml:"line_search_iter"`
	// Tol stops the iteration when max|du| falls below it
	Tol float64 `yaml:"tol"`
	// Armijo is the sufficient decrease constant
	Armijo float64 `yaml:"armijo"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		MaxIter:        500,
		LineSearchIter: 30,
		Tol:            1e-2,
		Armijo:         1e-2,
	}
}

// Validate validates the configuration.
func (c Config) Validate() error {
	var err error
	if c.MaxIter < 1 {
		err = multierr.Append(err, fmt.Errorf("max iterations %d below 1", c.MaxIter))
	}
	if c.LineSearchIter < 1 {
		err = multierr.Append(err, fmt.Errorf("line search iterations %d below 1", c.LineSearchIter))
	}
	if c.Tol <= 0 {
		err = multierr.Append(err, fmt.Errorf("non-positive tolerance %g", c.Tol))
	}
	if c.Armijo <= 0 || c.Armijo >= 1 {
		err = multierr.Append(err, fmt.Errorf("armijo constant %g not in (0, 1)", c.Armijo))
	}
	if err != nil {
		return fmt.Errorf("%w: %v", control.ErrConfig, err)
	}
	return nil
}

// Controller is an indirect shooting controller.
type Controller struct {
	*controller.Base
	cfg   Config
	cost  *cost.Quadratic
	rinv  *mat.Dense
	lin   linearize.Linearizer
	a     *mat.Dense
	b     *mat.Dense
	costs []float64
	iters int
}

func newController(plant *sim.Sim, w controller.Weights, o *controller.Options, cfg Config) (*Controller, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	base, err := controller.NewBase(plant, o)
	if err != nil {
		return nil, err
	}

	if base.Options().InputLimits != nil || base.Options().StateLimits != nil {
		return nil, fmt.Errorf("%w: shooting does not handle constraints", control.ErrUnexpected)
	}

	c, err := base.Cost(w)
	if err != nil {
		return nil, err
	}

	_, nu := base.Dims()
	rinv, err := matrix.Solve(c.R(), matrix.Identity(nu, 1))
	if err != nil {
		return nil, fmt.Errorf("%w: input weight is not invertible", control.ErrConfig)
	}

	lin, err := controller.NewLinearizer(plant.Discretizer(), base.Options())
	if err != nil {
		return nil, err
	}

	return &Controller{
		Base: base,
		cfg:  cfg,
		cost: c,
		rinv: rinv,
		lin:  lin,
	}, nil
}

// NewLinear creates new Controller using the constant Jacobians of the
// plant at the operating point and returns it.
func NewLinear(plant *sim.Sim, w controller.Weights, o *controller.Options, cfg Config) (*Controller, error) {
	c, err := newController(plant, w, o, cfg)
	if err != nil {
		return nil, err
	}

	opts := c.Options()
	if c.a, c.b, err = c.lin.Jacobians(opts.StateOp, opts.InputOp); err != nil {
		return nil, err
	}

	return c, nil
}

// NewSymbolic creates new Controller linearizing the plant at every stage
// of the current trajectory and returns it.
func NewSymbolic(plant *sim.Sim, w controller.Weights, o *controller.Options, cfg Config) (*Controller, error) {
	return newController(plant, w, o, cfg)
}

// Iterations returns the number of iterations of the last solve.
func (c *Controller) Iterations() int { return c.iters }

// Costs returns the cost after every accepted iteration of the last solve.
func (c *Controller) Costs() []float64 {
	return append([]float64(nil), c.costs...)
}

func (c *Controller) jacobians(xs, us []*mat.VecDense) ([]*mat.Dense, []*mat.Dense, error) {
	if c.a != nil {
		as, bs := make([]*mat.Dense, len(us)), make([]*mat.Dense, len(us))
		for k := range us {
			as[k], bs[k] = c.a, c.b
		}
		return as, bs, nil
	}
	return linearize.LinearizeFull(c.lin, xs, us)
}

// step returns du_k = -R^-1 B_k' lambda_{k+1} - u_k from the costate pass
//
//	lambda_N = dphi(x_N)
//	lambda_k = dl(x_k) + A_k' lambda_{k+1}
func (c *Controller) step(xs, us []*mat.VecDense) ([]*mat.VecDense, error) {
	as, bs, err := c.jacobians(xs, us)
	if err != nil {
		return nil, err
	}

	n := len(us)
	lambda, err := c.cost.TerminalCostGradient(xs[n])
	if err != nil {
		return nil, err
	}

	du := make([]*mat.VecDense, n)
	for k := n - 1; k >= 0; k-- {
		var btl mat.VecDense
		btl.MulVec(bs[k].T(), lambda)

		d := new(mat.VecDense)
		d.MulVec(c.rinv, &btl)
		d.ScaleVec(-1, d)
		d.SubVec(d, us[k])
		du[k] = d

		lx, _, err := c.cost.StageCostGradient(k, xs[k], us[k])
		if err != nil {
			return nil, &control.StepError{Step: k, Err: err}
		}
		next := new(mat.VecDense)
		next.MulVec(as[k].T(), lambda)
		next.AddVec(next, lx)
		lambda = next
	}

	return du, nil
}

func (c *Controller) rollout(x0 mat.Vector, us []*mat.VecDense) ([]*mat.VecDense, float64, error) {
	opts := c.Options()
	xs, err := c.Plant().Rollout(x0, us, opts.Dt, len(us)+1)
	if err != nil {
		return nil, 0, err
	}
	j, err := c.cost.Cost(xs, us)
	if err != nil {
		return nil, 0, err
	}
	return xs, j, nil
}

// Solve iterates from the input operating point until max|du| < Tol or
// MaxIter is reached, accepting steps u + alpha*du that satisfy the Armijo
// condition J(u + alpha*du) <= J(u) - b*alpha*|du|^2.
func (c *Controller) Solve(x0 mat.Vector) (*state.Trajectory, error) {
	if err := c.CheckState(x0); err != nil {
		return nil, err
	}

	opts := c.Options()
	n := opts.Steps()

	us := make([]*mat.VecDense, n-1)
	for k := range us {
		us[k] = mat.VecDenseCopyOf(opts.InputOp)
	}

	xs, j, err := c.rollout(x0, us)
	if err != nil {
		return nil, err
	}
	c.costs, c.iters = []float64{j}, 0

	for c.iters < c.cfg.MaxIter {
		du, err := c.step(xs, us)
		if err != nil {
			return nil, fmt.Errorf("iteration %d: %w", c.iters, err)
		}

		amax, norm := 0.0, 0.0
		for _, d := range du {
			raw := d.RawVector().Data
			amax = math.Max(amax, floats.Norm(raw, math.Inf(1)))
			norm += floats.Dot(raw, raw)
		}
		if amax < c.cfg.Tol {
			break
		}

		c.iters++

		accepted := false
		alpha := 1.0
		for ls := 0; ls < c.cfg.LineSearchIter; ls++ {
			trial := make([]*mat.VecDense, len(us))
			for k := range us {
				trial[k] = mat.VecDenseCopyOf(us[k])
				trial[k].AddScaledVec(trial[k], alpha, du[k])
			}

			txs, tj, err := c.rollout(x0, trial)
			if err == nil && tj <= j-c.cfg.Armijo*alpha*norm {
				xs, us, j = txs, trial, tj
				accepted = true
				break
			}
			alpha /= 2
		}

		opts.Logger.Debugw("shooting iteration", "iter", c.iters, "cost", j, "max_du", amax, "alpha", alpha)

		if !accepted {
			break
		}
		c.costs = append(c.costs, j)
	}

	pn, err := c.Process()
	if err != nil {
		return nil, err
	}

	return c.Execute(x0, func(k int, _ mat.Vector) (*mat.VecDense, error) {
		return mat.VecDenseCopyOf(us[k]), nil
	}, pn)
}

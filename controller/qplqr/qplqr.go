// Package qplqr solves finite-horizon LQR as a single sparse-structured QP
// over the decision vector z = [u_0, x_1, u_1, x_2, ..., u_{N-1}, x_N].
package qplqr

import (
	"fmt"

	control "github.com/milosgajdos/go-control"
	"github.com/milosgajdos/go-control/controller"
	"github.com/milosgajdos/go-control/cost"
	"github.com/milosgajdos/go-control/matrix"
	"github.com/milosgajdos/go-control/qp"
	"github.com/milosgajdos/go-control/sim"
	"github.com/milosgajdos/go-control/state"
	"gonum.org/v1/gonum/mat"
)

// Config configures the QP.
type Config struct {
	// Settings are the QP solver settings
	Settings qp.Settings `yaml:"qp"`
	// InputConstraints are affine constraints on every input
	InputConstraints []*controller.Affine `yaml:"-"`
	// StateConstraints are affine constraints on every predicted state
	StateConstraints []*controller.Affine `yaml:"-"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{Settings: qp.DefaultSettings()}
}

// Controller is a QP based finite-horizon LQR controller. The dynamics are
// linearized once at the operating point:
//
//	x+ = A*x + B*u + c
type Controller struct {
	*controller.Base
	cfg    Config
	cost   *cost.Quadratic
	a      *mat.Dense
	b      *mat.Dense
	c      *mat.VecDense
	n      int
	ref    []*mat.VecDense
	l, u   []float64
	solver *qp.Solver
}

// New creates new Controller and returns it.
// It returns error if the options, the weights or any constraint is invalid
// or the plant can not be linearized.
func New(plant *sim.Sim, w controller.Weights, o *controller.Options, cfg Config) (*Controller, error) {
	base, err := controller.NewBase(plant, o)
	if err != nil {
		return nil, err
	}

	qc, err := base.Cost(w)
	if err != nil {
		return nil, err
	}

	opts := base.Options()
	lin, err := controller.NewLinearizer(plant.Discretizer(), opts)
	if err != nil {
		return nil, err
	}

	a, b, err := lin.Jacobians(opts.StateOp, opts.InputOp)
	if err != nil {
		return nil, err
	}

	// affine term of the linearization at the operating point
	c, err := plant.Step(opts.StateOp, opts.InputOp, opts.Dt)
	if err != nil {
		return nil, err
	}
	var ax, bu mat.VecDense
	ax.MulVec(a, opts.StateOp)
	bu.MulVec(b, opts.InputOp)
	c.SubVec(c, &ax)
	c.SubVec(c, &bu)

	ctrl := &Controller{
		Base: base,
		cfg:  cfg,
		cost: qc,
		a:    a,
		b:    b,
		c:    c,
		n:    opts.Steps() - 1,
		ref:  opts.References(opts.Steps()),
	}

	if err := ctrl.build(); err != nil {
		return nil, err
	}

	return ctrl, nil
}

// Horizon returns the number of stages N.
func (c *Controller) Horizon() int { return c.n }

// Matrices returns copies of the linearized dynamics x+ = A*x + B*u + c.
func (c *Controller) Matrices() (a, b *mat.Dense, off *mat.VecDense) {
	return mat.DenseCopyOf(c.a), mat.DenseCopyOf(c.b), mat.VecDenseCopyOf(c.c)
}

// offset returns the position of u_k in z. x_{k+1} follows at offset + nu.
func (c *Controller) offset(k int) int {
	nx, nu := c.Dims()
	return k * (nx + nu)
}

func (c *Controller) build() error {
	nx, nu := c.Dims()
	nz := c.n * (nx + nu)

	// dynamics: B u_k - x_{k+1} + A x_k = -c
	blk := mat.NewDense(nx, nu+nx, nil)
	matrix.SetBlock(blk, 0, 0, c.b)
	matrix.SetBlock(blk, 0, nu, matrix.Identity(nx, -1))
	eq := matrix.Kron(matrix.Identity(c.n, 1), blk)
	for k := 1; k < c.n; k++ {
		matrix.SetBlock(eq, k*nx, c.offset(k-1)+nu, c.a)
	}

	q, qn, r := c.cost.Q(), c.cost.Qn(), c.cost.R()
	P := mat.NewDense(nz, nz, nil)
	for k := 0; k < c.n; k++ {
		o := c.offset(k)
		matrix.SetBlock(P, o, o, r)
		if k < c.n-1 {
			matrix.SetBlock(P, o+nu, o+nu, q)
		} else {
			matrix.SetBlock(P, o+nu, o+nu, qn)
		}
	}

	c.l = make([]float64, c.n*nx)
	c.u = make([]float64, c.n*nx)

	rows := []mat.Matrix{eq}

	var inputs, states []*controller.Affine
	if lim := c.Options().InputLimits; lim != nil {
		inputs = append(inputs, lim.Affine())
	}
	if lim := c.Options().StateLimits; lim != nil {
		states = append(states, lim.Affine())
	}
	inputs = append(inputs, c.cfg.InputConstraints...)
	states = append(states, c.cfg.StateConstraints...)

	for i, con := range inputs {
		if _, cols := con.Dims(); cols != nu {
			return fmt.Errorf("%w: input constraint %d acts on %d components, want %d", control.ErrConfig, i, cols, nu)
		}
		rows = append(rows, con.ExpandInput(nx, c.n))
		lo, up := con.ExpandBounds(c.n)
		c.l, c.u = append(c.l, lo...), append(c.u, up...)
	}

	for i, con := range states {
		if _, cols := con.Dims(); cols != nx {
			return fmt.Errorf("%w: state constraint %d acts on %d components, want %d", control.ErrConfig, i, cols, nx)
		}
		rows = append(rows, con.ExpandState(nu, c.n))
		lo, up := con.ExpandBounds(c.n)
		c.l, c.u = append(c.l, lo...), append(c.u, up...)
	}

	A, err := matrix.VStack(rows...)
	if err != nil {
		return err
	}

	c.setInitialBounds(c.Options().StateOp)

	s, err := qp.New(qp.Problem{
		P: P,
		Q: c.linCost(),
		A: A,
		L: c.l,
		U: c.u,
	}, c.cfg.Settings, qp.WithLogger(c.Options().Logger))
	if err != nil {
		return err
	}
	c.solver = s

	return nil
}

// setInitialBounds sets the dynamics rows to d = [-A x0 - c; -c; ...].
func (c *Controller) setInitialBounds(x0 mat.Vector) {
	nx, _ := c.Dims()

	var ax mat.VecDense
	ax.MulVec(c.a, x0)
	for i := 0; i < nx; i++ {
		c.l[i] = -ax.AtVec(i) - c.c.AtVec(i)
		c.u[i] = c.l[i]
	}
	for k := 1; k < c.n; k++ {
		for i := 0; i < nx; i++ {
			c.l[k*nx+i] = -c.c.AtVec(i)
			c.u[k*nx+i] = c.l[k*nx+i]
		}
	}
}

// linCost returns q with -Q r_k on the states and -Qn r_N on the final state.
func (c *Controller) linCost() []float64 {
	nx, nu := c.Dims()
	q, qn := c.cost.Q(), c.cost.Qn()

	lin := make([]float64, c.n*(nx+nu))
	for k := 1; k <= c.n; k++ {
		w := mat.Symmetric(q)
		if k == c.n {
			w = qn
		}
		var qr mat.VecDense
		qr.MulVec(w, c.ref[k])
		o := c.offset(k-1) + nu
		for i := 0; i < nx; i++ {
			lin[o+i] = -qr.AtVec(i)
		}
	}
	return lin
}

// UpdateInitialState updates the dynamics bounds for initial state x0.
func (c *Controller) UpdateInitialState(x0 mat.Vector) error {
	if err := c.CheckState(x0); err != nil {
		return err
	}
	c.setInitialBounds(x0)
	return c.solver.UpdateBounds(c.l, c.u)
}

// UpdateReference replaces the reference of states x_0..x_N.
// A single entry is used at every step.
func (c *Controller) UpdateReference(ref []*mat.VecDense) error {
	nx, _ := c.Dims()
	if len(ref) != 1 && len(ref) < c.n+1 {
		return fmt.Errorf("%w: reference of length %d for %d states", control.ErrConfig, len(ref), c.n+1)
	}
	out := make([]*mat.VecDense, c.n+1)
	for k := range out {
		r := ref[0]
		if len(ref) > 1 {
			r = ref[k]
		}
		if r == nil || r.Len() != nx {
			return fmt.Errorf("%w: reference %d must have %d components", control.ErrConfig, k, nx)
		}
		out[k] = mat.VecDenseCopyOf(r)
	}
	c.ref = out
	return c.solver.UpdateLinCost(c.linCost())
}

// Predict solves the QP for the current initial state and reference and
// returns the predicted states x_1..x_N and inputs u_0..u_{N-1}.
func (c *Controller) Predict() (xs, us []*mat.VecDense, err error) {
	sol, err := c.solver.Solve()
	if err != nil {
		return nil, nil, err
	}

	nx, nu := c.Dims()
	xs = make([]*mat.VecDense, c.n)
	us = make([]*mat.VecDense, c.n)
	for k := 0; k < c.n; k++ {
		o := c.offset(k)
		us[k] = mat.NewVecDense(nu, append([]float64(nil), sol.X[o:o+nu]...))
		xs[k] = mat.NewVecDense(nx, append([]float64(nil), sol.X[o+nu:o+nu+nx]...))
	}

	c.Options().Logger.Debugw("qp lqr solve", "iterations", sol.Iterations, "objective", sol.Objective)

	return xs, us, nil
}

// Solve solves the QP from x0 and executes the optimal inputs on the plant.
// With process noise configured the execution is perturbed; the inputs stay
// the open-loop optimum.
func (c *Controller) Solve(x0 mat.Vector) (*state.Trajectory, error) {
	if err := c.UpdateInitialState(x0); err != nil {
		return nil, err
	}

	_, us, err := c.Predict()
	if err != nil {
		return nil, err
	}

	pn, err := c.Process()
	if err != nil {
		return nil, err
	}

	return c.Execute(x0, func(k int, _ mat.Vector) (*mat.VecDense, error) {
		return mat.VecDenseCopyOf(us[k]), nil
	}, pn)
}

// Package riccati implements finite-horizon and steady-state LQR controllers
// computed from the discrete Riccati recursion.
package riccati

import (
	"fmt"

	control "github.com/milosgajdos/go-control"
	"github.com/milosgajdos/go-control/controller"
	"github.com/milosgajdos/go-control/cost"
	"github.com/milosgajdos/go-control/matrix"
	"github.com/milosgajdos/go-control/sim"
	"github.com/milosgajdos/go-control/state"
	"go.uber.org/multierr"
	"gonum.org/v1/gonum/mat"
)

// Config configures the Riccati recursion.
type Config struct {
	// SteadyState uses the infinite-horizon gain at every step
	SteadyState bool `yaml:"steady_state"`
	// MaxIter caps the steady-state iterations
	MaxIter int `yaml:"max_iter"`
	// Tol is the steady-state convergence tolerance on max|P_new - P|
	Tol float64 `yaml:"tol"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		SteadyState: false,
		MaxIter:     100,
		Tol:         1e-3,
	}
}

// Validate validates the configuration.
func (c Config) Validate() error {
	var err error
	if c.MaxIter < 1 {
		err = multierr.Append(err, fmt.Errorf("max iterations %d below 1", c.MaxIter))
	}
	if c.Tol <= 0 {
		err = multierr.Append(err, fmt.Errorf("non-positive tolerance %g", c.Tol))
	}
	if err != nil {
		return fmt.Errorf("%w: %v", control.ErrConfig, err)
	}
	return nil
}

// LQR is a Riccati LQR controller of a plant linearized at its operating point.
type LQR struct {
	*controller.Base
	cfg   Config
	cost  *cost.Quadratic
	a     *mat.Dense
	b     *mat.Dense
	gains []*mat.Dense
}

// New creates new LQR controller and returns it.
// The plant is linearized once at the operating point of o.
// It returns error if the options, the weights or cfg are invalid or the
// plant can not be linearized.
func New(plant *sim.Sim, w controller.Weights, o *controller.Options, cfg Config) (*LQR, error) {
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

	opts := base.Options()
	lin, err := controller.NewLinearizer(plant.Discretizer(), opts)
	if err != nil {
		return nil, err
	}

	a, b, err := lin.Jacobians(opts.StateOp, opts.InputOp)
	if err != nil {
		return nil, err
	}

	return &LQR{
		Base: base,
		cfg:  cfg,
		cost: c,
		a:    a,
		b:    b,
	}, nil
}

// Matrices returns copies of the linearized state and input matrices.
func (l *LQR) Matrices() (a, b *mat.Dense) {
	return mat.DenseCopyOf(l.a), mat.DenseCopyOf(l.b)
}

// Gains returns the feedback gains of the last solve.
func (l *LQR) Gains() []*mat.Dense {
	out := make([]*mat.Dense, len(l.gains))
	for k, g := range l.gains {
		out[k] = mat.DenseCopyOf(g)
	}
	return out
}

// ComputeGains computes the feedback gains for the horizon.
func (l *LQR) ComputeGains() error {
	n := l.Options().Steps()
	q, qn, r := l.cost.Q(), l.cost.Qn(), l.cost.R()

	if l.cfg.SteadyState {
		k, _, err := SteadyState(l.a, l.b, q, r, l.cfg.MaxIter, l.cfg.Tol)
		if err != nil {
			return err
		}
		l.gains = make([]*mat.Dense, n-1)
		for i := range l.gains {
			l.gains[i] = k
		}
		return nil
	}

	gains, _, err := Backward(l.a, l.b, q, qn, r, n)
	if err != nil {
		return err
	}
	l.gains = gains

	return nil
}

// Solve computes the gains and runs u_k = u_op - K_k(x_k - r_k) on the
// plant from x0. Inputs are clamped to the input limits and process noise
// perturbs the initial state and every propagated state.
func (l *LQR) Solve(x0 mat.Vector) (*state.Trajectory, error) {
	if err := l.CheckState(x0); err != nil {
		return nil, err
	}

	if err := l.ComputeGains(); err != nil {
		return nil, err
	}

	pn, err := l.Process()
	if err != nil {
		return nil, err
	}

	opts := l.Options()
	opts.Logger.Debugw("riccati solve", "steps", opts.Steps(), "steady_state", l.cfg.SteadyState)

	return l.Execute(x0, l.Policy(), pn)
}

// Policy returns the feedback law u_k = u_op - K_k(x_k - r_k) using the
// gains of the last ComputeGains call. Steps past the horizon use the
// last gain.
func (l *LQR) Policy() sim.Policy {
	opts := l.Options()
	return func(k int, x mat.Vector) (*mat.VecDense, error) {
		if len(l.gains) == 0 {
			return nil, fmt.Errorf("%w: gains not computed", control.ErrIncompleteConfiguration)
		}
		if k >= len(l.gains) {
			k = len(l.gains) - 1
		}

		dx := mat.VecDenseCopyOf(x)
		dx.SubVec(dx, opts.Ref(k))

		u := new(mat.VecDense)
		u.MulVec(l.gains[k], dx)
		u.SubVec(opts.InputOp, u)
		return u, nil
	}
}

// gain returns (R + B'PB)^-1 B'PA.
func gain(a, b mat.Matrix, p, r mat.Symmetric) (*mat.Dense, error) {
	var btp, lhs, rhs mat.Dense
	btp.Mul(b.T(), p)
	lhs.Mul(&btp, b)
	lhs.Add(&lhs, r)
	rhs.Mul(&btp, a)

	return matrix.Solve(&lhs, &rhs)
}

// next returns Q + A'P(A - BK).
func next(a, b, k mat.Matrix, p, q mat.Symmetric) *mat.SymDense {
	var bk, acl, atp, out mat.Dense
	bk.Mul(b, k)
	acl.Sub(a, &bk)
	atp.Mul(a.T(), p)
	out.Mul(&atp, &acl)
	out.Add(&out, q)

	return matrix.Symmetrize(&out)
}

// Backward runs the finite-horizon Riccati recursion over n states starting
// from P = Qn and returns the n-1 gains and the cost-to-go matrices P_0..P_{n-1}.
func Backward(a, b mat.Matrix, q, qn, r mat.Symmetric, n int) ([]*mat.Dense, []*mat.SymDense, error) {
	if n < 2 {
		return nil, nil, fmt.Errorf("%w: horizon of %d states", control.ErrConfig, n)
	}

	gains := make([]*mat.Dense, n-1)
	ps := make([]*mat.SymDense, n)
	ps[n-1] = matrix.Symmetrize(qn)

	for k := n - 2; k >= 0; k-- {
		kk, err := gain(a, b, ps[k+1], r)
		if err != nil {
			return nil, nil, &control.StepError{Step: k, Err: err}
		}
		gains[k] = kk
		ps[k] = next(a, b, kk, ps[k+1], q)
	}

	return gains, ps, nil
}

// SteadyState iterates the Riccati recursion from P = Q until
// max|P_new - P| < tol and returns the steady-state gain and P.
// It returns control.ErrEvaluation if it does not converge in maxIter iterations.
func SteadyState(a, b mat.Matrix, q, r mat.Symmetric, maxIter int, tol float64) (*mat.Dense, *mat.SymDense, error) {
	p := matrix.Symmetrize(q)

	for i := 0; i < maxIter; i++ {
		k, err := gain(a, b, p, r)
		if err != nil {
			return nil, nil, err
		}

		pn := next(a, b, k, p, q)

		var diff mat.Dense
		diff.Sub(pn, p)
		p = pn

		if matrix.AMax(&diff) < tol {
			k, err := gain(a, b, p, r)
			if err != nil {
				return nil, nil, err
			}
			return k, p, nil
		}
	}

	return nil, nil, fmt.Errorf("%w: steady-state Riccati did not converge in %d iterations", control.ErrEvaluation, maxIter)
}

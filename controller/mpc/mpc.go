// Package mpc implements receding-horizon convex MPC. Every step solves a
// finite-horizon QP-LQR problem from the measured state and applies its
// first input.
package mpc

import (
	"fmt"

	control "github.com/milosgajdos/go-control"
	"github.com/milosgajdos/go-control/controller"
	"github.com/milosgajdos/go-control/controller/qplqr"
	"github.com/milosgajdos/go-control/controller/riccati"
	"github.com/milosgajdos/go-control/matrix"
	"github.com/milosgajdos/go-control/sim"
	"github.com/milosgajdos/go-control/state"
	"gonum.org/v1/gonum/mat"
)

// Config configures the controller.
type Config struct {
	// Horizon is the prediction horizon in seconds
	Horizon float64 `yaml:"horizon"`
	// SteadyStateTerminal replaces Qn with the steady-state Riccati solution
	SteadyStateTerminal bool `yaml:"steady_state_terminal"`
	// Riccati configures the steady-state Riccati iteration
	Riccati riccati.Config `yaml:"riccati"`
	// QP configures the per-step QP
	QP qplqr.Config `yaml:"qp"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		Horizon: 1.0,
		Riccati: riccati.DefaultConfig(),
		QP:      qplqr.DefaultConfig(),
	}
}

// Controller is a receding-horizon MPC controller.
type Controller struct {
	*controller.Base
	cfg   Config
	inner *qplqr.Controller
	qn    *mat.SymDense
}

// New creates new Controller and returns it.
// It returns error if the prediction horizon is not shorter than the
// horizon of o, the options or weights are invalid, or the steady-state
// terminal weight does not converge.
func New(plant *sim.Sim, w controller.Weights, o *controller.Options, cfg Config) (*Controller, error) {
	base, err := controller.NewBase(plant, o)
	if err != nil {
		return nil, err
	}

	opts := base.Options()
	if cfg.Horizon < opts.Dt || cfg.Horizon >= opts.Horizon {
		return nil, fmt.Errorf("%w: prediction horizon %g not in [%g, %g)", control.ErrConfig, cfg.Horizon, opts.Dt, opts.Horizon)
	}

	if _, err := base.Cost(w); err != nil {
		return nil, err
	}

	if cfg.SteadyStateTerminal {
		if err := cfg.Riccati.Validate(); err != nil {
			return nil, err
		}

		lin, err := controller.NewLinearizer(plant.Discretizer(), opts)
		if err != nil {
			return nil, err
		}
		a, b, err := lin.Jacobians(opts.StateOp, opts.InputOp)
		if err != nil {
			return nil, err
		}

		_, pss, err := riccati.SteadyState(a, b, matrix.Symmetrize(w.Q), matrix.Symmetrize(w.R), cfg.Riccati.MaxIter, cfg.Riccati.Tol)
		if err != nil {
			return nil, err
		}
		w.Qn = pss
	}

	io := opts.Clone()
	io.Horizon = cfg.Horizon
	io.Noise = controller.Noise{}
	if len(io.Reference) > 1 {
		io.Reference = window(opts, 0, controller.Steps(cfg.Horizon, opts.Dt))
	}

	inner, err := qplqr.New(plant, w, io, cfg.QP)
	if err != nil {
		return nil, err
	}

	return &Controller{
		Base:  base,
		cfg:   cfg,
		inner: inner,
		qn:    matrix.Symmetrize(w.Qn),
	}, nil
}

// TerminalWeight returns the terminal weight of the prediction problem.
func (c *Controller) TerminalWeight() *mat.SymDense {
	return matrix.Symmetrize(c.qn)
}

// window returns the n reference states starting at step k.
func window(o *controller.Options, k, n int) []*mat.VecDense {
	out := make([]*mat.VecDense, n)
	for i := range out {
		out[i] = o.Ref(k + i)
	}
	return out
}

// Policy returns the receding-horizon policy: at step k it re-solves the
// prediction problem from x and returns the first predicted input.
func (c *Controller) Policy() sim.Policy {
	opts := c.Options()
	n := c.inner.Horizon() + 1

	return func(k int, x mat.Vector) (*mat.VecDense, error) {
		if err := c.inner.UpdateInitialState(x); err != nil {
			return nil, err
		}
		if len(opts.Reference) > 1 {
			if err := c.inner.UpdateReference(window(opts, k, n)); err != nil {
				return nil, err
			}
		}

		_, us, err := c.inner.Predict()
		if err != nil {
			return nil, err
		}

		return us[0], nil
	}
}

// Solve runs the controller in closed loop on the plant from x0 over the
// full horizon. Process noise perturbs the initial state and every step.
func (c *Controller) Solve(x0 mat.Vector) (*state.Trajectory, error) {
	pn, err := c.Process()
	if err != nil {
		return nil, err
	}

	traj, err := c.Execute(x0, c.Policy(), pn)
	if err != nil {
		return nil, err
	}

	c.Options().Logger.Debugw("mpc solve", "steps", len(traj.States), "prediction", c.inner.Horizon())

	return traj, nil
}

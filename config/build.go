package config

import (
	"fmt"

	control "github.com/milosgajdos/go-control"
	"github.com/milosgajdos/go-control/controller"
	"github.com/milosgajdos/go-control/controller/ddp"
	"github.com/milosgajdos/go-control/controller/mpc"
	"github.com/milosgajdos/go-control/controller/qplqr"
	"github.com/milosgajdos/go-control/controller/riccati"
	"github.com/milosgajdos/go-control/controller/shooting"
	"github.com/milosgajdos/go-control/discretizer"
	"github.com/milosgajdos/go-control/model"
	"github.com/milosgajdos/go-control/sim"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/mat"
)

// NewModel creates the model described by the scenario.
func (c *Config) NewModel() (control.Model, error) {
	m := c.Model
	switch m.Kind {
	case Pendulum:
		return model.NewPendulum(m.Mass, m.Length, m.Damping)
	case DoublePendulum:
		return model.NewDoublePendulum(m.Mass, m.Mass2, m.Length, m.Length2, m.Damping)
	case BouncingBall:
		return model.NewBouncingBall(m.Mass, m.Friction)
	case CartPole:
		return model.NewCartPole(m.Mass, m.Mass2, m.Length, m.Friction, m.Damping)
	case LTI:
		a, err := dense(m.A)
		if err != nil {
			return nil, err
		}
		b, err := dense(m.B)
		if err != nil {
			return nil, err
		}
		return model.NewLTI(a, b)
	}
	return nil, fmt.Errorf("%w: unknown model %q", control.ErrConfig, m.Kind)
}

// NewPlant creates the model and wraps it in a simulator stepping it with
// the configured discretizer.
func (c *Config) NewPlant(l *zap.SugaredLogger) (*sim.Sim, error) {
	m, err := c.NewModel()
	if err != nil {
		return nil, err
	}

	kind, err := discretizer.ParseKind(c.Discretizer)
	if err != nil {
		return nil, err
	}

	if l == nil {
		l = zap.NewNop().Sugar()
	}

	d, err := discretizer.New(kind, m, nil,
		discretizer.WithDt(c.Dt),
		discretizer.WithSolverConfig(c.Solver),
		discretizer.WithLogger(l),
	)
	if err != nil {
		return nil, err
	}

	return sim.New(m, d, sim.WithLogger(l))
}

// InitialState returns the initial state.
func (c *Config) InitialState() *mat.VecDense {
	return mat.NewVecDense(len(c.X0), append([]float64(nil), c.X0...))
}

// Options returns the controller options of the scenario.
func (c *Config) Options(l *zap.SugaredLogger) (*controller.Options, error) {
	o := &controller.Options{
		Dt:      c.Dt,
		Horizon: c.Horizon,
		Params:  c.Params,
		Noise:   c.Noise,
		Logger:  l,
	}

	for _, r := range c.Reference {
		o.Reference = append(o.Reference, vec(r))
	}
	if len(c.StateOp) > 0 {
		o.StateOp = vec(c.StateOp)
	}
	if len(c.InputOp) > 0 {
		o.InputOp = vec(c.InputOp)
	}

	var err error
	if c.InputLimits != nil {
		if o.InputLimits, err = controller.NewBox(c.InputLimits.Lower, c.InputLimits.Upper); err != nil {
			return nil, err
		}
	}
	if c.StateLimits != nil {
		if o.StateLimits, err = controller.NewBox(c.StateLimits.Lower, c.StateLimits.Upper); err != nil {
			return nil, err
		}
	}

	return o, nil
}

// NewWeights returns the diagonal cost weights of the scenario.
func (c *Config) NewWeights() controller.Weights {
	return controller.Weights{
		Q:  diag(c.Weights.Q),
		Qn: diag(c.Weights.Qn),
		R:  diag(c.Weights.R),
	}
}

// NewController creates the configured controller for plant.
func (c *Config) NewController(plant *sim.Sim, l *zap.SugaredLogger) (control.Controller, error) {
	o, err := c.Options(l)
	if err != nil {
		return nil, err
	}
	w := c.NewWeights()

	var ctrl control.Controller
	switch c.Controller {
	case Riccati:
		ctrl, err = nilSafe(riccati.New(plant, w, o, c.Riccati))
	case ILQR, DDP:
		cfg := c.DDP.Config
		if cfg.Mode, err = ddp.ParseMode(c.Controller); err != nil {
			return nil, err
		}
		ctrl, err = nilSafe(ddp.New(plant, w, o, cfg))
	case QPLQR:
		ctrl, err = nilSafe(qplqr.New(plant, w, o, qplqr.Config{Settings: c.QP}))
	case MPC:
		cfg := mpc.DefaultConfig()
		cfg.Horizon = c.MPC.Horizon
		cfg.SteadyStateTerminal = c.MPC.SteadyStateTerminal
		cfg.Riccati = c.Riccati
		cfg.QP.Settings = c.QP
		ctrl, err = nilSafe(mpc.New(plant, w, o, cfg))
	case Shooting:
		ctrl, err = nilSafe(shooting.NewLinear(plant, w, o, c.Shooting))
	case ShootingSymbolic:
		ctrl, err = nilSafe(shooting.NewSymbolic(plant, w, o, c.Shooting))
	default:
		err = fmt.Errorf("%w: unknown controller %q", control.ErrConfig, c.Controller)
	}
	if err != nil {
		return nil, err
	}

	return ctrl, nil
}

// nilSafe turns a typed constructor result into an interface value that is
// nil whenever err is set.
func nilSafe[T control.Controller](c T, err error) (control.Controller, error) {
	if err != nil {
		return nil, err
	}
	return c, nil
}

func vec(v []float64) *mat.VecDense {
	return mat.NewVecDense(len(v), append([]float64(nil), v...))
}

func diag(d []float64) *mat.Dense {
	m := mat.NewDense(len(d), len(d), nil)
	for i, v := range d {
		m.Set(i, i, v)
	}
	return m
}

func dense(rows [][]float64) (*mat.Dense, error) {
	if len(rows) == 0 || len(rows[0]) == 0 {
		return nil, fmt.Errorf("%w: empty matrix", control.ErrConfig)
	}
	m := mat.NewDense(len(rows), len(rows[0]), nil)
	for i, r := range rows {
		if len(r) != len(rows[0]) {
			return nil, fmt.Errorf("%w: row %d has %d columns, want %d", control.ErrConfig, i, len(r), len(rows[0]))
		}
		m.SetRow(i, r)
	}
	return m, nil
}

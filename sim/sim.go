// Package sim simulates discretized dynamical systems in open and closed loop.
package sim

import (
	"fmt"

	control "github.com/milosgajdos/go-control"
	"github.com/milosgajdos/go-control/discretizer"
	"github.com/milosgajdos/go-control/noise"
	"github.com/milosgajdos/go-control/state"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/mat"
)

// Policy returns the input applied at step k in state x.
type Policy func(k int, x mat.Vector) (*mat.VecDense, error)

// Option configures a Sim.
type Option func(*options)

type options struct {
	logger *zap.SugaredLogger
	output *Output
	meas   control.Noise
}

// WithLogger sets the simulation logger.
func WithLogger(l *zap.SugaredLogger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// WithOutput makes closed-loop policies see y = Cx + Du + w instead of the
// state. A nil n is noise.None: the measurements are exact.
func WithOutput(out *Output, n control.Noise) Option {
	return func(o *options) {
		if n == nil {
			n = &noise.None{}
		}
		o.output = out
		o.meas = n
	}
}

// Sim advances a model with a discretizer.
type Sim struct {
	model control.Model
	disc  control.Discretizer
	opts  options
}

// New creates new Sim for model m stepped by d and returns it.
// It returns error if either m or d is nil or the measurement output does
// not match the model dimensions.
func New(m control.Model, d control.Discretizer, opts ...Option) (*Sim, error) {
	if m == nil || d == nil {
		return nil, fmt.Errorf("%w: simulation needs a model and a discretizer", control.ErrConfig)
	}

	o := options{logger: zap.NewNop().Sugar()}
	for _, apply := range opts {
		apply(&o)
	}

	if o.output != nil {
		nx, nu, ny := o.output.Dims()
		if nx != m.StateLayout().Len() || (nu > 0 && nu != m.InputLayout().Len()) {
			return nil, fmt.Errorf("%w: output matrices do not match model dimensions", control.ErrConfig)
		}
		if !noise.IsNone(o.meas) && len(o.meas.Mean()) != ny {
			return nil, fmt.Errorf("%w: measurement noise must have %d components", control.ErrConfig, ny)
		}
	}

	return &Sim{model: m, disc: d, opts: o}, nil
}

// Model returns the simulated model.
func (s *Sim) Model() control.Model { return s.model }

// Discretizer returns the discretizer.
func (s *Sim) Discretizer() control.Discretizer { return s.disc }

// Dims returns the state and input dimensions.
func (s *Sim) Dims() (nx, nu int) {
	return s.model.StateLayout().Len(), s.model.InputLayout().Len()
}

// Clone returns a Sim that can run concurrently with s. Implicit
// discretizers get their own registry.
func (s *Sim) Clone() *Sim {
	c := *s
	if d, ok := s.disc.(*discretizer.Implicit); ok {
		c.disc = d.WithRegistry(d.Registry().Clone())
	}
	return &c
}

// Step advances x by dt under input u. A nil u, including a nil
// *mat.VecDense, is a zero input.
func (s *Sim) Step(x, u mat.Vector, dt float64) (*mat.VecDense, error) {
	nx, nu := s.Dims()
	if x == nil || x.Len() != nx {
		return nil, fmt.Errorf("%w: state vector must have %d components", control.ErrConfig, nx)
	}

	if v, ok := u.(*mat.VecDense); ok && v == nil {
		u = nil
	}

	var in mat.Vector
	switch {
	case u != nil:
		if u.Len() != nu {
			return nil, fmt.Errorf("%w: input vector has %d components, want %d", control.ErrConfig, u.Len(), nu)
		}
		in = u
	case nu > 0:
		in = mat.NewVecDense(nu, nil)
	}

	return s.disc.Step(x, in, dt)
}

// Rollout returns the n states starting at x0 driven by us.
// A nil us drives the system with zero input, a single input is held for
// every step, otherwise us must have at least n-1 inputs.
func (s *Sim) Rollout(x0 mat.Vector, us []*mat.VecDense, dt float64, n int) ([]*mat.VecDense, error) {
	if n < 1 {
		return nil, fmt.Errorf("%w: rollout length %d", control.ErrConfig, n)
	}
	if len(us) > 1 && len(us) < n-1 {
		return nil, fmt.Errorf("%w: %d inputs for %d steps", control.ErrConfig, len(us), n-1)
	}
	if x0 == nil {
		return nil, fmt.Errorf("%w: nil initial state", control.ErrConfig)
	}

	xs := make([]*mat.VecDense, n)
	xs[0] = mat.VecDenseCopyOf(x0)

	for k := 0; k < n-1; k++ {
		var u mat.Vector
		switch {
		case len(us) == 1:
			u = us[0]
		case len(us) > 1 && us[k] != nil:
			u = us[k]
		}

		x, err := s.Step(xs[k], u, dt)
		if err != nil {
			return nil, &control.StepError{Step: k, Err: err}
		}
		xs[k+1] = x
	}

	return xs, nil
}

// ClosedLoop runs policy for n-1 steps from x0 and returns the trajectory.
// With an output configured the policy is fed measurements.
func (s *Sim) ClosedLoop(x0 mat.Vector, policy Policy, dt float64, n int) (*state.Trajectory, error) {
	if policy == nil || n < 1 || x0 == nil {
		return nil, fmt.Errorf("%w: closed loop needs a policy, an initial state and a positive length", control.ErrConfig)
	}

	xs := make([]*mat.VecDense, n)
	us := make([]*mat.VecDense, n-1)
	xs[0] = mat.VecDenseCopyOf(x0)

	var prev mat.Vector
	for k := 0; k < n-1; k++ {
		y, err := s.measure(xs[k], prev)
		if err != nil {
			return nil, &control.StepError{Step: k, Err: err}
		}

		u, err := policy(k, y)
		if err != nil {
			return nil, &control.StepError{Step: k, Err: err}
		}
		if u == nil {
			u = zeros(s.model.InputLayout().Len())
		}

		x, err := s.Step(xs[k], u, dt)
		if err != nil {
			return nil, &control.StepError{Step: k, Err: err}
		}
		us[k], xs[k+1] = u, x
		prev = u
		s.opts.logger.Debugw("closed loop step", "step", k, "state", x.RawVector().Data)
	}

	return state.NewTrajectory(xs, us)
}

func (s *Sim) measure(x, u mat.Vector) (mat.Vector, error) {
	if s.opts.output == nil {
		return x, nil
	}

	var w mat.Vector
	if !noise.IsNone(s.opts.meas) {
		w = s.opts.meas.Sample()
	}

	return s.opts.output.Observe(x, u, w)
}

// zeros returns a zero vector of length n. Empty vectors are allowed.
func zeros(n int) *mat.VecDense {
	if n == 0 {
		return &mat.VecDense{}
	}
	return mat.NewVecDense(n, nil)
}

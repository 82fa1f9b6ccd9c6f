package controller

import (
	"fmt"

	control "github.com/milosgajdos/go-control"
	"github.com/milosgajdos/go-control/cost"
	"github.com/milosgajdos/go-control/noise"
	"github.com/milosgajdos/go-control/sim"
	"github.com/milosgajdos/go-control/state"
	"gonum.org/v1/gonum/mat"
)

// Base is embedded by controllers. It keeps the plant, the options and the
// last solved input trajectory.
type Base struct {
	plant  *sim.Sim
	opts   *Options
	inputs []*mat.VecDense
}

// NewBase validates a copy of o against the plant dimensions and returns
// new Base.
func NewBase(plant *sim.Sim, o *Options) (*Base, error) {
	if plant == nil || o == nil {
		return nil, fmt.Errorf("%w: controller needs a plant and options", control.ErrConfig)
	}

	opts := o.Clone()
	nx, nu := plant.Dims()
	if err := opts.Validate(nx, nu); err != nil {
		return nil, err
	}

	return &Base{
		plant: plant,
		opts:  opts,
	}, nil
}

// Plant returns the simulated plant.
func (b *Base) Plant() *sim.Sim { return b.plant }

// Options returns the validated options.
func (b *Base) Options() *Options { return b.opts }

// Dims returns the state and input dimensions.
func (b *Base) Dims() (nx, nu int) { return b.plant.Dims() }

// SetInputs stores a copy of us as the solved input trajectory.
func (b *Base) SetInputs(us []*mat.VecDense) {
	b.inputs = state.Clone(us)
}

// InputTrajectory returns a copy of the last solved inputs.
func (b *Base) InputTrajectory() []*mat.VecDense {
	return state.Clone(b.inputs)
}

// Rollout replays the last solved inputs on the plant from x0.
// It returns control.ErrIncompleteConfiguration if nothing was solved yet.
func (b *Base) Rollout(x0 mat.Vector) ([]*mat.VecDense, error) {
	if len(b.inputs) == 0 {
		return nil, fmt.Errorf("%w: no solved input trajectory", control.ErrIncompleteConfiguration)
	}
	return b.plant.Rollout(x0, b.inputs, b.opts.Dt, len(b.inputs)+1)
}

// CheckState returns error if x0 does not have nx components.
func (b *Base) CheckState(x0 mat.Vector) error {
	nx, _ := b.Dims()
	if x0 == nil || x0.Len() != nx {
		return fmt.Errorf("%w: initial state must have %d components", control.ErrConfig, nx)
	}
	return nil
}

// Weights are the quadratic cost weights of a tracking problem.
type Weights struct {
	// Q is the stage state weight
	Q mat.Matrix
	// Qn is the terminal state weight
	Qn mat.Matrix
	// R is the input weight
	R mat.Matrix
}

// Cost returns the quadratic tracking cost of w over the option reference.
// It returns error if the weights do not match the plant dimensions.
func (b *Base) Cost(w Weights) (*cost.Quadratic, error) {
	ref := b.opts.Reference
	if len(ref) > 1 {
		ref = b.opts.References(b.opts.Steps())
	}

	c, err := cost.NewQuadratic(w.Q, w.Qn, w.R, ref)
	if err != nil {
		return nil, err
	}

	nx, nu := b.Dims()
	if cx, cu := c.Dims(); cx != nx || cu != nu {
		return nil, fmt.Errorf("%w: cost weights are %dx%d, plant is %dx%d", control.ErrConfig, cx, cu, nx, nu)
	}

	return c, nil
}

// Process returns the process noise of the options.
func (b *Base) Process() (*noise.Process, error) {
	return b.opts.Noise.Process()
}

// Execute runs policy on the plant for the horizon starting at x0.
// Inputs are clamped to the input limits. pn perturbs the initial state and
// every propagated state; a nil pn runs the plant without noise.
func (b *Base) Execute(x0 mat.Vector, policy sim.Policy, pn *noise.Process) (*state.Trajectory, error) {
	if err := b.CheckState(x0); err != nil {
		return nil, err
	}

	n := b.opts.Steps()
	xs := make([]*mat.VecDense, n)
	us := make([]*mat.VecDense, n-1)

	xs[0] = mat.VecDenseCopyOf(x0)
	if pn != nil {
		xs[0] = pn.Initial(x0)
	}

	for k := 0; k < n-1; k++ {
		u, err := policy(k, xs[k])
		if err != nil {
			return nil, &control.StepError{Step: k, Err: err}
		}
		if _, nu := b.Dims(); u == nil && nu > 0 {
			u = mat.NewVecDense(nu, nil)
		}
		if b.opts.InputLimits != nil {
			b.opts.InputLimits.Clamp(u)
		}

		x, err := b.plant.Step(xs[k], u, b.opts.Dt)
		if err != nil {
			return nil, &control.StepError{Step: k, Err: err}
		}
		if pn != nil {
			x = pn.Step(x)
		}

		us[k], xs[k+1] = u, x
	}

	b.SetInputs(us)

	return state.NewTrajectory(xs, us)
}

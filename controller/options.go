// Package controller holds what the finite-horizon controllers share:
// options, operating points, box and affine constraints, horizon arithmetic
// and the replay of solved input trajectories.
package controller

import (
	"fmt"
	"math"

	control "github.com/milosgajdos/go-control"
	"github.com/milosgajdos/go-control/noise"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/mat"
)

// Noise configures process noise injected in closed loop.
type Noise struct {
	// Std0 is the standard deviation of the initial state perturbation
	Std0 float64 `yaml:"std0"`
	// Std is the standard deviation of the per-step perturbation
	Std float64 `yaml:"std"`
	// Seed seeds the noise source; zero seeds from the clock
	Seed uint64 `yaml:"seed"`
}

// Process returns the process noise described by n.
func (n Noise) Process() (*noise.Process, error) {
	return noise.NewProcess(n.Std0, n.Std, n.Seed)
}

// Options are the options shared by every controller.
type Options struct {
	// Dt is the time step
	Dt float64
	// Horizon is the time horizon
	Horizon float64
	// Reference is the state reference trajectory.
	// A single entry is used at every step.
	Reference []*mat.VecDense
	// StateOp is the state operating point; defaults to the final reference
	StateOp *mat.VecDense
	// InputOp is the input operating point; defaults to zero
	InputOp *mat.VecDense
	// Params overrides the model parameters seen by the linearizer
	Params []float64
	// InputLimits bounds the inputs
	InputLimits *Box
	// StateLimits bounds the states
	StateLimits *Box
	// Noise is the process noise; zero disables it
	Noise Noise
	// Logger logs solver progress
	Logger *zap.SugaredLogger
}

// Validate checks o against state dimension nx and input dimension nu and
// fills in the default operating points.
func (o *Options) Validate(nx, nu int) error {
	var err error

	if o.Dt <= 0 || math.IsNaN(o.Dt) {
		err = multierr.Append(err, fmt.Errorf("non-positive time step %g", o.Dt))
	}
	if o.Horizon < o.Dt {
		err = multierr.Append(err, fmt.Errorf("horizon %g shorter than time step %g", o.Horizon, o.Dt))
	}
	if len(o.Reference) == 0 {
		err = multierr.Append(err, fmt.Errorf("empty reference trajectory"))
	}
	for i, r := range o.Reference {
		if r == nil || r.Len() != nx {
			err = multierr.Append(err, fmt.Errorf("reference %d must have %d components", i, nx))
		}
	}
	if n := len(o.Reference); n > 1 && err == nil && n < o.Steps() {
		err = multierr.Append(err, fmt.Errorf("reference of length %d shorter than %d steps", n, o.Steps()))
	}
	if o.StateOp != nil && o.StateOp.Len() != nx {
		err = multierr.Append(err, fmt.Errorf("state operating point must have %d components", nx))
	}
	if o.InputOp != nil && o.InputOp.Len() != nu {
		err = multierr.Append(err, fmt.Errorf("input operating point must have %d components", nu))
	}
	if o.InputLimits != nil && o.InputLimits.Len() != nu {
		err = multierr.Append(err, fmt.Errorf("input limits must have %d components", nu))
	}
	if o.StateLimits != nil && o.StateLimits.Len() != nx {
		err = multierr.Append(err, fmt.Errorf("state limits must have %d components", nx))
	}
	if o.Noise.Std0 < 0 || o.Noise.Std < 0 {
		err = multierr.Append(err, fmt.Errorf("negative noise deviation"))
	}

	if err != nil {
		return fmt.Errorf("%w: %v", control.ErrConfig, err)
	}

	if o.StateOp == nil {
		o.StateOp = mat.VecDenseCopyOf(o.Reference[len(o.Reference)-1])
	}
	if o.InputOp == nil {
		o.InputOp = Zeros(nu)
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop().Sugar()
	}

	return nil
}

// Steps returns the number of states on the horizon.
func (o *Options) Steps() int {
	return Steps(o.Horizon, o.Dt)
}

// Steps returns horizon/dt + 1 rounding the ratio down.
func Steps(horizon, dt float64) int {
	return int(math.Floor(horizon/dt+1e-9)) + 1
}

// Ref returns the reference state at step k.
// Steps past the end of the reference get its final entry.
func (o *Options) Ref(k int) *mat.VecDense {
	if k >= len(o.Reference) {
		k = len(o.Reference) - 1
	}
	return o.Reference[k]
}

// References returns the reference for each of the n steps.
func (o *Options) References(n int) []*mat.VecDense {
	out := make([]*mat.VecDense, n)
	for k := range out {
		out[k] = o.Ref(k)
	}
	return out
}

// Clone returns a deep copy of o. The logger is shared.
func (o *Options) Clone() *Options {
	c := *o

	c.Reference = make([]*mat.VecDense, len(o.Reference))
	for i, r := range o.Reference {
		if r != nil {
			c.Reference[i] = mat.VecDenseCopyOf(r)
		}
	}
	if o.StateOp != nil {
		c.StateOp = mat.VecDenseCopyOf(o.StateOp)
	}
	if o.InputOp != nil {
		c.InputOp = mat.VecDenseCopyOf(o.InputOp)
	}
	if o.Params != nil {
		c.Params = append([]float64(nil), o.Params...)
	}
	if o.InputLimits != nil {
		c.InputLimits = &Box{Lower: mat.VecDenseCopyOf(o.InputLimits.Lower), Upper: mat.VecDenseCopyOf(o.InputLimits.Upper)}
	}
	if o.StateLimits != nil {
		c.StateLimits = &Box{Lower: mat.VecDenseCopyOf(o.StateLimits.Lower), Upper: mat.VecDenseCopyOf(o.StateLimits.Upper)}
	}

	return &c
}

// Zeros returns a zero vector of length n. Empty vectors are allowed.
func Zeros(n int) *mat.VecDense {
	if n == 0 {
		return &mat.VecDense{}
	}
	return mat.NewVecDense(n, nil)
}

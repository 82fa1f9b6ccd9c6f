package state

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// Trajectory is a sequence of states and the inputs that produced them.
// States has exactly one more element than Inputs.
type Trajectory struct {
	// States are x_0 .. x_N
	States []*mat.VecDense
	// Inputs are u_0 .. u_{N-1}
	Inputs []*mat.VecDense
}

// NewTrajectory creates new Trajectory and validates it.
func NewTrajectory(states, inputs []*mat.VecDense) (*Trajectory, error) {
	t := &Trajectory{States: states, Inputs: inputs}
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return t, nil
}

// Validate checks len(States) == len(Inputs)+1 and consistent dimensions.
func (t *Trajectory) Validate() error {
	if len(t.States) == 0 {
		return fmt.Errorf("%w: empty trajectory", ErrInvalid)
	}
	if len(t.States) != len(t.Inputs)+1 {
		return fmt.Errorf("%w: %d states for %d inputs", ErrInvalid, len(t.States), len(t.Inputs))
	}
	nx := t.States[0].Len()
	for i, x := range t.States {
		if x.Len() != nx {
			return fmt.Errorf("%w: state %d has length %d, want %d", ErrInvalid, i, x.Len(), nx)
		}
	}
	if len(t.Inputs) > 0 {
		nu := t.Inputs[0].Len()
		for i, u := range t.Inputs {
			if u.Len() != nu {
				return fmt.Errorf("%w: input %d has length %d, want %d", ErrInvalid, i, u.Len(), nu)
			}
		}
	}
	return nil
}

// Len returns the number of states.
func (t *Trajectory) Len() int { return len(t.States) }

// StateMatrix returns the states stacked as rows of a matrix.
func (t *Trajectory) StateMatrix() *mat.Dense {
	return Rows(t.States)
}

// InputMatrix returns the inputs stacked as rows of a matrix.
func (t *Trajectory) InputMatrix() *mat.Dense {
	return Rows(t.Inputs)
}

// Rows stacks vs as matrix rows. It returns nil for an empty slice.
func Rows(vs []*mat.VecDense) *mat.Dense {
	if len(vs) == 0 {
		return nil
	}
	m := mat.NewDense(len(vs), vs[0].Len(), nil)
	for i, v := range vs {
		m.SetRow(i, v.RawVector().Data)
	}
	return m
}

// Clone returns a deep copy of vs.
func Clone(vs []*mat.VecDense) []*mat.VecDense {
	out := make([]*mat.VecDense, len(vs))
	for i, v := range vs {
		out[i] = mat.VecDenseCopyOf(v)
	}
	return out
}

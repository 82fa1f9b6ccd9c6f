package model

import (
	"fmt"

	control "github.com/milosgajdos/go-control"
	"github.com/milosgajdos/go-control/rand"
	"gonum.org/v1/gonum/mat"
)

// InitCond is an uncertain initial state: a nominal state and the
// covariance of its perturbations.
type InitCond struct {
	state *mat.VecDense
	cov   *mat.SymDense
}

// NewInitCond creates new InitCond and returns it.
// It returns error if the covariance does not match the state.
func NewInitCond(state mat.Vector, cov mat.Symmetric) (*InitCond, error) {
	if state == nil || cov == nil || cov.SymmetricDim() != state.Len() {
		return nil, fmt.Errorf("%w: initial covariance must match the state dimension", control.ErrConfig)
	}

	s := &mat.VecDense{}
	s.CloneFromVec(state)

	c := mat.NewSymDense(cov.SymmetricDim(), nil)
	c.CopySym(cov)

	return &InitCond{
		state: s,
		cov:   c,
	}, nil
}

// State returns a copy of the nominal state.
func (c *InitCond) State() mat.Vector {
	state := mat.NewVecDense(c.state.Len(), nil)
	state.CopyVec(c.state)

	return state
}

// Cov returns a copy of the initial covariance.
func (c *InitCond) Cov() mat.Symmetric {
	cov := mat.NewSymDense(c.cov.SymmetricDim(), nil)
	cov.CopySym(c.cov)

	return cov
}

// Samples draws n initial states around the nominal state.
// It returns error if n is not positive or the covariance can not be factorized.
func (c *InitCond) Samples(n int, seed uint64) ([]*mat.VecDense, error) {
	perturb, err := rand.WithCovN(c.cov, n, seed)
	if err != nil {
		return nil, err
	}

	out := make([]*mat.VecDense, n)
	for i := range out {
		x := mat.VecDenseCopyOf(perturb.ColView(i))
		x.AddVec(x, c.state)
		out[i] = x
	}

	return out, nil
}

// Package estimate holds the state estimates produced by filters.
package estimate

import (
	"fmt"

	control "github.com/milosgajdos/go-control"
	"gonum.org/v1/gonum/mat"
)

// Estimate is a state estimate with its covariance
type Estimate struct {
	// val is estimated value
	val *mat.VecDense
	// cov is estimated covariance
	cov *mat.SymDense
}

// New returns an estimate of val with covariance cov. A nil cov is zero.
// It returns error if val is empty or cov does not match it.
func New(val mat.Vector, cov mat.Symmetric) (*Estimate, error) {
	if val == nil || val.Len() == 0 {
		return nil, fmt.Errorf("%w: empty estimate", control.ErrConfig)
	}

	n := val.Len()
	c := mat.NewSymDense(n, nil)
	if cov != nil {
		if cov.SymmetricDim() != n {
			return nil, fmt.Errorf("%w: covariance is %dx%[2]d, value has %d components", control.ErrConfig, cov.SymmetricDim(), n)
		}
		c.CopySym(cov)
	}

	return &Estimate{
		val: mat.VecDenseCopyOf(val),
		cov: c,
	}, nil
}

// Val returns estimated value
func (e *Estimate) Val() *mat.VecDense {
	return mat.VecDenseCopyOf(e.val)
}

// Cov returns covariance estimate
func (e *Estimate) Cov() *mat.SymDense {
	cov := mat.NewSymDense(e.cov.SymmetricDim(), nil)
	cov.CopySym(e.cov)

	return cov
}

package noise

import (
	control "github.com/milosgajdos/go-control"
	"gonum.org/v1/gonum/mat"
)

// None is the absence of noise. Unlike Zero it has no dimension, so it fits
// any measurement or process and never perturbs it.
type None struct{}

// NewNone creates new None noise and returns it
func NewNone() (*None, error) {
	return &None{}, nil
}

// IsNone reports whether n perturbs nothing: it is nil or None.
func IsNone(n control.Noise) bool {
	if n == nil {
		return true
	}
	_, ok := n.(*None)
	return ok
}

// Sample returns nil: there is nothing to add.
func (e *None) Sample() mat.Vector {
	return nil
}

// Cov returns zero size covariance matrix.
func (e *None) Cov() mat.Symmetric {
	return &mat.SymDense{}
}

// Mean returns nil.
func (e *None) Mean() []float64 {
	return nil
}

// Reset does nothing.
func (e *None) Reset() error { return nil }

// String implements the Stringer interface.
func (e *None) String() string {
	return "None{}"
}

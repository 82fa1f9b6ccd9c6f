package linearize

import (
	"fmt"

	control "github.com/milosgajdos/go-control"
	"github.com/milosgajdos/go-control/discretizer"
	"gonum.org/v1/gonum/mat"
)

// Constant is the linearization of linear dynamics x+ = A*x + B*u.
// Its Jacobians do not depend on the linearization point and its
// Hessians are zero.
type Constant struct {
	a *mat.Dense
	b *mat.Dense
}

// NewConstant creates new Constant linearizer and returns it.
// It returns error if A is not square or B does not match A.
func NewConstant(A, B mat.Matrix) (*Constant, error) {
	if A == nil || B == nil {
		return nil, fmt.Errorf("%w: nil system matrix", control.ErrConfig)
	}

	ar, ac := A.Dims()
	br, _ := B.Dims()
	if ar != ac || br != ar {
		return nil, fmt.Errorf("%w: incompatible system matrices", control.ErrConfig)
	}

	return &Constant{a: mat.DenseCopyOf(A), b: mat.DenseCopyOf(B)}, nil
}

// NewZOH returns the Constant linearizer of a zero-order hold discretizer.
func NewZOH(z *discretizer.ZOH) *Constant {
	ad, bd := z.Matrices()
	return &Constant{a: ad, b: bd}
}

// Dims returns the state and input dimensions.
func (c *Constant) Dims() (nx, nu int) {
	return c.b.Dims()
}

// Jacobians implements Linearizer. It returns copies of A and B.
func (c *Constant) Jacobians(x, u mat.Vector) (*mat.Dense, *mat.Dense, error) {
	nx, nu := c.Dims()
	if x != nil && x.Len() != nx {
		return nil, nil, fmt.Errorf("%w: state vector must have %d components", control.ErrConfig, nx)
	}
	if u != nil && u.Len() != nu {
		return nil, nil, fmt.Errorf("%w: input vector must have %d components", control.ErrConfig, nu)
	}
	return mat.DenseCopyOf(c.a), mat.DenseCopyOf(c.b), nil
}

// Hessians implements SecondOrder.
func (c *Constant) Hessians(x, u mat.Vector) (*Hessians, error) {
	nx, nu := c.Dims()
	full := make([]*mat.Dense, nx)
	for i := range full {
		full[i] = mat.NewDense(nx+nu, nx+nu, nil)
	}
	return newHessians(full, nx, nu), nil
}

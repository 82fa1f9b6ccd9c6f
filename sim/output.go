package sim

import (
	"fmt"

	control "github.com/milosgajdos/go-control"
	"gonum.org/v1/gonum/mat"
)

// Output is the measurement model y = C*x + D*u of a plant.
type Output struct {
	// C is the observation matrix
	C *mat.Dense
	// D is the feedthrough matrix, nil if the input is not measured
	D *mat.Dense
}

// NewOutput creates new Output and returns it.
// It returns error if C is nil or D does not have as many rows as C.
func NewOutput(C, D mat.Matrix) (*Output, error) {
	if C == nil {
		return nil, fmt.Errorf("%w: output matrix must be defined", control.ErrConfig)
	}

	out := &Output{C: mat.DenseCopyOf(C)}
	if D != nil {
		if r, _ := D.Dims(); r != out.rows() {
			return nil, fmt.Errorf("%w: feedthrough matrix has %d rows, want %d", control.ErrConfig, r, out.rows())
		}
		out.D = mat.DenseCopyOf(D)
	}

	return out, nil
}

// FullState returns the Output measuring every one of the n state components.
func FullState(n int) *Output {
	C := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		C.Set(i, i, 1)
	}
	return &Output{C: C}
}

func (o *Output) rows() int {
	r, _ := o.C.Dims()
	return r
}

// Dims returns the state (nx), input (nu) and output (ny) lengths.
func (o *Output) Dims() (nx, nu, ny int) {
	ny, nx = o.C.Dims()
	if o.D != nil {
		_, nu = o.D.Dims()
	}
	return nx, nu, ny
}

// Observe returns the output given state x and input u.
// wn is added to the output as a noise vector when it has ny components.
func (o *Output) Observe(x, u, wn mat.Vector) (*mat.VecDense, error) {
	nx, nu, ny := o.Dims()
	if x == nil || x.Len() != nx {
		return nil, fmt.Errorf("%w: invalid state vector", control.ErrConfig)
	}

	y := new(mat.VecDense)
	y.MulVec(o.C, x)

	if u != nil && o.D != nil {
		if u.Len() != nu {
			return nil, fmt.Errorf("%w: invalid input vector", control.ErrConfig)
		}
		var du mat.VecDense
		du.MulVec(o.D, u)
		y.AddVec(y, &du)
	}

	if wn != nil && wn.Len() == ny {
		y.AddVec(y, wn)
	}

	return y, nil
}

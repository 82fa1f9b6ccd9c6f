package discretizer

import (
	"fmt"

	control "github.com/milosgajdos/go-control"
	"github.com/milosgajdos/go-control/symbolic"
	"gonum.org/v1/gonum/mat"
)

// Explicit evaluates the continuous vector field directly.
type Explicit struct {
	kind   Kind
	model  control.Model
	reg    *symbolic.Registry
	update symbolic.Vector
}

// NewExplicit creates new explicit discretizer of the given kind.
// For symbolic models the update is also built as an expression of the
// registry symbols and the time step dt.
// It returns error if the model is constrained.
func NewExplicit(kind Kind, m control.Model, reg *symbolic.Registry) (*Explicit, error) {
	if kind != ForwardEuler && kind != MidPoint && kind != RK4 {
		return nil, fmt.Errorf("%w: %s is not an explicit scheme", control.ErrConfig, kind)
	}

	if _, ok := m.(control.ConstrainedModel); ok {
		return nil, fmt.Errorf("%w: explicit %s can not step a constrained model", control.ErrUnexpected, kind)
	}

	e := &Explicit{kind: kind, model: m}

	sm, ok := m.(control.SymbolicModel)
	if !ok {
		return e, nil
	}

	if reg == nil {
		reg = symbolic.NewRegistry()
	}
	e.reg = reg

	x, _, u, err := register(sm, reg)
	if err != nil {
		return nil, err
	}

	if e.update, err = e.symbolicUpdate(sm, x, u); err != nil {
		return nil, err
	}

	return e, nil
}

func (e *Explicit) symbolicUpdate(m control.SymbolicModel, x, u symbolic.Vector) (symbolic.Vector, error) {
	dt := dtVar()
	f := func(x symbolic.Vector) (symbolic.Vector, error) {
		return m.DynamicsSymbolic(x, u, e.reg)
	}

	switch e.kind {
	case ForwardEuler:
		k1, err := f(x)
		if err != nil {
			return nil, err
		}
		return axpy(x, dt, k1)
	case MidPoint:
		k1, err := f(x)
		if err != nil {
			return nil, err
		}
		xm, err := axpy(x, symbolic.Product(symbolic.Num(0.5), dt), k1)
		if err != nil {
			return nil, err
		}
		km, err := f(xm)
		if err != nil {
			return nil, err
		}
		return axpy(x, dt, km)
	}

	ks := make([]symbolic.Vector, 4)
	xi := x
	for i, c := range rk4Nodes {
		var err error
		if i > 0 {
			if xi, err = axpy(x, symbolic.Product(symbolic.Num(c), dt), ks[i-1]); err != nil {
				return nil, err
			}
		}
		if ks[i], err = f(xi); err != nil {
			return nil, err
		}
	}

	sum := make(symbolic.Vector, x.Len())
	for j := range sum {
		terms := make([]symbolic.Expr, len(ks))
		for i, k := range ks {
			terms[i] = symbolic.Product(symbolic.Num(rk4Weights[i]), k[j])
		}
		sum[j] = symbolic.Sum(terms...)
	}

	return axpy(x, dt, sum)
}

var (
	// rk4Nodes are the stage offsets of the classical tableau
	rk4Nodes = []float64{0, 0.5, 0.5, 1}
	// rk4Weights are the stage weights of the classical tableau
	rk4Weights = []float64{1.0 / 6, 2.0 / 6, 2.0 / 6, 1.0 / 6}
)

// Kind returns the scheme.
func (e *Explicit) Kind() Kind { return e.kind }

// Model returns the discretized model.
func (e *Explicit) Model() control.Model { return e.model }

// Registry returns the registry holding the model symbols or nil for
// models without symbolic dynamics.
func (e *Explicit) Registry() *symbolic.Registry { return e.reg }

// Update returns the discrete update as an expression of the state, input,
// parameter and dt symbols.
// It returns error if the model has no symbolic dynamics.
func (e *Explicit) Update() (symbolic.Vector, error) {
	if e.update == nil {
		return nil, fmt.Errorf("%w: %s has no symbolic update", control.ErrIncompleteConfiguration, e.kind)
	}
	return e.update, nil
}

// Step advances x by dt under input u.
func (e *Explicit) Step(x, u mat.Vector, dt float64) (*mat.VecDense, error) {
	if dt <= 0 {
		return nil, fmt.Errorf("%w: non-positive time step %g", control.ErrConfig, dt)
	}

	f := func(x mat.Vector) (*mat.VecDense, error) {
		return e.model.Dynamics(x, u)
	}

	next := mat.VecDenseCopyOf(x)

	switch e.kind {
	case ForwardEuler:
		k1, err := f(x)
		if err != nil {
			return nil, err
		}
		next.AddScaledVec(next, dt, k1)
		return next, nil
	case MidPoint:
		k1, err := f(x)
		if err != nil {
			return nil, err
		}
		xm := mat.VecDenseCopyOf(x)
		xm.AddScaledVec(xm, dt/2, k1)
		km, err := f(xm)
		if err != nil {
			return nil, err
		}
		next.AddScaledVec(next, dt, km)
		return next, nil
	}

	var prev *mat.VecDense
	for i, c := range rk4Nodes {
		xi := mat.VecDenseCopyOf(x)
		if i > 0 {
			xi.AddScaledVec(xi, c*dt, prev)
		}
		k, err := f(xi)
		if err != nil {
			return nil, err
		}
		next.AddScaledVec(next, rk4Weights[i]*dt, k)
		prev = k
	}

	return next, nil
}

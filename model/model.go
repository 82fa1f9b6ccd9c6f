// Package model provides dynamical systems used to exercise the
// discretizers, linearizers and controllers.
package model

import (
	"fmt"

	control "github.com/milosgajdos/go-control"
	"github.com/milosgajdos/go-control/state"
	"github.com/milosgajdos/go-control/symbolic"
	"gonum.org/v1/gonum/mat"
)

const (
	// Gravity is the gravitational acceleration in m/s^2
	Gravity = 9.81
	// GravityKey is the registry name of gravitational acceleration
	GravityKey = "g"
)

// register binds model parameters, gravity and the state and input symbol
// vectors of the given layouts in reg.
func register(reg *symbolic.Registry, sl, il *state.Layout, names []string, vals []float64) error {
	if reg == nil {
		return fmt.Errorf("%w: nil registry", control.ErrConfig)
	}

	for i, n := range names {
		reg.InsertVar(n, vals[i])
	}
	reg.InsertVar(GravityKey, Gravity)

	x := sl.Symbols("")
	next, err := x.Next()
	if err != nil {
		return control.Symbolic(err)
	}

	q := sl.DimQ()
	reg.InsertVector(symbolic.StateKey, x)
	reg.InsertVector(symbolic.StateQKey, x.Slice(0, q))
	reg.InsertVector(symbolic.StateVKey, x.Slice(q, x.Len()))
	reg.InsertVector(symbolic.NextStateKey, next)
	reg.InsertVector(symbolic.NextStateQKey, next.Slice(0, q))
	reg.InsertVector(symbolic.NextStateVKey, next.Slice(q, next.Len()))
	reg.InsertVector(symbolic.InputKey, il.Symbols(""))

	return nil
}

// checkDims validates x and u against the layouts. A nil u is a zero input.
func checkDims(sl, il *state.Layout, x, u mat.Vector) error {
	if x == nil || x.Len() != sl.Len() {
		return fmt.Errorf("%w: state vector must have %d components", control.ErrConfig, sl.Len())
	}
	if u != nil && u.Len() != il.Len() {
		return fmt.Errorf("%w: input vector has %d components, want %d", control.ErrConfig, u.Len(), il.Len())
	}
	return nil
}

func checkSymbolic(sl, il *state.Layout, x, u symbolic.Vector) error {
	if x.Len() != sl.Len() {
		return fmt.Errorf("%w: symbolic state has %d components, want %d", control.ErrConfig, x.Len(), sl.Len())
	}
	if u != nil && u.Len() != il.Len() {
		return fmt.Errorf("%w: symbolic input has %d components, want %d", control.ErrConfig, u.Len(), il.Len())
	}
	return nil
}

// at returns v[i] or zero when v is nil.
func at(v mat.Vector, i int) float64 {
	if v == nil {
		return 0
	}
	return v.AtVec(i)
}

// symAt returns v[i] or zero when v is nil.
func symAt(v symbolic.Vector, i int) symbolic.Expr {
	if v == nil {
		return symbolic.Num(0)
	}
	return v[i]
}

func params(names []string, vals ...float64) ([]string, []float64) {
	ns := make([]string, len(names))
	copy(ns, names)
	return ns, vals
}

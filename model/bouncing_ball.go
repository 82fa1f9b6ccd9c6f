package model

import (
	"fmt"
	"math"

	control "github.com/milosgajdos/go-control"
	"github.com/milosgajdos/go-control/state"
	"github.com/milosgajdos/go-control/symbolic"
	"gonum.org/v1/gonum/mat"
)

var (
	ballState  = state.MustLayout([]string{"pos_x", "pos_y", "v_x", "v_y"}, 2)
	ballInput  = state.MustLayout(nil, 0)
	ballParams = []string{"m", "friction_coeff"}
)

// BouncingBall is a point mass falling onto the floor pos_y = 0.
//
// Implicit discretizers step it at the velocity level by minimizing
// 1/2 v'Mv + l'v subject to J(q + dt v) >= 0 with M = m*I, J = [0 1] and
// l = M(dt*g*e_y - v). Explicit discretizers reject it.
type BouncingBall struct {
	// M is ball mass
	M float64
	// Friction is the floor friction coefficient
	Friction float64
}

// NewBouncingBall creates new BouncingBall and returns it.
func NewBouncingBall(m, friction float64) (*BouncingBall, error) {
	if m <= 0 {
		return nil, fmt.Errorf("%w: ball mass must be positive", control.ErrConfig)
	}
	return &BouncingBall{M: m, Friction: friction}, nil
}

// Dynamics returns the unconstrained state derivative with a contact
// force that cancels gravity and adds friction while resting on the floor.
func (b *BouncingBall) Dynamics(x, u mat.Vector) (*mat.VecDense, error) {
	if err := checkDims(ballState, ballInput, x, nil); err != nil {
		return nil, err
	}

	posY, vx, vy := x.AtVec(1), x.AtVec(2), x.AtVec(3)

	fx, fy := 0.0, -b.M*Gravity
	if posY <= 0 && vy <= 0 {
		normal := b.M * Gravity
		fy += normal
		if vx != 0 {
			fx -= b.Friction * normal * math.Copysign(1, vx)
		}
	}

	return mat.NewVecDense(4, []float64{vx, vy, fx / b.M, fy / b.M}), nil
}

// StateLayout returns [pos_x, pos_y, v_x, v_y].
func (b *BouncingBall) StateLayout() *state.Layout { return ballState }

// InputLayout returns an empty layout.
func (b *BouncingBall) InputLayout() *state.Layout { return ballInput }

// Register binds m, friction_coeff, g, the state symbols, the mass matrix
// and the constraint Jacobian in reg.
func (b *BouncingBall) Register(reg *symbolic.Registry) error {
	names, vals := b.Params()
	if err := register(reg, ballState, ballInput, names, vals); err != nil {
		return err
	}

	m := symbolic.NewVar("m")
	mass := symbolic.NewMatrix(2, 2)
	mass.Set(0, 0, m)
	mass.Set(1, 1, m)
	reg.InsertMatrix(symbolic.MassMatrixKey, mass)

	jac, err := symbolic.NewMatrixFrom(1, 2, []symbolic.Expr{symbolic.Num(0), symbolic.Num(1)})
	if err != nil {
		return control.Symbolic(err)
	}
	reg.InsertMatrix(symbolic.ConstraintJacobianKey, jac)

	return nil
}

// DynamicsSymbolic returns free flight dynamics. Contact is resolved by
// the constrained step.
func (b *BouncingBall) DynamicsSymbolic(x, u symbolic.Vector, _ *symbolic.Registry) (symbolic.Vector, error) {
	if err := checkSymbolic(ballState, ballInput, x, nil); err != nil {
		return nil, err
	}

	return symbolic.Vector{x[2], x[3], symbolic.Num(0), symbolic.Neg(symbolic.NewVar(GravityKey))}, nil
}

// LinearTerm returns M(dt*g*e_y - v) for the registered velocity symbols.
func (b *BouncingBall) LinearTerm(dt symbolic.Expr, reg *symbolic.Registry) (symbolic.Vector, error) {
	mass, err := reg.Matrix(symbolic.MassMatrixKey)
	if err != nil {
		return nil, control.Symbolic(err)
	}

	v, err := reg.Vector(symbolic.StateVKey)
	if err != nil {
		return nil, control.Symbolic(err)
	}

	gdt := symbolic.Vector{symbolic.Num(0), symbolic.Product(symbolic.NewVar(GravityKey), dt)}
	d, err := gdt.Sub(v)
	if err != nil {
		return nil, control.Symbolic(err)
	}

	l, err := mass.MulVec(d)
	if err != nil {
		return nil, control.Symbolic(err)
	}

	return l, nil
}

// Params returns [m, friction_coeff].
func (b *BouncingBall) Params() ([]string, []float64) {
	return params(ballParams, b.M, b.Friction)
}

// Energy returns the mechanical energy with zero potential on the floor.
func (b *BouncingBall) Energy(x mat.Vector) (control.Energy, error) {
	if err := checkDims(ballState, ballInput, x, nil); err != nil {
		return control.Energy{}, err
	}

	posY, vx, vy := x.AtVec(1), x.AtVec(2), x.AtVec(3)

	return control.Energy{
		Kinetic:   0.5 * b.M * (vx*vx + vy*vy),
		Potential: b.M * Gravity * posY,
	}, nil
}

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
	pendulumState  = state.MustLayout([]string{"theta", "omega"}, 1)
	pendulumInput  = state.MustLayout([]string{"tau"}, 1)
	pendulumParams = []string{"m", "l", "damping"}
)

// Pendulum is a damped pendulum driven by torque tau
//
//	theta' = omega
//	omega' = (tau - damping*omega)/(m*l^2) - g/l*sin(theta)
type Pendulum struct {
	// M is bob mass
	M float64
	// L is rod length
	L float64
	// Damping is viscous joint damping
	Damping float64
}

// NewPendulum creates new Pendulum and returns it.
// It returns error if mass or length are not positive.
func NewPendulum(m, l, damping float64) (*Pendulum, error) {
	if m <= 0 || l <= 0 {
		return nil, fmt.Errorf("%w: pendulum mass and length must be positive", control.ErrConfig)
	}
	return &Pendulum{M: m, L: l, Damping: damping}, nil
}

// Dynamics returns the state derivative.
func (p *Pendulum) Dynamics(x, u mat.Vector) (*mat.VecDense, error) {
	if err := checkDims(pendulumState, pendulumInput, x, u); err != nil {
		return nil, err
	}

	theta, omega := x.AtVec(0), x.AtVec(1)
	domega := (at(u, 0)-p.Damping*omega)/(p.M*p.L*p.L) - Gravity/p.L*math.Sin(theta)

	return mat.NewVecDense(2, []float64{omega, domega}), nil
}

// StateLayout returns [theta, omega].
func (p *Pendulum) StateLayout() *state.Layout { return pendulumState }

// InputLayout returns [tau].
func (p *Pendulum) InputLayout() *state.Layout { return pendulumInput }

// Register binds m, l, damping, g and the state and input symbols in reg.
func (p *Pendulum) Register(reg *symbolic.Registry) error {
	names, vals := p.Params()
	return register(reg, pendulumState, pendulumInput, names, vals)
}

// DynamicsSymbolic returns the dynamics in terms of the registered parameters.
func (p *Pendulum) DynamicsSymbolic(x, u symbolic.Vector, _ *symbolic.Registry) (symbolic.Vector, error) {
	if err := checkSymbolic(pendulumState, pendulumInput, x, u); err != nil {
		return nil, err
	}

	m, l, b := symbolic.NewVar("m"), symbolic.NewVar("l"), symbolic.NewVar("damping")
	g := symbolic.NewVar(GravityKey)
	theta, omega := x[0], x[1]

	domega := symbolic.Subtract(
		symbolic.Div(symbolic.Subtract(symAt(u, 0), symbolic.Product(b, omega)), symbolic.Product(m, symbolic.Square(l))),
		symbolic.Product(symbolic.Div(g, l), symbolic.Sin(theta)),
	)

	return symbolic.Vector{omega, domega}, nil
}

// Params returns [m, l, damping].
func (p *Pendulum) Params() ([]string, []float64) {
	return params(pendulumParams, p.M, p.L, p.Damping)
}

// Energy returns the mechanical energy with zero potential at the bottom.
func (p *Pendulum) Energy(x mat.Vector) (control.Energy, error) {
	if err := checkDims(pendulumState, pendulumInput, x, nil); err != nil {
		return control.Energy{}, err
	}

	theta, omega := x.AtVec(0), x.AtVec(1)

	return control.Energy{
		Kinetic:   0.5 * p.M * p.L * p.L * omega * omega,
		Potential: p.M * Gravity * p.L * (1 - math.Cos(theta)),
	}, nil
}

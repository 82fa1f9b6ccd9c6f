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
	doublePendulumState  = state.MustLayout([]string{"theta1", "theta2", "omega1", "omega2"}, 2)
	doublePendulumInput  = state.MustLayout([]string{"u1", "u2"}, 2)
	doublePendulumParams = []string{"m1", "m2", "l1", "l2", "air_resistance_coeff"}
)

// DoublePendulum is a planar double pendulum with joint torques and
// quadratic air resistance on both joints.
type DoublePendulum struct {
	// M1 and M2 are bob masses
	M1, M2 float64
	// L1 and L2 are rod lengths
	L1, L2 float64
	// AirResistance scales the quadratic joint damping
	AirResistance float64
}

// NewDoublePendulum creates new DoublePendulum and returns it.
// It returns error if any mass or length is not positive.
func NewDoublePendulum(m1, m2, l1, l2, air float64) (*DoublePendulum, error) {
	if m1 <= 0 || m2 <= 0 || l1 <= 0 || l2 <= 0 {
		return nil, fmt.Errorf("%w: double pendulum masses and lengths must be positive", control.ErrConfig)
	}
	if air < 0 {
		return nil, fmt.Errorf("%w: negative air resistance %g", control.ErrConfig, air)
	}
	return &DoublePendulum{M1: m1, M2: m2, L1: l1, L2: l2, AirResistance: air}, nil
}

// Dynamics returns the state derivative.
func (d *DoublePendulum) Dynamics(x, u mat.Vector) (*mat.VecDense, error) {
	if err := checkDims(doublePendulumState, doublePendulumInput, x, u); err != nil {
		return nil, err
	}

	theta1, theta2 := x.AtVec(0), x.AtVec(1)
	omega1, omega2 := x.AtVec(2), x.AtVec(3)
	m1, m2, l1, l2, g := d.M1, d.M2, d.L1, d.L2, Gravity

	c := math.Cos(theta1 - theta2)
	s := math.Sin(theta1 - theta2)

	damping1 := -d.AirResistance * omega1 * math.Abs(omega1)
	damping2 := -d.AirResistance * omega2 * math.Abs(omega2)

	den := m1 + m2*s*s

	domega1 := (m2*g*math.Sin(theta2)*c -
		m2*s*(l1*c*omega1*omega1+l2*omega2*omega2) -
		(m1+m2)*g*math.Sin(theta1) +
		at(u, 0) + damping1) / (l1 * den)

	domega2 := ((m1+m2)*(l1*omega1*omega1*s-g*math.Sin(theta2)+g*math.Sin(theta1)*c) +
		m2*l2*omega2*omega2*s*c +
		at(u, 1) + damping2) / (l2 * den)

	return mat.NewVecDense(4, []float64{omega1, omega2, domega1, domega2}), nil
}

// StateLayout returns [theta1, theta2, omega1, omega2].
func (d *DoublePendulum) StateLayout() *state.Layout { return doublePendulumState }

// InputLayout returns [u1, u2].
func (d *DoublePendulum) InputLayout() *state.Layout { return doublePendulumInput }

// Register binds the parameters, g and the state and input symbols in reg.
func (d *DoublePendulum) Register(reg *symbolic.Registry) error {
	names, vals := d.Params()
	return register(reg, doublePendulumState, doublePendulumInput, names, vals)
}

// DynamicsSymbolic returns the dynamics in terms of the registered parameters.
func (d *DoublePendulum) DynamicsSymbolic(x, u symbolic.Vector, _ *symbolic.Registry) (symbolic.Vector, error) {
	if err := checkSymbolic(doublePendulumState, doublePendulumInput, x, u); err != nil {
		return nil, err
	}

	v := symbolic.NewVar
	m1, m2, l1, l2 := v("m1"), v("m2"), v("l1"), v("l2")
	air, g := v("air_resistance_coeff"), v(GravityKey)
	theta1, theta2, omega1, omega2 := x[0], x[1], x[2], x[3]

	c := symbolic.Cos(symbolic.Subtract(theta1, theta2))
	s := symbolic.Sin(symbolic.Subtract(theta1, theta2))
	mt := symbolic.Sum(m1, m2)
	den := symbolic.Sum(m1, symbolic.Product(m2, s, s))

	damping1 := symbolic.Neg(symbolic.Product(air, omega1, symbolic.Abs(omega1)))
	damping2 := symbolic.Neg(symbolic.Product(air, omega2, symbolic.Abs(omega2)))

	num1 := symbolic.Sum(
		symbolic.Product(m2, g, symbolic.Sin(theta2), c),
		symbolic.Neg(symbolic.Product(m2, s, symbolic.Sum(
			symbolic.Product(l1, c, symbolic.Square(omega1)),
			symbolic.Product(l2, symbolic.Square(omega2)),
		))),
		symbolic.Neg(symbolic.Product(mt, g, symbolic.Sin(theta1))),
		symAt(u, 0),
		damping1,
	)

	num2 := symbolic.Sum(
		symbolic.Product(mt, symbolic.Sum(
			symbolic.Product(l1, symbolic.Square(omega1), s),
			symbolic.Neg(symbolic.Product(g, symbolic.Sin(theta2))),
			symbolic.Product(g, symbolic.Sin(theta1), c),
		)),
		symbolic.Product(m2, l2, symbolic.Square(omega2), s, c),
		symAt(u, 1),
		damping2,
	)

	return symbolic.Vector{
		omega1,
		omega2,
		symbolic.Div(num1, symbolic.Product(l1, den)),
		symbolic.Div(num2, symbolic.Product(l2, den)),
	}, nil
}

// Params returns [m1, m2, l1, l2, air_resistance_coeff].
func (d *DoublePendulum) Params() ([]string, []float64) {
	return params(doublePendulumParams, d.M1, d.M2, d.L1, d.L2, d.AirResistance)
}

// Energy returns the mechanical energy of x. The pivot sits two meters
// above the potential reference.
func (d *DoublePendulum) Energy(x mat.Vector) (control.Energy, error) {
	if err := checkDims(doublePendulumState, doublePendulumInput, x, nil); err != nil {
		return control.Energy{}, err
	}

	theta1, theta2 := x.AtVec(0), x.AtVec(1)
	omega1, omega2 := x.AtVec(2), x.AtVec(3)

	z1 := -d.L1*math.Cos(theta1) + 2.0
	z2 := z1 - d.L2*math.Cos(theta2)

	v1x, v1z := d.L1*omega1*math.Cos(theta1), d.L1*omega1*math.Sin(theta1)
	v2x, v2z := v1x+d.L2*omega2*math.Cos(theta2), v1z+d.L2*omega2*math.Sin(theta2)

	return control.Energy{
		Kinetic:   0.5 * (d.M1*(v1x*v1x+v1z*v1z) + d.M2*(v2x*v2x+v2z*v2z)),
		Potential: d.M1*Gravity*z1 + d.M2*Gravity*z2,
	}, nil
}

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
	cartPoleState  = state.MustLayout([]string{"x", "theta", "v", "omega"}, 2)
	cartPoleInput  = state.MustLayout([]string{"f"}, 1)
	cartPoleParams = []string{"pole_mass", "cart_mass", "l", "friction_coeff", "damping"}
)

// CartPole is a uniform pole hinged on a cart pushed by a horizontal force f.
// The angle theta is zero with the pole upright and L is the distance from
// the hinge to the pole center of mass.
//
//	M = pole_mass + cart_mass
//	t = (f - friction*v + pole_mass*l*omega^2*sin(theta)) / M
//	omega' = (g*sin(theta) - cos(theta)*t - damping*omega/(pole_mass*l)) /
//	         (l*(4/3 - pole_mass*cos(theta)^2/M))
//	v' = t - pole_mass*l*omega'*cos(theta)/M
type CartPole struct {
	// PoleMass is the pole mass
	PoleMass float64
	// CartMass is the cart mass
	CartMass float64
	// L is the pole half length
	L float64
	// Friction is viscous cart friction
	Friction float64
	// Damping is viscous hinge damping
	Damping float64
}

// NewCartPole creates new CartPole and returns it.
// It returns error if any mass or the length is not positive or if any
// of the friction coefficients is negative.
func NewCartPole(poleMass, cartMass, l, friction, damping float64) (*CartPole, error) {
	if poleMass <= 0 || cartMass <= 0 || l <= 0 {
		return nil, fmt.Errorf("%w: cart-pole masses and length must be positive", control.ErrConfig)
	}
	if friction < 0 || damping < 0 {
		return nil, fmt.Errorf("%w: negative cart-pole friction", control.ErrConfig)
	}
	return &CartPole{PoleMass: poleMass, CartMass: cartMass, L: l, Friction: friction, Damping: damping}, nil
}

// Dynamics returns the state derivative.
func (c *CartPole) Dynamics(x, u mat.Vector) (*mat.VecDense, error) {
	if err := checkDims(cartPoleState, cartPoleInput, x, u); err != nil {
		return nil, err
	}

	theta, v, omega := x.AtVec(1), x.AtVec(2), x.AtVec(3)
	mp, l := c.PoleMass, c.L
	mt := mp + c.CartMass
	sin, cos := math.Sin(theta), math.Cos(theta)

	t := (at(u, 0) - c.Friction*v + mp*l*omega*omega*sin) / mt
	domega := (Gravity*sin - cos*t - c.Damping*omega/(mp*l)) / (l * (4.0/3.0 - mp*cos*cos/mt))
	dv := t - mp*l*domega*cos/mt

	return mat.NewVecDense(4, []float64{v, omega, dv, domega}), nil
}

// StateLayout returns [x, theta, v, omega].
func (c *CartPole) StateLayout() *state.Layout { return cartPoleState }

// InputLayout returns [f].
func (c *CartPole) InputLayout() *state.Layout { return cartPoleInput }

// Register binds the parameters, g and the state and input symbols in reg.
func (c *CartPole) Register(reg *symbolic.Registry) error {
	names, vals := c.Params()
	return register(reg, cartPoleState, cartPoleInput, names, vals)
}

// DynamicsSymbolic returns the dynamics in terms of the registered parameters.
func (c *CartPole) DynamicsSymbolic(x, u symbolic.Vector, _ *symbolic.Registry) (symbolic.Vector, error) {
	if err := checkSymbolic(cartPoleState, cartPoleInput, x, u); err != nil {
		return nil, err
	}

	n := symbolic.NewVar
	mp, mc, l := n("pole_mass"), n("cart_mass"), n("l")
	b, d, g := n("friction_coeff"), n("damping"), n(GravityKey)
	theta, v, omega := x[1], x[2], x[3]

	mt := symbolic.Sum(mp, mc)
	sin, cos := symbolic.Sin(theta), symbolic.Cos(theta)

	t := symbolic.Div(symbolic.Sum(
		symAt(u, 0),
		symbolic.Neg(symbolic.Product(b, v)),
		symbolic.Product(mp, l, symbolic.Square(omega), sin),
	), mt)

	domega := symbolic.Div(
		symbolic.Sum(
			symbolic.Product(g, sin),
			symbolic.Neg(symbolic.Product(cos, t)),
			symbolic.Neg(symbolic.Div(symbolic.Product(d, omega), symbolic.Product(mp, l))),
		),
		symbolic.Product(l, symbolic.Subtract(
			symbolic.Num(4.0/3.0),
			symbolic.Div(symbolic.Product(mp, symbolic.Square(cos)), mt),
		)),
	)

	dv := symbolic.Subtract(t, symbolic.Div(symbolic.Product(mp, l, domega, cos), mt))

	return symbolic.Vector{v, omega, dv, domega}, nil
}

// Params returns [pole_mass, cart_mass, l, friction_coeff, damping].
func (c *CartPole) Params() ([]string, []float64) {
	return params(cartPoleParams, c.PoleMass, c.CartMass, c.L, c.Friction, c.Damping)
}

// Energy returns the mechanical energy with zero potential at the hinge height.
func (c *CartPole) Energy(x mat.Vector) (control.Energy, error) {
	if err := checkDims(cartPoleState, cartPoleInput, x, nil); err != nil {
		return control.Energy{}, err
	}

	theta, v, omega := x.AtVec(1), x.AtVec(2), x.AtVec(3)
	mp, l := c.PoleMass, c.L
	mt := mp + c.CartMass

	return control.Energy{
		Kinetic:   0.5*mt*v*v + mp*l*math.Cos(theta)*v*omega + 2.0/3.0*mp*l*l*omega*omega,
		Potential: mp * Gravity * l * math.Cos(theta),
	}, nil
}

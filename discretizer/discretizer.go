// Package discretizer turns continuous-time models into one-step discrete
// updates with explicit, implicit and zero-order hold schemes.
package discretizer

import (
	"fmt"
	"strings"

	control "github.com/milosgajdos/go-control"
	"github.com/milosgajdos/go-control/solver"
	"github.com/milosgajdos/go-control/symbolic"
	"go.uber.org/zap"
)

// Kind is a discretization scheme.
type Kind int

const (
	// ForwardEuler is x+ = x + dt*f(x, u)
	ForwardEuler Kind = iota
	// MidPoint is the explicit midpoint rule
	MidPoint
	// RK4 is the classical fourth order Runge-Kutta scheme
	RK4
	// BackwardEuler is x+ = x + dt*f(x+, u)
	BackwardEuler
	// ImplicitMidpoint is x+ = x + dt*f((x + x+)/2, u)
	ImplicitMidpoint
	// HermiteSimpson is the implicit Hermite-Simpson collocation rule
	HermiteSimpson
	// ZeroOrderHold is the exact discretization of a linear model
	ZeroOrderHold
)

var kindNames = map[Kind]string{
	ForwardEuler:     "forward_euler",
	MidPoint:         "midpoint",
	RK4:              "rk4",
	BackwardEuler:    "backward_euler",
	ImplicitMidpoint: "implicit_midpoint",
	HermiteSimpson:   "hermite_simpson",
	ZeroOrderHold:    "zoh",
}

// String implements the Stringer interface.
func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Implicit reports whether the scheme solves for the next state.
func (k Kind) Implicit() bool {
	return k == BackwardEuler || k == ImplicitMidpoint || k == HermiteSimpson
}

// ParseKind returns the Kind named s.
func ParseKind(s string) (Kind, error) {
	for k, n := range kindNames {
		if strings.EqualFold(n, s) {
			return k, nil
		}
	}
	return 0, fmt.Errorf("%w: unknown discretizer %q", control.ErrConfig, s)
}

const (
	// DefaultZOHTerms is the default power series length
	DefaultZOHTerms = 50
	// DefaultZOHTolerance is the default power series tolerance
	DefaultZOHTolerance = 1e-6
)

type options struct {
	solver   solver.Config
	zohTerms int
	zohTol   float64
	dt       float64
	logger   *zap.SugaredLogger
}

// Option configures a discretizer.
type Option func(*options)

// WithSolverConfig sets the configuration of the embedded Newton solver.
func WithSolverConfig(c solver.Config) Option {
	return func(o *options) {
		o.solver = c
	}
}

// WithZOHSeries sets the zero-order hold power series length and tolerance.
func WithZOHSeries(maxTerms int, tol float64) Option {
	return func(o *options) {
		o.zohTerms = maxTerms
		o.zohTol = tol
	}
}

// WithDt fixes the time step. It is required by ZeroOrderHold.
func WithDt(dt float64) Option {
	return func(o *options) {
		o.dt = dt
	}
}

// WithLogger sets the logger passed to the embedded solver.
func WithLogger(l *zap.SugaredLogger) Option {
	return func(o *options) {
		o.logger = l
	}
}

func newOptions(opts []Option) options {
	o := options{
		solver:   solver.DefaultConfig(),
		zohTerms: DefaultZOHTerms,
		zohTol:   DefaultZOHTolerance,
		logger:   zap.NewNop().Sugar(),
	}
	for _, apply := range opts {
		apply(&o)
	}
	return o
}

// New creates a discretizer of the given kind for model m.
// Symbolic models are registered in reg; a nil reg gets a fresh registry.
func New(kind Kind, m control.Model, reg *symbolic.Registry, opts ...Option) (control.Discretizer, error) {
	switch kind {
	case ForwardEuler, MidPoint, RK4:
		return NewExplicit(kind, m, reg)
	case BackwardEuler, ImplicitMidpoint, HermiteSimpson:
		return NewImplicit(kind, m, reg, opts...)
	case ZeroOrderHold:
		o := newOptions(opts)
		lm, ok := m.(control.LinearModel)
		if !ok {
			return nil, fmt.Errorf("%w: zero-order hold requires a linear model", control.ErrUnexpected)
		}
		if o.dt == 0 {
			return nil, fmt.Errorf("%w: zero-order hold requires a fixed time step", control.ErrIncompleteConfiguration)
		}
		return NewZOH(lm, o.dt, o.zohTerms, o.zohTol)
	}
	return nil, fmt.Errorf("%w: unknown discretizer %s", control.ErrConfig, kind)
}

// register registers a symbolic model in reg and returns the symbols of
// the state, the next state and the input.
func register(m control.SymbolicModel, reg *symbolic.Registry) (x, next, u symbolic.Vector, err error) {
	if err := m.Register(reg); err != nil {
		return nil, nil, nil, err
	}
	if x, err = reg.Vector(symbolic.StateKey); err != nil {
		return nil, nil, nil, control.Symbolic(err)
	}
	if next, err = reg.Vector(symbolic.NextStateKey); err != nil {
		return nil, nil, nil, control.Symbolic(err)
	}
	if u, err = reg.Vector(symbolic.InputKey); err != nil {
		return nil, nil, nil, control.Symbolic(err)
	}
	return x, next, u, nil
}

// dtVar is the time step symbol.
func dtVar() symbolic.Expr {
	return symbolic.NewVar(symbolic.DtKey)
}

// axpy returns x + a*y.
func axpy(x symbolic.Vector, a symbolic.Expr, y symbolic.Vector) (symbolic.Vector, error) {
	out, err := x.Add(y.Scale(a))
	if err != nil {
		return nil, control.Symbolic(err)
	}
	return out, nil
}

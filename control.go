package control

import (
	"github.com/milosgajdos/go-control/state"
	"github.com/milosgajdos/go-control/symbolic"
	"gonum.org/v1/gonum/mat"
)

// Model is a continuous-time dynamical system dx/dt = f(x, u).
type Model interface {
	// Dynamics returns the state derivative at state x and input u
	Dynamics(x, u mat.Vector) (*mat.VecDense, error)
	// StateLayout returns the layout of the state vector
	StateLayout() *state.Layout
	// InputLayout returns the layout of the input vector
	InputLayout() *state.Layout
}

// SymbolicModel is a Model whose dynamics are also available as expressions
type SymbolicModel interface {
	// Model is a continuous-time dynamical system
	Model
	// Register binds the model parameters and its state and input
	// symbol vectors in reg
	Register(reg *symbolic.Registry) error
	// DynamicsSymbolic returns f(x, u) for symbolic state x and input u
	DynamicsSymbolic(x, u symbolic.Vector, reg *symbolic.Registry) (symbolic.Vector, error)
	// Params returns model parameter names and values in a fixed order
	Params() ([]string, []float64)
}

// ConstrainedModel is a mechanical system stepped at the velocity level by
// minimizing 1/2 v'Mv + l'v subject to J(q + dt v) >= 0.
// Register must also store the mass matrix and constraint Jacobian.
type ConstrainedModel interface {
	// SymbolicModel is a Model with symbolic dynamics
	SymbolicModel
	// LinearTerm returns the linear term l of the velocity-level objective
	LinearTerm(dt symbolic.Expr, reg *symbolic.Registry) (symbolic.Vector, error)
}

// LinearModel is a linear time-invariant Model dx/dt = A*x + B*u
type LinearModel interface {
	// Model is a continuous-time dynamical system
	Model
	// StateMatrix returns A
	StateMatrix() mat.Matrix
	// InputMatrix returns B
	InputMatrix() mat.Matrix
}

// Energy is mechanical energy of a system
type Energy struct {
	// Kinetic is kinetic energy
	Kinetic float64
	// Potential is potential energy
	Potential float64
}

// Total returns the total mechanical energy.
func (e Energy) Total() float64 { return e.Kinetic + e.Potential }

// EnergyModel reports the mechanical energy of a state
type EnergyModel interface {
	// Energy returns the energy of state x
	Energy(x mat.Vector) (Energy, error)
}

// Discretizer maps a continuous-time model to a one-step discrete update
type Discretizer interface {
	// Step returns the state after advancing x by dt under input u
	Step(x, u mat.Vector, dt float64) (*mat.VecDense, error)
}

// MatrixFunc evaluates a matrix valued function of a flat parameter vector
type MatrixFunc interface {
	// Eval evaluates the function at params
	Eval(params []float64) (*mat.Dense, error)
}

// Controller solves a finite-horizon optimal control problem
type Controller interface {
	// Solve returns the optimal trajectory starting at x0
	Solve(x0 mat.Vector) (*state.Trajectory, error)
	// Rollout replays the last solved inputs from x0
	Rollout(x0 mat.Vector) ([]*mat.VecDense, error)
	// InputTrajectory returns the last solved inputs
	InputTrajectory() []*mat.VecDense
}

// Noise is dynamical system noise
type Noise interface {
	// Mean returns noise mean
	Mean() []float64
	// Cov returns covariance matrix of the noise
	Cov() mat.Symmetric
	// Sample returns a sample of the noise
	Sample() mat.Vector
	// Reset resets the noise
	Reset() error
}

package solver

import (
	"fmt"

	control "github.com/milosgajdos/go-control"
)

// Status is the state of a Newton solve.
type Status int

const (
	// Initialized means no iteration ran yet.
	Initialized Status = iota
	// Iterating means the solver is running.
	Iterating
	// Converged means the residual dropped below tolerance.
	Converged
	// MaxIterExceeded means the iteration cap was reached.
	MaxIterExceeded
	// EvaluationFailure means a function evaluation or linear solve failed.
	EvaluationFailure
)

// String implements the Stringer interface.
func (s Status) String() string {
	switch s {
	case Initialized:
		return "initialized"
	case Iterating:
		return "iterating"
	case Converged:
		return "converged"
	case MaxIterExceeded:
		return "max iterations exceeded"
	case EvaluationFailure:
		return "evaluation failure"
	}
	return fmt.Sprintf("Status(%d)", int(s))
}

// Result is the outcome of a Newton solve.
type Result struct {
	// X is the last iterate of the unknowns
	X []float64
	// Mu are equality constraint multipliers
	Mu []float64
	// Lambda are inequality constraint multipliers
	Lambda []float64
	// Iterations is the number of Newton steps taken
	Iterations int
	// Status is the terminal solver state
	Status Status
	// ResidualNorm is the Euclidean norm of the last residual
	ResidualNorm float64
	// KKT is set by constrained minimization
	KKT *KKTStatus
}

// Err returns control.ErrSolver unless the solve converged.
func (r *Result) Err() error {
	if r.Status == Converged {
		return nil
	}
	return fmt.Errorf("%w: %s after %d iterations, residual %g", control.ErrSolver, r.Status, r.Iterations, r.ResidualNorm)
}

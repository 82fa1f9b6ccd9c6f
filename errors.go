package control

import (
	"errors"
	"fmt"
)

// Error kinds. Callers match them with errors.Is.
var (
	// ErrConfig indicates invalid dimensions, time step, tolerance or iteration range.
	ErrConfig = errors.New("control: invalid configuration")

	// ErrIncompleteConfiguration indicates a required artifact was never built.
	ErrIncompleteConfiguration = errors.New("control: incomplete configuration")

	// ErrEvaluation indicates a numeric evaluation or linear solve failed.
	ErrEvaluation = errors.New("control: evaluation failed")

	// ErrSolver indicates an inner solve did not converge within its budget.
	ErrSolver = errors.New("control: solver did not converge")

	// ErrDiscretizer indicates a discretizer was used outside its contract.
	ErrDiscretizer = errors.New("control: discretizer error")

	// ErrSymbolic wraps failures of the symbolic engine or differentiation backend.
	ErrSymbolic = errors.New("control: symbolic error")

	// ErrUnexpected indicates an unsupported combination or broken invariant.
	ErrUnexpected = errors.New("control: unexpected")

	// ErrOther wraps anything else.
	ErrOther = errors.New("control: other")
)

// Symbolic wraps err as ErrSymbolic keeping err in the chain.
// It returns nil if err is nil.
func Symbolic(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrSymbolic, err)
}

// StepError wraps an error with the trajectory step it occurred at.
type StepError struct {
	// Step is the trajectory index
	Step int
	// Err is the underlying error
	Err error
}

// Error implements error.
func (e *StepError) Error() string {
	return fmt.Sprintf("step %d: %v", e.Step, e.Err)
}

// Unwrap returns the underlying error.
func (e *StepError) Unwrap() error {
	return e.Err
}

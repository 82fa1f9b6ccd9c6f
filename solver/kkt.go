package solver

import (
	"fmt"
	"math"

	control "github.com/milosgajdos/go-control"
	"gonum.org/v1/gonum/floats"
)

// KKTStatus summarizes first order optimality of a constrained solve.
// Conditions that do not apply are zero.
type KKTStatus struct {
	// Stationarity is the norm of the Lagrangian gradient
	Stationarity float64
	// MaxPrimalFeasibilityC is the largest absolute equality violation
	MaxPrimalFeasibilityC float64
	// MinPrimalFeasibilityH is the smallest inequality constraint value
	MinPrimalFeasibilityH float64
	// DualFeasibility is the smallest inequality multiplier
	DualFeasibility float64
	// ComplementarySlackness is |lambda . h|
	ComplementarySlackness float64
}

func newKKTStatus(gradL, ceq, cin, lambda []float64) *KKTStatus {
	s := &KKTStatus{Stationarity: floats.Norm(gradL, 2)}
	if len(ceq) > 0 {
		for _, c := range ceq {
			s.MaxPrimalFeasibilityC = math.Max(s.MaxPrimalFeasibilityC, math.Abs(c))
		}
	}
	if len(cin) > 0 {
		s.MinPrimalFeasibilityH = floats.Min(cin)
		s.DualFeasibility = floats.Min(lambda)
		s.ComplementarySlackness = math.Abs(floats.Dot(lambda, cin))
	}
	return s
}

// CheckConvergence returns control.ErrSolver naming the first violated
// optimality condition at tolerance tol.
func (s *KKTStatus) CheckConvergence(tol float64) error {
	switch {
	case s.Stationarity > tol:
		return fmt.Errorf("%w: stationarity condition failed: %g", control.ErrSolver, s.Stationarity)
	case s.MaxPrimalFeasibilityC > tol:
		return fmt.Errorf("%w: equality feasibility condition failed: %g", control.ErrSolver, s.MaxPrimalFeasibilityC)
	case s.MinPrimalFeasibilityH < -tol:
		return fmt.Errorf("%w: primal feasibility condition failed: %g", control.ErrSolver, s.MinPrimalFeasibilityH)
	case s.DualFeasibility < -tol:
		return fmt.Errorf("%w: dual feasibility condition failed: %g", control.ErrSolver, s.DualFeasibility)
	case s.ComplementarySlackness > tol:
		return fmt.Errorf("%w: complementary slackness condition failed: %g", control.ErrSolver, s.ComplementarySlackness)
	}
	return nil
}

// kktResidual is [gradL; ceq; min(cin, 0); min(lambda, 0); lambda .* cin].
func kktResidual(gradL, ceq, cin, lambda []float64) []float64 {
	r := make([]float64, 0, len(gradL)+len(ceq)+3*len(cin))
	r = append(r, gradL...)
	r = append(r, ceq...)
	for _, c := range cin {
		r = append(r, math.Min(c, 0))
	}
	for _, l := range lambda {
		r = append(r, math.Min(l, 0))
	}
	for i, c := range cin {
		r = append(r, lambda[i]*c)
	}
	return r
}

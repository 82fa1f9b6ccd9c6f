package solver

import (
	"fmt"

	control "github.com/milosgajdos/go-control"
	"github.com/milosgajdos/go-control/matrix"
	"github.com/milosgajdos/go-control/symbolic"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// RootFinder solves R(x) = 0 with damped Newton iterations.
type RootFinder struct {
	cfg      Config
	unknowns []string
	residual *symbolic.Function
	jacobian *symbolic.Function
	merit    *symbolic.Function
	log      *zap.SugaredLogger
}

// NewRootFinder compiles the residual and its Jacobian with respect to
// unknowns. Variables other than unknowns are resolved from reg.
// It returns error if cfg is invalid or the residual can not be compiled.
func NewRootFinder(residual symbolic.Vector, unknowns []string, reg *symbolic.Registry, cfg Config, opts ...Option) (*RootFinder, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if residual.Len() != len(unknowns) {
		return nil, fmt.Errorf("%w: %d residuals for %d unknowns", control.ErrConfig, residual.Len(), len(unknowns))
	}

	o := newOptions(opts)

	jac, err := o.diff.Jacobian(residual, unknowns)
	if err != nil {
		return nil, control.Symbolic(err)
	}

	r := &RootFinder{
		cfg:      cfg,
		unknowns: unknowns,
		log:      o.logger,
	}

	if r.residual, err = symbolic.CompileVector(residual, unknowns, reg); err != nil {
		return nil, control.Symbolic(err)
	}

	if r.jacobian, err = symbolic.Compile(jac, unknowns, reg); err != nil {
		return nil, control.Symbolic(err)
	}

	if o.merit != nil {
		if r.merit, err = symbolic.CompileScalar(o.merit, unknowns, reg); err != nil {
			return nil, control.Symbolic(err)
		}
	}

	return r, nil
}

// Unknowns returns the names of the unknowns in solve order.
func (r *RootFinder) Unknowns() []string {
	return r.unknowns
}

// WithRegistry returns a copy of r resolving parameters from reg.
func (r *RootFinder) WithRegistry(reg *symbolic.Registry) *RootFinder {
	c := *r
	c.residual = r.residual.WithRegistry(reg)
	c.jacobian = r.jacobian.WithRegistry(reg)
	if r.merit != nil {
		c.merit = r.merit.WithRegistry(reg)
	}
	return &c
}

// Solve runs Newton iterations from x0.
// Non-convergence is reported in the result status, not as error.
// It returns error if a residual evaluation or a linear solve fails.
func (r *RootFinder) Solve(x0 []float64) (*Result, error) {
	z := make([]float64, len(x0))
	copy(z, x0)

	res := &Result{X: z, Status: Iterating}

	merit := r.meritFunc()

	for k := 0; k < r.cfg.MaxIters; k++ {
		rv, err := r.residual.EvalVec(z)
		if err != nil {
			res.Status = EvaluationFailure
			return res, fmt.Errorf("%w: residual: %v", control.ErrEvaluation, err)
		}

		res.ResidualNorm = mat.Norm(rv, 2)
		if res.ResidualNorm < r.cfg.Tolerance {
			res.Status = Converged
			return res, nil
		}

		jac, err := r.jacobian.Eval(z)
		if err != nil {
			res.Status = EvaluationFailure
			return res, fmt.Errorf("%w: jacobian: %v", control.ErrEvaluation, err)
		}

		if r.cfg.Regularization > 0 {
			jac.Add(jac, matrix.Identity(len(z), r.cfg.Regularization))
		}

		rv.ScaleVec(-1, rv)
		dz, err := matrix.SolveVec(jac, rv)
		if err != nil {
			res.Status = EvaluationFailure
			return res, err
		}

		alpha, err := r.cfg.LineSearch.Search(merit, z, dz.RawVector().Data)
		if err != nil {
			res.Status = EvaluationFailure
			return res, fmt.Errorf("%w: line search: %v", control.ErrEvaluation, err)
		}

		floats.AddScaled(z, alpha, dz.RawVector().Data)
		res.Iterations = k + 1

		if r.cfg.Verbose {
			r.log.Debugw("newton step", "iter", k, "residual", res.ResidualNorm, "alpha", alpha)
		}
	}

	rv, err := r.residual.EvalVec(z)
	if err != nil {
		res.Status = EvaluationFailure
		return res, fmt.Errorf("%w: residual: %v", control.ErrEvaluation, err)
	}

	res.ResidualNorm = mat.Norm(rv, 2)
	res.Status = MaxIterExceeded
	if res.ResidualNorm < r.cfg.Tolerance {
		res.Status = Converged
	}

	return res, nil
}

func (r *RootFinder) meritFunc() func([]float64) (float64, error) {
	if r.merit != nil {
		return r.merit.EvalScalar
	}
	return func(z []float64) (float64, error) {
		rv, err := r.residual.EvalVec(z)
		if err != nil {
			return 0, err
		}
		return mat.Norm(rv, 2), nil
	}
}

package solver

import (
	"fmt"
	"math"

	control "github.com/milosgajdos/go-control"
	"github.com/milosgajdos/go-control/matrix"
	"github.com/milosgajdos/go-control/symbolic"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

const (
	// initRho is the initial barrier parameter
	initRho = 0.1
	// rhoDecay shrinks the barrier parameter
	rhoDecay = 0.1
)

// Minimizer minimizes f(x) subject to c(x) = 0 and h(x) >= 0.
//
// Inequalities are handled with a log-barrier interior point method in
// which slacks s and multipliers lambda are parametrized by a single
// variable sigma: s = sqrt(rho)*exp(sigma), lambda = sqrt(rho)*exp(-sigma),
// so that s*lambda = rho holds by construction.
type Minimizer struct {
	cfg      Config
	unknowns []string
	grad     *symbolic.Function
	hess     *symbolic.Function
	eq       *symbolic.Function
	eqJac    *symbolic.Function
	eqHess   []*symbolic.Function
	ineq     *symbolic.Function
	ineqJac  *symbolic.Function
	ineqHess []*symbolic.Function
	nEq      int
	nIneq    int
	log      *zap.SugaredLogger
}

// NewMinimizer compiles the objective, the constraints and their
// derivatives with respect to unknowns. eq and ineq may be empty.
func NewMinimizer(objective symbolic.Expr, eq, ineq symbolic.Vector, unknowns []string, reg *symbolic.Registry, cfg Config, opts ...Option) (*Minimizer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if len(unknowns) == 0 {
		return nil, fmt.Errorf("%w: no unknowns", control.ErrConfig)
	}

	o := newOptions(opts)

	m := &Minimizer{
		cfg:      cfg,
		unknowns: unknowns,
		nEq:      eq.Len(),
		nIneq:    ineq.Len(),
		log:      o.logger,
	}

	grad, err := o.diff.Gradient(objective, unknowns)
	if err != nil {
		return nil, control.Symbolic(err)
	}

	hess, err := o.diff.Hessian(objective, unknowns)
	if err != nil {
		return nil, control.Symbolic(err)
	}

	if m.grad, err = symbolic.CompileVector(grad, unknowns, reg); err != nil {
		return nil, control.Symbolic(err)
	}

	if m.hess, err = symbolic.Compile(hess, unknowns, reg); err != nil {
		return nil, control.Symbolic(err)
	}

	if m.nEq > 0 {
		if m.eq, m.eqJac, m.eqHess, err = m.compileConstraints(eq, reg, o.diff); err != nil {
			return nil, err
		}
	}

	if m.nIneq > 0 {
		if m.ineq, m.ineqJac, m.ineqHess, err = m.compileConstraints(ineq, reg, o.diff); err != nil {
			return nil, err
		}
	}

	return m, nil
}

func (m *Minimizer) compileConstraints(c symbolic.Vector, reg *symbolic.Registry, d symbolic.Differentiator) (*symbolic.Function, *symbolic.Function, []*symbolic.Function, error) {
	val, err := symbolic.CompileVector(c, m.unknowns, reg)
	if err != nil {
		return nil, nil, nil, control.Symbolic(err)
	}

	j, err := d.Jacobian(c, m.unknowns)
	if err != nil {
		return nil, nil, nil, control.Symbolic(err)
	}

	jac, err := symbolic.Compile(j, m.unknowns, reg)
	if err != nil {
		return nil, nil, nil, control.Symbolic(err)
	}

	if m.cfg.GaussNewton {
		return val, jac, nil, nil
	}

	hess := make([]*symbolic.Function, c.Len())
	for i, e := range c {
		h, err := d.Hessian(e, m.unknowns)
		if err != nil {
			return nil, nil, nil, control.Symbolic(err)
		}
		if hess[i], err = symbolic.Compile(h, m.unknowns, reg); err != nil {
			return nil, nil, nil, control.Symbolic(err)
		}
	}

	return val, jac, hess, nil
}

// WithRegistry returns a copy of m resolving parameters from reg.
func (m *Minimizer) WithRegistry(reg *symbolic.Registry) *Minimizer {
	c := *m
	c.grad = m.grad.WithRegistry(reg)
	c.hess = m.hess.WithRegistry(reg)
	if m.eq != nil {
		c.eq = m.eq.WithRegistry(reg)
		c.eqJac = m.eqJac.WithRegistry(reg)
		c.eqHess = rebind(m.eqHess, reg)
	}
	if m.ineq != nil {
		c.ineq = m.ineq.WithRegistry(reg)
		c.ineqJac = m.ineqJac.WithRegistry(reg)
		c.ineqHess = rebind(m.ineqHess, reg)
	}
	return &c
}

func rebind(fs []*symbolic.Function, reg *symbolic.Registry) []*symbolic.Function {
	if fs == nil {
		return nil
	}
	out := make([]*symbolic.Function, len(fs))
	for i, f := range fs {
		out[i] = f.WithRegistry(reg)
	}
	return out
}

// Unknowns returns the names of the unknowns in solve order.
func (m *Minimizer) Unknowns() []string {
	return m.unknowns
}

// point holds problem values at a primal iterate.
type point struct {
	g   []float64
	h   *mat.Dense
	ceq []float64
	jeq *mat.Dense
	heq []*mat.Dense
	cin []float64
	jin *mat.Dense
	hin []*mat.Dense
}

func (m *Minimizer) eval(x []float64, curvature bool) (*point, error) {
	p := new(point)

	g, err := m.grad.EvalVec(x)
	if err != nil {
		return nil, err
	}
	p.g = g.RawVector().Data

	if curvature {
		if p.h, err = m.hess.Eval(x); err != nil {
			return nil, err
		}
	}

	if m.nEq > 0 {
		if p.ceq, p.jeq, p.heq, err = evalConstraints(x, m.eq, m.eqJac, m.eqHess, curvature); err != nil {
			return nil, err
		}
	}

	if m.nIneq > 0 {
		if p.cin, p.jin, p.hin, err = evalConstraints(x, m.ineq, m.ineqJac, m.ineqHess, curvature); err != nil {
			return nil, err
		}
	}

	return p, nil
}

func evalConstraints(x []float64, val, jac *symbolic.Function, hess []*symbolic.Function, curvature bool) ([]float64, *mat.Dense, []*mat.Dense, error) {
	c, err := val.EvalVec(x)
	if err != nil {
		return nil, nil, nil, err
	}

	j, err := jac.Eval(x)
	if err != nil {
		return nil, nil, nil, err
	}

	if !curvature || hess == nil {
		return c.RawVector().Data, j, nil, nil
	}

	hs := make([]*mat.Dense, len(hess))
	for i, f := range hess {
		if hs[i], err = f.Eval(x); err != nil {
			return nil, nil, nil, err
		}
	}

	return c.RawVector().Data, j, hs, nil
}

// split splits the iterate z into x, mu and sigma.
func (m *Minimizer) split(z []float64) (x, mu, sigma []float64) {
	n := len(m.unknowns)
	return z[:n], z[n : n+m.nEq], z[n+m.nEq:]
}

func slackMultipliers(sigma []float64, rho float64) (s, lambda []float64) {
	s = make([]float64, len(sigma))
	lambda = make([]float64, len(sigma))
	sr := math.Sqrt(rho)
	for i, v := range sigma {
		s[i] = sr * math.Exp(v)
		lambda[i] = sr * math.Exp(-v)
	}
	return s, lambda
}

// lagrangianGrad returns g + Jeq'*mu - Jin'*lambda.
func lagrangianGrad(p *point, mu, lambda []float64) []float64 {
	gl := make([]float64, len(p.g))
	copy(gl, p.g)
	out := mat.NewVecDense(len(gl), gl)

	if len(mu) > 0 {
		var t mat.VecDense
		t.MulVec(p.jeq.T(), mat.NewVecDense(len(mu), mu))
		out.AddVec(out, &t)
	}

	if len(lambda) > 0 {
		var t mat.VecDense
		t.MulVec(p.jin.T(), mat.NewVecDense(len(lambda), lambda))
		out.SubVec(out, &t)
	}

	return gl
}

// ipResidual is [gradL; c; h - s] at a fixed barrier parameter.
func ipResidual(p *point, mu, lambda, s []float64) []float64 {
	r := lagrangianGrad(p, mu, lambda)
	r = append(r, p.ceq...)
	for i, c := range p.cin {
		r = append(r, c-s[i])
	}
	return r
}

// kktJacobian assembles the Newton matrix of the interior point residual.
func (m *Minimizer) kktJacobian(p *point, mu, lambda, s []float64) *mat.Dense {
	n := len(m.unknowns)
	size := n + m.nEq + m.nIneq
	jac := mat.NewDense(size, size, nil)

	hl := mat.DenseCopyOf(p.h)
	for i, h := range p.heq {
		hl.Add(hl, scaled(mu[i], h))
	}
	for i, h := range p.hin {
		hl.Add(hl, scaled(-lambda[i], h))
	}
	if m.cfg.Regularization > 0 {
		hl.Add(hl, matrix.Identity(n, m.cfg.Regularization))
	}
	matrix.SetBlock(jac, 0, 0, hl)

	if m.nEq > 0 {
		matrix.SetBlock(jac, 0, n, p.jeq.T())
		matrix.SetBlock(jac, n, 0, p.jeq)
	}

	if m.nIneq > 0 {
		off := n + m.nEq
		var jl mat.Dense
		jl.Mul(p.jin.T(), mat.NewDiagDense(m.nIneq, lambda))
		matrix.SetBlock(jac, 0, off, &jl)
		matrix.SetBlock(jac, off, 0, p.jin)
		for i := range s {
			jac.Set(off+i, off+i, -s[i])
		}
	}

	return jac
}

func scaled(f float64, a mat.Matrix) *mat.Dense {
	var out mat.Dense
	out.Scale(f, a)
	return &out
}

// Solve minimizes from the primal guess x0 with zero equality multipliers
// and unit scaled slacks. Non-convergence is reported in the result status.
// It returns error if an evaluation or a linear solve fails.
func (m *Minimizer) Solve(x0 []float64) (*Result, error) {
	n := len(m.unknowns)
	if len(x0) != n {
		return nil, fmt.Errorf("%w: initial guess has %d values, want %d", control.ErrConfig, len(x0), n)
	}

	z := make([]float64, n+m.nEq+m.nIneq)
	copy(z, x0)

	rho := initRho
	res := &Result{Status: Iterating}

	for k := 0; k < m.cfg.MaxIters; k++ {
		x, mu, sigma := m.split(z)

		p, err := m.eval(x, true)
		if err != nil {
			return m.fail(res, z, rho, err)
		}

		s, lambda := slackMultipliers(sigma, rho)

		if m.finish(res, z, p, rho) {
			res.Status = Converged
			return res, nil
		}

		r := ipResidual(p, mu, lambda, s)
		if m.nIneq > 0 && floats.Norm(r, math.Inf(1)) < m.cfg.Tolerance {
			rho *= rhoDecay
			s, lambda = slackMultipliers(sigma, rho)
			r = ipResidual(p, mu, lambda, s)
			if m.cfg.Verbose {
				m.log.Debugw("barrier update", "iter", k, "rho", rho)
			}
		}

		floats.Scale(-1, r)
		dz, err := matrix.SolveVec(m.kktJacobian(p, mu, lambda, s), mat.NewVecDense(len(r), r))
		if err != nil {
			res.Status = EvaluationFailure
			m.fill(res, z, rho)
			return res, err
		}

		barrier := rho
		merit := func(zt []float64) (float64, error) {
			xt, mut, sigt := m.split(zt)
			pt, err := m.eval(xt, false)
			if err != nil {
				return 0, err
			}
			st, lt := slackMultipliers(sigt, barrier)
			return floats.Norm(ipResidual(pt, mut, lt, st), 2), nil
		}

		alpha, err := m.cfg.LineSearch.Search(merit, z, dz.RawVector().Data)
		if err != nil {
			return m.fail(res, z, rho, err)
		}

		floats.AddScaled(z, alpha, dz.RawVector().Data)
		res.Iterations = k + 1

		if m.cfg.Verbose {
			m.log.Debugw("newton step", "iter", k, "kkt", res.ResidualNorm, "alpha", alpha, "rho", rho)
		}
	}

	x, _, _ := m.split(z)
	p, err := m.eval(x, false)
	if err != nil {
		return m.fail(res, z, rho, err)
	}

	res.Status = MaxIterExceeded
	if m.finish(res, z, p, rho) {
		res.Status = Converged
	}

	return res, nil
}

// finish records the true KKT status of z in res and reports whether the
// KKT residual is below tolerance.
func (m *Minimizer) finish(res *Result, z []float64, p *point, rho float64) bool {
	m.fill(res, z, rho)
	gl := lagrangianGrad(p, res.Mu, res.Lambda)
	res.KKT = newKKTStatus(gl, p.ceq, p.cin, res.Lambda)
	res.ResidualNorm = floats.Norm(kktResidual(gl, p.ceq, p.cin, res.Lambda), 2)
	return res.ResidualNorm < m.cfg.Tolerance
}

func (m *Minimizer) fill(res *Result, z []float64, rho float64) {
	x, mu, sigma := m.split(z)
	res.X = append(res.X[:0], x...)
	res.Mu = append(res.Mu[:0], mu...)
	_, res.Lambda = slackMultipliers(sigma, rho)
}

func (m *Minimizer) fail(res *Result, z []float64, rho float64, err error) (*Result, error) {
	res.Status = EvaluationFailure
	m.fill(res, z, rho)
	return res, fmt.Errorf("%w: %v", control.ErrEvaluation, err)
}

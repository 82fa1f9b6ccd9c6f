// Package qp solves convex quadratic programs
//
//	minimize    1/2 x'Px + q'x
//	subject to  l <= Ax <= u
//
// with the operator splitting (ADMM) iteration popularized by OSQP.
// Equality constraints are rows with l == u.
package qp

import (
	"fmt"
	"math"

	control "github.com/milosgajdos/go-control"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// Problem is a convex QP. Only the upper triangle of P is used.
type Problem struct {
	// P is the n x n positive semi-definite cost matrix
	P mat.Matrix
	// Q is the linear cost
	Q []float64
	// A is the m x n constraint matrix
	A mat.Matrix
	// L is the lower bound, may contain -Inf
	L []float64
	// U is the upper bound, may contain +Inf
	U []float64
}

// Solution is the result of a solve
type Solution struct {
	// X is the primal solution
	X []float64
	// Y is the constraint multiplier
	Y []float64
	// Iterations is the number of ADMM iterations
	Iterations int
	// Status is the solve status
	Status Status
	// PrimalResidual is the infinity norm of Ax - z
	PrimalResidual float64
	// DualResidual is the infinity norm of Px + q + A'y
	DualResidual float64
	// Objective is 1/2 x'Px + q'x
	Objective float64
}

// Solver solves a QP and supports re-solving after data updates
type Solver struct {
	s    Settings
	n, m int
	p    *mat.SymDense
	q    *mat.VecDense
	a    *mat.Dense
	l, u []float64
	rho  float64
	rhos []float64
	chol mat.Cholesky
	x    *mat.VecDense
	z    *mat.VecDense
	y    *mat.VecDense
	log  *zap.SugaredLogger
}

// New creates new Solver for problem p and returns it.
// It returns error if the settings are invalid, the problem dimensions do
// not agree, some lower bound exceeds its upper bound or the linear system
// can not be factorized.
func New(p Problem, s Settings, opts ...Option) (*Solver, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}

	o := options{logger: zap.NewNop().Sugar()}
	for _, apply := range opts {
		apply(&o)
	}

	if p.P == nil || p.A == nil {
		return nil, fmt.Errorf("%w: nil P or A", control.ErrConfig)
	}

	n, c := p.P.Dims()
	if n != c {
		return nil, fmt.Errorf("%w: P is %dx%d", control.ErrConfig, n, c)
	}

	m, c := p.A.Dims()
	if c != n {
		return nil, fmt.Errorf("%w: A has %d columns, want %d", control.ErrConfig, c, n)
	}

	if len(p.Q) != n {
		return nil, fmt.Errorf("%w: q has %d components, want %d", control.ErrConfig, len(p.Q), n)
	}

	if err := checkBounds(p.L, p.U, m); err != nil {
		return nil, err
	}

	solver := &Solver{
		s:   s,
		n:   n,
		m:   m,
		p:   upper(p.P),
		q:   mat.NewVecDense(n, append([]float64(nil), p.Q...)),
		a:   mat.DenseCopyOf(p.A),
		l:   append([]float64(nil), p.L...),
		u:   append([]float64(nil), p.U...),
		rho: s.Rho,
		x:   mat.NewVecDense(n, nil),
		z:   mat.NewVecDense(m, nil),
		y:   mat.NewVecDense(m, nil),
		log: o.logger,
	}

	solver.setRhos()
	if err := solver.factorize(); err != nil {
		return nil, err
	}

	return solver, nil
}

func checkBounds(l, u []float64, m int) error {
	if len(l) != m || len(u) != m {
		return fmt.Errorf("%w: bounds have %d and %d components, want %d", control.ErrConfig, len(l), len(u), m)
	}
	for i := range l {
		if l[i] > u[i] {
			return fmt.Errorf("%w: lower bound %g exceeds upper bound %g in row %d", control.ErrConfig, l[i], u[i], i)
		}
	}
	return nil
}

// upper returns the symmetric matrix defined by the upper triangle of m.
func upper(m mat.Matrix) *mat.SymDense {
	n, _ := m.Dims()
	s := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			s.SetSym(i, j, m.At(i, j))
		}
	}
	return s
}

// setRhos sets the per row step sizes: stiff for equalities and loose for
// unbounded rows.
func (s *Solver) setRhos() {
	if s.rhos == nil {
		s.rhos = make([]float64, s.m)
	}
	for i := range s.rhos {
		switch {
		case math.IsInf(s.l[i], -1) && math.IsInf(s.u[i], 1):
			s.rhos[i] = rhoMin
		case s.u[i]-s.l[i] < 1e-4:
			s.rhos[i] = rhoEqScale * s.rho
		default:
			s.rhos[i] = s.rho
		}
	}
}

// factorize factorizes P + sigma*I + A' diag(rho) A.
func (s *Solver) factorize() error {
	ra := mat.DenseCopyOf(s.a)
	for i := 0; i < s.m; i++ {
		row := ra.RawRowView(i)
		floats.Scale(s.rhos[i], row)
	}

	var ata mat.Dense
	ata.Mul(s.a.T(), ra)

	k := mat.NewSymDense(s.n, nil)
	for i := 0; i < s.n; i++ {
		for j := i; j < s.n; j++ {
			v := s.p.At(i, j) + ata.At(i, j)
			if i == j {
				v += s.s.Sigma
			}
			k.SetSym(i, j, v)
		}
	}

	if !s.chol.Factorize(k) {
		return fmt.Errorf("%w: KKT matrix is not positive definite", control.ErrEvaluation)
	}

	return nil
}

// Dims returns the number of variables and constraints.
func (s *Solver) Dims() (n, m int) { return s.n, s.m }

// Settings returns the solver settings.
func (s *Solver) Settings() Settings { return s.s }

// UpdateLinCost replaces q.
func (s *Solver) UpdateLinCost(q []float64) error {
	if len(q) != s.n {
		return fmt.Errorf("%w: q has %d components, want %d", control.ErrConfig, len(q), s.n)
	}
	copy(s.q.RawVector().Data, q)
	return nil
}

// UpdateBounds replaces l and u. The linear system is refactorized when
// the equality pattern changes.
func (s *Solver) UpdateBounds(l, u []float64) error {
	if err := checkBounds(l, u, s.m); err != nil {
		return err
	}
	copy(s.l, l)
	copy(s.u, u)

	old := append([]float64(nil), s.rhos...)
	s.setRhos()
	if floats.Equal(old, s.rhos) {
		return nil
	}
	return s.factorize()
}

// UpdateP replaces P using its upper triangle and refactorizes.
func (s *Solver) UpdateP(p mat.Matrix) error {
	if r, c := p.Dims(); r != s.n || c != s.n {
		return fmt.Errorf("%w: P is %dx%d, want %dx%[4]d", control.ErrConfig, r, c, s.n)
	}
	s.p = upper(p)
	return s.factorize()
}

// WarmStart sets the starting primal and dual iterates of the next solve.
// A nil y keeps the current multipliers.
func (s *Solver) WarmStart(x, y []float64) error {
	if len(x) != s.n || (y != nil && len(y) != s.m) {
		return fmt.Errorf("%w: warm start dimensions", control.ErrConfig)
	}
	copy(s.x.RawVector().Data, x)
	s.z.MulVec(s.a, s.x)
	if y != nil {
		copy(s.y.RawVector().Data, y)
	}
	return nil
}

func (s *Solver) reset() {
	s.x.Zero()
	s.z.Zero()
	s.y.Zero()
}

// Solve runs ADMM until both residuals are within tolerance.
// It returns the last iterate and control.ErrSolver if MaxIter is reached.
func (s *Solver) Solve() (*Solution, error) {
	if !s.s.WarmStart {
		s.reset()
	}

	n, m := s.n, s.m
	alpha := s.s.Alpha

	rhs := mat.NewVecDense(n, nil)
	tmp := mat.NewVecDense(m, nil)
	xt := mat.NewVecDense(n, nil)
	zt := mat.NewVecDense(m, nil)

	sol := &Solution{Status: MaxIterReached}

	for k := 1; k <= s.s.MaxIter; k++ {
		// rhs = sigma*x - q + A'(rho.*z - y)
		for i := 0; i < m; i++ {
			tmp.SetVec(i, s.rhos[i]*s.z.AtVec(i)-s.y.AtVec(i))
		}
		rhs.MulVec(s.a.T(), tmp)
		rhs.AddScaledVec(rhs, s.s.Sigma, s.x)
		rhs.SubVec(rhs, s.q)

		if err := s.chol.SolveVecTo(xt, rhs); err != nil {
			return nil, fmt.Errorf("%w: %v", control.ErrEvaluation, err)
		}
		zt.MulVec(s.a, xt)

		// over-relaxation
		for i := 0; i < n; i++ {
			s.x.SetVec(i, alpha*xt.AtVec(i)+(1-alpha)*s.x.AtVec(i))
		}
		for i := 0; i < m; i++ {
			zr := alpha*zt.AtVec(i) + (1-alpha)*s.z.AtVec(i)
			zn := math.Min(math.Max(zr+s.y.AtVec(i)/s.rhos[i], s.l[i]), s.u[i])
			s.y.SetVec(i, s.y.AtVec(i)+s.rhos[i]*(zr-zn))
			s.z.SetVec(i, zn)
		}

		prim, dual, epsPrim, epsDual, scale := s.residuals()
		sol.Iterations = k
		sol.PrimalResidual, sol.DualResidual = prim, dual

		if s.s.Verbose && (k == 1 || k%50 == 0) {
			s.log.Debugw("admm iteration", "iter", k, "primal", prim, "dual", dual, "rho", s.rho)
		}

		if prim <= epsPrim && dual <= epsDual {
			sol.Status = Solved
			break
		}

		if s.s.AdaptiveRho && k%adaptInterval == 0 {
			if err := s.adapt(scale); err != nil {
				return nil, err
			}
		}
	}

	sol.X = append([]float64(nil), s.x.RawVector().Data...)
	sol.Y = append([]float64(nil), s.y.RawVector().Data...)
	sol.Objective = 0.5*mat.Inner(s.x, s.p, s.x) + mat.Dot(s.q, s.x)

	if s.s.Verbose {
		s.log.Debugw("admm done", "status", sol.Status, "iterations", sol.Iterations, "objective", sol.Objective)
	}

	if sol.Status != Solved {
		return sol, fmt.Errorf("%w: qp %s after %d iterations", control.ErrSolver, sol.Status, sol.Iterations)
	}

	return sol, nil
}

// residuals returns the primal and dual residuals, their tolerances and
// the normalized residual ratio used to adapt rho.
func (s *Solver) residuals() (prim, dual, epsPrim, epsDual, ratio float64) {
	ax := new(mat.VecDense)
	ax.MulVec(s.a, s.x)

	r := new(mat.VecDense)
	r.SubVec(ax, s.z)
	prim = mat.Norm(r, math.Inf(1))

	px := new(mat.VecDense)
	px.MulVec(s.p, s.x)
	aty := new(mat.VecDense)
	aty.MulVec(s.a.T(), s.y)

	d := new(mat.VecDense)
	d.AddVec(px, aty)
	d.AddVec(d, s.q)
	dual = mat.Norm(d, math.Inf(1))

	inf := math.Inf(1)
	primScale := math.Max(mat.Norm(ax, inf), mat.Norm(s.z, inf))
	dualScale := math.Max(math.Max(mat.Norm(px, inf), mat.Norm(aty, inf)), mat.Norm(s.q, inf))

	epsPrim = s.s.EpsAbs + s.s.EpsRel*primScale
	epsDual = s.s.EpsAbs + s.s.EpsRel*dualScale

	const tiny = 1e-10
	ratio = math.Sqrt((prim / (primScale + tiny)) / (dual/(dualScale+tiny) + tiny))

	return prim, dual, epsPrim, epsDual, ratio
}

// adapt rescales rho by ratio and refactorizes when the change is large.
func (s *Solver) adapt(ratio float64) error {
	rho := math.Min(math.Max(s.rho*ratio, rhoMin), rhoMax)
	if rho > s.rho*adaptTolerance || rho < s.rho/adaptTolerance {
		s.rho = rho
		s.setRhos()
		return s.factorize()
	}
	return nil
}

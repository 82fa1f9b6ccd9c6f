package discretizer

import (
	"fmt"

	control "github.com/milosgajdos/go-control"
	"github.com/milosgajdos/go-control/solver"
	"github.com/milosgajdos/go-control/symbolic"
	"gonum.org/v1/gonum/mat"
)

// Implicit solves for the next state with an embedded Newton solver.
//
// Unconstrained models solve the scheme residual R(x, x+, u, dt) = 0 for x+.
// Constrained models solve a velocity level minimization for v+ and update
// the positions with the scheme's rule.
type Implicit struct {
	kind     Kind
	model    control.SymbolicModel
	reg      *symbolic.Registry
	cfg      solver.Config
	residual symbolic.Vector
	root     *solver.RootFinder
	min      *solver.Minimizer
	dimQ     int
}

// NewImplicit creates new implicit discretizer of the given kind.
// It returns error if the model has no symbolic dynamics or a constrained
// model is paired with a scheme other than BackwardEuler or ImplicitMidpoint.
func NewImplicit(kind Kind, m control.Model, reg *symbolic.Registry, opts ...Option) (*Implicit, error) {
	if !kind.Implicit() {
		return nil, fmt.Errorf("%w: %s is not an implicit scheme", control.ErrConfig, kind)
	}

	sm, ok := m.(control.SymbolicModel)
	if !ok {
		return nil, fmt.Errorf("%w: %s requires symbolic dynamics", control.ErrUnexpected, kind)
	}

	o := newOptions(opts)
	if err := o.solver.Validate(); err != nil {
		return nil, err
	}

	if reg == nil {
		reg = symbolic.NewRegistry()
	}

	x, next, u, err := register(sm, reg)
	if err != nil {
		return nil, err
	}

	d := &Implicit{
		kind:  kind,
		model: sm,
		reg:   reg,
		cfg:   o.solver,
		dimQ:  sm.StateLayout().DimQ(),
	}

	solverOpts := []solver.Option{solver.WithLogger(o.logger)}

	if cm, ok := sm.(control.ConstrainedModel); ok {
		if kind == HermiteSimpson {
			return nil, fmt.Errorf("%w: %s can not step a constrained model", control.ErrUnexpected, kind)
		}
		if d.min, err = d.constrained(cm, next, solverOpts); err != nil {
			return nil, err
		}
		return d, nil
	}

	if d.residual, err = d.buildResidual(x, next, u); err != nil {
		return nil, err
	}

	names, err := next.Names()
	if err != nil {
		return nil, control.Symbolic(err)
	}

	if d.root, err = solver.NewRootFinder(d.residual, names, reg, o.solver, solverOpts...); err != nil {
		return nil, err
	}

	return d, nil
}

func (d *Implicit) buildResidual(x, next, u symbolic.Vector) (symbolic.Vector, error) {
	dt := dtVar()
	f := func(x symbolic.Vector) (symbolic.Vector, error) {
		return d.model.DynamicsSymbolic(x, u, d.reg)
	}

	half := symbolic.Num(0.5)
	mid := func() (symbolic.Vector, error) {
		s, err := x.Add(next)
		if err != nil {
			return nil, control.Symbolic(err)
		}
		return s.Scale(half), nil
	}

	switch d.kind {
	case BackwardEuler:
		// x+ - x - dt*f(x+)
		fn, err := f(next)
		if err != nil {
			return nil, err
		}
		return residual(next, x, dt, fn)
	case ImplicitMidpoint:
		// x+ - x - dt*f((x + x+)/2)
		xm, err := mid()
		if err != nil {
			return nil, err
		}
		fm, err := f(xm)
		if err != nil {
			return nil, err
		}
		return residual(next, x, dt, fm)
	}

	// x+ - x - dt/6*(f(x) + 4*f(xm) + f(x+)) with
	// xm = (x + x+)/2 + dt/8*(f(x) - f(x+))
	fk, err := f(x)
	if err != nil {
		return nil, err
	}
	fn, err := f(next)
	if err != nil {
		return nil, err
	}
	xm, err := mid()
	if err != nil {
		return nil, err
	}
	df, err := fk.Sub(fn)
	if err != nil {
		return nil, control.Symbolic(err)
	}
	if xm, err = axpy(xm, symbolic.Div(dt, symbolic.Num(8)), df); err != nil {
		return nil, err
	}
	fm, err := f(xm)
	if err != nil {
		return nil, err
	}

	avg := make(symbolic.Vector, fk.Len())
	for i := range avg {
		avg[i] = symbolic.Sum(fk[i], symbolic.Product(symbolic.Num(4), fm[i]), fn[i])
	}

	return residual(next, x, symbolic.Div(dt, symbolic.Num(6)), avg)
}

// residual returns next - x - h*f.
func residual(next, x symbolic.Vector, h symbolic.Expr, f symbolic.Vector) (symbolic.Vector, error) {
	d, err := next.Sub(x)
	if err != nil {
		return nil, control.Symbolic(err)
	}
	return axpy(d, symbolic.Neg(h), f)
}

// constrained builds min 1/2 v+'Mv+ + l'v+ s.t. J(q + dt*v+) >= 0 over the
// next velocity symbols.
func (d *Implicit) constrained(m control.ConstrainedModel, next symbolic.Vector, opts []solver.Option) (*solver.Minimizer, error) {
	dt := dtVar()

	mass, err := d.reg.Matrix(symbolic.MassMatrixKey)
	if err != nil {
		return nil, control.Symbolic(err)
	}

	jac, err := d.reg.Matrix(symbolic.ConstraintJacobianKey)
	if err != nil {
		return nil, control.Symbolic(err)
	}

	q, err := d.reg.Vector(symbolic.StateQKey)
	if err != nil {
		return nil, control.Symbolic(err)
	}

	lin, err := m.LinearTerm(dt, d.reg)
	if err != nil {
		return nil, err
	}

	vn := next.Slice(d.dimQ, next.Len())

	mv, err := mass.MulVec(vn)
	if err != nil {
		return nil, control.Symbolic(err)
	}

	quad, err := vn.Dot(mv)
	if err != nil {
		return nil, control.Symbolic(err)
	}

	lv, err := lin.Dot(vn)
	if err != nil {
		return nil, control.Symbolic(err)
	}

	objective := symbolic.Sum(symbolic.Product(symbolic.Num(0.5), quad), lv)

	qn, err := axpy(q, dt, vn)
	if err != nil {
		return nil, err
	}

	ineq, err := jac.MulVec(qn)
	if err != nil {
		return nil, control.Symbolic(err)
	}

	names, err := vn.Names()
	if err != nil {
		return nil, control.Symbolic(err)
	}

	return solver.NewMinimizer(objective, nil, ineq, names, d.reg, d.cfg, opts...)
}

// Kind returns the scheme.
func (d *Implicit) Kind() Kind { return d.kind }

// Model returns the discretized model.
func (d *Implicit) Model() control.Model { return d.model }

// Registry returns the registry the step is evaluated against.
func (d *Implicit) Registry() *symbolic.Registry { return d.reg }

// Constrained reports whether the step is a constrained minimization.
func (d *Implicit) Constrained() bool { return d.min != nil }

// Residual returns the scheme residual in terms of the state, next state,
// input, parameter and dt symbols.
// It returns error for constrained models.
func (d *Implicit) Residual() (symbolic.Vector, error) {
	if d.residual == nil {
		return nil, fmt.Errorf("%w: constrained %s has no residual", control.ErrUnexpected, d.kind)
	}
	return d.residual, nil
}

// WithRegistry returns a copy of d evaluating against reg. reg must hold
// the same symbols, typically a Clone of Registry.
func (d *Implicit) WithRegistry(reg *symbolic.Registry) *Implicit {
	c := *d
	c.reg = reg
	if d.root != nil {
		c.root = d.root.WithRegistry(reg)
	}
	if d.min != nil {
		c.min = d.min.WithRegistry(reg)
	}
	return &c
}

// Step advances x by dt under input u. A nil u is a zero input.
// It returns control.ErrSolver if the embedded solver does not converge.
func (d *Implicit) Step(x, u mat.Vector, dt float64) (*mat.VecDense, error) {
	if dt <= 0 {
		return nil, fmt.Errorf("%w: non-positive time step %g", control.ErrConfig, dt)
	}

	n := d.model.StateLayout().Len()
	if x == nil || x.Len() != n {
		return nil, fmt.Errorf("%w: state vector must have %d components", control.ErrConfig, n)
	}

	xs := mat.VecDenseCopyOf(x).RawVector().Data

	if err := d.bind(xs, u, dt); err != nil {
		return nil, err
	}

	if d.min != nil {
		return d.stepConstrained(xs, dt)
	}

	res, err := d.root.Solve(xs)
	if err != nil {
		return nil, err
	}

	if err := res.Err(); err != nil {
		return nil, err
	}

	if err := d.reg.InsertVectorValues(symbolic.NextStateKey, res.X); err != nil {
		return nil, control.Symbolic(err)
	}

	return mat.NewVecDense(n, res.X), nil
}

func (d *Implicit) bind(x []float64, u mat.Vector, dt float64) error {
	d.reg.InsertVar(symbolic.DtKey, dt)

	m := d.model.InputLayout().Len()
	us := make([]float64, m)
	if u != nil {
		if u.Len() != m {
			return fmt.Errorf("%w: input vector has %d components, want %d", control.ErrConfig, u.Len(), m)
		}
		for i := range us {
			us[i] = u.AtVec(i)
		}
	}

	if err := d.reg.InsertVectorValues(symbolic.InputKey, us); err != nil {
		return control.Symbolic(err)
	}

	if err := d.reg.InsertVectorValues(symbolic.StateKey, x); err != nil {
		return control.Symbolic(err)
	}

	// the current state is the initial guess
	if err := d.reg.InsertVectorValues(symbolic.NextStateKey, x); err != nil {
		return control.Symbolic(err)
	}

	return nil
}

func (d *Implicit) stepConstrained(x []float64, dt float64) (*mat.VecDense, error) {
	q, v := x[:d.dimQ], x[d.dimQ:]

	res, err := d.min.Solve(v)
	if err != nil {
		return nil, err
	}

	if err := res.KKT.CheckConvergence(d.cfg.Tolerance); err != nil {
		return nil, err
	}

	next := make([]float64, len(x))
	vn := next[d.dimQ:]
	copy(vn, res.X)

	for i := range q {
		switch d.kind {
		case ImplicitMidpoint:
			next[i] = q[i] + dt*0.5*(v[i]+vn[i])
		default:
			next[i] = q[i] + dt*vn[i]
		}
	}

	if err := d.reg.InsertVectorValues(symbolic.NextStateKey, next); err != nil {
		return nil, control.Symbolic(err)
	}

	return mat.NewVecDense(len(next), next), nil
}

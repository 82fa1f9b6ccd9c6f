package linearize

import (
	"fmt"
	"sync"

	control "github.com/milosgajdos/go-control"
	"github.com/milosgajdos/go-control/discretizer"
	"github.com/milosgajdos/go-control/matrix"
	"github.com/milosgajdos/go-control/symbolic"
	"gonum.org/v1/gonum/mat"
)

// Option configures a Symbolic linearizer
type Option func(*options)

type options struct {
	params []float64
	diff   symbolic.Differentiator
}

// WithParams overrides the model parameter values the Jacobians are
// evaluated with, e.g. by estimated parameters.
// The values follow the order of the model's Params.
func WithParams(vals []float64) Option {
	return func(o *options) {
		o.params = vals
	}
}

// WithDifferentiator sets the differentiator used to build the derivatives.
func WithDifferentiator(d symbolic.Differentiator) Option {
	return func(o *options) {
		o.diff = d
	}
}

// Symbolic linearizes a discretizer with symbolic derivatives.
//
// Explicit schemes differentiate the discrete update directly. Implicit
// schemes differentiate the residual R(x, x+, u) = 0 and apply the implicit
// function theorem: dx+/dx = -R_x+^-1 R_x and dx+/du = -R_x+^-1 R_u.
//
// Compiled functions take the parameter vector [x, u, model params, dt].
type Symbolic struct {
	implicit *discretizer.Implicit
	reg      *symbolic.Registry
	diff     symbolic.Differentiator
	dt       float64
	nx       int
	nu       int
	params   []float64
	vars     []string
	// update is the differentiated expression: F for explicit and R for
	// implicit schemes
	update symbolic.Vector
	z      []string
	jx     *symbolic.Function
	ju     *symbolic.Function
	jn     *symbolic.Function
	hess   *hessians
}

type hessians struct {
	once sync.Once
	fns  []*symbolic.Function
	err  error
}

// NewSymbolic creates new symbolic linearizer of d at time step dt.
// d must be an *discretizer.Explicit of a symbolic model or an
// unconstrained *discretizer.Implicit.
func NewSymbolic(d control.Discretizer, dt float64, opts ...Option) (*Symbolic, error) {
	if dt <= 0 {
		return nil, fmt.Errorf("%w: non-positive time step %g", control.ErrConfig, dt)
	}

	o := options{diff: symbolic.Local{}}
	for _, apply := range opts {
		apply(&o)
	}

	s := &Symbolic{dt: dt, diff: o.diff, hess: &hessians{}}

	var (
		m   control.Model
		err error
	)

	switch d := d.(type) {
	case *discretizer.Explicit:
		if s.update, err = d.Update(); err != nil {
			return nil, err
		}
		s.reg = d.Registry().Clone()
		m = d.Model()
	case *discretizer.Implicit:
		if s.update, err = d.Residual(); err != nil {
			return nil, err
		}
		s.implicit = d.WithRegistry(d.Registry().Clone())
		s.reg = s.implicit.Registry()
		m = d.Model()
	default:
		return nil, fmt.Errorf("%w: %T has no symbolic form", control.ErrUnexpected, d)
	}

	sm, ok := m.(control.SymbolicModel)
	if !ok {
		return nil, fmt.Errorf("%w: model has no symbolic dynamics", control.ErrUnexpected)
	}

	pn, pv := sm.Params()
	if o.params != nil {
		if len(o.params) != len(pv) {
			return nil, fmt.Errorf("%w: %d parameter overrides for %d parameters", control.ErrConfig, len(o.params), len(pv))
		}
		pv = o.params
		// the implicit step must see the same parameters
		for i, n := range pn {
			s.reg.InsertVar(n, pv[i])
		}
	}
	s.params = append([]float64(nil), pv...)

	if err := s.compile(pn); err != nil {
		return nil, err
	}

	return s, nil
}

func (s *Symbolic) compile(paramNames []string) error {
	xv, err := s.reg.Vector(symbolic.StateKey)
	if err != nil {
		return control.Symbolic(err)
	}
	uv, err := s.reg.Vector(symbolic.InputKey)
	if err != nil {
		return control.Symbolic(err)
	}

	xs, err := names(xv)
	if err != nil {
		return err
	}
	us, err := names(uv)
	if err != nil {
		return err
	}

	s.nx, s.nu = len(xs), len(us)
	s.z = append(append([]string(nil), xs...), us...)

	s.vars = make([]string, 0, s.nx+s.nu+len(paramNames)+1)
	s.vars = append(s.vars, s.z...)
	s.vars = append(s.vars, paramNames...)
	s.vars = append(s.vars, symbolic.DtKey)

	jac := func(vars []string) (*symbolic.Function, error) {
		j, err := s.diff.Jacobian(s.update, vars)
		if err != nil {
			return nil, control.Symbolic(err)
		}
		f, err := symbolic.Compile(j, s.vars, s.reg)
		if err != nil {
			return nil, control.Symbolic(err)
		}
		return f, nil
	}

	if s.jx, err = jac(xs); err != nil {
		return err
	}

	if s.nu > 0 {
		if s.ju, err = jac(us); err != nil {
			return err
		}
	}

	if s.implicit != nil {
		nv, err := s.reg.Vector(symbolic.NextStateKey)
		if err != nil {
			return control.Symbolic(err)
		}
		ns, err := names(nv)
		if err != nil {
			return err
		}
		if s.jn, err = jac(ns); err != nil {
			return err
		}
	}

	return nil
}

// Vars returns the parameter names of the compiled functions.
func (s *Symbolic) Vars() []string { return s.vars }

// Params returns the model parameter values the Jacobians use.
func (s *Symbolic) Params() []float64 { return s.params }

// Clone implements Cloner.
func (s *Symbolic) Clone() Linearizer {
	c := *s
	c.reg = s.reg.Clone()
	if s.implicit != nil {
		c.implicit = s.implicit.WithRegistry(c.reg)
		c.jn = s.jn.WithRegistry(c.reg)
	}
	c.jx = s.jx.WithRegistry(c.reg)
	if s.ju != nil {
		c.ju = s.ju.WithRegistry(c.reg)
	}
	return &c
}

func (s *Symbolic) point(x, u mat.Vector) (xs, us, p []float64, err error) {
	if x == nil {
		return nil, nil, nil, fmt.Errorf("%w: nil state", control.ErrConfig)
	}
	if xs, err = values(x, s.nx); err != nil {
		return nil, nil, nil, err
	}
	if us, err = values(u, s.nu); err != nil {
		return nil, nil, nil, err
	}

	p = make([]float64, 0, len(s.vars))
	p = append(p, xs...)
	p = append(p, us...)
	p = append(p, s.params...)
	p = append(p, s.dt)

	return xs, us, p, nil
}

// Jacobians implements Linearizer.
func (s *Symbolic) Jacobians(x, u mat.Vector) (*mat.Dense, *mat.Dense, error) {
	xs, us, p, err := s.point(x, u)
	if err != nil {
		return nil, nil, err
	}

	if s.implicit != nil {
		// binds x+ in the registry
		if _, err := s.implicit.Step(vec(xs), vec(us), s.dt); err != nil {
			return nil, nil, err
		}
	}

	a, err := s.jx.Eval(p)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %w", control.ErrEvaluation, err)
	}

	var b *mat.Dense
	if s.ju != nil {
		if b, err = s.ju.Eval(p); err != nil {
			return nil, nil, fmt.Errorf("%w: %w", control.ErrEvaluation, err)
		}
	}

	if s.implicit == nil {
		return a, b, nil
	}

	rn, err := s.jn.Eval(p)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %w", control.ErrEvaluation, err)
	}

	if a, err = matrix.Solve(rn, a); err != nil {
		return nil, nil, err
	}
	a.Scale(-1, a)

	if b != nil {
		if b, err = matrix.Solve(rn, b); err != nil {
			return nil, nil, err
		}
		b.Scale(-1, b)
	}

	return a, b, nil
}

// Hessians implements SecondOrder. Explicit updates are differentiated
// symbolically on first use; implicit steps fall back to finite differences.
func (s *Symbolic) Hessians(x, u mat.Vector) (*Hessians, error) {
	xs, us, p, err := s.point(x, u)
	if err != nil {
		return nil, err
	}

	if s.implicit != nil {
		n, err := NewNumeric(s.implicit, s.dt)
		if err != nil {
			return nil, err
		}
		return n.Hessians(vec(xs), vec(us))
	}

	s.hess.once.Do(func() {
		s.hess.fns = make([]*symbolic.Function, len(s.update))
		for i, e := range s.update {
			h, err := s.diff.Hessian(e, s.z)
			if err != nil {
				s.hess.err = control.Symbolic(err)
				return
			}
			if s.hess.fns[i], err = symbolic.Compile(h, s.vars, s.reg); err != nil {
				s.hess.err = control.Symbolic(err)
				return
			}
		}
	})
	if s.hess.err != nil {
		return nil, s.hess.err
	}

	full := make([]*mat.Dense, len(s.hess.fns))
	for i, f := range s.hess.fns {
		if full[i], err = f.WithRegistry(s.reg).Eval(p); err != nil {
			return nil, fmt.Errorf("%w: %w", control.ErrEvaluation, err)
		}
	}

	return newHessians(full, s.nx, s.nu), nil
}

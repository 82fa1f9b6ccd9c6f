package linearize

import (
	"fmt"

	control "github.com/milosgajdos/go-control"
	"github.com/milosgajdos/go-control/discretizer"
	"github.com/milosgajdos/go-control/matrix"
	"github.com/milosgajdos/go-control/symbolic"
	"gonum.org/v1/gonum/diff/fd"
	"gonum.org/v1/gonum/mat"
)

// Numeric linearizes any discretizer with central finite differences.
type Numeric struct {
	disc control.Discretizer
	dt   float64
	nx   int
	nu   int
}

// modeler is implemented by discretizers that expose their model
type modeler interface {
	Model() control.Model
}

// NewNumeric creates new finite difference linearizer of d at time step dt.
// The state and input dimensions are taken from the discretized model.
func NewNumeric(d control.Discretizer, dt float64) (*Numeric, error) {
	if dt <= 0 {
		return nil, fmt.Errorf("%w: non-positive time step %g", control.ErrConfig, dt)
	}

	m, ok := d.(modeler)
	if !ok {
		return nil, fmt.Errorf("%w: %T does not expose its model", control.ErrUnexpected, d)
	}

	return &Numeric{
		disc: d,
		dt:   dt,
		nx:   m.Model().StateLayout().Len(),
		nu:   m.Model().InputLayout().Len(),
	}, nil
}

// Clone implements Cloner. Implicit discretizers get their own registry.
func (n *Numeric) Clone() Linearizer {
	c := *n
	if d, ok := n.disc.(*discretizer.Implicit); ok {
		c.disc = d.WithRegistry(d.Registry().Clone())
	}
	return &c
}

// step evaluates the discrete step over z = [x; u].
func (n *Numeric) step(z []float64) ([]float64, error) {
	x := mat.NewVecDense(n.nx, append([]float64(nil), z[:n.nx]...))
	next, err := n.disc.Step(x, vec(append([]float64(nil), z[n.nx:]...)), n.dt)
	if err != nil {
		return nil, err
	}
	return next.RawVector().Data, nil
}

func (n *Numeric) origin(x, u mat.Vector) ([]float64, error) {
	if x == nil {
		return nil, fmt.Errorf("%w: nil state", control.ErrConfig)
	}
	xs, err := values(x, n.nx)
	if err != nil {
		return nil, err
	}
	us, err := values(u, n.nu)
	if err != nil {
		return nil, err
	}
	return append(xs, us...), nil
}

// Jacobians implements Linearizer.
func (n *Numeric) Jacobians(x, u mat.Vector) (*mat.Dense, *mat.Dense, error) {
	z, err := n.origin(x, u)
	if err != nil {
		return nil, nil, err
	}

	var stepErr error
	jac := mat.NewDense(n.nx, len(z), nil)
	fd.Jacobian(jac, func(y, z []float64) {
		if stepErr != nil {
			return
		}
		next, err := n.step(z)
		if err != nil {
			stepErr = err
			return
		}
		copy(y, next)
	}, z, &fd.JacobianSettings{
		Formula: fd.Central,
	})
	if stepErr != nil {
		return nil, nil, stepErr
	}

	a := matrix.Block(jac, 0, 0, n.nx, n.nx)
	if n.nu == 0 {
		return a, nil, nil
	}

	return a, matrix.Block(jac, 0, n.nx, n.nx, n.nu), nil
}

// Hessians implements SecondOrder.
func (n *Numeric) Hessians(x, u mat.Vector) (*Hessians, error) {
	z, err := n.origin(x, u)
	if err != nil {
		return nil, err
	}

	full := make([]*mat.Dense, n.nx)
	for i := range full {
		var stepErr error
		h := mat.NewSymDense(len(z), nil)
		fd.Hessian(h, func(z []float64) float64 {
			if stepErr != nil {
				return 0
			}
			next, err := n.step(z)
			if err != nil {
				stepErr = err
				return 0
			}
			return next[i]
		}, z, &fd.Settings{
			Formula: fd.Central,
		})
		if stepErr != nil {
			return nil, stepErr
		}
		full[i] = mat.DenseCopyOf(h)
	}

	return newHessians(full, n.nx, n.nu), nil
}

var (
	rk4Nodes   = []float64{0, 0.5, 0.5, 1}
	rk4Weights = []float64{1.0 / 6, 2.0 / 6, 2.0 / 6, 1.0 / 6}
)

// RK4Numeric linearizes the classical RK4 step by composing the continuous
// Jacobians of the model across the four stages:
//
//	dk1/dx = A(x1)                        dk1/du = B(x1)
//	dki/dx = A(xi)(I + ci*dt*dk(i-1)/dx)  dki/du = A(xi)ci*dt*dk(i-1)/du + B(xi)
//
// where xi = x + ci*dt*k(i-1). The continuous Jacobians take [x, u].
type RK4Numeric struct {
	model control.Model
	dfdx  control.MatrixFunc
	dfdu  control.MatrixFunc
	dt    float64
	nx    int
	nu    int
}

// NewRK4Numeric creates new RK4 chain rule linearizer of model m.
// dfdx and dfdu are the continuous Jacobians of m. dfdu may be nil for
// models without inputs.
func NewRK4Numeric(m control.Model, dfdx, dfdu control.MatrixFunc, dt float64) (*RK4Numeric, error) {
	if dt <= 0 {
		return nil, fmt.Errorf("%w: non-positive time step %g", control.ErrConfig, dt)
	}

	nu := m.InputLayout().Len()
	if dfdx == nil || (nu > 0 && dfdu == nil) {
		return nil, fmt.Errorf("%w: missing continuous Jacobians", control.ErrIncompleteConfiguration)
	}

	return &RK4Numeric{
		model: m,
		dfdx:  dfdx,
		dfdu:  dfdu,
		dt:    dt,
		nx:    m.StateLayout().Len(),
		nu:    nu,
	}, nil
}

// Jacobians implements Linearizer.
func (r *RK4Numeric) Jacobians(x, u mat.Vector) (*mat.Dense, *mat.Dense, error) {
	if x == nil {
		return nil, nil, fmt.Errorf("%w: nil state", control.ErrConfig)
	}
	xs, err := values(x, r.nx)
	if err != nil {
		return nil, nil, err
	}
	us, err := values(u, r.nu)
	if err != nil {
		return nil, nil, err
	}
	uv := vec(us)

	a := matrix.Identity(r.nx, 1)
	var b *mat.Dense
	if r.nu > 0 {
		b = mat.NewDense(r.nx, r.nu, nil)
	}

	var (
		k        *mat.VecDense
		dkx, dku *mat.Dense
	)

	for i, c := range rk4Nodes {
		xi := mat.NewVecDense(r.nx, append([]float64(nil), xs...))
		if i > 0 {
			xi.AddScaledVec(xi, c*r.dt, k)
		}

		p := append(append([]float64(nil), xi.RawVector().Data...), us...)

		ac, err := r.dfdx.Eval(p)
		if err != nil {
			return nil, nil, err
		}

		nextX := new(mat.Dense)
		if i == 0 {
			nextX.CloneFrom(ac)
		} else {
			// A(xi)(I + c*dt*dkx)
			inner := matrix.Identity(r.nx, 1)
			inner.Add(inner, scaled(c*r.dt, dkx))
			nextX.Mul(ac, inner)
		}

		var nextU *mat.Dense
		if r.nu > 0 {
			bc, err := r.dfdu.Eval(p)
			if err != nil {
				return nil, nil, err
			}
			nextU = new(mat.Dense)
			if i == 0 {
				nextU.CloneFrom(bc)
			} else {
				nextU.Mul(ac, scaled(c*r.dt, dku))
				nextU.Add(nextU, bc)
			}
			b.Add(b, scaled(r.dt*rk4Weights[i], nextU))
		}

		a.Add(a, scaled(r.dt*rk4Weights[i], nextX))

		if k, err = r.model.Dynamics(xi, uv); err != nil {
			return nil, nil, err
		}
		dkx, dku = nextX, nextU
	}

	return a, b, nil
}

func scaled(f float64, m mat.Matrix) *mat.Dense {
	var out mat.Dense
	out.Scale(f, m)
	return &out
}

// Continuous returns the continuous Jacobians df/dx and df/du of model m
// as finite difference functions of [x, u]. dfdu is nil for models without
// inputs.
func Continuous(m control.Model) (dfdx, dfdu *NumericFunc) {
	nx, nu := m.StateLayout().Len(), m.InputLayout().Len()

	jac := func(params []float64) (*mat.Dense, error) {
		if len(params) != nx+nu {
			return nil, fmt.Errorf("%w: want %d parameters, got %d", control.ErrConfig, nx+nu, len(params))
		}
		var dynErr error
		j := mat.NewDense(nx, nx+nu, nil)
		fd.Jacobian(j, func(y, z []float64) {
			if dynErr != nil {
				return
			}
			x := mat.NewVecDense(nx, append([]float64(nil), z[:nx]...))
			dx, err := m.Dynamics(x, vec(append([]float64(nil), z[nx:]...)))
			if err != nil {
				dynErr = err
				return
			}
			copy(y, dx.RawVector().Data)
		}, params, &fd.JacobianSettings{
			Formula: fd.Central,
		})
		return j, dynErr
	}

	dfdx = NewNumericFunc(nx, nx, func(params []float64) (*mat.Dense, error) {
		j, err := jac(params)
		if err != nil {
			return nil, err
		}
		return matrix.Block(j, 0, 0, nx, nx), nil
	})

	if nu == 0 {
		return dfdx, nil
	}

	dfdu = NewNumericFunc(nx, nu, func(params []float64) (*mat.Dense, error) {
		j, err := jac(params)
		if err != nil {
			return nil, err
		}
		return matrix.Block(j, 0, nx, nx, nu), nil
	})

	return dfdx, dfdu
}

// ContinuousSymbolic compiles the continuous Jacobians df/dx and df/du of
// model m as functions of [x, u]. The model is registered in reg; a nil reg
// gets a fresh registry. dfdu is nil for models without inputs.
func ContinuousSymbolic(m control.SymbolicModel, reg *symbolic.Registry) (dfdx, dfdu *symbolic.Function, err error) {
	if reg == nil {
		reg = symbolic.NewRegistry()
	}
	if err := m.Register(reg); err != nil {
		return nil, nil, err
	}

	xv, err := reg.Vector(symbolic.StateKey)
	if err != nil {
		return nil, nil, control.Symbolic(err)
	}
	uv, err := reg.Vector(symbolic.InputKey)
	if err != nil {
		return nil, nil, control.Symbolic(err)
	}

	f, err := m.DynamicsSymbolic(xv, uv, reg)
	if err != nil {
		return nil, nil, err
	}

	xs, err := names(xv)
	if err != nil {
		return nil, nil, err
	}
	us, err := names(uv)
	if err != nil {
		return nil, nil, err
	}
	vars := append(append([]string(nil), xs...), us...)

	if dfdx, err = symbolic.Compile(f.Jacobian(xs), vars, reg); err != nil {
		return nil, nil, control.Symbolic(err)
	}

	if len(us) == 0 {
		return dfdx, nil, nil
	}

	if dfdu, err = symbolic.Compile(f.Jacobian(us), vars, reg); err != nil {
		return nil, nil, control.Symbolic(err)
	}

	return dfdx, dfdu, nil
}

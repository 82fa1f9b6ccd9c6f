package linearize

import (
	"math"
	"os"
	"testing"

	control "github.com/milosgajdos/go-control"
	"github.com/milosgajdos/go-control/discretizer"
	"github.com/milosgajdos/go-control/model"
	"github.com/milosgajdos/go-control/solver"
	"github.com/stretchr/testify/assert"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/mat"
)

var (
	decay      *model.LTI
	integrator *model.LTI
	pendulum   *model.Pendulum
	ball       *model.BouncingBall
	tight      solver.Config
)

func setup() {
	var err error
	if decay, err = model.NewLTI(mat.NewDense(1, 1, []float64{-1}), mat.NewDense(1, 1, []float64{1})); err != nil {
		panic(err)
	}
	if integrator, err = model.NewLTI(mat.NewDense(2, 2, []float64{0, 1, 0, 0}), mat.NewDense(2, 1, []float64{0, 1})); err != nil {
		panic(err)
	}
	if pendulum, err = model.NewPendulum(1, 1, 0.1); err != nil {
		panic(err)
	}
	if ball, err = model.NewBouncingBall(1, 0); err != nil {
		panic(err)
	}
	tight = solver.DefaultConfig()
	tight.Tolerance = 1e-12
}

func TestMain(m *testing.M) {
	// set up tests
	setup()
	// run the tests
	retCode := m.Run()
	// call with result of m.Run()
	os.Exit(retCode)
}

// near reports whether a and b agree within tol relative to their magnitude
func near(a, b mat.Matrix, tol float64) bool {
	r, c := a.Dims()
	if rr, cc := b.Dims(); r != rr || c != cc {
		return false
	}
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			x, y := a.At(i, j), b.At(i, j)
			if math.Abs(x-y) > tol*math.Max(1, math.Abs(x)) {
				return false
			}
		}
	}
	return true
}

func TestNumericFunc(t *testing.T) {
	assert := assert.New(t)

	f := NewNumericFunc(2, 2, func(p []float64) (*mat.Dense, error) {
		return mat.NewDense(2, 2, []float64{p[0], 0, 0, p[0]}), nil
	})
	r, c := f.Dims()
	assert.Equal(2, r)
	assert.Equal(2, c)

	m, err := f.Eval([]float64{3})
	assert.NoError(err)
	assert.Equal(3.0, m.At(1, 1))

	bad := NewNumericFunc(3, 1, func(p []float64) (*mat.Dense, error) {
		return mat.NewDense(1, 1, nil), nil
	})
	_, err = bad.Eval(nil)
	assert.ErrorIs(err, control.ErrEvaluation)
}

func TestSymbolicExplicit(t *testing.T) {
	assert := assert.New(t)

	dt := 0.1
	d, err := discretizer.NewExplicit(discretizer.RK4, integrator, nil)
	assert.NoError(err)

	s, err := NewSymbolic(d, dt)
	assert.NoError(err)
	assert.Equal([]string{"x0", "x1", "u0", "dt"}, s.Vars())

	// RK4 is exact for the double integrator
	a, b, err := s.Jacobians(mat.NewVecDense(2, []float64{1, 2}), mat.NewVecDense(1, []float64{3}))
	assert.NoError(err)
	assert.InDeltaSlice([]float64{1, dt, 0, 1}, a.RawMatrix().Data, 1e-12)
	assert.InDeltaSlice([]float64{dt * dt / 2, dt}, b.RawMatrix().Data, 1e-12)

	// nil inputs are zero inputs
	_, _, err = s.Jacobians(mat.NewVecDense(2, nil), nil)
	assert.NoError(err)

	_, _, err = s.Jacobians(nil, nil)
	assert.ErrorIs(err, control.ErrConfig)

	_, _, err = s.Jacobians(mat.NewVecDense(3, nil), nil)
	assert.ErrorIs(err, control.ErrConfig)
}

func TestSymbolicErrors(t *testing.T) {
	assert := assert.New(t)

	d, err := discretizer.NewExplicit(discretizer.ForwardEuler, pendulum, nil)
	assert.NoError(err)

	_, err = NewSymbolic(d, 0)
	assert.ErrorIs(err, control.ErrConfig)

	_, err = NewSymbolic(d, 0.1, WithParams([]float64{1}))
	assert.ErrorIs(err, control.ErrConfig)

	z, err := discretizer.New(discretizer.ZeroOrderHold, integrator, nil, discretizer.WithDt(0.1))
	assert.NoError(err)
	_, err = NewSymbolic(z, 0.1)
	assert.ErrorIs(err, control.ErrUnexpected)

	c, err := discretizer.NewImplicit(discretizer.BackwardEuler, ball, nil)
	assert.NoError(err)
	_, err = NewSymbolic(c, 0.1)
	assert.ErrorIs(err, control.ErrUnexpected)
}

func TestSymbolicParams(t *testing.T) {
	assert := assert.New(t)

	dt := 0.05
	x := mat.NewVecDense(2, []float64{0.4, -0.3})
	u := mat.NewVecDense(1, []float64{0.2})

	heavy, err := model.NewPendulum(2, 0.5, 0.3)
	assert.NoError(err)

	for _, kind := range []discretizer.Kind{discretizer.MidPoint, discretizer.BackwardEuler} {
		d, err := discretizer.New(kind, pendulum, nil, discretizer.WithSolverConfig(tight))
		assert.NoError(err)
		s, err := NewSymbolic(d, dt, WithParams([]float64{2, 0.5, 0.3}))
		assert.NoError(err)
		assert.Equal([]float64{2, 0.5, 0.3}, s.Params())

		h, err := discretizer.New(kind, heavy, nil, discretizer.WithSolverConfig(tight))
		assert.NoError(err)
		exp, err := NewSymbolic(h, dt)
		assert.NoError(err)

		a, b, err := s.Jacobians(x, u)
		assert.NoError(err)
		ea, eb, err := exp.Jacobians(x, u)
		assert.NoError(err)

		assert.True(near(ea, a, 1e-9), kind.String())
		assert.True(near(eb, b, 1e-9), kind.String())
	}

	// the original discretizer keeps its own parameters
	d, err := discretizer.NewExplicit(discretizer.ForwardEuler, pendulum, nil)
	assert.NoError(err)
	_, err = NewSymbolic(d, dt, WithParams([]float64{5, 5, 5}))
	assert.NoError(err)
	v, err := d.Registry().Var("m")
	assert.NoError(err)
	assert.Equal(1.0, v)
}

func TestSymbolicImplicit(t *testing.T) {
	assert := assert.New(t)

	dt := 0.1

	d, err := discretizer.NewImplicit(discretizer.BackwardEuler, decay, nil, discretizer.WithSolverConfig(tight))
	assert.NoError(err)
	s, err := NewSymbolic(d, dt)
	assert.NoError(err)

	a, b, err := s.Jacobians(mat.NewVecDense(1, []float64{1}), mat.NewVecDense(1, []float64{0}))
	assert.NoError(err)
	assert.InDelta(1/(1+dt), a.At(0, 0), 1e-12)
	assert.InDelta(dt/(1+dt), b.At(0, 0), 1e-12)

	x := mat.NewVecDense(2, []float64{0.7, -0.4})
	u := mat.NewVecDense(1, []float64{0.3})

	for _, kind := range []discretizer.Kind{discretizer.BackwardEuler, discretizer.ImplicitMidpoint, discretizer.HermiteSimpson} {
		d, err := discretizer.NewImplicit(kind, pendulum, nil, discretizer.WithSolverConfig(tight))
		assert.NoError(err)

		s, err := NewSymbolic(d, dt)
		assert.NoError(err)
		n, err := NewNumeric(d, dt)
		assert.NoError(err)

		a, b, err := s.Jacobians(x, u)
		assert.NoError(err)
		na, nb, err := n.Jacobians(x, u)
		assert.NoError(err)

		assert.True(near(a, na, 1e-6), kind.String())
		assert.True(near(b, nb, 1e-6), kind.String())
	}
}

// samples is the number of random parameter, state and input draws
const samples = 200

func TestRK4Agreement(t *testing.T) {
	assert := assert.New(t)

	rnd := rand.New(rand.NewSource(42))
	dt := 0.05

	for run := 0; run < samples; run++ {
		p, err := model.NewPendulum(0.5+rnd.Float64(), 0.5+rnd.Float64(), rnd.Float64())
		assert.NoError(err)

		d, err := discretizer.NewExplicit(discretizer.RK4, p, nil)
		assert.NoError(err)

		s, err := NewSymbolic(d, dt)
		assert.NoError(err)

		dfdx, dfdu, err := ContinuousSymbolic(p, nil)
		assert.NoError(err)
		chain, err := NewRK4Numeric(p, dfdx, dfdu, dt)
		assert.NoError(err)

		ndfdx, ndfdu := Continuous(p)
		fdChain, err := NewRK4Numeric(p, ndfdx, ndfdu, dt)
		assert.NoError(err)

		n, err := NewNumeric(d, dt)
		assert.NoError(err)

		x := mat.NewVecDense(2, []float64{rnd.NormFloat64(), rnd.NormFloat64()})
		u := mat.NewVecDense(1, []float64{rnd.NormFloat64()})

		a, b, err := s.Jacobians(x, u)
		assert.NoError(err)

		for _, l := range []Linearizer{chain, fdChain, n} {
			la, lb, err := l.Jacobians(x, u)
			assert.NoError(err)
			assert.True(near(a, la, 1e-6), "%T A run %d", l, run)
			assert.True(near(b, lb, 1e-6), "%T B run %d", l, run)
		}
	}
}

func TestRK4DoublePendulum(t *testing.T) {
	assert := assert.New(t)

	rnd := rand.New(rand.NewSource(7))
	dt := 0.01

	for run := 0; run < samples; run++ {
		dp, err := model.NewDoublePendulum(0.5+rnd.Float64(), 0.5+rnd.Float64(), 0.5+rnd.Float64(), 0.5+rnd.Float64(), 0)
		assert.NoError(err)

		dfdx, dfdu, err := ContinuousSymbolic(dp, nil)
		assert.NoError(err)
		chain, err := NewRK4Numeric(dp, dfdx, dfdu, dt)
		assert.NoError(err)

		d, err := discretizer.NewExplicit(discretizer.RK4, dp, nil)
		assert.NoError(err)
		n, err := NewNumeric(d, dt)
		assert.NoError(err)

		x := mat.NewVecDense(4, []float64{rnd.NormFloat64(), rnd.NormFloat64(), rnd.NormFloat64(), rnd.NormFloat64()})
		u := mat.NewVecDense(2, []float64{rnd.NormFloat64(), rnd.NormFloat64()})

		a, b, err := chain.Jacobians(x, u)
		assert.NoError(err)
		na, nb, err := n.Jacobians(x, u)
		assert.NoError(err)

		assert.True(near(a, na, 1e-6), "A run %d", run)
		assert.True(near(b, nb, 1e-6), "B run %d", run)
	}

	_, err := NewRK4Numeric(pendulum, nil, nil, 0.1)
	assert.ErrorIs(err, control.ErrIncompleteConfiguration)

	_, err = NewRK4Numeric(pendulum, nil, nil, 0)
	assert.ErrorIs(err, control.ErrConfig)
}

func TestWithoutInputs(t *testing.T) {
	assert := assert.New(t)

	dt := 0.01
	dfdx, dfdu := Continuous(ball)
	assert.Nil(dfdu)

	r, err := NewRK4Numeric(ball, dfdx, nil, dt)
	assert.NoError(err)

	// free flight is linear in the state
	a, b, err := r.Jacobians(mat.NewVecDense(4, []float64{0, 10, 1, 0}), nil)
	assert.NoError(err)
	assert.Nil(b)
	exp := mat.NewDense(4, 4, []float64{
		1, 0, dt, 0,
		0, 1, 0, dt,
		0, 0, 1, 0,
		0, 0, 0, 1,
	})
	assert.True(near(exp, a, 1e-8))

	_, err = dfdx.Eval([]float64{1})
	assert.ErrorIs(err, control.ErrConfig)

	d, err := discretizer.NewImplicit(discretizer.BackwardEuler, ball, nil)
	assert.NoError(err)
	_, err = NewNumeric(d, -1)
	assert.ErrorIs(err, control.ErrConfig)
}

func TestHessians(t *testing.T) {
	assert := assert.New(t)

	dt := 0.1
	x := mat.NewVecDense(2, []float64{0.6, -0.2})
	u := mat.NewVecDense(1, []float64{0.5})

	d, err := discretizer.NewExplicit(discretizer.ForwardEuler, pendulum, nil)
	assert.NoError(err)
	s, err := NewSymbolic(d, dt)
	assert.NoError(err)

	h, err := s.Hessians(x, u)
	assert.NoError(err)
	assert.Len(h.XX, 2)

	// F_omega = omega + dt*((tau - b*omega)/(m*l^2) - g/l*sin(theta))
	g := model.Gravity
	assert.InDelta(dt*g*math.Sin(0.6), h.XX[1].At(0, 0), 1e-12)
	assert.InDelta(0.0, h.XX[0].At(0, 0), 1e-12)
	assert.InDelta(0.0, h.UU[1].At(0, 0), 1e-12)

	n, err := NewNumeric(d, dt)
	assert.NoError(err)
	nh, err := n.Hessians(x, u)
	assert.NoError(err)

	for i := range h.XX {
		assert.True(near(h.XX[i], nh.XX[i], 1e-4))
		assert.True(near(h.XU[i], nh.XU[i], 1e-4))
		assert.True(near(h.UX[i], nh.UX[i], 1e-4))
		assert.True(near(h.UU[i], nh.UU[i], 1e-4))
	}

	// implicit steps fall back to finite differences
	im, err := discretizer.NewImplicit(discretizer.BackwardEuler, pendulum, nil, discretizer.WithSolverConfig(tight))
	assert.NoError(err)
	si, err := NewSymbolic(im, dt)
	assert.NoError(err)
	ih, err := si.Hessians(x, u)
	assert.NoError(err)
	assert.Len(ih.UU, 2)
}

func TestLinearizeFull(t *testing.T) {
	assert := assert.New(t)

	dt := 0.05
	d, err := discretizer.NewImplicit(discretizer.BackwardEuler, pendulum, nil, discretizer.WithSolverConfig(tight))
	assert.NoError(err)
	s, err := NewSymbolic(d, dt)
	assert.NoError(err)

	steps := 12
	xs := []*mat.VecDense{mat.NewVecDense(2, []float64{1, 0})}
	us := make([]*mat.VecDense, steps)
	for k := 0; k < steps; k++ {
		us[k] = mat.NewVecDense(1, []float64{math.Sin(float64(k))})
		next, err := d.Step(xs[k], us[k], dt)
		assert.NoError(err)
		xs = append(xs, next)
	}

	as, bs, err := LinearizeFull(s, xs, us)
	assert.NoError(err)
	assert.Len(as, steps)
	assert.Len(bs, steps)

	for k := 0; k < steps; k++ {
		a, b, err := s.Jacobians(xs[k], us[k])
		assert.NoError(err)
		assert.True(near(a, as[k], 1e-9), "stage %d", k)
		assert.True(near(b, bs[k], 1e-9), "stage %d", k)
	}

	// stages are bounded by the shorter trajectory
	as, _, err = LinearizeFull(s, xs[:5], us)
	assert.NoError(err)
	assert.Len(as, 4)

	_, _, err = LinearizeFull(s, xs[:1], us)
	assert.ErrorIs(err, control.ErrConfig)

	var se *control.StepError
	bad := append([]*mat.VecDense{mat.NewVecDense(3, nil)}, xs[1:]...)
	_, _, err = LinearizeFull(s, bad, us)
	assert.ErrorAs(err, &se)
	assert.Equal(0, se.Step)
	assert.ErrorIs(err, control.ErrConfig)
}

func TestConstant(t *testing.T) {
	assert := assert.New(t)

	z, err := discretizer.NewZOH(integrator, 0.1, discretizer.DefaultZOHTerms, discretizer.DefaultZOHTolerance)
	assert.NoError(err)

	c := NewZOH(z)
	nx, nu := c.Dims()
	assert.Equal(2, nx)
	assert.Equal(1, nu)

	A, B, err := c.Jacobians(mat.NewVecDense(2, []float64{5, -3}), nil)
	assert.NoError(err)
	assert.InDeltaSlice([]float64{1, 0.1, 0, 1}, A.RawMatrix().Data, 1e-9)
	assert.InDeltaSlice([]float64{0.005, 0.1}, B.RawMatrix().Data, 1e-9)

	// the numeric linearization of the same step agrees
	num, err := NewNumeric(z, 0.1)
	assert.NoError(err)
	na, nb, err := num.Jacobians(mat.NewVecDense(2, nil), mat.NewVecDense(1, nil))
	assert.NoError(err)
	assert.True(mat.EqualApprox(A, na, 1e-6))
	assert.True(mat.EqualApprox(B, nb, 1e-6))

	h, err := c.Hessians(nil, nil)
	assert.NoError(err)
	assert.Len(h.XX, 2)
	assert.Equal(0.0, mat.Norm(h.UU[1], 1))

	_, _, err = c.Jacobians(mat.NewVecDense(3, nil), nil)
	assert.ErrorIs(err, control.ErrConfig)

	_, err = NewConstant(mat.NewDense(2, 3, nil), mat.NewDense(2, 1, nil))
	assert.ErrorIs(err, control.ErrConfig)
}

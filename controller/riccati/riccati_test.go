package riccati

import (
	"math"
	"os"
	"testing"

	control "github.com/milosgajdos/go-control"
	"github.com/milosgajdos/go-control/controller"
	"github.com/milosgajdos/go-control/discretizer"
	"github.com/milosgajdos/go-control/model"
	"github.com/milosgajdos/go-control/sim"
	"github.com/stretchr/testify/assert"
	"gonum.org/v1/gonum/mat"
)

var (
	plant   *sim.Sim
	weights controller.Weights
	opts    *controller.Options
)

func setup() {
	integrator, err := model.NewLTI(mat.NewDense(2, 2, []float64{0, 1, 0, 0}), mat.NewDense(2, 1, []float64{0, 1}))
	if err != nil {
		panic(err)
	}

	zoh, err := discretizer.NewZOH(integrator, 0.1, discretizer.DefaultZOHTerms, discretizer.DefaultZOHTolerance)
	if err != nil {
		panic(err)
	}

	if plant, err = sim.New(integrator, zoh); err != nil {
		panic(err)
	}

	weights = controller.Weights{
		Q:  mat.NewDense(2, 2, []float64{1, 0, 0, 1}),
		Qn: mat.NewDense(2, 2, []float64{10, 0, 0, 10}),
		R:  mat.NewDense(1, 1, []float64{0.1}),
	}

	opts = &controller.Options{
		Dt:        0.1,
		Horizon:   10,
		Reference: []*mat.VecDense{mat.NewVecDense(2, nil)},
	}
}

func TestMain(m *testing.M) {
	// set up tests
	setup()
	// run the tests
	retCode := m.Run()
	// call with result of m.Run()
	os.Exit(retCode)
}

func TestConfig(t *testing.T) {
	assert := assert.New(t)

	assert.NoError(DefaultConfig().Validate())

	c := DefaultConfig()
	c.MaxIter = 0
	assert.ErrorIs(c.Validate(), control.ErrConfig)

	c = DefaultConfig()
	c.Tol = 0
	assert.ErrorIs(c.Validate(), control.ErrConfig)
}

func TestNew(t *testing.T) {
	assert := assert.New(t)

	l, err := New(plant, weights, opts, DefaultConfig())
	assert.NotNil(l)
	assert.NoError(err)

	a, b := l.Matrices()
	assert.InDelta(0.1, a.At(0, 1), 1e-9)
	assert.InDelta(0.005, b.At(0, 0), 1e-9)

	bad := weights
	bad.R = mat.NewDense(2, 2, []float64{1, 0, 0, 1})
	l, err = New(plant, bad, opts, DefaultConfig())
	assert.Nil(l)
	assert.ErrorIs(err, control.ErrConfig)

	cfg := DefaultConfig()
	cfg.Tol = -1
	_, err = New(plant, weights, opts, cfg)
	assert.ErrorIs(err, control.ErrConfig)

	_, err = New(nil, weights, opts, DefaultConfig())
	assert.ErrorIs(err, control.ErrConfig)
}

func TestSolve(t *testing.T) {
	assert := assert.New(t)

	l, err := New(plant, weights, opts, DefaultConfig())
	assert.NoError(err)

	x0 := mat.NewVecDense(2, []float64{1, 0})
	traj, err := l.Solve(x0)
	assert.NoError(err)
	assert.NoError(traj.Validate())
	assert.Len(traj.States, 101)
	assert.Len(l.Gains(), 100)

	final := traj.States[100]
	assert.InDelta(0.0, final.AtVec(0), 1e-3)
	assert.InDelta(0.0, final.AtVec(1), 1e-3)

	// replaying the inputs reproduces the trajectory
	xs, err := l.Rollout(x0)
	assert.NoError(err)
	for k := range xs {
		assert.True(mat.EqualApprox(xs[k], traj.States[k], 1e-12))
	}
	assert.Len(l.InputTrajectory(), 100)

	_, err = l.Solve(mat.NewVecDense(3, nil))
	assert.ErrorIs(err, control.ErrConfig)
}

func TestSteadyState(t *testing.T) {
	assert := assert.New(t)

	long := opts.Clone()
	long.Horizon = 30

	l, err := New(plant, weights, long, DefaultConfig())
	assert.NoError(err)
	assert.NoError(l.ComputeGains())

	cfg := Config{SteadyState: true, MaxIter: 1000, Tol: 1e-10}
	ss, err := New(plant, weights, long, cfg)
	assert.NoError(err)
	assert.NoError(ss.ComputeGains())

	// the first finite-horizon gain converges to the steady-state gain
	assert.True(mat.EqualApprox(l.Gains()[0], ss.Gains()[0], 1e-6))
	assert.True(mat.Equal(ss.Gains()[0], ss.Gains()[200]))

	a, b := ss.Matrices()
	k, p, err := SteadyState(a, b, matSym(weights.Q), matSym(weights.R), 1000, 1e-10)
	assert.NoError(err)
	assert.True(mat.EqualApprox(k, ss.Gains()[0], 1e-12))

	// the steady-state P is a fixed point of the recursion
	kk, ps, err := Backward(a, b, matSym(weights.Q), p, matSym(weights.R), 2)
	assert.NoError(err)
	assert.True(mat.EqualApprox(ps[0], p, 1e-8))
	assert.True(mat.EqualApprox(kk[0], k, 1e-8))

	_, _, err = SteadyState(a, b, matSym(weights.Q), matSym(weights.R), 1, 1e-10)
	assert.ErrorIs(err, control.ErrEvaluation)

	_, _, err = Backward(a, b, matSym(weights.Q), p, matSym(weights.R), 1)
	assert.ErrorIs(err, control.ErrConfig)
}

func TestInputLimits(t *testing.T) {
	assert := assert.New(t)

	o := opts.Clone()
	limits, err := controller.NewUniformBox(1, -0.5, 0.5)
	assert.NoError(err)
	o.InputLimits = limits

	l, err := New(plant, weights, o, DefaultConfig())
	assert.NoError(err)

	traj, err := l.Solve(mat.NewVecDense(2, []float64{3, 0}))
	assert.NoError(err)

	saturated := false
	for _, u := range traj.Inputs {
		assert.True(limits.Contains(u, 1e-12))
		if math.Abs(u.AtVec(0)) == 0.5 {
			saturated = true
		}
	}
	assert.True(saturated)
}

func TestNoise(t *testing.T) {
	assert := assert.New(t)

	o := opts.Clone()
	o.Noise = controller.Noise{Std0: 0.1, Std: 0.01, Seed: 7}

	l, err := New(plant, weights, o, DefaultConfig())
	assert.NoError(err)

	x0 := mat.NewVecDense(2, []float64{1, 0})
	t1, err := l.Solve(x0)
	assert.NoError(err)
	t2, err := l.Solve(x0)
	assert.NoError(err)

	// seeded noise repeats and perturbs the initial state
	assert.True(mat.Equal(t1.States[50], t2.States[50]))
	assert.False(mat.Equal(t1.States[0], x0))
}

func TestPendulum(t *testing.T) {
	assert := assert.New(t)

	pendulum, err := model.NewPendulum(1, 1, 0.1)
	assert.NoError(err)

	rk4, err := discretizer.New(discretizer.RK4, pendulum, nil)
	assert.NoError(err)

	p, err := sim.New(pendulum, rk4)
	assert.NoError(err)

	up := mat.NewVecDense(2, []float64{math.Pi, 0})
	o := &controller.Options{
		Dt:        0.01,
		Horizon:   5,
		Reference: []*mat.VecDense{up},
	}

	w := controller.Weights{
		Q:  mat.NewDense(2, 2, []float64{10, 0, 0, 1}),
		Qn: mat.NewDense(2, 2, []float64{100, 0, 0, 10}),
		R:  mat.NewDense(1, 1, []float64{0.1}),
	}

	l, err := New(p, w, o, Config{SteadyState: true, MaxIter: 5000, Tol: 1e-6})
	assert.NoError(err)

	// balance the pendulum upright from a small offset
	traj, err := l.Solve(mat.NewVecDense(2, []float64{math.Pi - 0.2, 0}))
	assert.NoError(err)
	final := traj.States[len(traj.States)-1]
	assert.InDelta(math.Pi, final.AtVec(0), 1e-2)
	assert.InDelta(0.0, final.AtVec(1), 1e-2)
}

func matSym(m mat.Matrix) *mat.SymDense {
	r, _ := m.Dims()
	s := mat.NewSymDense(r, nil)
	for i := 0; i < r; i++ {
		for j := i; j < r; j++ {
			s.SetSym(i, j, m.At(i, j))
		}
	}
	return s
}

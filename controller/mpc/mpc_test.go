package mpc

import (
	"os"
	"testing"

	control "github.com/milosgajdos/go-control"
	"github.com/milosgajdos/go-control/controller"
	"github.com/milosgajdos/go-control/controller/riccati"
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
	tight   Config
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
		Horizon:   5,
		Reference: []*mat.VecDense{mat.NewVecDense(2, nil)},
	}

	tight = DefaultConfig()
	tight.QP.Settings.EpsAbs = 1e-8
	tight.QP.Settings.EpsRel = 1e-8
	tight.QP.Settings.MaxIter = 20000
	tight.Riccati = riccati.Config{SteadyState: true, MaxIter: 1000, Tol: 1e-10}
}

func TestMain(m *testing.M) {
	// set up tests
	setup()
	// run the tests
	retCode := m.Run()
	// call with result of m.Run()
	os.Exit(retCode)
}

func TestNew(t *testing.T) {
	assert := assert.New(t)

	c, err := New(plant, weights, opts, DefaultConfig())
	assert.NotNil(c)
	assert.NoError(err)
	assert.Equal(10.0, c.TerminalWeight().At(0, 0))

	testCases := []float64{0.01, 5, 10}
	for _, h := range testCases {
		cfg := DefaultConfig()
		cfg.Horizon = h
		c, err := New(plant, weights, opts, cfg)
		assert.Nil(c)
		assert.ErrorIs(err, control.ErrConfig)
	}

	cfg := DefaultConfig()
	cfg.SteadyStateTerminal = true
	cfg.Riccati.MaxIter = 1
	_, err = New(plant, weights, opts, cfg)
	assert.ErrorIs(err, control.ErrEvaluation)
}

func TestRegulation(t *testing.T) {
	assert := assert.New(t)

	c, err := New(plant, weights, opts, tight)
	assert.NoError(err)

	x0 := mat.NewVecDense(2, []float64{1, 0})
	traj, err := c.Solve(x0)
	assert.NoError(err)
	assert.NoError(traj.Validate())
	assert.Len(traj.States, 51)

	final := traj.States[50]
	assert.InDelta(0.0, final.AtVec(0), 1e-2)
	assert.InDelta(0.0, final.AtVec(1), 1e-2)

	xs, err := c.Rollout(x0)
	assert.NoError(err)
	assert.True(mat.EqualApprox(xs[50], final, 1e-12))
}

func TestSteadyStateTerminal(t *testing.T) {
	assert := assert.New(t)

	cfg := tight
	cfg.SteadyStateTerminal = true

	c, err := New(plant, weights, opts, cfg)
	assert.NoError(err)

	x0 := mat.NewVecDense(2, []float64{1, 0})
	got, err := c.Solve(x0)
	assert.NoError(err)

	// with the infinite-horizon cost-to-go as terminal weight the receding
	// horizon policy is the steady-state LQR policy
	lqr, err := riccati.New(plant, weights, opts, cfg.Riccati)
	assert.NoError(err)
	want, err := lqr.Solve(x0)
	assert.NoError(err)

	for k := range want.Inputs {
		assert.InDelta(want.Inputs[k].AtVec(0), got.Inputs[k].AtVec(0), 1e-3)
	}
}

func TestInputLimits(t *testing.T) {
	assert := assert.New(t)

	o := opts.Clone()
	limits, err := controller.NewUniformBox(1, -0.5, 0.5)
	assert.NoError(err)
	o.InputLimits = limits

	c, err := New(plant, weights, o, DefaultConfig())
	assert.NoError(err)

	traj, err := c.Solve(mat.NewVecDense(2, []float64{2, 0}))
	assert.NoError(err)
	for _, u := range traj.Inputs {
		assert.True(limits.Contains(u, 0))
	}
}

func TestTracking(t *testing.T) {
	assert := assert.New(t)

	// step the position reference from 0 to 1 halfway
	o := opts.Clone()
	o.Reference = make([]*mat.VecDense, o.Steps())
	for k := range o.Reference {
		r := 0.0
		if k >= 25 {
			r = 1
		}
		o.Reference[k] = mat.NewVecDense(2, []float64{r, 0})
	}

	c, err := New(plant, weights, o, tight)
	assert.NoError(err)

	traj, err := c.Solve(mat.NewVecDense(2, nil))
	assert.NoError(err)
	assert.InDelta(0.0, traj.States[10].AtVec(0), 0.1)
	assert.InDelta(1.0, traj.States[50].AtVec(0), 0.1)
}

func TestNoise(t *testing.T) {
	assert := assert.New(t)

	o := opts.Clone()
	o.Noise = controller.Noise{Std0: 0.05, Std: 0.005, Seed: 11}

	c, err := New(plant, weights, o, DefaultConfig())
	assert.NoError(err)

	x0 := mat.NewVecDense(2, []float64{1, 0})
	traj, err := c.Solve(x0)
	assert.NoError(err)
	assert.False(mat.Equal(x0, traj.States[0]))
	assert.InDelta(0.0, traj.States[50].AtVec(0), 0.1)
}

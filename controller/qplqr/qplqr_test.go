package qplqr

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
		Horizon:   2,
		Reference: []*mat.VecDense{mat.NewVecDense(2, nil)},
	}

	tight = DefaultConfig()
	tight.Settings.EpsAbs = 1e-8
	tight.Settings.EpsRel = 1e-8
	tight.Settings.MaxIter = 20000
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
	assert.Equal(20, c.Horizon())

	// zero-order hold dynamics have no affine term
	a, _, off := c.Matrices()
	assert.InDelta(0.1, a.At(0, 1), 1e-9)
	assert.InDelta(0.0, mat.Norm(off, 2), 1e-12)

	bad := DefaultConfig()
	con, err := controller.NewAffine(mat.NewDense(1, 3, nil), []float64{0}, []float64{1})
	assert.NoError(err)
	bad.StateConstraints = []*controller.Affine{con}
	_, err = New(plant, weights, opts, bad)
	assert.ErrorIs(err, control.ErrConfig)

	bad = DefaultConfig()
	bad.InputConstraints = []*controller.Affine{con}
	_, err = New(plant, weights, opts, bad)
	assert.ErrorIs(err, control.ErrConfig)

	bad = DefaultConfig()
	bad.Settings.Rho = 0
	_, err = New(plant, weights, opts, bad)
	assert.ErrorIs(err, control.ErrConfig)
}

func TestMatchesRiccati(t *testing.T) {
	assert := assert.New(t)

	x0 := mat.NewVecDense(2, []float64{1, 0})

	lqr, err := riccati.New(plant, weights, opts, riccati.DefaultConfig())
	assert.NoError(err)
	want, err := lqr.Solve(x0)
	assert.NoError(err)

	c, err := New(plant, weights, opts, tight)
	assert.NoError(err)
	got, err := c.Solve(x0)
	assert.NoError(err)
	assert.NoError(got.Validate())
	assert.Len(got.Inputs, len(want.Inputs))

	for k := range want.Inputs {
		assert.InDelta(want.Inputs[k].AtVec(0), got.Inputs[k].AtVec(0), 1e-3)
	}

	// predicted states follow the dynamics
	xs, us, err := c.Predict()
	assert.NoError(err)
	assert.Len(xs, 20)
	for k := range xs {
		assert.True(mat.EqualApprox(xs[k], got.States[k+1], 1e-4))
		assert.InDelta(got.Inputs[k].AtVec(0), us[k].AtVec(0), 1e-5)
	}

	replay, err := c.Rollout(x0)
	assert.NoError(err)
	assert.True(mat.EqualApprox(replay[20], got.States[20], 1e-12))
}

func TestInputLimits(t *testing.T) {
	assert := assert.New(t)

	o := opts.Clone()
	limits, err := controller.NewUniformBox(1, -1, 1)
	assert.NoError(err)
	o.InputLimits = limits

	c, err := New(plant, weights, o, tight)
	assert.NoError(err)

	traj, err := c.Solve(mat.NewVecDense(2, []float64{2, 0}))
	assert.NoError(err)

	_, us, err := c.Predict()
	assert.NoError(err)
	for k, u := range us {
		assert.True(limits.Contains(u, 1e-5))
		assert.True(limits.Contains(traj.Inputs[k], 0))
	}
}

func TestStateConstraints(t *testing.T) {
	assert := assert.New(t)

	// velocity stays above -0.5
	con, err := controller.NewSingleBound(mat.NewDense(1, 2, []float64{0, 1}), []float64{-0.5}, false)
	assert.NoError(err)

	cfg := tight
	cfg.StateConstraints = []*controller.Affine{con}

	c, err := New(plant, weights, opts, cfg)
	assert.NoError(err)
	assert.NoError(c.UpdateInitialState(mat.NewVecDense(2, []float64{2, 0})))

	xs, _, err := c.Predict()
	assert.NoError(err)
	for _, x := range xs {
		assert.GreaterOrEqual(x.AtVec(1), -0.5-1e-5)
	}
}

func TestUpdateReference(t *testing.T) {
	assert := assert.New(t)

	c, err := New(plant, weights, opts, tight)
	assert.NoError(err)

	start := mat.NewVecDense(2, nil)
	assert.NoError(c.UpdateInitialState(start))

	// resting at the zero reference is optimal
	xs, _, err := c.Predict()
	assert.NoError(err)
	assert.InDelta(0.0, xs[len(xs)-1].AtVec(0), 1e-6)

	target := mat.NewVecDense(2, []float64{1, 0})
	assert.NoError(c.UpdateReference([]*mat.VecDense{target}))

	xs, us, err := c.Predict()
	assert.NoError(err)

	// the target is an equilibrium, so tracking it is LQR on e = x - target
	a, b, _ := c.Matrices()
	gains, _, err := riccati.Backward(a, b, c.cost.Q(), c.cost.Qn(), c.cost.R(), c.Horizon()+1)
	assert.NoError(err)

	e := mat.NewVecDense(2, nil)
	e.SubVec(start, target)
	for k, K := range gains {
		u := new(mat.VecDense)
		u.MulVec(K, e)
		u.ScaleVec(-1, u)
		assert.InDelta(u.AtVec(0), us[k].AtVec(0), 1e-3)

		var ae, bu mat.VecDense
		ae.MulVec(a, e)
		bu.MulVec(b, u)
		e.AddVec(&ae, &bu)

		x := mat.VecDenseCopyOf(e)
		x.AddVec(x, target)
		assert.True(mat.EqualApprox(x, xs[k], 1e-3))
	}

	// the finite horizon stops short of the target
	final := xs[len(xs)-1].AtVec(0)
	assert.Greater(final, 0.5)
	assert.Less(final, 1.0)

	traj, err := c.Solve(start)
	assert.NoError(err)
	assert.InDelta(final, traj.States[len(traj.States)-1].AtVec(0), 1e-3)

	assert.ErrorIs(c.UpdateReference([]*mat.VecDense{target, target}), control.ErrConfig)
	assert.ErrorIs(c.UpdateReference([]*mat.VecDense{mat.NewVecDense(3, nil)}), control.ErrConfig)
	assert.ErrorIs(c.UpdateInitialState(mat.NewVecDense(3, nil)), control.ErrConfig)
}

package kf

import (
	"os"
	"testing"

	control "github.com/milosgajdos/go-control"
	"github.com/milosgajdos/go-control/controller"
	"github.com/milosgajdos/go-control/controller/riccati"
	"github.com/milosgajdos/go-control/discretizer"
	"github.com/milosgajdos/go-control/kalman"
	"github.com/milosgajdos/go-control/model"
	"github.com/milosgajdos/go-control/noise"
	"github.com/milosgajdos/go-control/sim"
	"github.com/stretchr/testify/assert"
	"gonum.org/v1/gonum/mat"
)

var (
	a   *mat.Dense
	b   *mat.Dense
	out *sim.Output
	ic  *model.InitCond
	q   control.Noise
	r   control.Noise
)

func setup() {
	var err error

	a = mat.NewDense(1, 1, []float64{1})
	b = mat.NewDense(1, 1, []float64{1})

	if out, err = sim.NewOutput(mat.NewDense(1, 1, []float64{1}), nil); err != nil {
		panic(err)
	}

	if ic, err = model.NewInitCond(mat.NewVecDense(1, nil), mat.NewSymDense(1, []float64{1})); err != nil {
		panic(err)
	}

	if q, err = noise.NewSeededGaussian([]float64{0}, mat.NewSymDense(1, []float64{1}), 1); err != nil {
		panic(err)
	}

	if r, err = noise.NewSeededGaussian([]float64{0}, mat.NewSymDense(1, []float64{1}), 2); err != nil {
		panic(err)
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

func TestKFNew(t *testing.T) {
	assert := assert.New(t)

	f, err := New(a, b, out, ic, q, r)
	assert.NoError(err)
	assert.NotNil(f)

	f, err = New(a, nil, out, ic, nil, nil)
	assert.NoError(err)
	assert.NotNil(f)

	// None stands for exact dynamics of any dimension
	none, err := noise.NewNone()
	assert.NoError(err)
	f, err = New(a, b, out, ic, none, r)
	assert.NoError(err)
	assert.NotNil(f)

	cov, err := kalman.NoiseCov(none, 3)
	assert.NoError(err)
	assert.True(mat.Equal(mat.NewSymDense(3, nil), cov))

	two, err := noise.NewZero(2)
	assert.NoError(err)

	testCases := []struct {
		a   mat.Matrix
		b   mat.Matrix
		out *sim.Output
		q   control.Noise
		r   control.Noise
	}{
		{nil, b, out, q, r},
		{mat.NewDense(1, 2, nil), b, out, q, r},
		{a, mat.NewDense(2, 1, nil), out, q, r},
		{a, b, sim.FullState(2), q, r},
		{a, b, out, two, r},
		{a, b, out, q, two},
	}

	for _, tc := range testCases {
		f, err := New(tc.a, tc.b, tc.out, ic, tc.q, tc.r)
		assert.Nil(f)
		assert.ErrorIs(err, control.ErrConfig)
	}

	big, err := model.NewInitCond(mat.NewVecDense(2, nil), mat.NewSymDense(2, []float64{1, 0, 0, 1}))
	assert.NoError(err)
	f, err = New(a, b, out, big, q, r)
	assert.Nil(f)
	assert.ErrorIs(err, control.ErrConfig)
}

func TestKFPredictUpdate(t *testing.T) {
	assert := assert.New(t)

	f, err := New(a, b, out, ic, q, r)
	assert.NoError(err)

	x := mat.NewVecDense(1, []float64{0})
	u := mat.NewVecDense(1, []float64{1})

	pred, err := f.Predict(x, u)
	assert.NoError(err)
	assert.InDelta(1.0, pred.Val().AtVec(0), 1e-12)
	assert.InDelta(2.0, pred.Cov().At(0, 0), 1e-12)
	// prediction does not change the filter covariance
	assert.InDelta(1.0, f.Cov().At(0, 0), 1e-12)

	// S = 3, K = 2/3
	est, err := f.Update(pred.Val(), u, mat.NewVecDense(1, []float64{2}))
	assert.NoError(err)
	assert.InDelta(5.0/3.0, est.Val().AtVec(0), 1e-12)
	assert.InDelta(2.0/3.0, est.Cov().At(0, 0), 1e-12)
	assert.InDelta(2.0/3.0, f.Gain().At(0, 0), 1e-12)
	assert.InDelta(2.0/3.0, f.Cov().At(0, 0), 1e-12)

	_, err = f.Predict(mat.NewVecDense(2, nil), u)
	assert.ErrorIs(err, control.ErrConfig)
	_, err = f.Predict(x, mat.NewVecDense(2, nil))
	assert.ErrorIs(err, control.ErrConfig)
	_, err = f.Update(x, u, mat.NewVecDense(2, nil))
	assert.ErrorIs(err, control.ErrConfig)
}

func TestKFRun(t *testing.T) {
	assert := assert.New(t)

	f, err := New(a, b, out, ic, q, r)
	assert.NoError(err)

	est, err := f.Run(mat.NewVecDense(1, nil), mat.NewVecDense(1, []float64{1}), mat.NewVecDense(1, []float64{2}))
	assert.NoError(err)
	assert.InDelta(5.0/3.0, est.Val().AtVec(0), 1e-12)

	// the covariance converges to the steady state of P = (P + 1) - (P + 1)^2/(P + 2)
	for i := 0; i < 50; i++ {
		_, err = f.Run(est.Val(), nil, mat.NewVecDense(1, []float64{2}))
		assert.NoError(err)
	}
	assert.InDelta(0.6180339887, f.Cov().At(0, 0), 1e-6)
}

func TestKFSetCov(t *testing.T) {
	assert := assert.New(t)

	f, err := New(a, b, out, ic, q, r)
	assert.NoError(err)

	assert.NoError(f.SetCov(mat.NewSymDense(1, []float64{4})))
	assert.Equal(4.0, f.Cov().At(0, 0))

	assert.ErrorIs(f.SetCov(nil), control.ErrConfig)
	assert.ErrorIs(f.SetCov(mat.NewSymDense(2, nil)), control.ErrConfig)
}

func TestObserver(t *testing.T) {
	assert := assert.New(t)

	lti, err := model.NewLTI(mat.NewDense(2, 2, []float64{0, 1, 0, 0}), mat.NewDense(2, 1, []float64{0, 1}))
	assert.NoError(err)

	zoh, err := discretizer.NewZOH(lti, 0.1, discretizer.DefaultZOHTerms, discretizer.DefaultZOHTolerance)
	assert.NoError(err)

	// only the position is measured
	pos, err := sim.NewOutput(mat.NewDense(1, 2, []float64{1, 0}), nil)
	assert.NoError(err)

	meas, err := noise.NewSeededGaussian([]float64{0}, mat.NewSymDense(1, []float64{1e-4}), 3)
	assert.NoError(err)

	plant, err := sim.New(lti, zoh, sim.WithOutput(pos, meas))
	assert.NoError(err)

	opts := &controller.Options{
		Dt:        0.1,
		Horizon:   10,
		Reference: []*mat.VecDense{mat.NewVecDense(2, nil)},
	}
	w := controller.Weights{
		Q:  mat.NewDense(2, 2, []float64{1, 0, 0, 1}),
		Qn: mat.NewDense(2, 2, []float64{1, 0, 0, 1}),
		R:  mat.NewDense(1, 1, []float64{0.1}),
	}

	lqr, err := riccati.New(plant, w, opts, riccati.Config{SteadyState: true, MaxIter: 1000, Tol: 1e-9})
	assert.NoError(err)
	assert.NoError(lqr.ComputeGains())

	A, B := lqr.Matrices()
	start, err := model.NewInitCond(mat.NewVecDense(2, nil), mat.NewSymDense(2, []float64{1, 0, 0, 1}))
	assert.NoError(err)

	proc, err := noise.NewZero(2)
	assert.NoError(err)

	f, err := New(A, B, pos, start, proc, meas)
	assert.NoError(err)

	// the estimate starts at the origin while the plant does not
	x0 := mat.NewVecDense(2, []float64{1, 0})
	policy := kalman.Observer(f, start.State(), lqr.Policy())

	traj, err := plant.ClosedLoop(x0, policy, opts.Dt, opts.Steps())
	assert.NoError(err)

	final := traj.States[traj.Len()-1]
	assert.InDelta(0.0, final.AtVec(0), 0.05)
	assert.InDelta(0.0, final.AtVec(1), 0.05)
	assert.Less(f.Cov().At(1, 1), 1.0)
}

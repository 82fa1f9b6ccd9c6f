package cost

import (
	"os"
	"testing"

	control "github.com/milosgajdos/go-control"
	"github.com/stretchr/testify/assert"
	"gonum.org/v1/gonum/mat"
)

var (
	q   *mat.Dense
	qn  *mat.Dense
	r   *mat.Dense
	ref []*mat.VecDense
)

func setup() {
	q = mat.NewDense(2, 2, []float64{1, 0, 0, 2})
	qn = mat.NewDense(2, 2, []float64{10, 0, 0, 10})
	r = mat.NewDense(1, 1, []float64{0.5})
	ref = []*mat.VecDense{
		mat.NewVecDense(2, []float64{1, 0}),
		mat.NewVecDense(2, []float64{1, 1}),
		mat.NewVecDense(2, []float64{0, 1}),
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

func TestNewQuadratic(t *testing.T) {
	assert := assert.New(t)

	c, err := NewQuadratic(q, qn, r, ref)
	assert.NotNil(c)
	assert.NoError(err)

	nx, nu := c.Dims()
	assert.Equal(2, nx)
	assert.Equal(1, nu)
	assert.Equal(3, c.Len())
	assert.Equal(2.0, c.Q().At(1, 1))
	assert.Equal(10.0, c.Qn().At(0, 0))
	assert.Equal(0.5, c.R().At(0, 0))

	// returned weights are copies
	c.Q().SetSym(0, 0, 100)
	assert.Equal(1.0, c.Q().At(0, 0))

	testCases := []struct {
		q   mat.Matrix
		qn  mat.Matrix
		r   mat.Matrix
		ref []*mat.VecDense
	}{
		{mat.NewDense(2, 3, nil), qn, r, ref},
		{q, mat.NewDense(3, 3, nil), r, ref},
		{mat.NewDense(2, 2, []float64{1, 2, 0, 1}), qn, r, ref},
		{mat.NewDense(2, 2, []float64{-1, 0, 0, 1}), qn, r, ref},
		{q, qn, nil, ref},
		{q, qn, r, nil},
		{q, qn, r, []*mat.VecDense{mat.NewVecDense(3, nil)}},
	}

	for _, tc := range testCases {
		c, err := NewQuadratic(tc.q, tc.qn, tc.r, tc.ref)
		assert.Nil(c)
		assert.ErrorIs(err, control.ErrConfig)
	}
}

func TestStageCost(t *testing.T) {
	assert := assert.New(t)

	c, err := NewQuadratic(q, qn, r, ref)
	assert.NoError(err)

	x := mat.NewVecDense(2, []float64{2, 3})
	u := mat.NewVecDense(1, []float64{2})

	// dx = [1, 2]
	l, err := c.StageCost(1, x, u)
	assert.NoError(err)
	assert.InDelta(0.5*(1+8)+0.5*0.5*4, l, 1e-12)

	gx, gu, err := c.StageCostGradient(1, x, u)
	assert.NoError(err)
	assert.InDeltaSlice([]float64{1, 4}, gx.RawVector().Data, 1e-12)
	assert.InDeltaSlice([]float64{1}, gu.RawVector().Data, 1e-12)

	qxx, quu := c.StageCostHessian()
	assert.True(mat.Equal(qxx, c.Q()))
	assert.True(mat.Equal(quu, c.R()))

	// nil input is zero input
	l, err = c.StageCost(1, x, nil)
	assert.NoError(err)
	assert.InDelta(4.5, l, 1e-12)

	_, err = c.StageCost(3, x, u)
	assert.ErrorIs(err, control.ErrConfig)

	_, err = c.StageCost(0, mat.NewVecDense(3, nil), u)
	assert.ErrorIs(err, control.ErrConfig)

	_, _, err = c.StageCostGradient(0, x, mat.NewVecDense(2, nil))
	assert.ErrorIs(err, control.ErrConfig)
}

func TestTerminalCost(t *testing.T) {
	assert := assert.New(t)

	c, err := NewQuadratic(q, qn, r, ref)
	assert.NoError(err)

	x := mat.NewVecDense(2, []float64{1, 1})
	phi, err := c.TerminalCost(x)
	assert.NoError(err)
	assert.InDelta(5.0, phi, 1e-12)

	g, err := c.TerminalCostGradient(x)
	assert.NoError(err)
	assert.InDeltaSlice([]float64{10, 0}, g.RawVector().Data, 1e-12)
	assert.True(mat.Equal(c.TerminalCostHessian(), c.Qn()))

	_, err = c.TerminalCost(nil)
	assert.ErrorIs(err, control.ErrConfig)
}

func TestCost(t *testing.T) {
	assert := assert.New(t)

	c, err := NewQuadratic(q, qn, r, ref)
	assert.NoError(err)

	xs := []*mat.VecDense{
		mat.NewVecDense(2, []float64{1, 0}),
		mat.NewVecDense(2, []float64{1, 1}),
		mat.NewVecDense(2, []float64{0, 1}),
	}
	us := []*mat.VecDense{
		mat.NewVecDense(1, []float64{2}),
		mat.NewVecDense(1, []float64{-2}),
	}

	// states track the reference exactly
	j, err := c.Cost(xs, us)
	assert.NoError(err)
	assert.InDelta(2.0, j, 1e-12)

	_, err = c.Cost(xs, us[:1])
	assert.ErrorIs(err, control.ErrConfig)

	_, err = c.Cost(xs[:2], us[:1])
	assert.ErrorIs(err, control.ErrConfig)

	// a single reference entry is broadcast
	assert.NoError(c.SetReference([]*mat.VecDense{mat.NewVecDense(2, nil)}))
	j, err = c.Cost(xs[:2], us[:1])
	assert.NoError(err)
	assert.InDelta(0.5*1+0.5*0.5*4+0.5*20, j, 1e-12)

	var se *control.StepError
	_, err = c.Cost([]*mat.VecDense{mat.NewVecDense(3, nil), xs[1]}, us[:1])
	assert.ErrorAs(err, &se)
	assert.Equal(0, se.Step)
}

func TestUpdateWeights(t *testing.T) {
	assert := assert.New(t)

	c, err := NewQuadratic(q, qn, r, ref)
	assert.NoError(err)

	assert.NoError(c.UpdateQ(mat.NewDense(2, 2, []float64{3, 0, 0, 3})))
	assert.Equal(3.0, c.Q().At(0, 0))

	assert.NoError(c.UpdateR(mat.NewDense(1, 1, []float64{2})))
	assert.Equal(2.0, c.R().At(0, 0))

	assert.ErrorIs(c.UpdateQn(mat.NewDense(3, 3, nil)), control.ErrConfig)
	assert.ErrorIs(c.UpdateR(mat.NewDense(1, 1, []float64{-1})), control.ErrConfig)
	assert.ErrorIs(c.SetReference(nil), control.ErrConfig)
}

func TestTerminalMinControl(t *testing.T) {
	assert := assert.New(t)

	xf := mat.NewVecDense(2, []float64{1, 2})
	c, err := NewTerminalMinControl(qn, r, xf)
	assert.NoError(err)

	// stage cost only penalizes inputs
	l, err := c.StageCost(5, mat.NewVecDense(2, []float64{7, 7}), mat.NewVecDense(1, []float64{2}))
	assert.NoError(err)
	assert.InDelta(1.0, l, 1e-12)

	phi, err := c.TerminalCost(xf)
	assert.NoError(err)
	assert.InDelta(0.0, phi, 1e-12)

	_, err = NewTerminalMinControl(nil, r, xf)
	assert.ErrorIs(err, control.ErrConfig)
}

package state

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"gonum.org/v1/gonum/mat"
)

var pendulum *Layout

func setup() {
	pendulum = MustLayout([]string{"theta", "omega"}, 1)
}

func TestMain(m *testing.M) {
	// set up tests
	setup()
	// run the tests
	retCode := m.Run()
	// call with result of m.Run()
	os.Exit(retCode)
}

func TestNewLayout(t *testing.T) {
	assert := assert.New(t)

	for _, test := range []struct {
		names []string
		dimQ  int
		ok    bool
	}{
		{[]string{"x", "v"}, 1, true},
		{[]string{"x"}, 0, true},
		{[]string{"x", "v"}, 3, false},
		{[]string{"x", "v"}, -1, false},
		{[]string{"x", "x"}, 1, false},
		{[]string{""}, 0, false},
	} {
		l, err := NewLayout(test.names, test.dimQ)
		if test.ok {
			assert.NoError(err)
			assert.Equal(len(test.names), l.Len())
			assert.Equal(test.dimQ, l.DimQ())
			assert.Equal(len(test.names)-test.dimQ, l.DimV())
			continue
		}
		assert.ErrorIs(err, ErrInvalid)
		assert.Nil(l)
	}
}

func TestVectorOps(t *testing.T) {
	assert := assert.New(t)

	a, err := pendulum.New(1, 2)
	assert.NoError(err)
	b, err := pendulum.New(0.5, -1)
	assert.NoError(err)

	sum, err := a.Add(b)
	assert.NoError(err)
	assert.Equal([]float64{1.5, 1}, sum.Slice())

	diff, err := a.Sub(b)
	assert.NoError(err)
	assert.Equal([]float64{0.5, 3}, diff.Slice())

	assert.Equal([]float64{2, 4}, a.Scale(2).Slice())
	assert.Equal([]float64{1}, a.Q())
	assert.Equal([]float64{2}, a.V())

	assert.True(a.Equal(mat.NewVecDense(2, []float64{1, 2 + 1e-12}), 1e-9))
	assert.False(a.Equal(b, 1e-9))

	theta, err := a.Get("theta")
	assert.NoError(err)
	assert.Equal(1.0, theta)
	assert.NoError(a.Set("omega", 5))
	assert.Equal(5.0, a.AtVec(1))
	_, err = a.Get("nope")
	assert.ErrorIs(err, ErrInvalid)

	_, err = pendulum.New(1)
	assert.ErrorIs(err, ErrInvalid)

	// Vector is a mat.Vector
	dot := mat.Dot(a, b)
	assert.Equal(1*0.5+5*-1.0, dot)

	syms := pendulum.Symbols("next_")
	names, err := syms.Names()
	assert.NoError(err)
	assert.Equal([]string{"next_theta", "next_omega"}, names)
}

func TestTrajectory(t *testing.T) {
	assert := assert.New(t)

	xs := []*mat.VecDense{
		mat.NewVecDense(2, []float64{0, 0}),
		mat.NewVecDense(2, []float64{1, 0}),
	}
	us := []*mat.VecDense{mat.NewVecDense(1, []float64{1})}

	tr, err := NewTrajectory(xs, us)
	assert.NoError(err)
	assert.Equal(2, tr.Len())
	r, c := tr.StateMatrix().Dims()
	assert.Equal(2, r)
	assert.Equal(2, c)

	_, err = NewTrajectory(xs, nil)
	assert.ErrorIs(err, ErrInvalid)

	_, err = NewTrajectory(nil, nil)
	assert.ErrorIs(err, ErrInvalid)

	bad := []*mat.VecDense{xs[0], mat.NewVecDense(3, nil)}
	_, err = NewTrajectory(bad, us)
	assert.ErrorIs(err, ErrInvalid)
}

package noise

import (
	"os"
	"testing"

	control "github.com/milosgajdos/go-control"
	"github.com/stretchr/testify/assert"
	"gonum.org/v1/gonum/mat"
)

var (
	mean []float64
	cov  *mat.SymDense
)

func setup() {
	mean = []float64{2, 3}
	cov = mat.NewSymDense(2, []float64{1, 0.1, 0.1, 1})
}

func TestMain(m *testing.M) {
	// set up tests
	setup()
	// run the tests
	retCode := m.Run()
	// call with result of m.Run()
	os.Exit(retCode)
}

func TestGaussian(t *testing.T) {
	assert := assert.New(t)

	g, err := NewGaussian(mean, cov)
	assert.NotNil(g)
	assert.NoError(err)

	assert.EqualValues(mean, g.Mean())
	assert.True(mat.Equal(cov, g.Cov()))
	assert.Equal(2, g.Sample().Len())

	testCases := []struct {
		mean []float64
		cov  mat.Symmetric
	}{
		{mean: []float64{1}, cov: cov},
		{mean: mean, cov: nil},
		{mean: mean, cov: mat.NewSymDense(2, []float64{-1, 0, 0, 1})},
	}

	for _, tc := range testCases {
		g, err := NewGaussian(tc.mean, tc.cov)
		assert.Nil(g)
		assert.ErrorIs(err, control.ErrConfig)
	}
}

func TestGaussianSeeded(t *testing.T) {
	assert := assert.New(t)

	g, err := NewSeededGaussian(mean, cov, 42)
	assert.NoError(err)

	s1 := mat.VecDenseCopyOf(g.Sample())
	assert.NoError(g.Reset())
	s2 := mat.VecDenseCopyOf(g.Sample())
	assert.True(mat.Equal(s1, s2))

	// sample mean approaches the distribution mean
	sum := mat.NewVecDense(2, nil)
	n := 4000
	for i := 0; i < n; i++ {
		sum.AddVec(sum, g.Sample())
	}
	sum.ScaleVec(1/float64(n), sum)
	assert.InDeltaSlice(mean, sum.RawVector().Data, 0.1)
}

func TestGaussianString(t *testing.T) {
	assert := assert.New(t)

	str := `Gaussian{
Mean=[2 3]
Cov=⎡  1  0.1⎤
    ⎣0.1    1⎦
}`

	g, err := NewGaussian(mean, cov)
	assert.NoError(err)
	assert.Equal(str, g.String())
}

func TestNone(t *testing.T) {
	assert := assert.New(t)

	e, err := NewNone()
	assert.NotNil(e)
	assert.NoError(err)

	assert.True(e.Cov().(*mat.SymDense).IsEmpty())
	assert.Equal(0, len(e.Mean()))
	assert.Nil(e.Sample())
	assert.NoError(e.Reset())
	assert.Equal("None{}", e.String())

	z, err := NewZero(2)
	assert.NoError(err)

	testCases := []struct {
		n    control.Noise
		none bool
	}{
		{nil, true},
		{e, true},
		{z, false},
	}

	for _, tc := range testCases {
		assert.Equal(tc.none, IsNone(tc.n))
	}
}

func TestZero(t *testing.T) {
	assert := assert.New(t)

	e, err := NewZero(2)
	assert.NotNil(e)
	assert.NoError(err)

	assert.EqualValues([]float64{0, 0}, e.Mean())
	assert.True(mat.Equal(mat.NewSymDense(2, nil), e.Cov()))
	assert.True(mat.Equal(mat.NewVecDense(2, nil), e.Sample()))
	assert.NoError(e.Reset())

	str := `Zero{
Mean=[0 0]
Cov=⎡0  0⎤
    ⎣0  0⎦
}`
	assert.Equal(str, e.String())

	e, err = NewZero(-10)
	assert.Nil(e)
	assert.ErrorIs(err, control.ErrConfig)
}

func TestProcess(t *testing.T) {
	assert := assert.New(t)

	x := mat.NewVecDense(3, []float64{1, 2, 3})

	p, err := NewProcess(0, 0, 1)
	assert.NoError(err)
	assert.False(p.Enabled())
	assert.True(mat.Equal(x, p.Initial(x)))
	assert.True(mat.Equal(x, p.Step(x)))

	p, err = NewProcess(0, 0.5, 7)
	assert.NoError(err)
	assert.True(p.Enabled())
	std0, std := p.Std()
	assert.Equal(0.0, std0)
	assert.Equal(0.5, std)

	// only the per step source is active
	assert.True(mat.Equal(x, p.Initial(x)))
	s1 := p.Step(x)
	assert.False(mat.Equal(x, s1))

	// the input is never modified
	assert.Equal([]float64{1, 2, 3}, x.RawVector().Data)

	assert.NoError(p.Reset())
	assert.True(mat.Equal(s1, p.Step(x)))

	_, err = NewProcess(-1, 0, 0)
	assert.ErrorIs(err, control.ErrConfig)
}

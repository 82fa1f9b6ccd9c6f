package rand

import (
	"testing"

	control "github.com/milosgajdos/go-control"
	"github.com/stretchr/testify/assert"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

func TestWithCovN(t *testing.T) {
	assert := assert.New(t)

	data := []float64{1.0, 0.0, 0.0, 1.0}
	covTest := mat.NewSymDense(2, data)
	covR, _ := covTest.Dims()

	// n must be bigger than 1
	nTest := -3
	res, err := WithCovN(covTest, nTest, 1)
	assert.ErrorIs(err, control.ErrConfig)
	assert.Nil(res)

	nTest = 1
	res, err = WithCovN(covTest, nTest, 1)
	assert.NoError(err)
	assert.NotNil(res)

	// 2 samples
	nTest = 2
	res, err = WithCovN(covTest, nTest, 1)
	assert.NoError(err)
	assert.NotNil(res)
	r, c := res.Dims()
	assert.Equal(r, covR)
	assert.Equal(c, nTest)

	// same seed, same samples
	again, err := WithCovN(covTest, nTest, 1)
	assert.NoError(err)
	assert.True(mat.Equal(res, again))
}

func TestWithCovNStatistics(t *testing.T) {
	assert := assert.New(t)

	cov := mat.NewSymDense(2, []float64{4, 1, 1, 2})
	n := 20000

	res, err := WithCovN(cov, n, 42)
	assert.NoError(err)

	var est mat.SymDense
	stat.CovarianceMatrix(&est, res.T(), nil)
	assert.True(mat.EqualApprox(cov, &est, 0.15))
}

func TestStdNormal(t *testing.T) {
	assert := assert.New(t)

	s := StdNormal(10000, 0.5, rand.NewSource(7))
	assert.Len(s, 10000)
	assert.InDelta(0.0, stat.Mean(s, nil), 0.02)
	assert.InDelta(0.5, stat.StdDev(s, nil), 0.02)

	z := StdNormal(3, 0, rand.NewSource(7))
	assert.Equal([]float64{0, 0, 0}, z)
}

package estimate

import (
	"os"
	"testing"

	control "github.com/milosgajdos/go-control"
	"github.com/stretchr/testify/assert"
	"gonum.org/v1/gonum/mat"
)

var (
	val *mat.VecDense
	cov *mat.SymDense
)

func setup() {
	val = mat.NewVecDense(2, []float64{1, 2})
	cov = mat.NewSymDense(2, []float64{1, 0.5, 0.5, 2})
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

	e, err := New(val, cov)
	assert.NoError(err)
	assert.True(mat.Equal(val, e.Val()))
	assert.True(mat.Equal(cov, e.Cov()))

	// returned values are copies
	e.Val().SetVec(0, 100)
	e.Cov().SetSym(0, 0, 100)
	assert.Equal(1.0, e.Val().AtVec(0))
	assert.Equal(1.0, e.Cov().At(0, 0))

	e, err = New(val, nil)
	assert.NoError(err)
	assert.Equal(0.0, mat.Max(e.Cov()))

	testCases := []struct {
		val mat.Vector
		cov mat.Symmetric
	}{
		{nil, cov},
		{&mat.VecDense{}, nil},
		{val, mat.NewSymDense(3, nil)},
	}

	for _, tc := range testCases {
		e, err := New(tc.val, tc.cov)
		assert.Nil(e)
		assert.ErrorIs(err, control.ErrConfig)
	}
}

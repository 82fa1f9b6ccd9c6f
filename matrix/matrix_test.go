package matrix

import (
	"fmt"
	"math"
	"testing"

	control "github.com/milosgajdos/go-control"
	"github.com/stretchr/testify/assert"
	"gonum.org/v1/gonum/mat"
)

func TestRowSums(t *testing.T) {
	assert := assert.New(t)

	data := []float64{1.2, 3.4, 4.5, 6.7, 8.9, 10.0}
	rowSums := []float64{4.6, 11.2, 18.9}
	delta := 0.001

	m := mat.NewDense(3, 2, data)
	assert.InDeltaSlice(rowSums, RowSums(m), delta)
	// should panic
	assert.Panics(func() { RowSums(nil) })
}

func TestBlocks(t *testing.T) {
	assert := assert.New(t)

	dst := mat.NewDense(3, 3, nil)
	SetBlock(dst, 1, 1, Identity(2, 2))
	assert.Equal(2.0, dst.At(1, 1))
	assert.Equal(2.0, dst.At(2, 2))
	assert.Equal(0.0, dst.At(0, 0))

	b := Block(dst, 1, 1, 2, 2)
	assert.True(mat.Equal(b, Identity(2, 2)))

	k := Kron(Identity(2, 1), mat.NewDense(1, 2, []float64{1, -1}))
	r, c := k.Dims()
	assert.Equal(2, r)
	assert.Equal(4, c)
	assert.Equal([]float64{0, 0, 1, -1}, k.RawRowView(1))

	s, err := VStack(mat.NewDense(1, 2, []float64{1, 2}), nil, mat.NewDense(2, 2, []float64{3, 4, 5, 6}))
	assert.NoError(err)
	r, _ = s.Dims()
	assert.Equal(3, r)
	assert.Equal([]float64{5, 6}, s.RawRowView(2))

	_, err = VStack(mat.NewDense(1, 2, nil), mat.NewDense(1, 3, nil))
	assert.ErrorIs(err, control.ErrConfig)

	v := VStackVec(mat.NewVecDense(1, []float64{1}), nil, mat.NewVecDense(2, []float64{2, 3}))
	assert.Equal([]float64{1, 2, 3}, v.RawVector().Data)

	assert.Equal(6.0, AMax(mat.NewDense(2, 2, []float64{1, -6, 3, 2})))
}

func TestSolve(t *testing.T) {
	assert := assert.New(t)

	for _, test := range []struct {
		a   *mat.Dense
		b   *mat.VecDense
		exp []float64
	}{
		// SPD uses Cholesky
		{
			a:   mat.NewDense(2, 2, []float64{4, 1, 1, 3}),
			b:   mat.NewVecDense(2, []float64{1, 2}),
			exp: []float64{1.0 / 11, 7.0 / 11},
		},
		// non-symmetric uses LU
		{
			a:   mat.NewDense(2, 2, []float64{0, 1, 1, 0}),
			b:   mat.NewVecDense(2, []float64{2, 3}),
			exp: []float64{3, 2},
		},
		// symmetric indefinite falls back to LU
		{
			a:   mat.NewDense(2, 2, []float64{1, 2, 2, 1}),
			b:   mat.NewVecDense(2, []float64{3, 3}),
			exp: []float64{1, 1},
		},
	} {
		x, err := SolveVec(test.a, test.b)
		assert.NoError(err)
		assert.InDeltaSlice(test.exp, x.RawVector().Data, 1e-12)
	}

	_, err := SolveVec(mat.NewDense(2, 2, []float64{1, 1, 1, 1}), mat.NewVecDense(2, []float64{1, 2}))
	assert.ErrorIs(err, control.ErrEvaluation)

	_, err = SolveVec(mat.NewDense(2, 3, nil), mat.NewVecDense(2, nil))
	assert.ErrorIs(err, control.ErrConfig)
}

func TestExpSeries(t *testing.T) {
	assert := assert.New(t)

	// nilpotent: exp([[0,1],[0,0]]) = [[1,1],[0,1]]
	e := ExpSeries(mat.NewDense(2, 2, []float64{0, 1, 0, 0}), 50, 1e-12)
	assert.InDeltaSlice([]float64{1, 1, 0, 1}, e.RawMatrix().Data, 1e-12)

	// diagonal
	e = ExpSeries(mat.NewDense(2, 2, []float64{1, 0, 0, -2}), 50, 1e-14)
	assert.InDelta(math.E, e.At(0, 0), 1e-12)
	assert.InDelta(math.Exp(-2), e.At(1, 1), 1e-12)

	var ref mat.Dense
	a := mat.NewDense(2, 2, []float64{0.1, 0.3, -0.2, 0.05})
	ref.Exp(a)
	e = ExpSeries(a, 50, 1e-14)
	assert.True(mat.EqualApprox(&ref, e, 1e-12))
}

func TestClampSymmetric(t *testing.T) {
	assert := assert.New(t)

	v := mat.NewVecDense(3, []float64{-2, 0.5, 3})
	Clamp(v, mat.NewVecDense(3, []float64{-1, -1, -1}), mat.NewVecDense(3, []float64{1, 1, 1}))
	assert.Equal([]float64{-1, 0.5, 1}, v.RawVector().Data)

	assert.True(IsSymmetric(mat.NewDense(2, 2, []float64{1, 2, 2, 1}), 1e-12))
	assert.False(IsSymmetric(mat.NewDense(2, 2, []float64{1, 2, 3, 1}), 1e-12))
	assert.False(IsSymmetric(mat.NewDense(2, 3, nil), 1e-12))
	assert.True(IsPosDef(mat.NewDense(2, 2, []float64{2, 0, 0, 1})))
	assert.False(IsPosDef(mat.NewDense(2, 2, []float64{1, 2, 2, 1})))
}

func TestFormat(t *testing.T) {
	assert := assert.New(t)

	s := fmt.Sprintf("%v", Format(mat.NewDense(2, 2, []float64{1, 2, 3, 4})))
	assert.Contains(s, "1  2")
	assert.Contains(s, "3  4")
	assert.Contains(s, "\n")
}

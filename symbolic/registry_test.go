package symbolic

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRegistryVars(t *testing.T) {
	assert := assert.New(t)

	reg := NewRegistry()
	reg.InsertVar("m", 2)
	reg.InsertExpr("w", Product(NewVar("m"), Num(9.81)))

	v, err := reg.Var("m")
	assert.NoError(err)
	assert.Equal(2.0, v)

	w, err := reg.Var("w")
	assert.NoError(err)
	assert.InDelta(19.62, w, 1e-12)

	_, err = reg.Var("nope")
	assert.ErrorIs(err, ErrUnknownVar)

	_, err = reg.Expr("nope")
	assert.ErrorIs(err, ErrNotFound)
}

func TestRegistryVectors(t *testing.T) {
	assert := assert.New(t)

	reg := NewRegistry()
	state := NewVarVector("q", "v")
	reg.InsertVector(StateKey, state)

	assert.NoError(reg.InsertVectorValues(StateKey, []float64{1, 2}))
	vals, err := reg.VectorValues(StateKey)
	assert.NoError(err)
	assert.Equal([]float64{1, 2}, vals)

	err = reg.InsertVectorValues(StateKey, []float64{1})
	assert.ErrorIs(err, ErrDims)

	next, err := state.Next()
	assert.NoError(err)
	names, err := next.Names()
	assert.NoError(err)
	assert.Equal([]string{"next_q", "next_v"}, names)

	_, err = Vector{Sum(NewVar("a"), Num(1))}.Next()
	assert.ErrorIs(err, ErrNotVar)
}

func TestRegistryClone(t *testing.T) {
	assert := assert.New(t)

	reg := NewRegistry()
	reg.InsertVar("a", 1)
	c := reg.Clone()
	c.InsertVar("a", 5)

	a, _ := reg.Var("a")
	assert.Equal(1.0, a)
	a, _ = c.Var("a")
	assert.Equal(5.0, a)
}

func TestCompile(t *testing.T) {
	assert := assert.New(t)

	reg := NewRegistry()
	reg.InsertVar("k", 3)

	q, v := NewVar("q"), NewVar("v")
	vec := Vector{Product(NewVar("k"), q), Sum(q, v)}
	jac := vec.Jacobian([]string{"q", "v"})

	f, err := Compile(jac, []string{"q", "v"}, reg)
	assert.NoError(err)
	r, c := f.Dims()
	assert.Equal(2, r)
	assert.Equal(2, c)

	m, err := f.Eval([]float64{1, 1})
	assert.NoError(err)
	assert.Equal(3.0, m.At(0, 0))
	assert.Equal(0.0, m.At(0, 1))
	assert.Equal(1.0, m.At(1, 0))
	assert.Equal(1.0, m.At(1, 1))

	_, err = f.Eval([]float64{1})
	assert.ErrorIs(err, ErrDims)

	// without a registry every variable must be a parameter
	_, err = Compile(jac, []string{"q", "v"}, nil)
	assert.ErrorIs(err, ErrUnknownVar)

	fv, err := CompileVector(vec, []string{"q", "v", "k"}, nil)
	assert.NoError(err)
	out, err := fv.EvalVec([]float64{2, 1, 4})
	assert.NoError(err)
	assert.Equal(8.0, out.AtVec(0))
	assert.Equal(3.0, out.AtVec(1))

	g := Hessian(Product(q, q, v), []string{"q", "v"})
	fh, err := Compile(g, []string{"q", "v"}, nil)
	assert.NoError(err)
	h, err := fh.Eval([]float64{2, 3})
	assert.NoError(err)
	assert.Equal(6.0, h.At(0, 0))
	assert.Equal(4.0, h.At(0, 1))
	assert.Equal(4.0, h.At(1, 0))
	assert.Equal(0.0, h.At(1, 1))
}

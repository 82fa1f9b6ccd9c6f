package symbolic

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// ErrParamLen is returned when a compiled function receives a parameter
// vector of the wrong length.
var ErrParamLen = fmt.Errorf("%w: parameter vector length", ErrDims)

// Function is a matrix expression compiled against an ordered list of
// parameter names. Variables that are not parameters are resolved from
// the registry the function was compiled with.
type Function struct {
	m    *Matrix
	vars []string
	idx  map[string]int
	reg  *Registry
}

// Compile compiles m into a Function of the parameters vars.
// reg may be nil in which case every variable must be a parameter.
func Compile(m *Matrix, vars []string, reg *Registry) (*Function, error) {
	idx := make(map[string]int, len(vars))
	for i, v := range vars {
		if _, ok := idx[v]; ok {
			return nil, fmt.Errorf("symbolic: duplicate parameter %s", v)
		}
		idx[v] = i
	}
	if reg == nil {
		used := make(map[string]struct{})
		m.Vars(used)
		for v := range used {
			if _, ok := idx[v]; !ok {
				return nil, fmt.Errorf("%w: %s", ErrUnknownVar, v)
			}
		}
	}
	return &Function{m: m, vars: vars, idx: idx, reg: reg}, nil
}

// CompileVector compiles v into a column Function.
func CompileVector(v Vector, vars []string, reg *Registry) (*Function, error) {
	return Compile(ColumnMatrix(v), vars, reg)
}

// CompileScalar compiles e into a 1x1 Function.
func CompileScalar(e Expr, vars []string, reg *Registry) (*Function, error) {
	return Compile(ScalarMatrix(e), vars, reg)
}

// Params returns the parameter names in order.
func (f *Function) Params() []string { return f.vars }

// Dims returns the dimensions of the compiled matrix.
func (f *Function) Dims() (r, c int) { return f.m.Dims() }

// Expr returns the compiled expression matrix.
func (f *Function) Expr() *Matrix { return f.m }

// WithRegistry returns a copy of f resolving non-parameter variables from reg.
func (f *Function) WithRegistry(reg *Registry) *Function {
	return &Function{m: f.m, vars: f.vars, idx: f.idx, reg: reg}
}

// Eval evaluates the function at params.
func (f *Function) Eval(params []float64) (*mat.Dense, error) {
	r, c := f.m.Dims()
	out := mat.NewDense(r, c, nil)
	if err := f.EvalTo(out, params); err != nil {
		return nil, err
	}
	return out, nil
}

// EvalTo evaluates the function at params and stores the result in dst.
func (f *Function) EvalTo(dst *mat.Dense, params []float64) error {
	if len(params) != len(f.vars) {
		return fmt.Errorf("%w: want %d, got %d", ErrParamLen, len(f.vars), len(params))
	}
	env := &bindEnv{f: f, params: params}
	r, c := f.m.Dims()
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			v, err := f.m.At(i, j).Eval(env)
			if err != nil {
				return err
			}
			dst.Set(i, j, v)
		}
	}
	return nil
}

// EvalVec evaluates a column function at params.
func (f *Function) EvalVec(params []float64) (*mat.VecDense, error) {
	d, err := f.Eval(params)
	if err != nil {
		return nil, err
	}
	r, c := d.Dims()
	if c != 1 {
		return nil, fmt.Errorf("%w: %dx%d is not a column", ErrDims, r, c)
	}
	return mat.VecDenseCopyOf(d.ColView(0)), nil
}

// EvalScalar evaluates a 1x1 function at params.
func (f *Function) EvalScalar(params []float64) (float64, error) {
	d, err := f.Eval(params)
	if err != nil {
		return 0, err
	}
	return d.At(0, 0), nil
}

type bindEnv struct {
	f      *Function
	params []float64
}

func (b *bindEnv) Value(name string) (float64, bool) {
	if i, ok := b.f.idx[name]; ok {
		return b.params[i], true
	}
	if b.f.reg != nil {
		return b.f.reg.Value(name)
	}
	return 0, false
}

// MapEnv is an Env backed by a map.
type MapEnv map[string]float64

// Value implements Env.
func (m MapEnv) Value(name string) (float64, bool) {
	v, ok := m[name]
	return v, ok
}

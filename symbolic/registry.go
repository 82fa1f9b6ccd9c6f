package symbolic

import (
	"fmt"
	"sort"
)

// Well-known registry keys shared by models and discretizers.
const (
	StateKey              = "state"
	NextStateKey          = "next_state"
	StateQKey             = "state_q"
	StateVKey             = "state_v"
	NextStateQKey         = "next_state_q"
	NextStateVKey         = "next_state_v"
	InputKey              = "input"
	DtKey                 = "dt"
	MassMatrixKey         = "mass_matrix"
	ConstraintJacobianKey = "constraint_jacobian"
)

// Registry maps names to numeric values, named sub-expressions, vectors
// and matrices. It is the single source of truth for values bound to
// variables during evaluation.
//
// Registry is not safe for concurrent use. Concurrent solves must each use
// their own copy obtained with Clone.
type Registry struct {
	vars     map[string]float64
	exprs    map[string]Expr
	vectors  map[string]Vector
	matrices map[string]*Matrix
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		vars:     make(map[string]float64),
		exprs:    make(map[string]Expr),
		vectors:  make(map[string]Vector),
		matrices: make(map[string]*Matrix),
	}
}

// InsertVar binds value to the variable name.
func (r *Registry) InsertVar(name string, value float64) {
	r.vars[name] = value
}

// Value resolves name to a number. Named sub-expressions are evaluated
// against the registry itself. It implements Env.
func (r *Registry) Value(name string) (float64, bool) {
	if v, ok := r.vars[name]; ok {
		return v, true
	}
	if e, ok := r.exprs[name]; ok {
		v, err := e.Eval(r)
		if err != nil {
			return 0, false
		}
		return v, true
	}
	return 0, false
}

// Var returns the value bound to name.
func (r *Registry) Var(name string) (float64, error) {
	v, ok := r.Value(name)
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnknownVar, name)
	}
	return v, nil
}

// InsertExpr stores a named sub-expression.
func (r *Registry) InsertExpr(name string, e Expr) {
	r.exprs[name] = e
}

// Expr returns the named sub-expression.
func (r *Registry) Expr(name string) (Expr, error) {
	e, ok := r.exprs[name]
	if !ok {
		return nil, fmt.Errorf("%w: expression %s", ErrNotFound, name)
	}
	return e, nil
}

// InsertVector stores a named vector.
func (r *Registry) InsertVector(name string, v Vector) {
	r.vectors[name] = v
}

// Vector returns the named vector.
func (r *Registry) Vector(name string) (Vector, error) {
	v, ok := r.vectors[name]
	if !ok {
		return nil, fmt.Errorf("%w: vector %s", ErrNotFound, name)
	}
	return v, nil
}

// InsertVectorValues binds vals to the variable components of the named vector.
func (r *Registry) InsertVectorValues(name string, vals []float64) error {
	v, err := r.Vector(name)
	if err != nil {
		return err
	}
	if len(v) != len(vals) {
		return fmt.Errorf("%w: vector %s has %d components, got %d values", ErrDims, name, len(v), len(vals))
	}
	names, err := v.Names()
	if err != nil {
		return err
	}
	for i, n := range names {
		r.vars[n] = vals[i]
	}
	return nil
}

// VectorValues evaluates every component of the named vector.
func (r *Registry) VectorValues(name string) ([]float64, error) {
	v, err := r.Vector(name)
	if err != nil {
		return nil, err
	}
	out := make([]float64, len(v))
	for i, e := range v {
		if out[i], err = e.Eval(r); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// InsertMatrix stores a named matrix.
func (r *Registry) InsertMatrix(name string, m *Matrix) {
	r.matrices[name] = m
}

// Matrix returns the named matrix.
func (r *Registry) Matrix(name string) (*Matrix, error) {
	m, ok := r.matrices[name]
	if !ok {
		return nil, fmt.Errorf("%w: matrix %s", ErrNotFound, name)
	}
	return m, nil
}

// VarNames returns the sorted names of all bound variables.
func (r *Registry) VarNames() []string {
	names := make([]string, 0, len(r.vars))
	for n := range r.vars {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Clone returns a copy of the registry. Expressions are immutable and shared.
func (r *Registry) Clone() *Registry {
	c := NewRegistry()
	for k, v := range r.vars {
		c.vars[k] = v
	}
	for k, v := range r.exprs {
		c.exprs[k] = v
	}
	for k, v := range r.vectors {
		c.vectors[k] = v
	}
	for k, v := range r.matrices {
		c.matrices[k] = v
	}
	return c
}

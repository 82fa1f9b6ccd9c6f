package symbolic

import (
	"fmt"
	"strings"
)

// NextPrefix is prepended to variable names by Vector.Next.
const NextPrefix = "next_"

// Vector is a column vector of expressions.
type Vector []Expr

// NewVarVector returns a vector of variables with the given names.
func NewVarVector(names ...string) Vector {
	v := make(Vector, len(names))
	for i, n := range names {
		v[i] = NewVar(n)
	}
	return v
}

// ConstVector returns a vector of constants.
func ConstVector(vals ...float64) Vector {
	v := make(Vector, len(vals))
	for i, x := range vals {
		v[i] = Const(x)
	}
	return v
}

// Len returns the vector length.
func (v Vector) Len() int { return len(v) }

// Add returns v + o.
func (v Vector) Add(o Vector) (Vector, error) {
	if len(v) != len(o) {
		return nil, fmt.Errorf("%w: add %d and %d", ErrDims, len(v), len(o))
	}
	out := make(Vector, len(v))
	for i := range v {
		out[i] = Sum(v[i], o[i])
	}
	return out, nil
}

// Sub returns v - o.
func (v Vector) Sub(o Vector) (Vector, error) {
	if len(v) != len(o) {
		return nil, fmt.Errorf("%w: sub %d and %d", ErrDims, len(v), len(o))
	}
	out := make(Vector, len(v))
	for i := range v {
		out[i] = Subtract(v[i], o[i])
	}
	return out, nil
}

// Scale returns s * v.
func (v Vector) Scale(s Expr) Vector {
	out := make(Vector, len(v))
	for i := range v {
		out[i] = Product(s, v[i])
	}
	return out
}

// ScaleF returns f * v.
func (v Vector) ScaleF(f float64) Vector { return v.Scale(Const(f)) }

// Dot returns the inner product of v and o.
func (v Vector) Dot(o Vector) (Expr, error) {
	if len(v) != len(o) {
		return nil, fmt.Errorf("%w: dot %d and %d", ErrDims, len(v), len(o))
	}
	terms := make([]Expr, len(v))
	for i := range v {
		terms[i] = Product(v[i], o[i])
	}
	return Sum(terms...), nil
}

// Extend returns the concatenation of v and o.
func (v Vector) Extend(o Vector) Vector {
	out := make(Vector, 0, len(v)+len(o))
	out = append(out, v...)
	return append(out, o...)
}

// Slice returns the sub-vector v[from:to].
func (v Vector) Slice(from, to int) Vector {
	out := make(Vector, to-from)
	copy(out, v[from:to])
	return out
}

// Names returns the variable names of v.
// It fails if any component is not a variable.
func (v Vector) Names() ([]string, error) {
	names := make([]string, len(v))
	for i, e := range v {
		x, ok := e.(*Var)
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrNotVar, e)
		}
		names[i] = x.Name()
	}
	return names, nil
}

// Next returns a vector of variables named NextPrefix + name for each
// variable component of v.
func (v Vector) Next() (Vector, error) {
	names, err := v.Names()
	if err != nil {
		return nil, err
	}
	for i := range names {
		names[i] = NextPrefix + names[i]
	}
	return NewVarVector(names...), nil
}

// Subst simultaneously substitutes every variable in names with the
// matching expression in vals. Variables occurring in vals are not
// substituted again.
func (v Vector) Subst(names []string, vals Vector) (Vector, error) {
	if len(names) != len(vals) {
		return nil, fmt.Errorf("%w: subst %d names with %d values", ErrDims, len(names), len(vals))
	}
	out := make(Vector, len(v))
	for i, e := range v {
		out[i] = substAll(e, names, vals)
	}
	return out, nil
}

// substAll renames names to placeholders first so that a replacement is
// never rewritten by a later one.
func substAll(e Expr, names []string, vals Vector) Expr {
	for j, n := range names {
		e = e.Subst(n, NewVar(placeholder(j)))
	}
	for j := range names {
		e = e.Subst(placeholder(j), vals[j])
	}
	return e
}

func placeholder(j int) string {
	return fmt.Sprintf("\x00%d", j)
}

// Jacobian returns the matrix of partial derivatives d v_i / d vars_j.
func (v Vector) Jacobian(vars []string) *Matrix {
	m := NewMatrix(len(v), len(vars))
	for i, e := range v {
		for j, n := range vars {
			m.Set(i, j, e.Diff(n))
		}
	}
	return m
}

// Vars adds the names of all variables in v to set.
func (v Vector) Vars(set map[string]struct{}) {
	for _, e := range v {
		e.Vars(set)
	}
}

// String returns a bracketed list of component strings.
func (v Vector) String() string {
	parts := make([]string, len(v))
	for i, e := range v {
		parts[i] = e.String()
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

// Gradient returns the gradient of e with respect to vars.
func Gradient(e Expr, vars []string) Vector {
	g := make(Vector, len(vars))
	for i, n := range vars {
		g[i] = e.Diff(n)
	}
	return g
}

// Hessian returns the matrix of second derivatives of e with respect to vars.
func Hessian(e Expr, vars []string) *Matrix {
	return Gradient(e, vars).Jacobian(vars)
}

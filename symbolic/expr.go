// Package symbolic provides a small expression engine used to build residuals,
// objectives and constraint functions, differentiate them in closed form and
// compile the results into numeric functions of a flat parameter vector.
//
// Expressions are immutable trees. Constructors fold constants and drop
// algebraic identities but do not attempt canonical simplification.
package symbolic

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

var (
	// ErrUnknownVar is returned when a variable cannot be resolved during evaluation.
	ErrUnknownVar = errors.New("symbolic: unknown variable")
	// ErrNotFound is returned when a registry entry does not exist.
	ErrNotFound = errors.New("symbolic: registry entry not found")
	// ErrDims is returned on vector or matrix dimension mismatch.
	ErrDims = errors.New("symbolic: dimension mismatch")
	// ErrParse is returned when an expression string cannot be parsed.
	ErrParse = errors.New("symbolic: parse error")
	// ErrNotVar is returned when a vector component is expected to be a variable.
	ErrNotVar = errors.New("symbolic: component is not a variable")
)

// Env resolves variable values during evaluation.
type Env interface {
	// Value returns the value bound to name and true, or false if unbound.
	Value(name string) (float64, bool)
}

// Expr is a scalar symbolic expression.
type Expr interface {
	// Eval evaluates the expression with variables resolved from env.
	Eval(env Env) (float64, error)
	// Diff returns the partial derivative with respect to the variable name.
	Diff(name string) Expr
	// Subst replaces every occurrence of variable name with val.
	Subst(name string, val Expr) Expr
	// Vars adds the names of all variables in the expression to set.
	Vars(set map[string]struct{})
	// String returns a parseable representation of the expression.
	String() string
}

// Const is a numeric constant.
type Const float64

// Num returns a constant expression.
func Num(v float64) Expr { return Const(v) }

// Eval implements Expr.
func (c Const) Eval(Env) (float64, error) { return float64(c), nil }

// Diff implements Expr.
func (c Const) Diff(string) Expr { return Const(0) }

// Subst implements Expr.
func (c Const) Subst(string, Expr) Expr { return c }

// Vars implements Expr.
func (c Const) Vars(map[string]struct{}) {}

// String implements Expr.
func (c Const) String() string {
	s := strconv.FormatFloat(float64(c), 'g', -1, 64)
	if c < 0 {
		return "(" + s + ")"
	}
	return s
}

// Var is a named variable whose value lives in an Env.
type Var struct {
	name string
}

// NewVar returns a new variable with the given name.
func NewVar(name string) *Var { return &Var{name: name} }

// Name returns the variable name.
func (v *Var) Name() string { return v.name }

// Eval implements Expr.
func (v *Var) Eval(env Env) (float64, error) {
	if env == nil {
		return 0, fmt.Errorf("%w: %s", ErrUnknownVar, v.name)
	}
	val, ok := env.Value(v.name)
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnknownVar, v.name)
	}
	return val, nil
}

// Diff implements Expr.
func (v *Var) Diff(name string) Expr {
	if v.name == name {
		return Const(1)
	}
	return Const(0)
}

// Subst implements Expr.
func (v *Var) Subst(name string, val Expr) Expr {
	if v.name == name {
		return val
	}
	return v
}

// Vars implements Expr.
func (v *Var) Vars(set map[string]struct{}) { set[v.name] = struct{}{} }

// String implements Expr.
func (v *Var) String() string { return v.name }

// Add is a sum of terms.
type Add struct {
	terms []Expr
}

// Sum returns the sum of terms with constants folded and zeros dropped.
func Sum(terms ...Expr) Expr {
	flat := make([]Expr, 0, len(terms))
	c := 0.0
	for _, t := range terms {
		switch v := t.(type) {
		case Const:
			c += float64(v)
		case *Add:
			for _, tt := range v.terms {
				if k, ok := tt.(Const); ok {
					c += float64(k)
					continue
				}
				flat = append(flat, tt)
			}
		default:
			flat = append(flat, t)
		}
	}
	if c != 0 {
		flat = append(flat, Const(c))
	}
	switch len(flat) {
	case 0:
		return Const(0)
	case 1:
		return flat[0]
	}
	return &Add{terms: flat}
}

// Eval implements Expr.
func (a *Add) Eval(env Env) (float64, error) {
	s := 0.0
	for _, t := range a.terms {
		v, err := t.Eval(env)
		if err != nil {
			return 0, err
		}
		s += v
	}
	return s, nil
}

// Diff implements Expr.
func (a *Add) Diff(name string) Expr {
	d := make([]Expr, len(a.terms))
	for i, t := range a.terms {
		d[i] = t.Diff(name)
	}
	return Sum(d...)
}

// Subst implements Expr.
func (a *Add) Subst(name string, val Expr) Expr {
	s := make([]Expr, len(a.terms))
	for i, t := range a.terms {
		s[i] = t.Subst(name, val)
	}
	return Sum(s...)
}

// Vars implements Expr.
func (a *Add) Vars(set map[string]struct{}) {
	for _, t := range a.terms {
		t.Vars(set)
	}
}

// String implements Expr.
func (a *Add) String() string { return join(a.terms, " + ") }

// Mul is a product of factors.
type Mul struct {
	factors []Expr
}

// Product returns the product of factors with constants folded.
// It returns zero if any factor is the zero constant.
func Product(factors ...Expr) Expr {
	flat := make([]Expr, 0, len(factors))
	c := 1.0
	for _, f := range factors {
		switch v := f.(type) {
		case Const:
			c *= float64(v)
		case *Mul:
			for _, ff := range v.factors {
				if k, ok := ff.(Const); ok {
					c *= float64(k)
					continue
				}
				flat = append(flat, ff)
			}
		default:
			flat = append(flat, f)
		}
	}
	if c == 0 {
		return Const(0)
	}
	if len(flat) == 0 {
		return Const(c)
	}
	if c != 1 {
		flat = append([]Expr{Const(c)}, flat...)
	}
	if len(flat) == 1 {
		return flat[0]
	}
	return &Mul{factors: flat}
}

// Eval implements Expr.
func (m *Mul) Eval(env Env) (float64, error) {
	p := 1.0
	for _, f := range m.factors {
		v, err := f.Eval(env)
		if err != nil {
			return 0, err
		}
		p *= v
	}
	return p, nil
}

// Diff implements Expr.
func (m *Mul) Diff(name string) Expr {
	terms := make([]Expr, 0, len(m.factors))
	for i, f := range m.factors {
		df := f.Diff(name)
		if isZero(df) {
			continue
		}
		fs := make([]Expr, 0, len(m.factors))
		fs = append(fs, df)
		for j, g := range m.factors {
			if j != i {
				fs = append(fs, g)
			}
		}
		terms = append(terms, Product(fs...))
	}
	return Sum(terms...)
}

// Subst implements Expr.
func (m *Mul) Subst(name string, val Expr) Expr {
	s := make([]Expr, len(m.factors))
	for i, f := range m.factors {
		s[i] = f.Subst(name, val)
	}
	return Product(s...)
}

// Vars implements Expr.
func (m *Mul) Vars(set map[string]struct{}) {
	for _, f := range m.factors {
		f.Vars(set)
	}
}

// String implements Expr.
func (m *Mul) String() string { return join(m.factors, " * ") }

// Power is base raised to exponent.
type Power struct {
	base Expr
	exp  Expr
}

// Pow returns base^exp.
func Pow(base, exp Expr) Expr {
	if e, ok := exp.(Const); ok {
		switch e {
		case 0:
			return Const(1)
		case 1:
			return base
		}
		if b, ok := base.(Const); ok {
			return Const(math.Pow(float64(b), float64(e)))
		}
	}
	if b, ok := base.(Const); ok && (b == 0 || b == 1) {
		return b
	}
	return &Power{base: base, exp: exp}
}

// Eval implements Expr.
func (p *Power) Eval(env Env) (float64, error) {
	b, err := p.base.Eval(env)
	if err != nil {
		return 0, err
	}
	e, err := p.exp.Eval(env)
	if err != nil {
		return 0, err
	}
	if e == 2 {
		return b * b, nil
	}
	return math.Pow(b, e), nil
}

// Diff implements Expr.
func (p *Power) Diff(name string) Expr {
	db := p.base.Diff(name)
	de := p.exp.Diff(name)
	if isZero(de) {
		// d(b^n) = n b^(n-1) db
		return Product(p.exp, Pow(p.base, Sum(p.exp, Const(-1))), db)
	}
	// d(b^e) = b^e (de ln b + e db / b)
	return Product(p, Sum(
		Product(de, Log(p.base)),
		Product(p.exp, db, Pow(p.base, Const(-1))),
	))
}

// Subst implements Expr.
func (p *Power) Subst(name string, val Expr) Expr {
	return Pow(p.base.Subst(name, val), p.exp.Subst(name, val))
}

// Vars implements Expr.
func (p *Power) Vars(set map[string]struct{}) {
	p.base.Vars(set)
	p.exp.Vars(set)
}

// String implements Expr.
func (p *Power) String() string {
	return "(" + p.base.String() + " ^ " + p.exp.String() + ")"
}

// Neg returns -e.
func Neg(e Expr) Expr { return Product(Const(-1), e) }

// Subtract returns a - b.
func Subtract(a, b Expr) Expr { return Sum(a, Neg(b)) }

// Div returns a / b.
func Div(a, b Expr) Expr {
	if c, ok := b.(Const); ok && c != 0 {
		return Product(Const(1/float64(c)), a)
	}
	return Product(a, Pow(b, Const(-1)))
}

// Square returns e^2.
func Square(e Expr) Expr { return Pow(e, Const(2)) }

func isZero(e Expr) bool {
	c, ok := e.(Const)
	return ok && c == 0
}

func join(es []Expr, sep string) string {
	parts := make([]string, len(es))
	for i, e := range es {
		parts[i] = e.String()
	}
	return "(" + strings.Join(parts, sep) + ")"
}

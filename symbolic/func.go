package symbolic

import (
	"fmt"
	"math"
)

type unary struct {
	eval func(float64) float64
	// diff returns f'(arg) as an expression in arg
	diff func(arg Expr) Expr
}

var unaries map[string]unary

func init() {
	unaries = map[string]unary{
		"sin": {math.Sin, func(a Expr) Expr { return Cos(a) }},
		"cos": {math.Cos, func(a Expr) Expr { return Neg(Sin(a)) }},
		"tan": {math.Tan, func(a Expr) Expr { return Pow(Cos(a), Const(-2)) }},
		"exp": {math.Exp, func(a Expr) Expr { return Exp(a) }},
		"log": {math.Log, func(a Expr) Expr { return Pow(a, Const(-1)) }},
		"sqrt": {math.Sqrt, func(a Expr) Expr {
			return Product(Const(0.5), Pow(Sqrt(a), Const(-1)))
		}},
		"tanh": {math.Tanh, func(a Expr) Expr {
			return Sum(Const(1), Neg(Square(Tanh(a))))
		}},
		"abs":  {math.Abs, func(a Expr) Expr { return Sign(a) }},
		"sign": {sign, func(Expr) Expr { return Const(0) }},
	}
}

func sign(v float64) float64 {
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	}
	return 0
}

// Func is a named elementary function applied to an argument.
type Func struct {
	name string
	arg  Expr
}

func apply(name string, arg Expr) Expr {
	if c, ok := arg.(Const); ok {
		return Const(unaries[name].eval(float64(c)))
	}
	return &Func{name: name, arg: arg}
}

// Sin returns sin(e).
func Sin(e Expr) Expr { return apply("sin", e) }

// Cos returns cos(e).
func Cos(e Expr) Expr { return apply("cos", e) }

// Tan returns tan(e).
func Tan(e Expr) Expr { return apply("tan", e) }

// Exp returns exp(e).
func Exp(e Expr) Expr { return apply("exp", e) }

// Log returns the natural logarithm of e.
func Log(e Expr) Expr { return apply("log", e) }

// Sqrt returns sqrt(e).
func Sqrt(e Expr) Expr { return apply("sqrt", e) }

// Tanh returns tanh(e).
func Tanh(e Expr) Expr { return apply("tanh", e) }

// Abs returns |e|.
func Abs(e Expr) Expr { return apply("abs", e) }

// Sign returns the sign of e. Its derivative is taken as zero everywhere.
func Sign(e Expr) Expr { return apply("sign", e) }

// Name returns the function name.
func (f *Func) Name() string { return f.name }

// Eval implements Expr.
func (f *Func) Eval(env Env) (float64, error) {
	a, err := f.arg.Eval(env)
	if err != nil {
		return 0, err
	}
	u, ok := unaries[f.name]
	if !ok {
		return 0, fmt.Errorf("symbolic: unknown function %q", f.name)
	}
	return u.eval(a), nil
}

// Diff implements Expr.
func (f *Func) Diff(name string) Expr {
	da := f.arg.Diff(name)
	if isZero(da) {
		return Const(0)
	}
	return Product(unaries[f.name].diff(f.arg), da)
}

// Subst implements Expr.
func (f *Func) Subst(name string, val Expr) Expr {
	return apply(f.name, f.arg.Subst(name, val))
}

// Vars implements Expr.
func (f *Func) Vars(set map[string]struct{}) { f.arg.Vars(set) }

// String implements Expr.
func (f *Func) String() string { return f.name + "(" + f.arg.String() + ")" }

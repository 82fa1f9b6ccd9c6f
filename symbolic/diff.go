package symbolic

// Differentiator produces closed-form derivatives of expressions.
type Differentiator interface {
	// Gradient returns the gradient of e with respect to vars.
	Gradient(e Expr, vars []string) (Vector, error)
	// Jacobian returns the Jacobian of v with respect to vars.
	Jacobian(v Vector, vars []string) (*Matrix, error)
	// Hessian returns the Hessian of e with respect to vars.
	Hessian(e Expr, vars []string) (*Matrix, error)
}

// Local differentiates expressions in process.
type Local struct{}

// Gradient implements Differentiator.
func (Local) Gradient(e Expr, vars []string) (Vector, error) {
	return Gradient(e, vars), nil
}

// Jacobian implements Differentiator.
func (Local) Jacobian(v Vector, vars []string) (*Matrix, error) {
	return v.Jacobian(vars), nil
}

// Hessian implements Differentiator.
func (Local) Hessian(e Expr, vars []string) (*Matrix, error) {
	return Hessian(e, vars), nil
}

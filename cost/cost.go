// Package cost implements quadratic trajectory costs.
package cost

import (
	"fmt"

	control "github.com/milosgajdos/go-control"
	"github.com/milosgajdos/go-control/matrix"
	"go.uber.org/multierr"
	"gonum.org/v1/gonum/mat"
)

// Quadratic is the tracking cost
//
//	J = 1/2 sum (x_k - r_k)'Q(x_k - r_k) + 1/2 sum u_k'R u_k + 1/2 (x_N - r_N)'Qn(x_N - r_N)
//
// A reference with a single entry is used at every step.
type Quadratic struct {
	q   *mat.SymDense
	qn  *mat.SymDense
	r   *mat.SymDense
	ref []*mat.VecDense
}

// NewQuadratic creates new quadratic cost and returns it.
// It returns error if either of the following conditions is met:
// - any of q, qn and r is not square and symmetric positive semi-definite
// - q and qn differ in dimension
// - the reference is empty or its entries do not match the state dimension
func NewQuadratic(q, qn, r mat.Matrix, ref []*mat.VecDense) (*Quadratic, error) {
	var err error

	for _, m := range []struct {
		name string
		m    mat.Matrix
	}{{"Q", q}, {"Qn", qn}, {"R", r}} {
		err = multierr.Append(err, checkWeight(m.name, m.m))
	}

	if err == nil {
		if n, _ := q.Dims(); n != rows(qn) {
			err = multierr.Append(err, fmt.Errorf("Q is %dx%[1]d, Qn is %dx%[2]d", n, rows(qn)))
		}
	}

	if len(ref) == 0 {
		err = multierr.Append(err, fmt.Errorf("empty reference trajectory"))
	}

	if err != nil {
		return nil, fmt.Errorf("%w: %v", control.ErrConfig, err)
	}

	c := &Quadratic{
		q:  matrix.Symmetrize(q),
		qn: matrix.Symmetrize(qn),
		r:  matrix.Symmetrize(r),
	}

	if err := c.SetReference(ref); err != nil {
		return nil, err
	}

	return c, nil
}

// NewTerminalMinControl creates a cost penalizing the distance of the final
// state from xf and the control effort only.
func NewTerminalMinControl(qn, r mat.Matrix, xf *mat.VecDense) (*Quadratic, error) {
	n := rows(qn)
	if n == 0 {
		return nil, fmt.Errorf("%w: empty Qn", control.ErrConfig)
	}
	return NewQuadratic(mat.NewDense(n, n, nil), qn, r, []*mat.VecDense{xf})
}

func rows(m mat.Matrix) int {
	if m == nil {
		return 0
	}
	r, _ := m.Dims()
	return r
}

func checkWeight(name string, m mat.Matrix) error {
	if m == nil {
		return fmt.Errorf("%s is nil", name)
	}
	r, c := m.Dims()
	if r != c {
		return fmt.Errorf("%s is %dx%d, must be square", name, r, c)
	}
	if !matrix.IsSymmetric(m, 1e-9) {
		return fmt.Errorf("%s is not symmetric", name)
	}
	var eig mat.EigenSym
	if !eig.Factorize(matrix.Symmetrize(m), false) {
		return fmt.Errorf("%s eigen decomposition failed", name)
	}
	for _, v := range eig.Values(nil) {
		if v < -1e-10 {
			return fmt.Errorf("%s is not positive semi-definite", name)
		}
	}
	return nil
}

// Dims returns the state and input dimensions.
func (c *Quadratic) Dims() (nx, nu int) {
	return c.q.SymmetricDim(), c.r.SymmetricDim()
}

// Q returns the stage state weight.
func (c *Quadratic) Q() *mat.SymDense { return symCopy(c.q) }

// Qn returns the terminal state weight.
func (c *Quadratic) Qn() *mat.SymDense { return symCopy(c.qn) }

// R returns the input weight.
func (c *Quadratic) R() *mat.SymDense { return symCopy(c.r) }

func symCopy(s *mat.SymDense) *mat.SymDense {
	out := mat.NewSymDense(s.SymmetricDim(), nil)
	out.CopySym(s)
	return out
}

// UpdateQ replaces the stage state weight.
func (c *Quadratic) UpdateQ(q mat.Matrix) error {
	return c.update(&c.q, "Q", q)
}

// UpdateQn replaces the terminal state weight.
func (c *Quadratic) UpdateQn(qn mat.Matrix) error {
	return c.update(&c.qn, "Qn", qn)
}

// UpdateR replaces the input weight.
func (c *Quadratic) UpdateR(r mat.Matrix) error {
	return c.update(&c.r, "R", r)
}

func (c *Quadratic) update(dst **mat.SymDense, name string, m mat.Matrix) error {
	if err := checkWeight(name, m); err != nil {
		return fmt.Errorf("%w: %v", control.ErrConfig, err)
	}
	if rows(m) != (*dst).SymmetricDim() {
		return fmt.Errorf("%w: %s must be %dx%[3]d", control.ErrConfig, name, (*dst).SymmetricDim())
	}
	*dst = matrix.Symmetrize(m)
	return nil
}

// SetReference replaces the reference trajectory.
func (c *Quadratic) SetReference(ref []*mat.VecDense) error {
	if len(ref) == 0 {
		return fmt.Errorf("%w: empty reference trajectory", control.ErrConfig)
	}
	nx, _ := c.Dims()
	out := make([]*mat.VecDense, len(ref))
	for i, r := range ref {
		if r == nil || r.Len() != nx {
			return fmt.Errorf("%w: reference %d must have %d components", control.ErrConfig, i, nx)
		}
		out[i] = mat.VecDenseCopyOf(r)
	}
	c.ref = out
	return nil
}

// Len returns the length of the reference trajectory.
func (c *Quadratic) Len() int { return len(c.ref) }

// Reference returns the reference state at step k.
// It returns error if k is outside of a reference with more than one entry.
func (c *Quadratic) Reference(k int) (*mat.VecDense, error) {
	if len(c.ref) == 1 {
		return c.ref[0], nil
	}
	if k < 0 || k >= len(c.ref) {
		return nil, fmt.Errorf("%w: step %d outside reference of length %d", control.ErrConfig, k, len(c.ref))
	}
	return c.ref[k], nil
}

// Final returns the terminal reference state.
func (c *Quadratic) Final() *mat.VecDense { return c.ref[len(c.ref)-1] }

func (c *Quadratic) diff(x mat.Vector, r *mat.VecDense) (*mat.VecDense, error) {
	if x == nil || x.Len() != r.Len() {
		return nil, fmt.Errorf("%w: state must have %d components", control.ErrConfig, r.Len())
	}
	d := mat.VecDenseCopyOf(x)
	d.SubVec(d, r)
	return d, nil
}

func (c *Quadratic) input(u mat.Vector) (*mat.VecDense, error) {
	_, nu := c.Dims()
	if u == nil {
		return mat.NewVecDense(nu, nil), nil
	}
	if u.Len() != nu {
		return nil, fmt.Errorf("%w: input must have %d components", control.ErrConfig, nu)
	}
	return mat.VecDenseCopyOf(u), nil
}

// StageCost returns 1/2 (x - r_k)'Q(x - r_k) + 1/2 u'Ru. A nil u is a zero input.
func (c *Quadratic) StageCost(k int, x, u mat.Vector) (float64, error) {
	r, err := c.Reference(k)
	if err != nil {
		return 0, err
	}
	dx, err := c.diff(x, r)
	if err != nil {
		return 0, err
	}
	uv, err := c.input(u)
	if err != nil {
		return 0, err
	}
	return 0.5*mat.Inner(dx, c.q, dx) + 0.5*mat.Inner(uv, c.r, uv), nil
}

// StageCostGradient returns Q(x - r_k) and Ru.
func (c *Quadratic) StageCostGradient(k int, x, u mat.Vector) (gx, gu *mat.VecDense, err error) {
	r, err := c.Reference(k)
	if err != nil {
		return nil, nil, err
	}
	dx, err := c.diff(x, r)
	if err != nil {
		return nil, nil, err
	}
	uv, err := c.input(u)
	if err != nil {
		return nil, nil, err
	}
	gx, gu = new(mat.VecDense), new(mat.VecDense)
	gx.MulVec(c.q, dx)
	gu.MulVec(c.r, uv)
	return gx, gu, nil
}

// StageCostHessian returns the constant stage Hessians Q and R.
// The mixed state-input Hessian is zero.
func (c *Quadratic) StageCostHessian() (qxx, quu *mat.SymDense) {
	return c.Q(), c.R()
}

// TerminalCost returns 1/2 (x - r_N)'Qn(x - r_N).
func (c *Quadratic) TerminalCost(x mat.Vector) (float64, error) {
	dx, err := c.diff(x, c.Final())
	if err != nil {
		return 0, err
	}
	return 0.5 * mat.Inner(dx, c.qn, dx), nil
}

// TerminalCostGradient returns Qn(x - r_N).
func (c *Quadratic) TerminalCostGradient(x mat.Vector) (*mat.VecDense, error) {
	dx, err := c.diff(x, c.Final())
	if err != nil {
		return nil, err
	}
	g := new(mat.VecDense)
	g.MulVec(c.qn, dx)
	return g, nil
}

// TerminalCostHessian returns Qn.
func (c *Quadratic) TerminalCostHessian() *mat.SymDense { return c.Qn() }

// Cost returns the cost of the trajectory xs driven by us.
// It returns error if len(xs) != len(us)+1 or a reference with more than
// one entry differs in length from xs.
func (c *Quadratic) Cost(xs, us []*mat.VecDense) (float64, error) {
	if len(xs) != len(us)+1 {
		return 0, fmt.Errorf("%w: %d states for %d inputs", control.ErrConfig, len(xs), len(us))
	}
	if len(c.ref) > 1 && len(c.ref) != len(xs) {
		return 0, fmt.Errorf("%w: %d states for reference of length %d", control.ErrConfig, len(xs), len(c.ref))
	}

	total := 0.0
	for k, u := range us {
		var uv mat.Vector
		if u != nil {
			uv = u
		}
		l, err := c.StageCost(k, xs[k], uv)
		if err != nil {
			return 0, &control.StepError{Step: k, Err: err}
		}
		total += l
	}

	phi, err := c.TerminalCost(xs[len(xs)-1])
	if err != nil {
		return 0, &control.StepError{Step: len(xs) - 1, Err: err}
	}

	return total + phi, nil
}

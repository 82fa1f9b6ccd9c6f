package ddp

import (
	"fmt"

	control "github.com/milosgajdos/go-control"
	"github.com/milosgajdos/go-control/linearize"
	"github.com/milosgajdos/go-control/matrix"
	"github.com/milosgajdos/go-control/qp"
	"gonum.org/v1/gonum/mat"
)

// expansion is the quadratic expansion of the action-value function at a stage
type expansion struct {
	qx  *mat.VecDense
	qu  *mat.VecDense
	qxx *mat.Dense
	quu *mat.Dense
	qux *mat.Dense
}

// backward runs the backward pass over the current trajectory, stores the
// gains and returns the expected cost decrease.
func (c *Controller) backward() (float64, error) {
	opts := c.Options()
	n := len(c.us)

	as, bs, err := linearize.LinearizeFull(c.lin, c.xs, c.us)
	if err != nil {
		return 0, err
	}

	p, err := c.cost.TerminalCostGradient(c.xs[n])
	if err != nil {
		return 0, err
	}
	P := mat.DenseCopyOf(c.cost.TerminalCostHessian())

	q, r := c.cost.StageCostHessian()

	ff := make([]*mat.VecDense, n)
	fb := make([]*mat.Dense, n)
	dj := 0.0

	for k := n - 1; k >= 0; k-- {
		e, err := c.expand(k, as[k], bs[k], q, r, P, p)
		if err != nil {
			return 0, &control.StepError{Step: k, Err: err}
		}

		var d *mat.VecDense
		var K *mat.Dense
		if opts.InputLimits != nil {
			d, K, err = c.boxGains(k, e)
		} else {
			d, K, err = gains(e)
		}
		if err != nil {
			return 0, &control.StepError{Step: k, Err: err}
		}

		ff[k], fb[k] = d, K
		dj += mat.Dot(e.qu, d) - 0.5*mat.Inner(d, e.quu, d)

		P, p = costToGo(e, d, K)
	}

	c.ff, c.fb = ff, fb

	return dj, nil
}

// expand returns the regularized expansion at stage k given the cost-to-go
// P and p of stage k+1.
func (c *Controller) expand(k int, a, b *mat.Dense, q, r mat.Symmetric, P *mat.Dense, p *mat.VecDense) (*expansion, error) {
	lx, lu, err := c.cost.StageCostGradient(k, c.xs[k], c.us[k])
	if err != nil {
		return nil, err
	}

	e := &expansion{
		qx:  new(mat.VecDense),
		qu:  new(mat.VecDense),
		qxx: new(mat.Dense),
		quu: new(mat.Dense),
		qux: new(mat.Dense),
	}

	e.qx.MulVec(a.T(), p)
	e.qx.AddVec(e.qx, lx)
	e.qu.MulVec(b.T(), p)
	e.qu.AddVec(e.qu, lu)

	var pa, pb mat.Dense
	pa.Mul(P, a)
	pb.Mul(P, b)

	e.qxx.Mul(a.T(), &pa)
	e.qxx.Add(e.qxx, q)
	e.quu.Mul(b.T(), &pb)
	e.quu.Add(e.quu, r)
	e.qux.Mul(b.T(), &pa)

	if c.cfg.Mode == DDP {
		h, err := c.sec.Hessians(c.xs[k], c.us[k])
		if err != nil {
			return nil, err
		}
		for i := 0; i < p.Len(); i++ {
			pi := p.AtVec(i)
			e.qxx.Add(e.qxx, scaled(pi, h.XX[i]))
			e.quu.Add(e.quu, scaled(pi, h.UU[i]))
			e.qux.Add(e.qux, scaled(pi, h.UX[i]))
		}
	}

	if err := c.regularize(e); err != nil {
		return nil, err
	}

	return e, nil
}

// regularize adds beta*I to Quu until it is positive definite. Qxx and
// Qux are left alone so the propagated cost-to-go stays unperturbed.
func (c *Controller) regularize(e *expansion) error {
	_, nu := c.Dims()
	beta := c.cfg.Regularization

	for !matrix.IsPosDef(e.quu) {
		if beta > c.cfg.MaxRegularization {
			return fmt.Errorf("%w: regularization exceeded %g", control.ErrEvaluation, c.cfg.MaxRegularization)
		}
		e.quu.Add(e.quu, matrix.Identity(nu, beta))
		beta *= 2
	}

	return nil
}

// gains returns d = Quu^-1 Qu and K = Quu^-1 Qux.
func gains(e *expansion) (*mat.VecDense, *mat.Dense, error) {
	d, err := matrix.SolveVec(e.quu, e.qu)
	if err != nil {
		return nil, nil, err
	}
	K, err := matrix.Solve(e.quu, e.qux)
	if err != nil {
		return nil, nil, err
	}
	return d, K, nil
}

// boxGains solves the input-bounded stage QP
//
//	minimize 1/2 du'Quu du + Qu'du  subject to  lb - u <= du <= ub - u
//
// and returns d = -du and the feedback gain computed over the free inputs.
// Clamped inputs get zero feedback.
func (c *Controller) boxGains(k int, e *expansion) (*mat.VecDense, *mat.Dense, error) {
	nx, nu := c.Dims()
	box := c.Options().InputLimits
	u := c.us[k]

	lo, hi := make([]float64, nu), make([]float64, nu)
	for i := 0; i < nu; i++ {
		lo[i] = box.Lower.AtVec(i) - u.AtVec(i)
		hi[i] = box.Upper.AtVec(i) - u.AtVec(i)
	}

	settings := qp.DefaultSettings()
	settings.EpsAbs, settings.EpsRel = 1e-9, 1e-9

	s, err := qp.New(qp.Problem{
		P: e.quu,
		Q: e.qu.RawVector().Data,
		A: matrix.Identity(nu, 1),
		L: lo,
		U: hi,
	}, settings)
	if err != nil {
		return nil, nil, err
	}

	sol, err := s.Solve()
	if err != nil {
		return nil, nil, err
	}

	du := mat.NewVecDense(nu, sol.X)
	matrix.Clamp(du, mat.NewVecDense(nu, lo), mat.NewVecDense(nu, hi))

	d := new(mat.VecDense)
	d.ScaleVec(-1, du)

	K := mat.NewDense(nu, nx, nil)
	free := FindFreeSet(du.RawVector().Data, lo, hi, c.cfg.FreeSetTol)
	if len(free) == 0 {
		return d, K, nil
	}

	// K_free = (Quu_free + lambda*I)^-1 Qux_free
	quuf := mat.NewDense(len(free), len(free), nil)
	quxf := mat.NewDense(len(free), nx, nil)
	for i, fi := range free {
		for j, fj := range free {
			quuf.Set(i, j, e.quu.At(fi, fj))
		}
		quuf.Set(i, i, quuf.At(i, i)+freeSetReg)
		quxf.SetRow(i, mat.Row(nil, fi, e.qux))
	}

	kf, err := matrix.Solve(quuf, quxf)
	if err != nil {
		return nil, nil, err
	}
	for i, fi := range free {
		K.SetRow(fi, kf.RawRowView(i))
	}

	return d, K, nil
}

// freeSetReg regularizes the free block of Quu
const freeSetReg = 1e-6

// FindFreeSet returns the indices of x that are farther than tol from both
// bounds lo and hi.
func FindFreeSet(x, lo, hi []float64, tol float64) []int {
	var free []int
	for i := range x {
		if x[i]-lo[i] > tol && hi[i]-x[i] > tol {
			free = append(free, i)
		}
	}
	return free
}

// costToGo returns the cost-to-go of a stage given its expansion and gains
//
//	P = Qxx + K'QuuK - QxuK - K'Qux
//	p = Qx - K'Qu + K'Quu d - Qxu d
func costToGo(e *expansion, d *mat.VecDense, K *mat.Dense) (*mat.Dense, *mat.VecDense) {
	var quuK, ktQuuK, qxuK, P mat.Dense
	quuK.Mul(e.quu, K)
	ktQuuK.Mul(K.T(), &quuK)
	qxuK.Mul(e.qux.T(), K)

	P.Add(e.qxx, &ktQuuK)
	P.Sub(&P, &qxuK)
	P.Sub(&P, qxuK.T())

	var ktQu, quud, ktQuud, qxud mat.VecDense
	ktQu.MulVec(K.T(), e.qu)
	quud.MulVec(e.quu, d)
	ktQuud.MulVec(K.T(), &quud)
	qxud.MulVec(e.qux.T(), d)

	p := mat.VecDenseCopyOf(e.qx)
	p.SubVec(p, &ktQu)
	p.AddVec(p, &ktQuud)
	p.SubVec(p, &qxud)

	return mat.DenseCopyOf(matrix.Symmetrize(&P)), p
}

func scaled(f float64, m mat.Matrix) *mat.Dense {
	var out mat.Dense
	out.Scale(f, m)
	return &out
}

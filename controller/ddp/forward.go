package ddp

import (
	control "github.com/milosgajdos/go-control"
	"gonum.org/v1/gonum/mat"
)

// forward rolls out u_k - alpha*d_k - K_k(x - x_k) from x0 halving alpha
// until the trajectory cost drops below j. It reports false when no step
// within the line search budget decreases the cost.
func (c *Controller) forward(x0 mat.Vector, j float64) ([]*mat.VecDense, []*mat.VecDense, float64, bool, error) {
	opts := c.Options()
	n := len(c.us)
	alpha := 1.0

	for ls := 0; ls < c.cfg.LineSearchIter; ls++ {
		xs := make([]*mat.VecDense, n+1)
		us := make([]*mat.VecDense, n)
		xs[0] = mat.VecDenseCopyOf(x0)

		failed := false
		for k := 0; k < n; k++ {
			dx := mat.VecDenseCopyOf(xs[k])
			dx.SubVec(dx, c.xs[k])

			u := new(mat.VecDense)
			u.MulVec(c.fb[k], dx)
			u.AddScaledVec(u, alpha, c.ff[k])
			u.SubVec(c.us[k], u)
			if opts.InputLimits != nil {
				opts.InputLimits.Clamp(u)
			}

			x, err := c.Plant().Step(xs[k], u, opts.Dt)
			if err != nil {
				// a diverging trial step is retried with a shorter step
				if ls == c.cfg.LineSearchIter-1 {
					return nil, nil, 0, false, &control.StepError{Step: k, Err: err}
				}
				failed = true
				break
			}
			us[k], xs[k+1] = u, x
		}

		if !failed {
			jn, err := c.cost.Cost(xs, us)
			if err != nil {
				return nil, nil, 0, false, err
			}
			if jn < j {
				return xs, us, jn, true, nil
			}
		}

		alpha /= 2
	}

	return nil, nil, 0, false, nil
}

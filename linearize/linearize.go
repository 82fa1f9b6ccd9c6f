// Package linearize computes first and second order derivatives of
// discrete-time dynamics x+ = F(x, u) around states and trajectories.
package linearize

import (
	"fmt"
	"runtime"
	"sync"

	control "github.com/milosgajdos/go-control"
	"github.com/milosgajdos/go-control/matrix"
	"github.com/milosgajdos/go-control/symbolic"
	"gonum.org/v1/gonum/mat"
)

// Linearizer computes the Jacobians of a discrete step
type Linearizer interface {
	// Jacobians returns dF/dx and dF/du at x and u.
	// B is nil for models without inputs.
	Jacobians(x, u mat.Vector) (A, B *mat.Dense, err error)
}

// SecondOrder computes the Hessians of a discrete step
type SecondOrder interface {
	// Hessians returns the second derivatives of every component of F
	Hessians(x, u mat.Vector) (*Hessians, error)
}

// Cloner is implemented by linearizers that keep evaluation state.
// Every concurrent worker linearizes with its own clone.
type Cloner interface {
	// Clone returns an independent copy of the linearizer
	Clone() Linearizer
}

// Hessians holds the second derivatives of each state component of F.
// XX[i] is d2F_i/dx2, XU[i] is d2F_i/dxdu, UX[i] is d2F_i/dudx and
// UU[i] is d2F_i/du2. Input blocks are nil for models without inputs.
type Hessians struct {
	XX []*mat.Dense
	XU []*mat.Dense
	UX []*mat.Dense
	UU []*mat.Dense
}

// newHessians splits full (n+m)x(n+m) Hessians over z = [x; u] into blocks.
func newHessians(full []*mat.Dense, n, m int) *Hessians {
	h := &Hessians{
		XX: make([]*mat.Dense, len(full)),
		XU: make([]*mat.Dense, len(full)),
		UX: make([]*mat.Dense, len(full)),
		UU: make([]*mat.Dense, len(full)),
	}
	for i, f := range full {
		h.XX[i] = matrix.Block(f, 0, 0, n, n)
		if m == 0 {
			continue
		}
		h.XU[i] = matrix.Block(f, 0, n, n, m)
		h.UX[i] = matrix.Block(f, n, 0, m, n)
		h.UU[i] = matrix.Block(f, n, n, m, m)
	}
	return h
}

// NumericFunc is a MatrixFunc backed by a Go closure
type NumericFunc struct {
	rows int
	cols int
	fn   func(params []float64) (*mat.Dense, error)
}

// NewNumericFunc creates new NumericFunc returning rows x cols matrices.
func NewNumericFunc(rows, cols int, fn func(params []float64) (*mat.Dense, error)) *NumericFunc {
	return &NumericFunc{rows: rows, cols: cols, fn: fn}
}

// Dims returns the dimensions of the returned matrices.
func (f *NumericFunc) Dims() (r, c int) { return f.rows, f.cols }

// Eval implements control.MatrixFunc.
func (f *NumericFunc) Eval(params []float64) (*mat.Dense, error) {
	m, err := f.fn(params)
	if err != nil {
		return nil, err
	}
	if r, c := m.Dims(); r != f.rows || c != f.cols {
		return nil, fmt.Errorf("%w: function returned %dx%d, want %dx%d", control.ErrEvaluation, r, c, f.rows, f.cols)
	}
	return m, nil
}

// LinearizeFull returns the Jacobians of every stage k < min(len(us), len(xs)-1).
// Stages are linearized in parallel; linearizers implementing Cloner are
// cloned once per worker.
func LinearizeFull(lin Linearizer, xs, us []*mat.VecDense) (as, bs []*mat.Dense, err error) {
	n := len(us)
	if len(xs)-1 < n {
		n = len(xs) - 1
	}
	if n <= 0 {
		return nil, nil, fmt.Errorf("%w: empty trajectory", control.ErrConfig)
	}

	as = make([]*mat.Dense, n)
	bs = make([]*mat.Dense, n)
	errs := make([]error, n)

	workers := runtime.GOMAXPROCS(0)
	if workers > n {
		workers = n
	}

	jobs := make(chan int)
	var wg sync.WaitGroup

	for w := 0; w < workers; w++ {
		l := lin
		if c, ok := lin.(Cloner); ok {
			l = c.Clone()
		}
		wg.Add(1)
		go func(l Linearizer) {
			defer wg.Done()
			for k := range jobs {
				var u mat.Vector
				if us[k] != nil {
					u = us[k]
				}
				as[k], bs[k], errs[k] = l.Jacobians(xs[k], u)
			}
		}(l)
	}

	for k := 0; k < n; k++ {
		jobs <- k
	}
	close(jobs)
	wg.Wait()

	for k, err := range errs {
		if err != nil {
			return nil, nil, &control.StepError{Step: k, Err: err}
		}
	}

	return as, bs, nil
}

// values returns the components of v or nil for a nil v.
func values(v mat.Vector, n int) ([]float64, error) {
	if v == nil {
		if n == 0 {
			return nil, nil
		}
		return make([]float64, n), nil
	}
	if v.Len() != n {
		return nil, fmt.Errorf("%w: vector has %d components, want %d", control.ErrConfig, v.Len(), n)
	}
	out := make([]float64, n)
	for i := range out {
		out[i] = v.AtVec(i)
	}
	return out, nil
}

// vec returns a vector over vals or a nil interface when vals is empty.
func vec(vals []float64) mat.Vector {
	if len(vals) == 0 {
		return nil
	}
	return mat.NewVecDense(len(vals), vals)
}

// names returns the variable names of v.
func names(v symbolic.Vector) ([]string, error) {
	ns, err := v.Names()
	if err != nil {
		return nil, control.Symbolic(err)
	}
	return ns, nil
}

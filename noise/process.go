package noise

import (
	"fmt"
	"time"

	control "github.com/milosgajdos/go-control"
	crand "github.com/milosgajdos/go-control/rand"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/mat"
)

// Process is zero-mean isotropic noise with two sources: one perturbs the
// initial state and the other every propagated state.
type Process struct {
	std0 float64
	std  float64
	seed uint64
	src  rand.Source
}

// NewProcess creates new Process noise with initial state standard deviation
// std0 and per step standard deviation std. Seed 0 seeds from the clock.
// It returns error if either deviation is negative.
func NewProcess(std0, std float64, seed uint64) (*Process, error) {
	if std0 < 0 || std < 0 {
		return nil, fmt.Errorf("%w: negative noise deviation (%g, %g)", control.ErrConfig, std0, std)
	}

	p := &Process{std0: std0, std: std, seed: seed}
	if err := p.Reset(); err != nil {
		return nil, err
	}

	return p, nil
}

// Std returns the initial and per step standard deviations.
func (p *Process) Std() (std0, std float64) { return p.std0, p.std }

// Enabled reports whether any of the sources is non-zero.
func (p *Process) Enabled() bool { return p.std0 > 0 || p.std > 0 }

// Initial returns x perturbed by the initial state source.
func (p *Process) Initial(x mat.Vector) *mat.VecDense {
	return p.add(x, p.std0)
}

// Step returns x perturbed by the per step source.
func (p *Process) Step(x mat.Vector) *mat.VecDense {
	return p.add(x, p.std)
}

func (p *Process) add(x mat.Vector, std float64) *mat.VecDense {
	out := mat.VecDenseCopyOf(x)
	if std == 0 {
		return out
	}
	w := crand.StdNormal(out.Len(), std, p.src)
	out.AddVec(out, mat.NewVecDense(len(w), w))
	return out
}

// Reset restarts the sources. Seeded noise repeats its sequence.
func (p *Process) Reset() error {
	seed := p.seed
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	p.src = rand.NewSource(seed)
	return nil
}

// String implements the Stringer interface.
func (p *Process) String() string {
	return fmt.Sprintf("Process{Std0=%g Std=%g}", p.std0, p.std)
}

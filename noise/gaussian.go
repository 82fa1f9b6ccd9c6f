// Package noise provides the noise sources injected into closed-loop
// simulations.
package noise

import (
	"fmt"
	"time"

	control "github.com/milosgajdos/go-control"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distmv"
)

// Gaussian is gaussian noise
type Gaussian struct {
	// dist is a multivariate normal distribution
	dist *distmv.Normal
	// mean is Gaussian mean
	mean []float64
	// cov is Gaussian covariance
	cov *mat.SymDense
	// seed is the source seed, 0 seeds from the clock
	seed uint64
}

// NewGaussian creates new Gaussian noise with given mean and covariance
// seeded from the clock.
// It returns error if cov is not positive definite or its size does not match mean.
func NewGaussian(mean []float64, cov mat.Symmetric) (*Gaussian, error) {
	return NewSeededGaussian(mean, cov, 0)
}

// NewSeededGaussian creates new Gaussian noise drawing from a source seeded
// with seed. Seed 0 seeds the source from the clock.
func NewSeededGaussian(mean []float64, cov mat.Symmetric, seed uint64) (*Gaussian, error) {
	if cov == nil || cov.SymmetricDim() != len(mean) {
		return nil, fmt.Errorf("%w: gaussian mean and covariance dimensions mismatch", control.ErrConfig)
	}

	c := mat.NewSymDense(cov.SymmetricDim(), nil)
	c.CopySym(cov)

	g := &Gaussian{
		mean: append([]float64(nil), mean...),
		cov:  c,
		seed: seed,
	}

	if err := g.Reset(); err != nil {
		return nil, err
	}

	return g, nil
}

// Sample generates a sample from Gaussian noise and returns it.
func (g *Gaussian) Sample() mat.Vector {
	r := g.dist.Rand(nil)
	return mat.NewVecDense(len(r), r)
}

// Cov returns covariance matrix of Gaussian noise.
func (g *Gaussian) Cov() mat.Symmetric {
	cov := mat.NewSymDense(g.cov.SymmetricDim(), nil)
	cov.CopySym(g.cov)
	return cov
}

// Mean returns Gaussian mean.
func (g *Gaussian) Mean() []float64 {
	return append([]float64(nil), g.mean...)
}

// Reset resets Gaussian noise. Seeded noise restarts its sequence.
// It returns error if it fails to reset the noise.
func (g *Gaussian) Reset() error {
	seed := g.seed
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}

	dist, ok := distmv.NewNormal(g.mean, g.cov, rand.NewSource(seed))
	if !ok {
		return fmt.Errorf("%w: gaussian covariance is not positive definite", control.ErrConfig)
	}
	g.dist = dist

	return nil
}

// String implements the Stringer interface.
func (g *Gaussian) String() string {
	return fmt.Sprintf("Gaussian{\nMean=%v\nCov=%v\n}", g.mean, mat.Formatted(g.cov, mat.Prefix("    "), mat.Squeeze()))
}

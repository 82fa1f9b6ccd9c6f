// Package rand draws correlated random perturbations.
package rand

import (
	"fmt"
	"math"

	control "github.com/milosgajdos/go-control"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"
)

// WithCovN draws n random samples from a zero-mean Normal distribution with
// covariance cov using a source seeded with seed.
// It returns matrix which contains the randomly generated samples stored in its columns.
// It fails with error if n is not positive or if SVD factorization of cov fails.
func WithCovN(cov mat.Symmetric, n int, seed uint64) (*mat.Dense, error) {
	if n <= 0 {
		return nil, fmt.Errorf("%w: invalid number of samples requested: %d", control.ErrConfig, n)
	}

	// SVD tolerates (almost) singular covariances where Cholesky does not
	var svd mat.SVD
	if ok := svd.Factorize(cov, mat.SVDFull); !ok {
		return nil, fmt.Errorf("%w: SVD factorization failed", control.ErrEvaluation)
	}

	U := new(mat.Dense)
	svd.UTo(U)
	vals := svd.Values(nil)
	for i := range vals {
		vals[i] = math.Sqrt(vals[i])
	}
	U.Mul(U, mat.NewDiagDense(len(vals), vals))

	std := distuv.Normal{Mu: 0, Sigma: 1, Src: rand.NewSource(seed)}

	rows, _ := cov.Dims()
	data := make([]float64, rows*n)
	for i := range data {
		data[i] = std.Rand()
	}
	samples := mat.NewDense(rows, n, data)
	samples.Mul(U, samples)

	return samples, nil
}

// StdNormal returns n independent samples of a zero-mean Normal
// distribution with standard deviation std.
func StdNormal(n int, std float64, src rand.Source) []float64 {
	dist := distuv.Normal{Mu: 0, Sigma: std, Src: src}
	out := make([]float64, n)
	for i := range out {
		out[i] = dist.Rand()
	}
	return out
}

package solver

// Search backtracks from a unit step along dz until merit(z + alpha*dz)
// drops below merit(z). When no trial decreases the merit within MaxIters
// it returns the smallest step tried instead of failing.
func (ls LineSearchConfig) Search(merit func([]float64) (float64, error), z, dz []float64) (float64, error) {
	m0, err := merit(z)
	if err != nil {
		return 0, err
	}

	trial := make([]float64, len(z))
	alpha, last := 1.0, 1.0
	for i := 0; i < ls.MaxIters; i++ {
		for j := range z {
			trial[j] = z[j] + alpha*dz[j]
		}
		m, err := merit(trial)
		if err != nil {
			return 0, err
		}
		if m < m0 {
			return alpha, nil
		}
		last = alpha
		alpha *= ls.Factor
	}

	return last, nil
}

package sim

import (
	"context"
	"fmt"
	"runtime"
	"sync"

	control "github.com/milosgajdos/go-control"
	"gonum.org/v1/gonum/mat"
)

// Ensemble rolls out n states from every initial state in x0s in parallel.
// Every worker runs on its own Clone of s. Cancelling ctx stops the
// ensemble between rollouts and returns the context error.
// The first failed rollout error is returned as a *control.StepError whose
// Step is the index of the initial state.
func (s *Sim) Ensemble(ctx context.Context, x0s []*mat.VecDense, us []*mat.VecDense, dt float64, n int) ([][]*mat.VecDense, error) {
	if len(x0s) == 0 {
		return nil, fmt.Errorf("%w: empty ensemble", control.ErrConfig)
	}

	workers := runtime.GOMAXPROCS(0)
	if workers > len(x0s) {
		workers = len(x0s)
	}

	out := make([][]*mat.VecDense, len(x0s))
	errs := make([]error, len(x0s))

	jobs := make(chan int)
	var wg sync.WaitGroup

	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(sim *Sim) {
			defer wg.Done()
			for i := range jobs {
				out[i], errs[i] = sim.Rollout(x0s[i], us, dt, n)
			}
		}(s.Clone())
	}

	var ctxErr error
feed:
	for i := range x0s {
		if ctxErr = ctx.Err(); ctxErr != nil {
			break
		}
		select {
		case <-ctx.Done():
			ctxErr = ctx.Err()
			break feed
		case jobs <- i:
		}
	}
	close(jobs)
	wg.Wait()

	if ctxErr != nil {
		return nil, ctxErr
	}

	for i, err := range errs {
		if err != nil {
			return nil, &control.StepError{Step: i, Err: err}
		}
	}

	return out, nil
}

// Energy returns the mechanical energy of every state in xs.
// It returns control.ErrUnexpected if the model does not report energy.
func (s *Sim) Energy(xs []*mat.VecDense) ([]control.Energy, error) {
	em, ok := s.model.(control.EnergyModel)
	if !ok {
		return nil, fmt.Errorf("%w: model does not report energy", control.ErrUnexpected)
	}

	out := make([]control.Energy, len(xs))
	for k, x := range xs {
		e, err := em.Energy(x)
		if err != nil {
			return nil, &control.StepError{Step: k, Err: err}
		}
		out[k] = e
	}

	return out, nil
}

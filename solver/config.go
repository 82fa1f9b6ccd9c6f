// Package solver implements dense Newton iterations for root finding and
// for equality and inequality constrained minimization.
package solver

import (
	"fmt"

	control "github.com/milosgajdos/go-control"
	"github.com/milosgajdos/go-control/symbolic"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

const (
	// DefaultMaxIters is the default Newton iteration cap.
	DefaultMaxIters = 200
	// DefaultTolerance is the default convergence tolerance.
	DefaultTolerance = 1e-6
	// DefaultLineSearchFactor is the default backtracking shrink factor.
	DefaultLineSearchFactor = 0.5
	// DefaultLineSearchIters is the default backtracking iteration cap.
	DefaultLineSearchIters = 10
)

// LineSearchConfig configures backtracking line search.
type LineSearchConfig struct {
	// Factor shrinks the step after every rejected trial
	Factor float64 `yaml:"factor"`
	// MaxIters caps the number of trials
	MaxIters int `yaml:"max_iters"`
}

// Config configures Newton solvers.
type Config struct {
	// MaxIters caps Newton iterations
	MaxIters int `yaml:"max_iters"`
	// Tolerance is the convergence tolerance on the residual norm
	Tolerance float64 `yaml:"tolerance"`
	// GaussNewton drops constraint curvature from the Lagrangian Hessian
	GaussNewton bool `yaml:"gauss_newton"`
	// Regularization is added to the Hessian diagonal
	Regularization float64 `yaml:"regularization"`
	// Verbose enables per iteration debug logging
	Verbose bool `yaml:"verbose"`
	// LineSearch configures backtracking
	LineSearch LineSearchConfig `yaml:"line_search"`
}

// DefaultConfig returns the default solver configuration.
func DefaultConfig() Config {
	return Config{
		MaxIters:    DefaultMaxIters,
		Tolerance:   DefaultTolerance,
		GaussNewton: true,
		LineSearch: LineSearchConfig{
			Factor:   DefaultLineSearchFactor,
			MaxIters: DefaultLineSearchIters,
		},
	}
}

// Validate checks configuration ranges.
// It returns all violations wrapped in control.ErrConfig.
func (c Config) Validate() error {
	var err error
	if c.MaxIters < 1 || c.MaxIters > 1000 {
		err = multierr.Append(err, fmt.Errorf("max iterations %d not in [1, 1000]", c.MaxIters))
	}
	if c.Tolerance < 1e-18 {
		err = multierr.Append(err, fmt.Errorf("tolerance %g below 1e-18", c.Tolerance))
	}
	if c.Regularization < 0 {
		err = multierr.Append(err, fmt.Errorf("negative regularization %g", c.Regularization))
	}
	if c.LineSearch.Factor < 1e-18 || c.LineSearch.Factor > 1 {
		err = multierr.Append(err, fmt.Errorf("line search factor %g not in [1e-18, 1]", c.LineSearch.Factor))
	}
	if c.LineSearch.MaxIters < 1 || c.LineSearch.MaxIters > 30 {
		err = multierr.Append(err, fmt.Errorf("line search iterations %d not in [1, 30]", c.LineSearch.MaxIters))
	}
	if err != nil {
		return fmt.Errorf("%w: %v", control.ErrConfig, err)
	}
	return nil
}

type options struct {
	logger *zap.SugaredLogger
	merit  symbolic.Expr
	diff   symbolic.Differentiator
}

// Option configures a solver.
type Option func(*options)

// WithLogger sets the logger used when Config.Verbose is set.
func WithLogger(l *zap.SugaredLogger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// WithMerit replaces the default residual norm merit function of the
// line search with e, an expression in the solver unknowns.
func WithMerit(e symbolic.Expr) Option {
	return func(o *options) {
		o.merit = e
	}
}

// WithDifferentiator sets the differentiator used to build derivatives.
func WithDifferentiator(d symbolic.Differentiator) Option {
	return func(o *options) {
		o.diff = d
	}
}

func newOptions(opts []Option) options {
	o := options{
		logger: zap.NewNop().Sugar(),
		diff:   symbolic.Local{},
	}
	for _, apply := range opts {
		apply(&o)
	}
	return o
}

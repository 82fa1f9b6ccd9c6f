package qp

import (
	"fmt"

	control "github.com/milosgajdos/go-control"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// Settings configures the ADMM iteration
type Settings struct {
	// Rho is the initial ADMM step size
	Rho float64 `yaml:"rho"`
	// Sigma regularizes the linear system
	Sigma float64 `yaml:"sigma"`
	// Alpha is the over-relaxation parameter in (0, 2)
	Alpha float64 `yaml:"alpha"`
	// EpsAbs is the absolute convergence tolerance
	EpsAbs float64 `yaml:"eps_abs"`
	// EpsRel is the relative convergence tolerance
	EpsRel float64 `yaml:"eps_rel"`
	// MaxIter caps the number of ADMM iterations
	MaxIter int `yaml:"max_iter"`
	// WarmStart starts every solve from the previous solution
	WarmStart bool `yaml:"warm_start"`
	// AdaptiveRho rescales Rho from the residual ratio
	AdaptiveRho bool `yaml:"adaptive_rho"`
	// Verbose logs the residuals at debug level
	Verbose bool `yaml:"verbose"`
}

const (
	// rhoEqScale scales the step size of equality rows
	rhoEqScale = 1e3
	// rhoMin is the step size of unbounded rows
	rhoMin = 1e-6
	// rhoMax caps adapted step sizes
	rhoMax = 1e6
	// adaptInterval is the number of iterations between step size updates
	adaptInterval = 25
	// adaptTolerance is the step size change that triggers refactorization
	adaptTolerance = 5
)

// DefaultSettings returns the default settings.
func DefaultSettings() Settings {
	return Settings{
		Rho:         0.1,
		Sigma:       1e-6,
		Alpha:       1.6,
		EpsAbs:      1e-5,
		EpsRel:      1e-5,
		MaxIter:     4000,
		WarmStart:   true,
		AdaptiveRho: true,
	}
}

// Validate validates the settings.
func (s Settings) Validate() error {
	var err error
	if s.Rho <= 0 {
		err = multierr.Append(err, fmt.Errorf("non-positive rho %g", s.Rho))
	}
	if s.Sigma <= 0 {
		err = multierr.Append(err, fmt.Errorf("non-positive sigma %g", s.Sigma))
	}
	if s.Alpha <= 0 || s.Alpha >= 2 {
		err = multierr.Append(err, fmt.Errorf("alpha %g not in (0, 2)", s.Alpha))
	}
	if s.EpsAbs < 0 || s.EpsRel < 0 || s.EpsAbs+s.EpsRel == 0 {
		err = multierr.Append(err, fmt.Errorf("invalid tolerances abs %g, rel %g", s.EpsAbs, s.EpsRel))
	}
	if s.MaxIter < 1 {
		err = multierr.Append(err, fmt.Errorf("max iterations %d below 1", s.MaxIter))
	}
	if err != nil {
		return fmt.Errorf("%w: %v", control.ErrConfig, err)
	}
	return nil
}

// Option configures a Solver
type Option func(*options)

type options struct {
	logger *zap.SugaredLogger
}

// WithLogger sets the logger used in verbose mode.
func WithLogger(l *zap.SugaredLogger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// Status is the outcome of a solve
type Status int

const (
	// Unsolved means Solve was not called yet
	Unsolved Status = iota
	// Solved means both residuals are within tolerance
	Solved
	// MaxIterReached means the iteration cap was hit
	MaxIterReached
)

// String implements the Stringer interface.
func (s Status) String() string {
	switch s {
	case Unsolved:
		return "unsolved"
	case Solved:
		return "solved"
	case MaxIterReached:
		return "maximum iterations reached"
	}
	return fmt.Sprintf("Status(%d)", int(s))
}

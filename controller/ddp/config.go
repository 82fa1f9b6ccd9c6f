package ddp

import (
	"fmt"
	"strings"

	control "github.com/milosgajdos/go-control"
	"go.uber.org/multierr"
)

// Mode selects the expansion of the dynamics in the backward pass.
type Mode int

const (
	// ILQR uses first order dynamics
	ILQR Mode = iota
	// DDP adds the second order dynamics terms
	DDP
)

// String implements the Stringer interface.
func (m Mode) String() string {
	switch m {
	case ILQR:
		return "ilqr"
	case DDP:
		return "ddp"
	}
	return fmt.Sprintf("Mode(%d)", int(m))
}

// ParseMode returns the Mode named s.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(s) {
	case "ilqr":
		return ILQR, nil
	case "ddp":
		return DDP, nil
	}
	return 0, fmt.Errorf("%w: unknown mode %q", control.ErrConfig, s)
}

// Config configures the solver.
type Config struct {
	// Mode selects iLQR or DDP
	Mode Mode `yaml:"-"`
	// MaxIter caps the outer iterations
	MaxIter int `yaml:"max_iter"`
	// LineSearchIter caps the forward pass step halvings
	LineSearchIter int `yaml:"line_search_iter"`
	// Tol is the convergence tolerance on the expected cost decrease
	Tol float64 `yaml:"tol"`
	// Regularization is the initial regularization of the DDP backward pass
	Regularization float64 `yaml:"regularization"`
	// MaxRegularization caps the regularization
	MaxRegularization float64 `yaml:"max_regularization"`
	// FreeSetTol is the distance from a bound under which an input is clamped
	FreeSetTol float64 `yaml:"free_set_tol"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		Mode:              ILQR,
		MaxIter:           250,
		LineSearchIter:    20,
		Tol:               1e-3,
		Regularization:    0.1,
		MaxRegularization: 1e10,
		FreeSetTol:        1e-6,
	}
}

// Validate validates the configuration.
func (c Config) Validate() error {
	var err error
	if c.Mode != ILQR && c.Mode != DDP {
		err = multierr.Append(err, fmt.Errorf("unknown mode %s", c.Mode))
	}
	if c.MaxIter < 1 {
		err = multierr.Append(err, fmt.Errorf("max iterations %d below 1", c.MaxIter))
	}
	if c.LineSearchIter < 1 {
		err = multierr.Append(err, fmt.Errorf("line search iterations %d below 1", c.LineSearchIter))
	}
	if c.Tol <= 0 {
		err = multierr.Append(err, fmt.Errorf("non-positive tolerance %g", c.Tol))
	}
	if c.Regularization <= 0 || c.MaxRegularization < c.Regularization {
		err = multierr.Append(err, fmt.Errorf("invalid regularization %g, max %g", c.Regularization, c.MaxRegularization))
	}
	if c.FreeSetTol < 0 {
		err = multierr.Append(err, fmt.Errorf("negative free set tolerance %g", c.FreeSetTol))
	}
	if err != nil {
		return fmt.Errorf("%w: %v", control.ErrConfig, err)
	}
	return nil
}

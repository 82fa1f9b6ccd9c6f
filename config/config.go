// Package config loads and saves YAML scenario files describing a model,
// its discretization and the controller driving it.
package config

import (
	"fmt"
	"math"
	"os"

	control "github.com/milosgajdos/go-control"
	"github.com/milosgajdos/go-control/controller"
	"github.com/milosgajdos/go-control/controller/ddp"
	"github.com/milosgajdos/go-control/controller/mpc"
	"github.com/milosgajdos/go-control/controller/riccati"
	"github.com/milosgajdos/go-control/controller/shooting"
	"github.com/milosgajdos/go-control/discretizer"
	"github.com/milosgajdos/go-control/qp"
	"github.com/milosgajdos/go-control/solver"
	"go.uber.org/multierr"
	"gopkg.in/yaml.v3"
)

const (
	// DefaultDt is the default time step
	DefaultDt = 0.05
	// DefaultHorizon is the default time horizon
	DefaultHorizon = 5.0
)

// Model kinds
const (
	LTI            = "lti"
	Pendulum       = "pendulum"
	DoublePendulum = "double_pendulum"
	BouncingBall   = "bouncing_ball"
	CartPole       = "cart_pole"
)

// Controller kinds
const (
	Riccati          = "riccati"
	ILQR             = "ilqr"
	DDP              = "ddp"
	QPLQR            = "qplqr"
	MPC              = "mpc"
	Shooting         = "shooting"
	ShootingSymbolic = "shooting_symbolic"
)

// ModelConfig describes the plant model.
type ModelConfig struct {
	Kind     string  `yaml:"kind"`
	Mass     float64 `yaml:"mass,omitempty"`
	Length   float64 `yaml:"length,omitempty"`
	Damping  float64 `yaml:"damping,omitempty"`
	Mass2    float64 `yaml:"mass2,omitempty"`
	Length2  float64 `yaml:"length2,omitempty"`
	Friction float64 `yaml:"friction,omitempty"`
	// A and B are the rows of the continuous LTI matrices
	A [][]float64 `yaml:"a,omitempty"`
	B [][]float64 `yaml:"b,omitempty"`
}

// WeightsConfig holds the diagonals of the cost weights.
type WeightsConfig struct {
	Q  []float64 `yaml:"q"`
	Qn []float64 `yaml:"qn"`
	R  []float64 `yaml:"r"`
}

// LimitsConfig holds box limits.
type LimitsConfig struct {
	Lower []float64 `yaml:"lower"`
	Upper []float64 `yaml:"upper"`
}

// DDPConfig configures the iLQR and DDP controllers.
type DDPConfig struct {
	Mode       string `yaml:"mode"`
	ddp.Config `yaml:",inline"`
}

// Config is a scenario.
type Config struct {
	Model       ModelConfig   `yaml:"model"`
	Discretizer string        `yaml:"discretizer"`
	Controller  string        `yaml:"controller"`
	Dt          float64       `yaml:"dt"`
	Horizon     float64       `yaml:"horizon"`
	X0          []float64     `yaml:"x0"`
	Reference   [][]float64   `yaml:"reference"`
	StateOp     []float64     `yaml:"state_op,omitempty"`
	InputOp     []float64     `yaml:"input_op,omitempty"`
	Weights     WeightsConfig `yaml:"weights"`
	InputLimits *LimitsConfig `yaml:"input_limits,omitempty"`
	StateLimits *LimitsConfig `yaml:"state_limits,omitempty"`
	// Params overrides the model parameters seen by the linearizer
	Params   []float64        `yaml:"params,omitempty"`
	Noise    controller.Noise `yaml:"noise"`
	Solver   solver.Config    `yaml:"solver"`
	Riccati  riccati.Config   `yaml:"riccati"`
	DDP      DDPConfig        `yaml:"ddp"`
	QP       qp.Settings      `yaml:"qp"`
	MPC      MPCConfig        `yaml:"mpc"`
	Shooting shooting.Config  `yaml:"shooting"`
}

// MPCConfig configures the receding horizon controller. Its QP settings
// are taken from Config.QP.
type MPCConfig struct {
	Horizon             float64 `yaml:"horizon"`
	SteadyStateTerminal bool    `yaml:"steady_state_terminal"`
}

// DefaultConfig returns the default scenario: balancing a pendulum at the
// upright position with Riccati LQR.
func DefaultConfig() *Config {
	m := mpc.DefaultConfig()
	return &Config{
		Model: ModelConfig{
			Kind:    Pendulum,
			Mass:    1,
			Length:  1,
			Damping: 0.1,
		},
		Discretizer: discretizer.RK4.String(),
		Controller:  Riccati,
		Dt:          DefaultDt,
		Horizon:     DefaultHorizon,
		X0:          []float64{3.0, 0},
		Reference:   [][]float64{{math.Pi, 0}},
		Weights: WeightsConfig{
			Q:  []float64{10, 1},
			Qn: []float64{100, 10},
			R:  []float64{0.1},
		},
		Solver:   solver.DefaultConfig(),
		Riccati:  riccati.DefaultConfig(),
		DDP:      DDPConfig{Mode: ddp.ILQR.String(), Config: ddp.DefaultConfig()},
		QP:       qp.DefaultSettings(),
		MPC:      MPCConfig{Horizon: m.Horizon, SteadyStateTerminal: m.SteadyStateTerminal},
		Shooting: shooting.DefaultConfig(),
	}
}

// Load reads the scenario stored in path on top of DefaultConfig and
// validates it.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Parse decodes a YAML scenario on top of DefaultConfig and validates it.
func Parse(data []byte) (*Config, error) {
	c := DefaultConfig()
	if err := yaml.Unmarshal(data, c); err != nil {
		return nil, fmt.Errorf("%w: %v", control.ErrConfig, err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Save writes c to path as YAML.
func Save(path string, c *Config) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// Validate checks the scenario for consistency. Dimensions are checked
// against the model when the scenario is built.
func (c *Config) Validate() error {
	var err error

	switch c.Model.Kind {
	case Pendulum, DoublePendulum, BouncingBall, CartPole:
	case LTI:
		if len(c.Model.A) == 0 || len(c.Model.B) != len(c.Model.A) {
			err = multierr.Append(err, fmt.Errorf("lti model needs A and B with matching rows"))
		}
	default:
		err = multierr.Append(err, fmt.Errorf("unknown model %q", c.Model.Kind))
	}

	if _, e := discretizer.ParseKind(c.Discretizer); e != nil {
		err = multierr.Append(err, e)
	}

	switch c.Controller {
	case Riccati, ILQR, DDP, QPLQR, MPC, Shooting, ShootingSymbolic:
	default:
		err = multierr.Append(err, fmt.Errorf("unknown controller %q", c.Controller))
	}

	if c.Dt <= 0 {
		err = multierr.Append(err, fmt.Errorf("non-positive time step %g", c.Dt))
	}
	if c.Horizon < c.Dt {
		err = multierr.Append(err, fmt.Errorf("horizon %g shorter than time step %g", c.Horizon, c.Dt))
	}
	if len(c.X0) == 0 {
		err = multierr.Append(err, fmt.Errorf("empty initial state"))
	}
	if len(c.Reference) == 0 {
		err = multierr.Append(err, fmt.Errorf("empty reference"))
	}
	if len(c.Weights.Q) == 0 || len(c.Weights.Qn) == 0 || len(c.Weights.R) == 0 {
		err = multierr.Append(err, fmt.Errorf("missing cost weights"))
	}
	if _, e := ddp.ParseMode(c.DDP.Mode); e != nil {
		err = multierr.Append(err, e)
	}

	for _, v := range []interface{ Validate() error }{
		c.Solver, c.Riccati, c.DDP.Config, c.QP, c.Shooting,
	} {
		err = multierr.Append(err, v.Validate())
	}

	if err != nil {
		return fmt.Errorf("%w: %v", control.ErrConfig, err)
	}
	return nil
}

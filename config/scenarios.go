package config

import (
	"fmt"
	"io"
	"sort"

	control "github.com/milosgajdos/go-control"
	"github.com/milosgajdos/go-control/discretizer"
	"gopkg.in/yaml.v3"
)

var scenarios = map[string]func() *Config{
	"pendulum-lqr": DefaultConfig,
	"pendulum-ilqr": func() *Config {
		c := DefaultConfig()
		c.Controller = ILQR
		c.Horizon = 3
		c.X0 = []float64{0, 0}
		c.Weights = WeightsConfig{Q: []float64{0.1, 0.1}, Qn: []float64{100, 10}, R: []float64{0.05}}
		return c
	},
	"pendulum-shooting": func() *Config {
		c := DefaultConfig()
		c.Controller = ShootingSymbolic
		c.Horizon = 2
		c.X0 = []float64{0.5, 0}
		c.Reference = [][]float64{{0, 0}}
		c.Weights = WeightsConfig{Q: []float64{1, 0.1}, Qn: []float64{10, 1}, R: []float64{0.1}}
		return c
	},
	"double-pendulum-ddp": func() *Config {
		c := DefaultConfig()
		c.Model = ModelConfig{Kind: DoublePendulum, Mass: 1, Mass2: 1, Length: 1, Length2: 1}
		c.Controller = DDP
		c.Horizon = 2
		c.X0 = []float64{0.3, -0.2, 0, 0}
		c.Reference = [][]float64{{0, 0, 0, 0}}
		c.Weights = WeightsConfig{Q: []float64{1, 1, 0.1, 0.1}, Qn: []float64{10, 10, 1, 1}, R: []float64{0.1, 0.1}}
		c.DDP.Mode = DDP
		c.DDP.MaxIter = 50
		return c
	},
	"cart-pole-ilqr": func() *Config {
		c := DefaultConfig()
		c.Model = ModelConfig{Kind: CartPole, Mass: 0.1, Mass2: 1, Length: 0.5}
		c.Controller = ILQR
		c.Horizon = 2
		c.X0 = []float64{0, 0.2, 0, 0}
		c.Reference = [][]float64{{0, 0, 0, 0}}
		c.Weights = WeightsConfig{Q: []float64{1, 10, 0.1, 0.1}, Qn: []float64{10, 100, 1, 1}, R: []float64{0.01}}
		c.DDP.MaxIter = 50
		return c
	},
	"integrator-mpc": func() *Config {
		c := integrator()
		c.Controller = MPC
		c.Horizon = 6
		c.InputLimits = &LimitsConfig{Lower: []float64{-1}, Upper: []float64{1}}
		c.MPC = MPCConfig{Horizon: 1.5, SteadyStateTerminal: true}
		return c
	},
	"integrator-qplqr": func() *Config {
		c := integrator()
		c.Controller = QPLQR
		c.StateLimits = &LimitsConfig{Lower: []float64{-10, -0.5}, Upper: []float64{10, 0.5}}
		return c
	},
}

// integrator is a double integrator moved from rest at 0 to rest at 1.
func integrator() *Config {
	c := DefaultConfig()
	c.Model = ModelConfig{
		Kind: LTI,
		A:    [][]float64{{0, 1}, {0, 0}},
		B:    [][]float64{{0}, {1}},
	}
	c.Discretizer = discretizer.ZeroOrderHold.String()
	c.Dt = 0.1
	c.Horizon = 5
	c.X0 = []float64{0, 0}
	c.Reference = [][]float64{{1, 0}}
	c.Weights = WeightsConfig{Q: []float64{1, 1}, Qn: []float64{10, 10}, R: []float64{0.1}}
	return c
}

// Scenarios returns the names of the bundled scenarios.
func Scenarios() []string {
	names := make([]string, 0, len(scenarios))
	for n := range scenarios {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Scenario returns the bundled scenario called name.
func Scenario(name string) (*Config, error) {
	fn, ok := scenarios[name]
	if !ok {
		return nil, fmt.Errorf("%w: unknown scenario %q", control.ErrConfig, name)
	}
	return fn(), nil
}

// Write encodes c as YAML into w.
func Write(w io.Writer, c *Config) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(c); err != nil {
		return err
	}
	return enc.Close()
}


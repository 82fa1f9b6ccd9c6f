package config

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	control "github.com/milosgajdos/go-control"
	"github.com/milosgajdos/go-control/controller/ddp"
	"github.com/stretchr/testify/assert"
	"gonum.org/v1/gonum/mat"
)

var integratorYAML []byte

func setup() {
	integratorYAML = []byte(`
model:
  kind: lti
  a: [[0, 1], [0, 0]]
  b: [[0], [1]]
discretizer: zoh
controller: riccati
dt: 0.1
horizon: 2
x0: [1, 0]
reference: [[0, 0]]
weights:
  q: [1, 1]
  qn: [10, 10]
  r: [0.1]
mpc:
  horizon: 0.5
ddp:
  mode: ddp
  max_iter: 50
`)
}

func TestMain(m *testing.M) {
	// set up tests
	setup()
	// run the tests
	retCode := m.Run()
	// call with result of m.Run()
	os.Exit(retCode)
}

func TestDefaultConfig(t *testing.T) {
	assert := assert.New(t)

	c := DefaultConfig()
	assert.NoError(c.Validate())

	plant, err := c.NewPlant(nil)
	assert.NoError(err)
	nx, nu := plant.Dims()
	assert.Equal(2, nx)
	assert.Equal(1, nu)

	ctrl, err := c.NewController(plant, nil)
	assert.NoError(err)
	assert.NotNil(ctrl)
}

func TestParse(t *testing.T) {
	assert := assert.New(t)

	c, err := Parse(integratorYAML)
	assert.NoError(err)

	assert.Equal(LTI, c.Model.Kind)
	assert.Equal(0.1, c.Dt)
	assert.Equal(0.5, c.MPC.Horizon)
	assert.Equal("ddp", c.DDP.Mode)
	assert.Equal(50, c.DDP.MaxIter)
	// unset fields keep their defaults
	assert.Equal(ddp.DefaultConfig().LineSearchIter, c.DDP.LineSearchIter)
	assert.Equal(DefaultConfig().QP, c.QP)

	_, err = Parse([]byte("controller: [oops"))
	assert.ErrorIs(err, control.ErrConfig)

	_, err = Parse([]byte("controller: pid"))
	assert.ErrorIs(err, control.ErrConfig)
}

func TestLoadSave(t *testing.T) {
	assert := assert.New(t)

	c, err := Parse(integratorYAML)
	assert.NoError(err)

	path := filepath.Join(t.TempDir(), "scenario.yaml")
	assert.NoError(Save(path, c))

	loaded, err := Load(path)
	assert.NoError(err)
	assert.Equal(c, loaded)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(err)
}

func TestValidate(t *testing.T) {
	assert := assert.New(t)

	testCases := []func(*Config){
		func(c *Config) { c.Model.Kind = "cartpole" },
		func(c *Config) { c.Model = ModelConfig{Kind: LTI} },
		func(c *Config) { c.Discretizer = "leapfrog" },
		func(c *Config) { c.Controller = "pid" },
		func(c *Config) { c.Dt = 0 },
		func(c *Config) { c.Horizon = c.Dt / 2 },
		func(c *Config) { c.X0 = nil },
		func(c *Config) { c.Reference = nil },
		func(c *Config) { c.Weights.R = nil },
		func(c *Config) { c.DDP.Mode = "newton" },
		func(c *Config) { c.Solver.MaxIters = 0 },
		func(c *Config) { c.QP.Alpha = 3 },
		func(c *Config) { c.Shooting.Tol = 0 },
	}

	for i, tc := range testCases {
		c := DefaultConfig()
		tc(c)
		assert.ErrorIs(c.Validate(), control.ErrConfig, "case %d", i)
	}
}

func TestNewModel(t *testing.T) {
	assert := assert.New(t)

	for _, kind := range []string{Pendulum, DoublePendulum, BouncingBall, CartPole} {
		c := DefaultConfig()
		c.Model = ModelConfig{Kind: kind, Mass: 1, Mass2: 1, Length: 1, Length2: 1}
		m, err := c.NewModel()
		assert.NoError(err, kind)
		assert.NotNil(m, kind)
	}

	c := DefaultConfig()
	c.Model = ModelConfig{Kind: LTI, A: [][]float64{{0, 1}, {0}}, B: [][]float64{{0}, {1}}}
	_, err := c.NewModel()
	assert.ErrorIs(err, control.ErrConfig)

	c.Model = ModelConfig{Kind: Pendulum}
	_, err = c.NewModel()
	assert.ErrorIs(err, control.ErrConfig)
}

func TestNewController(t *testing.T) {
	assert := assert.New(t)

	c, err := Parse(integratorYAML)
	assert.NoError(err)

	plant, err := c.NewPlant(nil)
	assert.NoError(err)

	x0 := c.InitialState()
	for _, kind := range []string{Riccati, ILQR, DDP, QPLQR, MPC, Shooting, ShootingSymbolic} {
		c.Controller = kind
		ctrl, err := c.NewController(plant, nil)
		assert.NoError(err, kind)

		traj, err := ctrl.Solve(x0)
		assert.NoError(err, kind)
		assert.Equal(21, traj.Len(), kind)
		assert.Len(ctrl.InputTrajectory(), 20, kind)

		// every controller drives the state towards the origin
		final := traj.States[traj.Len()-1]
		assert.Less(mat.Norm(final, 2), mat.Norm(x0, 2), kind)
	}

	c.Controller = Shooting
	c.InputLimits = &LimitsConfig{Lower: []float64{-1}, Upper: []float64{1}}
	_, err = c.NewController(plant, nil)
	assert.ErrorIs(err, control.ErrUnexpected)

	c.InputLimits = &LimitsConfig{Lower: []float64{1}, Upper: []float64{-1}}
	_, err = c.NewController(plant, nil)
	assert.ErrorIs(err, control.ErrConfig)
}

func TestScenarios(t *testing.T) {
	assert := assert.New(t)

	names := Scenarios()
	assert.Contains(names, "pendulum-lqr")
	assert.Contains(names, "integrator-mpc")
	assert.Contains(names, "cart-pole-ilqr")

	for _, name := range names {
		c, err := Scenario(name)
		assert.NoError(err, name)
		assert.NoError(c.Validate(), name)

		plant, err := c.NewPlant(nil)
		assert.NoError(err, name)

		nx, _ := plant.Dims()
		assert.Equal(nx, len(c.X0), name)

		_, err = c.NewController(plant, nil)
		assert.NoError(err, name)
	}

	_, err := Scenario("cartpole")
	assert.ErrorIs(err, control.ErrConfig)
}

func TestWrite(t *testing.T) {
	assert := assert.New(t)

	c, err := Scenario("integrator-mpc")
	assert.NoError(err)

	var buf bytes.Buffer
	assert.NoError(Write(&buf, c))

	parsed, err := Parse(buf.Bytes())
	assert.NoError(err)
	assert.Equal(c, parsed)
}

package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/guptarohit/asciigraph"
	"github.com/milosgajdos/go-control/config"
	"github.com/milosgajdos/go-control/cost"
	"github.com/milosgajdos/go-control/sim"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/mat"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#00ccff"))

	panelStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#444466")).
			Padding(0, 1)

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#888899")).
			Width(14)

	valueStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#00ff88")).
			Bold(true)
)

type runFlags struct {
	configFile string
	scenario   string
	controller string
	plot       string
	width      int
	height     int
}

func newRunCmd(verbose *bool) *cobra.Command {
	f := runFlags{}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "solve a scenario and chart the result",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := newLogger(*verbose)
			if err != nil {
				return err
			}
			defer logger.Sync() //nolint:errcheck

			return run(cmd, f, logger.Sugar())
		},
	}

	cmd.Flags().StringVarP(&f.configFile, "config", "c", "", "scenario file path (yaml)")
	cmd.Flags().StringVarP(&f.scenario, "scenario", "s", "pendulum-lqr", "bundled scenario")
	cmd.Flags().StringVar(&f.controller, "controller", "", "override the scenario controller")
	cmd.Flags().StringVar(&f.plot, "plot", "", "write a PNG plot of the states to this path")
	cmd.Flags().IntVar(&f.width, "width", 60, "chart width")
	cmd.Flags().IntVar(&f.height, "height", 10, "chart height")

	return cmd
}

func newListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "list bundled scenarios",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, name := range config.Scenarios() {
				c, err := config.Scenario(name)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%-22s %s/%s/%s\n", name, c.Model.Kind, c.Discretizer, c.Controller)
			}
			return nil
		},
	}
}

func newShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show [scenario]",
		Short: "print a bundled scenario as yaml",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := config.Scenario(args[0])
			if err != nil {
				return err
			}
			return config.Write(cmd.OutOrStdout(), c)
		},
	}
}

func newLogger(verbose bool) (*zap.Logger, error) {
	if !verbose {
		return zap.NewNop(), nil
	}
	return zap.NewDevelopment()
}

func load(f runFlags) (*config.Config, error) {
	var (
		c   *config.Config
		err error
	)

	if f.configFile != "" {
		c, err = config.Load(f.configFile)
	} else {
		c, err = config.Scenario(f.scenario)
	}
	if err != nil {
		return nil, err
	}

	if f.controller != "" {
		c.Controller = f.controller
		if err := c.Validate(); err != nil {
			return nil, err
		}
	}

	return c, nil
}

func run(cmd *cobra.Command, f runFlags, logger *zap.SugaredLogger) error {
	c, err := load(f)
	if err != nil {
		return err
	}

	plant, err := c.NewPlant(logger)
	if err != nil {
		return err
	}

	ctrl, err := c.NewController(plant, logger)
	if err != nil {
		return err
	}

	logger.Infow("solving", "model", c.Model.Kind, "discretizer", c.Discretizer, "controller", c.Controller)

	traj, err := ctrl.Solve(c.InitialState())
	if err != nil {
		return err
	}

	j, err := trajectoryCost(c, plant, traj.States, traj.Inputs)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	names := plant.Model().StateLayout().Names()

	for i, name := range names {
		fmt.Fprintln(out, chart(name, component(traj.States, i), f.width, f.height))
	}
	if len(traj.Inputs) > 0 {
		for i, name := range plant.Model().InputLayout().Names() {
			fmt.Fprintln(out, chart(name, component(traj.Inputs, i), f.width, f.height))
		}
	}

	final := traj.States[len(traj.States)-1]
	fmt.Fprintln(out, summary(c, names, len(traj.States), final, j))

	if f.plot != "" {
		p, err := sim.NewTrajectoryPlot(c.Controller, sim.Times(len(traj.States), c.Dt), traj.States, names)
		if err != nil {
			return err
		}
		if err := sim.SavePNG(p, 8, 5, f.plot); err != nil {
			return err
		}
		logger.Infow("plot written", "path", f.plot)
	}

	return nil
}

func trajectoryCost(c *config.Config, plant *sim.Sim, xs, us []*mat.VecDense) (float64, error) {
	o, err := c.Options(nil)
	if err != nil {
		return 0, err
	}
	if err := o.Validate(plant.Dims()); err != nil {
		return 0, err
	}

	w := c.NewWeights()
	q, err := cost.NewQuadratic(w.Q, w.Qn, w.R, o.References(len(xs)))
	if err != nil {
		return 0, err
	}
	return q.Cost(xs, us)
}

func component(vs []*mat.VecDense, i int) []float64 {
	out := make([]float64, len(vs))
	for k, v := range vs {
		out[k] = v.AtVec(i)
	}
	return out
}

func chart(name string, data []float64, width, height int) string {
	return asciigraph.Plot(data,
		asciigraph.Height(height),
		asciigraph.Width(width),
		asciigraph.Precision(3),
		asciigraph.Caption(name),
	)
}

func summary(c *config.Config, names []string, steps int, final *mat.VecDense, j float64) string {
	var s strings.Builder

	s.WriteString(titleStyle.Render(fmt.Sprintf("%s / %s / %s", c.Model.Kind, c.Discretizer, c.Controller)) + "\n")

	row := func(label, value string) {
		s.WriteString(labelStyle.Render(label) + valueStyle.Render(value) + "\n")
	}

	row("steps", fmt.Sprintf("%d", steps))
	row("cost", fmt.Sprintf("%.4f", j))
	for i, name := range names {
		row(name, fmt.Sprintf("%.4f", final.AtVec(i)))
	}

	return panelStyle.Render(strings.TrimRight(s.String(), "\n"))
}

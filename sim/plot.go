package sim

import (
	"fmt"
	"image/color"

	control "github.com/milosgajdos/go-control"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
)

// NewTrajectoryPlot creates a plot with one line per vector component of
// vs against times. names label the components; missing names fall back
// to the component index.
// It returns error if vs is empty or vs and times differ in length.
func NewTrajectoryPlot(title string, times []float64, vs []*mat.VecDense, names []string) (*plot.Plot, error) {
	if len(vs) == 0 || len(vs) != len(times) {
		return nil, fmt.Errorf("%w: %d samples for %d time points", control.ErrConfig, len(vs), len(times))
	}

	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "t"
	p.Legend.Top = true
	p.Add(plotter.NewGrid())

	for i := 0; i < vs[0].Len(); i++ {
		pts := make(plotter.XYs, len(vs))
		for k, v := range vs {
			pts[k].X = times[k]
			pts[k].Y = v.AtVec(i)
		}

		line, err := plotter.NewLine(pts)
		if err != nil {
			return nil, err
		}
		line.LineStyle.Width = vg.Points(1.5)
		line.LineStyle.Color = plotutil.Color(i)

		name := fmt.Sprintf("x%d", i)
		if i < len(names) {
			name = names[i]
		}

		p.Add(line)
		p.Legend.Add(name, line)
	}

	return p, nil
}

// NewPhasePlot creates a scatter plot of component j against component i
// of xs. The reference ref is drawn as a second scatter when not nil.
// It returns error if xs is empty or the indices are out of range.
func NewPhasePlot(title string, xs, ref []*mat.VecDense, i, j int) (*plot.Plot, error) {
	if len(xs) == 0 {
		return nil, fmt.Errorf("%w: empty trajectory", control.ErrConfig)
	}
	if n := xs[0].Len(); i < 0 || j < 0 || i >= n || j >= n {
		return nil, fmt.Errorf("%w: components (%d, %d) out of range [0, %d)", control.ErrConfig, i, j, n)
	}

	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = fmt.Sprintf("x%d", i)
	p.Y.Label.Text = fmt.Sprintf("x%d", j)
	p.Legend.Top = true

	states, err := plotter.NewScatter(makePoints(xs, i, j))
	if err != nil {
		return nil, err
	}
	states.GlyphStyle.Color = color.RGBA{R: 255, B: 128, A: 255}
	states.Shape = draw.PyramidGlyph{}
	states.GlyphStyle.Radius = vg.Points(3)

	p.Add(states)
	p.Legend.Add("trajectory", states)

	if len(ref) > 0 {
		refs, err := plotter.NewScatter(makePoints(ref, i, j))
		if err != nil {
			return nil, fmt.Errorf("failed to create scatter: %w", err)
		}
		refs.GlyphStyle.Color = color.RGBA{R: 169, G: 169, B: 169, A: 255}
		refs.Shape = draw.CrossGlyph{}
		refs.GlyphStyle.Radius = vg.Points(3)

		p.Add(refs)
		p.Legend.Add("reference", refs)
	}

	return p, nil
}

// NewEnergyPlot plots kinetic, potential and total energy against times.
func NewEnergyPlot(title string, times []float64, es []control.Energy) (*plot.Plot, error) {
	vs := make([]*mat.VecDense, len(es))
	for k, e := range es {
		vs[k] = mat.NewVecDense(3, []float64{e.Kinetic, e.Potential, e.Total()})
	}
	return NewTrajectoryPlot(title, times, vs, []string{"kinetic", "potential", "total"})
}

// Times returns n time points spaced by dt starting at zero.
func Times(n int, dt float64) []float64 {
	ts := make([]float64, n)
	for k := range ts {
		ts[k] = float64(k) * dt
	}
	return ts
}

// SavePNG writes p to path as a width x height inch image.
func SavePNG(p *plot.Plot, width, height float64, path string) error {
	return p.Save(vg.Length(width)*vg.Inch, vg.Length(height)*vg.Inch, path)
}

func makePoints(xs []*mat.VecDense, i, j int) plotter.XYs {
	pts := make(plotter.XYs, len(xs))
	for k, x := range xs {
		pts[k].X = x.AtVec(i)
		pts[k].Y = x.AtVec(j)
	}
	return pts
}

// Package figures renders box-and-strip plots with gonum/plot.
package figures

import (
	"fmt"
	"image/color"
	"math"
	"math/rand"
	"os"
	"path/filepath"

	"emcon/internal/errors"
	"emcon/ports"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
)

var meanColor = color.RGBA{R: 0, G: 255, B: 0, A: 255}

// BoxStripRenderer draws one box per (category, hue) cell with whiskers at the
// sample minimum and maximum, a square mean marker and jittered raw points
type BoxStripRenderer struct {
	Width, Height vg.Length
	Seed          int64
}

// NewBoxStripRenderer returns a renderer sized for a single-column figure
func NewBoxStripRenderer() *BoxStripRenderer {
	return &BoxStripRenderer{Width: 5 * vg.Inch, Height: 4 * vg.Inch, Seed: 1}
}

var _ ports.FigureRenderer = (*BoxStripRenderer)(nil)

// Render draws figure and saves it; the image format follows the file extension
func (r *BoxStripRenderer) Render(figure ports.Figure, path string) error {
	p, err := r.build(figure)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.IOError(path, err)
	}
	if err := p.Save(r.Width, r.Height, path); err != nil {
		return errors.IOError(path, err)
	}
	return nil
}

func (r *BoxStripRenderer) build(figure ports.Figure) (*plot.Plot, error) {
	if len(figure.Categories) == 0 || len(figure.Hues) == 0 {
		return nil, errors.InvalidInput("figure needs at least one category and one hue")
	}

	p := plot.New()
	p.Title.Text = figure.Title
	p.Y.Label.Text = figure.YLabel
	p.NominalX(figure.Categories...)
	p.Legend.Top = true

	rng := rand.New(rand.NewSource(r.Seed))
	slot := 0.8 / float64(len(figure.Hues))
	boxWidth := vg.Length(slot*0.8) * (r.Width - 1*vg.Inch) / vg.Length(len(figure.Categories))

	for hi, hue := range figure.Hues {
		c := color.RGBA{R: hue.R, G: hue.G, B: hue.B, A: hue.A}
		offset := (float64(hi) - float64(len(figure.Hues)-1)/2) * slot
		var legendDone bool

		for ci, category := range figure.Categories {
			values := seriesValues(figure.Series, category, hue.Name)
			if len(values) == 0 {
				continue
			}
			loc := float64(ci) + offset

			box, err := minMaxBox(boxWidth, loc, values)
			if err != nil {
				return nil, errors.Wrapf(err, "failed to build box for %s/%s", category, hue.Name)
			}
			box.FillColor = color.RGBA{R: c.R, G: c.G, B: c.B, A: 90}
			box.BoxStyle.Color = c
			box.WhiskerStyle.Color = c
			box.MedianStyle.Color = c
			p.Add(box)

			strip, err := stripPoints(rng, loc, slot*0.3, values, c)
			if err != nil {
				return nil, err
			}
			p.Add(strip)

			mean, err := meanMarker(loc, values)
			if err != nil {
				return nil, err
			}
			p.Add(mean)

			if !legendDone {
				p.Legend.Add(hue.Name, strip)
				legendDone = true
			}
		}
	}

	// Add widens the axes to the data, so fixed ranges go last.
	p.X.Min = -0.5
	p.X.Max = float64(len(figure.Categories)) - 0.5
	// The tick range widens the y axis but never hides data outside it.
	if t := figure.YTicks; t.Step > 0 && t.Max > t.Min {
		p.Y.Min = math.Min(t.Min, p.Y.Min)
		p.Y.Max = math.Max(t.Max, p.Y.Max)
		p.Y.Tick.Marker = StepTicker{Min: t.Min, Max: t.Max, Step: t.Step}
	}
	return p, nil
}

// minMaxBox builds a box plot whose whiskers reach the extremes and which
// marks no points as outliers
func minMaxBox(width vg.Length, loc float64, values []float64) (*plotter.BoxPlot, error) {
	box, err := plotter.NewBoxPlot(width, loc, plotter.Values(values))
	if err != nil {
		return nil, err
	}
	box.AdjLow = box.Min
	box.AdjHigh = box.Max
	box.Outside = nil
	return box, nil
}

func stripPoints(rng *rand.Rand, loc, jitter float64, values []float64, c color.Color) (*plotter.Scatter, error) {
	xys := make(plotter.XYs, len(values))
	for i, v := range values {
		xys[i].X = loc + (rng.Float64()*2-1)*jitter
		xys[i].Y = v
	}
	s, err := plotter.NewScatter(xys)
	if err != nil {
		return nil, errors.Wrap(err, "failed to build strip points")
	}
	s.GlyphStyle.Color = c
	s.GlyphStyle.Shape = draw.CircleGlyph{}
	s.GlyphStyle.Radius = vg.Points(2)
	return s, nil
}

func meanMarker(loc float64, values []float64) (*plotter.Scatter, error) {
	var sum float64
	for _, v := range values {
		sum += v
	}
	s, err := plotter.NewScatter(plotter.XYs{{X: loc, Y: sum / float64(len(values))}})
	if err != nil {
		return nil, errors.Wrap(err, "failed to build mean marker")
	}
	s.GlyphStyle.Color = meanColor
	s.GlyphStyle.Shape = draw.BoxGlyph{}
	s.GlyphStyle.Radius = vg.Points(3)
	return s, nil
}

func seriesValues(series []ports.Series, category, hue string) []float64 {
	var out []float64
	for _, s := range series {
		if s.Category != category || s.Hue != hue {
			continue
		}
		for _, v := range s.Values {
			if !math.IsNaN(v) {
				out = append(out, v)
			}
		}
	}
	return out
}

// StepTicker places a labelled tick every Step from Min to Max. Without a
// range the ticks run across the whole axis.
type StepTicker struct {
	Min, Max, Step float64
}

// Ticks implements plot.Ticker
func (t StepTicker) Ticks(min, max float64) []plot.Tick {
	lo, hi := t.Min, t.Max
	if hi <= lo {
		lo, hi = min, max
	}
	const eps = 1e-9
	var ticks []plot.Tick
	n := int(math.Floor((hi-lo)/t.Step+eps)) + 1
	for i := 0; i < n; i++ {
		v := lo + float64(i)*t.Step
		if v < min-eps || v > max+eps {
			continue
		}
		ticks = append(ticks, plot.Tick{Value: v, Label: formatTick(v)})
	}
	return ticks
}

func formatTick(v float64) string {
	if math.Abs(v) < 1e-12 {
		v = 0
	}
	return fmt.Sprintf("%g", math.Round(v*1e6)/1e6)
}

package report

import (
	"errors"
	"fmt"
	"image/color"

	"github.com/MeKo-Tech/homest/internal/calibration"
	"github.com/golang/geo/r2"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
)

var (
	trainColor     = color.RGBA{R: 31, G: 119, B: 180, A: 255}
	validColor     = color.RGBA{R: 214, G: 39, B: 40, A: 255}
	predictedColor = color.RGBA{R: 44, G: 160, B: 44, A: 255}
	residualColor  = color.RGBA{R: 127, G: 127, B: 127, A: 255}
)

// PlotSize is the edge length of the square residual plot.
const PlotSize = 6 * vg.Inch

// NewResidualPlot draws the destination points, their predictions under H,
// and the residual segment joining each pair.
func NewResidualPlot(r *calibration.Report) (*plot.Plot, error) {
	if r.Data == nil {
		return nil, errors.New("report has no dataset attached")
	}
	_, trainDst, _, valDst := r.Data.Split()

	p := plot.New()
	p.Title.Text = fmt.Sprintf("%s - reprojection (train RMS %.3g)", r.Dataset, r.Train.RMS)
	p.X.Label.Text = "u"
	p.Y.Label.Text = "v"
	p.Add(plotter.NewGrid())

	if err := addResiduals(p, trainDst, r.Train.Predicted); err != nil {
		return nil, err
	}
	if err := addScatter(p, "train", trainDst, trainColor, draw.CircleGlyph{}); err != nil {
		return nil, err
	}
	predicted := append([]r2.Point(nil), r.Train.Predicted...)
	if r.Validation != nil {
		if err := addResiduals(p, valDst, r.Validation.Predicted); err != nil {
			return nil, err
		}
		if err := addScatter(p, "validation", valDst, validColor, draw.SquareGlyph{}); err != nil {
			return nil, err
		}
		predicted = append(predicted, r.Validation.Predicted...)
	}
	if err := addScatter(p, "predicted", predicted, predictedColor, draw.CrossGlyph{}); err != nil {
		return nil, err
	}

	p.Legend.Top = true
	p.Legend.Left = false
	p.Legend.XOffs = -10
	p.Legend.YOffs = -10
	return p, nil
}

// SavePlot writes the residual plot of r to path. The image format follows
// the extension (png, svg, pdf, ...).
func SavePlot(r *calibration.Report, path string) error {
	p, err := NewResidualPlot(r)
	if err != nil {
		return err
	}
	if err := p.Save(PlotSize, PlotSize, path); err != nil {
		return fmt.Errorf("failed to save plot: %w", err)
	}
	return nil
}

func addScatter(p *plot.Plot, label string, pts []r2.Point, c color.Color, shape draw.GlyphDrawer) error {
	if len(pts) == 0 {
		return nil
	}
	s, err := plotter.NewScatter(toXYs(pts))
	if err != nil {
		return err
	}
	s.GlyphStyle.Color = c
	s.GlyphStyle.Shape = shape
	s.GlyphStyle.Radius = vg.Points(3)
	p.Add(s)
	p.Legend.Add(label, s)
	return nil
}

func addResiduals(p *plot.Plot, dst, predicted []r2.Point) error {
	for i := range dst {
		l, err := plotter.NewLine(plotter.XYs{{X: dst[i].X, Y: dst[i].Y}, {X: predicted[i].X, Y: predicted[i].Y}})
		if err != nil {
			return err
		}
		l.Color = residualColor
		l.Width = vg.Points(1)
		l.Dashes = []vg.Length{vg.Points(2), vg.Points(2)}
		p.Add(l)
	}
	return nil
}

func toXYs(pts []r2.Point) plotter.XYs {
	xys := make(plotter.XYs, len(pts))
	for i, pt := range pts {
		xys[i] = plotter.XY{X: pt.X, Y: pt.Y}
	}
	return xys
}

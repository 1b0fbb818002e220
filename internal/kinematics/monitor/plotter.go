package monitor

import (
	"fmt"
	"image/color"
	"math"
	"os"
	"path/filepath"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/banshee-data/motion.report/internal/kinematics/l1sequence"
	"github.com/banshee-data/motion.report/internal/kinematics/pipeline"
	"github.com/banshee-data/motion.report/internal/monitoring"
	"github.com/banshee-data/motion.report/internal/security"
)

var (
	angleColor    = color.RGBA{R: 31, G: 119, B: 180, A: 255}
	smoothedColor = color.RGBA{R: 255, G: 127, B: 14, A: 255}
	startColor    = color.RGBA{R: 44, G: 160, B: 44, A: 255}
	turnColor     = color.RGBA{R: 214, G: 39, B: 40, A: 255}
	endColor      = color.RGBA{R: 127, G: 127, B: 127, A: 255}
)

// AnglePlotter writes one PNG per prioritised signal of a run.
type AnglePlotter struct {
	Width, Height vg.Length
}

// NewAnglePlotter returns a plotter producing 14x6 inch images.
func NewAnglePlotter() *AnglePlotter {
	return &AnglePlotter{Width: 14 * vg.Inch, Height: 6 * vg.Inch}
}

// SavePlots writes the plots under dir, creating it if needed, and returns
// the written paths. dir must lie within the working or temp directory.
func (ap *AnglePlotter) SavePlots(dir string, seq *l1sequence.Sequence, res *pipeline.AnalysisResult) ([]string, error) {
	if err := security.ValidateExportPath(dir); err != nil {
		return nil, fmt.Errorf("invalid report directory: %w", err)
	}
	series, err := CollectSeries(seq, res)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create report directory: %w", err)
	}

	prefix := security.SanitizeFilename(res.Sequence)
	var written []string
	for _, s := range series {
		p, err := ap.signalPlot(s, res)
		if err != nil {
			return written, fmt.Errorf("%s: %w", s.Signal, err)
		}
		name := fmt.Sprintf("%s_%s_%s.png", prefix, security.SanitizeFilename(string(s.Signal.Joint)), s.Signal.Movement)
		path := filepath.Join(dir, name)
		if err := p.Save(ap.Width, ap.Height, path); err != nil {
			return written, fmt.Errorf("save %s plot: %w", s.Signal, err)
		}
		written = append(written, path)
	}
	monitoring.Logf("[Monitor] wrote %d angle plots to %s", len(written), dir)
	return written, nil
}

func (ap *AnglePlotter) signalPlot(s SignalSeries, res *pipeline.AnalysisResult) (*plot.Plot, error) {
	p := plot.New()
	p.Title.Text = fmt.Sprintf("%s - %s", res.Sequence, s.Signal)
	p.X.Label.Text = "Frame"
	p.Y.Label.Text = "Angle (°)"

	if _, err := addSegments(p, s.Angles, angleColor, nil, "angle"); err != nil {
		return nil, err
	}
	if s.Smoothed != nil {
		dashes := []vg.Length{vg.Points(4), vg.Points(2)}
		if _, err := addSegments(p, s.Smoothed, smoothedColor, dashes, "smoothed"); err != nil {
			return nil, err
		}
	}

	lo, hi := trackedBounds(s.Angles)
	for _, rep := range res.Repetitions {
		r := rep.Repetition
		for _, m := range []struct {
			frame int
			c     color.Color
		}{{r.Start, startColor}, {r.Turn, turnColor}, {r.End, endColor}} {
			l, err := plotter.NewLine(plotter.XYs{{X: float64(m.frame), Y: lo}, {X: float64(m.frame), Y: hi}})
			if err != nil {
				return nil, err
			}
			l.Color = m.c
			l.Width = vg.Points(0.75)
			p.Add(l)
		}
	}

	p.Legend.Top = true
	p.Legend.Left = false
	p.Legend.XOffs = -10
	p.Legend.YOffs = -10
	return p, nil
}

// addSegments plots values as one line per run of tracked samples and
// returns the number of lines added.
func addSegments(p *plot.Plot, values []float64, c color.Color, dashes []vg.Length, label string) (int, error) {
	var (
		pts   plotter.XYs
		lines int
	)
	flush := func() error {
		if len(pts) == 0 {
			return nil
		}
		l, err := plotter.NewLine(pts)
		if err != nil {
			return err
		}
		l.Color = c
		l.Width = vg.Points(1)
		l.Dashes = dashes
		p.Add(l)
		if lines == 0 {
			p.Legend.Add(label, l)
		}
		lines++
		pts = nil
		return nil
	}
	for i, v := range values {
		if !l1sequence.IsTracked(v) {
			if err := flush(); err != nil {
				return lines, err
			}
			continue
		}
		pts = append(pts, plotter.XY{X: float64(i), Y: v})
	}
	err := flush()
	return lines, err
}

// trackedBounds returns the range of the tracked samples, or [0, 1].
func trackedBounds(values []float64) (lo, hi float64) {
	tracked := make([]float64, 0, len(values))
	for _, v := range values {
		if l1sequence.IsTracked(v) {
			tracked = append(tracked, v)
		}
	}
	if len(tracked) == 0 {
		return 0, 1
	}
	lo, hi = floats.Min(tracked), floats.Max(tracked)
	if hi-lo < 1 {
		mid := (lo + hi) / 2
		lo, hi = mid-0.5, mid+0.5
	}
	return math.Floor(lo), math.Ceil(hi)
}

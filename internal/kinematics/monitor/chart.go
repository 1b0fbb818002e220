package monitor

import (
	"fmt"
	"io"
	"strconv"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/banshee-data/motion.report/internal/kinematics/exercise"
	"github.com/banshee-data/motion.report/internal/kinematics/l1sequence"
	"github.com/banshee-data/motion.report/internal/kinematics/pipeline"
)

// AssetsHost is where rendered pages load the echarts scripts from.
var AssetsHost = "https://go-echarts.github.io/go-echarts-assets/assets/"

// SignalSeries is the plotted data of one prioritised signal.
type SignalSeries struct {
	Signal   exercise.Signal
	Angles   []float64
	Smoothed []float64
}

// CollectSeries gathers the raw and smoothed angle series of every
// prioritised signal of res. seq defaults to the analysed copy held by res.
func CollectSeries(seq *l1sequence.Sequence, res *pipeline.AnalysisResult) ([]SignalSeries, error) {
	if res == nil {
		return nil, fmt.Errorf("no analysis result to chart")
	}
	if seq == nil {
		seq = res.Analyzed
	}
	if seq == nil {
		return nil, fmt.Errorf("analysis %s carries no sequence", res.ID)
	}

	out := make([]SignalSeries, 0, len(res.Prioritized))
	for _, sig := range res.Prioritized {
		s := SignalSeries{
			Signal: sig,
			Angles: seq.AngleSeries(string(sig.Joint), sig.Movement.AngleType()),
		}
		if res.Segmentation != nil {
			for _, tr := range res.Segmentation.Traces {
				if tr.Signal == sig && len(tr.Smoothed) == len(s.Angles) {
					s.Smoothed = tr.Smoothed
				}
			}
		}
		out = append(out, s)
	}
	return out, nil
}

// lineData converts a series, writing untracked samples as echarts gaps.
func lineData(values []float64) []opts.LineData {
	data := make([]opts.LineData, len(values))
	for i, v := range values {
		if l1sequence.IsTracked(v) {
			data[i] = opts.LineData{Value: v}
		} else {
			data[i] = opts.LineData{Value: "-"}
		}
	}
	return data
}

// boundaryMarks returns x-axis mark lines for every repetition boundary.
func boundaryMarks(res *pipeline.AnalysisResult) []opts.MarkLineNameXAxisItem {
	var marks []opts.MarkLineNameXAxisItem
	for i, rep := range res.Repetitions {
		r := rep.Repetition
		marks = append(marks,
			opts.MarkLineNameXAxisItem{Name: fmt.Sprintf("start %d", i+1), XAxis: strconv.Itoa(r.Start)},
			opts.MarkLineNameXAxisItem{Name: fmt.Sprintf("turn %d", i+1), XAxis: strconv.Itoa(r.Turn)},
			opts.MarkLineNameXAxisItem{Name: fmt.Sprintf("end %d", i+1), XAxis: strconv.Itoa(r.End)},
		)
	}
	return marks
}

// RenderAngleChart writes an HTML page holding one line chart per
// prioritised signal of res.
func RenderAngleChart(w io.Writer, seq *l1sequence.Sequence, res *pipeline.AnalysisResult) error {
	series, err := CollectSeries(seq, res)
	if err != nil {
		return err
	}
	if len(series) == 0 {
		return fmt.Errorf("analysis %s has no prioritised signals to chart", res.ID)
	}

	frames := make([]string, len(series[0].Angles))
	for i := range frames {
		frames[i] = strconv.Itoa(i)
	}
	marks := boundaryMarks(res)

	page := components.NewPage()
	page.SetAssetsHost(AssetsHost)
	page.SetPageTitle(fmt.Sprintf("%s: %s", res.Exercise, res.Sequence))

	for _, s := range series {
		line := charts.NewLine()
		line.SetGlobalOptions(
			charts.WithInitializationOpts(opts.Initialization{Width: "100%", Height: "420px", AssetsHost: AssetsHost}),
			charts.WithTitleOpts(opts.Title{
				Title:    s.Signal.String(),
				Subtitle: fmt.Sprintf("%s, %d repetitions", res.Sequence, len(res.Repetitions)),
			}),
			charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
			charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
			charts.WithXAxisOpts(opts.XAxis{Name: "Frame", NameLocation: "middle", NameGap: 25}),
			charts.WithYAxisOpts(opts.YAxis{Name: "Angle (°)", NameLocation: "middle", NameGap: 35}),
			charts.WithDataZoomOpts(opts.DataZoom{Type: "slider", Start: 0, End: 100}),
		)
		line.SetXAxis(frames).
			AddSeries("angle", lineData(s.Angles),
				charts.WithLineChartOpts(opts.LineChart{ShowSymbol: opts.Bool(false)}),
				charts.WithMarkLineNameXAxisItemOpts(marks...),
			)
		if s.Smoothed != nil {
			line.AddSeries("smoothed", lineData(s.Smoothed),
				charts.WithLineChartOpts(opts.LineChart{ShowSymbol: opts.Bool(false)}),
				charts.WithLineStyleOpts(opts.LineStyle{Type: "dashed"}),
			)
		}
		page.AddCharts(line)
	}

	if err := page.Render(w); err != nil {
		return fmt.Errorf("failed to render angle chart: %w", err)
	}
	return nil
}

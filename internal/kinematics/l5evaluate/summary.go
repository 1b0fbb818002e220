package l5evaluate

import (
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/motion.report/internal/kinematics/exercise"
	"github.com/banshee-data/motion.report/internal/kinematics/l1sequence"
	"github.com/banshee-data/motion.report/internal/kinematics/l4segment"
)

// SignalSummary describes one prioritised signal over a repetition.
type SignalSummary struct {
	Joint         exercise.Joint    `json:"joint"`
	Movement      exercise.Movement `json:"movement"`
	Min           float64           `json:"min"`
	Max           float64           `json:"max"`
	Mean          float64           `json:"mean"`
	RangeOfMotion float64           `json:"range_of_motion"`
	InRangeRatio  float64           `json:"in_range_ratio"`
}

// RepetitionSummary condenses a repetition's evaluation.
type RepetitionSummary struct {
	StartTime    float64         `json:"start_time"`
	TurnTime     float64         `json:"turn_time"`
	EndTime      float64         `json:"end_time"`
	Duration     float64         `json:"duration"`
	Frames       int             `json:"frames"`
	Evaluated    int             `json:"evaluated"`
	InRange      int             `json:"in_range"`
	InRangeRatio float64         `json:"in_range_ratio"`
	Signals      []SignalSummary `json:"signals"`
}

// Summarize computes timing, range of motion and in-range ratios for rep.
// Records with result None do not count as evaluated.
func Summarize(seq *l1sequence.Sequence, rep l4segment.Repetition, signals []exercise.Signal, results []EvaluationResult) RepetitionSummary {
	s := RepetitionSummary{
		StartTime: seq.Timestamps[rep.Start],
		TurnTime:  seq.Timestamps[rep.Turn],
		EndTime:   seq.Timestamps[rep.End],
		Frames:    rep.End - rep.Start + 1,
	}
	s.Duration = s.EndTime - s.StartTime

	type counts struct{ evaluated, inRange int }
	perSignal := make(map[exercise.Signal]*counts)
	for _, r := range results {
		if r.Result == None {
			continue
		}
		sig := exercise.Signal{Joint: r.Joint, Movement: r.Movement}
		c := perSignal[sig]
		if c == nil {
			c = &counts{}
			perSignal[sig] = c
		}
		c.evaluated++
		s.Evaluated++
		if r.Result == InTargetRange {
			c.inRange++
			s.InRange++
		}
	}
	s.InRangeRatio = ratio(s.InRange, s.Evaluated)

	for _, sig := range signals {
		values := make([]float64, 0, s.Frames)
		for f := rep.Start; f <= rep.End; f++ {
			if v := seq.Angle(f, string(sig.Joint), sig.Movement.AngleType()); l1sequence.IsTracked(v) {
				values = append(values, v)
			}
		}
		ss := SignalSummary{Joint: sig.Joint, Movement: sig.Movement}
		if len(values) > 0 {
			ss.Min = floats.Min(values)
			ss.Max = floats.Max(values)
			ss.Mean = stat.Mean(values, nil)
			ss.RangeOfMotion = ss.Max - ss.Min
		}
		if c := perSignal[sig]; c != nil {
			ss.InRangeRatio = ratio(c.inRange, c.evaluated)
		}
		s.Signals = append(s.Signals, ss)
	}
	return s
}

func ratio(n, d int) float64 {
	if d == 0 {
		return 0
	}
	return float64(n) / float64(d)
}

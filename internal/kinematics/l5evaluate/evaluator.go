package l5evaluate

import (
	"encoding/json"
	"fmt"

	"github.com/banshee-data/motion.report/internal/kinematics/exercise"
	"github.com/banshee-data/motion.report/internal/kinematics/l1sequence"
	"github.com/banshee-data/motion.report/internal/kinematics/l4segment"
	"github.com/banshee-data/motion.report/internal/monitoring"
)

// DefaultTolerance widens every target range, in degrees.
const DefaultTolerance = 10.0

// EvaluationResult is the classification of one angle at one frame.
type EvaluationResult struct {
	Frame       int                  `json:"frame"`
	Joint       exercise.Joint       `json:"joint"`
	Movement    exercise.Movement    `json:"movement"`
	Angle       float64              `json:"angle"`
	TargetMin   float64              `json:"target_min"`
	TargetMax   float64              `json:"target_max"`
	TargetState exercise.TargetState `json:"target_state"`
	Result      ResultState          `json:"result"`
}

// MarshalJSON writes untracked angles as null.
func (r EvaluationResult) MarshalJSON() ([]byte, error) {
	type plain EvaluationResult
	out := struct {
		plain
		Angle *float64 `json:"angle"`
	}{plain: plain(r)}
	if l1sequence.IsTracked(r.Angle) {
		out.Angle = &r.Angle
	}
	return json.Marshal(out)
}

// UnmarshalJSON reads a null angle as untracked.
func (r *EvaluationResult) UnmarshalJSON(b []byte) error {
	type plain EvaluationResult
	in := struct {
		*plain
		Angle *float64 `json:"angle"`
	}{plain: (*plain)(r)}
	if err := json.Unmarshal(b, &in); err != nil {
		return err
	}
	r.Angle = l1sequence.Untracked
	if in.Angle != nil {
		r.Angle = *in.Angle
	}
	return nil
}

// RepetitionEvaluation bundles a repetition with its frame records and
// summary.
type RepetitionEvaluation struct {
	Repetition l4segment.Repetition `json:"repetition"`
	Results    []EvaluationResult   `json:"-"`
	Summary    RepetitionSummary    `json:"summary"`
}

type signalTargets struct {
	start, end exercise.Range
}

// ExerciseEvaluator scores a sequence against an exercise. Target and
// priority tables are cached at construction and refreshed only by Rebind.
type ExerciseEvaluator struct {
	Tolerance float64
	Segmenter *l4segment.Segmenter

	seq          *l1sequence.Sequence
	ex           *exercise.Exercise
	signals      []exercise.Signal
	targetAngles map[exercise.Signal]signalTargets
	prioAngles   []exercise.Signal
}

// NewExerciseEvaluator binds seq and ex. A non-positive tolerance selects
// DefaultTolerance; a nil segmenter uses l4segment.DefaultParams.
func NewExerciseEvaluator(seq *l1sequence.Sequence, ex *exercise.Exercise, tolerance float64, seg *l4segment.Segmenter) (*ExerciseEvaluator, error) {
	if tolerance <= 0 {
		tolerance = DefaultTolerance
	}
	if seg == nil {
		seg = l4segment.NewSegmenter(l4segment.DefaultParams())
	}
	e := &ExerciseEvaluator{Tolerance: tolerance, Segmenter: seg}
	if err := e.Rebind(seq, ex); err != nil {
		return nil, err
	}
	return e, nil
}

// Rebind switches the evaluator to a new sequence or exercise and rebuilds
// the cached tables.
func (e *ExerciseEvaluator) Rebind(seq *l1sequence.Sequence, ex *exercise.Exercise) error {
	if seq == nil || ex == nil {
		return fmt.Errorf("evaluator needs both a sequence and an exercise")
	}
	targets := make(map[exercise.Signal]signalTargets)
	signals := ex.Signals()
	for _, sig := range signals {
		start, end, err := ex.Ranges(sig)
		if err != nil {
			return err
		}
		targets[sig] = signalTargets{start: start, end: end}
	}
	e.seq, e.ex = seq, ex
	e.signals = signals
	e.targetAngles = targets
	e.prioAngles = ex.Prioritized()
	return nil
}

// Sequence returns the bound sequence.
func (e *ExerciseEvaluator) Sequence() *l1sequence.Sequence { return e.seq }

// Exercise returns the bound exercise.
func (e *ExerciseEvaluator) Exercise() *exercise.Exercise { return e.ex }

// Prioritized returns the cached HIGH priority signals.
func (e *ExerciseEvaluator) Prioritized() []exercise.Signal {
	return append([]exercise.Signal(nil), e.prioAngles...)
}

// EvaluateRepetition classifies every exercise signal for frames
// rep.Start..rep.End inclusive. Frames before the turn are compared with
// END targets and frames from the turn on with START targets. Untracked
// angles are recorded as None.
func (e *ExerciseEvaluator) EvaluateRepetition(rep l4segment.Repetition) ([]EvaluationResult, error) {
	if rep.Start < 0 || rep.End >= e.seq.Len() || rep.Start >= rep.Turn || rep.Turn >= rep.End {
		return nil, fmt.Errorf("repetition %+v out of range for %q with %d frames", rep, e.seq.Name, e.seq.Len())
	}
	out := make([]EvaluationResult, 0, (rep.End-rep.Start+1)*len(e.signals))
	for frame := rep.Start; frame <= rep.End; frame++ {
		state := exercise.End
		if frame >= rep.Turn {
			state = exercise.Start
		}
		for _, sig := range e.signals {
			t := e.targetAngles[sig]
			target := t.start
			if state == exercise.End {
				target = t.end
			}
			angle := e.seq.Angle(frame, string(sig.Joint), sig.Movement.AngleType())
			r := EvaluationResult{
				Frame:       frame,
				Joint:       sig.Joint,
				Movement:    sig.Movement,
				Angle:       angle,
				TargetMin:   target.Min,
				TargetMax:   target.Max,
				TargetState: state,
			}
			if l1sequence.IsTracked(angle) {
				res, err := Classify(angle, state, t.start, t.end, target.Min, target.Max, e.Tolerance)
				if err != nil {
					return nil, fmt.Errorf("frame %d %s: %w", frame, sig, err)
				}
				r.Result = res
			}
			out = append(out, r)
		}
	}
	return out, nil
}

// Evaluate segments the bound sequence and evaluates every repetition.
func (e *ExerciseEvaluator) Evaluate() ([]RepetitionEvaluation, error) {
	seg, err := e.Segmenter.Segment(e.seq, e.ex)
	if err != nil {
		return nil, fmt.Errorf("failed to segment %q: %w", e.seq.Name, err)
	}
	return e.EvaluateRepetitions(seg.Repetitions)
}

// EvaluateRepetitions evaluates and summarises reps.
func (e *ExerciseEvaluator) EvaluateRepetitions(reps []l4segment.Repetition) ([]RepetitionEvaluation, error) {
	out := make([]RepetitionEvaluation, 0, len(reps))
	for i, rep := range reps {
		results, err := e.EvaluateRepetition(rep)
		if err != nil {
			return nil, fmt.Errorf("failed to evaluate repetition %d: %w", i, err)
		}
		out = append(out, RepetitionEvaluation{
			Repetition: rep,
			Results:    results,
			Summary:    Summarize(e.seq, rep, e.prioAngles, results),
		})
	}
	monitoring.Debugf("[Evaluator] %s on %q: evaluated %d repetitions", e.ex.Name, e.seq.Name, len(out))
	return out, nil
}

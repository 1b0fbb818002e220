package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/motion.report/internal/config"
	"github.com/banshee-data/motion.report/internal/kinematics/exercise"
	"github.com/banshee-data/motion.report/internal/kinematics/l1sequence"
	"github.com/banshee-data/motion.report/internal/kinematics/l2frames"
	"github.com/banshee-data/motion.report/internal/kinematics/l3angles"
	"github.com/banshee-data/motion.report/internal/kinematics/l4segment"
	"github.com/banshee-data/motion.report/internal/kinematics/l5evaluate"
	"github.com/banshee-data/motion.report/internal/monitoring"
	"github.com/banshee-data/motion.report/internal/timeutil"
	"github.com/banshee-data/motion.report/internal/version"
)

// ConventionFactory returns the range convention to apply for ex.
type ConventionFactory func(ex *exercise.Exercise) l3angles.RangeConvention

// AnalysisResult is the outcome of one analysis run.
type AnalysisResult struct {
	ID          string                            `json:"id"`
	CreatedAt   time.Time                         `json:"created_at"`
	Version     string                            `json:"version"`
	Exercise    string                            `json:"exercise"`
	Sequence    string                            `json:"sequence"`
	Frames      int                               `json:"frames"`
	Duration    float64                           `json:"duration"`
	ElapsedMS   int64                             `json:"elapsed_ms"`
	Prioritized []exercise.Signal                 `json:"prioritized"`
	Repetitions []l5evaluate.RepetitionEvaluation `json:"repetitions"`

	// Segmentation keeps the per-signal traces for charting.
	Segmentation *l4segment.Segmentation `json:"-"`
	// Analyzed is the copy of the input sequence carrying the final angles.
	Analyzed *l1sequence.Sequence `json:"-"`
}

// Results flattens the evaluation records of every repetition.
func (r *AnalysisResult) Results() []l5evaluate.EvaluationResult {
	var out []l5evaluate.EvaluationResult
	for _, rep := range r.Repetitions {
		out = append(out, rep.Results...)
	}
	return out
}

// Analyzer runs the full analysis. The zero value is not usable; use
// NewAnalyzer.
type Analyzer struct {
	Config     *config.TuningConfig
	Clock      timeutil.Clock
	Convention ConventionFactory
}

// NewAnalyzer returns an Analyzer using cfg, the real clock and the joint
// range convention. A nil cfg uses built-in defaults.
func NewAnalyzer(cfg *config.TuningConfig) *Analyzer {
	if cfg == nil {
		cfg = config.EmptyTuningConfig()
	}
	a := &Analyzer{Config: cfg, Clock: timeutil.RealClock{}}
	a.Convention = func(ex *exercise.Exercise) l3angles.RangeConvention {
		return l3angles.NewJointRangeConvention(a.Config.GetSingularityDelta(), ex)
	}
	return a
}

// Analyze runs every stage on a copy of seq; the caller's sequence is left
// untouched. ctx is checked between stages.
func (a *Analyzer) Analyze(ctx context.Context, seq *l1sequence.Sequence, ex *exercise.Exercise) (*AnalysisResult, error) {
	if seq == nil || ex == nil {
		return nil, fmt.Errorf("analysis needs both a sequence and an exercise")
	}
	started := a.Clock.Now()

	work, err := seq.Slice(0, seq.Len())
	if err != nil {
		return nil, fmt.Errorf("failed to copy sequence %q: %w", seq.Name, err)
	}

	// Supplied angles are taken as final; the convention runs only on
	// angles computed here.
	if !work.HasAngles() {
		engine := &l3angles.Engine{Frames: &l2frames.Builder{ParallelTolerance: a.Config.GetParallelTolerance()}}
		if err := engine.Compute(work); err != nil {
			return nil, fmt.Errorf("failed to compute joint angles: %w", err)
		}
		if a.Convention != nil {
			a.Convention(ex).Apply(work)
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	seg := l4segment.NewSegmenter(l4segment.ParamsFromTuning(a.Config))
	segmentation, err := seg.Segment(work, ex)
	if err != nil {
		return nil, fmt.Errorf("failed to segment %q: %w", work.Name, err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	evaluator, err := l5evaluate.NewExerciseEvaluator(work, ex, a.Config.GetEvaluationTolerance(), seg)
	if err != nil {
		return nil, err
	}
	reps, err := evaluator.EvaluateRepetitions(segmentation.Repetitions)
	if err != nil {
		return nil, err
	}

	res := &AnalysisResult{
		ID:           uuid.NewString(),
		CreatedAt:    started.UTC(),
		Version:      version.Version,
		Exercise:     ex.Name,
		Sequence:     work.Name,
		Frames:       work.Len(),
		Duration:     work.Duration(),
		ElapsedMS:    a.Clock.Since(started).Milliseconds(),
		Prioritized:  evaluator.Prioritized(),
		Repetitions:  reps,
		Segmentation: segmentation,
		Analyzed:     work,
	}
	monitoring.Logf("[Pipeline] run %s: %s on %q, %d frames, %d repetitions in %dms",
		res.ID, res.Exercise, res.Sequence, res.Frames, len(res.Repetitions), res.ElapsedMS)
	return res, nil
}

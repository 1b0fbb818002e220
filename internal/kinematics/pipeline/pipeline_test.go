package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/motion.report/internal/config"
	"github.com/banshee-data/motion.report/internal/kinematics/exercise"
	"github.com/banshee-data/motion.report/internal/kinematics/l1sequence"
	"github.com/banshee-data/motion.report/internal/kinematics/l3angles"
	"github.com/banshee-data/motion.report/internal/kinematics/l4segment"
	"github.com/banshee-data/motion.report/internal/kinematics/l5evaluate"
	"github.com/banshee-data/motion.report/internal/testutil"
	"github.com/banshee-data/motion.report/internal/timeutil"
)

func testAnalyzer(t *testing.T) (*Analyzer, *timeutil.MockClock) {
	t.Helper()
	clock := timeutil.NewMockClock(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))
	clock.AutoStep(5 * time.Millisecond)
	a := NewAnalyzer(config.MustLoadDefaultConfig())
	a.Clock = clock
	return a, clock
}

func TestAnalyzeFromPositions(t *testing.T) {
	a, _ := testAnalyzer(t)
	seq := testutil.NewPoseSequence(t, "raise", testutil.FrontRaisePoses(testutil.RaiseSignal(3, 100)), 30)
	ex := testutil.FrontRaiseExercise(t)

	res, err := a.Analyze(context.Background(), seq, ex)
	require.NoError(t, err)

	_, err = uuid.Parse(res.ID)
	assert.NoError(t, err)
	assert.Equal(t, time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC), res.CreatedAt)
	assert.Equal(t, int64(5), res.ElapsedMS)
	assert.Equal(t, "front raise", res.Exercise)
	assert.Equal(t, "raise", res.Sequence)
	assert.Equal(t, 301, res.Frames)
	assert.InDelta(t, 10, res.Duration, 1e-9)
	assert.Len(t, res.Prioritized, 2)

	require.Len(t, res.Repetitions, 3)
	for i, rep := range res.Repetitions {
		r := rep.Repetition
		assert.Less(t, r.Start, r.Turn, "rep %d", i)
		assert.Less(t, r.Turn, r.End, "rep %d", i)
		assert.InDelta(t, 100*i+50, r.Turn, 3, "rep %d", i)
		for _, sig := range rep.Summary.Signals {
			assert.InDelta(t, 90, sig.Max, 1)
		}
	}
	require.NotNil(t, res.Segmentation)
	assert.Len(t, res.Segmentation.Traces, 2)

	// every exercise signal is tracked from positions
	for _, r := range res.Results() {
		assert.NotEqual(t, l5evaluate.None, r.Result, "frame %d %s", r.Frame, r.Joint)
	}
	assert.Len(t, res.Results(), func() int {
		n := 0
		for _, rep := range res.Repetitions {
			n += (rep.Repetition.End - rep.Repetition.Start + 1) * 6
		}
		return n
	}())

	// the input sequence is not modified
	assert.False(t, seq.HasAngles())
	assert.True(t, res.Analyzed.HasAngles())
}

func TestAnalyzeUsesSuppliedAngles(t *testing.T) {
	a, _ := testAnalyzer(t)
	signal := testutil.RaiseSignal(2, 100)
	seq := testutil.AngleSequence(t, "pre", map[exercise.Signal][]float64{
		{Joint: exercise.LeftShoulder, Movement: exercise.FlexionExtension}:  signal,
		{Joint: exercise.RightShoulder, Movement: exercise.FlexionExtension}: signal,
	})

	res, err := a.Analyze(context.Background(), seq, testutil.FrontRaiseExercise(t))
	require.NoError(t, err)
	assert.Len(t, res.Repetitions, 2)
	// positions hold the rest pose; supplied angles are not recomputed
	assert.True(t, l1sequence.IsTracked(res.Analyzed.Angle(50, l1sequence.LeftShoulder, l1sequence.FlexEx)))
	assert.InDelta(t, 90, res.Analyzed.Angle(50, l1sequence.LeftShoulder, l1sequence.FlexEx), 1e-9)
}

type recordingConvention struct{ applied int }

func (c *recordingConvention) Apply(*l1sequence.Sequence) { c.applied++ }

func TestAnalyzeAppliesConvention(t *testing.T) {
	a, _ := testAnalyzer(t)
	conv := &recordingConvention{}
	var got *exercise.Exercise
	a.Convention = func(ex *exercise.Exercise) l3angles.RangeConvention {
		got = ex
		return conv
	}
	ex := testutil.FrontRaiseExercise(t)
	seq := testutil.NewPoseSequence(t, "raise", testutil.FrontRaisePoses(testutil.RaiseSignal(1, 100)), 30)

	_, err := a.Analyze(context.Background(), seq, ex)
	require.NoError(t, err)
	assert.Equal(t, 1, conv.applied)
	assert.Same(t, ex, got)
}

func TestAnalyzeSkipsConventionForSuppliedAngles(t *testing.T) {
	a, _ := testAnalyzer(t)
	conv := &recordingConvention{}
	a.Convention = func(*exercise.Exercise) l3angles.RangeConvention { return conv }
	seq := testutil.AngleSequence(t, "pre", map[exercise.Signal][]float64{
		{Joint: exercise.LeftShoulder, Movement: exercise.FlexionExtension}:  testutil.RaiseSignal(2, 100),
		{Joint: exercise.RightShoulder, Movement: exercise.FlexionExtension}: testutil.RaiseSignal(2, 100),
	})

	_, err := a.Analyze(context.Background(), seq, testutil.FrontRaiseExercise(t))
	require.NoError(t, err)
	assert.Equal(t, 0, conv.applied)
}

func TestReanalyzeKeepsBallJointAngles(t *testing.T) {
	// Flexion past 90 with prioritised abduction is where the range
	// convention extends abduction; running it over these supplied
	// angles would push -140 on to -180.
	flexion := testutil.RaiseSignal(2, 100)
	for i := range flexion {
		flexion[i] *= 110.0 / 90
	}
	abduction := make([]float64, len(flexion))
	for i := range abduction {
		abduction[i] = -140
	}
	targets := map[exercise.TargetKey]exercise.Target{
		{Joint: exercise.LeftShoulder, Movement: exercise.FlexionExtension, State: exercise.Start}:   {Range: exercise.NewRange(0, 20), Priority: exercise.High},
		{Joint: exercise.LeftShoulder, Movement: exercise.FlexionExtension, State: exercise.End}:     {Range: exercise.NewRange(100, 120), Priority: exercise.High},
		{Joint: exercise.LeftShoulder, Movement: exercise.AbductionAdduction, State: exercise.Start}: {Range: exercise.NewRange(-150, -130), Priority: exercise.High},
		{Joint: exercise.LeftShoulder, Movement: exercise.AbductionAdduction, State: exercise.End}:   {Range: exercise.NewRange(-150, -130), Priority: exercise.High},
	}
	ex, err := exercise.New("raise", "", targets)
	require.NoError(t, err)
	seq := testutil.AngleSequence(t, "pre", map[exercise.Signal][]float64{
		{Joint: exercise.LeftShoulder, Movement: exercise.FlexionExtension}:   flexion,
		{Joint: exercise.LeftShoulder, Movement: exercise.AbductionAdduction}: abduction,
	})

	a, _ := testAnalyzer(t)
	first, err := a.Analyze(context.Background(), seq, ex)
	require.NoError(t, err)
	second, err := a.Analyze(context.Background(), first.Analyzed, ex)
	require.NoError(t, err)

	for _, res := range []*AnalysisResult{first, second} {
		assert.Equal(t, abduction, res.Analyzed.AngleSeries(l1sequence.LeftShoulder, l1sequence.AbAd))
		assert.Equal(t, flexion, res.Analyzed.AngleSeries(l1sequence.LeftShoulder, l1sequence.FlexEx))
	}
}

func TestReanalyzeComputedAngles(t *testing.T) {
	a, _ := testAnalyzer(t)
	conv := &recordingConvention{}
	a.Convention = func(ex *exercise.Exercise) l3angles.RangeConvention {
		conv.applied++
		return l3angles.NewJointRangeConvention(0, ex)
	}
	ex := testutil.FrontRaiseExercise(t)
	seq := testutil.NewPoseSequence(t, "raise", testutil.FrontRaisePoses(testutil.RaiseSignal(2, 100)), 30)

	first, err := a.Analyze(context.Background(), seq, ex)
	require.NoError(t, err)
	second, err := a.Analyze(context.Background(), first.Analyzed, ex)
	require.NoError(t, err)

	assert.Equal(t, 1, conv.applied)
	if diff := cmp.Diff(first.Analyzed.JointAngles, second.Analyzed.JointAngles, cmpopts.EquateNaNs()); diff != "" {
		t.Errorf("angles changed on reanalysis (-first +second):\n%s", diff)
	}
	if diff := cmp.Diff(first.Repetitions, second.Repetitions, cmpopts.EquateNaNs()); diff != "" {
		t.Errorf("repetitions changed on reanalysis (-first +second):\n%s", diff)
	}
}

func TestAnalyzeErrors(t *testing.T) {
	a, _ := testAnalyzer(t)
	ex := testutil.FrontRaiseExercise(t)

	short := testutil.NewPoseSequence(t, "short", testutil.FrontRaisePoses(testutil.RaiseSignal(1, 20)), 30)
	_, err := a.Analyze(context.Background(), short, ex)
	assert.True(t, errors.Is(err, l4segment.ErrSequenceTooShort), "got %v", err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	seq := testutil.NewPoseSequence(t, "raise", testutil.FrontRaisePoses(testutil.RaiseSignal(1, 100)), 30)
	_, err = a.Analyze(ctx, seq, ex)
	assert.True(t, errors.Is(err, context.Canceled))

	_, err = a.Analyze(context.Background(), nil, ex)
	assert.Error(t, err)
}

func TestNewAnalyzerNilConfig(t *testing.T) {
	a := NewAnalyzer(nil)
	require.NotNil(t, a.Config)
	assert.Equal(t, 51, a.Config.GetSmoothingWindow())
	conv, ok := a.Convention(testutil.FrontRaiseExercise(t)).(*l3angles.JointRangeConvention)
	require.True(t, ok)
	assert.Equal(t, 20.0, conv.SingularityDelta)
}

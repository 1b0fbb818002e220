package l4segment

import (
	"errors"
	"fmt"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/banshee-data/motion.report/internal/kinematics/exercise"
	"github.com/banshee-data/motion.report/internal/kinematics/l1sequence"
	"github.com/banshee-data/motion.report/internal/monitoring"
)

var (
	// ErrSequenceTooShort is returned when a signal has fewer samples than
	// the smoothing window.
	ErrSequenceTooShort = errors.New("sequence too short")
	// ErrUntrackedSignal is returned when a prioritised joint angle is
	// missing for some frame.
	ErrUntrackedSignal = errors.New("untracked signal")
	// ErrInvalidParams is returned for segmentation parameters that are
	// inconsistent or can never be satisfied.
	ErrInvalidParams = errors.New("invalid segmentation parameters")
)

// Repetition is one exercise cycle as frame indices, Start < Turn < End.
type Repetition struct {
	Start int `json:"start"`
	Turn  int `json:"turn"`
	End   int `json:"end"`
}

// Params tunes segmentation.
type Params struct {
	// SmoothingWindow and PolyOrder configure the Savitzky–Golay filter.
	SmoothingWindow int
	PolyOrder       int
	// ExtremaOrder is the neighbourhood, in samples, an extremum must
	// dominate on each side.
	ExtremaOrder int
	// StartFrameMinDist and EndFrameMinDist are the distances, in frames,
	// from the first and last frame within which an existing start
	// candidate suppresses boundary injection.
	StartFrameMinDist int
	EndFrameMinDist   int
	// BoundaryTolerance widens the START range, in degrees, when testing
	// whether a boundary frame is at rest.
	BoundaryTolerance float64
	// WindowSize is the confirmation window in frames.
	WindowSize int
	// MinAgreement is the number of signals that must mark a window.
	// Zero selects max(1, signals-1).
	MinAgreement int
}

// DefaultParams returns the defaults used when no tuning file is given.
func DefaultParams() Params {
	return Params{
		SmoothingWindow:   51,
		PolyOrder:         3,
		ExtremaOrder:      10,
		StartFrameMinDist: 10,
		EndFrameMinDist:   10,
		BoundaryTolerance: 10,
		WindowSize:        30,
	}
}

// Validate checks parameter consistency.
func (p Params) Validate() error {
	if p.SmoothingWindow < 1 || p.SmoothingWindow%2 == 0 {
		return fmt.Errorf("smoothing window must be a positive odd number, got %d", p.SmoothingWindow)
	}
	if p.PolyOrder < 0 || p.PolyOrder >= p.SmoothingWindow {
		return fmt.Errorf("poly order %d must be in [0, %d)", p.PolyOrder, p.SmoothingWindow)
	}
	if p.ExtremaOrder < 1 {
		return fmt.Errorf("extrema order must be positive, got %d", p.ExtremaOrder)
	}
	if p.WindowSize < 1 {
		return fmt.Errorf("confirmation window must be positive, got %d", p.WindowSize)
	}
	if p.StartFrameMinDist < 0 || p.EndFrameMinDist < 0 || p.BoundaryTolerance < 0 || p.MinAgreement < 0 {
		return errors.New("segmentation distances and tolerances must be non-negative")
	}
	return nil
}

// SignalTrace records pass-1 output for one prioritised signal.
type SignalTrace struct {
	Signal     exercise.Signal `json:"signal"`
	FlexType   bool            `json:"flex_type"`
	Smoothed   []float64       `json:"smoothed"`
	Starts     []int           `json:"starts"`
	Turns      []int           `json:"turns"`
	StartRange exercise.Range  `json:"start_range"`
	EndRange   exercise.Range  `json:"end_range"`
}

// Segmentation is the full result of a segmentation run.
type Segmentation struct {
	Repetitions     []Repetition  `json:"repetitions"`
	ConfirmedStarts []int         `json:"confirmed_starts"`
	ConfirmedTurns  []int         `json:"confirmed_turns"`
	Traces          []SignalTrace `json:"traces"`
}

// Segmenter finds repetitions in joint-angle sequences.
type Segmenter struct {
	Params Params
}

// NewSegmenter returns a Segmenter with p.
func NewSegmenter(p Params) *Segmenter {
	return &Segmenter{Params: p}
}

// FindIterationKeypoints returns the repetitions of ex found in seq.
func FindIterationKeypoints(seq *l1sequence.Sequence, ex *exercise.Exercise, p Params) ([]Repetition, error) {
	res, err := NewSegmenter(p).Segment(seq, ex)
	if err != nil {
		return nil, err
	}
	return res.Repetitions, nil
}

// Segment runs both passes and pairs the confirmed frames.
func (s *Segmenter) Segment(seq *l1sequence.Sequence, ex *exercise.Exercise) (*Segmentation, error) {
	p := s.Params
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidParams, err)
	}
	signals := ex.Prioritized()
	if len(signals) == 0 {
		return nil, fmt.Errorf("%w: exercise %q has no HIGH priority movement", exercise.ErrInvalidExerciseDefinition, ex.Name)
	}
	if p.MinAgreement > len(signals) {
		return nil, fmt.Errorf("%w: min agreement %d exceeds the %d prioritised signals of %q", ErrInvalidParams, p.MinAgreement, len(signals), ex.Name)
	}
	if seq.Len() < p.SmoothingWindow {
		return nil, fmt.Errorf("%w: %q has %d frames, smoothing window needs %d", ErrSequenceTooShort, seq.Name, seq.Len(), p.SmoothingWindow)
	}

	// pass 1
	n := seq.Len()
	startMarks := mat.NewDense(len(signals), n, nil)
	turnMarks := mat.NewDense(len(signals), n, nil)
	traces := make([]SignalTrace, 0, len(signals))
	for row, sig := range signals {
		trace, err := s.candidates(seq, ex, sig)
		if err != nil {
			return nil, err
		}
		for _, f := range trace.Starts {
			startMarks.Set(row, f, 1)
		}
		for _, f := range trace.Turns {
			turnMarks.Set(row, f, 1)
		}
		traces = append(traces, trace)
		monitoring.Debugf("[Segmenter] %s: %d start and %d turn candidates", sig, len(trace.Starts), len(trace.Turns))
	}

	// pass 2
	need := p.MinAgreement
	if need == 0 {
		need = len(signals) - 1
		if need < 1 {
			need = 1
		}
	}
	starts := Confirm(startMarks, p.WindowSize, need)
	turns := Confirm(turnMarks, p.WindowSize, need)
	reps := Pair(starts, turns)

	monitoring.Logf("[Segmenter] %s on %q: %d confirmed starts, %d turns, %d repetitions",
		ex.Name, seq.Name, len(starts), len(turns), len(reps))
	return &Segmentation{
		Repetitions:     reps,
		ConfirmedStarts: starts,
		ConfirmedTurns:  turns,
		Traces:          traces,
	}, nil
}

// candidates smooths one signal and classifies its extrema.
func (s *Segmenter) candidates(seq *l1sequence.Sequence, ex *exercise.Exercise, sig exercise.Signal) (SignalTrace, error) {
	p := s.Params
	startRange, endRange, err := ex.Ranges(sig)
	if err != nil {
		return SignalTrace{}, err
	}
	raw := seq.AngleSeries(string(sig.Joint), sig.Movement.AngleType())
	for i, v := range raw {
		if !l1sequence.IsTracked(v) {
			return SignalTrace{}, fmt.Errorf("%w: %s has no value at frame %d of %q", ErrUntrackedSignal, sig, i, seq.Name)
		}
	}
	smoothed, err := Smooth(raw, p.SmoothingWindow, p.PolyOrder)
	if err != nil {
		return SignalTrace{}, fmt.Errorf("failed to smooth %s: %w", sig, err)
	}

	flexType := endRange.Min > startRange.Min
	maxima := LocalMaxima(smoothed, p.ExtremaOrder)
	minima := LocalMinima(smoothed, p.ExtremaOrder)
	startCands, turnCands := minima, maxima
	if !flexType {
		startCands, turnCands = maxima, minima
	}
	startCands = injectBoundaries(startCands, smoothed, startRange, p)

	trace := SignalTrace{
		Signal:     sig,
		FlexType:   flexType,
		Smoothed:   smoothed,
		StartRange: startRange,
		EndRange:   endRange,
	}
	for _, f := range startCands {
		if startRange.Distance(smoothed[f]) <= endRange.Distance(smoothed[f]) {
			trace.Starts = append(trace.Starts, f)
		}
	}
	for _, f := range turnCands {
		if endRange.Distance(smoothed[f]) <= startRange.Distance(smoothed[f]) {
			trace.Turns = append(trace.Turns, f)
		}
	}
	return trace, nil
}

// injectBoundaries adds start candidates at the first and last frame when
// the signal rests in the START range there and no candidate is nearby.
func injectBoundaries(starts []int, x []float64, startRange exercise.Range, p Params) []int {
	last := len(x) - 1
	atRest := func(f int) bool { return startRange.Distance(x[f]) <= p.BoundaryTolerance }
	near := func(f, dist int) bool {
		for _, c := range starts {
			if abs(c-f) <= dist {
				return true
			}
		}
		return false
	}

	out := append([]int(nil), starts...)
	if atRest(0) && !near(0, p.StartFrameMinDist) {
		out = append(out, 0)
	}
	if last > 0 && atRest(last) && !near(last, p.EndFrameMinDist) {
		out = append(out, last)
	}
	sort.Ints(out)
	return out
}

// Confirm slides a window of the given size along the frame axis, starting
// it at each column that holds a mark. When at least need rows carry a mark
// inside the window, the midpoint of the earliest and latest mark is emitted
// and the window is cleared in every row. marks is modified in place.
func Confirm(marks *mat.Dense, window, need int) []int {
	rows, cols := marks.Dims()
	var out []int
	for c := 0; c < cols; c++ {
		if floats.Max(mat.Col(nil, c, marks)) == 0 {
			continue
		}
		end := c + window
		if end > cols {
			end = cols
		}
		agree, first, last := 0, cols, -1
		for r := 0; r < rows; r++ {
			seg := marks.RawRowView(r)[c:end]
			if floats.Max(seg) == 0 {
				continue
			}
			agree++
			for k, v := range seg {
				if v != 0 {
					first = min(first, c+k)
					last = max(last, c+k)
				}
			}
		}
		if agree < need {
			continue
		}
		out = append(out, (first+last)/2)
		for r := 0; r < rows; r++ {
			row := marks.RawRowView(r)
			for k := c; k < end; k++ {
				row[k] = 0
			}
		}
		c = end - 1
	}
	return out
}

// Pair walks confirmed starts in order. Each start takes the next turn
// after it and the next start after that turn as its end. A start before
// the previous repetition's end is skipped.
func Pair(starts, turns []int) []Repetition {
	starts = sortedCopy(starts)
	turns = sortedCopy(turns)

	var reps []Repetition
	prevEnd := -1
	for _, s := range starts {
		if s < prevEnd {
			continue
		}
		t, ok := firstAfter(turns, s)
		if !ok {
			break
		}
		e, ok := firstAfter(starts, t)
		if !ok {
			break
		}
		reps = append(reps, Repetition{Start: s, Turn: t, End: e})
		prevEnd = e
	}
	return reps
}

func firstAfter(sorted []int, v int) (int, bool) {
	i := sort.SearchInts(sorted, v+1)
	if i == len(sorted) {
		return 0, false
	}
	return sorted[i], true
}

func sortedCopy(v []int) []int {
	out := append([]int(nil), v...)
	sort.Ints(out)
	return out
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

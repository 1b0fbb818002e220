package exercise

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/banshee-data/motion.report/internal/kinematics/l1sequence"
)

// ErrInvalidExerciseDefinition is returned for missing or malformed target
// table entries.
var ErrInvalidExerciseDefinition = errors.New("invalid exercise definition")

// Joint names a joint whose angles can be targeted. Values match the
// landmark names of the joint's vertex.
type Joint string

const (
	LeftShoulder  Joint = l1sequence.LeftShoulder
	RightShoulder Joint = l1sequence.RightShoulder
	LeftHip       Joint = l1sequence.LeftHip
	RightHip      Joint = l1sequence.RightHip
	LeftElbow     Joint = l1sequence.LeftElbow
	RightElbow    Joint = l1sequence.RightElbow
	LeftKnee      Joint = l1sequence.LeftKnee
	RightKnee     Joint = l1sequence.RightKnee
)

// Joints lists every targetable joint, ball joints first.
var Joints = []Joint{LeftShoulder, RightShoulder, LeftHip, RightHip, LeftElbow, RightElbow, LeftKnee, RightKnee}

// IsBall reports whether the joint has two rotational degrees of freedom
// (shoulders and hips).
func (j Joint) IsBall() bool {
	switch j {
	case LeftShoulder, RightShoulder, LeftHip, RightHip:
		return true
	}
	return false
}

// IsLeft reports whether the joint is on the subject's left side.
func (j Joint) IsLeft() bool { return strings.HasPrefix(string(j), "left_") }

// Valid reports whether j is a known joint.
func (j Joint) Valid() bool {
	for _, k := range Joints {
		if j == k {
			return true
		}
	}
	return false
}

// Movement is a medical movement axis.
type Movement int

const (
	FlexionExtension Movement = iota
	AbductionAdduction
)

var movementNames = map[Movement]string{
	FlexionExtension:   "flexion_extension",
	AbductionAdduction: "abduction_adduction",
}

func (m Movement) String() string {
	if s, ok := movementNames[m]; ok {
		return s
	}
	return fmt.Sprintf("movement(%d)", int(m))
}

// AngleType returns the sequence angle slot that stores this movement.
func (m Movement) AngleType() l1sequence.AngleType {
	if m == AbductionAdduction {
		return l1sequence.AbAd
	}
	return l1sequence.FlexEx
}

// MarshalText encodes the movement name.
func (m Movement) MarshalText() ([]byte, error) { return []byte(m.String()), nil }

// UnmarshalText decodes a movement name.
func (m *Movement) UnmarshalText(b []byte) error {
	v, err := ParseMovement(string(b))
	if err != nil {
		return err
	}
	*m = v
	return nil
}

// ParseMovement accepts the snake_case movement names.
func ParseMovement(s string) (Movement, error) {
	for m, name := range movementNames {
		if strings.EqualFold(s, name) {
			return m, nil
		}
	}
	return 0, fmt.Errorf("%w: unknown movement %q", ErrInvalidExerciseDefinition, s)
}

// TargetState selects the START or END posture of a repetition.
type TargetState int

const (
	Start TargetState = iota
	End
)

func (s TargetState) String() string {
	if s == End {
		return "END"
	}
	return "START"
}

// Opposite returns the other target state.
func (s TargetState) Opposite() TargetState {
	if s == End {
		return Start
	}
	return End
}

// MarshalText encodes START or END.
func (s TargetState) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// UnmarshalText decodes START or END in any case.
func (s *TargetState) UnmarshalText(b []byte) error {
	v, err := ParseTargetState(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// ParseTargetState is case-insensitive.
func ParseTargetState(s string) (TargetState, error) {
	switch strings.ToUpper(s) {
	case "START":
		return Start, nil
	case "END":
		return End, nil
	}
	return 0, fmt.Errorf("%w: unknown target state %q", ErrInvalidExerciseDefinition, s)
}

// Priority weights a movement's importance in an exercise.
type Priority float64

const (
	High   Priority = 1.0
	Medium Priority = 0.5
	Low    Priority = 0.0
)

func (p Priority) String() string {
	switch p {
	case High:
		return "HIGH"
	case Medium:
		return "MEDIUM"
	case Low:
		return "LOW"
	}
	return fmt.Sprintf("%.2f", float64(p))
}

// ParsePriority accepts HIGH, MEDIUM and LOW in any case.
func ParsePriority(s string) (Priority, error) {
	switch strings.ToUpper(s) {
	case "HIGH":
		return High, nil
	case "MEDIUM":
		return Medium, nil
	case "LOW":
		return Low, nil
	}
	return 0, fmt.Errorf("%w: unknown priority %q", ErrInvalidExerciseDefinition, s)
}

// Range is a closed angle interval in degrees with Min <= Max.
type Range struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// NewRange orders its bounds.
func NewRange(a, b float64) Range {
	if a > b {
		a, b = b, a
	}
	return Range{Min: a, Max: b}
}

// Contains reports whether v lies within the closed range.
func (r Range) Contains(v float64) bool { return v >= r.Min && v <= r.Max }

// Distance is zero inside the range and the gap to the nearest bound
// outside it.
func (r Range) Distance(v float64) float64 {
	switch {
	case v < r.Min:
		return r.Min - v
	case v > r.Max:
		return v - r.Max
	}
	return 0
}

// Signal identifies one joint-angle time series.
type Signal struct {
	Joint    Joint    `json:"joint"`
	Movement Movement `json:"movement"`
}

func (s Signal) String() string { return string(s.Joint) + "/" + s.Movement.String() }

// TargetKey indexes the target table.
type TargetKey struct {
	Joint    Joint
	Movement Movement
	State    TargetState
}

// Target is one entry of the table.
type Target struct {
	Range    Range
	Priority Priority
}

// Exercise is a named set of target ranges.
type Exercise struct {
	Name        string
	Description string

	targets map[TargetKey]Target
	signals []Signal
}

// New validates and freezes a target table. Every (Joint, Movement) pair
// must carry both a START and an END target.
func New(name, description string, targets map[TargetKey]Target) (*Exercise, error) {
	if strings.TrimSpace(name) == "" {
		return nil, fmt.Errorf("%w: missing name", ErrInvalidExerciseDefinition)
	}
	if len(targets) == 0 {
		return nil, fmt.Errorf("%w: exercise %q has no angle targets", ErrInvalidExerciseDefinition, name)
	}

	ex := &Exercise{
		Name:        name,
		Description: description,
		targets:     make(map[TargetKey]Target, len(targets)),
	}
	seen := make(map[Signal]bool)
	for key, target := range targets {
		if !key.Joint.Valid() {
			return nil, fmt.Errorf("%w: exercise %q: unknown joint %q", ErrInvalidExerciseDefinition, name, key.Joint)
		}
		if key.Movement == AbductionAdduction && !key.Joint.IsBall() {
			return nil, fmt.Errorf("%w: exercise %q: %s has no %s axis", ErrInvalidExerciseDefinition, name, key.Joint, key.Movement)
		}
		if math.IsNaN(target.Range.Min) || math.IsNaN(target.Range.Max) {
			return nil, fmt.Errorf("%w: exercise %q: %s %s %s range is NaN", ErrInvalidExerciseDefinition, name, key.State, key.Joint, key.Movement)
		}
		target.Range = NewRange(target.Range.Min, target.Range.Max)
		ex.targets[key] = target
		seen[Signal{key.Joint, key.Movement}] = true
	}
	for sig := range seen {
		for _, state := range []TargetState{Start, End} {
			if _, ok := ex.targets[TargetKey{sig.Joint, sig.Movement, state}]; !ok {
				return nil, fmt.Errorf("%w: exercise %q: %s has no %s target", ErrInvalidExerciseDefinition, name, sig, state)
			}
		}
		ex.signals = append(ex.signals, sig)
	}
	sortSignals(ex.signals)
	return ex, nil
}

func sortSignals(s []Signal) {
	order := make(map[Joint]int, len(Joints))
	for i, j := range Joints {
		order[j] = i
	}
	sort.Slice(s, func(a, b int) bool {
		if s[a].Joint != s[b].Joint {
			return order[s[a].Joint] < order[s[b].Joint]
		}
		return s[a].Movement < s[b].Movement
	})
}

// Target returns the entry for one key.
func (e *Exercise) Target(j Joint, m Movement, state TargetState) (Target, bool) {
	t, ok := e.targets[TargetKey{j, m, state}]
	return t, ok
}

// Ranges returns the START and END ranges of a signal.
func (e *Exercise) Ranges(sig Signal) (start, end Range, err error) {
	s, ok := e.targets[TargetKey{sig.Joint, sig.Movement, Start}]
	if !ok {
		return Range{}, Range{}, fmt.Errorf("%w: exercise %q: %s has no START target", ErrInvalidExerciseDefinition, e.Name, sig)
	}
	en, ok := e.targets[TargetKey{sig.Joint, sig.Movement, End}]
	if !ok {
		return Range{}, Range{}, fmt.Errorf("%w: exercise %q: %s has no END target", ErrInvalidExerciseDefinition, e.Name, sig)
	}
	return s.Range, en.Range, nil
}

// Signals returns every targeted signal in a stable order.
func (e *Exercise) Signals() []Signal {
	return append([]Signal(nil), e.signals...)
}

// IsPrioritized reports whether the movement is HIGH priority in either
// target state.
func (e *Exercise) IsPrioritized(j Joint, m Movement) bool {
	for _, state := range []TargetState{Start, End} {
		if t, ok := e.targets[TargetKey{j, m, state}]; ok && t.Priority == High {
			return true
		}
	}
	return false
}

// Prioritized returns the HIGH priority signals in a stable order.
func (e *Exercise) Prioritized() []Signal {
	var out []Signal
	for _, sig := range e.signals {
		if e.IsPrioritized(sig.Joint, sig.Movement) {
			out = append(out, sig)
		}
	}
	return out
}

// Keys returns all table keys, ordered by signal then state.
func (e *Exercise) Keys() []TargetKey {
	keys := make([]TargetKey, 0, len(e.targets))
	for _, sig := range e.signals {
		keys = append(keys, TargetKey{sig.Joint, sig.Movement, Start}, TargetKey{sig.Joint, sig.Movement, End})
	}
	return keys
}

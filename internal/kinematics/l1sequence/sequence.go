package l1sequence

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/spatial/r3"
)

// ErrMismatchedSequence is returned when two sequences with different
// body-part registries are merged.
var ErrMismatchedSequence = errors.New("mismatched sequence")

// Landmark names understood by the angle engine. Sequences may carry
// additional landmarks; they are kept but ignored.
const (
	Head          = "head"
	Neck          = "neck"
	Torso         = "torso"
	LeftShoulder  = "left_shoulder"
	RightShoulder = "right_shoulder"
	LeftElbow     = "left_elbow"
	RightElbow    = "right_elbow"
	LeftWrist     = "left_wrist"
	RightWrist    = "right_wrist"
	LeftHip       = "left_hip"
	RightHip      = "right_hip"
	LeftKnee      = "left_knee"
	RightKnee     = "right_knee"
	LeftAnkle     = "left_ankle"
	RightAnkle    = "right_ankle"
)

// AngleType selects one of the medical angle axes stored per joint.
type AngleType int

const (
	FlexEx AngleType = iota
	AbAd
	// InExRot is reserved; no algorithm produces it yet.
	InExRot

	NumAngleTypes = 3
)

func (a AngleType) String() string {
	switch a {
	case FlexEx:
		return "flexion_extension"
	case AbAd:
		return "abduction_adduction"
	case InExRot:
		return "internal_external_rotation"
	default:
		return fmt.Sprintf("angle_type(%d)", int(a))
	}
}

// Angles holds the per-joint values for every AngleType of one frame.
type Angles [NumAngleTypes]float64

// Untracked marks an angle that no algorithm has produced.
var Untracked = math.NaN()

// IsTracked reports whether v holds a computed angle.
func IsTracked(v float64) bool { return !math.IsNaN(v) }

func untrackedFrame(parts int) []Angles {
	frame := make([]Angles, parts)
	for i := range frame {
		for j := range frame[i] {
			frame[i][j] = Untracked
		}
	}
	return frame
}

// Sequence is a time series of body-landmark positions together with the
// joint angles derived from them. Positions, Timestamps and JointAngles
// always have the same length.
type Sequence struct {
	Name        string
	BodyParts   map[string]int
	Positions   [][]r3.Vec
	Timestamps  []float64
	JointAngles [][]Angles
}

// New builds a Sequence from loader output. Frames whose coordinates are all
// exactly zero are treated as sensor dropouts and removed. Joint angles start
// out untracked.
func New(name string, bodyParts map[string]int, positions [][]r3.Vec, timestamps []float64) (*Sequence, error) {
	return NewWithAngles(name, bodyParts, positions, timestamps, nil)
}

// NewWithAngles is New for callers that already hold joint angles. A nil
// angles slice leaves every angle untracked.
func NewWithAngles(name string, bodyParts map[string]int, positions [][]r3.Vec, timestamps []float64, angles [][]Angles) (*Sequence, error) {
	if err := validateBodyParts(bodyParts); err != nil {
		return nil, fmt.Errorf("sequence %q: %w", name, err)
	}
	if len(positions) != len(timestamps) {
		return nil, fmt.Errorf("sequence %q: %d position frames but %d timestamps", name, len(positions), len(timestamps))
	}
	if angles != nil && len(angles) != len(positions) {
		return nil, fmt.Errorf("sequence %q: %d position frames but %d angle frames", name, len(positions), len(angles))
	}

	parts := len(bodyParts)
	seq := &Sequence{
		Name:        name,
		BodyParts:   copyBodyParts(bodyParts),
		Positions:   make([][]r3.Vec, 0, len(positions)),
		Timestamps:  make([]float64, 0, len(timestamps)),
		JointAngles: make([][]Angles, 0, len(positions)),
	}
	for i, frame := range positions {
		if len(frame) != parts {
			return nil, fmt.Errorf("sequence %q: frame %d has %d landmarks, want %d", name, i, len(frame), parts)
		}
		if isDropout(frame) {
			continue
		}
		seq.Positions = append(seq.Positions, append([]r3.Vec(nil), frame...))
		seq.Timestamps = append(seq.Timestamps, timestamps[i])
		if angles != nil {
			if len(angles[i]) != parts {
				return nil, fmt.Errorf("sequence %q: angle frame %d has %d joints, want %d", name, i, len(angles[i]), parts)
			}
			seq.JointAngles = append(seq.JointAngles, append([]Angles(nil), angles[i]...))
		} else {
			seq.JointAngles = append(seq.JointAngles, untrackedFrame(parts))
		}
	}
	return seq, nil
}

func validateBodyParts(bodyParts map[string]int) error {
	if len(bodyParts) == 0 {
		return errors.New("no body parts")
	}
	seen := make([]bool, len(bodyParts))
	for name, idx := range bodyParts {
		if idx < 0 || idx >= len(bodyParts) || seen[idx] {
			return fmt.Errorf("body part %q has invalid index %d", name, idx)
		}
		seen[idx] = true
	}
	return nil
}

func copyBodyParts(src map[string]int) map[string]int {
	dst := make(map[string]int, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}

func isDropout(frame []r3.Vec) bool {
	for _, p := range frame {
		if p.X != 0 || p.Y != 0 || p.Z != 0 {
			return false
		}
	}
	return true
}

// Len returns the number of frames.
func (s *Sequence) Len() int { return len(s.Positions) }

// Index returns the landmark index for name.
func (s *Sequence) Index(name string) (int, bool) {
	idx, ok := s.BodyParts[name]
	return idx, ok
}

// PartNames returns the landmark names ordered by index.
func (s *Sequence) PartNames() []string {
	names := make([]string, len(s.BodyParts))
	for name, idx := range s.BodyParts {
		names[idx] = name
	}
	return names
}

// Position returns the position of the named landmark at frame.
func (s *Sequence) Position(frame int, name string) (r3.Vec, bool) {
	idx, ok := s.BodyParts[name]
	if !ok {
		return r3.Vec{}, false
	}
	return s.Positions[frame][idx], true
}

// Angle returns the stored angle, or Untracked for unknown landmarks.
func (s *Sequence) Angle(frame int, name string, at AngleType) float64 {
	idx, ok := s.BodyParts[name]
	if !ok {
		return Untracked
	}
	return s.JointAngles[frame][idx][at]
}

// SetAngle stores an angle for the named landmark.
func (s *Sequence) SetAngle(frame int, name string, at AngleType, v float64) {
	if idx, ok := s.BodyParts[name]; ok {
		s.JointAngles[frame][idx][at] = v
	}
}

// AngleSeries returns a copy of one joint angle over all frames.
func (s *Sequence) AngleSeries(name string, at AngleType) []float64 {
	out := make([]float64, s.Len())
	idx, ok := s.BodyParts[name]
	for i := range out {
		if !ok {
			out[i] = Untracked
			continue
		}
		out[i] = s.JointAngles[i][idx][at]
	}
	return out
}

// HasAngles reports whether any joint angle has been computed.
func (s *Sequence) HasAngles() bool {
	for _, frame := range s.JointAngles {
		for _, joint := range frame {
			for _, v := range joint {
				if IsTracked(v) {
					return true
				}
			}
		}
	}
	return false
}

// Duration returns the time span between the first and last frame.
func (s *Sequence) Duration() float64 {
	if s.Len() < 2 {
		return 0
	}
	return s.Timestamps[s.Len()-1] - s.Timestamps[0]
}

// Slice returns a copy of frames [start, end).
func (s *Sequence) Slice(start, end int) (*Sequence, error) {
	if start < 0 || end > s.Len() || start > end {
		return nil, fmt.Errorf("slice [%d:%d] out of range for sequence %q with %d frames", start, end, s.Name, s.Len())
	}
	out := &Sequence{
		Name:        s.Name,
		BodyParts:   copyBodyParts(s.BodyParts),
		Positions:   make([][]r3.Vec, 0, end-start),
		Timestamps:  append([]float64(nil), s.Timestamps[start:end]...),
		JointAngles: make([][]Angles, 0, end-start),
	}
	for i := start; i < end; i++ {
		out.Positions = append(out.Positions, append([]r3.Vec(nil), s.Positions[i]...))
		out.JointAngles = append(out.JointAngles, append([]Angles(nil), s.JointAngles[i]...))
	}
	return out, nil
}

// Merge appends other's frames to s in place. Both sequences must share an
// identical body-part registry.
func (s *Sequence) Merge(other *Sequence) error {
	if !sameBodyParts(s.BodyParts, other.BodyParts) {
		return fmt.Errorf("%w: cannot merge %q into %q: body parts differ (%v vs %v)",
			ErrMismatchedSequence, other.Name, s.Name, sortedNames(other.BodyParts), sortedNames(s.BodyParts))
	}
	for i := range other.Positions {
		s.Positions = append(s.Positions, append([]r3.Vec(nil), other.Positions[i]...))
		s.JointAngles = append(s.JointAngles, append([]Angles(nil), other.JointAngles[i]...))
	}
	s.Timestamps = append(s.Timestamps, other.Timestamps...)
	return nil
}

func sameBodyParts(a, b map[string]int) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		if w, ok := b[k]; !ok || w != v {
			return false
		}
	}
	return true
}

func sortedNames(m map[string]int) []string {
	names := make([]string, 0, len(m))
	for k := range m {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

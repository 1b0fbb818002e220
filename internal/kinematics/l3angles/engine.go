package l3angles

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/banshee-data/motion.report/internal/kinematics/exercise"
	"github.com/banshee-data/motion.report/internal/kinematics/l1sequence"
	"github.com/banshee-data/motion.report/internal/kinematics/l2frames"
	"github.com/banshee-data/motion.report/internal/monitoring"
)

// ErrDegenerateGeometry aliases the frame builder's error so callers can
// match angle failures without importing l2frames.
var ErrDegenerateGeometry = l2frames.ErrDegenerateGeometry

const (
	radToDeg = 180 / math.Pi
	// axisTolerance is the relative off-axis distance below which the
	// azimuth of a ball joint is undefined.
	axisTolerance = 1e-12
)

// Engine derives joint angles from landmark positions.
type Engine struct {
	Frames *l2frames.Builder
}

// NewEngine returns an Engine with a default frame builder.
func NewEngine() *Engine {
	return &Engine{Frames: l2frames.NewBuilder()}
}

// Angle3 returns the angle at vertex between the rays to a and b, in
// degrees.
func Angle3(a, vertex, b r3.Vec) (float64, error) {
	u := r3.Sub(a, vertex)
	w := r3.Sub(b, vertex)
	nu, nw := r3.Norm(u), r3.Norm(w)
	if nu < l2frames.MinSegmentLength || nw < l2frames.MinSegmentLength {
		return 0, fmt.Errorf("%w: zero-length ray at vertex %v", ErrDegenerateGeometry, vertex)
	}
	cos := r3.Dot(u, w) / (nu * nw)
	return math.Acos(clamp(cos, -1, 1)) * radToDeg, nil
}

// HingeFlexion returns 180° minus the included angle, so a straight limb
// reads 0°.
func HingeFlexion(distal, vertex, proximal r3.Vec) (float64, error) {
	a, err := Angle3(distal, vertex, proximal)
	if err != nil {
		return 0, err
	}
	return 180 - a, nil
}

// BallAngles decomposes a distal landmark, already expressed in the joint's
// local frame, into flexion/extension and abduction/adduction.
//
// theta is the polar angle from the downward axis and phi the azimuth about
// it, offset so that 0° points anteriorly and +90° laterally. theta is then
// apportioned between the two axes by phi/90, folded into [-1, 1].
func BallAngles(j exercise.Joint, local r3.Vec) (flex, abd float64, err error) {
	r := r3.Norm(local)
	if r < l2frames.MinSegmentLength {
		return 0, 0, fmt.Errorf("%w: %s distal landmark at joint centre", ErrDegenerateGeometry, j)
	}
	s := signsFor(j)
	theta := math.Acos(clamp(s.y*local.Y/r, -1, 1)) * radToDeg

	mx, mz := s.x*local.X, s.z*local.Z
	phi := 0.0
	if theta != 0 && theta != 180 && math.Hypot(mx, mz) > axisTolerance*r {
		phi = math.Atan2(mz, mx)*radToDeg + 90
		if phi > 180 {
			phi -= 360
		}
	}

	p := phi / 90
	return theta * fold(1-p), theta * fold(p), nil
}

// fold reflects v into [-1, 1] about ±1.
func fold(v float64) float64 {
	switch {
	case v > 1:
		return 2 - v
	case v < -1:
		return -2 - v
	}
	return v
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

// Compute fills seq.JointAngles for every joint whose landmarks are
// present. Joints with missing landmarks stay untracked.
func (e *Engine) Compute(seq *l1sequence.Sequence) error {
	trunk := ""
	for _, name := range trunkLandmarks {
		if _, ok := seq.Index(name); ok {
			trunk = name
			break
		}
	}

	for _, j := range exercise.Joints {
		lm := jointLandmarks[j]
		if !e.hasLandmarks(seq, j, lm, trunk) {
			monitoring.Debugf("[AngleEngine] %s: %s untracked, landmarks missing", seq.Name, j)
			continue
		}
		for frame := 0; frame < seq.Len(); frame++ {
			if err := e.computeJoint(seq, frame, j, lm, trunk); err != nil {
				return fmt.Errorf("failed to compute %s angles at frame %d of %q: %w", j, frame, seq.Name, err)
			}
		}
	}
	return nil
}

func (e *Engine) hasLandmarks(seq *l1sequence.Sequence, j exercise.Joint, lm JointLandmarks, trunk string) bool {
	names := []string{lm.Vertex, lm.Distal}
	if j.IsBall() {
		if trunk == "" {
			return false
		}
		names = append(names, lm.Contralateral)
	} else {
		names = append(names, lm.Proximal)
	}
	for _, n := range names {
		if _, ok := seq.Index(n); !ok {
			return false
		}
	}
	return true
}

func (e *Engine) computeJoint(seq *l1sequence.Sequence, frame int, j exercise.Joint, lm JointLandmarks, trunk string) error {
	pos := func(name string) r3.Vec {
		p, _ := seq.Position(frame, name)
		return p
	}

	if !j.IsBall() {
		flex, err := HingeFlexion(pos(lm.Distal), pos(lm.Vertex), pos(lm.Proximal))
		if err != nil {
			return err
		}
		seq.SetAngle(frame, lm.Vertex, l1sequence.FlexEx, flex)
		return nil
	}

	f, err := e.Frames.Build(pos(lm.Vertex), pos(lm.Contralateral), pos(trunk))
	if err != nil {
		return err
	}
	flex, abd, err := BallAngles(j, f.Apply(pos(lm.Distal)))
	if err != nil {
		return err
	}
	seq.SetAngle(frame, lm.Vertex, l1sequence.FlexEx, flex)
	seq.SetAngle(frame, lm.Vertex, l1sequence.AbAd, abd)
	return nil
}

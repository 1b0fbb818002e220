package l3angles

import (
	"math"

	"github.com/banshee-data/motion.report/internal/kinematics/exercise"
	"github.com/banshee-data/motion.report/internal/kinematics/l1sequence"
)

// DefaultSingularityDelta is the band around ±90° abduction inside which
// flexion is zeroed.
const DefaultSingularityDelta = 20.0

// PriorityLookup answers whether a movement is prioritised; *exercise.Exercise
// satisfies it.
type PriorityLookup interface {
	IsPrioritized(j exercise.Joint, m exercise.Movement) bool
}

// RangeConvention post-processes ball-joint angles in place.
type RangeConvention interface {
	Apply(seq *l1sequence.Sequence)
}

// NoopConvention leaves angles untouched.
type NoopConvention struct{}

func (NoopConvention) Apply(*l1sequence.Sequence) {}

// JointRangeConvention extends abduction/adduction past ±90° once flexion
// exceeds 90° and suppresses flexion near the abduction singularity.
//
// The extension only fires for joints whose abduction/adduction is
// prioritised, which assumes an exercise prioritises one ball-joint axis.
type JointRangeConvention struct {
	SingularityDelta float64
	Priorities       PriorityLookup
}

// NewJointRangeConvention returns a convention bound to an exercise's
// priorities. A non-positive delta selects DefaultSingularityDelta.
func NewJointRangeConvention(delta float64, priorities PriorityLookup) *JointRangeConvention {
	if delta <= 0 {
		delta = DefaultSingularityDelta
	}
	return &JointRangeConvention{SingularityDelta: delta, Priorities: priorities}
}

// Correct applies the convention to one (flexion, abduction) pair.
func (c *JointRangeConvention) Correct(j exercise.Joint, flex, abd float64) (float64, float64) {
	if math.Abs(flex) > 90 && c.Priorities != nil && c.Priorities.IsPrioritized(j, exercise.AbductionAdduction) {
		if abd >= 0 {
			abd = math.Min(abd+90, 180)
		} else {
			abd = math.Max(abd-90, -180)
		}
	}
	if math.Abs(math.Abs(abd)-90) <= c.SingularityDelta {
		flex = 0
	}
	return flex, abd
}

// Apply corrects every tracked ball joint of seq.
func (c *JointRangeConvention) Apply(seq *l1sequence.Sequence) {
	for _, j := range exercise.Joints {
		if !j.IsBall() {
			continue
		}
		name := jointLandmarks[j].Vertex
		idx, ok := seq.Index(name)
		if !ok {
			continue
		}
		for frame := range seq.JointAngles {
			a := &seq.JointAngles[frame][idx]
			flex, abd := a[l1sequence.FlexEx], a[l1sequence.AbAd]
			if !l1sequence.IsTracked(flex) || !l1sequence.IsTracked(abd) {
				continue
			}
			a[l1sequence.FlexEx], a[l1sequence.AbAd] = c.Correct(j, flex, abd)
		}
	}
}

package l3angles

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/banshee-data/motion.report/internal/kinematics/exercise"
	"github.com/banshee-data/motion.report/internal/kinematics/l1sequence"
	"github.com/banshee-data/motion.report/internal/testutil"
)

type staticPriorities map[exercise.Signal]bool

func (p staticPriorities) IsPrioritized(j exercise.Joint, m exercise.Movement) bool {
	return p[exercise.Signal{Joint: j, Movement: m}]
}

func TestJointRangeConventionCorrect(t *testing.T) {
	abdPrio := staticPriorities{{Joint: exercise.LeftShoulder, Movement: exercise.AbductionAdduction}: true}
	c := NewJointRangeConvention(0, abdPrio)
	assert.Equal(t, DefaultSingularityDelta, c.SingularityDelta)

	cases := []struct {
		name              string
		joint             exercise.Joint
		flex, abd         float64
		wantFlex, wantAbd float64
	}{
		{"below 90 untouched", exercise.LeftShoulder, 60, 30, 60, 30},
		{"extends positive abduction", exercise.LeftShoulder, 120, 40, 120, 130},
		{"extends negative abduction", exercise.LeftShoulder, -100, -50, -100, -140},
		{"clamps at 180", exercise.LeftShoulder, 150, 120, 150, 180},
		{"extension lands in singular band", exercise.LeftShoulder, 110, 5, 0, 95},
		{"not prioritised", exercise.RightShoulder, 120, 40, 120, 40},
		{"singular band zeroes flexion", exercise.RightShoulder, 30, 75, 0, 75},
		{"singular band negative", exercise.RightShoulder, 30, -105, 0, -105},
		{"outside band", exercise.RightShoulder, 30, 65, 30, 65},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			flex, abd := c.Correct(tc.joint, tc.flex, tc.abd)
			assert.InDelta(t, tc.wantFlex, flex, 1e-9)
			assert.InDelta(t, tc.wantAbd, abd, 1e-9)
		})
	}
}

func TestJointRangeConventionApply(t *testing.T) {
	left := exercise.Signal{Joint: exercise.LeftShoulder, Movement: exercise.FlexionExtension}
	leftAbd := exercise.Signal{Joint: exercise.LeftShoulder, Movement: exercise.AbductionAdduction}
	knee := exercise.Signal{Joint: exercise.LeftKnee, Movement: exercise.FlexionExtension}
	seq := testutil.AngleSequence(t, "angles", map[exercise.Signal][]float64{
		left:    {10, 120, 40},
		leftAbd: {85, 30, 0},
		knee:    {80, 95, 100},
	})

	c := NewJointRangeConvention(20, staticPriorities{leftAbd: true})
	c.Apply(seq)

	assert.Equal(t, []float64{0, 120, 40}, seq.AngleSeries(l1sequence.LeftShoulder, l1sequence.FlexEx))
	assert.Equal(t, []float64{85, 120, 0}, seq.AngleSeries(l1sequence.LeftShoulder, l1sequence.AbAd))
	// hinge joints are never touched
	assert.Equal(t, []float64{80, 95, 100}, seq.AngleSeries(l1sequence.LeftKnee, l1sequence.FlexEx))
}

func TestNoopConvention(t *testing.T) {
	sig := exercise.Signal{Joint: exercise.RightHip, Movement: exercise.AbductionAdduction}
	flex := exercise.Signal{Joint: exercise.RightHip, Movement: exercise.FlexionExtension}
	seq := testutil.AngleSequence(t, "angles", map[exercise.Signal][]float64{sig: {90}, flex: {30}})

	var conv RangeConvention = NoopConvention{}
	conv.Apply(seq)
	assert.Equal(t, 30.0, seq.Angle(0, l1sequence.RightHip, l1sequence.FlexEx))
}

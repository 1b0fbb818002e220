package l3angles

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/banshee-data/motion.report/internal/kinematics/exercise"
	"github.com/banshee-data/motion.report/internal/kinematics/l1sequence"
	"github.com/banshee-data/motion.report/internal/testutil"
)

const angleTol = 1e-6

func TestAngle3(t *testing.T) {
	vertex := r3.Vec{X: 1, Y: 1, Z: 1}
	cases := []struct {
		name string
		a, b r3.Vec
		want float64
	}{
		{"opposite", r3.Vec{X: 2, Y: 1, Z: 1}, r3.Vec{X: -3, Y: 1, Z: 1}, 180},
		{"coincident directions", r3.Vec{X: 1, Y: 2, Z: 1}, r3.Vec{X: 1, Y: 5, Z: 1}, 0},
		{"perpendicular", r3.Vec{X: 1, Y: 1, Z: 4}, r3.Vec{X: 0, Y: 1, Z: 1}, 90},
		{"diagonal", r3.Vec{X: 2, Y: 1, Z: 1}, r3.Vec{X: 2, Y: 2, Z: 1}, 45},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Angle3(tc.a, vertex, tc.b)
			require.NoError(t, err)
			assert.InDelta(t, tc.want, got, angleTol)
		})
	}
}

func TestAngle3ZeroLengthRay(t *testing.T) {
	v := r3.Vec{X: 1}
	_, err := Angle3(v, v, r3.Vec{})
	assert.True(t, errors.Is(err, ErrDegenerateGeometry), "got %v", err)
}

func TestHingeFlexionScaleInvariant(t *testing.T) {
	vertex := r3.Vec{X: 0.3, Y: 1.1, Z: -0.2}
	distal := r3.Vec{X: 0.35, Y: 0.9, Z: 0.1}
	proximal := r3.Vec{X: 0.25, Y: 1.4, Z: -0.25}

	base, err := HingeFlexion(distal, vertex, proximal)
	require.NoError(t, err)

	for _, k := range []float64{0.001, 0.5, 2, 1000} {
		scale := func(p r3.Vec) r3.Vec { return r3.Add(vertex, r3.Scale(k, r3.Sub(p, vertex))) }
		got, err := HingeFlexion(scale(distal), vertex, scale(proximal))
		require.NoError(t, err)
		assert.InDelta(t, base, got, angleTol, "scale %v", k)
	}

	straight, err := HingeFlexion(r3.Vec{Y: -1}, r3.Vec{}, r3.Vec{Y: 1})
	require.NoError(t, err)
	assert.InDelta(t, 0, straight, angleTol)
}

func TestBallAnglesRoundTrip(t *testing.T) {
	cases := []struct{ flex, abd float64 }{
		{0, 0},
		{45, 0}, {90, 0}, {-45, 0}, {-90, 0},
		{0, 45}, {0, 90}, {0, -45}, {0, -90},
		{45, 45}, {-45, -45}, {45, -45}, {-45, 45},
		{180, 0},
	}
	for _, j := range []exercise.Joint{exercise.LeftShoulder, exercise.RightShoulder, exercise.LeftHip, exercise.RightHip} {
		for _, tc := range cases {
			t.Run(fmt.Sprintf("%s/%v_%v", j, tc.flex, tc.abd), func(t *testing.T) {
				dir := testutil.FlexAbdDirection(j.IsLeft(), tc.flex, tc.abd)
				flex, abd, err := BallAngles(j, r3.Scale(0.3, dir))
				require.NoError(t, err)
				assert.InDelta(t, tc.flex, flex, angleTol)
				assert.InDelta(t, tc.abd, abd, angleTol)
			})
		}
	}
}

func TestBallAnglesOnAxisForcesZeroAzimuth(t *testing.T) {
	flex, abd, err := BallAngles(exercise.LeftShoulder, r3.Vec{Y: 0.3})
	require.NoError(t, err)
	assert.InDelta(t, 180, flex, angleTol)
	assert.InDelta(t, 0, abd, angleTol)

	_, _, err = BallAngles(exercise.LeftShoulder, r3.Vec{})
	assert.True(t, errors.Is(err, ErrDegenerateGeometry))
}

func TestComputeOnSyntheticSkeleton(t *testing.T) {
	poses := []testutil.Pose{
		{},
		{
			LeftArm:       testutil.FlexAbdDirection(true, 90, 0),
			RightArm:      testutil.FlexAbdDirection(false, 0, 45),
			LeftLeg:       testutil.FlexAbdDirection(true, 30, 0),
			RightLeg:      testutil.FlexAbdDirection(false, -20, 0),
			LeftElbowFlex: 60,
			RightKneeFlex: 90,
		},
	}
	seq := testutil.NewPoseSequence(t, "skeleton", poses, 30)
	require.NoError(t, NewEngine().Compute(seq))

	for _, name := range []string{l1sequence.LeftShoulder, l1sequence.RightShoulder, l1sequence.LeftHip, l1sequence.RightHip} {
		assert.InDelta(t, 0, seq.Angle(0, name, l1sequence.FlexEx), 1e-4, name)
		assert.InDelta(t, 0, seq.Angle(0, name, l1sequence.AbAd), 1e-4, name)
	}

	assert.InDelta(t, 90, seq.Angle(1, l1sequence.LeftShoulder, l1sequence.FlexEx), 1e-4)
	assert.InDelta(t, 0, seq.Angle(1, l1sequence.LeftShoulder, l1sequence.AbAd), 1e-4)
	assert.InDelta(t, 0, seq.Angle(1, l1sequence.RightShoulder, l1sequence.FlexEx), 1e-4)
	assert.InDelta(t, 45, seq.Angle(1, l1sequence.RightShoulder, l1sequence.AbAd), 1e-4)
	assert.InDelta(t, 30, seq.Angle(1, l1sequence.LeftHip, l1sequence.FlexEx), 1e-4)
	assert.InDelta(t, -20, seq.Angle(1, l1sequence.RightHip, l1sequence.FlexEx), 1e-4)
	assert.InDelta(t, 60, seq.Angle(1, l1sequence.LeftElbow, l1sequence.FlexEx), 1e-4)
	assert.InDelta(t, 0, seq.Angle(1, l1sequence.RightElbow, l1sequence.FlexEx), 1e-4)
	assert.InDelta(t, 90, seq.Angle(1, l1sequence.RightKnee, l1sequence.FlexEx), 1e-4)

	// hinge joints have no abduction axis
	assert.False(t, l1sequence.IsTracked(seq.Angle(1, l1sequence.LeftElbow, l1sequence.AbAd)))
	// rotation is reserved
	assert.False(t, l1sequence.IsTracked(seq.Angle(1, l1sequence.LeftShoulder, l1sequence.InExRot)))
}

func TestComputeSkipsJointsWithMissingLandmarks(t *testing.T) {
	parts := map[string]int{l1sequence.LeftShoulder: 0, l1sequence.LeftElbow: 1, l1sequence.LeftWrist: 2}
	positions := [][]r3.Vec{{{X: 0.2, Y: 1.45}, {X: 0.2, Y: 1.15}, {X: 0.2, Y: 0.9, Z: 0.1}}}
	seq, err := l1sequence.New("arm only", parts, positions, []float64{0})
	require.NoError(t, err)

	require.NoError(t, NewEngine().Compute(seq))
	assert.False(t, l1sequence.IsTracked(seq.Angle(0, l1sequence.LeftShoulder, l1sequence.FlexEx)))
	assert.True(t, l1sequence.IsTracked(seq.Angle(0, l1sequence.LeftElbow, l1sequence.FlexEx)))
}

func TestComputeReportsDegenerateFrames(t *testing.T) {
	frame := testutil.Pose{}.Frame()
	parts := testutil.BodyParts()
	// collapse the left elbow onto the shoulder
	frame[parts[l1sequence.LeftElbow]] = frame[parts[l1sequence.LeftShoulder]]
	seq, err := l1sequence.New("broken", parts, [][]r3.Vec{frame}, []float64{0})
	require.NoError(t, err)

	err = NewEngine().Compute(seq)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrDegenerateGeometry))
	assert.Contains(t, err.Error(), "broken")
}

package l3angles

import (
	"github.com/banshee-data/motion.report/internal/kinematics/exercise"
	"github.com/banshee-data/motion.report/internal/kinematics/l1sequence"
)

// JointLandmarks names the landmarks an angle computation reads.
type JointLandmarks struct {
	Vertex string
	Distal string
	// Proximal closes the hinge angle. Unused for ball joints.
	Proximal string
	// Contralateral is the x reference of a ball-joint frame.
	Contralateral string
}

var jointLandmarks = map[exercise.Joint]JointLandmarks{
	exercise.LeftShoulder:  {Vertex: l1sequence.LeftShoulder, Distal: l1sequence.LeftElbow, Contralateral: l1sequence.RightShoulder},
	exercise.RightShoulder: {Vertex: l1sequence.RightShoulder, Distal: l1sequence.RightElbow, Contralateral: l1sequence.LeftShoulder},
	exercise.LeftHip:       {Vertex: l1sequence.LeftHip, Distal: l1sequence.LeftKnee, Contralateral: l1sequence.RightHip},
	exercise.RightHip:      {Vertex: l1sequence.RightHip, Distal: l1sequence.RightKnee, Contralateral: l1sequence.LeftHip},
	exercise.LeftElbow:     {Vertex: l1sequence.LeftElbow, Distal: l1sequence.LeftWrist, Proximal: l1sequence.LeftShoulder},
	exercise.RightElbow:    {Vertex: l1sequence.RightElbow, Distal: l1sequence.RightWrist, Proximal: l1sequence.RightShoulder},
	exercise.LeftKnee:      {Vertex: l1sequence.LeftKnee, Distal: l1sequence.LeftAnkle, Proximal: l1sequence.LeftHip},
	exercise.RightKnee:     {Vertex: l1sequence.RightKnee, Distal: l1sequence.RightAnkle, Proximal: l1sequence.RightHip},
}

// trunkLandmarks are tried in order as the secondary frame reference.
var trunkLandmarks = []string{l1sequence.Torso, l1sequence.Neck}

// LandmarksFor returns the landmark table entry for j.
func LandmarksFor(j exercise.Joint) (JointLandmarks, bool) {
	l, ok := jointLandmarks[j]
	return l, ok
}

// axisSigns mirrors local axes so that one decomposition serves both sides.
// With +X pointing to the subject's left, lateral is +X for left joints and
// -X for right joints. Y is measured from the downward axis and Z is
// negated so that anterior elevation yields positive flexion.
type axisSigns struct {
	x, y, z float64
}

func signsFor(j exercise.Joint) axisSigns {
	if j.IsLeft() {
		return axisSigns{x: 1, y: -1, z: -1}
	}
	return axisSigns{x: -1, y: -1, z: -1}
}

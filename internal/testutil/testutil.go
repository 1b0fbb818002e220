// Package testutil provides shared test helpers and synthetic motion
// fixtures: a standing skeleton that can be posed by limb direction, and
// sequences and exercises built from it.
package testutil

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/banshee-data/motion.report/internal/kinematics/exercise"
	"github.com/banshee-data/motion.report/internal/kinematics/l1sequence"
)

// AssertStatusCode checks that the response status code matches expected.
func AssertStatusCode(t testing.TB, got, want int) {
	t.Helper()
	if got != want {
		t.Errorf("status code = %d, want %d", got, want)
	}
}

// AssertNoError fails the test if err is not nil.
func AssertNoError(t testing.TB, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// Landmarks of the synthetic skeleton, in index order.
var Landmarks = []string{
	l1sequence.Head, l1sequence.Neck, l1sequence.Torso,
	l1sequence.LeftShoulder, l1sequence.RightShoulder,
	l1sequence.LeftElbow, l1sequence.RightElbow,
	l1sequence.LeftWrist, l1sequence.RightWrist,
	l1sequence.LeftHip, l1sequence.RightHip,
	l1sequence.LeftKnee, l1sequence.RightKnee,
	l1sequence.LeftAnkle, l1sequence.RightAnkle,
}

// BodyParts returns the landmark registry of the synthetic skeleton.
func BodyParts() map[string]int {
	m := make(map[string]int, len(Landmarks))
	for i, name := range Landmarks {
		m[name] = i
	}
	return m
}

// Segment lengths in metres.
const (
	UpperArm = 0.30
	Forearm  = 0.25
	Thigh    = 0.45
	Shin     = 0.45
)

var (
	down = r3.Vec{Y: -1}

	// +X is the subject's left, +Y up, +Z forward.
	restPositions = map[string]r3.Vec{
		l1sequence.Head:          {Y: 1.70},
		l1sequence.Neck:          {Y: 1.50},
		l1sequence.Torso:         {Y: 1.20},
		l1sequence.LeftShoulder:  {X: 0.20, Y: 1.45},
		l1sequence.RightShoulder: {X: -0.20, Y: 1.45},
		l1sequence.LeftHip:       {X: 0.10, Y: 0.95},
		l1sequence.RightHip:      {X: -0.10, Y: 0.95},
	}
)

// Pose describes one frame of the synthetic skeleton. Zero limb directions
// hang straight down; hinge angles are flexion in degrees.
type Pose struct {
	LeftArm, RightArm, LeftLeg, RightLeg                       r3.Vec
	LeftElbowFlex, RightElbowFlex, LeftKneeFlex, RightKneeFlex float64
}

// LimbDirection returns the unit direction, in body coordinates, of a limb
// whose polar angle from the downward axis is theta and whose azimuth is phi
// (0° anterior, +90° lateral), both in degrees.
func LimbDirection(left bool, theta, phi float64) r3.Vec {
	t := theta * math.Pi / 180
	psi := (phi - 90) * math.Pi / 180
	rho := math.Sin(t)
	mx, mz := rho*math.Cos(psi), rho*math.Sin(psi)
	x := mx
	if !left {
		x = -mx
	}
	return r3.Vec{X: x, Y: -math.Cos(t), Z: -mz}
}

// FlexAbdDirection returns the limb direction reproducing the given pure
// flexion (abd == 0) or pure abduction (flex == 0), or the diagonal
// combination when |flex| == |abd|.
func FlexAbdDirection(left bool, flex, abd float64) r3.Vec {
	switch {
	case abd == 0:
		phi := 0.0
		if flex < 0 {
			phi = 180
		}
		return LimbDirection(left, math.Abs(flex), phi)
	case flex == 0:
		phi := 90.0
		if abd < 0 {
			phi = -90
		}
		return LimbDirection(left, math.Abs(abd), phi)
	}
	theta := math.Abs(flex) + math.Abs(abd)
	phi := math.Atan2(abd, flex) * 180 / math.Pi
	return LimbDirection(left, theta, phi)
}

func orDown(v r3.Vec) r3.Vec {
	if v == (r3.Vec{}) {
		return down
	}
	return r3.Unit(v)
}

// bend rotates dir by flex degrees about an axis perpendicular to it.
func bend(dir r3.Vec, flex float64) r3.Vec {
	if flex == 0 {
		return dir
	}
	axis := r3.Cross(dir, r3.Vec{Z: 1})
	if r3.Norm(axis) < 1e-9 {
		axis = r3.Vec{X: 1}
	}
	return r3.NewRotation(-flex*math.Pi/180, r3.Unit(axis)).Rotate(dir)
}

// Frame returns the landmark positions for p, ordered as Landmarks.
func (p Pose) Frame() []r3.Vec {
	pos := make(map[string]r3.Vec, len(Landmarks))
	for k, v := range restPositions {
		pos[k] = v
	}
	limb := func(vertex, mid, end string, dir r3.Vec, upper, lower, flex float64) {
		dir = orDown(dir)
		pos[mid] = r3.Add(pos[vertex], r3.Scale(upper, dir))
		pos[end] = r3.Add(pos[mid], r3.Scale(lower, bend(dir, flex)))
	}
	limb(l1sequence.LeftShoulder, l1sequence.LeftElbow, l1sequence.LeftWrist, p.LeftArm, UpperArm, Forearm, p.LeftElbowFlex)
	limb(l1sequence.RightShoulder, l1sequence.RightElbow, l1sequence.RightWrist, p.RightArm, UpperArm, Forearm, p.RightElbowFlex)
	limb(l1sequence.LeftHip, l1sequence.LeftKnee, l1sequence.LeftAnkle, p.LeftLeg, Thigh, Shin, p.LeftKneeFlex)
	limb(l1sequence.RightHip, l1sequence.RightKnee, l1sequence.RightAnkle, p.RightLeg, Thigh, Shin, p.RightKneeFlex)

	out := make([]r3.Vec, len(Landmarks))
	for i, name := range Landmarks {
		out[i] = pos[name]
	}
	return out
}

// NewPoseSequence builds a sequence of the synthetic skeleton sampled at fps.
func NewPoseSequence(t testing.TB, name string, poses []Pose, fps float64) *l1sequence.Sequence {
	t.Helper()
	positions := make([][]r3.Vec, len(poses))
	timestamps := make([]float64, len(poses))
	for i, p := range poses {
		positions[i] = p.Frame()
		timestamps[i] = float64(i) / fps
	}
	seq, err := l1sequence.New(name, BodyParts(), positions, timestamps)
	AssertNoError(t, err)
	return seq
}

// RaiseSignal returns reps periods of 45-45cos(2πi/period), i.e. angles
// swinging between 0° and 90°, plus one closing frame.
func RaiseSignal(reps, period int) []float64 {
	n := reps*period + 1
	out := make([]float64, n)
	for i := range out {
		out[i] = 45 - 45*math.Cos(2*math.Pi*float64(i)/float64(period))
	}
	return out
}

// FrontRaisePoses swings both arms forward following angles.
func FrontRaisePoses(angles []float64) []Pose {
	poses := make([]Pose, len(angles))
	for i, a := range angles {
		poses[i] = Pose{
			LeftArm:  FlexAbdDirection(true, a, 0),
			RightArm: FlexAbdDirection(false, a, 0),
		}
	}
	return poses
}

// FrontRaiseExercise prioritises shoulder flexion from [0,20] to [80,100].
func FrontRaiseExercise(t testing.TB) *exercise.Exercise {
	t.Helper()
	targets := map[exercise.TargetKey]exercise.Target{}
	for _, j := range []exercise.Joint{exercise.LeftShoulder, exercise.RightShoulder} {
		targets[exercise.TargetKey{Joint: j, Movement: exercise.FlexionExtension, State: exercise.Start}] =
			exercise.Target{Range: exercise.NewRange(0, 20), Priority: exercise.High}
		targets[exercise.TargetKey{Joint: j, Movement: exercise.FlexionExtension, State: exercise.End}] =
			exercise.Target{Range: exercise.NewRange(80, 100), Priority: exercise.High}
		targets[exercise.TargetKey{Joint: j, Movement: exercise.AbductionAdduction, State: exercise.Start}] =
			exercise.Target{Range: exercise.NewRange(-15, 15), Priority: exercise.Low}
		targets[exercise.TargetKey{Joint: j, Movement: exercise.AbductionAdduction, State: exercise.End}] =
			exercise.Target{Range: exercise.NewRange(-15, 15), Priority: exercise.Low}
	}
	for _, j := range []exercise.Joint{exercise.LeftElbow, exercise.RightElbow} {
		for _, s := range []exercise.TargetState{exercise.Start, exercise.End} {
			targets[exercise.TargetKey{Joint: j, Movement: exercise.FlexionExtension, State: s}] =
				exercise.Target{Range: exercise.NewRange(0, 15), Priority: exercise.Medium}
		}
	}
	ex, err := exercise.New("front raise", "raise both arms forward to shoulder height", targets)
	AssertNoError(t, err)
	return ex
}

// AngleSequence builds a sequence from precomputed joint angles. Positions
// hold the rest pose.
func AngleSequence(t testing.TB, name string, signals map[exercise.Signal][]float64) *l1sequence.Sequence {
	t.Helper()
	n := -1
	for sig, values := range signals {
		if n >= 0 && len(values) != n {
			t.Fatalf("signal %s has %d samples, want %d", sig, len(values), n)
		}
		n = len(values)
	}
	parts := BodyParts()
	positions := make([][]r3.Vec, n)
	timestamps := make([]float64, n)
	angles := make([][]l1sequence.Angles, n)
	rest := Pose{}.Frame()
	for i := 0; i < n; i++ {
		positions[i] = rest
		timestamps[i] = float64(i) / 30
		angles[i] = make([]l1sequence.Angles, len(parts))
		for k := range angles[i] {
			for a := range angles[i][k] {
				angles[i][k][a] = l1sequence.Untracked
			}
		}
		for sig, values := range signals {
			angles[i][parts[string(sig.Joint)]][sig.Movement.AngleType()] = values[i]
		}
	}
	seq, err := l1sequence.NewWithAngles(name, parts, positions, timestamps, angles)
	AssertNoError(t, err)
	return seq
}

package l2frames

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/banshee-data/motion.report/internal/monitoring"
)

// ErrDegenerateGeometry is returned when landmarks coincide so that a
// direction, and therefore a frame or an angle, is undefined.
var ErrDegenerateGeometry = errors.New("degenerate geometry")

const (
	// DefaultParallelTolerance is the |cross| below which the reference
	// directions are treated as parallel.
	DefaultParallelTolerance = 1e-6
	// MinSegmentLength is the shortest landmark separation that still
	// defines a direction.
	MinSegmentLength = 1e-9
	// TransformValidationTolerance bounds det and orthonormality errors.
	TransformValidationTolerance = 1e-6
)

var (
	AxisX = r3.Vec{X: 1}
	AxisY = r3.Vec{Y: 1}
	AxisZ = r3.Vec{Z: 1}
)

// Frame is a right-handed joint-local coordinate system.
type Frame struct {
	Origin r3.Vec
	// Axes are the local X, Y and Z directions in world coordinates.
	Axes [3]r3.Vec
	// T is the row-major 4×4 world-to-local homogeneous transform.
	T [16]float64
	// Fallback is set when the secondary reference was parallel to the
	// x reference and a world axis was substituted.
	Fallback bool
}

// Apply maps a world point into the frame.
func (f *Frame) Apply(p r3.Vec) r3.Vec {
	return ApplyTransform(p, f.T)
}

// Builder constructs joint-local frames.
type Builder struct {
	ParallelTolerance float64
}

// NewBuilder returns a Builder using DefaultParallelTolerance.
func NewBuilder() *Builder {
	return &Builder{ParallelTolerance: DefaultParallelTolerance}
}

// Build returns the frame whose origin is origin, whose X axis points at
// xRef (sign-flipped so its world X component is non-negative) and whose Z
// axis is perpendicular to the plane spanned by xRef and secondaryRef.
func (b *Builder) Build(origin, xRef, secondaryRef r3.Vec) (*Frame, error) {
	vx, err := direction(origin, xRef)
	if err != nil {
		return nil, fmt.Errorf("x reference: %w", err)
	}
	if vx.X < 0 {
		vx = r3.Scale(-1, vx)
	}

	s, err := direction(origin, secondaryRef)
	if err != nil {
		return nil, fmt.Errorf("secondary reference: %w", err)
	}

	tol := b.ParallelTolerance
	if tol <= 0 {
		tol = DefaultParallelTolerance
	}
	frame := &Frame{Origin: origin}
	cross := r3.Cross(s, vx)
	if r3.Norm(cross) < tol {
		s = LeastAlignedAxis(vx)
		cross = r3.Cross(s, vx)
		frame.Fallback = true
		monitoring.Debugf("[Frames] parallel references at origin %v, using axis %v", origin, s)
	}
	vperp := canonical(r3.Unit(cross))
	vthird := r3.Cross(vperp, vx)

	frame.Axes = [3]r3.Vec{vx, vthird, vperp}
	frame.T = homogeneous(localRotation(vx, vperp), origin)
	return frame, nil
}

// Align expresses every position of one frame in the local system built
// from origin, xRef and secondaryRef.
func (b *Builder) Align(origin, xRef, secondaryRef r3.Vec, positions []r3.Vec) ([]r3.Vec, error) {
	frame, err := b.Build(origin, xRef, secondaryRef)
	if err != nil {
		return nil, err
	}
	out := make([]r3.Vec, len(positions))
	for i, p := range positions {
		out[i] = frame.Apply(p)
	}
	return out, nil
}

func direction(from, to r3.Vec) (r3.Vec, error) {
	d := r3.Sub(to, from)
	n := r3.Norm(d)
	if n < MinSegmentLength {
		return r3.Vec{}, fmt.Errorf("%w: landmarks %v and %v coincide", ErrDegenerateGeometry, from, to)
	}
	return r3.Scale(1/n, d), nil
}

// LeastAlignedAxis returns the world axis with the smallest absolute
// component in v. Ties resolve in X, Y, Z order.
func LeastAlignedAxis(v r3.Vec) r3.Vec {
	ax, ay, az := math.Abs(v.X), math.Abs(v.Y), math.Abs(v.Z)
	switch {
	case ax <= ay && ax <= az:
		return AxisX
	case ay <= az:
		return AxisY
	default:
		return AxisZ
	}
}

// canonical flips v so its first non-zero component in Z, Y, X order is
// positive.
func canonical(v r3.Vec) r3.Vec {
	for _, c := range []float64{v.Z, v.Y, v.X} {
		if c > 0 {
			return v
		}
		if c < 0 {
			return r3.Scale(-1, v)
		}
	}
	return v
}

// localRotation composes a rotation taking vx onto world X with a rotation
// about world X taking the rotated vperp onto world Z.
func localRotation(vx, vperp r3.Vec) *r3.Mat {
	r1 := AlignVectors(vx, AxisX)
	u := r1.MulVec(vperp)
	r2 := AxisAngle(AxisX, math.Atan2(u.Y, u.Z))

	r := r3.NewMat(nil)
	r.Mul(r2, r1)
	return r
}

// AxisAngle returns the Rodrigues rotation by angle radians about the unit
// axis: R = I + sin(a)K + (1-cos(a))K².
func AxisAngle(axis r3.Vec, angle float64) *r3.Mat {
	k := r3.Skew(axis)
	k2 := r3.NewMat(nil)
	k2.Mul(k, k)

	sinK := r3.NewMat(nil)
	sinK.Scale(math.Sin(angle), k)
	cosK2 := r3.NewMat(nil)
	cosK2.Scale(1-math.Cos(angle), k2)

	r := r3.Eye()
	r.Add(r, sinK)
	r.Add(r, cosK2)
	return r
}

// AlignVectors returns the rotation taking unit vector from onto unit
// vector to. Antiparallel inputs rotate by π about an axis perpendicular to
// from.
func AlignVectors(from, to r3.Vec) *r3.Mat {
	axis := r3.Cross(from, to)
	sin := r3.Norm(axis)
	cos := r3.Dot(from, to)
	if sin < MinSegmentLength {
		if cos > 0 {
			return r3.Eye()
		}
		perp := r3.Unit(r3.Cross(from, LeastAlignedAxis(from)))
		return AxisAngle(perp, math.Pi)
	}
	return AxisAngle(r3.Scale(1/sin, axis), math.Atan2(sin, cos))
}

// homogeneous packs x' = R(x - origin) into a row-major 4×4 matrix.
func homogeneous(r *r3.Mat, origin r3.Vec) [16]float64 {
	t := r3.Scale(-1, r.MulVec(origin))
	return [16]float64{
		r.At(0, 0), r.At(0, 1), r.At(0, 2), t.X,
		r.At(1, 0), r.At(1, 1), r.At(1, 2), t.Y,
		r.At(2, 0), r.At(2, 1), r.At(2, 2), t.Z,
		0, 0, 0, 1,
	}
}

// ApplyTransform applies a row-major 4×4 homogeneous transform to p.
func ApplyTransform(p r3.Vec, T [16]float64) r3.Vec {
	return r3.Vec{
		X: T[0]*p.X + T[1]*p.Y + T[2]*p.Z + T[3],
		Y: T[4]*p.X + T[5]*p.Y + T[6]*p.Z + T[7],
		Z: T[8]*p.X + T[9]*p.Y + T[10]*p.Z + T[11],
	}
}

// IsValidTransform reports whether T is a proper rigid transform: an
// orthonormal rotation block with det ≈ 1 and a [0 0 0 1] last row.
func IsValidTransform(T [16]float64) bool {
	r := r3.NewMat([]float64{
		T[0], T[1], T[2],
		T[4], T[5], T[6],
		T[8], T[9], T[10],
	})
	if math.Abs(r.Det()-1) > TransformValidationTolerance {
		return false
	}
	for i := 0; i < 3; i++ {
		row := r.VecRow(i)
		if math.Abs(r3.Norm(row)-1) > TransformValidationTolerance {
			return false
		}
		for j := i + 1; j < 3; j++ {
			if math.Abs(r3.Dot(row, r.VecRow(j))) > TransformValidationTolerance {
				return false
			}
		}
	}
	return T[12] == 0 && T[13] == 0 && T[14] == 0 && T[15] == 1
}

package planartrack

import (
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/num/quat"
	"gonum.org/v1/gonum/spatial/r3"
)

// Pose represents a rigid 6-DoF transform as a translation vector and a
// unit rotation quaternion
type Pose struct {
	// Translation component in meters
	Translation r3.Vec
	// Rotation component as a unit quaternion
	Rotation quat.Number
}

// IdentityPose returns the identity transform
func IdentityPose() Pose {
	return Pose{
		Rotation: quat.Number{Real: 1},
	}
}

// NewPose returns a pose from the given translation and rotation.  The
// rotation quaternion is normalized
func NewPose(t r3.Vec, r quat.Number) Pose {
	return Pose{
		Translation: t,
		Rotation:    normalizeQuat(r),
	}
}

// TransformPoint applies the pose transform to a point, ie: rotates the
// point and then translates it
func (p Pose) TransformPoint(v r3.Vec) r3.Vec {
	rotated := rotateVec(p.Rotation, v)
	return r3.Add(rotated, p.Translation)
}

// Compose combines two poses, the result applies other first and then p
func (p Pose) Compose(other Pose) Pose {
	return Pose{
		Translation: p.TransformPoint(other.Translation),
		Rotation:    normalizeQuat(quat.Mul(p.Rotation, other.Rotation)),
	}
}

// Inverse returns the inverse transform
func (p Pose) Inverse() Pose {

	inv := quat.Conj(p.Rotation)
	t := rotateVec(inv, p.Translation)

	return Pose{
		Translation: r3.Scale(-1, t),
		Rotation:    inv,
	}
}

// Interpolate blends between pose p at t=0 and other at t=1.  Translation
// is interpolated linearly and rotation by spherical linear interpolation
func (p Pose) Interpolate(other Pose, t float64) Pose {

	if t <= 0 {
		return p
	}

	if t >= 1 {
		return other
	}

	trans := r3.Add(r3.Scale(1-t, p.Translation), r3.Scale(t, other.Translation))

	return Pose{
		Translation: trans,
		Rotation:    slerp(p.Rotation, other.Rotation, t),
	}
}

// RotationMatrix returns the pose rotation as a 3x3 matrix
func (p Pose) RotationMatrix() *mat.Dense {

	q := normalizeQuat(p.Rotation)

	w := q.Real
	x := q.Imag
	y := q.Jmag
	z := q.Kmag

	return mat.NewDense(3, 3, []float64{
		1 - 2*(y*y+z*z), 2 * (x*y - w*z), 2 * (x*z + w*y),
		2 * (x*y + w*z), 1 - 2*(x*x+z*z), 2 * (y*z - w*x),
		2 * (x*z - w*y), 2 * (y*z + w*x), 1 - 2*(x*x+y*y),
	})
}

// PoseFromRotationMatrix builds a pose from a 3x3 rotation matrix and a
// translation vector.  The matrix to quaternion conversion uses Shepperd's
// method picking the numerically largest component first
func PoseFromRotationMatrix(r *mat.Dense, t r3.Vec) Pose {

	m00 := r.At(0, 0)
	m01 := r.At(0, 1)
	m02 := r.At(0, 2)
	m10 := r.At(1, 0)
	m11 := r.At(1, 1)
	m12 := r.At(1, 2)
	m20 := r.At(2, 0)
	m21 := r.At(2, 1)
	m22 := r.At(2, 2)

	trace := m00 + m11 + m22

	var q quat.Number

	switch {
	case trace > 0:
		s := math.Sqrt(trace+1) * 2
		q = quat.Number{
			Real: s / 4,
			Imag: (m21 - m12) / s,
			Jmag: (m02 - m20) / s,
			Kmag: (m10 - m01) / s,
		}

	case m00 > m11 && m00 > m22:
		s := math.Sqrt(1+m00-m11-m22) * 2
		q = quat.Number{
			Real: (m21 - m12) / s,
			Imag: s / 4,
			Jmag: (m01 + m10) / s,
			Kmag: (m02 + m20) / s,
		}

	case m11 > m22:
		s := math.Sqrt(1+m11-m00-m22) * 2
		q = quat.Number{
			Real: (m02 - m20) / s,
			Imag: (m01 + m10) / s,
			Jmag: s / 4,
			Kmag: (m12 + m21) / s,
		}

	default:
		s := math.Sqrt(1+m22-m00-m11) * 2
		q = quat.Number{
			Real: (m10 - m01) / s,
			Imag: (m02 + m20) / s,
			Jmag: (m12 + m21) / s,
			Kmag: s / 4,
		}
	}

	return Pose{
		Translation: t,
		Rotation:    normalizeQuat(q),
	}
}

// RotationAboutAxis returns the unit quaternion for a rotation of angle
// radians about the given axis
func RotationAboutAxis(axis r3.Vec, angle float64) quat.Number {

	norm := r3.Norm(axis)

	if norm == 0 {
		return quat.Number{Real: 1}
	}

	axis = r3.Scale(1/norm, axis)
	s := math.Sin(angle / 2)

	return quat.Number{
		Real: math.Cos(angle / 2),
		Imag: axis.X * s,
		Jmag: axis.Y * s,
		Kmag: axis.Z * s,
	}
}

// rotateVec rotates a vector by the quaternion using q * v * conj(q)
func rotateVec(q quat.Number, v r3.Vec) r3.Vec {

	vq := quat.Number{Imag: v.X, Jmag: v.Y, Kmag: v.Z}
	res := quat.Mul(quat.Mul(q, vq), quat.Conj(q))

	return r3.Vec{X: res.Imag, Y: res.Jmag, Z: res.Kmag}
}

// normalizeQuat scales a quaternion to unit length
func normalizeQuat(q quat.Number) quat.Number {

	n := quat.Abs(q)

	if n == 0 {
		return quat.Number{Real: 1}
	}

	return quat.Scale(1/n, q)
}

// slerp performs spherical linear interpolation between two unit
// quaternions
func slerp(a, b quat.Number, t float64) quat.Number {

	dot := a.Real*b.Real + a.Imag*b.Imag + a.Jmag*b.Jmag + a.Kmag*b.Kmag

	// take the short way around
	if dot < 0 {
		b = quat.Scale(-1, b)
		dot = -dot
	}

	// fall back to linear interpolation when the quaternions are nearly
	// parallel and the slerp denominator becomes unstable
	if dot > 0.9995 {
		mix := quat.Add(quat.Scale(1-t, a), quat.Scale(t, b))
		return normalizeQuat(mix)
	}

	theta := math.Acos(dot)
	sinTheta := math.Sin(theta)

	wa := math.Sin((1-t)*theta) / sinTheta
	wb := math.Sin(t*theta) / sinTheta

	return normalizeQuat(quat.Add(quat.Scale(wa, a), quat.Scale(wb, b)))
}

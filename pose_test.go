package planartrack

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/num/quat"
	"gonum.org/v1/gonum/spatial/r3"
)

func vecsEqual(t *testing.T, want, got r3.Vec, tol float64) {
	t.Helper()

	assert.InDelta(t, want.X, got.X, tol)
	assert.InDelta(t, want.Y, got.Y, tol)
	assert.InDelta(t, want.Z, got.Z, tol)
}

func TestTransformPointRotation(t *testing.T) {

	// 90 degrees about Z maps X onto Y
	p := NewPose(r3.Vec{}, RotationAboutAxis(r3.Vec{Z: 1}, math.Pi/2))

	got := p.TransformPoint(r3.Vec{X: 1})
	vecsEqual(t, r3.Vec{Y: 1}, got, 1e-12)
}

func TestComposeInverse(t *testing.T) {

	p := NewPose(r3.Vec{X: 0.2, Y: -0.4, Z: 1.5},
		RotationAboutAxis(r3.Vec{X: 1, Y: 2, Z: 3}, 0.7))

	id := p.Compose(p.Inverse())

	vecsEqual(t, r3.Vec{}, id.Translation, 1e-12)
	assert.InDelta(t, 1.0, math.Abs(id.Rotation.Real), 1e-12)
}

func TestComposeAppliesOtherFirst(t *testing.T) {

	// rotate 90 degrees about Z then translate along X
	rot := NewPose(r3.Vec{}, RotationAboutAxis(r3.Vec{Z: 1}, math.Pi/2))
	trans := NewPose(r3.Vec{X: 1}, quat.Number{Real: 1})

	combined := trans.Compose(rot)

	// point (1, 0, 0) rotates to (0, 1, 0) and shifts to (1, 1, 0)
	got := combined.TransformPoint(r3.Vec{X: 1})
	vecsEqual(t, r3.Vec{X: 1, Y: 1}, got, 1e-12)
}

func TestInterpolateMidpoint(t *testing.T) {

	a := IdentityPose()
	b := NewPose(r3.Vec{X: 2, Y: 4},
		RotationAboutAxis(r3.Vec{Z: 1}, math.Pi/2))

	mid := a.Interpolate(b, 0.5)

	vecsEqual(t, r3.Vec{X: 1, Y: 2}, mid.Translation, 1e-12)

	// halfway rotation is 45 degrees, X maps onto the diagonal once the
	// translation is taken back off
	got := r3.Sub(mid.TransformPoint(r3.Vec{X: 1}), mid.Translation)
	vecsEqual(t, r3.Vec{X: math.Sqrt2 / 2, Y: math.Sqrt2 / 2}, got, 1e-9)
}

func TestInterpolateEndpoints(t *testing.T) {

	a := NewPose(r3.Vec{X: 1}, quat.Number{Real: 1})
	b := NewPose(r3.Vec{X: 3}, RotationAboutAxis(r3.Vec{Z: 1}, 1))

	assert.Equal(t, a, a.Interpolate(b, 0))
	assert.Equal(t, b, a.Interpolate(b, 1))
}

func TestRotationMatrixRoundTrip(t *testing.T) {

	angles := []float64{0.1, 1.2, 2.9, -0.6}
	axes := []r3.Vec{
		{X: 1},
		{Y: 1},
		{Z: 1},
		{X: 1, Y: -2, Z: 0.5},
	}

	for i := range angles {

		p := NewPose(r3.Vec{X: 0.3, Z: 2},
			RotationAboutAxis(axes[i], angles[i]))

		back := PoseFromRotationMatrix(p.RotationMatrix(), p.Translation)

		// quaternions are sign ambiguous, compare through a rotated point
		probe := r3.Vec{X: 0.7, Y: -0.2, Z: 1.1}
		vecsEqual(t, p.TransformPoint(probe), back.TransformPoint(probe), 1e-9)
	}
}

func TestProjectUnprojectRoundTrip(t *testing.T) {

	intr := Intrinsics{
		Fx: 600, Fy: 600,
		Cx: 320, Cy: 240,
		K1: -0.1, K2: 0.01,
		Width: 640, Height: 480,
	}

	point := r3.Vec{X: 0.1, Y: -0.05, Z: 0.8}

	px, ok := intr.Project(point)
	require.True(t, ok)

	back := intr.Unproject(px, point.Z)
	vecsEqual(t, point, back, 1e-4)
}

func TestProjectBehindCamera(t *testing.T) {

	intr := Intrinsics{Fx: 600, Fy: 600, Cx: 320, Cy: 240}

	_, ok := intr.Project(r3.Vec{Z: -1})
	assert.False(t, ok)

	_, ok = intr.Project(r3.Vec{Z: 0})
	assert.False(t, ok)
}

func TestNormalizeWithoutDistortion(t *testing.T) {

	intr := Intrinsics{Fx: 600, Fy: 600, Cx: 320, Cy: 240}

	x, y := intr.Normalize(Point2f{X: 380, Y: 180})

	assert.InDelta(t, 0.1, x, 1e-12)
	assert.InDelta(t, -0.1, y, 1e-12)
}

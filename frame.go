package planartrack

import (
	"image"
	"time"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r3"
)

// Intrinsics holds the pinhole camera model parameters of the frame source
// including the first two radial distortion coefficients
type Intrinsics struct {
	// Focal lengths in pixels
	Fx, Fy float64
	// Principal point in pixels
	Cx, Cy float64
	// Radial distortion coefficients
	K1, K2 float64
	// Sensor resolution in pixels
	Width, Height int
}

// Matrix returns the 3x3 camera matrix K
func (in Intrinsics) Matrix() *mat.Dense {
	return mat.NewDense(3, 3, []float64{
		in.Fx, 0, in.Cx,
		0, in.Fy, in.Cy,
		0, 0, 1,
	})
}

// Project maps a camera space point to pixel coordinates.  The second
// return value is false when the point lies behind the camera
func (in Intrinsics) Project(v r3.Vec) (Point2f, bool) {

	if v.Z <= 0 {
		return Point2f{}, false
	}

	x := v.X / v.Z
	y := v.Y / v.Z

	r2 := x*x + y*y
	d := 1 + in.K1*r2 + in.K2*r2*r2

	return Point2f{
		X: float32(in.Fx*x*d + in.Cx),
		Y: float32(in.Fy*y*d + in.Cy),
	}, true
}

// Unproject maps a pixel coordinate at the given camera space depth back
// to a camera space point
func (in Intrinsics) Unproject(p Point2f, depth float64) r3.Vec {

	x, y := in.Normalize(p)

	return r3.Vec{
		X: x * depth,
		Y: y * depth,
		Z: depth,
	}
}

// Normalize converts a pixel coordinate to normalized undistorted image
// coordinates.  Distortion is inverted iteratively which converges within
// a few rounds for the small coefficients typical of device cameras
func (in Intrinsics) Normalize(p Point2f) (float64, float64) {

	xd := (float64(p.X) - in.Cx) / in.Fx
	yd := (float64(p.Y) - in.Cy) / in.Fy

	x := xd
	y := yd

	for i := 0; i < 5; i++ {
		r2 := x*x + y*y
		d := 1 + in.K1*r2 + in.K2*r2*r2

		if d == 0 {
			break
		}

		x = xd / d
		y = yd / d
	}

	return x, y
}

// Frame is a single luminance image captured from a camera along with the
// calibration and world pose of the camera at capture time.  Frames are
// transient and owned by the acquisition source, the pipeline must not
// retain the image buffer across Process calls
type Frame struct {
	// Timestamp of frame capture
	Timestamp time.Time
	// Image is the luminance buffer
	Image *image.Gray
	// Intrinsics of the capturing camera
	Intrinsics Intrinsics
	// CameraPose is the camera pose in world space at capture time
	CameraPose Pose
}

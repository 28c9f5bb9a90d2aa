// Package pose recovers the 6-DoF pose of planar targets from their
// observed image corners.  The target plane to image homography is
// decomposed against the camera intrinsics into a rotation and a
// translation, with the rotation orthonormalized by SVD.
package pose

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r3"

	planartrack "github.com/vantagecv/go-planartrack"
)

// EstimatorParams defines the tuning parameters of the pose estimator
type EstimatorParams struct {
	// MaxReprojectionError is the mean corner reprojection error in
	// pixels above which an estimate is rejected, zero disables the
	// check
	MaxReprojectionError float64
}

// DefaultEstimatorParams returns the estimator defaults
func DefaultEstimatorParams() EstimatorParams {
	return EstimatorParams{
		MaxReprojectionError: 4.0,
	}
}

// Estimator recovers target poses in camera space.  The target frame has
// its origin at the target center with X right and Y down in the target
// plane, matching image axes, and Z pointing through the target away
// from the viewer.  Camera space is X right, Y down, Z forward, so a
// target facing the camera has positive Z translation
type Estimator struct {
	// Params holds the estimator tuning parameters
	Params EstimatorParams
}

// NewEstimator returns a pose estimator
func NewEstimator(params EstimatorParams) *Estimator {
	return &Estimator{
		Params: params,
	}
}

// EstimateMarker recovers the camera space pose of a square marker of the
// given physical side length from its observed image corners, ordered
// clockwise from the marker's top left
func (e *Estimator) EstimateMarker(corners planartrack.Quad, size float32,
	intr planartrack.Intrinsics) (planartrack.Pose, error) {

	half := size / 2

	object := planartrack.Quad{
		{X: -half, Y: -half},
		{X: half, Y: -half},
		{X: half, Y: half},
		{X: -half, Y: half},
	}

	return e.Estimate(object, corners, intr)
}

// EstimateImage recovers the camera space pose of a rectangular image
// target.  The reference dimensions give the target aspect ratio and size
// is the physical length of the longer edge in meters
func (e *Estimator) EstimateImage(corners planartrack.Quad,
	refWidth, refHeight int, size float32,
	intr planartrack.Intrinsics) (planartrack.Pose, error) {

	if refWidth <= 0 || refHeight <= 0 {
		return planartrack.Pose{}, fmt.Errorf("invalid reference dimensions %dx%d",
			refWidth, refHeight)
	}

	longer := refWidth

	if refHeight > longer {
		longer = refHeight
	}

	scale := size / float32(longer)

	halfW := float32(refWidth) * scale / 2
	halfH := float32(refHeight) * scale / 2

	object := planartrack.Quad{
		{X: -halfW, Y: -halfH},
		{X: halfW, Y: -halfH},
		{X: halfW, Y: halfH},
		{X: -halfW, Y: halfH},
	}

	return e.Estimate(object, corners, intr)
}

// Estimate recovers the camera space pose mapping the object plane quad,
// in meters with the target frame origin at its center, onto the observed
// image corners
func (e *Estimator) Estimate(object, corners planartrack.Quad,
	intr planartrack.Intrinsics) (planartrack.Pose, error) {

	if intr.Fx == 0 || intr.Fy == 0 {
		return planartrack.Pose{}, errors.New("intrinsics have zero focal length")
	}

	// work in normalized undistorted coordinates so the decomposition is
	// independent of the camera matrix and lens distortion
	var norm planartrack.Quad

	for i, p := range corners {
		x, y := intr.Normalize(p)
		norm[i] = planartrack.Point2f{X: float32(x), Y: float32(y)}
	}

	h, err := planartrack.HomographyFromQuad(object, norm)

	if err != nil {
		return planartrack.Pose{}, fmt.Errorf("plane homography failed: %w", err)
	}

	p, err := decompose(h)

	if err != nil {
		return planartrack.Pose{}, err
	}

	if e.Params.MaxReprojectionError > 0 {

		if rep := reprojectionError(p, object, corners, intr); rep > e.Params.MaxReprojectionError {
			return planartrack.Pose{}, fmt.Errorf(
				"reprojection error %.2fpx exceeds limit %.2fpx",
				rep, e.Params.MaxReprojectionError)
		}
	}

	return p, nil
}

// decompose splits a plane to normalized image homography into rotation
// and translation.  The first two rotation columns come from the scaled
// homography columns, the third from their cross product, and the result
// is orthonormalized by SVD
func decompose(h planartrack.Homography) (planartrack.Pose, error) {

	b1 := r3.Vec{X: h[0], Y: h[3], Z: h[6]}
	b2 := r3.Vec{X: h[1], Y: h[4], Z: h[7]}
	b3 := r3.Vec{X: h[2], Y: h[5], Z: h[8]}

	n1 := r3.Norm(b1)
	n2 := r3.Norm(b2)

	if n1 == 0 || n2 == 0 {
		return planartrack.Pose{}, errors.New("degenerate plane homography")
	}

	lambda := 2 / (n1 + n2)

	// the target must lie in front of the camera
	if b3.Z*lambda < 0 {
		lambda = -lambda
	}

	r1 := r3.Scale(lambda, b1)
	r2 := r3.Scale(lambda, b2)
	r3c := r3.Cross(r1, r2)

	t := r3.Scale(lambda, b3)

	if t.Z <= 0 {
		return planartrack.Pose{}, errors.New("target resolved behind the camera")
	}

	rot := mat.NewDense(3, 3, []float64{
		r1.X, r2.X, r3c.X,
		r1.Y, r2.Y, r3c.Y,
		r1.Z, r2.Z, r3c.Z,
	})

	ortho, err := nearestRotation(rot)

	if err != nil {
		return planartrack.Pose{}, err
	}

	return planartrack.PoseFromRotationMatrix(ortho, t), nil
}

// nearestRotation returns the closest proper rotation matrix to m in the
// Frobenius norm via SVD
func nearestRotation(m *mat.Dense) (*mat.Dense, error) {

	var svd mat.SVD

	if ok := svd.Factorize(m, mat.SVDFull); !ok {
		return nil, errors.New("rotation SVD factorization failed")
	}

	var u, v mat.Dense
	svd.UTo(&u)
	svd.VTo(&v)

	var r mat.Dense
	r.Mul(&u, v.T())

	// flip the last column if the result is a reflection
	if mat.Det(&r) < 0 {

		d := mat.NewDiagDense(3, []float64{1, 1, -1})

		var fixed mat.Dense
		fixed.Mul(&u, d)
		r.Mul(&fixed, v.T())
	}

	return mat.DenseCopyOf(&r), nil
}

// reprojectionError projects the object corners through the recovered
// pose and returns the mean pixel distance to the observed corners
func reprojectionError(p planartrack.Pose, object, corners planartrack.Quad,
	intr planartrack.Intrinsics) float64 {

	var total float64

	for i, o := range object {

		cam := p.TransformPoint(r3.Vec{X: float64(o.X), Y: float64(o.Y)})

		proj, ok := intr.Project(cam)

		if !ok {
			return math.Inf(1)
		}

		total += float64(proj.Dist(corners[i]))
	}

	return total / 4
}

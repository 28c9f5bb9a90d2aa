package match

import (
	"errors"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/mat"

	planartrack "github.com/vantagecv/go-planartrack"
)

// estimateHomography computes the least squares homography mapping src
// points onto dst points with the normalized direct linear transform.
// At least four correspondences are required
func estimateHomography(src, dst []planartrack.Point2f) (planartrack.Homography, error) {

	if len(src) < 4 || len(src) != len(dst) {
		return planartrack.Homography{}, errors.New("need at least four point pairs")
	}

	srcNorm, tSrc := normalizePoints(src)
	dstNorm, tDst := normalizePoints(dst)

	n := len(src)
	a := mat.NewDense(2*n, 9, nil)

	for i := 0; i < n; i++ {
		x := srcNorm[i][0]
		y := srcNorm[i][1]
		u := dstNorm[i][0]
		v := dstNorm[i][1]

		a.SetRow(i*2, []float64{-x, -y, -1, 0, 0, 0, u * x, u * y, u})
		a.SetRow(i*2+1, []float64{0, 0, 0, -x, -y, -1, v * x, v * y, v})
	}

	var svd mat.SVD

	if ok := svd.Factorize(a, mat.SVDFull); !ok {
		return planartrack.Homography{}, errors.New("SVD factorization failed")
	}

	var v mat.Dense
	svd.VTo(&v)

	// the homography is the right singular vector of the smallest
	// singular value
	var hn planartrack.Homography

	for i := 0; i < 9; i++ {
		hn[i] = v.At(i, 8)
	}

	if hn[8] == 0 {
		return planartrack.Homography{}, errors.New("degenerate homography")
	}

	// denormalize: H = Tdst^-1 * Hn * Tsrc
	tDstInv, err := tDst.Inverse()

	if err != nil {
		return planartrack.Homography{}, err
	}

	h := tDstInv.Mul(hn).Mul(tSrc)

	// scale so the bottom right element is one
	if h[8] == 0 {
		return planartrack.Homography{}, errors.New("degenerate homography")
	}

	for i := range h {
		h[i] /= h[8]
	}

	return h, nil
}

// normalizePoints applies the Hartley normalization, translating the
// centroid to the origin and scaling the mean distance to sqrt(2).
// Returns the normalized coordinates and the applied transform
func normalizePoints(pts []planartrack.Point2f) ([][2]float64, planartrack.Homography) {

	var cx, cy float64

	for _, p := range pts {
		cx += float64(p.X)
		cy += float64(p.Y)
	}

	cx /= float64(len(pts))
	cy /= float64(len(pts))

	var meanDist float64

	for _, p := range pts {
		dx := float64(p.X) - cx
		dy := float64(p.Y) - cy
		meanDist += math.Sqrt(dx*dx + dy*dy)
	}

	meanDist /= float64(len(pts))

	scale := 1.0

	if meanDist > 0 {
		scale = math.Sqrt2 / meanDist
	}

	out := make([][2]float64, len(pts))

	for i, p := range pts {
		out[i][0] = (float64(p.X) - cx) * scale
		out[i][1] = (float64(p.Y) - cy) * scale
	}

	t := planartrack.Homography{
		scale, 0, -cx * scale,
		0, scale, -cy * scale,
		0, 0, 1,
	}

	return out, t
}

// ransacHomography robustly estimates the homography between the
// correspondence sets.  Returns the refitted transform and the indices
// of the inlier correspondences
func ransacHomography(src, dst []planartrack.Point2f, iterations int,
	threshold float64, rng *rand.Rand) (planartrack.Homography, []int, error) {

	if len(src) < 4 {
		return planartrack.Homography{}, nil, errors.New("need at least four point pairs")
	}

	bestInliers := []int{}
	thresholdSq := threshold * threshold

	for iter := 0; iter < iterations; iter++ {

		idx, ok := sampleFour(len(src), rng)

		if !ok {
			break
		}

		var sq, dq planartrack.Quad

		for i, j := range idx {
			sq[i] = src[j]
			dq[i] = dst[j]
		}

		if degenerateSample(sq) {
			continue
		}

		h, err := planartrack.HomographyFromQuad(sq, dq)

		if err != nil {
			continue
		}

		inliers := inlierSet(h, src, dst, thresholdSq)

		if len(inliers) > len(bestInliers) {
			bestInliers = inliers
		}
	}

	if len(bestInliers) < 4 {
		return planartrack.Homography{}, nil, errors.New("no consensus found")
	}

	// refit on the full inlier set
	srcIn := make([]planartrack.Point2f, len(bestInliers))
	dstIn := make([]planartrack.Point2f, len(bestInliers))

	for i, j := range bestInliers {
		srcIn[i] = src[j]
		dstIn[i] = dst[j]
	}

	h, err := estimateHomography(srcIn, dstIn)

	if err != nil {
		return planartrack.Homography{}, nil, err
	}

	inliers := inlierSet(h, src, dst, thresholdSq)

	if len(inliers) < 4 {
		return planartrack.Homography{}, nil, errors.New("refit lost consensus")
	}

	return h, inliers, nil
}

// sampleFour draws four distinct indices
func sampleFour(n int, rng *rand.Rand) ([4]int, bool) {

	var idx [4]int

	if n < 4 {
		return idx, false
	}

	seen := make(map[int]bool, 4)

	for i := 0; i < 4; i++ {
		for {
			j := rng.Intn(n)

			if !seen[j] {
				seen[j] = true
				idx[i] = j
				break
			}
		}
	}

	return idx, true
}

// degenerateSample reports whether any three of the four sample points
// are nearly collinear
func degenerateSample(q planartrack.Quad) bool {

	for skip := 0; skip < 4; skip++ {

		var tri []planartrack.Point2f

		for i := 0; i < 4; i++ {
			if i != skip {
				tri = append(tri, q[i])
			}
		}

		area := math.Abs(float64(
			(tri[1].X-tri[0].X)*(tri[2].Y-tri[0].Y) -
				(tri[2].X-tri[0].X)*(tri[1].Y-tri[0].Y))) / 2

		if area < 1 {
			return true
		}
	}

	return false
}

// inlierSet returns the indices of correspondences whose reprojection
// error is below the threshold
func inlierSet(h planartrack.Homography, src, dst []planartrack.Point2f,
	thresholdSq float64) []int {

	var inliers []int

	for i := range src {
		x, y := h.ApplyXY(float64(src[i].X), float64(src[i].Y))

		dx := x - float64(dst[i].X)
		dy := y - float64(dst[i].Y)

		if dx*dx+dy*dy <= thresholdSq {
			inliers = append(inliers, i)
		}
	}

	return inliers
}

package match

import (
	"image"
	"image/color"
	"image/draw"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	planartrack "github.com/vantagecv/go-planartrack"
)

// texturedImage builds a grid of random intensity blocks, the block
// junctions give FAST plenty of corners to fire on
func texturedImage(w, h, block int, seed int64) *image.Gray {

	rng := rand.New(rand.NewSource(seed))
	img := image.NewGray(image.Rect(0, 0, w, h))

	for by := 0; by < h; by += block {
		for bx := 0; bx < w; bx += block {

			v := uint8(rng.Intn(256))

			for y := by; y < by+block && y < h; y++ {
				for x := bx; x < bx+block && x < w; x++ {
					img.Pix[y*img.Stride+x] = v
				}
			}
		}
	}

	return img
}

func TestHammingDist(t *testing.T) {

	var a, b Descriptor

	assert.Equal(t, 0, HammingDist(a, a))

	for i := range b {
		b[i] = 0xff
	}

	assert.Equal(t, descriptorBits, HammingDist(a, b))

	b = Descriptor{}
	b[0] = 0x03

	assert.Equal(t, 2, HammingDist(a, b))
}

func TestDetectFASTSquareCorners(t *testing.T) {

	// dark square on a white background, corners fire the segment test
	// while straight edges only subtend half the circle
	img := image.NewGray(image.Rect(0, 0, 100, 100))

	for i := range img.Pix {
		img.Pix[i] = 255
	}

	draw.Draw(img, image.Rect(30, 30, 70, 70),
		image.NewUniform(image.Black), image.Point{}, draw.Src)

	kps := detectFAST(img, 20)
	require.NotEmpty(t, kps)

	corners := []planartrack.Point2f{
		{X: 30, Y: 30}, {X: 69, Y: 30}, {X: 69, Y: 69}, {X: 30, Y: 69},
	}

	for _, want := range corners {

		found := false

		for _, kp := range kps {
			p := planartrack.Point2f{X: kp.X, Y: kp.Y}

			if p.Dist(want) <= 3 {
				found = true
				break
			}
		}

		assert.True(t, found, "no keypoint near corner (%v, %v)", want.X, want.Y)
	}

	// nothing fires along the straight edge midpoints
	for _, kp := range kps {
		p := planartrack.Point2f{X: kp.X, Y: kp.Y}

		assert.Greater(t, p.Dist(planartrack.Point2f{X: 50, Y: 30}), float32(3))
		assert.Greater(t, p.Dist(planartrack.Point2f{X: 30, Y: 50}), float32(3))
	}
}

func TestDetectFASTUniformImage(t *testing.T) {

	img := image.NewGray(image.Rect(0, 0, 64, 64))

	for i := range img.Pix {
		img.Pix[i] = 128
	}

	assert.Empty(t, detectFAST(img, 20))
}

func TestDescribeIdenticalPatches(t *testing.T) {

	img := image.NewGray(image.Rect(0, 0, 200, 100))

	for i := range img.Pix {
		img.Pix[i] = 200
	}

	// stamp the same pattern at two locations
	stamp := func(cx, cy int) {
		for dy := -8; dy <= 8; dy++ {
			for dx := -8; dx <= 8; dx++ {
				if (dx+dy)%3 == 0 {
					img.SetGray(cx+dx, cy+dy, color.Gray{Y: 0})
				}
			}
		}
	}

	stamp(50, 50)
	stamp(150, 50)

	kps := []KeyPoint{
		{X: 50, Y: 50},
		{X: 150, Y: 50},
	}

	kept, descs := describe(img, kps)
	require.Len(t, kept, 2)
	require.Len(t, descs, 2)

	assert.Equal(t, 0, HammingDist(descs[0], descs[1]))
}

func TestDescribeDropsBorderKeypoints(t *testing.T) {

	img := texturedImage(100, 100, 10, 3)

	kps := []KeyPoint{
		{X: 5, Y: 5},
		{X: 50, Y: 50},
		{X: 98, Y: 50},
	}

	kept, descs := describe(img, kps)

	require.Len(t, kept, 1)
	require.Len(t, descs, 1)
	assert.Equal(t, float32(50), kept[0].X)
}

func TestEstimateHomographyKnownTransform(t *testing.T) {

	// similarity transform, scale 2 rotation 0 translation (10, -5)
	want := planartrack.Homography{2, 0, 10, 0, 2, -5, 0, 0, 1}

	var src, dst []planartrack.Point2f

	for _, p := range []planartrack.Point2f{
		{X: 0, Y: 0}, {X: 10, Y: 0}, {X: 10, Y: 10}, {X: 0, Y: 10},
		{X: 5, Y: 3}, {X: 2, Y: 8}, {X: 7, Y: 1}, {X: 4, Y: 6},
	} {
		src = append(src, p)
		dst = append(dst, want.Apply(p))
	}

	h, err := estimateHomography(src, dst)
	require.NoError(t, err)

	probe := planartrack.Point2f{X: 3.5, Y: 6.5}
	got := h.Apply(probe)
	expect := want.Apply(probe)

	assert.InDelta(t, float64(expect.X), float64(got.X), 1e-4)
	assert.InDelta(t, float64(expect.Y), float64(got.Y), 1e-4)
}

func TestEstimateHomographyTooFewPoints(t *testing.T) {

	pts := []planartrack.Point2f{{X: 0, Y: 0}, {X: 1, Y: 0}, {X: 1, Y: 1}}

	_, err := estimateHomography(pts, pts)
	assert.Error(t, err)
}

func TestRansacHomographyRejectsOutliers(t *testing.T) {

	want := planartrack.Homography{1.5, 0, 20, 0, 1.5, 30, 0, 0, 1}
	rng := rand.New(rand.NewSource(1))

	var src, dst []planartrack.Point2f

	// 20 exact correspondences
	for i := 0; i < 20; i++ {
		p := planartrack.Point2f{
			X: float32(rng.Intn(200)),
			Y: float32(rng.Intn(200)),
		}

		src = append(src, p)
		dst = append(dst, want.Apply(p))
	}

	// 5 gross outliers
	for i := 0; i < 5; i++ {
		src = append(src, planartrack.Point2f{
			X: float32(rng.Intn(200)),
			Y: float32(rng.Intn(200)),
		})
		dst = append(dst, planartrack.Point2f{
			X: float32(400 + rng.Intn(100)),
			Y: float32(400 + rng.Intn(100)),
		})
	}

	h, inliers, err := ransacHomography(src, dst, 500, 2.0, rng)
	require.NoError(t, err)

	assert.GreaterOrEqual(t, len(inliers), 20)
	assert.Less(t, len(inliers), 25)

	probe := planartrack.Point2f{X: 100, Y: 50}
	got := h.Apply(probe)
	expect := want.Apply(probe)

	assert.InDelta(t, float64(expect.X), float64(got.X), 0.1)
	assert.InDelta(t, float64(expect.Y), float64(got.Y), 0.1)
}

func TestMatcherRegisterRejectsLowTexture(t *testing.T) {

	img := image.NewGray(image.Rect(0, 0, 200, 200))

	for i := range img.Pix {
		img.Pix[i] = 128
	}

	m := NewMatcher(DefaultMatcherParams())

	err := m.RegisterTarget(planartrack.Target{
		Kind: planartrack.TargetImage,
		Name: "blank",
		Size: 0.2,
	}, img)

	assert.Error(t, err)
}

func TestMatcherRegisterValidation(t *testing.T) {

	ref := texturedImage(320, 240, 16, 7)

	m := NewMatcher(DefaultMatcherParams())

	// marker targets do not belong in the matcher
	err := m.RegisterTarget(planartrack.Target{
		Kind:       planartrack.TargetMarker,
		Dictionary: "4x4_50",
		ID:         1,
		Size:       0.05,
	}, ref)
	assert.Error(t, err)

	target := planartrack.Target{
		Kind: planartrack.TargetImage,
		Name: "poster",
		Size: 0.2,
	}

	require.NoError(t, m.RegisterTarget(target, ref))

	// duplicate names are rejected
	assert.Error(t, m.RegisterTarget(target, ref))

	require.Len(t, m.Targets(), 1)
}

func TestMatcherFindsTranslatedTarget(t *testing.T) {

	ref := texturedImage(320, 240, 16, 7)

	m := NewMatcher(DefaultMatcherParams())

	target := planartrack.Target{
		Kind: planartrack.TargetImage,
		Name: "poster",
		Size: 0.2,
	}

	require.NoError(t, m.RegisterTarget(target, ref))

	// frame shows the reference translated to (80, 60) on a gray canvas
	frame := image.NewGray(image.Rect(0, 0, 480, 360))

	for i := range frame.Pix {
		frame.Pix[i] = 128
	}

	draw.Draw(frame, image.Rect(80, 60, 400, 300), ref, image.Point{}, draw.Src)

	matches, err := m.Match(frame)
	require.NoError(t, err)
	require.Len(t, matches, 1)

	got := matches[0]

	assert.Equal(t, "image/poster", got.Target.Key())
	assert.Equal(t, 320, got.RefWidth)
	assert.Equal(t, 240, got.RefHeight)
	assert.GreaterOrEqual(t, got.Inliers, DefaultMatcherParams().MinMatches)
	assert.Greater(t, got.Confidence, float32(0))

	want := planartrack.Quad{
		{X: 80, Y: 60},
		{X: 400, Y: 60},
		{X: 400, Y: 300},
		{X: 80, Y: 300},
	}

	for i := range want {
		if got.Corners[i].Dist(want[i]) > 2 {
			t.Errorf("corner %d at (%f, %f), want near (%f, %f)",
				i, got.Corners[i].X, got.Corners[i].Y, want[i].X, want[i].Y)
		}
	}
}

func TestMatcherNoTargetInFrame(t *testing.T) {

	ref := texturedImage(320, 240, 16, 7)

	m := NewMatcher(DefaultMatcherParams())

	require.NoError(t, m.RegisterTarget(planartrack.Target{
		Kind: planartrack.TargetImage,
		Name: "poster",
		Size: 0.2,
	}, ref))

	// unrelated texture must not produce a match
	frame := texturedImage(480, 360, 16, 99)

	matches, err := m.Match(frame)
	require.NoError(t, err)
	assert.Empty(t, matches)
}

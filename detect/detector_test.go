package detect

import (
	"image"
	"image/draw"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	planartrack "github.com/vantagecv/go-planartrack"
)

// markerScene renders the marker onto a white canvas at the given offset
func markerScene(t *testing.T, id, cellPixels, canvas, offX, offY int) *image.Gray {
	t.Helper()

	img := image.NewGray(image.Rect(0, 0, canvas, canvas))

	for i := range img.Pix {
		img.Pix[i] = 255
	}

	marker, err := Dict4x4().DrawMarker(id, cellPixels)
	require.NoError(t, err)

	b := marker.Bounds()
	draw.Draw(img, image.Rect(offX, offY, offX+b.Dx(), offY+b.Dy()),
		marker, b.Min, draw.Src)

	return img
}

// rotate90 rotates a grayscale image a quarter turn clockwise
func rotate90(src *image.Gray) *image.Gray {

	b := src.Bounds()
	w := b.Dx()
	h := b.Dy()

	dst := image.NewGray(image.Rect(0, 0, h, w))

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			dst.SetGray(h-1-y, x, src.GrayAt(b.Min.X+x, b.Min.Y+y))
		}
	}

	return dst
}

func cornerNear(t *testing.T, want planartrack.Point2f, got planartrack.Point2f, tol float32) {
	t.Helper()

	if got.Dist(want) > tol {
		t.Errorf("corner (%f, %f) not within %f of (%f, %f)",
			got.X, got.Y, tol, want.X, want.Y)
	}
}

func TestDetectSyntheticMarker(t *testing.T) {

	// 6 cell grid at 16px per cell is a 96px marker
	img := markerScene(t, 7, 16, 300, 100, 100)

	detector := NewDetector(Dict4x4(), DefaultDetectorParams())

	dets, err := detector.Detect(img)
	require.NoError(t, err)

	var found *Detection

	for i := range dets {
		if dets[i].ID == 7 {
			found = &dets[i]
		}
	}

	require.NotNil(t, found, "marker 7 not detected")

	assert.Equal(t, "4x4_50", found.Dictionary)
	assert.Greater(t, found.Confidence, float32(0))

	// corners run clockwise from the canonical top left
	cornerNear(t, planartrack.Point2f{X: 100, Y: 100}, found.Corners[0], 3)
	cornerNear(t, planartrack.Point2f{X: 195, Y: 100}, found.Corners[1], 3)
	cornerNear(t, planartrack.Point2f{X: 195, Y: 195}, found.Corners[2], 3)
	cornerNear(t, planartrack.Point2f{X: 100, Y: 195}, found.Corners[3], 3)
}

func TestDetectRotatedMarker(t *testing.T) {

	img := rotate90(markerScene(t, 7, 16, 300, 100, 100))

	detector := NewDetector(Dict4x4(), DefaultDetectorParams())

	dets, err := detector.Detect(img)
	require.NoError(t, err)

	var found *Detection

	for i := range dets {
		if dets[i].ID == 7 {
			found = &dets[i]
		}
	}

	require.NotNil(t, found, "rotated marker 7 not detected")

	// the canonical top left corner (100, 100) lands at (199, 100) after
	// a clockwise quarter turn of the 300px image
	cornerNear(t, planartrack.Point2f{X: 199, Y: 100}, found.Corners[0], 3)
}

func TestDetectMultipleMarkers(t *testing.T) {

	img := markerScene(t, 2, 16, 400, 40, 40)

	marker, err := Dict4x4().DrawMarker(9, 16)
	require.NoError(t, err)

	b := marker.Bounds()
	draw.Draw(img, image.Rect(250, 250, 250+b.Dx(), 250+b.Dy()),
		marker, b.Min, draw.Src)

	detector := NewDetector(Dict4x4(), DefaultDetectorParams())

	dets, err := detector.Detect(img)
	require.NoError(t, err)

	ids := make(map[int]bool)

	for _, det := range dets {
		ids[det.ID] = true
	}

	assert.True(t, ids[2], "marker 2 not detected")
	assert.True(t, ids[9], "marker 9 not detected")
}

func TestDetectEmptyScene(t *testing.T) {

	img := image.NewGray(image.Rect(0, 0, 200, 200))

	for i := range img.Pix {
		img.Pix[i] = 255
	}

	detector := NewDetector(Dict4x4(), DefaultDetectorParams())

	dets, err := detector.Detect(img)
	require.NoError(t, err)
	assert.Empty(t, dets)
}

func TestDetectPlainSquareRejected(t *testing.T) {

	// a plain filled square has no payload contrast and must not decode
	img := image.NewGray(image.Rect(0, 0, 300, 300))

	for i := range img.Pix {
		img.Pix[i] = 255
	}

	draw.Draw(img, image.Rect(100, 100, 200, 200),
		image.NewUniform(image.Black), image.Point{}, draw.Src)

	detector := NewDetector(Dict4x4(), DefaultDetectorParams())

	dets, err := detector.Detect(img)
	require.NoError(t, err)
	assert.Empty(t, dets)
}

func TestDetectInvalidInput(t *testing.T) {

	detector := NewDetector(Dict4x4(), DefaultDetectorParams())

	_, err := detector.Detect(nil)
	assert.Error(t, err)

	_, err = detector.Detect(image.NewGray(image.Rect(0, 0, 8, 8)))
	assert.Error(t, err)
}

func TestAdaptiveThreshold(t *testing.T) {

	img := image.NewGray(image.Rect(0, 0, 50, 50))

	for i := range img.Pix {
		img.Pix[i] = 255
	}

	draw.Draw(img, image.Rect(20, 20, 30, 30),
		image.NewUniform(image.Black), image.Point{}, draw.Src)

	bin := adaptiveThreshold(img, 31, 7)

	// dark square becomes foreground
	assert.Equal(t, uint8(255), bin.GrayAt(25, 25).Y)

	// uniform white background stays background
	assert.Equal(t, uint8(0), bin.GrayAt(5, 5).Y)
	assert.Equal(t, uint8(0), bin.GrayAt(45, 45).Y)
}

func TestExpandQuad(t *testing.T) {

	q := planartrack.Quad{
		{X: 10, Y: 10},
		{X: 20, Y: 10},
		{X: 20, Y: 20},
		{X: 10, Y: 20},
	}

	// offset distance is area * ratio / perimeter = 100 * 2 / 40 = 5
	out := expandQuad(q, 2.0)

	want := planartrack.Quad{
		{X: 5, Y: 5},
		{X: 25, Y: 5},
		{X: 25, Y: 25},
		{X: 5, Y: 25},
	}

	for i := range want {
		cornerNear(t, want[i], out[i], 0.1)
	}
}

func TestOrderClockwise(t *testing.T) {

	// counter clockwise input
	q := planartrack.Quad{
		{X: 0, Y: 0},
		{X: 0, Y: 10},
		{X: 10, Y: 10},
		{X: 10, Y: 0},
	}

	out := orderClockwise(q)

	assert.Equal(t, planartrack.Point2f{X: 0, Y: 0}, out[0])
	assert.Equal(t, planartrack.Point2f{X: 10, Y: 0}, out[1])
	assert.Equal(t, planartrack.Point2f{X: 10, Y: 10}, out[2])
	assert.Equal(t, planartrack.Point2f{X: 0, Y: 10}, out[3])
}

package pose

import (
	"image"
	"image/draw"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/num/quat"
	"gonum.org/v1/gonum/spatial/r3"

	planartrack "github.com/vantagecv/go-planartrack"
	"github.com/vantagecv/go-planartrack/detect"
	"github.com/vantagecv/go-planartrack/match"
)

// markerFrame renders dictionary markers onto a white canvas and wraps it
// in a frame with frontal intrinsics
func markerFrame(t *testing.T, canvas int, ids []int, offsets []image.Point) *planartrack.Frame {
	t.Helper()

	img := image.NewGray(image.Rect(0, 0, canvas, canvas))

	for i := range img.Pix {
		img.Pix[i] = 255
	}

	for i, id := range ids {

		marker, err := detect.Dict4x4().DrawMarker(id, 16)
		require.NoError(t, err)

		b := marker.Bounds()
		off := offsets[i]

		draw.Draw(img, image.Rect(off.X, off.Y, off.X+b.Dx(), off.Y+b.Dy()),
			marker, b.Min, draw.Src)
	}

	return &planartrack.Frame{
		Timestamp: time.Now(),
		Image:     img,
		Intrinsics: planartrack.Intrinsics{
			Fx: 600, Fy: 600,
			Cx: float64(canvas) / 2, Cy: float64(canvas) / 2,
		},
		CameraPose: planartrack.IdentityPose(),
	}
}

func newMarkerSource(t *testing.T) *MarkerSource {
	t.Helper()

	detector := detect.NewDetector(detect.Dict4x4(), detect.DefaultDetectorParams())

	return NewMarkerSource(detector, NewEstimator(DefaultEstimatorParams()))
}

func TestMarkerSourceRegisterValidation(t *testing.T) {

	src := newMarkerSource(t)

	assert.Equal(t, planartrack.TargetMarker, src.Kind())

	// image targets do not belong here
	img, err := planartrack.NewImageTarget("poster", 0.2)
	require.NoError(t, err)
	assert.Error(t, src.RegisterTarget(img))

	// dictionary must match the detector's
	other, err := planartrack.NewMarkerTarget("5x5_100", 3, 0.05)
	require.NoError(t, err)
	assert.Error(t, src.RegisterTarget(other))

	// ID must exist in the dictionary
	outside, err := planartrack.NewMarkerTarget("4x4_50", 50, 0.05)
	require.NoError(t, err)
	assert.Error(t, src.RegisterTarget(outside))

	target, err := planartrack.NewMarkerTarget("4x4_50", 7, 0.05)
	require.NoError(t, err)
	require.NoError(t, src.RegisterTarget(target))

	// duplicates are rejected
	assert.Error(t, src.RegisterTarget(target))

	require.Len(t, src.Targets(), 1)
}

func TestMarkerSourceObserve(t *testing.T) {

	src := newMarkerSource(t)

	target, err := planartrack.NewMarkerTarget("4x4_50", 7, 0.05)
	require.NoError(t, err)
	require.NoError(t, src.RegisterTarget(target))

	f := markerFrame(t, 300, []int{7}, []image.Point{{X: 100, Y: 100}})

	obs, err := src.Observe(f)
	require.NoError(t, err)
	require.Len(t, obs, 1)

	got := obs[0]

	assert.Equal(t, "marker/4x4_50/7", got.Target.Key())
	assert.Greater(t, got.Confidence, float32(0))

	// a 0.05m marker spanning 96px at 600px focal length sits about
	// 600 * 0.05 / 96 = 0.31m out
	assert.InDelta(t, 0.3125, got.Pose.Translation.Z, 0.02)

	// the camera pose is identity so world and camera poses agree
	assert.InDelta(t, got.Pose.Translation.Z, got.WorldPose.Translation.Z, 1e-9)
}

func TestMarkerSourceObserveIgnoresUnregistered(t *testing.T) {

	src := newMarkerSource(t)

	target, err := planartrack.NewMarkerTarget("4x4_50", 7, 0.05)
	require.NoError(t, err)
	require.NoError(t, src.RegisterTarget(target))

	// marker 9 is in view but not watched
	f := markerFrame(t, 400,
		[]int{7, 9},
		[]image.Point{{X: 40, Y: 40}, {X: 250, Y: 250}})

	obs, err := src.Observe(f)
	require.NoError(t, err)
	require.Len(t, obs, 1)

	assert.Equal(t, 7, obs[0].Target.ID)
}

func TestMarkerSourceObserveWorldPose(t *testing.T) {

	src := newMarkerSource(t)

	target, err := planartrack.NewMarkerTarget("4x4_50", 7, 0.05)
	require.NoError(t, err)
	require.NoError(t, src.RegisterTarget(target))

	f := markerFrame(t, 300, []int{7}, []image.Point{{X: 100, Y: 100}})

	// camera sits half a meter to the right of the world origin
	f.CameraPose = planartrack.NewPose(r3.Vec{X: 0.5}, quat.Number{Real: 1})

	obs, err := src.Observe(f)
	require.NoError(t, err)
	require.Len(t, obs, 1)

	got := obs[0]

	assert.InDelta(t, got.Pose.Translation.X+0.5,
		got.WorldPose.Translation.X, 1e-9)
	assert.InDelta(t, got.Pose.Translation.Z,
		got.WorldPose.Translation.Z, 1e-9)
}

func TestMarkerSourceObserveNilFrame(t *testing.T) {

	src := newMarkerSource(t)

	_, err := src.Observe(nil)
	assert.Error(t, err)

	_, err = src.Observe(&planartrack.Frame{})
	assert.Error(t, err)
}

// texturedRef builds a grid of random intensity blocks for the matcher to
// key on
func texturedRef(w, h, block int, seed int64) *image.Gray {

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

func TestImageSourceObserve(t *testing.T) {

	matcher := match.NewMatcher(match.DefaultMatcherParams())
	src := NewImageSource(matcher, NewEstimator(DefaultEstimatorParams()))

	assert.Equal(t, planartrack.TargetImage, src.Kind())

	ref := texturedRef(320, 240, 16, 7)

	target, err := planartrack.NewImageTarget("poster", 0.2)
	require.NoError(t, err)
	require.NoError(t, src.RegisterTarget(target, ref))
	require.Len(t, src.Targets(), 1)

	// reference drawn unscaled at (80, 60) on a gray canvas
	canvas := image.NewGray(image.Rect(0, 0, 480, 360))

	for i := range canvas.Pix {
		canvas.Pix[i] = 128
	}

	draw.Draw(canvas, image.Rect(80, 60, 400, 300), ref, image.Point{}, draw.Src)

	f := &planartrack.Frame{
		Timestamp: time.Now(),
		Image:     canvas,
		Intrinsics: planartrack.Intrinsics{
			Fx: 600, Fy: 600,
			Cx: 240, Cy: 180,
		},
		CameraPose: planartrack.IdentityPose(),
	}

	obs, err := src.Observe(f)
	require.NoError(t, err)
	require.Len(t, obs, 1)

	got := obs[0]

	assert.Equal(t, "image/poster", got.Target.Key())
	assert.Greater(t, got.Confidence, float32(0))

	// the 0.2m wide target spans 320px, so it resolves at
	// 600 * 0.2 / 320 = 0.375m
	assert.InDelta(t, 0.375, got.Pose.Translation.Z, 0.02)
}

func TestImageSourceObserveNoMatch(t *testing.T) {

	matcher := match.NewMatcher(match.DefaultMatcherParams())
	src := NewImageSource(matcher, NewEstimator(DefaultEstimatorParams()))

	target, err := planartrack.NewImageTarget("poster", 0.2)
	require.NoError(t, err)
	require.NoError(t, src.RegisterTarget(target, texturedRef(320, 240, 16, 7)))

	f := &planartrack.Frame{
		Timestamp: time.Now(),
		Image:     texturedRef(480, 360, 16, 99),
		Intrinsics: planartrack.Intrinsics{
			Fx: 600, Fy: 600,
			Cx: 240, Cy: 180,
		},
		CameraPose: planartrack.IdentityPose(),
	}

	obs, err := src.Observe(f)
	require.NoError(t, err)
	assert.Empty(t, obs)
}

func TestImageSourceObserveNilFrame(t *testing.T) {

	matcher := match.NewMatcher(match.DefaultMatcherParams())
	src := NewImageSource(matcher, NewEstimator(DefaultEstimatorParams()))

	_, err := src.Observe(nil)
	assert.Error(t, err)
}

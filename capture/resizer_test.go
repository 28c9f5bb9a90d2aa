package capture

import (
	"image/color"
	"testing"

	"gocv.io/x/gocv"

	planartrack "github.com/vantagecv/go-planartrack"
)

var (
	black = color.RGBA{R: 0, G: 0, B: 0, A: 255}
)

func TestLetterBoxResize(t *testing.T) {

	tests := []struct {
		srcWidth      int
		srcHeight     int
		resizeWidth   int
		resizeHeight  int
		expectedXPad  int
		expectedYPad  int
		expectedScale float32
	}{
		{1280, 720, 640, 640, 0, 140, 0.50},
		{800, 1000, 640, 640, 64, 0, 0.64},
		{800, 800, 640, 640, 0, 0, 0.8},
	}

	for _, tc := range tests {
		img := gocv.NewMatWithSize(tc.srcHeight, tc.srcWidth, gocv.MatTypeCV8UC1)

		resizedImg := gocv.NewMat()

		resizer := NewResizer(tc.srcWidth, tc.srcHeight, tc.resizeWidth, tc.resizeHeight)

		resizer.LetterBoxResize(img, &resizedImg, black)

		if resizer.XPad() != tc.expectedXPad || resizer.YPad() != tc.expectedYPad {
			t.Errorf("Test failed for src (%d, %d): Padding values wrong, expected XPad=%d, YPad=%d, got xPad=%d, yPad=%d",
				tc.srcWidth, tc.srcHeight, tc.expectedXPad, tc.expectedYPad, resizer.XPad(), resizer.YPad())
		}

		if resizer.ScaleFactor() != tc.expectedScale {
			t.Errorf("Test failed for src (%d, %d): Scalefactor incorrect, expected %f, got %f",
				tc.srcWidth, tc.srcHeight, tc.expectedScale, resizer.ScaleFactor())
		}

		img.Close()
		resizedImg.Close()
		resizer.Close()
	}
}

func TestAdjustIntrinsics(t *testing.T) {

	resizer := NewResizer(1280, 720, 640, 640)
	defer resizer.Close()

	in := planartrack.Intrinsics{
		Fx: 1000, Fy: 1000,
		Cx: 640, Cy: 360,
		Width: 1280, Height: 720,
	}

	out := resizer.AdjustIntrinsics(in)

	if out.Fx != 500 || out.Fy != 500 {
		t.Errorf("expected focal lengths 500, got fx=%f fy=%f", out.Fx, out.Fy)
	}

	// principal point scales then shifts by the letterbox padding
	if out.Cx != 320 || out.Cy != 320 {
		t.Errorf("expected principal point (320, 320), got (%f, %f)", out.Cx, out.Cy)
	}

	if out.Width != 640 || out.Height != 640 {
		t.Errorf("expected 640x640, got %dx%d", out.Width, out.Height)
	}
}

func TestCoordinateMappingRoundTrip(t *testing.T) {

	resizer := NewResizer(1280, 720, 640, 640)
	defer resizer.Close()

	src := planartrack.Point2f{X: 400, Y: 300}

	mapped := resizer.FromSource(src)
	back := resizer.ToSource(mapped)

	if back.Dist(src) > 1e-3 {
		t.Errorf("expected round trip to return %v, got %v", src, back)
	}
}

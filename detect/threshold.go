package detect

import (
	"image"
)

// integral is a summed area table over a grayscale image.  sums has
// (w+1)*(h+1) entries so window sums need no boundary special cases
type integral struct {
	sums   []uint64
	stride int
}

// newIntegral builds the summed area table for the image
func newIntegral(src *image.Gray) *integral {

	b := src.Bounds()
	w := b.Dx()
	h := b.Dy()

	in := &integral{
		sums:   make([]uint64, (w+1)*(h+1)),
		stride: w + 1,
	}

	for y := 0; y < h; y++ {

		var rowSum uint64
		srcRow := src.Pix[src.PixOffset(b.Min.X, b.Min.Y+y):]

		for x := 0; x < w; x++ {
			rowSum += uint64(srcRow[x])
			in.sums[(y+1)*in.stride+x+1] = in.sums[y*in.stride+x+1] + rowSum
		}
	}

	return in
}

// sum returns the pixel sum over the half open box [x0, x1) x [y0, y1)
func (in *integral) sum(x0, y0, x1, y1 int) uint64 {
	return in.sums[y1*in.stride+x1] - in.sums[y0*in.stride+x1] -
		in.sums[y1*in.stride+x0] + in.sums[y0*in.stride+x0]
}

// adaptiveThreshold binarizes the image against the local window mean.
// Pixels darker than mean minus c become foreground (255), everything
// else background (0).  Marker borders are printed black so foreground
// marks the candidate regions to trace
func adaptiveThreshold(src *image.Gray, window int, c float64) *image.Gray {

	b := src.Bounds()
	w := b.Dx()
	h := b.Dy()

	if window < 3 {
		window = 3
	}

	// window must be odd so the box centers on the pixel
	if window%2 == 0 {
		window++
	}

	half := window / 2

	in := newIntegral(src)
	dst := image.NewGray(image.Rect(0, 0, w, h))

	for y := 0; y < h; y++ {

		srcRow := src.Pix[src.PixOffset(b.Min.X, b.Min.Y+y):]

		y0 := y - half
		y1 := y + half + 1

		if y0 < 0 {
			y0 = 0
		}

		if y1 > h {
			y1 = h
		}

		for x := 0; x < w; x++ {

			x0 := x - half
			x1 := x + half + 1

			if x0 < 0 {
				x0 = 0
			}

			if x1 > w {
				x1 = w
			}

			area := float64((x1 - x0) * (y1 - y0))
			mean := float64(in.sum(x0, y0, x1, y1)) / area

			if float64(srcRow[x]) < mean-c {
				dst.Pix[y*dst.Stride+x] = 255
			}
		}
	}

	return dst
}

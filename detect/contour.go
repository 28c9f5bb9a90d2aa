package detect

import (
	"image"
)

// neighbor offsets around a pixel in clockwise order on screen,
// y axis pointing down
var mooreOffsets = [8]image.Point{
	{X: 1, Y: 0},   // E
	{X: 1, Y: 1},   // SE
	{X: 0, Y: 1},   // S
	{X: -1, Y: 1},  // SW
	{X: -1, Y: 0},  // W
	{X: -1, Y: -1}, // NW
	{X: 0, Y: -1},  // N
	{X: 1, Y: -1},  // NE
}

// contour is a closed boundary of a foreground blob
type contour []image.Point

// traceContours extracts the closed boundaries of all foreground blobs in
// a binary image using Moore neighbor tracing.  Both outer boundaries and
// hole boundaries are returned, candidates that decode as markers are
// separated downstream.  Boundaries shorter than minPoints are dropped
func traceContours(bin *image.Gray, minPoints int) []contour {

	b := bin.Bounds()
	w := b.Dx()
	h := b.Dy()

	fg := func(p image.Point) bool {
		if p.X < 0 || p.Y < 0 || p.X >= w || p.Y >= h {
			return false
		}
		return bin.Pix[p.Y*bin.Stride+p.X] != 0
	}

	visited := make([]bool, w*h)
	maxPoints := 4 * (w + h)

	var res []contour

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {

			p := image.Point{X: x, Y: y}

			// a boundary start is a foreground pixel entered from the
			// background on its left that has not been traced yet
			if !fg(p) || visited[y*w+x] || fg(image.Point{X: x - 1, Y: y}) {
				continue
			}

			c := traceBoundary(p, fg, visited, w, maxPoints)

			if len(c) >= minPoints {
				res = append(res, c)
			}
		}
	}

	return res
}

// traceBoundary follows one blob boundary starting at the given pixel.
// The backtrack starts at the west neighbor which is known background,
// and tracing stops when the start pixel is re-entered from the initial
// backtrack position (Jacob's stopping criterion)
func traceBoundary(start image.Point, fg func(image.Point) bool,
	visited []bool, stride, maxPoints int) contour {

	cur := start
	back := image.Point{X: start.X - 1, Y: start.Y}
	firstBack := back

	out := contour{start}
	visited[start.Y*stride+start.X] = true

	for {
		// scan the neighbors of cur clockwise beginning just after the
		// backtrack position
		dir := offsetIndex(back.Sub(cur))
		found := false

		prev := back

		for i := 1; i <= 8; i++ {
			n := cur.Add(mooreOffsets[(dir+i)%8])

			if fg(n) {
				back = prev
				cur = n
				found = true
				break
			}

			prev = n
		}

		// isolated pixel
		if !found {
			break
		}

		if cur == start && back == firstBack {
			break
		}

		out = append(out, cur)
		visited[cur.Y*stride+cur.X] = true

		if len(out) > maxPoints {
			break
		}
	}

	return out
}

// offsetIndex returns the index of a unit offset in the clockwise
// neighbor table
func offsetIndex(d image.Point) int {

	for i, off := range mooreOffsets {
		if off == d {
			return i
		}
	}

	return 0
}

// Package match implements image target registration and matching.
// Keypoints are detected with the FAST segment test, described with BRIEF
// binary descriptors and matched by Hamming distance, with the planar
// transform between reference image and frame estimated by a RANSAC
// homography fit.
package match

import (
	"image"
)

// fastRadius is the Bresenham circle radius of the segment test
const fastRadius = 3

// fastArc is the number of contiguous circle pixels that must all be
// brighter or all darker than the center for a corner
const fastArc = 9

// circle of 16 pixel offsets around the candidate center
var fastCircle = [16]image.Point{
	{X: 0, Y: -3}, {X: 1, Y: -3}, {X: 2, Y: -2}, {X: 3, Y: -1},
	{X: 3, Y: 0}, {X: 3, Y: 1}, {X: 2, Y: 2}, {X: 1, Y: 3},
	{X: 0, Y: 3}, {X: -1, Y: 3}, {X: -2, Y: 2}, {X: -3, Y: 1},
	{X: -3, Y: 0}, {X: -3, Y: -1}, {X: -2, Y: -2}, {X: -1, Y: -3},
}

// KeyPoint is a detected corner feature
type KeyPoint struct {
	// X and Y pixel position in the base image
	X, Y float32
	// Response is the corner strength used for ranking and suppression
	Response float32
}

// detectFAST runs the FAST-9 segment test over the image and returns the
// corners surviving 3x3 non maximum suppression
func detectFAST(img *image.Gray, threshold int) []KeyPoint {

	b := img.Bounds()
	w := b.Dx()
	h := b.Dy()

	margin := fastRadius

	if w <= 2*margin || h <= 2*margin {
		return nil
	}

	at := func(x, y int) int {
		return int(img.Pix[img.PixOffset(b.Min.X+x, b.Min.Y+y)])
	}

	// response map for suppression
	resp := make([]float32, w*h)

	for y := margin; y < h-margin; y++ {
		for x := margin; x < w-margin; x++ {

			center := at(x, y)

			// classify the circle pixels: +1 bright, -1 dark, 0 similar
			var states [16]int8
			bright := 0
			dark := 0

			for i, off := range fastCircle {
				v := at(x+off.X, y+off.Y)

				if v >= center+threshold {
					states[i] = 1
					bright++
				} else if v <= center-threshold {
					states[i] = -1
					dark++
				}
			}

			// quick reject, an arc of nine needs at least nine candidates
			if bright < fastArc && dark < fastArc {
				continue
			}

			if !hasArc(states, 1) && !hasArc(states, -1) {
				continue
			}

			// corner strength is the total excess contrast on the circle
			var score float32

			for i, off := range fastCircle {
				if states[i] == 0 {
					continue
				}

				diff := at(x+off.X, y+off.Y) - center

				if diff < 0 {
					diff = -diff
				}

				score += float32(diff - threshold)
			}

			resp[y*w+x] = score
		}
	}

	// 3x3 non maximum suppression
	var out []KeyPoint

	for y := margin; y < h-margin; y++ {
		for x := margin; x < w-margin; x++ {

			score := resp[y*w+x]

			if score == 0 {
				continue
			}

			maximal := true

			for dy := -1; dy <= 1 && maximal; dy++ {
				for dx := -1; dx <= 1; dx++ {

					if dx == 0 && dy == 0 {
						continue
					}

					if resp[(y+dy)*w+x+dx] > score {
						maximal = false
						break
					}
				}
			}

			if maximal {
				out = append(out, KeyPoint{
					X:        float32(x),
					Y:        float32(y),
					Response: score,
				})
			}
		}
	}

	return out
}

// hasArc reports whether the circle states contain a contiguous run of
// fastArc entries with the given sign, treating the circle as circular
func hasArc(states [16]int8, want int8) bool {

	run := 0

	// doubling the circle handles runs that wrap around the seam
	for i := 0; i < 32; i++ {

		if states[i%16] == want {
			run++

			if run >= fastArc {
				return true
			}
		} else {
			run = 0
		}
	}

	return false
}

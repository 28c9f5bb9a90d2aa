package match

import (
	"image"
	"math/bits"
	"math/rand"
)

const (
	// descriptorBits is the BRIEF descriptor length
	descriptorBits = 256
	// patchHalf is the half width of the descriptor patch
	patchHalf = 15
	// smoothHalf is the half width of the box smoothing window applied
	// before intensity comparisons
	smoothHalf = 2
	// patternSeed fixes the sampling pattern so descriptors are
	// comparable across processes and registered target databases
	patternSeed = 0x42524946
)

// Descriptor is a 256 bit BRIEF binary descriptor
type Descriptor [descriptorBits / 8]byte

// HammingDist returns the number of differing bits between two
// descriptors
func HammingDist(a, b Descriptor) int {

	dist := 0

	for i := range a {
		dist += bits.OnesCount8(a[i] ^ b[i])
	}

	return dist
}

// test pair offsets of the sampling pattern
type briefPair struct {
	x1, y1, x2, y2 int
}

// briefPattern is the fixed comparison pattern, offsets drawn from an
// isotropic gaussian over the patch and clipped so the smoothing window
// stays inside the patch
var briefPattern = makePattern()

func makePattern() [descriptorBits]briefPair {

	rng := rand.New(rand.NewSource(patternSeed))

	limit := patchHalf - smoothHalf
	sigma := float64(patchHalf) / 2.5

	draw := func() int {
		for {
			v := int(rng.NormFloat64() * sigma)

			if v >= -limit && v <= limit {
				return v
			}
		}
	}

	var pattern [descriptorBits]briefPair

	for i := range pattern {
		pattern[i] = briefPair{
			x1: draw(), y1: draw(),
			x2: draw(), y2: draw(),
		}
	}

	return pattern
}

// describe computes BRIEF descriptors for the keypoints whose patch lies
// fully inside the image.  Keypoints too close to the border are dropped,
// the returned keypoint slice matches the descriptor slice index for
// index
func describe(img *image.Gray, kps []KeyPoint) ([]KeyPoint, []Descriptor) {

	b := img.Bounds()
	w := b.Dx()
	h := b.Dy()

	in := newBoxIntegral(img)

	kept := make([]KeyPoint, 0, len(kps))
	descs := make([]Descriptor, 0, len(kps))

	for _, kp := range kps {

		x := int(kp.X)
		y := int(kp.Y)

		if x < patchHalf || y < patchHalf ||
			x >= w-patchHalf || y >= h-patchHalf {
			continue
		}

		var desc Descriptor

		for i, pair := range briefPattern {
			a := in.boxMean(x+pair.x1, y+pair.y1)
			bMean := in.boxMean(x+pair.x2, y+pair.y2)

			if a < bMean {
				desc[i/8] |= 1 << uint(i%8)
			}
		}

		kept = append(kept, kp)
		descs = append(descs, desc)
	}

	return kept, descs
}

// boxIntegral is a summed area table used for the descriptor smoothing
// window
type boxIntegral struct {
	sums   []uint64
	stride int
	w, h   int
}

func newBoxIntegral(img *image.Gray) *boxIntegral {

	b := img.Bounds()
	w := b.Dx()
	h := b.Dy()

	in := &boxIntegral{
		sums:   make([]uint64, (w+1)*(h+1)),
		stride: w + 1,
		w:      w,
		h:      h,
	}

	for y := 0; y < h; y++ {

		var rowSum uint64
		row := img.Pix[img.PixOffset(b.Min.X, b.Min.Y+y):]

		for x := 0; x < w; x++ {
			rowSum += uint64(row[x])
			in.sums[(y+1)*in.stride+x+1] = in.sums[y*in.stride+x+1] + rowSum
		}
	}

	return in
}

// boxMean returns the mean intensity of the smoothing window centered on
// (x, y), the caller guarantees the window is inside the image
func (in *boxIntegral) boxMean(x, y int) uint32 {

	x0 := x - smoothHalf
	y0 := y - smoothHalf
	x1 := x + smoothHalf + 1
	y1 := y + smoothHalf + 1

	sum := in.sums[y1*in.stride+x1] - in.sums[y0*in.stride+x1] -
		in.sums[y1*in.stride+x0] + in.sums[y0*in.stride+x0]

	side := uint64(2*smoothHalf + 1)

	return uint32(sum / (side * side))
}

// Package detect implements binary square marker detection in luminance
// images.  Candidate quadrilaterals are extracted from an adaptively
// thresholded frame, rectified, and their cell grid decoded against a
// marker dictionary.
package detect

import (
	"fmt"
	"image"
	"image/color"
	"math/bits"
	"math/rand"
	"sync"
)

// Dictionary is a set of binary marker codes with a guaranteed minimum
// pairwise Hamming distance, including all four rotations of every code.
// Dictionaries are immutable once generated
type Dictionary struct {
	// name identifies the dictionary, eg: "4x4_50"
	name string
	// bitsPerSide is the payload grid dimension, excluding the border
	bitsPerSide int
	// codes are the marker payloads, row major with cell (0,0) in the
	// most significant bit
	codes []uint64
	// tau is the minimum Hamming distance between any two codes over
	// all rotations
	tau int
}

var (
	dict4x4Once sync.Once
	dict4x4     *Dictionary
)

// Dict4x4 returns the builtin dictionary of fifty 4x4 markers.  It is
// generated deterministically on first use so marker IDs are stable
// across processes
func Dict4x4() *Dictionary {
	dict4x4Once.Do(func() {
		var err error
		dict4x4, err = GenerateDictionary("4x4_50", 4, 50, 4, 0x4d41524b)

		if err != nil {
			// generation of the builtin dictionary is deterministic, a
			// failure here means the generator itself is broken
			panic(fmt.Sprintf("builtin dictionary generation failed: %v", err))
		}
	})

	return dict4x4
}

// GenerateDictionary creates a marker dictionary of the given size.  Codes
// are drawn from a seeded random sequence and accepted when they keep at
// least minDistance Hamming distance to every rotation of every already
// accepted code, to all rotations of themselves, and to the all black and
// all white grids
func GenerateDictionary(name string, bitsPerSide, size,
	minDistance int, seed int64) (*Dictionary, error) {

	if bitsPerSide < 3 || bitsPerSide > 8 {
		return nil, fmt.Errorf("bits per side %d out of supported range 3..8", bitsPerSide)
	}

	if size < 1 {
		return nil, fmt.Errorf("dictionary size %d must be positive", size)
	}

	if minDistance < 1 {
		return nil, fmt.Errorf("minimum distance %d must be positive", minDistance)
	}

	nBits := bitsPerSide * bitsPerSide
	mask := uint64(1)<<uint(nBits) - 1

	rng := rand.New(rand.NewSource(seed))

	d := &Dictionary{
		name:        name,
		bitsPerSide: bitsPerSide,
		codes:       make([]uint64, 0, size),
		tau:         minDistance,
	}

	// cap the search so an unsatisfiable request fails instead of
	// spinning forever
	maxAttempts := size * 100000

	for attempt := 0; attempt < maxAttempts && len(d.codes) < size; attempt++ {

		candidate := rng.Uint64() & mask

		if !d.isUsable(candidate, nBits, mask, minDistance) {
			continue
		}

		d.codes = append(d.codes, candidate)
	}

	if len(d.codes) < size {
		return nil, fmt.Errorf("could only generate %d of %d codes with distance %d",
			len(d.codes), size, minDistance)
	}

	return d, nil
}

// isUsable checks a candidate code against the dictionary distance
// constraints
func (d *Dictionary) isUsable(candidate uint64, nBits int, mask uint64,
	minDistance int) bool {

	// reject codes too close to an empty or filled grid, those show up
	// as false positives on plain dark or bright squares
	if bits.OnesCount64(candidate) < minDistance ||
		bits.OnesCount64(candidate^mask) < minDistance {
		return false
	}

	// the code must differ from its own rotations so orientation is
	// unambiguous
	rot := candidate

	for k := 0; k < 3; k++ {
		rot = rotateGrid(rot, d.bitsPerSide)

		if bits.OnesCount64(candidate^rot) < minDistance {
			return false
		}
	}

	// check distance against all rotations of the accepted codes
	for _, code := range d.codes {
		rot = code

		for k := 0; k < 4; k++ {
			if bits.OnesCount64(candidate^rot) < minDistance {
				return false
			}

			rot = rotateGrid(rot, d.bitsPerSide)
		}
	}

	return true
}

// Name returns the dictionary name
func (d *Dictionary) Name() string {
	return d.name
}

// Size returns the number of marker codes in the dictionary
func (d *Dictionary) Size() int {
	return len(d.codes)
}

// BitsPerSide returns the payload grid dimension
func (d *Dictionary) BitsPerSide() int {
	return d.bitsPerSide
}

// GridSize returns the full marker grid dimension including the one cell
// black border on each side
func (d *Dictionary) GridSize() int {
	return d.bitsPerSide + 2
}

// MaxCorrectionBits returns the number of payload bit errors the
// dictionary can correct unambiguously
func (d *Dictionary) MaxCorrectionBits() int {
	return (d.tau - 1) / 2
}

// Code returns the payload code of the marker with the given ID
func (d *Dictionary) Code(id int) (uint64, error) {

	if id < 0 || id >= len(d.codes) {
		return 0, fmt.Errorf("marker ID %d outside dictionary of %d codes", id, len(d.codes))
	}

	return d.codes[id], nil
}

// Identify looks up an observed payload grid in the dictionary.  All four
// rotations are tried and the nearest code within MaxCorrectionBits is
// returned.  rotation is the number of clockwise quarter turns that map
// the observed grid onto the canonical code
func (d *Dictionary) Identify(observed uint64) (id, rotation, distance int, ok bool) {

	bestID := -1
	bestRot := 0
	bestDist := d.bitsPerSide*d.bitsPerSide + 1

	rot := observed

	for k := 0; k < 4; k++ {
		for i, code := range d.codes {
			dist := bits.OnesCount64(rot ^ code)

			if dist < bestDist {
				bestDist = dist
				bestID = i
				bestRot = k
			}
		}

		rot = rotateGrid(rot, d.bitsPerSide)
	}

	if bestID < 0 || bestDist > d.MaxCorrectionBits() {
		return 0, 0, bestDist, false
	}

	return bestID, bestRot, bestDist, true
}

// DrawMarker renders the marker with the given ID to a grayscale image.
// Each grid cell is cellPixels wide, the one cell border is drawn black
// and payload bits set to one are drawn white.  Print targets should be
// placed on a light background to preserve a quiet zone around the border
func (d *Dictionary) DrawMarker(id, cellPixels int) (*image.Gray, error) {

	code, err := d.Code(id)

	if err != nil {
		return nil, err
	}

	if cellPixels < 1 {
		return nil, fmt.Errorf("cell size %d must be positive", cellPixels)
	}

	n := d.GridSize()
	size := n * cellPixels
	img := image.NewGray(image.Rect(0, 0, size, size))

	nBits := d.bitsPerSide * d.bitsPerSide

	for r := 0; r < n; r++ {
		for c := 0; c < n; c++ {

			val := uint8(0)

			// payload cells inside the border
			if r > 0 && r < n-1 && c > 0 && c < n-1 {
				idx := (r-1)*d.bitsPerSide + (c - 1)

				if code&(1<<uint(nBits-1-idx)) != 0 {
					val = 255
				}
			}

			for y := r * cellPixels; y < (r+1)*cellPixels; y++ {
				for x := c * cellPixels; x < (c+1)*cellPixels; x++ {
					img.SetGray(x, y, color.Gray{Y: val})
				}
			}
		}
	}

	return img, nil
}

// rotateGrid rotates an n x n bit grid by 90 degrees clockwise.  Cell
// (r, c) is stored in bit (n*n - 1 - (r*n + c))
func rotateGrid(code uint64, n int) uint64 {

	var out uint64
	nBits := n * n

	for r := 0; r < n; r++ {
		for c := 0; c < n; c++ {
			// the rotated cell (r, c) comes from the source cell (n-1-c, r)
			src := (n-1-c)*n + r

			if code&(1<<uint(nBits-1-src)) != 0 {
				dst := r*n + c
				out |= 1 << uint(nBits-1-dst)
			}
		}
	}

	return out
}

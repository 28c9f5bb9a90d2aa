package detect

import (
	"errors"
	"image"
	"math"
	"sort"

	planartrack "github.com/vantagecv/go-planartrack"
)

// DetectorParams defines the tuning parameters of the marker detector
type DetectorParams struct {
	// AdaptiveWindow is the window size in pixels for the local mean
	// threshold, forced odd.  Must be larger than the expected width of
	// a single marker cell in the frame
	AdaptiveWindow int
	// AdaptiveConstant is subtracted from the local mean before
	// comparison
	AdaptiveConstant float64
	// MinPerimeter is the minimum candidate outline length in pixels
	MinPerimeter float32
	// MinEdge is the minimum candidate edge length in pixels
	MinEdge float32
	// ApproxEpsilonRate scales the polygon simplification tolerance
	// relative to the contour length
	ApproxEpsilonRate float64
	// BorderMargin rejects candidates with corners closer than this many
	// pixels to the image edge
	BorderMargin int
	// UnclipRatio expands candidate quads outward before sampling to
	// recover border pixels lost to thresholding, zero disables
	UnclipRatio float64
	// CellMarginRate is the fraction of each grid cell skipped around
	// its edge when sampling cell intensity
	CellMarginRate float64
	// MinContrast is the minimum spread between the darkest and
	// brightest cell mean for a candidate to be decodable
	MinContrast float64
	// MaxBorderErrors is the number of border cells allowed to sample
	// bright before a candidate is rejected
	MaxBorderErrors int
	// RefineCorners enables subpixel corner refinement by fitting lines
	// to the contour edges
	RefineCorners bool
}

// DefaultDetectorParams returns the detector defaults, tuned for markers
// of roughly 50 to 200 pixels in a frame
func DefaultDetectorParams() DetectorParams {
	return DetectorParams{
		AdaptiveWindow:    31,
		AdaptiveConstant:  7,
		MinPerimeter:      60,
		MinEdge:           10,
		ApproxEpsilonRate: 0.05,
		BorderMargin:      2,
		UnclipRatio:       0,
		CellMarginRate:    0.13,
		MinContrast:       30,
		MaxBorderErrors:   1,
		RefineCorners:     true,
	}
}

// Detection is a decoded marker sighting in a single frame
type Detection struct {
	// Corners of the marker in image coordinates, clockwise starting at
	// the marker's canonical top left corner
	Corners planartrack.Quad
	// ID of the marker inside its dictionary
	ID int
	// Dictionary name the marker was decoded against
	Dictionary string
	// Rotation is the number of clockwise quarter turns applied to the
	// observed grid to reach the canonical code
	Rotation int
	// Confidence of the decode between 0 and 1, derived from the number
	// of corrected payload bits
	Confidence float32
}

// Detector finds and decodes square markers in luminance images
type Detector struct {
	// Params holds the detector tuning parameters
	Params DetectorParams

	dict *Dictionary
}

// NewDetector returns a marker detector for the given dictionary
func NewDetector(dict *Dictionary, params DetectorParams) *Detector {
	return &Detector{
		Params: params,
		dict:   dict,
	}
}

// Dictionary returns the dictionary the detector decodes against
func (d *Detector) Dictionary() *Dictionary {
	return d.dict
}

// Detect runs marker detection over a full luminance image and returns
// all decoded markers
func (d *Detector) Detect(img *image.Gray) ([]Detection, error) {

	if img == nil {
		return nil, errors.New("image is nil")
	}

	bounds := img.Bounds()

	if bounds.Dx() < d.dict.GridSize()*3 || bounds.Dy() < d.dict.GridSize()*3 {
		return nil, errors.New("image is smaller than a decodable marker")
	}

	bin := adaptiveThreshold(img, d.Params.AdaptiveWindow, d.Params.AdaptiveConstant)

	minPoints := int(float64(d.Params.MinPerimeter) * 0.7)
	contours := traceContours(bin, minPoints)

	var results []Detection

	for _, c := range contours {

		quad, ok := approxQuad(c, d.Params.ApproxEpsilonRate)

		if !ok {
			continue
		}

		if !d.acceptQuad(quad, bounds) {
			continue
		}

		if d.Params.UnclipRatio > 0 {
			quad = expandQuad(quad, d.Params.UnclipRatio)
		}

		if d.Params.RefineCorners {
			quad = refineCorners(quad, c)
		}

		id, rot, conf, ok := d.decodeQuad(img, quad)

		if !ok {
			continue
		}

		// rotate the corners so corner 0 is the canonical top left of
		// the decoded marker
		var corners planartrack.Quad

		for i := 0; i < 4; i++ {
			corners[i] = quad[(i+4-rot)%4]
		}

		results = append(results, Detection{
			Corners:    corners,
			ID:         id,
			Dictionary: d.dict.Name(),
			Rotation:   rot,
			Confidence: conf,
		})
	}

	return dedupe(results), nil
}

// acceptQuad applies the geometric candidate filters
func (d *Detector) acceptQuad(q planartrack.Quad, bounds image.Rectangle) bool {

	if !q.IsConvex() {
		return false
	}

	if q.Perimeter() < d.Params.MinPerimeter {
		return false
	}

	if q.MinEdge() < d.Params.MinEdge {
		return false
	}

	margin := float32(d.Params.BorderMargin)

	for _, p := range q {
		if p.X < margin || p.Y < margin ||
			p.X > float32(bounds.Dx()-1)-margin ||
			p.Y > float32(bounds.Dy()-1)-margin {
			return false
		}
	}

	return true
}

// decodeQuad rectifies the candidate into the marker grid, samples every
// cell and decodes the payload against the dictionary
func (d *Detector) decodeQuad(img *image.Gray,
	q planartrack.Quad) (id, rotation int, confidence float32, ok bool) {

	n := d.dict.GridSize()
	g := float32(n)

	gridQuad := planartrack.Quad{
		{X: 0, Y: 0},
		{X: g, Y: 0},
		{X: g, Y: g},
		{X: 0, Y: g},
	}

	h, err := planartrack.HomographyFromQuad(gridQuad, q)

	if err != nil {
		return 0, 0, 0, false
	}

	// sample the mean intensity of every grid cell
	means := make([]float64, n*n)

	minMean := math.MaxFloat64
	maxMean := -math.MaxFloat64

	for r := 0; r < n; r++ {
		for c := 0; c < n; c++ {

			m := d.sampleCell(img, h, r, c)
			means[r*n+c] = m

			if m < minMean {
				minMean = m
			}

			if m > maxMean {
				maxMean = m
			}
		}
	}

	if maxMean-minMean < d.Params.MinContrast {
		return 0, 0, 0, false
	}

	threshold := (minMean + maxMean) / 2

	// the border ring must sample dark
	borderErrors := 0

	for r := 0; r < n; r++ {
		for c := 0; c < n; c++ {

			if r != 0 && r != n-1 && c != 0 && c != n-1 {
				continue
			}

			if means[r*n+c] > threshold {
				borderErrors++
			}
		}
	}

	if borderErrors > d.Params.MaxBorderErrors {
		return 0, 0, 0, false
	}

	// read the payload grid, bright cells are one bits
	bitsPerSide := d.dict.BitsPerSide()
	nBits := bitsPerSide * bitsPerSide

	var code uint64

	for r := 0; r < bitsPerSide; r++ {
		for c := 0; c < bitsPerSide; c++ {
			if means[(r+1)*n+c+1] > threshold {
				idx := r*bitsPerSide + c
				code |= 1 << uint(nBits-1-idx)
			}
		}
	}

	id, rotation, distance, ok := d.dict.Identify(code)

	if !ok {
		return 0, 0, 0, false
	}

	confidence = 1 - float32(distance)/float32(d.dict.MaxCorrectionBits()+1)

	return id, rotation, confidence, true
}

// sampleCell returns the mean intensity of the interior of grid cell
// (r, c) mapped through the rectifying homography
func (d *Detector) sampleCell(img *image.Gray, h planartrack.Homography,
	r, c int) float64 {

	// 3x3 sample points spread across the cell interior
	spread := (0.5 - d.Params.CellMarginRate) * 2.0 / 3.0

	var sum float64

	for i := -1; i <= 1; i++ {
		for j := -1; j <= 1; j++ {

			u := float64(c) + 0.5 + float64(i)*spread
			v := float64(r) + 0.5 + float64(j)*spread

			x, y := h.ApplyXY(u, v)
			sum += bilinearSample(img, x, y)
		}
	}

	return sum / 9
}

// bilinearSample reads the image intensity at a subpixel position with
// border clamping
func bilinearSample(img *image.Gray, x, y float64) float64 {

	b := img.Bounds()
	w := b.Dx()
	h := b.Dy()

	if x < 0 {
		x = 0
	}

	if y < 0 {
		y = 0
	}

	if x > float64(w-1) {
		x = float64(w - 1)
	}

	if y > float64(h-1) {
		y = float64(h - 1)
	}

	x0 := int(x)
	y0 := int(y)

	x1 := x0 + 1
	y1 := y0 + 1

	if x1 > w-1 {
		x1 = w - 1
	}

	if y1 > h-1 {
		y1 = h - 1
	}

	fx := x - float64(x0)
	fy := y - float64(y0)

	at := func(px, py int) float64 {
		return float64(img.Pix[img.PixOffset(b.Min.X+px, b.Min.Y+py)])
	}

	top := at(x0, y0)*(1-fx) + at(x1, y0)*fx
	bottom := at(x0, y1)*(1-fx) + at(x1, y1)*fx

	return top*(1-fy) + bottom*fy
}

// dedupe drops duplicate detections of the same marker, eg: the outer and
// inner boundary of the border ring decoding to the same ID.  The
// detection with the larger outline wins
func dedupe(dets []Detection) []Detection {

	if len(dets) < 2 {
		return dets
	}

	// larger outlines first so the keepers are seen before their
	// duplicates
	sort.Slice(dets, func(i, j int) bool {
		return dets[i].Corners.Perimeter() > dets[j].Corners.Perimeter()
	})

	var out []Detection

	for _, det := range dets {

		dup := false

		for _, kept := range out {

			if kept.ID != det.ID {
				continue
			}

			limit := kept.Corners.MinEdge() * 0.5

			if kept.Corners.Center().Dist(det.Corners.Center()) < limit {
				dup = true
				break
			}
		}

		if !dup {
			out = append(out, det)
		}
	}

	return out
}

package match

import (
	"errors"
	"fmt"
	"image"
	stddraw "image/draw"
	"math/rand"
	"sort"
	"sync"

	xdraw "golang.org/x/image/draw"

	planartrack "github.com/vantagecv/go-planartrack"
)

// MatcherParams defines the tuning parameters of the image target
// matcher
type MatcherParams struct {
	// FASTThreshold is the segment test contrast threshold
	FASTThreshold int
	// MaxKeypoints caps the number of features kept per image, the
	// strongest responses win
	MaxKeypoints int
	// PyramidLevels is the number of scales features are extracted at
	// during registration
	PyramidLevels int
	// PyramidScale is the downscale factor between pyramid levels
	PyramidScale float64
	// RatioThreshold is the Lowe ratio test limit on best to second
	// best descriptor distance
	RatioThreshold float64
	// MinMatches is the minimum number of inlier correspondences for a
	// valid match
	MinMatches int
	// RansacIterations bounds the homography consensus search
	RansacIterations int
	// RansacThreshold is the inlier reprojection limit in pixels
	RansacThreshold float64
}

// DefaultMatcherParams returns the matcher defaults
func DefaultMatcherParams() MatcherParams {
	return MatcherParams{
		FASTThreshold:    20,
		MaxKeypoints:     500,
		PyramidLevels:    3,
		PyramidScale:     1.5,
		RatioThreshold:   0.8,
		MinMatches:       12,
		RansacIterations: 500,
		RansacThreshold:  3.0,
	}
}

// Match is a reference image sighting in a single frame
type Match struct {
	// Target is the registered image target that matched
	Target planartrack.Target
	// H maps reference image pixels to frame pixels
	H planartrack.Homography
	// Corners are the reference image corners projected into the frame
	Corners planartrack.Quad
	// RefWidth and RefHeight are the reference image dimensions in pixels
	RefWidth, RefHeight int
	// Inliers is the number of correspondences consistent with H
	Inliers int
	// Confidence is the inlier ratio of the correspondence set
	Confidence float32
}

// refImage is a registered reference image reduced to its feature set
type refImage struct {
	target planartrack.Target
	// pixel dimensions of the base level image
	width, height int
	// keypoints in base level coordinates
	kps []KeyPoint
	// descriptors index aligned with kps
	descs []Descriptor
}

// Matcher matches registered reference images against camera frames.
// The registered set is immutable per target, registration of a
// duplicate name fails
type Matcher struct {
	// Params holds the matcher tuning parameters
	Params MatcherParams

	mu   sync.RWMutex
	refs []*refImage
}

// NewMatcher returns an image target matcher
func NewMatcher(params MatcherParams) *Matcher {
	return &Matcher{
		Params: params,
	}
}

// RegisterTarget extracts the feature set of a reference image and adds
// it to the registered set.  The image should show the printed target
// flat and fully, features are extracted over a small scale pyramid so
// moderate distance changes still match
func (m *Matcher) RegisterTarget(target planartrack.Target, img image.Image) error {

	if target.Kind != planartrack.TargetImage {
		return fmt.Errorf("target %s is not an image target", target)
	}

	gray := toGray(img)
	b := gray.Bounds()

	kps, descs := m.extractPyramid(gray)

	if len(kps) < m.Params.MinMatches*2 {
		return fmt.Errorf("reference image for %s has too little texture: %d features",
			target, len(kps))
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for _, ref := range m.refs {
		if ref.target.Name == target.Name {
			return fmt.Errorf("target %s already registered", target)
		}
	}

	m.refs = append(m.refs, &refImage{
		target: target,
		width:  b.Dx(),
		height: b.Dy(),
		kps:    kps,
		descs:  descs,
	})

	return nil
}

// RegisterPrecomputed adds a target whose feature set was extracted
// earlier, eg: loaded from a target store
func (m *Matcher) RegisterPrecomputed(target planartrack.Target, width, height int,
	kps []KeyPoint, descs []Descriptor) error {

	if target.Kind != planartrack.TargetImage {
		return fmt.Errorf("target %s is not an image target", target)
	}

	if len(kps) != len(descs) {
		return errors.New("keypoint and descriptor counts differ")
	}

	if len(kps) < m.Params.MinMatches {
		return fmt.Errorf("target %s has too few features: %d", target, len(kps))
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for _, ref := range m.refs {
		if ref.target.Name == target.Name {
			return fmt.Errorf("target %s already registered", target)
		}
	}

	m.refs = append(m.refs, &refImage{
		target: target,
		width:  width,
		height: height,
		kps:    kps,
		descs:  descs,
	})

	return nil
}

// Targets returns the registered targets
func (m *Matcher) Targets() []planartrack.Target {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]planartrack.Target, len(m.refs))

	for i, ref := range m.refs {
		out[i] = ref.target
	}

	return out
}

// TargetFeatures returns the feature set of a registered target for
// persistence.  The returned slices must not be modified
func (m *Matcher) TargetFeatures(name string) (width, height int,
	kps []KeyPoint, descs []Descriptor, err error) {

	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, ref := range m.refs {
		if ref.target.Name == name {
			return ref.width, ref.height, ref.kps, ref.descs, nil
		}
	}

	return 0, 0, nil, nil, fmt.Errorf("target %q not registered", name)
}

// Match extracts features from the frame once and matches every
// registered target against them
func (m *Matcher) Match(frame *image.Gray) ([]Match, error) {

	if frame == nil {
		return nil, errors.New("frame is nil")
	}

	m.mu.RLock()
	refs := m.refs
	m.mu.RUnlock()

	if len(refs) == 0 {
		return nil, nil
	}

	frameKps := detectFAST(frame, m.Params.FASTThreshold)
	frameKps = strongest(frameKps, m.Params.MaxKeypoints*2)
	frameKps, frameDescs := describe(frame, frameKps)

	if len(frameKps) == 0 {
		return nil, nil
	}

	// deterministic consensus sampling so repeated frames give repeated
	// results
	rng := rand.New(rand.NewSource(1))

	var results []Match

	for _, ref := range refs {

		srcPts, dstPts := m.correspond(ref, frameKps, frameDescs)

		if len(srcPts) < m.Params.MinMatches {
			continue
		}

		h, inliers, err := ransacHomography(srcPts, dstPts,
			m.Params.RansacIterations, m.Params.RansacThreshold, rng)

		if err != nil || len(inliers) < m.Params.MinMatches {
			continue
		}

		w := float32(ref.width)
		ht := float32(ref.height)

		corners := planartrack.Quad{
			h.Apply(planartrack.Point2f{X: 0, Y: 0}),
			h.Apply(planartrack.Point2f{X: w, Y: 0}),
			h.Apply(planartrack.Point2f{X: w, Y: ht}),
			h.Apply(planartrack.Point2f{X: 0, Y: ht}),
		}

		results = append(results, Match{
			Target:     ref.target,
			H:          h,
			Corners:    corners,
			RefWidth:   ref.width,
			RefHeight:  ref.height,
			Inliers:    len(inliers),
			Confidence: float32(len(inliers)) / float32(len(srcPts)),
		})
	}

	return results, nil
}

// correspond matches the reference descriptors against the frame
// descriptors with a ratio test and returns the surviving point pairs
func (m *Matcher) correspond(ref *refImage, frameKps []KeyPoint,
	frameDescs []Descriptor) ([]planartrack.Point2f, []planartrack.Point2f) {

	var src, dst []planartrack.Point2f

	for i, desc := range ref.descs {

		best := descriptorBits + 1
		second := descriptorBits + 1
		bestIdx := -1

		for j := range frameDescs {
			d := HammingDist(desc, frameDescs[j])

			if d < best {
				second = best
				best = d
				bestIdx = j
			} else if d < second {
				second = d
			}
		}

		if bestIdx < 0 {
			continue
		}

		if float64(best) >= m.Params.RatioThreshold*float64(second) {
			continue
		}

		src = append(src, planartrack.Point2f{X: ref.kps[i].X, Y: ref.kps[i].Y})
		dst = append(dst, planartrack.Point2f{X: frameKps[bestIdx].X, Y: frameKps[bestIdx].Y})
	}

	return src, dst
}

// extractPyramid extracts features at every pyramid level with keypoint
// coordinates mapped back to the base level
func (m *Matcher) extractPyramid(base *image.Gray) ([]KeyPoint, []Descriptor) {

	var kps []KeyPoint
	var descs []Descriptor

	level := base
	scale := 1.0

	for l := 0; l < m.Params.PyramidLevels; l++ {

		if l > 0 {
			b := level.Bounds()

			nw := int(float64(b.Dx()) / m.Params.PyramidScale)
			nh := int(float64(b.Dy()) / m.Params.PyramidScale)

			if nw < 4*patchHalf || nh < 4*patchHalf {
				break
			}

			scaled := image.NewGray(image.Rect(0, 0, nw, nh))
			xdraw.ApproxBiLinear.Scale(scaled, scaled.Bounds(), level, b, xdraw.Src, nil)

			level = scaled
			scale *= m.Params.PyramidScale
		}

		levelKps := detectFAST(level, m.Params.FASTThreshold)
		levelKps, levelDescs := describe(level, levelKps)

		for i := range levelKps {
			kps = append(kps, KeyPoint{
				X:        levelKps[i].X * float32(scale),
				Y:        levelKps[i].Y * float32(scale),
				Response: levelKps[i].Response,
			})
			descs = append(descs, levelDescs[i])
		}
	}

	// cap the feature count keeping the strongest responses, keypoints
	// and descriptors stay index aligned through a shared order
	if len(kps) > m.Params.MaxKeypoints {

		order := make([]int, len(kps))

		for i := range order {
			order[i] = i
		}

		sort.Slice(order, func(a, b int) bool {
			return kps[order[a]].Response > kps[order[b]].Response
		})

		orderedKps := make([]KeyPoint, m.Params.MaxKeypoints)
		orderedDescs := make([]Descriptor, m.Params.MaxKeypoints)

		for i := 0; i < m.Params.MaxKeypoints; i++ {
			orderedKps[i] = kps[order[i]]
			orderedDescs[i] = descs[order[i]]
		}

		kps = orderedKps
		descs = orderedDescs
	}

	return kps, descs
}

// strongest keeps the n keypoints with the highest response
func strongest(kps []KeyPoint, n int) []KeyPoint {

	if len(kps) <= n {
		return kps
	}

	sort.Slice(kps, func(i, j int) bool {
		return kps[i].Response > kps[j].Response
	})

	return kps[:n]
}

// toGray converts any image to a grayscale buffer, reusing the buffer
// when the input already is one
func toGray(img image.Image) *image.Gray {

	if gray, ok := img.(*image.Gray); ok {
		return gray
	}

	b := img.Bounds()
	gray := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	stddraw.Draw(gray, gray.Bounds(), img, b.Min, stddraw.Src)

	return gray
}

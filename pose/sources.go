package pose

import (
	"errors"
	"fmt"
	"image"
	"sync"

	planartrack "github.com/vantagecv/go-planartrack"
	"github.com/vantagecv/go-planartrack/detect"
	"github.com/vantagecv/go-planartrack/match"
)

// MarkerSource runs the marker detector over frames and estimates a pose
// for every decoded marker that has a registered target
type MarkerSource struct {
	detector  *detect.Detector
	estimator *Estimator

	mu      sync.RWMutex
	targets map[int]planartrack.Target
}

// NewMarkerSource returns a marker observation source
func NewMarkerSource(detector *detect.Detector, estimator *Estimator) *MarkerSource {
	return &MarkerSource{
		detector:  detector,
		estimator: estimator,
		targets:   make(map[int]planartrack.Target),
	}
}

// RegisterTarget adds a marker target to the watched set.  The target
// dictionary must match the detector's and the ID must exist in it
func (s *MarkerSource) RegisterTarget(target planartrack.Target) error {

	if target.Kind != planartrack.TargetMarker {
		return fmt.Errorf("target %s is not a marker target", target)
	}

	dict := s.detector.Dictionary()

	if target.Dictionary != dict.Name() {
		return fmt.Errorf("target dictionary %q does not match detector dictionary %q",
			target.Dictionary, dict.Name())
	}

	if target.ID >= dict.Size() {
		return fmt.Errorf("marker ID %d outside dictionary of %d markers",
			target.ID, dict.Size())
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.targets[target.ID]; ok {
		return fmt.Errorf("target %s already registered", target)
	}

	s.targets[target.ID] = target

	return nil
}

// Targets returns the registered marker targets
func (s *MarkerSource) Targets() []planartrack.Target {

	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]planartrack.Target, 0, len(s.targets))

	for _, t := range s.targets {
		out = append(out, t)
	}

	return out
}

// Kind returns the target kind the source produces
func (s *MarkerSource) Kind() planartrack.TargetKind {
	return planartrack.TargetMarker
}

// Observe detects markers in the frame and returns an observation for
// each registered one whose pose resolves.  Decoded markers without a
// registered target are ignored, pose estimation failures skip the
// sighting rather than failing the frame
func (s *MarkerSource) Observe(f *planartrack.Frame) ([]planartrack.Observation, error) {

	if f == nil || f.Image == nil {
		return nil, errors.New("frame has no image")
	}

	detections, err := s.detector.Detect(f.Image)

	if err != nil {
		return nil, fmt.Errorf("marker detection failed: %w", err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var obs []planartrack.Observation

	for _, det := range detections {

		target, ok := s.targets[det.ID]

		if !ok {
			continue
		}

		p, err := s.estimator.EstimateMarker(det.Corners, target.Size, f.Intrinsics)

		if err != nil {
			continue
		}

		obs = append(obs, planartrack.Observation{
			Target:     target,
			Corners:    det.Corners,
			Pose:       p,
			WorldPose:  f.CameraPose.Compose(p),
			Confidence: det.Confidence,
		})
	}

	return obs, nil
}

// ImageSource runs the image target matcher over frames and estimates a
// pose for every matched reference image
type ImageSource struct {
	matcher   *match.Matcher
	estimator *Estimator
}

// NewImageSource returns an image target observation source
func NewImageSource(matcher *match.Matcher, estimator *Estimator) *ImageSource {
	return &ImageSource{
		matcher:   matcher,
		estimator: estimator,
	}
}

// RegisterTarget extracts features from the reference image and adds the
// target to the watched set
func (s *ImageSource) RegisterTarget(target planartrack.Target, ref image.Image) error {
	return s.matcher.RegisterTarget(target, ref)
}

// Targets returns the registered image targets
func (s *ImageSource) Targets() []planartrack.Target {
	return s.matcher.Targets()
}

// Kind returns the target kind the source produces
func (s *ImageSource) Kind() planartrack.TargetKind {
	return planartrack.TargetImage
}

// Observe matches registered reference images against the frame and
// returns an observation for each match whose pose resolves
func (s *ImageSource) Observe(f *planartrack.Frame) ([]planartrack.Observation, error) {

	if f == nil || f.Image == nil {
		return nil, errors.New("frame has no image")
	}

	matches, err := s.matcher.Match(f.Image)

	if err != nil {
		return nil, fmt.Errorf("image matching failed: %w", err)
	}

	var obs []planartrack.Observation

	for _, m := range matches {

		p, err := s.estimator.EstimateImage(m.Corners, m.RefWidth, m.RefHeight,
			m.Target.Size, f.Intrinsics)

		if err != nil {
			continue
		}

		obs = append(obs, planartrack.Observation{
			Target:     m.Target,
			Corners:    m.Corners,
			Pose:       p,
			WorldPose:  f.CameraPose.Compose(p),
			Confidence: m.Confidence,
		})
	}

	return obs, nil
}

package planartrack

import (
	"errors"
	"fmt"
	"sync"
)

// Engine binds observation sources and a track manager into the per frame
// tracking pipeline.  Marker and image tracking can be enabled and
// disabled independently at runtime
type Engine struct {
	mu sync.Mutex
	// sources keyed by the target kind they produce
	sources map[TargetKind]Source
	// enabled flags per source kind
	enabled map[TargetKind]bool
	// tracks maintains per target state across frames
	tracks TrackManager
}

// NewEngine returns an engine using the given track manager.  Attach one
// source per target kind before processing frames
func NewEngine(tracks TrackManager) (*Engine, error) {

	if tracks == nil {
		return nil, errors.New("track manager is nil")
	}

	return &Engine{
		sources: make(map[TargetKind]Source),
		enabled: make(map[TargetKind]bool),
		tracks:  tracks,
	}, nil
}

// AttachSource registers an observation source with the engine and enables
// it.  Attaching a second source of the same kind replaces the first
func (e *Engine) AttachSource(src Source) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.sources[src.Kind()] = src
	e.enabled[src.Kind()] = true
}

// SetEnabled turns detection for one target kind on or off.  While a kind
// is disabled its existing tracks decay through NotTracked to Lost as the
// frames pass
func (e *Engine) SetEnabled(kind TargetKind, enabled bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, exists := e.sources[kind]; !exists {
		return fmt.Errorf("no %s source attached", kind)
	}

	e.enabled[kind] = enabled

	return nil
}

// Enabled reports whether detection for the target kind is active
func (e *Engine) Enabled(kind TargetKind) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.enabled[kind]
}

// Process runs all enabled sources on the frame, feeds the observations
// through the track manager and returns the resulting track snapshots
func (e *Engine) Process(f *Frame) ([]TrackSnapshot, error) {

	_, snaps, err := e.ProcessObserved(f)

	return snaps, err
}

// ProcessObserved runs the pipeline like Process and additionally returns
// the raw observations of the frame ahead of track smoothing, for callers
// rendering or publishing the sightings of the exact frame they processed
func (e *Engine) ProcessObserved(f *Frame) ([]Observation, []TrackSnapshot, error) {

	if f == nil || f.Image == nil {
		return nil, nil, errors.New("frame has no image buffer")
	}

	e.mu.Lock()

	var active []Source

	for kind, src := range e.sources {
		if e.enabled[kind] {
			active = append(active, src)
		}
	}

	e.mu.Unlock()

	var observations []Observation

	for _, src := range active {
		obs, err := src.Observe(f)

		if err != nil {
			return nil, nil, fmt.Errorf("%s source failed: %w", src.Kind(), err)
		}

		observations = append(observations, obs...)
	}

	snaps, err := e.tracks.Update(f.Timestamp, observations)

	if err != nil {
		return nil, nil, fmt.Errorf("track update failed: %w", err)
	}

	return observations, snaps, nil
}

// Reset clears all track state leaving sources and enable flags untouched
func (e *Engine) Reset() {
	e.tracks.Reset()
}

package tracker

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"gonum.org/v1/gonum/spatial/r3"

	planartrack "github.com/vantagecv/go-planartrack"
)

// ManagerParams defines the tuning parameters of the track manager
type ManagerParams struct {
	// GraceFrames is the number of missed frames a track coasts as
	// Tracked before transitioning to NotTracked
	GraceFrames int
	// MaxFramesLost is the number of missed frames before a track is
	// declared Lost and removed
	MaxFramesLost int
	// MaxMatchDistance is the world space gating distance in meters for
	// associating an observation to a track
	MaxMatchDistance float64
	// PositionStd weights the position process noise of the track filter
	PositionStd float32
	// VelocityStd weights the velocity process noise of the track filter
	VelocityStd float32
	// RotationAlpha is the weight of the running rotation when a new
	// observation is blended in, higher is smoother
	RotationAlpha float64
}

// DefaultManagerParams returns the manager defaults tuned for camera
// sources around 30 frames per second
func DefaultManagerParams() ManagerParams {
	return ManagerParams{
		GraceFrames:      5,
		MaxFramesLost:    60,
		MaxMatchDistance: 0.5,
		PositionStd:      1.0 / 20,
		VelocityStd:      1.0 / 160,
		RotationAlpha:    0.6,
	}
}

// Manager maintains the live track set.  Observations are associated to
// tracks of the same target identity by filtered world distance, targets
// seen again within the lost window keep their track ID
type Manager struct {
	// Params holds the manager tuning parameters
	Params ManagerParams

	mu           sync.Mutex
	tracks       []*Track
	trackIDCount int
	callbacks    []func(StatusEvent)
	subs         map[int]chan StatusEvent
	subID        int
}

// compile time check that Manager satisfies the engine's track manager
// contract
var _ planartrack.TrackManager = (*Manager)(nil)

// NewManager initializes and returns a new track Manager
func NewManager(params ManagerParams) *Manager {
	return &Manager{
		Params: params,
		subs:   make(map[int]chan StatusEvent),
	}
}

// Reset clears all track state.  Subscribers stay registered
func (m *Manager) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.tracks = nil
	m.trackIDCount = 0
}

// Tracks returns a snapshot of every live track
func (m *Manager) Tracks() []planartrack.TrackSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.snapshots()
}

// Update advances all tracks by one frame using the given observations
// and returns the state of every live track including those that became
// Lost this frame
func (m *Manager) Update(ts time.Time,
	observations []planartrack.Observation) ([]planartrack.TrackSnapshot, error) {

	m.mu.Lock()

	for _, track := range m.tracks {
		track.predict()
	}

	// bucket tracks and observations by target identity, association
	// only ever happens inside a bucket
	trackBuckets := make(map[string][]*Track)

	for _, track := range m.tracks {
		key := track.Target().Key()
		trackBuckets[key] = append(trackBuckets[key], track)
	}

	obsBuckets := make(map[string][]planartrack.Observation)

	for _, obs := range observations {
		key := obs.Target.Key()
		obsBuckets[key] = append(obsBuckets[key], obs)
	}

	var events []StatusEvent
	matched := make(map[*Track]bool)

	for key, obsList := range obsBuckets {

		tracks := trackBuckets[key]

		if len(tracks) == 0 {
			for _, obs := range obsList {
				track := m.startTrack(obs, ts)
				matched[track] = true
				events = append(events, m.transitionEvent(track, planartrack.StatusNone, ts))
			}
			continue
		}

		// distance gated assignment between the bucket's tracks and
		// observations
		cost := make([][]float64, len(tracks))

		for i, track := range tracks {
			cost[i] = make([]float64, len(obsList))

			for j, obs := range obsList {
				d := r3.Sub(track.position(), obs.WorldPose.Translation)
				cost[i][j] = r3.Norm(d)
			}
		}

		rowsol, colsol, err := solveAssignment(cost, m.Params.MaxMatchDistance)

		if err != nil {
			m.mu.Unlock()
			return nil, fmt.Errorf("association failed for %s: %w", key, err)
		}

		for i, j := range rowsol {

			if j < 0 {
				continue
			}

			track := tracks[i]
			old := track.Status()

			if err := track.update(obsList[j], ts); err != nil {
				m.mu.Unlock()
				return nil, err
			}

			matched[track] = true

			if old != planartrack.StatusTracked {
				events = append(events, m.transitionEvent(track, old, ts))
			}
		}

		for j, sol := range colsol {
			if sol < 0 {
				track := m.startTrack(obsList[j], ts)
				matched[track] = true
				events = append(events, m.transitionEvent(track, planartrack.StatusNone, ts))
			}
		}
	}

	// newly started tracks are already in m.tracks, advance the misses
	// of everything that went unmatched
	var live []*Track

	for _, track := range m.tracks {

		if matched[track] {
			live = append(live, track)
			continue
		}

		track.miss()

		old := track.Status()

		switch {
		case track.framesSinceSeen > m.Params.MaxFramesLost:
			track.status = planartrack.StatusLost
			events = append(events, m.transitionEvent(track, old, ts))

		case old == planartrack.StatusTracked && track.framesSinceSeen > m.Params.GraceFrames:
			track.status = planartrack.StatusNotTracked
			events = append(events, m.transitionEvent(track, old, ts))
		}

		live = append(live, track)
	}

	m.tracks = live

	// report every live track then drop the ones that became Lost
	out := m.snapshots()

	var kept []*Track

	for _, track := range m.tracks {
		if track.Status() != planartrack.StatusLost {
			kept = append(kept, track)
		}
	}

	m.tracks = kept
	m.mu.Unlock()

	m.publish(events)

	return out, nil
}

// startTrack creates and registers a track from an unmatched observation.
// Caller holds the manager lock
func (m *Manager) startTrack(obs planartrack.Observation, ts time.Time) *Track {

	m.trackIDCount++

	track := newTrack(obs, ts, m.trackIDCount,
		m.Params.PositionStd, m.Params.VelocityStd, m.Params.RotationAlpha)

	m.tracks = append(m.tracks, track)

	return track
}

// transitionEvent builds the event for a track's current transition
func (m *Manager) transitionEvent(track *Track, old planartrack.TrackingStatus,
	ts time.Time) StatusEvent {

	return StatusEvent{
		TrackID:   track.TrackID(),
		Target:    track.Target(),
		Old:       old,
		New:       track.Status(),
		Pose:      track.Pose(),
		Timestamp: ts,
	}
}

// snapshots returns the state of every track ordered by track ID.  Caller
// holds the manager lock
func (m *Manager) snapshots() []planartrack.TrackSnapshot {

	out := make([]planartrack.TrackSnapshot, 0, len(m.tracks))

	for _, track := range m.tracks {
		out = append(out, track.Snapshot())
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].TrackID < out[j].TrackID
	})

	return out
}

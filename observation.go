package planartrack

import "time"

// Observation is a single per frame sighting of a registered target with
// an estimated pose.  Observations are transient, they are produced and
// consumed within one Process call
type Observation struct {
	// Target that was sighted
	Target Target
	// Corners of the target in image coordinates
	Corners Quad
	// Pose of the target in camera space
	Pose Pose
	// WorldPose of the target, camera space pose transformed by the
	// frame's camera pose
	WorldPose Pose
	// Confidence of the sighting between 0 and 1
	Confidence float32
}

// Source produces observations of registered targets from camera frames.
// Implementations are the marker detection and image matching pipelines
type Source interface {
	// Observe runs the source on a frame and returns target sightings
	Observe(f *Frame) ([]Observation, error)
	// Kind returns the target kind the source produces
	Kind() TargetKind
}

// TrackSnapshot is the externally visible state of one track after a
// frame update
type TrackSnapshot struct {
	// TrackID is the stable ID assigned when the track was first activated
	TrackID int
	// Target the track follows
	Target Target
	// Status of the track
	Status TrackingStatus
	// Pose is the smoothed world space pose of the target
	Pose Pose
	// Confidence of the most recent sighting
	Confidence float32
	// FramesSinceSeen counts frames since the last sighting, zero while
	// the target is being observed
	FramesSinceSeen int
	// LastSeen is the capture timestamp of the last sighting
	LastSeen time.Time
}

// TrackManager maintains per target identity and status transitions
// across frames
type TrackManager interface {
	// Update advances all tracks by one frame using the given observations
	// and returns the state of every live track
	Update(ts time.Time, observations []Observation) ([]TrackSnapshot, error)
	// Reset clears all track state
	Reset()
}

package tracker

import (
	"fmt"
	"time"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r3"

	planartrack "github.com/vantagecv/go-planartrack"
)

// Track is the live tracking state of one target.  Position is filtered
// by a constant velocity Kalman filter in world space and orientation is
// smoothed by blending each new observation into the running rotation
type Track struct {
	// Kalman filter used for tracking
	kalmanFilter *KalmanFilter
	// Mean state vector
	mean StateMean
	// Covariance matrix
	covariance StateCov
	// Target the track follows
	target planartrack.Target
	// Smoothed world pose
	pose planartrack.Pose
	// Current tracking status
	status planartrack.TrackingStatus
	// Detection confidence of the last sighting
	confidence float32
	// Unique ID for the track
	trackID int
	// Frames elapsed since the last sighting
	framesSinceSeen int
	// Number of sightings the track has accumulated
	hits int
	// Capture time of the last sighting
	lastSeen time.Time
	// Weight of the running rotation when blending in a new observation
	rotationAlpha float64
}

// newTrack creates a track from a first observation
func newTrack(obs planartrack.Observation, ts time.Time, trackID int,
	positionStd, velocityStd float32, rotationAlpha float64) *Track {

	t := &Track{
		kalmanFilter:  NewKalmanFilter(positionStd, velocityStd),
		mean:          make(StateMean, stateDim),
		covariance:    StateCov{mat.NewDense(stateDim, stateDim, nil)},
		target:        obs.Target,
		pose:          obs.WorldPose,
		status:        planartrack.StatusTracked,
		confidence:    obs.Confidence,
		trackID:       trackID,
		hits:          1,
		lastSeen:      ts,
		rotationAlpha: rotationAlpha,
	}

	t.kalmanFilter.Initiate(t.mean, &t.covariance, measurementOf(obs))

	return t
}

// measurementOf converts an observation's world position into a filter
// measurement
func measurementOf(obs planartrack.Observation) Measurement {
	return Measurement{
		float32(obs.WorldPose.Translation.X),
		float32(obs.WorldPose.Translation.Y),
		float32(obs.WorldPose.Translation.Z),
	}
}

// TrackID returns the unique ID for the track
func (t *Track) TrackID() int {
	return t.trackID
}

// Target returns the target the track follows
func (t *Track) Target() planartrack.Target {
	return t.target
}

// Status returns the current tracking status
func (t *Track) Status() planartrack.TrackingStatus {
	return t.status
}

// Pose returns the smoothed world pose of the target
func (t *Track) Pose() planartrack.Pose {
	return t.pose
}

// Hits returns the number of sightings the track has accumulated
func (t *Track) Hits() int {
	return t.hits
}

// predict advances the filter by one frame
func (t *Track) predict() {

	// coasting tracks keep position but shed velocity so a stale motion
	// estimate does not drag the pose away from the last sighting
	if t.status != planartrack.StatusTracked {
		for i := measDim; i < stateDim; i++ {
			t.mean[i] = 0
		}
	}

	t.kalmanFilter.Predict(t.mean, &t.covariance)
	t.updatePose()
}

// position returns the filtered world position
func (t *Track) position() r3.Vec {
	return r3.Vec{
		X: float64(t.mean[0]),
		Y: float64(t.mean[1]),
		Z: float64(t.mean[2]),
	}
}

// update corrects the track with a new observation
func (t *Track) update(obs planartrack.Observation, ts time.Time) error {

	err := t.kalmanFilter.Update(t.mean, &t.covariance, measurementOf(obs))

	if err != nil {
		return fmt.Errorf("error updating track %d: %w", t.trackID, err)
	}

	// blend the observed rotation into the running one, re-acquired
	// tracks snap to the observation instead of blending across the gap
	if t.framesSinceSeen > 0 {
		t.pose.Rotation = obs.WorldPose.Rotation
	} else {
		a := planartrack.Pose{Rotation: t.pose.Rotation}
		b := planartrack.Pose{Rotation: obs.WorldPose.Rotation}
		t.pose.Rotation = a.Interpolate(b, 1-t.rotationAlpha).Rotation
	}

	t.updatePose()

	t.status = planartrack.StatusTracked
	t.confidence = obs.Confidence
	t.framesSinceSeen = 0
	t.hits++
	t.lastSeen = ts

	return nil
}

// miss records a frame without a sighting
func (t *Track) miss() {
	t.framesSinceSeen++
}

// updatePose copies the filtered position into the track pose
func (t *Track) updatePose() {
	t.pose.Translation = t.position()
}

// Snapshot returns the externally visible track state
func (t *Track) Snapshot() planartrack.TrackSnapshot {
	return planartrack.TrackSnapshot{
		TrackID:         t.trackID,
		Target:          t.target,
		Status:          t.status,
		Pose:            t.pose,
		Confidence:      t.confidence,
		FramesSinceSeen: t.framesSinceSeen,
		LastSeen:        t.lastSeen,
	}
}

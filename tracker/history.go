package tracker

import (
	"sync"

	"gonum.org/v1/gonum/spatial/r3"

	planartrack "github.com/vantagecv/go-planartrack"
)

// trackHistory holds the recent positions of one track
type trackHistory struct {
	points []r3.Vec
}

// PoseTrail keeps a bounded history of world positions per track used for
// drawing motion trails
type PoseTrail struct {
	// size is the maximum number of most recent points to keep in history
	size int
	// history of tracked positions keyed by track ID
	history map[int]*trackHistory
	sync.Mutex
}

// NewPoseTrail returns a new trail history instance.  Size specifies the
// maximum number of recent positions kept per track
func NewPoseTrail(size int) *PoseTrail {
	return &PoseTrail{
		size:    size,
		history: make(map[int]*trackHistory),
	}
}

// Reset clears all history
func (t *PoseTrail) Reset() {
	t.Lock()
	defer t.Unlock()

	t.history = make(map[int]*trackHistory)
}

// Add appends the snapshot's position to its track history.  Lost tracks
// have their history dropped
func (t *PoseTrail) Add(snap planartrack.TrackSnapshot) {
	t.Lock()
	defer t.Unlock()

	if snap.Status == planartrack.StatusLost {
		delete(t.history, snap.TrackID)
		return
	}

	if _, exists := t.history[snap.TrackID]; !exists {
		t.history[snap.TrackID] = &trackHistory{}
	}

	hist := t.history[snap.TrackID]
	hist.points = append(hist.points, snap.Pose.Translation)

	// drop the oldest point once the history is full
	if len(hist.points) > t.size {
		hist.points = hist.points[1:]
	}
}

// Points gets the position history for a specific track ID
func (t *PoseTrail) Points(id int) []r3.Vec {
	t.Lock()
	defer t.Unlock()

	if hist, exists := t.history[id]; exists {
		return hist.points
	}

	// no history yet
	return nil
}

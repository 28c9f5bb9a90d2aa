package stream

import (
	"encoding/json"
	"time"

	planartrack "github.com/vantagecv/go-planartrack"
	"github.com/vantagecv/go-planartrack/tracker"
)

// poseJSON is the wire form of a pose, translation in meters and
// rotation as a unit quaternion
type poseJSON struct {
	X  float64 `json:"x"`
	Y  float64 `json:"y"`
	Z  float64 `json:"z"`
	QW float64 `json:"qw"`
	QX float64 `json:"qx"`
	QY float64 `json:"qy"`
	QZ float64 `json:"qz"`
}

func encodePose(p planartrack.Pose) poseJSON {
	return poseJSON{
		X:  p.Translation.X,
		Y:  p.Translation.Y,
		Z:  p.Translation.Z,
		QW: p.Rotation.Real,
		QX: p.Rotation.Imag,
		QY: p.Rotation.Jmag,
		QZ: p.Rotation.Kmag,
	}
}

// statusMessage reports one track status transition
type statusMessage struct {
	Type      string   `json:"type"`
	TrackID   int      `json:"trackId"`
	Target    string   `json:"target"`
	Old       string   `json:"old"`
	New       string   `json:"new"`
	Pose      poseJSON `json:"pose"`
	Timestamp int64    `json:"timestamp"`
}

// trackJSON is the wire form of one track snapshot
type trackJSON struct {
	TrackID         int      `json:"trackId"`
	Target          string   `json:"target"`
	Status          string   `json:"status"`
	Pose            poseJSON `json:"pose"`
	Confidence      float32  `json:"confidence"`
	FramesSinceSeen int      `json:"framesSinceSeen"`
}

// tracksMessage reports the tracks visible after one frame update
type tracksMessage struct {
	Type      string      `json:"type"`
	Timestamp int64       `json:"timestamp"`
	Tracks    []trackJSON `json:"tracks"`
}

// EncodeStatusEvent serialises a status transition for broadcast
func EncodeStatusEvent(ev tracker.StatusEvent) ([]byte, error) {
	return json.Marshal(statusMessage{
		Type:      "status",
		TrackID:   ev.TrackID,
		Target:    ev.Target.Key(),
		Old:       ev.Old.String(),
		New:       ev.New.String(),
		Pose:      encodePose(ev.Pose),
		Timestamp: ev.Timestamp.UnixMilli(),
	})
}

// EncodeSnapshots serialises the tracks of one frame update for broadcast
func EncodeSnapshots(ts time.Time, snapshots []planartrack.TrackSnapshot) ([]byte, error) {

	tracks := make([]trackJSON, len(snapshots))

	for i, snap := range snapshots {
		tracks[i] = trackJSON{
			TrackID:         snap.TrackID,
			Target:          snap.Target.Key(),
			Status:          snap.Status.String(),
			Pose:            encodePose(snap.Pose),
			Confidence:      snap.Confidence,
			FramesSinceSeen: snap.FramesSinceSeen,
		}
	}

	return json.Marshal(tracksMessage{
		Type:      "tracks",
		Timestamp: ts.UnixMilli(),
		Tracks:    tracks,
	})
}

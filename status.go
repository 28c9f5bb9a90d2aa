package planartrack

import "fmt"

// TrackingStatus represents the tracking state of a target
type TrackingStatus int

const (
	// StatusNone means the target has never been sighted
	StatusNone TrackingStatus = 0
	// StatusTracked means the target was observed recently and its pose
	// is current
	StatusTracked TrackingStatus = 1
	// StatusNotTracked means the target has been missed for a short period
	// and its pose is extrapolated from the last sightings
	StatusNotTracked TrackingStatus = 2
	// StatusLost means the target has been missing long enough that its
	// track is abandoned
	StatusLost TrackingStatus = 3
)

// String returns a readable name of the tracking status
func (s TrackingStatus) String() string {
	switch s {
	case StatusNone:
		return "None"
	case StatusTracked:
		return "Tracked"
	case StatusNotTracked:
		return "NotTracked"
	case StatusLost:
		return "Lost"
	default:
		return fmt.Sprintf("unknown status %d", int(s))
	}
}

package tracker

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"

	planartrack "github.com/vantagecv/go-planartrack"
)

// testParams returns manager parameters with short windows so lifecycle
// tests stay compact
func testParams() ManagerParams {
	p := DefaultManagerParams()
	p.GraceFrames = 2
	p.MaxFramesLost = 5
	return p
}

func testTarget(t *testing.T, id int) planartrack.Target {
	target, err := planartrack.NewMarkerTarget("4x4_50", id, 0.1)
	require.NoError(t, err)
	return target
}

func obsAt(target planartrack.Target, pos r3.Vec) planartrack.Observation {
	return planartrack.Observation{
		Target:     target,
		Pose:       planartrack.NewPose(pos, planartrack.IdentityPose().Rotation),
		WorldPose:  planartrack.NewPose(pos, planartrack.IdentityPose().Rotation),
		Confidence: 0.9,
	}
}

func TestManagerLifecycle(t *testing.T) {

	m := NewManager(testParams())
	target := testTarget(t, 7)

	var events []StatusEvent

	m.OnStatusChange(func(ev StatusEvent) {
		events = append(events, ev)
	})

	ts := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	pos := r3.Vec{X: 0, Y: 0, Z: 1}

	// sighted for three frames
	for i := 0; i < 3; i++ {
		snaps, err := m.Update(ts, []planartrack.Observation{obsAt(target, pos)})
		require.NoError(t, err)
		require.Len(t, snaps, 1)

		assert.Equal(t, 1, snaps[0].TrackID)
		assert.Equal(t, planartrack.StatusTracked, snaps[0].Status)
		assert.Equal(t, 0, snaps[0].FramesSinceSeen)
		assert.Equal(t, ts, snaps[0].LastSeen)

		ts = ts.Add(33 * time.Millisecond)
	}

	// within the grace window the track coasts as Tracked
	for i := 1; i <= 2; i++ {
		snaps, err := m.Update(ts, nil)
		require.NoError(t, err)
		require.Len(t, snaps, 1)

		assert.Equal(t, planartrack.StatusTracked, snaps[0].Status)
		assert.Equal(t, i, snaps[0].FramesSinceSeen)

		ts = ts.Add(33 * time.Millisecond)
	}

	// the third miss exceeds the grace window
	snaps, err := m.Update(ts, nil)
	require.NoError(t, err)
	require.Len(t, snaps, 1)
	assert.Equal(t, planartrack.StatusNotTracked, snaps[0].Status)

	// keep missing until the track is lost, the final update reports the
	// Lost state once
	for i := 4; i <= 5; i++ {
		ts = ts.Add(33 * time.Millisecond)
		snaps, err = m.Update(ts, nil)
		require.NoError(t, err)
		require.Len(t, snaps, 1)
		assert.Equal(t, planartrack.StatusNotTracked, snaps[0].Status)
	}

	ts = ts.Add(33 * time.Millisecond)
	snaps, err = m.Update(ts, nil)
	require.NoError(t, err)
	require.Len(t, snaps, 1)
	assert.Equal(t, planartrack.StatusLost, snaps[0].Status)

	// the lost track is gone on the next frame
	ts = ts.Add(33 * time.Millisecond)
	snaps, err = m.Update(ts, nil)
	require.NoError(t, err)
	assert.Empty(t, snaps)

	// full transition sequence
	require.Len(t, events, 3)
	assert.Equal(t, planartrack.StatusNone, events[0].Old)
	assert.Equal(t, planartrack.StatusTracked, events[0].New)
	assert.Equal(t, planartrack.StatusTracked, events[1].Old)
	assert.Equal(t, planartrack.StatusNotTracked, events[1].New)
	assert.Equal(t, planartrack.StatusNotTracked, events[2].Old)
	assert.Equal(t, planartrack.StatusLost, events[2].New)

	for _, ev := range events {
		assert.Equal(t, 1, ev.TrackID)
		assert.Equal(t, target.Key(), ev.Target.Key())
	}
}

func TestManagerReacquireKeepsTrackID(t *testing.T) {

	m := NewManager(testParams())
	target := testTarget(t, 3)

	ts := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	pos := r3.Vec{X: 0.2, Y: -0.1, Z: 0.8}

	_, err := m.Update(ts, []planartrack.Observation{obsAt(target, pos)})
	require.NoError(t, err)

	// miss past the grace window
	for i := 0; i < 3; i++ {
		ts = ts.Add(33 * time.Millisecond)
		snaps, err := m.Update(ts, nil)
		require.NoError(t, err)
		require.Len(t, snaps, 1)
	}

	var events []StatusEvent

	m.OnStatusChange(func(ev StatusEvent) {
		events = append(events, ev)
	})

	// reappears near the old position
	ts = ts.Add(33 * time.Millisecond)
	snaps, err := m.Update(ts, []planartrack.Observation{obsAt(target, pos)})
	require.NoError(t, err)
	require.Len(t, snaps, 1)

	assert.Equal(t, 1, snaps[0].TrackID)
	assert.Equal(t, planartrack.StatusTracked, snaps[0].Status)
	assert.Equal(t, 0, snaps[0].FramesSinceSeen)

	require.Len(t, events, 1)
	assert.Equal(t, planartrack.StatusNotTracked, events[0].Old)
	assert.Equal(t, planartrack.StatusTracked, events[0].New)
}

func TestManagerSameIdentityAssignment(t *testing.T) {

	m := NewManager(testParams())

	// the same physical marker printed twice, both sightings share the
	// target identity and are told apart by position
	target := testTarget(t, 11)

	left := r3.Vec{X: -1, Y: 0, Z: 1}
	right := r3.Vec{X: 1, Y: 0, Z: 1}

	ts := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

	snaps, err := m.Update(ts, []planartrack.Observation{
		obsAt(target, left),
		obsAt(target, right),
	})
	require.NoError(t, err)
	require.Len(t, snaps, 2)

	leftID := snaps[0].TrackID
	if snaps[0].Pose.Translation.X > 0 {
		leftID = snaps[1].TrackID
	}

	// next frame the observations arrive in the opposite order, each
	// track must stay with its own position
	ts = ts.Add(33 * time.Millisecond)

	snaps, err = m.Update(ts, []planartrack.Observation{
		obsAt(target, right),
		obsAt(target, left),
	})
	require.NoError(t, err)
	require.Len(t, snaps, 2)

	for _, snap := range snaps {
		if snap.TrackID == leftID {
			assert.Less(t, snap.Pose.Translation.X, 0.0)
		} else {
			assert.Greater(t, snap.Pose.Translation.X, 0.0)
		}
	}
}

func TestManagerDistinctTargetsDoNotAssociate(t *testing.T) {

	m := NewManager(testParams())

	a := testTarget(t, 1)
	b := testTarget(t, 2)

	ts := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	pos := r3.Vec{X: 0, Y: 0, Z: 1}

	_, err := m.Update(ts, []planartrack.Observation{obsAt(a, pos)})
	require.NoError(t, err)

	// a different marker at the very same position starts its own track
	ts = ts.Add(33 * time.Millisecond)
	snaps, err := m.Update(ts, []planartrack.Observation{obsAt(b, pos)})
	require.NoError(t, err)
	require.Len(t, snaps, 2)

	assert.NotEqual(t, snaps[0].TrackID, snaps[1].TrackID)
}

func TestManagerSubscribe(t *testing.T) {

	m := NewManager(testParams())
	target := testTarget(t, 5)

	ch, cancel := m.Subscribe(4)
	defer cancel()

	ts := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

	_, err := m.Update(ts, []planartrack.Observation{
		obsAt(target, r3.Vec{Z: 1}),
	})
	require.NoError(t, err)

	select {
	case ev := <-ch:
		assert.Equal(t, planartrack.StatusTracked, ev.New)
		assert.Equal(t, 1, ev.TrackID)
	default:
		t.Fatal("expected a status event on the subscriber channel")
	}
}

func TestManagerReset(t *testing.T) {

	m := NewManager(testParams())
	target := testTarget(t, 9)

	ts := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

	_, err := m.Update(ts, []planartrack.Observation{
		obsAt(target, r3.Vec{Z: 1}),
	})
	require.NoError(t, err)

	m.Reset()
	assert.Empty(t, m.Tracks())

	// track IDs restart after a reset
	ts = ts.Add(33 * time.Millisecond)
	snaps, err := m.Update(ts, []planartrack.Observation{
		obsAt(target, r3.Vec{Z: 1}),
	})
	require.NoError(t, err)
	require.Len(t, snaps, 1)
	assert.Equal(t, 1, snaps[0].TrackID)
}

func TestPoseTrail(t *testing.T) {

	trail := NewPoseTrail(3)

	snap := planartrack.TrackSnapshot{
		TrackID: 1,
		Status:  planartrack.StatusTracked,
	}

	for i := 0; i < 5; i++ {
		snap.Pose.Translation = r3.Vec{X: float64(i)}
		trail.Add(snap)
	}

	points := trail.Points(1)
	require.Len(t, points, 3)

	// oldest points were dropped
	assert.Equal(t, 2.0, points[0].X)
	assert.Equal(t, 4.0, points[2].X)

	// losing the track clears its history
	snap.Status = planartrack.StatusLost
	trail.Add(snap)
	assert.Nil(t, trail.Points(1))
}

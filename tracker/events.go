package tracker

import (
	"time"

	planartrack "github.com/vantagecv/go-planartrack"
)

// StatusEvent is emitted when a track changes tracking status
type StatusEvent struct {
	// TrackID of the track that changed
	TrackID int
	// Target the track follows
	Target planartrack.Target
	// Old status before the transition
	Old planartrack.TrackingStatus
	// New status after the transition
	New planartrack.TrackingStatus
	// Pose is the smoothed world pose at transition time
	Pose planartrack.Pose
	// Timestamp of the frame that caused the transition
	Timestamp time.Time
}

// OnStatusChange registers a callback invoked after every Update for each
// status transition.  Callbacks run on the Update caller's goroutine and
// must not block
func (m *Manager) OnStatusChange(fn func(StatusEvent)) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.callbacks = append(m.callbacks, fn)
}

// Subscribe returns a channel receiving status events and a cancel
// function releasing it.  Events are dropped for subscribers that fall
// behind the buffer
func (m *Manager) Subscribe(buffer int) (<-chan StatusEvent, func()) {

	if buffer < 1 {
		buffer = 1
	}

	ch := make(chan StatusEvent, buffer)

	m.mu.Lock()
	m.subID++
	id := m.subID
	m.subs[id] = ch
	m.mu.Unlock()

	cancel := func() {
		m.mu.Lock()
		defer m.mu.Unlock()

		if sub, ok := m.subs[id]; ok {
			delete(m.subs, id)
			close(sub)
		}
	}

	return ch, cancel
}

// publish delivers events to callbacks and subscribers.  Called without
// the manager lock held
func (m *Manager) publish(events []StatusEvent) {

	if len(events) == 0 {
		return
	}

	m.mu.Lock()
	callbacks := make([]func(StatusEvent), len(m.callbacks))
	copy(callbacks, m.callbacks)

	subs := make([]chan StatusEvent, 0, len(m.subs))

	for _, ch := range m.subs {
		subs = append(subs, ch)
	}
	m.mu.Unlock()

	for _, ev := range events {

		for _, fn := range callbacks {
			fn(ev)
		}

		for _, ch := range subs {
			select {
			case ch <- ev:
			default:
				// subscriber is full, drop rather than stall the pipeline
			}
		}
	}
}

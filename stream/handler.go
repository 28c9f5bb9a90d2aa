package stream

import (
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	planartrack "github.com/vantagecv/go-planartrack"
	"github.com/vantagecv/go-planartrack/tracker"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Handler upgrades HTTP requests to websocket subscriptions on the hub.
// Subscribers only receive, any message they send resets the read
// deadline
func Handler(hub *Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {

		conn, err := upgrader.Upgrade(w, r, nil)

		if err != nil {
			log.Printf("websocket upgrade failed: %v", err)
			return
		}

		conn.SetReadLimit(512)
		conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		conn.SetPongHandler(func(appData string) error {
			conn.SetReadDeadline(time.Now().Add(60 * time.Second))
			return nil
		})

		client := hub.Register(conn)
		defer hub.Unregister(client)

		for {
			_, _, err := conn.ReadMessage()

			if err != nil {
				return
			}

			conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		}
	}
}

// AttachManager broadcasts the manager's status transitions to the hub
// until the returned cancel function is called
func AttachManager(hub *Hub, m *tracker.Manager) func() {

	events, cancel := m.Subscribe(64)

	go func() {
		for ev := range events {

			buf, err := EncodeStatusEvent(ev)

			if err != nil {
				log.Printf("failed to encode status event: %v", err)
				continue
			}

			hub.Broadcast(buf)
		}
	}()

	return cancel
}

// BroadcastSnapshots sends the tracks of one frame update to the hub
func BroadcastSnapshots(hub *Hub, ts time.Time,
	snapshots []planartrack.TrackSnapshot) {

	if hub.ClientCount() == 0 {
		return
	}

	buf, err := EncodeSnapshots(ts, snapshots)

	if err != nil {
		log.Printf("failed to encode snapshots: %v", err)
		return
	}

	hub.Broadcast(buf)
}

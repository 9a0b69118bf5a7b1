package room

import (
	"log"
	"sync"

	"github.com/dhruvxsingh/Converza/internal/metrics"
)

// Sender is the write side of a live client connection. The ws package's
// Connection implements it; tests substitute in-memory fakes.
type Sender interface {
	WriteMessage(data []byte) error
	Close() error
}

// member ties one connection to its owning user. A user may appear more
// than once in a room when connected from multiple devices.
type member struct {
	userID int64
	sender Sender
}

// entry holds the live connections for one room key, plus the lock that
// serializes ordered publishes (persist-then-broadcast) for the room.
type entry struct {
	members []member
	sendMu  sync.Mutex
}

// Registry is the process-scoped mapping from room keys to their live
// connections. It is created once at service start and all access goes
// through its methods; the room map and every entry's member set are
// guarded by a single mutex. Broadcasts never hold that mutex while
// writing to sockets, so a slow or dead peer cannot stall other rooms.
type Registry struct {
	mu    sync.Mutex
	rooms map[Key]*entry
}

// NewRegistry returns an empty Registry ready for use.
func NewRegistry() *Registry {
	return &Registry{rooms: make(map[Key]*entry)}
}

// Join registers a connection under the room key, creating the room entry
// on first join. The caller must have completed the protocol-level accept
// before calling Join.
func (r *Registry) Join(key Key, userID int64, s Sender) {
	r.mu.Lock()
	e, ok := r.rooms[key]
	if !ok {
		e = &entry{}
		r.rooms[key] = e
	}
	e.members = append(e.members, member{userID: userID, sender: s})
	metrics.RoomsActive.Set(float64(len(r.rooms)))
	r.mu.Unlock()
}

// Leave removes exactly the matching (userID, sender) pair from the room,
// leaving the user's other devices untouched. If the room entry becomes
// empty it is deleted from the registry. Leave is idempotent: leaving an
// already-removed connection, or an unknown room, is a no-op.
func (r *Registry) Leave(key Key, userID int64, s Sender) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.rooms[key]
	if !ok {
		return
	}
	for i, m := range e.members {
		if m.userID == userID && m.sender == s {
			e.members = append(e.members[:i], e.members[i+1:]...)
			break
		}
	}
	if len(e.members) == 0 {
		delete(r.rooms, key)
		metrics.RoomsActive.Set(float64(len(r.rooms)))
	}
}

// Broadcast sends payload to every connection currently in the room,
// skipping connections owned by excludeUserID (0 means no exclusion).
// Membership is snapshotted under the registry lock so the send loop
// observes a consistent view. A failed send never aborts delivery to the
// remaining connections; failed connections are evicted afterwards with a
// best-effort Leave and closed, which also unblocks their read loops.
func (r *Registry) Broadcast(key Key, payload []byte, excludeUserID int64) {
	r.mu.Lock()
	e, ok := r.rooms[key]
	if !ok {
		r.mu.Unlock()
		return
	}
	snapshot := make([]member, len(e.members))
	copy(snapshot, e.members)
	r.mu.Unlock()

	var failed []member
	for _, m := range snapshot {
		if excludeUserID != 0 && m.userID == excludeUserID {
			continue
		}
		if err := m.sender.WriteMessage(payload); err != nil {
			log.Printf("room: send failed room=%s user=%d: %v", key, m.userID, err)
			metrics.SendErrors.Inc()
			failed = append(failed, m)
		}
	}

	for _, m := range failed {
		r.Leave(key, m.userID, m.sender)
		_ = m.sender.Close()
	}
}

// WithSendLock runs fn while holding the room's publish-ordering lock.
// The dispatch loop wraps each persist-then-broadcast pair in it so that
// messages reach every connection in the same order the store assigned
// them, even with concurrent senders in one room. The lock is never held
// while acquiring the registry mutex in the opposite order, so a
// broadcasting loop and a leaving loop cannot deadlock.
//
// The room entry may be reclaimed and recreated between the map lookup
// and the lock acquisition; the loop re-checks the entry under the lock
// and retries so fn always runs under the room's current lock.
func (r *Registry) WithSendLock(key Key, fn func()) {
	for {
		r.mu.Lock()
		e, ok := r.rooms[key]
		r.mu.Unlock()

		if !ok {
			// Room already reclaimed; nothing to order against.
			fn()
			return
		}

		e.sendMu.Lock()
		r.mu.Lock()
		current := r.rooms[key]
		r.mu.Unlock()
		if current == e {
			defer e.sendMu.Unlock()
			fn()
			return
		}
		e.sendMu.Unlock()
	}
}

// Rooms returns the number of rooms currently holding at least one
// connection.
func (r *Registry) Rooms() int {
	r.mu.Lock()
	n := len(r.rooms)
	r.mu.Unlock()
	return n
}

// Connections returns the total number of connections across all rooms.
func (r *Registry) Connections() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	total := 0
	for _, e := range r.rooms {
		total += len(e.members)
	}
	return total
}

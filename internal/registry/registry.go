package registry

import (
	"sync"

	"chat-relay/internal/models"
)

type member struct {
	connID string
	name   string
}

// room holds the membership of one room. The members slice preserves join
// order so presence lists stay stable; index is connID -> slice position.
type room struct {
	members []member
	index   map[string]int
}

// Registry is the per-instance source of truth for which connection sits in
// which room. It is not shared across relay instances; cross-instance
// consistency happens only through bus propagation.
//
// Invariant: a room with zero members never exists in the map.
type Registry struct {
	mu    sync.Mutex
	rooms map[string]*room
}

func New() *Registry {
	return &Registry{rooms: make(map[string]*room)}
}

// Join inserts the connection into the room, creating the room if absent.
// Rejoining the same room is not an error: the stored display name is
// updated in place and the member keeps its original position.
func (r *Registry) Join(roomID, connID, name string) models.PresenceSnapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	rm, ok := r.rooms[roomID]
	if !ok {
		rm = &room{index: make(map[string]int)}
		r.rooms[roomID] = rm
	}

	if i, ok := rm.index[connID]; ok {
		rm.members[i].name = name
	} else {
		rm.index[connID] = len(rm.members)
		rm.members = append(rm.members, member{connID: connID, name: name})
	}

	return snapshotLocked(roomID, rm)
}

// Leave removes the connection from whichever room holds it and reports the
// room key plus the post-removal snapshot. A room emptied by the removal is
// deleted entirely. ok is false when the connection held no membership, in
// which case nothing changed.
func (r *Registry) Leave(connID string) (string, models.PresenceSnapshot, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for roomID, rm := range r.rooms {
		i, ok := rm.index[connID]
		if !ok {
			continue
		}

		rm.members = append(rm.members[:i], rm.members[i+1:]...)
		delete(rm.index, connID)
		for j := i; j < len(rm.members); j++ {
			rm.index[rm.members[j].connID] = j
		}

		if len(rm.members) == 0 {
			delete(r.rooms, roomID)
			return roomID, models.PresenceSnapshot{RoomID: roomID, UserList: []string{}}, true
		}
		return roomID, snapshotLocked(roomID, rm), true
	}

	return "", models.PresenceSnapshot{}, false
}

// Snapshot returns the current presence of a room without mutating anything.
// An unknown room yields an empty snapshot, not an error.
func (r *Registry) Snapshot(roomID string) models.PresenceSnapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	rm, ok := r.rooms[roomID]
	if !ok {
		return models.PresenceSnapshot{RoomID: roomID, UserList: []string{}}
	}
	return snapshotLocked(roomID, rm)
}

// Members returns the connection IDs currently in the room, in join order.
func (r *Registry) Members(roomID string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	rm, ok := r.rooms[roomID]
	if !ok {
		return nil
	}
	ids := make([]string, len(rm.members))
	for i, m := range rm.members {
		ids[i] = m.connID
	}
	return ids
}

// RoomCount reports how many non-empty rooms exist on this instance.
func (r *Registry) RoomCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.rooms)
}

func snapshotLocked(roomID string, rm *room) models.PresenceSnapshot {
	names := make([]string, len(rm.members))
	for i, m := range rm.members {
		names[i] = m.name
	}
	return models.PresenceSnapshot{RoomID: roomID, UserCount: len(names), UserList: names}
}

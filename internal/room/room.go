package room

import (
	"github.com/samber/lo"
)

// A live session on one store: the connections currently viewing it.
// Not safe for concurrent use; the Registry serializes access.
type Room struct {
	ID       string
	capacity int
	members  map[string]struct{}
}

// Creates an empty room with the given ID
func newRoom(id string, capacity int) *Room {
	return &Room{
		ID:       id,
		capacity: capacity,
		members:  make(map[string]struct{}, capacity),
	}
}

// Adds a connection unless the room is full
func (r *Room) admit(connID string) bool {
	if _, ok := r.members[connID]; ok {
		return true
	}
	if len(r.members) >= r.capacity {
		return false
	}
	r.members[connID] = struct{}{}
	return true
}

// Removes a connection; reports whether it was a member
func (r *Room) remove(connID string) bool {
	if _, ok := r.members[connID]; !ok {
		return false
	}
	delete(r.members, connID)
	return true
}

func (r *Room) has(connID string) bool {
	_, ok := r.members[connID]
	return ok
}

func (r *Room) size() int {
	return len(r.members)
}

// Returns a copy of the member IDs
func (r *Room) memberIDs() []string {
	return lo.Keys(r.members)
}

package room

import (
	"sync"

	"github.com/samber/lo"
)

// DefaultCapacity is the number of participants a store room admits.
const DefaultCapacity = 2

// Why a join was turned away
type Reason string

const CapacityExceeded Reason = "CAPACITY_EXCEEDED"

// Outcome of a join attempt. A rejection is a normal result, not an error.
type JoinResult struct {
	Accepted bool
	Reason   Reason
	// Members in the target room after the attempt
	Count int
	// Room the connection was moved out of, if any, and its remaining size
	Previous      string
	PreviousCount int
}

// Registry is the single source of truth for which connection is in which
// room. Every mutation happens under one lock, so check-and-admit is atomic
// with respect to concurrent leaves and joins.
type Registry struct {
	capacity int

	mu       sync.Mutex
	rooms    map[string]*Room
	location map[string]string // connection -> room
}

func NewRegistry(capacity int) *Registry {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Registry{
		capacity: capacity,
		rooms:    make(map[string]*Room),
		location: make(map[string]string),
	}
}

func (r *Registry) Capacity() int {
	return r.capacity
}

// Join admits connID to roomID if there is room for it. A connection that
// is in another room leaves it first.
func (r *Registry) Join(roomID, connID string) JoinResult {
	r.mu.Lock()
	defer r.mu.Unlock()

	var result JoinResult
	if current, ok := r.location[connID]; ok {
		if current == roomID {
			return JoinResult{Accepted: true, Count: r.rooms[roomID].size()}
		}
		result.Previous = current
		result.PreviousCount = r.removeLocked(current, connID)
	}

	rm, ok := r.rooms[roomID]
	if !ok {
		rm = newRoom(roomID, r.capacity)
	}

	if !rm.admit(connID) {
		result.Reason = CapacityExceeded
		result.Count = rm.size()
		return result
	}

	// Rooms exist only while they have members
	r.rooms[roomID] = rm
	r.location[connID] = roomID
	result.Accepted = true
	result.Count = rm.size()
	return result
}

// Leave removes connID from roomID. Leaving a room one is not in is a no-op.
// Returns the remaining member count and whether membership changed.
func (r *Registry) Leave(roomID, connID string) (int, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if current, ok := r.location[connID]; !ok || current != roomID {
		return r.countLocked(roomID), false
	}
	return r.removeLocked(roomID, connID), true
}

// Disconnect removes connID from whichever room holds it.
func (r *Registry) Disconnect(connID string) (roomID string, count int, changed bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	roomID, ok := r.location[connID]
	if !ok {
		return "", 0, false
	}
	return roomID, r.removeLocked(roomID, connID), true
}

// Returns the current member count; 0 for unknown rooms
func (r *Registry) ActiveCount(roomID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.countLocked(roomID)
}

// Members returns a copy of the connection IDs in roomID.
func (r *Registry) Members(roomID string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	rm, ok := r.rooms[roomID]
	if !ok {
		return nil
	}
	return rm.memberIDs()
}

// IsMember reports whether connID currently occupies roomID.
func (r *Registry) IsMember(roomID, connID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	rm, ok := r.rooms[roomID]
	return ok && rm.has(connID)
}

// RoomOf returns the room connID occupies.
func (r *Registry) RoomOf(connID string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	roomID, ok := r.location[connID]
	return roomID, ok
}

// Snapshot returns member counts for all non-empty rooms.
func (r *Registry) Snapshot() map[string]int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return lo.MapValues(r.rooms, func(rm *Room, _ string) int { return rm.size() })
}

func (r *Registry) RoomCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.rooms)
}

func (r *Registry) ConnectionCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.location)
}

func (r *Registry) countLocked(roomID string) int {
	if rm, ok := r.rooms[roomID]; ok {
		return rm.size()
	}
	return 0
}

func (r *Registry) removeLocked(roomID, connID string) int {
	delete(r.location, connID)

	rm, ok := r.rooms[roomID]
	if !ok {
		return 0
	}
	rm.remove(connID)
	if rm.size() == 0 {
		delete(r.rooms, roomID)
		return 0
	}
	return rm.size()
}

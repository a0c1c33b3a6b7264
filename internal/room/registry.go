// Package room keeps the in-memory table of chat rooms.
//
// The registry owns its own lock. All membership checks and mutations happen
// inside one critical section, so two concurrent joins can never both observe
// a free slot when only one remains.
package room

import (
	"log/slog"
	"sort"
	"sync"
	"time"
)

// Options configures a Registry.
type Options struct {
	// Capacity is the maximum members per room. Zero means DefaultCapacity.
	Capacity int

	// RemoveOnEmpty deletes a room the moment its last member leaves.
	// When false, empty rooms stay registered until Sweep removes them.
	RemoveOnEmpty bool

	// Timeout is how long an empty room may linger, measured from CreatedAt.
	Timeout time.Duration

	// Now overrides the clock. Nil means time.Now.
	Now func() time.Time

	Logger *slog.Logger
}

// Registry is the room table.
type Registry struct {
	mu    sync.Mutex
	rooms map[string]*Room

	capacity      int
	removeOnEmpty bool
	timeout       time.Duration
	now           func() time.Time
	log           *slog.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(opts Options) *Registry {
	if opts.Capacity <= 0 {
		opts.Capacity = DefaultCapacity
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Registry{
		rooms:         make(map[string]*Room),
		capacity:      opts.Capacity,
		removeOnEmpty: opts.RemoveOnEmpty,
		timeout:       opts.Timeout,
		now:           opts.Now,
		log:           opts.Logger.With("component", "room"),
	}
}

// Capacity returns the configured members-per-room limit.
func (r *Registry) Capacity() int {
	return r.capacity
}

// RemoveOnEmpty reports whether rooms are deleted as soon as they empty.
func (r *Registry) RemoveOnEmpty() bool {
	return r.removeOnEmpty
}

// CreateOrGet returns the room with the given ID, creating it if needed.
// The boolean is true when the room was created by this call.
func (r *Registry) CreateOrGet(id string) (*Room, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if room, ok := r.rooms[id]; ok {
		return room, false
	}

	room := newRoom(id, r.now())
	r.rooms[id] = room
	r.log.Info("Room created", "room", id)
	return room, true
}

// Lookup returns the registered room with the given ID.
func (r *Registry) Lookup(id string) (*Room, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	room, ok := r.rooms[id]
	return room, ok
}

// Join adds connID to room. It returns the new member count and the IDs of the
// other members, sorted. A room that has been removed from the registry since
// it was looked up yields ErrRoomNotFound; a room at capacity yields a
// *FullError. Joining twice is a no-op.
func (r *Registry) Join(room *Room, connID string) (int, []string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if current, ok := r.rooms[room.ID]; !ok || current != room {
		return 0, nil, ErrRoomNotFound
	}

	if _, ok := room.members[connID]; !ok {
		if len(room.members) >= r.capacity {
			return len(room.members), nil, &FullError{RoomID: room.ID, MaxUsers: r.capacity}
		}
		room.members[connID] = struct{}{}
	}

	others := room.others(connID)
	sort.Strings(others)
	return len(room.members), others, nil
}

// Leave removes connID from room and returns the remaining member count along
// with the remaining member IDs. Leaving a room one is not in is a no-op.
func (r *Registry) Leave(room *Room, connID string) (int, []string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(room.members, connID)
	count := len(room.members)

	if count == 0 && r.removeOnEmpty {
		if current, ok := r.rooms[room.ID]; ok && current == room {
			delete(r.rooms, room.ID)
			r.log.Info("Room deleted (session expired)", "room", room.ID)
		}
	}

	remaining := room.others(connID)
	sort.Strings(remaining)
	return count, remaining
}

// IsExpired reports whether room is empty and older than the registry timeout.
func (r *Registry) IsExpired(room *Room, now time.Time) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.isExpired(room, now)
}

func (r *Registry) isExpired(room *Room, now time.Time) bool {
	return len(room.members) == 0 && now.Sub(room.CreatedAt) > r.timeout
}

// Sweep removes all expired rooms and returns their IDs.
func (r *Registry) Sweep(now time.Time) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	var removed []string
	for id, room := range r.rooms {
		if r.isExpired(room, now) {
			delete(r.rooms, id)
			removed = append(removed, id)
		}
	}

	for _, id := range removed {
		r.log.Info("Room cleaned up (timeout)", "room", id)
	}
	sort.Strings(removed)
	return removed
}

// Others returns the sorted IDs of every member of room except connID.
func (r *Registry) Others(room *Room, connID string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	others := room.others(connID)
	sort.Strings(others)
	return others
}

// Members returns the sorted member IDs of the room with the given ID.
func (r *Registry) Members(id string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	room, ok := r.rooms[id]
	if !ok {
		return nil
	}
	members := room.others("")
	sort.Strings(members)
	return members
}

// Len returns the number of registered rooms.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.rooms)
}

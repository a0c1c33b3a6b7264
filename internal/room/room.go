package room

import (
	"errors"
	"fmt"
	"time"
)

// DefaultCapacity is the maximum number of members a room holds unless configured otherwise.
const DefaultCapacity = 3

var (
	// ErrRoomNotFound is returned when a join targets a room that is not registered.
	ErrRoomNotFound = errors.New("room not found")

	// ErrRoomFull is returned when a join would exceed the room capacity.
	ErrRoomFull = errors.New("room is full")
)

// FullError carries the capacity that rejected a join.
type FullError struct {
	RoomID   string
	MaxUsers int
}

func (e *FullError) Error() string {
	return fmt.Sprintf("room %s is full (max %d)", e.RoomID, e.MaxUsers)
}

func (e *FullError) Unwrap() error {
	return ErrRoomFull
}

// Room is a bounded group of connections coordinating one chat session.
// Membership is only read or written while holding the owning registry's lock.
type Room struct {
	// ID is the caller-supplied identifier.
	ID string

	// CreatedAt is when the registry first saw this ID.
	CreatedAt time.Time

	members map[string]struct{}
}

func newRoom(id string, now time.Time) *Room {
	return &Room{
		ID:        id,
		CreatedAt: now,
		members:   make(map[string]struct{}),
	}
}

// others returns every member except connID.
func (r *Room) others(connID string) []string {
	out := make([]string, 0, len(r.members))
	for id := range r.members {
		if id != connID {
			out = append(out, id)
		}
	}
	return out
}

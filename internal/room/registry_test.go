package room

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRegistry(removeOnEmpty bool, now func() time.Time) *Registry {
	return NewRegistry(Options{
		Capacity:      3,
		RemoveOnEmpty: removeOnEmpty,
		Timeout:       time.Hour,
		Now:           now,
	})
}

func TestCreateOrGetIsIdempotent(t *testing.T) {
	reg := newTestRegistry(true, nil)

	first, created := reg.CreateOrGet("abc")
	require.True(t, created)

	second, created := reg.CreateOrGet("abc")
	assert.False(t, created)
	assert.Same(t, first, second)
	assert.Equal(t, 1, reg.Len())
}

func TestFourthJoinIsRejected(t *testing.T) {
	reg := newTestRegistry(true, nil)
	room, _ := reg.CreateOrGet("abc")

	for i, conn := range []string{"a", "b", "c"} {
		count, _, err := reg.Join(room, conn)
		require.NoError(t, err)
		assert.Equal(t, i+1, count)
	}

	_, _, err := reg.Join(room, "d")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrRoomFull))

	var full *FullError
	require.True(t, errors.As(err, &full))
	assert.Equal(t, 3, full.MaxUsers)
	assert.Equal(t, []string{"a", "b", "c"}, reg.Members("abc"))
}

func TestJoinReturnsOtherMembers(t *testing.T) {
	reg := newTestRegistry(true, nil)
	room, _ := reg.CreateOrGet("abc")

	_, _, err := reg.Join(room, "b")
	require.NoError(t, err)
	_, _, err = reg.Join(room, "a")
	require.NoError(t, err)

	count, others, err := reg.Join(room, "c")
	require.NoError(t, err)
	assert.Equal(t, 3, count)
	assert.Equal(t, []string{"a", "b"}, others)
}

func TestRejoinIsNoop(t *testing.T) {
	reg := newTestRegistry(true, nil)
	room, _ := reg.CreateOrGet("abc")

	_, _, err := reg.Join(room, "a")
	require.NoError(t, err)
	count, others, err := reg.Join(room, "a")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
	assert.Empty(t, others)
}

func TestConcurrentJoinsNeverExceedCapacity(t *testing.T) {
	for round := 0; round < 20; round++ {
		reg := newTestRegistry(true, nil)
		room, _ := reg.CreateOrGet("abc")

		const joiners = 32
		var (
			wg     sync.WaitGroup
			mu     sync.Mutex
			ok     int
			full   int
			start  = make(chan struct{})
			others []error
		)
		for i := 0; i < joiners; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				<-start
				_, _, err := reg.Join(room, fmt.Sprintf("conn-%d", i))
				mu.Lock()
				defer mu.Unlock()
				switch {
				case err == nil:
					ok++
				case errors.Is(err, ErrRoomFull):
					full++
				default:
					others = append(others, err)
				}
			}(i)
		}
		close(start)
		wg.Wait()

		require.Empty(t, others)
		assert.Equal(t, 3, ok)
		assert.Equal(t, joiners-3, full)
		assert.Len(t, reg.Members("abc"), 3)
	}
}

func TestLeavingLastMemberRemovesRoom(t *testing.T) {
	reg := newTestRegistry(true, nil)
	room, _ := reg.CreateOrGet("abc")
	_, _, err := reg.Join(room, "a")
	require.NoError(t, err)
	_, _, err = reg.Join(room, "b")
	require.NoError(t, err)

	count, remaining := reg.Leave(room, "a")
	assert.Equal(t, 1, count)
	assert.Equal(t, []string{"b"}, remaining)
	assert.Equal(t, 1, reg.Len())

	count, _ = reg.Leave(room, "b")
	assert.Equal(t, 0, count)
	assert.Equal(t, 0, reg.Len())

	_, ok := reg.Lookup("abc")
	assert.False(t, ok)

	// A stale handle cannot be joined once the room is gone.
	_, _, err = reg.Join(room, "c")
	assert.ErrorIs(t, err, ErrRoomNotFound)

	fresh, created := reg.CreateOrGet("abc")
	assert.True(t, created)
	assert.NotSame(t, room, fresh)
}

func TestLeaveUnknownMemberIsNoop(t *testing.T) {
	reg := newTestRegistry(true, nil)
	room, _ := reg.CreateOrGet("abc")
	_, _, err := reg.Join(room, "a")
	require.NoError(t, err)

	count, _ := reg.Leave(room, "zzz")
	assert.Equal(t, 1, count)
	assert.Equal(t, 1, reg.Len())
}

func TestSweepRemovesOnlyExpiredEmptyRooms(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	now := base
	reg := newTestRegistry(false, func() time.Time { return now })

	old, _ := reg.CreateOrGet("old")
	_, _, err := reg.Join(old, "a")
	require.NoError(t, err)
	reg.Leave(old, "a")

	busy, _ := reg.CreateOrGet("busy")
	_, _, err = reg.Join(busy, "b")
	require.NoError(t, err)

	now = base.Add(30 * time.Minute)
	young, _ := reg.CreateOrGet("young")

	// Empty rooms linger when removal on empty is disabled.
	assert.Equal(t, 3, reg.Len())

	later := base.Add(61 * time.Minute)
	assert.True(t, reg.IsExpired(old, later))
	assert.False(t, reg.IsExpired(busy, later))
	assert.False(t, reg.IsExpired(young, later))

	assert.Equal(t, []string{"old"}, reg.Sweep(later))
	assert.Empty(t, reg.Sweep(later))
	assert.Equal(t, 2, reg.Len())

	// A lingering room is still joinable before it expires.
	_, _, err = reg.Join(young, "c")
	assert.NoError(t, err)
}

func TestNewIDIsFourReadableWords(t *testing.T) {
	seen := make(map[string]bool)
	for range 50 {
		id := NewID()
		parts := strings.Split(id, "-")
		require.Len(t, parts, 4, id)
		for i, p := range parts {
			assert.Contains(t, wordLists[i], p)
		}
		seen[id] = true
	}
	assert.Greater(t, len(seen), 1)
}

// Package ephemeral keeps the locally displayed chat log. Each entry may
// carry its own self-destruct timer; timers run independently per entry and
// per viewer.
package ephemeral

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Entry is one displayed message.
type Entry struct {
	ID          string
	From        string
	Self        bool
	Kind        string
	Body        string
	Encrypted   bool
	Relayed     bool
	SentAt      time.Time
	DeleteAfter time.Duration
	ExpiresAt   time.Time
}

// Expires reports whether the entry has a self-destruct timer.
func (e Entry) Expires() bool {
	return e.DeleteAfter > 0
}

type item struct {
	entry Entry
	timer *time.Timer
}

// Timeline is safe for concurrent use.
type Timeline struct {
	mu      sync.Mutex
	order   []string
	items   map[string]*item
	changes chan struct{}
	now     func() time.Time
}

// NewTimeline creates an empty timeline.
func NewTimeline() *Timeline {
	return &Timeline{
		items:   make(map[string]*item),
		changes: make(chan struct{}, 1),
		now:     time.Now,
	}
}

// Add appends e and returns its ID. A positive DeleteAfter schedules removal.
func (t *Timeline) Add(e Entry) string {
	t.mu.Lock()
	defer t.mu.Unlock()

	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if _, dup := t.items[e.ID]; dup {
		return e.ID
	}
	if e.SentAt.IsZero() {
		e.SentAt = t.now()
	}

	it := &item{}
	if e.Expires() {
		e.ExpiresAt = t.now().Add(e.DeleteAfter)
		id := e.ID
		it.timer = time.AfterFunc(e.DeleteAfter, func() { t.Remove(id) })
	}
	it.entry = e

	t.items[e.ID] = it
	t.order = append(t.order, e.ID)
	t.notify()
	return e.ID
}

// Remove deletes an entry and stops its timer. It reports whether the entry
// was present; removing twice is harmless.
func (t *Timeline) Remove(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	it, ok := t.items[id]
	if !ok {
		return false
	}
	if it.timer != nil {
		it.timer.Stop()
	}
	delete(t.items, id)
	for i, v := range t.order {
		if v == id {
			t.order = append(t.order[:i], t.order[i+1:]...)
			break
		}
	}
	t.notify()
	return true
}

// Get returns the entry with the given ID.
func (t *Timeline) Get(id string) (Entry, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	it, ok := t.items[id]
	if !ok {
		return Entry{}, false
	}
	return it.entry, true
}

// List returns a snapshot of all entries in insertion order.
func (t *Timeline) List() []Entry {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]Entry, 0, len(t.order))
	for _, id := range t.order {
		out = append(out, t.items[id].entry)
	}
	return out
}

// Remaining returns how long the entry has left at now. Entries without a
// timer report false.
func (t *Timeline) Remaining(id string, now time.Time) (time.Duration, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	it, ok := t.items[id]
	if !ok || !it.entry.Expires() {
		return 0, false
	}
	return max(it.entry.ExpiresAt.Sub(now), 0), true
}

// Len returns the number of displayed entries.
func (t *Timeline) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.items)
}

// Clear removes every entry and stops every timer.
func (t *Timeline) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()

	for _, it := range t.items {
		if it.timer != nil {
			it.timer.Stop()
		}
	}
	t.items = make(map[string]*item)
	t.order = nil
	t.notify()
}

// Changes signals after any mutation. Bursts are coalesced into one signal.
func (t *Timeline) Changes() <-chan struct{} {
	return t.changes
}

func (t *Timeline) notify() {
	select {
	case t.changes <- struct{}{}:
	default:
	}
}

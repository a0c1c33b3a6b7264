// Package transfer splits large chat payloads into chunks and reassembles them.
package transfer

import (
	"bytes"
	"sync"
	"time"
)

// MaxChunks bounds the slot array a single transfer may allocate.
const MaxChunks = MaxVideoSize/ChunkSize + 1

// Chunk is one ordered slice of a larger payload.
type Chunk struct {
	TransferID string `json:"transferId" msgpack:"transferId"`
	Index      int    `json:"index" msgpack:"index"`
	Total      int    `json:"total" msgpack:"total"`
	Last       bool   `json:"last" msgpack:"last"`
	Kind       string `json:"kind" msgpack:"kind"`
	Data       []byte `json:"data" msgpack:"data"`
}

// Split cuts payload into chunks of at most size bytes. An empty payload
// still produces one (empty, last) chunk so the receiver sees a completed transfer.
func Split(transferID, kind string, payload []byte, size int) []Chunk {
	if size <= 0 {
		size = ChunkSize
	}

	total := (len(payload) + size - 1) / size
	if total == 0 {
		total = 1
	}

	chunks := make([]Chunk, total)
	for i := range total {
		start := i * size
		end := min(start+size, len(payload))
		chunks[i] = Chunk{
			TransferID: transferID,
			Index:      i,
			Total:      total,
			Last:       i == total-1,
			Kind:       kind,
			Data:       payload[start:end],
		}
	}
	return chunks
}

type transferKey struct {
	from string
	id   string
}

type assembly struct {
	slots    [][]byte
	have     []bool
	received int
	lastSeen bool
	kind     string
	started  time.Time
}

// Reassembler collects chunks from any number of senders. Arrival order does
// not matter; duplicates are ignored.
type Reassembler struct {
	mu      sync.Mutex
	pending map[transferKey]*assembly
	now     func() time.Time
}

// NewReassembler creates an empty Reassembler.
func NewReassembler() *Reassembler {
	return &Reassembler{
		pending: make(map[transferKey]*assembly),
		now:     time.Now,
	}
}

// Add stores c for sender from. When the transfer is complete it returns the
// assembled payload, the payload kind, and true, and forgets the transfer.
func (r *Reassembler) Add(from string, c Chunk) ([]byte, string, bool, error) {
	if c.TransferID == "" || c.Total <= 0 || c.Total > MaxChunks || c.Index < 0 || c.Index >= c.Total {
		return nil, "", false, WrapError("reassemble", ErrMalformedPayload, "chunk index out of range")
	}
	if c.Last && c.Index != c.Total-1 {
		return nil, "", false, WrapError("reassemble", ErrMalformedPayload, "last flag on non-final chunk")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	key := transferKey{from: from, id: c.TransferID}
	a, ok := r.pending[key]
	if !ok {
		a = &assembly{
			slots:   make([][]byte, c.Total),
			have:    make([]bool, c.Total),
			kind:    c.Kind,
			started: r.now(),
		}
		r.pending[key] = a
	}
	if len(a.slots) != c.Total {
		return nil, "", false, WrapError("reassemble", ErrChunkMismatch, c.TransferID)
	}

	if !a.have[c.Index] {
		a.slots[c.Index] = c.Data
		a.have[c.Index] = true
		a.received++
	}
	if c.Last {
		a.lastSeen = true
	}

	if !a.lastSeen || a.received != len(a.slots) {
		return nil, "", false, nil
	}

	delete(r.pending, key)
	return bytes.Join(a.slots, nil), a.kind, true, nil
}

// Discard drops every incomplete transfer from sender from.
func (r *Reassembler) Discard(from string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for key := range r.pending {
		if key.from == from {
			delete(r.pending, key)
		}
	}
}

// Prune drops transfers that started more than maxAge ago and returns how many were dropped.
func (r *Reassembler) Prune(maxAge time.Duration) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := r.now().Add(-maxAge)
	dropped := 0
	for key, a := range r.pending {
		if a.started.Before(cutoff) {
			delete(r.pending, key)
			dropped++
		}
	}
	return dropped
}

// Pending returns the number of incomplete transfers.
func (r *Reassembler) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending)
}

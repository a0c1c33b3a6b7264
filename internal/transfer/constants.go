package transfer

import "time"

const (
	// ChunkSize is the payload size of one chunk. Payloads larger than this are split.
	// It stays well under the control channel's 64 KB read limit so chunks can be relayed.
	ChunkSize = 16 * 1024

	// ChunkDelay paces chunk emission so neither the data channel buffer nor the relay floods.
	ChunkDelay = 10 * time.Millisecond

	// MaxImageSize caps images read from disk.
	MaxImageSize = 5 * 1024 * 1024

	// MaxVideoSize caps videos read from disk.
	MaxVideoSize = 20 * 1024 * 1024

	// HighWaterMark is the data channel buffered amount above which a link is not writable.
	HighWaterMark = 2 * 1024 * 1024

	// StaleTransferAge is how long an incomplete reassembly may wait for missing chunks.
	StaleTransferAge = 2 * time.Minute
)

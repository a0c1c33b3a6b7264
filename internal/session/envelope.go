package session

import "github.com/BioHazard786/vanish/internal/transfer"

// Kind is the content type of a chat message.
type Kind string

const (
	KindText       Kind = "text"
	KindImage      Kind = "image"
	KindVideo      Kind = "video"
	KindVideoChunk Kind = "video-chunk"
)

// DecryptFailedText replaces a message body that could not be decrypted.
const DecryptFailedText = "[encrypted message could not be decrypted]"

// Envelope is a chat message on the data channel. SentAt is Unix
// milliseconds and DeleteAfter is in seconds, zero meaning never.
type Envelope struct {
	Body        string          `msgpack:"body"`
	Kind        Kind            `msgpack:"kind"`
	SentAt      int64           `msgpack:"sentAt"`
	DeleteAfter int             `msgpack:"deleteAfter"`
	Encrypted   bool            `msgpack:"encrypted"`
	Chunk       *transfer.Chunk `msgpack:"chunk,omitempty"`
}

// Delivery reports how one Send went out.
type Delivery struct {
	// Direct counts copies written to open data channels.
	Direct int

	// Relayed counts messages handed to the signaling server instead.
	Relayed int
}

func (d *Delivery) add(o Delivery) {
	d.Direct += o.Direct
	d.Relayed += o.Relayed
}

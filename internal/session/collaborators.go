package session

import (
	"encoding/json"

	"github.com/BioHazard786/vanish/internal/ephemeral"
	"github.com/BioHazard786/vanish/internal/signaling"
	"github.com/BioHazard786/vanish/internal/webrtc"
)

// Signaler delivers control messages to the signaling server. Sends are
// fire-and-forget.
type Signaler interface {
	Send(msg *signaling.Message) bool
}

// LinkEvents are the callbacks a Link reports.
type LinkEvents = webrtc.Events

// Link is a direct channel to one peer.
type Link interface {
	CreateOffer() (json.RawMessage, error)
	AcceptOffer(offer json.RawMessage) (json.RawMessage, error)
	AcceptAnswer(answer json.RawMessage) error
	AddCandidate(candidate json.RawMessage) error
	Send(data []byte) error
	Writable() bool
	Close() error
}

// Connector creates Links.
type Connector interface {
	Dial(peerID string, ev LinkEvents) (Link, error)
}

// KeyRing holds the local key pair and per-peer shared keys.
type KeyRing interface {
	PublicKey() json.RawMessage
	Derive(peerID string, publicKey json.RawMessage) error
	Ready(peerID string) bool
	Encrypt(peerID, plaintext string) (string, error)
	Decrypt(peerID, ciphertext string) (string, error)
	Forget(peerID string)
	Reset() error
}

// Timeline is where displayed messages go.
type Timeline interface {
	Add(e ephemeral.Entry) string
	Clear()
}

type pionConnector struct {
	dialer *webrtc.Dialer
}

// PionConnector adapts a webrtc.Dialer to Connector.
func PionConnector(d *webrtc.Dialer) Connector {
	return pionConnector{dialer: d}
}

func (p pionConnector) Dial(peerID string, ev LinkEvents) (Link, error) {
	link, err := p.dialer.Dial(peerID, ev)
	if err != nil {
		return nil, err
	}
	return link, nil
}

package signaling

import (
	"bytes"
	"errors"
	"fmt"
)

// ErrMalformed reports a client message that cannot be routed.
var ErrMalformed = errors.New("malformed message")

// Inbound is one client request after parsing. The set of variants is closed.
type Inbound interface {
	inbound()
}

// CreateRoom asks to create (or enter) a room.
type CreateRoom struct{ RoomID string }

// JoinRoom asks to enter an existing room.
type JoinRoom struct{ RoomID string }

// Relay is an offer, answer or ICE candidate addressed to one connection.
type Relay struct {
	Kind Kind
	To   string
	Body []byte
}

// ShareKey publishes a public key to one member or to the whole room.
type ShareKey struct {
	To    string
	Key   []byte
	Reply bool
}

// SendChat relays a chat message to every other room member.
type SendChat struct{ Chat Chat }

// LeaveRoom leaves the current room without closing the connection.
type LeaveRoom struct{}

// Disconnect is synthesized when a connection closes.
type Disconnect struct{}

func (CreateRoom) inbound() {}
func (JoinRoom) inbound()   {}
func (Relay) inbound()      {}
func (ShareKey) inbound()   {}
func (SendChat) inbound()   {}
func (LeaveRoom) inbound()  {}
func (Disconnect) inbound() {}

func malformed(kind Kind, reason string) error {
	return fmt.Errorf("%w: %s: %s", ErrMalformed, kind, reason)
}

func isNull(raw []byte) bool {
	raw = bytes.TrimSpace(raw)
	return len(raw) == 0 || bytes.Equal(raw, []byte("null"))
}

// Parse validates msg and converts it to its Inbound variant.
func Parse(msg *Message) (Inbound, error) {
	switch msg.Type {
	case KindCreateRoom, KindJoinRoom:
		var req RoomRequest
		if err := msg.Decode(&req); err != nil {
			return nil, malformed(msg.Type, err.Error())
		}
		if req.RoomID == "" {
			return nil, malformed(msg.Type, "missing roomId")
		}
		if msg.Type == KindCreateRoom {
			return CreateRoom{RoomID: req.RoomID}, nil
		}
		return JoinRoom{RoomID: req.RoomID}, nil

	case KindOffer, KindAnswer, KindICECandidate:
		var sig Signal
		if err := msg.Decode(&sig); err != nil {
			return nil, malformed(msg.Type, err.Error())
		}
		if sig.To == "" {
			return nil, malformed(msg.Type, "missing to")
		}
		body := sig.Offer
		switch msg.Type {
		case KindAnswer:
			body = sig.Answer
		case KindICECandidate:
			body = sig.Candidate
		}
		if isNull(body) {
			return nil, malformed(msg.Type, "missing body")
		}
		return Relay{Kind: msg.Type, To: sig.To, Body: body}, nil

	case KindPublicKey:
		var pk PublicKey
		if err := msg.Decode(&pk); err != nil {
			return nil, malformed(msg.Type, err.Error())
		}
		if isNull(pk.PublicKey) {
			return nil, malformed(msg.Type, "missing publicKey")
		}
		return ShareKey{To: pk.To, Key: pk.PublicKey, Reply: pk.Reply}, nil

	case KindChatMessage:
		var chat Chat
		if err := msg.Decode(&chat); err != nil {
			return nil, malformed(msg.Type, err.Error())
		}
		if chat.DeleteAfter < 0 {
			return nil, malformed(msg.Type, "negative deleteAfter")
		}
		if chat.Type == "" {
			chat.Type = "text"
		}
		// Clients never get to choose these.
		chat.From, chat.Timestamp = "", 0
		return SendChat{Chat: chat}, nil

	case KindLeaveRoom:
		return LeaveRoom{}, nil
	}
	return nil, malformed(msg.Type, "unknown type")
}

package signaling

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Kind names a control-channel event.
type Kind string

// Client to server.
const (
	KindCreateRoom   Kind = "create-room"
	KindJoinRoom     Kind = "join-room"
	KindOffer        Kind = "offer"
	KindAnswer       Kind = "answer"
	KindICECandidate Kind = "ice-candidate"
	KindPublicKey    Kind = "public-key"
	KindChatMessage  Kind = "chat-message"
	KindLeaveRoom    Kind = "leave-room"
)

// Server to client. Offer, answer, ice-candidate, public-key and chat-message
// are reused in this direction with a "from" field added.
const (
	KindConnected    Kind = "connected"
	KindRoomCreated  Kind = "room-created"
	KindRoomJoined   Kind = "room-joined"
	KindRoomNotFound Kind = "room-not-found"
	KindRoomFull     Kind = "room-full"
	KindUserJoined   Kind = "user-joined"
	KindUserLeft     Kind = "user-left"
)

// Message is the JSON frame exchanged over the control channel in both directions.
type Message struct {
	Type    Kind            `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// NewMessage marshals payload into a Message of the given kind. A nil payload
// produces a message without a payload field.
func NewMessage(kind Kind, payload any) (*Message, error) {
	if payload == nil {
		return &Message{Type: kind}, nil
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", kind, err)
	}
	return &Message{Type: kind, Payload: b}, nil
}

// mustMessage is NewMessage for payload types that always marshal.
func mustMessage(kind Kind, payload any) *Message {
	msg, err := NewMessage(kind, payload)
	if err != nil {
		panic(err)
	}
	return msg
}

// Encode renders the wire frame. Payload bytes are written as they are,
// without the compaction and HTML escaping json.Marshal applies to raw values.
func (m *Message) Encode() ([]byte, error) {
	kind, err := json.Marshal(string(m.Type))
	if err != nil {
		return nil, err
	}
	var b bytes.Buffer
	b.WriteString(`{"type":`)
	b.Write(kind)
	if len(m.Payload) > 0 {
		b.WriteString(`,"payload":`)
		b.Write(m.Payload)
	}
	b.WriteByte('}')
	return b.Bytes(), nil
}

// Decode unmarshals the payload into v.
func (m *Message) Decode(v any) error {
	if len(m.Payload) == 0 {
		return fmt.Errorf("%s: empty payload", m.Type)
	}
	return json.Unmarshal(m.Payload, v)
}

// RoomRequest is the payload of create-room and join-room.
type RoomRequest struct {
	RoomID string `json:"roomId"`
}

// Connected tells a client its connection ID.
type Connected struct {
	ID string `json:"id"`
}

// RoomEntered is the payload of room-created and room-joined.
type RoomEntered struct {
	RoomID        string   `json:"roomId"`
	UserCount     int      `json:"userCount"`
	ExistingUsers []string `json:"existingUsers"`
}

// RoomNotFound is the payload of room-not-found.
type RoomNotFound struct {
	RoomID string `json:"roomId"`
}

// RoomFull is the payload of room-full.
type RoomFull struct {
	MaxUsers int `json:"maxUsers"`
}

// UserEvent is the payload of user-joined and user-left.
type UserEvent struct {
	UserID    string `json:"userId"`
	UserCount int    `json:"userCount"`
}

// Signal carries an offer, answer or ICE candidate. The description and
// candidate bodies are opaque to the server and forwarded unchanged.
type Signal struct {
	To        string          `json:"to,omitempty"`
	From      string          `json:"from,omitempty"`
	Offer     json.RawMessage `json:"offer,omitempty"`
	Answer    json.RawMessage `json:"answer,omitempty"`
	Candidate json.RawMessage `json:"candidate,omitempty"`
}

// PublicKey carries a key-exchange public key. Direct is set by the server
// when the key was unicast; Reply marks a key sent in response to one.
type PublicKey struct {
	To        string          `json:"to,omitempty"`
	From      string          `json:"from,omitempty"`
	UserID    string          `json:"userId,omitempty"`
	PublicKey json.RawMessage `json:"publicKey"`
	Direct    bool            `json:"direct,omitempty"`
	Reply     bool            `json:"reply,omitempty"`
}

// Chat is a relayed chat payload. From and Timestamp are stamped by the server.
type Chat struct {
	Message     string          `json:"message"`
	Type        string          `json:"type,omitempty"`
	DeleteAfter int             `json:"deleteAfter"`
	Encrypted   bool            `json:"encrypted"`
	Chunk       json.RawMessage `json:"chunk,omitempty"`
	From        string          `json:"from,omitempty"`
	Timestamp   int64           `json:"timestamp,omitempty"`
}

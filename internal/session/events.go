package session

// Status is the connection indicator shown to the user.
type Status string

const (
	StatusDisconnected Status = "disconnected"
	StatusWaiting      Status = "waiting"
	StatusRelay        Status = "relay"
	StatusP2P          Status = "p2p"
)

// EventKind identifies an Event.
type EventKind string

const (
	EventConnected       EventKind = "connected"
	EventRoomCreated     EventKind = "room-created"
	EventRoomJoined      EventKind = "room-joined"
	EventRoomFull        EventKind = "room-full"
	EventRoomNotFound    EventKind = "room-not-found"
	EventPeerJoined      EventKind = "peer-joined"
	EventPeerLeft        EventKind = "peer-left"
	EventStatus          EventKind = "status"
	EventEncryptionReady EventKind = "encryption-ready"
	EventSessionEnded    EventKind = "session-ended"
	EventError           EventKind = "error"
)

// Event reports something the UI may want to show. Only the fields relevant
// to Kind are set.
type Event struct {
	Kind      EventKind
	RoomID    string
	PeerID    string
	UserCount int
	MaxUsers  int
	Status    Status
	Err       error
}

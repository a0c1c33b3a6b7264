// Package signaling implements the control channel: the message format, the
// server-side router that relays messages between room members, and the
// client used by peers to talk to it.
package signaling

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/BioHazard786/vanish/internal/room"
)

// Peer is the router's view of a connection.
type Peer interface {
	ID() string

	// Send queues msg for delivery without blocking. It returns false if the
	// message was dropped.
	Send(msg *Message) bool
}

type member struct {
	peer Peer
	room *room.Room
}

// Router dispatches parsed client messages. Handling is serialized on one
// lock; outbound messages are queued with non-blocking sends only.
type Router struct {
	registry *room.Registry
	now      func() time.Time
	log      *slog.Logger

	mu    sync.Mutex
	conns map[string]*member
}

// NewRouter creates a Router on top of registry.
func NewRouter(registry *room.Registry, logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{
		registry: registry,
		now:      time.Now,
		log:      logger.With("component", "router"),
		conns:    make(map[string]*member),
	}
}

// Register adds p to the connection table and tells it its ID.
func (r *Router) Register(p Peer) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.conns[p.ID()] = &member{peer: p}
	r.log.Info("User connected", "conn", p.ID())
	r.deliver(p, mustMessage(KindConnected, Connected{ID: p.ID()}))
}

// Unregister runs the disconnect path for connID and forgets it.
func (r *Router) Unregister(connID string) {
	r.Handle(connID, Disconnect{})
}

// HandleMessage parses msg and dispatches it. Malformed messages are dropped.
func (r *Router) HandleMessage(connID string, msg *Message) {
	in, err := Parse(msg)
	if err != nil {
		r.log.Debug("Dropping message", "conn", connID, "error", err)
		return
	}
	r.Handle(connID, in)
}

// Handle applies one inbound event from connID.
func (r *Router) Handle(connID string, in Inbound) {
	r.mu.Lock()
	defer r.mu.Unlock()

	m, ok := r.conns[connID]
	if !ok {
		return
	}

	switch ev := in.(type) {
	case CreateRoom:
		r.leave(m)
		r.create(m, ev.RoomID)
	case JoinRoom:
		r.leave(m)
		r.join(m, ev.RoomID)
	case Relay:
		r.relay(m, ev)
	case ShareKey:
		r.shareKey(m, ev)
	case SendChat:
		r.chat(m, ev.Chat)
	case LeaveRoom:
		r.leave(m)
	case Disconnect:
		r.leave(m)
		delete(r.conns, connID)
		r.log.Info("User disconnected", "conn", connID)
	}
}

// Connections returns the number of registered connections.
func (r *Router) Connections() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.conns)
}

func (r *Router) create(m *member, roomID string) {
	// The sweeper may remove an empty room between lookup and join.
	for attempt := 0; attempt < 3; attempt++ {
		rm, _ := r.registry.CreateOrGet(roomID)
		count, others, err := r.registry.Join(rm, m.peer.ID())
		if errors.Is(err, room.ErrRoomNotFound) {
			continue
		}
		if r.rejected(m, roomID, err) {
			return
		}
		r.entered(m, rm, KindRoomCreated, count, others)
		return
	}
	r.log.Warn("Room vanished during create", "room", roomID, "conn", m.peer.ID())
}

func (r *Router) join(m *member, roomID string) {
	rm, ok := r.registry.Lookup(roomID)
	if !ok {
		r.deliver(m.peer, mustMessage(KindRoomNotFound, RoomNotFound{RoomID: roomID}))
		return
	}
	count, others, err := r.registry.Join(rm, m.peer.ID())
	if r.rejected(m, roomID, err) {
		return
	}
	r.entered(m, rm, KindRoomJoined, count, others)
}

// rejected reports a failed join to the requester and returns true if err is non-nil.
func (r *Router) rejected(m *member, roomID string, err error) bool {
	var full *room.FullError
	switch {
	case err == nil:
		return false
	case errors.As(err, &full):
		r.log.Info("Room full", "room", roomID, "conn", m.peer.ID())
		r.deliver(m.peer, mustMessage(KindRoomFull, RoomFull{MaxUsers: full.MaxUsers}))
	default:
		r.deliver(m.peer, mustMessage(KindRoomNotFound, RoomNotFound{RoomID: roomID}))
	}
	return true
}

func (r *Router) entered(m *member, rm *room.Room, kind Kind, count int, others []string) {
	m.room = rm
	id := m.peer.ID()
	r.log.Info("User entered room", "room", rm.ID, "conn", id, "users", count)

	if others == nil {
		others = []string{}
	}
	r.deliver(m.peer, mustMessage(kind, RoomEntered{RoomID: rm.ID, UserCount: count, ExistingUsers: others}))

	joined := mustMessage(KindUserJoined, UserEvent{UserID: id, UserCount: count})
	r.broadcast(others, joined)
}

func (r *Router) leave(m *member) {
	if m.room == nil {
		return
	}
	rm := m.room
	m.room = nil

	count, remaining := r.registry.Leave(rm, m.peer.ID())
	r.log.Info("User left room", "room", rm.ID, "conn", m.peer.ID(), "users", count)
	r.broadcast(remaining, mustMessage(KindUserLeft, UserEvent{UserID: m.peer.ID(), UserCount: count}))
}

func (r *Router) relay(m *member, ev Relay) {
	target, ok := r.conns[ev.To]
	if !ok {
		r.log.Debug("Dropping signal for unknown peer", "kind", ev.Kind, "from", m.peer.ID(), "to", ev.To)
		return
	}

	r.deliver(target.peer, &Message{Type: ev.Kind, Payload: signalPayload(ev.Kind, m.peer.ID(), ev.Body)})
}

// signalPayload splices body into the outbound signal unchanged, so the
// description or candidate arrives exactly as the sender wrote it.
func signalPayload(kind Kind, from string, body []byte) json.RawMessage {
	field := "offer"
	switch kind {
	case KindAnswer:
		field = "answer"
	case KindICECandidate:
		field = "candidate"
	}
	id, _ := json.Marshal(from)

	var b bytes.Buffer
	b.WriteString(`{"from":`)
	b.Write(id)
	b.WriteString(`,"` + field + `":`)
	b.Write(body)
	b.WriteByte('}')
	return b.Bytes()
}

func (r *Router) shareKey(m *member, ev ShareKey) {
	id := m.peer.ID()
	out := PublicKey{From: id, UserID: id, PublicKey: ev.Key, Reply: ev.Reply}

	if ev.To != "" {
		target, ok := r.conns[ev.To]
		if !ok {
			r.log.Debug("Dropping public key for unknown peer", "from", id, "to", ev.To)
			return
		}
		out.Direct = true
		r.deliver(target.peer, mustMessage(KindPublicKey, out))
		return
	}

	if m.room == nil {
		r.log.Debug("Dropping public key outside a room", "conn", id)
		return
	}
	r.broadcast(r.registry.Others(m.room, id), mustMessage(KindPublicKey, out))
}

func (r *Router) chat(m *member, chat Chat) {
	if m.room == nil {
		r.log.Debug("Dropping chat outside a room", "conn", m.peer.ID())
		return
	}
	chat.From = m.peer.ID()
	chat.Timestamp = r.now().UnixMilli()
	r.broadcast(r.registry.Others(m.room, m.peer.ID()), mustMessage(KindChatMessage, chat))
}

func (r *Router) broadcast(ids []string, msg *Message) {
	for _, id := range ids {
		if target, ok := r.conns[id]; ok {
			r.deliver(target.peer, msg)
		}
	}
}

func (r *Router) deliver(p Peer, msg *Message) {
	if !p.Send(msg) {
		r.log.Warn("Outbound queue full, dropping message", "conn", p.ID(), "type", msg.Type)
	}
}

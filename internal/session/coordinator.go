// Package session runs one chat client's side of a room: it reacts to
// signaling messages, negotiates a direct channel with every other member,
// exchanges encryption keys and decides per message whether to send directly
// or through the server.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/BioHazard786/vanish/internal/ephemeral"
	"github.com/BioHazard786/vanish/internal/signaling"
	"github.com/BioHazard786/vanish/internal/transfer"
)

const eventBuffer = 256

// Options configures a Coordinator.
type Options struct {
	Signaler Signaler

	// Connector dials direct channels. Nil means every message is relayed.
	Connector Connector

	// Keys enables end-to-end encryption on direct channels. Nil disables it.
	Keys KeyRing

	// Timeline receives displayed messages. Nil means an ephemeral.Timeline.
	Timeline Timeline

	Logger *slog.Logger

	// ChunkSize and ChunkDelay default to the transfer package constants.
	// A negative ChunkDelay sends chunks back to back.
	ChunkSize  int
	ChunkDelay time.Duration

	Now func() time.Time
}

// Coordinator is one client's session state machine.
type Coordinator struct {
	sig        Signaler
	conn       Connector
	keys       KeyRing
	timeline   Timeline
	log        *slog.Logger
	chunkSize  int
	chunkDelay time.Duration
	now        func() time.Time
	reasm      *transfer.Reassembler
	events     chan Event

	mu       sync.Mutex
	selfID   string
	roomID   string
	members  map[string]struct{}
	sessions map[string]*PeerSession
	queues   map[string]*taskQueue
	status   Status

	idleMu   sync.Mutex
	idle     *sync.Cond
	inflight int
}

// New creates a Coordinator.
func New(opts Options) *Coordinator {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Timeline == nil {
		opts.Timeline = ephemeral.NewTimeline()
	}
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = transfer.ChunkSize
	}
	if opts.ChunkDelay < 0 {
		opts.ChunkDelay = 0
	} else if opts.ChunkDelay == 0 {
		opts.ChunkDelay = transfer.ChunkDelay
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	c := &Coordinator{
		sig:        opts.Signaler,
		conn:       opts.Connector,
		keys:       opts.Keys,
		timeline:   opts.Timeline,
		log:        opts.Logger.With("component", "session"),
		chunkSize:  opts.ChunkSize,
		chunkDelay: opts.ChunkDelay,
		now:        opts.Now,
		reasm:      transfer.NewReassembler(),
		events:     make(chan Event, eventBuffer),
		members:    make(map[string]struct{}),
		sessions:   make(map[string]*PeerSession),
		queues:     make(map[string]*taskQueue),
		status:     StatusDisconnected,
	}
	c.idle = sync.NewCond(&c.idleMu)
	return c
}

// Events delivers UI notifications. Events are dropped if nobody reads.
func (c *Coordinator) Events() <-chan Event {
	return c.events
}

// SelfID returns the server-assigned connection ID, once known.
func (c *Coordinator) SelfID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.selfID
}

// RoomID returns the current room, or "" outside a room.
func (c *Coordinator) RoomID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.roomID
}

// Status returns the connection indicator.
func (c *Coordinator) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// Peers returns every other room member, sorted by ID.
func (c *Coordinator) Peers() []PeerInfo {
	c.mu.Lock()
	ids := make([]string, 0, len(c.members))
	for id := range c.members {
		ids = append(ids, id)
	}
	infos := make([]PeerInfo, 0, len(ids))
	sort.Strings(ids)
	for _, id := range ids {
		info := PeerInfo{ID: id, State: StateIdle}
		if s, ok := c.sessions[id]; ok {
			info.Role, info.State = s.role, s.state
		}
		infos = append(infos, info)
	}
	c.mu.Unlock()

	if c.keys != nil {
		for i := range infos {
			infos[i].Encrypted = c.keys.Ready(infos[i].ID)
		}
	}
	return infos
}

// Create asks the server to create roomID, or enter it if it exists.
func (c *Coordinator) Create(roomID string) error {
	return c.request(signaling.KindCreateRoom, roomID)
}

// Join asks the server to enter an existing room.
func (c *Coordinator) Join(roomID string) error {
	return c.request(signaling.KindJoinRoom, roomID)
}

func (c *Coordinator) request(kind signaling.Kind, roomID string) error {
	if roomID == "" {
		return transfer.WrapError(string(kind), transfer.ErrMalformedPayload, "empty room id")
	}
	c.signal(kind, signaling.RoomRequest{RoomID: roomID})
	return nil
}

// Run handles incoming control messages until ctx is done or the channel
// closes. A closed channel means the server connection is gone.
func (c *Coordinator) Run(ctx context.Context, incoming <-chan *signaling.Message) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-incoming:
			if !ok {
				c.teardown(false)
				c.emit(Event{Kind: EventError, Err: transfer.NewError("signaling", transfer.ErrSignalingError)})
				c.updateStatus()
				return nil
			}
			c.HandleMessage(msg)
		}
	}
}

// HandleMessage dispatches one control message. Messages about a specific
// peer run on that peer's serial queue.
func (c *Coordinator) HandleMessage(msg *signaling.Message) {
	switch msg.Type {
	case signaling.KindConnected:
		var p signaling.Connected
		if c.decode(msg, &p) {
			c.mu.Lock()
			c.selfID = p.ID
			c.mu.Unlock()
			c.emit(Event{Kind: EventConnected, PeerID: p.ID})
		}

	case signaling.KindRoomCreated, signaling.KindRoomJoined:
		var p signaling.RoomEntered
		if c.decode(msg, &p) {
			c.enterRoom(msg.Type, p)
		}

	case signaling.KindRoomFull:
		var p signaling.RoomFull
		if c.decode(msg, &p) {
			c.emit(Event{Kind: EventRoomFull, MaxUsers: p.MaxUsers})
		}

	case signaling.KindRoomNotFound:
		var p signaling.RoomNotFound
		if c.decode(msg, &p) {
			c.emit(Event{Kind: EventRoomNotFound, RoomID: p.RoomID})
		}

	case signaling.KindUserJoined:
		var p signaling.UserEvent
		if c.decode(msg, &p) {
			c.peerJoined(p)
		}

	case signaling.KindUserLeft:
		var p signaling.UserEvent
		if c.decode(msg, &p) {
			c.peerLeft(p)
		}

	case signaling.KindOffer, signaling.KindAnswer, signaling.KindICECandidate:
		var p signaling.Signal
		if !c.decode(msg, &p) || p.From == "" {
			return
		}
		switch msg.Type {
		case signaling.KindOffer:
			c.enqueue(p.From, func() { c.onOffer(p.From, p.Offer) })
		case signaling.KindAnswer:
			c.enqueue(p.From, func() { c.onAnswer(p.From, p.Answer) })
		default:
			c.enqueue(p.From, func() { c.onCandidate(p.From, p.Candidate) })
		}

	case signaling.KindPublicKey:
		var p signaling.PublicKey
		if c.decode(msg, &p) && p.From != "" {
			c.enqueue(p.From, func() { c.onPublicKey(p) })
		}

	case signaling.KindChatMessage:
		var p signaling.Chat
		if c.decode(msg, &p) && p.From != "" {
			c.receiveRelay(p)
		}

	default:
		c.log.Debug("Ignoring unknown message", "type", msg.Type)
	}
}

func (c *Coordinator) decode(msg *signaling.Message, v any) bool {
	if err := msg.Decode(v); err != nil {
		c.log.Debug("Dropping malformed message", "type", msg.Type, "error", err)
		return false
	}
	return true
}

func (c *Coordinator) enterRoom(kind signaling.Kind, p signaling.RoomEntered) {
	c.mu.Lock()
	c.roomID = p.RoomID
	c.members = make(map[string]struct{}, len(p.ExistingUsers))
	for _, id := range p.ExistingUsers {
		if id != c.selfID {
			c.members[id] = struct{}{}
		}
	}
	c.mu.Unlock()

	ev := EventRoomCreated
	if kind == signaling.KindRoomJoined {
		ev = EventRoomJoined
	}
	c.emit(Event{Kind: ev, RoomID: p.RoomID, UserCount: p.UserCount})

	if c.keys != nil {
		c.signal(signaling.KindPublicKey, signaling.PublicKey{PublicKey: c.keys.PublicKey()})
	}
	for _, id := range p.ExistingUsers {
		id := id
		c.enqueue(id, func() { c.dial(id) })
	}
	c.updateStatus()
}

func (c *Coordinator) peerJoined(p signaling.UserEvent) {
	c.mu.Lock()
	if c.roomID == "" || p.UserID == c.selfID {
		c.mu.Unlock()
		return
	}
	c.members[p.UserID] = struct{}{}
	c.mu.Unlock()

	c.emit(Event{Kind: EventPeerJoined, PeerID: p.UserID, UserCount: p.UserCount})
	c.enqueue(p.UserID, func() {
		if c.keys != nil {
			c.signal(signaling.KindPublicKey, signaling.PublicKey{To: p.UserID, PublicKey: c.keys.PublicKey()})
		}
		c.dial(p.UserID)
	})
	c.updateStatus()
}

func (c *Coordinator) peerLeft(p signaling.UserEvent) {
	c.mu.Lock()
	if c.roomID == "" {
		c.mu.Unlock()
		return
	}
	delete(c.members, p.UserID)
	alone := len(c.members) == 0
	c.mu.Unlock()

	c.emit(Event{Kind: EventPeerLeft, PeerID: p.UserID, UserCount: p.UserCount})
	c.enqueue(p.UserID, func() {
		c.mu.Lock()
		s := c.sessions[p.UserID]
		c.mu.Unlock()
		if s != nil {
			c.closeSession(s, true)
		} else if c.keys != nil {
			c.keys.Forget(p.UserID)
		}
		c.reasm.Discard(p.UserID)
	})
	if alone {
		c.emit(Event{Kind: EventSessionEnded})
	}
	c.updateStatus()
}

// Leave exits the room, closes every direct channel and wipes the timeline.
func (c *Coordinator) Leave() {
	c.teardown(true)
}

func (c *Coordinator) teardown(notify bool) {
	c.mu.Lock()
	if c.roomID == "" {
		c.mu.Unlock()
		return
	}
	c.roomID = ""
	former := make([]string, 0, len(c.members))
	for id := range c.members {
		former = append(former, id)
	}
	c.members = make(map[string]struct{})
	sessions := make([]*PeerSession, 0, len(c.sessions))
	for _, s := range c.sessions {
		sessions = append(sessions, s)
	}
	c.mu.Unlock()

	if notify {
		c.signal(signaling.KindLeaveRoom, nil)
	}
	for _, s := range sessions {
		c.closeSession(s, true)
	}
	for _, id := range former {
		c.reasm.Discard(id)
	}
	if c.keys != nil {
		if err := c.keys.Reset(); err != nil {
			c.log.Warn("Failed to rotate key pair", "error", err)
		}
	}
	c.timeline.Clear()
	c.updateStatus()
}

// Close leaves the room and waits for queued peer tasks to finish.
func (c *Coordinator) Close() {
	c.Leave()
	c.settle()
}

func (c *Coordinator) queue(peerID string) *taskQueue {
	c.mu.Lock()
	defer c.mu.Unlock()
	q, ok := c.queues[peerID]
	if !ok {
		q = &taskQueue{}
		c.queues[peerID] = q
	}
	return q
}

func (c *Coordinator) enqueue(peerID string, task func()) {
	c.idleMu.Lock()
	c.inflight++
	c.idleMu.Unlock()

	c.queue(peerID).push(func() {
		defer func() {
			c.idleMu.Lock()
			c.inflight--
			if c.inflight == 0 {
				c.idle.Broadcast()
			}
			c.idleMu.Unlock()
		}()
		task()
	})
}

// settle blocks until no peer task is queued or running.
func (c *Coordinator) settle() {
	c.idleMu.Lock()
	defer c.idleMu.Unlock()
	for c.inflight > 0 {
		c.idle.Wait()
	}
}

// signal reports whether msg was handed to the signaling connection.
func (c *Coordinator) signal(kind signaling.Kind, payload any) bool {
	msg, err := signaling.NewMessage(kind, payload)
	if err != nil {
		c.log.Error("Failed to encode signaling message", "type", kind, "error", err)
		return false
	}
	if !c.sig.Send(msg) {
		c.log.Debug("Signaling connection closed, message dropped", "type", kind)
		return false
	}
	return true
}

func (c *Coordinator) emit(ev Event) {
	select {
	case c.events <- ev:
	default:
		c.log.Warn("Event buffer full, dropping event", "kind", ev.Kind)
	}
}

func (c *Coordinator) computeStatus() Status {
	switch {
	case c.roomID == "":
		return StatusDisconnected
	case len(c.members) == 0:
		return StatusWaiting
	}
	for _, s := range c.sessions {
		if s.state == StateChannelOpen {
			return StatusP2P
		}
	}
	return StatusRelay
}

func (c *Coordinator) updateStatus() {
	c.mu.Lock()
	next := c.computeStatus()
	changed := next != c.status
	c.status = next
	c.mu.Unlock()

	if changed {
		c.emit(Event{Kind: EventStatus, Status: next})
	}
}

func (c *Coordinator) reportError(peerID string, err error) {
	c.log.Warn("Session error", "peer", peerID, "error", err)
	c.emit(Event{Kind: EventError, PeerID: peerID, Err: err})
}

func (c *Coordinator) onPublicKey(p signaling.PublicKey) {
	if c.keys == nil {
		return
	}
	c.mu.Lock()
	inRoom := c.roomID != ""
	c.mu.Unlock()
	if !inRoom {
		c.log.Debug("Ignoring public key outside a room", "peer", p.From)
		return
	}
	if err := c.keys.Derive(p.From, p.PublicKey); err != nil {
		c.reportError(p.From, transfer.NewPeerError("derive key", p.From, errors.Join(transfer.ErrKeyDerivation, err)))
		return
	}
	c.emit(Event{Kind: EventEncryptionReady, PeerID: p.From})

	if p.Direct && !p.Reply {
		c.signal(signaling.KindPublicKey, signaling.PublicKey{
			To:        p.From,
			PublicKey: c.keys.PublicKey(),
			Reply:     true,
		})
	}
}

// chunkPayload decodes a relayed chunk.
func chunkPayload(raw json.RawMessage) (*transfer.Chunk, error) {
	var ch transfer.Chunk
	if err := json.Unmarshal(raw, &ch); err != nil {
		return nil, err
	}
	return &ch, nil
}

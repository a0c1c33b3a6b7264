package signaling

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BioHazard786/vanish/internal/room"
)

type fakePeer struct {
	id string

	mu     sync.Mutex
	msgs   []*Message
	reject bool
}

func (p *fakePeer) ID() string { return p.id }

func (p *fakePeer) Send(msg *Message) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.reject {
		return false
	}
	p.msgs = append(p.msgs, msg)
	return true
}

// drain returns and forgets everything received so far.
func (p *fakePeer) drain() []*Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	msgs := p.msgs
	p.msgs = nil
	return msgs
}

func (p *fakePeer) kinds() []Kind {
	var kinds []Kind
	for _, m := range p.drain() {
		kinds = append(kinds, m.Type)
	}
	return kinds
}

type routerFixture struct {
	reg    *room.Registry
	router *Router
	peers  map[string]*fakePeer
}

func newFixture(t *testing.T, ids ...string) *routerFixture {
	t.Helper()
	reg := room.NewRegistry(room.Options{Capacity: 3, RemoveOnEmpty: true, Timeout: time.Hour})
	f := &routerFixture{
		reg:    reg,
		router: NewRouter(reg, nil),
		peers:  make(map[string]*fakePeer),
	}
	f.router.now = func() time.Time { return time.UnixMilli(1_700_000_000_000) }
	for _, id := range ids {
		p := &fakePeer{id: id}
		f.peers[id] = p
		f.router.Register(p)
		p.drain()
	}
	return f
}

func (f *routerFixture) send(t *testing.T, from string, kind Kind, payload any) {
	t.Helper()
	msg, err := NewMessage(kind, payload)
	require.NoError(t, err)
	f.router.HandleMessage(from, msg)
}

func (f *routerFixture) drainAll() {
	for _, p := range f.peers {
		p.drain()
	}
}

func single(t *testing.T, p *fakePeer, kind Kind, v any) {
	t.Helper()
	msgs := p.drain()
	require.Len(t, msgs, 1, "peer %s", p.id)
	require.Equal(t, kind, msgs[0].Type)
	if v != nil {
		require.NoError(t, msgs[0].Decode(v))
	}
}

func TestRegisterAnnouncesConnectionID(t *testing.T) {
	f := newFixture(t)
	p := &fakePeer{id: "conn-1"}
	f.router.Register(p)

	var got Connected
	single(t, p, KindConnected, &got)
	assert.Equal(t, "conn-1", got.ID)
	assert.Equal(t, 1, f.router.Connections())
}

func TestRoomOfThreeRejectsFourth(t *testing.T) {
	f := newFixture(t, "a", "b", "c", "d")

	f.send(t, "a", KindCreateRoom, RoomRequest{RoomID: "abc"})
	var created RoomEntered
	single(t, f.peers["a"], KindRoomCreated, &created)
	assert.Equal(t, "abc", created.RoomID)
	assert.Equal(t, 1, created.UserCount)
	assert.Empty(t, created.ExistingUsers)

	f.send(t, "b", KindJoinRoom, RoomRequest{RoomID: "abc"})
	var joined RoomEntered
	single(t, f.peers["b"], KindRoomJoined, &joined)
	assert.Equal(t, 2, joined.UserCount)
	assert.Equal(t, []string{"a"}, joined.ExistingUsers)

	var ev UserEvent
	single(t, f.peers["a"], KindUserJoined, &ev)
	assert.Equal(t, UserEvent{UserID: "b", UserCount: 2}, ev)

	f.send(t, "c", KindJoinRoom, RoomRequest{RoomID: "abc"})
	single(t, f.peers["c"], KindRoomJoined, &joined)
	assert.Equal(t, 3, joined.UserCount)
	assert.Equal(t, []string{"a", "b"}, joined.ExistingUsers)
	single(t, f.peers["a"], KindUserJoined, nil)
	single(t, f.peers["b"], KindUserJoined, nil)

	f.send(t, "d", KindJoinRoom, RoomRequest{RoomID: "abc"})
	var full RoomFull
	single(t, f.peers["d"], KindRoomFull, &full)
	assert.Equal(t, 3, full.MaxUsers)

	f.send(t, "d", KindCreateRoom, RoomRequest{RoomID: "abc"})
	single(t, f.peers["d"], KindRoomFull, nil)

	for _, id := range []string{"a", "b", "c"} {
		assert.Empty(t, f.peers[id].drain(), "peer %s saw the rejected joiner", id)
	}
	assert.Equal(t, []string{"a", "b", "c"}, f.reg.Members("abc"))
}

func TestCreateOnExistingRoomReportsExistingUsers(t *testing.T) {
	f := newFixture(t, "a", "b")

	f.send(t, "a", KindCreateRoom, RoomRequest{RoomID: "abc"})
	f.drainAll()

	f.send(t, "b", KindCreateRoom, RoomRequest{RoomID: "abc"})
	var created RoomEntered
	single(t, f.peers["b"], KindRoomCreated, &created)
	assert.Equal(t, []string{"a"}, created.ExistingUsers)
	assert.Equal(t, 2, created.UserCount)
	single(t, f.peers["a"], KindUserJoined, nil)
}

func TestJoinUnknownRoom(t *testing.T) {
	f := newFixture(t, "a")

	f.send(t, "a", KindJoinRoom, RoomRequest{RoomID: "nope"})
	var nf RoomNotFound
	single(t, f.peers["a"], KindRoomNotFound, &nf)
	assert.Equal(t, "nope", nf.RoomID)
	assert.Equal(t, 0, f.reg.Len())
}

func TestSignalsAreUnicastAndUnchanged(t *testing.T) {
	f := newFixture(t, "a", "b", "c")
	for _, id := range []string{"a", "b", "c"} {
		f.send(t, id, KindCreateRoom, RoomRequest{RoomID: "abc"})
	}
	f.drainAll()

	body := json.RawMessage(`{"type":"offer","sdp":"v=0\r\no=- 1 2 IN IP4 127.0.0.1"}`)
	f.send(t, "a", KindOffer, Signal{To: "b", Offer: body})

	var sig Signal
	single(t, f.peers["b"], KindOffer, &sig)
	assert.Equal(t, "a", sig.From)
	assert.Empty(t, sig.To)
	assert.JSONEq(t, string(body), string(sig.Offer))
	assert.Empty(t, f.peers["a"].drain())
	assert.Empty(t, f.peers["c"].drain())

	f.send(t, "b", KindAnswer, Signal{To: "a", Answer: json.RawMessage(`{"type":"answer","sdp":"x"}`)})
	single(t, f.peers["a"], KindAnswer, &sig)
	assert.Equal(t, "b", sig.From)

	f.send(t, "c", KindICECandidate, Signal{To: "a", Candidate: json.RawMessage(`{"candidate":"candidate:1"}`)})
	single(t, f.peers["a"], KindICECandidate, &sig)
	assert.Equal(t, "c", sig.From)
	assert.JSONEq(t, `{"candidate":"candidate:1"}`, string(sig.Candidate))
}

func TestSignalBodyKeepsItsBytes(t *testing.T) {
	f := newFixture(t, "a", "b")
	f.send(t, "a", KindCreateRoom, RoomRequest{RoomID: "abc"})
	f.send(t, "b", KindJoinRoom, RoomRequest{RoomID: "abc"})
	f.drainAll()

	candidate := `{ "candidate": "candidate:1 <host>" }`
	f.router.HandleMessage("a", &Message{
		Type:    KindICECandidate,
		Payload: json.RawMessage(`{"to":"b","candidate":` + candidate + `}`),
	})

	msgs := f.peers["b"].drain()
	require.Len(t, msgs, 1)
	frame, err := msgs[0].Encode()
	require.NoError(t, err)
	assert.Equal(t, `{"type":"ice-candidate","payload":{"from":"a","candidate":`+candidate+`}}`, string(frame))
}

func TestSignalToUnknownPeerIsDropped(t *testing.T) {
	f := newFixture(t, "a", "b")
	f.send(t, "a", KindCreateRoom, RoomRequest{RoomID: "abc"})
	f.send(t, "b", KindJoinRoom, RoomRequest{RoomID: "abc"})
	f.drainAll()

	f.send(t, "a", KindOffer, Signal{To: "ghost", Offer: json.RawMessage(`{}`)})
	assert.Empty(t, f.peers["a"].drain())
	assert.Empty(t, f.peers["b"].drain())
}

func TestPublicKeyBroadcastAndUnicast(t *testing.T) {
	f := newFixture(t, "a", "b", "c")
	for _, id := range []string{"a", "b", "c"} {
		f.send(t, id, KindCreateRoom, RoomRequest{RoomID: "abc"})
	}
	f.drainAll()

	key := json.RawMessage(`{"kty":"EC","crv":"P-256","x":"AA","y":"BB"}`)
	f.send(t, "a", KindPublicKey, PublicKey{PublicKey: key})

	for _, id := range []string{"b", "c"} {
		var pk PublicKey
		single(t, f.peers[id], KindPublicKey, &pk)
		assert.Equal(t, "a", pk.From)
		assert.Equal(t, "a", pk.UserID)
		assert.False(t, pk.Direct)
		assert.False(t, pk.Reply)
		assert.JSONEq(t, string(key), string(pk.PublicKey))
	}
	assert.Empty(t, f.peers["a"].drain())

	f.send(t, "b", KindPublicKey, PublicKey{To: "a", PublicKey: key, Reply: true})
	var pk PublicKey
	single(t, f.peers["a"], KindPublicKey, &pk)
	assert.True(t, pk.Direct)
	assert.True(t, pk.Reply)
	assert.Equal(t, "b", pk.From)
	assert.Empty(t, f.peers["c"].drain())
}

func TestPublicKeyBroadcastOutsideRoomIsDropped(t *testing.T) {
	f := newFixture(t, "a", "b")
	f.send(t, "a", KindPublicKey, PublicKey{PublicKey: json.RawMessage(`{}`)})
	assert.Empty(t, f.peers["b"].drain())
}

func TestChatIsStampedAndDeliveredOnce(t *testing.T) {
	f := newFixture(t, "a", "b", "c")
	for _, id := range []string{"a", "b", "c"} {
		f.send(t, id, KindCreateRoom, RoomRequest{RoomID: "abc"})
	}
	f.drainAll()

	f.send(t, "a", KindChatMessage, Chat{
		Message:     "hi",
		DeleteAfter: 10,
		From:        "forged",
		Timestamp:   42,
	})

	for _, id := range []string{"b", "c"} {
		var chat Chat
		single(t, f.peers[id], KindChatMessage, &chat)
		assert.Equal(t, "hi", chat.Message)
		assert.Equal(t, "text", chat.Type)
		assert.Equal(t, 10, chat.DeleteAfter)
		assert.Equal(t, "a", chat.From)
		assert.Equal(t, int64(1_700_000_000_000), chat.Timestamp)
	}
	assert.Empty(t, f.peers["a"].drain())
}

func TestChatOutsideRoomIsDropped(t *testing.T) {
	f := newFixture(t, "a", "b")
	f.send(t, "a", KindChatMessage, Chat{Message: "hi"})
	assert.Empty(t, f.peers["a"].drain())
	assert.Empty(t, f.peers["b"].drain())
}

func TestLeaveNotifiesRemainingAndDeletesEmptyRoom(t *testing.T) {
	f := newFixture(t, "a", "b")
	f.send(t, "a", KindCreateRoom, RoomRequest{RoomID: "abc"})
	f.send(t, "b", KindJoinRoom, RoomRequest{RoomID: "abc"})
	f.drainAll()

	f.send(t, "a", KindLeaveRoom, nil)
	var ev UserEvent
	single(t, f.peers["b"], KindUserLeft, &ev)
	assert.Equal(t, UserEvent{UserID: "a", UserCount: 1}, ev)
	assert.Empty(t, f.peers["a"].drain())

	// Leaving twice is a no-op.
	f.send(t, "a", KindLeaveRoom, nil)
	assert.Empty(t, f.peers["b"].drain())

	f.router.Unregister("b")
	assert.Equal(t, 0, f.reg.Len())
	assert.Equal(t, 1, f.router.Connections())

	// The room can be created afresh.
	f.send(t, "a", KindCreateRoom, RoomRequest{RoomID: "abc"})
	var created RoomEntered
	single(t, f.peers["a"], KindRoomCreated, &created)
	assert.Equal(t, 1, created.UserCount)
}

func TestDisconnectRunsLeavePath(t *testing.T) {
	f := newFixture(t, "a", "b", "c")
	for _, id := range []string{"a", "b", "c"} {
		f.send(t, id, KindCreateRoom, RoomRequest{RoomID: "abc"})
	}
	f.drainAll()

	f.router.Unregister("b")
	for _, id := range []string{"a", "c"} {
		var ev UserEvent
		single(t, f.peers[id], KindUserLeft, &ev)
		assert.Equal(t, UserEvent{UserID: "b", UserCount: 2}, ev)
	}

	// A disconnected connection is no longer a valid target.
	f.send(t, "a", KindOffer, Signal{To: "b", Offer: json.RawMessage(`{}`)})
	assert.Empty(t, f.peers["b"].drain())

	// Messages from a forgotten connection are ignored.
	f.send(t, "b", KindCreateRoom, RoomRequest{RoomID: "other"})
	assert.Equal(t, 1, f.reg.Len())
}

func TestSwitchingRoomsLeavesTheOldOne(t *testing.T) {
	f := newFixture(t, "a", "b")
	f.send(t, "a", KindCreateRoom, RoomRequest{RoomID: "one"})
	f.send(t, "b", KindJoinRoom, RoomRequest{RoomID: "one"})
	f.drainAll()

	f.send(t, "b", KindCreateRoom, RoomRequest{RoomID: "two"})
	single(t, f.peers["a"], KindUserLeft, nil)
	assert.Equal(t, []Kind{KindRoomCreated}, f.peers["b"].kinds())
	assert.Equal(t, []string{"a"}, f.reg.Members("one"))
	assert.Equal(t, []string{"b"}, f.reg.Members("two"))
}

func TestMalformedMessagesAreDropped(t *testing.T) {
	f := newFixture(t, "a", "b")
	f.send(t, "a", KindCreateRoom, RoomRequest{RoomID: "abc"})
	f.send(t, "b", KindJoinRoom, RoomRequest{RoomID: "abc"})
	f.drainAll()

	bad := []*Message{
		{Type: "bogus"},
		{Type: KindCreateRoom},
		{Type: KindCreateRoom, Payload: json.RawMessage(`{"roomId":""}`)},
		{Type: KindJoinRoom, Payload: json.RawMessage(`"abc"`)},
		{Type: KindOffer, Payload: json.RawMessage(`{"offer":{}}`)},
		{Type: KindOffer, Payload: json.RawMessage(`{"to":"b"}`)},
		{Type: KindAnswer, Payload: json.RawMessage(`{"to":"b","answer":null}`)},
		{Type: KindICECandidate, Payload: json.RawMessage(`{"to":"b","offer":{}}`)},
		{Type: KindPublicKey, Payload: json.RawMessage(`{"to":"b"}`)},
		{Type: KindChatMessage, Payload: json.RawMessage(`{"message":"x","deleteAfter":-1}`)},
		{Type: KindChatMessage, Payload: json.RawMessage(`[1,2,3]`)},
	}
	for _, msg := range bad {
		_, err := Parse(msg)
		assert.ErrorIs(t, err, ErrMalformed, "type %q payload %s", msg.Type, msg.Payload)
		f.router.HandleMessage("a", msg)
	}

	assert.Empty(t, f.peers["a"].drain())
	assert.Empty(t, f.peers["b"].drain())
	assert.Equal(t, []string{"a", "b"}, f.reg.Members("abc"))
}

func TestFullOutboundQueueDoesNotBlock(t *testing.T) {
	f := newFixture(t, "a", "b")
	f.send(t, "a", KindCreateRoom, RoomRequest{RoomID: "abc"})
	f.send(t, "b", KindJoinRoom, RoomRequest{RoomID: "abc"})
	f.drainAll()

	f.peers["b"].mu.Lock()
	f.peers["b"].reject = true
	f.peers["b"].mu.Unlock()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			f.send(t, "a", KindChatMessage, Chat{Message: "spam"})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("router blocked on a full peer")
	}
}

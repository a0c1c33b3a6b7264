package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/BioHazard786/vanish/internal/e2ee"
	"github.com/BioHazard786/vanish/internal/ephemeral"
	"github.com/BioHazard786/vanish/internal/room"
	"github.com/BioHazard786/vanish/internal/signaling"
	"github.com/BioHazard786/vanish/internal/transfer"
)

const waitFor = 5 * time.Second

// inbox is the server's view of a client connection.
type inbox struct {
	id string
	ch chan *signaling.Message
}

func (b *inbox) ID() string { return b.id }

func (b *inbox) Send(msg *signaling.Message) bool {
	select {
	case b.ch <- msg:
		return true
	default:
		return false
	}
}

// uplink hands client messages straight to the router.
type uplink struct {
	id     string
	router *signaling.Router
}

func (u uplink) Send(msg *signaling.Message) bool {
	u.router.HandleMessage(u.id, msg)
	return true
}

// recorder is a Signaler that keeps everything sent.
type recorder struct {
	mu   sync.Mutex
	msgs []*signaling.Message
}

func (r *recorder) Send(msg *signaling.Message) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, msg)
	return true
}

func (r *recorder) take() []*signaling.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	msgs := r.msgs
	r.msgs = nil
	return msgs
}

type description struct {
	Type string `json:"type"`
	SDP  string `json:"sdp"`
}

// fakeNet pairs in-memory links through offer tokens.
type fakeNet struct {
	mu        sync.Mutex
	seq       int
	offers    map[string]*fakeLink
	links     []*fakeLink
	neverOpen bool
}

func newFakeNet() *fakeNet {
	return &fakeNet{offers: make(map[string]*fakeLink)}
}

// openLinks counts open links by owner and peer.
func (n *fakeNet) openLinks() map[[2]string]int {
	n.mu.Lock()
	links := append([]*fakeLink(nil), n.links...)
	n.mu.Unlock()

	counts := make(map[[2]string]int)
	for _, l := range links {
		if l.Writable() {
			counts[[2]string{l.owner, l.peer}]++
		}
	}
	return counts
}

type fakeConnector struct {
	net   *fakeNet
	owner string
}

func (f *fakeConnector) Dial(peerID string, ev LinkEvents) (Link, error) {
	l := &fakeLink{net: f.net, owner: f.owner, peer: peerID, ev: ev}
	f.net.mu.Lock()
	f.net.links = append(f.net.links, l)
	f.net.mu.Unlock()
	return l, nil
}

type fakeLink struct {
	net         *fakeNet
	owner, peer string
	ev          LinkEvents

	mu         sync.Mutex
	remote     *fakeLink
	token      string
	open       bool
	closed     bool
	candidates int
}

func (l *fakeLink) CreateOffer() (json.RawMessage, error) {
	l.net.mu.Lock()
	l.net.seq++
	token := fmt.Sprintf("%s>%s#%d", l.owner, l.peer, l.net.seq)
	l.net.offers[token] = l
	l.net.mu.Unlock()

	l.mu.Lock()
	l.token = token
	l.mu.Unlock()

	if l.ev.OnCandidate != nil {
		l.ev.OnCandidate(json.RawMessage(`{"candidate":"candidate:1 1 udp 2130706431 127.0.0.1 9 typ host"}`))
	}
	return json.Marshal(description{Type: "offer", SDP: token})
}

func (l *fakeLink) AcceptOffer(raw json.RawMessage) (json.RawMessage, error) {
	var d description
	if err := json.Unmarshal(raw, &d); err != nil || d.Type != "offer" {
		return nil, errors.New("not an offer")
	}

	l.net.mu.Lock()
	offerer := l.net.offers[d.SDP]
	delete(l.net.offers, d.SDP)
	l.net.mu.Unlock()
	if offerer == nil {
		return nil, errors.New("unknown offer")
	}

	l.mu.Lock()
	l.remote, l.token = offerer, d.SDP
	l.mu.Unlock()
	offerer.mu.Lock()
	offerer.remote = l
	offerer.mu.Unlock()

	return json.Marshal(description{Type: "answer", SDP: d.SDP})
}

func (l *fakeLink) AcceptAnswer(raw json.RawMessage) error {
	var d description
	if err := json.Unmarshal(raw, &d); err != nil || d.Type != "answer" {
		return errors.New("not an answer")
	}

	l.mu.Lock()
	remote, token := l.remote, l.token
	l.mu.Unlock()
	if remote == nil || token != d.SDP {
		return errors.New("answer for another offer")
	}
	if l.net.neverOpen {
		return nil
	}

	if l.markOpen() && remote.markOpen() {
		l.ev.OnOpen()
		remote.ev.OnOpen()
	}
	return nil
}

func (l *fakeLink) markOpen() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return false
	}
	l.open = true
	return true
}

func (l *fakeLink) AddCandidate(json.RawMessage) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.candidates++
	return nil
}

func (l *fakeLink) Send(data []byte) error {
	l.mu.Lock()
	ok := l.open && !l.closed
	remote := l.remote
	l.mu.Unlock()
	if !ok {
		return transfer.ErrChannelNotOpen
	}
	remote.receive(append([]byte(nil), data...))
	return nil
}

func (l *fakeLink) receive(data []byte) {
	l.mu.Lock()
	ok := l.open && !l.closed
	l.mu.Unlock()
	if ok && l.ev.OnMessage != nil {
		l.ev.OnMessage(data)
	}
}

func (l *fakeLink) Writable() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.open && !l.closed
}

func (l *fakeLink) Close() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed, l.open = true, false
	remote := l.remote
	l.mu.Unlock()

	if remote != nil {
		remote.peerClosed()
	}
	return nil
}

func (l *fakeLink) peerClosed() {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}
	l.closed, l.open = true, false
	l.mu.Unlock()

	if l.ev.OnClose != nil {
		l.ev.OnClose()
	}
}

// harness connects coordinators through a real router and a fakeNet.
type harness struct {
	t      *testing.T
	ctx    context.Context
	router *signaling.Router
	net    *fakeNet
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	reg := room.NewRegistry(room.Options{Capacity: 3, RemoveOnEmpty: true, Timeout: time.Hour})
	return &harness{
		t:      t,
		ctx:    ctx,
		router: signaling.NewRouter(reg, nil),
		net:    newFakeNet(),
	}
}

type clientOptions struct {
	relayOnly bool
	plaintext bool
	chunkSize int
}

type client struct {
	*Coordinator
	keys     *e2ee.KeyRing
	timeline *ephemeral.Timeline
}

func (h *harness) client(id string, o clientOptions) *client {
	h.t.Helper()

	keys, err := e2ee.NewKeyRing()
	require.NoError(h.t, err)
	tl := ephemeral.NewTimeline()

	opts := Options{
		Signaler:   uplink{id: id, router: h.router},
		Timeline:   tl,
		ChunkSize:  o.chunkSize,
		ChunkDelay: -1,
	}
	if !o.plaintext {
		opts.Keys = keys
	}
	if !o.relayOnly {
		opts.Connector = &fakeConnector{net: h.net, owner: id}
	}

	c := &client{Coordinator: New(opts), keys: keys, timeline: tl}
	in := &inbox{id: id, ch: make(chan *signaling.Message, 1024)}
	h.router.Register(in)
	go c.Run(h.ctx, in.ch)

	require.Eventually(h.t, func() bool { return c.SelfID() == id }, waitFor, 5*time.Millisecond)
	return c
}

// waitDirect waits until every client has an open, encrypted channel to
// every other.
func waitDirect(t *testing.T, encrypted bool, clients ...*client) {
	t.Helper()
	require.Eventually(t, func() bool {
		for _, c := range clients {
			peers := c.Peers()
			if len(peers) != len(clients)-1 {
				return false
			}
			for _, p := range peers {
				if p.State != StateChannelOpen || p.Encrypted != encrypted {
					return false
				}
			}
		}
		return true
	}, waitFor, 10*time.Millisecond)
}

func waitEvent(t *testing.T, c *Coordinator, kind EventKind) Event {
	t.Helper()
	timeout := time.After(waitFor)
	for {
		select {
		case ev := <-c.Events():
			if ev.Kind == kind {
				return ev
			}
		case <-timeout:
			t.Fatalf("no %s event", kind)
			return Event{}
		}
	}
}

func message(t *testing.T, kind signaling.Kind, payload any) *signaling.Message {
	t.Helper()
	msg, err := signaling.NewMessage(kind, payload)
	require.NoError(t, err)
	return msg
}

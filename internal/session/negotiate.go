package session

import (
	"encoding/json"

	"github.com/BioHazard786/vanish/internal/signaling"
	"github.com/BioHazard786/vanish/internal/transfer"
)

// The functions in this file run on the remote peer's task queue.

func (c *Coordinator) dial(peerID string) {
	if c.conn == nil {
		return
	}

	c.mu.Lock()
	if c.roomID == "" || peerID == c.selfID {
		c.mu.Unlock()
		return
	}
	if _, member := c.members[peerID]; !member {
		c.mu.Unlock()
		return
	}
	if _, live := c.sessions[peerID]; live {
		c.mu.Unlock()
		return
	}
	s := &PeerSession{id: peerID, role: RoleInitiator, state: StateNegotiating}
	c.sessions[peerID] = s
	c.mu.Unlock()

	link, ok := c.connect(s)
	if !ok {
		return
	}
	offer, err := link.CreateOffer()
	if err != nil {
		c.negotiationFailed(s, err)
		return
	}
	c.signal(signaling.KindOffer, signaling.Signal{To: peerID, Offer: offer})
	c.log.Debug("Sent offer", "peer", peerID)
}

func (c *Coordinator) onOffer(from string, offer json.RawMessage) {
	if c.conn == nil {
		return
	}

	c.mu.Lock()
	if c.roomID == "" {
		c.mu.Unlock()
		return
	}
	old := c.sessions[from]
	if old != nil && old.role == RoleInitiator && old.state == StateNegotiating && c.selfID < from {
		c.mu.Unlock()
		c.log.Debug("Offer collision, keeping own offer", "peer", from)
		return
	}
	s := &PeerSession{id: from, role: RoleResponder, state: StateNegotiating}
	c.sessions[from] = s
	c.mu.Unlock()

	if old != nil {
		c.closeSession(old, false)
	}

	link, ok := c.connect(s)
	if !ok {
		return
	}
	answer, err := link.AcceptOffer(offer)
	if err != nil {
		c.negotiationFailed(s, err)
		return
	}
	c.signal(signaling.KindAnswer, signaling.Signal{To: from, Answer: answer})
	c.log.Debug("Sent answer", "peer", from)
}

func (c *Coordinator) onAnswer(from string, answer json.RawMessage) {
	c.mu.Lock()
	s := c.sessions[from]
	if s == nil || s.link == nil || s.role != RoleInitiator || s.state != StateNegotiating {
		c.mu.Unlock()
		c.log.Debug("Ignoring unexpected answer", "peer", from)
		return
	}
	s.answered = true
	link := s.link
	c.mu.Unlock()

	if err := link.AcceptAnswer(answer); err != nil {
		c.negotiationFailed(s, err)
	}
}

func (c *Coordinator) onCandidate(from string, candidate json.RawMessage) {
	c.mu.Lock()
	s := c.sessions[from]
	var link Link
	stale := false
	if s != nil {
		link = s.link
		stale = s.role == RoleInitiator && !s.answered
	}
	c.mu.Unlock()

	if link == nil {
		return
	}
	if stale {
		c.log.Debug("Dropping ICE candidate sent before the answer", "peer", from)
		return
	}
	if err := link.AddCandidate(candidate); err != nil {
		c.log.Debug("Failed to add ICE candidate", "peer", from, "error", err)
	}
}

// connect dials the link for s and records it. It reports false if s was
// abandoned.
func (c *Coordinator) connect(s *PeerSession) (Link, bool) {
	link, err := c.conn.Dial(s.id, c.linkEvents(s))
	if err != nil {
		c.negotiationFailed(s, err)
		return nil, false
	}

	c.mu.Lock()
	s.link = link
	c.mu.Unlock()
	c.updateStatus()
	return link, true
}

func (c *Coordinator) linkEvents(s *PeerSession) LinkEvents {
	return LinkEvents{
		OnCandidate: func(candidate json.RawMessage) {
			c.enqueue(s.id, func() {
				if c.current(s) {
					c.signal(signaling.KindICECandidate, signaling.Signal{To: s.id, Candidate: candidate})
				}
			})
		},
		OnOpen: func() {
			c.enqueue(s.id, func() { c.opened(s) })
		},
		OnClose: func() {
			c.enqueue(s.id, func() { c.closeSession(s, true) })
		},
		OnFailed: func(err error) {
			c.enqueue(s.id, func() { c.negotiationFailed(s, err) })
		},
		OnMessage: func(data []byte) {
			c.receiveFrame(s.id, data)
		},
	}
}

func (c *Coordinator) current(s *PeerSession) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessions[s.id] == s
}

func (c *Coordinator) opened(s *PeerSession) {
	c.mu.Lock()
	if c.sessions[s.id] != s || s.state != StateNegotiating {
		c.mu.Unlock()
		return
	}
	s.state = StateChannelOpen
	c.mu.Unlock()

	c.log.Info("Direct channel open", "peer", s.id, "role", s.role)
	c.updateStatus()
}

func (c *Coordinator) negotiationFailed(s *PeerSession, cause error) {
	if c.current(s) {
		c.reportError(s.id, &transfer.Error{
			Op:      "negotiate",
			Peer:    s.id,
			Err:     transfer.ErrChannelNegotiation,
			Details: cause.Error(),
		})
	}
	c.closeSession(s, true)
}

// closeSession releases s. forget also drops the peer's shared key, unless s
// has already been replaced by a newer session.
func (c *Coordinator) closeSession(s *PeerSession, forget bool) {
	c.mu.Lock()
	if s.state == StateClosed {
		c.mu.Unlock()
		return
	}
	s.state = StateClosed
	current := c.sessions[s.id] == s
	if current {
		delete(c.sessions, s.id)
	}
	link := s.link
	c.mu.Unlock()

	if link != nil {
		if err := link.Close(); err != nil {
			c.log.Debug("Failed to close link", "peer", s.id, "error", err)
		}
	}
	if forget && current && c.keys != nil {
		c.keys.Forget(s.id)
	}
	c.updateStatus()
}

package session

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/BioHazard786/vanish/internal/ephemeral"
	"github.com/BioHazard786/vanish/internal/signaling"
	"github.com/BioHazard786/vanish/internal/transfer"
	"github.com/BioHazard786/vanish/internal/webrtc"
)

// Send shows body locally and delivers it to every other member. Each
// message, and each chunk of a large one, goes over open direct channels
// when at least one accepts it and through the server otherwise.
func (c *Coordinator) Send(kind Kind, body string, deleteAfter time.Duration) (Delivery, error) {
	c.mu.Lock()
	roomID, selfID := c.roomID, c.selfID
	c.mu.Unlock()
	if roomID == "" {
		return Delivery{}, transfer.NewError("send", transfer.ErrNotInRoom)
	}
	if deleteAfter < 0 {
		deleteAfter = 0
	}
	if kind == "" {
		kind = KindText
	}

	now := c.now()
	c.timeline.Add(ephemeral.Entry{
		From:        selfID,
		Self:        true,
		Kind:        string(kind),
		Body:        body,
		SentAt:      now,
		DeleteAfter: deleteAfter,
	})

	env := Envelope{
		Body:        body,
		Kind:        kind,
		SentAt:      now.UnixMilli(),
		DeleteAfter: int(deleteAfter / time.Second),
	}
	if len(body) <= c.chunkSize {
		return delivered(c.sendEnvelope(env))
	}

	var total Delivery
	chunks := transfer.Split(uuid.NewString(), string(kind), []byte(body), c.chunkSize)
	for i := range chunks {
		if i > 0 && c.chunkDelay > 0 {
			time.Sleep(c.chunkDelay)
		}
		part := env
		part.Body = ""
		part.Kind = KindVideoChunk
		part.Chunk = &chunks[i]
		total.add(c.sendEnvelope(part))
	}
	return delivered(total)
}

func delivered(d Delivery) (Delivery, error) {
	if d.Direct == 0 && d.Relayed == 0 {
		return d, transfer.NewError("send", transfer.ErrPeerUnreachable)
	}
	return d, nil
}

type target struct {
	id   string
	link Link
}

func (c *Coordinator) openLinks() []target {
	c.mu.Lock()
	open := make([]target, 0, len(c.sessions))
	for id, s := range c.sessions {
		if s.state == StateChannelOpen && s.link != nil {
			open = append(open, target{id: id, link: s.link})
		}
	}
	c.mu.Unlock()

	writable := open[:0]
	for _, t := range open {
		if t.link.Writable() {
			writable = append(writable, t)
		}
	}
	return writable
}

func (c *Coordinator) sendEnvelope(env Envelope) Delivery {
	var d Delivery
	for _, t := range c.openLinks() {
		frame, err := webrtc.EncodeFrame(webrtc.FrameChat, c.seal(t.id, env))
		if err != nil {
			c.log.Error("Failed to encode frame", "error", err)
			continue
		}
		if err := t.link.Send(frame); err != nil {
			c.log.Debug("Direct send failed", "peer", t.id, "error", err)
			continue
		}
		d.Direct++
	}
	if d.Direct > 0 {
		return d
	}

	chat := signaling.Chat{
		Message:     env.Body,
		Type:        string(env.Kind),
		DeleteAfter: env.DeleteAfter,
	}
	if env.Chunk != nil {
		raw, err := json.Marshal(env.Chunk)
		if err != nil {
			c.log.Error("Failed to encode chunk", "error", err)
			return d
		}
		chat.Chunk = raw
	}
	if c.signal(signaling.KindChatMessage, chat) {
		d.Relayed = 1
	}
	return d
}

// seal returns the copy of env sent to peerID, encrypted when a shared key
// exists. An encryption failure sends that copy in plaintext.
func (c *Coordinator) seal(peerID string, env Envelope) Envelope {
	if c.keys == nil || !c.keys.Ready(peerID) {
		return env
	}

	plain := env.Body
	if env.Chunk != nil {
		plain = string(env.Chunk.Data)
	}
	sealed, err := c.keys.Encrypt(peerID, plain)
	if err != nil {
		c.reportError(peerID, transfer.NewPeerError("encrypt", peerID, errors.Join(transfer.ErrEncryptDecrypt, err)))
		return env
	}

	env.Body = sealed
	env.Encrypted = true
	if env.Chunk != nil {
		ch := *env.Chunk
		ch.Data = nil
		env.Chunk = &ch
	}
	return env
}

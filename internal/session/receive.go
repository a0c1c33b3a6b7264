package session

import (
	"errors"
	"time"

	"github.com/BioHazard786/vanish/internal/ephemeral"
	"github.com/BioHazard786/vanish/internal/signaling"
	"github.com/BioHazard786/vanish/internal/transfer"
	"github.com/BioHazard786/vanish/internal/webrtc"
)

func (c *Coordinator) receiveFrame(from string, data []byte) {
	frame, err := webrtc.DecodeFrame(data)
	if err != nil {
		c.log.Debug("Dropping undecodable frame", "peer", from, "error", err)
		return
	}
	if frame.Type != webrtc.FrameChat {
		c.log.Debug("Ignoring frame", "peer", from, "type", frame.Type)
		return
	}
	var env Envelope
	if err := frame.DecodePayload(&env); err != nil {
		c.log.Debug("Dropping malformed envelope", "peer", from, "error", err)
		return
	}
	c.deliver(from, env, false)
}

func (c *Coordinator) receiveRelay(chat signaling.Chat) {
	env := Envelope{
		Body:        chat.Message,
		Kind:        Kind(chat.Type),
		SentAt:      chat.Timestamp,
		DeleteAfter: chat.DeleteAfter,
		Encrypted:   chat.Encrypted,
	}
	if env.Kind == "" {
		env.Kind = KindText
	}
	if len(chat.Chunk) > 0 {
		ch, err := chunkPayload(chat.Chunk)
		if err != nil {
			c.log.Debug("Dropping malformed relayed chunk", "peer", chat.From, "error", err)
			return
		}
		env.Chunk = ch
	}
	c.deliver(chat.From, env, true)
}

func (c *Coordinator) deliver(from string, env Envelope, relayed bool) {
	if c.RoomID() == "" {
		return
	}

	if env.Encrypted {
		plain, err := c.open(from, env.Body)
		if err != nil {
			c.reportError(from, transfer.NewPeerError("decrypt", from, errors.Join(transfer.ErrEncryptDecrypt, err)))
			if env.Kind == KindVideoChunk {
				return
			}
			plain = DecryptFailedText
		}
		if env.Kind == KindVideoChunk && env.Chunk != nil {
			ch := *env.Chunk
			ch.Data = []byte(plain)
			env.Chunk = &ch
		} else {
			env.Body = plain
		}
	}

	kind := env.Kind
	if kind == KindVideoChunk {
		if env.Chunk == nil {
			c.log.Debug("Dropping chunk envelope without chunk", "peer", from)
			return
		}
		c.reasm.Prune(transfer.StaleTransferAge)
		payload, chunkKind, done, err := c.reasm.Add(from, *env.Chunk)
		if err != nil {
			c.log.Debug("Dropping chunk", "peer", from, "error", err)
			return
		}
		if !done {
			return
		}
		env.Body = string(payload)
		kind = Kind(chunkKind)
		if kind == "" {
			kind = KindVideo
		}
	}

	sentAt := c.now()
	if env.SentAt > 0 {
		sentAt = time.UnixMilli(env.SentAt)
	}
	deleteAfter := max(env.DeleteAfter, 0)

	c.timeline.Add(ephemeral.Entry{
		From:        from,
		Kind:        string(kind),
		Body:        env.Body,
		Encrypted:   env.Encrypted,
		Relayed:     relayed,
		SentAt:      sentAt,
		DeleteAfter: time.Duration(deleteAfter) * time.Second,
	})
}

func (c *Coordinator) open(from, body string) (string, error) {
	if c.keys == nil {
		return "", transfer.ErrEncryptDecrypt
	}
	return c.keys.Decrypt(from, body)
}

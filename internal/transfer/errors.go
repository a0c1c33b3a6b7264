package transfer

import (
	"errors"
	"fmt"
)

var (
	ErrPeerUnreachable    = errors.New("peer unreachable")
	ErrMalformedPayload   = errors.New("malformed payload")
	ErrKeyDerivation      = errors.New("key derivation failed")
	ErrEncryptDecrypt     = errors.New("encrypt/decrypt failed")
	ErrChannelNegotiation = errors.New("channel negotiation failed")
	ErrChannelNotOpen     = errors.New("channel not open")
	ErrChannelClosed      = errors.New("channel closed")
	ErrNotInRoom          = errors.New("not in a room")
	ErrSignalingError     = errors.New("signaling server error")
	ErrChunkMismatch      = errors.New("chunk does not match transfer")
)

// Error annotates a failure with the operation and, when known, the remote peer.
type Error struct {
	Op      string
	Peer    string
	Err     error
	Details string
}

func (e *Error) Error() string {
	op := e.Op
	if e.Peer != "" {
		op += " " + e.Peer
	}
	if e.Details != "" {
		return fmt.Sprintf("%s: %v (%s)", op, e.Err, e.Details)
	}
	return fmt.Sprintf("%s: %v", op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func NewError(op string, err error) *Error {
	return &Error{Op: op, Err: err}
}

func NewPeerError(op, peer string, err error) *Error {
	return &Error{Op: op, Peer: peer, Err: err}
}

func WrapError(op string, err error, details string) *Error {
	return &Error{Op: op, Err: err, Details: details}
}

package webrtc

import "github.com/vmihailenco/msgpack/v5"

// Frame types carried on the chat data channel.
const (
	FrameChat = "chat"
)

// Frame is the msgpack envelope of every data-channel message.
type Frame struct {
	Type    string             `msgpack:"type"`
	Payload msgpack.RawMessage `msgpack:"payload"`
}

// DecodePayload decodes the frame payload into v.
func (f Frame) DecodePayload(v any) error {
	return msgpack.Unmarshal(f.Payload, v)
}

// NewFrame creates a Frame with the given type and payload.
func NewFrame(t string, payload any) (Frame, error) {
	b, err := msgpack.Marshal(payload)
	if err != nil {
		return Frame{}, err
	}
	return Frame{Type: t, Payload: b}, nil
}

// EncodeFrame marshals a typed payload straight to wire bytes.
func EncodeFrame(t string, payload any) ([]byte, error) {
	f, err := NewFrame(t, payload)
	if err != nil {
		return nil, err
	}
	return msgpack.Marshal(f)
}

// DecodeFrame parses wire bytes into a Frame.
func DecodeFrame(b []byte) (Frame, error) {
	var f Frame
	err := msgpack.Unmarshal(b, &f)
	return f, err
}

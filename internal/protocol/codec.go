package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/valyala/bytebufferpool"
)

// ErrMalformedMessage is returned by Decode when a frame is not a valid message.
var ErrMalformedMessage = errors.New("malformed message")

// Poster sends a message across the boundary without waiting for a reply.
type Poster interface {
	Post(p Payload) error
}

// PosterFunc adapts a function to Poster.
type PosterFunc func(p Payload) error

// Post calls f(p).
func (f PosterFunc) Post(p Payload) error { return f(p) }

// Encode serializes a payload into a self-contained JSON frame.
func Encode(p Payload) ([]byte, error) {
	if err := p.validate(); err != nil {
		return nil, fmt.Errorf("encode %s: %w", p.MessageType(), err)
	}

	buf := bytebufferpool.Get()
	defer bytebufferpool.Put(buf)

	payload, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("encode %s payload: %w", p.MessageType(), err)
	}
	if err := json.NewEncoder(buf).Encode(Message{Type: p.MessageType(), Payload: payload}); err != nil {
		return nil, fmt.Errorf("encode %s envelope: %w", p.MessageType(), err)
	}

	// json.Encoder appends a newline; frames are delimited by the transport.
	return bytes.Clone(bytes.TrimRight(buf.B, "\n")), nil
}

// Decode parses and validates a frame.
func Decode(data []byte) (Payload, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}

	var p Payload
	switch msg.Type {
	case TypeFixtureListUpdate:
		p = &FixtureListUpdate{}
	case TypeSelectFixture:
		p = &SelectFixture{}
	case TypeUnselectFixture:
		p = &UnselectFixture{}
	case TypeFixtureStateChange:
		p = &FixtureStateChange{}
	case TypeSetFixtureState:
		p = &SetFixtureState{}
	case TypePingRenderers:
		p = &PingRenderers{}
	default:
		return nil, fmt.Errorf("%w: unknown type %q", ErrMalformedMessage, msg.Type)
	}

	if len(msg.Payload) > 0 && !bytes.Equal(msg.Payload, []byte("null")) {
		if err := json.Unmarshal(msg.Payload, p); err != nil {
			return nil, fmt.Errorf("%w: %s payload: %v", ErrMalformedMessage, msg.Type, err)
		}
	} else if msg.Type != TypePingRenderers {
		return nil, fmt.Errorf("%w: %s without payload", ErrMalformedMessage, msg.Type)
	}

	if err := p.validate(); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformedMessage, msg.Type, err)
	}
	return deref(p), nil
}

// deref returns payloads by value so handlers can switch on concrete types.
func deref(p Payload) Payload {
	switch m := p.(type) {
	case *FixtureListUpdate:
		return *m
	case *SelectFixture:
		return *m
	case *UnselectFixture:
		return *m
	case *FixtureStateChange:
		return *m
	case *SetFixtureState:
		return *m
	case *PingRenderers:
		return *m
	}
	return p
}

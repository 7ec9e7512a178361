package chat

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ErrMalformedPayload is returned when a payload is not valid JSON.
var ErrMalformedPayload = errors.New("malformed message payload")

// Backlog is a decoded full-history payload. Room is set only when the
// payload was a wrapped object that named its room.
type Backlog struct {
	Room     string
	Messages []Message
}

// DecodeBacklog accepts a bare message sequence, an object wrapping one under
// "messages", or an empty/null body. Any other well-formed JSON decodes to an
// empty backlog. Messages without a timestamp are stamped with receipt time.
func DecodeBacklog(raw []byte) (Backlog, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return Backlog{Messages: []Message{}}, nil
	}
	if !json.Valid(trimmed) {
		return Backlog{}, ErrMalformedPayload
	}

	switch trimmed[0] {
	case '[':
		var msgs []Message
		if err := json.Unmarshal(trimmed, &msgs); err != nil {
			return Backlog{}, fmt.Errorf("decode message list: %w", err)
		}
		return Backlog{Messages: stamp(msgs)}, nil
	case '{':
		var wrapped struct {
			Room     string          `json:"room"`
			Messages json.RawMessage `json:"messages"`
		}
		if err := json.Unmarshal(trimmed, &wrapped); err != nil {
			return Backlog{}, fmt.Errorf("decode wrapped message list: %w", err)
		}
		inner := bytes.TrimSpace(wrapped.Messages)
		if len(inner) == 0 || inner[0] != '[' {
			return Backlog{Room: wrapped.Room, Messages: []Message{}}, nil
		}
		var msgs []Message
		if err := json.Unmarshal(inner, &msgs); err != nil {
			return Backlog{}, fmt.Errorf("decode message list: %w", err)
		}
		return Backlog{Room: wrapped.Room, Messages: stamp(msgs)}, nil
	default:
		return Backlog{Messages: []Message{}}, nil
	}
}

// DecodeMessages is DecodeBacklog without the room tag.
func DecodeMessages(raw []byte) ([]Message, error) {
	backlog, err := DecodeBacklog(raw)
	if err != nil {
		return nil, err
	}
	return backlog.Messages, nil
}

// DecodeMessage decodes a single incremental message, bare or wrapped under
// "message".
func DecodeMessage(raw []byte) (Message, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return Message{}, ErrMalformedPayload
	}

	var envelope struct {
		Message json.RawMessage `json:"message"`
	}
	if err := json.Unmarshal(trimmed, &envelope); err != nil {
		return Message{}, fmt.Errorf("decode message: %w", err)
	}
	if inner := bytes.TrimSpace(envelope.Message); len(inner) > 0 && inner[0] == '{' {
		trimmed = inner
	}

	var msg Message
	if err := json.Unmarshal(trimmed, &msg); err != nil {
		return Message{}, fmt.Errorf("decode message: %w", err)
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}
	return msg, nil
}

func stamp(msgs []Message) []Message {
	if msgs == nil {
		return []Message{}
	}
	now := time.Now()
	for i := range msgs {
		if msgs[i].Timestamp.IsZero() {
			msgs[i].Timestamp = now
		}
	}
	return msgs
}

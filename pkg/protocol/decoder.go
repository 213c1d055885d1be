package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
)

// ErrMalformed is returned for text frames that are not a JSON object.
var ErrMalformed = errors.New("protocol: malformed frame")

// MissingKeysError reports required keys absent from a text frame.
type MissingKeysError struct {
	Missing []string
}

func (e *MissingKeysError) Error() string {
	return "protocol: missing keys: " + strings.Join(e.Missing, ", ")
}

// InvalidHeaderError reports an array header whose keys are present but
// whose values cannot describe an array.
type InvalidHeaderError struct {
	Field string
	Err   error
}

func (e *InvalidHeaderError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("protocol: invalid array header %s: %v", e.Field, e.Err)
	}
	return "protocol: invalid array header " + e.Field
}

func (e *InvalidHeaderError) Unwrap() error {
	return e.Err
}

// MessageKind classifies a decoded text frame.
type MessageKind int

const (
	KindEvent MessageKind = iota + 1
	KindArrayHeader
	KindReply
)

// String returns the string representation of the message kind.
func (k MessageKind) String() string {
	switch k {
	case KindEvent:
		return "event"
	case KindArrayHeader:
		return "array_header"
	case KindReply:
		return "reply"
	default:
		return "unknown"
	}
}

// Message is a decoded text frame: a control event, an array header, or a
// server reply.
type Message struct {
	Kind   MessageKind
	Event  *Event
	Header *ArrayHeader
	Reply  *Reply
}

// DecodeText decodes a text frame. Numbers keep their literal form
// (json.Number) so that persisted events reproduce what the sender wrote.
func DecodeText(data []byte) (*Message, error) {
	obj, err := decodeObject(data)
	if err != nil {
		return nil, err
	}

	name, ok := obj[keyEvent].(string)
	if !ok {
		return nil, &MissingKeysError{Missing: []string{keyEvent}}
	}

	switch name {
	case EventArrayHeader:
		h, err := headerFromObject(obj)
		if err != nil {
			return nil, err
		}
		return &Message{Kind: KindArrayHeader, Header: h}, nil
	case EventAck, EventError:
		r, err := DecodeReply(data)
		if err != nil {
			return nil, err
		}
		return &Message{Kind: KindReply, Reply: r}, nil
	}

	ev := &Event{}
	if err := ev.fromObject(obj); err != nil {
		return nil, err
	}
	return &Message{Kind: KindEvent, Event: ev}, nil
}

func decodeObject(data []byte) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var obj map[string]any
	if err := dec.Decode(&obj); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if obj == nil {
		return nil, fmt.Errorf("%w: not a JSON object", ErrMalformed)
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, fmt.Errorf("%w: trailing data", ErrMalformed)
	}
	return obj, nil
}

package protocol

import (
	"encoding/json"
)

// Reserved control event keys. Payload fields with these names are
// overwritten when an event is encoded.
const (
	keyEvent = "event"
	keyProto = "proto"
	keyTSend = "t_send"
	keyTRecv = "t_recv"
)

// Event is a control event: a named occurrence with a free-form payload.
type Event struct {
	Name  string
	Proto string

	// TSend is the sender's monotonic timestamp in seconds. Zero means unset.
	TSend float64

	// TRecv is the receiver's monotonic timestamp, set on arrival. Zero means unset.
	TRecv float64

	// Fields holds every other key of the event object.
	Fields map[string]any
}

// NewEvent creates an event with the given payload. The payload map is not copied.
func NewEvent(name string, fields map[string]any) *Event {
	return &Event{Name: name, Proto: DefaultProto, Fields: fields}
}

// ProtoOrDefault returns the event's protocol version, or DefaultProto when unset.
func (e *Event) ProtoOrDefault() string {
	if e.Proto == "" {
		return DefaultProto
	}
	return e.Proto
}

// Trial returns the "trial" payload field, or nil when absent.
func (e *Event) Trial() any {
	if e.Fields == nil {
		return nil
	}
	return e.Fields["trial"]
}

// Get returns a payload field.
func (e *Event) Get(key string) (any, bool) {
	v, ok := e.Fields[key]
	return v, ok
}

// MarshalJSON flattens the payload and the reserved keys into one object.
func (e *Event) MarshalJSON() ([]byte, error) {
	obj := make(map[string]any, len(e.Fields)+4)
	for k, v := range e.Fields {
		obj[k] = v
	}
	obj[keyEvent] = e.Name
	if e.Proto != "" {
		obj[keyProto] = e.Proto
	} else {
		delete(obj, keyProto)
	}
	if e.TSend != 0 {
		obj[keyTSend] = e.TSend
	} else {
		delete(obj, keyTSend)
	}
	if e.TRecv != 0 {
		obj[keyTRecv] = e.TRecv
	} else {
		delete(obj, keyTRecv)
	}
	return json.Marshal(obj)
}

// UnmarshalJSON splits an event object into reserved keys and payload.
func (e *Event) UnmarshalJSON(data []byte) error {
	obj, err := decodeObject(data)
	if err != nil {
		return err
	}
	return e.fromObject(obj)
}

func (e *Event) fromObject(obj map[string]any) error {
	name, ok := obj[keyEvent].(string)
	if !ok {
		return &MissingKeysError{Missing: []string{keyEvent}}
	}
	e.Name = name
	e.Proto, _ = obj[keyProto].(string)
	e.TSend = numberValue(obj[keyTSend])
	e.TRecv = numberValue(obj[keyTRecv])

	e.Fields = make(map[string]any, len(obj))
	for k, v := range obj {
		switch k {
		case keyEvent, keyProto, keyTSend, keyTRecv:
			continue
		}
		e.Fields[k] = v
	}
	return nil
}

func numberValue(v any) float64 {
	switch n := v.(type) {
	case json.Number:
		f, _ := n.Float64()
		return f
	case float64:
		return n
	}
	return 0
}

// EncodeEvent encodes a control event as a compact JSON text frame. Values
// in fields must already be JSON-representable; see Normalize.
func EncodeEvent(name string, fields map[string]any, proto string, tSend float64) ([]byte, error) {
	return json.Marshal(&Event{Name: name, Proto: proto, TSend: tSend, Fields: fields})
}

package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Reply is a server-to-client text frame: an acknowledgement or an error.
// Replies are protocol feedback only and are never persisted.
type Reply struct {
	Event   string   `json:"event"`
	AckOf   string   `json:"ack_of,omitempty"`
	Reason  string   `json:"reason,omitempty"`
	Missing []string `json:"missing,omitempty"`
	Name    string   `json:"name,omitempty"`
	Trial   any      `json:"trial,omitempty"`
	Shape   []int    `json:"shape,omitempty"`
	DType   string   `json:"dtype,omitempty"`
	Proto   string   `json:"proto,omitempty"`
}

// IsAck reports whether the reply acknowledges a frame.
func (r *Reply) IsAck() bool {
	return r.Event == EventAck
}

// IsError reports whether the reply rejects a frame.
func (r *Reply) IsError() bool {
	return r.Event == EventError
}

// AckEvent acknowledges a persisted control event.
func AckEvent(ev *Event) *Reply {
	return &Reply{
		Event: EventAck,
		AckOf: ev.Name,
		Trial: ev.Trial(),
		Proto: ev.ProtoOrDefault(),
	}
}

// AckHeader acknowledges an accepted array header.
func AckHeader(h *ArrayHeader) *Reply {
	proto := h.Proto
	if proto == "" {
		proto = DefaultProto
	}
	return &Reply{
		Event: EventAck,
		AckOf: EventArrayHeader,
		Name:  h.Name,
		Trial: h.Trial,
		Proto: proto,
	}
}

// AckArray confirms that a payload was reconstructed with the header's shape and dtype.
func AckArray(h *ArrayHeader) *Reply {
	return &Reply{
		Event: EventAck,
		AckOf: AckArrayBytes,
		Name:  h.Name,
		Trial: h.Trial,
		Shape: h.Shape,
		DType: h.DType,
	}
}

// EncodeReply encodes a reply as a compact JSON text frame.
func EncodeReply(r *Reply) []byte {
	b, err := json.Marshal(r)
	if err != nil {
		// Trial is the only free-form field; fall back to its string form.
		clone := *r
		clone.Trial = fmt.Sprint(r.Trial)
		b, _ = json.Marshal(&clone)
	}
	return b
}

// DecodeReply decodes a server reply.
func DecodeReply(data []byte) (*Reply, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var r Reply
	if err := dec.Decode(&r); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if r.Event == "" {
		return nil, &MissingKeysError{Missing: []string{keyEvent}}
	}
	return &r, nil
}

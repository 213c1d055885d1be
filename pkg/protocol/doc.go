// Package protocol implements the trial streaming wire protocol.
//
// A single WebSocket connection carries two kinds of frames from the
// experiment client to the persistence server:
//
//   - Text frames: UTF-8 JSON objects with a required "event" field.
//   - Binary frames: raw array bytes.
//
// # Control Events
//
// Any text frame whose event is not "array_header" is a control event. Its
// fields are free-form; client-originated events always carry "proto" and
// "t_send" (sender monotonic seconds). The server adds "t_recv" on arrival:
//
//	{"event":"PrepDM","dur_PrepDM":1.2,"proto":"v1","t_send":12.503}
//
// # Arrays
//
// An array travels as a header text frame followed immediately by exactly
// one binary frame holding the element bytes:
//
//	{"event":"array_header","name":"cursor_trace","trial":3,
//	 "dtype":"float32","shape":[50,2],"order":"C","proto":"v1","t_send":13.1}
//	<400 bytes>
//
// The pairing is positional: the next binary frame on the connection
// belongs to the most recent header. Senders must never interleave another
// frame between a header and its bytes.
//
// # Replies
//
// The server answers every accepted text frame and every binary frame with an
// acknowledgement or an error:
//
//	{"event":"ack","ack_of":"array_bytes","name":"cursor_trace","trial":3,"shape":[50,2],"dtype":"float32"}
//	{"event":"error","reason":"binary_without_header"}
//
// # Decoding
//
// DecodeText classifies a text frame. Invalid JSON yields ErrMalformed; a
// header without its required keys yields *MissingKeysError, which is
// distinct so that the receiver can name the missing keys back to the sender.
package protocol

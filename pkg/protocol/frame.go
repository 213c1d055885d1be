package protocol

import (
	"time"

	"github.com/gorilla/websocket"
)

// DefaultProto is the protocol version attached to events when none is given.
const DefaultProto = "v1"

// Reserved event names.
const (
	EventArrayHeader = "array_header"
	EventAck         = "ack"
	EventError       = "error"

	// AckArrayBytes is the ack_of value confirming a binary payload.
	AckArrayBytes = "array_bytes"
)

// FrameType identifies the kind of WebSocket frame.
type FrameType int

const (
	FrameText   FrameType = websocket.TextMessage
	FrameBinary FrameType = websocket.BinaryMessage
)

// String returns the string representation of the frame type.
func (ft FrameType) String() string {
	switch ft {
	case FrameText:
		return "text"
	case FrameBinary:
		return "binary"
	default:
		return "unknown"
	}
}

var processStart = time.Now()

// Monotonic returns seconds elapsed on the process monotonic clock. It is
// used for t_send and t_recv; values are only comparable within one process.
func Monotonic() float64 {
	return time.Since(processStart).Seconds()
}

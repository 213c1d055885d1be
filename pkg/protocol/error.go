package protocol

import (
	"errors"
	"strings"
)

// Error reasons sent in {"event":"error"} replies.
const (
	ReasonBinaryWithoutHeader = "binary_without_header"
	ReasonReshapeFailed       = "reshape_failed"
	ReasonMissingPrefix       = "missing:"
	ReasonInvalidHeaderPrefix = "invalid_header:"
)

// NewError creates an error reply with the given reason.
func NewError(reason string) *Reply {
	return &Reply{Event: EventError, Reason: reason}
}

// NewMissingKeysError creates the error reply for a frame lacking required keys.
// The reason names the keys and Missing lists them.
func NewMissingKeysError(missing []string) *Reply {
	return &Reply{
		Event:   EventError,
		Reason:  ReasonMissingPrefix + strings.Join(missing, ","),
		Missing: append([]string(nil), missing...),
	}
}

// ErrorReplyFor maps a DecodeText error to the reply owed to the sender.
// Malformed JSON is not answered, so ok is false for ErrMalformed.
func ErrorReplyFor(err error) (reply *Reply, ok bool) {
	var missing *MissingKeysError
	if errors.As(err, &missing) {
		return NewMissingKeysError(missing.Missing), true
	}
	var invalid *InvalidHeaderError
	if errors.As(err, &invalid) {
		return NewError(ReasonInvalidHeaderPrefix + invalid.Field), true
	}
	return nil, false
}

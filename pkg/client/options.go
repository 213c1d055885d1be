package client

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/vango-dev/trialstream/pkg/protocol"
)

// Option configures a Streamer.
type Option func(*options)

type options struct {
	proto        string
	dialer       *websocket.Dialer
	header       http.Header
	writeTimeout time.Duration
	closeTimeout time.Duration
	queueSize    int
	onReply      func(*protocol.Reply)
	logger       *slog.Logger
}

func defaultOptions() options {
	return options{
		proto:        protocol.DefaultProto,
		dialer:       websocket.DefaultDialer,
		writeTimeout: 10 * time.Second,
		closeTimeout: 2 * time.Second,
		queueSize:    1024,
		logger:       slog.Default(),
	}
}

// WithProto sets the protocol version attached to every frame.
func WithProto(proto string) Option {
	return func(o *options) {
		o.proto = proto
	}
}

// WithDialer sets the WebSocket dialer.
func WithDialer(d *websocket.Dialer) Option {
	return func(o *options) {
		o.dialer = d
	}
}

// WithHeader sets extra HTTP headers sent with the handshake.
func WithHeader(h http.Header) Option {
	return func(o *options) {
		o.header = h
	}
}

// WithWriteTimeout bounds each frame write.
func WithWriteTimeout(d time.Duration) Option {
	return func(o *options) {
		o.writeTimeout = d
	}
}

// WithCloseTimeout bounds how long Close waits for the connection goroutines.
func WithCloseTimeout(d time.Duration) Option {
	return func(o *options) {
		o.closeTimeout = d
	}
}

// WithQueueSize sets how many pending sends may be buffered.
func WithQueueSize(n int) Option {
	return func(o *options) {
		o.queueSize = n
	}
}

// WithReplyHandler registers a callback for acks and errors from the
// server. It runs on the reader goroutine and must not block.
func WithReplyHandler(fn func(*protocol.Reply)) Option {
	return func(o *options) {
		o.onReply = fn
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

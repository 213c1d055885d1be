package client

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/vango-dev/trialstream/pkg/ndarray"
	"github.com/vango-dev/trialstream/pkg/protocol"
)

var (
	// ErrNotConnected is reported (in logs) when a send finds no open connection.
	ErrNotConnected = errors.New("client: not connected")

	// ErrAlreadyStarted is returned by a second Start.
	ErrAlreadyStarted = errors.New("client: already started")

	// ErrClosed is returned by Start after Close.
	ErrClosed = errors.New("client: closed")
)

// frame is one WebSocket message.
type frame struct {
	messageType int
	data        []byte
}

// command is a unit of frames the writer sends back to back.
type command struct {
	frames []frame
	what   string
}

// Stats are the streamer's counters.
type Stats struct {
	Sent      int64 // commands fully written
	Dropped   int64 // commands dropped before or during writing
	Acks      int64 // ack replies received
	Errors    int64 // error replies received
	Queued    int   // commands waiting for the writer
	Connected bool
}

// Streamer sends events and arrays over one WebSocket connection.
type Streamer struct {
	url    string
	opts   options
	logger *slog.Logger

	mu      sync.Mutex
	conn    *websocket.Conn
	started bool
	closed  bool

	connected atomic.Bool
	cmds      chan command
	closing   chan struct{}

	// sendMu orders enqueues against close(closing) so every command is
	// either drained by the writer or counted as dropped.
	sendMu sync.RWMutex

	writerDone chan struct{}
	readerDone chan struct{}

	sent    atomic.Int64
	dropped atomic.Int64
	acks    atomic.Int64
	errs    atomic.Int64
}

// New creates a Streamer for url. It does not connect; call Start.
func New(url string, opts ...Option) *Streamer {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if o.queueSize <= 0 {
		o.queueSize = 1
	}
	return &Streamer{
		url:        url,
		opts:       o,
		logger:     o.logger.With("component", "streamer", "url", url),
		cmds:       make(chan command, o.queueSize),
		closing:    make(chan struct{}),
		writerDone: make(chan struct{}),
		readerDone: make(chan struct{}),
	}
}

// Start dials the server and blocks until the connection is open or the
// dial fails.
func (s *Streamer) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if s.started {
		return ErrAlreadyStarted
	}

	conn, _, err := s.opts.dialer.DialContext(ctx, s.url, s.opts.header)
	if err != nil {
		return err
	}
	s.conn = conn
	s.started = true
	s.connected.Store(true)

	go s.writeLoop(conn)
	go s.readLoop(conn)

	s.logger.Info("connected")
	return nil
}

// Connected reports whether the connection is open.
func (s *Streamer) Connected() bool {
	return s.connected.Load()
}

// SendEvent sends a control event. The payload is normalized to JSON
// values and stamped with proto and t_send. It never blocks on the network.
func (s *Streamer) SendEvent(name string, payload map[string]any) {
	if !s.connected.Load() {
		s.drop("event", name, ErrNotConnected)
		return
	}
	data, err := protocol.EncodeEvent(name, protocol.NormalizeMap(payload), s.opts.proto, protocol.Monotonic())
	if err != nil {
		s.drop("event", name, err)
		return
	}
	s.enqueue(command{
		frames: []frame{{websocket.TextMessage, data}},
		what:   name,
	})
}

// SendArray sends an array header followed by the array's row-major bytes.
// The two frames are written back to back by the writer goroutine. The
// bytes are copied, so the caller may reuse arr as soon as SendArray returns.
func (s *Streamer) SendArray(name string, arr *ndarray.Array, trial int, meta map[string]any) {
	if !s.connected.Load() {
		s.drop("array", name, ErrNotConnected)
		return
	}
	if arr == nil {
		s.drop("array", name, errors.New("client: nil array"))
		return
	}

	rm := arr.RowMajor()
	payload := bytes.Clone(rm.Data)
	h := protocol.NewArrayHeader(name, trial, rm, protocol.NormalizeMap(meta))
	h.Proto = s.opts.proto
	h.TSend = protocol.Monotonic()
	header, err := protocol.EncodeArrayHeader(h)
	if err != nil {
		s.drop("array", name, err)
		return
	}

	s.enqueue(command{
		frames: []frame{
			{websocket.TextMessage, header},
			{websocket.BinaryMessage, payload},
		},
		what: name,
	})
}

func (s *Streamer) enqueue(cmd command) {
	s.sendMu.RLock()
	defer s.sendMu.RUnlock()

	select {
	case <-s.closing:
		s.drop("send", cmd.what, ErrClosed)
		return
	default:
	}

	select {
	case s.cmds <- cmd:
	default:
		s.drop("send", cmd.what, errors.New("client: send queue full"))
	}
}

func (s *Streamer) drop(kind, name string, reason error) {
	s.dropped.Add(1)
	s.logger.Warn("dropped "+kind, "name", name, "reason", reason)
}

// writeLoop owns all data writes on conn. On close it drains what is
// already queued before exiting.
func (s *Streamer) writeLoop(conn *websocket.Conn) {
	defer close(s.writerDone)

	for {
		select {
		case cmd := <-s.cmds:
			s.write(conn, cmd)
		case <-s.closing:
			for {
				select {
				case cmd := <-s.cmds:
					s.write(conn, cmd)
				default:
					return
				}
			}
		}
	}
}

func (s *Streamer) write(conn *websocket.Conn, cmd command) {
	if !s.connected.Load() {
		s.drop("send", cmd.what, ErrNotConnected)
		return
	}
	for _, f := range cmd.frames {
		if s.opts.writeTimeout > 0 {
			conn.SetWriteDeadline(time.Now().Add(s.opts.writeTimeout))
		}
		if err := conn.WriteMessage(f.messageType, f.data); err != nil {
			s.connected.Store(false)
			s.drop("send", cmd.what, err)
			return
		}
	}
	s.sent.Add(1)
}

// readLoop consumes replies, pings and the close handshake.
func (s *Streamer) readLoop(conn *websocket.Conn) {
	defer close(s.readerDone)

	for {
		mt, data, err := conn.ReadMessage()
		if err != nil {
			wasConnected := s.connected.Swap(false)
			select {
			case <-s.closing:
			default:
				if wasConnected {
					s.logger.Warn("connection lost", "error", err)
				}
			}
			return
		}
		if mt != websocket.TextMessage {
			continue
		}

		reply, err := protocol.DecodeReply(data)
		if err != nil {
			s.logger.Debug("undecodable server frame", "error", err)
			continue
		}
		if reply.IsError() {
			s.errs.Add(1)
			s.logger.Warn("server rejected frame", "reason", reply.Reason, "missing", reply.Missing)
		} else {
			s.acks.Add(1)
		}
		if s.opts.onReply != nil {
			s.opts.onReply(reply)
		}
	}
}

// Close sends a normal close frame and releases the connection. Queued
// sends are flushed first. It waits at most the close timeout for the
// connection goroutines. Close is idempotent and safe before Start.
func (s *Streamer) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.sendMu.Lock()
	close(s.closing)
	s.sendMu.Unlock()
	conn := s.conn
	started := s.started
	s.mu.Unlock()

	if !started {
		return nil
	}

	deadline := time.NewTimer(s.opts.closeTimeout)
	defer deadline.Stop()
	timedOut := false

	select {
	case <-s.writerDone:
	case <-deadline.C:
		timedOut = true
	}
	s.connected.Store(false)

	conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))

	// Wait for the server to echo the close frame.
	if !timedOut {
		select {
		case <-s.readerDone:
		case <-deadline.C:
			timedOut = true
		}
	}
	err := conn.Close()

	if timedOut {
		s.logger.Warn("close timed out", "timeout", s.opts.closeTimeout, "queued", len(s.cmds))
	}
	s.logger.Info("closed", "sent", s.sent.Load(), "dropped", s.dropped.Load())
	return err
}

// Stats returns a snapshot of the counters.
func (s *Streamer) Stats() Stats {
	return Stats{
		Sent:      s.sent.Load(),
		Dropped:   s.dropped.Load(),
		Acks:      s.acks.Load(),
		Errors:    s.errs.Load(),
		Queued:    len(s.cmds),
		Connected: s.connected.Load(),
	}
}

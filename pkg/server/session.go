package server

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel/attribute"

	"github.com/vango-dev/trialstream/pkg/ndarray"
	"github.com/vango-dev/trialstream/pkg/protocol"
)

// Sink persists what sessions accept. *store.Recorder implements it.
// Implementations must be safe for concurrent use.
type Sink interface {
	RecordEvent(ctx context.Context, ev *protocol.Event) error
	RecordHeader(ctx context.Context, h *protocol.ArrayHeader) error
	RecordArray(ctx context.Context, h *protocol.ArrayHeader, arr *ndarray.Array, receivedAt time.Time) (string, error)
}

// ReplyWriter sends replies to the peer.
type ReplyWriter interface {
	WriteReply(r *protocol.Reply) error
}

// State is the framing state of a session.
type State int

const (
	// StateIdle means no array header is pending.
	StateIdle State = iota
	// StateAwaitingPayload means a header was accepted and its binary frame is due.
	StateAwaitingPayload
)

// String returns the string representation of the state.
func (st State) String() string {
	switch st {
	case StateIdle:
		return "idle"
	case StateAwaitingPayload:
		return "awaiting_payload"
	default:
		return "unknown"
	}
}

// SessionStats is a snapshot of per-session counters.
type SessionStats struct {
	ID              string
	RemoteAddr      string
	ConnectedAt     time.Time
	State           State
	EventsRecorded  int64
	HeadersAccepted int64
	ArraysStored    int64
	ErrorsSent      int64
	BytesReceived   int64
}

// Session is one client connection and its framing state.
type Session struct {
	ID          string
	RemoteAddr  string
	ConnectedAt time.Time

	conn    *websocket.Conn
	replies ReplyWriter
	sink    Sink
	config  *ServerConfig
	metrics *Metrics
	logger  *slog.Logger

	// pending is touched only by the read loop; mu guards it for State().
	mu      sync.Mutex
	pending *protocol.ArrayHeader

	writeMu sync.Mutex

	closed atomic.Bool
	done   chan struct{}

	eventsRecorded  atomic.Int64
	headersAccepted atomic.Int64
	arraysStored    atomic.Int64
	errorsSent      atomic.Int64
	bytesRecv       atomic.Int64
}

// newSession creates a session. conn may be nil when replies is given,
// which is how the state machine is driven in tests.
func newSession(id string, conn *websocket.Conn, replies ReplyWriter, sink Sink, config *ServerConfig, metrics *Metrics, logger *slog.Logger) *Session {
	s := &Session{
		ID:          id,
		ConnectedAt: time.Now(),
		conn:        conn,
		sink:        sink,
		config:      config,
		metrics:     metrics,
		done:        make(chan struct{}),
	}
	if conn != nil {
		s.RemoteAddr = conn.RemoteAddr().String()
	}
	if replies == nil {
		replies = s
	}
	s.replies = replies
	s.logger = logger.With("session_id", id, "remote", s.RemoteAddr)
	return s
}

// State returns the current framing state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pending != nil {
		return StateAwaitingPayload
	}
	return StateIdle
}

// Pending returns the header awaiting its payload, or nil.
func (s *Session) Pending() *protocol.ArrayHeader {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending
}

func (s *Session) setPending(h *protocol.ArrayHeader) (displaced *protocol.ArrayHeader) {
	s.mu.Lock()
	defer s.mu.Unlock()
	displaced = s.pending
	s.pending = h
	return displaced
}

// HandleFrame advances the state machine by one frame. A non-nil error is
// an unexpected failure after which the session must be closed with 1011;
// protocol violations are answered with error replies and return nil.
func (s *Session) HandleFrame(ctx context.Context, ft protocol.FrameType, data []byte) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = NewSessionError(s.ID, "handle frame", &PanicError{Value: r})
		}
	}()

	s.bytesRecv.Add(int64(len(data)))
	s.metrics.framesReceived.WithLabelValues(ft.String()).Inc()

	switch ft {
	case protocol.FrameText:
		return s.handleText(ctx, data, protocol.Monotonic())
	case protocol.FrameBinary:
		return s.handleBinary(ctx, data)
	}
	s.logger.Warn("unsupported frame type", "type", int(ft))
	return nil
}

func (s *Session) handleText(ctx context.Context, data []byte, tRecv float64) error {
	msg, err := protocol.DecodeText(data)
	if err != nil {
		if reply, ok := protocol.ErrorReplyFor(err); ok {
			s.logger.Warn("protocol violation", "error", err)
			s.metrics.protocolErrors.WithLabelValues(reasonLabel(reply.Reason)).Inc()
			return s.reply(reply)
		}
		s.logger.Warn("malformed frame discarded", "error", err, "bytes", len(data))
		s.metrics.malformedFrames.Inc()
		return nil
	}

	switch msg.Kind {
	case protocol.KindEvent:
		msg.Event.TRecv = tRecv
		return s.handleEvent(ctx, msg.Event)
	case protocol.KindArrayHeader:
		msg.Header.TRecv = tRecv
		return s.handleHeader(ctx, msg.Header)
	case protocol.KindReply:
		s.logger.Warn("reply frame from client discarded", "event", msg.Reply.Event)
		s.metrics.malformedFrames.Inc()
	}
	return nil
}

func (s *Session) handleEvent(ctx context.Context, ev *protocol.Event) error {
	start := time.Now()
	ctx, span := s.startSpan(ctx, "trialstream.record_event", attribute.String("trialstream.event", ev.Name))
	err := s.sink.RecordEvent(ctx, ev)
	endSpan(span, err)
	if err != nil {
		return NewSessionError(s.ID, "persist event", err)
	}
	s.metrics.persistDuration.WithLabelValues("event").Observe(time.Since(start).Seconds())
	s.metrics.eventsRecorded.Inc()
	s.eventsRecorded.Add(1)

	s.logger.Debug("event recorded", "event", ev.Name, "trial", ev.Trial())
	if ev.Name == "trial_record" {
		s.logTrialSummary(ev)
	}
	return s.reply(protocol.AckEvent(ev))
}

func (s *Session) handleHeader(ctx context.Context, h *protocol.ArrayHeader) error {
	if displaced := s.setPending(h); displaced != nil {
		s.logger.Warn("header displaced",
			"displaced_name", displaced.Name,
			"displaced_trial", displaced.Trial,
			"name", h.Name,
			"trial", h.Trial)
		s.metrics.headersDisplaced.Inc()
	}

	start := time.Now()
	ctx, span := s.startSpan(ctx, "trialstream.record_header",
		attribute.String("trialstream.array", h.Name),
		attribute.Int("trialstream.trial", h.Trial))
	err := s.sink.RecordHeader(ctx, h)
	endSpan(span, err)
	if err != nil {
		return NewSessionError(s.ID, "persist header", err)
	}
	s.metrics.persistDuration.WithLabelValues("header").Observe(time.Since(start).Seconds())
	s.headersAccepted.Add(1)

	s.logger.Debug("header accepted", "name", h.Name, "trial", h.Trial, "dtype", h.DType, "shape", h.Shape)
	return s.reply(protocol.AckHeader(h))
}

func (s *Session) handleBinary(ctx context.Context, data []byte) error {
	h := s.setPending(nil)
	if h == nil {
		s.logger.Warn("binary frame without header", "bytes", len(data))
		s.metrics.protocolErrors.WithLabelValues(protocol.ReasonBinaryWithoutHeader).Inc()
		return s.reply(protocol.NewError(protocol.ReasonBinaryWithoutHeader))
	}

	arr, err := h.Array(data)
	if err != nil {
		s.logger.Warn("reshape failed", "name", h.Name, "trial", h.Trial, "error", err)
		s.metrics.protocolErrors.WithLabelValues(protocol.ReasonReshapeFailed).Inc()
		return s.reply(protocol.NewError(protocol.ReasonReshapeFailed))
	}

	start := time.Now()
	ctx, span := s.startSpan(ctx, "trialstream.record_array",
		attribute.String("trialstream.array", h.Name),
		attribute.Int("trialstream.trial", h.Trial),
		attribute.Int("trialstream.bytes", len(data)))
	loc, err := s.sink.RecordArray(ctx, h, arr, time.Now())
	endSpan(span, err)
	if err != nil {
		return NewSessionError(s.ID, "persist array", err)
	}
	s.metrics.persistDuration.WithLabelValues("array").Observe(time.Since(start).Seconds())
	s.metrics.arraysStored.Inc()
	s.metrics.arrayBytes.Add(float64(len(data)))
	s.arraysStored.Add(1)

	s.logger.Info("array stored",
		"name", h.Name,
		"trial", h.Trial,
		"dtype", h.DType,
		"shape", h.Shape,
		"bytes", len(data),
		"location", loc)
	return s.reply(protocol.AckArray(h))
}

// trialSummaryKeys are the trial_record fields echoed in the summary log.
var trialSummaryKeys = []string{"Acceptance", "success", "reward", "effort", "DecisionTime", "ReactionTimeEP"}

func (s *Session) logTrialSummary(ev *protocol.Event) {
	attrs := []any{"trial", ev.Trial()}
	for _, k := range trialSummaryKeys {
		if v, ok := ev.Get(k); ok {
			attrs = append(attrs, k, v)
		}
	}
	s.logger.Info("trial summary", attrs...)
}

func (s *Session) reply(r *protocol.Reply) error {
	detail := ackLabel(r.AckOf)
	if r.IsError() {
		detail = reasonLabel(r.Reason)
		s.errorsSent.Add(1)
	}
	s.metrics.repliesSent.WithLabelValues(r.Event, detail).Inc()

	if err := s.replies.WriteReply(r); err != nil {
		return NewSessionError(s.ID, "write reply", err)
	}
	return nil
}

// ackLabel folds control-event names into one label value; event names are
// chosen by the client and unbounded.
func ackLabel(ackOf string) string {
	switch ackOf {
	case protocol.EventArrayHeader, protocol.AckArrayBytes:
		return ackOf
	}
	return "event"
}

// reasonLabel strips key lists from reasons to keep metric cardinality bounded.
func reasonLabel(reason string) string {
	for _, prefix := range []string{protocol.ReasonMissingPrefix, protocol.ReasonInvalidHeaderPrefix} {
		if len(reason) >= len(prefix) && reason[:len(prefix)] == prefix {
			return prefix[:len(prefix)-1]
		}
	}
	return reason
}

// WriteReply writes r as a text frame on the session connection.
func (s *Session) WriteReply(r *protocol.Reply) error {
	if s.closed.Load() {
		return ErrSessionClosed
	}
	if s.conn == nil {
		return ErrNoConnection
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if s.config.WriteTimeout > 0 {
		s.conn.SetWriteDeadline(time.Now().Add(s.config.WriteTimeout))
	}
	return s.conn.WriteMessage(websocket.TextMessage, protocol.EncodeReply(r))
}

// sendPing sends a heartbeat ping to the client.
func (s *Session) sendPing() error {
	if s.closed.Load() {
		return ErrSessionClosed
	}
	if s.conn == nil {
		return ErrNoConnection
	}
	deadline := time.Now().Add(s.config.WriteTimeout)
	return s.conn.WriteControl(websocket.PingMessage, nil, deadline)
}

// Close gracefully closes the session with a normal close frame.
func (s *Session) Close() {
	s.closeWith(websocket.CloseNormalClosure, "")
}

// closeWith closes the session with the given close code. Only the first
// call has any effect.
func (s *Session) closeWith(code int, reason string) {
	if s.closed.Swap(true) {
		return
	}
	close(s.done)

	if pending := s.setPending(nil); pending != nil {
		s.logger.Debug("pending header discarded on close", "name", pending.Name, "trial", pending.Trial)
	}

	if s.conn != nil {
		if len(reason) > 120 {
			reason = reason[:120]
		}
		s.writeMu.Lock()
		s.conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(code, reason),
			time.Now().Add(time.Second),
		)
		s.writeMu.Unlock()
		s.conn.Close()
	}

	s.logger.Info("session closed",
		"code", code,
		"events", s.eventsRecorded.Load(),
		"headers", s.headersAccepted.Load(),
		"arrays", s.arraysStored.Load(),
		"errors_sent", s.errorsSent.Load(),
		"bytes_recv", s.bytesRecv.Load(),
		"duration", time.Since(s.ConnectedAt).Round(time.Millisecond))
}

// IsClosed returns whether the session is closed.
func (s *Session) IsClosed() bool {
	return s.closed.Load()
}

// Done returns a channel that's closed when the session is done.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Stats returns a snapshot of the session counters.
func (s *Session) Stats() SessionStats {
	return SessionStats{
		ID:              s.ID,
		RemoteAddr:      s.RemoteAddr,
		ConnectedAt:     s.ConnectedAt,
		State:           s.State(),
		EventsRecorded:  s.eventsRecorded.Load(),
		HeadersAccepted: s.headersAccepted.Load(),
		ArraysStored:    s.arraysStored.Load(),
		ErrorsSent:      s.errorsSent.Load(),
		BytesReceived:   s.bytesRecv.Load(),
	}
}

// String identifies the session in logs.
func (s *Session) String() string {
	return fmt.Sprintf("session %s (%s)", s.ID, s.RemoteAddr)
}

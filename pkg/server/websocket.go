package server

import (
	"context"
	"errors"
	"time"

	"github.com/gorilla/websocket"

	"github.com/vango-dev/trialstream/pkg/protocol"
)

// ReadLoop reads frames until the connection ends, feeding each one to
// HandleFrame in arrival order. Unexpected failures close the session with
// code 1011; any other exit closes it normally.
func (s *Session) ReadLoop(ctx context.Context) {
	defer s.Close()

	s.conn.SetReadLimit(s.config.MaxMessageSize)
	s.extendReadDeadline()
	s.conn.SetPongHandler(func(string) error {
		s.extendReadDeadline()
		return nil
	})

	for {
		mt, data, err := s.conn.ReadMessage()
		if err != nil {
			s.logReadError(err)
			return
		}
		s.extendReadDeadline()

		if err := s.HandleFrame(ctx, protocol.FrameType(mt), data); err != nil {
			s.logger.Error("session failed", "error", err)
			s.metrics.unexpectedCloses.Inc()
			s.closeWith(websocket.CloseInternalServerErr, closeReason(err))
			return
		}
	}
}

// HeartbeatLoop pings the client until the session closes.
func (s *Session) HeartbeatLoop() {
	if s.config.HeartbeatInterval <= 0 {
		return
	}
	ticker := time.NewTicker(s.config.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			if err := s.sendPing(); err != nil {
				if !errors.Is(err, ErrSessionClosed) {
					s.logger.Debug("ping failed", "error", err)
				}
				return
			}
		}
	}
}

func (s *Session) extendReadDeadline() {
	if s.config.ReadTimeout > 0 {
		s.conn.SetReadDeadline(time.Now().Add(s.config.ReadTimeout))
	}
}

func (s *Session) logReadError(err error) {
	if s.closed.Load() {
		return
	}
	if websocket.IsUnexpectedCloseError(err,
		websocket.CloseGoingAway,
		websocket.CloseAbnormalClosure,
		websocket.CloseNormalClosure) {
		s.logger.Error("read error", "error", err)
		return
	}
	s.logger.Debug("client disconnected", "error", err)
}

// closeReason is the diagnostic text sent in a 1011 close frame.
func closeReason(err error) string {
	var se *SessionError
	if errors.As(err, &se) {
		return se.Op + " failed"
	}
	return "internal error"
}

package server

import (
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// SessionManager tracks live sessions. Sessions never share framing state;
// the manager only knows which ones exist.
type SessionManager struct {
	sessions map[string]*Session
	mu       sync.RWMutex

	sink    Sink
	config  *ServerConfig
	metrics *Metrics
	logger  *slog.Logger

	totalCreated atomic.Uint64
	totalClosed  atomic.Uint64
	peakSessions int
}

// ManagerStats summarizes the session manager.
type ManagerStats struct {
	Active       int
	TotalCreated uint64
	TotalClosed  uint64
	Peak         int
}

// NewSessionManager creates a new SessionManager.
func NewSessionManager(sink Sink, config *ServerConfig, metrics *Metrics, logger *slog.Logger) *SessionManager {
	return &SessionManager{
		sessions: make(map[string]*Session),
		sink:     sink,
		config:   config,
		metrics:  metrics,
		logger:   logger,
	}
}

// Create registers a session for conn under a fresh UUID.
func (sm *SessionManager) Create(conn *websocket.Conn) *Session {
	s := newSession(uuid.NewString(), conn, nil, sm.sink, sm.config, sm.metrics, sm.logger)

	sm.mu.Lock()
	sm.sessions[s.ID] = s
	if n := len(sm.sessions); n > sm.peakSessions {
		sm.peakSessions = n
	}
	sm.mu.Unlock()

	sm.totalCreated.Add(1)
	sm.metrics.sessionsTotal.Inc()
	sm.metrics.activeSessions.Inc()
	s.logger.Info("session opened")
	return s
}

// Remove forgets a session once its read loop has ended.
func (sm *SessionManager) Remove(id string) {
	sm.mu.Lock()
	_, ok := sm.sessions[id]
	delete(sm.sessions, id)
	sm.mu.Unlock()

	if ok {
		sm.totalClosed.Add(1)
		sm.metrics.activeSessions.Dec()
	}
}

// Get returns the session with the given ID, or nil.
func (sm *SessionManager) Get(id string) *Session {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return sm.sessions[id]
}

// Count returns the number of live sessions.
func (sm *SessionManager) Count() int {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return len(sm.sessions)
}

// List returns snapshots of all live sessions, oldest first.
func (sm *SessionManager) List() []SessionStats {
	sm.mu.RLock()
	out := make([]SessionStats, 0, len(sm.sessions))
	for _, s := range sm.sessions {
		out = append(out, s.Stats())
	}
	sm.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].ConnectedAt.Before(out[j].ConnectedAt)
	})
	return out
}

// Stats returns manager counters.
func (sm *SessionManager) Stats() ManagerStats {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return ManagerStats{
		Active:       len(sm.sessions),
		TotalCreated: sm.totalCreated.Load(),
		TotalClosed:  sm.totalClosed.Load(),
		Peak:         sm.peakSessions,
	}
}

// Shutdown closes every live session with close code 1001.
func (sm *SessionManager) Shutdown() {
	sm.mu.Lock()
	sessions := make([]*Session, 0, len(sm.sessions))
	for _, s := range sm.sessions {
		sessions = append(sessions, s)
	}
	sm.mu.Unlock()

	var wg sync.WaitGroup
	for _, session := range sessions {
		wg.Add(1)
		go func(s *Session) {
			defer wg.Done()
			s.closeWith(websocket.CloseGoingAway, "server shutting down")
		}(session)
	}
	wg.Wait()

	sm.logger.Info("session manager shutdown", "closed_sessions", len(sessions))
}

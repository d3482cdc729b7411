package streamhttp

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jamesprial/mcpcore/internal/protocol"
)

// EngineFactory builds a protocol.Engine for a newly created session, bound
// to transport and identified by sessionID, and registers every method
// handler the session should dispatch. Supplied by the host (mcpserver.Server).
type EngineFactory func(sessionID string, transport protocol.Transport) *protocol.Engine

// Session is one logical MCP session bound to this HTTP transport: a
// session id, the Transport/Engine pair driving it, and the bookkeeping the
// spec's session lifecycle requires (idle timeout, origin binding).
type Session struct {
	ID        string
	Transport *Transport
	Engine    *protocol.Engine

	Origin       string
	CreatedAt    time.Time
	lastActiveMu sync.Mutex
	lastActive   time.Time

	// postMu serializes POST processing on this session: the spec requires
	// per-session operations to be serialized, and it doubles as the lock
	// that makes Transport.DeliverBatch's single-current-scope design safe
	// under concurrent requests.
	postMu sync.Mutex

	cancel context.CancelFunc
}

func (s *Session) touch() {
	s.lastActiveMu.Lock()
	s.lastActive = time.Now()
	s.lastActiveMu.Unlock()
}

// LastActive reports when this session last processed a request.
func (s *Session) LastActive() time.Time {
	s.lastActiveMu.Lock()
	defer s.lastActiveMu.Unlock()
	return s.lastActive
}

// Close tears down the session's engine and transport.
func (s *Session) Close() {
	if s.cancel != nil {
		s.cancel()
	}
	_ = s.Engine.Close()
}

// SessionStore tracks live sessions by id and evicts idle ones.
type SessionStore struct {
	mu       sync.RWMutex
	sessions map[string]*Session

	newEngine  EngineFactory
	idleTTL    time.Duration
	replayMax  int
	replayByte int

	onEvicted func(sessionID string)
}

// NewSessionStore creates an empty store. idleTTL of 0 disables idle
// eviction (a background Sweep call becomes a no-op).
func NewSessionStore(newEngine EngineFactory, idleTTL time.Duration, replayMaxEvents, replayMaxBytes int, onEvicted func(sessionID string)) *SessionStore {
	return &SessionStore{
		sessions:   make(map[string]*Session),
		newEngine:  newEngine,
		idleTTL:    idleTTL,
		replayMax:  replayMaxEvents,
		replayByte: replayMaxBytes,
		onEvicted:  onEvicted,
	}
}

// Create allocates a new session with a fresh opaque id, starts its
// engine's read loop, and registers it.
func (s *SessionStore) Create(origin string) *Session {
	id := uuid.NewString()
	transport := NewTransport(s.replayMax, s.replayByte)
	engine := s.newEngine(id, transport)

	ctx, cancel := context.WithCancel(context.Background())
	sess := &Session{
		ID:         id,
		Transport:  transport,
		Engine:     engine,
		Origin:     origin,
		CreatedAt:  time.Now(),
		lastActive: time.Now(),
		cancel:     cancel,
	}
	go engine.Start(ctx)

	s.mu.Lock()
	s.sessions[id] = sess
	s.mu.Unlock()
	return sess
}

// Get looks up a session by id.
func (s *SessionStore) Get(id string) (*Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[id]
	return sess, ok
}

// Delete removes and closes a session, e.g. on an explicit DELETE request.
func (s *SessionStore) Delete(id string) {
	s.mu.Lock()
	sess, ok := s.sessions[id]
	if ok {
		delete(s.sessions, id)
	}
	s.mu.Unlock()

	if ok {
		sess.Close()
		if s.onEvicted != nil {
			s.onEvicted(id)
		}
	}
}

// Sweep closes and removes every session idle longer than idleTTL. Intended
// to run on a periodic timer owned by the caller.
func (s *SessionStore) Sweep() {
	if s.idleTTL <= 0 {
		return
	}
	cutoff := time.Now().Add(-s.idleTTL)

	s.mu.Lock()
	var stale []*Session
	for id, sess := range s.sessions {
		if sess.LastActive().Before(cutoff) {
			stale = append(stale, sess)
			delete(s.sessions, id)
		}
	}
	s.mu.Unlock()

	for _, sess := range stale {
		sess.Close()
		if s.onEvicted != nil {
			s.onEvicted(sess.ID)
		}
	}
}

// Len reports the number of live sessions, for tests and diagnostics.
func (s *SessionStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

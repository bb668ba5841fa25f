// Package session tracks live streaming relays.
//
// Each open media relay (segment, MJPEG, download, passthrough) registers a
// session so in-flight upstream connections can be observed and, on
// shutdown, explicitly canceled instead of relying on process exit.
package session

import (
	"context"
	"encoding/base64"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// Session is one live streaming relay.
type Session struct {
	ID      string
	Target  string
	Kind    string
	Started time.Time

	bytes  atomic.Int64
	ctx    context.Context
	cancel context.CancelFunc
}

// Context returns the session's context; it is canceled when the session is
// closed, which tears down the upstream fetch.
func (s *Session) Context() context.Context { return s.ctx }

// AddBytes records relayed payload bytes.
func (s *Session) AddBytes(n int64) { s.bytes.Add(n) }

// Bytes returns the total payload bytes relayed so far.
func (s *Session) Bytes() int64 { return s.bytes.Load() }

// Manager owns the session registry. All methods are safe for concurrent use.
type Manager struct {
	mu       sync.Mutex
	sessions map[string]*Session
	seq      uint64
}

// NewManager creates an empty Manager.
func NewManager() *Manager {
	return &Manager{sessions: make(map[string]*Session)}
}

// Open registers a session for target, derived from parent so client
// disconnect still propagates. The key includes a sequence number because
// concurrent relays of the same target are independent.
func (m *Manager) Open(parent context.Context, target, kind string) *Session {
	ctx, cancel := context.WithCancel(parent)

	m.mu.Lock()
	defer m.mu.Unlock()

	m.seq++
	s := &Session{
		ID:      fmt.Sprintf("%s-%d", base64.RawURLEncoding.EncodeToString([]byte(target)), m.seq),
		Target:  target,
		Kind:    kind,
		Started: time.Now(),
		ctx:     ctx,
		cancel:  cancel,
	}
	m.sessions[s.ID] = s
	return s
}

// Get returns the session with the given id, or nil.
func (m *Manager) Get(id string) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sessions[id]
}

// Close cancels and removes one session. Closing an unknown or already
// closed id is a no-op.
func (m *Manager) Close(id string) {
	m.mu.Lock()
	s, ok := m.sessions[id]
	if ok {
		delete(m.sessions, id)
	}
	m.mu.Unlock()

	if ok {
		s.cancel()
	}
}

// CloseAll cancels every open session. Called on shutdown so no upstream
// socket outlives the server.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	closing := make([]*Session, 0, len(m.sessions))
	for id, s := range m.sessions {
		closing = append(closing, s)
		delete(m.sessions, id)
	}
	m.mu.Unlock()

	for _, s := range closing {
		s.cancel()
	}
}

// Active returns the number of open sessions.
func (m *Manager) Active() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

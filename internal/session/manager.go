package session

import (
	"context"
	"sort"
	"sync"
)

// Manager keeps at most one live session per server.
type Manager struct {
	mu       sync.Mutex
	auth     Authorizer
	opts     Options
	sessions map[string]*Session
	opening  map[string]*pendingOpen
}

// pendingOpen is a reserved slot while a session authorizes and dials.
type pendingOpen struct {
	done      chan struct{}
	s         *Session
	err       error
	cancelled bool
}

// NewManager creates a manager that opens sessions with auth and opts.
func NewManager(auth Authorizer, opts Options) *Manager {
	return &Manager{
		auth:     auth,
		opts:     opts,
		sessions: make(map[string]*Session),
		opening:  make(map[string]*pendingOpen),
	}
}

// Open returns the live session for serverID or opens a new one with sink.
// An existing session keeps the sink it was opened with. Concurrent calls for
// the same server share one open; the manager lock is not held while it runs.
func (m *Manager) Open(ctx context.Context, serverID string, sink Sink) (*Session, error) {
	m.mu.Lock()
	if s, ok := m.sessions[serverID]; ok {
		if s.Snapshot().State != Closed {
			m.mu.Unlock()
			return s, nil
		}
		delete(m.sessions, serverID)
	}
	if op, ok := m.opening[serverID]; ok {
		m.mu.Unlock()
		select {
		case <-op.done:
			return op.s, op.err
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	op := &pendingOpen{done: make(chan struct{})}
	m.opening[serverID] = op
	m.mu.Unlock()

	s := New(serverID, m.auth, sink, m.opts)
	err := s.Open(ctx)

	m.mu.Lock()
	delete(m.opening, serverID)
	if err == nil && op.cancelled {
		err = ErrClosed
	}
	if err == nil {
		m.sessions[serverID] = s
		op.s = s
	}
	op.err = err
	m.mu.Unlock()
	close(op.done)

	if err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

// Get returns the live session for serverID.
func (m *Manager) Get(serverID string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[serverID]
	if !ok || s.Snapshot().State == Closed {
		return nil, false
	}
	return s, true
}

// Close closes and forgets the session for serverID. It reports whether
// one existed. An open still in flight is cancelled and returns ErrClosed.
func (m *Manager) Close(serverID string) bool {
	m.mu.Lock()
	s, ok := m.sessions[serverID]
	delete(m.sessions, serverID)
	op, pending := m.opening[serverID]
	if pending {
		op.cancelled = true
	}
	m.mu.Unlock()

	if ok {
		s.Close()
	}
	return ok || pending
}

// CloseAll closes every session.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	sessions := m.sessions
	m.sessions = make(map[string]*Session)
	for _, op := range m.opening {
		op.cancelled = true
	}
	m.mu.Unlock()

	var wg sync.WaitGroup
	for _, s := range sessions {
		wg.Add(1)
		go func(s *Session) {
			defer wg.Done()
			s.Close()
		}(s)
	}
	wg.Wait()
}

// ServerIDs lists servers with a live session, sorted.
func (m *Manager) ServerIDs() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(m.sessions))
	for id, s := range m.sessions {
		if s.Snapshot().State != Closed {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

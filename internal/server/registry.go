package server

import (
	"net"
	"sort"
	"sync"
	"time"
)

// Registry is the thread-safe collection of live sessions. It references
// sessions by ID and never performs socket I/O while holding its lock.
type Registry struct {
	mu       sync.RWMutex
	sessions map[SessionID]*Session
	nextID   SessionID
}

// NewRegistry creates an empty session registry.
func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[SessionID]*Session),
	}
}

// Create allocates a session ID, builds the session, and inserts it.
func (r *Registry) Create(conn net.Conn, queueSize int, writeTimeout time.Duration) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	sess := newSession(r.nextID, conn, queueSize, writeTimeout)
	r.sessions[sess.id] = sess
	return sess
}

// Get returns the session for an ID, or nil.
func (r *Registry) Get(id SessionID) *Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sessions[id]
}

// Remove drops a session from the registry.
func (r *Registry) Remove(id SessionID) {
	r.mu.Lock()
	delete(r.sessions, id)
	r.mu.Unlock()
}

// Snapshot returns a point-in-time copy of all sessions ordered by ID.
// Fan-out iterates the copy so no lock is held across socket writes.
func (r *Registry) Snapshot() []*Session {
	r.mu.RLock()
	sessions := make([]*Session, 0, len(r.sessions))
	for _, sess := range r.sessions {
		sessions = append(sessions, sess)
	}
	r.mu.RUnlock()

	sort.Slice(sessions, func(i, j int) bool { return sessions[i].id < sessions[j].id })
	return sessions
}

// FindByUsername returns the first session logged on with the given name.
func (r *Registry) FindByUsername(name string) *Session {
	if name == "" {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, sess := range r.sessions {
		if sess.Username() == name {
			return sess
		}
	}
	return nil
}

// Count returns the number of live sessions.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

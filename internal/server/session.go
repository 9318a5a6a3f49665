// Package server implements the client-facing side of the gateway: the TCP
// acceptor, per-connection sessions, the shared subscription index, and the
// dispatcher that fans exchange events out to subscribers.
package server

import (
	"net"
	"sync"
	"sync/atomic"
	"time"

	"main/pkg/exception"
)

// SessionID is the stable identifier the registry and subscription index use
// to reference a session without owning it.
type SessionID uint64

// SessionState tracks where a connection is in its lifecycle. Transitions
// only move forward, except that Disconnected is reachable from any state.
type SessionState uint8

const (
	StateConnected SessionState = iota
	StateAuthenticating
	StateAuthenticated
	StateSubscribed
	StateDisconnecting
	StateDisconnected
)

func (s SessionState) String() string {
	switch s {
	case StateConnected:
		return "connected"
	case StateAuthenticating:
		return "authenticating"
	case StateAuthenticated:
		return "authenticated"
	case StateSubscribed:
		return "subscribed"
	case StateDisconnecting:
		return "disconnecting"
	case StateDisconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

// Session is the per-connection state machine. The connection's handling
// goroutine owns it; everyone else refers to it by ID.
type Session struct {
	id          SessionID
	remoteAddr  string
	conn        net.Conn
	connectedAt time.Time

	mu         sync.Mutex
	state      SessionState
	username   string
	subscribed map[uint32]struct{}

	queue     chan []byte
	closeOnce sync.Once
	closed    chan struct{}
	lastRecv  atomic.Int64

	writeTimeout time.Duration
}

func newSession(id SessionID, conn net.Conn, queueSize int, writeTimeout time.Duration) *Session {
	sess := &Session{
		id:           id,
		remoteAddr:   conn.RemoteAddr().String(),
		conn:         conn,
		connectedAt:  time.Now(),
		state:        StateConnected,
		subscribed:   make(map[uint32]struct{}),
		queue:        make(chan []byte, queueSize),
		closed:       make(chan struct{}),
		writeTimeout: writeTimeout,
	}
	sess.lastRecv.Store(time.Now().UnixMilli())
	return sess
}

// ID returns the stable session identifier.
func (sess *Session) ID() SessionID { return sess.id }

// RemoteAddr returns the peer address.
func (sess *Session) RemoteAddr() string { return sess.remoteAddr }

// ConnectedAt returns when the connection was accepted.
func (sess *Session) ConnectedAt() time.Time { return sess.connectedAt }

// State returns the current lifecycle state.
func (sess *Session) State() SessionState {
	sess.mu.Lock()
	defer sess.mu.Unlock()
	return sess.state
}

// Username returns the logged-on username, empty before authentication.
func (sess *Session) Username() string {
	sess.mu.Lock()
	defer sess.mu.Unlock()
	return sess.username
}

func (sess *Session) setUsername(name string) {
	sess.mu.Lock()
	sess.username = name
	sess.mu.Unlock()
}

// Transition moves the session to a new state. Backward moves are rejected
// with ErrInvalidTransition; Disconnected is allowed from anywhere.
func (sess *Session) Transition(next SessionState) error {
	sess.mu.Lock()
	defer sess.mu.Unlock()
	if next == StateDisconnected {
		sess.state = next
		return nil
	}
	if next < sess.state {
		return exception.ErrInvalidTransition
	}
	sess.state = next
	return nil
}

// AddSubscription records interest in a symbol. Idempotent. Fails while the
// session is not yet authenticated or already going away.
func (sess *Session) AddSubscription(symbolID uint32) error {
	sess.mu.Lock()
	defer sess.mu.Unlock()
	if sess.state < StateAuthenticated || sess.state >= StateDisconnecting {
		return exception.ErrNotAuthenticated
	}
	sess.subscribed[symbolID] = struct{}{}
	if sess.state == StateAuthenticated {
		sess.state = StateSubscribed
	}
	return nil
}

// RemoveSubscription drops interest in a symbol. Idempotent.
func (sess *Session) RemoveSubscription(symbolID uint32) error {
	sess.mu.Lock()
	defer sess.mu.Unlock()
	if sess.state < StateAuthenticated {
		return exception.ErrNotAuthenticated
	}
	delete(sess.subscribed, symbolID)
	return nil
}

// HasSubscription reports whether the session is subscribed to a symbol.
func (sess *Session) HasSubscription(symbolID uint32) bool {
	sess.mu.Lock()
	defer sess.mu.Unlock()
	_, ok := sess.subscribed[symbolID]
	return ok
}

// Subscriptions returns a copy of the subscribed symbol set.
func (sess *Session) Subscriptions() []uint32 {
	sess.mu.Lock()
	defer sess.mu.Unlock()
	ids := make([]uint32, 0, len(sess.subscribed))
	for id := range sess.subscribed {
		ids = append(ids, id)
	}
	return ids
}

// Send queues one encoded frame for delivery. The frame is copied, so the
// caller may reuse its buffer. A full queue means the client cannot keep up;
// the send fails and the caller must drive the session to disconnect.
func (sess *Session) Send(frame []byte) error {
	select {
	case <-sess.closed:
		return exception.ErrSessionClosed
	default:
	}

	buf := make([]byte, len(frame))
	copy(buf, frame)

	select {
	case sess.queue <- buf:
		return nil
	default:
		return exception.ErrSendFailed
	}
}

// writeLoop drains the outbound queue onto the socket. A transport error
// closes the session; the read loop then observes the closed connection and
// runs the cleanup path.
func (sess *Session) writeLoop() {
	for {
		select {
		case <-sess.closed:
			return
		case frame := <-sess.queue:
			if sess.writeTimeout > 0 {
				_ = sess.conn.SetWriteDeadline(time.Now().Add(sess.writeTimeout))
			}
			if _, err := sess.conn.Write(frame); err != nil {
				sess.Close()
				return
			}
		}
	}
}

// CloseAfterFlush gives the writer a bounded window to drain queued frames
// before tearing the connection down. Used when a final response, such as a
// logon rejection, must reach the wire before the disconnect.
func (sess *Session) CloseAfterFlush(timeout time.Duration) {
	deadline := time.Now().Add(timeout)
	for len(sess.queue) > 0 && time.Now().Before(deadline) {
		select {
		case <-sess.closed:
			return
		case <-time.After(5 * time.Millisecond):
		}
	}
	// An empty queue means the writer dequeued the last frame, not that the
	// write finished; give it a moment before cutting the socket.
	select {
	case <-sess.closed:
	case <-time.After(20 * time.Millisecond):
	}
	sess.Close()
}

// touch records inbound activity for the idle monitor.
func (sess *Session) touch() {
	sess.lastRecv.Store(time.Now().UnixMilli())
}

// idleSince returns the last inbound activity in unix milliseconds.
func (sess *Session) idleSince() int64 {
	return sess.lastRecv.Load()
}

// Close tears the connection down. Safe to call from any goroutine and any
// number of times; the first call wins.
func (sess *Session) Close() {
	sess.closeOnce.Do(func() {
		sess.mu.Lock()
		sess.state = StateDisconnected
		sess.mu.Unlock()
		close(sess.closed)
		_ = sess.conn.Close()
	})
}

// Closed reports whether Close has run.
func (sess *Session) Closed() bool {
	select {
	case <-sess.closed:
		return true
	default:
		return false
	}
}

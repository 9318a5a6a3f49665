package server

import (
	"context"
	"errors"
	"io"
	"net"

	"github.com/yanun0323/logs"

	"main/internal/dtc"
	"main/pkg/exception"
)

const readBufferSize = 4096

// errClientLogoff signals an orderly client-initiated disconnect.
var errClientLogoff = errors.New("client logoff")

// handleConn runs one connection: a writer goroutine drains the session
// queue while this goroutine accumulates bytes, cuts complete frames, and
// dispatches them. Any frame or session error terminates this connection
// only.
func (s *Server) handleConn(ctx context.Context, sess *Session) {
	logs.Infof("session %d connected from %s", sess.ID(), sess.RemoteAddr())

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		sess.writeLoop()
	}()

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			sess.Close()
		case <-done:
		}
	}()

	defer s.cleanupSession(sess)

	var pending []byte
	buf := make([]byte, readBufferSize)
	for {
		n, err := sess.conn.Read(buf)
		if n > 0 {
			pending = append(pending, buf[:n]...)
			if herr := s.drainFrames(sess, &pending); herr != nil {
				if errors.Is(herr, errClientLogoff) {
					logs.Infof("session %d logged off", sess.ID())
				} else {
					logs.Warnf("session %d terminated: %v", sess.ID(), herr)
				}
				return
			}
		}
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) && !sess.Closed() {
				logs.Warnf("session %d read error: %v", sess.ID(), err)
			}
			return
		}
	}
}

// drainFrames cuts and handles every complete frame buffered so far. The
// transport is an unstructured byte stream: wait for a full header, then for
// the declared size, then decode.
func (s *Server) drainFrames(sess *Session, pending *[]byte) error {
	for {
		size, ok := dtc.PeekSize(*pending)
		if !ok {
			return nil
		}
		if size < dtc.HeaderSize {
			return exception.ErrSizeMismatch
		}
		if size > dtc.MaxFrameSize {
			return exception.ErrFrameTooLarge
		}
		if len(*pending) < size {
			return nil
		}

		msg, err := dtc.Decode((*pending)[:size])
		if err != nil {
			return err
		}
		*pending = (*pending)[size:]

		if err := s.handleMessage(sess, msg); err != nil {
			return err
		}
	}
}

// cleanupSession runs exactly once per connection. It purges the
// subscription index, releases feed symbols nobody wants anymore, and drops
// the session from the registry.
func (s *Server) cleanupSession(sess *Session) {
	_ = sess.Transition(StateDisconnecting)
	subscribed := sess.Subscriptions()
	sess.Close()

	s.index.PurgeSession(sess.ID())
	s.registry.Remove(sess.ID())
	s.metrics.IncSessionClosed()

	for _, symbolID := range subscribed {
		if name, ok := s.index.SymbolName(symbolID); ok {
			s.releaseFeedSymbol(name, symbolID)
		}
	}

	logs.Infof("session %d disconnected, %d clients remain", sess.ID(), s.registry.Count())
}

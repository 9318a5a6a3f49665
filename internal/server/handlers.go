package server

import (
	"time"

	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"

	"main/internal/dtc"
	"main/pkg/exception"
)

// flushTimeout bounds how long a closing session waits for its final
// response frame to reach the wire.
const flushTimeout = 2 * time.Second

// handleMessage dispatches one decoded frame. Returning a non-nil error ends
// the connection; errClientLogoff marks the orderly variant.
func (s *Server) handleMessage(sess *Session, msg dtc.Message) error {
	sess.touch()

	switch m := msg.(type) {
	case dtc.LogonRequest:
		return s.handleLogon(sess, m)
	case dtc.Heartbeat:
		return nil
	case dtc.Logoff:
		logs.Infof("session %d logoff: %s", sess.ID(), m.Reason)
		_ = sess.Transition(StateDisconnecting)
		return errClientLogoff
	case dtc.MarketDataRequest:
		return s.handleMarketDataRequest(sess, m)
	default:
		return errors.Wrapf(exception.ErrInvalidArgument, "client sent server-only message %s", msg.Type())
	}
}

// handleLogon authenticates the session. Every rejection sends a failure
// response, waits for it to flush, and then disconnects.
func (s *Server) handleLogon(sess *Session, req dtc.LogonRequest) error {
	if sess.State() != StateConnected {
		return s.rejectLogon(sess, "already logged on")
	}
	if err := sess.Transition(StateAuthenticating); err != nil {
		return err
	}

	if req.ProtocolVersion != dtc.ProtocolVersion {
		return s.rejectLogon(sess, "incompatible protocol version")
	}
	if req.Username == "" {
		return s.rejectLogon(sess, "username required")
	}
	if s.cfg.Username != "" && (req.Username != s.cfg.Username || req.Password != s.cfg.Password) {
		return s.rejectLogon(sess, "invalid credentials")
	}
	if other := s.registry.FindByUsername(req.Username); other != nil && other.ID() != sess.ID() {
		return s.rejectLogon(sess, "username already connected")
	}

	sess.setUsername(req.Username)
	if err := sess.Transition(StateAuthenticated); err != nil {
		return err
	}

	frame := dtc.EncodeLogonResponse(nil, dtc.LogonResponse{
		Result:     dtc.LogonSuccess,
		ResultText: "logon accepted",
	})
	if err := sess.Send(frame); err != nil {
		return errors.Wrap(err, "send logon response")
	}

	logs.Infof("session %d authenticated as %q", sess.ID(), req.Username)
	return nil
}

// rejectLogon queues a failure response and drives the session to disconnect
// once the frame is flushed.
func (s *Server) rejectLogon(sess *Session, reason string) error {
	logs.Warnf("session %d logon rejected: %s", sess.ID(), reason)
	frame := dtc.EncodeLogonResponse(nil, dtc.LogonResponse{
		Result:     dtc.LogonFailure,
		ResultText: reason,
	})
	_ = sess.Send(frame)
	sess.CloseAfterFlush(flushTimeout)
	return errors.Wrapf(exception.ErrNotAuthenticated, "logon rejected: %s", reason)
}

// handleMarketDataRequest applies a subscribe or unsubscribe. The mutation is
// completed before any later outbound frame for this session is produced, so
// updates can never race ahead of the request that asked for them.
func (s *Server) handleMarketDataRequest(sess *Session, req dtc.MarketDataRequest) error {
	if sess.State() < StateAuthenticated {
		return errors.Wrap(exception.ErrNotAuthenticated, "market data request before logon")
	}

	switch req.Action {
	case dtc.ActionSubscribe:
		return s.applySubscribe(sess, req)
	case dtc.ActionUnsubscribe:
		return s.applyUnsubscribe(sess, req)
	default:
		return errors.Wrapf(exception.ErrInvalidArgument, "market data action %d", req.Action)
	}
}

func (s *Server) applySubscribe(sess *Session, req dtc.MarketDataRequest) error {
	if req.Symbol == "" {
		return errors.Wrap(exception.ErrInvalidArgument, "subscribe without symbol")
	}

	symbolID := req.SymbolID
	if symbolID != 0 {
		if err := s.index.BindSymbol(req.Symbol, symbolID); err != nil {
			return errors.Wrapf(err, "bind %s to id %d", req.Symbol, symbolID)
		}
	} else {
		id, err := s.index.RegisterSymbol(req.Symbol)
		if err != nil {
			return errors.Wrapf(err, "register %s", req.Symbol)
		}
		symbolID = id
	}

	if err := sess.AddSubscription(symbolID); err != nil {
		return err
	}
	if err := s.index.Subscribe(sess.ID(), symbolID); err != nil {
		return err
	}
	s.ensureFeedSymbol(req.Symbol)

	logs.Infof("session %d subscribed %s (id %d)", sess.ID(), req.Symbol, symbolID)
	return nil
}

func (s *Server) applyUnsubscribe(sess *Session, req dtc.MarketDataRequest) error {
	symbolID := req.SymbolID
	symbol := req.Symbol
	if symbolID == 0 {
		id, ok := s.index.LookupSymbol(symbol)
		if !ok {
			// Unknown symbol: nothing to undo.
			return nil
		}
		symbolID = id
	}
	if symbol == "" {
		if name, ok := s.index.SymbolName(symbolID); ok {
			symbol = name
		}
	}

	s.index.Unsubscribe(sess.ID(), symbolID)
	_ = sess.RemoveSubscription(symbolID)
	if symbol != "" {
		s.releaseFeedSymbol(symbol, symbolID)
	}

	logs.Infof("session %d unsubscribed %s (id %d)", sess.ID(), symbol, symbolID)
	return nil
}

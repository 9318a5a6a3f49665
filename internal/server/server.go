package server

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"

	"main/internal/dtc"
	"main/internal/feed"
	"main/internal/obs"
	"main/pkg/exception"
)

// RunState tracks the acceptor lifecycle.
type RunState uint8

const (
	RunStopped RunState = iota
	RunStarting
	RunRunning
	RunStopping
)

func (s RunState) String() string {
	switch s {
	case RunStopped:
		return "stopped"
	case RunStarting:
		return "starting"
	case RunRunning:
		return "running"
	case RunStopping:
		return "stopping"
	default:
		return "unknown"
	}
}

// Config defines the server runtime configuration.
type Config struct {
	Port              uint16
	MaxClients        int
	HeartbeatInterval time.Duration
	WriteTimeout      time.Duration
	SendQueueSize     int
	Username          string // empty accepts any non-empty logon name
	Password          string
	Symbols           []string
}

// Server owns the listening socket, the session registry, the subscription
// index, and the exchange feeds. One goroutine per accepted connection, one
// per feed, plus the heartbeat monitor.
type Server struct {
	cfg        Config
	registry   *Registry
	index      *SubscriptionIndex
	dispatcher *Dispatcher
	metrics    *obs.Metrics

	mu     sync.Mutex
	state  RunState
	ln     net.Listener
	runCtx context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	feedMu      sync.Mutex
	feeds       map[string]feed.Feed
	feedSymbols map[string]struct{}
	configured  map[string]struct{}
}

// New builds a stopped server and registers the configured symbols.
func New(cfg Config, recorder Recorder) (*Server, error) {
	if cfg.SendQueueSize <= 0 {
		cfg.SendQueueSize = 256
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 10 * time.Second
	}
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = 30 * time.Second
	}

	registry := NewRegistry()
	index := NewSubscriptionIndex()
	metrics := obs.NewMetrics()
	srv := &Server{
		cfg:         cfg,
		registry:    registry,
		index:       index,
		dispatcher:  NewDispatcher(index, registry, recorder).WithMetrics(metrics),
		metrics:     metrics,
		feeds:       make(map[string]feed.Feed),
		feedSymbols: make(map[string]struct{}),
		configured:  make(map[string]struct{}),
	}
	for _, symbol := range cfg.Symbols {
		if _, err := index.RegisterSymbol(symbol); err != nil {
			return nil, errors.Wrapf(err, "register symbol %q", symbol)
		}
		srv.configured[symbol] = struct{}{}
	}
	return srv, nil
}

// Registry exposes the session registry.
func (s *Server) Registry() *Registry { return s.registry }

// Index exposes the subscription index.
func (s *Server) Index() *SubscriptionIndex { return s.index }

// Dispatcher exposes the event dispatcher, for wiring feed callbacks.
func (s *Server) Dispatcher() *Dispatcher { return s.dispatcher }

// Metrics exposes the gateway's counters.
func (s *Server) Metrics() *obs.Metrics { return s.metrics }

// Symbols returns every registered symbol name, sorted.
func (s *Server) Symbols() []string { return s.index.Symbols() }

// State returns the acceptor lifecycle state.
func (s *Server) State() RunState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Addr returns the bound listen address, or empty when stopped.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return ""
	}
	return s.ln.Addr().String()
}

// Status summarizes the server for operators.
func (s *Server) Status() string {
	return fmt.Sprintf("state=%s addr=%s clients=%d exchanges=%d",
		s.State(), s.Addr(), s.registry.Count(), len(s.ActiveExchanges()))
}

// Start binds the listener and begins accepting connections. The provided
// context is the server's lifetime: cancelling it is equivalent to Stop.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.state != RunStopped {
		s.mu.Unlock()
		return exception.ErrAlreadyRunning
	}
	s.state = RunStarting

	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", s.cfg.Port))
	if err != nil {
		s.state = RunStopped
		s.mu.Unlock()
		return errors.Wrap(exception.ErrBind, err.Error())
	}

	runCtx, cancel := context.WithCancel(ctx)
	s.ln = ln
	s.runCtx = runCtx
	s.cancel = cancel
	s.state = RunRunning
	s.mu.Unlock()

	// Closing the listener is what unblocks Accept on shutdown.
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		<-runCtx.Done()
		_ = ln.Close()
	}()

	s.wg.Add(2)
	go s.acceptLoop(runCtx, ln)
	go s.heartbeatLoop(runCtx)

	logs.Infof("server listening on %s", ln.Addr())
	return nil
}

// Stop shuts the server down: it closes the listener, signals every open
// connection, disconnects the feeds, and waits for all goroutines to finish.
// Idempotent.
func (s *Server) Stop() {
	s.mu.Lock()
	if s.state != RunRunning {
		s.mu.Unlock()
		return
	}
	s.state = RunStopping
	cancel := s.cancel
	s.mu.Unlock()

	cancel()
	for _, sess := range s.registry.Snapshot() {
		sess.Close()
	}

	s.feedMu.Lock()
	for name, f := range s.feeds {
		f.Disconnect()
		delete(s.feeds, name)
	}
	s.feedMu.Unlock()

	s.wg.Wait()

	s.mu.Lock()
	s.ln = nil
	s.state = RunStopped
	s.mu.Unlock()
	logs.Infof("server stopped")
}

// AddExchange constructs a feed adapter, connects it, wires its callbacks to
// the dispatcher, and subscribes the configured symbols. A failure leaves the
// server running without that exchange.
func (s *Server) AddExchange(ctx context.Context, cfg feed.ExchangeConfig) error {
	f, err := feed.New(cfg)
	if err != nil {
		return err
	}
	f.SetTradeCallback(s.dispatcher.OnTrade)
	f.SetLevel2Callback(s.dispatcher.OnLevel2)

	if err := f.Connect(ctx); err != nil {
		return errors.Wrapf(err, "connect %s", f.Name())
	}

	for _, symbol := range s.cfg.Symbols {
		if err := f.SubscribeTrades(ctx, symbol); err != nil {
			logs.Errorf("%s: subscribe trades %s: %v", f.Name(), symbol, err)
		}
		if err := f.SubscribeLevel2(ctx, symbol); err != nil {
			logs.Errorf("%s: subscribe level2 %s: %v", f.Name(), symbol, err)
		}
	}

	s.feedMu.Lock()
	s.feeds[f.Name()] = f
	for _, symbol := range s.cfg.Symbols {
		s.feedSymbols[symbol] = struct{}{}
	}
	s.feedMu.Unlock()

	logs.Infof("exchange %s connected", f.Name())
	return nil
}

// RemoveExchange disconnects and forgets a feed. No-op for unknown names.
func (s *Server) RemoveExchange(name string) {
	s.feedMu.Lock()
	f, ok := s.feeds[name]
	if ok {
		delete(s.feeds, name)
	}
	s.feedMu.Unlock()
	if ok {
		f.Disconnect()
		logs.Infof("exchange %s removed", name)
	}
}

// ActiveExchanges lists the names of connected feeds.
func (s *Server) ActiveExchanges() []string {
	s.feedMu.Lock()
	defer s.feedMu.Unlock()
	names := make([]string, 0, len(s.feeds))
	for name := range s.feeds {
		names = append(names, name)
	}
	return names
}

func (s *Server) acceptLoop(ctx context.Context, ln net.Listener) {
	defer s.wg.Done()
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return
			}
			logs.Warnf("accept error: %v", err)
			continue
		}
		if s.cfg.MaxClients > 0 && s.registry.Count() >= s.cfg.MaxClients {
			logs.Warnf("client limit %d reached, rejecting %s", s.cfg.MaxClients, conn.RemoteAddr())
			_ = conn.Close()
			continue
		}

		sess := s.registry.Create(conn, s.cfg.SendQueueSize, s.cfg.WriteTimeout)
		s.metrics.IncSessionOpened()
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handleConn(ctx, sess)
		}()
	}
}

// heartbeatLoop sends keepalives to authenticated sessions and disconnects
// those with no inbound traffic for two intervals.
func (s *Server) heartbeatLoop(ctx context.Context) {
	defer s.wg.Done()
	ticker := time.NewTicker(s.cfg.HeartbeatInterval)
	defer ticker.Stop()

	frame := dtc.EncodeHeartbeat(nil)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			cutoff := time.Now().Add(-2 * s.cfg.HeartbeatInterval).UnixMilli()
			for _, sess := range s.registry.Snapshot() {
				if sess.Closed() {
					continue
				}
				if sess.idleSince() < cutoff {
					logs.Warnf("session %d idle, disconnecting", sess.ID())
					sess.Close()
					continue
				}
				if sess.State() >= StateAuthenticated && sess.State() < StateDisconnecting {
					if err := sess.Send(frame); err != nil {
						sess.Close()
					}
				}
			}
		}
	}
}

// ensureFeedSymbol pushes a newly requested symbol to every connected feed.
func (s *Server) ensureFeedSymbol(symbol string) {
	s.feedMu.Lock()
	if _, ok := s.feedSymbols[symbol]; ok {
		s.feedMu.Unlock()
		return
	}
	s.feedSymbols[symbol] = struct{}{}
	feeds := make([]feed.Feed, 0, len(s.feeds))
	for _, f := range s.feeds {
		feeds = append(feeds, f)
	}
	s.feedMu.Unlock()

	ctx := s.feedContext()
	for _, f := range feeds {
		if err := f.SubscribeTrades(ctx, symbol); err != nil {
			logs.Errorf("%s: subscribe trades %s: %v", f.Name(), symbol, err)
		}
		if err := f.SubscribeLevel2(ctx, symbol); err != nil {
			logs.Errorf("%s: subscribe level2 %s: %v", f.Name(), symbol, err)
		}
	}
}

// releaseFeedSymbol unsubscribes a symbol from the feeds once no session
// wants it. Configured symbols stay subscribed.
func (s *Server) releaseFeedSymbol(symbol string, symbolID uint32) {
	if _, ok := s.configured[symbol]; ok {
		return
	}
	if s.index.SubscriberCount(symbolID) > 0 {
		return
	}

	s.feedMu.Lock()
	if _, ok := s.feedSymbols[symbol]; !ok {
		s.feedMu.Unlock()
		return
	}
	delete(s.feedSymbols, symbol)
	feeds := make([]feed.Feed, 0, len(s.feeds))
	for _, f := range s.feeds {
		feeds = append(feeds, f)
	}
	s.feedMu.Unlock()

	ctx := s.feedContext()
	for _, f := range feeds {
		if err := f.Unsubscribe(ctx, symbol); err != nil {
			logs.Errorf("%s: unsubscribe %s: %v", f.Name(), symbol, err)
		}
	}
}

func (s *Server) feedContext() context.Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.runCtx != nil {
		return s.runCtx
	}
	return context.Background()
}

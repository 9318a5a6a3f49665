package ops

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/yanun0323/logs"

	"main/internal/obs"
	"main/pkg/uds"
)

const adminIOTimeout = 5 * time.Second

// GatewayStatus is what the admin socket reports on. The running server
// satisfies it.
type GatewayStatus interface {
	Status() string
	ActiveExchanges() []string
	Symbols() []string
	Metrics() *obs.Metrics
}

// AdminServer answers one-line queries on a Unix domain socket, for
// operators poking at a running gateway with nc or socat.
type AdminServer struct {
	src GatewayStatus
	srv *uds.Server
	wg  sync.WaitGroup
}

// NewAdminServer creates a stopped admin server for the given socket path.
func NewAdminServer(path string, src GatewayStatus) (*AdminServer, error) {
	srv, err := uds.NewServer(path)
	if err != nil {
		return nil, err
	}
	return &AdminServer{src: src, srv: srv}, nil
}

// Start binds the socket and serves until ctx is canceled.
func (a *AdminServer) Start(ctx context.Context) error {
	if err := a.srv.Listen(); err != nil {
		return err
	}
	logs.Infof("admin socket listening on %s", a.srv.Path())

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		<-ctx.Done()
		_ = a.srv.Close()
	}()

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		for {
			conn, err := a.srv.Accept()
			if err != nil {
				if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
					return
				}
				logs.Warnf("admin accept: %v", err)
				continue
			}
			a.wg.Add(1)
			go func() {
				defer a.wg.Done()
				a.serve(conn)
			}()
		}
	}()
	return nil
}

// Close stops the listener and waits for in-flight queries.
func (a *AdminServer) Close() {
	_ = a.srv.Close()
	a.wg.Wait()
}

// serve answers a single query per connection.
func (a *AdminServer) serve(conn net.Conn) {
	defer conn.Close()
	_ = conn.SetDeadline(time.Now().Add(adminIOTimeout))

	line, err := bufio.NewReader(conn).ReadString('\n')
	if err != nil && line == "" {
		return
	}

	cmd := strings.ToLower(strings.TrimSpace(line))
	_, _ = conn.Write([]byte(a.respond(cmd)))
}

func (a *AdminServer) respond(cmd string) string {
	switch cmd {
	case "status":
		return a.src.Status() + "\n"
	case "exchanges":
		return strings.Join(a.src.ActiveExchanges(), "\n") + "\n"
	case "symbols":
		return strings.Join(a.src.Symbols(), "\n") + "\n"
	case "metrics":
		return formatMetrics(a.src.Metrics().Snapshot())
	default:
		return "unknown command; try: status, exchanges, symbols, metrics\n"
	}
}

func formatMetrics(s obs.Snapshot) string {
	var b strings.Builder
	fmt.Fprintf(&b, "trades_in %d\n", s.TradesIn)
	fmt.Fprintf(&b, "level2_in %d\n", s.Level2In)
	fmt.Fprintf(&b, "frames_out %d\n", s.FramesOut)
	fmt.Fprintf(&b, "send_failures %d\n", s.SendFailures)
	fmt.Fprintf(&b, "unknown_symbols %d\n", s.UnknownSymbols)
	fmt.Fprintf(&b, "sessions_opened %d\n", s.SessionsOpened)
	fmt.Fprintf(&b, "sessions_closed %d\n", s.SessionsClosed)
	fmt.Fprintf(&b, "fanout_count %d\n", s.FanOutLatency.Count)
	fmt.Fprintf(&b, "fanout_avg_ns %d\n", int64(s.FanOutLatency.Avg))
	fmt.Fprintf(&b, "fanout_max_ns %d\n", int64(s.FanOutLatency.Max))
	return b.String()
}

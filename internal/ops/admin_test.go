package ops

import (
	"context"
	"io"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"main/internal/obs"
	"main/pkg/uds"
)

type fakeGateway struct {
	metrics *obs.Metrics
}

func (f *fakeGateway) Status() string            { return "state=running clients=2" }
func (f *fakeGateway) ActiveExchanges() []string { return []string{"binance", "coinbase"} }
func (f *fakeGateway) Symbols() []string         { return []string{"BTC-USD", "ETH-USD"} }
func (f *fakeGateway) Metrics() *obs.Metrics     { return f.metrics }

func startAdmin(t *testing.T) (*AdminServer, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "admin.sock")
	gw := &fakeGateway{metrics: obs.NewMetrics()}
	gw.metrics.IncTradeIn()
	gw.metrics.AddFramesOut(3)

	admin, err := NewAdminServer(path, gw)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, admin.Start(ctx))
	t.Cleanup(func() {
		cancel()
		admin.Close()
	})
	return admin, path
}

func query(t *testing.T, path, cmd string) string {
	t.Helper()
	client, err := uds.NewClient(path)
	require.NoError(t, err)
	conn, err := client.Dial()
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Write([]byte(cmd + "\n"))
	require.NoError(t, err)
	require.NoError(t, conn.CloseWrite())

	out, err := io.ReadAll(conn)
	require.NoError(t, err)
	return string(out)
}

func TestAdminStatus(t *testing.T) {
	_, path := startAdmin(t)
	assert.Equal(t, "state=running clients=2\n", query(t, path, "status"))
}

func TestAdminExchangesAndSymbols(t *testing.T) {
	_, path := startAdmin(t)
	assert.Equal(t, "binance\ncoinbase\n", query(t, path, "exchanges"))
	assert.Equal(t, "BTC-USD\nETH-USD\n", query(t, path, "symbols"))
}

func TestAdminMetrics(t *testing.T) {
	_, path := startAdmin(t)
	out := query(t, path, "metrics")
	assert.Contains(t, out, "trades_in 1\n")
	assert.Contains(t, out, "frames_out 3\n")
}

func TestAdminUnknownCommand(t *testing.T) {
	_, path := startAdmin(t)
	out := query(t, path, "bogus")
	assert.True(t, strings.HasPrefix(out, "unknown command"))
}

package ops

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadFullConfig(t *testing.T) {
	path := writeConfig(t, `{
		"server": {"port": 12000, "maxClients": 8, "heartbeatSeconds": 10},
		"auth": {"username": "user", "password": "pass"},
		"symbols": ["BTC-USD", "ETH-USD"],
		"exchanges": [
			{"name": "coinbase"},
			{"name": "binance", "endpoint": "wss://example.test/ws"}
		],
		"recorder": {"enabled": true, "queueSize": 128, "postgres": {"host": "db", "database": "md"}},
		"profiling": {"enabled": false}
	}`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, uint16(12000), cfg.Server.Port)
	assert.Equal(t, 8, cfg.Server.MaxClients)
	assert.Equal(t, 10, cfg.Server.HeartbeatSeconds)
	assert.Equal(t, "user", cfg.Auth.Username)
	assert.Equal(t, []string{"BTC-USD", "ETH-USD"}, cfg.Symbols)
	require.Len(t, cfg.Exchanges, 2)
	assert.Equal(t, "wss://example.test/ws", cfg.Exchanges[1].Endpoint)
	assert.True(t, cfg.Recorder.Enabled)
	assert.Equal(t, 128, cfg.Recorder.QueueSize)
	assert.Equal(t, "db", cfg.Recorder.Postgres.Host)
}

func TestLoadDefaults(t *testing.T) {
	path := writeConfig(t, `{}`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, uint16(11099), cfg.Server.Port)
	assert.Equal(t, 100, cfg.Server.MaxClients)
	assert.Equal(t, 30, cfg.Server.HeartbeatSeconds)
	assert.Equal(t, 4096, cfg.Recorder.QueueSize)
	assert.False(t, cfg.Recorder.Enabled)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.json"))
	require.Error(t, err)
}

func TestLoadMalformedJSON(t *testing.T) {
	path := writeConfig(t, `{"server": `)
	_, err := Load(path)
	require.Error(t, err)
}

func TestLoadRejectsEmptyExchangeName(t *testing.T) {
	path := writeConfig(t, `{"exchanges": [{"name": ""}]}`)
	_, err := Load(path)
	require.Error(t, err)
}

func TestLoadRejectsEmptySymbol(t *testing.T) {
	path := writeConfig(t, `{"symbols": [""]}`)
	_, err := Load(path)
	require.Error(t, err)
}

// Package ops loads the gateway's runtime configuration.
package ops

import (
	"os"

	"github.com/bytedance/sonic"
	"github.com/yanun0323/errors"

	"main/internal/feed"
)

// FileConfig mirrors the JSON config layout.
type FileConfig struct {
	Server    ServerConfig          `json:"server"`
	Auth      AuthConfig            `json:"auth"`
	Symbols   []string              `json:"symbols"`
	Exchanges []feed.ExchangeConfig `json:"exchanges"`
	Recorder  RecorderConfig        `json:"recorder"`
	Profiling ProfilingConfig       `json:"profiling"`

	// AdminSocket enables the local status socket when set.
	AdminSocket string `json:"adminSocket"`
}

// ServerConfig defines the client-facing listener.
type ServerConfig struct {
	Port             uint16 `json:"port"`
	MaxClients       int    `json:"maxClients"`
	HeartbeatSeconds int    `json:"heartbeatSeconds"`
}

// AuthConfig defines logon checking. An empty username accepts any
// non-empty logon name.
type AuthConfig struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// RecorderConfig enables optional market-data persistence.
type RecorderConfig struct {
	Enabled   bool           `json:"enabled"`
	QueueSize int            `json:"queueSize"`
	Postgres  PostgresConfig `json:"postgres"`
}

// PostgresConfig describes the recorder database.
type PostgresConfig struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
	Database string `json:"database"`
	SSLMode  string `json:"sslMode"`
}

// ProfilingConfig enables continuous profiling.
type ProfilingConfig struct {
	Enabled       bool   `json:"enabled"`
	ServerAddress string `json:"serverAddress"`
}

const (
	defaultPort             = 11099
	defaultMaxClients       = 100
	defaultHeartbeatSeconds = 30
	defaultRecorderQueue    = 4096
)

// Load reads and validates a JSON config file, filling defaults.
func Load(path string) (FileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return FileConfig{}, errors.Wrap(err, "read config")
	}
	var cfg FileConfig
	if err := sonic.Unmarshal(data, &cfg); err != nil {
		return FileConfig{}, errors.Wrap(err, "parse config")
	}

	if cfg.Server.Port == 0 {
		cfg.Server.Port = defaultPort
	}
	if cfg.Server.MaxClients <= 0 {
		cfg.Server.MaxClients = defaultMaxClients
	}
	if cfg.Server.HeartbeatSeconds <= 0 {
		cfg.Server.HeartbeatSeconds = defaultHeartbeatSeconds
	}
	if cfg.Recorder.QueueSize <= 0 {
		cfg.Recorder.QueueSize = defaultRecorderQueue
	}

	for i, exchange := range cfg.Exchanges {
		if exchange.Name == "" {
			return FileConfig{}, errors.Errorf("exchange %d: empty name", i)
		}
	}
	for i, symbol := range cfg.Symbols {
		if symbol == "" {
			return FileConfig{}, errors.Errorf("symbol %d: empty name", i)
		}
	}

	return cfg, nil
}

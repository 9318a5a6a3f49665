// Package conn holds shared connection helpers for external stores.
package conn

import (
	"context"
	"fmt"
	"strings"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const (
	defaultPostgresHost    = "localhost"
	defaultPostgresPort    = 5432
	defaultPostgresSSLMode = "disable"

	pingTimeout = 5 * time.Second
)

// PostgresOption describes how to reach a PostgreSQL server.
type PostgresOption struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
}

// Postgres wraps a gorm connection pool for the capture store.
type Postgres struct {
	db *gorm.DB
}

// OpenPostgres dials the database and verifies it answers before returning.
func OpenPostgres(opt PostgresOption) (*Postgres, error) {
	db, err := gorm.Open(postgres.Open(opt.dsn()), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, err
	}

	pg := &Postgres{db: db}
	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()
	if err := pg.Ping(ctx); err != nil {
		_ = pg.Close()
		return nil, err
	}
	return pg, nil
}

// DB exposes the underlying gorm handle for migrations and queries.
func (pg *Postgres) DB() *gorm.DB {
	if pg == nil {
		return nil
	}
	return pg.db
}

// Ping checks connectivity within the context's deadline.
func (pg *Postgres) Ping(ctx context.Context) error {
	sqlDB, err := pg.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Close releases the pool.
func (pg *Postgres) Close() error {
	if pg == nil || pg.db == nil {
		return nil
	}
	sqlDB, err := pg.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (opt PostgresOption) dsn() string {
	host := opt.Host
	if host == "" {
		host = defaultPostgresHost
	}
	port := opt.Port
	if port == 0 {
		port = defaultPostgresPort
	}
	sslMode := opt.SSLMode
	if sslMode == "" {
		sslMode = defaultPostgresSSLMode
	}

	parts := []string{
		fmt.Sprintf("host=%s", host),
		fmt.Sprintf("port=%d", port),
		fmt.Sprintf("sslmode=%s", sslMode),
	}
	if opt.User != "" {
		parts = append(parts, fmt.Sprintf("user=%s", opt.User))
	}
	if opt.Password != "" {
		parts = append(parts, fmt.Sprintf("password=%s", opt.Password))
	}
	if opt.Database != "" {
		parts = append(parts, fmt.Sprintf("dbname=%s", opt.Database))
	}
	return strings.Join(parts, " ")
}

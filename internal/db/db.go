package db

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	// PingTimeout bounds pool start-up including the initial ping.
	PingTimeout = 30 * time.Second

	defaultApplicationName  = "paygate"
	defaultStatementTimeout = 5 * time.Second
)

// Config describes the gateway's connection pool. Order and refund rows are
// locked for the lifetime of a unit of work, so every session carries a
// statement and lock timeout.
type Config struct {
	Addr             string
	MaxConns         int32
	MaxIdleTime      string
	StatementTimeout time.Duration
	ApplicationName  string
}

// PoolConfig turns cfg into a pgxpool config without dialing.
func PoolConfig(cfg Config) (*pgxpool.Config, error) {
	config, err := pgxpool.ParseConfig(cfg.Addr)
	if err != nil {
		return nil, err
	}

	if cfg.MaxConns <= 0 {
		return nil, fmt.Errorf("db: max conns must be positive, got %d", cfg.MaxConns)
	}
	config.MaxConns = cfg.MaxConns

	duration, err := time.ParseDuration(cfg.MaxIdleTime)
	if err != nil {
		return nil, fmt.Errorf("db: max idle time: %w", err)
	}
	config.MaxConnIdleTime = duration

	timeout := cfg.StatementTimeout
	if timeout <= 0 {
		timeout = defaultStatementTimeout
	}
	name := cfg.ApplicationName
	if name == "" {
		name = defaultApplicationName
	}
	ms := strconv.FormatInt(timeout.Milliseconds(), 10)
	config.ConnConfig.RuntimeParams["application_name"] = name
	config.ConnConfig.RuntimeParams["statement_timeout"] = ms
	config.ConnConfig.RuntimeParams["lock_timeout"] = ms

	return config, nil
}

// New sets up a new pgx connection pool
func New(cfg Config) (*pgxpool.Pool, error) {
	config, err := PoolConfig(cfg)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), PingTimeout)
	defer cancel()

	dbpool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, err
	}

	if err := dbpool.Ping(ctx); err != nil {
		dbpool.Close()
		return nil, err
	}

	return dbpool, nil
}

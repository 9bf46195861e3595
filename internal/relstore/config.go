// Package relstore provides a typed connection pool and transaction helpers
// over a MySQL-compatible relational store.
package relstore

import (
	"errors"
	"strings"
	"time"

	"github.com/hugodataanalyst/ingestpipe/internal/config"
)

const (
	defaultMaxOpenConns     = 25
	defaultMaxIdleConns     = 5
	defaultConnMaxLifetime  = 30 * time.Minute
	defaultConnMaxIdleTime  = 10 * time.Minute
	defaultLockWaitTimeout  = 10 * time.Second
	defaultDeadlockRetries  = 8
	defaultDeadlockBackoff  = 250 * time.Millisecond
	defaultDeadlockCap      = 2 * time.Second
)

// ErrDatabaseURLEmpty is returned when the database DSN is an empty string.
var ErrDatabaseURLEmpty = errors.New("database DSN cannot be empty")

// Config holds MySQL connection configuration with production-ready defaults.
type Config struct {
	dsn             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
	LockWaitTimeout time.Duration
	DeadlockRetries int
	DeadlockBackoff time.Duration
	DeadlockCap     time.Duration
}

// LoadConfig loads MySQL configuration from environment variables.
func LoadConfig() *Config {
	return &Config{
		dsn:             config.GetEnvStr("RELSTORE_DSN", ""),
		MaxOpenConns:    config.GetEnvInt("RELSTORE_MAX_OPEN_CONNS", defaultMaxOpenConns),
		MaxIdleConns:    config.GetEnvInt("RELSTORE_MAX_IDLE_CONNS", defaultMaxIdleConns),
		ConnMaxLifetime: config.GetEnvDuration("RELSTORE_CONN_MAX_LIFETIME", defaultConnMaxLifetime),
		ConnMaxIdleTime: config.GetEnvDuration("RELSTORE_CONN_MAX_IDLE_TIME", defaultConnMaxIdleTime),
		LockWaitTimeout: config.GetEnvDuration("RELSTORE_LOCK_WAIT_TIMEOUT", defaultLockWaitTimeout),
		DeadlockRetries: config.GetEnvInt("RELSTORE_DEADLOCK_RETRIES", defaultDeadlockRetries),
		DeadlockBackoff: config.GetEnvDuration("RELSTORE_DEADLOCK_BACKOFF", defaultDeadlockBackoff),
		DeadlockCap:     config.GetEnvDuration("RELSTORE_DEADLOCK_CAP", defaultDeadlockCap),
	}
}

// Validate checks if the MySQL configuration is valid.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.dsn) == "" {
		return ErrDatabaseURLEmpty
	}

	return nil
}

// MaskDSN returns a masked DSN safe for logging.
func (c *Config) MaskDSN() string {
	if c.dsn == "" {
		return ""
	}

	atIndex := strings.Index(c.dsn, "@")
	colonIndex := strings.Index(c.dsn, ":")

	if atIndex == -1 || colonIndex == -1 || colonIndex > atIndex {
		return c.dsn
	}

	return c.dsn[:colonIndex] + ":***" + c.dsn[atIndex:]
}

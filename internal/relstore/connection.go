package relstore

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql" // MySQL driver
)

const (
	mysqlDriver = "mysql"
	ctxTimeout  = 5 * time.Second
)

// Connection wraps a MySQL connection pool.
type Connection struct {
	*sql.DB
	cfg *Config
}

// NewConnection opens a pooled MySQL connection and health-checks it before
// returning.
func NewConnection(cfg *Config) (*Connection, error) {
	db, err := sql.Open(mysqlDriver, cfg.dsn)
	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	ctx, cancel := context.WithTimeout(context.Background(), ctxTimeout)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()

		return nil, fmt.Errorf("database health check failed: %w", err)
	}

	return &Connection{DB: db, cfg: cfg}, nil
}

// HealthCheck checks if the connection is healthy with a bounded timeout.
func (c *Connection) HealthCheck(ctx context.Context) error { //nolint: contextcheck
	if ctx == nil {
		var cancel context.CancelFunc

		ctx, cancel = context.WithTimeout(context.Background(), ctxTimeout)
		defer cancel()
	}

	return c.PingContext(ctx)
}

// Close closes the connection pool gracefully. Safe to call multiple times.
func (c *Connection) Close() error {
	return c.DB.Close()
}

// Stats returns connection pool statistics for monitoring.
func (c *Connection) Stats() sql.DBStats {
	return c.DB.Stats()
}

package relstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/go-sql-driver/mysql"
)

const (
	mysqlErrDeadlock        = 1213
	mysqlErrLockWaitTimeout = 1205
)

// WithTx opens a transaction at the given isolation level, sets the session
// lock-wait timeout, runs fn, and commits or rolls back depending on fn's
// outcome.
func (c *Connection) WithTx(ctx context.Context, isolation sql.IsolationLevel, fn func(*sql.Tx) error) error {
	tx, err := c.BeginTx(ctx, &sql.TxOptions{Isolation: isolation})
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	lockWaitSeconds := int(c.cfg.LockWaitTimeout.Seconds())
	if lockWaitSeconds < 1 {
		lockWaitSeconds = 1
	}

	if _, err := tx.ExecContext(ctx, fmt.Sprintf("SET SESSION innodb_lock_wait_timeout = %d", lockWaitSeconds)); err != nil {
		_ = tx.Rollback()

		return fmt.Errorf("set lock wait timeout: %w", err)
	}

	if err := fn(tx); err != nil {
		_ = tx.Rollback()

		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}

	return nil
}

// IsRetryableDeadlock reports whether err is a MySQL deadlock (1213) or
// lock-wait-timeout (1205) error, the two codes pokemon_processor.py's retry
// loop inspects via e.args[0].
func IsRetryableDeadlock(err error) bool {
	var mysqlErr *mysql.MySQLError
	if !errors.As(err, &mysqlErr) {
		return false
	}

	return mysqlErr.Number == mysqlErrDeadlock || mysqlErr.Number == mysqlErrLockWaitTimeout
}

// RetryDeadlock retries fn up to cfg.DeadlockRetries times when fn returns a
// retryable deadlock/lock-wait-timeout error, using the same
// min(cap, backoff*attempt)+jitter shape as the Python bulk processors. Any
// other error is returned immediately — the caller treats it as "apply
// failed".
func (c *Connection) RetryDeadlock(ctx context.Context, fn func() error) error {
	var lastErr error

	for attempt := 1; attempt <= c.cfg.DeadlockRetries; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}

		lastErr = err

		if !IsRetryableDeadlock(err) {
			return err
		}

		if attempt == c.cfg.DeadlockRetries {
			break
		}

		delay := time.Duration(attempt) * c.cfg.DeadlockBackoff
		if delay > c.cfg.DeadlockCap {
			delay = c.cfg.DeadlockCap
		}

		jitter := time.Duration(rand.Int63n(int64(c.cfg.DeadlockBackoff))) //nolint:gosec

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay + jitter):
		}
	}

	return fmt.Errorf("exhausted deadlock retries: %w", lastErr)
}

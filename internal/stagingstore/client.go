package stagingstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/redis/go-redis/v9"
)

// Client is a typed wrapper over a Redis-compatible staging store.
type Client struct {
	rdb    *redis.Client
	cfg    *Config
	logger *slog.Logger
}

// NewClient parses cfg's URL, dials a pooled client, and pings it before
// returning.
func NewClient(cfg *Config, logger *slog.Logger) (*Client, error) {
	opt, err := redis.ParseURL(cfg.url)
	if err != nil {
		return nil, fmt.Errorf("invalid staging store URL: %w", err)
	}

	opt.PoolSize = cfg.PoolSize
	opt.MinIdleConns = cfg.MinIdleConns
	opt.DialTimeout = cfg.DialTimeout
	opt.ReadTimeout = cfg.ReadTimeout
	opt.WriteTimeout = cfg.WriteTimeout

	rdb := redis.NewClient(opt)

	ctx, cancel := context.WithTimeout(context.Background(), cfg.DialTimeout)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()

		return nil, fmt.Errorf("staging store health check failed: %w", err)
	}

	return &Client{rdb: rdb, cfg: cfg, logger: logger}, nil
}

// EnsureClient probes the client with PING and, on failure, dials a fresh
// connection from cfg. Mirrors the original's ensure_client/get_connection_with_retry
// fallback used by every buffer before an RPUSH/HINCRBY.
func EnsureClient(ctx context.Context, c *Client, logger *slog.Logger) (*Client, error) {
	if c != nil {
		pingCtx, cancel := context.WithTimeout(ctx, c.cfg.ReadTimeout)
		err := c.rdb.Ping(pingCtx).Err()
		cancel()

		if err == nil {
			return c, nil
		}

		logger.Warn("staging store ping failed, reconnecting", "error", err)
	}

	if c == nil {
		return nil, ErrConnectionUnavailable
	}

	fresh, err := NewClient(c.cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnectionUnavailable, err)
	}

	return fresh, nil
}

// Close closes the underlying connection pool.
func (c *Client) Close() error {
	return c.rdb.Close()
}

// HealthCheck pings the staging store with a bounded timeout.
func (c *Client) HealthCheck(ctx context.Context) error {
	pingCtx, cancel := context.WithTimeout(ctx, c.cfg.ReadTimeout)
	defer cancel()

	return c.rdb.Ping(pingCtx).Err()
}

// Do retries op using backoff/v4, classifying errors with classify. Fatal
// errors abort immediately; semantic errors are returned unwrapped to the
// caller without retry (the caller treats them as an expected outcome, not a
// failure); transient errors retry up to cfg.RetryCount times with a linear
// backoff seeded at cfg.RetryBase.
func Do[T any](ctx context.Context, c *Client, classify ErrClassifier, op func(context.Context) (T, error)) (T, error) {
	var (
		result T
		lastErr error
	)

	attempt := 0
	policy := backoff.WithContext(backoff.WithMaxRetries(
		&linearBackOff{base: c.cfg.RetryBase}, uint64(c.cfg.RetryCount)), ctx)

	err := backoff.Retry(func() error {
		attempt++

		var opErr error
		result, opErr = op(ctx)
		if opErr == nil {
			return nil
		}

		lastErr = opErr

		switch classify(opErr) {
		case KindSemantic:
			return backoff.Permanent(opErr)
		case KindFatal:
			return backoff.Permanent(opErr)
		default:
			c.logger.Debug("staging store operation retrying", "attempt", attempt, "error", opErr)
			return opErr
		}
	}, policy)

	if err != nil {
		var perm *backoff.PermanentError
		if errors.As(err, &perm) {
			return result, perm.Err
		}

		return result, lastErr
	}

	return result, nil
}

// linearBackOff implements backoff.BackOff with a fixed linear step, matching
// the original's "300ms * attempt" staging-store retry shape.
type linearBackOff struct {
	base    time.Duration
	attempt int
}

func (l *linearBackOff) Reset() { l.attempt = 0 }

func (l *linearBackOff) NextBackOff() time.Duration {
	l.attempt++
	return time.Duration(l.attempt) * l.base
}

func translateRenameErr(err error) error {
	if err == nil {
		return nil
	}

	if strings.Contains(strings.ToLower(err.Error()), "no such key") {
		return ErrNoSuchKey
	}

	return err
}

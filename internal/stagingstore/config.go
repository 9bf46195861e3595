// Package stagingstore wraps a Redis-compatible staging store with a typed
// client, retry combinator, and the key-space primitives the buffer,
// shared-state, and leader-election layers build on.
package stagingstore

import (
	"strings"
	"time"

	"github.com/hugodataanalyst/ingestpipe/internal/config"
)

const (
	defaultPoolSize     = 20
	defaultMinIdleConns = 5
	defaultDialTimeout  = 5 * time.Second
	defaultReadTimeout  = 3 * time.Second
	defaultWriteTimeout = 3 * time.Second
	defaultRetryBase    = 300 * time.Millisecond
	defaultRetryCount   = 3
)

// Config holds staging-store connection configuration with production-ready defaults.
type Config struct {
	url          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	RetryBase    time.Duration
	RetryCount   int
}

// LoadConfig loads staging-store configuration from environment variables.
func LoadConfig() *Config {
	return &Config{
		url:          config.GetEnvStr("STAGING_STORE_URL", ""),
		PoolSize:     config.GetEnvInt("STAGING_STORE_POOL_SIZE", defaultPoolSize),
		MinIdleConns: config.GetEnvInt("STAGING_STORE_MIN_IDLE_CONNS", defaultMinIdleConns),
		DialTimeout:  config.GetEnvDuration("STAGING_STORE_DIAL_TIMEOUT", defaultDialTimeout),
		ReadTimeout:  config.GetEnvDuration("STAGING_STORE_READ_TIMEOUT", defaultReadTimeout),
		WriteTimeout: config.GetEnvDuration("STAGING_STORE_WRITE_TIMEOUT", defaultWriteTimeout),
		RetryBase:    config.GetEnvDuration("STAGING_STORE_RETRY_BASE", defaultRetryBase),
		RetryCount:   config.GetEnvInt("STAGING_STORE_RETRY_COUNT", defaultRetryCount),
	}
}

// Validate checks if the staging-store configuration is valid.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.url) == "" {
		return ErrStagingStoreURLEmpty
	}

	return nil
}

// MaskURL returns a masked connection URL safe for logging.
func (c *Config) MaskURL() string {
	if c.url == "" {
		return ""
	}

	schemeEnd := strings.Index(c.url, "://")
	if schemeEnd == -1 {
		return c.url
	}

	afterScheme := c.url[schemeEnd+3:]

	atIndex := strings.LastIndex(afterScheme, "@")
	if atIndex == -1 {
		return c.url
	}

	userInfo := afterScheme[:atIndex]

	colonIndex := strings.Index(userInfo, ":")
	if colonIndex == -1 {
		return c.url
	}

	username := userInfo[:colonIndex]
	password := userInfo[colonIndex+1:]

	if password == "" {
		return c.url
	}

	scheme := c.url[:schemeEnd]
	hostAndRest := afterScheme[atIndex:]

	return scheme + "://" + username + ":***" + hostAndRest
}

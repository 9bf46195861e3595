// Package adminapi is the narrow HTTP surface this core exposes directly:
// liveness/readiness probes and the webhook ingress C11 hangs off of.
// Routing, auth, and payload classification/geofence lookup are the
// upstream webhook receiver's job (out of scope per spec.md §1) — by the
// time a request reaches here it's already a normalized event dict.
package adminapi

import (
	"fmt"
	"time"

	"github.com/hugodataanalyst/ingestpipe/internal/config"
)

const (
	// DefaultPort is the admin surface's default listen port.
	DefaultPort = 9100
	// DefaultHost is the default bind address.
	DefaultHost            = "0.0.0.0"
	defaultReadTimeout     = 10 * time.Second
	defaultWriteTimeout    = 10 * time.Second
	defaultShutdownTimeout = 15 * time.Second
)

// Config holds the admin HTTP surface's listen and timeout settings.
type Config struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// LoadConfig loads admin-surface configuration from the environment.
func LoadConfig() *Config {
	return &Config{
		Host:            config.GetEnvStr("ADMINAPI_HOST", DefaultHost),
		Port:            config.GetEnvInt("ADMINAPI_PORT", DefaultPort),
		ReadTimeout:     config.GetEnvDuration("ADMINAPI_READ_TIMEOUT", defaultReadTimeout),
		WriteTimeout:    config.GetEnvDuration("ADMINAPI_WRITE_TIMEOUT", defaultWriteTimeout),
		ShutdownTimeout: config.GetEnvDuration("ADMINAPI_SHUTDOWN_TIMEOUT", defaultShutdownTimeout),
	}
}

// Address returns the host:port the server listens on.
func (c *Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

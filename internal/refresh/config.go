package refresh

import (
	"time"

	"github.com/hugodataanalyst/ingestpipe/internal/config"
)

const (
	defaultGeofenceRefreshInterval = time.Hour
	defaultGeofenceExpireSeconds   = 3600 * time.Second
	defaultGeofenceRetries         = 3
	defaultGeofenceRateLimitPerSec = 2

	defaultPokestopRefreshInterval = 5 * time.Minute
	defaultPokestopCacheExpiry     = 300 * time.Second
	defaultPokestopMaxRetries      = 5
)

// Config holds tunables for both external-data refreshers.
type Config struct {
	KojiAPIURL      string
	KojiBearerToken string

	GeofenceRefreshInterval time.Duration
	GeofenceExpireSeconds   time.Duration
	GeofenceRetries         int
	GeofenceRateLimitPerSec int

	PokestopRefreshInterval time.Duration
	PokestopCacheExpiry     time.Duration
	PokestopMaxRetries      int
}

// LoadConfig loads refresher configuration from environment variables.
func LoadConfig() *Config {
	return &Config{
		KojiAPIURL:              config.GetEnvStr("KOJI_GEOFENCE_API_URL", ""),
		KojiBearerToken:         config.GetEnvStr("KOJI_BEARER_TOKEN", ""),
		GeofenceRefreshInterval: config.GetEnvDuration("GEOFENCE_REFRESH_INTERVAL", defaultGeofenceRefreshInterval),
		GeofenceExpireSeconds:   config.GetEnvDuration("GEOFENCE_EXPIRE_CACHE_SECONDS", defaultGeofenceExpireSeconds),
		GeofenceRetries:         config.GetEnvInt("GEOFENCE_REFRESH_RETRIES", defaultGeofenceRetries),
		GeofenceRateLimitPerSec: config.GetEnvInt("GEOFENCE_REFRESH_RATE_LIMIT", defaultGeofenceRateLimitPerSec),
		PokestopRefreshInterval: config.GetEnvDuration("POKESTOP_REFRESH_INTERVAL", defaultPokestopRefreshInterval),
		PokestopCacheExpiry:     config.GetEnvDuration("POKESTOP_CACHE_EXPIRY_SECONDS", defaultPokestopCacheExpiry),
		PokestopMaxRetries:      config.GetEnvInt("POKESTOP_MAX_RETRIES", defaultPokestopMaxRetries),
	}
}

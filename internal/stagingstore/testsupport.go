package stagingstore

// TestConfig builds a Config pointed at rawURL with production defaults,
// for use by other packages' integration tests that need a real Client
// against a testcontainers-provisioned staging store.
func TestConfig(rawURL string) *Config {
	return &Config{
		url:          rawURL,
		PoolSize:     defaultPoolSize,
		MinIdleConns: defaultMinIdleConns,
		DialTimeout:  defaultDialTimeout,
		ReadTimeout:  defaultReadTimeout,
		WriteTimeout: defaultWriteTimeout,
		RetryBase:    defaultRetryBase,
		RetryCount:   defaultRetryCount,
	}
}

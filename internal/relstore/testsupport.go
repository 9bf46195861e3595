package relstore

// TestConfig builds a Config pointed at dsn with production defaults, for
// use by other packages' integration tests that need a real Connection
// against a testcontainers-provisioned MySQL instance.
func TestConfig(dsn string) *Config {
	return &Config{
		dsn:             dsn,
		MaxOpenConns:    defaultMaxOpenConns,
		MaxIdleConns:    defaultMaxIdleConns,
		ConnMaxLifetime: defaultConnMaxLifetime,
		ConnMaxIdleTime: defaultConnMaxIdleTime,
		LockWaitTimeout: defaultLockWaitTimeout,
		DeadlockRetries: defaultDeadlockRetries,
		DeadlockBackoff: defaultDeadlockBackoff,
		DeadlockCap:     defaultDeadlockCap,
	}
}

package main

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go/modules/mysql"
	"github.com/testcontainers/testcontainers-go/wait"

	testcontainers "github.com/testcontainers/testcontainers-go"
)

func startMySQLContainer(ctx context.Context, t testing.TB) (string, func()) {
	t.Helper()

	container, err := mysql.Run(ctx,
		"mysql:8.0",
		mysql.WithDatabase("testdb"),
		mysql.WithUsername("testuser"),
		mysql.WithPassword("testpass"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("port: 3306  MySQL Community Server").
				WithOccurrence(1).
				WithStartupTimeout(60*time.Second)),
	)
	if err != nil {
		t.Fatalf("failed to start mysql container: %v", err)
	}

	connStr, err := container.ConnectionString(ctx, "multiStatements=true")
	if err != nil {
		t.Fatalf("failed to get connection string: %v", err)
	}

	return connStr, func() {
		if err := testcontainers.TerminateContainer(container); err != nil {
			t.Logf("failed to terminate mysql container: %v", err)
		}
	}
}

// TestMigrationRunnerIntegration tests the complete migration runner workflow
// against a real MySQL database using testcontainers.
func TestMigrationRunnerIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()
	connStr, cleanup := startMySQLContainer(ctx, t)
	defer cleanup()

	tempDir := t.TempDir()

	migrations := map[string]string{
		"001_initial.up.sql": `CREATE TABLE users (
    id BIGINT AUTO_INCREMENT PRIMARY KEY,
    email VARCHAR(255) UNIQUE NOT NULL,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
) ENGINE=InnoDB;`,
		"001_initial.down.sql": `DROP TABLE users;`,
		"002_posts.up.sql": `CREATE TABLE posts (
    id BIGINT AUTO_INCREMENT PRIMARY KEY,
    user_id BIGINT NOT NULL REFERENCES users(id),
    title VARCHAR(255) NOT NULL,
    content TEXT,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
) ENGINE=InnoDB;`,
		"002_posts.down.sql": `DROP TABLE posts;`,
	}

	for filename, content := range migrations {
		if err := os.WriteFile(filepath.Join(tempDir, filename), []byte(content), 0o644); err != nil {
			t.Fatalf("failed to create migration file %s: %v", filename, err)
		}
	}

	config := &Config{
		DatabaseURL:    connStr,
		MigrationsPath: tempDir,
		MigrationTable: "schema_migrations",
	}

	t.Run("successful_migration_runner_creation", func(t *testing.T) {
		runner, err := NewMigrationRunner(config)
		if err != nil {
			t.Fatalf("expected successful creation, got error: %v", err)
		}
		if runner == nil {
			t.Fatal("expected non-nil runner")
		}

		if err := runner.Close(); err != nil {
			t.Logf("cleanup error: %v", err)
		}
	})

	t.Run("full_migration_workflow", func(t *testing.T) {
		runner, err := NewMigrationRunner(config)
		if err != nil {
			t.Fatalf("failed to create runner: %v", err)
		}
		defer func() {
			if err := runner.Close(); err != nil {
				t.Logf("cleanup error: %v", err)
			}
		}()

		if err := runner.Status(); err != nil {
			t.Errorf("initial status failed: %v", err)
		}

		if err := runner.Up(); err != nil {
			t.Errorf("migration up failed: %v", err)
		}

		if err := runner.Status(); err != nil {
			t.Errorf("post-migration status failed: %v", err)
		}

		if err := runner.Version(); err != nil {
			t.Errorf("version check failed: %v", err)
		}

		if err := runner.Down(); err != nil {
			t.Errorf("migration down failed: %v", err)
		}

		if err := runner.Status(); err != nil {
			t.Errorf("post-rollback status failed: %v", err)
		}
	})
}

// TestMigrationRunnerErrorConditions tests error conditions that require a
// reachable-but-wrong or unreachable database.
func TestMigrationRunnerErrorConditions(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	tempDir := t.TempDir()

	migrations := map[string]string{
		"001_test.up.sql":   "CREATE TABLE test (id INTEGER);",
		"001_test.down.sql": "DROP TABLE test;",
	}

	for filename, content := range migrations {
		if err := os.WriteFile(filepath.Join(tempDir, filename), []byte(content), 0o644); err != nil {
			t.Fatalf("failed to create migration file %s: %v", filename, err)
		}
	}

	tests := []struct {
		name          string
		config        *Config
		errorContains string
	}{
		{
			name: "unreachable_database_host",
			config: &Config{
				DatabaseURL:    "testuser:testpass@tcp(nonexistent:3306)/db",
				MigrationsPath: tempDir,
				MigrationTable: "schema_migrations",
			},
			errorContains: "failed to ping database",
		},
		{
			name: "invalid_database_credentials",
			config: &Config{
				DatabaseURL:    "invaliduser:invalidpass@tcp(127.0.0.1:3306)/db",
				MigrationsPath: tempDir,
				MigrationTable: "schema_migrations",
			},
			errorContains: "failed to ping database",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runner, err := NewMigrationRunner(tt.config)

			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if tt.errorContains != "" && !strings.Contains(err.Error(), tt.errorContains) {
				t.Errorf("expected error containing %q, got %q", tt.errorContains, err.Error())
			}
			if runner != nil {
				t.Error("expected nil runner when error occurs")
			}
		})
	}
}

// TestMigrationRunnerSQLErrors tests migration failures surfaced from real SQL errors.
func TestMigrationRunnerSQLErrors(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()
	connStr, cleanup := startMySQLContainer(ctx, t)
	defer cleanup()

	t.Run("invalid_sql_syntax", func(t *testing.T) {
		tempDir := t.TempDir()

		invalidSQL := "CREATE INVALID TABLE SYNTAX HERE;"
		if err := os.WriteFile(filepath.Join(tempDir, "001_invalid.up.sql"), []byte(invalidSQL), 0o644); err != nil {
			t.Fatalf("failed to create invalid migration file: %v", err)
		}

		config := &Config{
			DatabaseURL:    connStr,
			MigrationsPath: tempDir,
			MigrationTable: "schema_migrations",
		}

		runner, err := NewMigrationRunner(config)
		if err != nil {
			t.Fatalf("failed to create runner: %v", err)
		}
		defer func() {
			if err := runner.Close(); err != nil {
				t.Logf("cleanup error: %v", err)
			}
		}()

		err = runner.Up()
		if err == nil {
			t.Error("expected error due to invalid SQL syntax, got nil")
		}
		if err != nil && !strings.Contains(err.Error(), "migration up failed") {
			t.Errorf("expected migration error, got: %v", err)
		}
	})
}

// TestMigrationRunnerIntegrationConcurrency tests that concurrent status checks
// against the same runner behave correctly.
func TestMigrationRunnerIntegrationConcurrency(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()
	connStr, cleanup := startMySQLContainer(ctx, t)
	defer cleanup()

	tempDir := t.TempDir()

	migrations := map[string]string{
		"001_test.up.sql":   "CREATE TABLE test (id INTEGER);",
		"001_test.down.sql": "DROP TABLE test;",
	}

	for filename, content := range migrations {
		if err := os.WriteFile(filepath.Join(tempDir, filename), []byte(content), 0o644); err != nil {
			t.Fatalf("failed to create migration file %s: %v", filename, err)
		}
	}

	config := &Config{
		DatabaseURL:    connStr,
		MigrationsPath: tempDir,
		MigrationTable: "schema_migrations",
	}

	t.Run("concurrent_status_checks", func(t *testing.T) {
		runner, err := NewMigrationRunner(config)
		if err != nil {
			t.Fatalf("failed to create runner: %v", err)
		}
		defer func() {
			if err := runner.Close(); err != nil {
				t.Logf("cleanup error: %v", err)
			}
		}()

		done := make(chan error, 5)
		for i := 0; i < 5; i++ {
			go func() {
				done <- runner.Status()
			}()
		}

		for i := 0; i < 5; i++ {
			if err := <-done; err != nil {
				t.Errorf("concurrent status check %d failed: %v", i, err)
			}
		}
	})
}

// BenchmarkMigrationRunnerIntegrationOperations benchmarks migration operations
// against a real MySQL container.
func BenchmarkMigrationRunnerIntegrationOperations(b *testing.B) {
	if testing.Short() {
		b.Skip("skipping benchmark in short mode")
	}

	b.Skip("skipping integration benchmark - needs Docker daemon in CI")

	ctx := context.Background()
	connStr, cleanup := startMySQLContainer(ctx, b)
	defer cleanup()

	tempDir := b.TempDir()

	migrations := map[string]string{
		"001_test.up.sql":   "CREATE TABLE IF NOT EXISTS benchmark_test (id INTEGER);",
		"001_test.down.sql": "DROP TABLE IF EXISTS benchmark_test;",
	}

	for filename, content := range migrations {
		if err := os.WriteFile(filepath.Join(tempDir, filename), []byte(content), 0o644); err != nil {
			b.Fatalf("failed to create migration file %s: %v", filename, err)
		}
	}

	config := &Config{
		DatabaseURL:    connStr,
		MigrationsPath: tempDir,
		MigrationTable: "schema_migrations",
	}

	runner, err := NewMigrationRunner(config)
	if err != nil {
		b.Fatalf("failed to create runner: %v", err)
	}
	defer func() {
		if err := runner.Close(); err != nil {
			b.Logf("cleanup error: %v", err)
		}
	}()

	if err := runner.Up(); err != nil {
		b.Fatalf("failed to apply initial migration: %v", err)
	}

	b.ResetTimer()

	b.Run("Status", func(b *testing.B) {
		for i := 0; i < b.N; i++ {
			if err := runner.Status(); err != nil {
				b.Fatalf("status check failed: %v", err)
			}
		}
	})

	b.Run("Version", func(b *testing.B) {
		for i := 0; i < b.N; i++ {
			if err := runner.Version(); err != nil {
				b.Fatalf("version check failed: %v", err)
			}
		}
	})
}

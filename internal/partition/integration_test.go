package partition

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/mysql"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/hugodataanalyst/ingestpipe/internal/relstore"
)

func startPartitionTestConnection(ctx context.Context, t *testing.T) *relstore.Connection {
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
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := testcontainers.TerminateContainer(container); err != nil {
			t.Logf("failed to terminate mysql container: %v", err)
		}
	})

	connStr, err := container.ConnectionString(ctx, "multiStatements=true")
	require.NoError(t, err)

	conn, err := relstore.NewConnection(relstore.TestConfig(connStr))
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	return conn
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestDailyEnsurerIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()
	conn := startPartitionTestConnection(ctx, t)

	_, err := conn.ExecContext(ctx, `
		CREATE TABLE events (
			day_date DATE NOT NULL,
			id BIGINT NOT NULL,
			PRIMARY KEY (day_date, id)
		) ENGINE=InnoDB
		PARTITION BY RANGE COLUMNS (day_date) (
			PARTITION pMAX VALUES LESS THAN (MAXVALUE)
		)
	`)
	require.NoError(t, err)

	ensurer := NewDailyEnsurer(conn, testLogger(), "events", "day_date", 1, 2)

	result, err := ensurer.ensureOnce(ctx)
	require.NoError(t, err)
	require.Len(t, result.Added, 4) // -1, 0, +1, +2

	var count int
	require.NoError(t, conn.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM information_schema.PARTITIONS WHERE TABLE_SCHEMA = DATABASE() AND TABLE_NAME = 'events'",
	).Scan(&count))
	require.Equal(t, 5, count) // 4 new + pMAX

	// Running again should add nothing new.
	result2, err := ensurer.ensureOnce(ctx)
	require.NoError(t, err)
	require.Empty(t, result2.Added)
}

func TestCleanerJobIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()
	conn := startPartitionTestConnection(ctx, t)

	_, err := conn.ExecContext(ctx, `
		CREATE TABLE events (
			day_date DATE NOT NULL,
			id BIGINT NOT NULL,
			PRIMARY KEY (day_date, id)
		) ENGINE=InnoDB
		PARTITION BY RANGE COLUMNS (day_date) (
			PARTITION pMAX VALUES LESS THAN (MAXVALUE)
		)
	`)
	require.NoError(t, err)

	ensurer := NewDailyEnsurer(conn, testLogger(), "events", "day_date", 20, 0)
	_, err = ensurer.ensureOnce(ctx)
	require.NoError(t, err)

	job := CleanerJob{Table: "events", Column: "day_date", Grain: GrainDaily, Keep: 5}

	result, err := job.run(ctx, conn, testLogger())
	require.NoError(t, err)
	require.NotEmpty(t, result.Dropped)

	var count int
	require.NoError(t, conn.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM information_schema.PARTITIONS WHERE TABLE_SCHEMA = DATABASE() AND TABLE_NAME = 'events'",
	).Scan(&count))
	require.Equal(t, 1+5, count) // pMAX + the 5 kept days (today - 4..today)
}

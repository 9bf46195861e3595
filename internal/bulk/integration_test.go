package bulk

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

	"github.com/hugodataanalyst/ingestpipe/internal/buffer"
	"github.com/hugodataanalyst/ingestpipe/internal/relstore"
)

// schema mirrors the dimension and fact tables from migrations/ that the
// processors under test actually touch, trimmed to what's needed here.
const schema = `
CREATE TABLE spawnpoints (
	spawnpoint BIGINT UNSIGNED NOT NULL,
	latitude   DOUBLE NULL,
	longitude  DOUBLE NULL,
	PRIMARY KEY (spawnpoint)
) ENGINE=InnoDB;

CREATE TABLE pokestops (
	pokestop      VARCHAR(50) NOT NULL,
	pokestop_name VARCHAR(255) NULL,
	latitude      DOUBLE NULL,
	longitude     DOUBLE NULL,
	PRIMARY KEY (pokestop)
) ENGINE=InnoDB;

CREATE TABLE gyms (
	gym       VARCHAR(50) NOT NULL,
	gym_name  VARCHAR(255) NULL,
	latitude  DOUBLE NULL,
	longitude DOUBLE NULL,
	PRIMARY KEY (gym)
) ENGINE=InnoDB;

CREATE TABLE aggregated_pokemon_iv_monthly (
	month_year  SMALLINT UNSIGNED NOT NULL,
	spawnpoint  BIGINT UNSIGNED NOT NULL,
	pokemon_id  SMALLINT UNSIGNED NOT NULL,
	form        VARCHAR(15) NOT NULL DEFAULT '0',
	iv_bucket   SMALLINT UNSIGNED NOT NULL,
	area_id     SMALLINT UNSIGNED NOT NULL,
	total_count INT UNSIGNED NOT NULL DEFAULT 0,
	PRIMARY KEY (month_year, spawnpoint, pokemon_id, form, iv_bucket, area_id)
) ENGINE=InnoDB;

CREATE TABLE shiny_username_rates (
	month_year  SMALLINT UNSIGNED NOT NULL,
	username    VARCHAR(64) NOT NULL,
	pokemon_id  SMALLINT UNSIGNED NOT NULL,
	form        VARCHAR(15) NOT NULL DEFAULT '0',
	shiny       TINYINT UNSIGNED NOT NULL DEFAULT 0,
	area_id     SMALLINT UNSIGNED NOT NULL,
	total_count INT UNSIGNED NOT NULL DEFAULT 0,
	PRIMARY KEY (month_year, username, pokemon_id, form, shiny, area_id)
) ENGINE=InnoDB;

CREATE TABLE raids_daily_events (
	day_date              DATE NOT NULL,
	gym                   VARCHAR(50) NOT NULL,
	raid_pokemon          SMALLINT UNSIGNED NOT NULL,
	raid_level            TINYINT UNSIGNED NOT NULL,
	raid_form             VARCHAR(15) NOT NULL DEFAULT '0',
	raid_team             TINYINT UNSIGNED NOT NULL DEFAULT 0,
	raid_costume          VARCHAR(15) NOT NULL DEFAULT '0',
	raid_is_exclusive     TINYINT UNSIGNED NOT NULL DEFAULT 0,
	raid_ex_raid_eligible TINYINT UNSIGNED NOT NULL DEFAULT 0,
	seen_at               DATETIME NOT NULL,
	area_id               SMALLINT UNSIGNED NOT NULL,
	PRIMARY KEY (day_date, gym, raid_pokemon, raid_level, raid_form, seen_at)
) ENGINE=InnoDB;

CREATE TABLE invasions_daily_events (
	day_date     DATE NOT NULL,
	pokestop     VARCHAR(50) NOT NULL,
	display_type SMALLINT UNSIGNED NOT NULL,
	character    SMALLINT UNSIGNED NOT NULL,
	grunt        SMALLINT UNSIGNED NOT NULL DEFAULT 0,
	confirmed    TINYINT UNSIGNED NOT NULL DEFAULT 0,
	seen_at      DATETIME NOT NULL,
	area_id      SMALLINT UNSIGNED NOT NULL,
	PRIMARY KEY (day_date, pokestop, display_type, character, seen_at)
) ENGINE=InnoDB;

CREATE TABLE quests_item_daily_events (
	day_date    DATE NOT NULL,
	pokestop    VARCHAR(50) NOT NULL,
	mode        TINYINT UNSIGNED NOT NULL DEFAULT 0,
	task_type   SMALLINT UNSIGNED NOT NULL,
	item_id     SMALLINT UNSIGNED NOT NULL,
	item_amount SMALLINT UNSIGNED NOT NULL DEFAULT 1,
	seen_at     DATETIME NOT NULL,
	area_id     SMALLINT UNSIGNED NOT NULL,
	PRIMARY KEY (day_date, pokestop, item_id, seen_at)
) ENGINE=InnoDB;

CREATE TABLE quests_pokemon_daily_events (
	day_date          DATE NOT NULL,
	pokestop          VARCHAR(50) NOT NULL,
	mode              TINYINT UNSIGNED NOT NULL DEFAULT 0,
	task_type         SMALLINT UNSIGNED NOT NULL,
	reward_pokemon_id SMALLINT UNSIGNED NOT NULL,
	reward_form       VARCHAR(15) NOT NULL DEFAULT '0',
	seen_at           DATETIME NOT NULL,
	area_id           SMALLINT UNSIGNED NOT NULL,
	PRIMARY KEY (day_date, pokestop, reward_pokemon_id, reward_form, seen_at)
) ENGINE=InnoDB;
`

func startBulkTestConnection(ctx context.Context, t *testing.T) *relstore.Connection {
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

	_, err = conn.ExecContext(ctx, schema)
	require.NoError(t, err)

	return conn
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestIVProcessorIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()
	conn := startBulkTestConnection(ctx, t)
	proc := NewIVProcessor(conn, testLogger())

	lat, lon := 12.34, 56.78
	rows := []buffer.IVRow{
		{Spawnpoint: "1a2b3c", Latitude: &lat, Longitude: &lon, PokemonID: 25, Form: "0", IVBucket: 100, AreaID: 1, MonthYear: mustParseMonth("2503"), Increment: 3},
		{Spawnpoint: "1a2b3c", Latitude: &lat, Longitude: &lon, PokemonID: 25, Form: "0", IVBucket: 100, AreaID: 1, MonthYear: mustParseMonth("2503"), Increment: 2},
	}

	applied, err := proc.BulkUpsertPokemonIV(ctx, rows)
	require.NoError(t, err)
	require.Equal(t, 2, applied)

	var total int
	require.NoError(t, conn.QueryRowContext(ctx,
		"SELECT total_count FROM aggregated_pokemon_iv_monthly WHERE spawnpoint = ? AND pokemon_id = ?",
		int64(0x1a2b3c), 25).Scan(&total))
	require.Equal(t, 5, total)

	var spawnLat float64
	require.NoError(t, conn.QueryRowContext(ctx,
		"SELECT latitude FROM spawnpoints WHERE spawnpoint = ?", int64(0x1a2b3c)).Scan(&spawnLat))
	require.InDelta(t, lat, spawnLat, 0.0001)
}

func TestShinyProcessorIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()
	conn := startBulkTestConnection(ctx, t)
	proc := NewShinyProcessor(conn, testLogger())

	rows := []buffer.ShinyRow{
		{Username: "ash", PokemonID: 25, Form: "0", Shiny: 1, AreaID: 1, MonthYear: mustParseMonth("2503"), Increment: 1},
		{Username: "ash", PokemonID: 25, Form: "0", Shiny: 1, AreaID: 1, MonthYear: mustParseMonth("2503"), Increment: 4},
	}

	applied, err := proc.BulkUpsertShinyRates(ctx, rows)
	require.NoError(t, err)
	require.Equal(t, 2, applied)

	var total int
	require.NoError(t, conn.QueryRowContext(ctx,
		"SELECT total_count FROM shiny_username_rates WHERE username = ? AND pokemon_id = ?", "ash", 25).Scan(&total))
	require.Equal(t, 5, total)
}

func TestRaidProcessorIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()
	conn := startBulkTestConnection(ctx, t)
	proc := NewRaidProcessor(conn, testLogger())

	rows := []buffer.RaidRow{
		{
			Gym: "gym1", GymName: "Town Hall", Latitude: 1.1, Longitude: 2.2,
			RaidPokemon: 150, RaidForm: "0", RaidLevel: 5, RaidTeam: 1,
			RaidCostume: "0", RaidIsExclusive: 0, RaidExEligible: 0,
			AreaID: 1, FirstSeen: time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC).Unix(),
		},
	}

	applied, err := proc.BulkInsertRaidDailyEvents(ctx, rows)
	require.NoError(t, err)
	require.Equal(t, 1, applied)

	var gymName string
	require.NoError(t, conn.QueryRowContext(ctx, "SELECT gym_name FROM gyms WHERE gym = ?", "gym1").Scan(&gymName))
	require.Equal(t, "Town Hall", gymName)
}

func TestQuestProcessorIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()
	conn := startBulkTestConnection(ctx, t)
	proc := NewQuestProcessor(conn, testLogger())

	seenAt := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC).Unix()
	rows := []buffer.QuestRow{
		{Pokestop: "ps1", PokestopName: "Stop One", Latitude: 1.1, Longitude: 2.2, Mode: 0, TaskType: 4, AreaID: 1, FirstSeen: seenAt, Kind: 0, ItemID: 1, ItemAmount: 3},
		{Pokestop: "ps1", PokestopName: "Stop One", Latitude: 1.1, Longitude: 2.2, Mode: 0, TaskType: 4, AreaID: 1, FirstSeen: seenAt, Kind: 1, RewardPokeID: 25, RewardPokeForm: "0"},
	}

	applied, err := proc.BulkInsertQuestDailyEvents(ctx, rows)
	require.NoError(t, err)
	require.Equal(t, 2, applied)

	var itemCount, pokeCount int
	require.NoError(t, conn.QueryRowContext(ctx, "SELECT COUNT(*) FROM quests_item_daily_events").Scan(&itemCount))
	require.NoError(t, conn.QueryRowContext(ctx, "SELECT COUNT(*) FROM quests_pokemon_daily_events").Scan(&pokeCount))
	require.Equal(t, 1, itemCount)
	require.Equal(t, 1, pokeCount)
}

func TestInvasionProcessorIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()
	conn := startBulkTestConnection(ctx, t)
	proc := NewInvasionProcessor(conn, testLogger())

	rows := []buffer.InvasionRow{
		{
			Pokestop: "ps1", PokestopName: "Stop One", Latitude: 1.1, Longitude: 2.2,
			DisplayType: 1, Character: 2, Grunt: 3, Confirmed: 1, AreaID: 1,
			FirstSeen: time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC).Unix(),
		},
	}

	applied, err := proc.BulkInsertInvasionDailyEvents(ctx, rows)
	require.NoError(t, err)
	require.Equal(t, 1, applied)

	var count int
	require.NoError(t, conn.QueryRowContext(ctx, "SELECT COUNT(*) FROM invasions_daily_events WHERE pokestop = ?", "ps1").Scan(&count))
	require.Equal(t, 1, count)
}

func mustParseMonth(yymm string) time.Time {
	t, err := time.Parse("0601", yymm)
	if err != nil {
		panic(err)
	}

	return t
}

package metrics_test

import (
	"context"
	"database/sql"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"codeberg.org/mutker/hostpulse/internal/errors"
	"codeberg.org/mutker/hostpulse/internal/logger"
	"codeberg.org/mutker/hostpulse/internal/metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr[T any](v T) *T { return &v }

var epoch = time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC)

func testConfig(t *testing.T) metrics.Config {
	t.Helper()
	cfg := metrics.DefaultConfig(t.TempDir())
	cfg.Enabled = true
	cfg.BatchSize = 2
	cfg.BatchTimeout = 0
	return cfg
}

func countRows(t *testing.T, path string) int {
	t.Helper()
	db, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	defer db.Close()

	var n int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM ticks").Scan(&n))
	return n
}

func TestDisabledServiceIsNoop(t *testing.T) {
	cfg := metrics.DefaultConfig(t.TempDir())

	rec, err := metrics.NewService(cfg, logger.Nop())
	require.NoError(t, err)

	assert.NoError(t, rec.Record(context.Background(), nil))
	assert.NoError(t, rec.Close())
	assert.NoFileExists(t, cfg.DBPath)
}

func TestValidate(t *testing.T) {
	cfg := metrics.Config{Enabled: true}
	err := cfg.Validate()
	assert.True(t, errors.HasCode(err, metrics.ErrInvalidDBPath))

	cfg = metrics.Config{}
	assert.NoError(t, cfg.Validate())
}

func TestRecordWritesBatches(t *testing.T) {
	cfg := testConfig(t)
	rec, err := metrics.NewService(cfg, logger.Nop())
	require.NoError(t, err)

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		require.NoError(t, rec.Record(ctx, &metrics.TickRow{
			Timestamp:    epoch.Add(time.Duration(i) * 5 * time.Second),
			CPU:          ptr(float64(10 * i)),
			RAM:          ptr(50.0),
			NetDownBytes: 4096,
			CPUHits:      i,
		}))
	}

	// the first full batch is on disk before Close
	assert.Equal(t, 2, countRows(t, cfg.DBPath))

	require.NoError(t, rec.Close())
	assert.Equal(t, 3, countRows(t, cfg.DBPath))
}

func TestInsertTickSQLPreparesAgainstSchema(t *testing.T) {
	db, err := sql.Open("sqlite3", filepath.Join(t.TempDir(), "ticks.db"))
	require.NoError(t, err)
	defer db.Close()

	require.NoError(t, metrics.InitSchema(db, logger.Nop()))

	query := metrics.GetInsertTickSQL()
	assert.Equal(t, 10, strings.Count(query, "?"))

	stmt, err := db.Prepare(query)
	require.NoError(t, err)
	assert.NoError(t, stmt.Close())
}

func TestRecordStoresNullReadings(t *testing.T) {
	cfg := testConfig(t)
	cfg.BatchSize = 1
	rec, err := metrics.NewService(cfg, logger.Nop())
	require.NoError(t, err)

	require.NoError(t, rec.Record(context.Background(), &metrics.TickRow{Timestamp: epoch}))
	require.NoError(t, rec.Close())

	db, err := sql.Open("sqlite3", cfg.DBPath)
	require.NoError(t, err)
	defer db.Close()

	var cpu, battery sql.NullFloat64
	require.NoError(t, db.QueryRow("SELECT cpu_percent, battery_percent FROM ticks").Scan(&cpu, &battery))
	assert.False(t, cpu.Valid)
	assert.False(t, battery.Valid)
}

func TestRecordRejectsInvalidRows(t *testing.T) {
	rec, err := metrics.NewService(testConfig(t), logger.Nop())
	require.NoError(t, err)
	defer rec.Close()

	err = rec.Record(context.Background(), &metrics.TickRow{})
	assert.True(t, errors.HasCode(err, metrics.ErrInvalidMetrics))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = rec.Record(ctx, &metrics.TickRow{Timestamp: epoch})
	assert.True(t, errors.HasCode(err, metrics.ErrOperationTimeout))
}

func TestSchemaMismatchBacksUpAndRecreates(t *testing.T) {
	cfg := testConfig(t)

	db, err := sql.Open("sqlite3", cfg.DBPath)
	require.NoError(t, err)
	_, err = db.Exec(`
		CREATE TABLE schema_versions (version INTEGER PRIMARY KEY, applied_at TEXT NOT NULL);
		INSERT INTO schema_versions VALUES (99, datetime('now'));
		CREATE TABLE ticks (timestamp INTEGER PRIMARY KEY);`)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	rec, err := metrics.NewService(cfg, logger.Nop())
	require.NoError(t, err)
	require.NoError(t, rec.Close())

	backups, err := filepath.Glob(filepath.Join(filepath.Dir(cfg.DBPath), "backups", "ticks_v99_*.db"))
	require.NoError(t, err)
	assert.Len(t, backups, 1)

	db, err = sql.Open("sqlite3", cfg.DBPath)
	require.NoError(t, err)
	defer db.Close()
	version, err := metrics.GetSchemaVersion(db)
	require.NoError(t, err)
	assert.Equal(t, metrics.SchemaVersion, version)
}

func TestCloseIsIdempotent(t *testing.T) {
	rec, err := metrics.NewService(testConfig(t), logger.Nop())
	require.NoError(t, err)

	require.NoError(t, rec.Close())
	assert.NoError(t, rec.Close())
}

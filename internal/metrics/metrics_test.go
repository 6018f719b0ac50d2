package metrics_test

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"testing"
	"time"

	"codeberg.org/mutker/thermotrend/internal/errors"
	"codeberg.org/mutker/thermotrend/internal/logger"
	"codeberg.org/mutker/thermotrend/internal/metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func snapshotAt(ts time.Time, slope float64) *metrics.TrendSnapshot {
	return &metrics.TrendSnapshot{
		Timestamp:   ts,
		Temperature: metrics.TempMetrics{Current: 70.4, Fitted: 70.3, Units: "F"},
		Trend:       metrics.TrendMetrics{Strategy: "spline", Points: 1800, Slope: slope},
		Actuation:   metrics.LEDMetrics{Channel: "positive", Intensity: 0.25},
	}
}

func TestDisabledIsNoop(t *testing.T) {
	collector, err := metrics.NewService(metrics.DefaultConfig(), logger.Default())
	require.NoError(t, err)

	require.NoError(t, collector.Record(context.Background(), snapshotAt(time.Now(), 1)))
	recent, err := collector.Recent(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, recent)
	assert.NoError(t, collector.Close())
}

func TestRecordAndRecent(t *testing.T) {
	ctx := context.Background()
	cfg := metrics.DefaultConfig()
	cfg.Enabled = true
	cfg.DBPath = filepath.Join(t.TempDir(), "metrics.db")
	cfg.BatchSize = 2

	collector, err := metrics.NewService(cfg, logger.Default())
	require.NoError(t, err)

	base := time.UnixMilli(1_728_043_200_000)
	for i := 0; i < 3; i++ {
		require.NoError(t, collector.Record(ctx, snapshotAt(base.Add(time.Duration(i)*20*time.Second), float64(i))))
	}

	recent, err := collector.Recent(ctx, 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.True(t, recent[0].Timestamp.Equal(base.Add(40*time.Second)), "newest first")
	assert.InDelta(t, 2.0, recent[0].Trend.Slope, 1e-12)
	assert.Equal(t, "F", recent[0].Temperature.Units)
	assert.Equal(t, 1800, recent[1].Trend.Points)

	require.NoError(t, collector.Close())
	require.NoError(t, collector.Close(), "closing twice is harmless")
}

func TestSchemaVersionMismatchBacksUp(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "metrics.db")

	db, err := sql.Open("sqlite3", dbPath)
	require.NoError(t, err)
	_, err = db.Exec(`CREATE TABLE schema_versions (version INTEGER PRIMARY KEY, applied_at TEXT NOT NULL);
		INSERT INTO schema_versions VALUES (99, datetime('now'));`)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	cfg := metrics.DefaultConfig()
	cfg.Enabled = true
	cfg.DBPath = dbPath

	collector, err := metrics.NewService(cfg, logger.Default())
	require.NoError(t, err)
	defer collector.Close()

	backups, err := filepath.Glob(filepath.Join(dir, "backups", "trend_history_v99_*.db"))
	require.NoError(t, err)
	assert.Len(t, backups, 1)
}

func enabledConfig(dbPath string) metrics.Config {
	cfg := metrics.DefaultConfig()
	cfg.Enabled = true
	cfg.DBPath = dbPath

	return cfg
}

func TestRejectedBatchIsDiscarded(t *testing.T) {
	ctx := context.Background()
	cfg := enabledConfig(filepath.Join(t.TempDir(), "metrics.db"))
	cfg.BatchSize = 2

	collector, err := metrics.NewService(cfg, logger.Default())
	require.NoError(t, err)
	defer collector.Close()

	base := time.UnixMilli(1_728_043_200_000)

	rejected := snapshotAt(base.Add(20*time.Second), 1)
	rejected.Temperature.Units = "K"

	require.NoError(t, collector.Record(ctx, snapshotAt(base, 0)))
	err = collector.Record(ctx, rejected)
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCollectMetrics))

	// The failed batch is gone; later records are written normally.
	require.NoError(t, collector.Record(ctx, snapshotAt(base.Add(40*time.Second), 2)))
	require.NoError(t, collector.Record(ctx, snapshotAt(base.Add(60*time.Second), 3)))

	recent, err := collector.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.True(t, recent[0].Timestamp.Equal(base.Add(60*time.Second)))
	assert.True(t, recent[1].Timestamp.Equal(base.Add(40*time.Second)))
}

func TestReopenKeepsHistory(t *testing.T) {
	ctx := context.Background()
	cfg := enabledConfig(filepath.Join(t.TempDir(), "metrics.db"))

	collector, err := metrics.NewService(cfg, logger.Default())
	require.NoError(t, err)
	require.NoError(t, collector.Record(ctx, snapshotAt(time.UnixMilli(1_728_043_200_000), 1)))
	require.NoError(t, collector.Close())

	collector, err = metrics.NewService(cfg, logger.Default())
	require.NoError(t, err)
	defer collector.Close()

	recent, err := collector.Recent(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, recent, 1)

	backups, err := filepath.Glob(filepath.Join(filepath.Dir(cfg.DBPath), "backups", "*.db"))
	require.NoError(t, err)
	assert.Empty(t, backups, "a current schema is not backed up")
}

func TestBackupPathWithQuote(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "o'brien")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	dbPath := filepath.Join(dir, "metrics.db")

	db, err := sql.Open("sqlite3", dbPath)
	require.NoError(t, err)
	_, err = db.Exec(`CREATE TABLE schema_versions (version INTEGER PRIMARY KEY, applied_at TEXT NOT NULL);
		INSERT INTO schema_versions VALUES (7, datetime('now'));`)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	collector, err := metrics.NewService(enabledConfig(dbPath), logger.Default())
	require.NoError(t, err)
	defer collector.Close()

	backups, err := filepath.Glob(filepath.Join(dir, "backups", "trend_history_v7_*.db"))
	require.NoError(t, err)
	assert.Len(t, backups, 1)
}

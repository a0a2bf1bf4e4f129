package metrics

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"codeberg.org/mutker/iceman/internal/errors"
	"codeberg.org/mutker/iceman/internal/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testHistoryConfig(t *testing.T, batch int) HistoryConfig {
	t.Helper()
	return HistoryConfig{
		DBPath:    filepath.Join(t.TempDir(), "history.db"),
		BatchSize: batch,
		Enabled:   true,
	}
}

func countSamples(t *testing.T, path string) int {
	t.Helper()
	db, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	defer db.Close()

	var n int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM samples").Scan(&n))
	return n
}

func TestRepositoryFlushesOnBatchSize(t *testing.T) {
	cfg := testHistoryConfig(t, 2)
	repo, err := NewRepository(cfg, logger.Nop())
	require.NoError(t, err)

	now := time.Now()
	require.NoError(t, repo.Record(&Sample{Timestamp: now, Name: MetricRPM, Value: 3000, Tags: Tags{"fan": "fan1"}}))
	assert.Equal(t, 0, countSamples(t, cfg.DBPath))

	require.NoError(t, repo.Record(&Sample{Timestamp: now, Name: MetricProbeTemp, Value: 74.41}))
	assert.Equal(t, 2, countSamples(t, cfg.DBPath))

	require.NoError(t, repo.Close())
}

func TestRepositoryCloseFlushesRemainder(t *testing.T) {
	cfg := testHistoryConfig(t, 10)
	repo, err := NewRepository(cfg, logger.Nop())
	require.NoError(t, err)

	require.NoError(t, repo.Record(&Sample{Timestamp: time.Now(), Name: MetricRPM, Value: 1}))
	require.NoError(t, repo.Close())
	// A second Close is a no-op.
	require.NoError(t, repo.Close())

	assert.Equal(t, 1, countSamples(t, cfg.DBPath))
}

func TestRepositoryPeriodicFlush(t *testing.T) {
	cfg := testHistoryConfig(t, 100)
	cfg.BatchTimeout = 10 * time.Millisecond
	repo, err := NewRepository(cfg, logger.Nop())
	require.NoError(t, err)
	defer repo.Close()

	require.NoError(t, repo.Record(&Sample{Timestamp: time.Now(), Name: MetricRPM, Value: 1}))

	assert.Eventually(t, func() bool {
		return countSamples(t, cfg.DBPath) == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestRepositoryStoresSampleFields(t *testing.T) {
	cfg := testHistoryConfig(t, 1)
	repo, err := NewRepository(cfg, logger.Nop())
	require.NoError(t, err)

	ts := time.UnixMilli(1700000000123)
	require.NoError(t, repo.Record(&Sample{
		Timestamp: ts,
		Name:      MetricBoardTemp,
		Value:     120.5,
		Tags:      Tags{"probe": "cpu", "location": "kitchen"},
	}))
	require.NoError(t, repo.Close())

	db, err := sql.Open("sqlite3", cfg.DBPath)
	require.NoError(t, err)
	defer db.Close()

	var (
		gotTS   int64
		gotName string
		gotVal  float64
		gotTags string
	)
	require.NoError(t, db.QueryRow("SELECT timestamp, name, value, tags FROM samples").
		Scan(&gotTS, &gotName, &gotVal, &gotTags))

	assert.Equal(t, ts.UnixMilli(), gotTS)
	assert.Equal(t, MetricBoardTemp, gotName)
	assert.Equal(t, 120.5, gotVal)
	assert.JSONEq(t, `{"location":"kitchen","probe":"cpu"}`, gotTags)
}

func TestRepositoryRejectsInvalidSample(t *testing.T) {
	repo, err := NewRepository(testHistoryConfig(t, 1), logger.Nop())
	require.NoError(t, err)
	defer repo.Close()

	assert.True(t, errors.HasCode(repo.Record(nil), ErrInvalidSample))
	assert.True(t, errors.HasCode(repo.Record(&Sample{Value: 1}), ErrInvalidSample))
}

func TestNewRepositoryRequiresPath(t *testing.T) {
	_, err := NewRepository(HistoryConfig{}, logger.Nop())
	assert.True(t, errors.HasCode(err, ErrInvalidDBPath))
}

func TestSchemaVersionMismatchBacksUpAndRecreates(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "history.db")

	db, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	_, err = db.Exec(`
		CREATE TABLE schema_versions (version INTEGER PRIMARY KEY, applied_at TEXT NOT NULL);
		INSERT INTO schema_versions (version, applied_at) VALUES (0, 'then');
		INSERT INTO schema_versions (version, applied_at) VALUES (99, 'now');
		CREATE TABLE samples (legacy INTEGER);`)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	repo, err := NewRepository(HistoryConfig{DBPath: path, BatchSize: 1, Enabled: true}, logger.Nop())
	require.NoError(t, err)
	require.NoError(t, repo.Record(&Sample{Timestamp: time.Now(), Name: MetricRPM, Value: 1}))
	require.NoError(t, repo.Close())

	backups, err := filepath.Glob(filepath.Join(dir, "backups", "history_v99_*.db"))
	require.NoError(t, err)
	assert.Len(t, backups, 1)

	db, err = sql.Open("sqlite3", path)
	require.NoError(t, err)
	defer db.Close()
	version, err := GetSchemaVersion(db)
	require.NoError(t, err)
	assert.Equal(t, SchemaVersion, version)
	assert.Equal(t, 1, countSamples(t, path))
}

func TestNewHistoryDisabled(t *testing.T) {
	h, err := NewHistory(HistoryConfig{Enabled: false}, logger.Nop())
	require.NoError(t, err)
	assert.Nil(t, h)
}

func TestNewHistoryInvalid(t *testing.T) {
	_, err := NewHistory(HistoryConfig{Enabled: true}, logger.Nop())
	assert.True(t, errors.HasCode(err, ErrInvalidDBPath))
}

func TestHistoryPublish(t *testing.T) {
	cfg := testHistoryConfig(t, 1)
	h, err := NewHistory(cfg, logger.Nop())
	require.NoError(t, err)

	require.NoError(t, h.Publish(context.Background(), Sample{Timestamp: time.Now(), Name: MetricRPM, Value: 900}))
	require.NoError(t, h.Close())

	assert.Equal(t, 1, countSamples(t, cfg.DBPath))
}

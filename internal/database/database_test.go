package database

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"media-proxy/internal/metrics"
)

func setupTestDB(t testing.TB) (*Database, string) {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "jobs.db")
	db, err := New(context.Background(), dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db, dbPath
}

func TestNew_CreatesFile(t *testing.T) {
	db, dbPath := setupTestDB(t)

	_, err := os.Stat(dbPath)
	require.NoError(t, err)
	assert.Equal(t, dbPath, db.Path())
}

func TestNew_MissingDirectory(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "missing", "jobs.db")

	_, err := New(context.Background(), dbPath)
	require.Error(t, err)
}

func TestNew_ReopenKeepsRows(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "jobs.db")
	ctx := context.Background()

	db, err := New(ctx, dbPath)
	require.NoError(t, err)
	require.NoError(t, db.RecordOutcome(ctx, outcome("job-1", "a.mov", time.Now())))
	require.NoError(t, db.Close())

	db, err = New(ctx, dbPath)
	require.NoError(t, err)
	defer db.Close()

	got, err := db.History(ctx, "", 0)
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestRunMigrations_AddsDurationColumn(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "old.db")

	raw, err := sql.Open("sqlite3", dbPath)
	require.NoError(t, err)
	_, err = raw.Exec(`CREATE TABLE proxy_jobs (
		job_id TEXT PRIMARY KEY, fingerprint TEXT NOT NULL, source TEXT NOT NULL,
		output_path TEXT NOT NULL, width INTEGER NOT NULL, height INTEGER NOT NULL,
		frame_rate REAL NOT NULL, quality TEXT NOT NULL, status TEXT NOT NULL,
		size INTEGER NOT NULL DEFAULT 0, error TEXT NOT NULL DEFAULT '',
		started_at INTEGER NOT NULL, finished_at INTEGER NOT NULL)`)
	require.NoError(t, err)
	_, err = raw.Exec(`INSERT INTO proxy_jobs VALUES
		('old', 'fp', 'a.mov', '/p/a.mp4', 480, 270, 30, 'preview', 'ready', 10, '', 1000, 3500)`)
	require.NoError(t, err)
	require.NoError(t, raw.Close())

	db, err := New(context.Background(), dbPath)
	require.NoError(t, err)
	defer db.Close()

	var duration int64
	require.NoError(t, db.db.QueryRow("SELECT duration_ms FROM proxy_jobs WHERE job_id = 'old'").Scan(&duration))
	assert.Equal(t, int64(2500), duration)
}

func TestClose_Idempotent(t *testing.T) {
	db, _ := setupTestDB(t)

	require.NoError(t, db.Close())
	require.NoError(t, db.Close())

	err := db.RecordOutcome(context.Background(), outcome("job", "a.mov", time.Now()))
	assert.ErrorIs(t, err, ErrClosed)
	_, err = db.History(context.Background(), "", 10)
	assert.ErrorIs(t, err, ErrClosed)
	_, err = db.Prune(context.Background(), time.Now())
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, db.Vacuum(context.Background()), ErrClosed)
}

func TestVacuum(t *testing.T) {
	db, _ := setupTestDB(t)
	assert.NoError(t, db.Vacuum(context.Background()))
}

func TestRecordQueryMetrics(t *testing.T) {
	success := metrics.DBQueryTotal.WithLabelValues("test_op", "success")
	failure := metrics.DBQueryTotal.WithLabelValues("test_op", "error")
	beforeOK := testutil.ToFloat64(success)
	beforeErr := testutil.ToFloat64(failure)

	recordQuery("test_op", time.Now(), nil)
	recordQuery("test_op", time.Now(), errors.New("test error"))

	assert.Equal(t, beforeOK+1, testutil.ToFloat64(success))
	assert.Equal(t, beforeErr+1, testutil.ToFloat64(failure))
}

func TestUpdateDBMetrics(t *testing.T) {
	db, _ := setupTestDB(t)
	_, err := db.History(context.Background(), "", 1)
	require.NoError(t, err)

	db.UpdateDBMetrics()
	assert.GreaterOrEqual(t, testutil.ToFloat64(metrics.DBConnectionsOpen), 1.0)
}

func TestDiagnoseDatabasePermissions(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "jobs.db")
	require.NoError(t, os.WriteFile(dbPath+"-wal", nil, 0o400))

	require.NoError(t, diagnoseDatabasePermissions(dbPath))

	info, err := os.Stat(dbPath + "-wal")
	require.NoError(t, err)
	assert.NotZero(t, info.Mode().Perm()&0o200, "read-only WAL file should be made writable")

	_, err = os.Stat(filepath.Join(dir, ".perm-test"))
	assert.True(t, os.IsNotExist(err))
}

func TestDiagnoseDatabasePermissions_MissingDirectory(t *testing.T) {
	err := diagnoseDatabasePermissions(filepath.Join(t.TempDir(), "nope", "jobs.db"))
	assert.Error(t, err)
}

func TestMetadata(t *testing.T) {
	db, _ := setupTestDB(t)
	ctx := context.Background()

	_, err := db.GetMetadata(ctx, "missing")
	assert.ErrorIs(t, err, sql.ErrNoRows)

	require.NoError(t, db.SetMetadata(ctx, "k", "v1"))
	require.NoError(t, db.SetMetadata(ctx, "k", "v2"))
	v, err := db.GetMetadata(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "v2", v)
}

func TestLastCleanup(t *testing.T) {
	db, _ := setupTestDB(t)
	ctx := context.Background()

	got, err := db.LastCleanup(ctx)
	require.NoError(t, err)
	assert.True(t, got.IsZero())

	when := time.Date(2026, 3, 1, 12, 30, 0, 500, time.UTC)
	require.NoError(t, db.SetLastCleanup(ctx, when))
	got, err = db.LastCleanup(ctx)
	require.NoError(t, err)
	assert.True(t, when.Equal(got))

	require.NoError(t, db.SetLastCleanup(ctx, time.Time{}))
	got, err = db.LastCleanup(ctx)
	require.NoError(t, err)
	assert.True(t, got.IsZero())
}

package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite3 driver

	"media-proxy/internal/logging"
	"media-proxy/internal/metrics"
)

var log = logging.For("database")

// Default timeout for database operations
const defaultTimeout = 5 * time.Second

// ErrClosed is returned by operations on a closed Database.
var ErrClosed = errors.New("database is closed")

// Database is the SQLite job journal.
type Database struct {
	db     *sql.DB
	dbPath string
	mu     sync.RWMutex
	closed bool
}

// New opens (creating if needed) the journal at dbPath. The parent
// directory must already exist and be writable.
func New(ctx context.Context, dbPath string) (*Database, error) {
	log.Info("Database path: %s", dbPath)

	if err := diagnoseDatabasePermissions(dbPath); err != nil {
		log.Warn("Database permission diagnostics: %v", err)
	}

	// busy_timeout helps prevent "database is locked" errors
	connStr := fmt.Sprintf("%s?_journal_mode=WAL&_synchronous=NORMAL&_cache_size=10000&_temp_store=MEMORY&_busy_timeout=5000", dbPath)

	db, err := sql.Open("sqlite3", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			log.Error("failed to close database after ping failure: %v", closeErr)
		}
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// One writer (the proxy worker) and a handful of API readers.
	db.SetMaxOpenConns(8)
	db.SetMaxIdleConns(4)
	db.SetConnMaxLifetime(time.Hour)

	d := &Database{
		db:     db,
		dbPath: dbPath,
	}

	if err := d.initialize(ctx); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			log.Error("failed to close database after initialization failure: %v", closeErr)
		}
		return nil, fmt.Errorf("failed to initialize database schema: %w", err)
	}

	log.Info("Database initialized successfully at %s", dbPath)
	return d, nil
}

// Path returns the database file path.
func (d *Database) Path() string {
	return d.dbPath
}

func (d *Database) initialize(ctx context.Context) error {
	schema := `
	-- One row per finished proxy job
	CREATE TABLE IF NOT EXISTS proxy_jobs (
		job_id TEXT PRIMARY KEY,
		fingerprint TEXT NOT NULL,
		source TEXT NOT NULL,
		output_path TEXT NOT NULL,
		width INTEGER NOT NULL,
		height INTEGER NOT NULL,
		frame_rate REAL NOT NULL,
		quality TEXT NOT NULL,
		status TEXT NOT NULL,
		size INTEGER NOT NULL DEFAULT 0,
		error TEXT NOT NULL DEFAULT '',
		started_at INTEGER NOT NULL,
		finished_at INTEGER NOT NULL,
		duration_ms INTEGER NOT NULL DEFAULT 0
	);

	CREATE INDEX IF NOT EXISTS idx_proxy_jobs_source ON proxy_jobs(source, finished_at);
	CREATE INDEX IF NOT EXISTS idx_proxy_jobs_fingerprint ON proxy_jobs(fingerprint);
	CREATE INDEX IF NOT EXISTS idx_proxy_jobs_finished ON proxy_jobs(finished_at);

	-- Metadata table
	CREATE TABLE IF NOT EXISTS metadata (
		key TEXT PRIMARY KEY,
		value TEXT
	);
	`

	_, err := d.db.ExecContext(ctx, schema)
	if err != nil {
		return err
	}

	return d.runMigrations(ctx)
}

// runMigrations applies database schema migrations
func (d *Database) runMigrations(ctx context.Context) error {
	// Migration 1: journals created before duration_ms was tracked
	var columnExists bool
	err := d.db.QueryRowContext(ctx, `
		SELECT COUNT(*) > 0
		FROM pragma_table_info('proxy_jobs')
		WHERE name='duration_ms'
	`).Scan(&columnExists)
	if err != nil {
		return fmt.Errorf("failed to check for duration_ms column: %w", err)
	}

	if !columnExists {
		log.Info("Migrating database: adding duration_ms column to proxy_jobs table")

		_, err = d.db.ExecContext(ctx, `
			ALTER TABLE proxy_jobs ADD COLUMN duration_ms INTEGER NOT NULL DEFAULT 0
		`)
		if err != nil {
			return fmt.Errorf("failed to add duration_ms column: %w", err)
		}

		_, err = d.db.ExecContext(ctx, `
			UPDATE proxy_jobs SET duration_ms = MAX(finished_at - started_at, 0)
		`)
		if err != nil {
			return fmt.Errorf("failed to initialize duration_ms values: %w", err)
		}

		log.Info("Migration complete: duration_ms column added and initialized")
	}

	return nil
}

// Close closes the database connection. It is safe to call more than once.
func (d *Database) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil
	}
	d.closed = true
	return d.db.Close()
}

// Vacuum optimizes the database.
func (d *Database) Vacuum(ctx context.Context) error {
	start := time.Now()
	var err error
	defer func() { recordQuery("vacuum", start, err) }()

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		err = ErrClosed
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, 60*time.Second)
	defer cancel()

	_, err = d.db.ExecContext(ctx, "VACUUM")
	return err
}

// recordQuery records database query metrics
func recordQuery(operation string, start time.Time, err error) {
	duration := time.Since(start).Seconds()
	status := "success"
	if err != nil {
		status = "error"
	}
	metrics.DBQueryTotal.WithLabelValues(operation, status).Inc()
	metrics.DBQueryDuration.WithLabelValues(operation).Observe(duration)
}

// UpdateDBMetrics updates database connection metrics
func (d *Database) UpdateDBMetrics() {
	stats := d.db.Stats()
	metrics.DBConnectionsOpen.Set(float64(stats.OpenConnections))
}

// diagnoseDatabasePermissions checks database directory and file permissions
func diagnoseDatabasePermissions(dbPath string) error {
	dir := filepath.Dir(dbPath)

	dirInfo, err := os.Stat(dir)
	if err != nil {
		return fmt.Errorf("cannot stat database directory: %w", err)
	}

	log.Debug("Database directory: %s (mode: %v)", dir, dirInfo.Mode())

	testFile := filepath.Join(dir, ".perm-test")
	if err := os.WriteFile(testFile, []byte("test"), 0o600); err != nil {
		return fmt.Errorf("database directory not writable: %w", err)
	}
	_ = os.Remove(testFile)

	if dbInfo, err := os.Stat(dbPath); err == nil {
		log.Debug("Database file exists: %s (mode: %v, size: %d bytes)", dbPath, dbInfo.Mode(), dbInfo.Size())
		if dbInfo.Mode().Perm()&0o200 == 0 {
			log.Warn("Database file is read-only! Mode: %v", dbInfo.Mode())
		}
	}

	// A read-only WAL or SHM file breaks every write, so try to fix those.
	for _, suffix := range []string{"-wal", "-shm"} {
		path := dbPath + suffix
		info, err := os.Stat(path)
		if err != nil || info.Mode().Perm()&0o200 != 0 {
			continue
		}
		log.Warn("%s is read-only! Mode: %v - this will cause write failures", path, info.Mode())
		if chmodErr := os.Chmod(path, 0o600); chmodErr != nil {
			log.Error("Failed to fix %s permissions: %v", path, chmodErr)
		} else {
			log.Info("Fixed %s permissions", path)
		}
	}

	return nil
}

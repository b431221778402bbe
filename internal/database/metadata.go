package database

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

const lastCleanupKey = "last_cleanup"

// GetMetadata retrieves a metadata value by key. It returns sql.ErrNoRows
// if the key doesn't exist.
func (d *Database) GetMetadata(ctx context.Context, key string) (string, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return "", ErrClosed
	}

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var value string
	err := d.db.QueryRowContext(ctx, "SELECT value FROM metadata WHERE key = ?", key).Scan(&value)
	if err != nil {
		return "", err
	}
	return value, nil
}

// SetMetadata sets a metadata key-value pair.
func (d *Database) SetMetadata(ctx context.Context, key, value string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return ErrClosed
	}

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	_, err := d.db.ExecContext(ctx, `
		INSERT INTO metadata (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, value)
	return err
}

// LastCleanup returns when proxies were last cleaned up, or the zero time
// if they never were.
func (d *Database) LastCleanup(ctx context.Context) (time.Time, error) {
	value, err := d.GetMetadata(ctx, lastCleanupKey)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, err
	}
	if value == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339Nano, value)
}

// SetLastCleanup stores when proxies were last cleaned up.
func (d *Database) SetLastCleanup(ctx context.Context, t time.Time) error {
	if t.IsZero() {
		return d.SetMetadata(ctx, lastCleanupKey, "")
	}
	return d.SetMetadata(ctx, lastCleanupKey, t.UTC().Format(time.RFC3339Nano))
}

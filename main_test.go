package main

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"media-proxy/internal/database"
	"media-proxy/internal/proxy"
)

func TestAfterCleanupRecordsSweepAndPrunesHistory(t *testing.T) {
	ctx := context.Background()
	db, err := database.New(ctx, filepath.Join(t.TempDir(), "jobs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	sweep := time.Date(2026, 5, 10, 12, 0, 0, 0, time.UTC)
	for i, age := range []time.Duration{time.Hour, 10 * 24 * time.Hour} {
		finished := sweep.Add(-age)
		require.NoError(t, db.RecordOutcome(ctx, proxy.Outcome{
			JobID:       []string{"recent", "stale"}[i],
			Fingerprint: "fp",
			Source:      "/media/clip.mov",
			Settings:    proxy.DefaultSettings(),
			Status:      proxy.StatusReady,
			StartedAt:   finished.Add(-time.Minute),
			FinishedAt:  finished,
		}))
	}

	afterCleanup(db, 7*24*time.Hour)(0, sweep)

	last, err := db.LastCleanup(ctx)
	require.NoError(t, err)
	assert.True(t, last.Equal(sweep), "last cleanup = %v", last)

	history, err := db.History(ctx, "", 0)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "recent", history[0].JobID)
}

func TestAfterCleanupToleratesClosedJournal(t *testing.T) {
	db, err := database.New(context.Background(), filepath.Join(t.TempDir(), "jobs.db"))
	require.NoError(t, err)
	require.NoError(t, db.Close())

	assert.NotPanics(t, func() {
		afterCleanup(db, time.Hour)(2, time.Now())
	})
}

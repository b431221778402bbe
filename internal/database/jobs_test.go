package database

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"media-proxy/internal/proxy"
)

// The journal must satisfy the generator's interface.
var _ proxy.Journal = (*Database)(nil)

func outcome(jobID, source string, finished time.Time) proxy.Outcome {
	s := proxy.DefaultSettings()
	return proxy.Outcome{
		JobID:       jobID,
		Fingerprint: proxy.Fingerprint(source, s),
		Source:      source,
		OutputPath:  "/cache/proxy_" + jobID + ".mp4",
		Settings:    s,
		Status:      proxy.StatusReady,
		Size:        2048,
		StartedAt:   finished.Add(-3 * time.Second),
		FinishedAt:  finished,
	}
}

func TestRecordOutcome_RoundTrip(t *testing.T) {
	db, _ := setupTestDB(t)
	ctx := context.Background()
	now := time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)

	want := outcome("job-1", "clip.mov", now)
	want.Settings.Quality = proxy.QualityHigh
	require.NoError(t, db.RecordOutcome(ctx, want))

	got, err := db.History(ctx, "clip.mov", 10)
	require.NoError(t, err)
	require.Len(t, got, 1)

	o := got[0]
	assert.Equal(t, want.JobID, o.JobID)
	assert.Equal(t, want.Fingerprint, o.Fingerprint)
	assert.Equal(t, want.OutputPath, o.OutputPath)
	assert.Equal(t, want.Settings, o.Settings)
	assert.Equal(t, proxy.StatusReady, o.Status)
	assert.Equal(t, int64(2048), o.Size)
	assert.True(t, want.StartedAt.Equal(o.StartedAt))
	assert.True(t, want.FinishedAt.Equal(o.FinishedAt))
}

func TestRecordOutcome_FailureKeepsError(t *testing.T) {
	db, _ := setupTestDB(t)
	ctx := context.Background()

	o := outcome("job-f", "broken.mov", time.Now())
	o.Status = proxy.StatusFailed
	o.Size = 0
	o.Error = "ffmpeg exited: exit status 1"
	require.NoError(t, db.RecordOutcome(ctx, o))

	got, err := db.History(ctx, "broken.mov", 1)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, proxy.StatusFailed, got[0].Status)
	assert.Equal(t, o.Error, got[0].Error)
}

func TestRecordOutcome_SameJobReplaces(t *testing.T) {
	db, _ := setupTestDB(t)
	ctx := context.Background()
	now := time.Now()

	first := outcome("job-1", "a.mov", now)
	first.Status = proxy.StatusFailed
	require.NoError(t, db.RecordOutcome(ctx, first))
	second := outcome("job-1", "a.mov", now.Add(time.Second))
	require.NoError(t, db.RecordOutcome(ctx, second))

	got, err := db.History(ctx, "", 0)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, proxy.StatusReady, got[0].Status)
}

func TestHistory_NewestFirstAndFiltered(t *testing.T) {
	db, _ := setupTestDB(t)
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, db.RecordOutcome(ctx, outcome("a1", "a.mov", base)))
	require.NoError(t, db.RecordOutcome(ctx, outcome("b1", "b.mov", base.Add(time.Minute))))
	require.NoError(t, db.RecordOutcome(ctx, outcome("a2", "a.mov", base.Add(2*time.Minute))))

	all, err := db.History(ctx, "", 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []string{"a2", "b1", "a1"}, jobIDs(all))

	onlyA, err := db.History(ctx, "a.mov", 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"a2", "a1"}, jobIDs(onlyA))

	limited, err := db.History(ctx, "", 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"a2"}, jobIDs(limited))

	none, err := db.History(ctx, "missing.mov", 0)
	require.NoError(t, err)
	assert.NotNil(t, none)
	assert.Empty(t, none)
}

func TestPrune(t *testing.T) {
	db, _ := setupTestDB(t)
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, db.RecordOutcome(ctx, outcome("old", "a.mov", base)))
	require.NoError(t, db.RecordOutcome(ctx, outcome("new", "a.mov", base.Add(2*time.Hour))))

	n, err := db.Prune(ctx, base.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	got, err := db.History(ctx, "", 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"new"}, jobIDs(got))

	n, err = db.Prune(ctx, base.Add(time.Hour))
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestRecordOutcome_Concurrent(t *testing.T) {
	db, _ := setupTestDB(t)
	ctx := context.Background()
	now := time.Now()

	var wg sync.WaitGroup
	for i := range 20 {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			assert.NoError(t, db.RecordOutcome(ctx, outcome(fmt.Sprintf("job-%d", i), "a.mov", now)))
		}(i)
	}
	wg.Wait()

	got, err := db.History(ctx, "a.mov", 100)
	require.NoError(t, err)
	assert.Len(t, got, 20)
}

func jobIDs(outcomes []proxy.Outcome) []string {
	ids := make([]string, len(outcomes))
	for i, o := range outcomes {
		ids[i] = o.JobID
	}
	return ids
}

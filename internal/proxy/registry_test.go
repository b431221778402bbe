package proxy

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var epoch = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func pending(fp string, created time.Time) *Record {
	return &Record{Fingerprint: fp, Status: StatusPending, CreatedAt: created, OutputPath: "/p/" + fp + ".mp4"}
}

func TestRegistry_InsertIfAbsent(t *testing.T) {
	r := newRegistry()
	assert.True(t, r.insertIfAbsent(pending("a", epoch)))
	assert.False(t, r.insertIfAbsent(pending("a", epoch.Add(time.Hour))))

	rec, ok := r.get("a")
	require.True(t, ok)
	assert.Equal(t, epoch, rec.CreatedAt)
}

func TestRegistry_GetReturnsCopy(t *testing.T) {
	r := newRegistry()
	r.insertIfAbsent(pending("a", epoch))

	rec, _ := r.get("a")
	rec.Ready = true

	again, _ := r.get("a")
	assert.False(t, again.Ready)
}

func TestRegistry_SetProgress(t *testing.T) {
	r := newRegistry()
	r.insertIfAbsent(pending("a", epoch))

	// Pending records are not touched.
	r.setProgress("a", 0.4)
	rec, _ := r.get("a")
	assert.Zero(t, rec.Progress)

	r.update("a", func(rec *Record) { rec.markRunning("job", epoch) })
	r.setProgress("a", 0.4)
	r.setProgress("a", 0.2)
	rec, _ = r.get("a")
	assert.Equal(t, 0.4, rec.Progress)

	r.setProgress("a", 1.5)
	rec, _ = r.get("a")
	assert.Equal(t, maxInFlightProgress, rec.Progress)

	r.update("a", func(rec *Record) { rec.markReady(10, epoch) })
	r.setProgress("a", 0.5)
	rec, _ = r.get("a")
	assert.Equal(t, 1.0, rec.Progress)

	r.setProgress("missing", 0.5)
}

func TestRegistry_TerminalTransitions(t *testing.T) {
	r := newRegistry()
	r.insertIfAbsent(pending("ok", epoch))
	r.insertIfAbsent(pending("bad", epoch))

	r.update("ok", func(rec *Record) { rec.markRunning("j1", epoch) })
	r.update("ok", func(rec *Record) { rec.markReady(2048, epoch.Add(time.Second)) })
	r.update("bad", func(rec *Record) { rec.markRunning("j2", epoch) })
	r.setProgress("bad", 0.7)
	r.update("bad", func(rec *Record) { rec.markFailed("boom", epoch.Add(time.Second)) })

	ok, _ := r.get("ok")
	assert.Equal(t, StatusReady, ok.Status)
	assert.True(t, ok.Ready)
	assert.Equal(t, 1.0, ok.Progress)
	assert.Equal(t, int64(2048), ok.Size)
	assert.True(t, ok.Status.Terminal())

	bad, _ := r.get("bad")
	assert.Equal(t, StatusFailed, bad.Status)
	assert.False(t, bad.Ready)
	assert.Zero(t, bad.Progress)
	assert.Zero(t, bad.Size)
	assert.Equal(t, "boom", bad.Error)
	assert.True(t, bad.Status.Terminal())

	total, ready, bytes := r.stats()
	assert.Equal(t, 2, total)
	assert.Equal(t, 1, ready)
	assert.Equal(t, int64(2048), bytes)
}

func TestRegistry_OlderThanAndRemove(t *testing.T) {
	r := newRegistry()
	r.insertIfAbsent(pending("old", epoch))
	r.insertIfAbsent(pending("new", epoch.Add(90*time.Minute)))

	old := r.olderThan(epoch.Add(time.Hour))
	require.Len(t, old, 1)
	assert.Equal(t, "old", old[0].Fingerprint)

	// A stale creation time does not remove a newer record.
	assert.False(t, r.remove("new", epoch))
	assert.True(t, r.remove("old", epoch))
	assert.False(t, r.remove("old", epoch))
}

func TestRegistry_ByOutput(t *testing.T) {
	r := newRegistry()
	r.insertIfAbsent(pending("a", epoch))

	rec, ok := r.byOutput("/p/a.mp4")
	require.True(t, ok)
	assert.Equal(t, "a", rec.Fingerprint)

	_, ok = r.byOutput("/p/b.mp4")
	assert.False(t, ok)
}

func TestRegistry_SnapshotSorted(t *testing.T) {
	r := newRegistry()
	r.insertIfAbsent(pending("c", epoch.Add(2*time.Second)))
	r.insertIfAbsent(pending("b", epoch))
	r.insertIfAbsent(pending("a", epoch))

	snap := r.snapshot()
	require.Len(t, snap, 3)
	assert.Equal(t, "a", snap[0].Fingerprint)
	assert.Equal(t, "b", snap[1].Fingerprint)
	assert.Equal(t, "c", snap[2].Fingerprint)
}

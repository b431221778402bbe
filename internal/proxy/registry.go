package proxy

import (
	"sort"
	"sync"
	"time"
)

// registry maps fingerprints to records under its own lock. Callers never
// hold the queue lock while calling into it.
type registry struct {
	mu      sync.Mutex
	records map[string]*Record
}

func newRegistry() *registry {
	return &registry{records: make(map[string]*Record)}
}

// insertIfAbsent stores rec unless a record with the same fingerprint
// already exists, in any state. It reports whether rec was stored.
func (r *registry) insertIfAbsent(rec *Record) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.records[rec.Fingerprint]; exists {
		return false
	}
	r.records[rec.Fingerprint] = rec
	return true
}

func (r *registry) get(fingerprint string) (Record, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.records[fingerprint]
	if !ok {
		return Record{}, false
	}
	return *rec, true
}

// update applies fn to the stored record and returns a copy of the result.
func (r *registry) update(fingerprint string, fn func(*Record)) (Record, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.records[fingerprint]
	if !ok {
		return Record{}, false
	}
	fn(rec)
	return *rec, true
}

// setProgress raises the in-flight progress of a running record. Progress
// never moves backwards and is capped below 1 until the worker finishes.
func (r *registry) setProgress(fingerprint string, p float64) {
	if p > maxInFlightProgress {
		p = maxInFlightProgress
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if rec, ok := r.records[fingerprint]; ok && rec.Status == StatusRunning && p > rec.Progress {
		rec.Progress = p
	}
}

// olderThan returns copies of every record created before cutoff.
func (r *registry) olderThan(cutoff time.Time) []Record {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []Record
	for _, rec := range r.records {
		if rec.CreatedAt.Before(cutoff) {
			out = append(out, *rec)
		}
	}
	return out
}

// remove deletes the record for fingerprint if it is still the one created
// at createdAt.
func (r *registry) remove(fingerprint string, createdAt time.Time) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.records[fingerprint]
	if !ok || !rec.CreatedAt.Equal(createdAt) {
		return false
	}
	delete(r.records, fingerprint)
	return true
}

// byOutput finds the record whose proxy file lives at path.
func (r *registry) byOutput(path string) (Record, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, rec := range r.records {
		if rec.OutputPath == path {
			return *rec, true
		}
	}
	return Record{}, false
}

func (r *registry) snapshot() []Record {
	r.mu.Lock()
	out := make([]Record, 0, len(r.records))
	for _, rec := range r.records {
		out = append(out, *rec)
	}
	r.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].Fingerprint < out[j].Fingerprint
	})
	return out
}

func (r *registry) stats() (total, ready int, bytes int64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, rec := range r.records {
		total++
		if rec.Ready {
			ready++
			bytes += rec.Size
		}
	}
	return total, ready, bytes
}

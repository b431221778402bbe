package metrics

// InitializeMetrics pre-populates all expected label combinations so that
// every metric is exported from the first Prometheus scrape.
// Call this once at startup after metric registration.
func InitializeMetrics() {
	for _, result := range []string{"exact", "nearest", "miss"} {
		FrameCacheLookups.WithLabelValues(result)
	}

	for _, result := range []string{"queued", "duplicate"} {
		ProxyRequestsTotal.WithLabelValues(result)
	}

	for _, status := range []string{"ready", "failed", "unavailable"} {
		ProxyJobsTotal.WithLabelValues(status)
	}

	for _, state := range []string{"total", "ready"} {
		ProxyRecords.WithLabelValues(state)
	}

	for _, op := range []string{"record_outcome", "history", "prune"} {
		DBQueryDuration.WithLabelValues(op)
		for _, status := range []string{"success", "error"} {
			DBQueryTotal.WithLabelValues(op, status)
		}
	}

	for _, file := range []string{"main", "wal", "shm"} {
		DBSizeBytes.WithLabelValues(file)
	}

	for _, op := range []string{"stat", "open", "remove", "rename"} {
		FilesystemOperationDuration.WithLabelValues(op)
		FilesystemOperationErrors.WithLabelValues(op)
		FilesystemRetryAttempts.WithLabelValues(op)
		FilesystemStaleErrors.WithLabelValues(op)
	}
}

package metrics

import (
	"errors"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetricsExist(t *testing.T) {
	tests := []struct {
		name   string
		metric prometheus.Collector
	}{
		{"HTTPRequestsTotal", HTTPRequestsTotal},
		{"HTTPRequestDuration", HTTPRequestDuration},
		{"HTTPRequestsInFlight", HTTPRequestsInFlight},
		{"FrameCacheLookups", FrameCacheLookups},
		{"FrameCacheEvictions", FrameCacheEvictions},
		{"FrameCacheEntries", FrameCacheEntries},
		{"FrameDecodeDuration", FrameDecodeDuration},
		{"FrameDecodeErrors", FrameDecodeErrors},
		{"ProxyRequestsTotal", ProxyRequestsTotal},
		{"ProxyJobsTotal", ProxyJobsTotal},
		{"ProxyJobDuration", ProxyJobDuration},
		{"ProxyJobsInProgress", ProxyJobsInProgress},
		{"ProxyQueueDepth", ProxyQueueDepth},
		{"ProxyRecords", ProxyRecords},
		{"ProxyBytes", ProxyBytes},
		{"ProxyCleanupRemoved", ProxyCleanupRemoved},
		{"ProxyExternalRemovals", ProxyExternalRemovals},
		{"ProxyJournalErrors", ProxyJournalErrors},
		{"DBQueryTotal", DBQueryTotal},
		{"DBQueryDuration", DBQueryDuration},
		{"DBConnectionsOpen", DBConnectionsOpen},
		{"DBSizeBytes", DBSizeBytes},
		{"FilesystemOperationDuration", FilesystemOperationDuration},
		{"FilesystemOperationErrors", FilesystemOperationErrors},
		{"FilesystemRetryAttempts", FilesystemRetryAttempts},
		{"FilesystemStaleErrors", FilesystemStaleErrors},
		{"AppInfo", AppInfo},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.metric == nil {
				t.Errorf("%s metric is nil", tt.name)
			}
		})
	}
}

func TestInitializeMetricsExportsLabels(t *testing.T) {
	InitializeMetrics()

	tests := []struct {
		name      string
		collector prometheus.Collector
		min       int
	}{
		{"FrameCacheLookups", FrameCacheLookups, 3},
		{"ProxyRequestsTotal", ProxyRequestsTotal, 2},
		{"ProxyJobsTotal", ProxyJobsTotal, 3},
		{"ProxyRecords", ProxyRecords, 2},
		{"DBQueryTotal", DBQueryTotal, 6},
		{"FilesystemOperationErrors", FilesystemOperationErrors, 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := testutil.CollectAndCount(tt.collector); got < tt.min {
				t.Errorf("%s exports %d series, want at least %d", tt.name, got, tt.min)
			}
		})
	}
}

func TestMetricNamesArePrefixed(t *testing.T) {
	for _, c := range []prometheus.Collector{FrameCacheEntries, ProxyQueueDepth, ProxyBytes, HTTPRequestsInFlight} {
		ch := make(chan *prometheus.Desc, 1)
		c.Describe(ch)
		desc := (<-ch).String()
		if !strings.Contains(desc, `fqName: "media_proxy_`) {
			t.Errorf("metric not prefixed: %s", desc)
		}
	}
}

func TestFilesystemObserver(t *testing.T) {
	o := NewFilesystemObserver()

	errorsBefore := testutil.ToFloat64(FilesystemOperationErrors.WithLabelValues("rename"))
	o.ObserveOperation("rename", 0.002, nil)
	o.ObserveOperation("rename", 0.004, errors.New("boom"))
	if got := testutil.ToFloat64(FilesystemOperationErrors.WithLabelValues("rename")); got != errorsBefore+1 {
		t.Errorf("rename errors = %v, want %v", got, errorsBefore+1)
	}

	retriesBefore := testutil.ToFloat64(FilesystemRetryAttempts.WithLabelValues("stat"))
	o.ObserveRetryAttempt("stat")
	if got := testutil.ToFloat64(FilesystemRetryAttempts.WithLabelValues("stat")); got != retriesBefore+1 {
		t.Errorf("stat retries = %v, want %v", got, retriesBefore+1)
	}

	staleBefore := testutil.ToFloat64(FilesystemStaleErrors.WithLabelValues("remove"))
	o.ObserveStaleError("remove")
	if got := testutil.ToFloat64(FilesystemStaleErrors.WithLabelValues("remove")); got != staleBefore+1 {
		t.Errorf("remove stale = %v, want %v", got, staleBefore+1)
	}
}

func TestSetAppInfo(t *testing.T) {
	SetAppInfo("1.2.3", "abc123", "go1.25")
	if got := testutil.ToFloat64(AppInfo.WithLabelValues("1.2.3", "abc123", "go1.25")); got != 1 {
		t.Errorf("app info = %v, want 1", got)
	}
}

package main

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"media-proxy/internal/handlers"
	"media-proxy/internal/proxy"
)

func formatSettings(s proxy.Settings) string {
	return fmt.Sprintf("%dx%d@%g %s", s.Width, s.Height, s.FrameRate, s.Quality)
}

func formatStatusLabel(status proxy.Status) string {
	s := strings.TrimSpace(string(status))
	if s == "" {
		return ""
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func formatProgress(rec proxy.Record) string {
	switch rec.Status {
	case proxy.StatusRunning:
		return fmt.Sprintf("%.0f%%", rec.Progress*100)
	case proxy.StatusReady:
		return "100%"
	default:
		return "-"
	}
}

func formatSize(size int64) string {
	if size <= 0 {
		return "-"
	}
	return humanize.Bytes(uint64(size))
}

func formatAgo(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return humanize.Time(t)
}

func formatFingerprint(fp string) string {
	if len(fp) > 12 {
		return fp[:12]
	}
	return fp
}

func shortSource(source string) string {
	if base := filepath.Base(source); base != "." && base != string(filepath.Separator) {
		return base
	}
	return source
}

func buildProxyRows(records []proxy.Record) [][]string {
	rows := make([][]string, 0, len(records))
	for _, rec := range records {
		rows = append(rows, []string{
			formatFingerprint(rec.Fingerprint),
			shortSource(rec.Source),
			formatSettings(rec.Settings),
			formatStatusLabel(rec.Status),
			formatProgress(rec),
			formatSize(rec.Size),
			formatAgo(rec.CreatedAt),
		})
	}
	return rows
}

var proxyHeaders = []string{"Fingerprint", "Source", "Settings", "Status", "Progress", "Size", "Created"}

var proxyAligns = []columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignLeft}

func buildRecordRows(rec proxy.Record) [][]string {
	rows := [][]string{
		{"Fingerprint", rec.Fingerprint},
		{"Source", rec.Source},
		{"Settings", formatSettings(rec.Settings)},
		{"Priority", fmt.Sprintf("%d", rec.Priority)},
		{"Status", formatStatusLabel(rec.Status)},
		{"Progress", formatProgress(rec)},
		{"Size", formatSize(rec.Size)},
		{"Created", formatAgo(rec.CreatedAt)},
	}
	if rec.Ready {
		rows = append(rows, []string{"Output", rec.OutputPath})
	}
	if !rec.FinishedAt.IsZero() && !rec.StartedAt.IsZero() {
		rows = append(rows, []string{"Took", rec.FinishedAt.Sub(rec.StartedAt).Round(time.Millisecond).String()})
	}
	if rec.Error != "" {
		rows = append(rows, []string{"Error", rec.Error})
	}
	return rows
}

func buildStatsRows(p handlers.ProxyStats, f handlers.FrameStats) [][]string {
	return [][]string{
		{"Proxies", humanize.Comma(int64(p.Total))},
		{"Ready", humanize.Comma(int64(p.Ready))},
		{"Queued", humanize.Comma(int64(p.Queued))},
		{"Disk usage", formatSize(p.Bytes)},
		{"Cached frames", fmt.Sprintf("%s / %s", humanize.Comma(int64(f.Cached)), humanize.Comma(int64(f.Capacity)))},
		{"Frames loading", humanize.Comma(int64(f.Loading))},
	}
}

func buildHistoryRows(outcomes []proxy.Outcome) [][]string {
	rows := make([][]string, 0, len(outcomes))
	for _, o := range outcomes {
		took := "-"
		if !o.StartedAt.IsZero() && o.FinishedAt.After(o.StartedAt) {
			took = o.FinishedAt.Sub(o.StartedAt).Round(time.Millisecond).String()
		}
		status := formatStatusLabel(o.Status)
		if o.Error != "" {
			status += ": " + o.Error
		}
		rows = append(rows, []string{
			formatFingerprint(o.JobID),
			shortSource(o.Source),
			formatSettings(o.Settings),
			status,
			formatSize(o.Size),
			took,
			formatAgo(o.FinishedAt),
		})
	}
	return rows
}

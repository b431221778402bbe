package main

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"media-proxy/internal/handlers"
	"media-proxy/internal/proxy"
)

// settingsFlags are the proxy settings a command may override. Flags left
// unset fall back to the server's defaults.
type settingsFlags struct {
	width   uint32
	height  uint32
	fps     float64
	quality string
}

func (f *settingsFlags) register(cmd *cobra.Command) {
	cmd.Flags().Uint32Var(&f.width, "width", 0, "Proxy width in pixels")
	cmd.Flags().Uint32Var(&f.height, "height", 0, "Proxy height in pixels")
	cmd.Flags().Float64Var(&f.fps, "fps", 0, "Proxy frame rate")
	cmd.Flags().StringVar(&f.quality, "quality", "", "Proxy quality (draft, preview, high)")
}

func (f *settingsFlags) validate(cmd *cobra.Command) error {
	if cmd.Flags().Changed("quality") {
		if _, err := proxy.ParseQuality(f.quality); err != nil {
			return err
		}
	}
	return nil
}

// query encodes the changed flags as API query parameters.
func (f *settingsFlags) query(cmd *cobra.Command, q url.Values) url.Values {
	if q == nil {
		q = url.Values{}
	}
	if cmd.Flags().Changed("width") {
		q.Set("width", strconv.FormatUint(uint64(f.width), 10))
	}
	if cmd.Flags().Changed("height") {
		q.Set("height", strconv.FormatUint(uint64(f.height), 10))
	}
	if cmd.Flags().Changed("fps") {
		q.Set("frameRate", strconv.FormatFloat(f.fps, 'f', -1, 64))
	}
	if cmd.Flags().Changed("quality") {
		q.Set("quality", strings.ToLower(f.quality))
	}
	return q
}

// body encodes the changed flags as the settings object of a request.
func (f *settingsFlags) body(cmd *cobra.Command) map[string]any {
	s := map[string]any{}
	if cmd.Flags().Changed("width") {
		s["width"] = f.width
	}
	if cmd.Flags().Changed("height") {
		s["height"] = f.height
	}
	if cmd.Flags().Changed("fps") {
		s["frameRate"] = f.fps
	}
	if cmd.Flags().Changed("quality") {
		s["quality"] = strings.ToLower(f.quality)
	}
	return s
}

type requestResult struct {
	Created bool         `json:"created"`
	Record  proxy.Record `json:"record"`
}

func newRequestCommand(ctx *commandContext) *cobra.Command {
	var settings settingsFlags
	var priority int

	cmd := &cobra.Command{
		Use:   "request <source>",
		Short: "Queue a proxy for a source clip",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := settings.validate(cmd); err != nil {
				return err
			}
			body := map[string]any{
				"source":   args[0],
				"priority": priority,
			}
			if s := settings.body(cmd); len(s) > 0 {
				body["settings"] = s
			}

			var result requestResult
			if err := ctx.client().post(cmd.Context(), "/api/proxies", nil, body, &result); err != nil {
				return err
			}
			if ctx.jsonOutput() {
				return writeJSON(cmd, result)
			}

			rec := result.Record
			if result.Created {
				fmt.Fprintf(cmd.OutOrStdout(), "Queued proxy %s for %s (%s)\n",
					formatFingerprint(rec.Fingerprint), rec.Source, formatSettings(rec.Settings))
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "Proxy %s for %s already exists (%s)\n",
					formatFingerprint(rec.Fingerprint), rec.Source, strings.ToLower(formatStatusLabel(rec.Status)))
			}
			return nil
		},
	}

	settings.register(cmd)
	cmd.Flags().IntVarP(&priority, "priority", "p", 0, "Queue priority; higher runs first")
	return cmd
}

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var settings settingsFlags

	cmd := &cobra.Command{
		Use:   "status <source>",
		Short: "Show the proxy of a source clip",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := settings.validate(cmd); err != nil {
				return err
			}
			q := settings.query(cmd, url.Values{"source": {args[0]}})

			var rec proxy.Record
			err := ctx.client().get(cmd.Context(), "/api/proxies/info", q, &rec)
			if isStatus(err, http.StatusNotFound) {
				return fmt.Errorf("no proxy for %s at these settings; queue one with `proxyctl request`", args[0])
			}
			if err != nil {
				return err
			}
			if ctx.jsonOutput() {
				return writeJSON(cmd, rec)
			}
			fmt.Fprint(cmd.OutOrStdout(), renderTable([]string{"Field", "Value"}, buildRecordRows(rec), nil))
			return nil
		},
	}

	settings.register(cmd)
	return cmd
}

func newListCommand(ctx *commandContext) *cobra.Command {
	var status string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List proxies known to the server",
		RunE: func(cmd *cobra.Command, args []string) error {
			list, err := fetchProxies(cmd, ctx.client(), status)
			if err != nil {
				return err
			}
			if ctx.jsonOutput() {
				return writeJSON(cmd, list)
			}
			if len(list.Proxies) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No proxies")
				return nil
			}
			fmt.Fprint(cmd.OutOrStdout(), renderTable(proxyHeaders, buildProxyRows(list.Proxies), proxyAligns))
			return nil
		},
	}

	cmd.Flags().StringVarP(&status, "status", "s", "", "Only show proxies in this state (pending, running, ready, failed)")
	return cmd
}

func fetchProxies(cmd *cobra.Command, client *apiClient, status string) (handlers.ProxyList, error) {
	var q url.Values
	if status = strings.TrimSpace(status); status != "" {
		q = url.Values{"status": {status}}
	}
	var list handlers.ProxyList
	err := client.get(cmd.Context(), "/api/proxies", q, &list)
	return list, err
}

func newStatsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show proxy and frame cache totals",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := ctx.client()
			var proxies handlers.ProxyStats
			if err := client.get(cmd.Context(), "/api/proxies/stats", nil, &proxies); err != nil {
				return err
			}
			var frames handlers.FrameStats
			if err := client.get(cmd.Context(), "/api/frames/stats", nil, &frames); err != nil {
				return err
			}
			if ctx.jsonOutput() {
				return writeJSON(cmd, map[string]any{"proxies": proxies, "frames": frames})
			}
			fmt.Fprint(cmd.OutOrStdout(), renderTable([]string{"Metric", "Value"}, buildStatsRows(proxies, frames),
				[]columnAlignment{alignLeft, alignRight}))
			return nil
		},
	}
}

func newCleanupCommand(ctx *commandContext) *cobra.Command {
	var maxAge time.Duration

	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Remove proxies older than a maximum age",
		RunE: func(cmd *cobra.Command, args []string) error {
			var q url.Values
			if cmd.Flags().Changed("max-age") {
				if maxAge < 0 {
					return errors.New("--max-age must not be negative")
				}
				q = url.Values{"maxAge": {maxAge.String()}}
			}

			var result struct {
				Removed int    `json:"removed"`
				MaxAge  string `json:"maxAge"`
			}
			if err := ctx.client().post(cmd.Context(), "/api/proxies/cleanup", q, nil, &result); err != nil {
				return err
			}
			if ctx.jsonOutput() {
				return writeJSON(cmd, result)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed %d proxies older than %s\n", result.Removed, result.MaxAge)
			return nil
		},
	}

	cmd.Flags().DurationVar(&maxAge, "max-age", 0, "Maximum proxy age (server default when unset)")
	return cmd
}

func newHistoryCommand(ctx *commandContext) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history [source]",
		Short: "Show finished proxy jobs, newest first",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			q := url.Values{}
			if len(args) == 1 {
				q.Set("source", args[0])
			}
			if limit > 0 {
				q.Set("limit", strconv.Itoa(limit))
			}

			var history handlers.HistoryResponse
			if err := ctx.client().get(cmd.Context(), "/api/proxies/history", q, &history); err != nil {
				return err
			}
			if ctx.jsonOutput() {
				return writeJSON(cmd, history)
			}

			out := cmd.OutOrStdout()
			if len(history.Outcomes) == 0 {
				fmt.Fprintln(out, "No finished jobs")
			} else {
				fmt.Fprint(out, renderTable(
					[]string{"Job", "Source", "Settings", "Status", "Size", "Took", "Finished"},
					buildHistoryRows(history.Outcomes),
					[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignLeft},
				))
			}
			if !history.LastCleanup.IsZero() {
				fmt.Fprintf(out, "Last cleanup: %s\n", formatAgo(history.LastCleanup))
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "Maximum number of jobs to show")
	return cmd
}

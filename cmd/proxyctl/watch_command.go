package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"media-proxy/internal/handlers"
)

const clearScreen = "\033[H\033[2J"

func newWatchCommand(ctx *commandContext) *cobra.Command {
	var interval time.Duration
	var count int
	var status string

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Refresh the proxy list until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			if interval <= 0 {
				return errors.New("--interval must be positive")
			}
			err := runWatch(cmd, ctx.client(), status, interval, count)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}

	cmd.Flags().DurationVarP(&interval, "interval", "i", 2*time.Second, "Refresh interval")
	cmd.Flags().IntVar(&count, "count", 0, "Stop after this many refreshes (0 runs until interrupted)")
	cmd.Flags().StringVarP(&status, "status", "s", "", "Only show proxies in this state")
	return cmd
}

// runWatch redraws in place when stdout is a terminal and appends
// snapshots otherwise.
func runWatch(cmd *cobra.Command, client *apiClient, status string, interval time.Duration, count int) error {
	out := cmd.OutOrStdout()
	fd, interactive := terminalFd(out)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for i := 0; count <= 0 || i < count; i++ {
		if i > 0 {
			select {
			case <-cmd.Context().Done():
				return cmd.Context().Err()
			case <-ticker.C:
			}
		}

		list, err := fetchProxies(cmd, client, status)
		if err != nil {
			return err
		}
		var stats handlers.ProxyStats
		if err := client.get(cmd.Context(), "/api/proxies/stats", nil, &stats); err != nil {
			return err
		}

		width := 0
		if interactive {
			fmt.Fprint(out, clearScreen)
			if w, _, err := term.GetSize(fd); err == nil {
				width = w
			}
		} else if i > 0 {
			fmt.Fprintln(out)
		}

		fmt.Fprintf(out, "%s  %d proxies, %d ready, %d queued, %s on disk\n",
			time.Now().Format("15:04:05"), stats.Total, stats.Ready, stats.Queued, formatSize(stats.Bytes))
		if len(list.Proxies) == 0 {
			fmt.Fprintln(out, "No proxies")
			continue
		}
		fmt.Fprint(out, renderTableWidth(proxyHeaders, buildProxyRows(list.Proxies), proxyAligns, 1, sourceWidth(width)))
	}
	return nil
}

// sourceWidth leaves the source column whatever a terminal of the given
// width has left after the fixed columns.
func sourceWidth(termWidth int) int {
	const fixed = 90
	if termWidth <= 0 {
		return 0
	}
	return max(termWidth-fixed, 12)
}

func terminalFd(w io.Writer) (int, bool) {
	f, ok := w.(*os.File)
	if !ok {
		return 0, false
	}
	fd := int(f.Fd())
	return fd, term.IsTerminal(fd)
}

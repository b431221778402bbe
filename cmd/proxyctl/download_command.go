package main

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

func newDownloadCommand(ctx *commandContext) *cobra.Command {
	var settings settingsFlags
	var output string

	cmd := &cobra.Command{
		Use:   "download <source>",
		Short: "Fetch a ready proxy file from the server",
		Long: "Fetch a ready proxy file from the server. It is saved in the current\n" +
			"directory as <name>.proxy.mp4 unless --output names another path;\n" +
			"--output - writes to stdout.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := settings.validate(cmd); err != nil {
				return err
			}
			q := settings.query(cmd, url.Values{"source": {args[0]}})
			if output == "" {
				output = defaultProxyName(args[0])
			}

			if output == "-" {
				_, err := ctx.client().download(cmd.Context(), "/api/proxies/file", q, cmd.OutOrStdout())
				return explainDownloadError(err, args[0])
			}

			tmp, err := os.CreateTemp(filepath.Dir(output), ".proxyctl-*.part")
			if err != nil {
				return fmt.Errorf("create output: %w", err)
			}
			defer func() { _ = os.Remove(tmp.Name()) }()

			n, err := ctx.client().download(cmd.Context(), "/api/proxies/file", q, tmp)
			if closeErr := tmp.Close(); err == nil && closeErr != nil {
				err = fmt.Errorf("write output: %w", closeErr)
			}
			if err != nil {
				return explainDownloadError(err, args[0])
			}
			if err := os.Rename(tmp.Name(), output); err != nil {
				return fmt.Errorf("write output: %w", err)
			}

			if ctx.jsonOutput() {
				return writeJSON(cmd, map[string]any{"path": output, "bytes": n})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Saved %s (%s)\n", output, humanize.Bytes(uint64(n)))
			return nil
		},
	}

	settings.register(cmd)
	cmd.Flags().StringVarP(&output, "output", "o", "", "Destination file, or - for stdout")
	return cmd
}

func defaultProxyName(source string) string {
	base := filepath.Base(source)
	return strings.TrimSuffix(base, filepath.Ext(base)) + ".proxy.mp4"
}

func explainDownloadError(err error, source string) error {
	var apiErr *apiError
	switch {
	case err == nil:
		return nil
	case errors.As(err, &apiErr) && apiErr.Status == http.StatusConflict:
		return fmt.Errorf("proxy for %s is not ready (%v)", source, apiErr.Body["status"])
	case isStatus(err, http.StatusNotFound):
		return fmt.Errorf("no proxy for %s at these settings; queue one with `proxyctl request`", source)
	default:
		return err
	}
}

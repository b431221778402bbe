package main

import (
	"fmt"
	"net/url"

	"github.com/spf13/cobra"

	"media-proxy/internal/handlers"
)

func newFramesCommand(ctx *commandContext) *cobra.Command {
	framesCmd := &cobra.Command{
		Use:   "frames",
		Short: "Inspect and manage the frame cache",
	}

	framesCmd.AddCommand(newFramesStatsCommand(ctx))
	framesCmd.AddCommand(newFramesClearCommand(ctx))
	framesCmd.AddCommand(newFramesPreloadCommand(ctx))

	return framesCmd
}

func newFramesStatsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show frame cache occupancy",
		RunE: func(cmd *cobra.Command, args []string) error {
			var stats handlers.FrameStats
			if err := ctx.client().get(cmd.Context(), "/api/frames/stats", nil, &stats); err != nil {
				return err
			}
			if ctx.jsonOutput() {
				return writeJSON(cmd, stats)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d of %d frames cached, %d loading\n", stats.Cached, stats.Capacity, stats.Loading)
			return nil
		},
	}
}

func newFramesClearCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "clear [source]",
		Short: "Drop cached frames of one source, or all of them",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var q url.Values
			if len(args) == 1 {
				q = url.Values{"source": {args[0]}}
			}
			var result struct {
				Removed int `json:"removed"`
			}
			if err := ctx.client().delete(cmd.Context(), "/api/frames", q, &result); err != nil {
				return err
			}
			if ctx.jsonOutput() {
				return writeJSON(cmd, result)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed %d cached frames\n", result.Removed)
			return nil
		},
	}
}

func newFramesPreloadCommand(ctx *commandContext) *cobra.Command {
	var start, end, fps float64

	cmd := &cobra.Command{
		Use:   "preload <source>",
		Short: "Decode a time range of a source into the frame cache",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			body := map[string]any{
				"source": args[0],
				"start":  start,
				"end":    end,
			}
			if cmd.Flags().Changed("fps") {
				body["fps"] = fps
			}
			var result struct {
				Decoded int `json:"decoded"`
			}
			if err := ctx.client().post(cmd.Context(), "/api/frames/preload", nil, body, &result); err != nil {
				return err
			}
			if ctx.jsonOutput() {
				return writeJSON(cmd, result)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Decoded %d frames of %s\n", result.Decoded, args[0])
			return nil
		},
	}

	cmd.Flags().Float64Var(&start, "start", 0, "Start of the range in seconds")
	cmd.Flags().Float64Var(&end, "end", 0, "End of the range in seconds")
	cmd.Flags().Float64Var(&fps, "fps", 0, "Frames per second to decode (server default when unset)")
	_ = cmd.MarkFlagRequired("end")
	return cmd
}

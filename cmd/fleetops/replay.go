package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"fleetops/internal/report"
)

var (
	replayInput     string
	replaySpeed     float64
	replayPrintOnly bool
)

var replayCmd = &cobra.Command{
	Use:   "replay",
	Short: "Replay a status log file",
	Long:  "replay feeds status rows from a JSONL log back into GreptimeDB or STDOUT.",
	RunE: func(cmd *cobra.Command, args []string) error {
		if replayInput == "" {
			return fmt.Errorf("input file required")
		}
		writer, cleanup, err := newWriter(replayPrintOnly, false, "")
		if err != nil {
			return err
		}
		defer cleanup()
		return report.ReplayLogFile(replayInput, writer, replaySpeed)
	},
}

func init() {
	replayCmd.Flags().StringVar(&replayInput, "input", "", "Path to status log file")
	replayCmd.Flags().Float64Var(&replaySpeed, "speed", 1.0, "Playback speed multiplier")
	replayCmd.Flags().BoolVar(&replayPrintOnly, "print-only", false, "Print status to STDOUT instead of writing to DB")
	replayCmd.MarkFlagRequired("input")
}

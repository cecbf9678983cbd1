package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"fleetops/internal/store"
)

var cooldownsStorage string

var cooldownsCmd = &cobra.Command{
	Use:   "cooldowns",
	Short: "List persisted ship cooldowns",
	RunE: func(cmd *cobra.Command, args []string) error {
		return printCooldowns(os.Stdout, cooldownsStorage, time.Now())
	},
}

func init() {
	cooldownsCmd.Flags().StringVar(&cooldownsStorage, "storage", "storage", "Storage directory")
}

func printCooldowns(out io.Writer, dir string, now time.Time) error {
	cds, err := store.OpenCooldowns(dir, func() time.Time { return now })
	if err != nil {
		return err
	}
	entries := cds.List()
	if len(entries) == 0 {
		fmt.Fprintln(out, "no ships on cooldown")
		return nil
	}
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "SHIP\tUNTIL\tREMAINING\n")
	for _, e := range entries {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", e.ID, e.CooldownUntil.Format(time.RFC3339), e.CooldownUntil.Sub(now).Truncate(time.Second))
	}
	return tw.Flush()
}

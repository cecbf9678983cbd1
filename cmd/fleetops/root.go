package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "fleetops",
	Short: "Autonomous fleet operator for the SpaceTraders API",
	Long: "fleetops runs a rate-limited fleet of ship actors under a coordinator and a\n" +
		"priority goal scheduler, and provides tools to inspect and feed it.",
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(cooldownsCmd)
	rootCmd.AddCommand(goalsCmd)
	rootCmd.AddCommand(replayCmd)
	rootCmd.AddCommand(dashboardCmd)
}

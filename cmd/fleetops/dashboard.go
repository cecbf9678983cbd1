package main

import (
	"os"

	"github.com/spf13/cobra"

	"fleetops/internal/dashboard"
)

var dashboardOut string

var dashboardCmd = &cobra.Command{
	Use:   "dashboard",
	Short: "Render Grafana dashboards for the GreptimeDB status table",
	RunE: func(cmd *cobra.Command, args []string) error {
		return dashboard.Render(dashboardOut, dashboard.Params{Table: os.Getenv("GREPTIMEDB_TABLE")})
	},
}

func init() {
	dashboardCmd.Flags().StringVar(&dashboardOut, "out", "build", "Output directory")
}

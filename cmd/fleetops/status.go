package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"fleetops/internal/coordinator"
	"fleetops/internal/report"
)

var (
	statusAddr string
	statusJSON bool
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the fleet as seen by a running operator",
	RunE: func(cmd *cobra.Command, args []string) error {
		snap, err := fetchSnapshot(cmd.Context(), statusAddr)
		if err != nil {
			return err
		}
		if !snap.Discovered() {
			fmt.Fprintln(os.Stdout, "operator has not completed a tick yet")
			return nil
		}
		var w report.Writer = report.NewStdoutWriter()
		if statusJSON {
			w = report.NewJSONStdoutWriter()
		}
		return report.Publish(cmd.Context(), snap, w)
	},
}

func init() {
	statusCmd.Flags().StringVar(&statusAddr, "addr", "http://localhost:8080", "Admin server address")
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "Print JSON rows")
}

// fetchSnapshot reads /units from the admin server at addr.
func fetchSnapshot(ctx context.Context, addr string) (coordinator.Snapshot, error) {
	var snap coordinator.Snapshot
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, addr+"/units", nil)
	if err != nil {
		return snap, err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return snap, fmt.Errorf("query admin server: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return snap, fmt.Errorf("admin server returned %s", resp.Status)
	}
	if err := json.NewDecoder(resp.Body).Decode(&snap); err != nil {
		return snap, fmt.Errorf("decode snapshot: %w", err)
	}
	return snap, nil
}

package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"fleetops/internal/goals"
)

var (
	goalsPlan  string
	goalsInbox string
)

var goalsCmd = &cobra.Command{
	Use:   "goals",
	Short: "Manage fleet goals",
}

var goalsSubmitCmd = &cobra.Command{
	Use:   "submit",
	Short: "Drop a goal plan into the operator's inbox",
	RunE: func(cmd *cobra.Command, args []string) error {
		dest, err := submitPlan(goalsPlan, goalsInbox)
		if err != nil {
			return err
		}
		fmt.Fprintln(os.Stdout, "queued", dest)
		return nil
	},
}

func init() {
	goalsSubmitCmd.Flags().StringVar(&goalsPlan, "plan", "", "Path to goal plan YAML")
	goalsSubmitCmd.Flags().StringVar(&goalsInbox, "inbox", "goals/inbox", "Operator inbox directory")
	goalsSubmitCmd.MarkFlagRequired("plan")
	goalsCmd.AddCommand(goalsSubmitCmd)
}

// submitPlan checks the plan, then writes it into inbox under a temporary
// name and renames it so the watcher only ever sees complete files.
func submitPlan(path, inbox string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	if _, err := goals.ParsePlan(data); err != nil {
		return "", err
	}
	if err := os.MkdirAll(inbox, 0o755); err != nil {
		return "", err
	}
	tmp, err := os.CreateTemp(inbox, ".plan-*.tmp")
	if err != nil {
		return "", err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", err
	}
	base := filepath.Base(path)
	if filepath.Ext(base) != ".yaml" {
		base += ".yaml"
	}
	dest := filepath.Join(inbox, base)
	if err := os.Rename(tmp.Name(), dest); err != nil {
		os.Remove(tmp.Name())
		return "", err
	}
	return dest, nil
}

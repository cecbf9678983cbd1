package report

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/charmbracelet/lipgloss"
)

// JSONStdoutWriter prints rows as JSON lines.
type JSONStdoutWriter struct {
	out io.Writer
}

// NewJSONStdoutWriter creates a JSONStdoutWriter writing to os.Stdout.
func NewJSONStdoutWriter() *JSONStdoutWriter {
	return &JSONStdoutWriter{out: os.Stdout}
}

// Write outputs a single row.
func (w *JSONStdoutWriter) Write(row Row) error {
	data, err := json.Marshal(row)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w.out, string(data))
	return err
}

var (
	styleTime    = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	styleShip    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("15"))
	styleTask    = lipgloss.NewStyle().Foreground(lipgloss.Color("12"))
	styleGoal    = lipgloss.NewStyle().Foreground(lipgloss.Color("13"))
	styleIdle    = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	styleWorking = lipgloss.NewStyle().Foreground(lipgloss.Color("14"))
	styleCooling = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	styleError   = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
)

func stateStyle(state string) lipgloss.Style {
	switch state {
	case "working":
		return styleWorking
	case "cooldown":
		return styleCooling
	case "error", "stopped":
		return styleError
	default:
		return styleIdle
	}
}

// StdoutWriter prints one colored line per row.
type StdoutWriter struct {
	out io.Writer
}

// NewStdoutWriter creates a StdoutWriter writing to os.Stdout.
func NewStdoutWriter() *StdoutWriter {
	return &StdoutWriter{out: os.Stdout}
}

// Write outputs a single row.
func (w *StdoutWriter) Write(row Row) error {
	_, err := fmt.Fprintln(w.out, formatLine(row))
	return err
}

func formatLine(row Row) string {
	line := fmt.Sprintf("%s %s %s %s fuel=%d/%d cargo=%d/%d w=%.2f at=%s",
		styleTime.Render("["+row.Timestamp.Format(time.RFC3339)+"]"),
		styleShip.Render(row.Ship),
		stateStyle(row.State).Render(row.State),
		styleTask.Render(row.Task),
		row.Fuel, row.FuelCapacity,
		row.Cargo, row.CargoCapacity,
		row.Weight,
		row.Location,
	)
	if row.Goal != "" {
		line += " " + styleGoal.Render("goal="+row.Goal)
	}
	if row.CooldownSeconds > 0 {
		line += " " + styleCooling.Render(fmt.Sprintf("cd=%.0fs", row.CooldownSeconds))
	}
	if row.LastError != "" {
		line += " " + styleError.Render("err="+row.LastError)
	}
	return line
}

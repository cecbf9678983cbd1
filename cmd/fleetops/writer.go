package main

import (
	"os"

	"golang.org/x/term"

	"fleetops/internal/report"
)

// newWriter sets up the status sinks from flags and env vars. It returns the
// writer and a cleanup function that closes any resources.
func newWriter(printOnly, tui bool, logFile string) (report.Writer, func(), error) {
	writer, err := baseWriter(printOnly, tui)
	if err != nil {
		return nil, nil, err
	}
	closer := func(w report.Writer) func() {
		return func() {
			if c, ok := w.(interface{ Close() error }); ok {
				_ = c.Close()
			}
		}
	}
	if logFile == "" {
		return writer, closer(writer), nil
	}
	fw, err := report.NewFileWriter(logFile)
	if err != nil {
		closer(writer)()
		return nil, nil, err
	}
	mw := report.NewMultiWriter(writer, fw)
	return mw, closer(mw), nil
}

// baseWriter prefers GreptimeDB when GREPTIMEDB_ENDPOINT is set, then the
// dashboard when asked for on a terminal, then colored or JSON stdout.
func baseWriter(printOnly, tui bool) (report.Writer, error) {
	endpoint := os.Getenv("GREPTIMEDB_ENDPOINT")
	if !printOnly && endpoint != "" {
		database := os.Getenv("GREPTIMEDB_DATABASE")
		if database == "" {
			database = "public"
		}
		return report.NewGreptimeWriter(endpoint, database, os.Getenv("GREPTIMEDB_TABLE"))
	}
	interactive := term.IsTerminal(int(os.Stdout.Fd()))
	switch {
	case tui && interactive:
		return report.NewTUIWriter("fleetops"), nil
	case interactive:
		return report.NewStdoutWriter(), nil
	default:
		return report.NewJSONStdoutWriter(), nil
	}
}

// usesTerminal reports whether newWriter would draw the dashboard.
func usesTerminal(printOnly, tui bool) bool {
	if !printOnly && os.Getenv("GREPTIMEDB_ENDPOINT") != "" {
		return false
	}
	return tui && term.IsTerminal(int(os.Stdout.Fd()))
}

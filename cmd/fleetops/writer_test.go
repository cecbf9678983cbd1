package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"fleetops/internal/report"
)

func TestNewWriterPrintOnly(t *testing.T) {
	w, cleanup, err := newWriter(true, false, "")
	if err != nil {
		t.Fatalf("newWriter returned error: %v", err)
	}
	cleanup()
	if _, ok := w.(*report.JSONStdoutWriter); !ok {
		t.Fatalf("expected *report.JSONStdoutWriter, got %T", w)
	}
}

func TestNewWriterGreptimeFallback(t *testing.T) {
	t.Setenv("GREPTIMEDB_ENDPOINT", "")
	w, cleanup, err := newWriter(false, true, "")
	if err != nil {
		t.Fatalf("newWriter returned error: %v", err)
	}
	cleanup()
	if _, ok := w.(*report.JSONStdoutWriter); !ok {
		t.Fatalf("expected *report.JSONStdoutWriter off a terminal, got %T", w)
	}
	if usesTerminal(false, true) {
		t.Fatalf("dashboard should not start without a terminal")
	}
}

func TestNewWriterLogFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "status.jsonl")
	w, cleanup, err := newWriter(true, false, path)
	if err != nil {
		t.Fatalf("newWriter returned error: %v", err)
	}
	if _, ok := w.(*report.MultiWriter); !ok {
		t.Fatalf("expected *report.MultiWriter, got %T", w)
	}
	if err := w.Write(report.Row{Ship: "M1", State: "idle", Timestamp: time.Now()}); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	cleanup()
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat failed: %v", err)
	}
	if info.Size() == 0 {
		t.Fatalf("expected log file to be non-empty")
	}
}

package report

import (
	"strings"
	"testing"
	"time"
)

func TestReplayLogPacesBySpeed(t *testing.T) {
	data := `{"ship":"A","ts":"2024-01-01T00:00:00Z"}
{"ship":"A","ts":"2024-01-01T00:00:01Z"}
`
	cw := &captureWriter{}
	start := time.Now()
	if err := ReplayLog(strings.NewReader(data), cw, 20); err != nil {
		t.Fatalf("replay: %v", err)
	}
	if elapsed := time.Since(start); elapsed < 40*time.Millisecond {
		t.Fatalf("expected ~50ms delay, got %v", elapsed)
	}
	if len(cw.rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(cw.rows))
	}
}

func TestReplayLogRejectsGarbage(t *testing.T) {
	if err := ReplayLog(strings.NewReader("{not json"), &captureWriter{}, 0); err == nil {
		t.Fatalf("expected decode error")
	}
}

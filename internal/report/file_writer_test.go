package report

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func TestFileWriterRoundTripsThroughReplay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "status.jsonl")
	fw, err := NewFileWriter(path)
	if err != nil {
		t.Fatalf("new file writer: %v", err)
	}
	rows := Rows(sampleSnapshot())
	if err := fw.WriteBatch(rows); err != nil {
		t.Fatalf("write batch: %v", err)
	}
	if err := fw.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer f.Close()
	sc := bufio.NewScanner(f)
	lines := 0
	for sc.Scan() {
		var got Row
		if err := json.Unmarshal(sc.Bytes(), &got); err != nil {
			t.Fatalf("decode line %d: %v", lines, err)
		}
		lines++
	}
	if lines != 2 {
		t.Fatalf("expected 2 lines, got %d", lines)
	}

	cw := &captureWriter{}
	if err := ReplayLogFile(path, cw, 0); err != nil {
		t.Fatalf("replay: %v", err)
	}
	if len(cw.rows) != 2 || cw.rows[0].Goal != "g-iron" || cw.rows[1].Task != "support" {
		t.Fatalf("unexpected replay: %+v", cw.rows)
	}
}

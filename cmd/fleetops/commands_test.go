package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"fleetops/internal/coordinator"
	"fleetops/internal/store"
)

func TestSubmitPlanCopiesIntoInbox(t *testing.T) {
	dir := t.TempDir()
	plan := filepath.Join(dir, "opening.yml")
	if err := os.WriteFile(plan, []byte("goals:\n  - kind: sell\n    priority: economic\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	inbox := filepath.Join(dir, "inbox")
	dest, err := submitPlan(plan, inbox)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if filepath.Base(dest) != "opening.yml.yaml" {
		t.Fatalf("unexpected destination %s", dest)
	}
	entries, err := os.ReadDir(inbox)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected only the plan in the inbox, got %d entries", len(entries))
	}
}

func TestSubmitPlanRejectsInvalid(t *testing.T) {
	dir := t.TempDir()
	plan := filepath.Join(dir, "bad.yaml")
	if err := os.WriteFile(plan, []byte("goals: []\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := submitPlan(plan, filepath.Join(dir, "inbox")); err == nil {
		t.Fatalf("expected invalid plan to be rejected")
	}
	if _, err := os.Stat(filepath.Join(dir, "inbox")); !os.IsNotExist(err) {
		t.Fatalf("inbox should not be created for an invalid plan")
	}
}

func TestPrintCooldowns(t *testing.T) {
	dir := t.TempDir()
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	cds, err := store.OpenCooldowns(dir, func() time.Time { return now })
	if err != nil {
		t.Fatal(err)
	}
	if err := cds.Set("M1", 90*time.Second); err != nil {
		t.Fatal(err)
	}

	var buf bytes.Buffer
	if err := printCooldowns(&buf, dir, now); err != nil {
		t.Fatalf("print: %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, "M1") || !strings.Contains(out, "1m30s") {
		t.Fatalf("unexpected output:\n%s", out)
	}

	buf.Reset()
	if err := printCooldowns(&buf, t.TempDir(), now); err != nil {
		t.Fatalf("print empty: %v", err)
	}
	if !strings.Contains(buf.String(), "no ships on cooldown") {
		t.Fatalf("unexpected output: %s", buf.String())
	}
}

func TestFetchSnapshot(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/units" {
			http.NotFound(w, r)
			return
		}
		_ = json.NewEncoder(w).Encode(coordinator.Snapshot{At: time.Now(), Tick: 4, Units: []coordinator.UnitView{{Symbol: "M1"}}})
	}))
	defer srv.Close()

	snap, err := fetchSnapshot(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if snap.Tick != 4 || len(snap.Units) != 1 {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}

	if _, err := fetchSnapshot(context.Background(), srv.URL+"/missing"); err == nil {
		t.Fatalf("expected error for a non-200 response")
	}
}

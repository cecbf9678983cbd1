package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const schemaPath = "../../schemas/fleetops.cue"

func writeTemp(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fleetops.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("failed to write temp file: %v", err)
	}
	return path
}

func TestLoadConfig_Valid(t *testing.T) {
	path := writeTemp(t, `
api:
  min_interval: 250ms
coordinator:
  tick: 3s
  refuel_threshold: 0.3
scheduler:
  max_active: 2
`)
	cfg, err := Load(path, schemaPath)
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}
	if cfg.API.MinInterval.Duration != 250*time.Millisecond {
		t.Errorf("min_interval = %s", cfg.API.MinInterval)
	}
	if cfg.Coordinator.Tick.Duration != 3*time.Second || cfg.Coordinator.RefuelThreshold != 0.3 {
		t.Errorf("unexpected coordinator config: %+v", cfg.Coordinator)
	}
	if cfg.Scheduler.MaxActive != 2 {
		t.Errorf("max_active = %d", cfg.Scheduler.MaxActive)
	}
	// untouched sections keep their defaults
	if cfg.API.BackoffCap.Duration != time.Minute || cfg.Storage.SurveyTTL.Duration != 30*time.Minute {
		t.Errorf("defaults not preserved: %+v %+v", cfg.API, cfg.Storage)
	}
}

func TestLoadConfig_ShippedFile(t *testing.T) {
	cfg, err := Load("../../config/fleetops.yaml", schemaPath)
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}
	if cfg.Coordinator.DiscoverEvery != 6 {
		t.Errorf("discover_every = %d", cfg.Coordinator.DiscoverEvery)
	}
}

func TestLoadConfig_SchemaRejects(t *testing.T) {
	cases := map[string]string{
		"bad duration":  "api:\n  min_interval: soon\n",
		"ratio too big": "coordinator:\n  refuel_threshold: 1.5\n",
		"unknown key":   "coordinatr:\n  tick: 1s\n",
		"bad level":     "log:\n  level: loud\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := Load(writeTemp(t, body), schemaPath); err == nil {
				t.Fatalf("expected validation error")
			}
		})
	}
}

func TestLoadConfig_CheckRejectsInvertedBackoff(t *testing.T) {
	path := writeTemp(t, "api:\n  backoff_floor: 10s\n  backoff_cap: 1s\n")
	_, err := Load(path, "")
	if err == nil || !strings.Contains(err.Error(), "backoff_cap") {
		t.Fatalf("expected backoff error, got %v", err)
	}
}

func TestLoadConfig_TickFromEnv(t *testing.T) {
	t.Setenv("FLEETOPS_TICK", "750ms")
	cfg, err := Load(writeTemp(t, "log:\n  level: debug\n"), schemaPath)
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}
	if cfg.Coordinator.Tick.Duration != 750*time.Millisecond {
		t.Fatalf("tick = %s", cfg.Coordinator.Tick)
	}
}

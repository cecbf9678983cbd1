// Package report publishes per-tick fleet status rows to pluggable sinks:
// stdout, JSONL files, GreptimeDB and a live terminal dashboard.
package report

import (
	"context"
	"time"

	"fleetops/internal/coordinator"
	"fleetops/internal/logging"
)

// Row is the status of one unit at the end of one tick.
type Row struct {
	Tick            int       `json:"tick"`
	Ship            string    `json:"ship"`
	State           string    `json:"state"`
	Task            string    `json:"task"`
	Goal            string    `json:"goal,omitempty"`
	Capabilities    string    `json:"capabilities"`
	Weight          float64   `json:"weight"`
	Contribution    float64   `json:"contribution"`
	Income          float64   `json:"income"`
	Efficiency      float64   `json:"efficiency"`
	System          string    `json:"system"`
	Location        string    `json:"location"`
	NavStatus       string    `json:"nav_status"`
	Fuel            int       `json:"fuel"`
	FuelCapacity    int       `json:"fuel_capacity"`
	Cargo           int       `json:"cargo"`
	CargoCapacity   int       `json:"cargo_capacity"`
	CooldownSeconds float64   `json:"cooldown_seconds"`
	LastError       string    `json:"last_error,omitempty"`
	Timestamp       time.Time `json:"ts"`
}

// Writer receives status rows.
type Writer interface {
	Write(Row) error
}

// batchWriter is implemented by writers that prefer whole ticks.
type batchWriter interface {
	WriteBatch([]Row) error
}

// Rows flattens a snapshot into one row per unit.
func Rows(snap coordinator.Snapshot) []Row {
	rows := make([]Row, 0, len(snap.Units))
	for _, u := range snap.Units {
		rows = append(rows, Row{
			Tick:            snap.Tick,
			Ship:            u.Symbol,
			State:           u.State,
			Task:            u.Task,
			Goal:            u.Goal,
			Capabilities:    u.Metrics.Capabilities.String(),
			Weight:          u.Metrics.Weight,
			Contribution:    u.Metrics.Contribution,
			Income:          u.Metrics.Income,
			Efficiency:      u.Metrics.Efficiency,
			System:          u.System,
			Location:        u.Location,
			NavStatus:       u.NavStatus,
			Fuel:            u.Fuel.Current,
			FuelCapacity:    u.Fuel.Capacity,
			Cargo:           u.Cargo.Units,
			CargoCapacity:   u.Cargo.Capacity,
			CooldownSeconds: u.CooldownSeconds,
			LastError:       u.LastError,
			Timestamp:       snap.At,
		})
	}
	return rows
}

// Publish writes the rows of snap to w, as one batch when w supports it.
func Publish(ctx context.Context, snap coordinator.Snapshot, w Writer) error {
	rows := Rows(snap)
	if len(rows) == 0 {
		return nil
	}
	if bw, ok := w.(batchWriter); ok {
		return bw.WriteBatch(rows)
	}
	for _, r := range rows {
		if err := w.Write(r); err != nil {
			logging.FromContext(ctx).Warn("report write failed", "ship", r.Ship, "err", err)
			return err
		}
	}
	return nil
}

// Source is anything that publishes fleet snapshots.
type Source interface {
	Snapshot() coordinator.Snapshot
}

// Run publishes every new snapshot from src to w at interval until ctx is
// done. A snapshot whose tick was already published is skipped.
func Run(ctx context.Context, src Source, w Writer, interval time.Duration) error {
	log := logging.FromContext(ctx)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	last := -1
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
		snap := src.Snapshot()
		if !snap.Discovered() || snap.Tick == last {
			continue
		}
		last = snap.Tick
		if err := Publish(ctx, snap, w); err != nil {
			log.Warn("publish status", "tick", snap.Tick, "err", err)
		}
	}
}

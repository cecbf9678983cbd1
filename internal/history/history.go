// Package history keeps an append-only SQLite ledger of goal transitions
// and action outcomes.
package history

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

// GoalEvent is one goal status change.
type GoalEvent struct {
	GoalID      string    `json:"goal_id"`
	Description string    `json:"description"`
	Priority    int       `json:"priority"`
	Status      string    `json:"status"`
	Reason      string    `json:"reason,omitempty"`
	At          time.Time `json:"at"`
}

// ActionEvent is the outcome of one ship action.
type ActionEvent struct {
	Ship    string    `json:"ship"`
	Action  string    `json:"action"`
	Goal    string    `json:"goal,omitempty"`
	Outcome string    `json:"outcome"`
	Error   string    `json:"error,omitempty"`
	At      time.Time `json:"at"`
}

type goalRow struct {
	GoalID      string `db:"goal_id"`
	Description string `db:"description"`
	Priority    int    `db:"priority"`
	Status      string `db:"status"`
	Reason      string `db:"reason"`
	At          int64  `db:"at_ms"`
}

type actionRow struct {
	Ship    string `db:"ship"`
	Action  string `db:"action"`
	Goal    string `db:"goal_id"`
	Outcome string `db:"outcome"`
	Error   string `db:"error"`
	At      int64  `db:"at_ms"`
}

// DB wraps the ledger connection.
type DB struct {
	conn *sqlx.DB
}

// Open opens or creates the ledger at path.
func Open(path string) (*DB, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create history dir: %w", err)
		}
	}
	conn, err := sqlx.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open history: %w", err)
	}
	db := &DB{conn: conn}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate history: %w", err)
	}
	return db, nil
}

// Close closes the connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

func (db *DB) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS goal_events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		goal_id TEXT NOT NULL,
		description TEXT NOT NULL,
		priority INTEGER NOT NULL,
		status TEXT NOT NULL,
		reason TEXT NOT NULL DEFAULT '',
		at_ms INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS action_events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		ship TEXT NOT NULL,
		action TEXT NOT NULL,
		goal_id TEXT NOT NULL DEFAULT '',
		outcome TEXT NOT NULL,
		error TEXT NOT NULL DEFAULT '',
		at_ms INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_goal_events_goal ON goal_events(goal_id);
	CREATE INDEX IF NOT EXISTS idx_action_events_ship ON action_events(ship);
	`
	_, err := db.conn.Exec(schema)
	return err
}

// RecordGoal appends a goal transition.
func (db *DB) RecordGoal(ctx context.Context, e GoalEvent) error {
	_, err := db.conn.ExecContext(ctx,
		"INSERT INTO goal_events (goal_id, description, priority, status, reason, at_ms) VALUES (?, ?, ?, ?, ?, ?)",
		e.GoalID, e.Description, e.Priority, e.Status, e.Reason, e.At.UnixMilli(),
	)
	return err
}

// RecordAction appends an action outcome.
func (db *DB) RecordAction(ctx context.Context, e ActionEvent) error {
	_, err := db.conn.ExecContext(ctx,
		"INSERT INTO action_events (ship, action, goal_id, outcome, error, at_ms) VALUES (?, ?, ?, ?, ?, ?)",
		e.Ship, e.Action, e.Goal, e.Outcome, e.Error, e.At.UnixMilli(),
	)
	return err
}

// RecentGoals returns the newest goal transitions first.
func (db *DB) RecentGoals(ctx context.Context, limit int) ([]GoalEvent, error) {
	var rows []goalRow
	err := db.conn.SelectContext(ctx, &rows,
		"SELECT goal_id, description, priority, status, reason, at_ms FROM goal_events ORDER BY id DESC LIMIT ?",
		limit,
	)
	if err != nil {
		return nil, err
	}
	out := make([]GoalEvent, len(rows))
	for i, r := range rows {
		out[i] = GoalEvent{
			GoalID:      r.GoalID,
			Description: r.Description,
			Priority:    r.Priority,
			Status:      r.Status,
			Reason:      r.Reason,
			At:          time.UnixMilli(r.At).UTC(),
		}
	}
	return out, nil
}

// RecentActions returns the newest action outcomes first. An empty ship
// matches every ship.
func (db *DB) RecentActions(ctx context.Context, ship string, limit int) ([]ActionEvent, error) {
	var rows []actionRow
	err := db.conn.SelectContext(ctx, &rows,
		`SELECT ship, action, goal_id, outcome, error, at_ms FROM action_events
		 WHERE (? = '' OR ship = ?) ORDER BY id DESC LIMIT ?`,
		ship, ship, limit,
	)
	if err != nil {
		return nil, err
	}
	out := make([]ActionEvent, len(rows))
	for i, r := range rows {
		out[i] = ActionEvent{
			Ship:    r.Ship,
			Action:  r.Action,
			Goal:    r.Goal,
			Outcome: r.Outcome,
			Error:   r.Error,
			At:      time.UnixMilli(r.At).UTC(),
		}
	}
	return out, nil
}

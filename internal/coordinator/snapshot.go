package coordinator

import (
	"sort"
	"time"

	"fleetops/internal/fleet"
)

// UnitView is the read-only state of one unit at the end of a tick.
type UnitView struct {
	Symbol          string      `json:"symbol"`
	State           string      `json:"state"`
	Idle            bool        `json:"idle"`
	Task            string      `json:"task"`
	Goal            string      `json:"goal,omitempty"`
	Metrics         Metrics     `json:"metrics"`
	System          string      `json:"system"`
	Location        string      `json:"location"`
	NavStatus       string      `json:"nav_status"`
	Fuel            fleet.Fuel  `json:"fuel"`
	Cargo           fleet.Cargo `json:"cargo"`
	CooldownSeconds float64     `json:"cooldown_seconds"`
	LastError       string      `json:"last_error,omitempty"`
}

// Snapshot is the fleet as of one tick. Snapshots are never modified after
// they are published.
type Snapshot struct {
	At    time.Time  `json:"at"`
	Tick  int        `json:"tick"`
	Units []UnitView `json:"units"`
	Goals []string   `json:"goals"`
}

// Discovered reports whether at least one tick has completed.
func (s Snapshot) Discovered() bool { return !s.At.IsZero() }

// Snapshot returns the state published by the last tick.
func (c *Coordinator) Snapshot() Snapshot {
	if p := c.snap.Load(); p != nil {
		return *p
	}
	return Snapshot{}
}

func (c *Coordinator) publish() {
	s := &Snapshot{At: c.deps.Now(), Tick: c.ticks}
	for _, e := range c.engagements {
		s.Goals = append(s.Goals, e.Goal)
	}
	for _, u := range c.units {
		v := UnitView{
			Symbol:    u.symbol,
			State:     u.state.String(),
			Idle:      u.idle(),
			Task:      u.task,
			Goal:      u.goal,
			Metrics:   u.metrics,
			LastError: u.lastErr,
		}
		if rec, ok := c.deps.Ships.Get(u.symbol); ok {
			v.System = rec.Ship.Nav.SystemSymbol
			v.Location = rec.Ship.Location()
			v.NavStatus = string(rec.Ship.Nav.Status)
			v.Fuel = rec.Ship.Fuel
			v.Cargo = rec.Ship.Cargo
		}
		if left, ok := c.deps.Cooldowns.Remaining(u.symbol); ok {
			v.CooldownSeconds = left.Seconds()
		}
		s.Units = append(s.Units, v)
	}
	sort.Slice(s.Units, func(i, j int) bool { return s.Units[i].Symbol < s.Units[j].Symbol })
	c.snap.Store(s)
}

package coordinator

import (
	"fleetops/internal/actor"
	"fleetops/internal/fleet"
	"fleetops/internal/nav"
)

// Task labels for units that receive no action.
const (
	TaskSupport = "support"
	TaskParked  = "parked"
)

func isScout(s fleet.Ship) bool {
	return fleet.IsProbe(s) || s.Fuel.Capacity == 0 || s.Cargo.Capacity == 0
}

func (c *Coordinator) nearest(s fleet.Ship, keep func(fleet.Waypoint) bool) string {
	known := c.deps.Waypoints.Known(s.Nav.SystemSymbol)
	from, ok := nav.Lookup(s.Nav.WaypointSymbol, known)
	if !ok {
		return ""
	}
	if keep(from) {
		return from.Symbol
	}
	w, ok := nav.Nearest(from, known, keep)
	if !ok {
		return ""
	}
	return w.Symbol
}

func (c *Coordinator) staleSystems(systems []string) []string {
	var out []string
	for _, sys := range systems {
		if sys != "" && !c.deps.Waypoints.Fresh(sys) {
			out = append(out, sys)
		}
	}
	return out
}

// decide applies the fixed precedence to one idle unit. The returned task
// label is the action kind, or TaskSupport/TaskParked when nothing is sent.
func (c *Coordinator) decide(s fleet.Ship, e *Engagement, m Metrics) (actor.Action, string) {
	act := c.pick(s, e, m)
	if act.Kind == actor.KindNone {
		if isScout(s) {
			return act, TaskParked
		}
		return act, TaskSupport
	}
	return act, act.Kind.String()
}

func (c *Coordinator) pick(s fleet.Ship, e *Engagement, m Metrics) actor.Action {
	if isScout(s) {
		systems := []string{s.Nav.SystemSymbol}
		if e != nil && e.Kind == GoalExplore && len(e.Systems) > 0 {
			systems = e.Systems
		}
		if stale := c.staleSystems(systems); len(stale) > 0 {
			act := actor.Explore(stale...)
			if e != nil && e.Kind == GoalExplore {
				act = act.ForGoal(e.Goal)
			}
			return act
		}
		return actor.Action{}
	}

	if s.Fuel.Capacity > 0 && float64(s.Fuel.Current) < c.cfg.RefuelThreshold*float64(s.Fuel.Capacity) {
		return actor.Refuel(c.nearest(s, fleet.Waypoint.ProvidesFuel))
	}

	if e != nil && e.Destination != "" {
		for _, good := range e.Materials {
			holds := s.Cargo.Holding(good)
			if holds == 0 {
				continue
			}
			if s.Cargo.Full(c.cfg.CargoFullRatio) ||
				(e.Remaining > 0 && holds >= e.Remaining) ||
				float64(holds) >= c.cfg.DeliveryMaterialRatio*float64(s.Cargo.Capacity) {
				units := holds
				if e.Remaining > 0 && units > e.Remaining {
					units = e.Remaining
				}
				return actor.DeliverCargo(e.ContractID, e.Destination, good, units).ForGoal(e.Goal)
			}
		}
	}

	if s.Cargo.Full(c.cfg.CargoFullRatio) {
		var keep []string
		if e != nil && e.Destination != "" {
			keep = e.Materials
		}
		return actor.SmartSellOrJettison(c.nearest(s, fleet.Waypoint.IsMarketplace), keep)
	}

	if e == nil || m.Contribution <= 0 {
		return actor.Action{}
	}
	caps := m.Capabilities
	switch e.Kind {
	case GoalMining:
		if caps.Has(fleet.Mining) {
			return actor.Mine(e.Target, e.Materials, e.ContractID).ForGoal(e.Goal)
		}
		if caps.Has(fleet.Surveying) && len(c.deps.Surveys.Valid(e.Target)) == 0 {
			return actor.Survey(e.Target).ForGoal(e.Goal)
		}
	case GoalExplore:
		if stale := c.staleSystems(e.Systems); len(stale) > 0 {
			return actor.Explore(stale...).ForGoal(e.Goal)
		}
	case GoalSell:
		if s.Cargo.Units > 0 {
			market := e.Target
			if market == "" {
				market = c.nearest(s, fleet.Waypoint.IsMarketplace)
			}
			return actor.SellCargo(market).ForGoal(e.Goal)
		}
	}
	return actor.Action{}
}

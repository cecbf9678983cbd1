// Package nav decides whether a ship can reach a destination on its current
// fuel and, if not, where it should stop to refuel.
package nav

import (
	"errors"
	"fmt"
	"math"

	"fleetops/internal/fleet"
)

// ErrInsufficientFuel is returned by callers that abort an infeasible move.
var ErrInsufficientFuel = errors.New("insufficient fuel")

// Verdict is the planner's decision for a move.
type Verdict int

const (
	// Safe means the destination is reachable on current fuel.
	Safe Verdict = iota
	// RefuelFirst means the ship should refuel where it is before leaving.
	RefuelFirst
	// RefuelStop means the ship should detour through Plan.Stop.
	RefuelStop
	// Infeasible means no known route exists; Plan.Reason says why.
	Infeasible
)

func (v Verdict) String() string {
	switch v {
	case Safe:
		return "safe"
	case RefuelFirst:
		return "refuel-first"
	case RefuelStop:
		return "refuel-stop"
	default:
		return "infeasible"
	}
}

// Input describes a proposed move.
type Input struct {
	From         fleet.Waypoint
	To           fleet.Waypoint
	Fuel         int
	FuelCapacity int
	// Known lists the waypoints of the system that may serve as fuel stops.
	Known []fleet.Waypoint
}

// Plan is the result of Planner.Plan.
type Plan struct {
	Verdict  Verdict
	Distance float64
	FuelCost int
	Stop     fleet.Waypoint
	Reason   string
}

// Planner holds the fuel accounting constants.
type Planner struct {
	// Overhead is added to the rounded-up distance to get the fuel cost.
	Overhead int
	// SafetyMargin is the reserve kept when flying to a fuel stop.
	SafetyMargin int
}

// New returns a Planner with the given constants.
func New(overhead, safetyMargin int) Planner {
	return Planner{Overhead: overhead, SafetyMargin: safetyMargin}
}

// Distance is the straight-line distance between two waypoints.
func Distance(a, b fleet.Waypoint) float64 {
	dx := float64(a.X - b.X)
	dy := float64(a.Y - b.Y)
	return math.Sqrt(dx*dx + dy*dy)
}

// FuelCost returns the fuel needed to cover d.
func (p Planner) FuelCost(d float64) int {
	return int(math.Ceil(d)) + p.Overhead
}

// Plan evaluates in. It never mutates its input.
func (p Planner) Plan(in Input) Plan {
	d := Distance(in.From, in.To)
	cost := p.FuelCost(d)
	plan := Plan{Distance: d, FuelCost: cost}

	if in.From.Symbol != "" && in.From.Symbol == in.To.Symbol {
		plan.FuelCost = 0
		return plan
	}
	// ships without a tank (probes) fly for free
	if in.FuelCapacity == 0 || cost <= in.Fuel {
		return plan
	}
	if cost > in.FuelCapacity {
		if stop, ok := p.bestStop(in); ok {
			plan.Verdict = RefuelStop
			plan.Stop = stop
			return plan
		}
		plan.Verdict = Infeasible
		plan.Reason = fmt.Sprintf("route to %s needs %d fuel, tank holds %d and no fuel stop bridges the gap",
			in.To.Symbol, cost, in.FuelCapacity)
		return plan
	}
	if in.From.ProvidesFuel() {
		plan.Verdict = RefuelFirst
		plan.Stop = in.From
		return plan
	}
	if stop, ok := p.bestStop(in); ok {
		plan.Verdict = RefuelStop
		plan.Stop = stop
		return plan
	}
	plan.Verdict = Infeasible
	plan.Reason = fmt.Sprintf("route to %s needs %d fuel, have %d, no fuel station reachable with a %d unit margin",
		in.To.Symbol, cost, in.Fuel, p.SafetyMargin)
	return plan
}

// bestStop returns the nearest fuel-providing waypoint reachable from From
// with the safety margin left over, from which To is reachable on a full tank.
func (p Planner) bestStop(in Input) (fleet.Waypoint, bool) {
	var (
		best     fleet.Waypoint
		bestDist = math.Inf(1)
	)
	for _, w := range in.Known {
		if w.Symbol == in.From.Symbol || !w.ProvidesFuel() {
			continue
		}
		d := Distance(in.From, w)
		if p.FuelCost(d)+p.SafetyMargin > in.Fuel {
			continue
		}
		if w.Symbol != in.To.Symbol && p.FuelCost(Distance(w, in.To)) > in.FuelCapacity {
			continue
		}
		if d < bestDist {
			best, bestDist = w, d
		}
	}
	return best, !math.IsInf(bestDist, 1)
}

// Nearest returns the waypoint in known closest to from that satisfies keep.
func Nearest(from fleet.Waypoint, known []fleet.Waypoint, keep func(fleet.Waypoint) bool) (fleet.Waypoint, bool) {
	var (
		best     fleet.Waypoint
		bestDist = math.Inf(1)
	)
	for _, w := range known {
		if keep != nil && !keep(w) {
			continue
		}
		if d := Distance(from, w); d < bestDist {
			best, bestDist = w, d
		}
	}
	return best, !math.IsInf(bestDist, 1)
}

// NearestFuel returns the closest waypoint selling fuel.
func NearestFuel(from fleet.Waypoint, known []fleet.Waypoint) (fleet.Waypoint, bool) {
	return Nearest(from, known, fleet.Waypoint.ProvidesFuel)
}

// NearestMarket returns the closest marketplace.
func NearestMarket(from fleet.Waypoint, known []fleet.Waypoint) (fleet.Waypoint, bool) {
	return Nearest(from, known, fleet.Waypoint.IsMarketplace)
}

// Lookup finds symbol in known.
func Lookup(symbol string, known []fleet.Waypoint) (fleet.Waypoint, bool) {
	for _, w := range known {
		if w.Symbol == symbol {
			return w, true
		}
	}
	return fleet.Waypoint{}, false
}

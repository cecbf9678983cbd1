// Unit scoring used to rank idle ships for the goal they serve
package coordinator

import (
	"math"

	"fleetops/internal/fleet"
)

// Metrics is the assignment score of one unit for one goal.
type Metrics struct {
	Capabilities fleet.Capabilities `json:"capabilities"`
	Contribution float64            `json:"contribution"`
	Income       float64            `json:"income"`
	Efficiency   float64            `json:"efficiency"`
	Weight       float64            `json:"weight"`
}

// Income estimates the credits per hour a ship earns in its best role.
func Income(s fleet.Ship) float64 {
	caps := fleet.CapabilitiesOf(s)
	switch {
	case caps.Has(fleet.Mining):
		return float64(fleet.MiningPower(s)) * float64(s.Cargo.Capacity) * (60.0 / 90.0) * 50
	case caps.Has(fleet.Trading):
		return float64(s.Cargo.Capacity) * 20
	default:
		return 100
	}
}

// Efficiency rates how well equipped a ship is, from 0 to about 3.
func Efficiency(s fleet.Ship) float64 {
	caps := fleet.CapabilitiesOf(s)
	return math.Min(float64(s.Cargo.Capacity)/100, 1) +
		math.Min(float64(fleet.MiningPower(s))/20, 1) +
		0.1*float64(caps.Count()) +
		math.Min(float64(s.Fuel.Capacity)/1000, 0.5)
}

// Contribution is the share of e a ship can carry, in [0, 1]. It is zero
// when the ship lacks the capability e requires.
func Contribution(s fleet.Ship, e *Engagement) float64 {
	if e == nil {
		return 0
	}
	caps := fleet.CapabilitiesOf(s)
	if e.Kind == GoalMining {
		switch {
		case caps.Has(fleet.Mining):
			capacity := float64(s.Cargo.Capacity)
			if capacity <= 0 {
				return 0
			}
			total := float64(e.Remaining)
			if total <= 0 {
				total = capacity
			}
			trips := math.Ceil(total / capacity)
			c := (float64(fleet.MiningPower(s)) / 10 * capacity) / (trips * 100)
			return math.Max(0, math.Min(c, 1))
		case caps.Has(fleet.Surveying):
			return 0.1
		}
		return 0
	}
	if e.Capability != 0 && !caps.Has(e.Capability) {
		return 0
	}
	switch {
	case caps.Has(fleet.Trading) || caps.Has(fleet.Hauling):
		return math.Min(float64(s.Cargo.Capacity)/100, 0.8)
	case caps.Has(fleet.Scanning):
		return 0.1
	}
	return 0
}

// Weight combines the three scores; maxIncome normalises income across the fleet.
func Weight(contribution, income, maxIncome, efficiency float64) float64 {
	norm := 0.0
	if maxIncome > 0 {
		norm = income / maxIncome
	}
	return 0.6*contribution + 0.25*norm + 0.15*efficiency/5.0
}

func scoreFor(s fleet.Ship, e *Engagement, maxIncome float64) Metrics {
	m := Metrics{
		Capabilities: fleet.CapabilitiesOf(s),
		Contribution: Contribution(s, e),
		Income:       Income(s),
		Efficiency:   Efficiency(s),
	}
	m.Weight = Weight(m.Contribution, m.Income, maxIncome, m.Efficiency)
	return m
}

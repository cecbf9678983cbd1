// Package fleet holds the ship, waypoint and contract records exchanged with
// the upstream API, plus the capability rules derived from them.
package fleet

import (
	"strings"
	"time"
)

// NavStatus is the movement status of a ship.
type NavStatus string

const (
	StatusDocked    NavStatus = "DOCKED"
	StatusInOrbit   NavStatus = "IN_ORBIT"
	StatusInTransit NavStatus = "IN_TRANSIT"
)

// Registration carries the ship's assigned role.
type Registration struct {
	Name          string `json:"name" yaml:"name"`
	FactionSymbol string `json:"factionSymbol" yaml:"faction_symbol"`
	Role          string `json:"role" yaml:"role"`
}

// RoutePoint is one end of a navigation route.
type RoutePoint struct {
	Symbol       string `json:"symbol" yaml:"symbol"`
	Type         string `json:"type" yaml:"type"`
	SystemSymbol string `json:"systemSymbol" yaml:"system_symbol"`
	X            int    `json:"x" yaml:"x"`
	Y            int    `json:"y" yaml:"y"`
}

// Route is the ship's current or last route.
type Route struct {
	Origin        RoutePoint `json:"origin" yaml:"origin"`
	Destination   RoutePoint `json:"destination" yaml:"destination"`
	DepartureTime time.Time  `json:"departureTime" yaml:"departure_time"`
	Arrival       time.Time  `json:"arrival" yaml:"arrival"`
}

// Nav describes where a ship is and whether it is moving.
type Nav struct {
	SystemSymbol   string    `json:"systemSymbol" yaml:"system_symbol"`
	WaypointSymbol string    `json:"waypointSymbol" yaml:"waypoint_symbol"`
	Route          Route     `json:"route" yaml:"route"`
	Status         NavStatus `json:"status" yaml:"status"`
	FlightMode     string    `json:"flightMode" yaml:"flight_mode"`
}

// Frame is the ship hull.
type Frame struct {
	Symbol string `json:"symbol" yaml:"symbol"`
}

// Fuel is the current and maximum fuel of a ship.
type Fuel struct {
	Current  int `json:"current" yaml:"current"`
	Capacity int `json:"capacity" yaml:"capacity"`
}

// CargoItem is one inventory line.
type CargoItem struct {
	Symbol string `json:"symbol" yaml:"symbol"`
	Units  int    `json:"units" yaml:"units"`
}

// Cargo is the ship hold.
type Cargo struct {
	Capacity  int         `json:"capacity" yaml:"capacity"`
	Units     int         `json:"units" yaml:"units"`
	Inventory []CargoItem `json:"inventory" yaml:"inventory"`
}

// Holding returns the units of symbol in the hold.
func (c Cargo) Holding(symbol string) int {
	for _, it := range c.Inventory {
		if it.Symbol == symbol {
			return it.Units
		}
	}
	return 0
}

// Full reports whether the hold is at or above ratio of its capacity.
func (c Cargo) Full(ratio float64) bool {
	if c.Capacity <= 0 {
		return false
	}
	return float64(c.Units) >= ratio*float64(c.Capacity)
}

// Mount is an installed module such as a mining laser or surveyor.
type Mount struct {
	Symbol   string   `json:"symbol" yaml:"symbol"`
	Strength int      `json:"strength" yaml:"strength"`
	Deposits []string `json:"deposits,omitempty" yaml:"deposits,omitempty"`
}

// Cooldown is the server-reported cooldown of a ship.
type Cooldown struct {
	ShipSymbol       string    `json:"shipSymbol" yaml:"ship_symbol"`
	TotalSeconds     int       `json:"totalSeconds" yaml:"total_seconds"`
	RemainingSeconds int       `json:"remainingSeconds" yaml:"remaining_seconds"`
	Expiration       time.Time `json:"expiration,omitempty" yaml:"expiration,omitempty"`
}

// Remaining returns the cooldown as a duration.
func (c Cooldown) Remaining() time.Duration {
	return time.Duration(c.RemainingSeconds) * time.Second
}

// Ship is a unit of the fleet.
type Ship struct {
	Symbol       string       `json:"symbol" yaml:"symbol"`
	Registration Registration `json:"registration" yaml:"registration"`
	Nav          Nav          `json:"nav" yaml:"nav"`
	Frame        Frame        `json:"frame" yaml:"frame"`
	Fuel         Fuel         `json:"fuel" yaml:"fuel"`
	Cargo        Cargo        `json:"cargo" yaml:"cargo"`
	Mounts       []Mount      `json:"mounts" yaml:"mounts"`
	Cooldown     Cooldown     `json:"cooldown" yaml:"cooldown"`
}

// Location returns the waypoint the ship is at, or is heading to when in transit.
func (s Ship) Location() string {
	if s.Nav.Status == StatusInTransit && s.Nav.Route.Destination.Symbol != "" {
		return s.Nav.Route.Destination.Symbol
	}
	return s.Nav.WaypointSymbol
}

// ArrivesIn returns how long until an in-transit ship arrives.
func (s Ship) ArrivesIn(now time.Time) time.Duration {
	if s.Nav.Status != StatusInTransit {
		return 0
	}
	if d := s.Nav.Route.Arrival.Sub(now); d > 0 {
		return d
	}
	return 0
}

// Trait is a waypoint property such as MARKETPLACE.
type Trait struct {
	Symbol string `json:"symbol" yaml:"symbol"`
	Name   string `json:"name,omitempty" yaml:"name,omitempty"`
}

// Waypoint is a location inside a system.
type Waypoint struct {
	Symbol       string  `json:"symbol" yaml:"symbol"`
	Type         string  `json:"type" yaml:"type"`
	SystemSymbol string  `json:"systemSymbol" yaml:"system_symbol"`
	X            int     `json:"x" yaml:"x"`
	Y            int     `json:"y" yaml:"y"`
	Traits       []Trait `json:"traits" yaml:"traits"`
}

// HasTrait reports whether the waypoint carries the trait symbol.
func (w Waypoint) HasTrait(symbol string) bool {
	for _, t := range w.Traits {
		if t.Symbol == symbol {
			return true
		}
	}
	return false
}

// ProvidesFuel reports whether ships can refuel at the waypoint.
func (w Waypoint) ProvidesFuel() bool {
	return w.HasTrait("MARKETPLACE") || w.HasTrait("FUEL_STATION") || w.Type == "FUEL_STATION"
}

// IsMarketplace reports whether cargo can be sold at the waypoint.
func (w Waypoint) IsMarketplace() bool {
	return w.HasTrait("MARKETPLACE")
}

// IsAsteroid reports whether the waypoint can be mined.
func (w Waypoint) IsAsteroid() bool {
	return strings.Contains(w.Type, "ASTEROID")
}

// SystemOf returns the system part of a waypoint symbol (X1-AB12-C3 -> X1-AB12).
func SystemOf(waypoint string) string {
	if i := strings.LastIndex(waypoint, "-"); i > 0 {
		return waypoint[:i]
	}
	return waypoint
}

// Deposit is one resource a survey reports.
type Deposit struct {
	Symbol string `json:"symbol" yaml:"symbol"`
}

// Survey is a server-issued survey of a mining location.
type Survey struct {
	Signature  string    `json:"signature" yaml:"signature"`
	Symbol     string    `json:"symbol" yaml:"symbol"`
	Deposits   []Deposit `json:"deposits" yaml:"deposits"`
	Expiration time.Time `json:"expiration" yaml:"expiration"`
	Size       string    `json:"size" yaml:"size"`
}

// Matches counts how many deposits are in wanted.
func (s Survey) Matches(wanted []string) int {
	n := 0
	for _, d := range s.Deposits {
		for _, w := range wanted {
			if d.Symbol == w {
				n++
			}
		}
	}
	return n
}

// Delivery is one deliverable of a contract.
type Delivery struct {
	TradeSymbol       string `json:"tradeSymbol" yaml:"trade_symbol"`
	DestinationSymbol string `json:"destinationSymbol" yaml:"destination_symbol"`
	UnitsRequired     int    `json:"unitsRequired" yaml:"units_required"`
	UnitsFulfilled    int    `json:"unitsFulfilled" yaml:"units_fulfilled"`
}

// Remaining returns the units still to deliver.
func (d Delivery) Remaining() int {
	if r := d.UnitsRequired - d.UnitsFulfilled; r > 0 {
		return r
	}
	return 0
}

// Terms are the deliverables of a contract.
type Terms struct {
	Deadline time.Time  `json:"deadline" yaml:"deadline"`
	Deliver  []Delivery `json:"deliver" yaml:"deliver"`
}

// Contract is a procurement contract.
type Contract struct {
	ID        string `json:"id" yaml:"id"`
	Type      string `json:"type" yaml:"type"`
	Terms     Terms  `json:"terms" yaml:"terms"`
	Accepted  bool   `json:"accepted" yaml:"accepted"`
	Fulfilled bool   `json:"fulfilled" yaml:"fulfilled"`
}

// Delivered reports whether every delivery has all its units handed over.
// The contract still needs fulfilling to pay out.
func (c Contract) Delivered() bool {
	for _, d := range c.Terms.Deliver {
		if d.Remaining() > 0 {
			return false
		}
	}
	return len(c.Terms.Deliver) > 0
}

// Package actor runs one worker loop per ship. Each actor executes queued
// actions one at a time, honours the ship's persisted cooldown and reports
// every state change to the coordinator.
package actor

import (
	"fmt"
	"strings"
)

// Kind is the closed set of things a ship can be told to do.
type Kind int

const (
	KindNone Kind = iota
	KindNavigate
	KindMine
	KindSurvey
	KindRefuel
	KindSellCargo
	KindDeliverCargo
	KindDock
	KindOrbit
	KindJettisonCargo
	KindSmartSellOrJettison
	KindExplore
)

var kindNames = map[Kind]string{
	KindNone:                "none",
	KindNavigate:            "navigate",
	KindMine:                "mine",
	KindSurvey:              "survey",
	KindRefuel:              "refuel",
	KindSellCargo:           "sell",
	KindDeliverCargo:        "deliver",
	KindDock:                "dock",
	KindOrbit:               "orbit",
	KindJettisonCargo:       "jettison",
	KindSmartSellOrJettison: "sell-or-jettison",
	KindExplore:             "explore",
}

func (k Kind) String() string {
	if n, ok := kindNames[k]; ok {
		return n
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Action is one instruction for a ship. Which fields are meaningful depends
// on Kind; use the constructors below. Actions are values and are never
// changed after they are queued.
type Action struct {
	Kind Kind
	// Destination is the waypoint the action happens at: the navigation
	// target, mining or survey site, fuel station, marketplace or delivery
	// point. Empty means the ship's current location.
	Destination string
	// Materials lists the goods a mining action is after, or the goods a
	// sell/jettison action must keep.
	Materials   []string
	ContractID  string
	TradeSymbol string
	Units       int
	Systems     []string
	// Goal is the id of the goal the action serves, if any.
	Goal string
}

// Navigate flies to destination, inserting a refuel stop when needed.
func Navigate(destination string) Action {
	return Action{Kind: KindNavigate, Destination: destination}
}

// Mine extracts at target, preferring surveys rich in materials.
func Mine(target string, materials []string, contractID string) Action {
	return Action{Kind: KindMine, Destination: target, Materials: materials, ContractID: contractID}
}

// Survey surveys target and caches the result.
func Survey(target string) Action {
	return Action{Kind: KindSurvey, Destination: target}
}

// Refuel fills the tank at station, or where the ship is when station is empty.
func Refuel(station string) Action {
	return Action{Kind: KindRefuel, Destination: station}
}

// SellCargo sells the hold at marketplace.
func SellCargo(marketplace string) Action {
	return Action{Kind: KindSellCargo, Destination: marketplace}
}

// DeliverCargo hands units of tradeSymbol to a contract at destination.
func DeliverCargo(contractID, destination, tradeSymbol string, units int) Action {
	return Action{Kind: KindDeliverCargo, ContractID: contractID, Destination: destination, TradeSymbol: tradeSymbol, Units: units}
}

// Dock docks the ship.
func Dock() Action { return Action{Kind: KindDock} }

// Orbit puts the ship in orbit.
func Orbit() Action { return Action{Kind: KindOrbit} }

// JettisonCargo dumps everything except keep.
func JettisonCargo(keep []string) Action {
	return Action{Kind: KindJettisonCargo, Materials: keep}
}

// SmartSellOrJettison sells what marketplace buys and dumps the rest, except keep.
func SmartSellOrJettison(marketplace string, keep []string) Action {
	return Action{Kind: KindSmartSellOrJettison, Destination: marketplace, Materials: keep}
}

// Explore refreshes the waypoint maps of systems.
func Explore(systems ...string) Action {
	return Action{Kind: KindExplore, Systems: systems}
}

// ForGoal returns a copy of a tagged with the owning goal id.
func (a Action) ForGoal(id string) Action {
	a.Goal = id
	return a
}

func (a Action) String() string {
	var b strings.Builder
	b.WriteString(a.Kind.String())
	switch a.Kind {
	case KindDeliverCargo:
		fmt.Fprintf(&b, " %d %s to %s", a.Units, a.TradeSymbol, a.Destination)
		if a.ContractID != "" {
			fmt.Fprintf(&b, " for %s", a.ContractID)
		}
		return b.String()
	case KindExplore:
		if len(a.Systems) > 0 {
			b.WriteString(" " + strings.Join(a.Systems, ","))
		}
		return b.String()
	}
	if a.Destination != "" {
		b.WriteString(" " + a.Destination)
	}
	if len(a.Materials) > 0 {
		if a.Kind == KindMine {
			b.WriteString(" for ")
		} else {
			b.WriteString(" keeping ")
		}
		b.WriteString(strings.Join(a.Materials, ","))
	}
	return b.String()
}

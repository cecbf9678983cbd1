package nav

import (
	"testing"

	"fleetops/internal/fleet"
)

func wp(symbol string, x, y int, traits ...string) fleet.Waypoint {
	w := fleet.Waypoint{Symbol: symbol, SystemSymbol: "X1-T", X: x, Y: y}
	for _, t := range traits {
		w.Traits = append(w.Traits, fleet.Trait{Symbol: t})
	}
	return w
}

func TestFuelCost(t *testing.T) {
	p := New(2, 10)
	if got := p.FuelCost(Distance(wp("A", 0, 0), wp("B", 3, 4))); got != 7 {
		t.Fatalf("FuelCost = %d, want 7", got)
	}
	if got := p.FuelCost(10.2); got != 13 {
		t.Fatalf("FuelCost(10.2) = %d, want 13", got)
	}
}

func TestPlanSafeWhenDirectlyReachable(t *testing.T) {
	p := New(2, 10)
	// distance 50, cost 52
	plan := p.Plan(Input{From: wp("A", 0, 0), To: wp("B", 30, 40), Fuel: 52, FuelCapacity: 100})
	if plan.Verdict != Safe {
		t.Fatalf("verdict = %s, want safe", plan.Verdict)
	}
	if plan.FuelCost != 52 {
		t.Fatalf("fuel cost = %d", plan.FuelCost)
	}
}

func TestPlanProbeWithoutTank(t *testing.T) {
	plan := New(2, 10).Plan(Input{From: wp("A", 0, 0), To: wp("B", 300, 400)})
	if plan.Verdict != Safe {
		t.Fatalf("verdict = %s, want safe", plan.Verdict)
	}
}

func TestPlanRefuelStop(t *testing.T) {
	p := New(2, 10)
	known := []fleet.Waypoint{
		wp("FAR", 90, 0, "MARKETPLACE"),
		wp("NEAR", 20, 0, "MARKETPLACE"),
		wp("ROCK", 5, 0),
	}
	plan := p.Plan(Input{From: wp("A", 0, 0), To: wp("B", 100, 0), Fuel: 40, FuelCapacity: 200, Known: known})
	if plan.Verdict != RefuelStop {
		t.Fatalf("verdict = %s, want refuel-stop (%s)", plan.Verdict, plan.Reason)
	}
	if plan.Stop.Symbol != "NEAR" {
		t.Fatalf("stop = %s, want NEAR", plan.Stop.Symbol)
	}
}

func TestPlanRefuelFirstAtStation(t *testing.T) {
	plan := New(2, 10).Plan(Input{From: wp("A", 0, 0, "MARKETPLACE"), To: wp("B", 100, 0), Fuel: 10, FuelCapacity: 200})
	if plan.Verdict != RefuelFirst || plan.Stop.Symbol != "A" {
		t.Fatalf("plan = %+v", plan)
	}
}

func TestPlanInfeasible(t *testing.T) {
	p := New(2, 10)
	// the only station needs 32+10 fuel to reach safely
	known := []fleet.Waypoint{wp("S", 30, 0, "MARKETPLACE")}
	plan := p.Plan(Input{From: wp("A", 0, 0), To: wp("B", 100, 0), Fuel: 35, FuelCapacity: 200, Known: known})
	if plan.Verdict != Infeasible {
		t.Fatalf("verdict = %s, want infeasible", plan.Verdict)
	}
	if plan.Reason == "" {
		t.Fatalf("infeasible plan must carry a reason")
	}
}

func TestPlanInfeasibleBeyondTank(t *testing.T) {
	plan := New(2, 10).Plan(Input{From: wp("A", 0, 0), To: wp("B", 500, 0), Fuel: 100, FuelCapacity: 100})
	if plan.Verdict != Infeasible || plan.Reason == "" {
		t.Fatalf("plan = %+v", plan)
	}
}

func TestPlanSameWaypoint(t *testing.T) {
	a := wp("A", 4, 4)
	plan := New(2, 10).Plan(Input{From: a, To: a, Fuel: 0, FuelCapacity: 100})
	if plan.Verdict != Safe || plan.FuelCost != 0 {
		t.Fatalf("plan = %+v", plan)
	}
}

func TestNearestHelpers(t *testing.T) {
	known := []fleet.Waypoint{wp("M1", 50, 0, "MARKETPLACE"), wp("F1", 10, 0, "FUEL_STATION"), wp("M2", 20, 0, "MARKETPLACE")}
	from := wp("A", 0, 0)
	if w, ok := NearestFuel(from, known); !ok || w.Symbol != "F1" {
		t.Fatalf("NearestFuel = %s", w.Symbol)
	}
	if w, ok := NearestMarket(from, known); !ok || w.Symbol != "M2" {
		t.Fatalf("NearestMarket = %s", w.Symbol)
	}
	if _, ok := NearestMarket(from, nil); ok {
		t.Fatalf("expected no market")
	}
	if w, ok := Lookup("M1", known); !ok || w.X != 50 {
		t.Fatalf("Lookup failed")
	}
}

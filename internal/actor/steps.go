package actor

import (
	"context"
	"fmt"

	"fleetops/internal/api"
	"fleetops/internal/fleet"
	"fleetops/internal/logging"
	"fleetops/internal/nav"
)

func (a *Actor) perform(ctx context.Context, act Action) error {
	switch act.Kind {
	case KindNavigate:
		_, err := a.goTo(ctx, act.Destination)
		return err
	case KindMine:
		return a.mine(ctx, act)
	case KindSurvey:
		return a.survey(ctx, act)
	case KindRefuel:
		ship, err := a.goTo(ctx, act.Destination)
		if err != nil {
			return err
		}
		_, err = a.refuel(ctx, ship)
		return err
	case KindSellCargo:
		ship, err := a.goTo(ctx, act.Destination)
		if err != nil {
			return err
		}
		_, err = a.sellAll(ctx, ship, act.Materials, nil)
		return err
	case KindDeliverCargo:
		return a.deliver(ctx, act)
	case KindDock:
		ship, err := a.current(ctx)
		if err != nil {
			return err
		}
		_, err = a.ensureDocked(ctx, ship)
		return err
	case KindOrbit:
		ship, err := a.current(ctx)
		if err != nil {
			return err
		}
		_, err = a.ensureOrbit(ctx, ship)
		return err
	case KindJettisonCargo:
		ship, err := a.current(ctx)
		if err != nil {
			return err
		}
		return a.jettisonAll(ctx, ship, act.Materials)
	case KindSmartSellOrJettison:
		return a.sellOrJettison(ctx, act)
	case KindExplore:
		return a.explore(ctx, act)
	}
	return fmt.Errorf("unsupported action %s", act.Kind)
}

// current returns the ship, refreshed if the cached copy is stale, after any
// flight in progress has landed.
func (a *Actor) current(ctx context.Context) (fleet.Ship, error) {
	ship, err := a.deps.Ships.Fresh(ctx, a.symbol, a.deps.API.Ship)
	if err != nil {
		return fleet.Ship{}, err
	}
	if d := ship.ArrivesIn(a.deps.Now()); d > 0 {
		logging.FromContext(ctx).Info("waiting for arrival", "at", ship.Location(), "for", d)
		if err := a.deps.Sleep(ctx, d); err != nil {
			return fleet.Ship{}, err
		}
		if err := a.deps.Ships.MarkStale(a.symbol); err != nil {
			return fleet.Ship{}, err
		}
		return a.deps.Ships.Fresh(ctx, a.symbol, a.deps.API.Ship)
	}
	return ship, nil
}

func (a *Actor) apply(ship *fleet.Ship, mutate func(*fleet.Ship)) error {
	mutate(ship)
	return a.deps.Ships.Apply(a.symbol, mutate)
}

func (a *Actor) ensureOrbit(ctx context.Context, ship fleet.Ship) (fleet.Ship, error) {
	if ship.Nav.Status == fleet.StatusInOrbit {
		return ship, nil
	}
	n, err := a.deps.API.Orbit(ctx, a.symbol)
	if err != nil {
		return ship, err
	}
	return ship, a.apply(&ship, func(s *fleet.Ship) { s.Nav = n })
}

func (a *Actor) ensureDocked(ctx context.Context, ship fleet.Ship) (fleet.Ship, error) {
	if ship.Nav.Status == fleet.StatusDocked {
		return ship, nil
	}
	n, err := a.deps.API.Dock(ctx, a.symbol)
	if err != nil {
		return ship, err
	}
	return ship, a.apply(&ship, func(s *fleet.Ship) { s.Nav = n })
}

func (a *Actor) refuel(ctx context.Context, ship fleet.Ship) (fleet.Ship, error) {
	if ship.Fuel.Capacity == 0 || ship.Fuel.Current >= ship.Fuel.Capacity {
		return ship, nil
	}
	ship, err := a.ensureDocked(ctx, ship)
	if err != nil {
		return ship, err
	}
	res, err := a.deps.API.Refuel(ctx, a.symbol)
	if err != nil {
		return ship, err
	}
	return ship, a.apply(&ship, func(s *fleet.Ship) { s.Fuel = res.Fuel })
}

func (a *Actor) knownWaypoints(ctx context.Context, system string) []fleet.Waypoint {
	if a.deps.Waypoints == nil {
		return nil
	}
	if known := a.deps.Waypoints.Known(system); len(known) > 0 {
		return known
	}
	known, err := a.deps.Waypoints.GetOrFetch(ctx, system, func(ctx context.Context) ([]fleet.Waypoint, error) {
		return a.deps.API.ListWaypoints(ctx, system)
	})
	if err != nil {
		logging.FromContext(ctx).Warn("waypoint scan failed", "system", system, "err", err)
	}
	return known
}

// goTo brings the ship to dest, refuelling on the way when the planner asks
// for it. An empty dest means stay put.
func (a *Actor) goTo(ctx context.Context, dest string) (fleet.Ship, error) {
	ship, err := a.current(ctx)
	if err != nil {
		return ship, err
	}
	if dest == "" || ship.Nav.WaypointSymbol == dest {
		return ship, nil
	}
	known := a.knownWaypoints(ctx, ship.Nav.SystemSymbol)
	from, okFrom := nav.Lookup(ship.Nav.WaypointSymbol, known)
	to, okTo := nav.Lookup(dest, known)
	if !okFrom || !okTo {
		// no map of the route, let the server judge it
		return a.fly(ctx, ship, dest)
	}
	plan := a.deps.Planner.Plan(nav.Input{
		From:         from,
		To:           to,
		Fuel:         ship.Fuel.Current,
		FuelCapacity: ship.Fuel.Capacity,
		Known:        known,
	})
	log := logging.FromContext(ctx)
	switch plan.Verdict {
	case nav.RefuelFirst:
		log.Info("refuelling before departure", "to", dest, "cost", plan.FuelCost)
		if ship, err = a.refuel(ctx, ship); err != nil {
			return ship, err
		}
	case nav.RefuelStop:
		log.Info("routing through fuel stop", "to", dest, "stop", plan.Stop.Symbol)
		if ship, err = a.fly(ctx, ship, plan.Stop.Symbol); err != nil {
			return ship, err
		}
		if ship, err = a.refuel(ctx, ship); err != nil {
			return ship, err
		}
	case nav.Infeasible:
		return ship, fmt.Errorf("%w: %s", nav.ErrInsufficientFuel, plan.Reason)
	}
	if ship.Nav.WaypointSymbol == dest {
		return ship, nil
	}
	return a.fly(ctx, ship, dest)
}

// fly makes one hop and returns once the ship has arrived.
func (a *Actor) fly(ctx context.Context, ship fleet.Ship, dest string) (fleet.Ship, error) {
	ship, err := a.ensureOrbit(ctx, ship)
	if err != nil {
		return ship, err
	}
	res, err := a.deps.API.Navigate(ctx, a.symbol, dest)
	if err != nil {
		return ship, err
	}
	if err := a.apply(&ship, func(s *fleet.Ship) { s.Nav, s.Fuel = res.Nav, res.Fuel }); err != nil {
		return ship, err
	}
	if err := a.deps.Sleep(ctx, res.Nav.Route.Arrival.Sub(a.deps.Now())); err != nil {
		return ship, err
	}
	err = a.apply(&ship, func(s *fleet.Ship) {
		s.Nav.Status = fleet.StatusInOrbit
		s.Nav.WaypointSymbol = dest
	})
	return ship, err
}

func (a *Actor) startCooldown(cd fleet.Cooldown) error {
	if d := cd.Remaining(); d > 0 {
		return a.deps.Cooldowns.Set(a.symbol, d)
	}
	return nil
}

func (a *Actor) mine(ctx context.Context, act Action) error {
	ship, err := a.goTo(ctx, act.Destination)
	if err != nil {
		return err
	}
	if ship, err = a.ensureOrbit(ctx, ship); err != nil {
		return err
	}
	site := ship.Nav.WaypointSymbol
	var survey *fleet.Survey
	if a.deps.Surveys != nil {
		if s, ok := a.deps.Surveys.Best(site, act.Materials); ok {
			survey = &s
		}
	}
	res, err := a.deps.API.Extract(ctx, a.symbol, survey)
	if err != nil && survey != nil && api.IsSurveyGone(err) {
		logging.FromContext(ctx).Info("survey rejected, mining without it", "signature", survey.Signature)
		if derr := a.deps.Surveys.Discard(site, survey.Signature); derr != nil {
			return derr
		}
		res, err = a.deps.API.Extract(ctx, a.symbol, nil)
	}
	if err != nil {
		return err
	}
	logging.FromContext(ctx).Info("extracted", "good", res.Extraction.Yield.Symbol, "units", res.Extraction.Yield.Units)
	if err := a.apply(&ship, func(s *fleet.Ship) { s.Cargo = res.Cargo }); err != nil {
		return err
	}
	return a.startCooldown(res.Cooldown)
}

func (a *Actor) survey(ctx context.Context, act Action) error {
	ship, err := a.goTo(ctx, act.Destination)
	if err != nil {
		return err
	}
	if ship, err = a.ensureOrbit(ctx, ship); err != nil {
		return err
	}
	res, err := a.deps.API.CreateSurvey(ctx, a.symbol)
	if err != nil {
		return err
	}
	if a.deps.Surveys != nil {
		if err := a.deps.Surveys.Add(ship.Nav.WaypointSymbol, res.Surveys); err != nil {
			return err
		}
	}
	return a.startCooldown(res.Cooldown)
}

func (a *Actor) deliver(ctx context.Context, act Action) error {
	ship, err := a.goTo(ctx, act.Destination)
	if err != nil {
		return err
	}
	units := ship.Cargo.Holding(act.TradeSymbol)
	if act.Units > 0 && act.Units < units {
		units = act.Units
	}
	if units == 0 {
		return fmt.Errorf("no %s in hold", act.TradeSymbol)
	}
	if ship, err = a.ensureDocked(ctx, ship); err != nil {
		return err
	}
	res, err := a.deps.API.Deliver(ctx, act.ContractID, a.symbol, act.TradeSymbol, units)
	if err != nil {
		return err
	}
	logging.FromContext(ctx).Info("delivered", "good", act.TradeSymbol, "units", units, "contract", act.ContractID)
	return a.apply(&ship, func(s *fleet.Ship) { s.Cargo = res.Cargo })
}

func keeps(keep []string, symbol string) bool {
	for _, k := range keep {
		if k == symbol {
			return true
		}
	}
	return false
}

// sellAll docks and sells every good not in keep that buys accepts. A nil
// buys sells everything.
func (a *Actor) sellAll(ctx context.Context, ship fleet.Ship, keep []string, buys func(string) bool) (fleet.Ship, error) {
	ship, err := a.ensureDocked(ctx, ship)
	if err != nil {
		return ship, err
	}
	for _, it := range append([]fleet.CargoItem(nil), ship.Cargo.Inventory...) {
		if it.Units == 0 || keeps(keep, it.Symbol) || (buys != nil && !buys(it.Symbol)) {
			continue
		}
		res, err := a.deps.API.Sell(ctx, a.symbol, it.Symbol, it.Units)
		if err != nil {
			return ship, err
		}
		logging.FromContext(ctx).Info("sold", "good", it.Symbol, "units", it.Units, "credits", res.Transaction.TotalPrice)
		if err := a.apply(&ship, func(s *fleet.Ship) { s.Cargo = res.Cargo }); err != nil {
			return ship, err
		}
	}
	return ship, nil
}

func (a *Actor) jettisonAll(ctx context.Context, ship fleet.Ship, keep []string) error {
	for _, it := range append([]fleet.CargoItem(nil), ship.Cargo.Inventory...) {
		if it.Units == 0 || keeps(keep, it.Symbol) {
			continue
		}
		cargo, err := a.deps.API.Jettison(ctx, a.symbol, it.Symbol, it.Units)
		if err != nil {
			return err
		}
		logging.FromContext(ctx).Info("jettisoned", "good", it.Symbol, "units", it.Units)
		if err := a.apply(&ship, func(s *fleet.Ship) { s.Cargo = cargo }); err != nil {
			return err
		}
	}
	return nil
}

func (a *Actor) sellOrJettison(ctx context.Context, act Action) error {
	ship, err := a.goTo(ctx, act.Destination)
	if err != nil {
		return err
	}
	market, err := a.deps.API.Market(ctx, ship.Nav.WaypointSymbol)
	if err != nil {
		return err
	}
	if ship, err = a.sellAll(ctx, ship, act.Materials, market.Buys); err != nil {
		return err
	}
	if ship, err = a.ensureOrbit(ctx, ship); err != nil {
		return err
	}
	return a.jettisonAll(ctx, ship, act.Materials)
}

func (a *Actor) explore(ctx context.Context, act Action) error {
	systems := act.Systems
	if len(systems) == 0 {
		ship, err := a.current(ctx)
		if err != nil {
			return err
		}
		systems = []string{ship.Nav.SystemSymbol}
	}
	for _, sys := range systems {
		wps, err := a.deps.Waypoints.GetOrFetch(ctx, sys, func(ctx context.Context) ([]fleet.Waypoint, error) {
			return a.deps.API.ListWaypoints(ctx, sys)
		})
		if err != nil {
			return fmt.Errorf("explore %s: %w", sys, err)
		}
		logging.FromContext(ctx).Info("system mapped", "system", sys, "waypoints", len(wps))
	}
	return nil
}

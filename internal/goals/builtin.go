package goals

import (
	"context"
	"fmt"

	"fleetops/internal/coordinator"
	"fleetops/internal/fleet"
	"fleetops/internal/logging"
)

// Contracts looks up and settles procurement contracts.
type Contracts interface {
	Contract(ctx context.Context, id string) (fleet.Contract, error)
	AcceptContract(ctx context.Context, id string) (fleet.Contract, error)
	FulfillContract(ctx context.Context, id string) (fleet.Contract, error)
}

// Charts reports whether a system's waypoint map is current.
type Charts interface {
	Fresh(system string) bool
}

// Env is what the built-in goals bind their hooks to.
type Env struct {
	Fleet     Fleet
	Contracts Contracts
	Charts    Charts
}

// requireFleet validates that some unit can serve the goal and that at
// least one such unit is not already committed to another goal.
func requireFleet(id string, caps ...fleet.Capability) func(context.Context, coordinator.Snapshot) error {
	return func(_ context.Context, snap coordinator.Snapshot) error {
		if !snap.Discovered() {
			return fmt.Errorf("%w: fleet not discovered yet", ErrRetryLater)
		}
		capable, free := 0, 0
		for _, u := range snap.Units {
			ok := false
			for _, c := range caps {
				if u.Metrics.Capabilities.Has(c) {
					ok = true
				}
			}
			if !ok {
				continue
			}
			capable++
			if u.Goal == "" || u.Goal == id {
				free++
			}
		}
		switch {
		case capable == 0:
			return fmt.Errorf("no ships with capability %s", caps[0])
		case free == 0:
			return fmt.Errorf("%w: all capable ships busy", ErrRetryLater)
		}
		return nil
	}
}

func engagement(g *Goal, kind coordinator.GoalKind) coordinator.Engagement {
	r := g.requirement()
	return coordinator.Engagement{
		Goal:        g.ID,
		Priority:    int(g.Priority),
		Kind:        kind,
		Capability:  r.Capability,
		Target:      r.Target,
		Systems:     r.Systems,
		Materials:   r.Materials,
		ContractID:  r.ContractID,
		Destination: r.Destination,
		Remaining:   r.Units,
	}
}

// bind fills the hooks every built-in shares. Engagements are built when
// the hook runs so they carry the id assigned at submission.
func bind(g *Goal, env Env, kind coordinator.GoalKind, caps ...fleet.Capability) {
	engage := func(ctx context.Context) error {
		return env.Fleet.Engage(ctx, engagement(g, kind))
	}
	release := func(ctx context.Context) error {
		return env.Fleet.Release(ctx, g.ID)
	}
	g.Hooks.Validate = func(ctx context.Context, snap coordinator.Snapshot) error {
		return requireFleet(g.ID, caps...)(ctx, snap)
	}
	g.Hooks.Execute = engage
	g.Hooks.Pause = release
	g.Hooks.Resume = engage
	g.Hooks.Cancel = release
}

// NewMining mines materials at target. With a contract id the goal accepts
// the contract if needed, tracks its outstanding deliveries, delivers to its
// destination and completes once the contract is fulfilled; without one it
// mines until cancelled.
func NewMining(env Env, description string, p Priority, target string, materials []string, contractID string) *Goal {
	g := &Goal{
		Description: description,
		Priority:    p,
		Requirement: Requirement{
			Kind:       KindMining,
			Capability: fleet.Mining,
			Target:     target,
			Materials:  materials,
			ContractID: contractID,
		},
	}
	bind(g, env, coordinator.GoalMining, fleet.Mining, fleet.Surveying)
	if contractID == "" || env.Contracts == nil {
		return g
	}

	// track pulls the outstanding delivery into the requirement and reports
	// whether it changed.
	track := func(c fleet.Contract) bool {
		r := g.requirement()
		before := r.Units
		for _, d := range c.Terms.Deliver {
			if d.Remaining() == 0 {
				continue
			}
			if len(materials) == 0 || contains(materials, d.TradeSymbol) {
				r.Materials = []string{d.TradeSymbol}
				r.Destination = d.DestinationSymbol
				r.Units = d.Remaining()
				break
			}
		}
		g.setRequirement(r)
		return r.Units != before
	}
	fetch := func(ctx context.Context) (fleet.Contract, error) {
		c, err := env.Contracts.Contract(ctx, contractID)
		if err != nil {
			return c, fmt.Errorf("contract %s: %w", contractID, err)
		}
		return c, nil
	}

	g.Hooks.Execute = func(ctx context.Context) error {
		c, err := fetch(ctx)
		if err != nil {
			return err
		}
		if !c.Accepted {
			if c, err = env.Contracts.AcceptContract(ctx, contractID); err != nil {
				return fmt.Errorf("accept contract %s: %w", contractID, err)
			}
			logging.FromContext(ctx).Info("contract accepted", "goal", g.ID, "contract", contractID)
		}
		track(c)
		return env.Fleet.Engage(ctx, engagement(g, coordinator.GoalMining))
	}
	g.Hooks.Resume = g.Hooks.Execute
	g.Hooks.Progress = func(ctx context.Context) (bool, error) {
		c, err := fetch(ctx)
		if err != nil {
			return false, err
		}
		if c.Fulfilled {
			return true, nil
		}
		if c.Delivered() {
			if _, err := env.Contracts.FulfillContract(ctx, contractID); err != nil {
				return false, fmt.Errorf("fulfill contract %s: %w", contractID, err)
			}
			logging.FromContext(ctx).Info("contract fulfilled", "goal", g.ID, "contract", contractID)
			return true, nil
		}
		if track(c) {
			// re-engaging replaces the coordinator's copy
			return false, env.Fleet.Engage(ctx, engagement(g, coordinator.GoalMining))
		}
		return false, nil
	}
	return g
}

// NewExplore charts systems. It completes once every system has a current
// waypoint map.
func NewExplore(env Env, description string, p Priority, systems []string) *Goal {
	g := &Goal{
		Description: description,
		Priority:    p,
		Requirement: Requirement{Kind: KindExplore, Capability: fleet.Scanning, Systems: systems},
	}
	bind(g, env, coordinator.GoalExplore, fleet.Scanning)
	if env.Charts != nil {
		g.Hooks.Progress = func(context.Context) (bool, error) {
			for _, sys := range systems {
				if !env.Charts.Fresh(sys) {
					return false, nil
				}
			}
			return true, nil
		}
	}
	return g
}

// NewSell empties trading holds at market, or the nearest marketplace when
// market is empty. It completes when no trading unit carries cargo.
func NewSell(env Env, description string, p Priority, market string) *Goal {
	g := &Goal{
		Description: description,
		Priority:    p,
		Requirement: Requirement{Kind: KindSell, Capability: fleet.Trading, Target: market},
	}
	bind(g, env, coordinator.GoalSell, fleet.Trading)
	g.Hooks.Progress = func(context.Context) (bool, error) {
		snap := env.Fleet.Snapshot()
		for _, u := range snap.Units {
			if u.Metrics.Capabilities.Has(fleet.Trading) && u.Cargo.Units > 0 {
				return false, nil
			}
		}
		return true, nil
	}
	return g
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

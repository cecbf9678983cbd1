// Package coordinator owns the fleet's unit table. Each tick it folds in
// actor status reports and goal engagements, refreshes ship state, scores
// idle ships and hands each one the next action by a fixed precedence.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"fleetops/internal/actor"
	"fleetops/internal/config"
	"fleetops/internal/fleet"
	"fleetops/internal/history"
	"fleetops/internal/logging"
	"fleetops/internal/store"
)

// API is the fleet listing the coordinator needs upstream.
type API interface {
	ListShips(ctx context.Context) ([]fleet.Ship, error)
	Ship(ctx context.Context, symbol string) (fleet.Ship, error)
}

// Worker is a per-ship executor. *actor.Actor implements it.
type Worker interface {
	Enqueue(actor.Action) bool
	Close()
	Run(ctx context.Context)
}

// WorkerFactory builds the worker of a newly discovered ship.
type WorkerFactory func(symbol string, status actor.Reporter) Worker

// ActorWorkers returns a factory that runs a real actor per ship.
func ActorWorkers(deps actor.Deps, buffer int) WorkerFactory {
	return func(symbol string, status actor.Reporter) Worker {
		return actor.New(symbol, deps, status, buffer)
	}
}

// Recorder stores action outcomes.
type Recorder interface {
	RecordAction(ctx context.Context, e history.ActionEvent) error
}

// Deps are the coordinator's collaborators.
type Deps struct {
	API       API
	Ships     *store.ShipStore
	Cooldowns *store.CooldownStore
	Waypoints *store.WaypointCache
	Surveys   *store.SurveyCache
	Workers   WorkerFactory
	History   Recorder
	Now       func() time.Time
}

type unit struct {
	symbol     string
	worker     Worker
	state      actor.State
	seq        uint64
	dispatched bool
	task       string
	goal       string
	lastErr    string
	metrics    Metrics
}

func (u *unit) idle() bool {
	return u.state == actor.Idle && !u.dispatched
}

// Coordinator assigns work to the fleet. Tick must only be called from one
// goroutine; Engage, Release and Snapshot are safe from any.
type Coordinator struct {
	cfg  config.Coordinator
	deps Deps

	board *actor.Board
	goals chan goalMsg

	units       map[string]*unit
	engagements []*Engagement
	engageSeq   uint64
	ticks       int

	snap atomic.Pointer[Snapshot]
	wg   sync.WaitGroup
}

// New creates a coordinator with no units; the first tick discovers them.
func New(deps Deps, cfg config.Coordinator) *Coordinator {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	buf := cfg.EngageBuffer
	if buf < 1 {
		buf = 64
	}
	if cfg.DiscoverEvery < 1 {
		cfg.DiscoverEvery = 1
	}
	return &Coordinator{
		cfg:   cfg,
		deps:  deps,
		board: actor.NewBoard(),
		goals: make(chan goalMsg, buf),
		units: make(map[string]*unit),
	}
}

// Engage makes e active. It takes effect on the next tick.
func (c *Coordinator) Engage(ctx context.Context, e Engagement) error {
	select {
	case c.goals <- goalMsg{engage: &e}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Release withdraws the goal id. It takes effect on the next tick.
func (c *Coordinator) Release(ctx context.Context, id string) error {
	select {
	case c.goals <- goalMsg{release: id}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run ticks until ctx is done, then stops every worker and waits for them.
func (c *Coordinator) Run(ctx context.Context) error {
	ctx = logging.With(ctx, "component", "coordinator")
	log := logging.FromContext(ctx)
	log.Info("coordinator starting", "tick", c.cfg.Tick.Duration, "discover_every", c.cfg.DiscoverEvery)
	defer c.stopAll()

	ticker := time.NewTicker(c.cfg.Tick.Duration)
	defer ticker.Stop()
	for {
		if err := c.Tick(ctx); err != nil {
			log.Warn("tick incomplete", "err", err)
		}
		select {
		case <-ctx.Done():
			log.Info("coordinator stopping")
			return nil
		case <-ticker.C:
		}
	}
}

// Tick performs one coordination pass. Workers of newly found ships run
// under ctx. The returned error reports a failed refresh; assignment still
// happens from cached state.
func (c *Coordinator) Tick(ctx context.Context) error {
	c.drainStatus(ctx)
	c.drainGoals()
	err := c.refresh(ctx)
	c.assign(ctx)
	c.publish()
	c.ticks++
	return err
}

func (c *Coordinator) drainStatus(ctx context.Context) {
	for _, s := range c.board.Drain() {
		c.observe(ctx, s)
	}
}

func (c *Coordinator) drainGoals() {
	for {
		select {
		case m := <-c.goals:
			c.applyGoal(m)
		default:
			return
		}
	}
}

func (c *Coordinator) observe(ctx context.Context, s actor.Status) {
	u, ok := c.units[s.Ship]
	if !ok || s.Seq <= u.seq {
		return
	}
	prev := u.state
	u.seq, u.state = s.Seq, s.State
	switch s.State {
	case actor.Working:
		u.dispatched = false
	case actor.Error:
		u.dispatched = false
		if s.Err != nil {
			u.lastErr = s.Err.Error()
		}
		c.record(ctx, s, "failed")
	case actor.Idle:
		if s.Action.Kind == actor.KindNone {
			return
		}
		u.dispatched = false
		if prev != actor.Error {
			u.lastErr = ""
			c.record(ctx, s, "done")
		}
	}
}

func (c *Coordinator) record(ctx context.Context, s actor.Status, outcome string) {
	if c.deps.History == nil || s.Action.Kind == actor.KindNone {
		return
	}
	ev := history.ActionEvent{
		Ship:    s.Ship,
		Action:  s.Action.String(),
		Goal:    s.Action.Goal,
		Outcome: outcome,
		At:      s.At,
	}
	if s.Err != nil {
		ev.Error = s.Err.Error()
	}
	if err := c.deps.History.RecordAction(ctx, ev); err != nil {
		logging.FromContext(ctx).Warn("record action", "ship", s.Ship, "err", err)
	}
}

func (c *Coordinator) refresh(ctx context.Context) error {
	if c.ticks%c.cfg.DiscoverEvery == 0 {
		return c.discover(ctx)
	}
	var errs []error
	for _, id := range c.deps.Ships.Stale() {
		u, ok := c.units[id]
		if !ok || !u.idle() {
			continue
		}
		if _, err := c.deps.Ships.Fresh(ctx, id, c.deps.API.Ship); err != nil {
			errs = append(errs, fmt.Errorf("refresh %s: %w", id, err))
		}
	}
	return errors.Join(errs...)
}

func (c *Coordinator) discover(ctx context.Context) error {
	log := logging.FromContext(ctx)
	ships, err := c.deps.API.ListShips(ctx)
	if err != nil {
		return fmt.Errorf("list ships: %w", err)
	}
	if err := c.deps.Ships.UpdateManyFromAPI(ships); err != nil {
		return err
	}
	seen := make(map[string]bool, len(ships))
	for _, s := range ships {
		seen[s.Symbol] = true
		if _, ok := c.units[s.Symbol]; !ok {
			c.spawn(ctx, s.Symbol)
			log.Info("ship joined", "ship", s.Symbol, "capabilities", fleet.CapabilitiesOf(s).String())
		}
	}
	for sym, u := range c.units {
		if seen[sym] {
			continue
		}
		u.worker.Close()
		delete(c.units, sym)
		c.board.Forget(sym)
		if err := c.deps.Ships.Remove(sym); err != nil {
			log.Warn("forget ship", "ship", sym, "err", err)
		}
		log.Info("ship left", "ship", sym)
	}
	return nil
}

func (c *Coordinator) spawn(ctx context.Context, symbol string) {
	w := c.deps.Workers(symbol, c.board)
	// actors start idle; their first report only confirms it
	c.units[symbol] = &unit{symbol: symbol, worker: w, state: actor.Idle}
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		w.Run(ctx)
	}()
}

func (c *Coordinator) stopAll() {
	for _, u := range c.units {
		u.worker.Close()
	}
	c.wg.Wait()
}

type candidate struct {
	u    *unit
	ship fleet.Ship
	e    *Engagement
}

func (c *Coordinator) assign(ctx context.Context) {
	log := logging.FromContext(ctx)
	maxIncome := 0.0
	var all []candidate
	for _, u := range c.units {
		rec, ok := c.deps.Ships.Get(u.symbol)
		if !ok {
			continue
		}
		if inc := Income(rec.Ship); inc > maxIncome {
			maxIncome = inc
		}
		all = append(all, candidate{u: u, ship: rec.Ship})
	}

	var idle []candidate
	for _, cand := range all {
		cand.e = c.serving(cand.ship)
		cand.u.metrics = scoreFor(cand.ship, cand.e, maxIncome)
		if !cand.u.idle() {
			continue
		}
		if _, cooling := c.deps.Cooldowns.Remaining(cand.u.symbol); cooling {
			continue
		}
		idle = append(idle, cand)
	}
	sort.Slice(idle, func(i, j int) bool {
		wi, wj := idle[i].u.metrics.Weight, idle[j].u.metrics.Weight
		if wi != wj {
			return wi > wj
		}
		return idle[i].u.symbol < idle[j].u.symbol
	})

	for _, cand := range idle {
		u := cand.u
		act, task := c.decide(cand.ship, cand.e, u.metrics)
		u.task = task
		u.goal = act.Goal
		if act.Kind == actor.KindNone {
			continue
		}
		if !u.worker.Enqueue(act) {
			log.Warn("worker queue full", "ship", u.symbol, "action", act.String())
			continue
		}
		u.dispatched = true
		if err := c.deps.Ships.MarkAction(u.symbol, act.String()); err != nil {
			log.Warn("mark action", "ship", u.symbol, "err", err)
		}
		log.Info("dispatched", "ship", u.symbol, "action", act.String(), "goal", act.Goal, "weight", u.metrics.Weight)
	}
}

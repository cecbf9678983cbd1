package coordinator

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fleetops/internal/actor"
	"fleetops/internal/config"
	"fleetops/internal/fleet"
	"fleetops/internal/history"
	"fleetops/internal/store"
)

type fakeWorker struct {
	mu      sync.Mutex
	actions []actor.Action
	closed  bool
	done    chan struct{}
	once    sync.Once
	ship    string

	// set when the worker reports each action as started and finished
	status actor.Reporter
	seq    uint64
}

func (w *fakeWorker) Enqueue(a actor.Action) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.actions = append(w.actions, a)
	if w.status != nil {
		for _, st := range []actor.State{actor.Working, actor.Idle} {
			w.seq++
			w.status.Report(actor.Status{Ship: w.ship, State: st, Action: a, Seq: w.seq})
		}
	}
	return true
}

func (w *fakeWorker) Close() {
	w.once.Do(func() {
		w.mu.Lock()
		w.closed = true
		w.mu.Unlock()
		close(w.done)
	})
}

func (w *fakeWorker) Run(ctx context.Context) {
	select {
	case <-ctx.Done():
	case <-w.done:
	}
}

func (w *fakeWorker) sent() []actor.Action {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]actor.Action(nil), w.actions...)
}

type fakeFleet struct {
	mu       sync.Mutex
	ships    []fleet.Ship
	listings int
	workers  map[string]*fakeWorker
	reports  bool
}

func (f *fakeFleet) ListShips(context.Context) ([]fleet.Ship, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listings++
	return append([]fleet.Ship(nil), f.ships...), nil
}

func (f *fakeFleet) Ship(_ context.Context, symbol string) (fleet.Ship, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, s := range f.ships {
		if s.Symbol == symbol {
			return s, nil
		}
	}
	return fleet.Ship{}, errors.New("not found")
}

func (f *fakeFleet) factory(symbol string, status actor.Reporter) Worker {
	f.mu.Lock()
	defer f.mu.Unlock()
	w := &fakeWorker{ship: symbol, done: make(chan struct{})}
	if f.reports {
		w.status = status
	}
	f.workers[symbol] = w
	return w
}

func (f *fakeFleet) worker(symbol string) *fakeWorker {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.workers[symbol]
}

type fakeRecorder struct {
	mu     sync.Mutex
	events []history.ActionEvent
}

func (r *fakeRecorder) RecordAction(_ context.Context, e history.ActionEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func systemMap() []fleet.Waypoint {
	return []fleet.Waypoint{
		{Symbol: "X1-A-HOME", SystemSymbol: "X1-A", X: 0, Y: 0, Traits: []fleet.Trait{{Symbol: "MARKETPLACE"}}},
		{Symbol: "X1-A-ROCK", SystemSymbol: "X1-A", Type: "ENGINEERED_ASTEROID", X: 20, Y: 0},
		{Symbol: "X1-A-ROCK2", SystemSymbol: "X1-A", Type: "ASTEROID", X: 30, Y: 0},
		{Symbol: "X1-A-HQ", SystemSymbol: "X1-A", X: -10, Y: 0},
	}
}

func at(s fleet.Ship, waypoint string) fleet.Ship {
	s.Nav = fleet.Nav{SystemSymbol: "X1-A", WaypointSymbol: waypoint, Status: fleet.StatusInOrbit}
	return s
}

func miner(symbol string) fleet.Ship {
	return at(fleet.Ship{
		Symbol: symbol,
		Frame:  fleet.Frame{Symbol: "FRAME_MINER"},
		Fuel:   fleet.Fuel{Current: 400, Capacity: 400},
		Cargo:  fleet.Cargo{Capacity: 40},
		Mounts: []fleet.Mount{{Symbol: "MOUNT_MINING_LASER_I", Strength: 10}},
	}, "X1-A-ROCK")
}

func hauler(symbol string) fleet.Ship {
	return at(fleet.Ship{
		Symbol: symbol,
		Frame:  fleet.Frame{Symbol: "FRAME_LIGHT_FREIGHTER"},
		Fuel:   fleet.Fuel{Current: 400, Capacity: 400},
		Cargo:  fleet.Cargo{Capacity: 60},
	}, "X1-A-HOME")
}

func probe(symbol string) fleet.Ship {
	return at(fleet.Ship{
		Symbol:       symbol,
		Registration: fleet.Registration{Role: "SATELLITE"},
		Frame:        fleet.Frame{Symbol: "FRAME_PROBE"},
	}, "X1-A-HOME")
}

func surveyor(symbol string) fleet.Ship {
	return at(fleet.Ship{
		Symbol: symbol,
		Frame:  fleet.Frame{Symbol: "FRAME_FRIGATE"},
		Fuel:   fleet.Fuel{Current: 300, Capacity: 300},
		Cargo:  fleet.Cargo{Capacity: 10},
		Mounts: []fleet.Mount{{Symbol: "MOUNT_SURVEYOR_I"}},
	}, "X1-A-ROCK")
}

type testEnv struct {
	c     *Coordinator
	fleet *fakeFleet
	deps  Deps
	rec   *fakeRecorder
}

func newEnv(t *testing.T, cfg config.Coordinator, ships ...fleet.Ship) *testEnv {
	t.Helper()
	dir := t.TempDir()
	ff := &fakeFleet{ships: ships, workers: map[string]*fakeWorker{}}
	shipStore, err := store.OpenShips(dir, time.Minute, time.Hour, nil)
	require.NoError(t, err)
	cooldowns, err := store.OpenCooldowns(dir, nil)
	require.NoError(t, err)
	waypoints, err := store.OpenWaypointCache(dir, time.Hour, nil)
	require.NoError(t, err)
	surveys, err := store.OpenSurveyCache(dir, time.Hour, nil)
	require.NoError(t, err)
	require.NoError(t, waypoints.Put("X1-A", systemMap(), time.Time{}))

	rec := &fakeRecorder{}
	deps := Deps{
		API:       ff,
		Ships:     shipStore,
		Cooldowns: cooldowns,
		Waypoints: waypoints,
		Surveys:   surveys,
		Workers:   ff.factory,
		History:   rec,
	}
	c := New(deps, cfg)
	t.Cleanup(c.stopAll)
	return &testEnv{c: c, fleet: ff, deps: deps, rec: rec}
}

func (e *testEnv) tick(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	require.NoError(t, e.c.Tick(ctx))
}

func (e *testEnv) engage(t *testing.T, g Engagement) {
	t.Helper()
	require.NoError(t, e.c.Engage(context.Background(), g))
}

func (e *testEnv) lastSent(t *testing.T, symbol string) actor.Action {
	t.Helper()
	w := e.fleet.worker(symbol)
	require.NotNil(t, w, "no worker for %s", symbol)
	sent := w.sent()
	require.NotEmpty(t, sent, "nothing sent to %s", symbol)
	return sent[len(sent)-1]
}

func view(t *testing.T, s Snapshot, symbol string) UnitView {
	t.Helper()
	for _, u := range s.Units {
		if u.Symbol == symbol {
			return u
		}
	}
	t.Fatalf("unit %s missing from snapshot", symbol)
	return UnitView{}
}

func miningGoal() Engagement {
	return Engagement{
		Goal:       "g-iron",
		Priority:   60,
		Kind:       GoalMining,
		Capability: fleet.Mining,
		Target:     "X1-A-ROCK",
		Materials:  []string{"IRON_ORE"},
		Remaining:  100,
	}
}

func TestMetricsFormulas(t *testing.T) {
	m := miner("M")
	g := miningGoal()

	assert.InDelta(t, 40.0/300.0, Contribution(m, &g), 1e-9)
	assert.InDelta(t, 10*40*(60.0/90.0)*50, Income(m), 1e-6)
	assert.InDelta(t, 0.4+0.5+0.2+0.4, Efficiency(m), 1e-9)

	h := hauler("H")
	assert.Zero(t, Contribution(h, &g))
	assert.Equal(t, 60.0*20, Income(h))
	sell := Engagement{Kind: GoalSell, Capability: fleet.Trading}
	assert.InDelta(t, 0.6, Contribution(h, &sell), 1e-9)

	p := probe("P")
	explore := Engagement{Kind: GoalExplore, Capability: fleet.Scanning}
	assert.InDelta(t, 0.1, Contribution(p, &explore), 1e-9)
	assert.Zero(t, Contribution(p, &sell))
	assert.Equal(t, 100.0, Income(p))

	w := Weight(0.5, 50, 100, 2.5)
	assert.InDelta(t, 0.6*0.5+0.25*0.5+0.15*0.5, w, 1e-9)
	assert.Zero(t, Contribution(m, nil))
}

func TestLowFuelRefuelBeatsFullCargo(t *testing.T) {
	m := miner("M")
	m.Fuel.Current = 40
	m.Cargo.Units = 40
	m.Cargo.Inventory = []fleet.CargoItem{{Symbol: "ICE_WATER", Units: 40}}
	env := newEnv(t, config.Default().Coordinator, m)
	env.engage(t, miningGoal())
	env.tick(t)

	got := env.lastSent(t, "M")
	assert.Equal(t, actor.KindRefuel, got.Kind)
	assert.Equal(t, "X1-A-HOME", got.Destination)
}

func TestDeliverWhenHoldingRemaining(t *testing.T) {
	m := miner("M")
	m.Cargo.Units = 30
	m.Cargo.Inventory = []fleet.CargoItem{{Symbol: "IRON_ORE", Units: 30}}
	env := newEnv(t, config.Default().Coordinator, m)
	g := miningGoal()
	g.ContractID = "C-1"
	g.Destination = "X1-A-HQ"
	g.Remaining = 25
	env.engage(t, g)
	env.tick(t)

	got := env.lastSent(t, "M")
	assert.Equal(t, actor.KindDeliverCargo, got.Kind)
	assert.Equal(t, "X1-A-HQ", got.Destination)
	assert.Equal(t, "IRON_ORE", got.TradeSymbol)
	assert.Equal(t, 25, got.Units)
	assert.Equal(t, "C-1", got.ContractID)
	assert.Equal(t, "g-iron", got.Goal)
}

func TestFullCargoSellsButKeepsContractGoods(t *testing.T) {
	m := miner("M")
	m.Cargo.Units = 36
	m.Cargo.Inventory = []fleet.CargoItem{{Symbol: "ICE_WATER", Units: 20}, {Symbol: "QUARTZ_SAND", Units: 16}}
	env := newEnv(t, config.Default().Coordinator, m)
	g := miningGoal()
	g.Destination = "X1-A-HQ"
	g.ContractID = "C-1"
	env.engage(t, g)
	env.tick(t)

	got := env.lastSent(t, "M")
	assert.Equal(t, actor.KindSmartSellOrJettison, got.Kind)
	assert.Equal(t, "X1-A-HOME", got.Destination)
	assert.Equal(t, []string{"IRON_ORE"}, got.Materials)
}

func TestPrimaryTaskOnlyWithActiveGoal(t *testing.T) {
	env := newEnv(t, config.Default().Coordinator, miner("M1"), miner("M2"), hauler("H"))
	env.tick(t)
	for _, sym := range []string{"M1", "M2", "H"} {
		assert.Empty(t, env.fleet.worker(sym).sent(), sym)
		assert.Equal(t, TaskSupport, view(t, env.c.Snapshot(), sym).Task)
	}

	env.engage(t, miningGoal())
	env.tick(t)
	for _, sym := range []string{"M1", "M2"} {
		got := env.lastSent(t, sym)
		assert.Equal(t, actor.KindMine, got.Kind)
		assert.Equal(t, "X1-A-ROCK", got.Destination)
		assert.Equal(t, "g-iron", got.Goal)
		assert.Equal(t, "g-iron", view(t, env.c.Snapshot(), sym).Goal)
	}
	assert.Empty(t, env.fleet.worker("H").sent())
	assert.Equal(t, []string{"g-iron"}, env.c.Snapshot().Goals)
}

func TestHigherPriorityGoalWins(t *testing.T) {
	env := newEnv(t, config.Default().Coordinator, miner("M"))
	low := miningGoal()
	low.Goal, low.Priority = "low", 40
	high := miningGoal()
	high.Goal, high.Priority, high.Target = "high", 80, "X1-A-ROCK2"
	env.engage(t, low)
	env.engage(t, high)
	env.tick(t)

	assert.Equal(t, "high", env.lastSent(t, "M").Goal)
	assert.Equal(t, []string{"high", "low"}, env.c.Snapshot().Goals)
}

func TestReleaseWithdrawsGoal(t *testing.T) {
	env := newEnv(t, config.Default().Coordinator, miner("M"))
	env.engage(t, miningGoal())
	require.NoError(t, env.c.Release(context.Background(), "g-iron"))
	env.tick(t)

	assert.Empty(t, env.fleet.worker("M").sent())
	assert.Empty(t, env.c.Snapshot().Goals)
}

func TestScoutExploresStaleSystemThenParks(t *testing.T) {
	p := probe("P")
	p.Nav.SystemSymbol = "X1-B"
	env := newEnv(t, config.Default().Coordinator, p)
	env.tick(t)
	got := env.lastSent(t, "P")
	assert.Equal(t, actor.KindExplore, got.Kind)
	assert.Equal(t, []string{"X1-B"}, got.Systems)

	require.NoError(t, env.deps.Waypoints.Put("X1-B", systemMap(), time.Time{}))
	env.c.board.Report(actor.Status{Ship: "P", State: actor.Idle, Action: got, Seq: 10})
	env.tick(t)
	assert.Len(t, env.fleet.worker("P").sent(), 1)
	assert.Equal(t, TaskParked, view(t, env.c.Snapshot(), "P").Task)
}

func TestSurveyorSurveysUnsurveyedTarget(t *testing.T) {
	env := newEnv(t, config.Default().Coordinator, surveyor("S"))
	env.engage(t, miningGoal())
	env.tick(t)

	got := env.lastSent(t, "S")
	assert.Equal(t, actor.KindSurvey, got.Kind)
	assert.Equal(t, "X1-A-ROCK", got.Destination)
}

func TestDispatchedUnitWaitsForCompletion(t *testing.T) {
	env := newEnv(t, config.Default().Coordinator, miner("M"))
	env.engage(t, miningGoal())
	env.tick(t)
	w := env.fleet.worker("M")
	require.Len(t, w.sent(), 1)
	act := w.sent()[0]

	env.tick(t)
	assert.Len(t, w.sent(), 1, "no new work before the actor reports")

	env.c.board.Report(actor.Status{Ship: "M", State: actor.Working, Action: act, Seq: 5})
	env.c.board.Report(actor.Status{Ship: "M", State: actor.Idle, Action: act, Seq: 3})
	env.tick(t)
	assert.Len(t, w.sent(), 1, "out of order report ignored")
	assert.Equal(t, "working", view(t, env.c.Snapshot(), "M").State)

	env.c.board.Report(actor.Status{Ship: "M", State: actor.Idle, Action: act, Seq: 6})
	env.tick(t)
	assert.Len(t, w.sent(), 2)
}

func TestUnitsKeepWorkingWhenReportsOutpaceTicks(t *testing.T) {
	cfg := config.Default().Coordinator
	cfg.EngageBuffer = 1
	env := newEnv(t, cfg, miner("M1"), miner("M2"))
	env.fleet.reports = true
	env.engage(t, miningGoal())

	const ticks = 6
	for i := 0; i < ticks; i++ {
		env.tick(t)
	}
	for _, sym := range []string{"M1", "M2"} {
		sent := env.fleet.worker(sym).sent()
		assert.Len(t, sent, ticks, sym)
		assert.Equal(t, "idle", view(t, env.c.Snapshot(), sym).State, sym)
	}

	env.rec.mu.Lock()
	defer env.rec.mu.Unlock()
	assert.Len(t, env.rec.events, 2*(ticks-1))
}

func TestCoolingUnitIsSkipped(t *testing.T) {
	env := newEnv(t, config.Default().Coordinator, miner("M"))
	require.NoError(t, env.deps.Cooldowns.Set("M", time.Minute))
	env.engage(t, miningGoal())
	env.tick(t)

	assert.Empty(t, env.fleet.worker("M").sent())
	assert.Greater(t, view(t, env.c.Snapshot(), "M").CooldownSeconds, 50.0)
}

func TestOutcomesAreRecorded(t *testing.T) {
	env := newEnv(t, config.Default().Coordinator, hauler("H"))
	env.tick(t)
	act := actor.Dock()
	boom := errors.New("boom")
	env.c.board.Report(actor.Status{Ship: "H", State: actor.Working, Action: act, Seq: 2})
	env.c.board.Report(actor.Status{Ship: "H", State: actor.Idle, Action: act, Seq: 3})
	env.c.board.Report(actor.Status{Ship: "H", State: actor.Working, Action: act, Seq: 4})
	env.c.board.Report(actor.Status{Ship: "H", State: actor.Error, Action: act, Err: boom, Seq: 5})
	env.c.board.Report(actor.Status{Ship: "H", State: actor.Idle, Action: act, Seq: 6})
	env.tick(t)

	env.rec.mu.Lock()
	defer env.rec.mu.Unlock()
	require.Len(t, env.rec.events, 2)
	assert.Equal(t, "done", env.rec.events[0].Outcome)
	assert.Equal(t, "failed", env.rec.events[1].Outcome)
	assert.Equal(t, "boom", env.rec.events[1].Error)
}

func TestDiscoveryFollowsUpstreamFleet(t *testing.T) {
	env := newEnv(t, config.Default().Coordinator, hauler("A"), hauler("B"))
	env.tick(t)
	assert.Len(t, env.c.Snapshot().Units, 2)

	env.fleet.mu.Lock()
	env.fleet.ships = env.fleet.ships[:1]
	env.fleet.mu.Unlock()
	env.tick(t)

	snap := env.c.Snapshot()
	require.Len(t, snap.Units, 1)
	assert.Equal(t, "A", snap.Units[0].Symbol)
	b := env.fleet.worker("B")
	b.mu.Lock()
	assert.True(t, b.closed)
	b.mu.Unlock()
	_, ok := env.deps.Ships.Get("B")
	assert.False(t, ok)
}

func TestDiscoverEveryNTicks(t *testing.T) {
	cfg := config.Default().Coordinator
	cfg.DiscoverEvery = 3
	env := newEnv(t, cfg, hauler("A"))
	for i := 0; i < 4; i++ {
		env.tick(t)
	}
	env.fleet.mu.Lock()
	defer env.fleet.mu.Unlock()
	assert.Equal(t, 2, env.fleet.listings)
}

func TestSnapshotBeforeFirstTick(t *testing.T) {
	env := newEnv(t, config.Default().Coordinator, hauler("A"))
	assert.False(t, env.c.Snapshot().Discovered())
	env.tick(t)
	snap := env.c.Snapshot()
	assert.True(t, snap.Discovered())
	u := view(t, snap, "A")
	assert.Equal(t, "X1-A-HOME", u.Location)
	assert.Equal(t, "IN_ORBIT", u.NavStatus)
	assert.True(t, u.Idle)
}

func TestRunStopsWorkersOnCancel(t *testing.T) {
	cfg := config.Default().Coordinator
	cfg.Tick = config.D(10 * time.Millisecond)
	env := newEnv(t, cfg, hauler("A"))
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- env.c.Run(ctx) }()

	require.Eventually(t, func() bool { return env.c.Snapshot().Discovered() }, time.Second, 5*time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("coordinator did not stop")
	}
}

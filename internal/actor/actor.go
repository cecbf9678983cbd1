package actor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"fleetops/internal/api"
	"fleetops/internal/fleet"
	"fleetops/internal/logging"
	"fleetops/internal/nav"
	"fleetops/internal/store"
)

// State is the actor's position in its state machine.
type State int

const (
	Idle State = iota
	Working
	OnCooldown
	Error
	Stopped
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Working:
		return "working"
	case OnCooldown:
		return "cooldown"
	case Error:
		return "error"
	default:
		return "stopped"
	}
}

// Status is one state change report. Seq grows by one per report of the
// same actor.
type Status struct {
	Ship          string
	State         State
	Action        Action
	Err           error
	CooldownUntil time.Time
	Seq           uint64
	At            time.Time
}

// API is the subset of the upstream client an actor drives.
type API interface {
	Ship(ctx context.Context, symbol string) (fleet.Ship, error)
	Orbit(ctx context.Context, symbol string) (fleet.Nav, error)
	Dock(ctx context.Context, symbol string) (fleet.Nav, error)
	Navigate(ctx context.Context, symbol, waypoint string) (api.NavigateResult, error)
	Refuel(ctx context.Context, symbol string) (api.RefuelResult, error)
	Extract(ctx context.Context, symbol string, survey *fleet.Survey) (api.ExtractResult, error)
	CreateSurvey(ctx context.Context, symbol string) (api.SurveyResult, error)
	Sell(ctx context.Context, symbol, good string, units int) (api.SellResult, error)
	Jettison(ctx context.Context, symbol, good string, units int) (fleet.Cargo, error)
	Deliver(ctx context.Context, contractID, ship, good string, units int) (api.DeliverResult, error)
	Market(ctx context.Context, waypoint string) (api.Market, error)
	ListWaypoints(ctx context.Context, system string) ([]fleet.Waypoint, error)
}

// Deps are the shared collaborators of every actor.
type Deps struct {
	API       API
	Cooldowns *store.CooldownStore
	Ships     *store.ShipStore
	Waypoints *store.WaypointCache
	Surveys   *store.SurveyCache
	Planner   nav.Planner
	Now       func() time.Time
	Sleep     func(context.Context, time.Duration) error
}

func (d *Deps) defaults() {
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.Sleep == nil {
		d.Sleep = sleepCtx
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Actor is the worker of one ship.
type Actor struct {
	symbol string
	deps   Deps
	inbox  chan Action
	status Reporter

	closeOnce sync.Once
	seq       uint64
	state     State
}

// New creates the actor for symbol. State changes go to status.
func New(symbol string, deps Deps, status Reporter, buffer int) *Actor {
	deps.defaults()
	if buffer < 1 {
		buffer = 1
	}
	return &Actor{
		symbol: symbol,
		deps:   deps,
		inbox:  make(chan Action, buffer),
		status: status,
		state:  -1,
	}
}

// Symbol returns the ship symbol.
func (a *Actor) Symbol() string { return a.symbol }

// Enqueue hands an action to the actor without blocking. It reports false
// when the inbound queue is full. Enqueue and Close must not race.
func (a *Actor) Enqueue(act Action) bool {
	select {
	case a.inbox <- act:
		return true
	default:
		return false
	}
}

// Close closes the inbound queue. The actor finishes queued work and exits.
func (a *Actor) Close() {
	a.closeOnce.Do(func() { close(a.inbox) })
}

func (a *Actor) emit(st State, act Action, err error) {
	a.state = st
	a.seq++
	s := Status{Ship: a.symbol, State: st, Action: act, Err: err, Seq: a.seq, At: a.deps.Now()}
	if st == OnCooldown {
		if left, ok := a.deps.Cooldowns.Remaining(a.symbol); ok {
			s.CooldownUntil = s.At.Add(left)
		}
	}
	a.status.Report(s)
}

// Run is the actor loop. It returns when ctx is done or the inbound queue is
// closed and drained.
func (a *Actor) Run(ctx context.Context) {
	ctx = logging.With(ctx, "ship", a.symbol)
	log := logging.FromContext(ctx)
	inbox := a.inbox
	var queue []Action

	defer a.emit(Stopped, Action{}, nil)
	a.emit(Idle, Action{}, nil)

	for {
		if inbox == nil && len(queue) == 0 {
			log.Debug("actor stopped")
			return
		}
		if left, ok := a.deps.Cooldowns.Remaining(a.symbol); ok {
			if a.state != OnCooldown {
				a.emit(OnCooldown, Action{}, nil)
			}
			timer := time.NewTimer(left)
			select {
			case <-ctx.Done():
				timer.Stop()
				return
			case act, ok := <-inbox:
				timer.Stop()
				if !ok {
					inbox = nil
					continue
				}
				// accepted now, started once the cooldown clears
				queue = append(queue, act)
				continue
			case <-timer.C:
			}
			if err := a.deps.Cooldowns.Clear(a.symbol); err != nil {
				log.Warn("clear cooldown", "err", err)
			}
			a.emit(Idle, Action{}, nil)
			continue
		}
		if len(queue) > 0 {
			act := queue[0]
			queue = queue[1:]
			a.execute(ctx, act)
			if ctx.Err() != nil {
				return
			}
			continue
		}
		select {
		case <-ctx.Done():
			return
		case act, ok := <-inbox:
			if !ok {
				inbox = nil
				continue
			}
			queue = append(queue, act)
		}
	}
}

func (a *Actor) execute(ctx context.Context, act Action) {
	log := logging.FromContext(ctx).With("action", act.String())
	a.emit(Working, act, nil)
	log.Info("action started")

	err := RetryOnce(ctx, func(ctx context.Context) error { return a.perform(ctx, act) }, api.Classify, a.wait)
	if err != nil {
		if w, ok := api.Classify(err); ok && w.Kind == api.WaitCooldown {
			_ = a.deps.Cooldowns.Set(a.symbol, w.Duration)
		}
		if !errors.Is(err, context.Canceled) {
			log.Warn("action failed", "err", err)
		}
		_ = a.deps.Ships.MarkStale(a.symbol)
		a.emit(Error, act, err)
		a.emit(Idle, act, nil)
		return
	}
	log.Info("action finished")
	a.emit(Idle, act, nil)
}

// wait sleeps out a retryable condition, persisting cooldowns first.
func (a *Actor) wait(ctx context.Context, w api.Wait) error {
	log := logging.FromContext(ctx)
	log.Info("waiting before retry", "reason", w.Kind.String(), "for", w.Duration)
	switch w.Kind {
	case api.WaitCooldown:
		if err := a.deps.Cooldowns.Set(a.symbol, w.Duration); err != nil {
			return fmt.Errorf("persist cooldown: %w", err)
		}
		if err := a.deps.Sleep(ctx, w.Duration); err != nil {
			return err
		}
		return a.deps.Cooldowns.Clear(a.symbol)
	case api.WaitTransit:
		if err := a.deps.Sleep(ctx, w.Duration); err != nil {
			return err
		}
		return a.deps.Ships.MarkStale(a.symbol)
	default:
		return a.deps.Sleep(ctx, w.Duration)
	}
}

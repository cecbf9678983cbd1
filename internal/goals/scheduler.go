package goals

import (
	"container/heap"
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"fleetops/internal/coordinator"
	"fleetops/internal/history"
	"fleetops/internal/logging"
)

// Fleet is the coordinator as the scheduler sees it.
type Fleet interface {
	Snapshot() coordinator.Snapshot
	Engage(ctx context.Context, e coordinator.Engagement) error
	Release(ctx context.Context, goalID string) error
}

// Recorder stores goal transitions.
type Recorder interface {
	RecordGoal(ctx context.Context, e history.GoalEvent) error
}

// Scheduler admits queued goals in priority order while fewer than
// maxActive are running.
type Scheduler struct {
	fleet     Fleet
	history   Recorder
	maxActive int
	interval  time.Duration
	now       func() time.Time

	// pass serialises passes with cancel, pause and resume so hooks never
	// run concurrently for the same goal.
	pass sync.Mutex

	mu        sync.Mutex
	queue     goalHeap
	active    []*Goal
	completed []*Goal
	failed    []*Goal
	cancelled []*Goal
	seq       uint64
	paused    bool
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithHistory records every transition in r.
func WithHistory(r Recorder) Option { return func(s *Scheduler) { s.history = r } }

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option { return func(s *Scheduler) { s.now = now } }

// NewScheduler creates a scheduler that admits up to maxActive goals and
// runs a pass every interval.
func NewScheduler(fleet Fleet, maxActive int, interval time.Duration, opts ...Option) *Scheduler {
	if maxActive < 1 {
		maxActive = 1
	}
	s := &Scheduler{
		fleet:     fleet,
		maxActive: maxActive,
		interval:  interval,
		now:       time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Submit queues g and returns its id. A goal without an id gets a random one.
func (s *Scheduler) Submit(ctx context.Context, g *Goal) string {
	s.mu.Lock()
	if g.ID == "" {
		g.ID = uuid.NewString()
	}
	s.seq++
	g.seq = s.seq
	g.status = Pending
	g.submitted = s.now()
	heap.Push(&s.queue, g)
	s.mu.Unlock()
	logging.FromContext(ctx).Info("goal queued", "goal", g.ID, "priority", g.Priority.String(), "description", g.Description)
	s.record(ctx, g)
	return g.ID
}

// Run performs a pass every interval until ctx is done.
func (s *Scheduler) Run(ctx context.Context) error {
	ctx = logging.With(ctx, "component", "scheduler")
	logging.FromContext(ctx).Info("scheduler starting", "interval", s.interval, "max_active", s.maxActive)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		s.Pass(ctx)
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// Pass settles finished active goals, then admits queued goals until the
// active set is full, the queue is empty, or a goal asks to retry later.
func (s *Scheduler) Pass(ctx context.Context) {
	s.pass.Lock()
	defer s.pass.Unlock()
	log := logging.FromContext(ctx)

	s.mu.Lock()
	active := append([]*Goal(nil), s.active...)
	paused := s.paused
	s.mu.Unlock()

	for _, g := range active {
		if g.status != Active || g.Hooks.Progress == nil {
			continue
		}
		done, err := g.Hooks.Progress(ctx)
		switch {
		case err != nil:
			log.Warn("goal failed", "goal", g.ID, "err", err)
			s.finish(ctx, g, Failed, err.Error())
		case done:
			log.Info("goal completed", "goal", g.ID)
			s.finish(ctx, g, Completed, "")
		}
	}
	if paused {
		return
	}

	for {
		s.mu.Lock()
		if len(s.active) >= s.maxActive || s.queue.Len() == 0 {
			s.mu.Unlock()
			return
		}
		g := heap.Pop(&s.queue).(*Goal)
		s.mu.Unlock()

		if g.Hooks.Validate != nil {
			if err := g.Hooks.Validate(ctx, s.fleet.Snapshot()); err != nil {
				if errors.Is(err, ErrRetryLater) {
					s.mu.Lock()
					g.reason = err.Error()
					heap.Push(&s.queue, g)
					s.mu.Unlock()
					log.Debug("goal deferred", "goal", g.ID, "reason", err)
					return
				}
				log.Warn("goal rejected", "goal", g.ID, "err", err)
				s.finish(ctx, g, Failed, err.Error())
				continue
			}
		}

		s.mu.Lock()
		g.status = Active
		g.reason = ""
		g.started = s.now()
		s.active = append(s.active, g)
		s.mu.Unlock()
		log.Info("goal started", "goal", g.ID, "priority", g.Priority.String())
		s.record(ctx, g)

		if g.Hooks.Execute != nil {
			if err := g.Hooks.Execute(ctx); err != nil {
				log.Warn("goal failed to start", "goal", g.ID, "err", err)
				s.finish(ctx, g, Failed, err.Error())
			}
		}
	}
}

// finish moves g out of the active set or queue into a terminal list and
// withdraws it from the coordinator.
func (s *Scheduler) finish(ctx context.Context, g *Goal, status Status, reason string) {
	s.mu.Lock()
	wasActive := false
	for i, a := range s.active {
		if a == g {
			s.active = append(s.active[:i], s.active[i+1:]...)
			wasActive = true
			break
		}
	}
	g.status = status
	g.reason = reason
	g.finished = s.now()
	switch status {
	case Completed:
		s.completed = append(s.completed, g)
	case Failed:
		s.failed = append(s.failed, g)
	case Cancelled:
		s.cancelled = append(s.cancelled, g)
	}
	s.mu.Unlock()

	if wasActive {
		if err := s.fleet.Release(ctx, g.ID); err != nil {
			logging.FromContext(ctx).Warn("release goal", "goal", g.ID, "err", err)
		}
	}
	s.record(ctx, g)
}

// Cancel stops an active goal through its cancel hook, or drops a queued
// one without running any hook.
func (s *Scheduler) Cancel(ctx context.Context, id string) error {
	s.pass.Lock()
	defer s.pass.Unlock()

	s.mu.Lock()
	var target *Goal
	for _, g := range s.active {
		if g.ID == id {
			target = g
		}
	}
	if target == nil {
		for _, g := range s.queue {
			if g.ID == id {
				heap.Remove(&s.queue, g.index)
				s.mu.Unlock()
				s.finish(ctx, g, Cancelled, "cancelled while queued")
				return nil
			}
		}
		s.mu.Unlock()
		return ErrNotFound
	}
	s.mu.Unlock()

	if target.Hooks.Cancel != nil {
		if err := target.Hooks.Cancel(ctx); err != nil {
			logging.FromContext(ctx).Warn("cancel hook", "goal", id, "err", err)
		}
	}
	s.finish(ctx, target, Cancelled, "cancelled")
	return nil
}

// PauseAll stops admitting goals and pauses every active one.
func (s *Scheduler) PauseAll(ctx context.Context) {
	s.pass.Lock()
	defer s.pass.Unlock()
	s.mu.Lock()
	s.paused = true
	active := append([]*Goal(nil), s.active...)
	s.mu.Unlock()
	for _, g := range active {
		if g.status != Active {
			continue
		}
		if g.Hooks.Pause != nil {
			if err := g.Hooks.Pause(ctx); err != nil {
				logging.FromContext(ctx).Warn("pause hook", "goal", g.ID, "err", err)
			}
		}
		s.mu.Lock()
		g.status = Paused
		s.mu.Unlock()
		s.record(ctx, g)
	}
}

// ResumeAll resumes paused goals and admission.
func (s *Scheduler) ResumeAll(ctx context.Context) {
	s.pass.Lock()
	defer s.pass.Unlock()
	s.mu.Lock()
	s.paused = false
	active := append([]*Goal(nil), s.active...)
	s.mu.Unlock()
	for _, g := range active {
		if g.status != Paused {
			continue
		}
		if g.Hooks.Resume != nil {
			if err := g.Hooks.Resume(ctx); err != nil {
				logging.FromContext(ctx).Warn("resume hook", "goal", g.ID, "err", err)
			}
		}
		s.mu.Lock()
		g.status = Active
		s.mu.Unlock()
		s.record(ctx, g)
	}
}

func views(list []*Goal) []View {
	out := make([]View, len(list))
	for i, g := range list {
		out[i] = g.view()
	}
	return out
}

// Queued returns the waiting goals in admission order.
func (s *Scheduler) Queued() []View {
	s.mu.Lock()
	defer s.mu.Unlock()
	sorted := append(goalHeap(nil), s.queue...)
	sort.Slice(sorted, func(i, j int) bool { return sorted.Less(i, j) })
	return views(sorted)
}

// Active returns the running and paused goals.
func (s *Scheduler) Active() []View {
	s.mu.Lock()
	defer s.mu.Unlock()
	return views(s.active)
}

// Completed returns the finished goals.
func (s *Scheduler) Completed() []View {
	s.mu.Lock()
	defer s.mu.Unlock()
	return views(s.completed)
}

// Failed returns the goals that were rejected or failed.
func (s *Scheduler) Failed() []View {
	s.mu.Lock()
	defer s.mu.Unlock()
	return views(s.failed)
}

// Cancelled returns the cancelled goals.
func (s *Scheduler) Cancelled() []View {
	s.mu.Lock()
	defer s.mu.Unlock()
	return views(s.cancelled)
}

func (s *Scheduler) record(ctx context.Context, g *Goal) {
	if s.history == nil {
		return
	}
	s.mu.Lock()
	ev := history.GoalEvent{
		GoalID:      g.ID,
		Description: g.Description,
		Priority:    int(g.Priority),
		Status:      g.status.String(),
		Reason:      g.reason,
		At:          s.now(),
	}
	s.mu.Unlock()
	if err := s.history.RecordGoal(ctx, ev); err != nil {
		logging.FromContext(ctx).Warn("record goal", "goal", g.ID, "err", err)
	}
}

package actor

import (
	"sort"
	"sync"
)

// Reporter receives an actor's state changes. Report must not block.
type Reporter interface {
	Report(Status)
}

// Board holds, per ship, the newest status report and every finished action
// not yet drained. Intermediate reports coalesce; outcomes are never dropped.
type Board struct {
	mu    sync.Mutex
	ships map[string]*slot
}

type slot struct {
	latest   Status
	unread   bool
	outcomes []Status
}

// NewBoard returns an empty board.
func NewBoard() *Board {
	return &Board{ships: make(map[string]*slot)}
}

// finished reports whether s closes out an action.
func (s Status) finished() bool {
	return s.Action.Kind != KindNone && (s.State == Idle || s.State == Error)
}

// Report records s. Reports not newer than the ship's latest are ignored.
func (b *Board) Report(s Status) {
	b.mu.Lock()
	defer b.mu.Unlock()
	sl, ok := b.ships[s.Ship]
	if !ok {
		sl = &slot{}
		b.ships[s.Ship] = sl
	}
	if sl.latest.Seq != 0 && s.Seq <= sl.latest.Seq {
		return
	}
	sl.latest, sl.unread = s, true
	if s.finished() {
		sl.outcomes = append(sl.outcomes, s)
	}
}

// Drain returns, ship by ship, the pending outcomes followed by the newest
// report when it is later than them. Each report is returned once.
func (b *Board) Drain() []Status {
	b.mu.Lock()
	defer b.mu.Unlock()
	names := make([]string, 0, len(b.ships))
	for name := range b.ships {
		names = append(names, name)
	}
	sort.Strings(names)

	var out []Status
	for _, name := range names {
		sl := b.ships[name]
		out = append(out, sl.outcomes...)
		if sl.unread && (len(sl.outcomes) == 0 || sl.latest.Seq > sl.outcomes[len(sl.outcomes)-1].Seq) {
			out = append(out, sl.latest)
		}
		sl.outcomes, sl.unread = nil, false
	}
	return out
}

// Forget drops a ship's reports, so a later actor for the same symbol starts
// a fresh sequence.
func (b *Board) Forget(ship string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.ships, ship)
}

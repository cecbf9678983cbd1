package store

import (
	"context"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"fleetops/internal/fleet"
)

// ShipRecord is the persisted snapshot of one ship.
type ShipRecord struct {
	Ship           fleet.Ship `yaml:"ship" json:"ship"`
	LastUpdated    time.Time  `yaml:"last_updated" json:"last_updated"`
	LastAPIRefresh time.Time  `yaml:"last_api_refresh" json:"last_api_refresh"`
	IsStale        bool       `yaml:"is_stale" json:"is_stale"`
	PendingActions []string   `yaml:"pending_actions,omitempty" json:"pending_actions,omitempty"`
}

// ShipStore caches ship state between API refreshes and remembers which
// dispatched actions have not yet been confirmed by a fresh fetch.
type ShipStore struct {
	mu        sync.Mutex
	path      string
	now       Clock
	staleness time.Duration
	records   map[string]ShipRecord
}

// OpenShips loads dir/ship_states.yaml, dropping records older than retention.
func OpenShips(dir string, staleness, retention time.Duration, now Clock) (*ShipStore, error) {
	if now == nil {
		now = time.Now
	}
	s := &ShipStore{
		path:      filepath.Join(dir, "ship_states.yaml"),
		now:       now,
		staleness: staleness,
		records:   make(map[string]ShipRecord),
	}
	var list []ShipRecord
	if err := readYAML(s.path, &list); err != nil {
		return nil, err
	}
	t := now()
	dropped := false
	for _, r := range list {
		if retention > 0 && t.Sub(r.LastUpdated) > retention {
			dropped = true
			continue
		}
		s.records[r.Ship.Symbol] = r
	}
	if dropped {
		if err := s.persist(); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// UpdateFromAPI stores ship as freshly fetched, clearing the stale flag and
// any pending notes.
func (s *ShipStore) UpdateFromAPI(ship fleet.Ship) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := s.now()
	s.records[ship.Symbol] = ShipRecord{Ship: ship, LastUpdated: t, LastAPIRefresh: t}
	return s.persist()
}

// UpdateManyFromAPI stores a full fleet listing with a single write.
func (s *ShipStore) UpdateManyFromAPI(ships []fleet.Ship) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := s.now()
	for _, ship := range ships {
		s.records[ship.Symbol] = ShipRecord{Ship: ship, LastUpdated: t, LastAPIRefresh: t}
	}
	return s.persist()
}

// Apply updates the cached ship in place with partial state returned by an
// action (nav, fuel or cargo) without counting as a full refresh.
func (s *ShipStore) Apply(id string, mutate func(*fleet.Ship)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.records[id]
	if !ok {
		return ErrNotFound
	}
	mutate(&r.Ship)
	r.LastUpdated = s.now()
	s.records[id] = r
	return s.persist()
}

// Get returns the cached record for id.
func (s *ShipStore) Get(id string) (ShipRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.records[id]
	if ok {
		r.PendingActions = append([]string(nil), r.PendingActions...)
	}
	return r, ok
}

// NeedsRefresh reports whether id is missing, marked stale, or older than
// the staleness threshold.
func (s *ShipStore) NeedsRefresh(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.needsRefresh(id)
}

func (s *ShipStore) needsRefresh(id string) bool {
	r, ok := s.records[id]
	if !ok || r.IsStale {
		return true
	}
	return s.staleness > 0 && s.now().Sub(r.LastAPIRefresh) > s.staleness
}

// MarkAction appends a pending note for id and marks the cached copy stale.
func (s *ShipStore) MarkAction(id, note string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.records[id]
	if !ok {
		return ErrNotFound
	}
	r.PendingActions = append(r.PendingActions, note)
	r.IsStale = true
	r.LastUpdated = s.now()
	s.records[id] = r
	return s.persist()
}

// MarkStale forces the next Fresh call for id to refetch.
func (s *ShipStore) MarkStale(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.records[id]
	if !ok || r.IsStale {
		return nil
	}
	r.IsStale = true
	s.records[id] = r
	return s.persist()
}

// Fresh returns the cached ship or, when it needs a refresh, the result of
// fetch, which is stored before returning.
func (s *ShipStore) Fresh(ctx context.Context, id string, fetch func(context.Context, string) (fleet.Ship, error)) (fleet.Ship, error) {
	s.mu.Lock()
	r, ok := s.records[id]
	stale := s.needsRefresh(id)
	s.mu.Unlock()
	if ok && !stale {
		return r.Ship, nil
	}
	ship, err := fetch(ctx, id)
	if err != nil {
		return fleet.Ship{}, err
	}
	if err := s.UpdateFromAPI(ship); err != nil {
		return fleet.Ship{}, err
	}
	return ship, nil
}

// Stale lists the ids that need a refresh.
func (s *ShipStore) Stale() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for id := range s.records {
		if s.needsRefresh(id) {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out
}

// All returns every cached record ordered by ship symbol.
func (s *ShipStore) All() []ShipRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]ShipRecord, 0, len(s.records))
	for _, r := range s.records {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Ship.Symbol < out[j].Ship.Symbol })
	return out
}

// Remove forgets id.
func (s *ShipStore) Remove(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[id]; !ok {
		return nil
	}
	delete(s.records, id)
	return s.persist()
}

// persist must be called with mu held.
func (s *ShipStore) persist() error {
	list := make([]ShipRecord, 0, len(s.records))
	for _, r := range s.records {
		list = append(list, r)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Ship.Symbol < list[j].Ship.Symbol })
	return AtomicWrite(s.path, list)
}

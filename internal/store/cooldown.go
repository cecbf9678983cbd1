package store

import (
	"path/filepath"
	"sort"
	"sync"
	"time"
)

// CooldownEntry is the persisted cooldown of one ship.
type CooldownEntry struct {
	ID            string    `yaml:"id" json:"id"`
	CooldownUntil time.Time `yaml:"cooldown_until" json:"cooldown_until"`
	LastUpdated   time.Time `yaml:"last_updated" json:"last_updated"`
}

// CooldownStore records when each ship may act again.
type CooldownStore struct {
	mu      sync.Mutex
	path    string
	now     Clock
	entries map[string]CooldownEntry
}

// OpenCooldowns loads dir/cooldowns.yaml, dropping entries that already expired.
func OpenCooldowns(dir string, now Clock) (*CooldownStore, error) {
	if now == nil {
		now = time.Now
	}
	s := &CooldownStore{
		path:    filepath.Join(dir, "cooldowns.yaml"),
		now:     now,
		entries: make(map[string]CooldownEntry),
	}
	var list []CooldownEntry
	if err := readYAML(s.path, &list); err != nil {
		return nil, err
	}
	t := now()
	purged := false
	for _, e := range list {
		if !e.CooldownUntil.After(t) {
			purged = true
			continue
		}
		s.entries[e.ID] = e
	}
	if purged {
		if err := s.persist(); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Set records that id is on cooldown for d from now.
func (s *CooldownStore) Set(id string, d time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := s.now()
	if d <= 0 {
		if _, ok := s.entries[id]; !ok {
			return nil
		}
		delete(s.entries, id)
		return s.persist()
	}
	s.entries[id] = CooldownEntry{ID: id, CooldownUntil: t.Add(d), LastUpdated: t}
	return s.persist()
}

// SetUntil records an absolute cooldown expiry for id.
func (s *CooldownStore) SetUntil(id string, until time.Time) error {
	return s.Set(id, until.Sub(s.now()))
}

// Remaining returns how long id must still wait. ok is false when the ship
// is free to act. An entry found expired is dropped from memory only; the
// file loses it on the next write, and loading skips expired entries.
func (s *CooldownStore) Remaining(id string) (time.Duration, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[id]
	if !ok {
		return 0, false
	}
	left := e.CooldownUntil.Sub(s.now())
	if left <= 0 {
		delete(s.entries, id)
		return 0, false
	}
	return left, true
}

// Clear removes any cooldown for id.
func (s *CooldownStore) Clear(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[id]; !ok {
		return nil
	}
	delete(s.entries, id)
	return s.persist()
}

// List returns the active cooldowns ordered by ship id.
func (s *CooldownStore) List() []CooldownEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := s.now()
	out := make([]CooldownEntry, 0, len(s.entries))
	for _, e := range s.entries {
		if e.CooldownUntil.After(t) {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// persist must be called with mu held.
func (s *CooldownStore) persist() error {
	list := make([]CooldownEntry, 0, len(s.entries))
	for _, e := range s.entries {
		list = append(list, e)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].ID < list[j].ID })
	return AtomicWrite(s.path, list)
}

package store

import (
	"context"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"fleetops/internal/fleet"
)

type entry[T any] struct {
	items     []T
	refreshed time.Time
	expiresAt time.Time
}

// Cache keeps collections keyed by a scope id (a system or waypoint symbol).
// An entry is fresh while it is younger than the TTL and, when it carries
// one, before its expiry.
type Cache[T any] struct {
	mu      sync.Mutex
	group   singleflight.Group
	path    string
	ttl     time.Duration
	now     Clock
	entries map[string]entry[T]
	record  func(scope string, e entry[T]) any
}

func newCache[T any](path string, ttl time.Duration, now Clock, record func(string, entry[T]) any) *Cache[T] {
	if now == nil {
		now = time.Now
	}
	return &Cache[T]{
		path:    path,
		ttl:     ttl,
		now:     now,
		entries: make(map[string]entry[T]),
		record:  record,
	}
}

func (c *Cache[T]) fresh(e entry[T], t time.Time) bool {
	if c.ttl > 0 && t.Sub(e.refreshed) >= c.ttl {
		return false
	}
	return e.expiresAt.IsZero() || t.Before(e.expiresAt)
}

// Get returns the items for scope if the entry is fresh.
func (c *Cache[T]) Get(scope string) ([]T, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[scope]
	if !ok || !c.fresh(e, c.now()) {
		return nil, false
	}
	return append([]T(nil), e.items...), true
}

// Put replaces the entry for scope and persists the cache. A zero expiresAt
// means the entry is governed by the TTL alone.
func (c *Cache[T]) Put(scope string, items []T, expiresAt time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[scope] = entry[T]{
		items:     append([]T(nil), items...),
		refreshed: c.now(),
		expiresAt: expiresAt,
	}
	return c.persist()
}

// GetOrFetch serves a fresh entry or runs fetch once, shared by concurrent
// callers for the same scope, and stores its result.
func (c *Cache[T]) GetOrFetch(ctx context.Context, scope string, fetch func(context.Context) ([]T, error)) ([]T, error) {
	if items, ok := c.Get(scope); ok {
		return items, nil
	}
	v, err, _ := c.group.Do(scope, func() (any, error) {
		if items, ok := c.Get(scope); ok {
			return items, nil
		}
		items, err := fetch(ctx)
		if err != nil {
			return nil, err
		}
		if err := c.Put(scope, items, time.Time{}); err != nil {
			return nil, err
		}
		return items, nil
	})
	if err != nil {
		return nil, err
	}
	return append([]T(nil), v.([]T)...), nil
}

// Invalidate drops the entry for scope.
func (c *Cache[T]) Invalidate(scope string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.entries[scope]; !ok {
		return nil
	}
	delete(c.entries, scope)
	return c.persist()
}

// Fresh reports whether scope holds a fresh entry.
func (c *Cache[T]) Fresh(scope string) bool {
	_, ok := c.Get(scope)
	return ok
}

// Scopes lists the cached scope ids.
func (c *Cache[T]) Scopes() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.entries))
	for k := range c.entries {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// persist must be called with mu held.
func (c *Cache[T]) persist() error {
	scopes := make([]string, 0, len(c.entries))
	for k := range c.entries {
		scopes = append(scopes, k)
	}
	sort.Strings(scopes)
	records := make([]any, 0, len(scopes))
	for _, k := range scopes {
		records = append(records, c.record(k, c.entries[k]))
	}
	return AtomicWrite(c.path, records)
}

type waypointRecord struct {
	SystemSymbol string           `yaml:"system_symbol"`
	Waypoints    []fleet.Waypoint `yaml:"waypoints"`
	LastScanned  time.Time        `yaml:"last_scanned"`
}

// WaypointCache caches the waypoint list of each system.
type WaypointCache struct {
	*Cache[fleet.Waypoint]
}

// OpenWaypointCache loads dir/waypoints.yaml.
func OpenWaypointCache(dir string, ttl time.Duration, now Clock) (*WaypointCache, error) {
	c := newCache(filepath.Join(dir, "waypoints.yaml"), ttl, now, func(scope string, e entry[fleet.Waypoint]) any {
		return waypointRecord{SystemSymbol: scope, Waypoints: e.items, LastScanned: e.refreshed}
	})
	var list []waypointRecord
	if err := readYAML(c.path, &list); err != nil {
		return nil, err
	}
	for _, r := range list {
		c.entries[r.SystemSymbol] = entry[fleet.Waypoint]{items: r.Waypoints, refreshed: r.LastScanned}
	}
	return &WaypointCache{c}, nil
}

// Known returns whatever waypoints are cached for system, fresh or not.
// Planning prefers a stale map to none.
func (c *WaypointCache) Known(system string) []fleet.Waypoint {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]fleet.Waypoint(nil), c.entries[system].items...)
}

type surveyRecord struct {
	WaypointSymbol string         `yaml:"waypoint_symbol"`
	Surveys        []fleet.Survey `yaml:"surveys"`
	LastSurveyed   time.Time      `yaml:"last_surveyed"`
	ExpiresAt      time.Time      `yaml:"expires_at"`
}

// SurveyCache keeps the surveys taken at each mining waypoint. The server
// decides when a survey expires; a set stays usable until its last survey does.
type SurveyCache struct {
	*Cache[fleet.Survey]
}

// OpenSurveyCache loads dir/surveys.yaml, dropping sets that have expired.
func OpenSurveyCache(dir string, ttl time.Duration, now Clock) (*SurveyCache, error) {
	c := newCache(filepath.Join(dir, "surveys.yaml"), ttl, now, func(scope string, e entry[fleet.Survey]) any {
		return surveyRecord{WaypointSymbol: scope, Surveys: e.items, LastSurveyed: e.refreshed, ExpiresAt: e.expiresAt}
	})
	var list []surveyRecord
	if err := readYAML(c.path, &list); err != nil {
		return nil, err
	}
	t := c.now()
	for _, r := range list {
		if !r.ExpiresAt.IsZero() && !t.Before(r.ExpiresAt) {
			continue
		}
		c.entries[r.WaypointSymbol] = entry[fleet.Survey]{items: r.Surveys, refreshed: r.LastSurveyed, expiresAt: r.ExpiresAt}
	}
	return &SurveyCache{c}, nil
}

// setExpiry is the expiry of a survey set: its latest survey expiration.
// Valid filters the surveys that expire before it.
func setExpiry(surveys []fleet.Survey) time.Time {
	var expires time.Time
	for _, s := range surveys {
		if s.Expiration.After(expires) {
			expires = s.Expiration
		}
	}
	return expires
}

// Add merges surveys into the unexpired set for waypoint.
func (c *SurveyCache) Add(waypoint string, surveys []fleet.Survey) error {
	t := c.now()
	current, _ := c.Get(waypoint)
	merged := make([]fleet.Survey, 0, len(current)+len(surveys))
	for _, s := range append(current, surveys...) {
		if !s.Expiration.IsZero() && !t.Before(s.Expiration) {
			continue
		}
		merged = append(merged, s)
	}
	return c.Put(waypoint, merged, setExpiry(merged))
}

// Valid returns the unexpired surveys for waypoint.
func (c *SurveyCache) Valid(waypoint string) []fleet.Survey {
	items, ok := c.Get(waypoint)
	if !ok {
		return nil
	}
	t := c.now()
	out := items[:0]
	for _, s := range items {
		if s.Expiration.IsZero() || t.Before(s.Expiration) {
			out = append(out, s)
		}
	}
	return out
}

// Best returns the valid survey at waypoint with the most deposits in wanted.
func (c *SurveyCache) Best(waypoint string, wanted []string) (fleet.Survey, bool) {
	var (
		best  fleet.Survey
		score = -1
	)
	for _, s := range c.Valid(waypoint) {
		if n := s.Matches(wanted); n > score {
			best, score = s, n
		}
	}
	if score <= 0 && len(wanted) > 0 {
		return fleet.Survey{}, false
	}
	return best, score >= 0
}

// Discard removes one exhausted or rejected survey.
func (c *SurveyCache) Discard(waypoint, signature string) error {
	items := c.Valid(waypoint)
	kept := items[:0]
	for _, s := range items {
		if s.Signature != signature {
			kept = append(kept, s)
		}
	}
	if len(kept) == 0 {
		return c.Invalidate(waypoint)
	}
	return c.Put(waypoint, kept, setExpiry(kept))
}

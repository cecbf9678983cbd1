// Package goals queues fleet-level objectives by priority and keeps a
// bounded number of them active at once. Active goals engage the
// coordinator, which turns them into ship actions.
package goals

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"fleetops/internal/coordinator"
	"fleetops/internal/fleet"
)

var (
	// ErrRetryLater is returned by a validation hook when the goal cannot
	// start yet but may later. The scheduler re-queues it.
	ErrRetryLater = errors.New("retry later")
	// ErrNotFound is returned for an unknown goal id.
	ErrNotFound = errors.New("goal not found")
)

// Priority is the closed set of goal priorities. Higher runs first.
type Priority int

const (
	Deferred    Priority = 10
	Exploration Priority = 20
	Maintenance Priority = 30
	Economic    Priority = 40
	Contract    Priority = 60
	Urgent      Priority = 80
	Override    Priority = 100
)

var priorityNames = map[Priority]string{
	Deferred:    "deferred",
	Exploration: "exploration",
	Maintenance: "maintenance",
	Economic:    "economic",
	Contract:    "contract",
	Urgent:      "urgent",
	Override:    "override",
}

func (p Priority) String() string {
	if n, ok := priorityNames[p]; ok {
		return n
	}
	return strconv.Itoa(int(p))
}

// ParsePriority accepts a priority name or one of the defined numeric values.
func ParsePriority(s string) (Priority, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for p, n := range priorityNames {
		if n == s {
			return p, nil
		}
	}
	if v, err := strconv.Atoi(s); err == nil {
		if _, ok := priorityNames[Priority(v)]; ok {
			return Priority(v), nil
		}
	}
	return 0, fmt.Errorf("unknown priority %q", s)
}

// UnmarshalYAML reads a priority by name or value.
func (p *Priority) UnmarshalYAML(n *yaml.Node) error {
	v, err := ParsePriority(n.Value)
	if err != nil {
		return err
	}
	*p = v
	return nil
}

// MarshalText renders the priority name.
func (p Priority) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalText reads a priority by name or value.
func (p *Priority) UnmarshalText(b []byte) error {
	v, err := ParsePriority(string(b))
	if err != nil {
		return err
	}
	*p = v
	return nil
}

// Status is the lifecycle state of a goal.
type Status int

const (
	Pending Status = iota
	Active
	Paused
	Completed
	Failed
	Cancelled
)

func (s Status) String() string {
	switch s {
	case Pending:
		return "pending"
	case Active:
		return "active"
	case Paused:
		return "paused"
	case Completed:
		return "completed"
	case Failed:
		return "failed"
	default:
		return "cancelled"
	}
}

// MarshalText renders the status name.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText parses a status name.
func (s *Status) UnmarshalText(b []byte) error {
	for v := Pending; v <= Cancelled; v++ {
		if v.String() == string(b) {
			*s = v
			return nil
		}
	}
	return fmt.Errorf("unknown goal status %q", b)
}

// Kind names a built-in goal type.
type Kind string

const (
	KindMining  Kind = "mining"
	KindExplore Kind = "explore"
	KindSell    Kind = "sell"
)

// Requirement is what a goal needs from the fleet.
type Requirement struct {
	Kind        Kind             `json:"kind"`
	Capability  fleet.Capability `json:"-"`
	Target      string           `json:"target,omitempty"`
	Systems     []string         `json:"systems,omitempty"`
	Materials   []string         `json:"materials,omitempty"`
	ContractID  string           `json:"contract_id,omitempty"`
	Destination string           `json:"destination,omitempty"`
	Units       int              `json:"units,omitempty"`
}

// Hooks are the goal's behaviour. Nil hooks are skipped.
type Hooks struct {
	// Validate decides whether the goal can start against the current fleet.
	// Wrap ErrRetryLater to be re-queued; any other error fails the goal.
	Validate func(ctx context.Context, snap coordinator.Snapshot) error
	// Execute starts the goal, normally by engaging the coordinator.
	Execute func(ctx context.Context) error
	// Progress reports completion. An error fails the goal.
	Progress func(ctx context.Context) (done bool, err error)
	Pause    func(ctx context.Context) error
	Resume   func(ctx context.Context) error
	Cancel   func(ctx context.Context) error
}

// Goal is one fleet-level objective. Once submitted, Requirement is only
// changed through setRequirement.
type Goal struct {
	ID          string
	Description string
	Priority    Priority
	Requirement Requirement
	Hooks       Hooks

	reqMu sync.Mutex

	status    Status
	reason    string
	submitted time.Time
	started   time.Time
	finished  time.Time
	seq       uint64
	index     int
}

// View is a read-only copy of a goal's state.
type View struct {
	ID          string      `json:"id"`
	Description string      `json:"description"`
	Priority    Priority    `json:"priority"`
	Status      Status      `json:"status"`
	Reason      string      `json:"reason,omitempty"`
	Requirement Requirement `json:"requirement"`
	Submitted   time.Time   `json:"submitted"`
	Started     time.Time   `json:"started,omitempty"`
	Finished    time.Time   `json:"finished,omitempty"`
}

func (g *Goal) requirement() Requirement {
	g.reqMu.Lock()
	defer g.reqMu.Unlock()
	return g.Requirement
}

func (g *Goal) setRequirement(r Requirement) {
	g.reqMu.Lock()
	defer g.reqMu.Unlock()
	g.Requirement = r
}

func (g *Goal) view() View {
	return View{
		ID:          g.ID,
		Description: g.Description,
		Priority:    g.Priority,
		Status:      g.status,
		Reason:      g.reason,
		Requirement: g.requirement(),
		Submitted:   g.submitted,
		Started:     g.started,
		Finished:    g.finished,
	}
}

// goalHeap orders by priority, then submission order.
type goalHeap []*Goal

func (h goalHeap) Len() int { return len(h) }

func (h goalHeap) Less(i, j int) bool {
	if h[i].Priority != h[j].Priority {
		return h[i].Priority > h[j].Priority
	}
	return h[i].seq < h[j].seq
}

func (h goalHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *goalHeap) Push(x any) {
	g := x.(*Goal)
	g.index = len(*h)
	*h = append(*h, g)
}

func (h *goalHeap) Pop() any {
	old := *h
	n := len(old)
	g := old[n-1]
	old[n-1] = nil
	g.index = -1
	*h = old[:n-1]
	return g
}

package coordinator

import (
	"sort"

	"fleetops/internal/fleet"
)

// GoalKind selects the primary task an engaged goal hands to capable units.
type GoalKind int

const (
	GoalMining GoalKind = iota + 1
	GoalExplore
	GoalSell
)

func (k GoalKind) String() string {
	switch k {
	case GoalMining:
		return "mining"
	case GoalExplore:
		return "explore"
	case GoalSell:
		return "sell"
	default:
		return "unknown"
	}
}

// Engagement is an active goal as the coordinator sees it.
type Engagement struct {
	Goal       string
	Priority   int
	Kind       GoalKind
	Capability fleet.Capability
	// Target is the mining site for mining goals and the marketplace for
	// sell goals.
	Target    string
	Systems   []string
	Materials []string
	// ContractID and Destination are set when mined goods are delivered.
	ContractID  string
	Destination string
	// Remaining is the number of units the goal still needs.
	Remaining int

	seq uint64
}

type goalMsg struct {
	engage  *Engagement
	release string
}

func (c *Coordinator) applyGoal(m goalMsg) {
	if m.engage == nil {
		c.removeEngagement(m.release)
		return
	}
	e := *m.engage
	for i, cur := range c.engagements {
		if cur.Goal == e.Goal {
			e.seq = cur.seq
			c.engagements[i] = &e
			return
		}
	}
	c.engageSeq++
	e.seq = c.engageSeq
	c.engagements = append(c.engagements, &e)
	sort.SliceStable(c.engagements, func(i, j int) bool {
		a, b := c.engagements[i], c.engagements[j]
		if a.Priority != b.Priority {
			return a.Priority > b.Priority
		}
		return a.seq < b.seq
	})
}

func (c *Coordinator) removeEngagement(id string) {
	kept := c.engagements[:0]
	for _, e := range c.engagements {
		if e.Goal != id {
			kept = append(kept, e)
		}
	}
	c.engagements = kept
	for _, u := range c.units {
		if u.goal == id {
			u.goal = ""
		}
	}
}

// serving picks the engagement a ship works for: the highest priority goal
// it can contribute to, else the top goal so deliveries and keep lists still
// apply.
func (c *Coordinator) serving(s fleet.Ship) *Engagement {
	for _, e := range c.engagements {
		if Contribution(s, e) > 0 {
			return e
		}
	}
	if len(c.engagements) > 0 {
		return c.engagements[0]
	}
	return nil
}

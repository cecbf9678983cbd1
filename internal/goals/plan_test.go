package goals

import (
	"testing"

	"fleetops/internal/fleet"
)

const samplePlan = `
name: opening
goals:
  - id: iron
    kind: mining
    priority: contract
    target: X1-A-ROCK
    materials: [IRON_ORE]
  - kind: explore
    priority: 20
    systems: [X1-A, X1-B]
  - kind: sell
    priority: economic
`

func TestParsePlan(t *testing.T) {
	p, err := ParsePlan([]byte(samplePlan))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if p.Name != "opening" || len(p.Goals) != 3 {
		t.Fatalf("unexpected plan: %+v", p)
	}
	if p.Goals[0].Priority != Contract || p.Goals[1].Priority != Exploration {
		t.Fatalf("priorities not decoded: %v %v", p.Goals[0].Priority, p.Goals[1].Priority)
	}

	goals := p.Build(Env{Fleet: &stubFleet{}})
	if len(goals) != 3 {
		t.Fatalf("expected 3 goals, got %d", len(goals))
	}
	if goals[0].ID != "iron" || goals[0].Requirement.Capability != fleet.Mining {
		t.Fatalf("mining goal: %+v", goals[0])
	}
	if goals[1].Description != "chart X1-A,X1-B" {
		t.Fatalf("explore description: %q", goals[1].Description)
	}
	if goals[2].Requirement.Kind != KindSell || goals[2].Hooks.Progress == nil {
		t.Fatalf("sell goal: %+v", goals[2].Requirement)
	}
}

func TestParsePlanRejects(t *testing.T) {
	cases := map[string]string{
		"empty":            "name: nothing\n",
		"missing priority": "goals:\n  - kind: sell\n",
		"bad priority":     "goals:\n  - kind: sell\n    priority: soonish\n",
		"mining no target": "goals:\n  - kind: mining\n    priority: urgent\n",
		"explore no map":   "goals:\n  - kind: explore\n    priority: urgent\n",
		"unknown kind":     "goals:\n  - kind: piracy\n    priority: urgent\n",
		"not yaml":         "goals: [",
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := ParsePlan([]byte(doc)); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}

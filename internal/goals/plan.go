package goals

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// PlanGoal is one goal definition in a plan file.
type PlanGoal struct {
	ID          string   `yaml:"id,omitempty"`
	Kind        Kind     `yaml:"kind"`
	Priority    Priority `yaml:"priority"`
	Description string   `yaml:"description,omitempty"`
	Target      string   `yaml:"target,omitempty"`
	Systems     []string `yaml:"systems,omitempty"`
	Materials   []string `yaml:"materials,omitempty"`
	ContractID  string   `yaml:"contract_id,omitempty"`
}

// Plan is a YAML document listing goals to submit.
type Plan struct {
	Name  string     `yaml:"name,omitempty"`
	Goals []PlanGoal `yaml:"goals"`
}

// LoadPlan reads a YAML plan from disk.
func LoadPlan(path string) (*Plan, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read plan: %w", err)
	}
	return ParsePlan(b)
}

// ParsePlan decodes and checks a plan document.
func ParsePlan(b []byte) (*Plan, error) {
	var p Plan
	if err := yaml.Unmarshal(b, &p); err != nil {
		return nil, fmt.Errorf("parse plan: %w", err)
	}
	if len(p.Goals) == 0 {
		return nil, fmt.Errorf("plan has no goals")
	}
	for i, g := range p.Goals {
		if err := g.check(); err != nil {
			return nil, fmt.Errorf("goal %d: %w", i+1, err)
		}
	}
	return &p, nil
}

func (g PlanGoal) check() error {
	if g.Priority == 0 {
		return fmt.Errorf("priority is required")
	}
	switch g.Kind {
	case KindMining:
		if g.Target == "" {
			return fmt.Errorf("mining goal needs a target")
		}
	case KindExplore:
		if len(g.Systems) == 0 {
			return fmt.Errorf("explore goal needs systems")
		}
	case KindSell:
	default:
		return fmt.Errorf("unknown goal kind %q", g.Kind)
	}
	return nil
}

func (g PlanGoal) describe() string {
	if g.Description != "" {
		return g.Description
	}
	switch g.Kind {
	case KindMining:
		return fmt.Sprintf("mine %s at %s", strings.Join(g.Materials, ","), g.Target)
	case KindExplore:
		return "chart " + strings.Join(g.Systems, ",")
	default:
		return "sell cargo"
	}
}

// Build turns the plan into goals bound to env.
func (p *Plan) Build(env Env) []*Goal {
	out := make([]*Goal, 0, len(p.Goals))
	for _, pg := range p.Goals {
		var g *Goal
		switch pg.Kind {
		case KindMining:
			g = NewMining(env, pg.describe(), pg.Priority, pg.Target, pg.Materials, pg.ContractID)
		case KindExplore:
			g = NewExplore(env, pg.describe(), pg.Priority, pg.Systems)
		default:
			g = NewSell(env, pg.describe(), pg.Priority, pg.Target)
		}
		g.ID = pg.ID
		out = append(out, g)
	}
	return out
}

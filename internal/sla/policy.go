package sla

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/gosuda/casebridge/internal/domain"
)

// DefaultCategory is the fallback policy key used when a summary's category
// has no explicit entry.
const DefaultCategory = "default"

// CategoryPolicy holds the per-category escalation parameters. Window is the
// SLA duration added to the event timestamp to get the deadline.
type CategoryPolicy struct {
	Window   time.Duration
	Priority domain.EscalationPriority
	Queue    string
}

// UnmarshalYAML decodes the window as a Go duration string ("4h", "30m").
func (c *CategoryPolicy) UnmarshalYAML(value *yaml.Node) error {
	var raw struct {
		Window   string `yaml:"window"`
		Priority string `yaml:"priority"`
		Queue    string `yaml:"queue"`
	}
	if err := value.Decode(&raw); err != nil {
		return fmt.Errorf("sla policy: %w", err)
	}

	window, err := time.ParseDuration(raw.Window)
	if err != nil {
		return fmt.Errorf("sla policy: window %q: %w", raw.Window, err)
	}

	c.Window = window
	c.Priority = domain.EscalationPriority(raw.Priority)
	c.Queue = raw.Queue

	return nil
}

// PolicySet maps call categories to their escalation policy. Only categories
// present here (or covered by the default entry) are escalation-eligible.
type PolicySet map[string]CategoryPolicy

// For returns the policy for a category, falling back to the default entry.
func (p PolicySet) For(category string) (CategoryPolicy, bool) {
	if policy, ok := p[category]; ok {
		return policy, true
	}
	policy, ok := p[DefaultCategory]
	return policy, ok
}

// Eligible reports whether the category itself is configured for escalation.
// The default entry does not make a category eligible; it only supplies
// parameters for explicitly requested escalations.
func (p PolicySet) Eligible(category string) bool {
	_, ok := p[category]
	return ok
}

// LoadPolicies reads the required SLA window configuration. There are no
// built-in window durations; a missing or empty file is a startup error.
func LoadPolicies(path string) (PolicySet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("sla.LoadPolicies: %w", err)
	}

	var raw map[string]CategoryPolicy
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("sla.LoadPolicies: parse %s: %w", path, err)
	}
	if len(raw) == 0 {
		return nil, fmt.Errorf("sla.LoadPolicies: %s defines no categories", path)
	}

	set := make(PolicySet, len(raw))
	for category, policy := range raw {
		if err := policy.validate(category); err != nil {
			return nil, fmt.Errorf("sla.LoadPolicies: %w", err)
		}
		set[category] = policy
	}

	return set, nil
}

func (c CategoryPolicy) validate(category string) error {
	if c.Window <= 0 {
		return fmt.Errorf("category %q: window must be positive, got %s", category, c.Window)
	}
	switch c.Priority {
	case domain.PriorityUrgent, domain.PriorityHigh, domain.PriorityMedium, domain.PriorityLow:
	default:
		return fmt.Errorf("category %q: unknown priority %q", category, c.Priority)
	}
	return nil
}

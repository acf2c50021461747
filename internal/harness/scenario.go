package harness

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Scenario defines a conformance scenario: an action graph, a sequence of
// event deliveries, scripted executor outcomes, and the run states the
// whole thing must settle into.
type Scenario struct {
	// Name uniquely identifies this scenario. It doubles as the golden
	// file name.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// MaxAttempts overrides the attempt cap. Zero keeps the default.
	MaxAttempts int `yaml:"max_attempts,omitempty"`

	// Actions defines the onboarding action graph.
	Actions []ActionSpec `yaml:"actions"`

	// Events lists the deliveries to process, in order. Repeated hire IDs
	// model at-least-once redelivery of the same detection.
	Events []EventStep `yaml:"events"`

	// Scripts arranges executor outcomes. An unscripted executor succeeds
	// on every call.
	Scripts []Script `yaml:"scripts,omitempty"`

	// Cancel lists hire IDs cancelled after all events are processed.
	Cancel []string `yaml:"cancel,omitempty"`

	// Expect lists the final run states to assert on.
	Expect []RunExpect `yaml:"expect"`
}

// ActionSpec is one action definition in the scenario's graph.
type ActionSpec struct {
	ID        string   `yaml:"id"`
	DependsOn []string `yaml:"depends_on,omitempty"`
	Executor  string   `yaml:"executor"`
}

// EventStep is one event delivery.
type EventStep struct {
	HireID     string            `yaml:"hire_id"`
	Attributes map[string]string `yaml:"attributes,omitempty"`
}

// Script arranges the outcome sequence one executor produces for one hire.
type Script struct {
	Executor string        `yaml:"executor"`
	HireID   string        `yaml:"hire_id"`
	Outcomes []OutcomeSpec `yaml:"outcomes"`
}

// OutcomeSpec is a single scripted outcome. Either Token (success) or
// Error (failure) is set. Permanent marks a failure non-retryable.
type OutcomeSpec struct {
	Token     string `yaml:"token,omitempty"`
	Error     string `yaml:"error,omitempty"`
	Permanent bool   `yaml:"permanent,omitempty"`
}

// RunExpect asserts the final state of one (hire, action) run.
type RunExpect struct {
	HireID   string `yaml:"hire_id"`
	ActionID string `yaml:"action_id"`
	Status   string `yaml:"status"`

	// Attempts asserts attempt_count when non-nil.
	Attempts *int `yaml:"attempts,omitempty"`

	// ResultToken asserts the stored result token when non-empty.
	ResultToken string `yaml:"result_token,omitempty"`

	// Terminal asserts the terminal flag when non-nil.
	Terminal *bool `yaml:"terminal,omitempty"`
}

// LoadScenario reads and parses a scenario YAML file. Unknown fields are
// rejected so typos fail loudly instead of silently skipping assertions.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenario: %w", err)
	}

	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("parse scenario %s: %w", path, err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario %s: %w", path, err)
	}
	return &scenario, nil
}

func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if len(s.Actions) == 0 {
		return fmt.Errorf("actions list is required and must be non-empty")
	}
	if len(s.Events) == 0 {
		return fmt.Errorf("events list is required and must be non-empty")
	}
	if len(s.Expect) == 0 {
		return fmt.Errorf("expect list is required and must be non-empty")
	}

	for i, a := range s.Actions {
		if a.ID == "" {
			return fmt.Errorf("actions[%d]: id is required", i)
		}
		if a.Executor == "" {
			return fmt.Errorf("actions[%d]: executor is required", i)
		}
	}
	for i, ev := range s.Events {
		if ev.HireID == "" {
			return fmt.Errorf("events[%d]: hire_id is required", i)
		}
	}
	for i, sc := range s.Scripts {
		if sc.Executor == "" || sc.HireID == "" {
			return fmt.Errorf("scripts[%d]: executor and hire_id are required", i)
		}
		if len(sc.Outcomes) == 0 {
			return fmt.Errorf("scripts[%d]: outcomes list is required", i)
		}
		for j, out := range sc.Outcomes {
			if out.Token != "" && out.Error != "" {
				return fmt.Errorf("scripts[%d].outcomes[%d]: token and error are mutually exclusive", i, j)
			}
		}
	}
	for i, exp := range s.Expect {
		if exp.HireID == "" || exp.ActionID == "" {
			return fmt.Errorf("expect[%d]: hire_id and action_id are required", i)
		}
		if exp.Status == "" {
			return fmt.Errorf("expect[%d]: status is required", i)
		}
	}
	return nil
}

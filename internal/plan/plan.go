// Package plan loads the onboarding plan: the action graph, retry and
// backoff settings, and the feed column mapping, authored as CUE.
//
// The plan is compiled once at startup and immutable thereafter. Structural
// problems in the dependency graph surface as registry.ConfigurationError
// when the plan is turned into a Registry; malformed CUE surfaces as
// LoadError with file position where available.
package plan

import (
	"fmt"
	"time"

	"github.com/MalakaSupun/startmate/internal/registry"
)

// Default settings applied when the plan omits them.
const (
	DefaultMaxAttempts     = 3
	DefaultWorkers         = 4
	DefaultBackoffBase     = 500 * time.Millisecond
	DefaultBackoffCap      = 30 * time.Second
	DefaultExecutorTimeout = 10 * time.Second
	DefaultPollInterval    = 30 * time.Second
	DefaultStartWindowDays = 7
)

// Settings are the orchestration knobs of a plan.
type Settings struct {
	MaxAttempts     int
	Workers         int
	BackoffBase     time.Duration
	BackoffCap      time.Duration
	ExecutorTimeout time.Duration
	PollInterval    time.Duration
}

// Feed is the column mapping for the tabular source.
type Feed struct {
	// HireIDColumn names the feed column holding the hire identifier.
	HireIDColumn string

	// StartDateColumn, when set, enables the upcoming-start filter.
	StartDateColumn string

	// StartWindowDays bounds how many days ahead a start date may lie.
	StartWindowDays int
}

// Plan is a fully compiled onboarding plan.
type Plan struct {
	// Actions in declaration order.
	Actions  []registry.ActionDefinition
	Settings Settings
	Feed     Feed
}

// Registry builds and validates the action registry from the plan.
// Duplicate IDs, dangling references, and cycles all fail here with a
// ConfigurationError; the caller must treat that as fatal at startup.
func (p *Plan) Registry() (*registry.Registry, error) {
	reg := registry.New()
	for _, def := range p.Actions {
		if err := reg.Register(def); err != nil {
			return nil, err
		}
	}
	if _, err := reg.ResolveOrder(); err != nil {
		return nil, err
	}
	return reg, nil
}

// ExecutorNames returns the distinct executor capability names the plan
// references, in first-use order.
func (p *Plan) ExecutorNames() []string {
	seen := make(map[string]bool, len(p.Actions))
	names := []string{}
	for _, def := range p.Actions {
		if !seen[def.Executor] {
			seen[def.Executor] = true
			names = append(names, def.Executor)
		}
	}
	return names
}

// validate checks plan-level constraints that are not the registry's job.
func (p *Plan) validate() error {
	if len(p.Actions) == 0 {
		return fmt.Errorf("plan: at least one action is required")
	}
	if p.Feed.HireIDColumn == "" {
		return fmt.Errorf("plan: feed.hire_id_column is required")
	}
	if p.Settings.MaxAttempts < 1 {
		return fmt.Errorf("plan: settings.max_attempts must be at least 1")
	}
	if p.Settings.BackoffBase < 0 || p.Settings.BackoffCap < 0 {
		return fmt.Errorf("plan: backoff durations must not be negative")
	}
	return nil
}

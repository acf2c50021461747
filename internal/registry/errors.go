package registry

import (
	"errors"
	"fmt"
	"strings"
)

// Reason categorizes configuration errors.
type Reason string

const (
	// ReasonInvalidDefinition indicates a structurally invalid definition.
	ReasonInvalidDefinition Reason = "INVALID_DEFINITION"
	// ReasonDuplicateAction indicates two definitions share an ID.
	ReasonDuplicateAction Reason = "DUPLICATE_ACTION"
	// ReasonDanglingDependency indicates a DependsOn entry names an
	// unregistered action.
	ReasonDanglingDependency Reason = "DANGLING_DEPENDENCY"
	// ReasonCycle indicates the dependency graph has a cycle.
	ReasonCycle Reason = "CYCLE"
)

// ConfigurationError is fatal at startup. The process must refuse to start
// rather than run with a broken action graph.
type ConfigurationError struct {
	Reason   Reason
	ActionID string
	Cycle    []string // populated for ReasonCycle: witness path, first == last
	Message  string
}

// Error implements the error interface.
func (e *ConfigurationError) Error() string {
	if len(e.Cycle) > 0 {
		return fmt.Sprintf("%s: %s (%s)", e.Reason, e.Message, strings.Join(e.Cycle, " -> "))
	}
	if e.ActionID != "" {
		return fmt.Sprintf("%s: %s (action=%s)", e.Reason, e.Message, e.ActionID)
	}
	return fmt.Sprintf("%s: %s", e.Reason, e.Message)
}

// IsConfigurationError reports whether err is a ConfigurationError,
// unwrapping as needed.
func IsConfigurationError(err error) bool {
	var ce *ConfigurationError
	return errors.As(err, &ce)
}

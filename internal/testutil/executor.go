package testutil

import (
	"context"
	"fmt"
	"sync"
)

// Outcome is one scripted executor result.
type Outcome struct {
	// Token is the result token returned on success.
	Token string

	// Err is returned instead of the token when non-nil.
	Err error
}

// ScriptedExecutor returns pre-arranged outcomes and records every
// invocation for assertions.
//
// Outcomes are consumed in order per hire ID; when a script is down to its
// last outcome that outcome repeats. With no script at all every call
// succeeds with a counter token. Safe for concurrent use.
type ScriptedExecutor struct {
	mu      sync.Mutex
	scripts map[string][]Outcome
	calls   []Call
	seq     int
}

// Call records a single executor invocation.
type Call struct {
	HireID     string
	Attributes map[string]string
}

// NewScriptedExecutor creates an executor with no scripts.
func NewScriptedExecutor() *ScriptedExecutor {
	return &ScriptedExecutor{scripts: make(map[string][]Outcome)}
}

// Script arranges the outcome sequence for a hire ID.
func (e *ScriptedExecutor) Script(hireID string, outcomes ...Outcome) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.scripts[hireID] = outcomes
}

// Execute pops the next scripted outcome for the hire.
func (e *ScriptedExecutor) Execute(ctx context.Context, hireID string, attributes map[string]string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	e.calls = append(e.calls, Call{HireID: hireID, Attributes: attributes})
	e.seq++

	script := e.scripts[hireID]
	if len(script) == 0 {
		return fmt.Sprintf("token-%d", e.seq), nil
	}

	out := script[0]
	if len(script) > 1 {
		e.scripts[hireID] = script[1:]
	}
	if out.Err != nil {
		return "", out.Err
	}
	return out.Token, nil
}

// Calls returns a copy of the recorded invocations in order.
func (e *ScriptedExecutor) Calls() []Call {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]Call(nil), e.calls...)
}

// CallCount returns how many times Execute ran for the hire.
func (e *ScriptedExecutor) CallCount(hireID string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	n := 0
	for _, c := range e.calls {
		if c.HireID == hireID {
			n++
		}
	}
	return n
}

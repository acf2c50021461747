// Package registry holds the static set of onboarding actions and their
// dependency graph. Definitions are loaded once at startup and are immutable
// at runtime; every structural problem (duplicate IDs, dangling references,
// cycles) is a ConfigurationError that refuses startup rather than a runtime
// condition.
package registry

import (
	"container/heap"
	"fmt"
	"sort"
)

// ActionDefinition declares one onboarding action.
type ActionDefinition struct {
	// ID uniquely identifies the action (e.g. "welcome_email").
	ID string

	// DependsOn lists action IDs that must be Succeeded or Skipped before
	// this action may leave Pending.
	DependsOn []string

	// Executor names the capability that performs the action. Resolution
	// to a concrete executor happens at wiring time, not here.
	Executor string
}

// Registry is the ordered set of registered actions.
//
// Register all definitions first, then call ResolveOrder once. The resolved
// order is cached; the registry must not be mutated afterwards.
type Registry struct {
	defs  map[string]ActionDefinition
	ids   []string // registration order, for deterministic validation output
	order []string // cached topological order
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{defs: make(map[string]ActionDefinition)}
}

// Register adds an action definition.
// Returns a ConfigurationError if the ID is empty, duplicate, or self-referential.
func (r *Registry) Register(def ActionDefinition) error {
	if def.ID == "" {
		return &ConfigurationError{Reason: ReasonInvalidDefinition, Message: "action id must not be empty"}
	}
	if def.Executor == "" {
		return &ConfigurationError{
			Reason:   ReasonInvalidDefinition,
			ActionID: def.ID,
			Message:  fmt.Sprintf("action %q: executor must not be empty", def.ID),
		}
	}
	if _, exists := r.defs[def.ID]; exists {
		return &ConfigurationError{
			Reason:   ReasonDuplicateAction,
			ActionID: def.ID,
			Message:  fmt.Sprintf("duplicate action id %q", def.ID),
		}
	}
	for _, dep := range def.DependsOn {
		if dep == def.ID {
			return &ConfigurationError{
				Reason:   ReasonCycle,
				ActionID: def.ID,
				Cycle:    []string{def.ID, def.ID},
				Message:  fmt.Sprintf("action %q depends on itself", def.ID),
			}
		}
	}

	// Copy DependsOn to keep the registry immune to caller mutation.
	cp := def
	cp.DependsOn = append([]string(nil), def.DependsOn...)
	r.defs[cp.ID] = cp
	r.ids = append(r.ids, cp.ID)
	r.order = nil
	return nil
}

// Definition returns the definition for an action ID.
func (r *Registry) Definition(id string) (ActionDefinition, bool) {
	def, ok := r.defs[id]
	return def, ok
}

// Len returns the number of registered actions.
func (r *Registry) Len() int {
	return len(r.defs)
}

// ResolveOrder validates the dependency graph and returns a deterministic
// topological ordering of action IDs.
//
// Validation failures:
//   - a DependsOn entry naming an unregistered action (dangling reference)
//   - any cycle, reported with a stable witness path
//
// Determinism: Kahn's algorithm with a min-heap over action IDs. The same
// registered set always resolves to the same order, independent of
// registration order.
func (r *Registry) ResolveOrder() ([]string, error) {
	if r.order != nil {
		return append([]string(nil), r.order...), nil
	}

	// Dangling references first: a cycle report over a graph with missing
	// nodes would be confusing.
	for _, id := range r.ids {
		for _, dep := range r.defs[id].DependsOn {
			if _, ok := r.defs[dep]; !ok {
				return nil, &ConfigurationError{
					Reason:   ReasonDanglingDependency,
					ActionID: id,
					Message:  fmt.Sprintf("action %q depends on unregistered action %q", id, dep),
				}
			}
		}
	}

	order := r.topoOrder()
	if len(order) != len(r.defs) {
		cycle := r.findCycle()
		return nil, &ConfigurationError{
			Reason:  ReasonCycle,
			Cycle:   cycle,
			Message: fmt.Sprintf("dependency cycle: %v", cycle),
		}
	}

	r.order = order
	return append([]string(nil), order...), nil
}

// idMinHeap is a min-heap of action IDs for deterministic ready ordering.
type idMinHeap []string

func (h idMinHeap) Len() int            { return len(h) }
func (h idMinHeap) Less(i, j int) bool  { return h[i] < h[j] }
func (h idMinHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *idMinHeap) Push(x any)         { *h = append(*h, x.(string)) }
func (h *idMinHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}

// topoOrder runs Kahn's algorithm. Returns fewer IDs than registered
// definitions when the graph has a cycle.
func (r *Registry) topoOrder() []string {
	indeg := make(map[string]int, len(r.defs))
	dependents := make(map[string][]string, len(r.defs))
	for id, def := range r.defs {
		indeg[id] += 0
		for _, dep := range def.DependsOn {
			indeg[id]++
			dependents[dep] = append(dependents[dep], id)
		}
	}

	ready := &idMinHeap{}
	heap.Init(ready)
	for id, d := range indeg {
		if d == 0 {
			heap.Push(ready, id)
		}
	}

	out := make([]string, 0, len(r.defs))
	for ready.Len() > 0 {
		id := heap.Pop(ready).(string)
		out = append(out, id)
		for _, dep := range dependents[id] {
			indeg[dep]--
			if indeg[dep] == 0 {
				heap.Push(ready, dep)
			}
		}
	}
	return out
}

// findCycle extracts one cycle path as a stable witness via DFS over
// lexically sorted IDs. A back-edge to a gray node closes the cycle.
func (r *Registry) findCycle() []string {
	const (
		white = 0
		gray  = 1
		black = 2
	)

	ids := make([]string, 0, len(r.defs))
	for id := range r.defs {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	color := make(map[string]int, len(ids))
	parent := make(map[string]string, len(ids))
	var cycle []string

	var dfs func(u string) bool
	dfs = func(u string) bool {
		color[u] = gray
		deps := append([]string(nil), r.defs[u].DependsOn...)
		sort.Strings(deps)
		for _, v := range deps {
			switch color[v] {
			case white:
				parent[v] = u
				if dfs(v) {
					return true
				}
			case gray:
				// Back-edge u -> v. Reconstruct v ... u -> v.
				cycle = append(cycle, v)
				cur := u
				for cur != "" && cur != v {
					cycle = append(cycle, cur)
					cur = parent[cur]
				}
				cycle = append(cycle, v)
				return true
			}
		}
		color[u] = black
		return false
	}

	for _, id := range ids {
		if color[id] == white && dfs(id) {
			break
		}
	}

	// Reverse so the path reads in dependency direction.
	for i, j := 0, len(cycle)-1; i < j; i, j = i+1, j-1 {
		cycle[i], cycle[j] = cycle[j], cycle[i]
	}
	return cycle
}

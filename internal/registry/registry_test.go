package registry

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustRegister(t *testing.T, r *Registry, defs ...ActionDefinition) {
	t.Helper()
	for _, def := range defs {
		require.NoError(t, r.Register(def))
	}
}

func TestRegisterRejectsEmptyID(t *testing.T) {
	r := New()
	err := r.Register(ActionDefinition{Executor: "email"})
	require.Error(t, err)

	var cfgErr *ConfigurationError
	require.True(t, errors.As(err, &cfgErr))
	assert.Equal(t, ReasonInvalidDefinition, cfgErr.Reason)
}

func TestRegisterRejectsEmptyExecutor(t *testing.T) {
	r := New()
	err := r.Register(ActionDefinition{ID: "welcome_email"})
	require.Error(t, err)

	var cfgErr *ConfigurationError
	require.True(t, errors.As(err, &cfgErr))
	assert.Equal(t, ReasonInvalidDefinition, cfgErr.Reason)
	assert.Equal(t, "welcome_email", cfgErr.ActionID)
}

func TestRegisterRejectsDuplicate(t *testing.T) {
	r := New()
	mustRegister(t, r, ActionDefinition{ID: "welcome_email", Executor: "email"})

	err := r.Register(ActionDefinition{ID: "welcome_email", Executor: "email"})
	require.Error(t, err)

	var cfgErr *ConfigurationError
	require.True(t, errors.As(err, &cfgErr))
	assert.Equal(t, ReasonDuplicateAction, cfgErr.Reason)
}

func TestRegisterRejectsSelfDependency(t *testing.T) {
	r := New()
	err := r.Register(ActionDefinition{ID: "a", DependsOn: []string{"a"}, Executor: "x"})
	require.Error(t, err)

	var cfgErr *ConfigurationError
	require.True(t, errors.As(err, &cfgErr))
	assert.Equal(t, ReasonCycle, cfgErr.Reason)
}

func TestResolveOrderDeterministic(t *testing.T) {
	// Same graph registered in two different orders resolves identically.
	build := func(defs ...ActionDefinition) []string {
		r := New()
		mustRegister(t, r, defs...)
		order, err := r.ResolveOrder()
		require.NoError(t, err)
		return order
	}

	a := ActionDefinition{ID: "welcome_email", Executor: "email"}
	b := ActionDefinition{ID: "slack_notify", DependsOn: []string{"welcome_email"}, Executor: "chat"}
	c := ActionDefinition{ID: "calendar_invite", Executor: "calendar"}

	first := build(a, b, c)
	second := build(c, b, a)

	assert.Equal(t, first, second)
	assert.Equal(t, []string{"calendar_invite", "welcome_email", "slack_notify"}, first)
}

func TestResolveOrderRespectsDependencies(t *testing.T) {
	r := New()
	mustRegister(t, r,
		ActionDefinition{ID: "badge", Executor: "badge"},
		ActionDefinition{ID: "desk", DependsOn: []string{"badge"}, Executor: "facilities"},
		ActionDefinition{ID: "laptop", DependsOn: []string{"badge"}, Executor: "it"},
		ActionDefinition{ID: "welcome", DependsOn: []string{"desk", "laptop"}, Executor: "email"},
	)

	order, err := r.ResolveOrder()
	require.NoError(t, err)

	pos := make(map[string]int, len(order))
	for i, id := range order {
		pos[id] = i
	}
	assert.Less(t, pos["badge"], pos["desk"])
	assert.Less(t, pos["badge"], pos["laptop"])
	assert.Less(t, pos["desk"], pos["welcome"])
	assert.Less(t, pos["laptop"], pos["welcome"])
}

func TestResolveOrderDanglingDependency(t *testing.T) {
	r := New()
	mustRegister(t, r, ActionDefinition{ID: "desk", DependsOn: []string{"badge"}, Executor: "facilities"})

	_, err := r.ResolveOrder()
	require.Error(t, err)

	var cfgErr *ConfigurationError
	require.True(t, errors.As(err, &cfgErr))
	assert.Equal(t, ReasonDanglingDependency, cfgErr.Reason)
	assert.Equal(t, "desk", cfgErr.ActionID)
}

func TestResolveOrderCycle(t *testing.T) {
	r := New()
	mustRegister(t, r,
		ActionDefinition{ID: "a", DependsOn: []string{"c"}, Executor: "x"},
		ActionDefinition{ID: "b", DependsOn: []string{"a"}, Executor: "x"},
		ActionDefinition{ID: "c", DependsOn: []string{"b"}, Executor: "x"},
	)

	_, err := r.ResolveOrder()
	require.Error(t, err)

	var cfgErr *ConfigurationError
	require.True(t, errors.As(err, &cfgErr))
	assert.Equal(t, ReasonCycle, cfgErr.Reason)

	// Witness path closes on its starting node.
	require.NotEmpty(t, cfgErr.Cycle)
	assert.Equal(t, cfgErr.Cycle[0], cfgErr.Cycle[len(cfgErr.Cycle)-1])
	assert.GreaterOrEqual(t, len(cfgErr.Cycle), 4)
}

func TestResolveOrderCached(t *testing.T) {
	r := New()
	mustRegister(t, r, ActionDefinition{ID: "a", Executor: "x"})

	first, err := r.ResolveOrder()
	require.NoError(t, err)

	// Mutating the returned slice must not poison the cache.
	first[0] = "mutated"

	second, err := r.ResolveOrder()
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, second)
}

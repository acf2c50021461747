package plan

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MalakaSupun/startmate/internal/registry"
)

func TestLoadValidPlan(t *testing.T) {
	p, err := Load(filepath.Join("testdata", "valid"))
	require.NoError(t, err)

	require.Len(t, p.Actions, 3)
	byID := make(map[string]registry.ActionDefinition)
	for _, def := range p.Actions {
		byID[def.ID] = def
	}
	assert.Equal(t, "email", byID["welcome_email"].Executor)
	assert.Equal(t, []string{"welcome_email"}, byID["slack_notify"].DependsOn)
	assert.Equal(t, "calendar", byID["calendar_invite"].Executor)

	assert.Equal(t, 5, p.Settings.MaxAttempts)
	assert.Equal(t, 2, p.Settings.Workers)
	assert.Equal(t, 250*time.Millisecond, p.Settings.BackoffBase)
	assert.Equal(t, 10*time.Second, p.Settings.BackoffCap)
	assert.Equal(t, time.Minute, p.Settings.PollInterval)
	// Omitted settings keep their defaults.
	assert.Equal(t, DefaultExecutorTimeout, p.Settings.ExecutorTimeout)

	assert.Equal(t, "employee_id", p.Feed.HireIDColumn)
	assert.Equal(t, "start_date", p.Feed.StartDateColumn)
	assert.Equal(t, 14, p.Feed.StartWindowDays)
}

func TestLoadMinimalPlanAppliesDefaults(t *testing.T) {
	p, err := Load(filepath.Join("testdata", "minimal"))
	require.NoError(t, err)

	assert.Equal(t, DefaultMaxAttempts, p.Settings.MaxAttempts)
	assert.Equal(t, DefaultWorkers, p.Settings.Workers)
	assert.Equal(t, DefaultBackoffBase, p.Settings.BackoffBase)
	assert.Equal(t, DefaultPollInterval, p.Settings.PollInterval)
	assert.Equal(t, DefaultStartWindowDays, p.Feed.StartWindowDays)
}

func TestLoadMissingDirectory(t *testing.T) {
	_, err := Load(filepath.Join("testdata", "does-not-exist"))
	require.Error(t, err)
	assertLoadErrorCode(t, err, ErrCodeNotFound)
}

func TestLoadDirectoryWithoutCUEFiles(t *testing.T) {
	_, err := Load(t.TempDir())
	require.Error(t, err)
	assertLoadErrorCode(t, err, ErrCodeNoFiles)
}

func TestLoadMissingPlanStruct(t *testing.T) {
	_, err := Load(filepath.Join("testdata", "noplan"))
	require.Error(t, err)
	assertLoadErrorCode(t, err, ErrCodeBadField)
}

func TestCyclicPlanFailsAtRegistry(t *testing.T) {
	p, err := Load(filepath.Join("testdata", "cyclic"))
	require.NoError(t, err, "cycles are the registry's to reject, not the loader's")

	_, err = p.Registry()
	require.Error(t, err)
	assert.True(t, registry.IsConfigurationError(err))
}

func TestRegistryFromValidPlan(t *testing.T) {
	p, err := Load(filepath.Join("testdata", "valid"))
	require.NoError(t, err)

	reg, err := p.Registry()
	require.NoError(t, err)
	assert.Equal(t, 3, reg.Len())

	order, err := reg.ResolveOrder()
	require.NoError(t, err)
	assert.Equal(t, []string{"calendar_invite", "welcome_email", "slack_notify"}, order)
}

func TestExecutorNamesFirstUseOrder(t *testing.T) {
	p := &Plan{Actions: []registry.ActionDefinition{
		{ID: "a", Executor: "email"},
		{ID: "b", Executor: "chat"},
		{ID: "c", Executor: "email"},
	}}
	assert.Equal(t, []string{"email", "chat"}, p.ExecutorNames())
}

func assertLoadErrorCode(t *testing.T, err error, code string) {
	t.Helper()
	loadErr, ok := err.(*LoadError)
	require.True(t, ok, "err = %T, want *LoadError", err)
	assert.Equal(t, code, loadErr.Code)
}

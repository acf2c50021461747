package harness

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeScenario(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "scenario.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadScenarioRejectsUnknownFields(t *testing.T) {
	path := writeScenario(t, `
name: typo
description: has a misspelled key
actions:
  - id: a
    executor: x
events:
  - hire_id: h1
expectations:
  - hire_id: h1
    action_id: a
    status: succeeded
`)
	_, err := LoadScenario(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "expectations")
}

func TestLoadScenarioRequiresExpect(t *testing.T) {
	path := writeScenario(t, `
name: no-expect
description: missing the expect list
actions:
  - id: a
    executor: x
events:
  - hire_id: h1
`)
	_, err := LoadScenario(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "expect")
}

func TestLoadScenarioRejectsAmbiguousOutcome(t *testing.T) {
	path := writeScenario(t, `
name: ambiguous
description: outcome with both token and error
actions:
  - id: a
    executor: x
events:
  - hire_id: h1
scripts:
  - executor: x
    hire_id: h1
    outcomes:
      - token: tok
        error: boom
expect:
  - hire_id: h1
    action_id: a
    status: succeeded
`)
	_, err := LoadScenario(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mutually exclusive")
}

func TestLoadScenarioValid(t *testing.T) {
	scenario, err := LoadScenario(filepath.Join("testdata", "scenarios", "full-checklist.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "full-checklist", scenario.Name)
	assert.Len(t, scenario.Actions, 3)
	assert.Len(t, scenario.Events, 1)
	assert.Len(t, scenario.Expect, 3)
}

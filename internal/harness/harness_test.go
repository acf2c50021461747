package harness

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestScenarios(t *testing.T) {
	files, err := filepath.Glob(filepath.Join("testdata", "scenarios", "*.yaml"))
	require.NoError(t, err)
	require.NotEmpty(t, files, "no scenario files found")

	for _, file := range files {
		file := file
		t.Run(filepath.Base(file), func(t *testing.T) {
			scenario, err := LoadScenario(file)
			require.NoError(t, err)

			result, err := Run(scenario)
			require.NoError(t, err)

			Verify(t, scenario, result)
			AssertGolden(t, scenario, result)
		})
	}
}

func TestScenarioSummaryCounters(t *testing.T) {
	scenario, err := LoadScenario(filepath.Join("testdata", "scenarios", "retry-then-succeed.yaml"))
	require.NoError(t, err)

	result, err := Run(scenario)
	require.NoError(t, err)

	require.Equal(t, 3, result.Summary.Claimed)
	require.Equal(t, 1, result.Summary.Succeeded)
	require.Equal(t, 2, result.Summary.Failed)
	require.Equal(t, 2, result.Summary.Retried)
}

package harness

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Regenerate with: go test ./internal/harness -run TestScenarios -update
func TestScenarios(t *testing.T) {
	paths, err := filepath.Glob("testdata/scenarios/*.yaml")
	require.NoError(t, err)
	require.NotEmpty(t, paths)

	for _, path := range paths {
		scenario, err := LoadScenario(path)
		require.NoError(t, err)

		t.Run(scenario.Name, func(t *testing.T) {
			result, err := RunWithGolden(t, scenario)
			require.NoError(t, err)
			assert.True(t, result.Pass, strings.Join(result.Errors, "\n"))
		})
	}
}

func TestSnapshot_OmitsArgsAndResults(t *testing.T) {
	result := NewResult()
	result.AddInvocationTrace("table.create", map[string]any{"password": "1234"}, 1)
	result.AddCompletionTrace("table.create", CaseSuccess, map[string]any{"id": "id-0001"}, 2)
	result.AddEventTrace("session_started", map[string]any{"id": "T01"}, 3)

	data, err := Snapshot("snap", result)
	require.NoError(t, err)

	assert.Equal(t,
		`{"scenario_name":"snap","trace":[`+
			`{"action_uri":"table.create","seq":1,"type":"invocation"},`+
			`{"action_uri":"table.create","output_case":"Success","seq":2,"type":"completion"},`+
			`{"event":"session_started","seq":3,"type":"event"}]}`,
		string(data))
}

func TestSnapshot_Deterministic(t *testing.T) {
	result := NewResult()
	result.AddInvocationTrace("session.start", map[string]any{"table_number": 1}, 1)
	result.AddCompletionTrace("session.start", "NOT_FOUND", nil, 2)

	first, err := Snapshot("det", result)
	require.NoError(t, err)
	for range 5 {
		again, err := Snapshot("det", result)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestAssertGolden_FromResult(t *testing.T) {
	scenario, err := LoadScenario("testdata/scenarios/table_rules.yaml")
	require.NoError(t, err)

	result, err := Run(scenario)
	require.NoError(t, err)
	require.NoError(t, AssertGolden(t, scenario.Name, result))
}

package harness

import (
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/tableorder/internal/journal"
)

// TraceSnapshot captures the shape of a scenario execution: which
// operations ran, how each completed and which events they published.
// Arguments, results and payloads are left out because they carry
// generated ids and timestamps.
type TraceSnapshot struct {
	ScenarioName string       `json:"scenario_name"`
	Trace        []TraceEntry `json:"trace"`
}

// toCanonicalMap converts the snapshot into plain maps for canonical JSON.
func (s *TraceSnapshot) toCanonicalMap() map[string]any {
	traceList := make([]any, len(s.Trace))
	for i, entry := range s.Trace {
		m := map[string]any{
			"type": entry.Type,
			"seq":  entry.Seq,
		}
		if entry.ActionURI != "" {
			m["action_uri"] = entry.ActionURI
		}
		if entry.OutputCase != "" {
			m["output_case"] = entry.OutputCase
		}
		if entry.Event != "" {
			m["event"] = entry.Event
		}
		traceList[i] = m
	}
	return map[string]any{
		"scenario_name": s.ScenarioName,
		"trace":         traceList,
	}
}

// Snapshot renders the canonical JSON golden form of a result.
func Snapshot(scenarioName string, result *Result) ([]byte, error) {
	snapshot := TraceSnapshot{
		ScenarioName: scenarioName,
		Trace:        result.Trace,
	}
	return journal.MarshalCanonical(snapshot.toCanonicalMap())
}

// RunWithGolden executes a scenario and compares the trace against a golden file.
// The golden file is stored in testdata/golden/{scenario.Name}.golden
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return nil, err
	}
	if err := AssertGolden(t, scenario.Name, result); err != nil {
		return nil, err
	}
	return result, nil
}

// AssertGolden compares the given result's trace against a golden file
// without re-running the scenario.
func AssertGolden(t *testing.T, scenarioName string, result *Result) error {
	t.Helper()

	traceJSON, err := Snapshot(scenarioName, result)
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenarioName, traceJSON)
	return nil
}

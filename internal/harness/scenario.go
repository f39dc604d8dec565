package harness

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/roach88/tableorder/internal/docstore"
)

// Scenario defines a conformance scenario: a sequence of operations against
// a fresh store, the outcome expected from each, and assertions over the
// resulting trace and collections.
type Scenario struct {
	// Name uniquely identifies this scenario.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Store is the tenant the scenario runs against. Defaults to DefaultStore.
	Store string `yaml:"store,omitempty"`

	// StartTime is the RFC 3339 instant the deterministic clock starts at.
	// Defaults to DefaultStartTime.
	StartTime string `yaml:"start_time,omitempty"`

	// SessionExpiry overrides the session lifetime (e.g. "1h").
	SessionExpiry string `yaml:"session_expiry,omitempty"`

	// Setup contains operations run before the flow. Setup operations must
	// succeed; a failure aborts the run.
	Setup []ActionStep `yaml:"setup,omitempty"`

	// Flow contains the operations under test with their expected outcome.
	Flow []FlowStep `yaml:"flow"`

	// Assertions validate the final trace and collections.
	// Supported types: trace_contains, trace_order, trace_count,
	// final_state, state_count.
	Assertions []Assertion `yaml:"assertions"`
}

// ActionStep is a single setup operation.
type ActionStep struct {
	// Action names the operation (e.g. "table.create").
	Action string `yaml:"action"`

	// Args are the operation arguments. String values of the form "$name"
	// are replaced by a saved variable.
	Args map[string]any `yaml:"args"`

	// Save maps variable names to dotted paths in the operation result.
	Save map[string]string `yaml:"save,omitempty"`
}

// FlowStep is a single operation of the main flow.
type FlowStep struct {
	// Invoke names the operation.
	Invoke string `yaml:"invoke"`

	// Args are the operation arguments.
	Args map[string]any `yaml:"args"`

	// Save maps variable names to dotted paths in the operation result.
	Save map[string]string `yaml:"save,omitempty"`

	// Expect specifies the expected outcome. If nil, the step must succeed.
	Expect *ExpectClause `yaml:"expect,omitempty"`
}

// ExpectClause specifies an expected outcome.
type ExpectClause struct {
	// Case is CaseSuccess or an error kind (NOT_FOUND, VALIDATION,
	// DUPLICATE, CONCURRENCY).
	Case string `yaml:"case"`

	// Result is a subset of the expected result fields. Only checked on
	// success.
	Result map[string]any `yaml:"result,omitempty"`
}

// Assertion validates the trace or a collection.
type Assertion struct {
	// Type specifies the assertion type:
	// - "trace_contains": an operation with the given args was invoked
	// - "trace_order": operations or events appear in this order
	// - "trace_count": an operation or event appears exactly Count times
	// - "final_state": exactly one record matches Where and has Expect
	// - "state_count": exactly Count records match Where
	Type string `yaml:"type"`

	// Action is an operation name or event type (trace_contains,
	// trace_count).
	Action string `yaml:"action,omitempty"`

	// Args are the expected operation arguments (trace_contains).
	Args map[string]any `yaml:"args,omitempty"`

	// Table is the collection name (final_state, state_count).
	Table string `yaml:"table,omitempty"`

	// Where filters records by field equality.
	Where map[string]any `yaml:"where,omitempty"`

	// Expect contains expected field values (final_state).
	Expect map[string]any `yaml:"expect,omitempty"`

	// Count is the expected number of occurrences or records.
	Count int `yaml:"count,omitempty"`

	// Actions is the expected order (trace_order).
	Actions []string `yaml:"actions,omitempty"`
}

// Assertion type constants.
const (
	AssertTraceContains = "trace_contains"
	AssertTraceOrder    = "trace_order"
	AssertTraceCount    = "trace_count"
	AssertFinalState    = "final_state"
	AssertStateCount    = "state_count"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses and validates scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	// Reject unknown fields (catches typos like "assertion:" vs "assertions:")
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if s.Store != "" {
		if err := docstore.ValidateTenant(s.Store); err != nil {
			return fmt.Errorf("store: %w", err)
		}
	}
	if s.StartTime != "" {
		if _, err := time.Parse(time.RFC3339, s.StartTime); err != nil {
			return fmt.Errorf("start_time: %w", err)
		}
	}
	if s.SessionExpiry != "" {
		d, err := time.ParseDuration(s.SessionExpiry)
		if err != nil {
			return fmt.Errorf("session_expiry: %w", err)
		}
		if d <= 0 {
			return fmt.Errorf("session_expiry must be positive")
		}
	}
	if len(s.Flow) == 0 {
		return fmt.Errorf("flow list is required and must be non-empty")
	}
	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	for i, step := range s.Setup {
		if step.Action == "" {
			return fmt.Errorf("setup[%d]: action is required", i)
		}
		if _, ok := operations[step.Action]; !ok {
			return fmt.Errorf("setup[%d]: unknown action %q", i, step.Action)
		}
		if step.Args == nil {
			return fmt.Errorf("setup[%d]: args is required (use empty map if no args)", i)
		}
	}

	for i, step := range s.Flow {
		if step.Invoke == "" {
			return fmt.Errorf("flow[%d]: invoke is required", i)
		}
		if _, ok := operations[step.Invoke]; !ok {
			return fmt.Errorf("flow[%d]: unknown action %q", i, step.Invoke)
		}
		if step.Args == nil {
			return fmt.Errorf("flow[%d]: args is required (use empty map if no args)", i)
		}
		if step.Expect != nil && !validCase(step.Expect.Case) {
			return fmt.Errorf("flow[%d].expect: case must be one of %v", i, validCases)
		}
	}

	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion); err != nil {
			return err
		}
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertTraceContains:
		if a.Action == "" {
			return fmt.Errorf("assertions[%d]: action is required for trace_contains", index)
		}
	case AssertTraceOrder:
		if len(a.Actions) == 0 {
			return fmt.Errorf("assertions[%d]: actions list is required for trace_order", index)
		}
	case AssertTraceCount:
		if a.Action == "" {
			return fmt.Errorf("assertions[%d]: action is required for trace_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for trace_count", index)
		}
	case AssertFinalState, AssertStateCount:
		if a.Table == "" {
			return fmt.Errorf("assertions[%d]: table is required for %s", index, a.Type)
		}
		if !docstore.Entity(a.Table).Valid() {
			return fmt.Errorf("assertions[%d]: unknown table %q", index, a.Table)
		}
		if a.Type == AssertFinalState && len(a.Expect) == 0 {
			return fmt.Errorf("assertions[%d]: expect is required for final_state", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}

	return nil
}

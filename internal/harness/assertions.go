package harness

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/roach88/tableorder/internal/docstore"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string       // Assertion type for categorization
	Expected string       // Human-readable expected outcome
	Actual   string       // Human-readable actual outcome
	Trace    []TraceEntry // Full trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nFull trace:\n")
		for i, entry := range e.Trace {
			switch entry.Type {
			case TraceInvocation:
				fmt.Fprintf(&buf, "  [%d] %s %v\n", i+1, entry.ActionURI, entry.Args)
			case TraceEvent:
				fmt.Fprintf(&buf, "  [%d] event %s\n", i+1, entry.Event)
			}
		}
	}

	return buf.String()
}

// traceName returns the name an assertion refers to a trace entry by: the
// operation for invocations, the event type for events. Completions have
// no name.
func traceName(entry TraceEntry) string {
	switch entry.Type {
	case TraceInvocation:
		return entry.ActionURI
	case TraceEvent:
		return entry.Event
	}
	return ""
}

// assertTraceContains checks if the trace contains an invocation matching
// the specified action and args (subset match).
func assertTraceContains(trace []TraceEntry, assertion Assertion) error {
	for _, entry := range trace {
		if entry.Type == TraceInvocation && entry.ActionURI == assertion.Action {
			if matchArgs(entry.Args, assertion.Args) {
				return nil
			}
		}
	}

	return &AssertionError{
		Type:     AssertTraceContains,
		Expected: fmt.Sprintf("action %s with args %v", assertion.Action, assertion.Args),
		Actual:   "not found in trace",
		Trace:    trace,
	}
}

// assertTraceOrder checks if operations or events first appear in the
// specified order. Intervening entries are allowed.
func assertTraceOrder(trace []TraceEntry, assertion Assertion) error {
	positions := make(map[string]int)
	for i, entry := range trace {
		name := traceName(entry)
		if name == "" {
			continue
		}
		if _, seen := positions[name]; !seen {
			positions[name] = i + 1 // 1-indexed for readability
		}
	}

	for _, action := range assertion.Actions {
		if _, ok := positions[action]; !ok {
			return &AssertionError{
				Type:     AssertTraceOrder,
				Expected: fmt.Sprintf("all actions present: %v", assertion.Actions),
				Actual:   fmt.Sprintf("missing action: %s", action),
				Trace:    trace,
			}
		}
	}

	for i := 1; i < len(assertion.Actions); i++ {
		prev := assertion.Actions[i-1]
		curr := assertion.Actions[i]
		if positions[prev] >= positions[curr] {
			return &AssertionError{
				Type:     AssertTraceOrder,
				Expected: fmt.Sprintf("actions in order: %v", assertion.Actions),
				Actual: fmt.Sprintf("%s (pos %d) should be before %s (pos %d)",
					prev, positions[prev], curr, positions[curr]),
				Trace: trace,
			}
		}
	}

	return nil
}

// assertTraceCount checks if the operation or event appears exactly the
// specified number of times.
func assertTraceCount(trace []TraceEntry, assertion Assertion) error {
	count := 0
	for _, entry := range trace {
		if traceName(entry) == assertion.Action {
			count++
		}
	}

	if count != assertion.Count {
		return &AssertionError{
			Type:     AssertTraceCount,
			Expected: fmt.Sprintf("%d occurrences of %s", assertion.Count, assertion.Action),
			Actual:   fmt.Sprintf("%d occurrences", count),
			Trace:    trace,
		}
	}
	return nil
}

// matchingRecords reads the collection named by the assertion and returns
// the records whose fields equal every Where value.
func matchingRecords(ctx context.Context, st *docstore.Store, tenant string, assertion Assertion) ([]map[string]any, error) {
	entity := docstore.Entity(assertion.Table)
	if !entity.Valid() {
		return nil, fmt.Errorf("unknown table %q", assertion.Table)
	}
	if entity.Global() {
		tenant = ""
	}

	records, err := st.Read(ctx, entity, tenant)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", assertion.Table, err)
	}

	var matched []map[string]any
	for _, rec := range records {
		row, ok := normalize(map[string]any(rec)).(map[string]any)
		if !ok {
			continue
		}
		if matchArgs(row, assertion.Where) {
			matched = append(matched, row)
		}
	}
	return matched, nil
}

// assertFinalState checks that exactly one record matches Where and that it
// carries every Expect value (subset semantics).
func assertFinalState(ctx context.Context, st *docstore.Store, tenant string, assertion Assertion) error {
	rows, err := matchingRecords(ctx, st, tenant, assertion)
	if err != nil {
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("read table %s", assertion.Table),
			Actual:   err.Error(),
		}
	}

	whereDesc := formatWhereClause(assertion.Where)
	switch len(rows) {
	case 0:
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("row in %s where %s", assertion.Table, whereDesc),
			Actual:   "row not found",
		}
	case 1:
	default:
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("exactly one row in %s where %s", assertion.Table, whereDesc),
			Actual:   fmt.Sprintf("%d rows matched (assertion is ambiguous)", len(rows)),
		}
	}

	row := rows[0]
	for _, key := range sortedKeys(assertion.Expect) {
		expected := normalize(assertion.Expect[key])
		actual, exists := row[key]
		if !exists {
			return &AssertionError{
				Type:     AssertFinalState,
				Expected: fmt.Sprintf("field %q to exist", key),
				Actual:   fmt.Sprintf("field %q not present in record: %v", key, sortedKeys(row)),
			}
		}
		if !valuesEqual(actual, expected) {
			return &AssertionError{
				Type:     AssertFinalState,
				Expected: fmt.Sprintf("field %q = %v", key, expected),
				Actual:   fmt.Sprintf("field %q = %v", key, actual),
			}
		}
	}
	return nil
}

// assertStateCount checks how many records match Where.
func assertStateCount(ctx context.Context, st *docstore.Store, tenant string, assertion Assertion) error {
	rows, err := matchingRecords(ctx, st, tenant, assertion)
	if err != nil {
		return &AssertionError{
			Type:     AssertStateCount,
			Expected: fmt.Sprintf("read table %s", assertion.Table),
			Actual:   err.Error(),
		}
	}
	if len(rows) != assertion.Count {
		return &AssertionError{
			Type:     AssertStateCount,
			Expected: fmt.Sprintf("%d rows in %s where %s", assertion.Count, assertion.Table, formatWhereClause(assertion.Where)),
			Actual:   fmt.Sprintf("%d rows", len(rows)),
		}
	}
	return nil
}

// formatWhereClause creates a human-readable description of Where conditions.
func formatWhereClause(where map[string]any) string {
	if len(where) == 0 {
		return "(no conditions)"
	}

	parts := make([]string, 0, len(where))
	for _, k := range sortedKeys(where) {
		parts = append(parts, fmt.Sprintf("%s=%v", k, where[k]))
	}
	return strings.Join(parts, " AND ")
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// normalize maps a value onto its JSON data model, so YAML ints, typed
// structs and json.Number all compare as float64 and plain maps.
func normalize(v any) any {
	if v == nil {
		return nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return v
	}
	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return v
	}
	return out
}

// matchArgs checks if actual contains all expected keys with equal values
// (subset match). Extra keys in actual are ignored.
func matchArgs(actual any, expected map[string]any) bool {
	if len(expected) == 0 {
		return true
	}

	actualMap, ok := normalize(actual).(map[string]any)
	if !ok {
		return false
	}

	for key, expectedVal := range expected {
		actualVal, exists := actualMap[key]
		if !exists {
			return false
		}
		if !valuesEqual(actualVal, normalize(expectedVal)) {
			return false
		}
	}
	return true
}

// valuesEqual compares two normalized values. Nested maps are compared with
// subset semantics; everything else must be deeply equal.
func valuesEqual(actual, expected any) bool {
	if actual == nil && expected == nil {
		return true
	}
	if actual == nil || expected == nil {
		return false
	}
	if expMap, ok := expected.(map[string]any); ok {
		return matchArgs(actual, expMap)
	}
	return reflect.DeepEqual(actual, expected)
}

// AssertionContext provides store access for state assertions.
type AssertionContext struct {
	Ctx    context.Context
	Store  *docstore.Store
	Tenant string
}

// EvaluateAssertions evaluates all assertions against the result.
// Returns a slice of error messages for failed assertions.
// The actx parameter provides store access for state assertions.
func EvaluateAssertions(result *Result, assertions []Assertion, actx *AssertionContext) []string {
	var errors []string

	for i, assertion := range assertions {
		var err error

		switch assertion.Type {
		case AssertTraceContains:
			err = assertTraceContains(result.Trace, assertion)
		case AssertTraceOrder:
			err = assertTraceOrder(result.Trace, assertion)
		case AssertTraceCount:
			err = assertTraceCount(result.Trace, assertion)
		case AssertFinalState, AssertStateCount:
			if actx == nil || actx.Store == nil {
				err = fmt.Errorf("assertion[%d]: %s requires store context", i, assertion.Type)
			} else if assertion.Type == AssertFinalState {
				err = assertFinalState(actx.Ctx, actx.Store, actx.Tenant, assertion)
			} else {
				err = assertStateCount(actx.Ctx, actx.Store, actx.Tenant, assertion)
			}
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, assertion.Type)
		}

		if err != nil {
			errors = append(errors, err.Error())
		}
	}

	return errors
}

package harness

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRun_MinimalScenario(t *testing.T) {
	scenario := &Scenario{
		Name:        "minimal",
		Description: "Register a table",
		Flow: []FlowStep{
			{Invoke: "table.create", Args: map[string]any{"table_number": 1, "password": "1234"}},
		},
		Assertions: []Assertion{
			{Type: AssertTraceContains, Action: "table.create"},
		},
	}

	result, err := Run(scenario)
	require.NoError(t, err)

	assert.True(t, result.Pass, result.Errors)
	assert.Empty(t, result.Errors)
	require.Len(t, result.Trace, 2)
	assert.Equal(t, TraceInvocation, result.Trace[0].Type)
	assert.Equal(t, TraceCompletion, result.Trace[1].Type)
	assert.Equal(t, CaseSuccess, result.Trace[1].OutputCase)
	assert.Equal(t, int64(1), result.Trace[0].Seq)
	assert.Equal(t, int64(2), result.Trace[1].Seq)
}

func TestRun_ExpectMismatchFails(t *testing.T) {
	scenario := &Scenario{
		Name:        "mismatch",
		Description: "Starting a session on an unknown table is NOT_FOUND, not Success",
		Flow: []FlowStep{
			{Invoke: "session.start", Args: map[string]any{"table_number": 5}},
			{Invoke: "table.create", Args: map[string]any{"table_number": 5, "password": "1234"},
				Expect: &ExpectClause{Case: "DUPLICATE"}},
		},
		Assertions: []Assertion{
			{Type: AssertTraceCount, Action: "session_started", Count: 0},
		},
	}

	result, err := Run(scenario)
	require.NoError(t, err)

	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 2)
	assert.Contains(t, result.Errors[0], "flow[0] session.start: expected case Success, got NOT_FOUND")
	assert.Contains(t, result.Errors[1], "flow[1] table.create: expected case DUPLICATE, got Success")
}

func TestRun_ResultMismatchFails(t *testing.T) {
	scenario := &Scenario{
		Name:        "result_mismatch",
		Description: "Result subset is checked",
		Flow: []FlowStep{
			{Invoke: "table.create", Args: map[string]any{"table_number": 2, "password": "1234"},
				Expect: &ExpectClause{Case: CaseSuccess, Result: map[string]any{"table_number": 3}}},
		},
		Assertions: []Assertion{
			{Type: AssertTraceContains, Action: "table.create"},
		},
	}

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "does not contain")
}

func TestRun_SetupFailureAborts(t *testing.T) {
	scenario := &Scenario{
		Name:        "bad_setup",
		Description: "Setup must succeed",
		Setup: []ActionStep{
			{Action: "session.end", Args: map[string]any{"table_number": 1}},
		},
		Flow:       []FlowStep{{Invoke: "table.list", Args: map[string]any{}}},
		Assertions: []Assertion{{Type: AssertTraceCount, Action: "table.list", Count: 1}},
	}

	_, err := Run(scenario)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "setup step 0 (session.end): VALIDATION")
}

func TestRun_UndefinedVariable(t *testing.T) {
	scenario := &Scenario{
		Name:        "undefined_var",
		Description: "Variables must be saved before use",
		Flow: []FlowStep{
			{Invoke: "order.delete", Args: map[string]any{"order_id": "$nope"}},
		},
		Assertions: []Assertion{{Type: AssertTraceCount, Action: "order.delete", Count: 1}},
	}

	_, err := Run(scenario)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "undefined variable $nope")
}

func TestRun_VariablesAndEvents(t *testing.T) {
	scenario := &Scenario{
		Name:        "variables",
		Description: "Saved ids flow into later steps",
		Setup: []ActionStep{
			{Action: "menu.create", Args: map[string]any{"name": "라면", "price": 5000, "category": "분식"}, Save: map[string]string{"ramen": "id"}},
			{Action: "table.create", Args: map[string]any{"table_number": 4, "password": "1234"}},
			{Action: "session.start", Args: map[string]any{"table_number": 4}, Save: map[string]string{"session": "id"}},
		},
		Flow: []FlowStep{
			{
				Invoke: "order.create",
				Args: map[string]any{
					"table_number": 4,
					"session_id":   "$session",
					"items":        []any{map[string]any{"menu_id": "$ramen", "quantity": 2}},
				},
				Save: map[string]string{"order": "id", "line": "items.0.menu_name"},
				Expect: &ExpectClause{Case: CaseSuccess, Result: map[string]any{
					"total_amount": 10000,
					"session_id":   "$session",
				}},
			},
			{Invoke: "order.delete", Args: map[string]any{"order_id": "$order"}},
			{Invoke: "order.delete", Args: map[string]any{"order_id": "$order"}, Expect: &ExpectClause{Case: "NOT_FOUND"}},
		},
		Assertions: []Assertion{
			{Type: AssertTraceOrder, Actions: []string{"session_started", "order_created", "order_deleted"}},
			{Type: AssertStateCount, Table: "orders", Count: 0},
			{Type: AssertTraceContains, Action: "order.delete", Args: map[string]any{"order_id": "$order"}},
		},
	}

	result, err := Run(scenario)
	require.NoError(t, err)

	assert.True(t, result.Pass, result.Errors)
	assert.Equal(t, "라면", result.Vars["line"])
	assert.NotEmpty(t, result.Vars["order"])
	assert.Equal(t, "T04-20260314090000", result.Vars["session"])
}

func TestRun_ClockAdvanceExpiresSessions(t *testing.T) {
	scenario := &Scenario{
		Name:          "sweep",
		Description:   "session.expire ends sessions past their expiry",
		SessionExpiry: "30m",
		Setup: []ActionStep{
			{Action: "table.create", Args: map[string]any{"table_number": 1, "password": "1234"}},
			{Action: "table.create", Args: map[string]any{"table_number": 2, "password": "1234"}},
			{Action: "session.start", Args: map[string]any{"table_number": 1}},
			{Action: "session.start", Args: map[string]any{"table_number": 2}},
		},
		Flow: []FlowStep{
			{Invoke: "session.expire", Args: map[string]any{}, Expect: &ExpectClause{Case: CaseSuccess, Result: map[string]any{"expired": 0}}},
			{Invoke: "clock.advance", Args: map[string]any{"duration": "31m"}, Expect: &ExpectClause{Case: CaseSuccess, Result: map[string]any{"now": "2026-03-14T09:31:00Z"}}},
			{Invoke: "session.expire", Args: map[string]any{}, Expect: &ExpectClause{Case: CaseSuccess, Result: map[string]any{"expired": 2}}},
		},
		Assertions: []Assertion{
			{Type: AssertTraceCount, Action: "session_ended", Count: 2},
			{Type: AssertStateCount, Table: "sessions", Where: map[string]any{"status": "ended"}, Count: 2},
			{Type: AssertStateCount, Table: "order_history", Count: 0},
		},
	}

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass, result.Errors)
}

func TestRun_Deterministic(t *testing.T) {
	scenario, err := LoadScenario("testdata/scenarios/order_lifecycle.yaml")
	require.NoError(t, err)

	first, err := Run(scenario)
	require.NoError(t, err)
	second, err := Run(scenario)
	require.NoError(t, err)

	assert.Equal(t, first.Trace, second.Trace)
	assert.Equal(t, first.Vars, second.Vars)
}

func TestRun_FreshStorePerRun(t *testing.T) {
	scenario := &Scenario{
		Name:        "fresh",
		Description: "Each run starts from an empty data directory",
		Flow: []FlowStep{
			{Invoke: "table.create", Args: map[string]any{"table_number": 1, "password": "1234"}},
		},
		Assertions: []Assertion{
			{Type: AssertStateCount, Table: "tables", Count: 1},
		},
	}

	for range 2 {
		result, err := Run(scenario)
		require.NoError(t, err)
		assert.True(t, result.Pass, result.Errors)
	}
}

func TestRun_CustomStore(t *testing.T) {
	scenario := &Scenario{
		Name:        "custom_store",
		Description: "Operations use the scenario's store",
		Store:       "store042",
		Setup:       []ActionStep{{Action: "seed", Args: map[string]any{}}},
		Flow: []FlowStep{
			{Invoke: "menu.find", Args: map[string]any{"name": "김치찌개"}, Expect: &ExpectClause{Case: CaseSuccess, Result: map[string]any{"store_id": "store042", "price": 9000}}},
			{Invoke: "menu.find", Args: map[string]any{"name": "피자"}, Expect: &ExpectClause{Case: "NOT_FOUND"}},
		},
		Assertions: []Assertion{
			{Type: AssertFinalState, Table: "stores", Where: map[string]any{"id": "store042"}, Expect: map[string]any{"name": "맛있는 식당"}},
			{Type: AssertStateCount, Table: "menus", Count: 23},
		},
	}

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass, result.Errors)
}

func TestLookupPath(t *testing.T) {
	v := normalize(map[string]any{
		"session": map[string]any{"id": "T01-x"},
		"items":   []any{map[string]any{"menu_id": "m-1"}},
	})

	got, ok := lookupPath(v, "session.id")
	assert.True(t, ok)
	assert.Equal(t, "T01-x", got)

	got, ok = lookupPath(v, "items.0.menu_id")
	assert.True(t, ok)
	assert.Equal(t, "m-1", got)

	_, ok = lookupPath(v, "items.1.menu_id")
	assert.False(t, ok)
	_, ok = lookupPath(v, "session.missing")
	assert.False(t, ok)
}

func TestResult_AddError(t *testing.T) {
	r := NewResult()
	assert.True(t, r.Pass)
	r.AddError("boom")
	assert.False(t, r.Pass)
	assert.Equal(t, []string{"boom"}, r.Errors)
}

package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/roach88/tableorder/internal/app"
	"github.com/roach88/tableorder/internal/apperr"
	"github.com/roach88/tableorder/internal/config"
	"github.com/roach88/tableorder/internal/eventbus"
	"github.com/roach88/tableorder/internal/testutil"
)

// DefaultStore is the tenant scenarios run against unless they name one.
const DefaultStore = "store001"

// DefaultStartTime is where the scenario clock starts unless overridden.
const DefaultStartTime = "2026-03-14T09:00:00Z"

// eventBuffer is large enough that no scenario step drops an event.
const eventBuffer = 1024

// Harness executes scenarios against a real application graph.
// Every run gets a fresh data directory, a fixed clock and sequential ids,
// so the trace of a scenario is identical across runs.
type Harness struct {
	app    *app.App
	clock  *testutil.Clock
	tenant string
	events *eventbus.Subscription
	seq    int64
	vars   map[string]any
	logger *slog.Logger
}

// Run executes a test scenario and returns the result.
//
// Execution flow:
// 1. Create a temporary data directory and build the application on it
// 2. Subscribe to the tenant's events
// 3. Execute setup steps (each must succeed)
// 4. Execute flow steps, checking expect clauses
// 5. Evaluate assertions against the trace and the stored collections
func Run(scenario *Scenario) (*Result, error) {
	return RunContext(context.Background(), scenario)
}

// RunContext is Run with a caller-supplied context.
func RunContext(ctx context.Context, scenario *Scenario) (*Result, error) {
	dir, err := os.MkdirTemp("", "tableorder-scenario-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	defer os.RemoveAll(dir)

	start, err := time.Parse(time.RFC3339, orDefault(scenario.StartTime, DefaultStartTime))
	if err != nil {
		return nil, fmt.Errorf("start_time: %w", err)
	}

	cfg := config.Default()
	cfg.DataDir = dir
	cfg.Journal.Path = ""
	cfg.Events.Buffer = eventBuffer
	if scenario.SessionExpiry != "" {
		if cfg.Session.Expiry, err = time.ParseDuration(scenario.SessionExpiry); err != nil {
			return nil, fmt.Errorf("session_expiry: %w", err)
		}
	}

	clock := testutil.NewClock(start)
	a, err := app.New(cfg,
		app.WithClock(clock),
		app.WithIDs(testutil.NewSequenceIDs("id")),
		app.WithHashCost(bcrypt.MinCost),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to build application: %w", err)
	}
	defer a.Close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	h := &Harness{
		app:    a,
		clock:  clock,
		tenant: orDefault(scenario.Store, DefaultStore),
		vars:   make(map[string]any),
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	h.events = a.Bus.Subscribe(ctx, h.tenant)

	result := NewResult()
	if err := h.executeSetup(ctx, scenario.Setup, result); err != nil {
		return nil, fmt.Errorf("failed to execute setup: %w", err)
	}
	if err := h.executeFlow(ctx, scenario.Flow, result); err != nil {
		return nil, fmt.Errorf("failed to execute flow: %w", err)
	}

	assertions, err := h.resolveAssertions(scenario.Assertions)
	if err != nil {
		return nil, err
	}
	actx := &AssertionContext{
		Ctx:    ctx,
		Store:  a.Store,
		Tenant: h.tenant,
	}
	for _, msg := range EvaluateAssertions(result, assertions, actx) {
		result.AddError(msg)
	}
	result.Vars = h.vars

	return result, nil
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

func (h *Harness) next() int64 {
	h.seq++
	return h.seq
}

// invoke traces and runs one operation. It returns the operation's output
// case and its result in JSON form.
func (h *Harness) invoke(ctx context.Context, action string, rawArgs map[string]any, result *Result) (string, any, error) {
	args, err := h.resolve(rawArgs)
	if err != nil {
		return "", nil, err
	}
	argMap, _ := args.(map[string]any)

	result.AddInvocationTrace(action, argMap, h.next())

	op, ok := operations[action]
	if !ok {
		return "", nil, fmt.Errorf("unknown action %q", action)
	}
	out, opErr := op(ctx, h, argMap)

	outputCase := CaseSuccess
	var payload any
	if opErr != nil {
		kind := apperr.KindOf(opErr)
		if kind == "" {
			return "", nil, fmt.Errorf("%s: %w", action, opErr)
		}
		outputCase = string(kind)
		payload = map[string]any{"message": opErr.Error()}
	} else {
		payload = normalize(out)
	}
	result.AddCompletionTrace(action, outputCase, payload, h.next())
	h.drainEvents(result)

	h.logger.Info("step completed",
		"action", action,
		"output_case", outputCase,
	)
	return outputCase, payload, nil
}

// drainEvents moves every event already delivered to the subscription into
// the trace. Publish is synchronous, so an operation's events are queued by
// the time it returns.
func (h *Harness) drainEvents(result *Result) {
	for {
		select {
		case ev, ok := <-h.events.Events():
			if !ok {
				return
			}
			result.AddEventTrace(ev.Type, normalize(ev.Payload), h.next())
		default:
			return
		}
	}
}

// executeSetup runs all setup steps. A setup step that fails aborts the run.
func (h *Harness) executeSetup(ctx context.Context, setup []ActionStep, result *Result) error {
	for i, step := range setup {
		outputCase, payload, err := h.invoke(ctx, step.Action, step.Args, result)
		if err != nil {
			return fmt.Errorf("setup step %d: %w", i, err)
		}
		if outputCase != CaseSuccess {
			return fmt.Errorf("setup step %d (%s): %s: %v", i, step.Action, outputCase, payload)
		}
		if err := h.save(step.Save, payload); err != nil {
			return fmt.Errorf("setup step %d: %w", i, err)
		}
	}
	return nil
}

// executeFlow runs all flow steps and validates expect clauses. Mismatches
// are recorded on the result; only harness failures are returned.
func (h *Harness) executeFlow(ctx context.Context, flow []FlowStep, result *Result) error {
	for i, step := range flow {
		outputCase, payload, err := h.invoke(ctx, step.Invoke, step.Args, result)
		if err != nil {
			return fmt.Errorf("flow step %d: %w", i, err)
		}

		expect := step.Expect
		if expect == nil {
			expect = &ExpectClause{Case: CaseSuccess}
		}
		if outputCase != expect.Case {
			result.AddError(fmt.Sprintf("flow[%d] %s: expected case %s, got %s (%v)",
				i, step.Invoke, expect.Case, outputCase, payload))
			continue
		}
		want, err := h.resolve(expect.Result)
		if err != nil {
			return fmt.Errorf("flow step %d: expect: %w", i, err)
		}
		if outputCase == CaseSuccess && !matchArgs(payload, want.(map[string]any)) {
			result.AddError(fmt.Sprintf("flow[%d] %s: result %v does not contain %v",
				i, step.Invoke, payload, want))
			continue
		}
		if outputCase == CaseSuccess {
			if err := h.save(step.Save, payload); err != nil {
				result.AddError(fmt.Sprintf("flow[%d] %s: %v", i, step.Invoke, err))
			}
		}
	}
	return nil
}

// save stores result fields into scenario variables.
func (h *Harness) save(fields map[string]string, payload any) error {
	for name, path := range fields {
		v, ok := lookupPath(payload, path)
		if !ok {
			return fmt.Errorf("save %s: result has no field %q", name, path)
		}
		h.vars[name] = v
	}
	return nil
}

// lookupPath follows a dotted path through nested maps and lists. List
// elements are addressed by index ("items.0.menu_id").
func lookupPath(v any, path string) (any, bool) {
	cur := v
	for _, part := range strings.Split(path, ".") {
		switch node := cur.(type) {
		case map[string]any:
			next, ok := node[part]
			if !ok {
				return nil, false
			}
			cur = next
		case []any:
			var idx int
			if _, err := fmt.Sscanf(part, "%d", &idx); err != nil || idx < 0 || idx >= len(node) {
				return nil, false
			}
			cur = node[idx]
		default:
			return nil, false
		}
	}
	return cur, true
}

// resolve replaces "$name" strings anywhere in v with saved variables.
func (h *Harness) resolve(v any) (any, error) {
	switch val := v.(type) {
	case string:
		if name, ok := strings.CutPrefix(val, "$"); ok && name != "" {
			saved, found := h.vars[name]
			if !found {
				return nil, fmt.Errorf("undefined variable $%s", name)
			}
			return saved, nil
		}
		return val, nil
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			r, err := h.resolve(item)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", k, err)
			}
			out[k] = r
		}
		return out, nil
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			r, err := h.resolve(item)
			if err != nil {
				return nil, fmt.Errorf("[%d]: %w", i, err)
			}
			out[i] = r
		}
		return out, nil
	}
	return v, nil
}

// resolveAssertions substitutes saved variables into assertion arguments
// and record filters.
func (h *Harness) resolveAssertions(in []Assertion) ([]Assertion, error) {
	out := make([]Assertion, len(in))
	for i, a := range in {
		for _, field := range []*map[string]any{&a.Args, &a.Where, &a.Expect} {
			if *field == nil {
				continue
			}
			r, err := h.resolve(*field)
			if err != nil {
				return nil, fmt.Errorf("assertions[%d]: %w", i, err)
			}
			*field = r.(map[string]any)
		}
		out[i] = a
	}
	return out, nil
}

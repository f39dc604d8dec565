package harness

import "slices"

// Trace entry types.
const (
	TraceInvocation = "invocation"
	TraceCompletion = "completion"
	TraceEvent      = "event"
)

// CaseSuccess is the output case of an operation that returned no error.
const CaseSuccess = "Success"

var validCases = []string{CaseSuccess, "NOT_FOUND", "VALIDATION", "DUPLICATE", "CONCURRENCY"}

func validCase(c string) bool {
	return slices.Contains(validCases, c)
}

// TraceEntry is one line of the execution trace: an operation invocation,
// its completion, or a domain event published while it ran.
type TraceEntry struct {
	Type       string `json:"type"`
	ActionURI  string `json:"action_uri,omitempty"`
	Args       any    `json:"args,omitempty"`
	OutputCase string `json:"output_case,omitempty"`
	Result     any    `json:"result,omitempty"`
	Event      string `json:"event,omitempty"`
	Seq        int64  `json:"seq"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true if every expect clause and assertion held.
	Pass bool `json:"pass"`

	// Trace contains invocations, completions and events in order.
	Trace []TraceEntry `json:"trace"`

	// Errors contains failure messages. Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	// Vars holds the variables saved by setup and flow steps.
	Vars map[string]any `json:"vars,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEntry{},
		Errors: []string{},
		Vars:   make(map[string]any),
	}
}

// AddError adds a failure message and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// AddInvocationTrace adds an invocation to the trace.
func (r *Result) AddInvocationTrace(actionURI string, args any, seq int64) {
	r.Trace = append(r.Trace, TraceEntry{
		Type:      TraceInvocation,
		ActionURI: actionURI,
		Args:      args,
		Seq:       seq,
	})
}

// AddCompletionTrace adds a completion to the trace.
func (r *Result) AddCompletionTrace(actionURI, outputCase string, result any, seq int64) {
	r.Trace = append(r.Trace, TraceEntry{
		Type:       TraceCompletion,
		ActionURI:  actionURI,
		OutputCase: outputCase,
		Result:     result,
		Seq:        seq,
	})
}

// AddEventTrace adds a published domain event to the trace.
func (r *Result) AddEventTrace(eventType string, payload any, seq int64) {
	r.Trace = append(r.Trace, TraceEntry{
		Type:   TraceEvent,
		Event:  eventType,
		Result: payload,
		Seq:    seq,
	})
}

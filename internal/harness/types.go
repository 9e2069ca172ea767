package harness

import "github.com/roach88/dynq/internal/ir"

// Trace event kinds.
const (
	EventCompose  = "compose"
	EventSequence = "sequence"
	EventTerminal = "terminal"
)

// TraceEvent records one bridge operation and its outcome.
type TraceEvent struct {
	Seq    int64      `json:"seq"`
	Kind   string     `json:"kind"`
	Op     string     `json:"op"`
	Expr   string     `json:"expr"`
	Result ir.IRValue `json:"result,omitempty"`
	Error  string     `json:"error,omitempty"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Scenario is the scenario name.
	Scenario string `json:"scenario"`

	// Pass is true if every expectation matched and all providers agreed.
	Pass bool `json:"pass"`

	// Providers lists the providers the scenario ran against, in order.
	Providers []string `json:"providers"`

	// Trace is the first provider's trace. Traces of the other providers
	// are compared against it.
	Trace []TraceEvent `json:"trace"`

	// Errors contains failed expectations. Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
func NewResult(scenario string) *Result {
	return &Result{
		Scenario:  scenario,
		Pass:      true,
		Providers: []string{},
		Trace:     []TraceEvent{},
		Errors:    []string{},
	}
}

// AddError adds a failed expectation and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

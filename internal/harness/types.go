package harness

import "github.com/roach88/capsale/internal/ir"

// TraceEntry records one transaction-producing step of a scenario.
// Addresses are rendered as account names.
type TraceEntry struct {
	// Step is 0 for the installation, then 1-based over scenario steps.
	Step int `json:"step"`

	// Action is the step kind: install, buy, set_rate, ...
	Action string `json:"action"`

	// Height is the block height the step ran at.
	Height uint64 `json:"height"`

	// Tx is the committed transaction id. Empty when the step failed.
	Tx string `json:"tx,omitempty"`

	// Error is the failure code. Empty when the step succeeded.
	Error string `json:"error,omitempty"`

	Events      []TraceEvent `json:"events,omitempty"`
	Permissions []TraceGrant `json:"permissions,omitempty"`
}

// TraceEvent is a committed event with named addresses.
type TraceEvent struct {
	Emitter string    `json:"emitter"`
	Name    string    `json:"name"`
	Fields  ir.Object `json:"fields"`
}

// TraceGrant is a committed permission change with named addresses.
type TraceGrant struct {
	Op         string `json:"op"`
	Where      string `json:"where"`
	Who        string `json:"who"`
	Capability string `json:"capability"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Scenario is the name of the scenario that produced this result.
	Scenario string `json:"scenario"`

	// Pass indicates overall test success.
	// True if every expectation, assertion and invariant held.
	Pass bool `json:"pass"`

	// Trace contains every transaction-producing step in order.
	Trace []TraceEntry `json:"trace"`

	// Errors contains validation error messages.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
func NewResult(scenario string) *Result {
	return &Result{
		Scenario: scenario,
		Pass:     true,
		Trace:    []TraceEntry{},
		Errors:   []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// AddTrace appends a trace entry.
func (r *Result) AddTrace(entry TraceEntry) {
	r.Trace = append(r.Trace, entry)
}

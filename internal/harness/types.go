package harness

// TraceEvent is one node result observed during a scenario.
type TraceEvent struct {
	Seq   int64  `json:"seq"`
	Wave  string `json:"wave,omitempty"`
	Node  string `json:"node"`
	Value any    `json:"value"`
	Trail []any  `json:"trail"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true when every expect clause and assertion held.
	Pass bool `json:"pass"`

	// Trace holds every node result ordered by logical sequence.
	Trace []TraceEvent `json:"trace"`

	// Collected holds the default aggregator's values in completion order.
	Collected []any `json:"collected"`

	// Errors holds the failure messages. Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	// State is the engine's final inspect report as a plain map.
	State map[string]any `json:"state,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:      true,
		Trace:     []TraceEvent{},
		Collected: []any{},
		Errors:    []string{},
		State:     make(map[string]any),
	}
}

// AddError adds a failure message and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

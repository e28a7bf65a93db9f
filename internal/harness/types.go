package harness

// TraceEvent records one executed operation: seeds first, then steps, in
// execution order. Outcome is "ok" or the error kind the operation
// failed with.
type TraceEvent struct {
	Seq      int              `json:"seq"`
	Op       string           `json:"op"` // "seed" or a step op
	Resource string           `json:"resource"`
	Outcome  string           `json:"outcome"`
	Key      string           `json:"key,omitempty"`   // record key touched by a mutation
	Count    *int             `json:"count,omitempty"` // rows returned or aggregate value
	Rows     []map[string]any `json:"rows,omitempty"`  // dumped rows, query steps only
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true when every step matched its expectation and every
	// assertion held.
	Pass bool `json:"pass"`

	// Trace contains one event per seed and per step, in order. It is
	// the unit of golden comparison.
	Trace []TraceEvent `json:"trace"`

	// Errors lists expectation and assertion failures. Empty when Pass
	// is true.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a passing result to fold execution into.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
	}
}

// AddError records a failure and marks the result as failed.
func (r *Result) AddError(msg string) {
	r.Errors = append(r.Errors, msg)
	r.Pass = false
}

// addEvent appends a trace event, assigning the next sequence number.
func (r *Result) addEvent(ev TraceEvent) {
	ev.Seq = len(r.Trace) + 1
	r.Trace = append(r.Trace, ev)
}

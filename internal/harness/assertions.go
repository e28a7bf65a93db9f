package harness

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/stratumdb/stratum/internal/datalayer"
	"github.com/stratumdb/stratum/internal/filter"
	"github.com/stratumdb/stratum/internal/query"
	"github.com/stratumdb/stratum/internal/resource"
)

// AssertionError is returned when an assertion fails. Expected and
// Actual carry human-readable outcomes for the failure report.
type AssertionError struct {
	Kind     string
	Expected string
	Actual   string
}

func (e *AssertionError) Error() string {
	return fmt.Sprintf("assertion failed: %s\n  expected: %s\n  actual: %s", e.Kind, e.Expected, e.Actual)
}

// EvaluateAssertions evaluates every assertion against the final state
// and the recorded trace. It returns one message per failed assertion;
// an empty slice means all assertions held.
func EvaluateAssertions(ctx context.Context, dl *datalayer.DataLayer, scenario *Scenario, result *Result) []string {
	var msgs []string
	for i, a := range scenario.Expect {
		var err error
		switch {
		case a.Rows != nil:
			err = assertRows(ctx, dl, a.Rows)
		case a.Record != nil:
			err = assertRecord(ctx, dl, a.Record)
		case a.ResultCount != nil:
			err = assertResultCount(scenario, result, a.ResultCount)
		case a.Error != nil:
			err = assertError(scenario, result, a.Error)
		default:
			err = fmt.Errorf("expect[%d]: empty assertion", i)
		}
		if err != nil {
			msgs = append(msgs, err.Error())
		}
	}
	return msgs
}

// assertRows checks the total number of stored records for a resource.
func assertRows(ctx context.Context, dl *datalayer.DataLayer, a *RowsAssertion) error {
	q, err := dl.NewQuery(a.Resource)
	if err != nil {
		return fmt.Errorf("rows assertion: %w", err)
	}
	recs, err := dl.RunQuery(ctx, q)
	if err != nil {
		return fmt.Errorf("rows assertion: %w", err)
	}
	if len(recs) != a.Count {
		return &AssertionError{
			Kind:     "rows",
			Expected: fmt.Sprintf("%d rows in %s", a.Count, a.Resource),
			Actual:   fmt.Sprintf("%d rows", len(recs)),
		}
	}
	return nil
}

// assertRecord reads the record at the asserted primary key and compares
// the named attributes. Attributes the assertion does not name are
// ignored.
func assertRecord(ctx context.Context, dl *datalayer.DataLayer, a *RecordAssertion) error {
	res, ok := dl.Resource(a.Resource)
	if !ok {
		return fmt.Errorf("record assertion: unknown resource %q", a.Resource)
	}
	keyAttrs, err := keyObject(res, a.Key)
	if err != nil {
		return fmt.Errorf("record assertion: %w", err)
	}

	preds := make([]filter.Predicate, 0, len(keyAttrs))
	for _, name := range res.PrimaryKey {
		preds = append(preds, filter.Eq{Attr: name, Value: keyAttrs[name]})
	}
	q := query.New(res).WithFilter(filter.And{Preds: preds})
	recs, err := dl.RunQuery(ctx, q)
	if err != nil {
		return fmt.Errorf("record assertion: %w", err)
	}
	if len(recs) == 0 {
		return &AssertionError{
			Kind:     "record",
			Expected: fmt.Sprintf("%s record at key %s", a.Resource, formatKey(a.Key)),
			Actual:   "record not found",
		}
	}
	rec := recs[0]

	want, err := coerceObject(res, a.Attrs)
	if err != nil {
		return fmt.Errorf("record assertion: %w", err)
	}
	for _, name := range sortedKeys(want) {
		got, ok := rec.Get(name)
		if !ok {
			got = resource.Null{}
		}
		if !resource.Equal(got, want[name]) {
			return &AssertionError{
				Kind:     "record",
				Expected: fmt.Sprintf("%s.%s = %s", a.Resource, name, resource.Format(want[name])),
				Actual:   fmt.Sprintf("%s.%s = %s", a.Resource, name, resource.Format(got)),
			}
		}
	}
	return nil
}

// assertResultCount checks the count a query or count step recorded in
// the trace.
func assertResultCount(scenario *Scenario, result *Result, a *ResultCountAssertion) error {
	ev, err := stepEvent(scenario, result, a.Step)
	if err != nil {
		return fmt.Errorf("result_count assertion: %w", err)
	}
	if ev.Count == nil {
		return &AssertionError{
			Kind:     "result_count",
			Expected: fmt.Sprintf("step %d to record a result count", a.Step),
			Actual:   fmt.Sprintf("step %d (%s) recorded none", a.Step, ev.Op),
		}
	}
	if *ev.Count != a.Count {
		return &AssertionError{
			Kind:     "result_count",
			Expected: fmt.Sprintf("step %d count = %d", a.Step, a.Count),
			Actual:   fmt.Sprintf("count = %d", *ev.Count),
		}
	}
	return nil
}

// assertError checks the outcome kind a step recorded in the trace.
func assertError(scenario *Scenario, result *Result, a *ErrorAssertion) error {
	ev, err := stepEvent(scenario, result, a.Step)
	if err != nil {
		return fmt.Errorf("error assertion: %w", err)
	}
	if ev.Outcome != a.Kind {
		return &AssertionError{
			Kind:     "error",
			Expected: fmt.Sprintf("step %d outcome = %s", a.Step, a.Kind),
			Actual:   fmt.Sprintf("outcome = %s", ev.Outcome),
		}
	}
	return nil
}

// stepEvent resolves a 1-based step reference to its trace event. Seeds
// precede steps in the trace, one event each.
func stepEvent(scenario *Scenario, result *Result, step int) (*TraceEvent, error) {
	idx := len(scenario.Seed) + step - 1
	if idx < 0 || idx >= len(result.Trace) {
		return nil, fmt.Errorf("step %d has no trace event", step)
	}
	return &result.Trace[idx], nil
}

func formatKey(key []any) string {
	parts := make([]string, len(key))
	for i, v := range key {
		parts[i] = fmt.Sprintf("%v", v)
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

// sortedKeys keeps attribute mismatch reports deterministic across map
// iteration orders.
func sortedKeys(obj resource.Object) []string {
	names := make([]string, 0, len(obj))
	for name := range obj {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

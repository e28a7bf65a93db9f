package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"github.com/google/uuid"

	"github.com/stratumdb/stratum/internal/codec"
	"github.com/stratumdb/stratum/internal/compiler"
	"github.com/stratumdb/stratum/internal/datalayer"
	"github.com/stratumdb/stratum/internal/filter"
	"github.com/stratumdb/stratum/internal/query"
	"github.com/stratumdb/stratum/internal/resource"
	"github.com/stratumdb/stratum/internal/store"
)

// Harness executes one scenario against a fresh data layer.
type Harness struct {
	dl     *datalayer.DataLayer
	logger *slog.Logger
}

// Run executes a scenario and returns the result.
//
// Each scenario runs against a fresh in-memory engine for isolation, with
// fixed transaction tokens so repeated runs produce identical traces.
//
// Execution order:
//  1. Open an in-memory engine and register the compiled definitions
//  2. Write seed records (assumed to succeed)
//  3. Run each step, recording a trace event and checking expect_error
//  4. Evaluate assertions against the trace and final state
func Run(scenario *Scenario) (*Result, error) {
	eng, err := store.Open("memory", "")
	if err != nil {
		return nil, fmt.Errorf("open in-memory engine: %w", err)
	}
	defer eng.Close()

	// Every data-layer operation consumes at most one token, and each
	// seed, step, and assertion runs at most one operation.
	budget := len(scenario.Seed) + len(scenario.Steps) + len(scenario.Expect)
	tokens := make([]string, budget)
	for i := range tokens {
		tokens[i] = fmt.Sprintf("txn-%04d", i+1)
	}

	dl := datalayer.New(eng,
		datalayer.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		datalayer.WithTokens(datalayer.NewFixedGenerator(tokens...)),
	)

	resources, err := loadDefinitions(scenario.Definitions)
	if err != nil {
		return nil, fmt.Errorf("load definitions: %w", err)
	}
	if err := dl.Register(resources...); err != nil {
		return nil, fmt.Errorf("register resources: %w", err)
	}

	h := &Harness{
		dl:     dl,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	ctx := context.Background()
	result := NewResult()

	if err := h.seed(ctx, scenario.Seed, result); err != nil {
		return nil, fmt.Errorf("seed records: %w", err)
	}
	h.runSteps(ctx, scenario.Steps, result)

	for _, msg := range EvaluateAssertions(ctx, dl, scenario, result) {
		result.AddError(msg)
	}
	return result, nil
}

// loadDefinitions compiles each CUE definition file into resource
// schemas. Files are independent; a resource declared twice across files
// fails later at registration.
func loadDefinitions(paths []string) ([]*resource.Resource, error) {
	cuectx := cuecontext.New()
	var all []*resource.Resource
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read definition file: %w", err)
		}
		v := cuectx.CompileBytes(data, cue.Filename(path))
		if v.Err() != nil {
			return nil, fmt.Errorf("compile %s: %w", path, v.Err())
		}
		resources, err := compiler.CompileDefinitions(v)
		if err != nil {
			return nil, fmt.Errorf("compile %s: %w", path, err)
		}
		all = append(all, resources...)
	}
	return all, nil
}

// seed writes the scenario's seed records. Seeds trace like steps so the
// golden file shows the full write history.
func (h *Harness) seed(ctx context.Context, seeds []SeedRecord, result *Result) error {
	for i, s := range seeds {
		res, ok := h.dl.Resource(s.Resource)
		if !ok {
			return fmt.Errorf("seed[%d]: unknown resource %q", i, s.Resource)
		}
		attrs, err := coerceObject(res, s.Attrs)
		if err != nil {
			return fmt.Errorf("seed[%d]: %w", i, err)
		}
		rec, err := h.dl.Create(ctx, res, resource.NewRecord(attrs))
		if err != nil {
			return fmt.Errorf("seed[%d]: create %s: %w", i, s.Resource, err)
		}
		result.addEvent(TraceEvent{
			Op:       "seed",
			Resource: s.Resource,
			Outcome:  KindOK,
			Key:      recordKey(res, rec),
		})
	}
	return nil
}

// runSteps executes every step, appending one trace event each and
// checking the outcome against expect_error. Execution continues past
// failed steps: later steps may still be meaningful, and the trace stays
// complete for golden comparison.
func (h *Harness) runSteps(ctx context.Context, steps []Step, result *Result) {
	for i, step := range steps {
		ev := TraceEvent{Op: step.Op, Resource: step.Resource, Outcome: KindOK}
		err := h.executeStep(ctx, step, &ev)
		if err != nil {
			ev.Outcome = errorKind(err)
		}
		result.addEvent(ev)

		switch {
		case step.ExpectError == "" && err != nil:
			result.AddError(fmt.Sprintf("step %d (%s %s): unexpected error: %v", i+1, step.Op, step.Resource, err))
		case step.ExpectError != "" && err == nil:
			result.AddError(fmt.Sprintf("step %d (%s %s): expected %s error, step succeeded", i+1, step.Op, step.Resource, step.ExpectError))
		case step.ExpectError != "" && ev.Outcome != step.ExpectError:
			result.AddError(fmt.Sprintf("step %d (%s %s): expected %s error, got %s: %v", i+1, step.Op, step.Resource, step.ExpectError, ev.Outcome, err))
		}

		h.logger.Debug("step completed",
			"step", i+1,
			"op", step.Op,
			"resource", step.Resource,
			"outcome", ev.Outcome,
		)
	}
}

// executeStep dispatches one step and fills the trace event's key, count,
// and rows as the operation dictates.
func (h *Harness) executeStep(ctx context.Context, step Step, ev *TraceEvent) error {
	res, ok := h.dl.Resource(step.Resource)
	if !ok {
		return &datalayer.UnknownResourceError{Name: step.Resource}
	}

	switch step.Op {
	case OpCreate:
		attrs, err := coerceObject(res, step.Attrs)
		if err != nil {
			return err
		}
		rec, err := h.dl.Create(ctx, res, resource.NewRecord(attrs))
		if err != nil {
			return err
		}
		ev.Key = recordKey(res, rec)
		return nil

	case OpUpdate:
		keyAttrs, err := keyObject(res, step.Key)
		if err != nil {
			return err
		}
		changes, err := coerceObject(res, step.Changes)
		if err != nil {
			return err
		}
		rec, err := h.dl.Update(ctx, res, resource.NewRecord(keyAttrs), changes)
		if err != nil {
			return err
		}
		ev.Key = recordKey(res, rec)
		return nil

	case OpDestroy:
		keyAttrs, err := keyObject(res, step.Key)
		if err != nil {
			return err
		}
		if err := h.dl.Destroy(ctx, res, resource.NewRecord(keyAttrs)); err != nil {
			return err
		}
		if key, err := codec.KeyFor(res, keyAttrs); err == nil {
			ev.Key = key.String()
		}
		return nil

	case OpUpsert:
		attrs, err := coerceObject(res, step.Attrs)
		if err != nil {
			return err
		}
		rec, err := h.dl.Upsert(ctx, res, resource.NewRecord(attrs), step.Keys)
		if err != nil {
			return err
		}
		ev.Key = recordKey(res, rec)
		return nil

	case OpQuery:
		q, err := buildQuery(res, step)
		if err != nil {
			return err
		}
		recs, err := h.dl.RunQuery(ctx, q)
		if err != nil {
			return err
		}
		rows, err := dumpRows(res, recs)
		if err != nil {
			return err
		}
		n := len(recs)
		ev.Count = &n
		ev.Rows = rows
		return nil

	case OpCount:
		q, err := buildQuery(res, step)
		if err != nil {
			return err
		}
		spec := datalayer.AggregateSpec{Name: "count", Kind: datalayer.KindCount}
		if step.Where != "" {
			pred, err := filter.Parse(res, step.Where)
			if err != nil {
				return err
			}
			spec.Filter = pred
		}
		values, err := h.dl.RunAggregate(ctx, q, []datalayer.AggregateSpec{spec})
		if err != nil {
			return err
		}
		n := int(values["count"].(resource.Int))
		ev.Count = &n
		return nil
	}

	// validateScenario rejects unknown ops before execution.
	return fmt.Errorf("unknown op %q", step.Op)
}

// buildQuery assembles the query descriptor for query and count steps.
func buildQuery(res *resource.Resource, step Step) (query.Query, error) {
	q := query.New(res)
	if step.Filter != "" {
		pred, err := filter.Parse(res, step.Filter)
		if err != nil {
			return query.Query{}, err
		}
		q = q.WithFilter(pred)
	}
	if len(step.Sort) > 0 {
		fields, err := query.ParseSort(step.Sort)
		if err != nil {
			return query.Query{}, err
		}
		q = q.WithSort(fields...)
	}
	if step.Limit != nil {
		q = q.WithLimit(*step.Limit)
	}
	if step.Offset != 0 {
		q = q.WithOffset(step.Offset)
	}
	return q, nil
}

// errorKind classifies a step error into the scenario taxonomy. The
// classification drives expect_error matching and trace outcomes.
func errorKind(err error) string {
	if err == nil {
		return KindOK
	}
	switch {
	case datalayer.IsNotFound(err):
		return KindNotFound
	case datalayer.IsConflict(err):
		return KindConflict
	case datalayer.IsAbort(err):
		return KindAbort
	}
	var aggErr *datalayer.UnsupportedAggregateError
	if errors.As(err, &aggErr) {
		return KindUnsupportedAggregate
	}
	var resErr *datalayer.UnknownResourceError
	if errors.As(err, &resErr) {
		return KindUnknownResource
	}
	var codecErr *codec.Error
	if errors.As(err, &codecErr) {
		return KindCodec
	}
	var filterErr *filter.Error
	if errors.As(err, &filterErr) {
		return KindFilter
	}
	return KindInvalid
}

// coerceObject converts YAML-decoded attribute values into typed values
// under the resource's declared attribute types.
func coerceObject(res *resource.Resource, raw map[string]any) (resource.Object, error) {
	obj := make(resource.Object, len(raw))
	for name, val := range raw {
		attr, ok := res.Attr(name)
		if !ok {
			return nil, fmt.Errorf("resource %q declares no attribute %q", res.Name, name)
		}
		v, err := coerceValue(attr, val)
		if err != nil {
			return nil, err
		}
		obj[attr.Name] = v
	}
	return obj, nil
}

// keyObject converts positional primary key values into an object that
// carries exactly the key attributes.
func keyObject(res *resource.Resource, key []any) (resource.Object, error) {
	if len(key) != len(res.PrimaryKey) {
		return nil, fmt.Errorf("resource %q wants %d primary key values, got %d", res.Name, len(res.PrimaryKey), len(key))
	}
	obj := make(resource.Object, len(key))
	for i, name := range res.PrimaryKey {
		attr, ok := res.Attr(name)
		if !ok {
			return nil, fmt.Errorf("resource %q declares no attribute %q", res.Name, name)
		}
		v, err := coerceValue(attr, key[i])
		if err != nil {
			return nil, err
		}
		obj[name] = v
	}
	return obj, nil
}

// coerceValue converts one YAML-decoded value. Strings parse into time
// and uuid values when the attribute declares those types; an integral
// YAML float passes as an int where one is declared.
func coerceValue(attr resource.Attribute, raw any) (resource.Value, error) {
	if raw == nil {
		return resource.Null{}, nil
	}
	switch v := raw.(type) {
	case string:
		switch attr.Type {
		case resource.TypeTime:
			t, err := time.Parse(time.RFC3339Nano, v)
			if err != nil {
				return nil, fmt.Errorf("attribute %q: bad time literal %q: %w", attr.Name, v, err)
			}
			return resource.NewTime(t), nil
		case resource.TypeUUID:
			u, err := uuid.Parse(v)
			if err != nil {
				return nil, fmt.Errorf("attribute %q: bad uuid literal %q: %w", attr.Name, v, err)
			}
			return resource.NewUUID(u), nil
		default:
			return resource.String(v), nil
		}
	case bool:
		return resource.Bool(v), nil
	case int:
		return resource.Int(int64(v)), nil
	case int64:
		return resource.Int(v), nil
	case float64:
		if attr.Type == resource.TypeInt && v == float64(int64(v)) {
			return resource.Int(int64(v)), nil
		}
		return resource.Float(v), nil
	default:
		return nil, fmt.Errorf("attribute %q: unsupported value type %T", attr.Name, raw)
	}
}

// dumpRows renders records into native maps for the trace.
func dumpRows(res *resource.Resource, recs []resource.Record) ([]map[string]any, error) {
	rows := make([]map[string]any, len(recs))
	for i, rec := range recs {
		row, err := codec.Dump(res, rec.Attrs)
		if err != nil {
			return nil, fmt.Errorf("dump row %d: %w", i, err)
		}
		rows[i] = row
	}
	return rows, nil
}

// recordKey renders a persisted record's key for the trace. Records that
// came back from the data layer always carry a complete key.
func recordKey(res *resource.Resource, rec resource.Record) string {
	key, err := codec.KeyFor(res, rec.Attrs)
	if err != nil {
		return ""
	}
	return key.String()
}

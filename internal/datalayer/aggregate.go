package datalayer

import (
	"context"

	"github.com/stratumdb/stratum/internal/filter"
	"github.com/stratumdb/stratum/internal/query"
	"github.com/stratumdb/stratum/internal/resource"
)

// Kind names an aggregate computation.
type Kind int

const (
	// KindCount counts the records that satisfy the aggregate's filter.
	KindCount Kind = iota
)

func (k Kind) String() string {
	switch k {
	case KindCount:
		return "count"
	default:
		return "unknown"
	}
}

// AggregateSpec asks for one named aggregate over a query's result set.
// A nil Filter aggregates every matched record; otherwise only records
// the filter accepts contribute.
type AggregateSpec struct {
	Name   string
	Kind   Kind
	Filter filter.Predicate
}

// RunAggregate executes q once and folds each spec over the matched
// records, in spec order. The first spec whose kind is not supported
// fails the whole call with *UnsupportedAggregateError; nothing partial
// is returned. Sub-filters are only evaluated against matched records,
// so over an empty result set every count is zero and no filter error
// can surface.
func (dl *DataLayer) RunAggregate(ctx context.Context, q query.Query, specs []AggregateSpec) (map[string]resource.Value, error) {
	recs, err := dl.RunQuery(ctx, q)
	if err != nil {
		return nil, err
	}

	out := make(map[string]resource.Value, len(specs))
	for _, spec := range specs {
		if spec.Kind != KindCount {
			return nil, &UnsupportedAggregateError{Kind: spec.Kind}
		}
		n := 0
		for _, rec := range recs {
			if spec.Filter == nil {
				n++
				continue
			}
			ok, err := filter.Eval(q.Resource, rec, spec.Filter)
			if err != nil {
				return nil, err
			}
			if ok {
				n++
			}
		}
		out[spec.Name] = resource.Int(n)
	}
	return out, nil
}

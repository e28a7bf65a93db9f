package datalayer

import (
	"context"
	"fmt"
	"sort"

	"github.com/stratumdb/stratum/internal/codec"
	"github.com/stratumdb/stratum/internal/filter"
	"github.com/stratumdb/stratum/internal/query"
	"github.com/stratumdb/stratum/internal/resource"
	"github.com/stratumdb/stratum/internal/store"
)

// RunQuery executes a query descriptor: scan, cast, filter, sort, then
// the offset/limit window, all inside one transaction so the result is a
// consistent snapshot. Any cast failure fails the whole query; there are
// no partial results. The returned slice is fresh and non-nil.
func (dl *DataLayer) RunQuery(ctx context.Context, q query.Query) ([]resource.Record, error) {
	table, err := dl.tableFor(q.Resource)
	if err != nil {
		return nil, err
	}
	if err := q.Validate(); err != nil {
		return nil, fmt.Errorf("invalid query: %w", err)
	}

	var recs []resource.Record
	err = dl.withTx(ctx, func(ctx context.Context, tx store.Tx) error {
		rows, err := tx.Scan(table)
		if err != nil {
			return fmt.Errorf("scan %s: %w", table, err)
		}

		all := make([]resource.Record, 0, len(rows))
		for _, row := range rows {
			rec, err := codec.Cast(q.Resource, row.Attrs)
			if err != nil {
				return err
			}
			all = append(all, rec)
		}

		matched, err := filter.Matches(q.Resource, all, q.Filter)
		if err != nil {
			return err
		}

		sortRecords(matched, q.Sort)
		recs = window(matched, q.Offset, q.Limit)

		dl.logWith(ctx).Debug("query executed",
			"resource", q.Resource.Name,
			"scanned", len(rows),
			"matched", len(matched),
			"returned", len(recs),
		)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return recs, nil
}

// sortRecords applies a stable multi-key sort in place: the first field
// is most significant, later fields break ties, and rows equal under
// every field keep their scan order.
func sortRecords(recs []resource.Record, fields []query.SortField) {
	if len(fields) == 0 {
		return
	}
	sort.SliceStable(recs, func(i, j int) bool {
		for _, f := range fields {
			c := resource.Compare(sortValue(recs[i], f.Attr), sortValue(recs[j], f.Attr))
			if f.Direction == query.Desc {
				c = -c
			}
			if c != 0 {
				return c < 0
			}
		}
		return false
	})
}

// sortValue treats an absent attribute as null so sorting stays total.
func sortValue(rec resource.Record, attr string) resource.Value {
	if v, ok := rec.Attrs[attr]; ok {
		return v
	}
	return resource.Null{}
}

// window applies offset then limit and returns a fresh slice.
func window(recs []resource.Record, offset int, limit *int) []resource.Record {
	if offset >= len(recs) {
		return []resource.Record{}
	}
	recs = recs[offset:]
	if limit != nil && *limit < len(recs) {
		recs = recs[:*limit]
	}
	out := make([]resource.Record, len(recs))
	copy(out, recs)
	return out
}

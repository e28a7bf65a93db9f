// Package query defines the immutable query descriptor the data layer
// executes: one resource, an optional predicate, a multi-key sort, and an
// offset/limit window. Descriptors are built functionally; every setter
// returns a new value and never touches the receiver.
package query

import (
	"fmt"
	"strings"

	"github.com/stratumdb/stratum/internal/filter"
	"github.com/stratumdb/stratum/internal/resource"
)

// Direction orders a sort field.
type Direction int

const (
	Asc Direction = iota
	Desc
)

func (d Direction) String() string {
	if d == Desc {
		return "desc"
	}
	return "asc"
}

// SortField pairs an attribute with a direction.
type SortField struct {
	Attr      string
	Direction Direction
}

// Query describes a pending read. The zero filter matches every record;
// a nil Limit means unbounded (a zero Limit is a real bound yielding no
// rows); Offset rows are dropped before the limit applies.
type Query struct {
	Resource *resource.Resource
	Filter   filter.Predicate
	Sort     []SortField
	Limit    *int
	Offset   int
}

// New returns the match-all descriptor for a resource.
func New(res *resource.Resource) Query {
	return Query{Resource: res}
}

// WithFilter returns a descriptor whose filter is the conjunction of the
// existing filter and p. Successive filters always narrow: the new
// predicate is ANDed in, never substituted. A nil p leaves the descriptor
// unchanged.
func (q Query) WithFilter(p filter.Predicate) Query {
	if p == nil {
		return q
	}
	if q.Filter == nil {
		q.Filter = p
		return q
	}
	q.Filter = filter.And{Preds: []filter.Predicate{q.Filter, p}}
	return q
}

// WithSort returns a descriptor with the sort replaced entirely. Last
// write wins — deliberately asymmetric with WithFilter.
func (q Query) WithSort(fields ...SortField) Query {
	q.Sort = append([]SortField(nil), fields...)
	return q
}

// WithLimit returns a descriptor bounded to at most n records.
func (q Query) WithLimit(n int) Query {
	q.Limit = &n
	return q
}

// WithOffset returns a descriptor that skips the first n records.
func (q Query) WithOffset(n int) Query {
	q.Offset = n
	return q
}

// Validate checks the descriptor against its resource schema: sort
// attributes must be declared, the window must be non-negative, and the
// filter must pass filter.Validate.
func (q Query) Validate() error {
	if q.Resource == nil {
		return fmt.Errorf("query has no resource")
	}
	for _, f := range q.Sort {
		if _, ok := q.Resource.Attr(f.Attr); !ok {
			return fmt.Errorf("sort attribute %q: resource %q declares no such attribute", f.Attr, q.Resource.Name)
		}
	}
	if q.Offset < 0 {
		return fmt.Errorf("negative offset %d", q.Offset)
	}
	if q.Limit != nil && *q.Limit < 0 {
		return fmt.Errorf("negative limit %d", *q.Limit)
	}
	return filter.Validate(q.Resource, q.Filter)
}

// String renders the descriptor for logs and diagnostics.
func (q Query) String() string {
	var b strings.Builder
	if q.Resource != nil {
		b.WriteString(q.Resource.Name)
	} else {
		b.WriteString("<no resource>")
	}
	if q.Filter != nil {
		fmt.Fprintf(&b, " where %s", filter.Format(q.Filter))
	}
	if len(q.Sort) > 0 {
		b.WriteString(" sort ")
		b.WriteString(FormatSort(q.Sort))
	}
	if q.Limit != nil {
		fmt.Fprintf(&b, " limit %d", *q.Limit)
	}
	if q.Offset > 0 {
		fmt.Fprintf(&b, " offset %d", q.Offset)
	}
	return b.String()
}

// ParseSort reads sort specs of the form "attr" (ascending) or "-attr"
// (descending); a leading "+" is accepted and ignored. Specs are
// positional: the first is the most significant key.
func ParseSort(specs []string) ([]SortField, error) {
	fields := make([]SortField, 0, len(specs))
	for _, spec := range specs {
		spec = strings.TrimSpace(spec)
		if spec == "" {
			return nil, fmt.Errorf("empty sort spec")
		}
		dir := Asc
		switch spec[0] {
		case '-':
			dir = Desc
			spec = spec[1:]
		case '+':
			spec = spec[1:]
		}
		if spec == "" {
			return nil, fmt.Errorf("sort spec names no attribute")
		}
		fields = append(fields, SortField{Attr: spec, Direction: dir})
	}
	return fields, nil
}

// FormatSort renders sort fields back into ParseSort's syntax.
func FormatSort(fields []SortField) string {
	parts := make([]string, len(fields))
	for i, f := range fields {
		if f.Direction == Desc {
			parts[i] = "-" + f.Attr
		} else {
			parts[i] = f.Attr
		}
	}
	return strings.Join(parts, ",")
}

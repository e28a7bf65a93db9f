package filter

import (
	"fmt"

	"github.com/stratumdb/stratum/internal/resource"
)

// Error reports a predicate that cannot be evaluated against a resource,
// most often a reference to an undeclared attribute. Evaluation stops at
// the first error; a failing filter fails the whole query.
type Error struct {
	Attr   string
	Reason string
}

func (e *Error) Error() string {
	if e.Attr == "" {
		return fmt.Sprintf("filter: %s", e.Reason)
	}
	return fmt.Sprintf("filter: attribute %q: %s", e.Attr, e.Reason)
}

// Matches evaluates the predicate against each record in order and returns
// the admitted ones. A nil predicate admits everything. The result is a
// fresh slice; input order is preserved.
func Matches(res *resource.Resource, recs []resource.Record, p Predicate) ([]resource.Record, error) {
	out := make([]resource.Record, 0, len(recs))
	for _, rec := range recs {
		ok, err := Eval(res, rec, p)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, rec)
		}
	}
	return out, nil
}

// Eval evaluates the predicate against one record.
func Eval(res *resource.Resource, rec resource.Record, p Predicate) (bool, error) {
	if p == nil {
		return true, nil
	}

	switch node := p.(type) {
	case Eq:
		v, err := attrValue(res, rec, node.Attr)
		if err != nil {
			return false, err
		}
		return resource.Equal(v, node.Value), nil

	case NotEq:
		v, err := attrValue(res, rec, node.Attr)
		if err != nil {
			return false, err
		}
		return !resource.Equal(v, node.Value), nil

	case Lt:
		return ordered(res, rec, node.Attr, node.Value, func(c int) bool { return c < 0 })
	case Lte:
		return ordered(res, rec, node.Attr, node.Value, func(c int) bool { return c <= 0 })
	case Gt:
		return ordered(res, rec, node.Attr, node.Value, func(c int) bool { return c > 0 })
	case Gte:
		return ordered(res, rec, node.Attr, node.Value, func(c int) bool { return c >= 0 })

	case In:
		v, err := attrValue(res, rec, node.Attr)
		if err != nil {
			return false, err
		}
		for _, candidate := range node.Values {
			if resource.Equal(v, candidate) {
				return true, nil
			}
		}
		return false, nil

	case IsNil:
		v, err := attrValue(res, rec, node.Attr)
		if err != nil {
			return false, err
		}
		return resource.KindOf(v) == resource.KindNull, nil

	case And:
		for _, child := range node.Preds {
			ok, err := Eval(res, rec, child)
			if err != nil {
				return false, err
			}
			if !ok {
				return false, nil
			}
		}
		return true, nil

	case Or:
		for _, child := range node.Preds {
			ok, err := Eval(res, rec, child)
			if err != nil {
				return false, err
			}
			if ok {
				return true, nil
			}
		}
		return false, nil

	case Not:
		ok, err := Eval(res, rec, node.Pred)
		if err != nil {
			return false, err
		}
		return !ok, nil

	default:
		return false, &Error{Reason: fmt.Sprintf("unknown predicate %T", p)}
	}
}

// ordered applies an ordering comparison. Null on either side never
// matches: ordering against an absent value has no sensible answer, so
// only Eq, NotEq, and IsNil observe nulls.
func ordered(res *resource.Resource, rec resource.Record, attr string, literal resource.Value, want func(int) bool) (bool, error) {
	v, err := attrValue(res, rec, attr)
	if err != nil {
		return false, err
	}
	if resource.KindOf(v) == resource.KindNull || resource.KindOf(literal) == resource.KindNull {
		return false, nil
	}
	return want(resource.Compare(v, literal)), nil
}

// attrValue resolves an attribute reference against the schema and the
// record. Undeclared attributes are an evaluation error; declared but
// absent attributes read as null.
func attrValue(res *resource.Resource, rec resource.Record, name string) (resource.Value, error) {
	if _, ok := res.Attr(name); !ok {
		return nil, &Error{Attr: name, Reason: fmt.Sprintf("resource %q declares no such attribute", res.Name)}
	}
	v, ok := rec.Get(name)
	if !ok {
		return resource.Null{}, nil
	}
	return v, nil
}

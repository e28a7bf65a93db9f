package filter

import (
	"fmt"

	"github.com/stratumdb/stratum/internal/resource"
)

// Validate checks a predicate against a resource schema without
// evaluating it: every referenced attribute must be declared, and every
// literal must be storable under the attribute's declared type. Ordering
// comparisons against a null literal are rejected outright — they can
// never match, so carrying one is a caller bug worth surfacing early.
//
// Validate is a pure function; the first problem found is returned.
func Validate(res *resource.Resource, p Predicate) error {
	if p == nil {
		return nil
	}

	switch node := p.(type) {
	case Eq:
		return validateComparison(res, node.Attr, node.Value, true)
	case NotEq:
		return validateComparison(res, node.Attr, node.Value, true)
	case Lt:
		return validateComparison(res, node.Attr, node.Value, false)
	case Lte:
		return validateComparison(res, node.Attr, node.Value, false)
	case Gt:
		return validateComparison(res, node.Attr, node.Value, false)
	case Gte:
		return validateComparison(res, node.Attr, node.Value, false)

	case In:
		for _, v := range node.Values {
			if err := validateComparison(res, node.Attr, v, true); err != nil {
				return err
			}
		}
		if len(node.Values) == 0 {
			return &Error{Attr: node.Attr, Reason: "in() with no values never matches"}
		}
		return nil

	case IsNil:
		if _, ok := res.Attr(node.Attr); !ok {
			return undeclared(res, node.Attr)
		}
		return nil

	case And:
		for _, child := range node.Preds {
			if err := Validate(res, child); err != nil {
				return err
			}
		}
		return nil

	case Or:
		for _, child := range node.Preds {
			if err := Validate(res, child); err != nil {
				return err
			}
		}
		return nil

	case Not:
		return Validate(res, node.Pred)

	default:
		return &Error{Reason: fmt.Sprintf("unknown predicate %T", p)}
	}
}

func validateComparison(res *resource.Resource, attrName string, v resource.Value, nullOK bool) error {
	attr, ok := res.Attr(attrName)
	if !ok {
		return undeclared(res, attrName)
	}
	if resource.KindOf(v) == resource.KindNull {
		if !nullOK {
			return &Error{Attr: attrName, Reason: "ordering against null never matches"}
		}
		return nil
	}
	if !attr.Type.Accepts(v) {
		return &Error{
			Attr:   attrName,
			Reason: fmt.Sprintf("%s literal is not comparable to declared type %s", resource.KindOf(v), attr.Type),
		}
	}
	return nil
}

func undeclared(res *resource.Resource, attr string) error {
	return &Error{Attr: attr, Reason: fmt.Sprintf("resource %q declares no such attribute", res.Name)}
}

// Package filter defines the boolean predicate trees queries carry and
// evaluates them against records in memory. The layer never pushes
// predicates into the storage engine; a query scans the whole table and
// this package decides which rows survive.
package filter

import (
	"fmt"
	"strings"

	"github.com/stratumdb/stratum/internal/resource"
)

// Predicate is a sealed interface over filter tree nodes. Only the node
// types in this package implement it; evaluation, validation, and
// rendering dispatch with exhaustive type switches.
type Predicate interface {
	predicateNode() // marker, seals the interface to this package
}

// Eq matches records whose attribute equals the literal.
// A Null literal matches records where the attribute is null.
type Eq struct {
	Attr  string
	Value resource.Value
}

func (Eq) predicateNode() {}

// NotEq matches records whose attribute does not equal the literal.
type NotEq struct {
	Attr  string
	Value resource.Value
}

func (NotEq) predicateNode() {}

// Lt matches records whose attribute orders strictly below the literal.
// Ordering comparisons never match null attributes.
type Lt struct {
	Attr  string
	Value resource.Value
}

func (Lt) predicateNode() {}

// Lte matches records whose attribute orders at or below the literal.
type Lte struct {
	Attr  string
	Value resource.Value
}

func (Lte) predicateNode() {}

// Gt matches records whose attribute orders strictly above the literal.
type Gt struct {
	Attr  string
	Value resource.Value
}

func (Gt) predicateNode() {}

// Gte matches records whose attribute orders at or above the literal.
type Gte struct {
	Attr  string
	Value resource.Value
}

func (Gte) predicateNode() {}

// In matches records whose attribute equals any of the listed values.
// An empty list never matches.
type In struct {
	Attr   string
	Values []resource.Value
}

func (In) predicateNode() {}

// IsNil matches records whose attribute is null.
type IsNil struct {
	Attr string
}

func (IsNil) predicateNode() {}

// And matches records admitted by every child. An empty child list is
// vacuously true.
type And struct {
	Preds []Predicate
}

func (And) predicateNode() {}

// Or matches records admitted by at least one child. An empty child list
// never matches.
type Or struct {
	Preds []Predicate
}

func (Or) predicateNode() {}

// Not inverts its child.
type Not struct {
	Pred Predicate
}

func (Not) predicateNode() {}

// Format renders a predicate in the expression syntax Parse accepts.
// A nil predicate renders as "true" (match-all).
func Format(p Predicate) string {
	if p == nil {
		return "true"
	}
	switch node := p.(type) {
	case Eq:
		return fmt.Sprintf("%s == %s", node.Attr, formatLiteral(node.Value))
	case NotEq:
		return fmt.Sprintf("%s != %s", node.Attr, formatLiteral(node.Value))
	case Lt:
		return fmt.Sprintf("%s < %s", node.Attr, formatLiteral(node.Value))
	case Lte:
		return fmt.Sprintf("%s <= %s", node.Attr, formatLiteral(node.Value))
	case Gt:
		return fmt.Sprintf("%s > %s", node.Attr, formatLiteral(node.Value))
	case Gte:
		return fmt.Sprintf("%s >= %s", node.Attr, formatLiteral(node.Value))
	case In:
		parts := make([]string, len(node.Values))
		for i, v := range node.Values {
			parts[i] = formatLiteral(v)
		}
		return fmt.Sprintf("%s in (%s)", node.Attr, strings.Join(parts, ", "))
	case IsNil:
		return fmt.Sprintf("%s == null", node.Attr)
	case And:
		return formatJoin(node.Preds, " AND ")
	case Or:
		return formatJoin(node.Preds, " OR ")
	case Not:
		return fmt.Sprintf("NOT %s", Format(node.Pred))
	default:
		return fmt.Sprintf("<%T>", p)
	}
}

func formatJoin(preds []Predicate, sep string) string {
	parts := make([]string, len(preds))
	for i, p := range preds {
		parts[i] = Format(p)
	}
	return "(" + strings.Join(parts, sep) + ")"
}

// formatLiteral renders a value as a parseable literal: strings, times,
// and UUIDs single-quoted, everything else bare.
func formatLiteral(v resource.Value) string {
	switch resource.KindOf(v) {
	case resource.KindString, resource.KindTime, resource.KindUUID:
		return "'" + resource.Format(v) + "'"
	default:
		return resource.Format(v)
	}
}

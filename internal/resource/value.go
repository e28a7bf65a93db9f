package resource

import (
	"bytes"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Value is a sealed interface over the attribute value variants.
// Only Null, String, Int, Bool, Float, Time, and UUID implement it.
// Consumers dispatch with exhaustive type switches; a default arm is a
// bug guard, not an extension point.
type Value interface {
	value() // sealed
}

// Null is the explicit absent value for nullable attributes.
// Using a concrete type keeps nil out of attribute maps.
type Null struct{}

func (Null) value() {}

// String is a UTF-8 string attribute value.
type String string

func (String) value() {}

// Int is a 64-bit integer attribute value.
type Int int64

func (Int) value() {}

// Bool is a boolean attribute value.
type Bool bool

func (Bool) value() {}

// Float is a 64-bit float attribute value. Floats may not participate in
// primary keys (float equality is not a sound identity).
type Float float64

func (Float) value() {}

// Time is a point-in-time attribute value, always held in UTC.
// Construct via NewTime so monotonic readings and zones are stripped.
type Time time.Time

func (Time) value() {}

// UUID is a universally unique identifier attribute value.
type UUID uuid.UUID

func (UUID) value() {}

// NewTime builds a Time value normalized to UTC.
func NewTime(t time.Time) Time {
	return Time(t.UTC())
}

// NewUUID wraps a uuid.UUID as an attribute value.
func NewUUID(u uuid.UUID) UUID {
	return UUID(u)
}

// Kind identifies a value variant for diagnostics and dispatch.
type Kind int

const (
	KindNull Kind = iota
	KindBool
	KindInt
	KindFloat
	KindTime
	KindUUID
	KindString
)

// String returns the lower-case variant name.
func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "bool"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindTime:
		return "time"
	case KindUUID:
		return "uuid"
	case KindString:
		return "string"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// KindOf reports the variant of v.
func KindOf(v Value) Kind {
	switch v.(type) {
	case Null:
		return KindNull
	case Bool:
		return KindBool
	case Int:
		return KindInt
	case Float:
		return KindFloat
	case Time:
		return KindTime
	case UUID:
		return KindUUID
	case String:
		return KindString
	default:
		return Kind(-1)
	}
}

// rank gives the cross-variant position in the total order. Int and Float
// share a rank so they compare numerically against each other.
func rank(v Value) int {
	switch v.(type) {
	case Null:
		return 0
	case Bool:
		return 1
	case Int, Float:
		return 2
	case Time:
		return 3
	case UUID:
		return 4
	case String:
		return 5
	default:
		return 6
	}
}

// Compare defines a total order over values: Null first, then booleans
// (false before true), numbers (Int and Float compared numerically against
// each other), times (chronological), UUIDs (bytewise), strings
// (lexicographic by bytes). Sorting relies on this order being total:
// Compare never fails, even across variants.
func Compare(a, b Value) int {
	ra, rb := rank(a), rank(b)
	if ra != rb {
		if ra < rb {
			return -1
		}
		return 1
	}

	switch av := a.(type) {
	case Null:
		return 0
	case Bool:
		bv := b.(Bool)
		if av == bv {
			return 0
		}
		if !av {
			return -1
		}
		return 1
	case Int:
		switch bv := b.(type) {
		case Int:
			if av < bv {
				return -1
			}
			if av > bv {
				return 1
			}
			return 0
		case Float:
			return compareFloats(float64(av), float64(bv))
		}
	case Float:
		switch bv := b.(type) {
		case Int:
			return compareFloats(float64(av), float64(bv))
		case Float:
			return compareFloats(float64(av), float64(bv))
		}
	case Time:
		return time.Time(av).Compare(time.Time(b.(Time)))
	case UUID:
		bu := b.(UUID)
		return bytes.Compare(av[:], bu[:])
	case String:
		return strings.Compare(string(av), string(b.(String)))
	}
	return 0
}

// compareFloats orders NaN below every number so the order stays total
// even for values that should never appear (the codec rejects NaN).
func compareFloats(a, b float64) int {
	switch {
	case math.IsNaN(a) && math.IsNaN(b):
		return 0
	case math.IsNaN(a):
		return -1
	case math.IsNaN(b):
		return 1
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// Equal reports value equality: same rank and Compare order 0. Int and
// Float compare numerically, so Int(3) equals Float(3); no other
// cross-variant pair is ever equal.
func Equal(a, b Value) bool {
	if rank(a) != rank(b) {
		return false
	}
	return Compare(a, b) == 0
}

// Format renders a value for human-facing output. Strings render bare;
// use the filter syntax or canonical JSON when quoting matters.
func Format(v Value) string {
	switch val := v.(type) {
	case Null:
		return "null"
	case String:
		return string(val)
	case Int:
		return strconv.FormatInt(int64(val), 10)
	case Bool:
		return strconv.FormatBool(bool(val))
	case Float:
		return strconv.FormatFloat(float64(val), 'g', -1, 64)
	case Time:
		return time.Time(val).Format(time.RFC3339Nano)
	case UUID:
		return uuid.UUID(val).String()
	default:
		return fmt.Sprintf("%v", v)
	}
}

// Package codec converts between typed attribute objects and the native
// maps the storage engines persist. Dump lowers typed values into plain Go
// carriers (string, int64, bool, float64, nil); Cast raises a stored map
// back into a typed record. Cast is total over everything Dump produces
// for the same schema: a row that fails to cast is corrupt, not merely
// stale.
package codec

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/stratumdb/stratum/internal/resource"
)

// Error describes a dump or cast failure pinned to one attribute.
type Error struct {
	Resource string
	Attr     string
	Op       string // "dump" or "cast"
	Reason   string
}

func (e *Error) Error() string {
	if e.Attr == "" {
		return fmt.Sprintf("codec: %s %s: %s", e.Op, e.Resource, e.Reason)
	}
	return fmt.Sprintf("codec: %s %s.%s: %s", e.Op, e.Resource, e.Attr, e.Reason)
}

// Dump lowers a typed attribute object into the engines' native map form.
// Partial objects are legal: only the attributes present are dumped, which
// is what lets update stage just its changed attributes. Undeclared names,
// type mismatches, non-finite floats, and nulls on non-nullable attributes
// all fail.
func Dump(res *resource.Resource, obj resource.Object) (map[string]any, error) {
	for _, name := range sortedNames(obj) {
		if _, ok := res.Attr(name); !ok {
			return nil, &Error{Resource: res.Name, Attr: name, Op: "dump", Reason: "resource declares no such attribute"}
		}
	}

	native := make(map[string]any, len(obj))
	for _, attr := range res.Attributes {
		v, ok := obj[attr.Name]
		if !ok {
			continue
		}
		raw, reason := dumpValue(attr, v)
		if reason != "" {
			return nil, &Error{Resource: res.Name, Attr: attr.Name, Op: "dump", Reason: reason}
		}
		native[attr.Name] = raw
	}
	return native, nil
}

// Complete fills declared-but-missing nullable attributes with Null and
// fails on missing non-nullable ones. Create runs staged objects through
// this so every stored row carries the full attribute map.
func Complete(res *resource.Resource, obj resource.Object) (resource.Object, error) {
	out := obj.Clone()
	for _, attr := range res.Attributes {
		if _, ok := out[attr.Name]; ok {
			continue
		}
		if !attr.AllowNil {
			return nil, &Error{Resource: res.Name, Attr: attr.Name, Op: "dump", Reason: "non-nullable attribute is unset"}
		}
		out[attr.Name] = resource.Null{}
	}
	return out, nil
}

// Cast raises a stored native map back into a typed record. The record is
// marked persisted. Unknown keys fail (the row does not match its schema);
// missing nullable attributes cast to Null; missing non-nullable ones
// fail. Numbers tolerate the int/float64 widening a JSON round trip
// introduces.
func Cast(res *resource.Resource, native map[string]any) (resource.Record, error) {
	for _, name := range sortedNames(native) {
		if _, ok := res.Attr(name); !ok {
			return resource.Record{}, &Error{Resource: res.Name, Attr: name, Op: "cast", Reason: "stored row carries undeclared attribute"}
		}
	}

	attrs := make(resource.Object, len(res.Attributes))
	for _, attr := range res.Attributes {
		raw, ok := native[attr.Name]
		if !ok {
			if !attr.AllowNil {
				return resource.Record{}, &Error{Resource: res.Name, Attr: attr.Name, Op: "cast", Reason: "stored row is missing a non-nullable attribute"}
			}
			attrs[attr.Name] = resource.Null{}
			continue
		}
		v, reason := castValue(attr, raw)
		if reason != "" {
			return resource.Record{}, &Error{Resource: res.Name, Attr: attr.Name, Op: "cast", Reason: reason}
		}
		attrs[attr.Name] = v
	}
	return resource.Record{Attrs: attrs, Persisted: true}, nil
}

// CastPartial raises native values into a typed object without the
// completion Cast performs: only the names present are converted, so the
// result can stage a create or an update's changes. External input (CLI
// JSON, scenario files) comes in through here.
func CastPartial(res *resource.Resource, native map[string]any) (resource.Object, error) {
	obj := make(resource.Object, len(native))
	for _, name := range sortedNames(native) {
		attr, ok := res.Attr(name)
		if !ok {
			return nil, &Error{Resource: res.Name, Attr: name, Op: "cast", Reason: "resource declares no such attribute"}
		}
		v, reason := castValue(attr, native[name])
		if reason != "" {
			return nil, &Error{Resource: res.Name, Attr: name, Op: "cast", Reason: reason}
		}
		obj[name] = v
	}
	return obj, nil
}

func dumpValue(attr resource.Attribute, v resource.Value) (any, string) {
	if v == nil {
		return nil, "attribute value is nil; use resource.Null"
	}
	if _, isNull := v.(resource.Null); isNull {
		if !attr.AllowNil {
			return nil, "null value on a non-nullable attribute"
		}
		return nil, ""
	}
	if !attr.Type.Accepts(v) {
		return nil, fmt.Sprintf("%s value does not satisfy declared type %s", resource.KindOf(v), attr.Type)
	}

	switch val := v.(type) {
	case resource.String:
		return string(val), ""
	case resource.Int:
		if attr.Type == resource.TypeFloat {
			return float64(val), ""
		}
		return int64(val), ""
	case resource.Bool:
		return bool(val), ""
	case resource.Float:
		f := float64(val)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return nil, "non-finite float cannot be stored"
		}
		return f, ""
	case resource.Time:
		return time.Time(val).UTC().Format(time.RFC3339Nano), ""
	case resource.UUID:
		return uuid.UUID(val).String(), ""
	}
	return nil, fmt.Sprintf("unhandled value kind %s", resource.KindOf(v))
}

func castValue(attr resource.Attribute, raw any) (resource.Value, string) {
	if raw == nil {
		if !attr.AllowNil {
			return nil, "stored null on a non-nullable attribute"
		}
		return resource.Null{}, ""
	}

	switch attr.Type {
	case resource.TypeString:
		if s, ok := raw.(string); ok {
			return resource.String(s), ""
		}
	case resource.TypeInt:
		switch n := raw.(type) {
		case int64:
			return resource.Int(n), ""
		case int:
			return resource.Int(n), ""
		case float64:
			i := int64(n)
			if float64(i) != n {
				return nil, fmt.Sprintf("stored number %v is not an integer", n)
			}
			return resource.Int(i), ""
		}
	case resource.TypeBool:
		if b, ok := raw.(bool); ok {
			return resource.Bool(b), ""
		}
	case resource.TypeFloat:
		switch n := raw.(type) {
		case float64:
			return resource.Float(n), ""
		case int64:
			return resource.Float(float64(n)), ""
		case int:
			return resource.Float(float64(n)), ""
		}
	case resource.TypeTime:
		if s, ok := raw.(string); ok {
			t, err := time.Parse(time.RFC3339Nano, s)
			if err != nil {
				return nil, fmt.Sprintf("invalid timestamp %q: %v", s, err)
			}
			return resource.NewTime(t), ""
		}
	case resource.TypeUUID:
		if s, ok := raw.(string); ok {
			u, err := uuid.Parse(s)
			if err != nil {
				return nil, fmt.Sprintf("invalid uuid %q: %v", s, err)
			}
			return resource.NewUUID(u), ""
		}
	default:
		return nil, fmt.Sprintf("unhandled attribute type %s", attr.Type)
	}
	return nil, fmt.Sprintf("stored %T value does not cast to %s", raw, attr.Type)
}

// sortedNames keeps which-attribute-failed errors deterministic across map
// iteration orders.
func sortedNames[V any](m map[string]V) []string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Package resource defines the schema and value model the data layer
// operates on: typed attribute values, resource schemas with composite
// primary keys, records, and the canonical encodings that turn key tuples
// into storage identities.
package resource

import (
	"fmt"
	"strings"
	"unicode"
)

// Type enumerates the attribute types a resource schema may declare.
type Type int

const (
	TypeInvalid Type = iota
	TypeString
	TypeInt
	TypeBool
	TypeFloat
	TypeTime
	TypeUUID
)

var typeNames = map[Type]string{
	TypeString: "string",
	TypeInt:    "int",
	TypeBool:   "bool",
	TypeFloat:  "float",
	TypeTime:   "time",
	TypeUUID:   "uuid",
}

// String returns the stable lower-case type name used in resource
// definitions and CLI output.
func (t Type) String() string {
	if name, ok := typeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("type(%d)", int(t))
}

// ParseType resolves a type name from a resource definition.
func ParseType(name string) (Type, error) {
	for t, n := range typeNames {
		if n == name {
			return t, nil
		}
	}
	return TypeInvalid, fmt.Errorf("unknown attribute type %q", name)
}

// Accepts reports whether a value variant is storable under this declared
// type. Int is accepted where Float is declared (numeric widening); every
// other pairing is exact. Null is handled by the attribute's AllowNil flag,
// not here.
func (t Type) Accepts(v Value) bool {
	switch t {
	case TypeString:
		return KindOf(v) == KindString
	case TypeInt:
		return KindOf(v) == KindInt
	case TypeBool:
		return KindOf(v) == KindBool
	case TypeFloat:
		k := KindOf(v)
		return k == KindFloat || k == KindInt
	case TypeTime:
		return KindOf(v) == KindTime
	case TypeUUID:
		return KindOf(v) == KindUUID
	default:
		return false
	}
}

// keyable reports whether the type may participate in a primary key.
// Floats are excluded: float equality is not a sound storage identity.
func (t Type) keyable() bool {
	switch t {
	case TypeString, TypeInt, TypeBool, TypeTime, TypeUUID:
		return true
	default:
		return false
	}
}

// Attribute is one declared attribute of a resource.
type Attribute struct {
	Name     string
	Type     Type
	AllowNil bool
}

// Resource is the schema of one resource type: its attributes in
// declaration order, the primary key (one or more attribute names, order
// significant), and an optional physical table override.
type Resource struct {
	Name       string
	Table      string // optional override; empty means derive from Name
	Attributes []Attribute
	PrimaryKey []string
}

// Attr looks up a declared attribute by name.
func (r *Resource) Attr(name string) (Attribute, bool) {
	for _, a := range r.Attributes {
		if a.Name == name {
			return a, true
		}
	}
	return Attribute{}, false
}

// Validate checks the schema invariants: a named resource with at least
// one uniquely-named attribute of a known type, and a non-empty primary
// key whose attributes exist, are non-nullable, and are key-encodable.
func (r *Resource) Validate() error {
	if r.Name == "" {
		return fmt.Errorf("resource has no name")
	}
	if len(r.Attributes) == 0 {
		return fmt.Errorf("resource %q declares no attributes", r.Name)
	}

	seen := make(map[string]bool, len(r.Attributes))
	for _, a := range r.Attributes {
		if a.Name == "" {
			return fmt.Errorf("resource %q: attribute with empty name", r.Name)
		}
		if seen[a.Name] {
			return fmt.Errorf("resource %q: duplicate attribute %q", r.Name, a.Name)
		}
		seen[a.Name] = true
		if _, ok := typeNames[a.Type]; !ok {
			return fmt.Errorf("resource %q: attribute %q has invalid type", r.Name, a.Name)
		}
	}

	if len(r.PrimaryKey) == 0 {
		return fmt.Errorf("resource %q declares no primary key", r.Name)
	}
	keySeen := make(map[string]bool, len(r.PrimaryKey))
	for _, name := range r.PrimaryKey {
		if keySeen[name] {
			return fmt.Errorf("resource %q: primary key repeats attribute %q", r.Name, name)
		}
		keySeen[name] = true
		attr, ok := r.Attr(name)
		if !ok {
			return fmt.Errorf("resource %q: primary key names undeclared attribute %q", r.Name, name)
		}
		if attr.AllowNil {
			return fmt.Errorf("resource %q: primary key attribute %q must not allow nil", r.Name, name)
		}
		if !attr.Type.keyable() {
			return fmt.Errorf("resource %q: primary key attribute %q has non-keyable type %s", r.Name, name, attr.Type)
		}
	}
	return nil
}

// TableName resolves the physical table identifier: the explicit Table
// override verbatim when present, otherwise a snake_case derivation of the
// resource name. Pure function of the schema; the data layer resolves once
// at registration and caches the result.
func (r *Resource) TableName() string {
	if r.Table != "" {
		return r.Table
	}
	return DeriveTableName(r.Name)
}

// DeriveTableName lowers a resource identifier into a table name:
// camel-case boundaries and non-alphanumeric runs become single
// underscores ("BlogPost" -> "blog_post", "my-app.User" -> "my_app_user").
func DeriveTableName(name string) string {
	runes := []rune(name)
	var b strings.Builder
	lastUnderscore := true // suppresses a leading underscore
	for i, r := range runes {
		switch {
		case unicode.IsUpper(r):
			boundary := i > 0 &&
				(unicode.IsLower(runes[i-1]) || unicode.IsDigit(runes[i-1]) ||
					(unicode.IsUpper(runes[i-1]) && i+1 < len(runes) && unicode.IsLower(runes[i+1])))
			if boundary && !lastUnderscore {
				b.WriteByte('_')
			}
			b.WriteRune(unicode.ToLower(r))
			lastUnderscore = false
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(unicode.ToLower(r))
			lastUnderscore = false
		default:
			if !lastUnderscore {
				b.WriteByte('_')
			}
			lastUnderscore = true
		}
	}
	return strings.TrimRight(b.String(), "_")
}

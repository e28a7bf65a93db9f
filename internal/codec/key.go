package codec

import (
	"github.com/stratumdb/stratum/internal/resource"
)

// KeyFor encodes a record's primary-key tuple as its storage identity: a
// canonical JSON array of the dumped key attribute values, in declared key
// order. Equal tuples produce identical bytes. Fails if any key attribute
// is unset, null, or refuses to dump.
func KeyFor(res *resource.Resource, obj resource.Object) (resource.Key, error) {
	tuple := make([]any, 0, len(res.PrimaryKey))
	for _, name := range res.PrimaryKey {
		attr, ok := res.Attr(name)
		if !ok {
			return "", &Error{Resource: res.Name, Attr: name, Op: "dump", Reason: "primary key names undeclared attribute"}
		}
		v, ok := obj[name]
		if !ok {
			return "", &Error{Resource: res.Name, Attr: name, Op: "dump", Reason: "primary key attribute is unset"}
		}
		if _, isNull := v.(resource.Null); isNull {
			return "", &Error{Resource: res.Name, Attr: name, Op: "dump", Reason: "primary key attribute is null"}
		}
		raw, reason := dumpValue(attr, v)
		if reason != "" {
			return "", &Error{Resource: res.Name, Attr: name, Op: "dump", Reason: reason}
		}
		tuple = append(tuple, raw)
	}

	b, err := resource.MarshalCanonical(tuple)
	if err != nil {
		return "", &Error{Resource: res.Name, Op: "dump", Reason: err.Error()}
	}
	return resource.Key(b), nil
}

// HasKey reports whether every named key attribute is present and
// non-null. An empty keyAttrs means the primary key. Upsert uses this to
// decide between keyed lookup and plain create.
func HasKey(res *resource.Resource, obj resource.Object, keyAttrs []string) bool {
	if len(keyAttrs) == 0 {
		keyAttrs = res.PrimaryKey
	}
	for _, name := range keyAttrs {
		v, ok := obj[name]
		if !ok {
			return false
		}
		if _, isNull := v.(resource.Null); isNull {
			return false
		}
	}
	return true
}

package resource

// Object is an attribute map: attribute name to typed value.
type Object map[string]Value

// Clone returns a shallow copy. Values are immutable, so sharing them
// between copies is safe.
func (o Object) Clone() Object {
	out := make(Object, len(o))
	for k, v := range o {
		out[k] = v
	}
	return out
}

// Record is one resource instance: its attribute map plus whether the
// layer has persisted it. Records cross the layer boundary by value and
// are never mutated in place.
type Record struct {
	Attrs     Object
	Persisted bool
}

// NewRecord builds an unpersisted record from a staged attribute map.
// The map is copied; later changes to the argument do not leak in.
func NewRecord(attrs Object) Record {
	return Record{Attrs: attrs.Clone()}
}

// Get looks up an attribute value.
func (r Record) Get(name string) (Value, bool) {
	v, ok := r.Attrs[name]
	return v, ok
}

// With returns a copy of the record with one attribute replaced.
func (r Record) With(name string, v Value) Record {
	attrs := r.Attrs.Clone()
	attrs[name] = v
	return Record{Attrs: attrs, Persisted: r.Persisted}
}

// Clone returns an independent copy.
func (r Record) Clone() Record {
	return Record{Attrs: r.Attrs.Clone(), Persisted: r.Persisted}
}

// Key is the engine-facing encoding of a record's primary-key tuple: a
// canonical JSON array of the dumped key attribute values. Equal tuples
// always encode to identical bytes, which lets a Key serve directly as a
// map key, a bolt key, or a sqlite TEXT primary key.
type Key string

func (k Key) String() string { return string(k) }

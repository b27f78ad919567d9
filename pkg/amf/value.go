package amf

import (
	"reflect"

	"github.com/elliotchance/orderedmap/v3"
)

// Object is an anonymous object (empty ClassName) or a typed object whose
// wire class has no native mapping. Members keep wire order.
type Object struct {
	ClassName string
	Members   *Properties
}

// NewObject creates an empty object for the given wire class name.
func NewObject(className string) *Object {
	return &Object{
		ClassName: className,
		Members:   NewProperties(),
	}
}

// Get returns the member stored under key.
func (o *Object) Get(key string) (any, bool) {
	return o.Members.Get(key)
}

// Set stores a member, replacing any previous value for key.
func (o *Object) Set(key string, value any) {
	o.Members.Set(key, value)
}

// Len returns the number of members.
func (o *Object) Len() int {
	return o.Members.Len()
}

// Mapping is an associative array: ordered text keys plus a dense part.
// AMF0 ECMA arrays and AMF3 arrays carrying associative entries decode to it.
type Mapping struct {
	Assoc *orderedmap.OrderedMap[string, any]
	Dense []any
}

// NewMapping creates an empty mapping.
func NewMapping() *Mapping {
	return &Mapping{Assoc: orderedmap.NewOrderedMap[string, any]()}
}

// Get returns the associative value stored under key.
func (m *Mapping) Get(key string) (any, bool) {
	return m.Assoc.Get(key)
}

// Dictionary is an AMF3 dictionary. Keys are arbitrary decoded values, so
// entries are kept as an ordered list rather than a Go map.
type Dictionary struct {
	Entries []DictionaryEntry
	// WeakKeys mirrors the wire flag; it has no effect on decoding.
	WeakKeys bool
}

// DictionaryEntry is one key/value pair of a Dictionary.
type DictionaryEntry struct {
	Key   any
	Value any
}

// Get returns the value of the first entry whose key equals key. Keys of
// non-comparable types never match.
func (d *Dictionary) Get(key any) (any, bool) {
	if key != nil && !reflect.TypeOf(key).Comparable() {
		return nil, false
	}
	for _, e := range d.Entries {
		if e.Key == nil || key == nil {
			if e.Key == nil && key == nil {
				return e.Value, true
			}
			continue
		}
		if reflect.TypeOf(e.Key).Comparable() && e.Key == key {
			return e.Value, true
		}
	}
	return nil, false
}

// Set appends an entry.
func (d *Dictionary) Set(key, value any) {
	d.Entries = append(d.Entries, DictionaryEntry{Key: key, Value: value})
}

// Len returns the number of entries.
func (d *Dictionary) Len() int { return len(d.Entries) }

// Trait is an AMF3 class definition.
type Trait struct {
	ClassName      string
	Members        []string
	Externalizable bool
	Dynamic        bool
}

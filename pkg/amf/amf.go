// Package amf holds the pieces shared by the AMF0 and AMF3 codecs: the byte
// cursor, the decoded value model, the error taxonomy and the contracts the
// codecs consume from the surrounding system (class mapping and
// externalizable types).
package amf

import (
	"io"

	"github.com/elliotchance/orderedmap/v3"
)

// AMF3 integer range. Values outside it are written as doubles.
const (
	MaxInteger = 0x0FFFFFFF
	MinInteger = -0x10000000
)

// MaxDepth is the deepest nesting of containers a decode session accepts.
// Deeper input fails with ErrTooDeep.
const MaxDepth = 10000

// ArrayCollectionClass is the wire name of the flex wrapper that AMF3
// decoding unwraps to its source array.
const ArrayCollectionClass = "flex.messaging.io.ArrayCollection"

// Properties is an ordered set of decoded name/value pairs.
type Properties = orderedmap.OrderedMap[string, any]

// NewProperties returns an empty property set.
func NewProperties() *Properties {
	return orderedmap.NewOrderedMap[string, any]()
}

// ClassMapper resolves wire type names to native values during decoding.
// Implementations are supplied by the caller and held for one session.
type ClassMapper interface {
	// Instantiate returns a new value for the wire class name. Unmapped
	// names yield a generic *Object carrying the name.
	Instantiate(className string) any

	// Populate assigns fixed and dynamic properties onto obj. dynamic is
	// nil when the class is not dynamic.
	Populate(obj any, fixed, dynamic *Properties) error
}

// ClassResolver is the encoding-side counterpart of ClassMapper.
type ClassResolver interface {
	// ClassName returns the wire class name for v, false when unmapped.
	ClassName(v any) (string, bool)

	// Properties returns v's serializable properties in a stable order.
	Properties(v any) (*Properties, error)
}

// Input is the decoding session handed to externalizable types.
type Input interface {
	// ReadObject decodes the next value from the shared stream using the
	// session's caches.
	ReadObject() (any, error)

	// Cursor exposes the stream for raw reads.
	Cursor() *Cursor
}

// Externalizable is implemented by native types that read their own body.
type Externalizable interface {
	ReadExternal(in Input) error
}

// Output is the encoding session handed to ExternalWriter types.
type Output interface {
	io.Writer
	io.ByteWriter

	// WriteObject encodes v into the shared stream using the session's
	// caches.
	WriteObject(v any) error
}

// ExternalWriter is implemented by native types that write their own body.
type ExternalWriter interface {
	WriteExternal(out Output) error
}

// DynamicPropertySetter receives properties that have no matching field on a
// native type.
type DynamicPropertySetter interface {
	SetDynamicProperties(props *Properties)
}

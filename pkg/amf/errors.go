package amf

import "github.com/pkg/errors"

// Decode and encode failures. Each one is terminal for the call that
// returned it; callers match them with errors.Is.
var (
	// ErrInvalidArgument reports a bad version selector or a call made
	// without a source to read from.
	ErrInvalidArgument = errors.New("amf: invalid argument")

	// ErrEndOfInput reports a primitive read past the end of the buffer.
	ErrEndOfInput = errors.New("amf: unexpected end of input")

	// ErrUnknownTypeTag reports a marker byte outside the active format.
	ErrUnknownTypeTag = errors.New("amf: unknown type marker")

	// ErrUnresolvedReference reports a reference index outside the
	// populated range of its cache.
	ErrUnresolvedReference = errors.New("amf: unresolved reference")

	// ErrNotExternalizable reports an externalizable trait whose instance
	// cannot read its own body.
	ErrNotExternalizable = errors.New("amf: class is not externalizable")

	// ErrTooDeep reports a value nested more than MaxDepth levels deep.
	ErrTooDeep = errors.New("amf: value nested too deeply")

	// ErrUnsupportedValue reports a Go value the encoder cannot write.
	ErrUnsupportedValue = errors.New("amf: unsupported value")
)

// UnknownMarker wraps ErrUnknownTypeTag with the format and offending byte.
func UnknownMarker(format string, marker byte, offset int) error {
	return errors.Wrapf(ErrUnknownTypeTag, "%s marker 0x%02X at offset %d", format, marker, offset)
}

// UnresolvedReference wraps ErrUnresolvedReference with the cache name,
// index and current cache size.
func UnresolvedReference(cache string, index, size int) error {
	return errors.Wrapf(ErrUnresolvedReference, "%s reference %d, cache holds %d", cache, index, size)
}

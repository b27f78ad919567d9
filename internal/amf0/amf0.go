// Package amf0 implements Action Message Format 0 (AMF0) encoding and decoding.
// AMF0 values carry a one-byte marker followed by big-endian payloads.
// Objects, ECMA arrays and strict arrays share one reference table, and the
// AVM+ marker hands the rest of a value over to AMF3.
package amf0

import "github.com/DMA-Software/dma-goamf/pkg/amf"

// AMF0 Data Types as defined in the AMF0 specification
//
//goland:noinspection ALL
const (
	AMF0TypeNumber      = 0x00
	AMF0TypeBoolean     = 0x01
	AMF0TypeString      = 0x02
	AMF0TypeObject      = 0x03
	AMF0TypeMovieClip   = 0x04 // Reserved, not supported
	AMF0TypeNull        = 0x05
	AMF0TypeUndefined   = 0x06
	AMF0TypeReference   = 0x07
	AMF0TypeEcmaArray   = 0x08
	AMF0TypeObjectEnd   = 0x09
	AMF0TypeStrictArray = 0x0A
	AMF0TypeDate        = 0x0B
	AMF0TypeLongString  = 0x0C
	AMF0TypeUnsupported = 0x0D
	AMF0TypeRecordset   = 0x0E // Reserved, not supported
	AMF0TypeXMLDocument = 0x0F
	AMF0TypeTypedObject = 0x10
	AMF0TypeAVMPlus     = 0x11 // Switch to AMF3
)

// maxShortString is the longest payload a 16-bit length prefix can carry.
const maxShortString = 0xFFFF

// referenceTable is the single AMF0 reference table.
type referenceTable []any

func (r referenceTable) get(index int) (any, error) {
	if index < 0 || index >= len(r) {
		return nil, amf.UnresolvedReference("amf0", index, len(r))
	}
	return r[index], nil
}

// Package amf3 provides encoding and decoding of Action Message Format 3 (AMF3) data.
// AMF3 is the compact successor of AMF0: variable-length integers plus three
// reference tables (strings, complex values and class traits) whose numbering
// is part of the wire contract.
package amf3

import "github.com/DMA-Software/dma-goamf/pkg/amf"

// AMF3 Data Types as defined in the AMF3 specification
//
//goland:noinspection ALL
const (
	AMF3TypeUndefined    = 0x00
	AMF3TypeNull         = 0x01
	AMF3TypeFalse        = 0x02
	AMF3TypeTrue         = 0x03
	AMF3TypeInteger      = 0x04
	AMF3TypeDouble       = 0x05
	AMF3TypeString       = 0x06
	AMF3TypeXMLDocument  = 0x07
	AMF3TypeDate         = 0x08
	AMF3TypeArray        = 0x09
	AMF3TypeObject       = 0x0A
	AMF3TypeXML          = 0x0B
	AMF3TypeByteArray    = 0x0C
	AMF3TypeVectorInt    = 0x0D
	AMF3TypeVectorUInt   = 0x0E
	AMF3TypeVectorDouble = 0x0F
	AMF3TypeVectorObject = 0x10
	AMF3TypeDictionary   = 0x11
)

// Trait header bits, after the inline-object bit has been shifted out.
const (
	traitInline         = 0x01
	traitExternalizable = 0x02
	traitDynamic        = 0x04
)

// referenceContext holds the three reference tables of one decoding session.
// Entries are only ever appended.
type referenceContext struct {
	stringTable []string     // non-empty strings
	objectTable []any        // objects, arrays, dates, byte arrays, XML, dictionaries
	traitsTable []*amf.Trait // literal trait definitions
}

func (r *referenceContext) reset() {
	r.stringTable = nil
	r.objectTable = nil
	r.traitsTable = nil
}

func (r *referenceContext) string(index int) (string, error) {
	if index < 0 || index >= len(r.stringTable) {
		return "", amf.UnresolvedReference("amf3 string", index, len(r.stringTable))
	}
	return r.stringTable[index], nil
}

func (r *referenceContext) object(index int) (any, error) {
	if index < 0 || index >= len(r.objectTable) {
		return nil, amf.UnresolvedReference("amf3 object", index, len(r.objectTable))
	}
	return r.objectTable[index], nil
}

func (r *referenceContext) trait(index int) (*amf.Trait, error) {
	if index < 0 || index >= len(r.traitsTable) {
		return nil, amf.UnresolvedReference("amf3 trait", index, len(r.traitsTable))
	}
	return r.traitsTable[index], nil
}

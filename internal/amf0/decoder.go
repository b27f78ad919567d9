package amf0

import (
	"math"
	"time"

	"github.com/pkg/errors"

	"github.com/DMA-Software/dma-goamf/internal/amf3"
	"github.com/DMA-Software/dma-goamf/pkg/amf"
)

// AMF0Decoder decodes AMF0 format to Go values
//
//goland:noinspection ALL
type AMF0Decoder struct {
	cursor *amf.Cursor
	mapper amf.ClassMapper
	refs   referenceTable
	depth  int
}

// NewAMF0Decoder creates a new AMF0 decoder reading from the cursor and
// constructing objects through mapper.
func NewAMF0Decoder(c *amf.Cursor, mapper amf.ClassMapper) *AMF0Decoder {
	return &AMF0Decoder{cursor: c, mapper: mapper}
}

// Decode decodes a value from AMF0 format
func (d *AMF0Decoder) Decode() (any, error) {
	return d.decodeValue()
}

// ReadObject decodes the next value, keeping the reference table.
func (d *AMF0Decoder) ReadObject() (any, error) {
	return d.decodeValue()
}

// Cursor returns the cursor the decoder reads from.
func (d *AMF0Decoder) Cursor() *amf.Cursor {
	return d.cursor
}

// Reset clears the reference table.
func (d *AMF0Decoder) Reset() {
	d.refs = nil
	d.depth = 0
}

// decodeValue decodes any AMF0 value to Go types
func (d *AMF0Decoder) decodeValue() (any, error) {
	offset := d.cursor.Pos()
	typeByte, err := d.cursor.ReadByte()
	if err != nil {
		return nil, err
	}
	v, err := d.decodeMarker(typeByte, offset)
	if err != nil {
		return nil, err
	}
	return v, nil
}

// decodeMarker decodes the value introduced by typeByte. Every nested value
// passes through here, so it also bounds the nesting depth.
func (d *AMF0Decoder) decodeMarker(typeByte byte, offset int) (any, error) {
	if d.depth >= amf.MaxDepth {
		return nil, errors.Wrapf(amf.ErrTooDeep, "amf0 value at offset %d exceeds depth %d", offset, amf.MaxDepth)
	}
	d.depth++
	defer func() { d.depth-- }()

	switch typeByte {
	case AMF0TypeNumber:
		return d.decodeNumber()
	case AMF0TypeBoolean:
		b, err := d.cursor.ReadByte()
		if err != nil {
			return nil, err
		}
		return b != 0, nil
	case AMF0TypeString:
		return d.readUTF8(false)
	case AMF0TypeObject:
		return d.decodeObject("")
	case AMF0TypeNull, AMF0TypeUndefined, AMF0TypeUnsupported:
		return nil, nil
	case AMF0TypeReference:
		index, err := d.cursor.ReadUint16()
		if err != nil {
			return nil, err
		}
		return d.refs.get(int(index))
	case AMF0TypeEcmaArray:
		return d.decodeEcmaArray()
	case AMF0TypeStrictArray:
		return d.decodeStrictArray()
	case AMF0TypeDate:
		return d.decodeDate()
	case AMF0TypeLongString, AMF0TypeXMLDocument:
		return d.readUTF8(true)
	case AMF0TypeTypedObject:
		className, err := d.readUTF8(false)
		if err != nil {
			return nil, err
		}
		return d.decodeObject(className)
	case AMF0TypeAVMPlus:
		// The rest of this value is AMF3 with tables of its own.
		return amf3.NewAMF3Decoder(d.cursor, d.mapper).WithDepth(d.depth).Decode()
	default:
		return nil, amf.UnknownMarker("amf0", typeByte, offset)
	}
}

// decodeNumber decodes a number; NaN decodes to nil
func (d *AMF0Decoder) decodeNumber() (any, error) {
	v, err := d.cursor.ReadDouble()
	if err != nil {
		return nil, err
	}
	if math.IsNaN(v) {
		return nil, nil
	}
	return v, nil
}

// decodeDate decodes a date; the timezone field is read and discarded
func (d *AMF0Decoder) decodeDate() (any, error) {
	millis, err := d.cursor.ReadDouble()
	if err != nil {
		return nil, err
	}
	if _, err := d.cursor.ReadUint16(); err != nil {
		return nil, err
	}
	return time.UnixMilli(int64(millis)).UTC(), nil
}

// readProps reads name/value pairs until the object end marker. The marker
// is checked in place of a value, so the name before it is discarded.
func (d *AMF0Decoder) readProps(set func(key string, value any)) error {
	for {
		key, err := d.readUTF8(false)
		if err != nil {
			return err
		}
		offset := d.cursor.Pos()
		marker, err := d.cursor.ReadByte()
		if err != nil {
			return err
		}
		if marker == AMF0TypeObjectEnd {
			return nil
		}
		value, err := d.decodeMarker(marker, offset)
		if err != nil {
			return err
		}
		set(key, value)
	}
}

// decodeObject decodes an anonymous (empty className) or typed object
func (d *AMF0Decoder) decodeObject(className string) (any, error) {
	obj := d.mapper.Instantiate(className)
	// Add to the reference table first (for self-references)
	d.refs = append(d.refs, obj)

	props := amf.NewProperties()
	if err := d.readProps(func(key string, value any) { props.Set(key, value) }); err != nil {
		return nil, err
	}
	if err := d.mapper.Populate(obj, props, nil); err != nil {
		return nil, errors.WithMessagef(err, "populate %q", className)
	}
	return obj, nil
}

// decodeEcmaArray decodes an ECMA array; the declared count is ignored
func (d *AMF0Decoder) decodeEcmaArray() (any, error) {
	if _, err := d.cursor.ReadUint32(); err != nil {
		return nil, err
	}
	mapping := amf.NewMapping()
	d.refs = append(d.refs, mapping)

	if err := d.readProps(func(key string, value any) { mapping.Assoc.Set(key, value) }); err != nil {
		return nil, err
	}
	return mapping, nil
}

// decodeStrictArray decodes a strict array
func (d *AMF0Decoder) decodeStrictArray() (any, error) {
	count, err := d.cursor.ReadUint32()
	if err != nil {
		return nil, err
	}
	if uint64(count) > uint64(d.cursor.Len()) {
		return nil, errors.Wrapf(amf.ErrEndOfInput, "strict array count %d exceeds remaining %d bytes", count, d.cursor.Len())
	}

	arr := make([]any, count)
	d.refs = append(d.refs, arr)
	for i := range arr {
		if arr[i], err = d.decodeValue(); err != nil {
			return nil, errors.WithMessagef(err, "strict array element %d", i)
		}
	}
	return arr, nil
}

// readUTF8 reads a UTF-8 string with length prefix
func (d *AMF0Decoder) readUTF8(longString bool) (string, error) {
	var length int
	if longString {
		// Long string uses 4-byte length
		n, err := d.cursor.ReadUint32()
		if err != nil {
			return "", err
		}
		length = int(n)
	} else {
		// Regular string uses 2-byte length
		n, err := d.cursor.ReadUint16()
		if err != nil {
			return "", err
		}
		length = int(n)
	}

	data, err := d.cursor.ReadBytes(length)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

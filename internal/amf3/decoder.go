package amf3

import (
	"math"
	"time"

	"github.com/pkg/errors"

	"github.com/DMA-Software/dma-goamf/pkg/amf"
)

// AMF3Decoder provides decoding of AMF3 format to Go values.
// A decoder is one session: its reference tables grow with every value it
// reads until Reset is called. It is not safe for concurrent use.
//
//goland:noinspection ALL
type AMF3Decoder struct {
	cursor *amf.Cursor
	mapper amf.ClassMapper
	refs   referenceContext
	depth  int
}

// NewAMF3Decoder creates a new AMF3 decoder reading from the cursor and
// constructing typed objects through mapper.
func NewAMF3Decoder(c *amf.Cursor, mapper amf.ClassMapper) *AMF3Decoder {
	return &AMF3Decoder{
		cursor: c,
		mapper: mapper,
	}
}

// Decode decodes the next AMF3 value.
func (d *AMF3Decoder) Decode() (any, error) {
	return d.decodeValue()
}

// ReadObject decodes the next AMF3 value. It lets externalizable types
// continue reading through the same session.
func (d *AMF3Decoder) ReadObject() (any, error) {
	return d.decodeValue()
}

// Cursor returns the cursor the decoder reads from.
func (d *AMF3Decoder) Cursor() *amf.Cursor {
	return d.cursor
}

// Reset clears the reference tables.
func (d *AMF3Decoder) Reset() {
	d.refs.reset()
	d.depth = 0
}

// WithDepth starts the decoder as if depth values were already open, for a
// session embedded in another one.
func (d *AMF3Decoder) WithDepth(depth int) *AMF3Decoder {
	d.depth = depth
	return d
}

// decodeValue decodes any AMF3 value to a Go value. No partial value is
// returned with an error.
func (d *AMF3Decoder) decodeValue() (any, error) {
	if d.depth >= amf.MaxDepth {
		return nil, errors.Wrapf(amf.ErrTooDeep, "amf3 value at offset %d exceeds depth %d", d.cursor.Pos(), amf.MaxDepth)
	}
	d.depth++
	defer func() { d.depth-- }()

	v, err := d.decodeMarker()
	if err != nil {
		return nil, err
	}
	return v, nil
}

func (d *AMF3Decoder) decodeMarker() (any, error) {
	offset := d.cursor.Pos()
	typeByte, err := d.cursor.ReadByte()
	if err != nil {
		return nil, err
	}

	switch typeByte {
	case AMF3TypeUndefined, AMF3TypeNull:
		return nil, nil
	case AMF3TypeFalse:
		return false, nil
	case AMF3TypeTrue:
		return true, nil
	case AMF3TypeInteger:
		return d.cursor.ReadU29()
	case AMF3TypeDouble:
		return d.decodeDouble()
	case AMF3TypeString:
		return d.readString()
	case AMF3TypeXMLDocument, AMF3TypeXML:
		return d.decodeXML()
	case AMF3TypeDate:
		return d.decodeDate()
	case AMF3TypeArray:
		return d.decodeArray()
	case AMF3TypeObject:
		return d.decodeObject()
	case AMF3TypeByteArray:
		return d.decodeByteArray()
	case AMF3TypeDictionary:
		return d.decodeDictionary()
	default:
		return nil, amf.UnknownMarker("amf3", typeByte, offset)
	}
}

// readHeader reads the U29 that starts every referenceable value. inline is
// false when value is a reference index.
func (d *AMF3Decoder) readHeader() (value int, inline bool, err error) {
	h, err := d.cursor.ReadU29()
	if err != nil {
		return 0, false, err
	}
	return int(h >> 1), h&0x01 != 0, nil
}

// decodeDouble decodes an IEEE-754 double; NaN decodes to nil
func (d *AMF3Decoder) decodeDouble() (any, error) {
	v, err := d.cursor.ReadDouble()
	if err != nil {
		return nil, err
	}
	if math.IsNaN(v) {
		return nil, nil
	}
	return v, nil
}

// readString reads a string with reference table support.
// Empty strings are never added to the reference table.
func (d *AMF3Decoder) readString() (string, error) {
	value, inline, err := d.readHeader()
	if err != nil {
		return "", err
	}
	if !inline {
		return d.refs.string(value)
	}
	if value == 0 {
		return "", nil
	}

	buf, err := d.cursor.ReadBytes(value)
	if err != nil {
		return "", err
	}
	str := string(buf)
	d.refs.stringTable = append(d.refs.stringTable, str)
	return str, nil
}

// decodeXML reads XML text. It shares the string layout but lives in the
// object table, and only non-empty documents are added to it.
func (d *AMF3Decoder) decodeXML() (any, error) {
	value, inline, err := d.readHeader()
	if err != nil {
		return nil, err
	}
	if !inline {
		return d.refs.object(value)
	}
	if value == 0 {
		return "", nil
	}

	buf, err := d.cursor.ReadBytes(value)
	if err != nil {
		return nil, err
	}
	str := string(buf)
	d.refs.objectTable = append(d.refs.objectTable, str)
	return str, nil
}

// decodeDate decodes a date (milliseconds since the Unix epoch)
func (d *AMF3Decoder) decodeDate() (any, error) {
	value, inline, err := d.readHeader()
	if err != nil {
		return nil, err
	}
	if !inline {
		return d.refs.object(value)
	}

	millis, err := d.cursor.ReadDouble()
	if err != nil {
		return nil, err
	}
	t := time.UnixMilli(int64(millis)).UTC()
	d.refs.objectTable = append(d.refs.objectTable, t)
	return t, nil
}

// decodeByteArray decodes a byte array
func (d *AMF3Decoder) decodeByteArray() (any, error) {
	value, inline, err := d.readHeader()
	if err != nil {
		return nil, err
	}
	if !inline {
		return d.refs.object(value)
	}

	buf, err := d.cursor.ReadBytes(value)
	if err != nil {
		return nil, err
	}
	d.refs.objectTable = append(d.refs.objectTable, buf)
	return buf, nil
}

// checkCount rejects element counts that cannot fit in the remaining input,
// given that every element takes at least minSize bytes.
func (d *AMF3Decoder) checkCount(count, minSize int, what string) error {
	if count < 0 || count > d.cursor.Len()/minSize {
		return errors.Wrapf(amf.ErrEndOfInput, "%s count %d exceeds remaining %d bytes", what, count, d.cursor.Len())
	}
	return nil
}

// decodeArray decodes an array with dense and associative parts.
// A purely dense array decodes to []any, anything else to *amf.Mapping.
func (d *AMF3Decoder) decodeArray() (any, error) {
	count, inline, err := d.readHeader()
	if err != nil {
		return nil, err
	}
	if !inline {
		return d.refs.object(count)
	}

	key, err := d.readString()
	if err != nil {
		return nil, err
	}

	if key == "" {
		if err := d.checkCount(count, 1, "array"); err != nil {
			return nil, err
		}
		dense := make([]any, count)
		// Add to the reference table first (for self-references)
		d.refs.objectTable = append(d.refs.objectTable, dense)
		for i := range dense {
			if dense[i], err = d.decodeValue(); err != nil {
				return nil, err
			}
		}
		return dense, nil
	}

	mapping := amf.NewMapping()
	d.refs.objectTable = append(d.refs.objectTable, mapping)

	// Associative part, terminated by an empty key
	for key != "" {
		value, err := d.decodeValue()
		if err != nil {
			return nil, err
		}
		mapping.Assoc.Set(key, value)
		if key, err = d.readString(); err != nil {
			return nil, err
		}
	}

	if err := d.checkCount(count, 1, "array"); err != nil {
		return nil, err
	}
	mapping.Dense = make([]any, count)
	for i := range mapping.Dense {
		if mapping.Dense[i], err = d.decodeValue(); err != nil {
			return nil, err
		}
	}
	return mapping, nil
}

// readTrait reads the trait part of an object header. header is the U29
// with the inline-object bit already shifted out.
func (d *AMF3Decoder) readTrait(header int) (*amf.Trait, error) {
	if header&traitInline == 0 {
		return d.refs.trait(header >> 1)
	}

	memberCount := header >> 3
	className, err := d.readString()
	if err != nil {
		return nil, err
	}
	if err := d.checkCount(memberCount, 1, "trait member"); err != nil {
		return nil, err
	}

	trait := &amf.Trait{
		ClassName:      className,
		Members:        make([]string, 0, memberCount),
		Externalizable: header&traitExternalizable != 0,
		Dynamic:        header&traitDynamic != 0,
	}
	for i := 0; i < memberCount; i++ {
		name, err := d.readString()
		if err != nil {
			return nil, err
		}
		trait.Members = append(trait.Members, name)
	}
	d.refs.traitsTable = append(d.refs.traitsTable, trait)
	return trait, nil
}

// decodeObject decodes an object: anonymous, typed, dynamic or externalizable
func (d *AMF3Decoder) decodeObject() (any, error) {
	header, inline, err := d.readHeader()
	if err != nil {
		return nil, err
	}
	if !inline {
		return d.refs.object(header)
	}

	trait, err := d.readTrait(header)
	if err != nil {
		return nil, err
	}

	// ArrayCollection is transparent: its source array is the value. The
	// array is registered a second time to keep numbering aligned with the
	// wrapper slot an encoder allocates.
	if trait.ClassName == amf.ArrayCollectionClass {
		source, err := d.decodeValue()
		if err != nil {
			return nil, err
		}
		d.refs.objectTable = append(d.refs.objectTable, source)
		return source, nil
	}

	obj := d.mapper.Instantiate(trait.ClassName)
	// Add to the reference table first (for self-references)
	d.refs.objectTable = append(d.refs.objectTable, obj)

	if trait.Externalizable {
		ext, ok := obj.(amf.Externalizable)
		if !ok {
			return nil, errors.Wrapf(amf.ErrNotExternalizable, "class %q decoded as %T", trait.ClassName, obj)
		}
		if err := ext.ReadExternal(d); err != nil {
			return nil, errors.WithMessagef(err, "read external %q", trait.ClassName)
		}
		return obj, nil
	}

	fixed := amf.NewProperties()
	for _, name := range trait.Members {
		value, err := d.decodeValue()
		if err != nil {
			return nil, err
		}
		fixed.Set(name, value)
	}

	var dynamic *amf.Properties
	if trait.Dynamic {
		dynamic = amf.NewProperties()
		for {
			key, err := d.readString()
			if err != nil {
				return nil, err
			}
			if key == "" {
				break
			}
			value, err := d.decodeValue()
			if err != nil {
				return nil, err
			}
			dynamic.Set(key, value)
		}
	}

	if err := d.mapper.Populate(obj, fixed, dynamic); err != nil {
		return nil, errors.WithMessagef(err, "populate %q", trait.ClassName)
	}
	return obj, nil
}

// decodeDictionary decodes a dictionary whose keys are arbitrary values
func (d *AMF3Decoder) decodeDictionary() (any, error) {
	count, inline, err := d.readHeader()
	if err != nil {
		return nil, err
	}
	if !inline {
		return d.refs.object(count)
	}

	dict := &amf.Dictionary{}
	d.refs.objectTable = append(d.refs.objectTable, dict)

	weak, err := d.cursor.ReadU29()
	if err != nil {
		return nil, err
	}
	dict.WeakKeys = weak&0x01 != 0

	if err := d.checkCount(count, 2, "dictionary"); err != nil {
		return nil, err
	}
	dict.Entries = make([]amf.DictionaryEntry, 0, count)
	for i := 0; i < count; i++ {
		key, err := d.decodeValue()
		if err != nil {
			return nil, err
		}
		value, err := d.decodeValue()
		if err != nil {
			return nil, err
		}
		dict.Set(key, value)
	}
	return dict, nil
}

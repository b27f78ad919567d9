package amf0

import (
	"encoding/binary"
	"io"
	"math"
	"reflect"
	"sort"
	"strconv"
	"time"

	"github.com/pkg/errors"

	"github.com/DMA-Software/dma-goamf/pkg/amf"
)

// objectKey identifies a complex value for the reference table.
type objectKey struct {
	ptr uintptr
	len int
}

// AMF0Encoder encodes Go values to AMF0 format
//
//goland:noinspection ALL
type AMF0Encoder struct {
	writer   io.Writer
	resolver amf.ClassResolver
	refs     map[any]int
	count    int
}

// NewAMF0Encoder creates a new AMF0 encoder. resolver names and lists the
// properties of native struct values; it may be nil when none are written.
func NewAMF0Encoder(w io.Writer, resolver amf.ClassResolver) *AMF0Encoder {
	e := &AMF0Encoder{writer: w, resolver: resolver}
	e.Reset()
	return e
}

// Encode encodes a value to AMF0 format
func (e *AMF0Encoder) Encode(value any) error {
	return e.encodeValue(value)
}

// Reset clears the reference table.
func (e *AMF0Encoder) Reset() {
	e.refs = make(map[any]int)
	e.count = 0
}

// encodeValue encodes any Go value to AMF0
func (e *AMF0Encoder) encodeValue(value any) error {
	switch v := value.(type) {
	case nil:
		return e.writeByte(AMF0TypeNull)
	case float64:
		return e.encodeNumber(v)
	case float32:
		return e.encodeNumber(float64(v))
	case int:
		return e.encodeNumber(float64(v))
	case int8:
		return e.encodeNumber(float64(v))
	case int16:
		return e.encodeNumber(float64(v))
	case int32:
		return e.encodeNumber(float64(v))
	case int64:
		return e.encodeNumber(float64(v))
	case uint:
		return e.encodeNumber(float64(v))
	case uint8:
		return e.encodeNumber(float64(v))
	case uint16:
		return e.encodeNumber(float64(v))
	case uint32:
		return e.encodeNumber(float64(v))
	case uint64:
		return e.encodeNumber(float64(v))
	case bool:
		return e.encodeBoolean(v)
	case string:
		return e.encodeString(v)
	case time.Time:
		return e.encodeDate(v)
	case []any:
		return e.encodeStrictArray(v)
	case *amf.Object:
		if v == nil {
			return e.writeByte(AMF0TypeNull)
		}
		return e.encodeGenericObject(v)
	case *amf.Mapping:
		if v == nil {
			return e.writeByte(AMF0TypeNull)
		}
		return e.encodeEcmaArray(v)
	case map[string]any:
		if v == nil {
			return e.writeByte(AMF0TypeNull)
		}
		return e.encodeMap(v)
	case []byte, *amf.Dictionary:
		return errors.Wrapf(amf.ErrUnsupportedValue, "amf0: cannot encode %T", value)
	}

	rv := reflect.ValueOf(value)
	switch rv.Kind() {
	case reflect.Ptr:
		if rv.IsNil() {
			return e.writeByte(AMF0TypeNull)
		}
		if rv.Elem().Kind() == reflect.Struct {
			return e.encodeNative(value)
		}
		return e.encodeValue(rv.Elem().Interface())
	case reflect.Slice, reflect.Array:
		items := make([]any, rv.Len())
		for i := range items {
			items[i] = rv.Index(i).Interface()
		}
		return e.encodeStrictArray(items)
	case reflect.Bool:
		return e.encodeBoolean(rv.Bool())
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return e.encodeNumber(float64(rv.Int()))
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return e.encodeNumber(float64(rv.Uint()))
	case reflect.Float32, reflect.Float64:
		return e.encodeNumber(rv.Float())
	case reflect.String:
		return e.encodeString(rv.String())
	}
	return errors.Wrapf(amf.ErrUnsupportedValue, "amf0: cannot encode %T", value)
}

// writeReference writes a reference marker when key was already written and
// reports whether it did. Otherwise the value takes the next table slot.
// Slots past the 16-bit index range are counted but never referenced.
func (e *AMF0Encoder) writeReference(key any) (bool, error) {
	if key != nil {
		if idx, ok := e.refs[key]; ok {
			if err := e.writeByte(AMF0TypeReference); err != nil {
				return true, err
			}
			return true, binary.Write(e.writer, binary.BigEndian, uint16(idx))
		}
		if e.count <= math.MaxUint16 {
			e.refs[key] = e.count
		}
	}
	e.count++
	return false, nil
}

func identity(v any) any {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice:
		if rv.Len() == 0 {
			return nil
		}
		return objectKey{ptr: rv.Pointer(), len: rv.Len()}
	case reflect.Map:
		return objectKey{ptr: rv.Pointer(), len: -1}
	case reflect.Ptr:
		return v
	}
	return nil
}

// encodeNumber encodes a number to AMF0
func (e *AMF0Encoder) encodeNumber(value float64) error {
	if err := e.writeByte(AMF0TypeNumber); err != nil {
		return err
	}
	return binary.Write(e.writer, binary.BigEndian, math.Float64bits(value))
}

// encodeBoolean encodes a boolean to AMF0
func (e *AMF0Encoder) encodeBoolean(value bool) error {
	if err := e.writeByte(AMF0TypeBoolean); err != nil {
		return err
	}
	if value {
		return e.writeByte(1)
	}
	return e.writeByte(0)
}

// encodeString encodes a string, switching to a long string past 65535 bytes
func (e *AMF0Encoder) encodeString(value string) error {
	if len(value) > maxShortString {
		if err := e.writeByte(AMF0TypeLongString); err != nil {
			return err
		}
		return e.writeUTF8(value, true)
	}
	if err := e.writeByte(AMF0TypeString); err != nil {
		return err
	}
	return e.writeUTF8(value, false)
}

// encodeDate encodes a date with a zero timezone
func (e *AMF0Encoder) encodeDate(value time.Time) error {
	if err := e.writeByte(AMF0TypeDate); err != nil {
		return err
	}
	if err := binary.Write(e.writer, binary.BigEndian, math.Float64bits(float64(value.UnixMilli()))); err != nil {
		return err
	}
	return binary.Write(e.writer, binary.BigEndian, int16(0))
}

// encodeStrictArray encodes a strict array to AMF0
func (e *AMF0Encoder) encodeStrictArray(value []any) error {
	if done, err := e.writeReference(identity(value)); done || err != nil {
		return err
	}
	if err := e.writeByte(AMF0TypeStrictArray); err != nil {
		return err
	}
	if uint64(len(value)) > math.MaxUint32 {
		return errors.Wrapf(amf.ErrUnsupportedValue, "amf0: strict array of %d elements", len(value))
	}
	if err := binary.Write(e.writer, binary.BigEndian, uint32(len(value))); err != nil {
		return err
	}
	for _, val := range value {
		if err := e.encodeValue(val); err != nil {
			return err
		}
	}
	return nil
}

// encodeEcmaArray encodes a mapping as an ECMA array. Dense elements are
// written under their decimal index.
func (e *AMF0Encoder) encodeEcmaArray(value *amf.Mapping) error {
	if done, err := e.writeReference(value); done || err != nil {
		return err
	}
	if err := e.writeByte(AMF0TypeEcmaArray); err != nil {
		return err
	}
	count := len(value.Dense)
	if value.Assoc != nil {
		count += value.Assoc.Len()
	}
	if err := binary.Write(e.writer, binary.BigEndian, uint32(count)); err != nil {
		return err
	}
	for i, val := range value.Dense {
		if err := e.writeProperty(strconv.Itoa(i), val); err != nil {
			return err
		}
	}
	if value.Assoc != nil {
		for key, val := range value.Assoc.AllFromFront() {
			if err := e.writeProperty(key, val); err != nil {
				return err
			}
		}
	}
	return e.writeObjectEnd()
}

// encodeGenericObject encodes an *amf.Object as an anonymous or typed object
func (e *AMF0Encoder) encodeGenericObject(value *amf.Object) error {
	if done, err := e.writeReference(value); done || err != nil {
		return err
	}
	if err := e.writeObjectHeader(value.ClassName); err != nil {
		return err
	}
	if value.Members != nil {
		for key, val := range value.Members.AllFromFront() {
			if err := e.writeProperty(key, val); err != nil {
				return err
			}
		}
	}
	return e.writeObjectEnd()
}

// encodeMap encodes a plain Go map as an anonymous object with sorted keys
func (e *AMF0Encoder) encodeMap(value map[string]any) error {
	if done, err := e.writeReference(identity(value)); done || err != nil {
		return err
	}
	if err := e.writeByte(AMF0TypeObject); err != nil {
		return err
	}
	keys := make([]string, 0, len(value))
	for key := range value {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		if err := e.writeProperty(key, value[key]); err != nil {
			return err
		}
	}
	return e.writeObjectEnd()
}

// encodeNative encodes a native struct pointer through the class resolver
func (e *AMF0Encoder) encodeNative(value any) error {
	if e.resolver == nil {
		return errors.Wrapf(amf.ErrUnsupportedValue, "amf0: no class resolver for %T", value)
	}
	if done, err := e.writeReference(value); done || err != nil {
		return err
	}
	className, _ := e.resolver.ClassName(value)
	props, err := e.resolver.Properties(value)
	if err != nil {
		return err
	}
	if err := e.writeObjectHeader(className); err != nil {
		return err
	}
	for key, val := range props.AllFromFront() {
		if err := e.writeProperty(key, val); err != nil {
			return err
		}
	}
	return e.writeObjectEnd()
}

func (e *AMF0Encoder) writeObjectHeader(className string) error {
	if className == "" {
		return e.writeByte(AMF0TypeObject)
	}
	if err := e.writeByte(AMF0TypeTypedObject); err != nil {
		return err
	}
	return e.writeUTF8(className, false)
}

func (e *AMF0Encoder) writeProperty(key string, value any) error {
	// Write a property name (without a type marker)
	if err := e.writeUTF8(key, false); err != nil {
		return err
	}
	return e.encodeValue(value)
}

// writeObjectEnd writes the empty name and object end marker
func (e *AMF0Encoder) writeObjectEnd() error {
	if err := e.writeUTF8("", false); err != nil {
		return err
	}
	return e.writeByte(AMF0TypeObjectEnd)
}

// writeUTF8 writes a UTF-8 string with length prefix
func (e *AMF0Encoder) writeUTF8(s string, longString bool) error {
	if longString {
		// Long string uses 4-byte length
		if uint64(len(s)) > math.MaxUint32 {
			return errors.Wrapf(amf.ErrUnsupportedValue, "amf0: long string of %d bytes", len(s))
		}
		if err := binary.Write(e.writer, binary.BigEndian, uint32(len(s))); err != nil {
			return err
		}
	} else {
		// Regular string uses 2-byte length
		if len(s) > maxShortString {
			return errors.Wrapf(amf.ErrUnsupportedValue, "amf0: string too long for UTF-8: %d bytes", len(s))
		}
		if err := binary.Write(e.writer, binary.BigEndian, uint16(len(s))); err != nil {
			return err
		}
	}

	_, err := io.WriteString(e.writer, s)
	return err
}

// writeByte writes a single byte
func (e *AMF0Encoder) writeByte(b byte) error {
	_, err := e.writer.Write([]byte{b})
	return err
}

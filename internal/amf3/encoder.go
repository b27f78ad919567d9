package amf3

import (
	"encoding/binary"
	"io"
	"math"
	"reflect"
	"sort"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/DMA-Software/dma-goamf/pkg/amf"
)

// Writer is what the encoder writes to; *bytes.Buffer satisfies it.
type Writer interface {
	io.Writer
	io.ByteWriter
}

// sliceKey identifies a slice or map by its backing storage.
type sliceKey struct {
	kind reflect.Kind
	ptr  uintptr
	len  int
}

// dateKey identifies a date by its instant, so equal dates share a slot.
type dateKey int64

// encodeContext mirrors referenceContext on the writing side. Indices are
// assigned at exactly the points the decoder appends to its tables.
type encodeContext struct {
	stringTable map[string]int
	objectTable map[any]int
	objectCount int
	traitsTable map[string]int
}

// AMF3Encoder provides encoding of Go values to AMF3 format.
// Like the decoder it is a single session and not safe for concurrent use.
//
//goland:noinspection ALL
type AMF3Encoder struct {
	writer   Writer
	resolver amf.ClassResolver
	refs     encodeContext
}

// NewAMF3Encoder creates a new AMF3 encoder that writes to w and resolves
// native class names and properties through resolver.
func NewAMF3Encoder(w Writer, resolver amf.ClassResolver) *AMF3Encoder {
	e := &AMF3Encoder{writer: w, resolver: resolver}
	e.Reset()
	return e
}

// Reset clears the reference tables.
func (e *AMF3Encoder) Reset() {
	e.refs = encodeContext{
		stringTable: make(map[string]int),
		objectTable: make(map[any]int),
		traitsTable: make(map[string]int),
	}
}

// Encode encodes a Go value to AMF3 format
func (e *AMF3Encoder) Encode(value any) error {
	return e.encodeValue(value)
}

// WriteObject encodes a value; it lets ExternalWriter types continue writing
// through the same session.
func (e *AMF3Encoder) WriteObject(value any) error {
	return e.encodeValue(value)
}

// Write writes raw bytes.
func (e *AMF3Encoder) Write(p []byte) (int, error) {
	return e.writer.Write(p)
}

// WriteByte writes a single raw byte.
func (e *AMF3Encoder) WriteByte(b byte) error {
	return e.writer.WriteByte(b)
}

// encodeValue encodes any Go value to AMF3 format
func (e *AMF3Encoder) encodeValue(value any) error {
	switch v := value.(type) {
	case nil:
		return e.writer.WriteByte(AMF3TypeNull)
	case bool:
		if v {
			return e.writer.WriteByte(AMF3TypeTrue)
		}
		return e.writer.WriteByte(AMF3TypeFalse)
	case int:
		return e.encodeInteger(int64(v))
	case int8:
		return e.encodeInteger(int64(v))
	case int16:
		return e.encodeInteger(int64(v))
	case int32:
		return e.encodeInteger(int64(v))
	case int64:
		return e.encodeInteger(v)
	case uint:
		return e.encodeUnsigned(uint64(v))
	case uint8:
		return e.encodeInteger(int64(v))
	case uint16:
		return e.encodeInteger(int64(v))
	case uint32:
		return e.encodeUnsigned(uint64(v))
	case uint64:
		return e.encodeUnsigned(v)
	case float32:
		return e.encodeDouble(float64(v))
	case float64:
		return e.encodeDouble(v)
	case string:
		if err := e.writer.WriteByte(AMF3TypeString); err != nil {
			return err
		}
		return e.writeString(v)
	case time.Time:
		return e.encodeDate(v)
	case []byte:
		return e.encodeByteArray(v)
	case []any:
		return e.encodeArray(v)
	case *amf.Mapping:
		if v == nil {
			return e.writer.WriteByte(AMF3TypeNull)
		}
		return e.encodeMapping(v)
	case *amf.Object:
		if v == nil {
			return e.writer.WriteByte(AMF3TypeNull)
		}
		return e.encodeGenericObject(v)
	case *amf.Dictionary:
		if v == nil {
			return e.writer.WriteByte(AMF3TypeNull)
		}
		return e.encodeDictionary(v)
	case map[string]any:
		if v == nil {
			return e.writer.WriteByte(AMF3TypeNull)
		}
		return e.encodeMap(v)
	}
	return e.encodeReflect(value)
}

// encodeReflect handles native struct pointers and other slices.
func (e *AMF3Encoder) encodeReflect(value any) error {
	rv := reflect.ValueOf(value)
	switch rv.Kind() {
	case reflect.Ptr:
		if rv.IsNil() {
			return e.writer.WriteByte(AMF3TypeNull)
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
		return e.encodeArray(items)
	case reflect.Bool:
		return e.encodeValue(rv.Bool())
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return e.encodeInteger(rv.Int())
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return e.encodeUnsigned(rv.Uint())
	case reflect.Float32, reflect.Float64:
		return e.encodeDouble(rv.Float())
	case reflect.String:
		return e.encodeValue(rv.String())
	}
	return errors.Wrapf(amf.ErrUnsupportedValue, "amf3: cannot encode %T", value)
}

// encodeInteger writes a 29-bit signed integer, or a double when out of range
func (e *AMF3Encoder) encodeInteger(value int64) error {
	if value < amf.MinInteger || value > amf.MaxInteger {
		return e.encodeDouble(float64(value))
	}
	if err := e.writer.WriteByte(AMF3TypeInteger); err != nil {
		return err
	}
	return e.writeU29(uint32(value))
}

func (e *AMF3Encoder) encodeUnsigned(value uint64) error {
	if value > amf.MaxInteger {
		return e.encodeDouble(float64(value))
	}
	return e.encodeInteger(int64(value))
}

// encodeDouble encodes an IEEE-754 double precision floating point number
func (e *AMF3Encoder) encodeDouble(value float64) error {
	if err := e.writer.WriteByte(AMF3TypeDouble); err != nil {
		return err
	}
	return e.writeFloat(value)
}

func (e *AMF3Encoder) writeFloat(value float64) error {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], math.Float64bits(value))
	_, err := e.writer.Write(buf[:])
	return err
}

// writeU29 writes a 29-bit unsigned integer using variable-length encoding.
// The encoding uses 1-4 bytes where the MSB indicates continuation.
func (e *AMF3Encoder) writeU29(value uint32) error {
	// AMF3 integers are 29-bit, so mask off upper bits
	value &= 0x1FFFFFFF

	var buf []byte
	switch {
	case value < 0x80:
		// 1 byte: 0xxxxxxx
		buf = []byte{byte(value)}
	case value < 0x4000:
		// 2 bytes: 1xxxxxxx 0xxxxxxx
		buf = []byte{byte(value>>7 | 0x80), byte(value & 0x7F)}
	case value < 0x200000:
		// 3 bytes: 1xxxxxxx 1xxxxxxx 0xxxxxxx
		buf = []byte{byte(value>>14 | 0x80), byte(value>>7&0x7F | 0x80), byte(value & 0x7F)}
	default:
		// 4 bytes: 1xxxxxxx 1xxxxxxx 1xxxxxxx xxxxxxxx
		buf = []byte{byte(value>>22 | 0x80), byte(value>>15&0x7F | 0x80), byte(value>>8&0x7F | 0x80), byte(value)}
	}
	_, err := e.writer.Write(buf)
	return err
}

// writeInline writes a literal header carrying n.
func (e *AMF3Encoder) writeInline(n int) error {
	if n > amf.MaxInteger {
		return errors.Wrapf(amf.ErrUnsupportedValue, "amf3: length %d exceeds 29-bit range", n)
	}
	return e.writeU29(uint32(n)<<1 | 0x01)
}

// writeString writes a string with reference table support.
// Empty strings are never added to the reference table.
func (e *AMF3Encoder) writeString(s string) error {
	if s == "" {
		return e.writeU29(0x01)
	}
	if idx, ok := e.refs.stringTable[s]; ok {
		return e.writeU29(uint32(idx) << 1)
	}
	e.refs.stringTable[s] = len(e.refs.stringTable)

	if err := e.writeInline(len(s)); err != nil {
		return err
	}
	_, err := io.WriteString(e.writer, s)
	return err
}

// writeObjectRef writes a reference when key was already written and
// reports whether it did. Otherwise it allocates the next object slot.
// A nil key still allocates a slot but can never be referenced.
func (e *AMF3Encoder) writeObjectRef(key any) (bool, error) {
	if key != nil {
		if idx, ok := e.refs.objectTable[key]; ok {
			return true, e.writeU29(uint32(idx) << 1)
		}
		e.refs.objectTable[key] = e.refs.objectCount
	}
	e.refs.objectCount++
	return false, nil
}

func identity(v any) any {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice:
		if rv.Len() == 0 {
			return nil
		}
		return sliceKey{kind: rv.Type().Elem().Kind(), ptr: rv.Pointer(), len: rv.Len()}
	case reflect.Map:
		return sliceKey{kind: reflect.Map, ptr: rv.Pointer()}
	case reflect.Ptr:
		return v
	}
	return nil
}

// encodeDate encodes a date as milliseconds since the Unix epoch
func (e *AMF3Encoder) encodeDate(value time.Time) error {
	if err := e.writer.WriteByte(AMF3TypeDate); err != nil {
		return err
	}
	millis := value.UnixMilli()
	if done, err := e.writeObjectRef(dateKey(millis)); done || err != nil {
		return err
	}
	if err := e.writeU29(0x01); err != nil {
		return err
	}
	return e.writeFloat(float64(millis))
}

// encodeByteArray encodes a byte array
func (e *AMF3Encoder) encodeByteArray(value []byte) error {
	if err := e.writer.WriteByte(AMF3TypeByteArray); err != nil {
		return err
	}
	if done, err := e.writeObjectRef(identity(value)); done || err != nil {
		return err
	}
	if err := e.writeInline(len(value)); err != nil {
		return err
	}
	_, err := e.writer.Write(value)
	return err
}

// encodeArray encodes a dense array
func (e *AMF3Encoder) encodeArray(dense []any) error {
	if err := e.writer.WriteByte(AMF3TypeArray); err != nil {
		return err
	}
	if done, err := e.writeObjectRef(identity(dense)); done || err != nil {
		return err
	}
	if err := e.writeInline(len(dense)); err != nil {
		return err
	}
	// Write empty string to terminate the (absent) associative part
	if err := e.writeString(""); err != nil {
		return err
	}
	for _, item := range dense {
		if err := e.encodeValue(item); err != nil {
			return err
		}
	}
	return nil
}

// encodeMapping encodes an array with associative and dense parts
func (e *AMF3Encoder) encodeMapping(value *amf.Mapping) error {
	if err := e.writer.WriteByte(AMF3TypeArray); err != nil {
		return err
	}
	if done, err := e.writeObjectRef(value); done || err != nil {
		return err
	}
	if err := e.writeInline(len(value.Dense)); err != nil {
		return err
	}
	if value.Assoc != nil {
		for key, item := range value.Assoc.AllFromFront() {
			if key == "" {
				return errors.Wrap(amf.ErrUnsupportedValue, "amf3: empty associative key")
			}
			if err := e.writeString(key); err != nil {
				return err
			}
			if err := e.encodeValue(item); err != nil {
				return err
			}
		}
	}
	if err := e.writeString(""); err != nil {
		return err
	}
	for _, item := range value.Dense {
		if err := e.encodeValue(item); err != nil {
			return err
		}
	}
	return nil
}

// encodeDictionary encodes a dictionary with arbitrary keys
func (e *AMF3Encoder) encodeDictionary(value *amf.Dictionary) error {
	if err := e.writer.WriteByte(AMF3TypeDictionary); err != nil {
		return err
	}
	if done, err := e.writeObjectRef(value); done || err != nil {
		return err
	}
	if err := e.writeInline(len(value.Entries)); err != nil {
		return err
	}
	var weak uint32
	if value.WeakKeys {
		weak = 0x01
	}
	if err := e.writeU29(weak); err != nil {
		return err
	}
	for _, entry := range value.Entries {
		if err := e.encodeValue(entry.Key); err != nil {
			return err
		}
		if err := e.encodeValue(entry.Value); err != nil {
			return err
		}
	}
	return nil
}

// writeTrait writes a trait reference when an identical trait was written
// before, otherwise the literal trait.
func (e *AMF3Encoder) writeTrait(trait *amf.Trait) error {
	key := traitKey(trait)
	if idx, ok := e.refs.traitsTable[key]; ok {
		// object inline, trait reference
		return e.writeU29(uint32(idx)<<2 | 0x01)
	}
	e.refs.traitsTable[key] = len(e.refs.traitsTable)

	if len(trait.Members) > amf.MaxInteger>>3 {
		return errors.Wrapf(amf.ErrUnsupportedValue, "amf3: %d sealed members", len(trait.Members))
	}
	header := uint32(len(trait.Members))<<4 | 0x03
	if trait.Externalizable {
		header |= traitExternalizable << 1
	}
	if trait.Dynamic {
		header |= traitDynamic << 1
	}
	if err := e.writeU29(header); err != nil {
		return err
	}
	if err := e.writeString(trait.ClassName); err != nil {
		return err
	}
	for _, member := range trait.Members {
		if err := e.writeString(member); err != nil {
			return err
		}
	}
	return nil
}

func traitKey(t *amf.Trait) string {
	var b strings.Builder
	b.WriteString(t.ClassName)
	b.WriteByte(0)
	if t.Externalizable {
		b.WriteByte('e')
	}
	if t.Dynamic {
		b.WriteByte('d')
	}
	for _, m := range t.Members {
		b.WriteByte(0)
		b.WriteString(m)
	}
	return b.String()
}

// encodeGenericObject writes an *amf.Object as a dynamic object whose
// members are all dynamic.
func (e *AMF3Encoder) encodeGenericObject(value *amf.Object) error {
	if err := e.writer.WriteByte(AMF3TypeObject); err != nil {
		return err
	}
	if done, err := e.writeObjectRef(value); done || err != nil {
		return err
	}
	if err := e.writeTrait(&amf.Trait{ClassName: value.ClassName, Dynamic: true}); err != nil {
		return err
	}
	if value.Members != nil {
		for key, item := range value.Members.AllFromFront() {
			if key == "" {
				return errors.Wrap(amf.ErrUnsupportedValue, "amf3: empty dynamic member name")
			}
			if err := e.writeString(key); err != nil {
				return err
			}
			if err := e.encodeValue(item); err != nil {
				return err
			}
		}
	}
	return e.writeString("")
}

// encodeMap writes a plain Go map as an anonymous dynamic object with
// sorted member names.
func (e *AMF3Encoder) encodeMap(value map[string]any) error {
	if err := e.writer.WriteByte(AMF3TypeObject); err != nil {
		return err
	}
	if done, err := e.writeObjectRef(identity(value)); done || err != nil {
		return err
	}
	if err := e.writeTrait(&amf.Trait{Dynamic: true}); err != nil {
		return err
	}
	keys := make([]string, 0, len(value))
	for key := range value {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		if key == "" {
			return errors.Wrap(amf.ErrUnsupportedValue, "amf3: empty dynamic member name")
		}
		if err := e.writeString(key); err != nil {
			return err
		}
		if err := e.encodeValue(value[key]); err != nil {
			return err
		}
	}
	return e.writeString("")
}

// encodeNative writes a native struct pointer as a sealed typed object, or
// as an externalizable object when it implements amf.ExternalWriter.
func (e *AMF3Encoder) encodeNative(value any) error {
	if e.resolver == nil {
		return errors.Wrapf(amf.ErrUnsupportedValue, "amf3: no class resolver for %T", value)
	}
	if err := e.writer.WriteByte(AMF3TypeObject); err != nil {
		return err
	}
	if done, err := e.writeObjectRef(value); done || err != nil {
		return err
	}

	className, _ := e.resolver.ClassName(value)
	if ext, ok := value.(amf.ExternalWriter); ok {
		if className == "" {
			return errors.Wrapf(amf.ErrNotExternalizable, "amf3: %T has no class mapping", value)
		}
		if err := e.writeTrait(&amf.Trait{ClassName: className, Externalizable: true}); err != nil {
			return err
		}
		return ext.WriteExternal(e)
	}

	props, err := e.resolver.Properties(value)
	if err != nil {
		return err
	}
	trait := &amf.Trait{ClassName: className, Members: make([]string, 0, props.Len())}
	for key := range props.Keys() {
		trait.Members = append(trait.Members, key)
	}
	if err := e.writeTrait(trait); err != nil {
		return err
	}
	for _, item := range props.AllFromFront() {
		if err := e.encodeValue(item); err != nil {
			return err
		}
	}
	return nil
}

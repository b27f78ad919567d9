package classmap

import (
	"reflect"
	"sort"
	"strings"
	"sync"

	"github.com/mitchellh/mapstructure"
	"github.com/pkg/errors"

	"github.com/DMA-Software/dma-goamf/pkg/amf"
)

// TagName is the struct tag read when matching properties to fields.
const TagName = "amf"

// Mapper resolves class names and moves properties in and out of native
// values for one or more sessions. It implements amf.ClassMapper and
// amf.ClassResolver.
//
// Leftover properties of populated values are held until Release is
// called for the value, so a long-lived Mapper shared by many sessions
// grows unless its callers release what they decode. A Mapper per
// connection bounds the table to that connection's lifetime.
type Mapper struct {
	byWire   map[string]reflect.Type
	byNative map[reflect.Type]string
	catalog  map[string]reflect.Type

	mu      sync.Mutex
	dynamic map[any]*amf.Properties
}

// NewMapper snapshots r. Later changes to r are not seen by the mapper.
func NewMapper(r *Registry) *Mapper {
	m := &Mapper{dynamic: make(map[any]*amf.Properties)}
	m.byWire, m.byNative, m.catalog = r.snapshot()
	return m
}

// ClassName returns the wire name for v. v may be a native value or
// pointer, a reflect.Type, a catalog name or an *amf.Object.
func (m *Mapper) ClassName(v any) (string, bool) {
	var t reflect.Type
	switch v := v.(type) {
	case nil:
		return "", false
	case *amf.Object:
		if v == nil {
			return "", false
		}
		return v.ClassName, v.ClassName != ""
	case reflect.Type:
		t = v
	case string:
		var ok bool
		if t, ok = m.catalog[v]; !ok {
			return "", false
		}
	default:
		t = reflect.TypeOf(v)
	}
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	name, ok := m.byNative[t]
	return name, ok
}

// Instantiate returns a pointer to a new value of the type mapped to
// className, or a generic *amf.Object carrying the name.
func (m *Mapper) Instantiate(className string) any {
	if className != "" {
		if t, ok := m.byWire[className]; ok {
			return reflect.New(t).Interface()
		}
	}
	return amf.NewObject(className)
}

// Populate assigns decoded properties onto obj. Properties with no matching
// field are handed to amf.DynamicPropertySetter when obj implements it and
// are otherwise kept for DynamicProperties.
func (m *Mapper) Populate(obj any, fixed, dynamic *amf.Properties) error {
	switch o := obj.(type) {
	case *amf.Object:
		for _, props := range []*amf.Properties{fixed, dynamic} {
			if props == nil {
				continue
			}
			for key, value := range props.AllFromFront() {
				o.Set(key, value)
			}
		}
		return nil
	case map[string]any:
		for _, props := range []*amf.Properties{fixed, dynamic} {
			if props == nil {
				continue
			}
			for key, value := range props.AllFromFront() {
				o[key] = value
			}
		}
		return nil
	}

	rv := reflect.ValueOf(obj)
	if rv.Kind() != reflect.Ptr || rv.IsNil() || rv.Elem().Kind() != reflect.Struct {
		return errors.Wrapf(amf.ErrInvalidArgument, "classmap: cannot populate %T", obj)
	}
	target := rv.Elem()
	info := fieldsOf(target.Type())

	leftover := amf.NewProperties()
	convert := make(map[string]any)
	for _, props := range []*amf.Properties{fixed, dynamic} {
		if props == nil {
			continue
		}
		for key, value := range props.AllFromFront() {
			f, ok := info.lookup(key)
			if !ok {
				leftover.Set(key, value)
				continue
			}
			if fv, ok := directField(target, f, value); ok {
				fv.Set(reflect.ValueOf(value))
				continue
			}
			convert[f.name] = value
		}
	}

	if info.remain != nil {
		for key, value := range leftover.AllFromFront() {
			convert[key] = value
		}
		leftover = amf.NewProperties()
	}

	if len(convert) > 0 {
		if err := decode(convert, obj); err != nil {
			return err
		}
	}
	if leftover.Len() == 0 {
		return nil
	}
	if setter, ok := obj.(amf.DynamicPropertySetter); ok {
		setter.SetDynamicProperties(leftover)
		return nil
	}
	m.mu.Lock()
	m.dynamic[obj] = leftover
	m.mu.Unlock()
	return nil
}

// directField returns the field for f when value can be stored in it as is.
// Storing directly keeps pointer identity, which cyclic graphs rely on.
func directField(target reflect.Value, f *field, value any) (reflect.Value, bool) {
	if value == nil {
		return reflect.Value{}, false
	}
	fv, err := target.FieldByIndexErr(f.index)
	if err != nil || !fv.CanSet() {
		return reflect.Value{}, false
	}
	if !reflect.TypeOf(value).AssignableTo(fv.Type()) {
		return reflect.Value{}, false
	}
	return fv, true
}

// decode runs mapstructure for values that need conversion.
func decode(input map[string]any, obj any) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          TagName,
		Result:           obj,
		WeaklyTypedInput: true,
		Squash:           true,
		DecodeHook:       unwrapHook,
	})
	if err != nil {
		return errors.Wrap(err, "classmap: build decoder")
	}
	if err := decoder.Decode(input); err != nil {
		return errors.Wrapf(err, "classmap: populate %T", obj)
	}
	return nil
}

// unwrapHook turns decoded containers into plain maps and slices when the
// destination is a struct, map or slice.
func unwrapHook(_ reflect.Type, to reflect.Type, data any) (any, error) {
	switch to.Kind() {
	case reflect.Struct, reflect.Map:
		switch v := data.(type) {
		case *amf.Object:
			return propertiesMap(v.Members), nil
		case *amf.Mapping:
			return propertiesMap(v.Assoc), nil
		}
	case reflect.Slice:
		if v, ok := data.(*amf.Mapping); ok {
			return v.Dense, nil
		}
	}
	return data, nil
}

func propertiesMap(props *amf.Properties) map[string]any {
	out := make(map[string]any, props.Len())
	for key, value := range props.AllFromFront() {
		out[key] = value
	}
	return out
}

// DynamicProperties returns the properties recorded for obj that matched no
// field, or nil.
func (m *Mapper) DynamicProperties(obj any) *amf.Properties {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.dynamic[obj]
}

// Release drops the properties recorded for each of objs.
func (m *Mapper) Release(objs ...any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, obj := range objs {
		delete(m.dynamic, obj)
	}
}

// Properties lists the properties of v in a stable order: wire order for
// decoded containers, field order for structs and sorted keys for maps.
func (m *Mapper) Properties(v any) (*amf.Properties, error) {
	switch v := v.(type) {
	case *amf.Object:
		if v.Members == nil {
			return amf.NewProperties(), nil
		}
		return v.Members, nil
	case *amf.Mapping:
		return v.Assoc, nil
	case map[string]any:
		return sortedProperties(v), nil
	}

	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Ptr {
		if rv.IsNil() {
			return nil, errors.Wrap(amf.ErrInvalidArgument, "classmap: properties of nil pointer")
		}
		rv = rv.Elem()
	}
	if rv.Kind() != reflect.Struct {
		return nil, errors.Wrapf(amf.ErrInvalidArgument, "classmap: %T has no properties", v)
	}

	props := amf.NewProperties()
	info := fieldsOf(rv.Type())
	for _, f := range info.fields {
		fv, err := rv.FieldByIndexErr(f.index)
		if err != nil {
			// nil embedded pointer
			continue
		}
		props.Set(f.name, fv.Interface())
	}
	if info.remain != nil {
		if fv, err := rv.FieldByIndexErr(info.remain.index); err == nil && fv.Kind() == reflect.Map {
			iter := fv.MapRange()
			extra := make(map[string]any, fv.Len())
			for iter.Next() {
				extra[iter.Key().String()] = iter.Value().Interface()
			}
			for key, value := range sortedProperties(extra).AllFromFront() {
				if !props.Has(key) {
					props.Set(key, value)
				}
			}
		}
	}
	return props, nil
}

func sortedProperties(in map[string]any) *amf.Properties {
	keys := make([]string, 0, len(in))
	for key := range in {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	props := amf.NewProperties()
	for _, key := range keys {
		props.Set(key, in[key])
	}
	return props
}

type field struct {
	name  string
	index []int
}

type structInfo struct {
	fields []*field
	byName map[string]*field
	remain *field
}

// lookup matches name exactly first, then case-insensitively the way
// mapstructure does.
func (s *structInfo) lookup(name string) (*field, bool) {
	if f, ok := s.byName[name]; ok {
		return f, true
	}
	for _, f := range s.fields {
		if strings.EqualFold(f.name, name) {
			return f, true
		}
	}
	return nil, false
}

var structCache sync.Map // reflect.Type -> *structInfo

// fieldsOf lists the exported fields of t with squashed and anonymous
// embedded structs flattened into their parent, in declaration order.
func fieldsOf(t reflect.Type) *structInfo {
	if cached, ok := structCache.Load(t); ok {
		return cached.(*structInfo)
	}
	info := &structInfo{byName: make(map[string]*field)}
	collectFields(t, nil, info)
	structCache.Store(t, info)
	return info
}

func collectFields(t reflect.Type, parent []int, info *structInfo) {
	for i := 0; i < t.NumField(); i++ {
		sf := t.Field(i)
		index := append(append([]int(nil), parent...), i)

		tag := sf.Tag.Get(TagName)
		if tag == "-" {
			continue
		}
		parts := strings.Split(tag, ",")
		name, opts := parts[0], parts[1:]

		ft := sf.Type
		if ft.Kind() == reflect.Ptr {
			ft = ft.Elem()
		}
		if ft.Kind() == reflect.Struct && (sf.Anonymous || hasOption(opts, "squash")) && name == "" {
			collectFields(ft, index, info)
			continue
		}
		if !sf.IsExported() {
			continue
		}
		if hasOption(opts, "remain") {
			info.remain = &field{name: sf.Name, index: index}
			continue
		}
		if name == "" {
			name = sf.Name
		}
		if _, dup := info.byName[name]; dup {
			continue
		}
		f := &field{name: name, index: index}
		info.fields = append(info.fields, f)
		info.byName[name] = f
	}
}

func hasOption(opts []string, opt string) bool {
	for _, o := range opts {
		if o == opt {
			return true
		}
	}
	return false
}

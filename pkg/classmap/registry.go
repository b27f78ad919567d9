// Package classmap associates AMF wire class names with native Go types.
//
// A Registry holds the configured associations. Decoding and encoding never
// read a Registry directly: they go through a Mapper, which is a snapshot of
// the registry taken when the session starts.
package classmap

import (
	"bytes"
	"os"
	"reflect"
	"sync"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/DMA-Software/dma-goamf/pkg/amf"
	"github.com/DMA-Software/dma-goamf/pkg/messaging"
)

// Registry is the set of wire name / native type associations.
// It is safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	byWire   map[string]reflect.Type
	byNative map[reflect.Type]string
	catalog  map[string]reflect.Type
}

// NewRegistry returns a registry holding only the built-in mappings.
func NewRegistry() *Registry {
	r := &Registry{}
	r.Reset()
	return r
}

// Reset drops every registration and restores the built-in mappings.
func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.byWire = make(map[string]reflect.Type)
	r.byNative = make(map[reflect.Type]string)
	r.catalog = make(map[string]reflect.Type)
	for _, d := range defaults {
		t := reflect.TypeOf(d.native).Elem()
		r.catalog[t.String()] = t
		r.mapType(d.wire, t)
	}
}

var defaults = []struct {
	wire   string
	native any
}{
	{"flex.messaging.messages.AbstractMessage", (*messaging.AbstractMessage)(nil)},
	{"flex.messaging.messages.AsyncMessage", (*messaging.AsyncMessage)(nil)},
	{"flex.messaging.messages.RemotingMessage", (*messaging.RemotingMessage)(nil)},
	{"flex.messaging.messages.CommandMessage", (*messaging.CommandMessage)(nil)},
	{"flex.messaging.messages.AcknowledgeMessage", (*messaging.AcknowledgeMessage)(nil)},
	{"flex.messaging.messages.ErrorMessage", (*messaging.ErrorMessage)(nil)},
	{"DSA", (*messaging.AsyncMessageExt)(nil)},
	{"DSC", (*messaging.CommandMessageExt)(nil)},
	{"DSK", (*messaging.AcknowledgeMessageExt)(nil)},
}

// Map associates wireName with the type of native, which may be a value, a
// pointer or a reflect.Type of a struct. A later Map call for the same
// wire name or the same type replaces the earlier one in that direction.
func (r *Registry) Map(wireName string, native any) error {
	if wireName == "" {
		return errors.Wrap(amf.ErrInvalidArgument, "classmap: empty wire name")
	}
	t, err := structType(native)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.mapType(wireName, t)
	return nil
}

func (r *Registry) mapType(wireName string, t reflect.Type) {
	r.byWire[wireName] = t
	r.byNative[t] = wireName
}

// Define adds native to the catalog under name so mapping files can refer
// to it.
func (r *Registry) Define(name string, native any) error {
	if name == "" {
		return errors.Wrap(amf.ErrInvalidArgument, "classmap: empty type name")
	}
	t, err := structType(native)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.catalog[name] = t
	return nil
}

// MapName associates wireName with the catalog type registered as name.
func (r *Registry) MapName(wireName, name string) error {
	if wireName == "" {
		return errors.Wrap(amf.ErrInvalidArgument, "classmap: empty wire name")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.catalog[name]
	if !ok {
		return errors.Wrapf(amf.ErrInvalidArgument, "classmap: unknown type %q", name)
	}
	r.mapType(wireName, t)
	return nil
}

// structType normalizes native to the struct type it names.
func structType(native any) (reflect.Type, error) {
	t, ok := native.(reflect.Type)
	if !ok {
		t = reflect.TypeOf(native)
	}
	for t != nil && t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if t == nil || t.Kind() != reflect.Struct {
		return nil, errors.Wrapf(amf.ErrInvalidArgument, "classmap: %v is not a struct type", t)
	}
	return t, nil
}

// File is the YAML layout of a mapping file:
//
//	mappings:
//	  - wire: flex.messaging.messages.AcknowledgeMessage
//	    native: messaging.AcknowledgeMessage
type File struct {
	Mappings []Entry `yaml:"mappings"`
}

// Entry is one wire name / catalog name pair.
type Entry struct {
	Wire   string `yaml:"wire"`   // wire class name
	Native string `yaml:"native"` // catalog name, see Define
}

// Validate checks that every entry names both sides.
func (f *File) Validate() error {
	for i, e := range f.Mappings {
		if e.Wire == "" {
			return errors.Errorf("mappings[%d]: wire must not be empty", i)
		}
		if e.Native == "" {
			return errors.Errorf("mappings[%d]: native must not be empty", i)
		}
	}
	return nil
}

// Load reads a YAML mapping file and applies it.
func (r *Registry) Load(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrap(err, "read mapping file")
	}
	return r.LoadYAML(data)
}

// LoadYAML applies a YAML mapping document. Unknown fields are rejected. The
// document is validated in full before any entry is applied.
func (r *Registry) LoadYAML(data []byte) error {
	var f File
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true) // Reject unknown fields

	if err := decoder.Decode(&f); err != nil {
		return errors.Wrap(err, "decode mapping file")
	}
	if err := f.Validate(); err != nil {
		return errors.WithMessage(err, "mapping file")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range f.Mappings {
		if _, ok := r.catalog[e.Native]; !ok {
			return errors.Wrapf(amf.ErrInvalidArgument, "classmap: unknown type %q for %q", e.Native, e.Wire)
		}
	}
	for _, e := range f.Mappings {
		r.mapType(e.Wire, r.catalog[e.Native])
	}
	return nil
}

// snapshot copies the current associations.
func (r *Registry) snapshot() (byWire map[string]reflect.Type, byNative map[reflect.Type]string, catalog map[string]reflect.Type) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	byWire = make(map[string]reflect.Type, len(r.byWire))
	for k, v := range r.byWire {
		byWire[k] = v
	}
	byNative = make(map[reflect.Type]string, len(r.byNative))
	for k, v := range r.byNative {
		byNative[k] = v
	}
	catalog = make(map[string]reflect.Type, len(r.catalog))
	for k, v := range r.catalog {
		catalog[k] = v
	}
	return byWire, byNative, catalog
}

// Package codec is the entry point for reading and writing AMF data. It
// selects the AMF0 or AMF3 engine and owns the per-call reference caches.
package codec

import (
	"github.com/pkg/errors"

	"github.com/DMA-Software/dma-goamf/internal/amf0"
	"github.com/DMA-Software/dma-goamf/internal/amf3"
	"github.com/DMA-Software/dma-goamf/pkg/amf"
)

// Version selects the wire format.
type Version int

const (
	AMF0 Version = 0
	AMF3 Version = 3
)

func (v Version) valid() bool {
	return v == AMF0 || v == AMF3
}

// ParseVersion accepts 0 or 3.
func ParseVersion(n int) (Version, error) {
	v := Version(n)
	if !v.valid() {
		return 0, errors.Wrapf(amf.ErrInvalidArgument, "unsupported version %d", n)
	}
	return v, nil
}

type session interface {
	ReadObject() (any, error)
	Reset()
}

// Deserializer decodes AMF values. Every Deserialize call starts a new
// session with empty reference caches; ReadObject continues the last one.
// Deserialize with nil data keeps reading the current cursor from where the
// last value ended. A Deserializer is not safe for concurrent use.
type Deserializer struct {
	mapper  amf.ClassMapper
	version Version
	cursor  *amf.Cursor
	session session
}

// NewDeserializer creates a deserializer that builds typed objects through
// mapper.
func NewDeserializer(mapper amf.ClassMapper) *Deserializer {
	return &Deserializer{mapper: mapper}
}

// Deserialize decodes the first value in data. When data is nil the value
// is read from the current cursor, still with empty caches.
func (d *Deserializer) Deserialize(version Version, data []byte) (any, error) {
	if !version.valid() {
		return nil, errors.Wrapf(amf.ErrInvalidArgument, "unsupported version %d", version)
	}
	if data != nil {
		return d.DeserializeFrom(version, amf.NewCursor(data))
	}
	if d.session == nil {
		return nil, errors.Wrap(amf.ErrInvalidArgument, "no source to deserialize")
	}
	if version != d.version {
		return d.DeserializeFrom(version, d.cursor)
	}
	d.session.Reset()
	return d.session.ReadObject()
}

// DeserializeFrom decodes the value at the cursor position. The cursor is
// left just past the value.
func (d *Deserializer) DeserializeFrom(version Version, c *amf.Cursor) (any, error) {
	if !version.valid() {
		return nil, errors.Wrapf(amf.ErrInvalidArgument, "unsupported version %d", version)
	}
	if c == nil {
		return nil, errors.Wrap(amf.ErrInvalidArgument, "no source to deserialize")
	}

	d.version = version
	d.cursor = c
	if version == AMF0 {
		d.session = amf0.NewAMF0Decoder(c, d.mapper)
	} else {
		d.session = amf3.NewAMF3Decoder(c, d.mapper)
	}
	return d.session.ReadObject()
}

// ReadObject decodes the next value of the current session, sharing its
// version, cursor and caches.
func (d *Deserializer) ReadObject() (any, error) {
	if d.session == nil {
		return nil, errors.Wrap(amf.ErrInvalidArgument, "no source to deserialize")
	}
	return d.session.ReadObject()
}

// Version returns the format of the current session.
func (d *Deserializer) Version() Version {
	return d.version
}

// Cursor returns the cursor of the current session, or nil.
func (d *Deserializer) Cursor() *amf.Cursor {
	return d.cursor
}

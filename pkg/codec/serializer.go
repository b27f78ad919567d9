package codec

import (
	"bytes"

	"github.com/pkg/errors"

	"github.com/DMA-Software/dma-goamf/internal/amf0"
	"github.com/DMA-Software/dma-goamf/internal/amf3"
	"github.com/DMA-Software/dma-goamf/pkg/amf"
)

// Serializer encodes Go values to AMF. Each call is its own session with
// empty reference caches. It is safe for concurrent use when the resolver
// is.
type Serializer struct {
	resolver amf.ClassResolver
}

// NewSerializer creates a serializer that names and lists native values
// through resolver.
func NewSerializer(resolver amf.ClassResolver) *Serializer {
	return &Serializer{resolver: resolver}
}

// Serialize encodes v.
func (s *Serializer) Serialize(version Version, v any) ([]byte, error) {
	return s.SerializeAll(version, v)
}

// SerializeAll encodes values back to back in a single session, so later
// values may reference earlier ones.
func (s *Serializer) SerializeAll(version Version, values ...any) ([]byte, error) {
	if !version.valid() {
		return nil, errors.Wrapf(amf.ErrInvalidArgument, "unsupported version %d", version)
	}

	var buf bytes.Buffer
	var encode func(any) error
	if version == AMF0 {
		encode = amf0.NewAMF0Encoder(&buf, s.resolver).Encode
	} else {
		encode = amf3.NewAMF3Encoder(&buf, s.resolver).Encode
	}
	for i, v := range values {
		if err := encode(v); err != nil {
			return nil, errors.WithMessagef(err, "value %d", i)
		}
	}
	return buf.Bytes(), nil
}

// SerializeAVMPlus encodes v as AMF3 behind the AMF0 switch marker, the
// form AMF0 streams use to embed an AMF3 value.
func (s *Serializer) SerializeAVMPlus(v any) ([]byte, error) {
	buf := bytes.NewBuffer([]byte{amf0.AMF0TypeAVMPlus})
	if err := amf3.NewAMF3Encoder(buf, s.resolver).Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

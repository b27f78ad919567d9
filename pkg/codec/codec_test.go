package codec

import (
	"testing"

	"github.com/pkg/errors"

	"github.com/DMA-Software/dma-goamf/pkg/amf"
	"github.com/DMA-Software/dma-goamf/pkg/classmap"
)

type ClassMappingTest struct {
	PropA string `amf:"prop_a"`
	PropB any    `amf:"prop_b"`
}

func newMapper(t *testing.T) *classmap.Mapper {
	t.Helper()
	r := classmap.NewRegistry()
	if err := r.Map("ASClass", &ClassMappingTest{}); err != nil {
		t.Fatal(err)
	}
	return classmap.NewMapper(r)
}

func TestParseVersion(t *testing.T) {
	for _, n := range []int{0, 3} {
		if v, err := ParseVersion(n); err != nil || int(v) != n {
			t.Errorf("ParseVersion(%d) = %v, %v", n, v, err)
		}
	}
	for _, n := range []int{-1, 1, 2, 4} {
		if _, err := ParseVersion(n); !errors.Is(err, amf.ErrInvalidArgument) {
			t.Errorf("ParseVersion(%d): expected ErrInvalidArgument, got %v", n, err)
		}
	}
}

func TestInvalidArguments(t *testing.T) {
	d := NewDeserializer(newMapper(t))
	if _, err := d.Deserialize(Version(1), []byte{0x01}); !errors.Is(err, amf.ErrInvalidArgument) {
		t.Errorf("Deserialize: expected ErrInvalidArgument, got %v", err)
	}
	if _, err := d.DeserializeFrom(AMF3, nil); !errors.Is(err, amf.ErrInvalidArgument) {
		t.Errorf("DeserializeFrom: expected ErrInvalidArgument, got %v", err)
	}
	if _, err := d.ReadObject(); !errors.Is(err, amf.ErrInvalidArgument) {
		t.Errorf("ReadObject: expected ErrInvalidArgument, got %v", err)
	}
	if _, err := d.Deserialize(AMF3, nil); !errors.Is(err, amf.ErrInvalidArgument) {
		t.Errorf("Deserialize without a cursor: expected ErrInvalidArgument, got %v", err)
	}
	if _, err := NewSerializer(nil).Serialize(Version(2), nil); !errors.Is(err, amf.ErrInvalidArgument) {
		t.Errorf("Serialize: expected ErrInvalidArgument, got %v", err)
	}
}

func TestReadObjectSharesSession(t *testing.T) {
	d := NewDeserializer(newMapper(t))
	first, err := d.Deserialize(AMF3, []byte{
		0x06, 0x07, 'f', 'o', 'o',
		0x06, 0x00, // reference to the string above
		0x04, 0x05,
	})
	if err != nil || first != "foo" {
		t.Fatalf("Deserialize = %v, %v", first, err)
	}
	if d.Version() != AMF3 {
		t.Errorf("Version = %d", d.Version())
	}

	second, err := d.ReadObject()
	if err != nil || second != "foo" {
		t.Fatalf("ReadObject = %v, %v", second, err)
	}
	third, err := d.ReadObject()
	if err != nil || third != int32(5) {
		t.Fatalf("ReadObject = %v, %v", third, err)
	}
	if _, err := d.ReadObject(); !errors.Is(err, amf.ErrEndOfInput) {
		t.Errorf("expected ErrEndOfInput, got %v", err)
	}
}

func TestDeserializeStartsFreshSession(t *testing.T) {
	d := NewDeserializer(newMapper(t))
	if _, err := d.Deserialize(AMF3, []byte{0x06, 0x07, 'f', 'o', 'o'}); err != nil {
		t.Fatal(err)
	}
	if _, err := d.Deserialize(AMF3, []byte{0x06, 0x00}); !errors.Is(err, amf.ErrUnresolvedReference) {
		t.Errorf("expected ErrUnresolvedReference, got %v", err)
	}
}

func TestDeserializeNilContinuesCursor(t *testing.T) {
	d := NewDeserializer(newMapper(t))
	first, err := d.Deserialize(AMF3, []byte{
		0x06, 0x07, 'f', 'o', 'o',
		0x06, 0x07, 'b', 'a', 'r',
		0x06, 0x00, // string reference 0
	})
	if err != nil || first != "foo" {
		t.Fatalf("Deserialize = %v, %v", first, err)
	}
	c := d.Cursor()

	second, err := d.Deserialize(AMF3, nil)
	if err != nil || second != "bar" {
		t.Fatalf("Deserialize(nil) = %v, %v", second, err)
	}
	if d.Cursor() != c {
		t.Error("Deserialize(nil) replaced the cursor")
	}
	// the caches were emptied, so reference 0 no longer resolves
	if _, err := d.Deserialize(AMF3, nil); !errors.Is(err, amf.ErrUnresolvedReference) {
		t.Errorf("expected ErrUnresolvedReference, got %v", err)
	}
}

func TestDeserializeNilSwitchesVersion(t *testing.T) {
	d := NewDeserializer(newMapper(t))
	v, err := d.Deserialize(AMF0, []byte{
		0x02, 0x00, 0x01, 'a',
		0x06, 0x07, 'f', 'o', 'o',
	})
	if err != nil || v != "a" {
		t.Fatalf("Deserialize = %v, %v", v, err)
	}

	v, err = d.Deserialize(AMF3, nil)
	if err != nil || v != "foo" {
		t.Fatalf("Deserialize(nil) = %v, %v", v, err)
	}
	if d.Version() != AMF3 {
		t.Errorf("Version = %d", d.Version())
	}
	if d.Cursor().Len() != 0 {
		t.Errorf("%d bytes left unread", d.Cursor().Len())
	}
}

func TestDeserializeFromAdvancesCursor(t *testing.T) {
	c := amf.NewCursor([]byte{0x02, 0x00, 0x01, 'a', 0x01, 0x01})
	d := NewDeserializer(newMapper(t))

	v, err := d.DeserializeFrom(AMF0, c)
	if err != nil || v != "a" {
		t.Fatalf("DeserializeFrom = %v, %v", v, err)
	}
	if c.Pos() != 4 {
		t.Errorf("Pos = %d, want 4", c.Pos())
	}
	if d.Cursor() != c {
		t.Error("Cursor does not return the session cursor")
	}
	v, err = d.ReadObject()
	if err != nil || v != true {
		t.Fatalf("ReadObject = %v, %v", v, err)
	}
}

func TestSerializeRoundTrip(t *testing.T) {
	mapper := newMapper(t)
	shared := amf.NewObject("")
	shared.Set("n", "v")
	in := []any{
		&ClassMappingTest{PropA: "Data", PropB: "more"},
		shared,
		shared,
		"text",
	}

	for _, version := range []Version{AMF0, AMF3} {
		data, err := NewSerializer(mapper).Serialize(version, in)
		if err != nil {
			t.Fatalf("Serialize(%d) failed: %v", version, err)
		}
		v, err := NewDeserializer(mapper).Deserialize(version, data)
		if err != nil {
			t.Fatalf("Deserialize(%d) failed: %v", version, err)
		}

		items := v.([]any)
		native, ok := items[0].(*ClassMappingTest)
		if !ok || native.PropA != "Data" || native.PropB != "more" {
			t.Errorf("version %d: native decoded as %#v", version, items[0])
		}
		if items[1] != items[2] {
			t.Errorf("version %d: shared object decoded twice", version)
		}
		if items[3] != "text" {
			t.Errorf("version %d: text = %v", version, items[3])
		}
	}
}

func TestSerializeAll(t *testing.T) {
	data, err := NewSerializer(nil).SerializeAll(AMF3, "same", "same")
	if err != nil {
		t.Fatal(err)
	}
	want := []byte{0x06, 0x09, 's', 'a', 'm', 'e', 0x06, 0x00}
	if string(data) != string(want) {
		t.Errorf("encoded % X, want % X", data, want)
	}
}

func TestSerializeAVMPlus(t *testing.T) {
	mapper := newMapper(t)
	data, err := NewSerializer(mapper).SerializeAVMPlus(int32(7))
	if err != nil {
		t.Fatal(err)
	}
	if data[0] != 0x11 {
		t.Fatalf("marker = %#x, want 0x11", data[0])
	}
	v, err := NewDeserializer(mapper).Deserialize(AMF0, data)
	if err != nil || v != int32(7) {
		t.Errorf("Deserialize = %v, %v", v, err)
	}
}

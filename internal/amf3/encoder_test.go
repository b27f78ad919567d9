package amf3

import (
	"bytes"
	"math"
	"testing"
	"time"

	"github.com/pkg/errors"

	"github.com/DMA-Software/dma-goamf/pkg/amf"
)

func encode(t *testing.T, v any) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := NewAMF3Encoder(&buf, newTestMapper(t)).Encode(v); err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	return buf.Bytes()
}

func roundTrip(t *testing.T, v any) any {
	t.Helper()
	return decodeOne(t, encode(t, v))
}

func TestEncodeBytes(t *testing.T) {
	tests := []struct {
		name  string
		input any
		want  []byte
	}{
		{"null", nil, []byte{0x01}},
		{"false", false, []byte{0x02}},
		{"true", true, []byte{0x03}},
		{"small integer", 1, []byte{0x04, 0x01}},
		{"two byte integer", int32(128), []byte{0x04, 0x81, 0x00}},
		{"negative integer", -1, []byte{0x04, 0xFF, 0xFF, 0xFF, 0xFF}},
		{"integer too large", int64(amf.MaxInteger + 1), []byte{0x05, 0x41, 0xB0, 0, 0, 0, 0, 0, 0}},
		{"double", 1.5, []byte{0x05, 0x3F, 0xF8, 0, 0, 0, 0, 0, 0}},
		{"empty string", "", []byte{0x06, 0x01}},
		{"string", "foo", []byte{0x06, 0x07, 'f', 'o', 'o'}},
		{"repeated string", []any{"foo", "foo", ""}, []byte{
			0x09, 0x07, 0x01,
			0x06, 0x07, 'f', 'o', 'o',
			0x06, 0x00,
			0x06, 0x01,
		}},
		{"byte array", []byte{1, 2}, []byte{0x0C, 0x05, 0x01, 0x02}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := encode(t, tt.input); !bytes.Equal(got, tt.want) {
				t.Errorf("encoded % X, want % X", got, tt.want)
			}
		})
	}
}

func TestRoundTripPrimitives(t *testing.T) {
	now := time.UnixMilli(time.Now().UnixMilli()).UTC()
	tests := []struct {
		name  string
		input any
		want  any
	}{
		{"null", nil, nil},
		{"true", true, true},
		{"false", false, false},
		{"integer", 42, int32(42)},
		{"min integer", amf.MinInteger, int32(amf.MinInteger)},
		{"max integer", amf.MaxInteger, int32(amf.MaxInteger)},
		{"large integer", int64(1) << 40, float64(int64(1) << 40)},
		{"double", math.Pi, math.Pi},
		{"NaN", math.NaN(), nil},
		{"string", "hello, world", "hello, world"},
		{"unicode", "héllo", "héllo"},
		{"date", now, now},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := roundTrip(t, tt.input); got != tt.want {
				t.Errorf("round trip = %#v, want %#v", got, tt.want)
			}
		})
	}
}

func TestRoundTripCyclicObject(t *testing.T) {
	obj := amf.NewObject("")
	obj.Set("name", "root")
	obj.Set("self", obj)

	got, ok := roundTrip(t, obj).(*amf.Object)
	if !ok {
		t.Fatalf("decoded %T, want *amf.Object", got)
	}
	if name, _ := got.Get("name"); name != "root" {
		t.Errorf("name = %v", name)
	}
	if self, _ := got.Get("self"); self != got {
		t.Error("self reference not preserved")
	}
}

func TestEncodeSharedValues(t *testing.T) {
	inner := []any{"x"}
	obj := amf.NewObject("Foo")
	obj.Set("a", 1)
	other := amf.NewObject("Foo")
	other.Set("a", 2)
	date := time.UnixMilli(1000).UTC()

	data := encode(t, []any{inner, inner, obj, other, date, date})

	d := newTestDecoder(t, data)
	v, err := d.Decode()
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	items := v.([]any)
	if len(items) != 6 {
		t.Fatalf("decoded %d items", len(items))
	}

	first := items[0].([]any)
	second := items[1].([]any)
	if &first[0] != &second[0] {
		t.Error("shared slice decoded as two instances")
	}
	if items[4] != items[5] {
		t.Errorf("dates differ: %v, %v", items[4], items[5])
	}
	// outer array, inner array, two objects, one date
	if len(d.refs.objectTable) != 5 {
		t.Errorf("object table holds %d entries, want 5", len(d.refs.objectTable))
	}
	// both Foo objects share one trait
	if len(d.refs.traitsTable) != 1 {
		t.Errorf("trait table holds %d entries, want 1", len(d.refs.traitsTable))
	}
}

func TestRoundTripNative(t *testing.T) {
	in := &mappedClass{PropA: "Data", PropB: []any{1.5, "two"}}

	got, ok := roundTrip(t, in).(*mappedClass)
	if !ok {
		t.Fatalf("decoded %T, want *mappedClass", got)
	}
	if got.PropA != "Data" {
		t.Errorf("PropA = %q", got.PropA)
	}
	items, ok := got.PropB.([]any)
	if !ok || len(items) != 2 || items[0] != 1.5 || items[1] != "two" {
		t.Errorf("PropB = %#v", got.PropB)
	}
}

func TestRoundTripContainers(t *testing.T) {
	mapping := amf.NewMapping()
	mapping.Assoc.Set("key", "value")
	mapping.Dense = []any{int32(1)}

	dict := &amf.Dictionary{}
	dict.Set("a", int32(1))
	dict.Set(int32(2), "b")

	v := roundTrip(t, []any{mapping, dict, map[string]any{"z": true, "a": false}})
	items := v.([]any)

	gotMapping := items[0].(*amf.Mapping)
	if val, _ := gotMapping.Get("key"); val != "value" {
		t.Errorf("mapping key = %v", val)
	}
	if len(gotMapping.Dense) != 1 || gotMapping.Dense[0] != int32(1) {
		t.Errorf("mapping dense = %#v", gotMapping.Dense)
	}

	gotDict := items[1].(*amf.Dictionary)
	if val, _ := gotDict.Get(int32(2)); val != "b" {
		t.Errorf("dictionary[2] = %v", val)
	}

	gotObj := items[2].(*amf.Object)
	var keys []string
	for key := range gotObj.Members.Keys() {
		keys = append(keys, key)
	}
	if len(keys) != 2 || keys[0] != "a" || keys[1] != "z" {
		t.Errorf("map keys decoded as %v, want sorted", keys)
	}
}

func TestEncodeUnsupported(t *testing.T) {
	var buf bytes.Buffer
	err := NewAMF3Encoder(&buf, nil).Encode(make(chan int))
	if !errors.Is(err, amf.ErrUnsupportedValue) {
		t.Errorf("expected ErrUnsupportedValue, got %v", err)
	}
}

func TestRoundTripIntegerBoundaries(t *testing.T) {
	for _, n := range []int32{0, 127, 128, 16383, 16384, 2097151, 2097152, 268435455, -1, -268435456} {
		data := encode(t, n)
		if got := decodeOne(t, data); got != n {
			t.Errorf("%d encoded as % X decoded to %v", n, data, got)
		}
	}
}

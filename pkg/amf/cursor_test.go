package amf

import (
	"io"
	"math"
	"testing"

	"github.com/pkg/errors"
)

func TestReadU29(t *testing.T) {
	tests := []struct {
		name  string
		input []byte
		want  int32
	}{
		{"zero", []byte{0x00}, 0},
		{"one byte max", []byte{0x7F}, 127},
		{"two byte min", []byte{0x81, 0x00}, 128},
		{"two byte max", []byte{0xFF, 0x7F}, 16383},
		{"three byte min", []byte{0x81, 0x80, 0x00}, 16384},
		{"three byte max", []byte{0xFF, 0xFF, 0x7F}, 2097151},
		{"four byte min", []byte{0x80, 0xC0, 0x80, 0x00}, 2097152},
		{"max integer", []byte{0xBF, 0xFF, 0xFF, 0xFF}, 268435455},
		{"min integer", []byte{0xC0, 0x80, 0x80, 0x00}, -268435456},
		{"minus one", []byte{0xFF, 0xFF, 0xFF, 0xFF}, -1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewCursor(tt.input)
			got, err := c.ReadU29()
			if err != nil {
				t.Fatalf("ReadU29 failed: %v", err)
			}
			if got != tt.want {
				t.Errorf("ReadU29 = %d, want %d", got, tt.want)
			}
			if c.Len() != 0 {
				t.Errorf("%d bytes left unread", c.Len())
			}
		})
	}
}

func TestReadU29Truncated(t *testing.T) {
	c := NewCursor([]byte{0x81, 0x80})
	if _, err := c.ReadU29(); !errors.Is(err, ErrEndOfInput) {
		t.Fatalf("expected ErrEndOfInput, got %v", err)
	}
	if c.Pos() != 0 {
		t.Errorf("position moved to %d on failed read", c.Pos())
	}
}

func TestCursorPrimitives(t *testing.T) {
	buf := []byte{
		0x2A,
		0x01, 0x02,
		0x01, 0x02, 0x03, 0x04,
		0x40, 0x09, 0x21, 0xFB, 0x54, 0x44, 0x2D, 0x18,
		'a', 'b', 'c',
	}
	c := NewCursor(buf)

	b, err := c.ReadByte()
	if err != nil || b != 0x2A {
		t.Fatalf("ReadByte = %#x, %v", b, err)
	}
	u16, err := c.ReadUint16()
	if err != nil || u16 != 0x0102 {
		t.Fatalf("ReadUint16 = %#x, %v", u16, err)
	}
	u32, err := c.ReadUint32()
	if err != nil || u32 != 0x01020304 {
		t.Fatalf("ReadUint32 = %#x, %v", u32, err)
	}
	f, err := c.ReadDouble()
	if err != nil || f != math.Pi {
		t.Fatalf("ReadDouble = %v, %v", f, err)
	}
	raw, err := c.ReadBytes(3)
	if err != nil || string(raw) != "abc" {
		t.Fatalf("ReadBytes = %q, %v", raw, err)
	}

	raw[0] = 'z'
	if buf[len(buf)-3] != 'a' {
		t.Error("ReadBytes result aliases the cursor buffer")
	}
	if c.Len() != 0 || c.Pos() != len(buf) {
		t.Errorf("Pos = %d, Len = %d after reading everything", c.Pos(), c.Len())
	}
}

func TestCursorEndOfInput(t *testing.T) {
	tests := []struct {
		name  string
		input []byte
		read  func(c *Cursor) error
	}{
		{"byte", nil, func(c *Cursor) error { _, err := c.ReadByte(); return err }},
		{"uint16", []byte{0x01}, func(c *Cursor) error { _, err := c.ReadUint16(); return err }},
		{"uint32", []byte{0x01, 0x02, 0x03}, func(c *Cursor) error { _, err := c.ReadUint32(); return err }},
		{"double", []byte{0x01, 0x02, 0x03, 0x04}, func(c *Cursor) error { _, err := c.ReadDouble(); return err }},
		{"bytes", []byte{0x01}, func(c *Cursor) error { _, err := c.ReadBytes(2); return err }},
		{"negative bytes", []byte{0x01}, func(c *Cursor) error { _, err := c.ReadBytes(-1); return err }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewCursor(tt.input)
			if err := tt.read(c); !errors.Is(err, ErrEndOfInput) {
				t.Fatalf("expected ErrEndOfInput, got %v", err)
			}
			if c.Pos() != 0 {
				t.Errorf("position moved to %d on failed read", c.Pos())
			}
		})
	}
}

func TestCursorSeek(t *testing.T) {
	c := NewCursor([]byte{1, 2, 3})
	if err := c.Seek(2); err != nil {
		t.Fatalf("Seek failed: %v", err)
	}
	b, _ := c.ReadByte()
	if b != 3 {
		t.Errorf("read %d after seek, want 3", b)
	}
	if err := c.Seek(4); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("expected ErrInvalidArgument, got %v", err)
	}
	if err := c.Seek(-1); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("expected ErrInvalidArgument, got %v", err)
	}
}

func TestCursorRead(t *testing.T) {
	c := NewCursor([]byte("hello"))
	data, err := io.ReadAll(c)
	if err != nil {
		t.Fatalf("ReadAll failed: %v", err)
	}
	if string(data) != "hello" {
		t.Errorf("ReadAll = %q", data)
	}
	if n, err := c.Read(make([]byte, 1)); n != 0 || err != io.EOF {
		t.Errorf("Read at end = %d, %v", n, err)
	}
}

func TestDictionaryGet(t *testing.T) {
	d := &Dictionary{}
	d.Set("a", 1)
	d.Set([]any{1}, "slice key")
	d.Set(nil, "nil key")
	d.Set(int32(7), "int key")

	if v, ok := d.Get("a"); !ok || v != 1 {
		t.Errorf(`Get("a") = %v, %v`, v, ok)
	}
	if v, ok := d.Get(int32(7)); !ok || v != "int key" {
		t.Errorf("Get(int32(7)) = %v, %v", v, ok)
	}
	if v, ok := d.Get(nil); !ok || v != "nil key" {
		t.Errorf("Get(nil) = %v, %v", v, ok)
	}
	if _, ok := d.Get([]any{1}); ok {
		t.Error("non-comparable key matched")
	}
	if d.Len() != 4 {
		t.Errorf("Len = %d, want 4", d.Len())
	}
}

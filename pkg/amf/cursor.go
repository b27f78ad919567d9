package amf

import (
	"encoding/binary"
	"io"
	"math"

	"github.com/pkg/errors"
)

// Cursor is a sequential reader over an immutable byte buffer.
// Every read advances the position by exactly the bytes it consumed; a read
// that does not have enough bytes left fails with ErrEndOfInput and leaves
// the position untouched.
type Cursor struct {
	buf []byte
	pos int
}

// NewCursor creates a cursor positioned at the start of buf.
func NewCursor(buf []byte) *Cursor {
	return &Cursor{buf: buf}
}

// Pos returns the current read offset.
func (c *Cursor) Pos() int { return c.pos }

// Len returns the number of unread bytes.
func (c *Cursor) Len() int { return len(c.buf) - c.pos }

// Seek moves the read offset to pos.
func (c *Cursor) Seek(pos int) error {
	if pos < 0 || pos > len(c.buf) {
		return errors.Wrapf(ErrInvalidArgument, "seek to %d outside buffer of %d bytes", pos, len(c.buf))
	}
	c.pos = pos
	return nil
}

// need checks that n bytes are available at the current position.
func (c *Cursor) need(n int) error {
	if n < 0 {
		return errors.Wrapf(ErrEndOfInput, "negative length %d at offset %d", n, c.pos)
	}
	if c.Len() < n {
		return errors.Wrapf(ErrEndOfInput, "need %d bytes at offset %d, %d remaining", n, c.pos, c.Len())
	}
	return nil
}

// ReadByte reads a single byte.
func (c *Cursor) ReadByte() (byte, error) {
	if err := c.need(1); err != nil {
		return 0, err
	}
	b := c.buf[c.pos]
	c.pos++
	return b, nil
}

// ReadUint16 reads a big-endian 16-bit unsigned integer.
func (c *Cursor) ReadUint16() (uint16, error) {
	if err := c.need(2); err != nil {
		return 0, err
	}
	v := binary.BigEndian.Uint16(c.buf[c.pos:])
	c.pos += 2
	return v, nil
}

// ReadUint32 reads a big-endian 32-bit unsigned integer.
func (c *Cursor) ReadUint32() (uint32, error) {
	if err := c.need(4); err != nil {
		return 0, err
	}
	v := binary.BigEndian.Uint32(c.buf[c.pos:])
	c.pos += 4
	return v, nil
}

// ReadDouble reads a big-endian IEEE-754 double.
func (c *Cursor) ReadDouble() (float64, error) {
	if err := c.need(8); err != nil {
		return 0, err
	}
	bits := binary.BigEndian.Uint64(c.buf[c.pos:])
	c.pos += 8
	return math.Float64frombits(bits), nil
}

// ReadBytes reads n raw bytes. The returned slice is a copy and does not
// alias the cursor's buffer.
func (c *Cursor) ReadBytes(n int) ([]byte, error) {
	if err := c.need(n); err != nil {
		return nil, err
	}
	out := make([]byte, n)
	copy(out, c.buf[c.pos:c.pos+n])
	c.pos += n
	return out, nil
}

// ReadU29 reads an AMF3 variable-length integer.
//
//	0xxxxxxx
//	1xxxxxxx 0xxxxxxx
//	1xxxxxxx 1xxxxxxx 0xxxxxxx
//	1xxxxxxx 1xxxxxxx 1xxxxxxx xxxxxxxx
//
// The 4-byte form uses all 8 bits of its last byte and is sign-corrected to a
// signed 29-bit value.
func (c *Cursor) ReadU29() (int32, error) {
	start := c.pos

	b, err := c.ReadByte()
	if err != nil {
		return 0, err
	}

	var result int32
	n := 0
	for b&0x80 != 0 && n < 3 {
		result = result<<7 | int32(b&0x7F)
		if b, err = c.ReadByte(); err != nil {
			c.pos = start
			return 0, err
		}
		n++
	}

	if n < 3 {
		return result<<7 | int32(b), nil
	}

	// 4th byte
	result = result<<8 | int32(b)
	if result > MaxInteger {
		result -= 1 << 29
	}
	return result, nil
}

// Read implements io.Reader. It returns io.EOF once the buffer is exhausted.
func (c *Cursor) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	if c.Len() == 0 {
		return 0, io.EOF
	}
	n := copy(p, c.buf[c.pos:])
	c.pos += n
	return n, nil
}

package pprobe

import (
	"encoding/binary"

	"github.com/dennwc/varint"
)

// Cursor is a forward-only reader over a byte slice, shared by the
// descriptor-section and probe-section decoders. It never copies: reads
// return sub-slices that alias the original buffer, matching the
// zero-copy borrowing contract described for decoded function names.
type Cursor struct {
	data []byte
	pos  int
}

// NewCursor wraps data for sequential reading starting at offset 0.
func NewCursor(data []byte) *Cursor {
	return &Cursor{data: data}
}

// Offset reports the current read position.
func (c *Cursor) Offset() int { return c.pos }

// Remaining reports the number of unread bytes.
func (c *Cursor) Remaining() int { return len(c.data) - c.pos }

// Done reports whether the cursor has consumed the entire buffer.
func (c *Cursor) Done() bool { return c.pos >= len(c.data) }

func (c *Cursor) ReadFixedU8() (uint8, error) {
	if c.Remaining() < 1 {
		return 0, truncatedAt(c.pos)
	}
	v := c.data[c.pos]
	c.pos++
	return v, nil
}

func (c *Cursor) ReadFixedU16() (uint16, error) {
	if c.Remaining() < 2 {
		return 0, truncatedAt(c.pos)
	}
	v := binary.LittleEndian.Uint16(c.data[c.pos:])
	c.pos += 2
	return v, nil
}

func (c *Cursor) ReadFixedU32() (uint32, error) {
	if c.Remaining() < 4 {
		return 0, truncatedAt(c.pos)
	}
	v := binary.LittleEndian.Uint32(c.data[c.pos:])
	c.pos += 4
	return v, nil
}

func (c *Cursor) ReadFixedU64() (uint64, error) {
	if c.Remaining() < 8 {
		return 0, truncatedAt(c.pos)
	}
	v := binary.LittleEndian.Uint64(c.data[c.pos:])
	c.pos += 8
	return v, nil
}

func (c *Cursor) ReadFixedI64() (int64, error) {
	v, err := c.ReadFixedU64()
	return int64(v), err
}

// ReadULEB128 decodes an unsigned LEB128 value and checks that it fits in
// maxBits (e.g. 32 for a ULEB128-encoded uint32 field).
func (c *Cursor) ReadULEB128(maxBits int) (uint64, error) {
	v, n := varint.Uvarint(c.data[c.pos:])
	if n == 0 {
		return 0, truncatedAt(c.pos)
	}
	if n < 0 {
		return 0, overflowAt(c.pos)
	}
	if maxBits < 64 && v > (uint64(1)<<uint(maxBits))-1 {
		return 0, overflowAt(c.pos)
	}
	c.pos += n
	return v, nil
}

// ReadSLEB128 decodes a signed LEB128 value. There is no third-party
// library in the reference corpus for signed LEB128 (dennwc/varint only
// covers the unsigned form, matching every other LEB128 consumer found in
// the corpus, e.g. the hand-rolled sleb128 encoder in DWARF line-table
// writers), so this follows the textbook two's-complement continuation
// algorithm directly.
func (c *Cursor) ReadSLEB128(maxBits int) (int64, error) {
	var result int64
	var shift uint
	start := c.pos
	for {
		if c.Remaining() < 1 {
			return 0, truncatedAt(start)
		}
		b := c.data[c.pos]
		c.pos++
		if shift >= 64 {
			return 0, overflowAt(start)
		}
		result |= int64(b&0x7f) << shift
		shift += 7
		if b&0x80 == 0 {
			if shift < 64 && b&0x40 != 0 {
				result |= -1 << shift
			}
			break
		}
	}
	if maxBits < 64 {
		lo := int64(-1) << uint(maxBits-1)
		hi := -lo - 1
		if result < lo || result > hi {
			return 0, overflowAt(start)
		}
	}
	return result, nil
}

// ReadString returns an n-byte slice aliasing the cursor's underlying
// buffer. Callers must keep the buffer alive for as long as the slice is
// used: no copy is made.
func (c *Cursor) ReadString(n int) ([]byte, error) {
	if n < 0 || c.Remaining() < n {
		return nil, truncatedAt(c.pos)
	}
	s := c.data[c.pos : c.pos+n]
	c.pos += n
	return s, nil
}

// PutULEB128 appends the ULEB128 encoding of v to dst and returns the
// grown slice. Used by the in-memory reference ObjectStreamer.
func PutULEB128(dst []byte, v uint64) []byte {
	var buf [varint.MaxLen64]byte
	n := varint.PutUvarint(buf[:], v)
	return append(dst, buf[:n]...)
}

// PutSLEB128 appends the SLEB128 encoding of v to dst and returns the
// grown slice.
func PutSLEB128(dst []byte, v int64) []byte {
	for {
		b := byte(v & 0x7f)
		v >>= 7
		signBitSet := b&0x40 != 0
		if (v == 0 && !signBitSet) || (v == -1 && signBitSet) {
			return append(dst, b)
		}
		dst = append(dst, b|0x80)
	}
}

package protocol

import (
	"encoding/binary"
	"fmt"
	"math"
	"unicode/utf8"
)

// AddBytes appends raw bytes at the cursor, growing the backing storage if
// the current allocation is smaller than required (never past capacity).
// Empty input, input that exceeds the write budget and input larger than
// the capacity are all rejected without touching any state.
func (m *Message) AddBytes(b []byte) error {
	if len(b) == 0 {
		return fmt.Errorf("append of empty slice: %w", ErrSize)
	}
	if !m.CanAdd(len(b)) {
		return fmt.Errorf("append of %d bytes at position %d exceeds body budget %d: %w",
			len(b), m.position, MaxBodyLength, ErrSize)
	}
	if len(b) > MaxSize {
		return fmt.Errorf("append of %d bytes exceeds capacity %d: %w", len(b), MaxSize, ErrSize)
	}
	if need := m.position + len(b); need > len(m.buffer) {
		grown := make([]byte, need)
		copy(grown, m.buffer)
		m.buffer = grown
	}
	copy(m.buffer[m.position:], b)
	m.position += len(b)
	m.length += len(b)
	return nil
}

// AddUint8 appends a single byte at the cursor.
func (m *Message) AddUint8(v uint8) error {
	if !m.CanAdd(1) {
		return fmt.Errorf("append of u8 at position %d: %w", m.position, ErrSize)
	}
	m.buffer[m.position] = v
	m.position++
	m.length++
	return nil
}

// AddUint16 appends a little-endian u16 at the cursor.
func (m *Message) AddUint16(v uint16) error {
	if !m.CanAdd(2) {
		return fmt.Errorf("append of u16 at position %d: %w", m.position, ErrSize)
	}
	binary.LittleEndian.PutUint16(m.buffer[m.position:], v)
	m.position += 2
	m.length += 2
	return nil
}

// AddUint32 appends a little-endian u32 at the cursor.
func (m *Message) AddUint32(v uint32) error {
	if !m.CanAdd(4) {
		return fmt.Errorf("append of u32 at position %d: %w", m.position, ErrSize)
	}
	binary.LittleEndian.PutUint32(m.buffer[m.position:], v)
	m.position += 4
	m.length += 4
	return nil
}

// AddUint64 appends a little-endian u64 at the cursor.
func (m *Message) AddUint64(v uint64) error {
	if !m.CanAdd(8) {
		return fmt.Errorf("append of u64 at position %d: %w", m.position, ErrSize)
	}
	binary.LittleEndian.PutUint64(m.buffer[m.position:], v)
	m.position += 8
	m.length += 8
	return nil
}

// AddString appends a u16 length prefix followed by the string bytes.
func (m *Message) AddString(s string) error {
	if len(s) > math.MaxUint16 {
		return fmt.Errorf("string of %d bytes overflows the length prefix: %w", len(s), ErrSize)
	}
	if !m.CanAdd(2 + len(s)) {
		return fmt.Errorf("append of %d-byte string at position %d: %w", len(s), m.position, ErrSize)
	}
	if err := m.AddUint16(uint16(len(s))); err != nil {
		return err
	}
	if len(s) == 0 {
		return nil
	}
	return m.AddBytes([]byte(s))
}

// GetUint8 reads a single byte at the cursor. A read past the available
// data returns 0, leaves the cursor unmoved and sets the overrun flag.
func (m *Message) GetUint8() uint8 {
	if !m.CanRead(1) {
		m.overrun = true
		return 0
	}
	v := m.buffer[m.position]
	m.position++
	return v
}

// GetUint16 reads a little-endian u16 at the cursor. A read past the
// available data returns 0, leaves the cursor unmoved and sets the overrun
// flag.
func (m *Message) GetUint16() uint16 {
	if !m.CanRead(2) {
		m.overrun = true
		return 0
	}
	v := binary.LittleEndian.Uint16(m.buffer[m.position:])
	m.position += 2
	return v
}

// GetUint32 reads a little-endian u32 at the cursor. A read past the
// available data returns 0, leaves the cursor unmoved and sets the overrun
// flag.
func (m *Message) GetUint32() uint32 {
	if !m.CanRead(4) {
		m.overrun = true
		return 0
	}
	v := binary.LittleEndian.Uint32(m.buffer[m.position:])
	m.position += 4
	return v
}

// GetUint64 reads a little-endian u64 at the cursor. A read past the
// available data returns 0, leaves the cursor unmoved and sets the overrun
// flag.
func (m *Message) GetUint64() uint64 {
	if !m.CanRead(8) {
		m.overrun = true
		return 0
	}
	v := binary.LittleEndian.Uint64(m.buffer[m.position:])
	m.position += 8
	return v
}

// GetString reads a u16 length prefix at the cursor, then that many bytes
// as a UTF-8 string. A zero prefix yields the empty string.
func (m *Message) GetString() (string, error) {
	n := int(m.GetUint16())
	if n == 0 {
		return "", nil
	}
	return m.readString(n)
}

// GetStringN reads exactly n bytes at the cursor as a UTF-8 string,
// skipping the length prefix. A zero n yields the empty string with the
// cursor unmoved.
func (m *Message) GetStringN(n int) (string, error) {
	if n < 0 {
		return "", fmt.Errorf("negative string length %d: %w", n, ErrRead)
	}
	if n == 0 {
		return "", nil
	}
	return m.readString(n)
}

func (m *Message) readString(n int) (string, error) {
	if !m.CanRead(n) {
		m.overrun = true
		return "", fmt.Errorf("string of %d bytes at position %d exceeds available data: %w",
			n, m.position, ErrRead)
	}
	raw := m.buffer[m.position : m.position+n]
	m.position += n
	if !utf8.Valid(raw) {
		return "", fmt.Errorf("string of %d bytes at position %d: %w", n, m.position-n, ErrInvalidUTF8)
	}
	return string(raw), nil
}

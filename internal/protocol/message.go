// Package protocol implements the fixed-capacity message buffer used to
// inspect and assemble length-prefixed wire frames.
package protocol

import (
	"encoding/binary"
	"errors"

	"github.com/beats-dh/proxy/internal/util"
)

const (
	// MaxSize is the capacity of a message's backing storage.
	MaxSize = 65500

	// HeaderSize is the reserved region at the front of the buffer:
	// bytes 0-1 hold the declared frame length (little-endian) and
	// bytes 2-7 are reserved for sequence and checksum fields.
	// The cursor of a fresh message starts here.
	HeaderSize = 8

	// MaxBodyLength is the write budget: the capacity minus the length
	// field (2), the checksum field (4) and the reserved header region (8).
	MaxBodyLength = MaxSize - 2 - 4 - 8
)

// Codec failure sentinels. Failure sites wrap them with context; callers
// match with errors.Is.
var (
	ErrSize        = errors.New("message size is wrong")
	ErrRead        = errors.New("cannot read from message")
	ErrInvalidUTF8 = errors.New("invalid UTF-8 string")
)

// Message is a bounded binary scratch buffer over a wire frame. Writes and
// reads share a single cursor that starts past the reserved header region;
// the accumulated body length is tracked separately so a frame can be
// appended once and re-read many times (see Rewind).
//
// A Message is not safe for concurrent use.
type Message struct {
	buffer   []byte
	position int
	length   int
	overrun  bool
}

// NewMessage returns an empty message with its full capacity pre-allocated
// and the cursor placed just past the reserved header region.
func NewMessage() *Message {
	return &Message{
		buffer:   make([]byte, MaxSize),
		position: HeaderSize,
	}
}

// CanAdd reports whether size more bytes fit within the write budget at the
// current cursor.
func (m *Message) CanAdd(size int) bool {
	return size+m.position < MaxBodyLength
}

// CanRead reports whether size bytes may be read at the current cursor: the
// read must stay within the accumulated data and within the capacity.
func (m *Message) CanRead(size int) bool {
	if m.position+size > m.length+HeaderSize {
		return false
	}
	if size >= MaxSize-m.position {
		return false
	}
	return true
}

// DecodeHeader reads the declared frame length from the reserved header
// region and stores it as the message length. It fails soft: with fewer
// than 2 bytes of accumulated data, or a declared length beyond the
// capacity, it logs a warning and returns 0 without touching any state.
func (m *Message) DecodeHeader() int {
	if m.length < 2 {
		util.LogWarning("header decode: not enough data (%d bytes)", m.length)
		return 0
	}
	size := int(binary.LittleEndian.Uint16(m.buffer[0:2]))
	if size > MaxSize {
		util.LogWarning("header decode: declared length %d exceeds capacity %d", size, MaxSize)
		return 0
	}
	m.length = size
	return size
}

// PutHeader stamps a declared frame length into the reserved header region.
// The cursor and the accumulated length are untouched.
func (m *Message) PutHeader(size uint16) {
	binary.LittleEndian.PutUint16(m.buffer[0:2], size)
}

// Rewind moves the cursor back to the start of the body, keeping the
// accumulated length, so an appended frame can be read from the top.
func (m *Message) Rewind() {
	m.position = HeaderSize
}

// Position returns the current cursor offset.
func (m *Message) Position() int { return m.position }

// Length returns the accumulated body length.
func (m *Message) Length() int { return m.length }

// Overrun reports whether any read was ever attempted beyond the available
// data. The flag is sticky for the lifetime of the message.
func (m *Message) Overrun() bool { return m.overrun }

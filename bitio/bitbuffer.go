// Package bitio provides the big-endian, bit-level codec the gorilla
// package packs its variable-width codewords onto.
//
// BitBuffer is an append-only bit sink with an optional hard byte cap.
// BitReader is the matching forward-only cursor. Bit index 0 of a byte is
// its most significant bit; WriteBits and ReadBits transfer values
// most-significant-bit-first, so a BitReader positioned at 0 over a
// BitBuffer's bytes reproduces exactly what was written.
package bitio

import (
	"github.com/arloliu/gorilla/errs"
	"github.com/arloliu/gorilla/internal/pool"
)

// BitBuffer accumulates bits into a byte sequence, most significant bit
// first within each byte.
//
// The zero value is not usable; construct one with New or NewWithLimit.
// A BitBuffer is not safe for concurrent use — it is meant to be owned
// exclusively by a single Encoder.
type BitBuffer struct {
	buf      *pool.ByteBuffer
	bitCount int // valid bits in the tail byte: 0 (empty) or 1..8
	maxBytes int
	hasLimit bool
}

// New creates an empty BitBuffer with no byte limit.
func New() *BitBuffer {
	return &BitBuffer{
		buf: pool.GetBuffer(),
	}
}

// NewWithLimit creates an empty BitBuffer that refuses to grow past
// maxBytes bytes. Writes that would start a new byte beyond the limit
// return errs.ErrBufferFull.
func NewWithLimit(maxBytes int) *BitBuffer {
	return &BitBuffer{
		buf:      pool.GetBuffer(),
		maxBytes: maxBytes,
		hasLimit: true,
	}
}

// SetLimit installs a maximum byte count on an existing buffer.
func (b *BitBuffer) SetLimit(maxBytes int) {
	b.maxBytes = maxBytes
	b.hasLimit = true
}

// ClearLimit removes any byte limit, allowing the buffer to grow freely.
func (b *BitBuffer) ClearLimit() {
	b.hasLimit = false
	b.maxBytes = 0
}

// Limit returns the configured byte limit and whether one is set.
func (b *BitBuffer) Limit() (int, bool) {
	return b.maxBytes, b.hasLimit
}

// RemainingCapacity returns the number of whole bytes that can still be
// added before a write hits the limit. The second return value is false
// if no limit is configured.
func (b *BitBuffer) RemainingCapacity() (int, bool) {
	if !b.hasLimit {
		return 0, false
	}

	remaining := b.maxBytes - b.buf.Len()
	if remaining < 0 {
		remaining = 0
	}

	return remaining, true
}

// LenBits returns the total number of bits written so far.
func (b *BitBuffer) LenBits() int {
	if b.buf.Len() == 0 {
		return 0
	}

	return (b.buf.Len()-1)*8 + b.bitCount
}

// Bytes returns the underlying byte slice. The slice is valid until the
// next write and must not be modified by the caller.
func (b *BitBuffer) Bytes() []byte {
	return b.buf.Bytes()
}

// WriteBit appends a single bit to the buffer.
//
// Returns errs.ErrBufferFull if a new byte would be needed and the byte
// limit has already been reached. On success the bit is guaranteed
// written; on failure the buffer is left exactly as it was before the
// call (a single bit never straddles a byte boundary).
func (b *BitBuffer) WriteBit(bit bool) error {
	if err := b.ensureTailByte(); err != nil {
		return err
	}

	if bit {
		idx := b.buf.Len() - 1
		b.buf.B[idx] |= 1 << (7 - b.bitCount)
	}
	b.bitCount++

	return nil
}

// WriteBits writes the low n bits of value, most significant bit first.
// n must be in [0, 64]; n == 0 is a no-op. n outside that range is a
// programming error and panics, matching the precondition in spec §4.1.
//
// If the byte limit is reached partway through, WriteBits returns
// errs.ErrBufferFull having already committed however many of the n bits
// fit. The buffer is left holding a valid prefix of the intended write —
// callers needing atomicity must check RemainingCapacity first.
func (b *BitBuffer) WriteBits(value uint64, n int) error {
	if n == 0 {
		return nil
	}
	if n < 0 || n > 64 {
		panic("bitio: WriteBits: n must be in [0, 64]")
	}

	for i := n - 1; i >= 0; i-- {
		bit := (value>>uint(i))&1 == 1
		if err := b.WriteBit(bit); err != nil {
			return err
		}
	}

	return nil
}

// ensureTailByte starts a new zero byte when the current tail byte is
// full (or the buffer is empty), enforcing the byte limit at that point.
func (b *BitBuffer) ensureTailByte() error {
	if b.bitCount != 0 && b.bitCount != 8 {
		return nil
	}

	if b.hasLimit && b.buf.Len() >= b.maxBytes {
		return errs.ErrBufferFull
	}

	b.buf.ExtendOrGrow(1)
	b.buf.B[b.buf.Len()-1] = 0
	b.bitCount = 0

	return nil
}

// Release returns the buffer's backing storage to the internal pool. Call
// it only after the bytes have been copied out (see gorilla.Encoder's
// IntoCompressed); using the BitBuffer afterward is undefined.
func (b *BitBuffer) Release() {
	if b.buf == nil {
		return
	}
	pool.PutBuffer(b.buf)
	b.buf = nil
}

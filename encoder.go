package gorilla

import (
	"math"
	"math/bits"

	"github.com/cespare/xxhash/v2"

	"github.com/arloliu/gorilla/bitio"
)

// sentinel marks the low 64 bits of the end-of-stream codeword. A dod
// payload with exactly this bit pattern is reserved and should never
// occur as a genuine delta-of-delta (see spec §9, "Sentinel collision").
const sentinel = 0xFFFF_FFFF_FFFF_FFFF

// initialZeroWindow is the encoder's sentinel "no prior XOR window"
// value: any real leading/trailing zero count for a non-zero 64-bit XOR
// is < 64, so the "fits inside previous window" test always fails on the
// first non-zero XOR, forcing a fresh window.
const initialZeroWindow = 64

// Encoder compresses a sequence of DataPoints, in non-decreasing
// timestamp order, into a CompressedBlock using delta-of-delta timestamp
// coding and XOR value coding.
//
// An Encoder is not safe for concurrent use. Encode must not be called
// after Finish; doing so is a programming error and panics, matching the
// precondition in spec §4.3.
type Encoder struct {
	buf *bitio.BitBuffer

	count uint64

	prevTimestamp uint64
	prevDelta     int64

	prevValueBits    uint64
	prevLeadingZeros int
	prevTrailZeros   int

	finished bool
}

// NewEncoder creates an Encoder with no byte limit.
func NewEncoder() *Encoder {
	return &Encoder{
		buf:              bitio.New(),
		prevLeadingZeros: initialZeroWindow,
		prevTrailZeros:   initialZeroWindow,
	}
}

// NewEncoderWithLimit creates an Encoder whose backing buffer refuses to
// grow past maxBytes bytes; Encode and Finish return errs.ErrBufferFull
// once the limit would be exceeded.
func NewEncoderWithLimit(maxBytes int) *Encoder {
	return &Encoder{
		buf:              bitio.NewWithLimit(maxBytes),
		prevLeadingZeros: initialZeroWindow,
		prevTrailZeros:   initialZeroWindow,
	}
}

// Count returns the number of points successfully encoded so far.
func (e *Encoder) Count() uint64 {
	return e.count
}

// Buffer returns the encoder's underlying bit buffer for introspection
// (e.g. LenBits, RemainingCapacity). The caller must not write to it.
func (e *Encoder) Buffer() *bitio.BitBuffer {
	return e.buf
}

// Encode appends one data point to the stream.
//
// Points are expected in strictly increasing timestamp order; the encoder
// does not enforce this — a non-monotone input simply produces a signed
// delta that may be negative, and decoding remains exact. Downstream
// consumers may assume monotonicity.
//
// Calling Encode after Finish is a programming error and panics.
// A returned errs.ErrBufferFull means the call aborted partway through;
// the buffer retains whatever was written and Count is unchanged.
func (e *Encoder) Encode(dp DataPoint) error {
	if e.finished {
		panic("gorilla: Encode called after Finish")
	}

	var err error
	switch e.count {
	case 0:
		err = e.encodeFirst(dp)
	case 1:
		err = e.encodeSecond(dp)
	default:
		err = e.encodeSubsequent(dp)
	}
	if err != nil {
		return err
	}

	e.count++

	return nil
}

func (e *Encoder) encodeFirst(dp DataPoint) error {
	if err := e.buf.WriteBits(dp.Timestamp, 64); err != nil {
		return err
	}

	valBits := math.Float64bits(dp.Value)
	if err := e.buf.WriteBits(valBits, 64); err != nil {
		return err
	}

	e.prevTimestamp = dp.Timestamp
	e.prevValueBits = valBits

	return nil
}

func (e *Encoder) encodeSecond(dp DataPoint) error {
	delta := int64(dp.Timestamp) - int64(e.prevTimestamp)
	if err := e.encodeDeltaOfDelta(delta); err != nil {
		return err
	}
	if err := e.encodeValue(dp.Value); err != nil {
		return err
	}

	e.prevDelta = delta
	e.prevTimestamp = dp.Timestamp

	return nil
}

func (e *Encoder) encodeSubsequent(dp DataPoint) error {
	delta := int64(dp.Timestamp) - int64(e.prevTimestamp)
	dod := delta - e.prevDelta
	if err := e.encodeDeltaOfDelta(dod); err != nil {
		return err
	}
	if err := e.encodeValue(dp.Value); err != nil {
		return err
	}

	e.prevDelta = delta
	e.prevTimestamp = dp.Timestamp

	return nil
}

// encodeDeltaOfDelta writes dod using the five-bucket variable-length
// scheme from spec §4.3:
//
//	dod == 0        -> '0'                    (1 bit)
//	[-63, 64]        -> '10'   + 7-bit value   (9 bits)
//	[-255, 256]      -> '110'  + 9-bit value   (12 bits)
//	[-2047, 2048]    -> '1110' + 12-bit value  (16 bits)
//	otherwise        -> '1111' + 64-bit value  (68 bits)
func (e *Encoder) encodeDeltaOfDelta(dod int64) error {
	switch {
	case dod == 0:
		return e.buf.WriteBit(false)
	case dod >= -63 && dod <= 64:
		if err := e.buf.WriteBits(0b10, 2); err != nil {
			return err
		}
		return e.buf.WriteBits(uint64(dod)&0x7F, 7)
	case dod >= -255 && dod <= 256:
		if err := e.buf.WriteBits(0b110, 3); err != nil {
			return err
		}
		return e.buf.WriteBits(uint64(dod)&0x1FF, 9)
	case dod >= -2047 && dod <= 2048:
		if err := e.buf.WriteBits(0b1110, 4); err != nil {
			return err
		}
		return e.buf.WriteBits(uint64(dod)&0xFFF, 12)
	default:
		if err := e.buf.WriteBits(0b1111, 4); err != nil {
			return err
		}
		return e.buf.WriteBits(uint64(dod), 64)
	}
}

// encodeValue writes val using XOR-with-shared-window coding (spec §4.3).
func (e *Encoder) encodeValue(val float64) error {
	bits64 := math.Float64bits(val)
	xor := bits64 ^ e.prevValueBits
	e.prevValueBits = bits64

	if xor == 0 {
		return e.buf.WriteBit(false)
	}

	if err := e.buf.WriteBit(true); err != nil {
		return err
	}

	leading := bits.LeadingZeros64(xor)
	trailing := bits.TrailingZeros64(xor)

	if e.prevLeadingZeros <= leading && e.prevTrailZeros <= trailing {
		// Fits inside the previous window: reuse it.
		if err := e.buf.WriteBit(false); err != nil {
			return err
		}
		meaningful := 64 - e.prevLeadingZeros - e.prevTrailZeros

		return e.buf.WriteBits(xor>>uint(e.prevTrailZeros), meaningful)
	}

	// New window.
	if err := e.buf.WriteBit(true); err != nil {
		return err
	}
	meaningful := 64 - leading - trailing
	if err := e.buf.WriteBits(uint64(leading), 6); err != nil {
		return err
	}
	if err := e.buf.WriteBits(uint64(meaningful-1), 6); err != nil {
		return err
	}
	if err := e.buf.WriteBits(xor>>uint(trailing), meaningful); err != nil {
		return err
	}

	e.prevLeadingZeros = leading
	e.prevTrailZeros = trailing

	return nil
}

// Finish writes the end-of-stream sentinel. Idempotent: a second call is
// a no-op that does not touch the buffer. A returned errs.ErrBufferFull
// leaves the block un-terminated — it cannot be decoded to completion.
func (e *Encoder) Finish() error {
	if e.finished {
		return nil
	}

	if err := e.buf.WriteBits(0b1111, 4); err != nil {
		return err
	}
	if err := e.buf.WriteBits(sentinel, 64); err != nil {
		return err
	}

	e.finished = true

	return nil
}

// IntoCompressed consumes the encoder and returns the accumulated bytes
// as a CompressedBlock. Safe to call before or after Finish. The
// encoder's bit buffer is released back to its pool afterward; the
// encoder must not be used again.
func (e *Encoder) IntoCompressed() CompressedBlock {
	totalBits := e.buf.LenBits()
	raw := e.buf.Bytes()
	owned := make([]byte, len(raw))
	copy(owned, raw)

	e.buf.Release()

	return CompressedBlock{
		Bytes:     owned,
		TotalBits: totalBits,
		Count:     e.count,
	}
}

// CompressedBlock is the self-delimited output of an Encoder: the raw
// payload bytes, the exact number of valid bits (padding bits in the
// final byte are meaningless), and the number of points encoded.
//
// CompressedBlock is a plain value; copies share the Bytes backing array,
// and it is not comparable with == because it holds a slice. It carries
// no further guarantees beyond spec §4.5.
type CompressedBlock struct {
	Bytes     []byte
	TotalBits int
	Count     uint64
}

// Checksum returns an xxHash64 digest of the block's payload bytes.
//
// This is not part of the wire format and has no bearing on decode
// correctness — it exists for a higher framing layer that wants to
// detect corruption independently of Count, exactly the cross-check spec
// §9 describes for the sentinel-collision edge case.
func (b CompressedBlock) Checksum() uint64 {
	return xxhash.Sum64(b.Bytes)
}

package gorilla

import (
	"math"

	"github.com/arloliu/gorilla/bitio"
	"github.com/arloliu/gorilla/errs"
)

// Decoder reverses the encoding performed by Encoder. It carries no
// state of its own between calls — Decode, DecodeRaw and Iter each start
// a fresh decode — so a single Decoder may be reused freely, including
// concurrently.
type Decoder struct{}

// NewDecoder returns a ready-to-use Decoder.
func NewDecoder() *Decoder {
	return &Decoder{}
}

// Decode fully decodes block into a slice of DataPoints.
//
// An empty block (block.Bytes has zero length) yields errs.ErrEmpty. A
// truncated or corrupt block yields errs.ErrUnexpectedEnd.
func (d *Decoder) Decode(block CompressedBlock) ([]DataPoint, error) {
	return d.DecodeRaw(block.Bytes, block.TotalBits)
}

// DecodeRaw decodes a Gorilla bit stream directly from its bytes and bit
// count, without requiring a CompressedBlock's Count field. Termination
// is driven entirely by the end-of-stream sentinel.
func (d *Decoder) DecodeRaw(data []byte, totalBits int) ([]DataPoint, error) {
	it := newDecoderIter(bitio.NewReader(data, totalBits))

	var points []DataPoint
	for it.Next() {
		points = append(points, it.cur)
	}
	if it.err != nil {
		return nil, it.err
	}

	return points, nil
}

// Iter returns a lazy iterator over block's points. Unlike Decode, it
// does not allocate a result slice up front, which matters for blocks
// with many points.
func (d *Decoder) Iter(block CompressedBlock) *DecoderIter {
	return newDecoderIter(bitio.NewReader(block.Bytes, block.TotalBits))
}

// iterState tracks which phase of the three-phase Gorilla decode a
// DecoderIter is in: the first point is fixed-width, the second
// establishes the running delta, and every point after that is encoded
// relative to it.
type iterState int

const (
	stateInitial iterState = iota
	stateSecond
	stateSubsequent
	stateDone
)

// DecoderIter is a forward-only, allocation-free iterator over a
// compressed stream's points.
//
//	it := dec.Iter(block)
//	for it.Next() {
//	    dp, err := it.Point()
//	    if err != nil {
//	        // ...
//	    }
//	}
type DecoderIter struct {
	r     *bitio.BitReader
	state iterState

	prevTimestamp uint64
	prevDelta     int64

	prevValueBits    uint64
	prevLeadingZeros int
	prevTrailZeros   int

	cur DataPoint
	err error
}

func newDecoderIter(r *bitio.BitReader) *DecoderIter {
	// Unlike the encoder, the decoder never compares these against a
	// fresh XOR's zero counts to decide anything — it just does what the
	// stream's control bits tell it — so 0 is a safe initial value: an
	// unchanged value is a single '0' bit that never reads the window, and
	// the encoder writes a new-window codeword (which sets both counts)
	// before it ever writes a reuse-window one.
	return &DecoderIter{
		r:     r,
		state: stateInitial,
	}
}

// Next advances to the next point, returning false when the stream ends
// cleanly at the sentinel or an error occurred (an empty block reports
// errs.ErrEmpty). Call Err to distinguish the two after Next returns false.
func (it *DecoderIter) Next() bool {
	if it.state == stateDone || it.err != nil {
		return false
	}

	switch it.state {
	case stateInitial:
		return it.readFirst()
	case stateSecond:
		return it.readSecond()
	default:
		return it.readSubsequent()
	}
}

// Point returns the point produced by the most recent successful Next
// call.
func (it *DecoderIter) Point() (DataPoint, error) {
	return it.cur, it.err
}

// Err returns the error that stopped iteration, if any. It is nil after
// a clean end of stream.
func (it *DecoderIter) Err() error {
	return it.err
}

func (it *DecoderIter) readFirst() bool {
	// A short or absent first timestamp means the stream carries no
	// points at all: surfaced as Empty rather than UnexpectedEnd, matching
	// the header-vs-payload distinction in the failure semantics.
	ts, ok := it.r.ReadBits(64)
	if !ok {
		it.err = errs.ErrEmpty
		it.state = stateDone

		return false
	}

	valBits, ok := it.r.ReadBits(64)
	if !ok {
		it.err = errs.ErrUnexpectedEnd
		it.state = stateDone

		return false
	}

	it.cur = DataPoint{Timestamp: ts, Value: math.Float64frombits(valBits)}
	it.prevTimestamp = ts
	it.prevValueBits = valBits
	it.state = stateSecond

	return true
}

func (it *DecoderIter) readSecond() bool {
	delta, isEnd, err := decodeDeltaOfDelta(it.r)
	if err != nil {
		it.err = err
		it.state = stateDone

		return false
	}
	if isEnd {
		it.state = stateDone

		return false
	}

	valBits, err := decodeValue(it.r, it.prevValueBits, &it.prevLeadingZeros, &it.prevTrailZeros)
	if err != nil {
		it.err = err
		it.state = stateDone

		return false
	}

	it.prevTimestamp += uint64(delta)
	it.prevDelta = delta
	it.prevValueBits = valBits
	it.cur = DataPoint{Timestamp: it.prevTimestamp, Value: math.Float64frombits(valBits)}
	it.state = stateSubsequent

	return true
}

func (it *DecoderIter) readSubsequent() bool {
	dod, isEnd, err := decodeDeltaOfDelta(it.r)
	if err != nil {
		it.err = err
		it.state = stateDone

		return false
	}
	if isEnd {
		it.state = stateDone

		return false
	}

	valBits, err := decodeValue(it.r, it.prevValueBits, &it.prevLeadingZeros, &it.prevTrailZeros)
	if err != nil {
		it.err = err
		it.state = stateDone

		return false
	}

	it.prevDelta += dod
	it.prevTimestamp += uint64(it.prevDelta)
	it.prevValueBits = valBits
	it.cur = DataPoint{Timestamp: it.prevTimestamp, Value: math.Float64frombits(valBits)}

	return true
}

// decodeDeltaOfDelta reads one variable-length dod codeword, mirroring
// Encoder.encodeDeltaOfDelta. isEnd reports that the 68-bit end-of-stream
// sentinel was read instead of a real value.
func decodeDeltaOfDelta(r *bitio.BitReader) (value int64, isEnd bool, err error) {
	b0, ok := r.ReadBit()
	if !ok {
		return 0, false, errs.ErrUnexpectedEnd
	}
	if !b0 {
		return 0, false, nil
	}

	b1, ok := r.ReadBit()
	if !ok {
		return 0, false, errs.ErrUnexpectedEnd
	}
	if !b1 {
		v, ok := r.ReadBits(7)
		if !ok {
			return 0, false, errs.ErrUnexpectedEnd
		}

		return bucketValue(v, 7), false, nil
	}

	b2, ok := r.ReadBit()
	if !ok {
		return 0, false, errs.ErrUnexpectedEnd
	}
	if !b2 {
		v, ok := r.ReadBits(9)
		if !ok {
			return 0, false, errs.ErrUnexpectedEnd
		}

		return bucketValue(v, 9), false, nil
	}

	b3, ok := r.ReadBit()
	if !ok {
		return 0, false, errs.ErrUnexpectedEnd
	}
	if !b3 {
		v, ok := r.ReadBits(12)
		if !ok {
			return 0, false, errs.ErrUnexpectedEnd
		}

		return bucketValue(v, 12), false, nil
	}

	raw, ok := r.ReadBits(64)
	if !ok {
		return 0, false, errs.ErrUnexpectedEnd
	}
	if raw == sentinel {
		return 0, true, nil
	}

	return int64(raw), false, nil
}

// decodeValue reads one XOR-coded value codeword and returns the
// reconstructed float64 bit pattern, updating the shared leading/trailing
// zero window in place exactly as Encoder.encodeValue does on write.
func decodeValue(r *bitio.BitReader, prevValueBits uint64, leading, trailing *int) (uint64, error) {
	ctrl, ok := r.ReadBit()
	if !ok {
		return 0, errs.ErrUnexpectedEnd
	}
	if !ctrl {
		return prevValueBits, nil
	}

	newWindow, ok := r.ReadBit()
	if !ok {
		return 0, errs.ErrUnexpectedEnd
	}

	if !newWindow {
		meaningful := 64 - *leading - *trailing
		v, ok := r.ReadBits(meaningful)
		if !ok {
			return 0, errs.ErrUnexpectedEnd
		}

		return prevValueBits ^ (v << uint(*trailing)), nil
	}

	lz, ok := r.ReadBits(6)
	if !ok {
		return 0, errs.ErrUnexpectedEnd
	}
	mLenMinusOne, ok := r.ReadBits(6)
	if !ok {
		return 0, errs.ErrUnexpectedEnd
	}

	meaningful := int(mLenMinusOne) + 1
	tz := 64 - int(lz) - meaningful

	v, ok := r.ReadBits(meaningful)
	if !ok {
		return 0, errs.ErrUnexpectedEnd
	}

	*leading = int(lz)
	*trailing = tz

	return prevValueBits ^ (v << uint(tz)), nil
}

// bucketValue decodes an n-bit dod payload. Each bucket covers
// [-(2^(n-1)-1), 2^(n-1)], so the one pattern that sign-extends to
// -2^(n-1) can only have been written for +2^(n-1).
func bucketValue(v uint64, n int) int64 {
	x := signExtend(v, n)
	if x == -(int64(1) << uint(n-1)) {
		return -x
	}

	return x
}

// signExtend sign-extends the low n bits of v, interpreted as a two's
// complement integer, to a full int64.
func signExtend(v uint64, n int) int64 {
	shift := uint(64 - n)

	return int64(v<<shift) >> shift
}

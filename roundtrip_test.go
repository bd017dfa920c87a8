package gorilla

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arloliu/gorilla/bitio"
)

func encodeAll(t *testing.T, pts []DataPoint) CompressedBlock {
	t.Helper()
	enc := NewEncoder()
	for _, p := range pts {
		require.NoError(t, enc.Encode(p))
	}
	require.NoError(t, enc.Finish())

	return enc.IntoCompressed()
}

func TestRoundTrip_RandomMonotoneSeries(t *testing.T) {
	rng := rand.New(rand.NewSource(42))

	for trial := 0; trial < 20; trial++ {
		n := 1 + rng.Intn(200)
		pts := make([]DataPoint, n)
		ts := uint64(rng.Int63n(1 << 40))
		val := rng.Float64() * 1000

		for i := 0; i < n; i++ {
			ts += uint64(rng.Intn(5000))
			val += (rng.Float64() - 0.5) * 10
			pts[i] = DataPoint{Timestamp: ts, Value: val}
		}

		block := encodeAll(t, pts)
		got, err := NewDecoder().Decode(block)
		require.NoError(t, err)
		require.Len(t, got, n)
		for i := range pts {
			assert.True(t, pts[i].Equal(got[i]), "trial %d point %d", trial, i)
		}
	}
}

func TestRoundTrip_IterMatchesDecodeForRandomSeries(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	n := 500
	pts := make([]DataPoint, n)
	ts := uint64(1700000000)
	val := 0.0
	for i := 0; i < n; i++ {
		ts += uint64(rng.Intn(120))
		val += rng.NormFloat64()
		pts[i] = DataPoint{Timestamp: ts, Value: val}
	}

	block := encodeAll(t, pts)
	dec := NewDecoder()

	eager, err := dec.Decode(block)
	require.NoError(t, err)

	it := dec.Iter(block)
	var lazy []DataPoint
	for it.Next() {
		dp, _ := it.Point()
		lazy = append(lazy, dp)
	}
	require.NoError(t, it.Err())

	require.Equal(t, eager, lazy)
}

func TestRoundTrip_BlockInvariants(t *testing.T) {
	pts := []DataPoint{
		{Timestamp: 1, Value: 1}, {Timestamp: 2, Value: 2}, {Timestamp: 3, Value: 3},
	}
	block := encodeAll(t, pts)

	assert.LessOrEqual(t, block.TotalBits, 8*len(block.Bytes))
	assert.Less(t, 8*len(block.Bytes)-block.TotalBits, 8)
}

func TestRoundTrip_LimitedEncoderNeverExceedsMaxBytes(t *testing.T) {
	const maxBytes = 32
	enc := NewEncoderWithLimit(maxBytes)

	ts := uint64(1000)
	var encoded int
	for i := 0; i < 1000; i++ {
		err := enc.Encode(DataPoint{Timestamp: ts, Value: float64(i)})
		ts += 60
		if err != nil {
			break
		}
		encoded++
	}
	_ = enc.Finish() // may itself fail; irrelevant to the size invariant

	block := enc.IntoCompressed()
	assert.LessOrEqual(t, len(block.Bytes), maxBytes)
	assert.EqualValues(t, encoded, block.Count)
}

func TestRoundTrip_BitBufferWriteReadRoundTrips(t *testing.T) {
	rng := rand.New(rand.NewSource(99))
	buf := bitio.New()

	type write struct {
		val uint64
		n   int
	}
	var writes []write
	for i := 0; i < 200; i++ {
		n := 1 + rng.Intn(64)
		var mask uint64
		if n == 64 {
			mask = math.MaxUint64
		} else {
			mask = (uint64(1) << uint(n)) - 1
		}
		v := rng.Uint64() & mask
		require.NoError(t, buf.WriteBits(v, n))
		writes = append(writes, write{val: v, n: n})
	}

	r := bitio.NewReaderFromBuffer(buf)
	for i, w := range writes {
		got, ok := r.ReadBits(w.n)
		require.True(t, ok, "write %d", i)
		assert.Equal(t, w.val, got, "write %d (n=%d)", i, w.n)
	}
	assert.True(t, r.IsExhausted())
}

func TestRoundTrip_CompressionRatio_ConstantValues(t *testing.T) {
	const n = 10000
	pts := make([]DataPoint, n)
	ts := uint64(1700000000)
	for i := 0; i < n; i++ {
		pts[i] = DataPoint{Timestamp: ts, Value: 42.0}
		ts += 60
	}

	block := encodeAll(t, pts)
	baseline := 16 * n
	ratio := float64(baseline) / float64(len(block.Bytes))
	assert.Greater(t, ratio, 40.0, "compression ratio too low: %.1fx", ratio)
}

func TestRoundTrip_CompressionRatio_SlowlyVaryingValues(t *testing.T) {
	const n = 10000
	pts := make([]DataPoint, n)
	ts := uint64(1700000000)
	val := 20.0
	for i := 0; i < n; i++ {
		val += 0.01
		pts[i] = DataPoint{Timestamp: ts, Value: val}
		ts += 60
	}

	block := encodeAll(t, pts)
	baseline := 16 * n
	ratio := float64(baseline) / float64(len(block.Bytes))
	assert.Greater(t, ratio, 2.0, "compression ratio too low: %.1fx", ratio)
}

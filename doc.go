// Package gorilla implements Facebook's Gorilla time-series compression
// scheme (Pelkonen et al., VLDB 2015): delta-of-delta coding for
// timestamps and XOR-with-shared-window coding for float64 values,
// packed bit-exactly onto a big-endian bit stream.
//
// The codec consumes one series and produces one self-delimited
// CompressedBlock; chaining multiple blocks, persistence, and indexing
// are the job of a higher layer.
//
// # Basic usage
//
//	enc := gorilla.NewEncoder()
//	enc.Encode(gorilla.DataPoint{Timestamp: 1609459200, Value: 12.0})
//	enc.Encode(gorilla.DataPoint{Timestamp: 1609459260, Value: 12.5})
//	enc.Encode(gorilla.DataPoint{Timestamp: 1609459320, Value: 13.0})
//	enc.Finish()
//	block := enc.IntoCompressed()
//
//	points, err := gorilla.NewDecoder().Decode(block)
//
// # Lazy iteration
//
// For large blocks, DecoderIter avoids allocating the full output slice:
//
//	it := gorilla.NewDecoder().Iter(block)
//	for it.Next() {
//	    dp, err := it.Point()
//	    // ...
//	}
package gorilla

// Package errs collects the sentinel errors returned by the codec.
//
// Callers should compare against these with errors.Is; package bitio and
// the root gorilla package return them unwrapped.
package errs

import "errors"

var (
	// ErrBufferFull is returned by a BitBuffer write that would need to start
	// a new byte past the buffer's configured byte limit.
	ErrBufferFull = errors.New("bitio: write would exceed bit buffer byte limit")

	// ErrEmpty is returned when a decode cannot read even the first 64-bit
	// timestamp — the stream carries no data points at all.
	ErrEmpty = errors.New("gorilla: compressed stream is empty")

	// ErrUnexpectedEnd is returned when a decode runs out of bits partway
	// through a codeword, after the header has been read successfully.
	ErrUnexpectedEnd = errors.New("gorilla: unexpected end of compressed stream")
)

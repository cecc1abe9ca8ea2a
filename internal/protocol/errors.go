// Package protocol implements the edgerpc wire format: the 5-byte frame
// header and the small fixed type system carried in frame payloads.
package protocol

import "errors"

// Sentinel errors returned by the codec and frame layer. Callers compare
// with errors.Is; none of these carry dynamic context, so fmt.Errorf at
// the call site is used when context is useful (e.g. which field failed).
var (
	// ErrShortRead means the cursor did not have enough remaining bytes
	// to decode the requested value. The cursor is left untouched.
	ErrShortRead = errors.New("protocol: short read")

	// ErrShortWrite means the destination buffer did not have enough
	// remaining capacity to encode the value. The cursor is left
	// untouched.
	ErrShortWrite = errors.New("protocol: short write")

	// ErrValueTooLarge means a string longer than 65535 bytes was
	// passed to WriteString.
	ErrValueTooLarge = errors.New("protocol: value too large")

	// ErrMalformedFrame means a byte run was too short to contain a
	// frame header, or its declared payload_len overruns the buffer.
	ErrMalformedFrame = errors.New("protocol: malformed frame")
)

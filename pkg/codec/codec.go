// Package codec implements the pluggable packet framing layer: turning an
// application payload into a self-delimiting frame, and a byte stream back
// into zero or more payloads, with the invariants needed for safe
// resynchronisation after a torn read.
package codec

import "errors"

// Codec is a stateless set of operations over byte strings. Implementations
// must be safe for concurrent use, since the listener and requester workers
// call into the same codec from different goroutines.
type Codec interface {
	// Encode turns a payload into a frame. It never fails for a
	// well-formed payload; codec-specific payload constraints (e.g. the
	// sentinel codec's forbidden byte pattern) are the caller's
	// responsibility to avoid.
	Encode(payload []byte) []byte

	// Decode turns a single, complete frame back into its payload. It
	// returns a [FramingError] if the frame violates the codec's
	// structural invariants.
	Decode(frame []byte) ([]byte, error)

	// IsFramed reports whether data is exactly one complete, valid frame.
	IsFramed(data []byte) bool

	// Split best-effort resynchronises an arbitrary byte stream into a
	// sequence of complete frames. It may discard leading garbage up to
	// the first recognisable frame boundary.
	Split(stream []byte) [][]byte
}

// ErrFraming is the sentinel identity behind every [FramingError]; test with
// errors.Is(err, ErrFraming).
var ErrFraming = errors.New("framing error")

// FramingError describes why Decode rejected a frame.
type FramingError struct {
	Reason string
}

func (e *FramingError) Error() string { return "framing error: " + e.Reason }

func (e *FramingError) Unwrap() error { return ErrFraming }

func framingError(reason string) error {
	return &FramingError{Reason: reason}
}

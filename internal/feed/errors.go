package feed

import (
	"errors"
	"fmt"
)

var (
	// ErrStreamTruncated is returned when the byte source ends or fails part-way through a record.
	ErrStreamTruncated = errors.New("feed: stream truncated mid-record")
	// ErrInvalidLength is returned when a decode input is not exactly RecordSize bytes.
	ErrInvalidLength = errors.New("feed: invalid record length")
)

// TruncatedError reports a short read: Read bytes arrived before the source stopped with Err.
// The partial bytes are discarded.
type TruncatedError struct {
	Read int
	Err  error
}

func (e *TruncatedError) Error() string {
	return fmt.Sprintf("%v: got %d of %d bytes: %v", ErrStreamTruncated, e.Read, RecordSize, e.Err)
}

func (e *TruncatedError) Is(target error) bool { return target == ErrStreamTruncated }

func (e *TruncatedError) Unwrap() error { return e.Err }

// LengthError reports a decode input of the wrong size.
type LengthError struct {
	Got int
}

func (e *LengthError) Error() string {
	return fmt.Sprintf("%v: got %d bytes, want %d", ErrInvalidLength, e.Got, RecordSize)
}

func (e *LengthError) Is(target error) bool { return target == ErrInvalidLength }

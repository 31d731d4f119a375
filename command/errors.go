package command

import (
	"errors"
	"fmt"
)

// Encoder errors.
var (
	// ErrEncoderFinished is returned when appending to a finished stream.
	ErrEncoderFinished = errors.New("command: stream already finished")

	// ErrExplicitEnd is returned when End is appended directly; Finish writes it.
	ErrExplicitEnd = errors.New("command: End is written by Finish")

	// ErrTooManyOffsets is returned when a SetBindGroup carries more dynamic
	// offsets than the record can count.
	ErrTooManyOffsets = errors.New("command: too many dynamic offsets")

	// ErrInvalidLabel is returned for a debug label that is not valid UTF-8.
	ErrInvalidLabel = errors.New("command: debug label is not valid UTF-8")

	// ErrUnknownCommand is returned for a Command implementation outside the
	// command set.
	ErrUnknownCommand = errors.New("command: unknown command")
)

// ErrFraming is the sentinel matched by every FramingError.
var ErrFraming = errors.New("command: framing error")

// FramingKind classifies a malformed stream.
type FramingKind uint8

const (
	// TruncatedRecord means a record extends past the end of the buffer.
	TruncatedRecord FramingKind = iota
	// TrailerOverrun means a trailer extends past the end of the buffer.
	TrailerOverrun
	// UnknownTag means a record carries a tag outside the command set.
	UnknownTag
	// MissingEnd means the buffer ended without an End record.
	MissingEnd
	// TrailingData means bytes follow the End record.
	TrailingData
	// InvalidLabel means a debug label is not valid UTF-8.
	InvalidLabel
)

func (k FramingKind) String() string {
	switch k {
	case TruncatedRecord:
		return "truncated record"
	case TrailerOverrun:
		return "trailer overrun"
	case UnknownTag:
		return "unknown tag"
	case MissingEnd:
		return "missing End"
	case TrailingData:
		return "trailing data after End"
	case InvalidLabel:
		return "invalid label"
	default:
		return "unknown"
	}
}

// FramingError describes where and why a stream could not be decoded.
type FramingError struct {
	Kind   FramingKind
	Offset int // byte offset of the offending record or trailer
	Need   int // bytes required from Offset
	Have   int // bytes available from Offset
	Tag    byte
}

func (e *FramingError) Error() string {
	switch e.Kind {
	case TruncatedRecord, TrailerOverrun:
		return fmt.Sprintf("command: %s at offset %d: need %d bytes, have %d", e.Kind, e.Offset, e.Need, e.Have)
	case UnknownTag:
		return fmt.Sprintf("command: %s 0x%02x at offset %d", e.Kind, e.Tag, e.Offset)
	default:
		return fmt.Sprintf("command: %s at offset %d", e.Kind, e.Offset)
	}
}

// Is makes errors.Is(err, ErrFraming) work.
func (e *FramingError) Is(target error) bool { return target == ErrFraming }

package wit

import (
	"errors"
	"fmt"
)

// Decode failure kinds. All of them are recoverable: the frame is dropped
// and the stream resynchronizes on the next header.
var (
	ErrTruncated        = errors.New("truncated packet")
	ErrBadHeader        = errors.New("bad packet header")
	ErrChecksumMismatch = errors.New("checksum mismatch")
	ErrUnknownType      = errors.New("unknown packet type")
)

// DecodeError carries the diagnostic detail of a failed decode.
// Match the kind with errors.Is(err, ErrChecksumMismatch) etc.
type DecodeError struct {
	Kind error
	Type PacketType
	Got  int
	Want int
}

func (e *DecodeError) Error() string {
	switch e.Kind {
	case ErrTruncated:
		return fmt.Sprintf("wit: %v: %d bytes, need %d", e.Kind, e.Got, e.Want)
	case ErrBadHeader:
		return fmt.Sprintf("wit: %v: 0x%02X, want 0x%02X", e.Kind, e.Got, e.Want)
	case ErrChecksumMismatch:
		return fmt.Sprintf("wit: %v on %s packet: received=0x%02X calculated=0x%02X", e.Kind, e.Type, e.Got, e.Want)
	default:
		return fmt.Sprintf("wit: %v: %s", e.Kind, e.Type)
	}
}

func (e *DecodeError) Unwrap() error {
	return e.Kind
}

// Kind returns a short label for the failure kind of err, suitable for
// metric labels. Unknown errors map to "other".
func Kind(err error) string {
	switch {
	case errors.Is(err, ErrTruncated):
		return "truncated"
	case errors.Is(err, ErrBadHeader):
		return "bad_header"
	case errors.Is(err, ErrChecksumMismatch):
		return "checksum"
	case errors.Is(err, ErrUnknownType):
		return "unknown_type"
	default:
		return "other"
	}
}

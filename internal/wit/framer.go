package wit

import (
	"bytes"
	"errors"
)

// maxBuffered bounds the bytes held while waiting for a header. A stream
// that never produces a frame cannot grow the buffer past this.
const maxBuffered = 4 * 1024

// Framer splits a raw serial byte stream into frames. It does not assume
// that writes are aligned on packet boundaries: after any failed decode it
// drops a single byte and scans for the next header.
type Framer struct {
	buf []byte

	// OnError, if set, is called for every discarded frame.
	OnError func(err error)
}

// Write appends raw bytes from the link. It never fails.
func (f *Framer) Write(p []byte) (int, error) {
	f.buf = append(f.buf, p...)
	if over := len(f.buf) - maxBuffered; over > 0 {
		f.consume(over)
	}
	return len(p), nil
}

// Buffered returns the number of bytes waiting to be framed.
func (f *Framer) Buffered() int {
	return len(f.buf)
}

// Next returns the next decodable frame, or false when more bytes are needed.
func (f *Framer) Next() (Reading, bool) {
	for {
		idx := bytes.IndexByte(f.buf, Header)
		if idx < 0 {
			f.buf = f.buf[:0]
			return Reading{}, false
		}
		f.consume(idx)
		if len(f.buf) < PacketSize {
			return Reading{}, false
		}

		r, err := Decode(f.buf[:PacketSize])
		if err == nil {
			f.consume(PacketSize)
			return r, true
		}
		f.report(err)
		if errors.Is(err, ErrUnknownType) {
			// Checksum was good: the whole frame is well formed, skip it.
			f.consume(PacketSize)
		} else {
			f.consume(1)
		}
	}
}

func (f *Framer) consume(n int) {
	if n <= 0 {
		return
	}
	k := copy(f.buf, f.buf[n:])
	f.buf = f.buf[:k]
}

func (f *Framer) report(err error) {
	if f.OnError != nil {
		f.OnError(err)
	}
}

package wit

import (
	"errors"
	"math"
	"testing"
)

func TestFramer_SplitWrites(t *testing.T) {
	var f Framer
	p := EncodeAngle(0, 10, 45, 20)

	f.Write(p[:4])
	if _, ok := f.Next(); ok {
		t.Fatal("partial frame must not decode")
	}
	f.Write(p[4:])
	r, ok := f.Next()
	if !ok {
		t.Fatal("expected a frame after the rest of the bytes arrived")
	}
	if math.Abs(r.Heading-45) > 0.1 {
		t.Errorf("heading = %v, want 45", r.Heading)
	}
	if f.Buffered() != 0 {
		t.Errorf("buffered = %d, want 0", f.Buffered())
	}
}

func TestFramer_LeadingGarbage(t *testing.T) {
	var f Framer
	p := EncodeAngle(0, 0, 90, 20)
	f.Write([]byte{0x00, 0x12, 0xAB})
	f.Write(p[:])

	r, ok := f.Next()
	if !ok || math.Abs(r.Heading-90) > 0.1 {
		t.Fatalf("got %+v ok=%v, want heading 90", r, ok)
	}
}

func TestFramer_ResyncAfterCorruption(t *testing.T) {
	var errs []error
	f := Framer{OnError: func(err error) { errs = append(errs, err) }}

	bad := EncodeAngle(0, 0, 10, 20)
	bad[6] ^= 0x01
	good := EncodeAngle(0, 0, 20, 20)

	f.Write(bad[:])
	f.Write(good[:])

	r, ok := f.Next()
	if !ok {
		t.Fatal("expected to resynchronize on the good frame")
	}
	if math.Abs(r.Heading-20) > 0.1 {
		t.Errorf("heading = %v, want 20 (corrupted frame must be discarded)", r.Heading)
	}
	if len(errs) == 0 || !errors.Is(errs[0], ErrChecksumMismatch) {
		t.Errorf("errors = %v, want a checksum mismatch first", errs)
	}
	if _, ok := f.Next(); ok {
		t.Error("no further frames expected")
	}
}

func TestFramer_SkipsUnknownTypeWhole(t *testing.T) {
	var errs []error
	f := Framer{OnError: func(err error) { errs = append(errs, err) }}

	// A magnetometer frame whose payload contains 0x55 bytes must be skipped
	// as a whole, not rescanned from inside.
	mag := Encode(TypeMagnetic, [4]int16{0x5555, 0x5555, 0, 0})
	good := EncodeAngle(0, 0, 30, 20)
	f.Write(mag[:])
	f.Write(good[:])

	r, ok := f.Next()
	if !ok || math.Abs(r.Heading-30) > 0.1 {
		t.Fatalf("got %+v ok=%v, want heading 30", r, ok)
	}
	if len(errs) != 1 || !errors.Is(errs[0], ErrUnknownType) {
		t.Errorf("errors = %v, want exactly one unknown type", errs)
	}
}

func TestFramer_Stream(t *testing.T) {
	var f Framer
	var stream []byte
	for i := 0; i < 10; i++ {
		a := EncodeAngle(0, 0, float64(i*10), 20)
		g := EncodeGyro(1, 2, 3)
		stream = append(stream, a[:]...)
		stream = append(stream, g[:]...)
	}
	// Deliver in odd-sized chunks.
	var got []Reading
	for len(stream) > 0 {
		n := 7
		if n > len(stream) {
			n = len(stream)
		}
		f.Write(stream[:n])
		stream = stream[n:]
		for {
			r, ok := f.Next()
			if !ok {
				break
			}
			got = append(got, r)
		}
	}
	if len(got) != 20 {
		t.Fatalf("decoded %d frames, want 20", len(got))
	}
	if got[18].Type != TypeAngle || math.Abs(got[18].Heading-90) > 0.1 {
		t.Errorf("frame 18 = %+v, want angle heading 90", got[18])
	}
}

func TestFramer_NoHeaderDropsBuffer(t *testing.T) {
	var f Framer
	f.Write([]byte{1, 2, 3, 4, 5})
	if _, ok := f.Next(); ok {
		t.Fatal("no frame expected")
	}
	if f.Buffered() != 0 {
		t.Errorf("buffered = %d, want 0 after scanning garbage", f.Buffered())
	}
}

func TestFramer_BoundedBuffer(t *testing.T) {
	var f Framer
	junk := make([]byte, maxBuffered*2)
	for i := range junk {
		junk[i] = Header
	}
	f.Write(junk)
	if f.Buffered() > maxBuffered {
		t.Errorf("buffered = %d, want <= %d", f.Buffered(), maxBuffered)
	}
}

package imu

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/cjeanneret/SolGo/internal/debug"
	"github.com/cjeanneret/SolGo/internal/wit"
)

// Stats counts what the reader has seen since it started.
type Stats struct {
	Bytes   uint64
	Packets uint64
	Errors  uint64
}

// Sensor keeps the latest attitude decoded from a telemetry stream.
//
// Run owns the stream and is the only writer; Latest may be called from any
// goroutine. The control loop never waits on the serial port.
type Sensor struct {
	src    io.Reader
	framer wit.Framer

	// Follow keeps Run reading after io.EOF. Serial ports with a read
	// timeout report EOF when the line is idle.
	Follow bool

	// OnPacket and OnError, if set, are called from Run for every decoded
	// packet and every discarded frame.
	OnPacket func(wit.Reading)
	OnError  func(error)

	now func() time.Time

	mu       sync.Mutex
	latest   wit.Reading
	attitude bool
	updated  time.Time
	stats    Stats
}

func NewSensor(src io.Reader) *Sensor {
	s := &Sensor{src: src, now: time.Now}
	s.framer.OnError = s.discard
	return s
}

// Run reads the stream until ctx is cancelled, the stream ends, or a read
// fails. A blocked read only returns when the underlying port is closed, so
// callers cancel ctx and then close the port.
func (s *Sensor) Run(ctx context.Context) error {
	buf := make([]byte, 256)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		n, err := s.src.Read(buf)
		if n > 0 {
			s.feed(buf[:n])
		}
		if err == nil {
			continue
		}
		if errors.Is(err, io.EOF) {
			if s.Follow {
				continue
			}
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return err
	}
}

func (s *Sensor) feed(p []byte) {
	s.framer.Write(p)
	s.mu.Lock()
	s.stats.Bytes += uint64(len(p))
	s.mu.Unlock()

	for {
		r, ok := s.framer.Next()
		if !ok {
			return
		}
		if debug.IsEnabled(debug.LevelTrace) {
			debug.Packet(r.Type.String(), r)
		}
		s.mu.Lock()
		s.latest = s.latest.Merge(r)
		if r.Type == wit.TypeAngle {
			s.attitude = true
			s.updated = s.now()
		}
		s.stats.Packets++
		s.mu.Unlock()
		if s.OnPacket != nil {
			s.OnPacket(r)
		}
	}
}

func (s *Sensor) discard(err error) {
	debug.Verbose("IMU frame discarded: %v", err)
	s.mu.Lock()
	s.stats.Errors++
	s.mu.Unlock()
	if s.OnError != nil {
		s.OnError(err)
	}
}

// Latest returns the merged reading and whether an angle packet has been
// received yet.
func (s *Sensor) Latest() (wit.Reading, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.latest, s.attitude
}

// Age returns how long ago the last angle packet arrived. It is zero before
// the first one.
func (s *Sensor) Age(now time.Time) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.attitude {
		return 0
	}
	return now.Sub(s.updated)
}

// Stats returns a copy of the counters.
func (s *Sensor) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

package sim

import (
	"context"
	"time"

	"github.com/cjeanneret/SolGo/internal/wit"
)

// Telemetry is the plant's attitude as a WIT byte stream. Each packet is
// sampled when the previous one has been fully read.
type Telemetry struct {
	ctx      context.Context
	plant    *Plant
	interval time.Duration
	pending  []byte
	started  bool
}

// Telemetry returns a stream that emits one angle packet per interval until
// ctx is cancelled, after which Read returns ctx.Err().
func (p *Plant) Telemetry(ctx context.Context, interval time.Duration) *Telemetry {
	return &Telemetry{ctx: ctx, plant: p, interval: interval}
}

func (t *Telemetry) Read(b []byte) (int, error) {
	if len(t.pending) == 0 {
		if t.started && t.interval > 0 {
			timer := time.NewTimer(t.interval)
			select {
			case <-t.ctx.Done():
				timer.Stop()
				return 0, t.ctx.Err()
			case <-timer.C:
			}
		}
		if err := t.ctx.Err(); err != nil {
			return 0, err
		}
		r := t.plant.Reading()
		pkt := wit.EncodeAngle(r.Roll, r.Pitch, r.Heading, r.Temperature)
		t.pending = pkt[:]
		t.started = true
	}
	n := copy(b, t.pending)
	t.pending = t.pending[n:]
	return n, nil
}

package homing

import (
	"time"

	"github.com/cjeanneret/SolGo/internal/debug"
	"github.com/cjeanneret/SolGo/internal/logic/motion"
)

// Homer owns the homing state of the azimuth axis and the home offset.
// It is not safe for concurrent use; the control loop is its only caller.
type Homer struct {
	timing Timing
	status Status

	offset float64
	homed  bool
	homeAt time.Time

	// OnTransition, if set, is called after every state change.
	OnTransition func(from, to State)
}

func NewHomer(t Timing) *Homer {
	return &Homer{timing: t}
}

// Start begins a new run from any state. A previously committed offset
// stays in effect until this run reaches Complete.
func (h *Homer) Start(now time.Time) {
	debug.Info("Starting azimuth homing sequence")
	h.set(Begin(now, h.timing))
}

// Step evaluates one tick and returns the azimuth command.
func (h *Homer) Step(ev Event) motion.Command {
	next, cmd := Next(h.status, ev, h.timing)
	if next.State == Complete && h.status.State != Complete {
		h.offset = next.Pending
		h.homed = true
		h.homeAt = ev.Now
		debug.Info("Azimuth homed: offset %.2f° after %s", h.offset, next.Run.Elapsed(ev.Now).Round(time.Millisecond))
	}
	if next.State == Faulted && h.status.State != Faulted {
		debug.Error(next.Err)
	}
	h.set(next)
	return cmd
}

// Abort forces an active run into Faulted. The motor must be stopped by the
// caller on the same tick; Step returns Stop from now on.
func (h *Homer) Abort(now time.Time) {
	h.Fail(now, ErrAborted)
}

// Fail ends an active run with err. Without an active run it does nothing.
func (h *Homer) Fail(now time.Time, err error) {
	if h.status.State.Terminal() {
		return
	}
	h.set(h.status.fault(now, err))
	debug.Error(err)
}

func (h *Homer) set(s Status) {
	from := h.status.State
	h.status = s
	if from != s.State {
		debug.Homing(from.String(), s.State.String())
		if h.OnTransition != nil {
			h.OnTransition(from, s.State)
		}
	}
}

// State returns the current phase.
func (h *Homer) State() State {
	return h.status.State
}

// Active reports whether a run is in progress.
func (h *Homer) Active() bool {
	return !h.status.State.Terminal()
}

// Status returns a copy of the current run status.
func (h *Homer) Status() Status {
	return h.status
}

// Err returns the fault of the last run, if it ended Faulted.
func (h *Homer) Err() error {
	if h.status.State != Faulted {
		return nil
	}
	return h.status.Err
}

// Offset returns the committed home offset and whether one exists.
func (h *Homer) Offset() (float64, bool) {
	return h.offset, h.homed
}

// HomedAt returns when the current offset was committed.
func (h *Homer) HomedAt() time.Time {
	return h.homeAt
}

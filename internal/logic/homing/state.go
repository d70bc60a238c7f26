// Package homing finds the azimuth limit switch and records the raw sensor
// heading at that position as the zero reference.
//
// The sequence is a closed set of states driven by a pure transition
// function, Next. Homer wraps it with the state that must survive between
// control ticks: the current Status and the last committed offset.
package homing

import (
	"errors"
	"time"

	"github.com/cjeanneret/SolGo/internal/logic/motion"
	"github.com/cjeanneret/SolGo/internal/logic/safety"
)

// State is a homing phase.
type State int

const (
	Idle          State = iota // never started
	MoveOffSwitch              // back off clockwise until the switch releases
	SeekSwitch                 // run counter-clockwise until the switch closes
	SlowApproach               // back off the switch, then creep back until it holds closed
	SetZero                    // heading captured, committing
	Complete
	Faulted
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case MoveOffSwitch:
		return "move_off_switch"
	case SeekSwitch:
		return "seek_switch"
	case SlowApproach:
		return "slow_approach"
	case SetZero:
		return "set_zero"
	case Complete:
		return "complete"
	case Faulted:
		return "faulted"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further transitions happen without a new Start.
func (s State) Terminal() bool {
	return s == Idle || s == Complete || s == Faulted
}

// Timing bounds every phase of the sequence.
type Timing struct {
	Timeout  time.Duration // whole run
	Backoff  time.Duration // MoveOffSwitch, and the SlowApproach back-off
	Settle   time.Duration // switch must stay closed this long in SlowApproach
	PulseOn  time.Duration // SlowApproach drive pulse
	PulseOff time.Duration // SlowApproach pause between pulses
}

// DefaultTiming matches the reference hardware.
func DefaultTiming() Timing {
	return Timing{
		Timeout:  180 * time.Second,
		Backoff:  2 * time.Second,
		Settle:   500 * time.Millisecond,
		PulseOn:  100 * time.Millisecond,
		PulseOff: 100 * time.Millisecond,
	}
}

// Event is what the controller observes on one tick.
type Event struct {
	Now     time.Time
	Pressed bool    // debounced, logical: true = switch closed
	Heading float64 // raw sensor heading, degrees
}

var (
	// ErrAborted is the fault recorded when a run is cancelled from outside.
	ErrAborted = errors.New("homing aborted")
	// ErrSwitchUnreadable ends a run whose home switch read failed.
	ErrSwitchUnreadable = errors.New("home switch unreadable")
)

// Status is the complete state of one homing run.
type Status struct {
	State   State
	Run     safety.Deadline // global bound, armed at Start
	Entered time.Time       // when State was entered
	Cleared time.Time       // SlowApproach: switch released by the back-off; zero until then
	Closed  time.Time       // SlowApproach: switch closed since; zero while open
	Pending float64         // heading captured on entering SetZero
	Err     error           // set when Faulted
}

// Begin returns the first status of a run started at now.
func Begin(now time.Time, t Timing) Status {
	return Status{
		State:   MoveOffSwitch,
		Run:     safety.NewDeadline(now, t.Timeout),
		Entered: now,
	}
}

func (s Status) enter(next State, now time.Time) Status {
	s.State = next
	s.Entered = now
	s.Cleared = time.Time{}
	s.Closed = time.Time{}
	return s
}

func (s Status) fault(now time.Time, err error) Status {
	s = s.enter(Faulted, now)
	s.Err = err
	return s
}

func (s Status) timeout(now time.Time, op string) Status {
	return s.fault(now, &safety.ControlFault{
		Axis:    motion.Azimuth.String(),
		Op:      op,
		Kind:    safety.ErrTimeout,
		Elapsed: s.Run.Elapsed(now),
	})
}

// Next evaluates one tick. It returns the following status and the command
// for the azimuth motor. Terminal states always command Stop.
func Next(s Status, ev Event, t Timing) (Status, motion.Command) {
	if s.State.Terminal() {
		return s, motion.Stop
	}
	if s.Run.Expired(ev.Now) {
		return s.timeout(ev.Now, "homing"), motion.Stop
	}

	switch s.State {
	case MoveOffSwitch:
		if !ev.Pressed {
			return s.enter(SeekSwitch, ev.Now), motion.Backward
		}
		if safety.Expired(s.Entered, ev.Now, t.Backoff) {
			return s.timeout(ev.Now, "homing backoff"), motion.Stop
		}
		return s, motion.Forward

	case SeekSwitch:
		if ev.Pressed {
			return s.enter(SlowApproach, ev.Now), motion.Forward
		}
		return s, motion.Backward

	case SlowApproach:
		// The fast seek overshoots the switch: back off until it opens,
		// then return to it in pulses.
		if s.Cleared.IsZero() {
			if ev.Pressed {
				if safety.Expired(s.Entered, ev.Now, t.Backoff) {
					return s.timeout(ev.Now, "homing approach backoff"), motion.Stop
				}
				return s, motion.Forward
			}
			s.Cleared = ev.Now
			return s, pulse(s.Cleared, ev.Now, t)
		}
		if !ev.Pressed {
			s.Closed = time.Time{}
			return s, pulse(s.Cleared, ev.Now, t)
		}
		if s.Closed.IsZero() {
			s.Closed = ev.Now
			return s, motion.Stop
		}
		if ev.Now.Sub(s.Closed) >= t.Settle {
			n := s.enter(SetZero, ev.Now)
			n.Pending = ev.Heading
			return n, motion.Stop
		}
		return s, motion.Stop

	case SetZero:
		return s.enter(Complete, ev.Now), motion.Stop
	}
	return s, motion.Stop
}

// pulse runs the motor backward for PulseOn out of every PulseOn+PulseOff,
// which is how a run/stop motor approaches at reduced speed.
func pulse(since, now time.Time, t Timing) motion.Command {
	period := t.PulseOn + t.PulseOff
	if period <= 0 || t.PulseOff <= 0 {
		return motion.Backward
	}
	if now.Sub(since)%period < t.PulseOn {
		return motion.Backward
	}
	return motion.Stop
}

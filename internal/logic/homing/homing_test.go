package homing

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/cjeanneret/SolGo/internal/logic/motion"
	"github.com/cjeanneret/SolGo/internal/logic/safety"
)

var t0 = time.Unix(1_700_000_000, 0)

func at(d time.Duration) time.Time { return t0.Add(d) }

func ev(d time.Duration, pressed bool, heading float64) Event {
	return Event{Now: at(d), Pressed: pressed, Heading: heading}
}

func TestNext_FullSequence(t *testing.T) {
	timing := DefaultTiming()
	s := Begin(t0, timing)
	var cmd motion.Command

	// Switch initially pressed: back off clockwise.
	s, cmd = Next(s, ev(0, true, 240), timing)
	if s.State != MoveOffSwitch || cmd != motion.Forward {
		t.Fatalf("pressed at start: state=%v cmd=%v, want move_off_switch/forward", s.State, cmd)
	}

	// Released: seek counter-clockwise.
	s, cmd = Next(s, ev(500*time.Millisecond, false, 241), timing)
	if s.State != SeekSwitch || cmd != motion.Backward {
		t.Fatalf("released: state=%v cmd=%v, want seek_switch/backward", s.State, cmd)
	}
	s, cmd = Next(s, ev(time.Second, false, 240), timing)
	if s.State != SeekSwitch || cmd != motion.Backward {
		t.Fatalf("still seeking: state=%v cmd=%v", s.State, cmd)
	}

	// Fast seek hits the switch: slow approach starts by backing off.
	s, cmd = Next(s, ev(2*time.Second, true, 236.8), timing)
	if s.State != SlowApproach || cmd != motion.Forward {
		t.Fatalf("found switch: state=%v cmd=%v, want slow_approach/forward", s.State, cmd)
	}

	// Released: creep back in pulses.
	s, cmd = Next(s, ev(2*time.Second+200*time.Millisecond, false, 237.6), timing)
	if s.State != SlowApproach || cmd != motion.Backward {
		t.Fatalf("backed off: state=%v cmd=%v, want slow_approach/backward", s.State, cmd)
	}

	// Pressed again: stopped while the settle window runs.
	s, cmd = Next(s, ev(2*time.Second+400*time.Millisecond, true, 237.2), timing)
	if s.State != SlowApproach || cmd != motion.Stop {
		t.Fatalf("switch closed again: state=%v cmd=%v, want slow_approach/stop", s.State, cmd)
	}
	s, _ = Next(s, ev(2*time.Second+700*time.Millisecond, true, 237.1), timing)
	if s.State != SlowApproach {
		t.Fatalf("inside settle window: state=%v, want slow_approach", s.State)
	}

	// Settle window elapsed with the switch held: SetZero captures heading.
	s, cmd = Next(s, ev(2*time.Second+900*time.Millisecond, true, 237), timing)
	if s.State != SetZero || cmd != motion.Stop {
		t.Fatalf("settled: state=%v cmd=%v, want set_zero/stop", s.State, cmd)
	}
	if s.Pending != 237 {
		t.Errorf("pending offset = %v, want 237", s.Pending)
	}

	s, cmd = Next(s, ev(3*time.Second, true, 236), timing)
	if s.State != Complete || cmd != motion.Stop {
		t.Fatalf("state=%v cmd=%v, want complete/stop", s.State, cmd)
	}

	s, cmd = Next(s, ev(time.Hour, false, 0), timing)
	if s.State != Complete || cmd != motion.Stop {
		t.Errorf("complete is terminal: state=%v cmd=%v", s.State, cmd)
	}
}

func TestNext_AlreadyReleasedAdvancesImmediately(t *testing.T) {
	timing := DefaultTiming()
	s := Begin(t0, timing)
	s, cmd := Next(s, ev(0, false, 10), timing)
	if s.State != SeekSwitch {
		t.Fatalf("state = %v, want seek_switch on the first evaluation", s.State)
	}
	if cmd == motion.Forward {
		t.Error("no backing-off motion expected when the switch is already released")
	}
}

func TestNext_BackoffTimeout(t *testing.T) {
	timing := DefaultTiming()
	s := Begin(t0, timing)
	s, _ = Next(s, ev(time.Second, true, 0), timing)
	s, _ = Next(s, ev(2*time.Second, true, 0), timing)
	if s.State != MoveOffSwitch {
		t.Fatalf("at the backoff bound: state=%v, want move_off_switch", s.State)
	}
	s, cmd := Next(s, ev(2*time.Second+time.Millisecond, true, 0), timing)
	if s.State != Faulted || cmd != motion.Stop {
		t.Fatalf("state=%v cmd=%v, want faulted/stop", s.State, cmd)
	}
	if !errors.Is(s.Err, safety.ErrTimeout) {
		t.Errorf("err = %v, want timeout", s.Err)
	}
}

func TestNext_GlobalTimeoutFromEveryState(t *testing.T) {
	timing := DefaultTiming()
	late := timing.Timeout + time.Millisecond
	for _, st := range []State{MoveOffSwitch, SeekSwitch, SlowApproach, SetZero} {
		t.Run(st.String(), func(t *testing.T) {
			s := Begin(t0, timing)
			s.State = st
			s.Entered = at(late - time.Millisecond)
			s, cmd := Next(s, ev(late, false, 0), timing)
			if s.State != Faulted || cmd != motion.Stop {
				t.Fatalf("state=%v cmd=%v, want faulted/stop", s.State, cmd)
			}
			var cf *safety.ControlFault
			if !errors.As(s.Err, &cf) || cf.Kind != safety.ErrTimeout {
				t.Errorf("err = %v, want a timeout control fault", s.Err)
			}
		})
	}
}

func TestNext_SettleRejectsBounce(t *testing.T) {
	timing := DefaultTiming()
	s := Status{State: SlowApproach, Run: safety.NewDeadline(t0, timing.Timeout), Entered: t0, Cleared: t0, Closed: t0}

	// Bounce open 400 ms into the window.
	s, _ = Next(s, ev(400*time.Millisecond, false, 0), timing)
	if s.State != SlowApproach || !s.Closed.IsZero() {
		t.Fatalf("bounce should reset the window: state=%v closed=%v", s.State, s.Closed)
	}
	// Closed again at 450 ms; 600 ms is only 150 ms of stable contact.
	s, _ = Next(s, ev(450*time.Millisecond, true, 0), timing)
	s, _ = Next(s, ev(600*time.Millisecond, true, 0), timing)
	if s.State != SlowApproach {
		t.Fatalf("premature SetZero after a bounce: state=%v", s.State)
	}
	s, _ = Next(s, ev(950*time.Millisecond, true, 42), timing)
	if s.State != SetZero || s.Pending != 42 {
		t.Fatalf("state=%v pending=%v, want set_zero/42", s.State, s.Pending)
	}
}

func TestNext_SlowApproachPulses(t *testing.T) {
	timing := DefaultTiming()
	s := Status{State: SlowApproach, Run: safety.NewDeadline(t0, timing.Timeout), Entered: t0, Cleared: t0}

	cases := []struct {
		d    time.Duration
		want motion.Command
	}{
		{0, motion.Backward},
		{50 * time.Millisecond, motion.Backward},
		{100 * time.Millisecond, motion.Stop},
		{150 * time.Millisecond, motion.Stop},
		{200 * time.Millisecond, motion.Backward},
	}
	for _, tc := range cases {
		_, cmd := Next(s, ev(tc.d, false, 0), timing)
		if cmd != tc.want {
			t.Errorf("at %v: cmd=%v, want %v", tc.d, cmd, tc.want)
		}
	}
}

// The switch is pressed by the fast seek; the offset must come from a second,
// pulsed approach, not from the overshoot position.
func TestNext_SlowApproachReapproachesSwitch(t *testing.T) {
	timing := DefaultTiming()
	s := Begin(t0, timing)
	s, _ = Next(s, ev(0, false, 30), timing)

	tick := 50 * time.Millisecond
	now := time.Second
	s, _ = Next(s, ev(now, true, 14), timing)
	if s.State != SlowApproach {
		t.Fatalf("state = %v, want slow_approach", s.State)
	}

	var forward, backward int
	pressed := true
	for i := 0; i < 40 && s.State == SlowApproach; i++ {
		now += tick
		switch {
		case i == 3:
			pressed = false
		case i == 12:
			pressed = true
		}
		var cmd motion.Command
		s, cmd = Next(s, ev(now, pressed, 15), timing)
		if s.State != SlowApproach {
			break
		}
		switch cmd {
		case motion.Forward:
			forward++
		case motion.Backward:
			backward++
		}
	}
	if forward == 0 {
		t.Error("no back-off away from the switch before the slow approach")
	}
	if backward == 0 {
		t.Error("no backward pulses in slow approach before set_zero")
	}
	if s.State != SetZero || s.Pending != 15 {
		t.Fatalf("state=%v pending=%v, want set_zero/15", s.State, s.Pending)
	}
}

func TestNext_ApproachBackoffTimeout(t *testing.T) {
	timing := DefaultTiming()
	s := Status{State: SlowApproach, Run: safety.NewDeadline(t0, timing.Timeout), Entered: t0}

	s, cmd := Next(s, ev(timing.Backoff, true, 0), timing)
	if s.State != SlowApproach || cmd != motion.Forward {
		t.Fatalf("at the backoff bound: state=%v cmd=%v, want slow_approach/forward", s.State, cmd)
	}
	s, cmd = Next(s, ev(timing.Backoff+time.Millisecond, true, 0), timing)
	if s.State != Faulted || cmd != motion.Stop {
		t.Fatalf("state=%v cmd=%v, want faulted/stop", s.State, cmd)
	}
	if !errors.Is(s.Err, safety.ErrTimeout) {
		t.Errorf("err = %v, want timeout", s.Err)
	}
}

func TestNext_TerminalStates(t *testing.T) {
	for _, st := range []State{Idle, Complete, Faulted} {
		s := Status{State: st}
		n, cmd := Next(s, ev(0, true, 0), DefaultTiming())
		if n.State != st || cmd != motion.Stop {
			t.Errorf("%v: state=%v cmd=%v, want unchanged/stop", st, n.State, cmd)
		}
	}
}

// runToComplete drives h through a clean run that settles at heading.
func runToComplete(t *testing.T, h *Homer, start time.Duration, heading float64) {
	t.Helper()
	h.Start(at(start))
	h.Step(ev(start, false, heading+5))
	h.Step(ev(start+time.Second, true, heading-1))
	h.Step(ev(start+1100*time.Millisecond, false, heading+1))
	h.Step(ev(start+1500*time.Millisecond, true, heading))
	h.Step(ev(start+2*time.Second, true, heading))
	h.Step(ev(start+2*time.Second+100*time.Millisecond, true, heading))
	if h.State() != Complete {
		t.Fatalf("state = %v, want complete", h.State())
	}
}

func TestHomer_CommitsOffset(t *testing.T) {
	h := NewHomer(DefaultTiming())
	if _, ok := h.Offset(); ok {
		t.Fatal("new homer must not report an offset")
	}
	if h.State() != Idle || h.Active() {
		t.Fatalf("new homer state = %v", h.State())
	}

	var transitions []State
	h.OnTransition = func(from, to State) { transitions = append(transitions, to) }

	runToComplete(t, h, 0, 237)
	off, ok := h.Offset()
	if !ok || off != 237 {
		t.Errorf("offset = %v,%v, want 237,true", off, ok)
	}
	want := []State{MoveOffSwitch, SeekSwitch, SlowApproach, SetZero, Complete}
	if len(transitions) != len(want) {
		t.Fatalf("transitions = %v, want %v", transitions, want)
	}
	for i := range want {
		if transitions[i] != want[i] {
			t.Errorf("transition %d = %v, want %v", i, transitions[i], want[i])
		}
	}
}

func TestHomer_RehomeKeepsOldOffsetUntilCommit(t *testing.T) {
	h := NewHomer(DefaultTiming())
	runToComplete(t, h, 0, 237)

	h.Start(at(time.Minute))
	if off, ok := h.Offset(); !ok || off != 237 {
		t.Fatalf("offset during re-homing = %v,%v, want 237,true", off, ok)
	}
	if !h.Active() {
		t.Fatal("re-homing should be active")
	}

	runToComplete(t, h, 2*time.Minute, 100)
	if off, _ := h.Offset(); off != 100 {
		t.Errorf("offset = %v, want 100", off)
	}
}

func TestHomer_AbortKeepsOffset(t *testing.T) {
	h := NewHomer(DefaultTiming())
	runToComplete(t, h, 0, 237)

	h.Start(at(time.Minute))
	h.Step(ev(time.Minute, false, 0))
	h.Abort(at(time.Minute + time.Second))

	if h.State() != Faulted {
		t.Fatalf("state = %v, want faulted", h.State())
	}
	if !errors.Is(h.Err(), ErrAborted) {
		t.Errorf("err = %v, want aborted", h.Err())
	}
	if cmd := h.Step(ev(time.Minute+2*time.Second, true, 0)); cmd != motion.Stop {
		t.Errorf("cmd after abort = %v, want stop", cmd)
	}
	if off, ok := h.Offset(); !ok || off != 237 {
		t.Errorf("offset = %v,%v, want 237 kept", off, ok)
	}
}

func TestHomer_TimeoutKeepsOffset(t *testing.T) {
	h := NewHomer(DefaultTiming())
	runToComplete(t, h, 0, 50)

	h.Start(at(time.Hour))
	h.Step(ev(time.Hour, false, 0))
	h.Step(ev(time.Hour+181*time.Second, false, 0))
	if h.State() != Faulted {
		t.Fatalf("state = %v, want faulted", h.State())
	}
	if !errors.Is(h.Err(), safety.ErrTimeout) {
		t.Errorf("err = %v, want timeout", h.Err())
	}
	if off, _ := h.Offset(); off != 50 {
		t.Errorf("offset = %v, want 50 kept", off)
	}
}

func TestHomer_FailKeepsCause(t *testing.T) {
	h := NewHomer(DefaultTiming())
	h.Start(t0)
	h.Step(ev(0, false, 0))

	cause := errors.New("gpio read failed")
	h.Fail(at(time.Second), fmt.Errorf("%w: %w", ErrSwitchUnreadable, cause))
	if h.State() != Faulted {
		t.Fatalf("state = %v, want faulted", h.State())
	}
	if !errors.Is(h.Err(), ErrSwitchUnreadable) || !errors.Is(h.Err(), cause) {
		t.Errorf("err = %v, want switch fault wrapping the read error", h.Err())
	}

	h.Fail(at(2*time.Second), ErrAborted)
	if errors.Is(h.Err(), ErrAborted) {
		t.Error("Fail on a finished run must not replace its fault")
	}
}

func TestHomer_AbortWhenIdleIsNoop(t *testing.T) {
	h := NewHomer(DefaultTiming())
	h.Abort(t0)
	if h.State() != Idle || h.Err() != nil {
		t.Errorf("state=%v err=%v, want idle/nil", h.State(), h.Err())
	}
}

// Package tracking decides, once per control tick, what both motors should
// do: the homing sequence owns the azimuth while it runs, otherwise each
// axis chases its target with bang-bang steps under a tick budget and a
// wall-clock timeout.
package tracking

import (
	"errors"
	"fmt"
	"time"

	"go.uber.org/multierr"

	"github.com/cjeanneret/SolGo/internal/debug"
	"github.com/cjeanneret/SolGo/internal/logic/angle"
	"github.com/cjeanneret/SolGo/internal/logic/homing"
	"github.com/cjeanneret/SolGo/internal/logic/motion"
	"github.com/cjeanneret/SolGo/internal/logic/safety"
	"github.com/cjeanneret/SolGo/internal/wit"
)

var (
	ErrNotHomed      = errors.New("azimuth not homed")
	ErrHoming        = errors.New("homing in progress")
	ErrEmergencyStop = errors.New("emergency stop active")
	ErrNoReading     = errors.New("no sensor reading")
)

// Limits bound every tracking move.
type Limits struct {
	AzimuthTolerance   float64 // degrees
	ElevationTolerance float64 // degrees
	ElevationMin       float64
	ElevationMax       float64
	MaxTicks           int           // driving ticks before a move counts as stalled
	MotorTimeout       time.Duration // wall-clock bound of one move
}

func DefaultLimits() Limits {
	return Limits{
		AzimuthTolerance:   1,
		ElevationTolerance: 1,
		ElevationMin:       0,
		ElevationMax:       90,
		MaxTicks:           100,
		MotorTimeout:       120 * time.Second,
	}
}

// Commands is the decision of one tick.
type Commands struct {
	Azimuth   motion.Command
	Elevation motion.Command
}

// Get returns the command for axis.
func (c Commands) Get(axis motion.Axis) motion.Command {
	if axis == Elevation {
		return c.Elevation
	}
	return c.Azimuth
}

// Axis aliases, so callers only import tracking for the common cases.
const (
	Azimuth   = motion.Azimuth
	Elevation = motion.Elevation
)

type move struct {
	target motion.Target
	active bool
	ticks  int
	run    safety.Deadline
}

// Tracker is the control-loop state. It is not safe for concurrent use.
type Tracker struct {
	limits Limits
	homer  *homing.Homer
	moves  [2]move
	last   Commands
	estop  bool

	// OnFault, if set, is called once for every tracking or homing fault.
	OnFault func(err error)
}

func New(l Limits, h *homing.Homer) *Tracker {
	return &Tracker{limits: l, homer: h}
}

// Homer returns the homing controller driving the azimuth.
func (t *Tracker) Homer() *homing.Homer {
	return t.homer
}

// SetAzimuth starts a move to target degrees relative to home.
func (t *Tracker) SetAzimuth(target float64, now time.Time) error {
	switch {
	case t.estop:
		return ErrEmergencyStop
	case t.homer.Active():
		return ErrHoming
	}
	if _, ok := t.homer.Offset(); !ok {
		return ErrNotHomed
	}
	target = angle.Normalize(target)
	t.arm(motion.Azimuth, target, t.limits.AzimuthTolerance, now)
	return nil
}

// SetElevation starts a move to target, clamped to the elevation limits.
// It returns the angle actually targeted.
func (t *Tracker) SetElevation(target float64, now time.Time) (float64, error) {
	if t.estop {
		return 0, ErrEmergencyStop
	}
	c := safety.Constrain(target, t.limits.ElevationMin, t.limits.ElevationMax)
	if c != target {
		debug.Verbose("Elevation target %.2f° clamped to %.2f°", target, c)
	}
	t.arm(motion.Elevation, c, t.limits.ElevationTolerance, now)
	return c, nil
}

func (t *Tracker) arm(axis motion.Axis, target, tol float64, now time.Time) {
	t.moves[axis] = move{
		target: motion.Target{Axis: axis, Angle: target, Tolerance: tol},
		active: true,
		run:    safety.NewDeadline(now, t.limits.MotorTimeout),
	}
	debug.Live("%s target %.2f° (±%.2f°)", axis, target, tol)
}

// Home starts the homing sequence and cancels any azimuth move.
func (t *Tracker) Home(now time.Time) error {
	if t.estop {
		return ErrEmergencyStop
	}
	t.moves[motion.Azimuth] = move{}
	t.homer.Start(now)
	return nil
}

// EmergencyStop cancels every move and aborts homing. Tick returns Stop for
// both axes until ResetEmergencyStop.
func (t *Tracker) EmergencyStop(now time.Time) {
	debug.Info("EMERGENCY STOP")
	t.estop = true
	t.moves = [2]move{}
	if t.homer.Active() {
		t.homer.Abort(now)
		t.report(t.homer.Err())
	}
}

// SwitchFault ends an active homing run because the home switch could not
// be read. It returns the homing fault, or nil when no run was active.
func (t *Tracker) SwitchFault(now time.Time, err error) error {
	if !t.homer.Active() {
		return nil
	}
	t.homer.Fail(now, fmt.Errorf("%w: %w", homing.ErrSwitchUnreadable, err))
	f := t.homer.Err()
	t.report(f)
	return f
}

func (t *Tracker) ResetEmergencyStop() {
	if t.estop {
		debug.Info("Emergency stop cleared")
	}
	t.estop = false
}

// Tick evaluates both axes against reading. Faults stop the affected axis
// and are returned combined; the other axis is unaffected.
func (t *Tracker) Tick(now time.Time, reading wit.Reading, pressed bool) (Commands, error) {
	var cmds Commands
	if t.estop {
		t.last = cmds
		return cmds, nil
	}

	var errs error
	if !reading.Valid {
		// Without a heading only the homing deadline can still advance.
		if t.homer.Active() && t.homer.Status().Run.Expired(now) {
			_, err := t.stepHomer(homing.Event{Now: now, Pressed: pressed})
			errs = multierr.Append(errs, err)
		}
		t.last = cmds
		return cmds, multierr.Append(errs, ErrNoReading)
	}

	if t.homer.Active() {
		cmd, err := t.stepHomer(homing.Event{Now: now, Pressed: pressed, Heading: reading.Heading})
		cmds.Azimuth = cmd
		errs = multierr.Append(errs, err)
	} else if off, ok := t.homer.Offset(); ok {
		cmd, err := t.drive(motion.Azimuth, angle.ApplyOffset(reading.Heading, off), now)
		cmds.Azimuth = cmd
		errs = multierr.Append(errs, err)
	}

	cmd, err := t.drive(motion.Elevation, reading.Pitch, now)
	cmds.Elevation = cmd
	errs = multierr.Append(errs, err)

	t.last = cmds
	return cmds, errs
}

func (t *Tracker) drive(axis motion.Axis, current float64, now time.Time) (motion.Command, error) {
	m := &t.moves[axis]
	if !m.active {
		return motion.Stop, nil
	}
	cmd := motion.StepTarget(current, m.target)
	if cmd == motion.Stop {
		debug.Live("%s reached %.2f° (target %.2f°) in %d ticks", axis, current, m.target.Angle, m.ticks)
		m.active = false
		return motion.Stop, nil
	}
	if m.run.Expired(now) {
		return motion.Stop, t.fault(m, &safety.ControlFault{
			Axis: axis.String(), Op: "track", Kind: safety.ErrTimeout,
			Ticks: m.ticks, Elapsed: m.run.Elapsed(now),
		})
	}
	if m.ticks >= t.limits.MaxTicks {
		return motion.Stop, t.fault(m, &safety.ControlFault{
			Axis: axis.String(), Op: "track", Kind: safety.ErrStalled,
			Ticks: m.ticks, Elapsed: m.run.Elapsed(now),
		})
	}
	m.ticks++
	return cmd, nil
}

// stepHomer advances an active run. A run that faults on this tick returns
// its error once.
func (t *Tracker) stepHomer(ev homing.Event) (motion.Command, error) {
	cmd := t.homer.Step(ev)
	err := t.homer.Err()
	t.report(err)
	return cmd, err
}

func (t *Tracker) fault(m *move, f *safety.ControlFault) error {
	m.active = false
	debug.Error(f)
	t.report(f)
	return f
}

func (t *Tracker) report(err error) {
	if err != nil && t.OnFault != nil {
		t.OnFault(err)
	}
}

// AxisStatus is the tracking state of one axis.
type AxisStatus struct {
	Target  float64 `json:"target"`
	Active  bool    `json:"active"`
	Ticks   int     `json:"ticks"`
	Command string  `json:"command"`
}

// Status is a point-in-time view of the tracker.
type Status struct {
	EmergencyStop bool       `json:"emergency_stop"`
	Homing        string     `json:"homing"`
	Homed         bool       `json:"homed"`
	HomeOffset    float64    `json:"home_offset"`
	HomedAt       time.Time  `json:"homed_at"`
	HomingError   string     `json:"homing_error,omitempty"`
	Azimuth       AxisStatus `json:"azimuth"`
	Elevation     AxisStatus `json:"elevation"`
}

func (t *Tracker) Status() Status {
	off, homed := t.homer.Offset()
	s := Status{
		EmergencyStop: t.estop,
		Homing:        t.homer.State().String(),
		Homed:         homed,
		HomeOffset:    off,
		HomedAt:       t.homer.HomedAt(),
		Azimuth:       t.axisStatus(motion.Azimuth),
		Elevation:     t.axisStatus(motion.Elevation),
	}
	if err := t.homer.Err(); err != nil {
		s.HomingError = err.Error()
	}
	return s
}

func (t *Tracker) axisStatus(axis motion.Axis) AxisStatus {
	m := t.moves[axis]
	return AxisStatus{
		Target:  m.target.Angle,
		Active:  m.active,
		Ticks:   m.ticks,
		Command: t.last.Get(axis).String(),
	}
}

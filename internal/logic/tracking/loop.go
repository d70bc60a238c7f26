package tracking

import (
	"context"
	"errors"
	"time"

	"go.uber.org/multierr"

	"github.com/cjeanneret/SolGo/internal/debug"
	"github.com/cjeanneret/SolGo/internal/logic/homing"
	"github.com/cjeanneret/SolGo/internal/logic/motion"
	"github.com/cjeanneret/SolGo/internal/logic/safety"
	"github.com/cjeanneret/SolGo/internal/wit"
)

// ReadingSource yields the most recent sensor attitude without blocking.
type ReadingSource interface {
	Latest() (wit.Reading, bool)
}

// SwitchSource reports the logical state of the home switch.
type SwitchSource interface {
	Pressed() (bool, error)
}

// Loop connects the tracker to the sensor, the home switch and the motors.
type Loop struct {
	tracker *Tracker
	motion  *motion.Controller
	sensor  ReadingSource
	home    SwitchSource
	clock   safety.Clock

	// AfterTick, if set, is called after the commands of a tick have been
	// applied, with the reading used and the error of that tick.
	AfterTick func(r wit.Reading, cmds Commands, err error)
}

func NewLoop(t *Tracker, m *motion.Controller, sensor ReadingSource, home SwitchSource, clock safety.Clock) *Loop {
	if clock == nil {
		clock = safety.SystemClock{}
	}
	return &Loop{tracker: t, motion: m, sensor: sensor, home: home, clock: clock}
}

// Tracker returns the tracker driven by the loop.
func (l *Loop) Tracker() *Tracker {
	return l.tracker
}

// Tick runs one control evaluation and applies its commands. A switch read
// failure faults an active homing run before the tracker is evaluated, so
// the azimuth is stopped instead of seeking blind.
func (l *Loop) Tick() (Commands, error) {
	now := l.clock.Now()
	r, ok := l.sensor.Latest()
	if !ok {
		r = wit.Reading{}
	}

	pressed, swErr := l.home.Pressed()
	if swErr != nil {
		pressed = false
		if f := l.tracker.SwitchFault(now, swErr); f != nil {
			swErr = f
		}
	}
	cmds, err := l.tracker.Tick(now, r, pressed)
	err = multierr.Append(swErr, err)

	err = multierr.Append(err, l.motion.Apply(motion.Azimuth, cmds.Azimuth))
	err = multierr.Append(err, l.motion.Apply(motion.Elevation, cmds.Elevation))

	if l.AfterTick != nil {
		l.AfterTick(r, cmds, err)
	}
	return cmds, err
}

// logTickErrors logs what the tracker has not already reported.
func logTickErrors(err error) {
	for _, e := range multierr.Errors(err) {
		var f *safety.ControlFault
		switch {
		case errors.Is(e, ErrNoReading):
			debug.Verbose("Waiting for sensor data")
		case errors.As(e, &f), errors.Is(e, homing.ErrAborted), errors.Is(e, homing.ErrSwitchUnreadable):
		default:
			debug.Error(e)
		}
	}
}

// Run ticks every interval until ctx is cancelled, then stops both motors.
// Tick errors are logged; they never end the loop.
func (l *Loop) Run(ctx context.Context, interval time.Duration) error {
	debug.Section("Control loop")
	debug.Value("Tick interval", interval)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			debug.Info("Control loop stopping")
			return l.motion.StopAll()
		case <-ticker.C:
			if _, err := l.Tick(); err != nil {
				logTickErrors(err)
			}
		}
	}
}

package motion

import (
	"fmt"

	"go.uber.org/multierr"

	"github.com/cjeanneret/SolGo/internal/debug"
)

// Actuator is anything that can carry out a Command on one axis:
// an H-bridge driven motor, a simulated axis, or both.
type Actuator interface {
	Apply(cmd Command) error
}

// Controller routes per-axis commands to the azimuth and elevation motors.
// It's the layer between the tracking logic and the motor drivers.
type Controller struct {
	actuators [2]Actuator
	last      [2]Command
}

func NewController(azimuth, elevation Actuator) *Controller {
	return &Controller{
		actuators: [2]Actuator{azimuth, elevation},
	}
}

// Apply sends cmd to the motor of axis. Repeated commands are still sent so
// a driver that missed one recovers on the next tick.
func (c *Controller) Apply(axis Axis, cmd Command) error {
	if axis != Azimuth && axis != Elevation {
		return fmt.Errorf("unknown axis %d", axis)
	}
	if cmd != c.last[axis] {
		debug.Command(axis.String(), cmd.String())
	}
	if err := c.actuators[axis].Apply(cmd); err != nil {
		return fmt.Errorf("%s motor: %w", axis, err)
	}
	c.last[axis] = cmd
	return nil
}

// Last returns the command most recently applied to axis.
func (c *Controller) Last(axis Axis) Command {
	return c.last[axis]
}

// StopAll stops both motors. Both are always attempted, even if the first fails.
func (c *Controller) StopAll() error {
	var err error
	err = multierr.Append(err, c.Apply(Azimuth, Stop))
	err = multierr.Append(err, c.Apply(Elevation, Stop))
	return err
}

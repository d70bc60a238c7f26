package motion

import (
	"math"

	"github.com/cjeanneret/SolGo/internal/logic/angle"
)

// Command is the only output of a control decision. Motors are run/stop
// with a direction; there is no speed modulation.
type Command int

const (
	Stop Command = iota
	Forward
	Backward
)

func (c Command) String() string {
	switch c {
	case Stop:
		return "stop"
	case Forward:
		return "forward"
	case Backward:
		return "backward"
	default:
		return "invalid"
	}
}

// Axis identifies one of the two tracker axes.
type Axis int

const (
	Azimuth Axis = iota
	Elevation
)

func (a Axis) String() string {
	if a == Elevation {
		return "elevation"
	}
	return "azimuth"
}

// Target is where an axis should point and how close is close enough.
type Target struct {
	Axis      Axis
	Angle     float64 // degrees
	Tolerance float64 // degrees
}

// Step decides the command for one control tick. It keeps no state: call it
// again every tick with the latest measured angle.
//
// Stop when |error| < tolerance, Forward when the short way round is
// positive (clockwise), Backward otherwise.
//
// There is no step size argument: the decision does not depend on how far
// the mount moves per tick. A mount that moves more than twice the tolerance
// per tick hunts around the target without ever stopping, so callers bound
// every move (see the tracking tick budget).
func Step(current, target, tolerance float64) Command {
	e := angle.ShortestError(current, target)
	switch {
	case math.Abs(e) < tolerance:
		return Stop
	case e > 0:
		return Forward
	default:
		return Backward
	}
}

// StepTarget is Step for a Target.
func StepTarget(current float64, t Target) Command {
	return Step(current, t.Angle, t.Tolerance)
}

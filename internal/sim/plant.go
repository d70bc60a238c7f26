// Package sim is a two-axis mount that moves a fixed step per control tick.
// It stands in for the motors, the home switch and the inclinometer when
// the program runs with mock GPIO, and drives the end-to-end tests.
package sim

import (
	"sync"

	"github.com/cjeanneret/SolGo/internal/logic/angle"
	"github.com/cjeanneret/SolGo/internal/logic/motion"
	"github.com/cjeanneret/SolGo/internal/wit"
)

// Config is the initial state of the simulated mount.
type Config struct {
	StepSize    float64 // degrees moved per Advance while a motor runs
	Heading     float64 // raw sensor heading, degrees
	Pitch       float64 // degrees
	SwitchAt    float64 // raw heading at the centre of the home switch
	SwitchWidth float64 // angular width over which the switch reads closed
	Temperature float64 // °C reported in telemetry
}

// DefaultConfig is a mount parked off the switch.
func DefaultConfig() Config {
	return Config{
		StepSize:    0.5,
		Heading:     40,
		Pitch:       20,
		SwitchAt:    15,
		SwitchWidth: 2,
		Temperature: 25,
	}
}

// Plant is safe for concurrent use: the control loop applies commands while
// the telemetry reader samples the attitude.
type Plant struct {
	mu      sync.Mutex
	cfg     Config
	heading float64
	pitch   float64
	cmds    [2]motion.Command
	stalled [2]bool
	ticks   int
}

func NewPlant(cfg Config) *Plant {
	return &Plant{cfg: cfg, heading: angle.Normalize(cfg.Heading), pitch: cfg.Pitch}
}

// Actuator returns the motor of axis. If drive is not nil every command is
// passed on to it first, so a real or mock H-bridge sees the same traffic.
func (p *Plant) Actuator(axis motion.Axis, drive motion.Actuator) motion.Actuator {
	return &axisActuator{plant: p, axis: axis, drive: drive}
}

type axisActuator struct {
	plant *Plant
	axis  motion.Axis
	drive motion.Actuator
}

func (a *axisActuator) Apply(cmd motion.Command) error {
	if a.drive != nil {
		if err := a.drive.Apply(cmd); err != nil {
			return err
		}
	}
	a.plant.mu.Lock()
	a.plant.cmds[a.axis] = cmd
	a.plant.mu.Unlock()
	return nil
}

// Advance moves every running, non-stalled axis by one step.
// Forward raises the heading (clockwise) and the pitch.
func (p *Plant) Advance() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ticks++
	if !p.stalled[motion.Azimuth] {
		p.heading = angle.Normalize(p.heading + p.delta(p.cmds[motion.Azimuth]))
	}
	if !p.stalled[motion.Elevation] {
		p.pitch += p.delta(p.cmds[motion.Elevation])
	}
}

func (p *Plant) delta(cmd motion.Command) float64 {
	switch cmd {
	case motion.Forward:
		return p.cfg.StepSize
	case motion.Backward:
		return -p.cfg.StepSize
	}
	return 0
}

// Stall freezes or releases an axis. Commands are still accepted.
func (p *Plant) Stall(axis motion.Axis, stalled bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stalled[axis] = stalled
}

// Pressed reports whether the azimuth sits inside the switch window.
func (p *Plant) Pressed() (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	d := angle.ShortestError(p.heading, p.cfg.SwitchAt)
	if d < 0 {
		d = -d
	}
	return d <= p.cfg.SwitchWidth/2, nil
}

// Reading returns the attitude as the sensor would report it.
func (p *Plant) Reading() wit.Reading {
	p.mu.Lock()
	defer p.mu.Unlock()
	return wit.Reading{
		Type:        wit.TypeAngle,
		Pitch:       p.pitch,
		Heading:     p.heading,
		Temperature: p.cfg.Temperature,
		Valid:       true,
	}
}

// Latest is Reading in the shape of a live sensor, for running the
// control loop without telemetry framing.
func (p *Plant) Latest() (wit.Reading, bool) {
	return p.Reading(), true
}

// Command returns the command currently applied to axis.
func (p *Plant) Command(axis motion.Axis) motion.Command {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cmds[axis]
}

// Ticks returns the number of Advance calls.
func (p *Plant) Ticks() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ticks
}

// Set teleports the mount, for tests.
func (p *Plant) Set(heading, pitch float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.heading = angle.Normalize(heading)
	p.pitch = pitch
}

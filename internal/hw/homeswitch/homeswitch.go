// Package homeswitch reads the azimuth home limit switch.
//
// The switch is normally open between the GPIO and ground with the internal
// pull-up enabled: released reads HIGH, pressed reads LOW.
package homeswitch

import (
	"fmt"

	"github.com/cjeanneret/SolGo/internal/hw/gpio"
)

// Switch converts the electrical level into a logical "pressed" flag.
type Switch struct {
	gpio      gpio.Driver
	pin       int
	activeLow bool
}

// New configures pin as a pull-up input for an active-low switch.
func New(g gpio.Driver, pin int) (*Switch, error) {
	if err := g.SetupPin(pin, gpio.InputPullUp); err != nil {
		return nil, fmt.Errorf("home switch: setup pin %d: %w", pin, err)
	}
	return &Switch{gpio: g, pin: pin, activeLow: true}, nil
}

// Pressed reports whether the switch is closed.
func (s *Switch) Pressed() (bool, error) {
	l, err := s.gpio.ReadPin(s.pin)
	if err != nil {
		return false, fmt.Errorf("home switch: read pin %d: %w", s.pin, err)
	}
	if s.activeLow {
		return l == gpio.Low, nil
	}
	return l == gpio.High, nil
}

// Debouncer reports a level only after it has been read the same way on
// Samples consecutive calls. Until then it keeps reporting the last stable
// level.
type Debouncer struct {
	Source  interface{ Pressed() (bool, error) }
	Samples int

	stable    bool
	candidate bool
	count     int
}

func (d *Debouncer) Pressed() (bool, error) {
	raw, err := d.Source.Pressed()
	if err != nil {
		return d.stable, err
	}
	if d.Samples <= 1 {
		d.stable = raw
		return raw, nil
	}
	if raw != d.candidate {
		d.candidate = raw
		d.count = 0
	}
	d.count++
	if d.count >= d.Samples {
		d.stable = d.candidate
	}
	return d.stable, nil
}

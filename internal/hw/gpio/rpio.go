package gpio

import (
	"fmt"

	"github.com/stianeikeland/go-rpio/v4"

	"github.com/cjeanneret/SolGo/internal/debug"
)

// RPiDriver drives BCM pins through /dev/gpiomem with go-rpio.
//
// Pins must be set up before use: writing to a pin nobody configured could
// energise a motor bridge, so it is an error rather than an implicit setup.
type RPiDriver struct {
	modes map[int]PinMode
}

// NewRPiDriver maps the GPIO registers. It fails off a Raspberry Pi or
// without access to /dev/gpiomem.
func NewRPiDriver() (*RPiDriver, error) {
	if err := rpio.Open(); err != nil {
		return nil, fmt.Errorf("open GPIO: %w (not a Raspberry Pi, or no access to /dev/gpiomem?)", err)
	}
	debug.Info("Using go-rpio GPIO driver")
	return &RPiDriver{modes: make(map[int]PinMode)}, nil
}

func (r *RPiDriver) SetupPin(pin int, mode PinMode) error {
	debug.GPIO("SetupPin", pin, mode)
	p := rpio.Pin(pin)
	switch mode {
	case Output:
		p.Low()
		p.Output()
	case Input:
		p.Input()
		p.PullOff()
	case InputPullUp:
		p.Input()
		p.PullUp()
	default:
		return fmt.Errorf("pin %d: unknown mode %d", pin, mode)
	}
	r.modes[pin] = mode
	return nil
}

func (r *RPiDriver) WritePin(pin int, level Level) error {
	if mode, ok := r.modes[pin]; !ok || mode != Output {
		return fmt.Errorf("pin %d: write to a pin not set up as output", pin)
	}
	debug.GPIO("WritePin", pin, level)
	if level == High {
		rpio.Pin(pin).High()
	} else {
		rpio.Pin(pin).Low()
	}
	return nil
}

func (r *RPiDriver) ReadPin(pin int) (Level, error) {
	if _, ok := r.modes[pin]; !ok {
		return Low, fmt.Errorf("pin %d: read from a pin that was not set up", pin)
	}
	l := Level(rpio.Pin(pin).Read() == rpio.High)
	debug.GPIO("ReadPin", pin, l)
	return l, nil
}

// Close stops every output before handing all pins back as floating inputs.
func (r *RPiDriver) Close() error {
	for pin, mode := range r.modes {
		if mode == Output {
			rpio.Pin(pin).Low()
		}
	}
	for pin := range r.modes {
		debug.Verbose("Releasing pin %d", pin)
		p := rpio.Pin(pin)
		p.Input()
		p.PullOff()
	}
	debug.Trace("GPIO closed")
	return rpio.Close()
}

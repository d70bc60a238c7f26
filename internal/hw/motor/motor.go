// Package motor drives DC motors through an H-bridge (BTS7960 style): one
// GPIO per direction, both low to stop.
package motor

import (
	"fmt"

	"github.com/cjeanneret/SolGo/internal/debug"
	"github.com/cjeanneret/SolGo/internal/hw/gpio"
	"github.com/cjeanneret/SolGo/internal/logic/motion"
)

// Config holds the hardware configuration of one H-bridge channel.
type Config struct {
	Name        string // "azimuth", "elevation"
	ForwardPin  int    // RPWM: forward / clockwise
	BackwardPin int    // LPWM: backward / counter-clockwise
}

// HBridge runs a motor forward, backward, or not at all.
type HBridge struct {
	gpio gpio.Driver
	cfg  Config
}

// NewHBridge configures both direction pins as outputs and leaves the motor
// stopped.
func NewHBridge(g gpio.Driver, cfg Config) (*HBridge, error) {
	if cfg.ForwardPin == cfg.BackwardPin {
		return nil, fmt.Errorf("%s motor: forward and backward pins must differ (both %d)", cfg.Name, cfg.ForwardPin)
	}
	for _, pin := range []int{cfg.ForwardPin, cfg.BackwardPin} {
		if err := g.SetupPin(pin, gpio.Output); err != nil {
			return nil, fmt.Errorf("%s motor: setup pin %d: %w", cfg.Name, pin, err)
		}
	}
	h := &HBridge{gpio: g, cfg: cfg}
	if err := h.Apply(motion.Stop); err != nil {
		return nil, err
	}
	return h, nil
}

// Apply sets the bridge for cmd. The pin being released is always driven
// low before the other goes high, so both sides are never on together.
func (h *HBridge) Apply(cmd motion.Command) error {
	var on, off int
	switch cmd {
	case motion.Stop:
		debug.Trace("Motor %s: both pins low", h.cfg.Name)
		if err := h.gpio.WritePin(h.cfg.ForwardPin, gpio.Low); err != nil {
			return err
		}
		return h.gpio.WritePin(h.cfg.BackwardPin, gpio.Low)
	case motion.Forward:
		on, off = h.cfg.ForwardPin, h.cfg.BackwardPin
	case motion.Backward:
		on, off = h.cfg.BackwardPin, h.cfg.ForwardPin
	default:
		return fmt.Errorf("%s motor: invalid command %d", h.cfg.Name, int(cmd))
	}

	if err := h.gpio.WritePin(off, gpio.Low); err != nil {
		return err
	}
	return h.gpio.WritePin(on, gpio.High)
}

// Name returns the configured motor name.
func (h *HBridge) Name() string {
	return h.cfg.Name
}

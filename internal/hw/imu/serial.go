// Package imu reads orientation telemetry from a WIT-Motion inclinometer
// over a serial link.
package imu

import (
	"fmt"
	"io"
	"time"

	"github.com/tarm/serial"

	"github.com/cjeanneret/SolGo/internal/debug"
)

// DefaultBaud is the factory rate of the HWT905.
const DefaultBaud = 115200

// Config describes the serial link to the sensor.
type Config struct {
	Device      string
	Baud        int
	ReadTimeout time.Duration // 0 = blocking reads
}

// OpenSerial opens the sensor port. The returned port is also used to send
// calibration commands.
func OpenSerial(cfg Config) (io.ReadWriteCloser, error) {
	if cfg.Device == "" {
		return nil, fmt.Errorf("imu: no serial device configured")
	}
	baud := cfg.Baud
	if baud <= 0 {
		baud = DefaultBaud
	}
	p, err := serial.OpenPort(&serial.Config{Name: cfg.Device, Baud: baud, ReadTimeout: cfg.ReadTimeout})
	if err != nil {
		return nil, fmt.Errorf("imu: open %s: %w", cfg.Device, err)
	}
	debug.Info("IMU serial port %s opened at %d baud", cfg.Device, baud)
	return p, nil
}

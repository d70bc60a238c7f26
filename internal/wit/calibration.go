package wit

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/cjeanneret/SolGo/internal/debug"
)

// Command frames are FF AA <register> <low> <high>.
const (
	cmdPrefix0 = 0xFF
	cmdPrefix1 = 0xAA

	regSave      = 0x00
	regCalibrate = 0x01
	regUnlock    = 0x69

	calExit  = 0x00
	calAccel = 0x01
	calMag   = 0x07
)

// Command is one 5-byte configuration frame and the pause the module needs
// after receiving it.
type Command struct {
	Name  string
	Frame [5]byte
	Wait  time.Duration
}

func command(name string, reg, lo, hi byte, wait time.Duration) Command {
	return Command{Name: name, Frame: [5]byte{cmdPrefix0, cmdPrefix1, reg, lo, hi}, Wait: wait}
}

// Calibration returns the accelerometer then magnetometer calibration
// sequence, ending with a save to flash. The accelerometer step needs the
// device level and still; the magnetometer step needs figure-8 rotations.
func Calibration() []Command {
	return []Command{
		command("unlock", regUnlock, 0xB5, 0x88, 100*time.Millisecond),
		command("start accel calibration", regCalibrate, calAccel, 0x00, 5*time.Second),
		command("exit accel calibration", regCalibrate, calExit, 0x00, 100*time.Millisecond),
		command("start mag calibration", regCalibrate, calMag, 0x00, 15*time.Second),
		command("exit mag calibration", regCalibrate, calExit, 0x00, 100*time.Millisecond),
		command("save", regSave, 0x00, 0x00, 500*time.Millisecond),
	}
}

// WaitFunc pauses for d or until ctx is done.
type WaitFunc func(ctx context.Context, d time.Duration) error

// Sleep is the default WaitFunc.
func Sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Calibrate writes the calibration sequence to w in order. Acknowledgments
// from the module are not read. If wait is nil, Sleep is used.
func Calibrate(ctx context.Context, w io.Writer, wait WaitFunc) error {
	if wait == nil {
		wait = Sleep
	}
	debug.Section("Sensor calibration")
	for i, c := range Calibration() {
		debug.Info("Calibration %d: %s (% X)", i+1, c.Name, c.Frame[:])
		if _, err := w.Write(c.Frame[:]); err != nil {
			return fmt.Errorf("send %s: %w", c.Name, err)
		}
		if err := wait(ctx, c.Wait); err != nil {
			return fmt.Errorf("after %s: %w", c.Name, err)
		}
	}
	debug.Info("Calibration complete")
	return nil
}

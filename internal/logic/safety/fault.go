package safety

import (
	"errors"
	"fmt"
	"time"
)

// Fault kinds. Match with errors.Is(err, safety.ErrStalled).
var (
	ErrStalled = errors.New("stalled")
	ErrTimeout = errors.New("timeout")
)

// ControlFault is raised when a bounded motion does not finish in time.
// The affected axis must be stopped; the process keeps running.
type ControlFault struct {
	Axis    string
	Op      string // "track", "homing", ...
	Kind    error
	Ticks   int
	Elapsed time.Duration
}

func (f *ControlFault) Error() string {
	if f.Kind == ErrStalled {
		return fmt.Sprintf("%s %s: %v after %d ticks", f.Axis, f.Op, f.Kind, f.Ticks)
	}
	return fmt.Sprintf("%s %s: %v after %s", f.Axis, f.Op, f.Kind, f.Elapsed.Round(time.Millisecond))
}

func (f *ControlFault) Unwrap() error {
	return f.Kind
}

// KindLabel returns "stalled", "timeout" or "other" for metrics.
func KindLabel(err error) string {
	switch {
	case errors.Is(err, ErrStalled):
		return "stalled"
	case errors.Is(err, ErrTimeout):
		return "timeout"
	default:
		return "other"
	}
}

package web

import (
	"sync"
	"time"

	"github.com/cjeanneret/SolGo/internal/logic/tracking"
)

// Attitude is the mount orientation as last measured.
type Attitude struct {
	Azimuth     float64 `json:"azimuth"`     // relative to home, degrees
	Elevation   float64 `json:"elevation"`   // degrees
	RawHeading  float64 `json:"raw_heading"` // sensor heading, degrees
	Roll        float64 `json:"roll"`
	Temperature float64 `json:"temperature"`
	Valid       bool    `json:"valid"`
}

// SensorStats summarises the telemetry link.
type SensorStats struct {
	Packets uint64        `json:"packets"`
	Errors  uint64        `json:"errors"`
	Bytes   uint64        `json:"bytes"`
	Age     time.Duration `json:"age_ns"`
}

// Snapshot is everything /status reports, captured on one control tick.
type Snapshot struct {
	Time     time.Time       `json:"time"`
	Tracking tracking.Status `json:"tracking"`
	Attitude Attitude        `json:"attitude"`
	Sensor   SensorStats     `json:"sensor"`
}

// StatusStore hands the latest snapshot from the control loop to HTTP
// handlers.
type StatusStore struct {
	mu   sync.RWMutex
	snap Snapshot
	set  bool
}

func (s *StatusStore) Set(snap Snapshot) {
	s.mu.Lock()
	s.snap = snap
	s.set = true
	s.mu.Unlock()
}

// Get returns the latest snapshot and whether one was ever stored.
func (s *StatusStore) Get() (Snapshot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap, s.set
}

// Package metrics exposes the tracker's health as Prometheus collectors.
package metrics

import (
	"errors"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/cjeanneret/SolGo/internal/logic/angle"
	"github.com/cjeanneret/SolGo/internal/logic/motion"
	"github.com/cjeanneret/SolGo/internal/logic/safety"
	"github.com/cjeanneret/SolGo/internal/wit"
)

const namespace = "solgo"

// Metrics groups every collector on its own registry so several instances
// can coexist in one process (tests).
type Metrics struct {
	registry *prometheus.Registry

	packets      *prometheus.CounterVec
	decodeErrors *prometheus.CounterVec
	motorCommand *prometheus.GaugeVec
	faults       *prometheus.CounterVec
	homingState  prometheus.Gauge
	homed        prometheus.Gauge
	homeOffset   prometheus.Gauge
	rawHeading   prometheus.Gauge
	azimuth      prometheus.Gauge
	elevation    prometheus.Gauge
	ticks        prometheus.Counter
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		packets: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "packets_decoded_total",
			Help:      "Sensor packets decoded, by packet type.",
		}, []string{"type"}),
		decodeErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "decode_errors_total",
			Help:      "Sensor frames discarded, by failure kind.",
		}, []string{"kind"}),
		motorCommand: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "motor_command",
			Help:      "Command applied to each axis: -1 backward, 0 stop, 1 forward.",
		}, []string{"axis"}),
		faults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "control_faults_total",
			Help:      "Tracking moves and homing runs that stalled or timed out.",
		}, []string{"axis", "kind"}),
		homingState: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "homing_state",
			Help:      "Current homing phase (0 idle .. 6 faulted).",
		}),
		homed: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "homed",
			Help:      "1 once a home offset has been committed.",
		}),
		homeOffset: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "home_offset_degrees",
			Help:      "Raw heading recorded at the home switch.",
		}),
		rawHeading: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "raw_heading_degrees",
			Help:      "Heading reported by the sensor, before the home offset.",
		}),
		azimuth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "azimuth_degrees",
			Help:      "Azimuth relative to home. Not set until homed.",
		}),
		elevation: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "elevation_degrees",
			Help:      "Elevation (sensor pitch).",
		}),
		ticks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "control_ticks_total",
			Help:      "Control loop evaluations.",
		}),
	}
	m.registry.MustRegister(
		m.packets, m.decodeErrors, m.motorCommand, m.faults,
		m.homingState, m.homed, m.homeOffset, m.rawHeading, m.azimuth, m.elevation, m.ticks,
	)
	return m
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry, for tests and extra collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) Packet(r wit.Reading) {
	m.packets.WithLabelValues(r.Type.String()).Inc()
}

func (m *Metrics) DecodeError(err error) {
	m.decodeErrors.WithLabelValues(wit.Kind(err)).Inc()
}

func (m *Metrics) Command(axis motion.Axis, cmd motion.Command) {
	v := 0.0
	switch cmd {
	case motion.Forward:
		v = 1
	case motion.Backward:
		v = -1
	}
	m.motorCommand.WithLabelValues(axis.String()).Set(v)
}

// Fault counts a control fault. Errors that are not faults are ignored.
func (m *Metrics) Fault(err error) {
	var f *safety.ControlFault
	if !errors.As(err, &f) {
		return
	}
	m.faults.WithLabelValues(f.Axis, safety.KindLabel(f)).Inc()
}

func (m *Metrics) HomingState(state int) {
	m.homingState.Set(float64(state))
}

func (m *Metrics) Homed(offset float64) {
	m.homed.Set(1)
	m.homeOffset.Set(offset)
}

// Attitude records r. The azimuth gauge is only written once a home offset
// exists.
func (m *Metrics) Attitude(r wit.Reading, offset float64, homed bool) {
	m.rawHeading.Set(r.Heading)
	m.elevation.Set(r.Pitch)
	if homed {
		m.azimuth.Set(angle.ApplyOffset(r.Heading, offset))
	}
}

func (m *Metrics) Tick() {
	m.ticks.Inc()
}

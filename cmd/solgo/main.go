package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"math"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"sync"
	"syscall"
	"time"

	"go.uber.org/multierr"

	"github.com/cjeanneret/SolGo/internal/config"
	"github.com/cjeanneret/SolGo/internal/debug"
	"github.com/cjeanneret/SolGo/internal/hw/gpio"
	"github.com/cjeanneret/SolGo/internal/hw/homeswitch"
	"github.com/cjeanneret/SolGo/internal/hw/imu"
	"github.com/cjeanneret/SolGo/internal/hw/motor"
	"github.com/cjeanneret/SolGo/internal/logic/angle"
	"github.com/cjeanneret/SolGo/internal/logic/homing"
	"github.com/cjeanneret/SolGo/internal/logic/motion"
	"github.com/cjeanneret/SolGo/internal/logic/tracking"
	"github.com/cjeanneret/SolGo/internal/metrics"
	"github.com/cjeanneret/SolGo/internal/sim"
	"github.com/cjeanneret/SolGo/internal/web"
	"github.com/cjeanneret/SolGo/internal/wit"
)

func main() {
	// CLI flags
	webPort := &webPortFlag{}
	flag.Var(webPort, "web", "start status server on port; -web= for the configured port, -web 8980 for custom port")
	cfgPath := flag.String("config", filepath.Join("configs", "default.yaml"), "path to config file")
	home := flag.Bool("home", false, "run the azimuth homing sequence at start")
	calibrate := flag.Bool("calibrate", false, "send the sensor calibration sequence and exit")
	var azimuth, elevation targetFlag
	flag.Var(&azimuth, "azimuth", "azimuth target in degrees relative to home [0, 360)")
	flag.Var(&elevation, "elevation", "elevation target in degrees (clamped to configured limits)")
	flag.Parse()

	if err := config.ValidateConfigPath(*cfgPath); err != nil {
		log.Fatalf("invalid config path: %v", err)
	}
	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatalf("load config failed: %v", err)
	}
	webPort.defaultPort = cfg.Defaults.WebPort

	if err := validateTargets(azimuth, elevation); err != nil {
		log.Fatalf("invalid target: %v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// Initialize debug system
	debug.Init(cfg.Defaults.DebugLevel)
	debug.Section("Initialization")
	debug.Value("Config path", *cfgPath)
	debug.Value("Debug level", debug.Level())
	debug.Value("Mock GPIO", cfg.Defaults.MockGPIO)

	if *calibrate {
		if err := runCalibration(ctx, cfg); err != nil {
			log.Fatalf("calibration failed: %v", err)
		}
		return
	}

	if err := run(ctx, cfg, options{
		webPort:   webPort.port(),
		home:      *home,
		azimuth:   azimuth,
		elevation: elevation,
	}); err != nil {
		log.Fatalf("%v", err)
	}
}

type options struct {
	webPort   int
	home      bool
	azimuth   targetFlag
	elevation targetFlag
}

// rig is the hardware, real or simulated, behind the control loop.
type rig struct {
	gpio      gpio.Driver
	azimuth   motion.Actuator
	elevation motion.Actuator
	home      tracking.SwitchSource
	telemetry io.Reader
	port      io.Closer // nil when simulated
	plant     *sim.Plant
}

func (r *rig) Close() error {
	var err error
	if r.port != nil {
		err = multierr.Append(err, r.port.Close())
	}
	return multierr.Append(err, r.gpio.Close())
}

func openRig(ctx context.Context, cfg *config.Config) (*rig, error) {
	debug.Step(1, "Initializing GPIO driver")
	g, err := gpio.NewDriver(cfg.Defaults.MockGPIO)
	if err != nil {
		return nil, fmt.Errorf("init GPIO: %w", err)
	}
	r := &rig{gpio: g}

	debug.Step(2, "Initializing motors")
	az, err := motor.NewHBridge(g, motor.Config{
		Name:        motion.Azimuth.String(),
		ForwardPin:  cfg.AzimuthMotor.ForwardPin,
		BackwardPin: cfg.AzimuthMotor.BackwardPin,
	})
	if err != nil {
		return nil, multierr.Append(err, g.Close())
	}
	el, err := motor.NewHBridge(g, motor.Config{
		Name:        motion.Elevation.String(),
		ForwardPin:  cfg.ElevationMotor.ForwardPin,
		BackwardPin: cfg.ElevationMotor.BackwardPin,
	})
	if err != nil {
		return nil, multierr.Append(err, g.Close())
	}
	debug.PrintStruct("Azimuth motor", cfg.AzimuthMotor)
	debug.PrintStruct("Elevation motor", cfg.ElevationMotor)

	debug.Step(3, "Initializing home switch and sensor")
	if cfg.Defaults.MockGPIO {
		sc := sim.DefaultConfig()
		sc.StepSize = cfg.Tracking.StepSize
		r.plant = sim.NewPlant(sc)
		r.azimuth = r.plant.Actuator(motion.Azimuth, az)
		r.elevation = r.plant.Actuator(motion.Elevation, el)
		r.home = r.plant
		r.telemetry = r.plant.Telemetry(ctx, cfg.TickInterval()/2)
		debug.PrintStruct("Simulated mount", sc)
		return r, nil
	}

	sw, err := homeswitch.New(g, cfg.HomeSwitch.Pin)
	if err != nil {
		return nil, multierr.Append(err, g.Close())
	}
	port, err := imu.OpenSerial(imu.Config{
		Device:      cfg.Sensor.Device,
		Baud:        cfg.Sensor.Baud,
		ReadTimeout: cfg.SerialReadTimeout(),
	})
	if err != nil {
		return nil, multierr.Append(err, g.Close())
	}
	r.azimuth, r.elevation = az, el
	r.home = &homeswitch.Debouncer{Source: sw, Samples: cfg.HomeSwitch.DebounceSamples}
	r.telemetry = port
	r.port = port
	return r, nil
}

func run(ctx context.Context, cfg *config.Config, opts options) (err error) {
	r, err := openRig(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := r.Close(); cerr != nil {
			err = multierr.Append(err, fmt.Errorf("close hardware: %w", cerr))
		}
	}()

	m := metrics.New()
	broadcaster := web.NewStatusBroadcaster()
	store := &web.StatusStore{}

	sensor := imu.NewSensor(r.telemetry)
	sensor.Follow = r.port != nil
	sensor.OnPacket = m.Packet
	sensor.OnError = m.DecodeError

	homer := homing.NewHomer(homingTiming(cfg))
	homer.OnTransition = func(from, to homing.State) {
		m.HomingState(int(to))
		broadcaster.Homing(from.String(), to.String())
		if off, ok := homer.Offset(); ok && to == homing.Complete {
			m.Homed(off)
		}
	}
	tracker := tracking.New(trackingLimits(cfg), homer)
	tracker.OnFault = func(err error) {
		m.Fault(err)
		broadcaster.Fault(err)
	}

	ctrl := motion.NewController(r.azimuth, r.elevation)
	loop := tracking.NewLoop(tracker, ctrl, sensor, r.home, nil)

	now := time.Now()
	if opts.home {
		if err := tracker.Home(now); err != nil {
			return fmt.Errorf("start homing: %w", err)
		}
	}
	if opts.elevation.set {
		got, err := tracker.SetElevation(opts.elevation.val, now)
		if err != nil {
			return fmt.Errorf("set elevation: %w", err)
		}
		debug.Value("Elevation target", got)
	}
	pendingAzimuth := opts.azimuth
	if pendingAzimuth.set && !opts.home {
		debug.Info("Azimuth target %.2f° waits for a completed homing run (use -home)", pendingAzimuth.val)
	}

	debug.Summary(fmt.Sprintf("SolGo running (%s mount, tick %s)", mountKind(r), cfg.TickInterval()))

	loop.AfterTick = func(rd wit.Reading, cmds tracking.Commands, _ error) {
		if r.plant != nil {
			r.plant.Advance()
		}
		m.Tick()
		m.Command(motion.Azimuth, cmds.Azimuth)
		m.Command(motion.Elevation, cmds.Elevation)

		if pendingAzimuth.set && !homer.Active() {
			if _, ok := homer.Offset(); ok {
				if err := tracker.SetAzimuth(pendingAzimuth.val, time.Now()); err == nil {
					pendingAzimuth.set = false
				}
			}
		}

		snap := buildSnapshot(time.Now(), tracker.Status(), rd, sensor)
		if rd.Valid {
			m.Attitude(rd, snap.Tracking.HomeOffset, snap.Tracking.Homed)
		}
		store.Set(snap)
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	var errs error
	collect := func(e error) {
		if e == nil || e == context.Canceled {
			return
		}
		mu.Lock()
		errs = multierr.Append(errs, e)
		mu.Unlock()
	}

	runCtx, stop := context.WithCancel(ctx)
	defer stop()

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := sensor.Run(runCtx); err != nil && runCtx.Err() == nil {
			collect(fmt.Errorf("sensor: %w", err))
			stop()
		}
	}()

	if opts.webPort > 0 {
		debug.SetOutput(io.MultiWriter(os.Stdout, web.BroadcastWriter(broadcaster)))
		srv := web.NewServer(fmt.Sprintf(":%d", opts.webPort), broadcaster, store, m.Handler())
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := srv.Run(runCtx); err != nil {
				collect(fmt.Errorf("web server: %w", err))
				stop()
			}
		}()
	}

	collect(loop.Run(runCtx, cfg.TickInterval()))
	stop()
	if r.port != nil {
		// Unblocks a pending serial read.
		collect(r.port.Close())
		r.port = nil
	}
	wg.Wait()
	debug.Section("Stopped")
	return errs
}

func mountKind(r *rig) string {
	if r.plant != nil {
		return "simulated"
	}
	return "hardware"
}

func buildSnapshot(now time.Time, st tracking.Status, rd wit.Reading, sensor *imu.Sensor) web.Snapshot {
	stats := sensor.Stats()
	snap := web.Snapshot{
		Time:     now,
		Tracking: st,
		Sensor: web.SensorStats{
			Packets: stats.Packets,
			Errors:  stats.Errors,
			Bytes:   stats.Bytes,
			Age:     sensor.Age(now),
		},
	}
	if rd.Valid {
		az := rd.Heading
		if st.Homed {
			az = angle.ApplyOffset(rd.Heading, st.HomeOffset)
		}
		snap.Attitude = web.Attitude{
			Azimuth:     az,
			Elevation:   rd.Pitch,
			RawHeading:  rd.Heading,
			Roll:        rd.Roll,
			Temperature: rd.Temperature,
			Valid:       true,
		}
	}
	return snap
}

func runCalibration(ctx context.Context, cfg *config.Config) error {
	if cfg.Defaults.MockGPIO {
		debug.Info("Mock mode: calibration frames are discarded")
		return wit.Calibrate(ctx, io.Discard, func(context.Context, time.Duration) error { return nil })
	}
	port, err := imu.OpenSerial(imu.Config{Device: cfg.Sensor.Device, Baud: cfg.Sensor.Baud})
	if err != nil {
		return err
	}
	return multierr.Append(wit.Calibrate(ctx, port, wit.Sleep), port.Close())
}

func homingTiming(cfg *config.Config) homing.Timing {
	on, off := cfg.HomingPulse()
	return homing.Timing{
		Timeout:  cfg.HomingTimeout(),
		Backoff:  cfg.HomingBackoff(),
		Settle:   cfg.HomingSettle(),
		PulseOn:  on,
		PulseOff: off,
	}
}

func trackingLimits(cfg *config.Config) tracking.Limits {
	return tracking.Limits{
		AzimuthTolerance:   cfg.Tracking.AzimuthTolerance,
		ElevationTolerance: cfg.Tracking.ElevationTolerance,
		ElevationMin:       cfg.Tracking.ElevationMin,
		ElevationMax:       cfg.Tracking.ElevationMax,
		MaxTicks:           cfg.Tracking.MaxTicks,
		MotorTimeout:       cfg.MotorTimeout(),
	}
}

// validateTargets checks CLI targets that were given. Elevation is clamped
// later, so only non-finite values and an azimuth outside [0, 360) fail.
func validateTargets(azimuth, elevation targetFlag) error {
	if azimuth.set {
		v := azimuth.val
		if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 || v >= 360 {
			return fmt.Errorf("azimuth must be in [0, 360), got %g", v)
		}
	}
	if elevation.set {
		v := elevation.val
		if math.IsNaN(v) || math.IsInf(v, 0) || v < -90 || v > 90 {
			return fmt.Errorf("elevation must be in [-90, 90], got %g", v)
		}
	}
	return nil
}

// targetFlag is a float flag that remembers whether it was given, since 0°
// is a valid target.
type targetFlag struct {
	val float64
	set bool
}

func (t *targetFlag) String() string {
	if !t.set {
		return ""
	}
	return strconv.FormatFloat(t.val, 'g', -1, 64)
}

func (t *targetFlag) Set(s string) error {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return err
	}
	t.val, t.set = v, true
	return nil
}

// webPortFlag implements flag.Value for -web: 0 = disabled, -web= → configured port, -web 8980 → 8980.
type webPortFlag struct {
	val         int
	defaultPort int
	useDefault  bool
}

func (w *webPortFlag) String() string {
	if w.val == 0 {
		return "0"
	}
	return strconv.Itoa(w.val)
}

func (w *webPortFlag) Set(s string) error {
	if s == "" {
		w.useDefault = true
		return nil
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return err
	}
	if v <= 0 || v > 65535 {
		return fmt.Errorf("port must be 1-65535, got %d", v)
	}
	w.val = v
	return nil
}

func (w *webPortFlag) port() int {
	if w.val == 0 && w.useDefault {
		return w.defaultPort
	}
	return w.val
}

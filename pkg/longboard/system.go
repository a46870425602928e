package longboard

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/itohio/golongboard/pkg/board"
	"github.com/itohio/golongboard/pkg/command"
	"github.com/itohio/golongboard/pkg/config"
	"github.com/itohio/golongboard/pkg/pulse"
	"github.com/itohio/golongboard/pkg/ramp"
	"github.com/itohio/golongboard/pkg/safety"
	"github.com/itohio/golongboard/pkg/speed"
	"github.com/itohio/golongboard/pkg/telemetry"
)

// Option configures a System.
type Option func(*System)

// WithSinks adds telemetry sinks next to the board link.
func WithSinks(sinks ...telemetry.Sink) Option {
	return func(s *System) {
		s.sinks = append(s.sinks, sinks...)
	}
}

// WithGPIOEdges reads slot edges from a Linux GPIO line instead of the board.
func WithGPIOEdges() Option {
	return func(s *System) {
		s.useGPIO = true
	}
}

// System wires the board to the tracker, decoder, ramp, safety monitor, and telemetry.
type System struct {
	cfg *config.Config
	dev board.Device

	tracker    *pulse.Tracker
	estimator  *speed.Estimator
	decoder    *command.Decoder
	codes      command.Codes
	controller *ramp.Controller
	monitor    *safety.Monitor
	reporter   *telemetry.Reporter
	status     *status

	sinks   []telemetry.Sink
	useGPIO bool
	gpio    *board.GPIOEdges
	start   time.Time

	indMu      sync.Mutex
	indicators board.Indicator
	commanded  bool

	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
}

// New creates a System around dev. The device is not connected here.
func New(cfg *config.Config, dev board.Device, opts ...Option) (*System, error) {
	if cfg == nil {
		cfg = config.Default()
	}

	s := &System{
		cfg:     cfg,
		dev:     dev,
		tracker: pulse.NewTracker(cfg.Pulse.StallWindow),
		decoder: command.NewDecoder(cfg.Command.DoubleTapWindow),
		codes:   command.CodesFromConfig(cfg.Command),
		status:  newStatus(),
		start:   time.Now(),
	}
	for _, opt := range opts {
		opt(s)
	}

	clock := dev.Clock()
	if s.useGPIO {
		gpio, err := board.OpenGPIOEdges(cfg.GPIO, s.tracker.OnEdge)
		if err != nil {
			return nil, fmt.Errorf("failed to open slot sensor: %w", err)
		}
		s.gpio = gpio
		clock = gpio.Clock()
	}

	s.estimator = speed.New(s.tracker, clock, cfg.Wheel, cfg.Pulse.MinInterval)
	s.monitor = safety.NewMonitor(s.status, s.decoder, safety.NewBattery(cfg.Battery), cfg.Safety)
	s.controller = ramp.New(s.decoder, s.monitor, motor{dev}, cfg.Ramp)
	s.controller.OnTick(func(ramp.Tick) { s.updateIndicators() })

	sinks := append([]telemetry.Sink{telemetry.NewLinkSink(s)}, s.sinks...)
	s.reporter = telemetry.NewReporter(s.Snapshot, sinks...)

	return s, nil
}

// Start launches the event pump and the periodic tasks.
func (s *System) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("already running")
	}

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.running = true

	events := s.dev.Events()
	s.wg.Add(4)
	go func() {
		defer s.wg.Done()
		s.pump(ctx, events)
	}()
	go func() {
		defer s.wg.Done()
		s.monitor.Run(ctx, s.cfg.Safety.Period)
	}()
	go func() {
		defer s.wg.Done()
		s.controller.Run(ctx, s.cfg.Ramp.Period)
	}()
	go func() {
		defer s.wg.Done()
		s.reporter.Run(ctx, s.cfg.Telemetry.Period)
	}()

	log.Printf("Longboard controller started")
	return nil
}

// Stop cancels all tasks, waits for them, and drives the motor to 0%.
func (s *System) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.cancel()
	s.running = false
	s.mu.Unlock()

	s.wg.Wait()

	if err := s.controller.Halt(); err != nil {
		log.Printf("Failed to halt motor: %v", err)
	}
	if s.gpio != nil {
		if err := s.gpio.Close(); err != nil {
			log.Printf("Failed to release slot sensor: %v", err)
		}
		s.gpio = nil
	}
	log.Printf("Longboard controller stopped")
}

// pump dispatches board events until ctx is cancelled or the channel closes.
func (s *System) pump(ctx context.Context, events <-chan board.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				if s.status.setLink(false) {
					log.Printf("Board closed, link considered lost")
				}
				return
			}
			s.handle(ev)
		}
	}
}

func (s *System) handle(ev board.Event) {
	switch ev.Kind {
	case board.EventEdge:
		if s.gpio == nil {
			s.tracker.OnEdge(ev.Micros)
		}
	case board.EventBattery:
		s.status.setBattery(ev.Millivolts)
	case board.EventLink:
		if !s.status.setLink(ev.Connected) {
			break
		}
		if ev.Connected {
			log.Printf("Wireless link connected")
		} else {
			log.Printf("Wireless link lost")
		}
	case board.EventCommand:
		s.Command(ev.Command)
	}
}

// Command handles a remote command byte. Unknown bytes are ignored.
func (s *System) Command(b byte) {
	code := s.codes.Parse(b)
	if code == command.CodeUnknown {
		log.Printf("Ignoring unknown command %q", b)
		return
	}

	s.decoder.OnCommand(code, time.Since(s.start))

	s.indMu.Lock()
	s.commanded = true
	s.indMu.Unlock()
	s.updateIndicators()
}

// Advance injects an advance command.
func (s *System) Advance() { s.Command(s.codes.Byte(command.CodeAdvance)) }

// Release injects a release command.
func (s *System) Release() { s.Command(s.codes.Byte(command.CodeRelease)) }

// Brake injects a brake command.
func (s *System) Brake() { s.Command(s.codes.Byte(command.CodeBrake)) }

// updateIndicators sends the LED mask when it changes.
func (s *System) updateIndicators() {
	intent := s.decoder.Intent()

	s.indMu.Lock()
	defer s.indMu.Unlock()

	var mask board.Indicator
	if s.commanded {
		mask |= board.IndicatorActivity
	}
	if intent == command.AccelerateHeld || intent == command.HoldSpeed {
		mask |= board.IndicatorAdvance
	}
	if intent == command.HoldSpeed {
		mask |= board.IndicatorHold
	}
	if mask == s.indicators {
		return
	}
	if err := s.dev.SetIndicators(mask); err != nil {
		log.Printf("Failed to set indicators: %v", err)
		return
	}
	s.indicators = mask
}

// Snapshot returns the current telemetry record.
func (s *System) Snapshot() telemetry.Record {
	v := s.estimator.Estimate()
	return telemetry.Record{
		Timestamp:      time.Now(),
		Speed:          v,
		SpeedKMH:       v * 3.6,
		BatteryVoltage: s.monitor.Voltage(),
		BatteryPercent: s.monitor.Percent(),
		Duty:           s.controller.Percent(),
		Intent:         s.decoder.Intent().String(),
		Safety:         s.monitor.State().String(),
		Connected:      s.status.LinkConnected(),
	}
}

// LinkConnected implements telemetry.Link.
func (s *System) LinkConnected() bool {
	return s.status.LinkConnected()
}

// SendTelemetry implements telemetry.Link.
func (s *System) SendTelemetry(text string) error {
	return s.dev.SendTelemetry(text)
}

// Intent returns the current rider intent.
func (s *System) Intent() command.Intent { return s.decoder.Intent() }

// Safety returns the latched safety state.
func (s *System) Safety() safety.State { return s.monitor.State() }

// Duty returns the current motor duty percentage.
func (s *System) Duty() uint8 { return s.controller.Percent() }

// Speed returns the current velocity in m/s.
func (s *System) Speed() float32 { return s.estimator.Estimate() }

// motor adapts a board to the ramp controller.
type motor struct {
	dev board.Device
}

func (m motor) SetSpeed(percent uint8) error {
	return m.dev.SetMotor(percent)
}

package board

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/itohio/golongboard/pkg/config"
	"github.com/itohio/golongboard/pkg/pulse"
)

// physicsStep is how often the simulated wheel is advanced.
const physicsStep = 5 * time.Millisecond

// Mock simulates a longboard board for testing and development.
// The wheel follows the motor duty with first-order lag, producing slot edges,
// while the battery drains proportionally to the duty.
type Mock struct {
	cfg     *config.MockConfig
	slots   int
	divider float64

	events    chan Event
	mu        sync.RWMutex
	ctx       context.Context
	cancel    context.CancelFunc
	connected bool
	done      chan struct{}

	// Outputs
	duty       uint8
	telemetry  []string
	indicators Indicator

	// Simulation state
	startTime   time.Time
	rpm         float64
	phase       float64 // Slot position, fractional
	voltage     float64
	linkUp      bool
	lastBattery time.Time
}

// NewMock creates a new simulated board.
func NewMock(cfg *config.MockConfig, wheel config.WheelConfig, battery config.BatteryConfig) *Mock {
	if cfg == nil {
		def := config.Default().Mock
		cfg = &def
	}
	if wheel.Slots <= 0 {
		wheel.Slots = config.Default().Wheel.Slots
	}
	if battery.DividerFactor <= 0 {
		battery.DividerFactor = config.Default().Battery.DividerFactor
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Mock{
		cfg:       cfg,
		slots:     wheel.Slots,
		divider:   float64(battery.DividerFactor),
		events:    make(chan Event, DefaultBufferSize),
		ctx:       ctx,
		cancel:    cancel,
		startTime: time.Now(),
	}
}

// Connect starts the simulation.
func (m *Mock) Connect() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.connected {
		return fmt.Errorf("already connected")
	}

	m.connected = true
	m.voltage = m.cfg.BatteryStart
	m.linkUp = true
	m.done = make(chan struct{})

	now := m.micros()
	m.emit(Event{Kind: EventLink, Micros: now, Connected: true})
	m.emit(Event{Kind: EventBattery, Micros: now, Millivolts: m.millivolts()})
	m.lastBattery = time.Now()

	go m.simulate()

	return nil
}

// Close stops the simulation and closes the events channel.
func (m *Mock) Close() error {
	m.mu.Lock()
	if !m.connected {
		m.mu.Unlock()
		return nil
	}
	m.cancel()
	m.connected = false
	done := m.done
	m.mu.Unlock()

	<-done
	close(m.events)
	return nil
}

// Events returns the channel for reading board events.
func (m *Mock) Events() <-chan Event {
	return m.events
}

// Clock returns microseconds since the mock was created.
func (m *Mock) Clock() pulse.Clock {
	return pulse.ClockFunc(m.micros)
}

// SetMotor sets the simulated motor duty.
func (m *Mock) SetMotor(percent uint8) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.connected {
		return fmt.Errorf("not connected")
	}
	if percent > 100 {
		percent = 100
	}
	m.duty = percent
	return nil
}

// SendTelemetry records the text as sent over the simulated link.
func (m *Mock) SendTelemetry(text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.connected {
		return fmt.Errorf("not connected")
	}
	if !m.linkUp {
		return fmt.Errorf("link down")
	}
	m.telemetry = append(m.telemetry, text)
	return nil
}

// SetIndicators sets the simulated LEDs.
func (m *Mock) SetIndicators(mask Indicator) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.connected {
		return fmt.Errorf("not connected")
	}
	m.indicators = mask
	return nil
}

// IsConnected returns whether the simulation is running.
func (m *Mock) IsConnected() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.connected
}

// Press injects a remote command byte as if received over the wireless link.
func (m *Mock) Press(b byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.connected {
		return fmt.Errorf("not connected")
	}
	if !m.linkUp {
		return fmt.Errorf("link down")
	}
	m.emit(Event{Kind: EventCommand, Micros: m.micros(), Command: b})
	return nil
}

// Duty returns the last motor duty percentage.
func (m *Mock) Duty() uint8 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.duty
}

// RPM returns the simulated wheel speed.
func (m *Mock) RPM() float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.rpm
}

// Voltage returns the simulated battery voltage.
func (m *Mock) Voltage() float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.voltage
}

// Telemetry returns a copy of the telemetry lines sent so far.
func (m *Mock) Telemetry() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]string(nil), m.telemetry...)
}

// Indicators returns the current LED mask.
func (m *Mock) Indicators() Indicator {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.indicators
}

func (m *Mock) micros() uint32 {
	return uint32(time.Since(m.startTime).Microseconds())
}

func (m *Mock) millivolts() uint32 {
	mv := m.voltage / m.divider * 1000
	if mv < 0 {
		return 0
	}
	return uint32(math.Round(mv))
}

// emit sends an event without blocking. Caller holds m.mu.
func (m *Mock) emit(ev Event) {
	select {
	case m.events <- ev:
	default:
		// Channel full, skip
	}
}

// simulate advances the simulation until the context is cancelled.
func (m *Mock) simulate() {
	defer close(m.done)

	ticker := time.NewTicker(physicsStep)
	defer ticker.Stop()

	last := time.Now()
	for {
		select {
		case <-m.ctx.Done():
			return
		case now := <-ticker.C:
			m.step(last, now)
			last = now
		}
	}
}

// step advances the wheel and battery from t0 to t1.
func (m *Mock) step(t0, t1 time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()

	dt := t1.Sub(t0).Seconds()
	if dt <= 0 {
		return
	}
	duty := float64(m.duty) / 100

	alpha := 1.0
	if m.cfg.Inertia > 0 {
		alpha = math.Min(dt/m.cfg.Inertia.Seconds(), 1)
	}
	target := duty * m.cfg.MaxRPM
	m.rpm += alpha * (target - m.rpm)
	if m.rpm < 0 {
		m.rpm = 0
	}

	// Interpolate edge timestamps at each slot crossing within the step.
	rate := m.rpm / 60 * float64(m.slots) // slots per second
	if rate > 0 {
		from := m.phase
		m.phase += rate * dt
		base := t0.Sub(m.startTime)
		for k := math.Floor(from) + 1; k <= m.phase; k++ {
			at := base + time.Duration((k-from)/rate*float64(time.Second))
			m.emit(Event{Kind: EventEdge, Micros: uint32(at.Microseconds())})
		}
		m.phase -= math.Floor(m.phase)
	}

	m.voltage -= m.cfg.BatteryDrain * duty * dt
	if m.voltage < 0 {
		m.voltage = 0
	}

	elapsed := t1.Sub(m.startTime)
	micros := uint32(elapsed.Microseconds())

	if m.linkUp && m.cfg.LinkDropAfter > 0 && elapsed >= m.cfg.LinkDropAfter {
		m.linkUp = false
		m.emit(Event{Kind: EventLink, Micros: micros, Connected: false})
	}

	if t1.Sub(m.lastBattery) >= m.cfg.SampleRate {
		m.lastBattery = t1
		m.emit(Event{Kind: EventBattery, Micros: micros, Millivolts: m.millivolts()})
	}
}

package safety

import (
	"context"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/chewxy/math32"
	"github.com/itohio/golongboard/pkg/config"
)

// State is the latched safety state.
type State int

const (
	Normal State = iota
	LowPower
)

func (s State) String() string {
	if s == LowPower {
		return "low-power"
	}
	return "normal"
}

// Source reports link and battery health.
type Source interface {
	LinkConnected() bool
	BatteryMillivolts() (uint32, error)
}

// Braker starts a braking ramp.
type Braker interface {
	TriggerBrake()
}

// Reading is the result of one evaluation.
type Reading struct {
	Connected bool
	Voltage   float32
	Percent   float32
	State     State
	Reason    string
	Err       error
}

// Monitor evaluates link and battery health and latches LowPower.
// Evaluate is the only writer of the state; LowPower may be read from any goroutine.
type Monitor struct {
	source  Source
	braker  Braker
	battery Battery
	low     float32
	exit    float32

	mu       sync.Mutex // Serializes Evaluate
	seen     bool       // A battery reading has succeeded; guarded by mu
	lowPower atomic.Bool
	voltage  atomic.Uint32 // float32 bits
	percent  atomic.Uint32 // float32 bits
}

// NewMonitor creates a monitor. With zero hysteresis LowPower is entered below
// LowPercent and left at or above it.
func NewMonitor(source Source, braker Braker, battery Battery, cfg config.SafetyConfig) *Monitor {
	hyst := cfg.Hysteresis
	if hyst < 0 {
		hyst = 0
	}
	return &Monitor{
		source:  source,
		braker:  braker,
		battery: battery,
		low:     cfg.LowPercent,
		exit:    cfg.LowPercent + hyst,
	}
}

// LowPower reports whether the motor must be slowed down.
func (m *Monitor) LowPower() bool {
	return m.lowPower.Load()
}

// State returns the current safety state.
func (m *Monitor) State() State {
	if m.LowPower() {
		return LowPower
	}
	return Normal
}

// Voltage returns the last measured pack voltage.
func (m *Monitor) Voltage() float32 {
	return math32.Float32frombits(m.voltage.Load())
}

// Percent returns the last computed battery percentage.
func (m *Monitor) Percent() float32 {
	return math32.Float32frombits(m.percent.Load())
}

// Evaluate reads link and battery status once and updates the state.
// Entering LowPower triggers a brake once. Until the board has reported a
// battery reading the board is still coming up, and LowPower is entered
// silently.
func (m *Monitor) Evaluate() Reading {
	m.mu.Lock()
	defer m.mu.Unlock()

	r := Reading{Connected: m.source.LinkConnected()}

	mv, err := m.source.BatteryMillivolts()
	if err != nil {
		r.Err = fmt.Errorf("read battery: %w", err)
	} else {
		r.Voltage = m.battery.Voltage(mv)
		r.Percent = m.battery.Percent(r.Voltage)
		m.voltage.Store(math32.Float32bits(r.Voltage))
		m.percent.Store(math32.Float32bits(r.Percent))
		m.seen = true
	}

	wasLow := m.lowPower.Load()
	threshold := m.low
	if wasLow {
		threshold = m.exit
	}

	switch {
	case !r.Connected:
		r.State, r.Reason = LowPower, "link lost"
	case r.Err != nil:
		r.State, r.Reason = LowPower, "battery unreadable"
	case r.Percent < threshold:
		r.State, r.Reason = LowPower, "battery low"
	default:
		r.State = Normal
	}

	isLow := r.State == LowPower
	m.lowPower.Store(isLow)

	switch {
	case isLow && !wasLow:
		if m.seen {
			log.Printf("Safety: entering low power (%s, battery %.2f V / %.0f%%)", r.Reason, r.Voltage, r.Percent)
		}
		if m.braker != nil {
			m.braker.TriggerBrake()
		}
	case !isLow && wasLow:
		log.Printf("Safety: back to normal (battery %.2f V / %.0f%%)", r.Voltage, r.Percent)
	}
	if r.Err != nil && m.seen {
		log.Printf("Safety: %v", r.Err)
	}

	return r
}

// Run evaluates every period until ctx is cancelled. The first evaluation happens immediately.
func (m *Monitor) Run(ctx context.Context, period time.Duration) {
	m.Evaluate()

	ticker := time.NewTicker(period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Evaluate()
		}
	}
}

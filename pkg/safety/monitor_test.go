package safety

import (
	"bytes"
	"context"
	"errors"
	"log"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/itohio/golongboard/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	mu        sync.Mutex
	connected bool
	mv        uint32
	err       error
}

func (s *fakeSource) LinkConnected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}

func (s *fakeSource) BatteryMillivolts() (uint32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mv, s.err
}

func (s *fakeSource) set(connected bool, mv uint32, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connected, s.mv, s.err = connected, mv, err
}

type countingBraker struct{ n int }

func (b *countingBraker) TriggerBrake() { b.n++ }

// millivoltsFor returns the divider reading for a battery percentage with default calibration.
func millivoltsFor(percent float32) uint32 {
	cfg := config.Default().Battery
	v := cfg.EmptyVoltage + (cfg.FullVoltage-cfg.EmptyVoltage)*percent/100
	return uint32(v / cfg.DividerFactor * 1000)
}

func newMonitor(src Source, b Braker, hysteresis float32) *Monitor {
	cfg := config.Default()
	cfg.Safety.Hysteresis = hysteresis
	return NewMonitor(src, b, NewBattery(cfg.Battery), cfg.Safety)
}

func TestBattery(t *testing.T) {
	b := NewBattery(config.Default().Battery)
	assert.InDelta(t, 6.6, b.Voltage(3300), 1e-4)
	assert.InDelta(t, 10.0, b.Percent(6.6), 1e-3)
	assert.Equal(t, float32(0), b.Percent(5.0))
	assert.Equal(t, float32(100), b.Percent(9.0))
	assert.InDelta(t, 50.0, b.Percent(7.4), 1e-3)

	flat := NewBattery(config.BatteryConfig{DividerFactor: 1, EmptyVoltage: 7, FullVoltage: 7})
	assert.Equal(t, float32(0), flat.Percent(7.5))
}

func TestMonitor_Transitions(t *testing.T) {
	src := &fakeSource{}
	br := &countingBraker{}
	m := newMonitor(src, br, 0)

	src.set(true, millivoltsFor(50), nil)
	r := m.Evaluate()
	assert.Equal(t, Normal, r.State)
	assert.False(t, m.LowPower())
	assert.InDelta(t, 50.0, m.Percent(), 0.5)
	assert.InDelta(t, 7.4, m.Voltage(), 0.01)

	src.set(true, millivoltsFor(8), nil)
	r = m.Evaluate()
	assert.Equal(t, LowPower, r.State)
	assert.Equal(t, "battery low", r.Reason)
	assert.True(t, m.LowPower())
	assert.Equal(t, 1, br.n)

	// Still low: no second brake trigger.
	m.Evaluate()
	assert.Equal(t, 1, br.n)

	src.set(true, millivoltsFor(12), nil)
	r = m.Evaluate()
	assert.Equal(t, Normal, r.State)
	assert.Equal(t, Normal, m.State())
}

func TestMonitor_LinkLoss(t *testing.T) {
	src := &fakeSource{}
	br := &countingBraker{}
	m := newMonitor(src, br, 0)

	src.set(false, millivoltsFor(90), nil)
	r := m.Evaluate()
	assert.Equal(t, LowPower, r.State)
	assert.Equal(t, "link lost", r.Reason)
	assert.Equal(t, 1, br.n)

	src.set(true, millivoltsFor(90), nil)
	assert.Equal(t, Normal, m.Evaluate().State)
}

func TestMonitor_BatteryErrorIsLowPower(t *testing.T) {
	src := &fakeSource{}
	m := newMonitor(src, nil, 0)

	src.set(true, 0, errors.New("adc timeout"))
	r := m.Evaluate()
	assert.Equal(t, LowPower, r.State)
	assert.Error(t, r.Err)
}

func TestMonitor_QuietUntilFirstReading(t *testing.T) {
	var buf bytes.Buffer
	log.SetOutput(&buf)
	defer log.SetOutput(os.Stderr)

	src := &fakeSource{}
	br := &countingBraker{}
	m := newMonitor(src, br, 0)

	// Board not up yet: no link and no battery report.
	src.set(false, 0, errors.New("no battery reading yet"))
	r := m.Evaluate()
	assert.Equal(t, LowPower, r.State)
	assert.Equal(t, 1, br.n, "the motor is still braked")
	m.Evaluate()
	assert.Empty(t, buf.String())

	src.set(true, millivoltsFor(50), nil)
	assert.Equal(t, Normal, m.Evaluate().State)

	buf.Reset()
	src.set(false, millivoltsFor(50), nil)
	assert.Equal(t, LowPower, m.Evaluate().State)
	assert.Contains(t, buf.String(), "entering low power (link lost")
	assert.Equal(t, 2, br.n)
}

func TestMonitor_SingleThresholdBaseline(t *testing.T) {
	src := &fakeSource{}
	m := newMonitor(src, nil, 0)

	src.set(true, millivoltsFor(5), nil)
	require.True(t, m.Evaluate().State == LowPower)

	// Any reading at or above the threshold leaves LowPower.
	src.set(true, millivoltsFor(10.5), nil)
	assert.Equal(t, Normal, m.Evaluate().State)
}

func TestMonitor_Hysteresis(t *testing.T) {
	src := &fakeSource{}
	m := newMonitor(src, nil, 5)

	src.set(true, millivoltsFor(5), nil)
	require.Equal(t, LowPower, m.Evaluate().State)

	src.set(true, millivoltsFor(12), nil)
	assert.Equal(t, LowPower, m.Evaluate().State, "must exceed threshold + hysteresis to recover")

	src.set(true, millivoltsFor(16), nil)
	assert.Equal(t, Normal, m.Evaluate().State)

	src.set(true, millivoltsFor(12), nil)
	assert.Equal(t, Normal, m.Evaluate().State, "entry threshold is unchanged")
}

func TestMonitor_Run(t *testing.T) {
	src := &fakeSource{}
	src.set(true, millivoltsFor(50), nil)
	m := newMonitor(src, nil, 0)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		m.Run(ctx, 5*time.Millisecond)
	}()

	assert.Eventually(t, func() bool { return m.Percent() > 0 }, time.Second, time.Millisecond)
	src.set(false, millivoltsFor(50), nil)
	assert.Eventually(t, m.LowPower, time.Second, time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

package ramp

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/itohio/golongboard/pkg/command"
	"github.com/itohio/golongboard/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingMotor struct {
	mu      sync.Mutex
	applied []uint8
	err     error
}

func (m *recordingMotor) SetSpeed(percent uint8) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.applied = append(m.applied, percent)
	return m.err
}

func (m *recordingMotor) Applied() []uint8 {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]uint8, len(m.applied))
	copy(out, m.applied)
	return out
}

func (m *recordingMotor) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.applied = nil
}

type flagSafety struct{ low atomic.Bool }

func (s *flagSafety) LowPower() bool { return s.low.Load() }

const ms = time.Millisecond

func setup(maxDuty, step int) (*Controller, *command.Decoder, *flagSafety, *recordingMotor) {
	dec := command.NewDecoder(500 * ms)
	safety := &flagSafety{}
	motor := &recordingMotor{}
	c := New(dec, safety, motor, config.RampConfig{Step: step, MaxDuty: maxDuty})
	return c, dec, safety, motor
}

func TestController_Accelerate(t *testing.T) {
	c, dec, _, motor := setup(100, 10)
	dec.OnCommand(command.CodeAdvance, 0)

	for i := 0; i < 12; i++ {
		tick := c.Step()
		assert.Equal(t, PathAccelerate, tick.Path)
	}
	assert.Equal(t, 100, c.Duty())
	assert.Equal(t, uint8(100), c.Percent())
	assert.Equal(t, []uint8{10, 20, 30, 40, 50, 60, 70, 80, 90, 100, 100, 100}, motor.Applied())
}

func TestController_BrakeScenario(t *testing.T) {
	c, dec, _, motor := setup(100, 10)
	dec.OnCommand(command.CodeAdvance, 0)
	for i := 0; i < 10; i++ {
		c.Step()
	}
	require.Equal(t, 100, c.Duty())
	motor.Reset()

	dec.OnCommand(command.CodeBrake, time.Second)
	var last Tick
	for i := 0; i < 10; i++ {
		last = c.Step()
		assert.Equal(t, PathBrake, last.Path)
	}

	assert.Equal(t, 0, c.Duty())
	assert.True(t, last.Braked)
	assert.Equal(t, command.Idle, dec.Intent())
	assert.Equal(t, []uint8{90, 80, 70, 60, 50, 40, 30, 20, 10, 0}, motor.Applied())

	tick := c.Step()
	assert.Equal(t, PathHold, tick.Path)
	assert.Equal(t, 0, tick.Duty)
}

func TestController_BrakeFromZero(t *testing.T) {
	c, dec, _, _ := setup(255, 10)
	dec.TriggerBrake()
	tick := c.Step()
	assert.Equal(t, PathBrake, tick.Path)
	assert.True(t, tick.Braked)
	assert.Equal(t, command.Idle, dec.Intent())
}

func TestController_BrakePreemptsAcceleration(t *testing.T) {
	c, dec, _, _ := setup(255, 10)
	dec.OnCommand(command.CodeAdvance, 0)
	c.Step()
	c.Step()
	require.Equal(t, 20, c.Duty())

	dec.OnCommand(command.CodeBrake, 10*ms)
	dec.OnCommand(command.CodeAdvance, 20*ms)
	tick := c.Step()
	assert.Equal(t, PathBrake, tick.Path)
	assert.Equal(t, 10, c.Duty())
}

func TestController_HoldReappliesDuty(t *testing.T) {
	c, dec, _, motor := setup(255, 10)
	dec.OnCommand(command.CodeAdvance, 0)
	c.Step()
	c.Step()
	c.Step()
	dec.OnCommand(command.CodeAdvance, 100*ms)
	require.Equal(t, command.HoldSpeed, dec.Intent())
	motor.Reset()

	for i := 0; i < 3; i++ {
		tick := c.Step()
		assert.Equal(t, PathHold, tick.Path)
	}
	assert.Equal(t, 30, c.Duty())
	assert.Equal(t, []uint8{11, 11, 11}, motor.Applied()) // 30*100/255
}

func TestController_LowPowerOverridesAccelerate(t *testing.T) {
	c, dec, safety, _ := setup(255, 10)
	dec.OnCommand(command.CodeAdvance, 0)
	for i := 0; i < 5; i++ {
		c.Step()
	}
	require.Equal(t, 50, c.Duty())

	safety.low.Store(true)
	prev := c.Duty()
	for i := 0; i < 8; i++ {
		tick := c.Step()
		assert.Equal(t, PathLowPower, tick.Path)
		assert.LessOrEqual(t, tick.Duty, prev)
		prev = tick.Duty
	}
	assert.Equal(t, 0, c.Duty())
	assert.Equal(t, command.AccelerateHeld, dec.Intent())

	safety.low.Store(false)
	tick := c.Step()
	assert.Equal(t, PathAccelerate, tick.Path)
	assert.Equal(t, 10, tick.Duty)
}

func TestController_MotorErrorDoesNotStopRamp(t *testing.T) {
	c, dec, _, motor := setup(100, 10)
	motor.err = errors.New("driver fault")
	dec.OnCommand(command.CodeAdvance, 0)

	tick := c.Step()
	assert.Error(t, tick.Err)
	assert.Equal(t, 10, c.Duty())

	motor.err = nil
	tick = c.Step()
	assert.NoError(t, tick.Err)
	assert.Equal(t, 20, c.Duty())
}

func TestController_DutyAlwaysInRange(t *testing.T) {
	c, dec, safety, motor := setup(255, 37)
	rng := rand.New(rand.NewSource(42))
	codes := []command.Code{command.CodeAdvance, command.CodeRelease, command.CodeBrake}

	for i := 0; i < 2000; i++ {
		switch rng.Intn(4) {
		case 0:
			dec.OnCommand(codes[rng.Intn(len(codes))], time.Duration(i)*100*ms)
		case 1:
			safety.low.Store(rng.Intn(5) == 0)
		}
		tick := c.Step()
		assert.GreaterOrEqual(t, tick.Duty, 0)
		assert.LessOrEqual(t, tick.Duty, 255)
		assert.LessOrEqual(t, tick.Percent, uint8(100))
	}
	for _, p := range motor.Applied() {
		assert.LessOrEqual(t, p, uint8(100))
	}
}

func TestController_Halt(t *testing.T) {
	c, dec, _, motor := setup(100, 10)
	dec.OnCommand(command.CodeAdvance, 0)
	c.Step()
	c.Step()
	require.NoError(t, c.Halt())
	assert.Equal(t, 0, c.Duty())
	applied := motor.Applied()
	assert.Equal(t, uint8(0), applied[len(applied)-1])
}

func TestController_OnTick(t *testing.T) {
	c, dec, _, _ := setup(100, 10)
	var ticks []Tick
	c.OnTick(func(tick Tick) { ticks = append(ticks, tick) })
	dec.OnCommand(command.CodeAdvance, 0)
	c.Step()
	c.Step()
	require.Len(t, ticks, 2)
	assert.Equal(t, 20, ticks[1].Duty)
}

func TestController_Run(t *testing.T) {
	c, dec, _, motor := setup(100, 10)
	dec.OnCommand(command.CodeAdvance, 0)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		c.Run(ctx, 5*ms)
	}()

	assert.Eventually(t, func() bool { return c.Duty() == 100 }, 2*time.Second, 5*ms)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
	assert.NotEmpty(t, motor.Applied())
}

func TestPathString(t *testing.T) {
	assert.Equal(t, "low-power", PathLowPower.String())
	assert.Equal(t, "path(9)", Path(9).String())
}

package ramp

import (
	"context"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/itohio/golongboard/pkg/command"
	"github.com/itohio/golongboard/pkg/config"
)

// Motor accepts a duty cycle percentage in [0, 100] and holds it until the next call.
type Motor interface {
	SetSpeed(percent uint8) error
}

// Intents is the command decoder as seen by the controller.
type Intents interface {
	Intent() command.Intent
	CompleteBrake() bool
}

// Safety reports whether the safety monitor requires the motor to slow down.
type Safety interface {
	LowPower() bool
}

var _ Intents = (*command.Decoder)(nil)

// Path is the branch a tick took.
type Path int

const (
	PathHold Path = iota
	PathAccelerate
	PathBrake
	PathLowPower
)

func (p Path) String() string {
	switch p {
	case PathHold:
		return "hold"
	case PathAccelerate:
		return "accelerate"
	case PathBrake:
		return "brake"
	case PathLowPower:
		return "low-power"
	default:
		return fmt.Sprintf("path(%d)", int(p))
	}
}

// Tick describes the outcome of one controller step.
type Tick struct {
	Path    Path
	Duty    int
	Percent uint8
	Braked  bool // Brake ramp finished on this tick
	Err     error
}

// Controller owns the motor duty cycle. It is the only writer of the duty
// value; any number of readers may call Duty and Percent concurrently.
// Each Step moves the duty by at most one step, so a Brake or a safety
// override is acted on at the next tick even in the middle of a ramp.
type Controller struct {
	intents Intents
	safety  Safety
	motor   Motor
	step    int
	max     int

	mu   sync.Mutex // Serializes Step and Halt
	duty atomic.Int32

	onTick func(Tick)
}

// New creates a controller. The duty cycle starts at 0.
func New(intents Intents, safety Safety, motor Motor, cfg config.RampConfig) *Controller {
	step := cfg.Step
	if step <= 0 {
		step = 1
	}
	maxDuty := cfg.MaxDuty
	if maxDuty <= 0 {
		maxDuty = 100
	}
	return &Controller{
		intents: intents,
		safety:  safety,
		motor:   motor,
		step:    step,
		max:     maxDuty,
	}
}

// OnTick registers a callback invoked after each Step, outside the lock.
// Must be called before Run.
func (c *Controller) OnTick(cb func(Tick)) {
	c.onTick = cb
}

// Duty returns the current duty value in [0, MaxDuty].
func (c *Controller) Duty() int {
	return int(c.duty.Load())
}

// MaxDuty returns the duty value that corresponds to 100%.
func (c *Controller) MaxDuty() int {
	return c.max
}

// Percent returns the current duty as a motor percentage.
func (c *Controller) Percent() uint8 {
	return c.percent(c.Duty())
}

// Step performs one controller tick:
//  1. Brake intent: decrement, clearing the intent once duty reaches 0.
//  2. LowPower: decrement regardless of intent.
//  3. AccelerateHeld: increment up to MaxDuty.
//  4. Otherwise: re-apply the current duty.
func (c *Controller) Step() Tick {
	c.mu.Lock()
	duty := int(c.duty.Load())
	intent := c.intents.Intent()
	var t Tick

	switch {
	case intent == command.Brake:
		t.Path = PathBrake
		duty = c.clamp(duty - c.step)
		if duty == 0 {
			t.Braked = c.intents.CompleteBrake()
		}
	case c.safety != nil && c.safety.LowPower():
		t.Path = PathLowPower
		duty = c.clamp(duty - c.step)
	case intent == command.AccelerateHeld:
		t.Path = PathAccelerate
		duty = c.clamp(duty + c.step)
	default:
		t.Path = PathHold
	}

	c.duty.Store(int32(duty))
	t.Duty = duty
	t.Percent = c.percent(duty)
	t.Err = c.apply(t.Percent)
	c.mu.Unlock()

	if c.onTick != nil {
		c.onTick(t)
	}
	return t
}

// Halt drops the duty straight to 0 and applies it.
func (c *Controller) Halt() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.duty.Store(0)
	return c.apply(0)
}

// Run steps the controller every period until ctx is cancelled.
func (c *Controller) Run(ctx context.Context, period time.Duration) {
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.Step()
		}
	}
}

func (c *Controller) apply(percent uint8) error {
	if c.motor == nil {
		return nil
	}
	if err := c.motor.SetSpeed(percent); err != nil {
		log.Printf("Failed to set motor speed to %d%%: %v", percent, err)
		return fmt.Errorf("set motor speed: %w", err)
	}
	return nil
}

func (c *Controller) clamp(duty int) int {
	if duty < 0 {
		return 0
	}
	if duty > c.max {
		return c.max
	}
	return duty
}

func (c *Controller) percent(duty int) uint8 {
	return uint8(c.clamp(duty) * 100 / c.max)
}

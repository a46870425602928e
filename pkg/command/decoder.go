package command

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/itohio/golongboard/pkg/config"
)

// Intent is the control intent produced by the decoder and consumed by the ramp controller.
type Intent uint32

const (
	Idle Intent = iota
	AccelerateHeld
	HoldSpeed
	Brake
)

func (i Intent) String() string {
	switch i {
	case Idle:
		return "idle"
	case AccelerateHeld:
		return "accelerate"
	case HoldSpeed:
		return "hold"
	case Brake:
		return "brake"
	default:
		return fmt.Sprintf("intent(%d)", uint32(i))
	}
}

// Code is a recognized remote command.
type Code int

const (
	CodeUnknown Code = iota
	CodeAdvance
	CodeRelease
	CodeBrake
)

func (c Code) String() string {
	switch c {
	case CodeAdvance:
		return "advance"
	case CodeRelease:
		return "release"
	case CodeBrake:
		return "brake"
	default:
		return "unknown"
	}
}

// Codes maps wire bytes to commands.
type Codes struct {
	Advance byte
	Release byte
	Brake   byte
}

// CodesFromConfig builds the byte mapping from configuration.
func CodesFromConfig(cfg config.CommandConfig) Codes {
	first := func(s string, def byte) byte {
		if len(s) == 0 {
			return def
		}
		return s[0]
	}
	return Codes{
		Advance: first(cfg.Advance, 'A'),
		Release: first(cfg.Release, 'R'),
		Brake:   first(cfg.Brake, 'F'),
	}
}

// Parse maps a received byte to a Code.
func (c Codes) Parse(b byte) Code {
	switch b {
	case c.Advance:
		return CodeAdvance
	case c.Release:
		return CodeRelease
	case c.Brake:
		return CodeBrake
	default:
		return CodeUnknown
	}
}

// Byte returns the wire byte for code, or 0 for CodeUnknown.
func (c Codes) Byte(code Code) byte {
	switch code {
	case CodeAdvance:
		return c.Advance
	case CodeRelease:
		return c.Release
	case CodeBrake:
		return c.Brake
	default:
		return 0
	}
}

// Decoder turns remote commands into a control intent.
//
// State transitions:
//
//	Advance: Idle/AccelerateHeld/HoldSpeed -> HoldSpeed if within the double-tap
//	         window of the previous Advance, AccelerateHeld otherwise. Ignored
//	         while braking.
//	Release: AccelerateHeld -> Idle. No effect on HoldSpeed or Brake.
//	Brake:   any -> Brake. The ramp controller returns it to Idle via CompleteBrake.
//
// OnCommand calls are serialized by a mutex; the intent itself is an atomic
// word so that readers never take the lock.
type Decoder struct {
	window time.Duration

	mu          sync.Mutex
	lastAdvance time.Duration
	hasAdvance  bool

	intent atomic.Uint32
}

// NewDecoder creates a decoder with the given double-tap window.
func NewDecoder(doubleTapWindow time.Duration) *Decoder {
	return &Decoder{window: doubleTapWindow}
}

// OnCommand applies a command received at timestamp (monotonic time since start).
func (d *Decoder) OnCommand(code Code, timestamp time.Duration) {
	d.mu.Lock()
	defer d.mu.Unlock()

	switch code {
	case CodeAdvance:
		doubleTap := d.hasAdvance && timestamp-d.lastAdvance < d.window && timestamp >= d.lastAdvance
		d.lastAdvance = timestamp
		d.hasAdvance = true
		if Intent(d.intent.Load()) == Brake {
			return
		}
		if doubleTap {
			d.intent.Store(uint32(HoldSpeed))
		} else {
			d.intent.Store(uint32(AccelerateHeld))
		}
	case CodeRelease:
		d.intent.CompareAndSwap(uint32(AccelerateHeld), uint32(Idle))
	case CodeBrake:
		d.intent.Store(uint32(Brake))
	}
}

// TriggerBrake requests a braking ramp regardless of the current intent.
func (d *Decoder) TriggerBrake() {
	d.intent.Store(uint32(Brake))
}

// Intent returns the current intent.
func (d *Decoder) Intent() Intent {
	return Intent(d.intent.Load())
}

// CompleteBrake returns Brake to Idle. It is a no-op unless the intent is Brake.
func (d *Decoder) CompleteBrake() bool {
	return d.intent.CompareAndSwap(uint32(Brake), uint32(Idle))
}

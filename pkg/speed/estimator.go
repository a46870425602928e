package speed

import (
	"github.com/chewxy/math32"
	"github.com/itohio/golongboard/pkg/config"
	"github.com/itohio/golongboard/pkg/pulse"
)

// microsPerSecond converts microsecond intervals to rotations per second.
const microsPerSecond = 1_000_000

// IntervalSource provides the latest inter-edge interval in microseconds, or 0 for no signal.
type IntervalSource interface {
	Interval(now uint32) uint32
}

var _ IntervalSource = (*pulse.Tracker)(nil)

// Estimator converts the latest slot interval into a linear velocity.
// It holds no mutable state and is safe for concurrent use.
type Estimator struct {
	source      IntervalSource
	clock       pulse.Clock
	slots       float32
	radius      float32
	minInterval uint32
}

// New creates an Estimator reading intervals from source, aged against clock.
func New(source IntervalSource, clock pulse.Clock, cfg config.WheelConfig, minInterval uint32) *Estimator {
	slots := cfg.Slots
	if slots <= 0 {
		slots = 1
	}
	if minInterval == 0 {
		minInterval = 1
	}
	return &Estimator{
		source:      source,
		clock:       clock,
		slots:       float32(slots),
		radius:      cfg.Radius,
		minInterval: minInterval,
	}
}

// RPS returns wheel rotations per second, 0 when stopped or when the interval is implausibly short.
func (e *Estimator) RPS() float32 {
	interval := e.source.Interval(e.clock.Micros())
	if interval < e.minInterval {
		return 0
	}
	return microsPerSecond / (float32(interval) * e.slots)
}

// Estimate returns the linear velocity in meters per second. Never negative.
func (e *Estimator) Estimate() float32 {
	v := 2 * math32.Pi * e.radius * e.RPS()
	if v < 0 || math32.IsNaN(v) || math32.IsInf(v, 0) {
		return 0
	}
	return v
}

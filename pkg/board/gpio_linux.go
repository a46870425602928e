//go:build linux

package board

import (
	"fmt"
	"log"

	"github.com/itohio/golongboard/pkg/config"
	"github.com/itohio/golongboard/pkg/pulse"
	"github.com/warthog618/go-gpiocdev"
	"golang.org/x/sys/unix"
)

// GPIOEdges reports slot sensor edges from a Linux GPIO line.
// Edge timestamps come from the kernel CLOCK_MONOTONIC, the same domain as Clock.
type GPIOEdges struct {
	line *gpiocdev.Line
}

// OpenGPIOEdges requests the sensor line and calls onEdge with the edge timestamp
// in microseconds for every falling edge.
func OpenGPIOEdges(cfg config.GPIOConfig, onEdge func(micros uint32)) (*GPIOEdges, error) {
	if cfg.SensorLine < 0 {
		return nil, fmt.Errorf("gpio sensor line not configured")
	}

	l, err := gpiocdev.RequestLine(cfg.Chip, cfg.SensorLine,
		gpiocdev.WithPullUp,
		gpiocdev.WithFallingEdge,
		gpiocdev.WithEventHandler(func(evt gpiocdev.LineEvent) {
			onEdge(uint32(evt.Timestamp.Microseconds()))
		}))
	if err != nil {
		return nil, fmt.Errorf("failed to request %s:%d: %w", cfg.Chip, cfg.SensorLine, err)
	}

	log.Printf("Listening for slot edges on %s:%d", cfg.Chip, cfg.SensorLine)
	return &GPIOEdges{line: l}, nil
}

// Clock returns the kernel monotonic clock in microseconds.
func (g *GPIOEdges) Clock() pulse.Clock {
	return pulse.ClockFunc(monotonicMicros)
}

// Close releases the line.
func (g *GPIOEdges) Close() error {
	return g.line.Close()
}

func monotonicMicros() uint32 {
	var ts unix.Timespec
	if err := unix.ClockGettime(unix.CLOCK_MONOTONIC, &ts); err != nil {
		return 0
	}
	return uint32(ts.Nano() / 1000)
}

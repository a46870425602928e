//go:build !linux

package board

import (
	"fmt"

	"github.com/itohio/golongboard/pkg/config"
	"github.com/itohio/golongboard/pkg/pulse"
)

// GPIOEdges is only available on Linux.
type GPIOEdges struct{}

// OpenGPIOEdges always fails outside Linux.
func OpenGPIOEdges(cfg config.GPIOConfig, onEdge func(micros uint32)) (*GPIOEdges, error) {
	return nil, fmt.Errorf("gpio edges are not supported on this platform")
}

// Clock returns nil.
func (g *GPIOEdges) Clock() pulse.Clock { return nil }

// Close does nothing.
func (g *GPIOEdges) Close() error { return nil }

package board

import "github.com/itohio/golongboard/pkg/pulse"

// Device defines the interface for longboard boards (real or simulated).
type Device interface {
	Connect() error
	Close() error
	Events() <-chan Event
	Clock() pulse.Clock
	SetMotor(percent uint8) error
	SendTelemetry(text string) error
	SetIndicators(mask Indicator) error
	IsConnected() bool
}

// Ensure Serial implements Device.
var _ Device = (*Serial)(nil)

// Ensure Mock implements Device.
var _ Device = (*Mock)(nil)

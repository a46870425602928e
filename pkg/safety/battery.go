package safety

import (
	"github.com/chewxy/math32"
	"github.com/itohio/golongboard/pkg/config"
)

// Battery converts divider-side ADC millivolts into pack voltage and charge percentage.
type Battery struct {
	divider float32
	empty   float32
	full    float32
}

// NewBattery creates a converter from configuration.
func NewBattery(cfg config.BatteryConfig) Battery {
	return Battery{
		divider: cfg.DividerFactor,
		empty:   cfg.EmptyVoltage,
		full:    cfg.FullVoltage,
	}
}

// Voltage returns the pack voltage for a divider reading in millivolts.
func (b Battery) Voltage(millivolts uint32) float32 {
	return float32(millivolts) / 1000 * b.divider
}

// Percent maps pack voltage linearly onto [0, 100] between the empty and full voltages.
func (b Battery) Percent(voltage float32) float32 {
	span := b.full - b.empty
	if span <= 0 || math32.IsNaN(voltage) {
		return 0
	}
	p := (voltage - b.empty) / span * 100
	return math32.Max(0, math32.Min(100, p))
}

package main

import (
	"fmt"

	"fyne.io/fyne/v2"
	"github.com/itohio/golongboard/pkg/telemetry"
)

// UpdateWidgetOnMainThread schedules a widget update function to run on the main Fyne thread.
// Fyne widgets cannot be updated directly from goroutines.
// The callback should copy data quickly and return as fast as possible.
func UpdateWidgetOnMainThread(callback func()) {
	if callback == nil {
		return
	}
	fyne.Do(callback)
}

// statusText formats the newest record for the status bar.
func statusText(r telemetry.Record, accel float64) string {
	link := "down"
	if r.Connected {
		link = "up"
	}
	return fmt.Sprintf("%.1f km/h | %+.2f m/s² | Bat %.2f V (%.0f%%) | Duty %d%% | %s | %s | Link %s",
		r.SpeedKMH, accel, r.BatteryVoltage, r.BatteryPercent, r.Duty, r.Intent, r.Safety, link)
}

// lastAcceleration returns the newest acceleration, or 0 when there is none.
func lastAcceleration(accel []float64) float64 {
	if len(accel) == 0 {
		return 0
	}
	return accel[len(accel)-1]
}

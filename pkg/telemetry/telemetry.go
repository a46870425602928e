package telemetry

import (
	"context"
	"fmt"
	"log"
	"time"
)

// Record is a periodic status snapshot.
type Record struct {
	Timestamp      time.Time `json:"timestamp"`
	Speed          float32   `json:"speed_ms"`
	SpeedKMH       float32   `json:"speed_kmh"`
	BatteryVoltage float32   `json:"battery_v"`
	BatteryPercent float32   `json:"battery_pct"`
	Duty           uint8     `json:"duty_pct"`
	Intent         string    `json:"intent"`
	Safety         string    `json:"safety"`
	Connected      bool      `json:"connected"`
}

// Text formats the record for the wireless link.
func (r Record) Text() string {
	return fmt.Sprintf("Bat: %.2f V | Vel: %.2f km/h", r.BatteryVoltage, r.SpeedKMH)
}

// Sink accepts telemetry records.
type Sink interface {
	Send(r Record) error
}

// Link sends telemetry text over the wireless link.
type Link interface {
	LinkConnected() bool
	SendTelemetry(text string) error
}

// LinkSink forwards records to the rider's remote. Records are dropped while the link is down.
type LinkSink struct {
	link Link
}

// NewLinkSink wraps a link.
func NewLinkSink(link Link) *LinkSink {
	return &LinkSink{link: link}
}

// Send implements Sink.
func (s *LinkSink) Send(r Record) error {
	if !s.link.LinkConnected() {
		return nil
	}
	if err := s.link.SendTelemetry(r.Text()); err != nil {
		return fmt.Errorf("send telemetry over link: %w", err)
	}
	return nil
}

// Reporter samples a record and fans it out to sinks.
type Reporter struct {
	sample func() Record
	sinks  []Sink
}

// NewReporter creates a reporter that takes snapshots with sample.
func NewReporter(sample func() Record, sinks ...Sink) *Reporter {
	return &Reporter{sample: sample, sinks: sinks}
}

// Report takes one snapshot and sends it to every sink. Sink errors are logged, not returned.
func (r *Reporter) Report() Record {
	rec := r.sample()
	for _, s := range r.sinks {
		if err := s.Send(rec); err != nil {
			log.Printf("Telemetry: %v", err)
		}
	}
	return rec
}

// Run reports every period until ctx is cancelled.
func (r *Reporter) Run(ctx context.Context, period time.Duration) {
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Report()
		}
	}
}

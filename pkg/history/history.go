package history

import (
	"sync"
	"time"

	"github.com/itohio/golongboard/pkg/command"
	"github.com/itohio/golongboard/pkg/config"
	"github.com/itohio/golongboard/pkg/safety"
	"github.com/itohio/golongboard/pkg/telemetry"
)

var _ telemetry.Sink = (*History)(nil)

// Segment is a run of consecutive records spent braking or in low power.
type Segment struct {
	StartIndex int       // First record index in buffer
	EndIndex   int       // Last record index in buffer (updated while the run continues)
	StartTime  time.Time // Start timestamp
	EndTime    time.Time // End timestamp (updated while the run continues)
	Reason     string    // "brake" or "low-power"
}

// UpdateFunc receives the current records, accelerations, and segments.
type UpdateFunc func(records []telemetry.Record, accel []float64, segments []Segment)

// History keeps a time window of telemetry records for plotting.
//
// Accelerations correspond to record pairs:
//   - accel[i] = (records[i+1].Speed - records[i].Speed) / dt
//   - n records give n-1 accelerations
//
// Records are removed by timestamp, not count.
type History struct {
	mu       sync.RWMutex
	records  []telemetry.Record
	accel    []float64
	segments []Segment
	window   time.Duration

	callbacks []UpdateFunc
	cbMu      sync.RWMutex

	// Set when the input channel closes, prevents further callbacks
	shutdown bool
}

// New creates an empty history.
func New(cfg config.DashboardConfig) *History {
	window := cfg.Window
	if window <= 0 {
		window = config.Default().Dashboard.Window
	}
	return &History{
		records:  make([]telemetry.Record, 0),
		accel:    make([]float64, 0),
		segments: make([]Segment, 0),
		window:   window,
	}
}

// Send implements telemetry.Sink.
func (h *History) Send(r telemetry.Record) error {
	h.add(r)
	return nil
}

// ProcessRecords adds records from the input channel until it closes.
func (h *History) ProcessRecords(input <-chan telemetry.Record) {
	for r := range input {
		h.add(r)
	}
	h.mu.Lock()
	h.shutdown = true
	h.mu.Unlock()
}

// add appends a record, trims the window, updates accelerations and segments.
func (h *History) add(r telemetry.Record) {
	h.mu.Lock()

	h.records = append(h.records, r)

	cutoffTime := r.Timestamp.Add(-h.window)
	cutoffIndex := 0
	for i, rec := range h.records {
		if rec.Timestamp.After(cutoffTime) {
			cutoffIndex = i
			break
		}
	}
	if cutoffIndex > 0 {
		h.records = h.records[cutoffIndex:]

		// Keep accel[i] aligned with the pair (records[i], records[i+1]).
		if cutoffIndex <= len(h.accel) {
			h.accel = h.accel[cutoffIndex:]
		} else {
			h.accel = h.accel[:0]
		}

		valid := h.segments[:0]
		for _, s := range h.segments {
			s.StartIndex -= cutoffIndex
			s.EndIndex -= cutoffIndex
			if s.EndIndex < 0 {
				continue
			}
			if s.StartIndex < 0 {
				s.StartIndex = 0
				s.StartTime = h.records[0].Timestamp
			}
			valid = append(valid, s)
		}
		h.segments = valid
	}

	if len(h.records) >= 2 {
		last := len(h.records) - 1
		prev := h.records[last-1]
		curr := h.records[last]

		dt := curr.Timestamp.Sub(prev.Timestamp).Seconds()
		if dt > 0 {
			h.accel = append(h.accel, float64(curr.Speed-prev.Speed)/dt)
		} else {
			h.accel = append(h.accel, 0)
		}
		if len(h.accel) > len(h.records)-1 {
			h.accel = h.accel[1:]
		}
	}

	h.updateSegments()

	shouldNotify := !h.shutdown
	h.mu.Unlock()

	if shouldNotify {
		h.notifyCallbacks()
	}
}

// reason classifies a record. Low power wins over brake.
func reason(r telemetry.Record) string {
	switch {
	case r.Safety == safety.LowPower.String():
		return r.Safety
	case r.Intent == command.Brake.String():
		return r.Intent
	default:
		return ""
	}
}

// updateSegments extends the open segment or starts a new one for the newest record.
func (h *History) updateSegments() {
	last := len(h.records) - 1
	rec := h.records[last]
	why := reason(rec)
	if why == "" {
		return
	}

	if n := len(h.segments); n > 0 {
		s := &h.segments[n-1]
		if s.EndIndex == last-1 && s.Reason == why {
			s.EndIndex = last
			s.EndTime = rec.Timestamp
			return
		}
	}

	h.segments = append(h.segments, Segment{
		StartIndex: last,
		EndIndex:   last,
		StartTime:  rec.Timestamp,
		EndTime:    rec.Timestamp,
		Reason:     why,
	})
}

// Records returns a copy of the current records buffer.
func (h *History) Records() []telemetry.Record {
	h.mu.RLock()
	defer h.mu.RUnlock()

	result := make([]telemetry.Record, len(h.records))
	copy(result, h.records)
	return result
}

// Accelerations returns a copy of the current accelerations in m/s².
func (h *History) Accelerations() []float64 {
	h.mu.RLock()
	defer h.mu.RUnlock()

	result := make([]float64, len(h.accel))
	copy(result, h.accel)
	return result
}

// Segments returns a copy of the brake and low-power segments.
func (h *History) Segments() []Segment {
	h.mu.RLock()
	defer h.mu.RUnlock()

	result := make([]Segment, len(h.segments))
	copy(result, h.segments)
	return result
}

// OnUpdate registers a callback invoked after each added record.
// The callback should copy data quickly and return as fast as possible.
func (h *History) OnUpdate(callback UpdateFunc) {
	h.cbMu.Lock()
	defer h.cbMu.Unlock()
	h.callbacks = append(h.callbacks, callback)
}

// ResetShutdown allows callbacks again after the input channel was closed.
func (h *History) ResetShutdown() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.shutdown = false
}

// notifyCallbacks copies data under the read lock, then calls callbacks without locks.
func (h *History) notifyCallbacks() {
	h.mu.RLock()
	records := make([]telemetry.Record, len(h.records))
	copy(records, h.records)
	accel := make([]float64, len(h.accel))
	copy(accel, h.accel)
	segments := make([]Segment, len(h.segments))
	copy(segments, h.segments)
	h.mu.RUnlock()

	h.cbMu.RLock()
	callbacks := make([]UpdateFunc, len(h.callbacks))
	copy(callbacks, h.callbacks)
	h.cbMu.RUnlock()

	for _, cb := range callbacks {
		if cb != nil {
			cb(records, accel, segments)
		}
	}
}

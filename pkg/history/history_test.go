package history

import (
	"sync"
	"testing"
	"time"

	"github.com/itohio/golongboard/pkg/config"
	"github.com/itohio/golongboard/pkg/telemetry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rec(at time.Time, speed float32, intent, safety string) telemetry.Record {
	return telemetry.Record{Timestamp: at, Speed: speed, Intent: intent, Safety: safety}
}

func TestNew(t *testing.T) {
	h := New(config.DashboardConfig{})

	assert.NotNil(t, h)
	assert.Equal(t, config.Default().Dashboard.Window, h.window)
	assert.Empty(t, h.Records())
	assert.Empty(t, h.Accelerations())
	assert.Empty(t, h.Segments())
}

func TestSend_Basic(t *testing.T) {
	h := New(config.Default().Dashboard)
	r := rec(time.Now(), 1, "idle", "normal")

	require.NoError(t, h.Send(r))

	records := h.Records()
	require.Len(t, records, 1)
	assert.Equal(t, r, records[0])
	assert.Empty(t, h.Accelerations(), "need at least 2 records")
}

func TestSend_Acceleration(t *testing.T) {
	h := New(config.Default().Dashboard)
	now := time.Now()

	require.NoError(t, h.Send(rec(now, 1.0, "accelerate", "normal")))
	require.NoError(t, h.Send(rec(now.Add(500*time.Millisecond), 2.0, "accelerate", "normal")))
	require.NoError(t, h.Send(rec(now.Add(500*time.Millisecond), 3.0, "accelerate", "normal")))

	accel := h.Accelerations()
	require.Len(t, accel, 2)
	assert.InDelta(t, 2.0, accel[0], 1e-6) // 1 m/s in 0.5 s
	assert.Equal(t, 0.0, accel[1], "zero dt gives zero acceleration")
}

func TestSend_WindowRemoval(t *testing.T) {
	h := New(config.DashboardConfig{Window: time.Second})
	now := time.Now()

	for i := range 5 {
		require.NoError(t, h.Send(rec(now.Add(time.Duration(i)*400*time.Millisecond), float32(i), "idle", "normal")))
	}

	records := h.Records()
	assert.Len(t, records, 3, "only records within 1s of the newest remain")
	assert.Equal(t, float32(2), records[0].Speed)
	assert.Len(t, h.Accelerations(), len(records)-1)
}

func TestSegments(t *testing.T) {
	h := New(config.DashboardConfig{Window: time.Minute})
	now := time.Now()
	dt := 100 * time.Millisecond

	seq := []struct{ intent, safety string }{
		{"accelerate", "normal"},
		{"brake", "normal"},
		{"brake", "normal"},
		{"idle", "normal"},
		{"brake", "low-power"},
		{"idle", "low-power"},
		{"idle", "normal"},
	}
	for i, s := range seq {
		require.NoError(t, h.Send(rec(now.Add(time.Duration(i)*dt), 0, s.intent, s.safety)))
	}

	segments := h.Segments()
	require.Len(t, segments, 2)

	assert.Equal(t, "brake", segments[0].Reason)
	assert.Equal(t, 1, segments[0].StartIndex)
	assert.Equal(t, 2, segments[0].EndIndex)
	assert.Equal(t, now.Add(dt), segments[0].StartTime)
	assert.Equal(t, now.Add(2*dt), segments[0].EndTime)

	assert.Equal(t, "low-power", segments[1].Reason, "low power wins over brake")
	assert.Equal(t, 4, segments[1].StartIndex)
	assert.Equal(t, 5, segments[1].EndIndex)
}

func TestSegments_TrimmedByWindow(t *testing.T) {
	h := New(config.DashboardConfig{Window: 300 * time.Millisecond})
	now := time.Now()
	dt := 100 * time.Millisecond

	intents := []string{"brake", "brake", "brake", "idle", "idle", "idle"}
	for i, intent := range intents {
		require.NoError(t, h.Send(rec(now.Add(time.Duration(i)*dt), 0, intent, "normal")))
		for _, s := range h.Segments() {
			assert.GreaterOrEqual(t, s.StartIndex, 0)
			assert.GreaterOrEqual(t, s.EndIndex, s.StartIndex)
			assert.Less(t, s.EndIndex, len(h.Records()))
		}
	}
	assert.Empty(t, h.Segments(), "brake run has left the window")
}

func TestOnUpdate(t *testing.T) {
	h := New(config.Default().Dashboard)

	var mu sync.Mutex
	var got [][]telemetry.Record
	h.OnUpdate(func(records []telemetry.Record, accel []float64, segments []Segment) {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, records)
	})

	now := time.Now()
	require.NoError(t, h.Send(rec(now, 1, "idle", "normal")))
	require.NoError(t, h.Send(rec(now.Add(time.Second), 2, "idle", "normal")))

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, got, 2)
	assert.Len(t, got[0], 1)
	assert.Len(t, got[1], 2)
}

// TestProcessRecords_NoCallbacksAfterClose tests that history stops sending
// callbacks after the input channel is closed.
func TestProcessRecords_NoCallbacksAfterClose(t *testing.T) {
	h := New(config.Default().Dashboard)

	var mu sync.Mutex
	count := 0
	h.OnUpdate(func([]telemetry.Record, []float64, []Segment) {
		mu.Lock()
		count++
		mu.Unlock()
	})

	input := make(chan telemetry.Record, 10)
	done := make(chan struct{})
	go func() {
		defer close(done)
		h.ProcessRecords(input)
	}()

	now := time.Now()
	for i := range 3 {
		input <- rec(now.Add(time.Duration(i)*time.Second), float32(i), "idle", "normal")
	}
	close(input)
	<-done

	mu.Lock()
	assert.Equal(t, 3, count)
	mu.Unlock()

	require.NoError(t, h.Send(rec(now.Add(5*time.Second), 1, "idle", "normal")))
	mu.Lock()
	assert.Equal(t, 3, count, "no callbacks after shutdown")
	mu.Unlock()
	assert.Len(t, h.Records(), 4, "records are still kept")

	h.ResetShutdown()
	require.NoError(t, h.Send(rec(now.Add(6*time.Second), 1, "idle", "normal")))
	mu.Lock()
	assert.Equal(t, 4, count)
	mu.Unlock()
}

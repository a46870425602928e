// Package pulse tracks the interval between slot sensor edges.
//
// The tracker has exactly one writer, the edge handler, which may run in
// interrupt-like context (a GPIO event handler or the serial event pump) and
// must never block. Readers run in periodic tasks. The latest edge timestamp
// and the interval leading to it are packed into one 64-bit word updated with
// compare-and-swap, so a reader always sees a matching pair: possibly one edge
// old, never torn. Readers only ever swap in the stale marker.
package pulse

import (
	"sync/atomic"
	"time"
)

// Clock reads the sensor clock in microseconds. The counter is free running
// and may wrap; all arithmetic on it is modulo 2^32.
type Clock interface {
	Micros() uint32
}

// ClockFunc adapts a function to Clock.
type ClockFunc func() uint32

// Micros implements Clock.
func (f ClockFunc) Micros() uint32 { return f() }

// MonotonicClock returns a Clock counting microseconds since it was created.
func MonotonicClock() Clock {
	start := time.Now()
	return ClockFunc(func() uint32 {
		return uint32(time.Since(start).Microseconds())
	})
}

// noEdge in the interval half of the state means the next edge only re-arms
// the tracker: no edge yet, or the previous edge went stale.
const noEdge = ^uint32(0)

// Tracker keeps the most recent inter-edge interval.
type Tracker struct {
	stall uint32 // Stall window in microseconds

	// state packs last edge timestamp (high 32 bits) and interval (low 32 bits).
	state atomic.Uint64
	edges atomic.Uint64
}

// NewTracker creates a tracker that reports no signal once no edge has been
// seen for longer than stallWindow.
func NewTracker(stallWindow time.Duration) *Tracker {
	stall := stallWindow.Microseconds()
	if stall <= 0 || stall >= 1<<31 {
		// Half the counter range is the longest window modular arithmetic can tell apart.
		stall = 1<<31 - 1
	}
	t := &Tracker{stall: uint32(stall)}
	t.state.Store(pack(0, noEdge))
	return t
}

// OnEdge records a slot edge at timestamp (sensor clock, microseconds).
// It never blocks and never allocates.
//
// The first edge after a stall yields no interval: the gap since the edge
// before the stop is not a rotation period, and may have wrapped the counter.
func (t *Tracker) OnEdge(timestamp uint32) {
	t.edges.Add(1)
	for {
		v := t.state.Load()
		last, interval := unpack(v)
		next := pack(timestamp, timestamp-last)
		if interval == noEdge || timestamp-last > t.stall {
			next = pack(timestamp, 0)
		}
		if t.state.CompareAndSwap(v, next) {
			return
		}
	}
}

// Interval returns the latest interval in microseconds, or 0 when there is no
// signal: fewer than two edges since the last stall, or the last edge is older
// than the stall window.
//
// A stale edge is marked in place so that the next edge re-arms the tracker
// and the state stays cleared after the counter wraps.
func (t *Tracker) Interval(now uint32) uint32 {
	v := t.state.Load()
	last, interval := unpack(v)
	if interval == noEdge {
		return 0
	}
	age := now - last
	if int32(age) < 0 {
		// Edge landed after now was sampled.
		return interval
	}
	if age > t.stall {
		t.state.CompareAndSwap(v, pack(last, noEdge))
		return 0
	}
	return interval
}

// Edges returns the number of edges recorded so far.
func (t *Tracker) Edges() uint64 {
	return t.edges.Load()
}

func pack(timestamp, interval uint32) uint64 {
	return uint64(timestamp)<<32 | uint64(interval)
}

func unpack(v uint64) (timestamp, interval uint32) {
	return uint32(v >> 32), uint32(v)
}

package telemetry

import (
	"log"
	"sync"
)

// ChannelSink queues records on a buffered channel for a consumer goroutine.
// A full channel drops the record instead of stalling the reporter.
type ChannelSink struct {
	mu     sync.Mutex
	ch     chan Record
	closed bool
}

// NewChannelSink creates a sink with the given buffer size.
func NewChannelSink(bufSize int) *ChannelSink {
	if bufSize <= 0 {
		bufSize = 1
	}
	return &ChannelSink{ch: make(chan Record, bufSize)}
}

// Records returns the channel that receives records. It is closed by Close.
func (s *ChannelSink) Records() <-chan Record {
	return s.ch
}

// Send implements Sink.
func (s *ChannelSink) Send(r Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	select {
	case s.ch <- r:
	default:
		log.Printf("Telemetry channel full, dropping record")
	}
	return nil
}

// Close closes the records channel. Later sends are dropped.
func (s *ChannelSink) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.closed {
		s.closed = true
		close(s.ch)
	}
}

package longboard

import (
	"errors"
	"sync/atomic"
	"time"

	"github.com/itohio/golongboard/pkg/safety"
)

// batteryTimeout is how long a battery reading stays valid.
const batteryTimeout = 5 * time.Second

var (
	errNoBattery    = errors.New("no battery reading yet")
	errStaleBattery = errors.New("battery reading is stale")
)

var _ safety.Source = (*status)(nil)

// status holds the last link and battery reports from the board.
type status struct {
	link      atomic.Bool
	mv        atomic.Uint32
	batteryAt atomic.Int64 // Host UnixNano of the last reading, 0 = none
	timeout   time.Duration
	now       func() time.Time
}

func newStatus() *status {
	return &status{timeout: batteryTimeout, now: time.Now}
}

func (s *status) setLink(up bool) bool {
	return s.link.Swap(up) != up
}

func (s *status) setBattery(mv uint32) {
	s.mv.Store(mv)
	s.batteryAt.Store(s.now().UnixNano())
}

// LinkConnected implements safety.Source.
func (s *status) LinkConnected() bool {
	return s.link.Load()
}

// BatteryMillivolts implements safety.Source.
func (s *status) BatteryMillivolts() (uint32, error) {
	at := s.batteryAt.Load()
	if at == 0 {
		return 0, errNoBattery
	}
	if s.now().Sub(time.Unix(0, at)) > s.timeout {
		return s.mv.Load(), errStaleBattery
	}
	return s.mv.Load(), nil
}

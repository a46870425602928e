package board

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/itohio/golongboard/pkg/pulse"
	"go.bug.st/serial"
)

const (
	// DefaultBaudRate is the standard baud rate of the MCU bridge.
	DefaultBaudRate = 115200
	// DefaultBufferSize is the default size for the events channel buffer.
	DefaultBufferSize = 256
)

// Port represents a serial port.
type Port struct {
	Name        string
	Description string
}

// Serial represents a connection to the longboard MCU bridge.
type Serial struct {
	port     string
	baudRate int
	bufSize  int

	conn      io.ReadWriteCloser
	events    chan Event
	mu        sync.RWMutex
	writeMu   sync.Mutex
	ctx       context.Context
	cancel    context.CancelFunc
	connected bool
	done      chan struct{}

	clock *syncClock
}

// New creates a new Serial device with the specified port, baud rate, and buffer size.
func New(port string, baudRate int, bufSize int) *Serial {
	if baudRate == 0 {
		baudRate = DefaultBaudRate
	}
	if bufSize == 0 {
		bufSize = DefaultBufferSize
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Serial{
		port:     port,
		baudRate: baudRate,
		bufSize:  bufSize,
		events:   make(chan Event, bufSize),
		ctx:      ctx,
		cancel:   cancel,
		clock:    newSyncClock(),
	}
}

// Ports returns a list of available serial ports.
func Ports() ([]Port, error) {
	ports, err := serial.GetPortsList()
	if err != nil {
		return nil, fmt.Errorf("failed to list serial ports: %w", err)
	}

	result := make([]Port, 0, len(ports))
	for _, name := range ports {
		result = append(result, Port{
			Name:        name,
			Description: name,
		})
	}

	return result, nil
}

// Connect opens the serial port and starts reading events.
func (d *Serial) Connect() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.connected {
		return fmt.Errorf("already connected")
	}

	mode := &serial.Mode{
		BaudRate: d.baudRate,
	}

	port, err := serial.Open(d.port, mode)
	if err != nil {
		return fmt.Errorf("failed to open serial port %s: %w", d.port, err)
	}

	d.attach(port)
	return nil
}

// attach starts reading from an already open connection. Caller holds d.mu.
func (d *Serial) attach(conn io.ReadWriteCloser) {
	d.conn = conn
	d.connected = true
	d.done = make(chan struct{})
	go d.readEvents(conn)
}

// Close closes the connection and stops reading events.
// The events channel is closed once the reader has exited.
func (d *Serial) Close() error {
	d.mu.Lock()
	if !d.connected {
		d.mu.Unlock()
		return nil
	}

	d.cancel()

	if d.conn != nil {
		if err := d.conn.Close(); err != nil {
			log.Printf("Error closing serial port: %v", err)
		}
	}
	d.connected = false
	done := d.done
	d.mu.Unlock()

	<-done
	return nil
}

// Events returns the channel for reading board events.
func (d *Serial) Events() <-chan Event {
	return d.events
}

// Clock returns an estimate of the MCU clock, synchronized on every received record.
func (d *Serial) Clock() pulse.Clock {
	return d.clock
}

// SetMotor sends the motor duty percentage to the MCU.
func (d *Serial) SetMotor(percent uint8) error {
	return d.writeLine(motorLine(percent))
}

// SendTelemetry asks the MCU to forward text over the wireless link.
func (d *Serial) SendTelemetry(text string) error {
	return d.writeLine(telemetryLine(text))
}

// SetIndicators sets the MCU status LEDs.
func (d *Serial) SetIndicators(mask Indicator) error {
	return d.writeLine(indicatorLine(mask))
}

// IsConnected returns whether the device is currently connected.
func (d *Serial) IsConnected() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.connected
}

func (d *Serial) writeLine(line string) error {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if !d.connected {
		return fmt.Errorf("not connected")
	}

	d.writeMu.Lock()
	defer d.writeMu.Unlock()

	if _, err := io.WriteString(d.conn, line); err != nil {
		return fmt.Errorf("failed to write %q: %w", strings.TrimSpace(line), err)
	}
	return nil
}

// readEvents reads lines from the serial port and parses them into events.
func (d *Serial) readEvents(conn io.Reader) {
	defer close(d.done)
	defer close(d.events)
	defer func() {
		if r := recover(); r != nil {
			log.Printf("Panic in readEvents: %v", r)
		}
	}()

	scanner := bufio.NewScanner(conn)
	for {
		select {
		case <-d.ctx.Done():
			return
		default:
			if !scanner.Scan() {
				if err := scanner.Err(); err != nil && d.ctx.Err() == nil {
					log.Printf("Error reading from serial port: %v", err)
				}
				d.mu.Lock()
				d.connected = false
				d.mu.Unlock()
				return
			}

			line := strings.TrimSpace(scanner.Text())
			if line == "" {
				continue
			}

			ev, err := parseLine(line)
			if err != nil {
				log.Printf("Failed to parse line '%s': %v", line, err)
				continue
			}
			d.clock.sync(ev.Micros)

			if ev.Kind == EventEdge {
				// Edges must not block the reader; a dropped edge costs one interval sample.
				select {
				case d.events <- ev:
				case <-d.ctx.Done():
					return
				default:
					log.Printf("Events channel full, dropping %s event", ev.Kind)
				}
				continue
			}

			select {
			case d.events <- ev:
			case <-d.ctx.Done():
				return
			}
		}
	}
}

// syncClock extrapolates the MCU microsecond counter from the last received timestamp.
type syncClock struct {
	mu     sync.Mutex
	mcu    uint32
	hostAt time.Time
	synced bool
	start  time.Time
}

func newSyncClock() *syncClock {
	return &syncClock{start: time.Now()}
}

func (c *syncClock) sync(mcu uint32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.mcu = mcu
	c.hostAt = time.Now()
	c.synced = true
}

// Micros implements pulse.Clock.
func (c *syncClock) Micros() uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.synced {
		return uint32(time.Since(c.start).Microseconds())
	}
	return c.mcu + uint32(time.Since(c.hostAt).Microseconds())
}

package board

import (
	"fmt"
	"strconv"
	"strings"
)

// EventKind identifies what the board reported.
type EventKind int

const (
	EventEdge    EventKind = iota // Slot sensor edge
	EventBattery                  // Battery divider reading
	EventLink                     // Wireless link status change
	EventCommand                  // Remote command byte
)

func (k EventKind) String() string {
	switch k {
	case EventEdge:
		return "edge"
	case EventBattery:
		return "battery"
	case EventLink:
		return "link"
	case EventCommand:
		return "command"
	default:
		return fmt.Sprintf("event(%d)", int(k))
	}
}

// Event is a single report from the board.
type Event struct {
	Kind       EventKind
	Micros     uint32 // Board clock at the time of the event
	Millivolts uint32 // EventBattery
	Connected  bool   // EventLink
	Command    byte   // EventCommand
}

// Indicator is a bitmask of the status LEDs.
type Indicator uint8

const (
	IndicatorActivity Indicator = 1 << iota // Any command received
	IndicatorAdvance                        // Advance received
	IndicatorHold                           // Hold speed active
)

// parseLine parses a line from the MCU into an Event.
// Format: kind,micros[,value]
//
//	E,1234567        slot edge
//	B,1234567,3300   battery divider millivolts
//	L,1234567,1      link up (0 = down)
//	C,1234567,65     command byte (decimal)
func parseLine(line string) (Event, error) {
	parts := strings.Split(line, ",")
	if len(parts) < 2 {
		return Event{}, fmt.Errorf("invalid line format: expected at least 2 comma-separated values, got %d", len(parts))
	}

	micros, err := strconv.ParseUint(parts[1], 10, 32)
	if err != nil {
		return Event{}, fmt.Errorf("invalid timestamp: %w", err)
	}
	ev := Event{Micros: uint32(micros)}

	if parts[0] == "E" {
		if len(parts) != 2 {
			return Event{}, fmt.Errorf("invalid edge: expected 2 values, got %d", len(parts))
		}
		ev.Kind = EventEdge
		return ev, nil
	}

	if len(parts) != 3 {
		return Event{}, fmt.Errorf("invalid line format: expected 3 comma-separated values, got %d", len(parts))
	}

	switch parts[0] {
	case "B":
		mv, err := strconv.ParseUint(parts[2], 10, 16)
		if err != nil {
			return Event{}, fmt.Errorf("invalid battery reading: %w", err)
		}
		ev.Kind = EventBattery
		ev.Millivolts = uint32(mv)
	case "L":
		switch parts[2] {
		case "0":
			ev.Connected = false
		case "1":
			ev.Connected = true
		default:
			return Event{}, fmt.Errorf("invalid link state: %q", parts[2])
		}
		ev.Kind = EventLink
	case "C":
		b, err := strconv.ParseUint(parts[2], 10, 8)
		if err != nil {
			return Event{}, fmt.Errorf("invalid command byte: %w", err)
		}
		ev.Kind = EventCommand
		ev.Command = byte(b)
	default:
		return Event{}, fmt.Errorf("unknown record kind %q", parts[0])
	}

	return ev, nil
}

// motorLine formats a motor command for the MCU.
func motorLine(percent uint8) string {
	if percent > 100 {
		percent = 100
	}
	return fmt.Sprintf("M,%d\n", percent)
}

// telemetryLine formats telemetry text for the MCU to forward over the wireless link.
func telemetryLine(text string) string {
	text = strings.NewReplacer("\n", " ", "\r", " ").Replace(text)
	return "T," + text + "\n"
}

// indicatorLine formats an LED mask for the MCU.
func indicatorLine(mask Indicator) string {
	return fmt.Sprintf("I,%d\n", uint8(mask))
}

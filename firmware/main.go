//go:build tinygo

//go:generate tinygo flash -target=xiao

package main

import (
	"machine"
	"runtime/volatile"
	"time"
)

var (
	adcBattery machine.ADC
	host       = machine.Serial
	ble        = machine.DefaultUART

	start time.Time

	// Slot edges captured in the interrupt, drained by the main loop
	edges    [EDGE_QUEUE]uint32
	edgeHead uint32 // Written only by the interrupt
	edgeTail uint32

	// Battery averaging
	batterySum   uint32
	batteryCount int
	lastADCRead  time.Time

	// Link state
	linkUp         bool
	lastLinkReport time.Time

	motorChannel uint8

	// Host line buffer
	hostBuffer [64]byte
	hostPos    int
)

func main() {
	start = time.Now()

	PIN_LED_ACTIVITY.Configure(machine.PinConfig{Mode: machine.PinOutput})
	PIN_LED_ADVANCE.Configure(machine.PinConfig{Mode: machine.PinOutput})
	PIN_LED_HOLD.Configure(machine.PinConfig{Mode: machine.PinOutput})
	PIN_BLE_STATE.Configure(machine.PinConfig{Mode: machine.PinInput})

	PIN_BATTERY_ADC.Configure(machine.PinConfig{Mode: machine.PinInput})
	adcBattery = machine.ADC{Pin: PIN_BATTERY_ADC}
	adcBattery.Configure(machine.ADCConfig{
		Reference:  ADC_REFERENCE_MV,
		Resolution: ADC_RESOLUTION,
	})

	if err := motorPWM.Configure(machine.PWMConfig{Period: uint64(time.Second) / MOTOR_PWM_FREQUENCY}); err != nil {
		println("could not configure PWM:", err.Error())
		return
	}
	ch, err := motorPWM.Channel(PIN_MOTOR)
	if err != nil {
		println("could not get PWM channel:", err.Error())
		return
	}
	motorChannel = ch
	setMotor(0)

	host.Configure(machine.UARTConfig{BaudRate: UART_BAUD_RATE})
	ble.Configure(machine.UARTConfig{BaudRate: BLE_BAUD_RATE})

	PIN_SENSOR.Configure(machine.PinConfig{Mode: machine.PinInputPullup})
	if err := PIN_SENSOR.SetInterrupt(machine.PinFalling, onSlot); err != nil {
		println("could not configure slot sensor interrupt:", err.Error())
		return
	}

	lastADCRead = time.Now()

	// Main loop
	for {
		now := time.Now()

		processHost()
		processRemote()
		drainEdges()

		if now.Sub(lastADCRead) >= BATTERY_INTERVAL_MS*time.Millisecond {
			readBattery()
			lastADCRead = now
		}
		if batteryCount >= NUM_SAMPLES {
			outputBattery()
			batterySum = 0
			batteryCount = 0
		}

		checkLink(now)

		time.Sleep(100 * time.Microsecond)
	}
}

// micros is the bridge timer: microseconds since boot, wrapping at 2^32.
func micros() uint32 {
	return uint32(time.Since(start) / time.Microsecond)
}

//go:noinline
func onSlot(machine.Pin) {
	head := volatile.LoadUint32(&edgeHead)
	edges[head%EDGE_QUEUE] = micros()
	volatile.StoreUint32(&edgeHead, head+1)
}

// drainEdges prints queued edges as "E,<us>". Edges overwritten by a full queue are lost.
func drainEdges() {
	head := volatile.LoadUint32(&edgeHead)
	if head-edgeTail > EDGE_QUEUE {
		edgeTail = head - EDGE_QUEUE
	}
	for edgeTail != head {
		print("E,", edges[edgeTail%EDGE_QUEUE], "\n")
		edgeTail++
	}
}

func readBattery() {
	batterySum += uint32(adcBattery.Get())
	batteryCount++
}

// outputBattery prints "B,<us>,<mV>" with the divider output in millivolts.
func outputBattery() {
	avg := batterySum / uint32(batteryCount)
	mv := avg * ADC_REFERENCE_MV / 0xffff // ADC.Get is scaled to 16 bits
	print("B,", micros(), ",", mv, "\n")
}

// checkLink prints "L,<us>,<0|1>" on change and periodically.
func checkLink(now time.Time) {
	up := PIN_BLE_STATE.Get()
	if up == linkUp && now.Sub(lastLinkReport) < LINK_REPORT_MS*time.Millisecond {
		return
	}
	linkUp = up
	lastLinkReport = now
	if up {
		print("L,", micros(), ",1\n")
	} else {
		print("L,", micros(), ",0\n")
	}
}

// processRemote forwards every byte received from the BLE module as "C,<us>,<byte>".
func processRemote() {
	for ble.Buffered() > 0 {
		data, err := ble.ReadByte()
		if err != nil {
			break
		}
		if data == '\n' || data == '\r' || data == ' ' {
			continue
		}
		print("C,", micros(), ",", data, "\n")
	}
}

// processHost reads host lines: "M,<pct>", "T,<text>", "I,<mask>".
func processHost() {
	for host.Buffered() > 0 {
		data, err := host.ReadByte()
		if err != nil {
			break
		}

		if data == '\n' || data == '\r' {
			if hostPos > 0 {
				handleHostLine(hostBuffer[:hostPos])
			}
			hostPos = 0
			continue
		}

		if hostPos < len(hostBuffer) {
			hostBuffer[hostPos] = data
			hostPos++
		}
		// Longer lines are truncated until newline
	}
}

func handleHostLine(line []byte) {
	if len(line) < 2 || line[1] != ',' {
		return
	}
	arg := line[2:]

	switch line[0] {
	case 'M':
		if v, ok := parseUint(arg); ok {
			setMotor(v)
		}
	case 'I':
		if v, ok := parseUint(arg); ok {
			setIndicators(v)
		}
	case 'T':
		ble.Write(arg)
		ble.Write([]byte{'\n'})
	}
}

func parseUint(b []byte) (uint32, bool) {
	if len(b) == 0 {
		return 0, false
	}
	var v uint32
	for _, c := range b {
		if c < '0' || c > '9' {
			return 0, false
		}
		v = v*10 + uint32(c-'0')
		if v > 0xffff {
			return 0, false
		}
	}
	return v, true
}

func setMotor(percent uint32) {
	if percent > 100 {
		percent = 100
	}
	motorPWM.Set(motorChannel, motorPWM.Top()*percent/100)
}

func setIndicators(mask uint32) {
	PIN_LED_ACTIVITY.Set(mask&1 != 0)
	PIN_LED_ADVANCE.Set(mask&2 != 0)
	PIN_LED_HOLD.Set(mask&4 != 0)
}

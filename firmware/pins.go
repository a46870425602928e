//go:build tinygo

package main

import "machine"

const (
	// Sampling configuration
	BATTERY_INTERVAL_MS = 10   // Battery ADC read interval in milliseconds
	NUM_SAMPLES         = 20   // Battery samples averaged per report (one report every 200ms)
	LINK_REPORT_MS      = 1000 // Link status is repeated at least this often

	// ADC configuration
	ADC_REFERENCE_MV = 3300 // Reference voltage in millivolts (3.3V)
	ADC_RESOLUTION   = 12   // ADC resolution in bits (12-bit = 0-4095)

	// Motor PWM
	MOTOR_PWM_FREQUENCY = 20000 // Above audible range for the L293D driven motor

	// Slot sensor edge queue, must be a power of two
	EDGE_QUEUE = 32

	// Serial configuration
	// Worst case edge line "E,4294967295\n" = 13 bytes. 20 slots at 50 rps = 1000 edges/s = 13,000 bytes/sec.
	// The host link is USB CDC, so the baud rate is nominal.
	UART_BAUD_RATE = 115200
	BLE_BAUD_RATE  = 9600 // HM-10 style BLE UART module default
)

var (
	// Slot sensor (TCRT5000 digital output), interrupt on falling edge
	PIN_SENSOR = machine.D1

	// Battery voltage through a 2:1 divider
	PIN_BATTERY_ADC = machine.A0

	// Motor enable of the L293D
	PIN_MOTOR = machine.D2
	motorPWM  = machine.TCC0

	// BLE module connection state output
	PIN_BLE_STATE = machine.D3

	// Indicator LEDs: activity, advance, hold
	PIN_LED_ACTIVITY = machine.D8
	PIN_LED_ADVANCE  = machine.D9
	PIN_LED_HOLD     = machine.D10
)

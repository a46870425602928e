package main

import (
	"fmt"
	"strconv"
	"time"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/dialog"
	"fyne.io/fyne/v2/widget"
	"github.com/itohio/golongboard/pkg/board"
	"github.com/itohio/golongboard/pkg/config"
)

// showSettingsDialog displays a settings dialog with tabs for all configuration options.
func showSettingsDialog(state *appState) {
	tabs := container.NewAppTabs(
		createSerialTab(state),
		createWheelTab(state),
		createCommandTab(state),
		createRampTab(state),
		createBatteryTab(state),
		createTelemetryTab(state),
		createMockTab(state),
	)

	content := container.NewBorder(nil, nil, nil, nil, tabs)
	content.Resize(fyne.NewSize(600, 500))

	d := dialog.NewCustom("Settings", "Close", content, state.window)
	d.Resize(fyne.NewSize(600, 500))
	d.Show()
}

// applyConfig validates and saves next, then makes it the active configuration.
// Running sessions pick up the change on the next connect.
func applyConfig(state *appState, next *config.Config) bool {
	if err := next.Validate(); err != nil {
		dialog.ShowError(fmt.Errorf("invalid settings: %w", err), state.window)
		return false
	}
	if err := next.Save(state.configPath); err != nil {
		dialog.ShowError(fmt.Errorf("failed to save config: %w", err), state.window)
		return false
	}
	*state.cfg = *next
	return true
}

func newEntry(text string) *widget.Entry {
	e := widget.NewEntry()
	e.SetText(text)
	return e
}

func parseFloat32(s string, dst *float32) {
	if v, err := strconv.ParseFloat(s, 32); err == nil {
		*dst = float32(v)
	}
}

func parseInt(s string, dst *int) {
	if v, err := strconv.Atoi(s); err == nil {
		*dst = v
	}
}

func parseDuration(s string, dst *time.Duration) {
	if v, err := time.ParseDuration(s); err == nil {
		*dst = v
	}
}

// createSerialTab creates the Serial configuration tab.
func createSerialTab(state *appState) *container.TabItem {
	// Get available serial ports
	ports, err := board.Ports()
	portOptions := []string{}
	portMap := make(map[string]string) // Map display name to actual port name

	if err == nil {
		for _, port := range ports {
			displayName := port.Name
			if port.Description != "" && port.Description != port.Name {
				displayName = fmt.Sprintf("%s (%s)", port.Name, port.Description)
			}
			portOptions = append(portOptions, displayName)
			portMap[displayName] = port.Name
		}
	}

	// Add current port if not in list
	currentPort := state.cfg.Serial.Port
	currentDisplay := currentPort
	found := false
	for _, opt := range portOptions {
		if portMap[opt] == currentPort {
			currentDisplay = opt
			found = true
			break
		}
	}
	if !found && currentPort != "" {
		portOptions = append(portOptions, currentPort)
		portMap[currentPort] = currentPort
	}

	portSelect := widget.NewSelect(portOptions, nil)
	if currentDisplay != "" {
		portSelect.SetSelected(currentDisplay)
	}
	baudEntry := newEntry(strconv.Itoa(state.cfg.Serial.BaudRate))

	form := &widget.Form{
		Items: []*widget.FormItem{
			{Text: "Serial Port", Widget: portSelect},
			{Text: "Baud Rate", Widget: baudEntry},
		},
		OnSubmit: func() {
			next := *state.cfg
			if portSelect.Selected != "" {
				next.Serial.Port = portMap[portSelect.Selected]
				if next.Serial.Port == "" {
					next.Serial.Port = portSelect.Selected
				}
			}
			parseInt(baudEntry.Text, &next.Serial.BaudRate)

			changed := next.Serial != state.cfg.Serial
			if !applyConfig(state, &next) {
				return
			}

			// Reconnect a live serial session to the new port
			if changed && state.session != nil && !state.useMock {
				handleConnect(state)
				handleConnect(state)
			}
		},
	}

	return container.NewTabItem("Serial", form)
}

// createWheelTab creates the Wheel and slot sensor configuration tab.
func createWheelTab(state *appState) *container.TabItem {
	slotsEntry := newEntry(strconv.Itoa(state.cfg.Wheel.Slots))
	radiusEntry := newEntry(fmt.Sprintf("%.4f", state.cfg.Wheel.Radius))
	stallEntry := newEntry(state.cfg.Pulse.StallWindow.String())
	minIntervalEntry := newEntry(strconv.FormatUint(uint64(state.cfg.Pulse.MinInterval), 10))
	gpioChipEntry := newEntry(state.cfg.GPIO.Chip)
	gpioLineEntry := newEntry(strconv.Itoa(state.cfg.GPIO.SensorLine))

	form := &widget.Form{
		Items: []*widget.FormItem{
			{Text: "Slots per Revolution", Widget: slotsEntry},
			{Text: "Wheel Radius (m)", Widget: radiusEntry},
			{Text: "Stall Window", Widget: stallEntry},
			{Text: "Min Interval (µs)", Widget: minIntervalEntry},
			{Text: "GPIO Chip", Widget: gpioChipEntry},
			{Text: "GPIO Sensor Line (-1=board)", Widget: gpioLineEntry},
		},
		OnSubmit: func() {
			next := *state.cfg
			parseInt(slotsEntry.Text, &next.Wheel.Slots)
			parseFloat32(radiusEntry.Text, &next.Wheel.Radius)
			parseDuration(stallEntry.Text, &next.Pulse.StallWindow)
			if v, err := strconv.ParseUint(minIntervalEntry.Text, 10, 32); err == nil {
				next.Pulse.MinInterval = uint32(v)
			}
			next.GPIO.Chip = gpioChipEntry.Text
			parseInt(gpioLineEntry.Text, &next.GPIO.SensorLine)
			applyConfig(state, &next)
		},
	}

	return container.NewTabItem("Wheel", form)
}

// createCommandTab creates the remote command configuration tab.
func createCommandTab(state *appState) *container.TabItem {
	windowEntry := newEntry(state.cfg.Command.DoubleTapWindow.String())
	advanceEntry := newEntry(state.cfg.Command.Advance)
	releaseEntry := newEntry(state.cfg.Command.Release)
	brakeEntry := newEntry(state.cfg.Command.Brake)

	form := &widget.Form{
		Items: []*widget.FormItem{
			{Text: "Double-tap Window", Widget: windowEntry},
			{Text: "Advance Code", Widget: advanceEntry},
			{Text: "Release Code", Widget: releaseEntry},
			{Text: "Brake Code", Widget: brakeEntry},
		},
		OnSubmit: func() {
			next := *state.cfg
			parseDuration(windowEntry.Text, &next.Command.DoubleTapWindow)
			next.Command.Advance = advanceEntry.Text
			next.Command.Release = releaseEntry.Text
			next.Command.Brake = brakeEntry.Text
			applyConfig(state, &next)
		},
	}

	return container.NewTabItem("Command", form)
}

// createRampTab creates the Ramp and Safety configuration tab.
func createRampTab(state *appState) *container.TabItem {
	rampPeriodEntry := newEntry(state.cfg.Ramp.Period.String())
	stepEntry := newEntry(strconv.Itoa(state.cfg.Ramp.Step))
	maxDutyEntry := newEntry(strconv.Itoa(state.cfg.Ramp.MaxDuty))
	safetyPeriodEntry := newEntry(state.cfg.Safety.Period.String())
	lowPercentEntry := newEntry(fmt.Sprintf("%.1f", state.cfg.Safety.LowPercent))
	hysteresisEntry := newEntry(fmt.Sprintf("%.1f", state.cfg.Safety.Hysteresis))

	form := &widget.Form{
		Items: []*widget.FormItem{
			{Text: "Ramp Period", Widget: rampPeriodEntry},
			{Text: "Ramp Step", Widget: stepEntry},
			{Text: "Max Duty", Widget: maxDutyEntry},
			{Text: "Safety Period", Widget: safetyPeriodEntry},
			{Text: "Low Battery (%)", Widget: lowPercentEntry},
			{Text: "Hysteresis (%)", Widget: hysteresisEntry},
		},
		OnSubmit: func() {
			next := *state.cfg
			parseDuration(rampPeriodEntry.Text, &next.Ramp.Period)
			parseInt(stepEntry.Text, &next.Ramp.Step)
			parseInt(maxDutyEntry.Text, &next.Ramp.MaxDuty)
			parseDuration(safetyPeriodEntry.Text, &next.Safety.Period)
			parseFloat32(lowPercentEntry.Text, &next.Safety.LowPercent)
			parseFloat32(hysteresisEntry.Text, &next.Safety.Hysteresis)
			applyConfig(state, &next)
		},
	}

	return container.NewTabItem("Ramp", form)
}

// createBatteryTab creates the Battery configuration tab.
func createBatteryTab(state *appState) *container.TabItem {
	dividerEntry := newEntry(fmt.Sprintf("%.3f", state.cfg.Battery.DividerFactor))
	emptyEntry := newEntry(fmt.Sprintf("%.2f", state.cfg.Battery.EmptyVoltage))
	fullEntry := newEntry(fmt.Sprintf("%.2f", state.cfg.Battery.FullVoltage))

	form := &widget.Form{
		Items: []*widget.FormItem{
			{Text: "Divider Factor", Widget: dividerEntry},
			{Text: "Empty Voltage (V)", Widget: emptyEntry},
			{Text: "Full Voltage (V)", Widget: fullEntry},
		},
		OnSubmit: func() {
			next := *state.cfg
			parseFloat32(dividerEntry.Text, &next.Battery.DividerFactor)
			parseFloat32(emptyEntry.Text, &next.Battery.EmptyVoltage)
			parseFloat32(fullEntry.Text, &next.Battery.FullVoltage)
			applyConfig(state, &next)
		},
	}

	return container.NewTabItem("Battery", form)
}

// createTelemetryTab creates the Telemetry, MQTT and Dashboard configuration tab.
func createTelemetryTab(state *appState) *container.TabItem {
	periodEntry := newEntry(state.cfg.Telemetry.Period.String())
	brokerEntry := newEntry(state.cfg.Telemetry.MQTT.Broker)
	brokerEntry.SetPlaceHolder("tcp://localhost:1883 (empty = disabled)")
	clientIDEntry := newEntry(state.cfg.Telemetry.MQTT.ClientID)
	telemetryTopicEntry := newEntry(state.cfg.Telemetry.MQTT.TelemetryTopic)
	commandTopicEntry := newEntry(state.cfg.Telemetry.MQTT.CommandTopic)
	dashPeriodEntry := newEntry(state.cfg.Dashboard.Period.String())
	dashWindowEntry := newEntry(state.cfg.Dashboard.Window.String())

	form := &widget.Form{
		Items: []*widget.FormItem{
			{Text: "Telemetry Period", Widget: periodEntry},
			{Text: "MQTT Broker", Widget: brokerEntry},
			{Text: "MQTT Client ID", Widget: clientIDEntry},
			{Text: "Telemetry Topic", Widget: telemetryTopicEntry},
			{Text: "Command Topic", Widget: commandTopicEntry},
			{Text: "Plot Period", Widget: dashPeriodEntry},
			{Text: "Plot Window", Widget: dashWindowEntry},
		},
		OnSubmit: func() {
			next := *state.cfg
			parseDuration(periodEntry.Text, &next.Telemetry.Period)
			next.Telemetry.MQTT.Broker = brokerEntry.Text
			next.Telemetry.MQTT.ClientID = clientIDEntry.Text
			next.Telemetry.MQTT.TelemetryTopic = telemetryTopicEntry.Text
			next.Telemetry.MQTT.CommandTopic = commandTopicEntry.Text
			parseDuration(dashPeriodEntry.Text, &next.Dashboard.Period)
			parseDuration(dashWindowEntry.Text, &next.Dashboard.Window)
			applyConfig(state, &next)
		},
	}

	return container.NewTabItem("Telemetry", form)
}

// createMockTab creates the simulated board configuration tab.
func createMockTab(state *appState) *container.TabItem {
	sampleRateEntry := newEntry(state.cfg.Mock.SampleRate.String())
	maxRPMEntry := newEntry(fmt.Sprintf("%.0f", state.cfg.Mock.MaxRPM))
	inertiaEntry := newEntry(state.cfg.Mock.Inertia.String())
	batteryStartEntry := newEntry(fmt.Sprintf("%.2f", state.cfg.Mock.BatteryStart))
	batteryDrainEntry := newEntry(fmt.Sprintf("%.4f", state.cfg.Mock.BatteryDrain))
	linkDropEntry := newEntry(state.cfg.Mock.LinkDropAfter.String())

	form := &widget.Form{
		Items: []*widget.FormItem{
			{Text: "Report Period", Widget: sampleRateEntry},
			{Text: "Max RPM", Widget: maxRPMEntry},
			{Text: "Inertia", Widget: inertiaEntry},
			{Text: "Battery Start (V)", Widget: batteryStartEntry},
			{Text: "Battery Drain (V/s)", Widget: batteryDrainEntry},
			{Text: "Link Drop After (0=never)", Widget: linkDropEntry},
		},
		OnSubmit: func() {
			next := *state.cfg
			parseDuration(sampleRateEntry.Text, &next.Mock.SampleRate)
			if v, err := strconv.ParseFloat(maxRPMEntry.Text, 64); err == nil {
				next.Mock.MaxRPM = v
			}
			parseDuration(inertiaEntry.Text, &next.Mock.Inertia)
			if v, err := strconv.ParseFloat(batteryStartEntry.Text, 64); err == nil {
				next.Mock.BatteryStart = v
			}
			if v, err := strconv.ParseFloat(batteryDrainEntry.Text, 64); err == nil {
				next.Mock.BatteryDrain = v
			}
			parseDuration(linkDropEntry.Text, &next.Mock.LinkDropAfter)
			applyConfig(state, &next)
		},
	}

	return container.NewTabItem("Mock", form)
}

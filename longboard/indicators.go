package main

import (
	"fyne.io/fyne/v2/widget"
	"github.com/itohio/golongboard/pkg/command"
)

// setRemoteEnabled enables or disables the remote buttons and resets their highlight.
func setRemoteEnabled(state *appState, enabled bool) {
	for _, btn := range []*widget.Button{state.advanceBtn, state.releaseBtn, state.brakeBtn} {
		if enabled {
			btn.Enable()
		} else {
			btn.Disable()
		}
	}
	state.lastIntent = ""
	updateControlButtons(state, command.Idle.String())
}

// updateControlButtons highlights the remote buttons like the board indicator LEDs.
// Only updates UI when the intent actually changes.
func updateControlButtons(state *appState, intent string) {
	if intent == state.lastIntent {
		return
	}
	state.lastIntent = intent

	advancing := intent == command.AccelerateHeld.String() || intent == command.HoldSpeed.String()
	updateButton(state.advanceBtn, advancing, widget.HighImportance)
	updateButton(state.releaseBtn, intent == command.HoldSpeed.String(), widget.WarningImportance)
	updateButton(state.brakeBtn, intent == command.Brake.String(), widget.DangerImportance)
}

// updateButton updates a single button's visual state.
func updateButton(btn *widget.Button, isOn bool, on widget.Importance) {
	if isOn {
		btn.Importance = on
	} else {
		btn.Importance = widget.MediumImportance
	}
	btn.Refresh()
}

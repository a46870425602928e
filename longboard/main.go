package main

import (
	"flag"
	"fmt"
	"log"
	"sync"
	"time"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/app"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/dialog"
	"fyne.io/fyne/v2/theme"
	"fyne.io/fyne/v2/widget"
	"github.com/itohio/golongboard/pkg/command"
	"github.com/itohio/golongboard/pkg/config"
	"github.com/itohio/golongboard/pkg/history"
	"github.com/itohio/golongboard/pkg/scope"
	"github.com/itohio/golongboard/pkg/telemetry"
)

func main() {
	var (
		portFlag     = flag.String("p", "", "Serial port override (e.g., COM3 or /dev/ttyUSB0)")
		configFlag   = flag.String("config", "config.yaml", "Configuration file path")
		mockFlag     = flag.Bool("mock", false, "Use simulated board instead of serial port")
		headlessFlag = flag.Bool("headless", false, "Run the controller without the dashboard")
		mqttFlag     = flag.String("mqtt", "", "MQTT broker override (e.g., tcp://localhost:1883)")
	)
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configFlag)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	if *portFlag != "" {
		cfg.Serial.Port = *portFlag
	}
	if *mqttFlag != "" {
		cfg.Telemetry.MQTT.Broker = *mqttFlag
	}

	if *headlessFlag {
		if err := runHeadless(cfg, *mockFlag); err != nil {
			log.Fatalf("Controller failed: %v", err)
		}
		return
	}

	// Create Fyne application
	application := app.NewWithID("com.itohio.golongboard")

	window := application.NewWindow("Longboard")
	window.Resize(fyne.NewSize(1200, 800))
	window.CenterOnScreen()

	state := &appState{
		cfg:        cfg,
		configPath: *configFlag,
		history:    history.New(cfg.Dashboard),
		window:     window,
		useMock:    *mockFlag,
	}

	toolbar := createToolbar(state)

	state.scopeWidget = scope.New(cfg.Dashboard)
	state.statusLabel = widget.NewLabel("Disconnected")

	// Throttle updates to ~60 FPS
	const updateInterval = 16 * time.Millisecond
	state.history.OnUpdate(func(records []telemetry.Record, accel []float64, segments []history.Segment) {
		state.updateMu.Lock()
		now := time.Now()
		if now.Sub(state.lastUpdateTime) < updateInterval {
			state.updateMu.Unlock()
			return
		}
		state.lastUpdateTime = now
		state.updateMu.Unlock()

		UpdateWidgetOnMainThread(func() {
			state.scopeWidget.UpdateData(records, segments)
			if len(records) == 0 {
				return
			}
			last := records[len(records)-1]
			state.statusLabel.SetText(statusText(last, lastAcceleration(accel)))
			updateControlButtons(state, last.Intent)
		})
	})

	window.Canvas().SetOnTypedKey(func(ev *fyne.KeyEvent) {
		handleKey(state, ev.Name)
	})
	window.SetOnClosed(func() {
		if state.session != nil {
			state.session.close()
			state.session = nil
		}
	})

	content := container.NewBorder(
		toolbar,
		state.statusLabel,
		nil,
		nil,
		state.scopeWidget,
	)

	window.SetContent(content)
	window.ShowAndRun()
}

// appState holds the application state.
type appState struct {
	cfg         *config.Config
	configPath  string
	history     *history.History
	scopeWidget *scope.ScopeWidget
	window      fyne.Window
	statusLabel *widget.Label
	connectBtn  *widget.Button
	advanceBtn  *widget.Button
	releaseBtn  *widget.Button
	brakeBtn    *widget.Button
	useMock     bool
	session     *session // Current session (nil if not connected)
	lastIntent  string

	// Throttling for scope updates
	lastUpdateTime time.Time
	updateMu       sync.Mutex
}

// createToolbar creates the toolbar with Connect and Settings on the left and the remote on the right.
func createToolbar(state *appState) fyne.CanvasObject {
	connectBtn := widget.NewButtonWithIcon("", theme.LoginIcon(), func() {
		handleConnect(state)
	})
	state.connectBtn = connectBtn

	settingsBtn := widget.NewButtonWithIcon("", theme.SettingsIcon(), func() {
		showSettingsDialog(state)
	})

	state.advanceBtn = widget.NewButtonWithIcon("Advance", theme.MoveUpIcon(), func() {
		handleRemote(state, command.CodeAdvance)
	})
	state.releaseBtn = widget.NewButtonWithIcon("Release", theme.MediaPauseIcon(), func() {
		handleRemote(state, command.CodeRelease)
	})
	state.brakeBtn = widget.NewButtonWithIcon("Brake", theme.MediaStopIcon(), func() {
		handleRemote(state, command.CodeBrake)
	})
	setRemoteEnabled(state, false)

	return container.NewBorder(
		nil,
		nil,
		container.NewHBox(connectBtn, settingsBtn),
		container.NewHBox(state.advanceBtn, state.releaseBtn, state.brakeBtn),
		nil,
	)
}

// handleConnect handles the connect/disconnect button click.
func handleConnect(state *appState) {
	if state.session != nil {
		state.session.close()
		state.session = nil
		setRemoteEnabled(state, false)
		state.connectBtn.SetIcon(theme.LoginIcon())
		state.statusLabel.SetText("Disconnected")
		fmt.Println("Disconnected from board")
		return
	}

	s, err := openSession(state.cfg, state.useMock, state.history)
	if err != nil {
		dialog.ShowError(err, state.window)
		return
	}
	state.session = s
	state.connectBtn.SetIcon(theme.LogoutIcon())
	setRemoteEnabled(state, true)
}

// handleRemote forwards a remote button to the connected board.
func handleRemote(state *appState, code command.Code) {
	if state.session == nil {
		return
	}
	state.session.remote(code)
}

// handleKey maps arrow keys and space to the remote buttons.
func handleKey(state *appState, key fyne.KeyName) {
	switch key {
	case fyne.KeyUp:
		handleRemote(state, command.CodeAdvance)
	case fyne.KeySpace:
		handleRemote(state, command.CodeRelease)
	case fyne.KeyDown:
		handleRemote(state, command.CodeBrake)
	}
}

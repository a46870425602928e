package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration.
type Config struct {
	Serial    SerialConfig    `yaml:"serial"`
	Wheel     WheelConfig     `yaml:"wheel"`
	Pulse     PulseConfig     `yaml:"pulse"`
	Command   CommandConfig   `yaml:"command"`
	Ramp      RampConfig      `yaml:"ramp"`
	Safety    SafetyConfig    `yaml:"safety"`
	Battery   BatteryConfig   `yaml:"battery"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	GPIO      GPIOConfig      `yaml:"gpio"`
	Mock      MockConfig      `yaml:"mock"`
	Dashboard DashboardConfig `yaml:"dashboard"`
}

// SerialConfig contains serial port configuration of the MCU bridge.
type SerialConfig struct {
	Port     string `yaml:"port"`
	BaudRate int    `yaml:"baud_rate"`
}

// WheelConfig contains the calibration of the slotted wheel.
type WheelConfig struct {
	Slots  int     `yaml:"slots"`  // Slots per revolution on the encoder disc
	Radius float32 `yaml:"radius"` // Wheel radius in meters
}

// PulseConfig contains slot sensor interval tracking parameters.
type PulseConfig struct {
	StallWindow time.Duration `yaml:"stall_window"` // No edge for this long means the wheel stopped
	MinInterval uint32        `yaml:"min_interval"` // Shortest plausible interval in microseconds
}

// CommandConfig contains remote command decoding parameters.
type CommandConfig struct {
	DoubleTapWindow time.Duration `yaml:"double_tap_window"`
	Advance         string        `yaml:"advance"`
	Release         string        `yaml:"release"`
	Brake           string        `yaml:"brake"`
}

// RampConfig contains duty cycle ramp parameters.
type RampConfig struct {
	Period  time.Duration `yaml:"period"`
	Step    int           `yaml:"step"`
	MaxDuty int           `yaml:"max_duty"`
}

// SafetyConfig contains battery/link monitoring parameters.
type SafetyConfig struct {
	Period     time.Duration `yaml:"period"`
	LowPercent float32       `yaml:"low_percent"` // Enter LowPower below this percentage
	Hysteresis float32       `yaml:"hysteresis"`  // Extra percentage required to leave LowPower (0 = single threshold)
}

// BatteryConfig converts the ADC reading into voltage and charge percentage.
type BatteryConfig struct {
	DividerFactor float32 `yaml:"divider_factor"`
	EmptyVoltage  float32 `yaml:"empty_voltage"`
	FullVoltage   float32 `yaml:"full_voltage"`
}

// TelemetryConfig contains status reporting parameters.
type TelemetryConfig struct {
	Period time.Duration `yaml:"period"`
	MQTT   MQTTConfig    `yaml:"mqtt"`
}

// MQTTConfig contains the optional MQTT broker connection. Empty Broker disables it.
type MQTTConfig struct {
	Broker         string `yaml:"broker"`
	ClientID       string `yaml:"client_id"`
	TelemetryTopic string `yaml:"telemetry_topic"`
	CommandTopic   string `yaml:"command_topic"`
}

// GPIOConfig selects a Linux GPIO line for the slot sensor. Negative SensorLine disables it.
type GPIOConfig struct {
	Chip       string `yaml:"chip"`
	SensorLine int    `yaml:"sensor_line"`
}

// MockConfig contains simulated board configuration.
type MockConfig struct {
	SampleRate    time.Duration `yaml:"sample_rate"`     // Battery/link report period
	MaxRPM        float64       `yaml:"max_rpm"`         // Wheel RPM at 100% duty
	Inertia       time.Duration `yaml:"inertia"`         // Wheel speed time constant
	BatteryStart  float64       `yaml:"battery_start"`   // Initial battery voltage (V)
	BatteryDrain  float64       `yaml:"battery_drain"`   // Volts lost per second at 100% duty
	LinkDropAfter time.Duration `yaml:"link_drop_after"` // Simulated link loss (0 = never)
}

// DashboardConfig controls the history kept for the speed scope.
type DashboardConfig struct {
	Period    time.Duration `yaml:"period"`     // Sampling period of the plotted history
	Window    time.Duration `yaml:"window"`     // Time window of plotted history
	MaxPoints int           `yaml:"max_points"` // Points drawn per trace
}

// Default returns a default configuration with sensible values.
func Default() *Config {
	return &Config{
		Serial: SerialConfig{
			Port:     "/dev/ttyUSB0",
			BaudRate: 115200,
		},
		Wheel: WheelConfig{
			Slots:  20,
			Radius: 0.03,
		},
		Pulse: PulseConfig{
			StallWindow: time.Second,
			MinInterval: 200,
		},
		Command: CommandConfig{
			DoubleTapWindow: 500 * time.Millisecond,
			Advance:         "A",
			Release:         "R",
			Brake:           "F",
		},
		Ramp: RampConfig{
			Period:  100 * time.Millisecond,
			Step:    10,
			MaxDuty: 255,
		},
		Safety: SafetyConfig{
			Period:     time.Second,
			LowPercent: 10,
			Hysteresis: 0,
		},
		Battery: BatteryConfig{
			DividerFactor: 2.0,
			EmptyVoltage:  6.4,
			FullVoltage:   8.4, // 10% of 6.4..8.4 V is 6.6 V
		},
		Telemetry: TelemetryConfig{
			Period: time.Second,
			MQTT: MQTTConfig{
				ClientID:       "golongboard",
				TelemetryTopic: "longboard/telemetry",
				CommandTopic:   "longboard/command",
			},
		},
		GPIO: GPIOConfig{
			Chip:       "gpiochip0",
			SensorLine: -1,
		},
		Mock: MockConfig{
			SampleRate:    200 * time.Millisecond,
			MaxRPM:        600,
			Inertia:       800 * time.Millisecond,
			BatteryStart:  8.2,
			BatteryDrain:  0.01,
			LinkDropAfter: 0,
		},
		Dashboard: DashboardConfig{
			Period:    50 * time.Millisecond,
			Window:    30 * time.Second,
			MaxPoints: 600,
		},
	}
}

// Load loads configuration from a YAML file. If the file doesn't exist or
// fields are missing, it uses default values.
func Load(filename string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(filename)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.ensureDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Save saves the configuration to a YAML file.
func (c *Config) Save(filename string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Validate checks values that cannot be fixed up by defaults.
func (c *Config) Validate() error {
	if c.Ramp.Step > c.Ramp.MaxDuty {
		return fmt.Errorf("ramp step %d exceeds max duty %d", c.Ramp.Step, c.Ramp.MaxDuty)
	}
	if c.Battery.FullVoltage <= c.Battery.EmptyVoltage {
		return fmt.Errorf("battery full voltage %.2f must be above empty voltage %.2f",
			c.Battery.FullVoltage, c.Battery.EmptyVoltage)
	}
	for name, code := range map[string]string{
		"advance": c.Command.Advance,
		"release": c.Command.Release,
		"brake":   c.Command.Brake,
	} {
		if len(code) != 1 {
			return fmt.Errorf("command %s must be a single byte, got %q", name, code)
		}
	}
	if c.Command.Advance == c.Command.Release || c.Command.Advance == c.Command.Brake || c.Command.Release == c.Command.Brake {
		return fmt.Errorf("command codes must be distinct")
	}
	return nil
}

// ensureDefaults ensures that all required fields have default values if missing.
func (c *Config) ensureDefaults() {
	def := Default()

	if c.Serial.Port == "" {
		c.Serial.Port = def.Serial.Port
	}
	if c.Serial.BaudRate == 0 {
		c.Serial.BaudRate = def.Serial.BaudRate
	}

	if c.Wheel.Slots <= 0 {
		c.Wheel.Slots = def.Wheel.Slots
	}
	if c.Wheel.Radius <= 0 {
		c.Wheel.Radius = def.Wheel.Radius
	}

	if c.Pulse.StallWindow == 0 {
		c.Pulse.StallWindow = def.Pulse.StallWindow
	}

	if c.Command.DoubleTapWindow == 0 {
		c.Command.DoubleTapWindow = def.Command.DoubleTapWindow
	}
	if c.Command.Advance == "" {
		c.Command.Advance = def.Command.Advance
	}
	if c.Command.Release == "" {
		c.Command.Release = def.Command.Release
	}
	if c.Command.Brake == "" {
		c.Command.Brake = def.Command.Brake
	}

	if c.Ramp.Period == 0 {
		c.Ramp.Period = def.Ramp.Period
	}
	if c.Ramp.Step <= 0 {
		c.Ramp.Step = def.Ramp.Step
	}
	if c.Ramp.MaxDuty <= 0 {
		c.Ramp.MaxDuty = def.Ramp.MaxDuty
	}

	if c.Safety.Period == 0 {
		c.Safety.Period = def.Safety.Period
	}
	if c.Safety.LowPercent == 0 {
		c.Safety.LowPercent = def.Safety.LowPercent
	}

	if c.Battery.DividerFactor == 0 {
		c.Battery.DividerFactor = def.Battery.DividerFactor
	}
	if c.Battery.EmptyVoltage == 0 {
		c.Battery.EmptyVoltage = def.Battery.EmptyVoltage
	}
	if c.Battery.FullVoltage == 0 {
		c.Battery.FullVoltage = def.Battery.FullVoltage
	}

	if c.Telemetry.Period == 0 {
		c.Telemetry.Period = def.Telemetry.Period
	}
	if c.Telemetry.MQTT.ClientID == "" {
		c.Telemetry.MQTT.ClientID = def.Telemetry.MQTT.ClientID
	}
	if c.Telemetry.MQTT.TelemetryTopic == "" {
		c.Telemetry.MQTT.TelemetryTopic = def.Telemetry.MQTT.TelemetryTopic
	}
	if c.Telemetry.MQTT.CommandTopic == "" {
		c.Telemetry.MQTT.CommandTopic = def.Telemetry.MQTT.CommandTopic
	}

	if c.GPIO.Chip == "" {
		c.GPIO.Chip = def.GPIO.Chip
	}

	if c.Mock.SampleRate == 0 {
		c.Mock.SampleRate = def.Mock.SampleRate
	}
	if c.Mock.MaxRPM == 0 {
		c.Mock.MaxRPM = def.Mock.MaxRPM
	}
	if c.Mock.Inertia == 0 {
		c.Mock.Inertia = def.Mock.Inertia
	}
	if c.Mock.BatteryStart == 0 {
		c.Mock.BatteryStart = def.Mock.BatteryStart
	}

	if c.Dashboard.Period <= 0 {
		c.Dashboard.Period = def.Dashboard.Period
	}
	if c.Dashboard.Window <= 0 {
		c.Dashboard.Window = def.Dashboard.Window
	}
	if c.Dashboard.MaxPoints <= 0 {
		c.Dashboard.MaxPoints = def.Dashboard.MaxPoints
	}
}

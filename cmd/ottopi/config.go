package main

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level YAML configuration for the ottopi daemon.
//
// Defaults and validation are centralized here so the rest of the code can
// assume a well-formed config. Flags only override individual values.
//
// Calibration (pin map and home pulses) is not part of this file; it lives in
// the file named by calibration.file so trims never rewrite user config.
type Config struct {
	Servo       ServoConfig       `yaml:"servo"`
	Calibration CalibrationConfig `yaml:"calibration"`
	Autopilot   AutopilotConfig   `yaml:"autopilot"`
	Server      ServerConfig      `yaml:"server"`
	IPC         IPCConfig         `yaml:"ipc"`
	HTTP        HTTPConfig        `yaml:"http"`
	Input       InputConfig       `yaml:"input"`
	Logging     LoggingConfig     `yaml:"logging"`
}

type ServoConfig struct {
	// Driver selects the pulse backend: pigpiod, rpio, feetech or null.
	Driver string `yaml:"driver"`

	PigpiodAddr string `yaml:"pigpiod_addr,omitempty"`

	// Feetech bus settings (driver: feetech). Pins are servo ids on the bus.
	FeetechPort string `yaml:"feetech_port,omitempty"`
	FeetechBaud int    `yaml:"feetech_baud,omitempty"`

	PulseStep      int     `yaml:"pulse_step"`
	IntervalFactor float64 `yaml:"interval_factor"`

	Min [numChannels]int `yaml:"min"`
	Max [numChannels]int `yaml:"max"`
}

type CalibrationConfig struct {
	File string `yaml:"file"`
}

type AutopilotConfig struct {
	// Enabled starts the autopilot in the enabled (waiting for ready gesture) state.
	Enabled bool `yaml:"enabled"`

	Sensor    string `yaml:"sensor"` // vl53l0x or none
	I2CDevice string `yaml:"i2c_device,omitempty"`
	I2CAddr   int    `yaml:"i2c_addr,omitempty"`
	Mode      string `yaml:"mode"` // good, better, best, long_range, high_speed

	PollMS          int `yaml:"poll_ms"`
	ReactionPauseMS int `yaml:"reaction_pause_ms"`

	DTouch        int `yaml:"d_touch"`
	DTooNear      int `yaml:"d_too_near"`
	DNear         int `yaml:"d_near"`
	DYellowMargin int `yaml:"d_yellow_margin"`
	DFar          int `yaml:"d_far"`
	DReadyMin     int `yaml:"d_ready_min"`
	DReadyMax     int `yaml:"d_ready_max"`

	ReadyCountCommit int `yaml:"ready_count_commit"`
	TouchCountCommit int `yaml:"touch_count_commit"`
}

type ServerConfig struct {
	// TCPPort is the line/key protocol port. 0 disables the server.
	TCPPort int `yaml:"tcp_port"`
}

type IPCConfig struct {
	SocketPath string `yaml:"socket_path"`
}

type HTTPConfig struct {
	// Port serves the UI, /api and the websockets. 0 disables the server.
	Port int `yaml:"port"`
}

type InputConfig struct {
	Devices []string `yaml:"devices,omitempty"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // text or json
}

// DefaultConfig returns a fully-populated Config with defaults.
// Keep this aligned with constants.go.
func DefaultConfig() Config {
	return Config{
		Servo: ServoConfig{
			Driver:         "pigpiod",
			PigpiodAddr:    defaultPigpiodURL,
			FeetechPort:    "/dev/ttyUSB0",
			FeetechBaud:    1_000_000,
			PulseStep:      defaultPulseStep,
			IntervalFactor: defaultIntervalFactor,
			Min:            [numChannels]int{pulseMin, pulseMin, pulseMin, pulseMin},
			Max:            [numChannels]int{pulseMax, pulseMax, pulseMax, pulseMax},
		},
		Calibration: CalibrationConfig{
			File: "~/.ottopi/calibration.yaml",
		},
		Autopilot: AutopilotConfig{
			Enabled:          false,
			Sensor:           "vl53l0x",
			I2CDevice:        "/dev/i2c-1",
			I2CAddr:          vl53l0xDefaultAddr,
			Mode:             string(RangingBetter),
			PollMS:           defaultAutoPollMS,
			ReactionPauseMS:  defaultReactionPauseMS,
			DTouch:           defaultDTouch,
			DTooNear:         defaultDTooNear,
			DNear:            defaultDNear,
			DYellowMargin:    defaultDYellowMargin,
			DFar:             defaultDFar,
			DReadyMin:        defaultDReadyMin,
			DReadyMax:        defaultDReadyMax,
			ReadyCountCommit: defaultReadyCountCommit,
			TouchCountCommit: defaultTouchCountCommit,
		},
		Server: ServerConfig{
			TCPPort: defaultTCPPort,
		},
		IPC: IPCConfig{
			SocketPath: defaultIPCSocket,
		},
		HTTP: HTTPConfig{
			Port: defaultHTTPPort,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: string(LogFormatText),
		},
	}
}

// LoadConfigFile reads and parses a YAML config file on top of DefaultConfig.
//
// Unknown fields are rejected (helps catch typos) via KnownFields(true).
func LoadConfigFile(path string) (Config, error) {
	if path == "" {
		return Config{}, errors.New("config path is empty")
	}
	b, err := os.ReadFile(ExpandPath(path))
	if err != nil {
		return Config{}, fmt.Errorf("read config file: %w", err)
	}

	cfg := DefaultConfig()

	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)

	if err := dec.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config yaml: %w", err)
	}

	// Only whitespace/comments are allowed after the document.
	var extra yaml.Node
	if err := dec.Decode(&extra); !errors.Is(err, io.EOF) {
		if err != nil {
			return Config{}, fmt.Errorf("decode config yaml: trailing content: %w", err)
		}
		return Config{}, errors.New("decode config yaml: unexpected trailing document")
	}

	return cfg, nil
}

// FlagOverrides carries values set on the command line. Each non-nil pointer
// is applied on top of the loaded config, even if it points at a zero value.
type FlagOverrides struct {
	ServoDriver     *string
	PigpiodAddr     *string
	CalibrationFile *string

	AutoEnabled *bool
	AutoSensor  *string

	TCPPort       *int
	HTTPPort      *int
	IPCSocketPath *string

	InputDevice *string

	LogLevel *string
}

// Apply merges the overrides into cfg.
func (o FlagOverrides) Apply(cfg *Config) {
	if cfg == nil {
		return
	}
	if o.ServoDriver != nil {
		cfg.Servo.Driver = *o.ServoDriver
	}
	if o.PigpiodAddr != nil {
		cfg.Servo.PigpiodAddr = *o.PigpiodAddr
	}
	if o.CalibrationFile != nil {
		cfg.Calibration.File = *o.CalibrationFile
	}

	if o.AutoEnabled != nil {
		cfg.Autopilot.Enabled = *o.AutoEnabled
	}
	if o.AutoSensor != nil {
		cfg.Autopilot.Sensor = *o.AutoSensor
	}

	if o.TCPPort != nil {
		cfg.Server.TCPPort = *o.TCPPort
	}
	if o.HTTPPort != nil {
		cfg.HTTP.Port = *o.HTTPPort
	}
	if o.IPCSocketPath != nil {
		cfg.IPC.SocketPath = *o.IPCSocketPath
	}

	if o.InputDevice != nil {
		if *o.InputDevice == "" {
			cfg.Input.Devices = nil
		} else {
			cfg.Input.Devices = []string{*o.InputDevice}
		}
	}

	if o.LogLevel != nil {
		cfg.Logging.Level = *o.LogLevel
	}
}

// Validate checks config invariants and returns a user-friendly error.
// Call it after defaults + file + overrides are applied.
func (c *Config) Validate() error {
	// Servo
	switch c.Servo.Driver {
	case "pigpiod":
		if c.Servo.PigpiodAddr == "" {
			return errors.New("servo.pigpiod_addr must not be empty when servo.driver is pigpiod")
		}
	case "feetech":
		if c.Servo.FeetechPort == "" {
			return errors.New("servo.feetech_port must not be empty when servo.driver is feetech")
		}
		if c.Servo.FeetechBaud <= 0 {
			return errors.New("servo.feetech_baud must be > 0")
		}
	case "rpio", "null":
	default:
		return fmt.Errorf("servo.driver must be one of pigpiod, rpio, feetech, null (got %q)", c.Servo.Driver)
	}
	if c.Servo.PulseStep <= 0 {
		return errors.New("servo.pulse_step must be > 0")
	}
	if c.Servo.IntervalFactor < 0 {
		return errors.New("servo.interval_factor must be >= 0")
	}
	for i := 0; i < numChannels; i++ {
		if c.Servo.Min[i] < pulseMin || c.Servo.Max[i] > pulseMax {
			return fmt.Errorf("servo.min[%d]/servo.max[%d] must be within %d..%d", i, i, pulseMin, pulseMax)
		}
		if c.Servo.Min[i] > c.Servo.Max[i] {
			return fmt.Errorf("servo.min[%d] must be <= servo.max[%d]", i, i)
		}
	}

	// Calibration
	if c.Calibration.File == "" {
		return errors.New("calibration.file must not be empty")
	}

	// Autopilot
	a := c.Autopilot
	switch a.Sensor {
	case "vl53l0x":
		if a.I2CDevice == "" {
			return errors.New("autopilot.i2c_device must not be empty when autopilot.sensor is vl53l0x")
		}
		if a.I2CAddr <= 0 || a.I2CAddr > 0x7f {
			return errors.New("autopilot.i2c_addr must be a 7-bit address")
		}
	case "none":
	default:
		return fmt.Errorf("autopilot.sensor must be vl53l0x or none (got %q)", a.Sensor)
	}
	if _, err := parseRangingMode(a.Mode); err != nil {
		return fmt.Errorf("autopilot.mode: %w", err)
	}
	if a.PollMS <= 0 {
		return errors.New("autopilot.poll_ms must be > 0")
	}
	if a.ReactionPauseMS < 0 {
		return errors.New("autopilot.reaction_pause_ms must be >= 0")
	}
	if !(0 < a.DTouch && a.DTouch < a.DTooNear && a.DTooNear < a.DNear && a.DNear+a.DYellowMargin < a.DFar) {
		return errors.New("autopilot thresholds must satisfy 0 < d_touch < d_too_near < d_near < d_near+d_yellow_margin < d_far")
	}
	if a.DYellowMargin < 0 {
		return errors.New("autopilot.d_yellow_margin must be >= 0")
	}
	if a.DReadyMin <= 0 || a.DReadyMin > a.DReadyMax {
		return errors.New("autopilot.d_ready_min must be > 0 and <= autopilot.d_ready_max")
	}
	if a.ReadyCountCommit < 1 {
		return errors.New("autopilot.ready_count_commit must be >= 1")
	}
	if a.TouchCountCommit < 1 {
		return errors.New("autopilot.touch_count_commit must be >= 1")
	}

	// Network
	if c.Server.TCPPort < 0 || c.Server.TCPPort > 65535 {
		return errors.New("server.tcp_port must be between 0 and 65535")
	}
	if c.HTTP.Port < 0 || c.HTTP.Port > 65535 {
		return errors.New("http.port must be between 0 and 65535")
	}
	if c.IPC.SocketPath == "" {
		return errors.New("ipc.socket_path must not be empty")
	}

	for i, dev := range c.Input.Devices {
		if dev == "" {
			return fmt.Errorf("input.devices[%d] is empty", i)
		}
	}

	// Logging
	if _, err := parseLogLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("logging.level: %w", err)
	}
	if _, err := parseLogFormat(c.Logging.Format); err != nil {
		return fmt.Errorf("logging.format: %w", err)
	}

	return nil
}

// ToBankConfig converts the servo section into actuator bank tuning.
func (c *Config) ToBankConfig() BankConfig {
	return BankConfig{
		Step:  c.Servo.PulseStep,
		Speed: c.Servo.IntervalFactor,
		Min:   c.Servo.Min,
		Max:   c.Servo.Max,
	}
}

// ToAutopilotParams converts the autopilot section into reducer thresholds
// and worker timing.
func (c *Config) ToAutopilotParams() AutopilotParams {
	a := c.Autopilot
	return AutopilotParams{
		DTouch:           a.DTouch,
		DTooNear:         a.DTooNear,
		DNear:            a.DNear,
		DYellowMargin:    a.DYellowMargin,
		DFar:             a.DFar,
		DReadyMin:        a.DReadyMin,
		DReadyMax:        a.DReadyMax,
		ReadyCountCommit: a.ReadyCountCommit,
		TouchCountCommit: a.TouchCountCommit,
		Poll:             time.Duration(a.PollMS) * time.Millisecond,
		ReactionPause:    time.Duration(a.ReactionPauseMS) * time.Millisecond,
	}
}

// ExpandPath expands a leading "~" in a path using $HOME.
func ExpandPath(p string) string {
	if p == "" {
		return p
	}
	if p[0] != '~' {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	if p == "~" {
		return home
	}
	if len(p) >= 2 && (p[1] == '/' || p[1] == '\\') {
		return filepath.Join(home, p[2:])
	}
	return p
}

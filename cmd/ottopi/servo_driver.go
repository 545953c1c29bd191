package main

import (
	"fmt"
	"log/slog"
)

// PulseDriver sets the pulse width of one servo output.
//
// A width of pulseOff (0) unpowers the output. Implementations must be safe
// to call from a single goroutine; the actuator bank never writes concurrently.
type PulseDriver interface {
	SetPulse(pin int, widthUS int) error
	Close() error
}

// NewPulseDriver builds the driver named in the servo config section.
func NewPulseDriver(cfg ServoConfig, pins [numChannels]int, logger *slog.Logger) (PulseDriver, error) {
	switch cfg.Driver {
	case "pigpiod":
		return DialPigpiod(cfg.PigpiodAddr, logger)
	case "rpio":
		return OpenRpioDriver(pins, logger)
	case "feetech":
		return OpenFeetechDriver(cfg.FeetechPort, cfg.FeetechBaud, pins, logger)
	case "null":
		return NewNullDriver(logger), nil
	default:
		return nil, fmt.Errorf("unknown servo driver %q", cfg.Driver)
	}
}

// NullDriver accepts every write and logs it at debug level.
// Useful for running the daemon away from the robot.
type NullDriver struct {
	logger *slog.Logger
}

func NewNullDriver(logger *slog.Logger) *NullDriver {
	return &NullDriver{logger: componentLogger(logger, "servo-null")}
}

func (d *NullDriver) SetPulse(pin int, widthUS int) error {
	d.logger.Debug("set pulse", "pin", pin, "width_us", widthUS)
	return nil
}

func (d *NullDriver) Close() error { return nil }

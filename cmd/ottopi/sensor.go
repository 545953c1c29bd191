package main

import (
	"fmt"
	"log/slog"
	"time"
)

// RangingMode trades measurement time for accuracy.
type RangingMode string

const (
	RangingGood      RangingMode = "good"
	RangingBetter    RangingMode = "better"
	RangingBest      RangingMode = "best"
	RangingLongRange RangingMode = "long_range"
	RangingHighSpeed RangingMode = "high_speed"
)

// period is the inter-measurement period the sensor runs at in this mode.
func (m RangingMode) period() time.Duration {
	switch m {
	case RangingGood, RangingLongRange:
		return 33 * time.Millisecond
	case RangingBest:
		return 200 * time.Millisecond
	case RangingHighSpeed:
		return 20 * time.Millisecond
	default:
		return 66 * time.Millisecond
	}
}

func parseRangingMode(s string) (RangingMode, error) {
	switch m := RangingMode(s); m {
	case RangingGood, RangingBetter, RangingBest, RangingLongRange, RangingHighSpeed:
		return m, nil
	}
	return "", fmt.Errorf("unknown ranging mode %q (want good, better, best, long_range or high_speed)", s)
}

// RangingSensor reports the distance to the nearest obstacle in millimetres.
// A zero distance means no valid reading.
type RangingSensor interface {
	StartRanging(mode RangingMode) error
	Distance() (int, error)
	StopRanging() error
	Close() error
}

// NewRangingSensor opens the sensor named by cfg.Sensor.
func NewRangingSensor(cfg AutopilotConfig, logger *slog.Logger) (RangingSensor, error) {
	switch cfg.Sensor {
	case "vl53l0x":
		bus, err := openI2C(cfg.I2CDevice, cfg.I2CAddr)
		if err != nil {
			return nil, err
		}
		s, err := NewVL53L0X(bus, logger)
		if err != nil {
			_ = bus.Close()
			return nil, err
		}
		return s, nil
	case "none":
		return NoSensor{}, nil
	default:
		return nil, fmt.Errorf("unknown sensor %q", cfg.Sensor)
	}
}

// NoSensor always reports no reading, which the autopilot treats as far.
type NoSensor struct{}

func (NoSensor) StartRanging(RangingMode) error { return nil }
func (NoSensor) Distance() (int, error)         { return 0, nil }
func (NoSensor) StopRanging() error             { return nil }
func (NoSensor) Close() error                   { return nil }

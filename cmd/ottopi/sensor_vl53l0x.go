package main

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

const vl53l0xDefaultAddr = 0x29

// VL53L0X registers used here.
const (
	vlSysrangeStart              = 0x00
	vlSequenceConfig             = 0x01
	vlIntermeasurementPeriod     = 0x04
	vlInterruptConfigGPIO        = 0x0A
	vlInterruptClear             = 0x0B
	vlResultInterruptStatus      = 0x13
	vlResultRange                = 0x1E // RESULT_RANGE_STATUS + 10
	vlGPIOHVMuxActiveHigh        = 0x84
	vlI2CMode                    = 0x88
	vlVHVConfigPadSCLSDAExtsupHV = 0x89
	vlStopVariable               = 0x91
	vlModelID                    = 0xC0
	vlOscCalibrateVal            = 0xF8

	vlModelIDValue = 0xEE

	vlModeSingle     = 0x01
	vlModeTimed      = 0x04
	vlInterruptReady = 0x04

	// Readings at or above this are "no target".
	vlOutOfRange = 8190
)

var errRangingTimeout = errors.New("vl53l0x: measurement timeout")

// VL53L0X is a time-of-flight ranging sensor in continuous timed mode.
type VL53L0X struct {
	bus    registerBus
	logger *slog.Logger

	mu      sync.Mutex
	stopVar byte
	period  time.Duration
	ranging bool

	// sleep is time.Sleep outside tests.
	sleep func(time.Duration)
}

// NewVL53L0X verifies the device and applies the minimal init sequence:
// 2V8 I/O, standard i2c mode, the stop variable, and a data-ready interrupt.
func NewVL53L0X(bus registerBus, logger *slog.Logger) (*VL53L0X, error) {
	s := &VL53L0X{
		bus:    bus,
		logger: componentLogger(logger, "vl53l0x"),
		sleep:  time.Sleep,
	}

	id, err := bus.ReadReg(vlModelID)
	if err != nil {
		return nil, fmt.Errorf("read model id: %w", err)
	}
	if id != vlModelIDValue {
		return nil, fmt.Errorf("unexpected model id 0x%02x (want 0x%02x)", id, vlModelIDValue)
	}

	pad, err := bus.ReadReg(vlVHVConfigPadSCLSDAExtsupHV)
	if err != nil {
		return nil, fmt.Errorf("read pad config: %w", err)
	}
	if err := bus.WriteReg(vlVHVConfigPadSCLSDAExtsupHV, pad|0x01); err != nil {
		return nil, fmt.Errorf("set 2v8 mode: %w", err)
	}
	if err := bus.WriteReg(vlI2CMode, 0x00); err != nil {
		return nil, fmt.Errorf("set i2c mode: %w", err)
	}

	if err := s.writeSeq([][2]byte{{0x80, 0x01}, {0xFF, 0x01}, {0x00, 0x00}}); err != nil {
		return nil, err
	}
	if s.stopVar, err = bus.ReadReg(vlStopVariable); err != nil {
		return nil, fmt.Errorf("read stop variable: %w", err)
	}
	if err := s.writeSeq([][2]byte{{0x00, 0x01}, {0xFF, 0x00}, {0x80, 0x00}}); err != nil {
		return nil, err
	}

	if err := bus.WriteReg(vlInterruptConfigGPIO, vlInterruptReady); err != nil {
		return nil, fmt.Errorf("config interrupt: %w", err)
	}
	mux, err := bus.ReadReg(vlGPIOHVMuxActiveHigh)
	if err != nil {
		return nil, fmt.Errorf("read gpio mux: %w", err)
	}
	if err := bus.WriteReg(vlGPIOHVMuxActiveHigh, mux&^0x10); err != nil {
		return nil, fmt.Errorf("set gpio polarity: %w", err)
	}
	if err := bus.WriteReg(vlInterruptClear, 0x01); err != nil {
		return nil, fmt.Errorf("clear interrupt: %w", err)
	}
	if err := bus.WriteReg(vlSequenceConfig, 0xE8); err != nil {
		return nil, fmt.Errorf("sequence config: %w", err)
	}

	s.logger.Info("sensor ready", "stop_variable", s.stopVar)
	return s, nil
}

func (s *VL53L0X) writeSeq(seq [][2]byte) error {
	for _, rv := range seq {
		if err := s.bus.WriteReg(rv[0], rv[1]); err != nil {
			return fmt.Errorf("write reg 0x%02x: %w", rv[0], err)
		}
	}
	return nil
}

// StartRanging begins continuous timed measurements at the mode's period.
func (s *VL53L0X) StartRanging(mode RangingMode) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.writeSeq([][2]byte{{0x80, 0x01}, {0xFF, 0x01}, {0x00, 0x00}}); err != nil {
		return err
	}
	if err := s.bus.WriteReg(vlStopVariable, s.stopVar); err != nil {
		return fmt.Errorf("restore stop variable: %w", err)
	}
	if err := s.writeSeq([][2]byte{{0x00, 0x01}, {0xFF, 0x00}, {0x80, 0x00}}); err != nil {
		return err
	}

	period := mode.period()
	ticks := uint32(period / time.Millisecond)
	osc, err := s.bus.ReadReg16(vlOscCalibrateVal)
	if err != nil {
		return fmt.Errorf("read oscillator calibration: %w", err)
	}
	if osc != 0 {
		ticks *= uint32(osc)
	}
	if err := s.bus.WriteReg(vlIntermeasurementPeriod,
		byte(ticks>>24), byte(ticks>>16), byte(ticks>>8), byte(ticks)); err != nil {
		return fmt.Errorf("set measurement period: %w", err)
	}
	if err := s.bus.WriteReg(vlSysrangeStart, vlModeTimed); err != nil {
		return fmt.Errorf("start ranging: %w", err)
	}

	s.period = period
	s.ranging = true
	s.logger.Info("ranging started", "mode", string(mode), "period", period)
	return nil
}

// Distance waits for the next measurement. Out-of-range readings return 0.
func (s *VL53L0X) Distance() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.ranging {
		return 0, errors.New("vl53l0x: ranging not started")
	}

	deadline := 2*s.period + 50*time.Millisecond
	for waited := time.Duration(0); ; waited += time.Millisecond {
		st, err := s.bus.ReadReg(vlResultInterruptStatus)
		if err != nil {
			return 0, fmt.Errorf("read interrupt status: %w", err)
		}
		if st&0x07 != 0 {
			break
		}
		if waited >= deadline {
			return 0, errRangingTimeout
		}
		s.sleep(time.Millisecond)
	}

	mm, err := s.bus.ReadReg16(vlResultRange)
	if err != nil {
		return 0, fmt.Errorf("read range: %w", err)
	}
	if err := s.bus.WriteReg(vlInterruptClear, 0x01); err != nil {
		return 0, fmt.Errorf("clear interrupt: %w", err)
	}
	if mm >= vlOutOfRange {
		return 0, nil
	}
	return int(mm), nil
}

func (s *VL53L0X) StopRanging() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.ranging {
		return nil
	}
	if err := s.bus.WriteReg(vlSysrangeStart, vlModeSingle); err != nil {
		return fmt.Errorf("stop ranging: %w", err)
	}
	if err := s.writeSeq([][2]byte{{0xFF, 0x01}, {0x00, 0x00}, {0x91, 0x00}, {0x00, 0x01}, {0xFF, 0x00}}); err != nil {
		return err
	}
	s.ranging = false
	s.logger.Info("ranging stopped")
	return nil
}

func (s *VL53L0X) Close() error {
	if err := s.StopRanging(); err != nil {
		s.logger.Warn("stop ranging on close failed", "error", err)
	}
	return s.bus.Close()
}

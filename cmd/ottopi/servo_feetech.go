package main

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/hipsterbrown/feetech-servo/feetech"
)

const (
	// STS servos resolve 4096 steps per turn; a hobby servo sweeps 180 degrees
	// over 2000us, so one microsecond of pulse is 1.024 steps.
	feetechCenter       = 2048
	feetechStepsPer1000 = 1024
	feetechTimeout      = 200 * time.Millisecond
)

// FeetechDriver runs the gait choreography on serial bus servos. Pins are
// interpreted as servo ids; pulse widths are mapped onto bus positions and a
// zero width releases torque.
type FeetechDriver struct {
	logger *slog.Logger

	mu      sync.Mutex
	bus     *feetech.Bus
	servos  map[int]*feetech.ServoGroup
	torqued map[int]bool
}

// OpenFeetechDriver opens the serial bus and binds one group per servo id.
func OpenFeetechDriver(port string, baud int, ids [numChannels]int, logger *slog.Logger) (*FeetechDriver, error) {
	bus, err := feetech.NewBus(feetech.BusConfig{
		Port:     port,
		BaudRate: baud,
		Protocol: feetech.ProtocolSTS,
	})
	if err != nil {
		return nil, fmt.Errorf("open feetech bus %s: %w", port, err)
	}
	d := &FeetechDriver{
		logger:  componentLogger(logger, "servo-feetech"),
		bus:     bus,
		servos:  make(map[int]*feetech.ServoGroup, numChannels),
		torqued: make(map[int]bool, numChannels),
	}
	for _, id := range ids {
		d.servos[id] = feetech.NewServoGroupByIDs(bus, id)
	}
	d.logger.Info("feetech bus open", "port", port, "baud", baud, "ids", ids)
	return d, nil
}

// pulseToPosition maps a hobby-servo pulse width onto an STS position.
func pulseToPosition(widthUS int) int {
	pos := feetechCenter + (widthUS-pulseHome)*feetechStepsPer1000/1000
	if pos < 0 {
		return 0
	}
	if pos > 4095 {
		return 4095
	}
	return pos
}

func (d *FeetechDriver) SetPulse(id int, widthUS int) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	group, ok := d.servos[id]
	if !ok {
		return fmt.Errorf("servo id %d not configured", id)
	}

	ctx, cancel := context.WithTimeout(context.Background(), feetechTimeout)
	defer cancel()

	if widthUS == pulseOff {
		if !d.torqued[id] {
			return nil
		}
		if err := group.DisableAll(ctx); err != nil {
			return fmt.Errorf("disable servo %d: %w", id, err)
		}
		d.torqued[id] = false
		return nil
	}

	if !d.torqued[id] {
		if err := group.EnableAll(ctx); err != nil {
			return fmt.Errorf("enable servo %d: %w", id, err)
		}
		d.torqued[id] = true
	}
	if err := group.SetPositions(ctx, feetech.PositionMap{id: pulseToPosition(widthUS)}); err != nil {
		return fmt.Errorf("write servo %d: %w", id, err)
	}
	return nil
}

func (d *FeetechDriver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	for id, group := range d.servos {
		if d.torqued[id] {
			if err := group.DisableAll(ctx); err != nil {
				d.logger.Warn("disable on close failed", "id", id, "error", err)
			}
		}
	}
	return d.bus.Close()
}

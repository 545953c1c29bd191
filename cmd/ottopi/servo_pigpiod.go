package main

import (
	"encoding/binary"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"time"
)

// pigpio daemon socket command numbers.
const (
	pigpioCmdServo = 8 // PI_CMD_SERVO: p1=gpio p2=pulsewidth (0, 500..2500)
	pigpioCmdHWVer = 17
)

// PigpiodDriver drives servos through a running pigpio daemon.
//
// Each request is four little-endian uint32 words (cmd, p1, p2, p3) and the
// daemon answers with four words, the last being the signed result.
type PigpiodDriver struct {
	logger *slog.Logger

	mu   sync.Mutex
	conn net.Conn
}

// DialPigpiod connects to the pigpio daemon at addr and checks it answers.
func DialPigpiod(addr string, logger *slog.Logger) (*PigpiodDriver, error) {
	conn, err := net.DialTimeout("tcp", addr, 3*time.Second)
	if err != nil {
		return nil, fmt.Errorf("connect to pigpiod %s: %w", addr, err)
	}
	d := &PigpiodDriver{
		logger: componentLogger(logger, "servo-pigpiod"),
		conn:   conn,
	}
	rev, err := d.command(pigpioCmdHWVer, 0, 0)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("pigpiod handshake: %w", err)
	}
	d.logger.Info("connected to pigpiod", "addr", addr, "hw_revision", fmt.Sprintf("%#x", rev))
	return d, nil
}

func (d *PigpiodDriver) SetPulse(pin int, widthUS int) error {
	if _, err := d.command(pigpioCmdServo, uint32(pin), uint32(widthUS)); err != nil {
		return fmt.Errorf("servo pin %d width %d: %w", pin, widthUS, err)
	}
	return nil
}

func (d *PigpiodDriver) command(cmd, p1, p2 uint32) (int32, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	var req [16]byte
	binary.LittleEndian.PutUint32(req[0:], cmd)
	binary.LittleEndian.PutUint32(req[4:], p1)
	binary.LittleEndian.PutUint32(req[8:], p2)
	// p3 (extension length) stays 0.

	_ = d.conn.SetDeadline(time.Now().Add(time.Second))
	if _, err := d.conn.Write(req[:]); err != nil {
		return 0, fmt.Errorf("write request: %w", err)
	}
	var resp [16]byte
	if _, err := io.ReadFull(d.conn, resp[:]); err != nil {
		return 0, fmt.Errorf("read response: %w", err)
	}
	res := int32(binary.LittleEndian.Uint32(resp[12:]))
	if res < 0 {
		return res, fmt.Errorf("pigpio error %d", res)
	}
	return res, nil
}

func (d *PigpiodDriver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.conn.Close()
}

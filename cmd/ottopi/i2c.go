//go:build linux

package main

import (
	"fmt"
	"sync"

	"golang.org/x/sys/unix"
)

// registerBus is byte-register access to one i2c device.
type registerBus interface {
	WriteReg(reg byte, val ...byte) error
	ReadReg(reg byte) (byte, error)
	ReadReg16(reg byte) (uint16, error)
	Close() error
}

// I2C_SLAVE from <linux/i2c-dev.h>; x/sys/unix does not export it.
const i2cSlave = 0x0703

// i2cDev talks to a device through /dev/i2c-N.
type i2cDev struct {
	mu sync.Mutex
	fd int
}

func openI2C(path string, addr int) (*i2cDev, error) {
	fd, err := unix.Open(path, unix.O_RDWR|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	if err := unix.IoctlSetInt(fd, i2cSlave, addr); err != nil {
		_ = unix.Close(fd)
		return nil, fmt.Errorf("select i2c address 0x%02x on %s: %w", addr, path, err)
	}
	return &i2cDev{fd: fd}, nil
}

// WriteReg writes val starting at reg; multi-byte values go most significant
// byte first.
func (d *i2cDev) WriteReg(reg byte, val ...byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.write(append([]byte{reg}, val...))
}

func (d *i2cDev) ReadReg(reg byte) (byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	var buf [1]byte
	if err := d.readInto(reg, buf[:]); err != nil {
		return 0, err
	}
	return buf[0], nil
}

// ReadReg16 reads a big-endian 16-bit register.
func (d *i2cDev) ReadReg16(reg byte) (uint16, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	var buf [2]byte
	if err := d.readInto(reg, buf[:]); err != nil {
		return 0, err
	}
	return uint16(buf[0])<<8 | uint16(buf[1]), nil
}

func (d *i2cDev) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.fd < 0 {
		return nil
	}
	err := unix.Close(d.fd)
	d.fd = -1
	return err
}

func (d *i2cDev) write(b []byte) error {
	n, err := unix.Write(d.fd, b)
	if err != nil {
		return fmt.Errorf("i2c write: %w", err)
	}
	if n != len(b) {
		return fmt.Errorf("i2c short write: %d of %d bytes", n, len(b))
	}
	return nil
}

func (d *i2cDev) readInto(reg byte, buf []byte) error {
	if err := d.write([]byte{reg}); err != nil {
		return err
	}
	n, err := unix.Read(d.fd, buf)
	if err != nil {
		return fmt.Errorf("i2c read reg 0x%02x: %w", reg, err)
	}
	if n != len(buf) {
		return fmt.Errorf("i2c short read reg 0x%02x: %d of %d bytes", reg, n, len(buf))
	}
	return nil
}

package main

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/stianeikeland/go-rpio/v4"
)

const (
	servoHz = 50
	// servoCycle is the PWM range; with Freq(servoHz*servoCycle) one tick is 1us.
	servoCycle   = 20000
	servoPeriod  = time.Second / servoHz
	rpioPWMClock = servoHz * servoCycle
)

// BCM pins wired to the hardware PWM block.
var hardwarePWMPins = map[int]bool{12: true, 13: true, 18: true, 19: true}

// RpioDriver drives servos directly through /dev/gpiomem.
//
// PWM-capable pins use the hardware PWM block. Other pins get a software
// pulse train from one goroutine per pin; it jitters by tens of microseconds,
// which is acceptable for hobby servos.
type RpioDriver struct {
	logger *slog.Logger

	mu   sync.Mutex
	hw   map[int]rpio.Pin
	soft map[int]*softPulse
}

// OpenRpioDriver maps GPIO memory and prepares the given pins.
func OpenRpioDriver(pins [numChannels]int, logger *slog.Logger) (*RpioDriver, error) {
	if err := rpio.Open(); err != nil {
		return nil, fmt.Errorf("open gpio memory: %w", err)
	}
	d := &RpioDriver{
		logger: componentLogger(logger, "servo-rpio"),
		hw:     make(map[int]rpio.Pin),
		soft:   make(map[int]*softPulse),
	}
	for _, p := range pins {
		if hardwarePWMPins[p] {
			pin := rpio.Pin(p)
			pin.Mode(rpio.Pwm)
			pin.Freq(rpioPWMClock)
			pin.DutyCycle(0, servoCycle)
			d.hw[p] = pin
			continue
		}
		sp := newSoftPulse(rpio.Pin(p))
		go sp.run()
		d.soft[p] = sp
	}
	d.logger.Info("gpio ready", "hardware_pwm", len(d.hw), "software_pwm", len(d.soft))
	return d, nil
}

func (d *RpioDriver) SetPulse(pin int, widthUS int) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if p, ok := d.hw[pin]; ok {
		p.DutyCycle(uint32(widthUS), servoCycle)
		return nil
	}
	if sp, ok := d.soft[pin]; ok {
		sp.width.Store(int64(widthUS))
		return nil
	}
	return fmt.Errorf("pin %d not configured", pin)
}

func (d *RpioDriver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	for _, p := range d.hw {
		p.DutyCycle(0, servoCycle)
	}
	for _, sp := range d.soft {
		sp.stop()
	}
	return rpio.Close()
}

// softPulse emits one high pulse of width microseconds every servoPeriod.
type softPulse struct {
	pin   rpio.Pin
	width atomic.Int64

	quit chan struct{}
	done chan struct{}
}

func newSoftPulse(pin rpio.Pin) *softPulse {
	pin.Output()
	pin.Low()
	return &softPulse{
		pin:  pin,
		quit: make(chan struct{}),
		done: make(chan struct{}),
	}
}

func (s *softPulse) run() {
	defer close(s.done)
	ticker := time.NewTicker(servoPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-s.quit:
			s.pin.Low()
			return
		case <-ticker.C:
			w := s.width.Load()
			if w <= 0 {
				continue
			}
			s.pin.High()
			time.Sleep(time.Duration(w) * time.Microsecond)
			s.pin.Low()
		}
	}
}

func (s *softPulse) stop() {
	close(s.quit)
	<-s.done
}

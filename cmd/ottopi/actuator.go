package main

import (
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"
)

// Pose is a per-channel offset from the home pulse, in pulse units.
type Pose [numChannels]int

// pose builds a Pose from choreography motion units (1 unit = poseScale pulses).
// Half units are allowed so gaits can write p/2 for odd p.
func pose(a, b, c, d float64) Pose {
	return Pose{
		int(math.Round(a * poseScale)),
		int(math.Round(b * poseScale)),
		int(math.Round(c * poseScale)),
		int(math.Round(d * poseScale)),
	}
}

// BankConfig tunes interpolation and the per-channel clamp range.
type BankConfig struct {
	// Step is the largest pulse change any channel makes in one interpolation step.
	Step int
	// Speed is the default sleep per pulse unit travelled, in milliseconds.
	Speed float64

	Min [numChannels]int
	Max [numChannels]int
}

// DefaultBankConfig matches DefaultConfig's servo section.
func DefaultBankConfig() BankConfig {
	return BankConfig{
		Step:  defaultPulseStep,
		Speed: defaultIntervalFactor,
		Min:   [numChannels]int{pulseMin, pulseMin, pulseMin, pulseMin},
		Max:   [numChannels]int{pulseMax, pulseMax, pulseMax, pulseMax},
	}
}

// Channel is one servo: its output pin, calibration and last written pulse.
type Channel struct {
	Pin     int `json:"pin"`
	Home    int `json:"home"`
	Min     int `json:"min"`
	Max     int `json:"max"`
	Current int `json:"current"`
}

// ActuatorBank owns the four channels and performs synchronized moves.
//
// Moves are made only from the dispatcher worker. The mutex exists so status
// readers on other goroutines see a consistent Channels() snapshot.
type ActuatorBank struct {
	driver PulseDriver
	logger *slog.Logger

	step  int
	speed float64

	// sleep is time.Sleep outside tests.
	sleep func(time.Duration)

	mu sync.Mutex
	ch [numChannels]Channel
}

// NewActuatorBank binds calibration to a driver. Current pulses start at home;
// nothing is written until the first move.
func NewActuatorBank(driver PulseDriver, pins, homes [numChannels]int, cfg BankConfig, logger *slog.Logger) *ActuatorBank {
	if cfg.Step <= 0 {
		cfg.Step = defaultPulseStep
	}
	if cfg.Speed < 0 {
		cfg.Speed = defaultIntervalFactor
	}
	b := &ActuatorBank{
		driver: driver,
		logger: componentLogger(logger, "actuator"),
		step:   cfg.Step,
		speed:  cfg.Speed,
		sleep:  time.Sleep,
	}
	for i := 0; i < numChannels; i++ {
		b.ch[i] = Channel{
			Pin: pins[i],
			Min: cfg.Min[i],
			Max: cfg.Max[i],
		}
		b.ch[i].Home = b.clamp(i, homes[i])
		b.ch[i].Current = b.ch[i].Home
	}
	return b
}

// clamp limits v to channel i's range, warning when it had to.
func (b *ActuatorBank) clamp(i, v int) int {
	c := b.ch[i]
	if v < c.Min {
		b.logger.Warn("pulse below range, clamped", "channel", i, "pulse", v, "min", c.Min)
		return c.Min
	}
	if v > c.Max {
		b.logger.Warn("pulse above range, clamped", "channel", i, "pulse", v, "max", c.Max)
		return c.Max
	}
	return v
}

// MoveTo drives every channel to home+p.
//
// In normal mode all channels move in the same number of interpolation steps
// and therefore arrive together. Quick mode writes the targets at once and
// waits as long as the longest travel would take. speed <= 0 uses the default.
func (b *ActuatorBank) MoveTo(p Pose, speed float64, quick bool) error {
	if speed <= 0 {
		speed = b.speed
	}

	var from, target [numChannels]int
	maxDelta := 0

	b.mu.Lock()
	for i := 0; i < numChannels; i++ {
		from[i] = b.ch[i].Current
		target[i] = b.clamp(i, b.ch[i].Home+p[i])
		d := target[i] - from[i]
		if d < 0 {
			d = -d
		}
		if d > maxDelta {
			maxDelta = d
		}
	}
	b.mu.Unlock()

	if quick {
		if err := b.writeAll(target); err != nil {
			return err
		}
		b.sleepMS(float64(maxDelta) * speed)
		return nil
	}

	steps := (maxDelta + b.step - 1) / b.step
	if steps == 0 {
		return b.writeAll(target)
	}

	intervalMS := float64(maxDelta) / float64(steps) * speed
	var next [numChannels]int
	for s := 1; s <= steps; s++ {
		for i := 0; i < numChannels; i++ {
			if s == steps {
				next[i] = target[i]
				continue
			}
			dp := float64(target[i]-from[i]) / float64(steps)
			next[i] = from[i] + int(math.Round(dp*float64(s)))
		}
		if err := b.writeAll(next); err != nil {
			return err
		}
		b.sleepMS(intervalMS)
	}
	return nil
}

// Home moves every channel back to its home pulse.
func (b *ActuatorBank) Home(speed float64, quick bool) error {
	return b.MoveTo(Pose{}, speed, quick)
}

// Off unpowers every channel. Current pulses are kept so the next move
// interpolates from where the servos were left.
func (b *ActuatorBank) Off() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i := 0; i < numChannels; i++ {
		if err := b.driver.SetPulse(b.ch[i].Pin, pulseOff); err != nil {
			return fmt.Errorf("channel %d off: %w", i, err)
		}
	}
	return nil
}

// Position returns the live offset from home per channel.
func (b *ActuatorBank) Position() Pose {
	b.mu.Lock()
	defer b.mu.Unlock()
	var p Pose
	for i := 0; i < numChannels; i++ {
		p[i] = b.ch[i].Current - b.ch[i].Home
	}
	return p
}

// Channels returns a copy of the channel table.
func (b *ActuatorBank) Channels() [numChannels]Channel {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.ch
}

// SetHome replaces the home reference of every channel. Current pulses are
// untouched; callers follow up with Home() to settle on the new centre.
func (b *ActuatorBank) SetHome(homes [numChannels]int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i := 0; i < numChannels; i++ {
		b.ch[i].Home = b.clamp(i, homes[i])
	}
	b.logger.Info("home reference updated", "home", homes)
}

// writeAll writes one pulse per channel and records it as current.
func (b *ActuatorBank) writeAll(pulses [numChannels]int) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i := 0; i < numChannels; i++ {
		v := pulses[i]
		if v != pulseOff {
			v = b.clamp(i, v)
		}
		if err := b.driver.SetPulse(b.ch[i].Pin, v); err != nil {
			return fmt.Errorf("channel %d pulse %d: %w", i, v, err)
		}
		if v != pulseOff {
			b.ch[i].Current = v
		}
	}
	return nil
}

func (b *ActuatorBank) sleepMS(ms float64) {
	if ms <= 0 {
		return
	}
	b.sleep(time.Duration(ms * float64(time.Millisecond)))
}

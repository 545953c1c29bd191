package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
)

// inputEvent represents a Linux input event structure
// struct input_event { struct timeval time; __u16 type; __u16 code; __s32 value; };
type inputEvent struct {
	Sec   int64
	Usec  int64
	Type  uint16
	Code  uint16
	Value int32
}

// keyTranslator maps evdev key codes onto the one-key command set.
// It tracks shift so A/D/W can reach the slide and suriashi keys.
type keyTranslator struct {
	leftShift  bool
	rightShift bool
}

var evdevKeys = map[uint16][2]rune{
	// code: {plain, shifted}
	KEY_W:     {'w', 'W'},
	KEY_UP:    {'w', 'W'},
	KEY_X:     {'x', 'x'},
	KEY_DOWN:  {'x', 'x'},
	KEY_A:     {'a', 'A'},
	KEY_LEFT:  {'a', 'A'},
	KEY_D:     {'d', 'D'},
	KEY_RIGHT: {'d', 'D'},
	KEY_Q:     {'q', 'q'},
	KEY_E:     {'e', 'e'},
	KEY_S:     {'s', 's'},
	KEY_ESC:   {'s', 's'},
	KEY_SPACE: {' ', ' '},
	KEY_ENTER: {'@', '@'},
	KEY_0:     {'0', '0'},
	KEY_1:     {'1', '1'},
	KEY_2:     {'2', '2'},
	KEY_3:     {'3', '3'},
	KEY_4:     {'4', '4'},
	KEY_5:     {'5', '5'},
}

// translate returns the key for ev, if it is a mapped key press.
// Auto-repeat is ignored: a held key must not re-preempt its own motion.
func (k *keyTranslator) translate(ev inputEvent) (rune, bool) {
	if ev.Type != EV_KEY {
		return 0, false
	}
	switch ev.Code {
	case KEY_LEFTSHIFT:
		k.leftShift = ev.Value != evValueRelease
		return 0, false
	case KEY_RIGHTSHIFT:
		k.rightShift = ev.Value != evValueRelease
		return 0, false
	}
	if ev.Value != evValuePress {
		return 0, false
	}
	keys, ok := evdevKeys[ev.Code]
	if !ok {
		return 0, false
	}
	if k.leftShift || k.rightShift {
		return keys[1], true
	}
	return keys[0], true
}

// runInput reads the given evdev devices and feeds key presses to ctrl until
// ctx is canceled or a device fails.
func runInput(ctx context.Context, devices []string, ctrl *Controller, logger *slog.Logger) error {
	files := make([]*os.File, 0, len(devices))
	defer func() {
		for _, f := range files {
			_ = f.Close()
		}
	}()
	for _, dev := range devices {
		f, err := os.Open(dev)
		if err != nil {
			return fmt.Errorf("open input device %s (run as root or add user to 'input' group): %w", dev, err)
		}
		files = append(files, f)
	}

	events := make(chan inputEvent, 64)
	readErr := make(chan error, 1)
	stop := make(chan struct{})
	defer close(stop)
	go readInputEventsEpoll(files, events, readErr, stop)

	logger.Info("input devices opened", "devices", devices)

	var keys keyTranslator
	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-readErr:
			return fmt.Errorf("input reader stopped: %w", err)
		case ev := <-events:
			r, ok := keys.translate(ev)
			if !ok {
				continue
			}
			reply := ctrl.HandleKey(r)
			logger.Debug("input key", "key", string(r), "reply", reply)
		}
	}
}

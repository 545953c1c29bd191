package main

import (
	"encoding/binary"
	"io"
	"log/slog"
	"net"
	"strings"
	"sync"
	"testing"
)

type pigpioFrame struct {
	cmd, p1, p2, p3 uint32
}

// fakePigpiod answers every 16-byte request by echoing cmd/p1/p2 with the
// result from answer.
type fakePigpiod struct {
	ln     net.Listener
	answer func(pigpioFrame) int32

	mu     sync.Mutex
	frames []pigpioFrame
}

func startFakePigpiod(t *testing.T, answer func(pigpioFrame) int32) *fakePigpiod {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	f := &fakePigpiod{ln: ln, answer: answer}
	t.Cleanup(func() { ln.Close() })

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		var req [16]byte
		for {
			if _, err := io.ReadFull(conn, req[:]); err != nil {
				return
			}
			fr := pigpioFrame{
				cmd: binary.LittleEndian.Uint32(req[0:]),
				p1:  binary.LittleEndian.Uint32(req[4:]),
				p2:  binary.LittleEndian.Uint32(req[8:]),
				p3:  binary.LittleEndian.Uint32(req[12:]),
			}
			f.mu.Lock()
			f.frames = append(f.frames, fr)
			f.mu.Unlock()

			var resp [16]byte
			copy(resp[:12], req[:12])
			binary.LittleEndian.PutUint32(resp[12:], uint32(f.answer(fr)))
			if _, err := conn.Write(resp[:]); err != nil {
				return
			}
		}
	}()
	return f
}

func (f *fakePigpiod) snapshot() []pigpioFrame {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]pigpioFrame(nil), f.frames...)
}

func TestPigpiod_HandshakeAndServoFrames(t *testing.T) {
	daemon := startFakePigpiod(t, func(fr pigpioFrame) int32 {
		if fr.cmd == pigpioCmdHWVer {
			return 0xa02082
		}
		return 0
	})

	d, err := DialPigpiod(daemon.ln.Addr().String(), slog.Default())
	if err != nil {
		t.Fatalf("DialPigpiod: %v", err)
	}
	defer d.Close()

	if err := d.SetPulse(17, 1500); err != nil {
		t.Fatalf("SetPulse: %v", err)
	}
	if err := d.SetPulse(27, pulseOff); err != nil {
		t.Fatalf("SetPulse off: %v", err)
	}

	frames := daemon.snapshot()
	want := []pigpioFrame{
		{cmd: pigpioCmdHWVer},
		{cmd: 8, p1: 17, p2: 1500},
		{cmd: 8, p1: 27, p2: 0},
	}
	if len(frames) != len(want) {
		t.Fatalf("expected %d frames, got %+v", len(want), frames)
	}
	for i := range want {
		if frames[i] != want[i] {
			t.Errorf("frame %d: expected %+v, got %+v", i, want[i], frames[i])
		}
	}
}

func TestPigpiod_NegativeResultIsError(t *testing.T) {
	daemon := startFakePigpiod(t, func(fr pigpioFrame) int32 {
		if fr.cmd == pigpioCmdServo && fr.p2 > 2500 {
			return -8 // PI_BAD_PULSEWIDTH
		}
		return 3
	})

	d, err := DialPigpiod(daemon.ln.Addr().String(), slog.Default())
	if err != nil {
		t.Fatalf("DialPigpiod: %v", err)
	}
	defer d.Close()

	err = d.SetPulse(17, 3000)
	if err == nil {
		t.Fatal("expected error for rejected pulse width")
	}
	if !strings.Contains(err.Error(), "pigpio error -8") {
		t.Errorf("expected pigpio error -8, got %v", err)
	}
	if err := d.SetPulse(17, 1500); err != nil {
		t.Errorf("expected connection usable after error, got %v", err)
	}
}

func TestPigpiod_HandshakeFailure(t *testing.T) {
	daemon := startFakePigpiod(t, func(pigpioFrame) int32 { return -1 })

	if _, err := DialPigpiod(daemon.ln.Addr().String(), slog.Default()); err == nil {
		t.Fatal("expected handshake error")
	}
}

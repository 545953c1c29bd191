package main

import "testing"

func TestParseCommand(t *testing.T) {
	tests := []struct {
		line    string
		want    Command
		wantErr bool
	}{
		{line: "forward", want: Command{Name: "forward", Repeat: RepeatDefault}},
		{line: "  backward 1 ", want: Command{Name: "backward", Repeat: 1}},
		{line: "forward 0", want: Command{Name: "forward", Repeat: 0}},
		{line: "happy 2 v=0.2 q", want: Command{Name: "happy", Repeat: 2, Speed: 0.2, Quick: true}},
		{line: "turn_left quick 3", want: Command{Name: "turn_left", Repeat: 3, Quick: true}},
		{line: "", wantErr: true},
		{line: "forward -2", wantErr: true},
		{line: "forward v=fast", wantErr: true},
		{line: "forward lots", wantErr: true},
	}

	for _, tt := range tests {
		got, err := ParseCommand(tt.line)
		if tt.wantErr {
			if err == nil {
				t.Errorf("%q: expected error, got %+v", tt.line, got)
			}
			continue
		}
		if err != nil {
			t.Errorf("%q: unexpected error: %v", tt.line, err)
			continue
		}
		if got != tt.want {
			t.Errorf("%q: expected %+v, got %+v", tt.line, tt.want, got)
		}
	}
}

func TestCommand_StringRoundTrips(t *testing.T) {
	for _, c := range []Command{
		Cmd("forward"),
		CmdN("backward", 1),
		{Name: "happy", Repeat: 2, Speed: 0.25, Quick: true},
	} {
		got, err := ParseCommand(c.String())
		if err != nil {
			t.Fatalf("%q: %v", c.String(), err)
		}
		if got != c {
			t.Errorf("expected %+v, got %+v", c, got)
		}
	}
}

func TestEffectiveRepeat(t *testing.T) {
	tests := []struct {
		repeat int
		loop   bool
		want   int
	}{
		{RepeatDefault, true, nContinuous},
		{0, true, nContinuous},
		{3, true, 3},
		{RepeatDefault, false, 1},
		{0, false, 1},
		{2, false, 2},
	}
	for _, tt := range tests {
		if got := effectiveRepeat(tt.repeat, tt.loop); got != tt.want {
			t.Errorf("effectiveRepeat(%d, %v): expected %d, got %d", tt.repeat, tt.loop, tt.want, got)
		}
	}
}

package main

import (
	"bufio"
	"encoding/json"
	"net"
	"path/filepath"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
)

// fakeDaemon answers each request line with resp and records what it got.
func fakeDaemon(t *testing.T, resp Response) (string, <-chan RequestEnvelope) {
	t.Helper()
	sock := filepath.Join(t.TempDir(), "ctl.sock")
	ln, err := net.Listen("unix", sock)
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { ln.Close() })

	got := make(chan RequestEnvelope, 16)
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go func() {
				defer conn.Close()
				sc := bufio.NewScanner(conn)
				enc := json.NewEncoder(conn)
				for sc.Scan() {
					var env RequestEnvelope
					if err := json.Unmarshal(sc.Bytes(), &env); err == nil {
						got <- env
					}
					_ = enc.Encode(resp)
				}
			}()
		}
	}()
	return sock, got
}

func TestRequest_SendsEnvelope(t *testing.T) {
	sock, got := fakeDaemon(t, Response{Status: "ok", Reply: []string{"#CMD forward", "#OK"}})

	no := false
	resp, err := request(sock, "command", CommandRequest{Line: "forward 3", Preempt: &no})
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if len(resp.Reply) != 2 || resp.Reply[0] != "#CMD forward" {
		t.Errorf("unexpected reply %v", resp.Reply)
	}

	env := <-got
	if env.Type != "command" {
		t.Errorf("expected type command, got %q", env.Type)
	}
	var cr CommandRequest
	if err := json.Unmarshal(env.Data, &cr); err != nil {
		t.Fatal(err)
	}
	if cr.Line != "forward 3" || cr.Preempt == nil || *cr.Preempt {
		t.Errorf("unexpected request %+v", cr)
	}
}

func TestRequest_StatusHasNoData(t *testing.T) {
	sock, got := fakeDaemon(t, Response{Status: "ok", Data: &Status{Active: true}})

	resp, err := request(sock, "status", nil)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if resp.Data == nil || !resp.Data.Active {
		t.Errorf("expected active status, got %+v", resp.Data)
	}
	if env := <-got; env.Type != "status" || len(env.Data) != 0 {
		t.Errorf("expected bare status envelope, got %+v", env)
	}
}

func TestRequest_DaemonError(t *testing.T) {
	sock, _ := fakeDaemon(t, Response{Status: "error", Error: `#NG "auto x" .. unknown`})

	if _, err := request(sock, "auto", AutoRequest{Cmd: "x"}); err == nil {
		t.Fatal("expected error")
	}
}

func TestKeyFor(t *testing.T) {
	tests := []struct {
		msg  tea.KeyMsg
		want string
		ok   bool
	}{
		{tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("W")}, "W", true},
		{tea.KeyMsg{Type: tea.KeySpace}, " ", true},
		{tea.KeyMsg{Type: tea.KeyUp}, "w", true},
		{tea.KeyMsg{Type: tea.KeyLeft}, "a", true},
		{tea.KeyMsg{Type: tea.KeyEnter}, "@", true},
		{tea.KeyMsg{Type: tea.KeyTab}, "", false},
	}
	for _, tt := range tests {
		got, ok := keyFor(tt.msg)
		if got != tt.want || ok != tt.ok {
			t.Errorf("keyFor(%v): expected (%q, %v), got (%q, %v)", tt.msg.Type, tt.want, tt.ok, got, ok)
		}
	}
}

func TestFormatStatus(t *testing.T) {
	out := formatStatus(Status{
		Active:    true,
		Current:   &Command{Name: "forward", Repeat: 3},
		Pending:   1,
		Position:  []int{1470, 1430, 1490, 1490},
		Autopilot: &AutopilotState{Enabled: true, Last: "near", Side: "left", Distance: 320},
	})
	for _, want := range []string{"active", "forward 3", "pending 1", "last=near", "320mm"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %q in:\n%s", want, out)
		}
	}
}

package main

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestRequestEnvelopeRoundTrip(t *testing.T) {
	no := false
	for _, r := range []Request{
		CommandRequest{Line: "forward 3", Preempt: &no},
		KeyRequest{Key: "w"},
		AutoRequest{Cmd: "on"},
		StatusRequest{},
	} {
		data, err := MarshalRequest(r)
		if err != nil {
			t.Fatalf("MarshalRequest(%T): %v", r, err)
		}
		got, err := UnmarshalRequest(data)
		if err != nil {
			t.Fatalf("UnmarshalRequest(%s): %v", data, err)
		}
		if cr, ok := r.(CommandRequest); ok {
			g := got.(CommandRequest)
			if g.Line != cr.Line || g.Preempt == nil || *g.Preempt != false {
				t.Errorf("expected %+v, got %+v", cr, g)
			}
			continue
		}
		if got != r {
			t.Errorf("expected %+v, got %+v", r, got)
		}
	}
}

func TestUnmarshalRequest_RejectsUnknownType(t *testing.T) {
	if _, err := UnmarshalRequest([]byte(`{"type":"volume_up"}`)); err == nil {
		t.Error("expected error for unknown type")
	}
	if _, err := UnmarshalRequest([]byte(`not json`)); err == nil {
		t.Error("expected error for invalid JSON")
	}
}

func startTestIPC(t *testing.T, ctrl *Controller) string {
	t.Helper()
	sock := filepath.Join(t.TempDir(), "ottopi.sock")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- runIPCServer(ctx, sock, ctrl, ctrl.logger) }()
	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			if err != nil {
				t.Errorf("runIPCServer: %v", err)
			}
		case <-time.After(time.Second):
			t.Error("IPC server did not stop")
		}
	})

	waitUntil(t, time.Second, func() bool {
		_, err := os.Stat(sock)
		return err == nil
	}, "IPC socket not created")
	return sock
}

func TestIPC_CommandAndStatus(t *testing.T) {
	ctrl, runner, _ := newTestController(t)
	sock := startTestIPC(t, ctrl)

	resp, err := SendIPCRequest(sock, CommandRequest{Line: "happy 2"})
	if err != nil {
		t.Fatalf("command: %v", err)
	}
	if len(resp.Reply) == 0 || resp.Reply[0] != "#CMD happy" {
		t.Errorf("expected #CMD happy reply, got %v", resp.Reply)
	}
	waitUntil(t, time.Second, func() bool { return len(runner.names()) == 1 }, "happy did not run")
	if r := runner.record(0); r.N != 2 {
		t.Errorf("expected n=2, got %d", r.N)
	}

	resp, err = SendIPCRequest(sock, StatusRequest{})
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if resp.Data == nil || !resp.Data.Active {
		t.Errorf("expected active status, got %+v", resp.Data)
	}
}

func TestIPC_ErrorsAreReported(t *testing.T) {
	ctrl, _, _ := newTestController(t)
	sock := startTestIPC(t, ctrl)

	if _, err := SendIPCRequest(sock, AutoRequest{Cmd: "sideways"}); err == nil {
		t.Error("expected error for unknown autopilot command")
	}
	if _, err := SendIPCRequest(sock, KeyRequest{}); err == nil {
		t.Error("expected error for empty key")
	}
}

func TestResponse_JSONShape(t *testing.T) {
	b, err := json.Marshal(Response{Status: "ok", Reply: []string{"#OK"}})
	if err != nil {
		t.Fatal(err)
	}
	if string(b) != `{"status":"ok","reply":["#OK"]}` {
		t.Errorf("unexpected encoding: %s", b)
	}
}

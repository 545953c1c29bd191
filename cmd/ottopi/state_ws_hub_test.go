package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"
)

// These tests exercise hub fanout and slow-client eviction without a real
// websocket server. Clients carry a nil conn; the hub guards against nil.

func newTestHub(t *testing.T, sendBuf int, broadcastBuf int) *Hub {
	t.Helper()
	return NewHub(slog.Default(), HubConfig{
		SendBuf:      sendBuf,
		BroadcastBuf: broadcastBuf,
	})
}

func runTestHub(t *testing.T, hub *Hub) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		hub.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		select {
		case <-done:
		case <-time.After(time.Second):
			t.Error("timeout waiting for hub to stop")
		}
	})
}

func registerTestClient(t *testing.T, hub *Hub, name string, sendBuf int) *Client {
	t.Helper()
	c := &Client{
		hub:        hub,
		send:       make(chan []byte, sendBuf),
		remoteAddr: name,
		logger:     slog.Default(),
	}
	hub.register <- c
	waitUntil(t, 500*time.Millisecond, func() bool {
		hub.mu.Lock()
		defer hub.mu.Unlock()
		_, ok := hub.clients[c]
		return ok
	}, name+" not registered in time")
	return c
}

func TestHub_BroadcastDeliveredToAllClients(t *testing.T) {
	hub := newTestHub(t, 4, 8)
	runTestHub(t, hub)

	c1 := registerTestClient(t, hub, "c1", 4)
	c2 := registerTestClient(t, hub, "c2", 4)

	msg := []byte(`{"type":"status_changed","data":{"active":true}}`)
	hub.broadcast <- msg

	for _, c := range []*Client{c1, c2} {
		select {
		case got := <-c.send:
			if string(got) != string(msg) {
				t.Fatalf("%s: expected %q, got %q", c.remoteAddr, msg, got)
			}
		case <-time.After(500 * time.Millisecond):
			t.Fatalf("timeout waiting for %s to receive broadcast", c.remoteAddr)
		}
	}
	if n := hub.Clients(); n != 2 {
		t.Errorf("expected 2 clients, got %d", n)
	}
}

func TestHub_SlowClientDisconnectedOnFullSendBuffer(t *testing.T) {
	hub := newTestHub(t, 1, 8)
	runTestHub(t, hub)

	slow := registerTestClient(t, hub, "slow", 1)
	fast := registerTestClient(t, hub, "fast", 8)

	// Pre-fill the slow client so the next broadcast cannot be queued.
	slow.send <- []byte(`"already queued"`)

	msg := []byte(`{"type":"status_changed","data":{"active":false}}`)
	hub.broadcast <- msg

	select {
	case got := <-fast.send:
		if string(got) != string(msg) {
			t.Fatalf("expected %q, got %q", msg, got)
		}
	case <-time.After(500 * time.Millisecond):
		t.Fatalf("timeout waiting for fast client to receive broadcast")
	}

	select {
	case <-slow.send:
	default:
	}
	waitUntil(t, 750*time.Millisecond, func() bool {
		select {
		case _, ok := <-slow.send:
			return !ok
		default:
			return false
		}
	}, "expected slow send channel to be closed")

	if n := hub.Clients(); n != 1 {
		t.Errorf("expected 1 client left, got %d", n)
	}
}

func TestStatusBroadcaster_SendsOnlyChanges(t *testing.T) {
	hub := newTestHub(t, 16, 16)
	runTestHub(t, hub)
	c := registerTestClient(t, hub, "c", 16)

	var active atomic.Bool
	snapshot := func() Status { return Status{Active: active.Load()} }

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go RunStatusBroadcaster(ctx, hub, snapshot, 2*time.Millisecond, slog.Default())

	next := func() envelope {
		t.Helper()
		select {
		case b := <-c.send:
			var env struct {
				Type string `json:"type"`
				Data Status `json:"data"`
			}
			if err := json.Unmarshal(b, &env); err != nil {
				t.Fatalf("decode %s: %v", b, err)
			}
			return envelope{Type: env.Type, Data: env.Data}
		case <-time.After(500 * time.Millisecond):
			t.Fatal("timeout waiting for broadcast")
		}
		return envelope{}
	}

	first := next()
	if first.Type != "status_changed" || first.Data.(Status).Active {
		t.Fatalf("expected inactive status_changed, got %+v", first)
	}

	// Unchanged snapshots are not rebroadcast.
	time.Sleep(20 * time.Millisecond)
	select {
	case b := <-c.send:
		t.Fatalf("expected no broadcast for unchanged status, got %s", b)
	default:
	}

	active.Store(true)
	if got := next(); !got.Data.(Status).Active {
		t.Errorf("expected active status, got %+v", got)
	}
}

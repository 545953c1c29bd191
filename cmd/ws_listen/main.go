package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/url"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
)

// envelope mirrors the daemon's state message.
type envelope struct {
	Type string          `json:"type"`
	Ts   *time.Time      `json:"ts,omitempty"`
	Data json.RawMessage `json:"data,omitempty"`
}

// statusView is the subset of the daemon status this tool tracks.
type statusView struct {
	Active  bool `json:"active"`
	Current *struct {
		Name   string `json:"name"`
		Repeat int    `json:"repeat"`
	} `json:"current"`
	Pending   int   `json:"pending"`
	Position  []int `json:"position"`
	Autopilot *struct {
		Enabled  bool   `json:"enabled"`
		Engaged  bool   `json:"engaged"`
		Last     string `json:"last"`
		Distance int    `json:"distance_mm"`
	} `json:"autopilot"`
}

func main() {
	var (
		addr    = flag.String("addr", "127.0.0.1:8080", "ottopi HTTP address (host:port)")
		raw     = flag.Bool("raw", false, "Print every envelope as JSON")
		command = flag.String("cmd", "", "Send a single command line over /ws/cmd and exit (e.g. ':forward 2' or 'w')")
	)
	flag.Parse()

	path := "/ws/state"
	if *command != "" {
		path = "/ws/cmd"
	}
	u := url.URL{Scheme: "ws", Host: *addr, Path: path}

	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)

	d := websocket.Dialer{
		HandshakeTimeout: 5 * time.Second,
	}

	log.Printf("connecting to %s...", u.String())
	conn, _, err := d.Dial(u.String(), nil)
	if err != nil {
		log.Fatalf("failed to connect: %v", err)
	}
	defer conn.Close()

	// Single command mode
	if *command != "" {
		if err := conn.WriteMessage(websocket.TextMessage, []byte(*command)); err != nil {
			log.Fatalf("failed to send command: %v", err)
		}
		_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		_, message, err := conn.ReadMessage()
		if err != nil {
			log.Fatalf("failed to read response: %v", err)
		}
		fmt.Print(string(message))
		return
	}

	log.Printf("connected! (press Ctrl+C to exit)")

	var writeMu sync.Mutex

	conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	// The server pings every 20s; answering resets our deadline too.
	conn.SetPingHandler(func(data string) error {
		conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		writeMu.Lock()
		defer writeMu.Unlock()
		return conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(5*time.Second))
	})

	done := make(chan struct{})
	go func() {
		defer close(done)
		var last *statusView
		for {
			messageType, message, err := conn.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
					log.Printf("websocket error: %v", err)
				}
				return
			}
			if messageType != websocket.TextMessage {
				fmt.Printf("[BINARY] %d bytes\n", len(message))
				continue
			}
			last = handleTextMessage(message, last, *raw)
		}
	}()

	select {
	case <-sigc:
		log.Printf("shutting down...")
		writeMu.Lock()
		err := conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		writeMu.Unlock()
		if err != nil {
			log.Printf("error closing connection: %v", err)
		}
	case <-done:
		log.Printf("connection closed")
	}
}

// handleTextMessage prints what changed since last and returns the new view.
func handleTextMessage(message []byte, last *statusView, raw bool) *statusView {
	var env envelope
	if err := json.Unmarshal(message, &env); err != nil {
		fmt.Printf("[TEXT] %s\n", string(message))
		return last
	}
	if raw {
		fmt.Printf("[%s] %s\n", env.Type, string(env.Data))
	}

	var st statusView
	if err := json.Unmarshal(env.Data, &st); err != nil {
		fmt.Printf("[%s] undecodable data: %v\n", env.Type, err)
		return last
	}
	if raw {
		return &st
	}

	if last == nil || last.Active != st.Active {
		state := "ACTIVE"
		if !st.Active {
			state = "DEAD"
		}
		fmt.Printf("[DISPATCHER] %s\n", state)
	}

	cur, prev := "-", "-"
	if st.Current != nil {
		cur = fmt.Sprintf("%s %d", st.Current.Name, st.Current.Repeat)
	}
	if last != nil && last.Current != nil {
		prev = fmt.Sprintf("%s %d", last.Current.Name, last.Current.Repeat)
	}
	if last == nil || cur != prev || last.Pending != st.Pending {
		fmt.Printf("[MOTION] %s (pending %d)\n", cur, st.Pending)
	}

	if a := st.Autopilot; a != nil {
		if last == nil || last.Autopilot == nil ||
			last.Autopilot.Enabled != a.Enabled || last.Autopilot.Engaged != a.Engaged || last.Autopilot.Last != a.Last {
			fmt.Printf("[AUTO] enabled=%v engaged=%v band=%s distance=%dmm\n", a.Enabled, a.Engaged, a.Last, a.Distance)
		}
	}
	return &st
}

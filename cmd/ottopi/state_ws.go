package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// ============================================================================
// State WebSocket: hub + per-client pumps + broadcaster
// ============================================================================
//
// This file implements:
//   - A Hub that tracks connected WebSocket clients
//   - Per-client write pumps so one slow client doesn't block others
//   - A broadcaster loop that polls robot status and fans out changes
//
// Notes:
//   - Slow clients are disconnected when their send buffer fills.
//   - Messages are JSON text frames with an envelope: {type, ts, data}.
//   - The initial message on connect is "state_init" with a Status in data;
//     later messages are "status_changed" with the new Status.
//
// ============================================================================

// envelope is the wire format envelope for WS messages.
type envelope struct {
	Type string      `json:"type"`
	Ts   *time.Time  `json:"ts,omitempty"`
	Data interface{} `json:"data,omitempty"`
}

func marshalEnvelope(typ string, data any) ([]byte, error) {
	now := time.Now().UTC()
	return json.Marshal(envelope{Type: typ, Ts: &now, Data: data})
}

// ============================================================================
// Hub
// ============================================================================

type Hub struct {
	logger *slog.Logger

	// Buffered broadcast channel for already-serialized JSON frames.
	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client

	mu      sync.Mutex
	clients map[*Client]struct{}

	sendBuf int
}

type HubConfig struct {
	// SendBuf is the per-client outbound queue size. Zero means 32.
	SendBuf int

	// BroadcastBuf is the hub inbound broadcast queue size. Zero means 128.
	BroadcastBuf int
}

// NewHub constructs a hub. Call Run(ctx) to start it.
func NewHub(logger *slog.Logger, cfg HubConfig) *Hub {
	sendBuf := cfg.SendBuf
	if sendBuf <= 0 {
		sendBuf = 32
	}
	bcastBuf := cfg.BroadcastBuf
	if bcastBuf <= 0 {
		bcastBuf = 128
	}

	return &Hub{
		logger:     componentLogger(logger, "ws-hub"),
		broadcast:  make(chan []byte, bcastBuf),
		register:   make(chan *Client, 64),
		unregister: make(chan *Client, 64),
		clients:    make(map[*Client]struct{}),
		sendBuf:    sendBuf,
	}
}

// Run processes hub events until ctx is canceled.
// It disconnects all clients on shutdown.
func (h *Hub) Run(ctx context.Context) {
	h.logger.Info("ws hub starting")

	for {
		select {
		case <-ctx.Done():
			h.logger.Info("ws hub stopping (context canceled)")
			h.closeAllClients()
			return

		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = struct{}{}
			n := len(h.clients)
			h.mu.Unlock()
			h.logger.Info("ws client registered", "remote_addr", c.remoteAddr, "clients", n)

		case c := <-h.unregister:
			h.removeClient(c, "unregister")

		case msg := <-h.broadcast:
			// Collect slow clients first, then remove them after we unlock.
			var slow []*Client

			h.mu.Lock()
			for c := range h.clients {
				select {
				case c.send <- msg:
				default:
					slow = append(slow, c)
				}
			}
			h.mu.Unlock()

			for _, c := range slow {
				h.removeClient(c, "slow_client")
			}
		}
	}
}

// Clients returns the number of registered clients.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (h *Hub) closeAllClients() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		if c.conn != nil {
			_ = c.conn.Close()
		}
		safeCloseChan(c.send)
		delete(h.clients, c)
	}
}

func (h *Hub) removeClient(c *Client, reason string) {
	h.mu.Lock()
	_, ok := h.clients[c]
	if ok {
		delete(h.clients, c)
	}
	n := len(h.clients)
	h.mu.Unlock()

	if ok {
		if c.conn != nil {
			_ = c.conn.Close()
		}
		// Closing send signals writePump to exit.
		safeCloseChan(c.send)

		h.logger.Info("ws client disconnected", "remote_addr", c.remoteAddr, "reason", reason, "clients", n)
	}
}

func safeCloseChan(ch chan []byte) {
	defer func() {
		_ = recover() // ignore "close of closed channel"
	}()
	close(ch)
}

// BroadcastBytes enqueues a pre-serialized JSON WS frame for broadcast.
// It never blocks; if the hub queue is full it drops the message.
func (h *Hub) BroadcastBytes(msg []byte) {
	select {
	case h.broadcast <- msg:
	default:
		h.logger.Warn("ws hub broadcast queue full, dropping message", "bytes", len(msg))
	}
}

// ============================================================================
// Client
// ============================================================================

type Client struct {
	hub *Hub

	conn *websocket.Conn
	send chan []byte

	remoteAddr string
	logger     *slog.Logger
}

// NewClient creates a client with a buffered send channel.
func NewClient(hub *Hub, conn *websocket.Conn, remoteAddr string, logger *slog.Logger) *Client {
	sendBuf := 32
	if hub != nil && hub.sendBuf > 0 {
		sendBuf = hub.sendBuf
	}
	return &Client{
		hub:        hub,
		conn:       conn,
		send:       make(chan []byte, sendBuf),
		remoteAddr: remoteAddr,
		logger:     logger,
	}
}

const (
	writeWait  = 5 * time.Second
	pongWait   = 30 * time.Second
	pingPeriod = 20 * time.Second
)

// closeStatus extracts a websocket close code / text when possible.
func closeStatus(err error) (code int, text string, ok bool) {
	var ce *websocket.CloseError
	if errors.As(err, &ce) {
		return ce.Code, ce.Text, true
	}
	return 0, "", false
}

func (c *Client) logExit(pump, what string, err error) {
	if errors.Is(err, websocket.ErrCloseSent) {
		return
	}
	if code, text, ok := closeStatus(err); ok {
		c.logger.Info("ws "+pump+" exiting (close)", "remote_addr", c.remoteAddr, "code", code, "reason", text)
		return
	}
	c.logger.Info("ws "+pump+" exiting ("+what+")", "remote_addr", c.remoteAddr, "error", err)
}

// writePump writes messages from the send queue to the websocket.
// It exits on write error or when send is closed.
func (c *Client) writePump(ctx context.Context) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Channel closed: hub is disconnecting us.
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				c.logExit("writePump", "write error", err)
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.logExit("writePump", "ping error", err)
				return
			}
		}
	}
}

// readPump reads frames until the connection fails, then unregisters the
// client. Incoming frames go to onMessage when set and are discarded otherwise.
func (c *Client) readPump(ctx context.Context, onMessage func([]byte)) {
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		_, msg, err := c.conn.ReadMessage()
		if err != nil {
			c.logExit("readPump", "read error", err)
			if c.hub != nil {
				c.hub.unregister <- c
			}
			return
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		if onMessage != nil {
			onMessage(msg)
		}
	}
}

// ============================================================================
// HTTP handlers
// ============================================================================

var upgrader = websocket.Upgrader{
	// The UI is served from the robot itself; LAN clients may use any origin.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// StateServer serves /ws/state and /ws/cmd.
type StateServer struct {
	logger *slog.Logger
	hub    *Hub
	ctrl   *Controller

	// cmdHub tracks command sockets so shutdown closes them too.
	cmdHub *Hub
}

type StateServerConfig struct {
	Hub HubConfig
}

// NewStateServer constructs the websocket components. Start Run(ctx) for the
// hubs and RunStatusBroadcaster for state pushes.
func NewStateServer(logger *slog.Logger, ctrl *Controller, cfg StateServerConfig) *StateServer {
	return &StateServer{
		logger: componentLogger(logger, "ws"),
		hub:    NewHub(logger, cfg.Hub),
		cmdHub: NewHub(logger, cfg.Hub),
		ctrl:   ctrl,
	}
}

func (s *StateServer) Hub() *Hub { return s.hub }

// Run runs both hubs until ctx is canceled.
func (s *StateServer) Run(ctx context.Context) {
	var wg sync.WaitGroup
	wg.Add(2)
	go func() { defer wg.Done(); s.hub.Run(ctx) }()
	go func() { defer wg.Done(); s.cmdHub.Run(ctx) }()
	wg.Wait()
}

// Register registers the WS handlers on the provided mux.
func (s *StateServer) Register(mux *http.ServeMux) {
	if mux == nil {
		return
	}
	mux.HandleFunc("/ws/state", s.handleStateWS)
	mux.HandleFunc("/ws/cmd", s.handleCmdWS)
}

// handleStateWS upgrades and registers a client, then sends state_init.
func (s *StateServer) handleStateWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("ws upgrade failed", "error", err)
		return
	}

	client := NewClient(s.hub, conn, r.RemoteAddr, s.logger)

	// Queue state_init before registering so it is the first frame.
	if s.ctrl != nil {
		if msg, err := marshalEnvelope("state_init", s.ctrl.Status()); err == nil {
			client.send <- msg
		}
	}
	s.hub.register <- client

	// Pumps are not tied to r.Context(): net/http cancels it when the handler
	// returns, which would close the socket immediately.
	go client.writePump(context.Background())
	go client.readPump(context.Background(), nil)
}

// handleCmdWS accepts command text frames. A frame holding a JSON request
// envelope gets a JSON Response; any other frame is a controller line and
// gets the reply lines back, CRLF separated.
func (s *StateServer) handleCmdWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("ws upgrade failed", "error", err)
		return
	}

	client := NewClient(s.cmdHub, conn, r.RemoteAddr, s.logger)
	s.cmdHub.register <- client

	go client.writePump(context.Background())
	go client.readPump(context.Background(), func(msg []byte) {
		out := s.handleCmdFrame(msg)
		if out == nil {
			return
		}
		if !client.trySend(out) {
			s.cmdHub.unregister <- client
		}
	})
}

// trySend queues msg without blocking. It reports false when the queue is
// full or the hub already closed it.
func (c *Client) trySend(msg []byte) (ok bool) {
	defer func() {
		if recover() != nil {
			ok = false
		}
	}()
	select {
	case c.send <- msg:
		return true
	default:
		return false
	}
}

func (s *StateServer) handleCmdFrame(msg []byte) []byte {
	trimmed := bytes.TrimSpace(msg)
	if len(trimmed) == 0 {
		return nil
	}

	if trimmed[0] == '{' {
		var resp Response
		req, err := UnmarshalRequest(trimmed)
		if err != nil {
			resp = Response{Status: "error", Error: err.Error()}
		} else {
			resp = s.ctrl.handleRequest(req)
		}
		b, err := json.Marshal(resp)
		if err != nil {
			s.logger.Warn("ws cmd marshal failed", "error", err)
			return nil
		}
		return b
	}

	reply := s.ctrl.HandleLine(string(trimmed))
	if len(reply) == 0 {
		return nil
	}
	var b bytes.Buffer
	for _, l := range reply {
		b.WriteString(l)
		b.WriteString("\r\n")
	}
	return b.Bytes()
}

// ============================================================================
// Broadcaster
// ============================================================================

// RunStatusBroadcaster polls snapshot every interval and broadcasts a
// "status_changed" envelope whenever the status differs from the last one
// sent. Intended to run as a single goroutine.
func RunStatusBroadcaster(ctx context.Context, hub *Hub, snapshot func() Status, interval time.Duration, logger *slog.Logger) {
	if hub == nil || snapshot == nil {
		return
	}
	if interval <= 0 {
		interval = 100 * time.Millisecond
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var last []byte
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			data, err := json.Marshal(snapshot())
			if err != nil {
				logger.Warn("ws broadcaster marshal failed", "error", err)
				continue
			}
			if bytes.Equal(data, last) {
				continue
			}
			last = data

			msg, err := marshalEnvelope("status_changed", json.RawMessage(data))
			if err != nil {
				logger.Warn("ws broadcaster marshal failed", "error", err)
				continue
			}
			hub.BroadcastBytes(msg)
		}
	}
}

package main

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"time"
)

// Request types (duplicated from the daemon for a standalone binary)

type CommandRequest struct {
	Line    string `json:"line"`
	Preempt *bool  `json:"preempt,omitempty"`
}

type KeyRequest struct {
	Key string `json:"key"`
}

type AutoRequest struct {
	Cmd string `json:"cmd"`
}

// RequestEnvelope wraps requests for JSON
type RequestEnvelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

type Command struct {
	Name   string  `json:"name"`
	Repeat int     `json:"repeat"`
	Speed  float64 `json:"speed,omitempty"`
	Quick  bool    `json:"quick,omitempty"`
}

type Channel struct {
	Pin     int `json:"pin"`
	Home    int `json:"home"`
	Current int `json:"current"`
}

type AutopilotState struct {
	Enabled    bool   `json:"enabled"`
	Engaged    bool   `json:"engaged"`
	Last       string `json:"last"`
	TouchCount int    `json:"touch_count"`
	ReadyCount int    `json:"ready_count"`
	Side       string `json:"side"`
	Distance   int    `json:"distance_mm"`
	Recovering bool   `json:"recovering"`
}

type Status struct {
	Active    bool            `json:"active"`
	Current   *Command        `json:"current,omitempty"`
	Pending   int             `json:"pending"`
	Restarts  int             `json:"restarts"`
	Position  []int           `json:"position"`
	Channels  []Channel       `json:"channels"`
	Autopilot *AutopilotState `json:"autopilot,omitempty"`
}

// Response represents the daemon's response
type Response struct {
	Status string   `json:"status"`
	Error  string   `json:"error,omitempty"`
	Reply  []string `json:"reply,omitempty"`
	Data   *Status  `json:"data,omitempty"`
}

const ipcTimeout = 5 * time.Second

func envelope(typ string, data any) ([]byte, error) {
	env := RequestEnvelope{Type: typ}
	if data != nil {
		b, err := json.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("marshal %s: %w", typ, err)
		}
		env.Data = b
	}
	return json.Marshal(env)
}

// client holds one IPC connection for a series of requests.
type client struct {
	conn net.Conn
	r    *bufio.Reader
}

func dial(socketPath string) (*client, error) {
	conn, err := net.Dial("unix", socketPath)
	if err != nil {
		return nil, fmt.Errorf("connect to %s: %w", socketPath, err)
	}
	return &client{conn: conn, r: bufio.NewReader(conn)}, nil
}

func (c *client) Close() error { return c.conn.Close() }

// do sends one request and waits for its response line.
func (c *client) do(typ string, data any) (Response, error) {
	msg, err := envelope(typ, data)
	if err != nil {
		return Response{}, err
	}
	_ = c.conn.SetDeadline(time.Now().Add(ipcTimeout))
	if _, err := fmt.Fprintf(c.conn, "%s\n", msg); err != nil {
		return Response{}, fmt.Errorf("send request: %w", err)
	}
	line, err := c.r.ReadBytes('\n')
	if err != nil {
		return Response{}, fmt.Errorf("read response: %w", err)
	}
	var resp Response
	if err := json.Unmarshal(line, &resp); err != nil {
		return Response{}, fmt.Errorf("decode response: %w", err)
	}
	if resp.Status == "error" {
		return resp, errors.New("daemon error: " + resp.Error)
	}
	return resp, nil
}

// request is a one-shot do on a fresh connection.
func request(socketPath, typ string, data any) (Response, error) {
	c, err := dial(socketPath)
	if err != nil {
		return Response{}, err
	}
	defer c.Close()
	return c.do(typ, data)
}

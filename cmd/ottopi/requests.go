package main

import (
	"encoding/json"
	"fmt"
)

// ============================================================================
// Client Requests
// ============================================================================
// Requests arrive over IPC and the command websocket as typed envelopes:
//
//	{"type": "command", "data": {"line": "forward 3", "preempt": true}}
//	{"type": "key",     "data": {"key": "w"}}
//	{"type": "auto",    "data": {"cmd": "on"}}
//	{"type": "status"}
// ============================================================================

// Request is a marker interface for client requests.
type Request interface {
	requestMarker()
}

// CommandRequest dispatches a command line. Preempt defaults to true.
type CommandRequest struct {
	Line    string `json:"line"`
	Preempt *bool  `json:"preempt,omitempty"`
}

func (CommandRequest) requestMarker() {}

// KeyRequest applies one-key commands, one per character.
type KeyRequest struct {
	Key string `json:"key"`
}

func (KeyRequest) requestMarker() {}

// AutoRequest steers the autopilot.
type AutoRequest struct {
	Cmd string `json:"cmd"`
}

func (AutoRequest) requestMarker() {}

// StatusRequest asks for a Status snapshot.
type StatusRequest struct{}

func (StatusRequest) requestMarker() {}

// RequestEnvelope wraps a request with a type discriminator for JSON.
type RequestEnvelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// UnmarshalRequest decodes an envelope into a concrete Request.
func UnmarshalRequest(data []byte) (Request, error) {
	var env RequestEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("unmarshal envelope: %w", err)
	}

	switch env.Type {
	case "command":
		var r CommandRequest
		if err := json.Unmarshal(env.Data, &r); err != nil {
			return nil, fmt.Errorf("unmarshal CommandRequest: %w", err)
		}
		return r, nil

	case "key":
		var r KeyRequest
		if err := json.Unmarshal(env.Data, &r); err != nil {
			return nil, fmt.Errorf("unmarshal KeyRequest: %w", err)
		}
		return r, nil

	case "auto":
		var r AutoRequest
		if err := json.Unmarshal(env.Data, &r); err != nil {
			return nil, fmt.Errorf("unmarshal AutoRequest: %w", err)
		}
		return r, nil

	case "status":
		return StatusRequest{}, nil

	default:
		return nil, fmt.Errorf("unknown request type: %q", env.Type)
	}
}

// MarshalRequest encodes a Request into its envelope.
func MarshalRequest(r Request) ([]byte, error) {
	var typ string
	switch r.(type) {
	case CommandRequest:
		typ = "command"
	case KeyRequest:
		typ = "key"
	case AutoRequest:
		typ = "auto"
	case StatusRequest:
		return json.Marshal(RequestEnvelope{Type: "status"})
	default:
		return nil, fmt.Errorf("unknown request %T", r)
	}

	data, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("marshal %s: %w", typ, err)
	}
	return json.Marshal(RequestEnvelope{Type: typ, Data: data})
}

// Response is the reply to every request.
type Response struct {
	Status string   `json:"status"`          // "ok" or "error"
	Error  string   `json:"error,omitempty"` // set when status == "error"
	Reply  []string `json:"reply,omitempty"` // protocol reply lines (#CMD, #OK, ...)
	Data   *Status  `json:"data,omitempty"`
}

// handleRequest applies r through the controller.
func (c *Controller) handleRequest(r Request) Response {
	switch req := r.(type) {
	case CommandRequest:
		preempt := true
		if req.Preempt != nil {
			preempt = *req.Preempt
		}
		prefix := cmdPrefix
		if !preempt {
			prefix = cmdPrefixQueued
		}
		return replyResponse(c.HandleLine(prefix + req.Line))

	case KeyRequest:
		if req.Key == "" {
			return Response{Status: "error", Error: "empty key"}
		}
		var reply []string
		for _, k := range req.Key {
			reply = append(reply, c.HandleKey(k)...)
		}
		return replyResponse(reply)

	case AutoRequest:
		return replyResponse(c.autoLine(req.Cmd))

	case StatusRequest:
		st := c.Status()
		return Response{Status: "ok", Data: &st}

	default:
		return Response{Status: "error", Error: fmt.Sprintf("unsupported request %T", r)}
	}
}

// replyResponse maps protocol replies onto a Response: a #NG line is an error.
func replyResponse(reply []string) Response {
	for _, l := range reply {
		if len(l) >= 3 && l[:3] == "#NG" {
			return Response{Status: "error", Error: l, Reply: reply}
		}
	}
	return Response{Status: "ok", Reply: reply}
}

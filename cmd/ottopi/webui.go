package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// ============================================================================
// HTTP UI
// ============================================================================
// A button panel for phones on the LAN, plus the JSON and websocket APIs:
//
//	GET  /            button panel
//	POST /action      cmd=<key or :command>
//	GET  /api/status  Status JSON
//	WS   /ws/state    state_init + status_changed
//	WS   /ws/cmd      command lines in, reply lines out
// ============================================================================

type uiButton struct {
	Label string
	Cmd   string
}

var uiRows = [][]uiButton{
	{{"Left", "q"}, {"Forward", "w"}, {"Right", "e"}},
	{{"Turn L", "a"}, {"STOP", "s"}, {"Turn R", "d"}},
	{{"Slide L", "A"}, {"Back", "x"}, {"Slide R", "D"}},
	{{"Back L", ":left_backward"}, {"Home", "0"}, {"Back R", ":right_backward"}},
	{{"Suriashi", "W"}},
	{{"Happy", "1"}, {"Hi", "2"}, {"Surprised", "3"}},
	{{"Bow", "4"}, {"Bow 2", "5"}, {"Hi L", ":hi_left"}},
	{{"Auto ON", "@"}, {"Auto OFF", " "}},
}

var uiTemplate = template.Must(template.New("index").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>OttoPi</title>
<style>
body { font-family: sans-serif; text-align: center; }
button { width: 7em; height: 3em; margin: 0.2em; font-size: 1em; }
#status { font-family: monospace; font-size: 0.8em; white-space: pre; text-align: left; }
</style>
</head>
<body>
<h1>OttoPi</h1>
{{range .Rows}}<div>{{range .}}<button onclick="send({{.Cmd}})">{{.Label}}</button>{{end}}</div>
{{end}}
<div id="status"></div>
<script>
function send(cmd) {
  fetch("/action", {method: "POST", body: new URLSearchParams({cmd: cmd})});
}
const ws = new WebSocket((location.protocol === "https:" ? "wss://" : "ws://") + location.host + "/ws/state");
ws.onmessage = (ev) => {
  const msg = JSON.parse(ev.data);
  document.getElementById("status").textContent = JSON.stringify(msg.data, null, 2);
};
</script>
</body>
</html>
`))

// newHTTPHandler builds the UI mux.
func newHTTPHandler(ctrl *Controller, ws *StateServer, logger *slog.Logger) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		if err := uiTemplate.Execute(w, struct{ Rows [][]uiButton }{uiRows}); err != nil {
			logger.Warn("render UI failed", "error", err)
		}
	})

	mux.HandleFunc("/action", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.Header().Set("Allow", http.MethodPost)
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		cmd := r.FormValue("cmd")
		if cmd == "" {
			http.Error(w, "missing cmd", http.StatusBadRequest)
			return
		}
		logger.Debug("HTTP action", "cmd", cmd, "remote_addr", r.RemoteAddr)

		// A bare space is the "auto off" key; HandleLine would strip it.
		var reply []string
		if cmd == " " {
			reply = ctrl.HandleKey(' ')
		} else {
			reply = ctrl.HandleLine(cmd)
		}
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		fmt.Fprint(w, strings.Join(reply, "\r\n"))
	})

	mux.HandleFunc("/api/status", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(ctrl.Status()); err != nil {
			logger.Warn("encode status failed", "error", err)
		}
	})

	ws.Register(mux)
	return mux
}

// runHTTPServer serves the UI on port and shuts it down gracefully when ctx
// is canceled.
func runHTTPServer(ctx context.Context, port int, handler http.Handler, logger *slog.Logger) error {
	listenAddr := fmt.Sprintf(":%d", port)
	logger.Info("HTTP server listening", "port", port)

	srv := &http.Server{
		Addr:              listenAddr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)

	go func() {
		// ListenAndServe returns http.ErrServerClosed on Shutdown; treat that as clean exit.
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("HTTP server: %w", err)
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("HTTP server shutdown: %w", err)
		}
		<-errCh
		return nil

	case err := <-errCh:
		return err
	}
}

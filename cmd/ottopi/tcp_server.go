package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strings"
	"sync"
)

const tcpReadBuf = 512

// runTCPServer serves the line/key protocol until ctx is canceled.
//
// Each read is handled as a unit: a chunk starting with ':' is one command
// line, anything else is a run of one-key commands. A read that carries only
// control characters ends the session.
func runTCPServer(ctx context.Context, addr string, ctrl *Controller, logger *slog.Logger) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}
	return serveTCP(ctx, ln, ctrl, logger)
}

func serveTCP(ctx context.Context, ln net.Listener, ctrl *Controller, logger *slog.Logger) error {
	defer ln.Close()
	logger.Info("TCP listening", "addr", ln.Addr().String())

	var wg sync.WaitGroup
	conns := make(map[net.Conn]struct{})
	var mu sync.Mutex

	go func() {
		<-ctx.Done()
		_ = ln.Close()
		mu.Lock()
		for c := range conns {
			_ = c.Close()
		}
		mu.Unlock()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				wg.Wait()
				logger.Debug("TCP listener closed")
				return nil
			}
			logger.Error("TCP accept error", "error", err)
			continue
		}

		mu.Lock()
		conns[conn] = struct{}{}
		mu.Unlock()

		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() {
				mu.Lock()
				delete(conns, conn)
				mu.Unlock()
			}()
			handleTCPConnection(conn, ctrl, logger)
		}()
	}
}

func handleTCPConnection(conn net.Conn, ctrl *Controller, logger *slog.Logger) {
	defer conn.Close()
	remote := conn.RemoteAddr().String()
	logger.Info("TCP client connected", "remote_addr", remote)

	write := func(lines ...string) bool {
		if len(lines) == 0 {
			return true
		}
		if _, err := conn.Write([]byte(strings.Join(lines, "\r\n") + "\r\n")); err != nil {
			logger.Debug("TCP write failed", "remote_addr", remote, "error", err)
			return false
		}
		return true
	}

	if !write("#Ready") {
		return
	}

	buf := make([]byte, tcpReadBuf)
	for {
		n, err := conn.Read(buf)
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
				logger.Info("TCP client disconnected", "remote_addr", remote)
				return
			}
			// A broken link must not leave the robot walking.
			logger.Warn("TCP read failed, stopping", "remote_addr", remote, "error", err)
			ctrl.sup.Send(Cmd("stop"), true)
			return
		}

		data := stripControl(string(buf[:n]))
		if data == "" {
			write("No data .. disconnect")
			logger.Info("TCP client sent no data, disconnecting", "remote_addr", remote)
			return
		}
		logger.Debug("TCP received", "remote_addr", remote, "data", data)

		if !write(ctrl.HandleLine(data)...) {
			return
		}
	}
}

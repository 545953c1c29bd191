//go:build linux

package main

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"syscall"

	"golang.org/x/sys/unix"
)

// epollTimeoutMS bounds each wait so the reader notices stop.
const epollTimeoutMS = 200

// readInputEventsEpoll reads from multiple input devices using epoll in a
// single goroutine. It returns when stop is closed or a device fails; failures
// are reported on readErr.
func readInputEventsEpoll(files []*os.File, events chan<- inputEvent, readErr chan<- error, stop <-chan struct{}) {
	if len(files) == 0 {
		readErr <- fmt.Errorf("no input devices provided")
		return
	}

	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		readErr <- fmt.Errorf("epoll_create1: %w", err)
		return
	}
	defer unix.Close(epfd)

	fdToFile := make(map[int]*os.File)

	for _, f := range files {
		fd := int(f.Fd())
		fdToFile[fd] = f

		event := unix.EpollEvent{
			Events: unix.EPOLLIN,
			Fd:     int32(fd),
		}
		if err := unix.EpollCtl(epfd, unix.EPOLL_CTL_ADD, fd, &event); err != nil {
			readErr <- fmt.Errorf("epoll_ctl_add %s: %w", f.Name(), err)
			return
		}
	}

	const maxEvents = 32
	epollEvents := make([]unix.EpollEvent, maxEvents)
	buf := make([]byte, binary.Size(inputEvent{}))
	reader := bytes.NewReader(buf)

	for {
		select {
		case <-stop:
			return
		default:
		}

		n, err := unix.EpollWait(epfd, epollEvents, epollTimeoutMS)
		if err != nil {
			if errors.Is(err, syscall.EINTR) {
				continue
			}
			readErr <- fmt.Errorf("epoll_wait: %w", err)
			return
		}

		for i := 0; i < n; i++ {
			fd := int(epollEvents[i].Fd)
			f := fdToFile[fd]

			if epollEvents[i].Events&(unix.EPOLLERR|unix.EPOLLHUP) != 0 {
				// An unplugged keyboard is fatal for the input task only.
				readErr <- fmt.Errorf("device error/hangup: %s", f.Name())
				return
			}

			if _, err := f.Read(buf); err != nil {
				readErr <- fmt.Errorf("read from %s: %w", f.Name(), err)
				return
			}

			reader.Reset(buf)
			var ev inputEvent
			if err := binary.Read(reader, binary.LittleEndian, &ev); err != nil {
				continue
			}

			select {
			case events <- ev:
			case <-stop:
				return
			}
		}
	}
}

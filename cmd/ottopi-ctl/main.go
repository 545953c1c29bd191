package main

import (
	"os"

	"github.com/jessevdk/go-flags"
)

// ============================================================================
// ottopi-ctl - Command-line IPC Client
// ============================================================================
// Drives the ottopi daemon over its Unix socket.
//
// Usage:
//   ottopi-ctl send forward 4
//   ottopi-ctl send --no-preempt happy
//   ottopi-ctl key w
//   ottopi-ctl auto on
//   ottopi-ctl status
//   ottopi-ctl dance --count 10 --interval 3s
//   ottopi-ctl keys
// ============================================================================

type Options struct {
	Socket string `short:"s" long:"socket" default:"/tmp/ottopi.sock" description:"Unix domain socket path"`

	Send   SendCommand   `command:"send" description:"Dispatch a motion command (e.g. 'forward 4')"`
	Key    KeyCommand    `command:"key" description:"Send one-key commands, one per character"`
	Auto   AutoCommand   `command:"auto" description:"Control the autopilot: on, off, enable, disable"`
	Status StatusCommand `command:"status" description:"Print the robot status"`
	Dance  DanceCommand  `command:"dance" description:"Queue random gestures"`
	Keys   KeysCommand   `command:"keys" description:"Interactive keyboard remote"`
}

var opts Options
var parser = flags.NewParser(&opts, flags.Default)

func main() {
	parser.LongDescription = "ottopi-ctl - control the OttoPi robot daemon"

	_, err := parser.Parse()
	if err != nil {
		if flagsErr, ok := err.(*flags.Error); ok {
			if flagsErr.Type == flags.ErrHelp {
				os.Exit(0)
			}
		}
		os.Exit(1)
	}
}

package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand/v2"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"
)

type SendCommand struct {
	NoPreempt bool `long:"no-preempt" description:"Queue behind the current motion instead of interrupting it"`

	Args struct {
		Command []string `positional-arg-name:"command" required:"1" description:"Motion name and options, e.g. forward 4 v=0.5"`
	} `positional-args:"yes"`
}

func (c *SendCommand) Execute(args []string) error {
	preempt := !c.NoPreempt
	resp, err := request(opts.Socket, "command", CommandRequest{
		Line:    strings.Join(c.Args.Command, " "),
		Preempt: &preempt,
	})
	printReply(resp)
	return err
}

type KeyCommand struct {
	Args struct {
		Keys string `positional-arg-name:"keys" required:"1" description:"One or more one-key commands, e.g. w or 1a"`
	} `positional-args:"yes"`
}

func (c *KeyCommand) Execute(args []string) error {
	resp, err := request(opts.Socket, "key", KeyRequest{Key: c.Args.Keys})
	printReply(resp)
	return err
}

type AutoCommand struct {
	Args struct {
		Op string `positional-arg-name:"op" required:"1" description:"on, off, enable or disable"`
	} `positional-args:"yes"`
}

func (c *AutoCommand) Execute(args []string) error {
	resp, err := request(opts.Socket, "auto", AutoRequest{Cmd: c.Args.Op})
	printReply(resp)
	return err
}

type StatusCommand struct {
	JSON bool `long:"json" description:"Print the raw status JSON"`
}

func (c *StatusCommand) Execute(args []string) error {
	resp, err := request(opts.Socket, "status", nil)
	if err != nil {
		return err
	}
	if resp.Data == nil {
		return errors.New("daemon returned no status")
	}
	if c.JSON {
		b, err := json.MarshalIndent(resp.Data, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(b))
		return nil
	}
	fmt.Print(formatStatus(*resp.Data))
	return nil
}

// danceMoves are the gestures dance picks from.
var danceMoves = []string{
	"slide_right",
	"slide_left",
	"happy",
	"surprised",
	"hi_right",
	"hi_left",
	"ojigi",
	"home",
}

type DanceCommand struct {
	Count    int           `short:"n" long:"count" default:"0" description:"Number of gestures (0 = until interrupted)"`
	Interval time.Duration `short:"i" long:"interval" default:"3s" description:"Maximum pause between gestures"`
}

func (c *DanceCommand) Execute(args []string) error {
	if c.Interval <= 0 {
		return errors.New("--interval must be > 0")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cl, err := dial(opts.Socket)
	if err != nil {
		return err
	}
	defer cl.Close()

	queued := false
	for i := 0; c.Count == 0 || i < c.Count; i++ {
		move := danceMoves[rand.IntN(len(danceMoves))]
		resp, err := cl.do("command", CommandRequest{Line: move + " 1", Preempt: &queued})
		if err != nil {
			return err
		}
		fmt.Printf("%-12s %s\n", move, strings.Join(resp.Reply, " "))

		pause := time.Duration(rand.Int64N(int64(c.Interval)))
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(pause):
		}
	}
	return nil
}

func printReply(resp Response) {
	for _, l := range resp.Reply {
		fmt.Println(l)
	}
}

func formatStatus(st Status) string {
	var sb strings.Builder

	stat := "inactive"
	if st.Active {
		stat = "active"
	}
	fmt.Fprintf(&sb, "dispatcher: %s (restarts %d)\n", stat, st.Restarts)

	cur := "-"
	if st.Current != nil {
		cur = st.Current.Name
		if st.Current.Repeat > 0 {
			cur += fmt.Sprintf(" %d", st.Current.Repeat)
		}
	}
	fmt.Fprintf(&sb, "current:    %s (pending %d)\n", cur, st.Pending)
	fmt.Fprintf(&sb, "position:   %v\n", st.Position)

	if a := st.Autopilot; a != nil {
		fmt.Fprintf(&sb, "autopilot:  enabled=%v engaged=%v last=%s side=%s distance=%dmm\n",
			a.Enabled, a.Engaged, a.Last, a.Side, a.Distance)
	} else {
		sb.WriteString("autopilot:  not configured\n")
	}
	return sb.String()
}

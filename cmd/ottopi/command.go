package main

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// RepeatDefault asks for the motion's natural repeat: loop for loopable
// motions, once for the rest.
const RepeatDefault = -1

// Command is one motion request for the dispatcher.
type Command struct {
	Name   string  `json:"name"`
	Repeat int     `json:"repeat"`
	Speed  float64 `json:"speed,omitempty"`
	Quick  bool    `json:"quick,omitempty"`
}

// Cmd builds a command with the default repeat.
func Cmd(name string) Command {
	return Command{Name: name, Repeat: RepeatDefault}
}

// CmdN builds a command with an explicit repeat count.
func CmdN(name string, n int) Command {
	return Command{Name: name, Repeat: n}
}

func (c Command) String() string {
	var b strings.Builder
	b.WriteString(c.Name)
	if c.Repeat != RepeatDefault {
		fmt.Fprintf(&b, " %d", c.Repeat)
	}
	if c.Speed > 0 {
		fmt.Fprintf(&b, " v=%s", strconv.FormatFloat(c.Speed, 'f', -1, 64))
	}
	if c.Quick {
		b.WriteString(" q")
	}
	return b.String()
}

// ParseCommand parses "name [repeat] [v=speed] [q]".
//
// Options may appear in any order after the name. The name itself is not
// checked against the motion table; the dispatcher logs unknown names.
func ParseCommand(line string) (Command, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return Command{}, errors.New("empty command")
	}
	cmd := Cmd(fields[0])
	for _, f := range fields[1:] {
		switch {
		case f == "q" || f == "quick":
			cmd.Quick = true
		case strings.HasPrefix(f, "v="):
			v, err := strconv.ParseFloat(strings.TrimPrefix(f, "v="), 64)
			if err != nil || v < 0 {
				return Command{}, fmt.Errorf("invalid speed %q", f)
			}
			cmd.Speed = v
		default:
			n, err := strconv.Atoi(f)
			if err != nil || n < 0 {
				return Command{}, fmt.Errorf("invalid repeat %q", f)
			}
			cmd.Repeat = n
		}
	}
	return cmd, nil
}

// effectiveRepeat resolves a command's repeat count for a motion.
// Loopable motions treat 0 and RepeatDefault as unbounded; others run once.
func effectiveRepeat(repeat int, loop bool) int {
	if repeat > 0 {
		return repeat
	}
	if loop {
		return nContinuous
	}
	return 1
}

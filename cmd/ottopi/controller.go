package main

import (
	"fmt"
	"log/slog"
	"strings"
)

const (
	cmdPrefix       = ":"
	cmdPrefixQueued = ":."
)

// keyAction is what a one-key command does: run a motion or steer the
// autopilot.
type keyAction struct {
	motion string
	auto   ControlOp
}

var keyMap = map[rune]keyAction{
	'@': {auto: ControlOn},
	' ': {auto: ControlOff},

	'w': {motion: "forward"},
	'q': {motion: "left_forward"},
	'e': {motion: "right_forward"},
	'x': {motion: "backward"},
	'W': {motion: "suriashi_fwd"},
	'a': {motion: "turn_left"},
	'd': {motion: "turn_right"},
	'A': {motion: "slide_left"},
	'D': {motion: "slide_right"},
	'1': {motion: "happy"},
	'2': {motion: "hi_right"},
	'3': {motion: "surprised"},
	'4': {motion: "ojigi"},
	'5': {motion: "ojigi2"},
	'0': {motion: "home"},

	'h': {motion: "move_up0"},
	'H': {motion: "move_down0"},
	'j': {motion: "move_up1"},
	'J': {motion: "move_down1"},
	'k': {motion: "move_up2"},
	'K': {motion: "move_down2"},
	'l': {motion: "move_up3"},
	'L': {motion: "move_down3"},

	'u': {motion: "home_up0"},
	'U': {motion: "home_down0"},
	'i': {motion: "home_up1"},
	'I': {motion: "home_down1"},
	'o': {motion: "home_up2"},
	'O': {motion: "home_down2"},
	'p': {motion: "home_up3"},
	'P': {motion: "home_down3"},

	'.': {motion: "null"},
	's': {motion: "stop"},
	'S': {motion: "stop"},
}

// Status is the robot snapshot served to clients.
type Status struct {
	Active    bool                 `json:"active"`
	Current   *Command             `json:"current,omitempty"`
	Pending   int                  `json:"pending"`
	Restarts  int                  `json:"restarts"`
	Position  Pose                 `json:"position"`
	Channels  [numChannels]Channel `json:"channels"`
	Autopilot *AutopilotState      `json:"autopilot,omitempty"`
}

// Controller turns keys and command lines from any transport into
// supervisor and autopilot calls, and renders the protocol replies.
type Controller struct {
	sup    *Supervisor
	bank   *ActuatorBank
	auto   *Autopilot
	logger *slog.Logger
}

// NewController wires the front-end logic. auto may be nil when the
// autopilot is not configured.
func NewController(sup *Supervisor, bank *ActuatorBank, auto *Autopilot, logger *slog.Logger) *Controller {
	return &Controller{
		sup:    sup,
		bank:   bank,
		auto:   auto,
		logger: componentLogger(logger, "controller"),
	}
}

// HandleLine processes one line of input and returns the reply lines.
//
//	":cmd args"   dispatch cmd, preempting
//	":.cmd args"  dispatch cmd behind the current motion
//	"auto <op>"   steer the autopilot
//	anything else is a sequence of one-key commands
func (c *Controller) HandleLine(line string) []string {
	line = stripControl(line)
	if line == "" {
		return nil
	}

	switch {
	case strings.HasPrefix(line, cmdPrefixQueued):
		return c.dispatchLine(strings.TrimPrefix(line, cmdPrefixQueued), false)
	case strings.HasPrefix(line, cmdPrefix):
		return c.dispatchLine(strings.TrimPrefix(line, cmdPrefix), true)
	case line == "auto" || strings.HasPrefix(line, "auto "):
		return c.autoLine(strings.TrimSpace(strings.TrimPrefix(line, "auto")))
	}

	var out []string
	for _, r := range line {
		out = append(out, c.HandleKey(r)...)
	}
	return out
}

// HandleKey processes one key.
func (c *Controller) HandleKey(r rune) []string {
	act, ok := keyMap[r]
	if !ok {
		c.logger.Info("unknown key, stopping", "key", string(r))
		c.sup.EnsureAlive()
		c.sup.Send(Cmd("stop"), true)
		return []string{fmt.Sprintf("#NG %q .. stop", string(r))}
	}
	if act.auto != "" {
		return c.autoOp(act.auto)
	}
	return c.dispatch(Cmd(act.motion), true)
}

func (c *Controller) dispatchLine(text string, preempt bool) []string {
	text = strings.TrimSpace(text)
	// Legacy spellings of the autopilot switch.
	switch text {
	case "auto_on":
		return c.autoOp(ControlOn)
	case "auto_off":
		return c.autoOp(ControlOff)
	}

	cmd, err := ParseCommand(text)
	if err != nil {
		return []string{fmt.Sprintf("#NG %q .. %v", text, err)}
	}
	return c.dispatch(cmd, preempt)
}

func (c *Controller) dispatch(cmd Command, preempt bool) []string {
	if c.sup.EnsureAlive() {
		c.logger.Warn("dispatcher was dead, restarted")
	}
	c.sup.Send(cmd, preempt)
	return c.reply(cmd.Name)
}

func (c *Controller) autoLine(arg string) []string {
	op, err := parseControlOp(arg)
	if err != nil {
		return []string{fmt.Sprintf("#NG %q .. %v", "auto "+arg, err)}
	}
	return c.autoOp(op)
}

func (c *Controller) autoOp(op ControlOp) []string {
	name := "auto_" + string(op)
	if c.auto == nil {
		return []string{fmt.Sprintf("#NG %q .. autopilot not configured", name)}
	}
	c.sup.EnsureAlive()
	if err := c.auto.Send(op); err != nil {
		return []string{fmt.Sprintf("#NG %q .. %v", name, err)}
	}
	return c.reply(name)
}

// reply renders the acknowledgement block sent after every accepted command.
func (c *Controller) reply(name string) []string {
	stat := "inactive"
	if c.sup.IsActive() {
		stat = "active"
	}
	engaged := false
	if c.auto != nil {
		engaged = c.auto.State().Engaged
	}
	return []string{
		"#CMD " + name,
		"#STAT " + stat,
		fmt.Sprintf("#AUTO %v", engaged),
		"#OK",
	}
}

// Status collects a snapshot from every component.
func (c *Controller) Status() Status {
	st := Status{
		Active:   c.sup.IsActive(),
		Pending:  c.sup.Pending(),
		Restarts: c.sup.Restarts(),
	}
	if cur, ok := c.sup.Current(); ok {
		st.Current = &cur
	}
	if c.bank != nil {
		st.Position = c.bank.Position()
		st.Channels = c.bank.Channels()
	}
	if c.auto != nil {
		a := c.auto.State()
		st.Autopilot = &a
	}
	return st
}

// stripControl drops control characters (telnet sends CR, LF and IAC bytes).
func stripControl(s string) string {
	return strings.Map(func(r rune) rune {
		if r < 0x20 || r == 0x7f {
			return -1
		}
		return r
	}, s)
}

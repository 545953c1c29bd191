package main

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

type KeysCommand struct {
	Refresh time.Duration `long:"refresh" default:"500ms" description:"Status refresh interval"`
}

const maxKeyLogs = 5

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	boxStyle    = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("240")).Padding(0, 1)
	statusStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	errStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
)

const keysHelp = `w forward   x back      a/d turn      A/D slide    q/e turn+walk
W suriashi  1 happy     2 hi          3 surprised  4/5 bow
0 home      s stop      @ auto on     space auto off
arrows = w/x/a/d        enter = @     ctrl+c quit`

type keysModel struct {
	socket  string
	refresh time.Duration

	status *Status
	logs   []string
	err    error
}

type replyMsg struct {
	key   string
	reply []string
	err   error
}

type statusMsg struct {
	status *Status
	err    error
}

type tickMsg time.Time

func sendKey(socket, key string) tea.Cmd {
	return func() tea.Msg {
		resp, err := request(socket, "key", KeyRequest{Key: key})
		return replyMsg{key: key, reply: resp.Reply, err: err}
	}
}

func fetchStatus(socket string) tea.Cmd {
	return func() tea.Msg {
		resp, err := request(socket, "status", nil)
		return statusMsg{status: resp.Data, err: err}
	}
}

func tick(d time.Duration) tea.Cmd {
	return tea.Tick(d, func(t time.Time) tea.Msg { return tickMsg(t) })
}

// keyFor maps a terminal key onto the robot's one-key protocol.
func keyFor(msg tea.KeyMsg) (string, bool) {
	switch msg.Type {
	case tea.KeyRunes:
		return string(msg.Runes), true
	case tea.KeySpace:
		return " ", true
	case tea.KeyUp:
		return "w", true
	case tea.KeyDown:
		return "x", true
	case tea.KeyLeft:
		return "a", true
	case tea.KeyRight:
		return "d", true
	case tea.KeyEnter:
		return "@", true
	case tea.KeyEsc:
		return "s", true
	}
	return "", false
}

func (m *keysModel) addLog(s string) {
	m.logs = append(m.logs, s)
	if len(m.logs) > maxKeyLogs {
		m.logs = m.logs[len(m.logs)-maxKeyLogs:]
	}
}

func (m keysModel) Init() tea.Cmd {
	return tea.Batch(fetchStatus(m.socket), tick(m.refresh))
}

func (m keysModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC {
			// Leave the robot parked.
			_, _ = request(m.socket, "key", KeyRequest{Key: "s"})
			return m, tea.Quit
		}
		if k, ok := keyFor(msg); ok {
			return m, sendKey(m.socket, k)
		}

	case replyMsg:
		if msg.err != nil {
			m.addLog(fmt.Sprintf("%q: %v", msg.key, msg.err))
		} else {
			m.addLog(fmt.Sprintf("%q: %s", msg.key, strings.Join(msg.reply, " ")))
		}
		return m, fetchStatus(m.socket)

	case statusMsg:
		m.err = msg.err
		if msg.status != nil {
			m.status = msg.status
		}
		return m, nil

	case tickMsg:
		return m, tea.Batch(fetchStatus(m.socket), tick(m.refresh))
	}
	return m, nil
}

func (m keysModel) View() string {
	var sb strings.Builder

	sb.WriteString(titleStyle.Render("OttoPi remote"))
	sb.WriteString(statusStyle.Render("  " + m.socket))
	sb.WriteString("\n\n")

	sb.WriteString(boxStyle.Render(keysHelp))
	sb.WriteString("\n")

	switch {
	case m.err != nil:
		sb.WriteString(errStyle.Render(m.err.Error()))
		sb.WriteString("\n")
	case m.status != nil:
		sb.WriteString(boxStyle.Render(strings.TrimRight(formatStatus(*m.status), "\n")))
		sb.WriteString("\n")
	default:
		sb.WriteString(statusStyle.Render("waiting for status..."))
		sb.WriteString("\n")
	}

	logs := statusStyle.Render("press a key")
	if len(m.logs) > 0 {
		logs = strings.Join(m.logs, "\n")
	}
	sb.WriteString(boxStyle.Render(logs))
	sb.WriteString("\n")
	return sb.String()
}

func (c *KeysCommand) Execute(args []string) error {
	if c.Refresh <= 0 {
		c.Refresh = 500 * time.Millisecond
	}
	m := keysModel{socket: opts.Socket, refresh: c.Refresh}
	p := tea.NewProgram(m, tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("run TUI: %w", err)
	}
	return nil
}

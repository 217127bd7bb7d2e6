package main

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/wippyai/wasm-enclave/enclave"
)

// historyLimit caps the requests kept on screen.
const historyLimit = 10

func newConsoleCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "console",
		Short: "Interactive console sending each line through the gate",
		Args:  cobra.NoArgs,
		RunE:  runConsole,
	}
}

func runConsole(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	// The console owns the screen, so logs stay quiet below warn.
	if cfg.Log.Level == "debug" || cfg.Log.Level == "info" {
		cfg.Log.Level = "warn"
	}

	var out bytes.Buffer
	h, err := newHost(ctx, cfg, &out)
	if err != nil {
		return err
	}
	defer h.Close(ctx)

	p := tea.NewProgram(newConsoleModel(ctx, h.gate, &out), tea.WithAltScreen())
	_, err = p.Run()
	return err
}

type exchange struct {
	message string
	output  string
	status  enclave.Status
}

type consoleModel struct {
	ctx     context.Context
	gate    *enclave.Gate
	out     *bytes.Buffer
	input   textinput.Model
	history []exchange
	sent    int
	busy    bool
}

type responseMsg exchange

func newConsoleModel(ctx context.Context, gate *enclave.Gate, out *bytes.Buffer) *consoleModel {
	ti := textinput.New()
	ti.Placeholder = "message"
	ti.Prompt = "> "
	ti.Width = 60
	ti.CharLimit = int(gate.MaxRequestBytes())
	ti.Focus()
	return &consoleModel{ctx: ctx, gate: gate, out: out, input: ti}
}

func (m *consoleModel) Init() tea.Cmd {
	return textinput.Blink
}

// send runs one request. Requests are serialized by the busy flag, so out
// only ever holds the current request's output.
func (m *consoleModel) send(msg string) tea.Cmd {
	return func() tea.Msg {
		m.out.Reset()
		status := m.gate.Call(m.ctx, []byte(msg))
		return responseMsg{message: msg, status: status, output: m.out.String()}
	}
}

func (m *consoleModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "esc":
			return m, tea.Quit

		case "enter":
			if m.busy {
				return m, nil
			}
			m.busy = true
			line := m.input.Value()
			m.input.Reset()
			return m, m.send(line)
		}

	case responseMsg:
		m.busy = false
		m.sent++
		m.history = append(m.history, exchange(msg))
		if len(m.history) > historyLimit {
			m.history = m.history[len(m.history)-historyLimit:]
		}
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *consoleModel) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("Enclave Console"))
	fmt.Fprintf(&b, " %d sent, limit %d bytes\n\n", m.sent, m.gate.MaxRequestBytes())

	for _, ex := range m.history {
		fmt.Fprintf(&b, "%q  %s\n", ex.message, statusStyle(ex.status).Render(ex.status.String()))
		if out := strings.TrimRight(ex.output, "\n"); out != "" {
			for _, line := range strings.Split(out, "\n") {
				b.WriteString("    ")
				b.WriteString(outputStyle.Render(line))
				b.WriteString("\n")
			}
		}
	}
	if len(m.history) > 0 {
		b.WriteString("\n")
	}

	b.WriteString(m.input.View())
	b.WriteString("\n\n")
	if m.busy {
		b.WriteString(helpStyle.Render("processing..."))
	} else {
		b.WriteString(helpStyle.Render("enter send • esc quit"))
	}
	return b.String()
}

// Package tui renders a live terminal view of incoming signal advice.
package tui

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"pulsera/pkg/crossing"
	"pulsera/pkg/protocol"
)

const maxLogLines = 5

// PacketMsg delivers one hub packet to the model.
type PacketMsg protocol.Packet

type Model struct {
	advice      *crossing.Advice
	orientation *crossing.Orientation
	logs        []string
	packets     int
	quitting    bool
}

func NewModel() Model {
	return Model{}
}

func (m Model) Init() tea.Cmd {
	return nil
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			m.quitting = true
			return m, tea.Quit
		}
	case PacketMsg:
		m.packets++
		switch v := msg.Data.(type) {
		case crossing.Advice:
			m.advice = &v
		case crossing.Orientation:
			m.orientation = &v
		case string:
			m.logs = append(m.logs, v)
			if len(m.logs) > maxLogLines {
				m.logs = m.logs[len(m.logs)-maxLogLines:]
			}
		}
	}
	return m, nil
}

func (m Model) View() string {
	if m.quitting {
		return ""
	}
	var b strings.Builder
	b.WriteString("pulsera monitor\n\n")

	if m.advice == nil {
		b.WriteString("signal:   waiting for report\n")
	} else {
		a := m.advice
		fmt.Fprintf(&b, "signal:   %s facing %s\n", a.Report.State(), a.SignalQuadrant)
		fmt.Fprintf(&b, "advice:   %s", a.Command)
		if a.Safe() {
			b.WriteString("  (safe to cross)")
		}
		b.WriteString("\n")
	}

	if m.orientation == nil {
		b.WriteString("heading:  unknown\n")
	} else {
		o := m.orientation
		fmt.Fprintf(&b, "heading:  %.0f° %s (%s)\n", o.Heading, o.Direction, o.Quadrant)
	}
	fmt.Fprintf(&b, "packets:  %d\n", m.packets)

	if len(m.logs) > 0 {
		b.WriteString("\ndevice log:\n")
		for _, line := range m.logs {
			b.WriteString("  ")
			b.WriteString(line)
			b.WriteString("\n")
		}
	}
	b.WriteString("\nq to quit\n")
	return b.String()
}

// Run shows the monitor until the user quits, ctx is done, or in closes.
func Run(ctx context.Context, in <-chan protocol.Packet, input io.Reader, output io.Writer) error {
	opts := []tea.ProgramOption{tea.WithContext(ctx)}
	if input != nil {
		opts = append(opts, tea.WithInput(input))
	}
	if output != nil {
		opts = append(opts, tea.WithOutput(output))
	}
	p := tea.NewProgram(NewModel(), opts...)

	go func() {
		for pkt := range in {
			p.Send(PacketMsg(pkt))
		}
		p.Quit()
	}()

	_, err := p.Run()
	if errors.Is(err, tea.ErrProgramKilled) {
		return nil
	}
	return err
}

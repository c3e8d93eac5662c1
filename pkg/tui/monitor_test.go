package tui_test

import (
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"pulsera/pkg/crossing"
	"pulsera/pkg/protocol"
	"pulsera/pkg/tui"
)

func update(t *testing.T, m tea.Model, msg tea.Msg) tea.Model {
	t.Helper()
	next, _ := m.Update(msg)
	return next
}

func TestViewBeforeAnyPacket(t *testing.T) {
	view := tui.NewModel().View()
	if !strings.Contains(view, "waiting for report") || !strings.Contains(view, "heading:  unknown") {
		t.Fatalf("unexpected initial view:\n%s", view)
	}
}

func TestViewShowsAdviceAndHeading(t *testing.T) {
	r, _ := protocol.ReportFromInts(1, 90)
	var m tea.Model = tui.NewModel()
	m = update(t, m, tui.PacketMsg{Kind: protocol.KindHeading, Data: crossing.Orientation{Heading: 182, Direction: "S", Quadrant: crossing.QuadrantSouth}})
	m = update(t, m, tui.PacketMsg{Kind: protocol.KindReport, Data: crossing.Advise(r, crossing.QuadrantSouth)})

	view := m.View()
	for _, want := range []string{"active facing east", "VIBRATE_START", "safe to cross", "182° S (south)", "packets:  2"} {
		if !strings.Contains(view, want) {
			t.Fatalf("view missing %q:\n%s", want, view)
		}
	}
}

func TestViewKeepsRecentLogLines(t *testing.T) {
	var m tea.Model = tui.NewModel()
	for i := 0; i < 8; i++ {
		m = update(t, m, tui.PacketMsg{Kind: protocol.KindLog, Data: "line" + string(rune('0'+i))})
	}
	view := m.View()
	if strings.Contains(view, "line2") || !strings.Contains(view, "line3") || !strings.Contains(view, "line7") {
		t.Fatalf("expected the last five log lines:\n%s", view)
	}
}

func TestQuitKey(t *testing.T) {
	m, cmd := tui.NewModel().Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	if cmd == nil {
		t.Fatalf("expected quit command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Fatalf("expected tea.QuitMsg")
	}
	if m.View() != "" {
		t.Fatalf("view should be empty after quitting")
	}
}

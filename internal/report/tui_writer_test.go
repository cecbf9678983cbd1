package report

import (
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
)

type fakeProgram struct{ msgs []tea.Msg }

func (f *fakeProgram) Send(msg tea.Msg) { f.msgs = append(f.msgs, msg) }

func TestTUIWriterMessages(t *testing.T) {
	p := &fakeProgram{}
	w := &TUIWriter{program: p}
	rows := Rows(sampleSnapshot())
	if err := w.WriteBatch(rows); err != nil {
		t.Fatalf("batch: %v", err)
	}
	if err := w.Write(rows[0]); err != nil {
		t.Fatalf("write: %v", err)
	}
	if len(p.msgs) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(p.msgs))
	}
	if m, ok := p.msgs[0].(rowsMsg); !ok || len(m.rows) != 2 {
		t.Fatalf("expected rowsMsg with 2 rows, got %#v", p.msgs[0])
	}
}

func update(t *testing.T, m tuiModel, msg tea.Msg) tuiModel {
	t.Helper()
	mi, _ := m.Update(msg)
	return mi.(tuiModel)
}

func TestModelLogsTransitions(t *testing.T) {
	m := newTUIModel("fleet")
	m = update(t, m, tea.WindowSizeMsg{Width: 120, Height: 30})
	first := Row{Ship: "M1", State: "idle", Task: "support", Location: "X1-A-ROCK", Timestamp: time.Unix(0, 0).UTC(), Tick: 1}
	m = update(t, m, rowsMsg{rows: []Row{first}})
	if len(m.table.Rows()) != 1 || len(m.logs) != 1 {
		t.Fatalf("expected 1 unit and 1 log line, got %d and %d", len(m.table.Rows()), len(m.logs))
	}

	m = update(t, m, rowsMsg{rows: []Row{first}})
	if len(m.logs) != 1 {
		t.Fatalf("unchanged row should not log")
	}

	next := first
	next.State, next.Task, next.LastError, next.Tick = "error", "mine", "extract failed", 2
	m = update(t, m, rowsMsg{rows: []Row{next}})
	if len(m.logs) != 3 {
		t.Fatalf("expected transition and error lines, got %v", m.logs)
	}
	if !strings.Contains(m.logs[1], "mine") || !strings.Contains(m.logs[2], "extract failed") {
		t.Fatalf("unexpected log lines: %v", m.logs)
	}
	if !strings.Contains(m.View(), "tick 2") {
		t.Fatalf("header should show the latest tick")
	}
}

func TestWrapToggle(t *testing.T) {
	m := newTUIModel("fleet")
	m = update(t, m, tea.WindowSizeMsg{Width: 20, Height: 30})
	m.log("one two three four five six seven")
	m.refreshViewport()
	lines := strings.Split(m.vp.View(), "\n")
	if len(lines) < 2 || strings.TrimSpace(lines[1]) != "" {
		t.Fatalf("expected single line before wrap")
	}
	m = update(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'w'}})
	if !m.wrap {
		t.Fatalf("wrap not toggled")
	}
	lines = strings.Split(m.vp.View(), "\n")
	if strings.TrimSpace(lines[1]) == "" {
		t.Fatalf("expected wrapped content on second line")
	}
}

func TestScrollToggle(t *testing.T) {
	m := newTUIModel("fleet")
	m.vp.Height = 1
	m.vp.Width = 40
	for _, l := range []string{"l1", "l2"} {
		m.log(l)
		m.refreshViewport()
	}
	if m.vp.YOffset != 1 {
		t.Fatalf("expected YOffset 1, got %d", m.vp.YOffset)
	}
	m = update(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'s'}})
	if m.autoscroll {
		t.Fatalf("autoscroll should be off")
	}
	m.log("l3")
	m.refreshViewport()
	if m.vp.YOffset != 1 {
		t.Fatalf("expected YOffset unchanged, got %d", m.vp.YOffset)
	}
	m = update(t, m, tea.KeyMsg{Type: tea.KeyUp})
	if m.vp.YOffset != 0 {
		t.Fatalf("expected YOffset 0 after scrolling up, got %d", m.vp.YOffset)
	}
	m = update(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'s'}})
	if m.vp.YOffset != len(m.logs)-m.vp.Height {
		t.Fatalf("expected jump to bottom, got %d", m.vp.YOffset)
	}
}

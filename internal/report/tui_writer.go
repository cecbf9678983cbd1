package report

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/wordwrap"
)

// teaProgram abstracts bubbletea.Program for testing.
type teaProgram interface {
	Send(tea.Msg)
}

// rowsMsg carries the rows of one tick.
type rowsMsg struct{ rows []Row }

const maxLogLines = 500

// TUIWriter renders fleet status in a bubbletea dashboard: a unit table on
// top and a scrolling log of state changes below.
type TUIWriter struct {
	program    teaProgram
	done       chan struct{}
	sendSignal atomic.Bool
}

// NewTUIWriter starts the dashboard. Quitting it interrupts the process.
func NewTUIWriter(title string) *TUIWriter {
	w := &TUIWriter{done: make(chan struct{})}
	w.sendSignal.Store(true)
	p := tea.NewProgram(newTUIModel(title), tea.WithAltScreen())
	w.program = p
	go func() {
		_, _ = p.Run()
		close(w.done)
		if w.sendSignal.Load() {
			if proc, err := os.FindProcess(os.Getpid()); err == nil {
				_ = proc.Signal(os.Interrupt)
			}
		}
	}()
	return w
}

// Write implements Writer.
func (w *TUIWriter) Write(row Row) error {
	w.program.Send(rowsMsg{rows: []Row{row}})
	return nil
}

// WriteBatch sends a whole tick at once.
func (w *TUIWriter) WriteBatch(rows []Row) error {
	w.program.Send(rowsMsg{rows: append([]Row(nil), rows...)})
	return nil
}

// Close shuts down the dashboard and waits for the terminal to be restored.
func (w *TUIWriter) Close() error {
	w.sendSignal.Store(false)
	if w.program != nil {
		w.program.Send(tea.Quit())
	}
	if w.done != nil {
		<-w.done
	}
	return nil
}

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	footerStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
)

type tuiModel struct {
	title      string
	table      table.Model
	vp         viewport.Model
	units      map[string]Row
	logs       []string
	tick       int
	wrap       bool
	autoscroll bool
	width      int
	height     int
}

func newTUIModel(title string) tuiModel {
	cols := []table.Column{
		{Title: "Ship", Width: 14},
		{Title: "State", Width: 9},
		{Title: "Task", Width: 22},
		{Title: "Goal", Width: 10},
		{Title: "Location", Width: 14},
		{Title: "Fuel", Width: 9},
		{Title: "Cargo", Width: 7},
		{Title: "Weight", Width: 6},
		{Title: "CD", Width: 4},
	}
	return tuiModel{
		title:      title,
		table:      table.New(table.WithColumns(cols), table.WithHeight(2)),
		vp:         viewport.New(0, 0),
		units:      make(map[string]Row),
		autoscroll: true,
	}
}

func (m tuiModel) Init() tea.Cmd { return nil }

func (m tuiModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.table.SetWidth(msg.Width)
		m.vp.Width = msg.Width
		m.layout()
		m.refreshViewport()
	case rowsMsg:
		for _, r := range msg.rows {
			m.observe(r)
		}
		m.refreshTable()
		m.layout()
		m.refreshViewport()
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "w":
			m.wrap = !m.wrap
			m.refreshViewport()
			return m, nil
		case "s":
			m.autoscroll = !m.autoscroll
			if m.autoscroll {
				m.vp.GotoBottom()
			}
			return m, nil
		}
		var cmd tea.Cmd
		m.vp, cmd = m.vp.Update(msg)
		return m, cmd
	}
	return m, nil
}

// observe folds a row into the unit table and logs what changed.
func (m *tuiModel) observe(r Row) {
	if r.Tick > m.tick {
		m.tick = r.Tick
	}
	prev, seen := m.units[r.Ship]
	m.units[r.Ship] = r
	ts := r.Timestamp.Format(time.TimeOnly)
	switch {
	case !seen:
		m.log(fmt.Sprintf("%s %s joined at %s (%s)", ts, r.Ship, r.Location, r.Capabilities))
	case prev.State != r.State || prev.Task != r.Task:
		m.log(fmt.Sprintf("%s %s %s -> %s %s", ts, r.Ship, prev.State, stateStyle(r.State).Render(r.State), r.Task))
	}
	if r.LastError != "" && r.LastError != prev.LastError {
		m.log(fmt.Sprintf("%s %s %s", ts, r.Ship, styleError.Render(r.LastError)))
	}
}

func (m *tuiModel) log(line string) {
	m.logs = append(m.logs, line)
	if len(m.logs) > maxLogLines {
		m.logs = m.logs[len(m.logs)-maxLogLines:]
	}
}

func (m *tuiModel) refreshTable() {
	ships := make([]string, 0, len(m.units))
	for s := range m.units {
		ships = append(ships, s)
	}
	sort.Strings(ships)
	rows := make([]table.Row, 0, len(ships))
	for _, s := range ships {
		r := m.units[s]
		cd := ""
		if r.CooldownSeconds > 0 {
			cd = fmt.Sprintf("%.0f", r.CooldownSeconds)
		}
		rows = append(rows, table.Row{
			r.Ship, r.State, r.Task, shortGoal(r.Goal), r.Location,
			fmt.Sprintf("%d/%d", r.Fuel, r.FuelCapacity),
			fmt.Sprintf("%d/%d", r.Cargo, r.CargoCapacity),
			fmt.Sprintf("%.2f", r.Weight), cd,
		})
	}
	m.table.SetRows(rows)
}

func shortGoal(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// layout gives the table up to half the screen and the log the rest.
func (m *tuiModel) layout() {
	if m.height == 0 {
		return
	}
	th := len(m.units) + 1
	if th > m.height/2 {
		th = m.height / 2
	}
	if th < 2 {
		th = 2
	}
	m.table.SetHeight(th)
	vh := m.height - th - lipgloss.Height(m.renderHeader()) - 2
	if vh < 1 {
		vh = 1
	}
	m.vp.Height = vh
}

func (m *tuiModel) refreshViewport() {
	content := strings.Join(m.logs, "\n")
	if m.wrap && m.vp.Width > 0 {
		content = wordwrap.String(content, m.vp.Width)
	}
	m.vp.SetContent(content)
	if m.autoscroll {
		m.vp.GotoBottom()
	}
}

func (m tuiModel) renderHeader() string {
	return titleStyle.Render(fmt.Sprintf("%s  tick %d  ships %d", m.title, m.tick, len(m.units)))
}

func (m tuiModel) View() string {
	flags := fmt.Sprintf("wrap:%v scroll:%v", m.wrap, m.autoscroll)
	footer := footerStyle.Render("q quit  w wrap  s autoscroll  ↑/↓ scroll  " + flags)
	return lipgloss.JoinVertical(lipgloss.Left,
		m.renderHeader(),
		m.table.View(),
		m.vp.View(),
		footer,
	)
}

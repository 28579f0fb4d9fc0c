package main

import (
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	lunatic "github.com/lunatic-solutions/lunatic-go"
)

// The -i/--interactive flag repurposes the teacher's component-explorer
// TUI into a live view over the runtime's own process table: a
// refreshed-on-a-timer list of every running process id, its lifecycle
// state, reduction count, and mailbox depth, per SPEC_FULL.md's DOMAIN
// STACK.

var (
	monitorTitleStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(lipgloss.Color("#FAFAFA")).
				Background(lipgloss.Color("#7D56F4")).
				Padding(0, 1)

	monitorHeaderStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(lipgloss.Color("#87CEEB"))

	monitorHelpStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("#666666"))
)

const monitorRefresh = 500 * time.Millisecond

type monitorRow struct {
	pid        uint64
	state      string
	reductions uint64
	mailboxLen int
}

type monitorModel struct {
	rt    *lunatic.Runtime
	rows  []monitorRow
	table table.Model
}

func newMonitorTable() table.Model {
	columns := []table.Column{
		{Title: "PID", Width: 10},
		{Title: "STATE", Width: 12},
		{Title: "REDUCTIONS", Width: 14},
		{Title: "MAILBOX", Width: 8},
	}
	t := table.New(table.WithColumns(columns), table.WithFocused(false))
	styles := table.DefaultStyles()
	styles.Header = monitorHeaderStyle
	styles.Selected = lipgloss.NewStyle()
	t.SetStyles(styles)
	return t
}

func rowsToTable(rows []monitorRow) []table.Row {
	out := make([]table.Row, 0, len(rows))
	for _, r := range rows {
		out = append(out, table.Row{
			strconv.FormatUint(r.pid, 10),
			r.state,
			strconv.FormatUint(r.reductions, 10),
			strconv.Itoa(r.mailboxLen),
		})
	}
	return out
}

type monitorTickMsg time.Time

func monitorTick() tea.Cmd {
	return tea.Tick(monitorRefresh, func(t time.Time) tea.Msg {
		return monitorTickMsg(t)
	})
}

func (m monitorModel) Init() tea.Cmd {
	return monitorTick()
}

func (m monitorModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		}
	case monitorTickMsg:
		m.rows = snapshotProcesses(m.rt)
		m.table.SetRows(rowsToTable(m.rows))
		return m, monitorTick()
	}
	var cmd tea.Cmd
	m.table, cmd = m.table.Update(msg)
	return m, cmd
}

func (m monitorModel) View() string {
	var b strings.Builder
	b.WriteString(monitorTitleStyle.Render("lunatic process monitor"))
	b.WriteString("\n\n")
	if len(m.rows) == 0 {
		b.WriteString("(no running processes)\n")
	} else {
		b.WriteString(m.table.View())
		b.WriteString("\n")
	}
	b.WriteString("\n")
	b.WriteString(monitorHelpStyle.Render("q: quit"))
	return b.String()
}

func snapshotProcesses(rt *lunatic.Runtime) []monitorRow {
	ids := rt.Environment().Processes()
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	rows := make([]monitorRow, 0, len(ids))
	for _, id := range ids {
		p, ok := rt.Environment().Lookup(id)
		if !ok {
			continue
		}
		rows = append(rows, monitorRow{
			pid:        p.ID(),
			state:      p.State().String(),
			reductions: p.Reductions(),
			mailboxLen: p.Mailbox().Len(),
		})
	}
	return rows
}

// runMonitor blocks until the user quits the monitor (q/esc/ctrl+c). It
// does not itself decide when the runtime is done; the caller's own
// select on the process's exit channel still governs the process's exit
// code once the monitor returns.
func runMonitor(rt *lunatic.Runtime) {
	rows := snapshotProcesses(rt)
	tbl := newMonitorTable()
	tbl.SetRows(rowsToTable(rows))
	m := monitorModel{rt: rt, rows: rows, table: tbl}
	p := tea.NewProgram(m)
	_, _ = p.Run()
}

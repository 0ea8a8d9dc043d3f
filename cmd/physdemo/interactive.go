package main

import (
	"context"
	"fmt"
	"runtime"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#87CEEB"))

	valueStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#98FB98"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666"))

	tableStyle = lipgloss.NewStyle().
			BorderStyle(lipgloss.NormalBorder()).
			BorderForeground(lipgloss.Color("#444444"))
)

const refreshInterval = 200 * time.Millisecond

type interactiveModel struct {
	err    error
	demo   *demo
	cancel context.CancelFunc
	table  table.Model
	last   snapshot
}

type tickMsg time.Time

type stoppedMsg struct {
	err error
}

func newInteractiveModel(d *demo, cancel context.CancelFunc) *interactiveModel {
	t := table.New(
		table.WithColumns([]table.Column{
			{Title: "ID", Width: 20},
			{Title: "Kind", Width: 14},
			{Title: "State", Width: 12},
		}),
		table.WithFocused(true),
		table.WithHeight(14),
	)
	return &interactiveModel{
		demo:   d,
		cancel: cancel,
		table:  t,
	}
}

func tick() tea.Cmd {
	return tea.Tick(refreshInterval, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m *interactiveModel) Init() tea.Cmd {
	m.refresh()
	return tick()
}

func (m *interactiveModel) refresh() {
	m.last = m.demo.snapshot()
	rows := make([]table.Row, 0, len(m.last.trackers))
	for _, d := range m.last.trackers {
		state := "live"
		if !d.Live {
			state = "unreachable"
		}
		rows = append(rows, table.Row{d.ID.String(), d.Kind, state})
	}
	m.table.SetRows(rows)
}

func (m *interactiveModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			m.cancel()
			return m, tea.Quit

		case "d":
			if err := m.demo.drop(); err != nil {
				m.err = err
			}
			m.refresh()
			return m, nil

		case "s":
			if err := m.demo.spawn(); err != nil {
				m.err = err
			}
			m.refresh()
			return m, nil

		case "g":
			runtime.GC()
			m.demo.reclaimer.Reclaim()
			m.refresh()
			return m, nil
		}

	case tickMsg:
		m.refresh()
		return m, tick()

	case stoppedMsg:
		m.err = msg.err
		return m, tea.Quit
	}

	var cmd tea.Cmd
	m.table, cmd = m.table.Update(msg)
	return m, cmd
}

func (m *interactiveModel) View() string {
	var b strings.Builder
	s := m.last

	b.WriteString(titleStyle.Render("physlink"))
	b.WriteString("\n\n")

	stat := func(label string, value any) string {
		return labelStyle.Render(label+": ") + valueStyle.Render(fmt.Sprint(value))
	}
	b.WriteString(strings.Join([]string{
		stat("steps", s.steps),
		stat("frames", s.frames),
		stat("bodies", s.bodies),
	}, "  "))
	b.WriteString("\n")
	b.WriteString(strings.Join([]string{
		stat("tracked", len(s.trackers)),
		stat("freed", s.stats.Freed),
		stat("failed", s.stats.Failed),
		stat("pending", s.stats.Pending),
	}, "  "))
	b.WriteString("\n")
	if s.hasHeap {
		b.WriteString(stat("heap objects", s.heap.Objects) + "  " + stat("bytes", s.heap.BytesUsed))
		b.WriteString("\n")
	}
	b.WriteString("\n")
	b.WriteString(tableStyle.Render(m.table.View()))
	b.WriteString("\n")

	if m.err != nil {
		b.WriteString(errorStyle.Render("Error: " + m.err.Error()))
		b.WriteString("\n")
	}
	b.WriteString(helpStyle.Render("↑/↓: scroll • d: drop body • s: spawn • g: collect • q: quit"))
	return b.String()
}

func runInteractive(ctx context.Context, cfg *Config, log *zap.Logger) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	d, err := newDemo(ctx, cfg, log)
	if err != nil {
		return err
	}

	m := newInteractiveModel(d, cancel)
	p := tea.NewProgram(m, tea.WithAltScreen())

	done := make(chan error, 1)
	go func() {
		err := d.run(ctx)
		done <- err
		p.Send(stoppedMsg{err: err})
	}()

	_, err = p.Run()
	cancel()
	err = multierr.Append(err, <-done)
	return multierr.Append(err, d.close())
}

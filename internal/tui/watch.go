// Package tui renders the live bot status in the terminal.
package tui

import (
	"fmt"
	"sort"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/cory-johannsen/huntbot/internal/bot/coordinator"
	"github.com/cory-johannsen/huntbot/internal/bot/target"
)

const clockRefreshInterval = time.Second

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#FF6B6B")).MarginBottom(1)
	labelStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#888888")).Width(12)
	activeStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#4CAF50")).Bold(true)
	pausedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#999999"))
	busyStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#F7B801")).Bold(true)
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF6B6B"))
	hintStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#666666")).MarginTop(1)
	boxStyle    = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("#444444")).Padding(0, 1)
	kindStyles  = map[target.Kind]lipgloss.Style{
		target.KindNone: pausedStyle,
		target.KindMob:  lipgloss.NewStyle().Foreground(lipgloss.Color("#FF6B6B")).Bold(true),
		target.KindDrop: lipgloss.NewStyle().Foreground(lipgloss.Color("#5B8DEF")).Bold(true),
	}
)

// Feed yields status reports. *status.Client implements it.
type Feed interface {
	Next() (coordinator.Status, error)
}

type statusMsg coordinator.Status

type feedErrMsg struct{ err error }

type clockMsg time.Time

// Model is the bubbletea model of the status watcher.
type Model struct {
	feed     Feed
	now      func() time.Time
	status   *coordinator.Status
	received time.Time
	err      error
}

// NewModel returns a watcher reading from feed.
func NewModel(feed Feed) Model {
	return Model{feed: feed, now: time.Now}
}

// Err returns the error that ended the feed, if any.
func (m Model) Err() error { return m.err }

// Init starts reading the feed and the age clock.
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.waitForStatus(), scheduleClock())
}

func (m Model) waitForStatus() tea.Cmd {
	return func() tea.Msg {
		st, err := m.feed.Next()
		if err != nil {
			return feedErrMsg{err: err}
		}
		return statusMsg(st)
	}
}

func scheduleClock() tea.Cmd {
	return tea.Tick(clockRefreshInterval, func(t time.Time) tea.Msg { return clockMsg(t) })
}

// Update handles feed updates, the clock and the quit keys.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case statusMsg:
		st := coordinator.Status(msg)
		m.status = &st
		m.received = m.now()
		return m, m.waitForStatus()
	case feedErrMsg:
		m.err = msg.err
		return m, tea.Quit
	case clockMsg:
		return m, scheduleClock()
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "esc", "ctrl+c":
			return m, tea.Quit
		}
	}
	return m, nil
}

// View renders the latest report.
func (m Model) View() string {
	title := titleStyle.Render("HUNTBOT")
	if m.status == nil {
		body := pausedStyle.Render("waiting for status...")
		if m.err != nil {
			body = errorStyle.Render(m.err.Error())
		}
		return lipgloss.JoinVertical(lipgloss.Left, title, body, hintStyle.Render("q quit"))
	}
	st := m.status

	running := pausedStyle.Render("stopped")
	if st.Running {
		running = activeStyle.Render("running")
	}
	gate := pausedStyle.Render("free")
	if st.GateBusy {
		gate = busyStyle.Render("busy")
	}
	if st.Target.ExclusiveAction {
		gate += " " + busyStyle.Render("(exclusive action)")
	}

	rows := []string{
		row("run", st.RunID.String()),
		row("state", running),
		row("target", renderTarget(st.Target)),
		row("gate", gate),
		row("workers", renderWorkers(st.Workers)),
	}
	if len(st.Pinned) > 0 {
		rows = append(rows, row("pinned", strings.Join(st.Pinned, " ")))
	}
	if st.JournalDropped > 0 {
		rows = append(rows, row("dropped", errorStyle.Render(fmt.Sprintf("%d journal actions", st.JournalDropped))))
	}
	age := m.now().Sub(m.received).Truncate(time.Second)
	rows = append(rows, row("updated", fmt.Sprintf("%s ago", age)))

	return lipgloss.JoinVertical(lipgloss.Left,
		title,
		boxStyle.Render(strings.Join(rows, "\n")),
		hintStyle.Render("q quit"),
	)
}

func row(label, value string) string {
	return labelStyle.Render(label) + value
}

func renderTarget(s target.Snapshot) string {
	kind := kindStyles[s.Kind].Render(strings.ToUpper(s.Kind.String()))
	if s.Kind == target.KindNone {
		return kind
	}
	return fmt.Sprintf("%s %s (%.0f%%, %s)", kind, s.MatchedName, s.Confidence*100, s.Elapsed.Truncate(100*time.Millisecond))
}

func renderWorkers(workers map[string]bool) string {
	names := make([]string, 0, len(workers))
	for n := range workers {
		names = append(names, n)
	}
	sort.Strings(names)
	parts := make([]string, len(names))
	for i, n := range names {
		if workers[n] {
			parts[i] = activeStyle.Render(n)
		} else {
			parts[i] = pausedStyle.Render(n)
		}
	}
	return strings.Join(parts, " ")
}

// Package tui renders a live dashboard of one map: its lifecycle state,
// basemap, layers and plugins, and a scrolling log of bus events.
//
// The dashboard is driven entirely by messages. Forward sends bus events to
// a running program and StateOf captures the map state after each change.
package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/Iron-Ham/mapcore/internal/event"
	"github.com/Iron-Ham/mapcore/internal/layer"
	"github.com/Iron-Ham/mapcore/internal/persistence"
	"github.com/Iron-Ham/mapcore/internal/plugin"
	"github.com/Iron-Ham/mapcore/internal/render"
	"github.com/Iron-Ham/mapcore/internal/tui/styles"
)

// DefaultMaxEvents is the number of log lines kept.
const DefaultMaxEvents = 200

// StateMsg replaces the displayed map state.
type StateMsg struct {
	State    string
	Basemap  string
	Viewport render.Viewport
	Layers   []layer.State
	Plugins  []plugin.State
}

// EventMsg appends a bus event to the log.
type EventMsg struct {
	Event event.Event
}

// RestoreMsg reports a snapshot restore.
type RestoreMsg struct {
	Path   string
	Result persistence.HydrateResult
}

type logLine struct {
	at      time.Time
	kind    string
	text    string
	failure bool
}

// Model is the Bubbletea model for the dashboard.
type Model struct {
	title     string
	keys      keyMap
	help      help.Model
	log       viewport.Model
	state     StateMsg
	lines     []logLine
	maxEvents int
	failures  int
	restore   string
	width     int
	height    int
	ready     bool
	paused    bool
	quitting  bool
}

// New creates a dashboard. title is shown in the header, usually the
// watched path.
func New(title string) Model {
	return Model{
		title:     title,
		keys:      defaultKeyMap(),
		help:      help.New(),
		log:       viewport.New(80, 10),
		maxEvents: DefaultMaxEvents,
		state:     StateMsg{State: "uninitialized"},
	}
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd { return nil }

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.ready = true
		m.resizeLog()
		return m, nil

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.Quit):
			m.quitting = true
			return m, tea.Quit
		case key.Matches(msg, m.keys.Pause):
			m.paused = !m.paused
			return m, nil
		case key.Matches(msg, m.keys.Clear):
			m.lines = nil
			m.failures = 0
			m.refreshLog()
			return m, nil
		case key.Matches(msg, m.keys.Help):
			m.help.ShowAll = !m.help.ShowAll
			m.resizeLog()
			return m, nil
		}
		var cmd tea.Cmd
		m.log, cmd = m.log.Update(msg)
		return m, cmd

	case StateMsg:
		m.state = msg
		m.resizeLog()
		return m, nil

	case EventMsg:
		if m.paused || msg.Event == nil {
			return m, nil
		}
		text, failure := describe(msg.Event)
		m.append(logLine{at: msg.Event.Timestamp(), kind: msg.Event.EventType(), text: text, failure: failure})
		return m, nil

	case RestoreMsg:
		m.restore = restoreSummary(msg)
		return m, nil
	}
	return m, nil
}

func (m *Model) append(l logLine) {
	if l.failure {
		m.failures++
	}
	m.lines = append(m.lines, l)
	if over := len(m.lines) - m.maxEvents; over > 0 {
		m.lines = m.lines[over:]
	}
	m.refreshLog()
}

func (m *Model) refreshLog() {
	var sb strings.Builder
	for i, l := range m.lines {
		if i > 0 {
			sb.WriteByte('\n')
		}
		kind := styles.Primary.Render(fmt.Sprintf("%-22s", l.kind))
		text := l.text
		if l.failure {
			text = styles.Error.Render(text)
		}
		line := fmt.Sprintf("%s %s %s", styles.Muted.Render(l.at.Format("15:04:05.000")), kind, text)
		if m.width > 0 {
			line = Truncate(line, m.width-4)
		}
		sb.WriteString(line)
	}
	m.log.SetContent(sb.String())
	m.log.GotoBottom()
}

// resizeLog gives the event log whatever height the other sections leave.
func (m *Model) resizeLog() {
	if !m.ready {
		return
	}
	m.log.Width = max(m.width-4, 20)
	used := lipgloss.Height(m.header()) + lipgloss.Height(m.body()) + lipgloss.Height(m.help.View(m.keys)) + 4
	m.log.Height = max(m.height-used, 3)
	m.refreshLog()
}

// View implements tea.Model.
func (m Model) View() string {
	if m.quitting {
		return ""
	}
	sections := []string{
		m.header(),
		m.body(),
		styles.Box.Render(m.log.View()),
		m.help.View(m.keys),
	}
	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

func (m Model) header() string {
	title := styles.Title.Render("mapcore") + " " + styles.Subtitle.Render(m.title)
	status := styles.StateBadge(m.state.State)
	if m.paused {
		status += " " + styles.Warning.Render("paused")
	}
	if m.failures > 0 {
		status += " " + styles.Error.Render(fmt.Sprintf("%d errors", m.failures))
	}
	lines := []string{
		title + "  " + status,
		styles.Label.Render("basemap") + orNone(m.state.Basemap),
		styles.Label.Render("camera") + fmt.Sprintf("[%.4f, %.4f] z%.2f b%.0f p%.0f",
			m.state.Viewport.Center[0], m.state.Viewport.Center[1],
			m.state.Viewport.Zoom, m.state.Viewport.Bearing, m.state.Viewport.Pitch),
	}
	if m.restore != "" {
		lines = append(lines, styles.Label.Render("restore")+m.restore)
	}
	return strings.Join(lines, "\n")
}

func (m Model) body() string {
	if len(m.state.Layers) == 0 && len(m.state.Plugins) == 0 {
		return styles.Muted.Render("no layers or plugins registered")
	}
	var parts []string
	if len(m.state.Layers) > 0 {
		parts = append(parts, LayerTable(m.state.Layers))
	}
	if len(m.state.Plugins) > 0 {
		parts = append(parts, PluginTable(m.state.Plugins))
	}
	return lipgloss.JoinVertical(lipgloss.Left, parts...)
}

func restoreSummary(msg RestoreMsg) string {
	res := msg.Result
	if !res.Success {
		return styles.Check(false) + " " + msg.Path + ": " + styles.Error.Render(fmt.Sprint(res.Err))
	}
	s := styles.Check(true) + " " + msg.Path
	if res.Report.Migrated {
		s += styles.Muted.Render(fmt.Sprintf(" (migrated v%d → v%d)", res.Report.SourceVersion, res.Report.Version))
	}
	if n := len(res.LayerErrors) + len(res.PluginErrors); n > 0 {
		s += " " + styles.Warning.Render(fmt.Sprintf("%d item errors", n))
	}
	if n := len(res.Warnings); n > 0 {
		s += " " + styles.Warning.Render(fmt.Sprintf("%d warnings", n))
	}
	return s
}

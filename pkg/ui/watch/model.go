package watch

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"nonocoop/pkg/event"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

const maxFeedLines = 500

type feedLine struct {
	at    time.Time
	event event.Event
}

type eventMsg struct {
	event event.Event
}

type feedClosedMsg struct{}

type commandResultMsg struct {
	input string
	err   error
}

type model struct {
	events <-chan event.Event
	submit SubmitFunc
	info   Info
	status StatusFunc
	now    func() time.Time

	theme     theme
	input     textinput.Model
	viewport  viewport.Model
	feed      []feedLine
	counts    map[event.Category]int
	width     int
	height    int
	isReady   bool
	followLog bool
	closed    bool
	lastErr   string
}

func newModel(events <-chan event.Event, submit SubmitFunc, info Info, status StatusFunc) *model {
	in := textinput.New()
	in.Prompt = ""
	in.Placeholder = "occupy 3 4 · mark 1 1 · quit"
	in.Focus()
	in.CharLimit = 0

	vp := viewport.New(80, 12)

	return &model{
		events:    events,
		submit:    submit,
		info:      info,
		status:    status,
		now:       time.Now,
		theme:     defaultTheme(),
		input:     in,
		viewport:  vp,
		counts:    make(map[event.Category]int),
		width:     100,
		height:    28,
		followLog: true,
	}
}

func (m *model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, waitForEvent(m.events))
}

func waitForEvent(events <-chan event.Event) tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-events
		if !ok {
			return feedClosedMsg{}
		}
		return eventMsg{event: ev}
	}
}

func runCommandCmd(submit SubmitFunc, input string) tea.Cmd {
	return func() tea.Msg {
		return commandResultMsg{input: input, err: submit(input)}
	}
}

func (m *model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch typed := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = typed.Width
		m.height = typed.Height
		m.resizeComponents()
		m.refreshViewport(false)
		m.isReady = true
		return m, nil
	case eventMsg:
		m.appendEvent(typed.event)
		return m, waitForEvent(m.events)
	case feedClosedMsg:
		m.closed = true
		return m, tea.Quit
	case commandResultMsg:
		if errors.Is(typed.err, ErrQuit) {
			return m, tea.Quit
		}
		if typed.err != nil {
			m.lastErr = fmt.Sprintf("%s: %v", typed.input, typed.err)
		} else {
			m.lastErr = ""
		}
		return m, nil
	case tea.MouseMsg:
		if m.handleViewportMouse(typed) {
			return m, nil
		}
	case tea.KeyMsg:
		switch typed.String() {
		case "ctrl+c", "esc":
			return m, tea.Quit
		}

		if m.handleViewportKey(typed) {
			return m, nil
		}

		if typed.String() == "enter" {
			line := strings.TrimSpace(m.input.Value())
			m.input.SetValue("")
			if line == "" || m.submit == nil {
				return m, nil
			}
			m.followLog = true
			return m, runCommandCmd(m.submit, line)
		}
	}

	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *model) appendEvent(ev event.Event) {
	m.feed = append(m.feed, feedLine{at: m.now(), event: ev})
	if len(m.feed) > maxFeedLines {
		m.feed = append([]feedLine(nil), m.feed[len(m.feed)-maxFeedLines:]...)
	}
	m.counts[ev.Category()]++
	m.refreshViewport(false)
}

func (m *model) View() string {
	if !m.isReady {
		m.resizeComponents()
		m.refreshViewport(false)
	}

	header := m.theme.header.Width(m.width - 2).Render("NonoCoop session watch")
	meta := m.theme.headerMeta.Render(fmt.Sprintf(
		"player:%s · session:%s · role:%s · bridge:%s · events(field/state/program):%d/%d/%d",
		displayOrNA(m.info.Player),
		displayOrNA(m.info.SessionID),
		displayOrNA(m.info.Role),
		displayOrNA(m.bridgeStatus()),
		m.counts[event.CategoryFieldControl],
		m.counts[event.CategoryStateChange],
		m.counts[event.CategoryProgramControl],
	))
	line := m.theme.divider.Width(m.width - 2).Render(strings.Repeat("═", max(8, m.width-2)))

	status := m.theme.status.Render("Enter send · PgUp/PgDn scroll · End jump latest · Ctrl+C/Esc quit")
	if m.closed {
		status = m.theme.statusErr.Render("event feed closed")
	} else if m.lastErr != "" {
		status = m.theme.statusErr.Render(m.lastErr)
	}

	return lipgloss.JoinVertical(lipgloss.Left,
		header,
		meta,
		line,
		m.theme.viewport.Width(m.width-2).Render(m.viewport.View()),
		status,
		m.theme.inputLabel.Render("Move")+" "+m.theme.hint.Render("(occupy C R, mark C R, quit)"),
		m.theme.input.Width(m.width-2).Render(m.input.View()),
	)
}

func (m *model) bridgeStatus() string {
	if m.status == nil {
		return ""
	}
	return m.status()
}

func (m *model) resizeComponents() {
	w := max(50, m.width-6)
	h := max(8, m.height-10)

	m.viewport.Width = w
	m.viewport.Height = h
	m.input.Width = w - 2
}

func (m *model) refreshViewport(forceBottom bool) {
	previousOffset := m.viewport.YOffset
	lines := make([]string, 0, len(m.feed))
	for _, item := range m.feed {
		lines = append(lines, m.renderLine(item))
	}

	m.viewport.SetContent(strings.Join(lines, "\n"))
	if m.followLog || forceBottom {
		m.viewport.GotoBottom()
		m.followLog = true
		return
	}

	maxOffset := max(0, m.viewport.TotalLineCount()-m.viewport.Height)
	m.viewport.SetYOffset(min(previousOffset, maxOffset))
}

func (m *model) renderLine(item feedLine) string {
	tag := m.theme.categoryStyle(item.event.Category()).Render(fmt.Sprintf("%-15s", item.event.Category().String()))
	stamp := m.theme.hint.Render(item.at.Format(time.TimeOnly))
	return stamp + " " + tag + " " + item.event.String()
}

func (m *model) handleViewportKey(msg tea.KeyMsg) bool {
	switch msg.String() {
	case "pgup", "ctrl+b", "alt+up", "ctrl+up":
		m.viewport.PageUp()
		m.followLog = false
		return true
	case "pgdown", "ctrl+f", "alt+down", "ctrl+down":
		m.viewport.PageDown()
		if m.viewport.AtBottom() {
			m.followLog = true
		}
		return true
	case "home":
		m.viewport.GotoTop()
		m.followLog = false
		return true
	case "end":
		m.viewport.GotoBottom()
		m.followLog = true
		return true
	default:
		return false
	}
}

func (m *model) handleViewportMouse(msg tea.MouseMsg) bool {
	if msg.Action != tea.MouseActionPress {
		return false
	}

	switch msg.Button {
	case tea.MouseButtonWheelUp:
		m.viewport.ScrollUp(3)
		m.followLog = false
		return true
	case tea.MouseButtonWheelDown:
		m.viewport.ScrollDown(3)
		if m.viewport.AtBottom() {
			m.followLog = true
		}
		return true
	default:
		return false
	}
}

func displayOrNA(value string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return "n/a"
	}

	return trimmed
}

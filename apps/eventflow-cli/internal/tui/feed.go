package tui

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"github.com/Z4phxr/eventflow-client/apps/eventflow-cli/internal/domain"
	"github.com/Z4phxr/eventflow-client/apps/eventflow-cli/internal/service"
)

// Feed is the notification feed the viewer drives
type Feed interface {
	State() service.FeedState
	Subscribe(fn func(service.FeedState)) func()
	EnablePolling()
	DisablePolling()
	EnablePush(ctx context.Context) error
	DisablePush()
	Refresh(ctx context.Context) error
	MarkRead(ctx context.Context, id string) error
	MarkAllRead(ctx context.Context) error
}

type feedStateMsg struct {
	state service.FeedState
}

// opDoneMsg reports the result of a feed operation run off the UI loop
type opDoneMsg struct {
	op  string
	err error
}

// FeedModel is the bubbletea model of the live notification viewer
type FeedModel struct {
	ctx   context.Context
	feed  Feed
	keys  KeyMap
	theme Theme
	help  help.Model

	updates     chan service.FeedState
	done        chan struct{}
	closeOnce   *sync.Once
	unsubscribe func()

	state  service.FeedState
	cursor int
	status string
	width  int
	height int
}

// NewFeedModel creates a viewer for feed. Close releases its subscription.
func NewFeedModel(ctx context.Context, feed Feed) FeedModel {
	m := FeedModel{
		ctx:       ctx,
		feed:      feed,
		keys:      DefaultKeyMap,
		theme:     DefaultTheme,
		help:      help.New(),
		updates:   make(chan service.FeedState, 1),
		done:      make(chan struct{}),
		closeOnce: &sync.Once{},
		state:     feed.State(),
	}

	updates := m.updates
	m.unsubscribe = feed.Subscribe(func(s service.FeedState) {
		// keep only the newest snapshot
		for {
			select {
			case updates <- s:
				return
			default:
			}
			select {
			case <-updates:
			default:
			}
		}
	})
	return m
}

// Close stops listening to the feed
func (m FeedModel) Close() {
	m.closeOnce.Do(func() {
		m.unsubscribe()
		close(m.done)
	})
}

// Init implements tea.Model
func (m FeedModel) Init() tea.Cmd {
	return tea.Batch(m.listen(), m.run("refresh", m.feed.Refresh))
}

// listen blocks until the feed changes
func (m FeedModel) listen() tea.Cmd {
	updates, done := m.updates, m.done
	return func() tea.Msg {
		select {
		case s := <-updates:
			return feedStateMsg{state: s}
		case <-done:
			return nil
		}
	}
}

func (m FeedModel) run(op string, fn func(context.Context) error) tea.Cmd {
	ctx := m.ctx
	return func() tea.Msg {
		return opDoneMsg{op: op, err: fn(ctx)}
	}
}

// Update implements tea.Model
func (m FeedModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.help.Width = msg.Width
		return m, nil

	case feedStateMsg:
		m.state = msg.state
		m.clampCursor()
		return m, m.listen()

	case opDoneMsg:
		if msg.err != nil {
			m.status = fmt.Sprintf("%s failed: %v", msg.op, msg.err)
		} else {
			m.status = ""
		}
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)
	}
	return m, nil
}

func (m FeedModel) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		m.Close()
		return m, tea.Quit

	case key.Matches(msg, m.keys.Up):
		if m.cursor > 0 {
			m.cursor--
		}

	case key.Matches(msg, m.keys.Down):
		if m.cursor < len(m.state.Items)-1 {
			m.cursor++
		}

	case key.Matches(msg, m.keys.Read):
		if m.cursor < len(m.state.Items) && !m.state.Items[m.cursor].Read {
			id := m.state.Items[m.cursor].ID
			return m, m.run("mark read", func(ctx context.Context) error { return m.feed.MarkRead(ctx, id) })
		}

	case key.Matches(msg, m.keys.ReadAll):
		return m, m.run("mark all read", m.feed.MarkAllRead)

	case key.Matches(msg, m.keys.Refresh):
		m.status = "Refreshing..."
		return m, m.run("refresh", m.feed.Refresh)

	case key.Matches(msg, m.keys.Poll):
		if m.state.Mode == domain.FeedModePolling {
			m.feed.DisablePolling()
		} else {
			m.feed.EnablePolling()
		}

	case key.Matches(msg, m.keys.Push):
		if m.state.Mode == domain.FeedModePushing {
			m.feed.DisablePush()
			return m, nil
		}
		m.status = "Connecting..."
		return m, m.run("live stream", m.feed.EnablePush)

	case key.Matches(msg, m.keys.Help):
		m.help.ShowAll = !m.help.ShowAll
	}
	return m, nil
}

func (m *FeedModel) clampCursor() {
	if m.cursor >= len(m.state.Items) {
		m.cursor = len(m.state.Items) - 1
	}
	if m.cursor < 0 {
		m.cursor = 0
	}
}

// View implements tea.Model
func (m FeedModel) View() string {
	var b strings.Builder

	header := lipgloss.NewStyle().Bold(true).Foreground(m.theme.HeaderForeground)
	faint := lipgloss.NewStyle().Foreground(m.theme.FaintText)
	b.WriteString(header.Render("Notifications"))
	b.WriteString(faint.Render("  ·  "))
	b.WriteString(lipgloss.NewStyle().Foreground(m.modeColor()).Render(modeLabel(m.state.Mode)))
	b.WriteString(faint.Render("  ·  "))
	b.WriteString(lipgloss.NewStyle().Foreground(m.theme.Unread).Render(fmt.Sprintf("%d unread", m.state.Unread)))
	b.WriteString("\n")

	if m.state.Notice != "" {
		b.WriteString(lipgloss.NewStyle().Foreground(m.theme.Warning).Render(m.state.Notice))
		b.WriteString("\n")
	}
	if m.state.Err != nil {
		b.WriteString(lipgloss.NewStyle().Foreground(m.theme.Error).Render(m.state.Err.Error()))
		b.WriteString("\n")
	}
	b.WriteString("\n")

	if len(m.state.Items) == 0 {
		b.WriteString(faint.Render("No notifications yet"))
		b.WriteString("\n")
	}
	for i, n := range m.visibleItems() {
		b.WriteString(m.renderItem(n, i+m.offset() == m.cursor))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	if m.status != "" {
		b.WriteString(faint.Render(m.status))
		b.WriteString("\n")
	}
	b.WriteString(m.help.View(m.keys))
	return b.String()
}

func (m FeedModel) renderItem(n domain.NotificationEvent, selected bool) string {
	marker := "  "
	if selected {
		marker = "› "
	}
	dot := "  "
	if !n.Read {
		dot = lipgloss.NewStyle().Foreground(m.theme.Unread).Render("● ")
	}

	when := lipgloss.NewStyle().Foreground(m.theme.FaintText).Render(humanize.Time(n.CreatedAt))
	line := fmt.Sprintf("%s%s%s  %s", marker, dot, n.Message, when)

	style := lipgloss.NewStyle().Foreground(m.theme.NormalText)
	if selected {
		style = style.Background(m.theme.SelectedBackground).Foreground(m.theme.SelectedForeground)
	}
	if m.width > 0 {
		style = style.MaxWidth(m.width)
	}
	return style.Render(line)
}

// visibleItems is the window of items that fits the terminal around the cursor
func (m FeedModel) visibleItems() []domain.NotificationEvent {
	rows := m.listRows()
	start := m.offset()
	end := start + rows
	if end > len(m.state.Items) {
		end = len(m.state.Items)
	}
	return m.state.Items[start:end]
}

func (m FeedModel) offset() int {
	rows := m.listRows()
	if rows <= 0 || m.cursor < rows {
		return 0
	}
	start := m.cursor - rows + 1
	if start > len(m.state.Items) {
		start = len(m.state.Items)
	}
	return start
}

// listRows is never below 1, even before the first window size arrives
func (m FeedModel) listRows() int {
	if m.height <= 0 {
		return max(len(m.state.Items), 1)
	}
	// header, notice, error, spacing, status and help
	rows := m.height - 8
	if rows < 1 {
		rows = 1
	}
	return rows
}

func (m FeedModel) modeColor() lipgloss.Color {
	switch m.state.Mode {
	case domain.FeedModePushing:
		return m.theme.ModePushing
	case domain.FeedModePolling:
		return m.theme.ModePolling
	default:
		return m.theme.ModeOff
	}
}

func modeLabel(mode domain.FeedMode) string {
	switch mode {
	case domain.FeedModePushing:
		return "live"
	case domain.FeedModePolling:
		return "polling"
	default:
		return "manual"
	}
}

// RunFeed shows the viewer until the user quits or ctx ends
func RunFeed(ctx context.Context, feed Feed, in io.Reader, out io.Writer) error {
	m := NewFeedModel(ctx, feed)
	defer m.Close()

	p := tea.NewProgram(m,
		tea.WithContext(ctx),
		tea.WithInput(in),
		tea.WithOutput(out),
		tea.WithAltScreen(),
	)
	_, err := p.Run()
	if ctx.Err() != nil {
		return nil
	}
	return err
}

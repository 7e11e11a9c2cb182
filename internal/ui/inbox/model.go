package inbox

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/scfet/notification-client/internal/feed"
	"github.com/scfet/notification-client/internal/keys"
	"github.com/scfet/notification-client/internal/model"
	"github.com/scfet/notification-client/internal/theme"
	"github.com/scfet/notification-client/internal/ui"
)

// LoadedMsg is sent when a fetch into the inbox finishes.
type LoadedMsg struct {
	Err error
}

// MarkedReadMsg reports the outcome of marking a notification read.
type MarkedReadMsg struct {
	ID  string
	Err error
}

// OpenMsg is sent when the user opens a notification.
type OpenMsg struct {
	Notification model.Notification
}

// Model is the received-notifications view.
type Model struct {
	list     list.Model
	feed     *feed.Inbox
	keys     *keys.KeyMap
	filter   ui.FilterState
	defaults model.Filter
	err      error
	width    int
	height   int
}

// New creates the inbox view over f.
func New(f *feed.Inbox, k *keys.KeyMap, defaults model.Filter, width, height int) Model {
	l := list.New([]list.Item{}, ItemDelegate{}, width, height-1)
	l.Title = "Inbox"
	l.SetShowStatusBar(true)
	l.SetShowHelp(false)
	l.SetFilteringEnabled(false)
	l.Styles.Title = theme.HeaderStyle

	return Model{
		list:     l,
		feed:     f,
		keys:     k,
		filter:   ui.NewFilterState(defaults),
		defaults: defaults,
		width:    width,
		height:   height,
	}
}

// Init returns a command that loads the first page.
func (m Model) Init() tea.Cmd {
	return m.Start()
}

// Update handles messages for the inbox view.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	switch msg := msg.(type) {
	case LoadedMsg:
		switch {
		case errors.Is(msg.Err, feed.ErrInFlight),
			errors.Is(msg.Err, feed.ErrNoMorePages),
			errors.Is(msg.Err, feed.ErrSuperseded):
		default:
			m.err = msg.Err
		}
		return m, m.Sync()

	case MarkedReadMsg:
		m.err = msg.Err
		return m, m.Sync()

	case tea.KeyMsg:
		return m.handleKeys(msg)
	}

	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

func (m Model) handleKeys(msg tea.KeyMsg) (Model, tea.Cmd) {
	if next, ok := m.filter.HandleKey(m.keys, msg, m.defaults, time.Now()); ok {
		m.filter = next
		return m, m.applyFilter(next.Filter)
	}

	switch {
	case key.Matches(msg, m.keys.Select):
		n, ok := m.Selected()
		if !ok {
			return m, nil
		}
		return m, func() tea.Msg { return OpenMsg{Notification: n} }

	case key.Matches(msg, m.keys.MarkRead):
		n, ok := m.Selected()
		if !ok || n.IsRead {
			return m, nil
		}
		return m, m.MarkRead(n.ID)

	case key.Matches(msg, m.keys.Refresh):
		return m, m.Refresh()

	case key.Matches(msg, m.keys.LoadMore):
		return m, m.LoadMore()
	}

	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	// Reaching the last row pulls the next page.
	if key.Matches(msg, m.keys.Down) && m.atEnd() {
		return m, tea.Batch(cmd, m.LoadMore())
	}
	return m, cmd
}

func (m Model) atEnd() bool {
	n := len(m.list.Items())
	return n > 0 && m.list.Index() == n-1 && m.feed.Snapshot().PaginationEnabled
}

// Selected returns the highlighted notification.
func (m Model) Selected() (model.Notification, bool) {
	it, ok := m.list.SelectedItem().(Item)
	if !ok {
		return model.Notification{}, false
	}
	return it.Notification, true
}

// Sync rebuilds the list rows from the feed.
func (m *Model) Sync() tea.Cmd {
	notifications := m.feed.Items()
	items := make([]list.Item, len(notifications))
	for i, n := range notifications {
		items[i] = Item{Notification: n}
	}
	m.list.Title = m.title()
	return m.list.SetItems(items)
}

func (m Model) title() string {
	if unread := m.feed.UnreadCount(); unread > 0 {
		return fmt.Sprintf("Inbox (%d new)", unread)
	}
	return "Inbox"
}

// Start loads page 1 of the current filter.
func (m Model) Start() tea.Cmd {
	f := m.feed
	return func() tea.Msg {
		return LoadedMsg{Err: f.Start(context.Background())}
	}
}

// Refresh refetches page 1.
func (m Model) Refresh() tea.Cmd {
	f := m.feed
	return func() tea.Msg {
		return LoadedMsg{Err: f.Refresh(context.Background())}
	}
}

// LoadMore appends the next page.
func (m Model) LoadMore() tea.Cmd {
	f := m.feed
	return func() tea.Msg {
		return LoadedMsg{Err: f.LoadMore(context.Background())}
	}
}

func (m Model) applyFilter(filter model.Filter) tea.Cmd {
	f := m.feed
	return func() tea.Msg {
		return LoadedMsg{Err: f.ApplyFilter(context.Background(), filter)}
	}
}

// MarkRead marks id read on the server and in the feed.
func (m Model) MarkRead(id string) tea.Cmd {
	f := m.feed
	return func() tea.Msg {
		return MarkedReadMsg{ID: id, Err: f.MarkRead(context.Background(), id)}
	}
}

// Reset forgets the filter, for sign-out.
func (m *Model) Reset() {
	m.filter = ui.NewFilterState(m.defaults)
	m.err = nil
	m.list.SetItems(nil)
}

// Err returns the last load error, if any.
func (m Model) Err() error { return m.err }

// FilterSummary describes the active filter.
func (m Model) FilterSummary() string { return m.filter.Summary() }

// View renders the inbox view.
func (m Model) View() string {
	if len(m.list.Items()) == 0 {
		return m.renderEmptyState()
	}
	return m.list.View()
}

func (m Model) renderEmptyState() string {
	style := lipgloss.NewStyle().
		Width(m.width).
		Height(m.height).
		Align(lipgloss.Center, lipgloss.Center).
		Foreground(theme.ColorGray)

	snap := m.feed.Snapshot()
	switch {
	case snap.Busy || snap.Refreshing:
		return style.Render("Loading notifications...")
	case m.err != nil:
		return style.Render(theme.ErrorStyle.Render(m.err.Error()) + "\n\nPress r to retry.")
	case m.filter.Range != model.RangeAll:
		return style.Render("No notifications in this range.\nPress 0 to reset the filter.")
	default:
		return style.Render("No notifications yet.")
	}
}

// SetSize updates the list dimensions.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
	m.list.SetSize(width, height-1)
}

// Package sent is the view of notifications the user authored.
package sent

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"github.com/scfet/notification-client/internal/feed"
	"github.com/scfet/notification-client/internal/keys"
	"github.com/scfet/notification-client/internal/model"
	"github.com/scfet/notification-client/internal/theme"
	"github.com/scfet/notification-client/internal/ui"
)

// LoadedMsg is sent when a fetch into the outbox finishes.
type LoadedMsg struct {
	Err error
}

// DeletedMsg reports the outcome of deleting a sent notification.
type DeletedMsg struct {
	ID  string
	Err error
}

// OpenMsg is sent when the user opens a sent notification.
type OpenMsg struct {
	Notification model.SentNotification
}

// EditMsg asks the parent to open the compose form on a notification.
type EditMsg struct {
	Notification model.SentNotification
}

type item struct {
	n model.SentNotification
}

func (i item) FilterValue() string { return i.n.Title }

type delegate struct{}

func (d delegate) Height() int { return 1 }

func (d delegate) Spacing() int { return 0 }

func (d delegate) Update(_ tea.Msg, _ *list.Model) tea.Cmd { return nil }

func (d delegate) Render(w io.Writer, m list.Model, index int, li list.Item) {
	it, ok := li.(item)
	if !ok {
		return
	}
	n := it.n

	typeBadge := theme.TypeStyle(n.Type).Render(theme.TypeLabel(n.Type))
	stats := lipgloss.NewStyle().
		Foreground(theme.ColorGray).
		Render(fmt.Sprintf("%d/%d read (%.0f%%)", n.ReadReceivers, n.TotalReceivers, n.ReadPercentage()))
	age := ""
	if !n.CreatedAt.IsZero() {
		age = lipgloss.NewStyle().Foreground(theme.ColorGray).Render(" · " + humanize.Time(n.CreatedAt))
	}

	line := fmt.Sprintf("%s %s  %s%s", typeBadge, n.Title, stats, age)
	if index == m.Index() {
		line = theme.SelectedItemStyle.Render(line)
	} else {
		line = theme.ListItemStyle.Render(line)
	}
	fmt.Fprint(w, line)
}

// Model is the sent-notifications view.
type Model struct {
	list     list.Model
	feed     *feed.Outbox
	keys     *keys.KeyMap
	filter   ui.FilterState
	defaults model.Filter
	err      error
	width    int
	height   int
}

// New creates the sent view over f.
func New(f *feed.Outbox, k *keys.KeyMap, defaults model.Filter, width, height int) Model {
	l := list.New([]list.Item{}, delegate{}, width, height-1)
	l.Title = "Sent"
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

// Update handles messages for the sent view.
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

	case DeletedMsg:
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
		f := m.feed
		return m, func() tea.Msg {
			return LoadedMsg{Err: f.ApplyFilter(context.Background(), next.Filter)}
		}
	}

	n, selected := m.Selected()
	switch {
	case key.Matches(msg, m.keys.Select):
		if selected {
			return m, func() tea.Msg { return OpenMsg{Notification: n} }
		}
		return m, nil

	case key.Matches(msg, m.keys.Edit):
		if selected {
			return m, func() tea.Msg { return EditMsg{Notification: n} }
		}
		return m, nil

	case key.Matches(msg, m.keys.Delete):
		if selected {
			return m, m.Delete(n.ID)
		}
		return m, nil

	case key.Matches(msg, m.keys.Refresh):
		return m, m.Refresh()

	case key.Matches(msg, m.keys.LoadMore):
		return m, m.LoadMore()
	}

	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	count := len(m.list.Items())
	if key.Matches(msg, m.keys.Down) && count > 0 && m.list.Index() == count-1 && m.feed.Snapshot().PaginationEnabled {
		return m, tea.Batch(cmd, m.LoadMore())
	}
	return m, cmd
}

// Selected returns the highlighted notification.
func (m Model) Selected() (model.SentNotification, bool) {
	it, ok := m.list.SelectedItem().(item)
	if !ok {
		return model.SentNotification{}, false
	}
	return it.n, true
}

// Sync rebuilds the list rows from the feed.
func (m *Model) Sync() tea.Cmd {
	sent := m.feed.Items()
	items := make([]list.Item, len(sent))
	for i, n := range sent {
		items[i] = item{n: n}
	}
	return m.list.SetItems(items)
}

// Start loads page 1 of the current filter.
func (m Model) Start() tea.Cmd {
	f := m.feed
	return func() tea.Msg { return LoadedMsg{Err: f.Start(context.Background())} }
}

// Refresh refetches page 1.
func (m Model) Refresh() tea.Cmd {
	f := m.feed
	return func() tea.Msg { return LoadedMsg{Err: f.Refresh(context.Background())} }
}

// LoadMore appends the next page.
func (m Model) LoadMore() tea.Cmd {
	f := m.feed
	return func() tea.Msg { return LoadedMsg{Err: f.LoadMore(context.Background())} }
}

// Delete removes id on the server and from the list.
func (m Model) Delete(id string) tea.Cmd {
	f := m.feed
	return func() tea.Msg {
		return DeletedMsg{ID: id, Err: f.Delete(context.Background(), id)}
	}
}

// Reset forgets the filter, for sign-out.
func (m *Model) Reset() {
	m.filter = ui.NewFilterState(m.defaults)
	m.err = nil
	m.list.SetItems(nil)
}

// Err returns the last error, if any.
func (m Model) Err() error { return m.err }

// FilterSummary describes the active filter.
func (m Model) FilterSummary() string { return m.filter.Summary() }

// View renders the sent view.
func (m Model) View() string {
	if len(m.list.Items()) > 0 {
		return m.list.View()
	}
	style := lipgloss.NewStyle().
		Width(m.width).
		Height(m.height).
		Align(lipgloss.Center, lipgloss.Center).
		Foreground(theme.ColorGray)
	if m.err != nil {
		return style.Render(theme.ErrorStyle.Render(m.err.Error()))
	}
	return style.Render("Nothing sent yet.\nPress n to write a notification.")
}

// SetSize updates the list dimensions.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
	m.list.SetSize(width, height-1)
}

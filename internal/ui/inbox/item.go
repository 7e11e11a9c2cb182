package inbox

import (
	"fmt"
	"io"
	"time"

	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"github.com/scfet/notification-client/internal/model"
	"github.com/scfet/notification-client/internal/theme"
)

// Item wraps a model.Notification so it can be used in a bubbles/list.
type Item struct {
	Notification model.Notification
}

// FilterValue returns the string used for fuzzy filtering.
func (i Item) FilterValue() string { return i.Notification.Title }

// Title returns the notification title.
func (i Item) Title() string { return i.Notification.Title }

// Description returns the sender and age.
func (i Item) Description() string {
	return fmt.Sprintf("%s · %s", i.Notification.SenderName, Age(i.Notification.CreatedAt))
}

// Age renders t relative to now, or nothing for a zero time.
func Age(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return humanize.Time(t)
}

// ItemDelegate implements list.ItemDelegate for rendering notifications.
type ItemDelegate struct{}

// Height returns the number of lines each item takes.
func (d ItemDelegate) Height() int { return 1 }

// Spacing returns the number of blank lines between items.
func (d ItemDelegate) Spacing() int { return 0 }

// Update handles per-item messages (unused for now).
func (d ItemDelegate) Update(_ tea.Msg, _ *list.Model) tea.Cmd {
	return nil
}

// Render draws a single list item line.
func (d ItemDelegate) Render(w io.Writer, m list.Model, index int, item list.Item) {
	it, ok := item.(Item)
	if !ok {
		return
	}
	n := it.Notification

	readBadge := theme.ReadStyle(n.IsRead).Render(theme.ReadLabel(n.IsRead))
	typeBadge := theme.TypeStyle(n.Type).Render(theme.TypeLabel(n.Type))
	image := ""
	if n.HasImage() {
		image = lipgloss.NewStyle().Foreground(theme.ColorGray).Render(" [img]")
	}
	meta := lipgloss.NewStyle().
		Foreground(theme.ColorGray).
		Render(it.Description())

	line := fmt.Sprintf("%s %s %s%s  %s", readBadge, typeBadge, n.Title, image, meta)

	if n.IsRead {
		line = theme.DimmedStyle.Render(line)
	}
	if index == m.Index() {
		line = theme.SelectedItemStyle.Render(line)
	} else {
		line = theme.ListItemStyle.Render(line)
	}

	fmt.Fprint(w, line)
}

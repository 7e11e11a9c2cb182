package detail

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/scfet/notification-client/internal/keys"
	"github.com/scfet/notification-client/internal/model"
	"github.com/scfet/notification-client/internal/theme"
)

// BackMsg signals the parent to navigate back to the list view.
type BackMsg struct{}

// Action names a request the detail view hands to its parent.
type Action string

const (
	ActionMarkRead Action = "mark_read"
	ActionEdit     Action = "edit"
	ActionDelete   Action = "delete"
)

// ActionMsg signals the parent to execute an action on the shown notification.
type ActionMsg struct {
	Action Action
	ID     string
}

// Model is the notification detail view component.
type Model struct {
	received  *model.Notification
	sent      *model.SentNotification
	imagePath string
	viewport  viewport.Model
	keys      *keys.KeyMap
	width     int
	height    int
}

// New creates a new detail view model.
func New(keys *keys.KeyMap, width, height int) Model {
	vp := viewport.New(width, height-2)
	vp.Style = lipgloss.NewStyle()

	return Model{
		viewport: vp,
		keys:     keys,
		width:    width,
		height:   height,
	}
}

// Init returns the initial command for the detail view.
func (m Model) Init() tea.Cmd {
	return nil
}

// Update handles messages for the detail view.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	if msg, ok := msg.(tea.KeyMsg); ok {
		switch {
		case key.Matches(msg, m.keys.Back):
			return m, func() tea.Msg { return BackMsg{} }

		case key.Matches(msg, m.keys.MarkRead):
			if m.received != nil && !m.received.IsRead {
				return m, m.action(ActionMarkRead, m.received.ID)
			}
			return m, nil

		case key.Matches(msg, m.keys.Edit):
			if m.sent != nil {
				return m, m.action(ActionEdit, m.sent.ID)
			}
			return m, nil

		case key.Matches(msg, m.keys.Delete):
			if m.sent != nil {
				return m, m.action(ActionDelete, m.sent.ID)
			}
			return m, nil
		}
	}

	// Delegate to viewport for scrolling (j/k, up/down, pgup/pgdn)
	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

func (m Model) action(a Action, id string) tea.Cmd {
	return func() tea.Msg { return ActionMsg{Action: a, ID: id} }
}

// View renders the detail view.
func (m Model) View() string {
	if m.received == nil && m.sent == nil {
		return lipgloss.NewStyle().
			Width(m.width).
			Height(m.height).
			Align(lipgloss.Center, lipgloss.Center).
			Foreground(theme.ColorGray).
			Render("No notification selected")
	}
	return m.viewport.View()
}

// renderContent builds the full detail content string for the viewport.
func (m Model) renderContent() string {
	var (
		title, message, imageURL string
		typ                      model.NotificationType
		rows                     [][2]string
	)

	switch {
	case m.received != nil:
		n := m.received
		title, message, typ, imageURL = n.Title, n.Message, n.Type, n.ImageURL
		rows = append(rows,
			[2]string{"From", n.SenderName},
			[2]string{"Received", formatTime(n)},
		)
	case m.sent != nil:
		n := m.sent
		title, message, typ, imageURL = n.Title, n.Message, n.Type, n.ImageURL
		if !n.CreatedAt.IsZero() {
			rows = append(rows, [2]string{"Sent", n.CreatedAt.Local().Format("2006-01-02 15:04")})
		}
		rows = append(rows, [2]string{"Read by", fmt.Sprintf(
			"%d of %d (%.0f%%)", n.ReadReceivers, n.TotalReceivers, n.ReadPercentage(),
		)})
	default:
		return ""
	}

	if m.imagePath != "" {
		rows = append(rows, [2]string{"Image", m.imagePath})
	} else if imageURL != "" {
		rows = append(rows, [2]string{"Image", imageURL})
	}

	var sections []string

	titleStyle := lipgloss.NewStyle().Bold(true).Foreground(theme.ColorWhite)
	sections = append(sections, titleStyle.Render(title))

	badges := []string{theme.TypeStyle(typ).Render(string(typ))}
	if m.received != nil {
		badges = append(badges, "  ", theme.ReadStyle(m.received.IsRead).Render(theme.ReadLabel(m.received.IsRead)))
	}
	sections = append(sections, lipgloss.JoinHorizontal(lipgloss.Top, badges...), "")

	metaStyle := lipgloss.NewStyle().Foreground(theme.ColorGray).Width(10)
	valStyle := lipgloss.NewStyle().Foreground(theme.ColorWhite)
	for _, r := range rows {
		if r[1] == "" {
			continue
		}
		sections = append(sections, metaStyle.Render(r[0]+":")+valStyle.Render(r[1]))
	}

	sepStyle := lipgloss.NewStyle().Foreground(theme.ColorSubtle)
	separator := sepStyle.Render(strings.Repeat("─", max(min(m.width-4, 80), 0)))
	sections = append(sections, "", separator, "")

	if message == "" {
		message = lipgloss.NewStyle().
			Foreground(theme.ColorGray).
			Italic(true).
			Render("No message")
	} else {
		message = lipgloss.NewStyle().Width(max(m.width-2, 20)).Render(message)
	}
	sections = append(sections, message)

	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

func formatTime(n *model.Notification) string {
	if n.CreatedAt.IsZero() {
		return ""
	}
	return n.CreatedAt.Local().Format("2006-01-02 15:04")
}

// SetNotification shows a received notification. imagePath is the local
// copy of its attachment, if one has been downloaded.
func (m *Model) SetNotification(n model.Notification, imagePath string) {
	m.received = &n
	m.sent = nil
	m.imagePath = imagePath
	m.refresh(true)
}

// SetImagePath attaches the local image copy once it is known.
func (m *Model) SetImagePath(id, path string) {
	if m.received != nil && m.received.ID == id && path != "" {
		m.imagePath = path
		m.refresh(false)
	}
}

// SetSent shows a notification the user authored.
func (m *Model) SetSent(n model.SentNotification) {
	m.sent = &n
	m.received = nil
	m.imagePath = ""
	m.refresh(true)
}

// MarkedRead flips the shown notification to read if it is id.
func (m *Model) MarkedRead(id string) {
	if m.received != nil && m.received.ID == id {
		m.received.IsRead = true
		m.refresh(false)
	}
}

// Showing returns the ID of the shown notification.
func (m Model) Showing() string {
	switch {
	case m.received != nil:
		return m.received.ID
	case m.sent != nil:
		return m.sent.ID
	}
	return ""
}

// Clear forgets the shown notification.
func (m *Model) Clear() {
	m.received = nil
	m.sent = nil
	m.imagePath = ""
	m.viewport.SetContent("")
}

func (m *Model) refresh(top bool) {
	m.viewport.SetContent(m.renderContent())
	if top {
		m.viewport.GotoTop()
	}
}

// SetSize updates the detail view dimensions.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
	m.viewport.Width = width
	m.viewport.Height = height - 2
	if m.received != nil || m.sent != nil {
		m.refresh(false)
	}
}

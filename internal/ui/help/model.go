package help

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/scfet/notification-client/internal/keys"
	"github.com/scfet/notification-client/internal/theme"
	"github.com/scfet/notification-client/internal/ui/command"
)

// Model is the help overlay view.
type Model struct {
	keys   *keys.KeyMap
	help   help.Model
	width  int
	height int
}

// New creates a new help view model.
func New(keys *keys.KeyMap, width, height int) Model {
	h := help.New()
	h.Width = width
	h.ShowAll = true
	return Model{
		keys:   keys,
		help:   h,
		width:  width,
		height: height,
	}
}

// Init returns the initial command.
func (m Model) Init() tea.Cmd {
	return nil
}

// Update handles messages for the help view.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	return m, nil
}

// View renders the key bindings followed by the palette commands.
func (m Model) View() string {
	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(theme.ColorWhite).
		MarginBottom(1)

	content := lipgloss.JoinVertical(lipgloss.Left,
		titleStyle.Render("Keyboard Shortcuts"),
		m.help.View(m.keys),
		"",
		titleStyle.Render("Commands"),
		commandList(),
	)

	return theme.DetailPanelStyle.
		Width(m.width - 4).
		Height(m.height - 4).
		Render(content)
}

func commandList() string {
	nameStyle := lipgloss.NewStyle().Foreground(theme.ColorBlue).Width(12)
	usageStyle := lipgloss.NewStyle().Foreground(theme.ColorGray)

	lines := make([]string, 0, len(command.Commands))
	for _, c := range command.Commands {
		name := ":" + string(c.Name)
		usage := c.Usage
		if len(c.Aliases) > 0 {
			usage = fmt.Sprintf("%s (also %s)", usage, strings.Join(c.Aliases, ", "))
		}
		lines = append(lines, nameStyle.Render(name)+usageStyle.Render(usage))
	}
	return strings.Join(lines, "\n")
}

// SetSize updates the help view dimensions.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
	m.help.Width = width - 4
}

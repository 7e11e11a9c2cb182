package command

import (
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/scfet/notification-client/internal/theme"
)

// Name identifies a palette command.
type Name string

const (
	Inbox   Name = "inbox"
	Sent    Name = "sent"
	Compose Name = "compose"
	Refresh Name = "refresh"
	Cache   Name = "cache"
	Purge   Name = "purge"
	Logout  Name = "logout"
	Quit    Name = "quit"
)

// Spec describes one palette command.
type Spec struct {
	Name    Name
	Aliases []string
	Usage   string
}

// Commands lists every palette command in display order.
var Commands = []Spec{
	{Name: Inbox, Usage: "show received notifications"},
	{Name: Sent, Usage: "show notifications you sent"},
	{Name: Compose, Aliases: []string{"new"}, Usage: "write a notification"},
	{Name: Refresh, Aliases: []string{"r"}, Usage: "reload the current list"},
	{Name: Cache, Usage: "show the image cache size"},
	{Name: Purge, Usage: "delete cached images"},
	{Name: Logout, Usage: "sign out"},
	{Name: Quit, Aliases: []string{"q"}, Usage: "exit"},
}

// Lookup resolves a typed word to a command by name or alias.
func Lookup(word string) (Name, bool) {
	word = strings.ToLower(strings.TrimSpace(word))
	for _, c := range Commands {
		if string(c.Name) == word {
			return c.Name, true
		}
		for _, a := range c.Aliases {
			if a == word {
				return c.Name, true
			}
		}
	}
	return "", false
}

// CommandMsg is emitted when the user executes a command. Known is false
// when the input matched no command.
type CommandMsg struct {
	Name  Name
	Input string
	Known bool
}

// CancelMsg is emitted when the palette is dismissed.
type CancelMsg struct{}

var cancelKey = key.NewBinding(key.WithKeys("esc"))

// Model is the command palette view.
type Model struct {
	input  textinput.Model
	width  int
	height int
}

// New creates a new command palette model.
func New(width, height int) Model {
	ti := textinput.New()
	ti.Placeholder = "type a command..."
	ti.Prompt = ": "
	ti.ShowSuggestions = true
	ti.SetSuggestions(suggestions())
	ti.Focus()
	ti.Width = width - 6

	return Model{
		input:  ti,
		width:  width,
		height: height,
	}
}

func suggestions() []string {
	out := make([]string, len(Commands))
	for i, c := range Commands {
		out[i] = string(c.Name)
	}
	return out
}

// Init returns the initial command.
func (m Model) Init() tea.Cmd {
	return textinput.Blink
}

// Update handles messages for the command palette.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	if msg, ok := msg.(tea.KeyMsg); ok {
		switch {
		case key.Matches(msg, cancelKey):
			m.input.Reset()
			return m, func() tea.Msg { return CancelMsg{} }
		case msg.Type == tea.KeyEnter:
			input := strings.TrimSpace(m.input.Value())
			m.input.Reset()
			if input == "" {
				return m, func() tea.Msg { return CancelMsg{} }
			}
			name, known := Lookup(input)
			return m, func() tea.Msg {
				return CommandMsg{Name: name, Input: input, Known: known}
			}
		}
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// View renders the command palette.
func (m Model) View() string {
	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(theme.ColorWhite).
		MarginBottom(1)

	content := lipgloss.JoinVertical(lipgloss.Left,
		titleStyle.Render("Command Palette"),
		m.input.View(),
	)

	return theme.DetailPanelStyle.
		Width(m.width - 4).
		Render(content)
}

// SetSize updates the command palette dimensions.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
	m.input.Width = width - 6
}

// Focus gives keyboard focus to the text input.
func (m *Model) Focus() tea.Cmd {
	return m.input.Focus()
}

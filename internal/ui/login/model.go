// Package login is the sign-in form.
package login

import (
	"errors"
	"net/mail"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"

	"github.com/scfet/notification-client/internal/theme"
)

// SubmitMsg carries the entered credentials.
type SubmitMsg struct {
	Email    string
	Password string
}

// QuitMsg is dispatched when the form is aborted; there is nothing to go
// back to before signing in.
type QuitMsg struct{}

type formBindings struct {
	email    string
	password string
}

// Model is the sign-in form.
type Model struct {
	form   *huh.Form
	fb     *formBindings
	err    error
	busy   bool
	width  int
	height int
}

// New creates a sign-in form prefilled with email.
func New(email string, width, height int) Model {
	m := Model{
		fb:     &formBindings{email: email},
		width:  width,
		height: height,
	}
	m.form = m.buildForm()
	return m
}

// Init starts the form.
func (m Model) Init() tea.Cmd {
	return m.form.Init()
}

// Restart rebuilds the form, keeping the email, after a failed attempt or
// a sign-out. err is shown above the fields.
func (m *Model) Restart(err error) tea.Cmd {
	m.err = err
	m.busy = false
	m.fb.password = ""
	m.form = m.buildForm()
	return m.form.Init()
}

// SetBusy marks a sign-in as in progress.
func (m *Model) SetBusy(busy bool) { m.busy = busy }

// Update handles messages for the form.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	if m.busy {
		return m, nil
	}

	mdl, cmd := m.form.Update(msg)
	if f, ok := mdl.(*huh.Form); ok {
		m.form = f
	}

	switch m.form.State {
	case huh.StateCompleted:
		m.busy = true
		email, password := strings.TrimSpace(m.fb.email), m.fb.password
		return m, func() tea.Msg { return SubmitMsg{Email: email, Password: password} }
	case huh.StateAborted:
		return m, func() tea.Msg { return QuitMsg{} }
	}
	return m, cmd
}

// View renders the form.
func (m Model) View() string {
	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(theme.ColorWhite).
		MarginBottom(1)

	parts := []string{titleStyle.Render("Sign in")}
	if m.err != nil {
		parts = append(parts, theme.ErrorStyle.Render(m.err.Error()), "")
	}
	if m.busy {
		parts = append(parts, lipgloss.NewStyle().Foreground(theme.ColorGray).Render("Signing in..."))
	} else {
		parts = append(parts, m.form.View())
	}

	return lipgloss.NewStyle().
		Padding(1, 2).
		Render(lipgloss.JoinVertical(lipgloss.Left, parts...))
}

// SetSize updates the form dimensions.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
	m.form = m.form.WithWidth(min(max(width-4, 30), 60))
}

func (m *Model) buildForm() *huh.Form {
	return huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Email").
				Value(&m.fb.email).
				Validate(validateEmail),
			huh.NewInput().
				Title("Password").
				EchoMode(huh.EchoModePassword).
				Value(&m.fb.password).
				Validate(func(s string) error {
					if s == "" {
						return errors.New("password is required")
					}
					return nil
				}),
		),
	).WithWidth(min(max(m.width-4, 30), 60))
}

func validateEmail(s string) error {
	s = strings.TrimSpace(s)
	if s == "" {
		return errors.New("email is required")
	}
	if _, err := mail.ParseAddress(s); err != nil {
		return errors.New("enter a valid email address")
	}
	return nil
}

// Package compose is the form for writing and editing notifications.
package compose

import (
	"errors"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"

	"github.com/scfet/notification-client/internal/api"
	"github.com/scfet/notification-client/internal/compose"
	"github.com/scfet/notification-client/internal/model"
	"github.com/scfet/notification-client/internal/theme"
)

// SubmitMsg is dispatched when the form completes. EditID is set when an
// existing notification is being replaced. Err is set when the picked
// recipients cannot be used, and Draft must not be sent.
type SubmitMsg struct {
	Draft  compose.Draft
	EditID string
	Err    error
}

// CancelMsg is dispatched when the user cancels the form.
type CancelMsg struct{}

// formBindings holds form field values on the heap so that huh's Value()
// pointers remain valid across Bubble Tea model copies.
type formBindings struct {
	title     string
	message   string
	typ       model.NotificationType
	audience  compose.Audience
	groupID   string
	userID    string
	imagePath string
	image     *api.Attachment
}

// Model is the Bubble Tea model for the compose form.
type Model struct {
	form     *huh.Form
	fb       *formBindings
	role     model.Role
	dir      *compose.Directory
	editMode bool
	editID   string
	width    int
	height   int
}

// New creates a new compose form model.
func New(width, height int) Model {
	return Model{
		fb:     &formBindings{},
		width:  width,
		height: height,
	}
}

// StartCreate initializes the form for a new notification. dir supplies
// the group and user pickers.
func (m *Model) StartCreate(role model.Role, dir *compose.Directory) tea.Cmd {
	m.editMode = false
	m.editID = ""
	m.reset(role, dir)
	m.form = m.buildForm()
	return m.form.Init()
}

// StartEdit initializes the form with an existing notification's content.
// Recipients are chosen again.
func (m *Model) StartEdit(role model.Role, dir *compose.Directory, n model.SentNotification) tea.Cmd {
	m.editMode = true
	m.editID = n.ID
	m.reset(role, dir)
	m.fb.title = n.Title
	m.fb.message = n.Message
	m.fb.typ = n.Type
	m.form = m.buildForm()
	return m.form.Init()
}

func (m *Model) reset(role model.Role, dir *compose.Directory) {
	m.role = role
	m.dir = dir
	*m.fb = formBindings{
		typ:      model.NotificationInfo,
		audience: compose.AudienceOptions(role)[0],
	}
}

// Editing reports whether the form replaces an existing notification.
func (m Model) Editing() bool { return m.editMode }

// Update handles messages for the compose form.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	if m.form == nil {
		return m, nil
	}

	mdl, cmd := m.form.Update(msg)
	if f, ok := mdl.(*huh.Form); ok {
		m.form = f
	}

	if m.form.State == huh.StateCompleted {
		m.form = nil
		return m, m.handleSubmit()
	}
	if m.form.State == huh.StateAborted {
		m.form = nil
		return m, func() tea.Msg { return CancelMsg{} }
	}

	return m, cmd
}

// View renders the compose form.
func (m Model) View() string {
	if m.form == nil {
		return ""
	}

	titleText := "New Notification"
	if m.editMode {
		titleText = "Edit Notification"
	}

	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(theme.ColorWhite).
		MarginBottom(1)

	content := titleStyle.Render(titleText) + "\n" + m.form.View()

	return lipgloss.NewStyle().
		Padding(1, 2).
		Render(content)
}

// SetSize updates the form dimensions.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
	if m.form != nil {
		m.form = m.form.WithWidth(m.formWidth()).WithHeight(m.formHeight())
	}
}

func (m *Model) buildForm() *huh.Form {
	return huh.NewForm(
		huh.NewGroup(m.contentFields()...),
		huh.NewGroup(m.audienceField()),
		huh.NewGroup(m.groupField()).
			WithHideFunc(func() bool { return m.fb.audience != compose.AudienceGroup }),
		huh.NewGroup(m.userField()).
			WithHideFunc(func() bool { return m.fb.audience != compose.AudienceSpecific }),
		huh.NewGroup(m.imageField()),
	).WithWidth(m.formWidth()).WithHeight(m.formHeight())
}

func (m *Model) contentFields() []huh.Field {
	typeOpts := make([]huh.Option[model.NotificationType], len(model.NotificationTypes))
	for i, t := range model.NotificationTypes {
		typeOpts[i] = huh.NewOption(string(t), t)
	}

	return []huh.Field{
		huh.NewInput().
			Title("Title").
			Placeholder("What is it about?").
			Value(&m.fb.title).
			Validate(validateRequired("title")),
		huh.NewText().
			Title("Message").
			Value(&m.fb.message).
			Validate(validateRequired("message")),
		huh.NewSelect[model.NotificationType]().
			Title("Type").
			Options(typeOpts...).
			Value(&m.fb.typ),
	}
}

func (m *Model) audienceField() huh.Field {
	audiences := compose.AudienceOptions(m.role)
	opts := make([]huh.Option[compose.Audience], len(audiences))
	for i, a := range audiences {
		opts[i] = huh.NewOption(a.Label(), a)
	}
	return huh.NewSelect[compose.Audience]().
		Title("Send to").
		Options(opts...).
		Value(&m.fb.audience)
}

func (m *Model) groupField() huh.Field {
	var opts []huh.Option[string]
	if m.dir != nil {
		for _, g := range m.dir.Groups {
			opts = append(opts, huh.NewOption(g.Name, g.ID))
		}
	}
	if len(opts) == 0 {
		opts = append(opts, huh.NewOption("No groups available", ""))
	}
	return huh.NewSelect[string]().
		Title("Group").
		Options(opts...).
		Value(&m.fb.groupID).
		Validate(m.validateGroup)
}

func (m *Model) userField() huh.Field {
	var opts []huh.Option[string]
	if m.dir != nil {
		for _, u := range m.dir.Users() {
			opts = append(opts, huh.NewOption(u.FullName()+" <"+u.Email+">", u.UserID))
		}
	}
	if len(opts) == 0 {
		opts = append(opts, huh.NewOption("No users available", ""))
	}
	return huh.NewSelect[string]().
		Title("User").
		Options(opts...).
		Value(&m.fb.userID).
		Validate(func(id string) error {
			if id == "" {
				return compose.ErrNoRecipients
			}
			return nil
		})
}

func (m *Model) imageField() huh.Field {
	return huh.NewInput().
		Title("Image").
		Placeholder("path to an image (optional)").
		Value(&m.fb.imagePath).
		Validate(m.loadImage)
}

func (m *Model) validateGroup(id string) error {
	if id == "" || m.dir == nil {
		return compose.ErrNoRecipients
	}
	g, ok := m.dir.Group(id)
	if !ok {
		return compose.ErrNoRecipients
	}
	if g.StudentCount == 0 {
		return compose.ErrEmptyGroup
	}
	return nil
}

// loadImage reads the attachment while validating so a bad path is
// reported on the field.
func (m *Model) loadImage(path string) error {
	path = strings.TrimSpace(path)
	if path == "" {
		m.fb.image = nil
		return nil
	}
	a, err := compose.ReadImage(path)
	if err != nil {
		var ve *compose.ValidationError
		if errors.As(err, &ve) {
			return ve
		}
		return errors.New("cannot read image")
	}
	m.fb.image = a
	return nil
}

// Draft builds a draft from the current field values. The error is the
// reason the picked audience was refused, if any.
func (m Model) Draft() (compose.Draft, error) {
	sel := compose.NewSelection(m.role)
	err := sel.SetAudience(m.fb.audience)
	if err == nil && m.dir != nil {
		switch m.fb.audience {
		case compose.AudienceGroup:
			if g, ok := m.dir.Group(m.fb.groupID); ok {
				err = sel.SelectGroup(g)
			}
		case compose.AudienceSpecific:
			if u, ok := m.dir.User(m.fb.userID); ok {
				sel.SelectUser(u)
			}
		}
	}
	return compose.Draft{
		Title:     m.fb.title,
		Message:   m.fb.message,
		Type:      m.fb.typ,
		Image:     m.fb.image,
		Selection: sel,
	}, err
}

func (m Model) handleSubmit() tea.Cmd {
	draft, err := m.Draft()
	msg := SubmitMsg{Draft: draft, Err: err}
	if m.editMode {
		msg.EditID = m.editID
	}
	return func() tea.Msg { return msg }
}

func (m Model) formWidth() int {
	return min(max(m.width-4, 40), 100)
}

func (m Model) formHeight() int {
	return max(m.height-4, 10)
}

func validateRequired(fieldName string) func(string) error {
	return func(s string) error {
		if strings.TrimSpace(s) == "" {
			return errors.New(fieldName + " is required")
		}
		return nil
	}
}

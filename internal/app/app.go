package app

import (
	"errors"
	"fmt"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/scfet/notification-client/internal/api"
	"github.com/scfet/notification-client/internal/compose"
	"github.com/scfet/notification-client/internal/keys"
	"github.com/scfet/notification-client/internal/model"
	"github.com/scfet/notification-client/internal/push"
	"github.com/scfet/notification-client/internal/theme"
	"github.com/scfet/notification-client/internal/ui"
	"github.com/scfet/notification-client/internal/ui/command"
	composeview "github.com/scfet/notification-client/internal/ui/compose"
	"github.com/scfet/notification-client/internal/ui/detail"
	helpview "github.com/scfet/notification-client/internal/ui/help"
	"github.com/scfet/notification-client/internal/ui/inbox"
	"github.com/scfet/notification-client/internal/ui/login"
	"github.com/scfet/notification-client/internal/ui/sent"
)

// ViewState represents the current active view in the application.
type ViewState int

const (
	ViewLogin ViewState = iota
	ViewInbox
	ViewSent
	ViewDetail
	ViewCompose
	ViewHelp
	ViewCommand
)

// Model is the root Bubble Tea model that manages view routing, layout
// and the push event loop.
type Model struct {
	currentView  ViewState
	previousView ViewState
	listView     ViewState
	layout       ui.Layout
	svc          *Services
	banner       *Banner
	keys         *keys.KeyMap

	loginView   login.Model
	inboxView   inbox.Model
	sentView    sent.Model
	detail      detail.Model
	composeView composeview.Model
	helpView    helpview.Model
	commandView command.Model

	directory *compose.Directory
	// loadingForm is set while the recipient directory loads.
	loadingForm bool

	bannerText string
	bannerSeq  int
	status     string
	statusErr  bool
	ready      bool
}

// New creates the root model. banner may be nil when alerts go elsewhere.
func New(svc *Services, banner *Banner) Model {
	k := keys.DefaultKeyMap()
	m := Model{
		currentView: ViewLogin,
		listView:    ViewInbox,
		svc:         svc,
		banner:      banner,
		keys:        k,
		loginView:   login.New(svc.Session.Info().Email, 80, 24),
		inboxView:   inbox.New(svc.Inbox, k, svc.Defaults, 80, 24),
		sentView:    sent.New(svc.Outbox, k, svc.Defaults, 80, 24),
		detail:      detail.New(k, 80, 24),
		composeView: composeview.New(80, 24),
		helpView:    helpview.New(k, 80, 24),
		commandView: command.New(80, 24),
	}
	if svc.Session.SignedIn() {
		m.currentView = ViewInbox
	}
	return m
}

// Init starts the long-lived waits and, with a stored session, the feeds.
func (m Model) Init() tea.Cmd {
	cmds := []tea.Cmd{
		waitForEvent(m.svc.Push),
		waitForAlert(m.banner),
		waitUnauthorized(m.svc),
	}
	if m.svc.Session.SignedIn() {
		cmds = append(cmds, m.startSession())
	} else {
		cmds = append(cmds, m.loginView.Init())
	}
	return tea.Batch(cmds...)
}

// Update handles messages and dispatches to the active view.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.layout = ui.NewLayout(msg.Width, msg.Height)
		m.ready = true
		w, h := m.layout.ContentWidth(), m.layout.ContentHeight()
		m.loginView.SetSize(w, h)
		m.inboxView.SetSize(w, h)
		m.sentView.SetSize(w, h)
		m.detail.SetSize(w, h)
		m.composeView.SetSize(w, h)
		m.helpView.SetSize(w, h)
		m.commandView.SetSize(w, h)
		// Forward to active view so huh forms can calculate their layout.
		return m.updateActiveView(msg)

	// === Session ===

	case login.SubmitMsg:
		return m, m.signIn(msg.Email, msg.Password)

	case login.QuitMsg:
		return m, tea.Quit

	case signedInMsg:
		if msg.err != nil {
			return m, m.loginView.Restart(signInError(msg.err))
		}
		m.currentView = ViewInbox
		m.listView = ViewInbox
		m.setStatus("Signed in as "+msg.user.Email, false)
		return m, m.startSession()

	case connectedMsg:
		if msg.err != nil && !errors.Is(msg.err, ErrSignedOut) {
			m.setStatus("Live updates unavailable: "+msg.err.Error(), true)
		}
		return m, nil

	case unauthorizedMsg:
		cmds := []tea.Cmd{waitUnauthorized(m.svc)}
		if m.svc.Session.SignedIn() {
			cmds = append(cmds, m.signOut("Your session expired. Please sign in again."))
		}
		return m, tea.Batch(cmds...)

	case signedOutMsg:
		m.inboxView.Reset()
		m.sentView.Reset()
		m.detail.Clear()
		m.directory = nil
		m.currentView = ViewLogin
		m.listView = ViewInbox
		m.status = ""
		var reason error
		if msg.reason != "" {
			reason = errors.New(msg.reason)
		}
		if msg.err != nil {
			m.svc.Log.WithError(msg.err).Warn("sign-out incomplete")
		}
		return m, m.loginView.Restart(reason)

	// === Push ===

	case pushEventMsg:
		return m.handlePushEvent(msg.ev)

	case alertMsg:
		m.bannerSeq++
		m.bannerText = fmt.Sprintf("%s · %s", msg.alert.Title, msg.alert.Body)
		return m, tea.Batch(waitForAlert(m.banner), clearBannerAfter(m.bannerSeq))

	case clearBannerMsg:
		if msg.seq == m.bannerSeq {
			m.bannerText = ""
		}
		return m, nil

	// === Lists ===

	case inbox.LoadedMsg:
		var cmd tea.Cmd
		m.inboxView, cmd = m.inboxView.Update(msg)
		return m, cmd

	case inbox.MarkedReadMsg:
		var cmd tea.Cmd
		m.inboxView, cmd = m.inboxView.Update(msg)
		if msg.Err != nil {
			m.setStatus("Could not mark as read: "+msg.Err.Error(), true)
		} else {
			m.detail.MarkedRead(msg.ID)
		}
		return m, cmd

	case inbox.OpenMsg:
		m.detail.SetNotification(msg.Notification, "")
		m.previousView = m.currentView
		m.currentView = ViewDetail
		return m, m.loadImagePath(msg.Notification)

	case imagePathMsg:
		m.detail.SetImagePath(msg.id, msg.path)
		return m, nil

	case sent.LoadedMsg:
		var cmd tea.Cmd
		m.sentView, cmd = m.sentView.Update(msg)
		return m, cmd

	case sent.DeletedMsg:
		var cmd tea.Cmd
		m.sentView, cmd = m.sentView.Update(msg)
		if msg.Err != nil {
			m.setStatus(deleteError(msg.Err), true)
		} else {
			m.setStatus("Notification deleted", false)
		}
		return m, cmd

	case sent.OpenMsg:
		m.detail.SetSent(msg.Notification)
		m.previousView = m.currentView
		m.currentView = ViewDetail
		return m, nil

	case sent.EditMsg:
		return m.openCompose(&msg.Notification)

	// === Detail ===

	case detail.BackMsg:
		m.currentView = m.listView
		return m, nil

	case detail.ActionMsg:
		return m.handleDetailAction(msg)

	// === Compose ===

	case directoryLoadedMsg:
		m.loadingForm = false
		if msg.err != nil {
			m.currentView = m.listView
			m.setStatus("Could not load recipients: "+msg.err.Error(), true)
			return m, nil
		}
		m.directory = msg.dir
		role := m.svc.Session.Info().Role
		if msg.edit != nil {
			return m, m.composeView.StartEdit(role, msg.dir, *msg.edit)
		}
		return m, m.composeView.StartCreate(role, msg.dir)

	case composeview.SubmitMsg:
		m.currentView = ViewSent
		m.listView = ViewSent
		if msg.Err != nil {
			m.setStatus(submitError(msg.Err), true)
			return m, nil
		}
		m.setStatus("Sending...", false)
		return m, m.submit(msg.Draft, msg.EditID)

	case composeview.CancelMsg:
		m.currentView = m.listView
		return m, nil

	case submittedMsg:
		if msg.err != nil {
			m.setStatus(submitError(msg.err), true)
			return m, nil
		}
		if msg.edited {
			m.setStatus("Notification updated", false)
		} else {
			m.setStatus("Notification sent", false)
		}
		return m, m.sentView.Refresh()

	// === Command palette ===

	case command.CommandMsg:
		m.currentView = m.previousView
		return m.executeCommand(msg)

	case command.CancelMsg:
		m.currentView = m.previousView
		return m, nil

	case cacheMsg:
		m.setStatus(msg.text, msg.err)
		return m, nil

	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			return m, tea.Quit
		}
		if next, cmd, handled := m.handleGlobalKeys(msg); handled {
			return next, cmd
		}
	}

	// Delegate to active sub-view
	return m.updateActiveView(msg)
}

// handleGlobalKeys processes navigation keys. Views that take text input
// receive every key themselves.
func (m Model) handleGlobalKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd, bool) {
	if m.typing() {
		return m, nil, false
	}

	onList := m.currentView == ViewInbox || m.currentView == ViewSent
	canSend := m.svc.Session.Info().Role.CanSend()

	switch {
	case key.Matches(msg, m.keys.Help):
		if m.currentView == ViewHelp {
			m.currentView = m.previousView
			return m, nil, true
		}
		m.previousView = m.currentView
		m.currentView = ViewHelp
		return m, nil, true

	case key.Matches(msg, m.keys.Command):
		m.previousView = m.currentView
		m.currentView = ViewCommand
		return m, m.commandView.Focus(), true

	case m.currentView == ViewHelp && key.Matches(msg, m.keys.Back):
		m.currentView = m.previousView
		return m, nil, true

	case !onList:
		return m, nil, false

	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit, true

	case key.Matches(msg, m.keys.Inbox):
		m.currentView = ViewInbox
		m.listView = ViewInbox
		return m, nil, true

	case key.Matches(msg, m.keys.Sent):
		if !canSend {
			m.setStatus("Only teachers and administrators send notifications", true)
			return m, nil, true
		}
		m.currentView = ViewSent
		m.listView = ViewSent
		return m, nil, true

	case key.Matches(msg, m.keys.Compose):
		if !canSend {
			m.setStatus("Only teachers and administrators send notifications", true)
			return m, nil, true
		}
		next, cmd := m.openCompose(nil)
		return next, cmd, true

	case key.Matches(msg, m.keys.Logout):
		return m, m.signOut(""), true
	}
	return m, nil, false
}

func (m Model) typing() bool {
	switch m.currentView {
	case ViewLogin, ViewCompose, ViewCommand:
		return true
	}
	return false
}

func (m Model) handlePushEvent(ev push.Event) (tea.Model, tea.Cmd) {
	cmds := []tea.Cmd{waitForEvent(m.svc.Push)}
	if m.svc.Push.Stale(ev) {
		return m, tea.Batch(cmds...)
	}

	changed := m.svc.Inbox.Apply(ev)
	switch ev.Kind {
	case push.EventReceived:
		cmds = append(cmds, m.present(ev.Notification))
	case push.EventReadStateChanged:
		m.detail.MarkedRead(ev.ID)
	case push.EventRemoved:
		if m.currentView == ViewDetail && m.detail.Showing() == ev.ID {
			m.currentView = m.listView
			m.detail.Clear()
			m.setStatus("The notification was removed", false)
		}
	case push.EventStateChanged:
		if errors.Is(ev.Err, push.ErrUnauthorized) && m.svc.Session.SignedIn() {
			cmds = append(cmds, m.signOut("Your session expired. Please sign in again."))
		}
	}
	if changed {
		cmds = append(cmds, m.inboxView.Sync())
	}
	return m, tea.Batch(cmds...)
}

func (m Model) handleDetailAction(msg detail.ActionMsg) (tea.Model, tea.Cmd) {
	switch msg.Action {
	case detail.ActionMarkRead:
		return m, m.inboxView.MarkRead(msg.ID)
	case detail.ActionEdit:
		n, ok := m.svc.Outbox.Find(msg.ID)
		if !ok {
			return m, nil
		}
		return m.openCompose(&n)
	case detail.ActionDelete:
		m.currentView = ViewSent
		m.detail.Clear()
		return m, m.sentView.Delete(msg.ID)
	}
	return m, nil
}

func (m Model) openCompose(edit *model.SentNotification) (tea.Model, tea.Cmd) {
	m.previousView = m.currentView
	m.currentView = ViewCompose
	m.loadingForm = true
	return m, m.loadDirectory(edit)
}

func (m Model) executeCommand(msg command.CommandMsg) (tea.Model, tea.Cmd) {
	if !msg.Known {
		m.setStatus("Unknown command: "+msg.Input, true)
		return m, nil
	}
	signedIn := m.svc.Session.SignedIn()

	switch msg.Name {
	case command.Quit:
		return m, tea.Quit
	case command.Cache:
		return m, m.cacheSize()
	case command.Purge:
		return m, m.purgeCache()
	}

	if !signedIn {
		m.setStatus("Sign in first", true)
		return m, nil
	}
	switch msg.Name {
	case command.Inbox:
		m.currentView, m.listView = ViewInbox, ViewInbox
	case command.Sent:
		m.currentView, m.listView = ViewSent, ViewSent
	case command.Compose:
		return m.openCompose(nil)
	case command.Refresh:
		if m.listView == ViewSent {
			return m, m.sentView.Refresh()
		}
		return m, m.inboxView.Refresh()
	case command.Logout:
		return m, m.signOut("")
	}
	return m, nil
}

// updateActiveView dispatches the message to the currently active view.
func (m Model) updateActiveView(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch m.currentView {
	case ViewLogin:
		m.loginView, cmd = m.loginView.Update(msg)
	case ViewInbox:
		m.inboxView, cmd = m.inboxView.Update(msg)
	case ViewSent:
		m.sentView, cmd = m.sentView.Update(msg)
	case ViewDetail:
		m.detail, cmd = m.detail.Update(msg)
	case ViewCompose:
		m.composeView, cmd = m.composeView.Update(msg)
	case ViewHelp:
		m.helpView, cmd = m.helpView.Update(msg)
	case ViewCommand:
		m.commandView, cmd = m.commandView.Update(msg)
	}

	return m, cmd
}

func (m *Model) setStatus(text string, isErr bool) {
	m.status = text
	m.statusErr = isErr
}

// View renders the full terminal UI using the layout manager.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}

	header := m.layout.RenderHeader(m.headerTitle(), m.connectionStatus())
	banner := m.layout.RenderBanner(m.bannerText)
	status := m.status
	if m.statusErr {
		status = theme.ErrorStyle.Render(status)
	}
	statusBar := m.layout.RenderStatusBar(m.keyHints(), status)

	return m.layout.RenderWithFrame(header, banner, m.renderContent(), statusBar)
}

func (m Model) headerTitle() string {
	title := "SCFET Notifications"
	if !m.svc.Session.SignedIn() {
		return title
	}
	info := m.svc.Session.Info()
	title = fmt.Sprintf("%s · %s", title, info.Name)
	if unread := m.svc.Inbox.UnreadCount(); unread > 0 {
		title = fmt.Sprintf("%s [%d new]", title, unread)
	}
	return title
}

func (m Model) connectionStatus() string {
	state := m.svc.Inbox.ChannelState()
	return theme.ConnectionStyle(state).Render("● " + state.String())
}

// renderContent returns the rendered string for the current active view.
func (m Model) renderContent() string {
	switch m.currentView {
	case ViewLogin:
		return m.loginView.View()
	case ViewInbox:
		return m.inboxView.View()
	case ViewSent:
		return m.sentView.View()
	case ViewDetail:
		return m.detail.View()
	case ViewCompose:
		if m.loadingForm {
			return theme.DimmedStyle.Render("Loading recipients...")
		}
		return m.composeView.View()
	case ViewHelp:
		return m.helpView.View()
	case ViewCommand:
		return m.commandView.View()
	default:
		return ""
	}
}

// keyHints returns keyboard shortcut hints for the status bar.
func (m Model) keyHints() string {
	switch m.currentView {
	case ViewLogin:
		return "tab next | enter sign in | ctrl+c quit"
	case ViewHelp:
		return "? close help | esc back"
	case ViewCommand:
		return "enter execute | tab complete | esc back"
	case ViewDetail:
		return "esc back | space mark read | e edit | x delete | j/k scroll"
	case ViewCompose:
		return "enter next | shift+tab back | esc cancel"
	case ViewSent:
		return m.sentView.FilterSummary() + " | e edit | x delete | m more | ? help"
	default:
		return m.inboxView.FilterSummary() + " | space read | r refresh | ? help"
	}
}

func signInError(err error) error {
	switch {
	case api.IsAuthError(err):
		return errors.New("invalid email or password")
	case api.IsTransport(err):
		return errors.New("cannot reach the server")
	default:
		return err
	}
}

func submitError(err error) string {
	var ve *compose.ValidationError
	switch {
	case errors.As(err, &ve):
		return ve.Error()
	case errors.Is(err, compose.ErrNoRecipients), errors.Is(err, compose.ErrEmptyGroup):
		return err.Error()
	case api.IsRejected(err):
		return "The server rejected the notification: " + err.Error()
	default:
		return "Sending failed: " + err.Error()
	}
}

func deleteError(err error) string {
	if api.IsRejected(err) {
		return "You cannot delete this notification"
	}
	return "Delete failed: " + err.Error()
}

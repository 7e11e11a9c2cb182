package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/scfet/notification-client/internal/alert"
	"github.com/scfet/notification-client/internal/compose"
	"github.com/scfet/notification-client/internal/model"
	"github.com/scfet/notification-client/internal/push"
	"github.com/scfet/notification-client/internal/store"
)

// requestTimeout bounds commands that talk to the backend.
const requestTimeout = 30 * time.Second

type signedInMsg struct {
	user model.User
	err  error
}

type signedOutMsg struct {
	reason string
	err    error
}

type connectedMsg struct {
	err error
}

type unauthorizedMsg struct{}

type pushEventMsg struct {
	ev push.Event
}

type imagePathMsg struct {
	id   string
	path string
}

type directoryLoadedMsg struct {
	dir  *compose.Directory
	edit *model.SentNotification
	err  error
}

type submittedMsg struct {
	edited bool
	err    error
}

type cacheMsg struct {
	text string
	err  bool
}

// waitForEvent returns a tea.Cmd that blocks on the channel's next event.
// It must be re-issued after every pushEventMsg.
func waitForEvent(c *push.Channel) tea.Cmd {
	return func() tea.Msg {
		return pushEventMsg{ev: <-c.Events()}
	}
}

func waitUnauthorized(s *Services) tea.Cmd {
	return func() tea.Msg {
		<-s.Unauthorized()
		return unauthorizedMsg{}
	}
}

func (m Model) signIn(email, password string) tea.Cmd {
	svc := m.svc
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		u, err := svc.SignIn(ctx, email, password)
		return signedInMsg{user: u, err: err}
	}
}

// startSession loads the lists and opens the push channel.
func (m Model) startSession() tea.Cmd {
	cmds := []tea.Cmd{m.inboxView.Start(), m.connect()}
	if m.svc.Session.Info().Role.CanSend() {
		cmds = append(cmds, m.sentView.Start())
	}
	return tea.Batch(cmds...)
}

func (m Model) connect() tea.Cmd {
	svc := m.svc
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		return connectedMsg{err: svc.Connect(ctx)}
	}
}

func (m Model) signOut(reason string) tea.Cmd {
	svc := m.svc
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		return signedOutMsg{reason: reason, err: svc.SignOut(ctx)}
	}
}

// present raises the alert independently of the inbox update.
func (m Model) present(n model.Notification) tea.Cmd {
	svc := m.svc
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		svc.Present(ctx, n)
		return nil
	}
}

func (m Model) loadImagePath(n model.Notification) tea.Cmd {
	st := m.svc.Store
	if st == nil || !n.HasImage() {
		return nil
	}
	return func() tea.Msg {
		img, err := st.ImageFor(context.Background(), n.ID)
		if err != nil {
			if !errors.Is(err, store.ErrNotFound) {
				m.svc.Log.WithError(err).Debug("image lookup failed")
			}
			return nil
		}
		return imagePathMsg{id: n.ID, path: img.Path}
	}
}

func (m Model) loadDirectory(edit *model.SentNotification) tea.Cmd {
	svc := m.svc
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		dir, err := svc.Directory(ctx)
		return directoryLoadedMsg{dir: dir, edit: edit, err: err}
	}
}

func (m Model) submit(d compose.Draft, editID string) tea.Cmd {
	svc := m.svc
	dir := m.directory
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		return submittedMsg{edited: editID != "", err: svc.Submit(ctx, d, dir, editID)}
	}
}

func (m Model) cacheSize() tea.Cmd {
	p := m.svc.Presenter
	if p == nil {
		return nil
	}
	return func() tea.Msg {
		size, err := p.CacheSize()
		if err != nil {
			return cacheMsg{text: "Cache size unavailable: " + err.Error(), err: true}
		}
		return cacheMsg{text: "Image cache: " + alert.FormatSize(size)}
	}
}

func (m Model) purgeCache() tea.Cmd {
	p := m.svc.Presenter
	if p == nil {
		return nil
	}
	return func() tea.Msg {
		n, err := p.PurgeCache(context.Background())
		if err != nil {
			return cacheMsg{text: "Purge incomplete: " + err.Error(), err: true}
		}
		return cacheMsg{text: fmt.Sprintf("Removed %d cached images", n)}
	}
}

package app

import (
	"errors"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scfet/notification-client/internal/alert"
	"github.com/scfet/notification-client/internal/compose"
	"github.com/scfet/notification-client/internal/credential"
	"github.com/scfet/notification-client/internal/model"
	"github.com/scfet/notification-client/internal/push"
	"github.com/scfet/notification-client/internal/testutil"
	"github.com/scfet/notification-client/internal/ui/command"
	composeview "github.com/scfet/notification-client/internal/ui/compose"
	"github.com/scfet/notification-client/internal/ui/detail"
	"github.com/scfet/notification-client/internal/ui/inbox"
)

func update(t *testing.T, m Model, msg tea.Msg) Model {
	t.Helper()
	next, _ := m.Update(msg)
	out, ok := next.(Model)
	require.True(t, ok)
	return out
}

func keyPress(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func TestNewStartsAtLogin(t *testing.T) {
	b := testutil.NewBackend(t, testToken)
	m := New(newTestServices(t, b, credential.NewMemory()), nil)
	assert.Equal(t, ViewLogin, m.currentView)
}

func TestNewWithSessionStartsAtInbox(t *testing.T) {
	b := testutil.NewBackend(t, testToken)
	m := New(newTestServices(t, b, signedIn(t, testToken)), nil)
	assert.Equal(t, ViewInbox, m.currentView)
}

func TestSignedInMsg(t *testing.T) {
	b := testutil.NewBackend(t, testToken)
	m := New(newTestServices(t, b, credential.NewMemory()), nil)

	m = update(t, m, signedInMsg{err: errors.New("boom")})
	assert.Equal(t, ViewLogin, m.currentView)

	m = update(t, m, signedInMsg{user: model.User{Email: "me@school.ru"}})
	assert.Equal(t, ViewInbox, m.currentView)
	assert.Contains(t, m.status, "me@school.ru")
}

func TestSignedOutMsgReturnsToLogin(t *testing.T) {
	b := testutil.NewBackend(t, testToken)
	m := New(newTestServices(t, b, signedIn(t, testToken)), nil)

	m = update(t, m, signedOutMsg{reason: "Your session expired. Please sign in again."})
	assert.Equal(t, ViewLogin, m.currentView)
	assert.Equal(t, ViewInbox, m.listView)
}

func TestStudentCannotOpenSent(t *testing.T) {
	b := testutil.NewBackend(t, testToken)
	m := New(newTestServices(t, b, signedInAs(t, testToken, model.RoleStudent)), nil)

	m = update(t, m, keyPress("2"))
	assert.Equal(t, ViewInbox, m.currentView)
	assert.True(t, m.statusErr)
}

func TestHelpToggle(t *testing.T) {
	b := testutil.NewBackend(t, testToken)
	m := New(newTestServices(t, b, signedIn(t, testToken)), nil)

	m = update(t, m, keyPress("?"))
	assert.Equal(t, ViewHelp, m.currentView)
	m = update(t, m, keyPress("?"))
	assert.Equal(t, ViewInbox, m.currentView)
}

func TestRemovedEventClosesDetail(t *testing.T) {
	b := testutil.NewBackend(t, testToken)
	m := New(newTestServices(t, b, signedIn(t, testToken)), nil)
	n := testutil.Notifications(1)[0]

	m = update(t, m, inbox.OpenMsg{Notification: n})
	require.Equal(t, ViewDetail, m.currentView)

	m = update(t, m, pushEventMsg{ev: push.Event{Kind: push.EventRemoved, ID: "other"}})
	assert.Equal(t, ViewDetail, m.currentView)

	m = update(t, m, pushEventMsg{ev: push.Event{Kind: push.EventRemoved, ID: n.ID}})
	assert.Equal(t, ViewInbox, m.currentView)
	assert.Empty(t, m.detail.Showing())
}

func TestStalePushEventIgnored(t *testing.T) {
	b := testutil.NewBackend(t, testToken)
	m := New(newTestServices(t, b, signedIn(t, testToken)), nil)
	n := testutil.Notifications(1)[0]

	m = update(t, m, pushEventMsg{ev: push.Event{Kind: push.EventReceived, Notification: n, Generation: 99}})
	assert.Empty(t, m.svc.Inbox.Items())

	m = update(t, m, pushEventMsg{ev: push.Event{Kind: push.EventReceived, Notification: n}})
	assert.Len(t, m.svc.Inbox.Items(), 1)
	assert.Equal(t, 1, m.svc.Inbox.UnreadCount())
}

func TestDetailBackReturnsToList(t *testing.T) {
	b := testutil.NewBackend(t, testToken)
	m := New(newTestServices(t, b, signedIn(t, testToken)), nil)

	m = update(t, m, inbox.OpenMsg{Notification: testutil.Notifications(1)[0]})
	m = update(t, m, detail.BackMsg{})
	assert.Equal(t, ViewInbox, m.currentView)
}

func TestUnknownCommand(t *testing.T) {
	b := testutil.NewBackend(t, testToken)
	m := New(newTestServices(t, b, signedIn(t, testToken)), nil)

	m = update(t, m, keyPress(":"))
	require.Equal(t, ViewCommand, m.currentView)

	m = update(t, m, command.CommandMsg{Input: "frobnicate"})
	assert.Equal(t, ViewInbox, m.currentView)
	assert.Contains(t, m.status, "frobnicate")
	assert.True(t, m.statusErr)
}

func TestBannerShowsAndClears(t *testing.T) {
	b := testutil.NewBackend(t, testToken)
	banner := NewBanner()
	m := New(newTestServices(t, b, signedIn(t, testToken)), banner)

	m = update(t, m, alertMsg{alert: alert.Alert{Title: alert.Title, Body: "Dean's office: Notice 1"}})
	assert.Contains(t, m.bannerText, "Notice 1")

	m = update(t, m, clearBannerMsg{seq: m.bannerSeq - 1})
	assert.NotEmpty(t, m.bannerText)
	m = update(t, m, clearBannerMsg{seq: m.bannerSeq})
	assert.Empty(t, m.bannerText)
}

func TestSubmitWithRefusedRecipientsIsNotSent(t *testing.T) {
	b := testutil.NewBackend(t, testToken)
	m := New(newTestServices(t, b, signedIn(t, testToken)), nil)

	next, cmd := m.Update(composeview.SubmitMsg{Err: compose.ErrEmptyGroup})
	m = next.(Model)
	assert.Nil(t, cmd)
	assert.True(t, m.statusErr)
	assert.Equal(t, compose.ErrEmptyGroup.Error(), m.status)
	assert.Equal(t, ViewSent, m.currentView)
}

package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scfet/notification-client/internal/alert"
	"github.com/scfet/notification-client/internal/app"
	"github.com/scfet/notification-client/internal/credential"
	"github.com/scfet/notification-client/internal/logging"
	"github.com/scfet/notification-client/internal/model"
	"github.com/scfet/notification-client/internal/session"
	"github.com/scfet/notification-client/internal/store"
	"github.com/scfet/notification-client/internal/testutil"
)

const testToken = "tok-123"

// harness runs commands against a fake backend. The credential store and
// database outlive single invocations the way the keyring and the SQLite
// file do.
type harness struct {
	t       *testing.T
	backend *testutil.Backend
	creds   *credential.Memory
	store   *store.SQLiteStore
	cfg     *model.AppConfig
	alerts  *alertSink
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	b := testutil.NewBackend(t, testToken)
	return &harness{
		t:       t,
		backend: b,
		creds:   credential.NewMemory(),
		store:   testutil.NewTestStore(t),
		alerts:  &alertSink{},
		cfg: &model.AppConfig{
			API:         model.APIConfig{BaseURL: b.APIURL(), TimeoutSec: 5},
			Push:        model.PushConfig{HubURL: b.HubURL(), ReconnectDelaysMs: []int{10, 10}},
			Display:     model.DisplayConfig{PageSize: 5},
			Cache:       model.CacheConfig{Dir: t.TempDir()},
			Credentials: model.CredentialsConfig{Backend: "memory"},
		},
	}
}

func (h *harness) factory(_ *RootOptions, extra alert.Notifier) (*app.Services, func(), error) {
	notifier := alert.Multi{h.alerts}
	if extra != nil {
		notifier = append(notifier, extra)
	}
	svc, err := app.NewServices(app.Deps{
		Config:      h.cfg,
		Credentials: h.creds,
		Store:       h.store,
		Notifier:    notifier,
		Log:         logging.Discard(),
	})
	if err != nil {
		return nil, nil, err
	}
	// The test store closes itself.
	return svc, func() {}, nil
}

func (h *harness) signIn() {
	h.t.Helper()
	sess := session.New(h.creds)
	require.NoError(h.t, sess.Login(session.Info{
		Token: testToken, UserID: "u-me", Email: "me@school.ru", Name: "Olga Smirnova", Role: model.RoleTeacher,
	}))
}

func (h *harness) run(args ...string) (string, error) {
	out := &syncBuffer{}
	err := h.runTo(context.Background(), out, args...)
	return out.String(), err
}

func (h *harness) runTo(ctx context.Context, out *syncBuffer, args ...string) error {
	cmd := NewRootCommand(h.factory)
	cmd.SetOut(out)
	cmd.SetErr(out)
	cmd.SetArgs(args)
	return cmd.ExecuteContext(ctx)
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

type alertSink struct {
	mu     sync.Mutex
	alerts []alert.Alert
}

func (s *alertSink) Notify(_ context.Context, a alert.Alert) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.alerts = append(s.alerts, a)
	return nil
}

func (s *alertSink) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.alerts)
}

func golden(t *testing.T) *goldie.Goldie {
	return goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
}

func TestLogin(t *testing.T) {
	h := newHarness(t)

	out, err := h.run("login", "--email", "me@school.ru", "--password", "secret")
	require.NoError(t, err)
	assert.Equal(t, "Signed in as Olga Smirnova <me@school.ru> (Teacher)\n", out)

	token, err := h.creds.Get(session.KeyToken)
	require.NoError(t, err)
	assert.Equal(t, testToken, token)
}

func TestLoginRefused(t *testing.T) {
	h := newHarness(t)

	_, err := h.run("login", "--email", "me@school.ru", "--password", "wrong")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	sess := session.New(h.creds)
	require.NoError(t, sess.Load())
	assert.False(t, sess.SignedIn())
}

func TestLogout(t *testing.T) {
	h := newHarness(t)
	h.signIn()

	out, err := h.run("logout")
	require.NoError(t, err)
	assert.Equal(t, "Signed out\n", out)

	sess := session.New(h.creds)
	require.NoError(t, sess.Load())
	assert.False(t, sess.SignedIn())
}

func TestCommandsRequireSession(t *testing.T) {
	for _, args := range [][]string{{"inbox"}, {"sent"}, {"send", "--title", "x", "--message", "y"}, {"watch"}} {
		t.Run(args[0], func(t *testing.T) {
			h := newHarness(t)
			_, err := h.run(args...)
			require.Error(t, err)
			assert.Equal(t, ExitCommandError, GetExitCode(err))
			assert.Contains(t, err.Error(), "not signed in")
		})
	}
}

func inboxFixture() []model.Notification {
	ns := testutil.Notifications(3)
	for i := range ns {
		ns[i].ImageURL = "https://files.example/" + ns[i].ID + ".jpg"
	}
	ns[1].IsRead = true
	return ns
}

func TestInboxText(t *testing.T) {
	h := newHarness(t)
	h.signIn()
	h.backend.SetInbox(inboxFixture())

	out, err := h.run("inbox")
	require.NoError(t, err)
	golden(t).Assert(t, "inbox", []byte(out))
}

func TestInboxJSON(t *testing.T) {
	h := newHarness(t)
	h.signIn()
	h.backend.SetInbox(inboxFixture())

	out, err := h.run("--format", "json", "inbox")
	require.NoError(t, err)

	var resp struct {
		Status string      `json:"status"`
		Data   inboxResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, 3, resp.Data.Total)
	assert.Equal(t, 2, resp.Data.Unread)
	require.Len(t, resp.Data.Notifications, 3)
	assert.Equal(t, "n1", resp.Data.Notifications[0].ID)
}

func TestInboxPagination(t *testing.T) {
	h := newHarness(t)
	h.signIn()
	h.backend.SetInbox(testutil.Notifications(12))

	out, err := h.run("inbox")
	require.NoError(t, err)
	assert.Contains(t, out, "Inbox: 5 shown of 12, 12 unread")

	out, err = h.run("inbox", "--all")
	require.NoError(t, err)
	assert.Contains(t, out, "Inbox: 12 shown of 12, 12 unread")
	assert.Len(t, h.backend.RequestsTo("my"), 1+3)
}

func TestInboxFilterFlags(t *testing.T) {
	h := newHarness(t)
	h.signIn()
	h.backend.SetInbox(testutil.Notifications(2))

	_, err := h.run("inbox", "--page-size", "10", "--sort", "title", "--order", "asc", "--range", "today")
	require.NoError(t, err)

	reqs := h.backend.RequestsTo("my")
	require.Len(t, reqs, 1)
	q := reqs[0].Query
	assert.Equal(t, []string{"10"}, q["pageSize"])
	assert.Equal(t, []string{"Title"}, q["sortBy"])
	assert.Equal(t, []string{"Ascending"}, q["sortOrder"])
	assert.NotEmpty(t, q["startDate"])
	assert.NotEmpty(t, q["endDate"])
}

func TestInboxRejectsBadFlags(t *testing.T) {
	tests := map[string][]string{
		"page size": {"inbox", "--page-size", "7"},
		"sort":      {"inbox", "--sort", "sender"},
		"order":     {"inbox", "--order", "up"},
		"range":     {"inbox", "--range", "custom"},
	}
	for name, args := range tests {
		t.Run(name, func(t *testing.T) {
			h := newHarness(t)
			h.signIn()
			_, err := h.run(args...)
			require.Error(t, err)
			assert.Equal(t, ExitCommandError, GetExitCode(err))
			assert.Empty(t, h.backend.RequestsTo("my"))
		})
	}
}

func TestInboxMarkRead(t *testing.T) {
	h := newHarness(t)
	h.signIn()
	h.backend.SetInbox(testutil.Notifications(2))

	out, err := h.run("inbox", "--mark-read", "n2")
	require.NoError(t, err)
	assert.Contains(t, out, "1 unread")
	require.Len(t, h.backend.RequestsTo("mark"), 1)
	assert.True(t, h.backend.Inbox()[1].IsRead)

	_, err = h.run("inbox", "--mark-read", "n404")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
}

func TestInboxExpiredToken(t *testing.T) {
	h := newHarness(t)
	h.signIn()
	h.backend.SetToken("rotated")

	_, err := h.run("inbox")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
}

func TestSentText(t *testing.T) {
	h := newHarness(t)
	h.signIn()
	h.backend.SetSent(testutil.SentNotifications(2))

	out, err := h.run("sent")
	require.NoError(t, err)
	golden(t).Assert(t, "sent", []byte(out))
}

func TestSentDelete(t *testing.T) {
	h := newHarness(t)
	h.signIn()
	h.backend.SetSent(testutil.SentNotifications(2))

	out, err := h.run("sent", "--delete", "s1")
	require.NoError(t, err)
	assert.Equal(t, "Deleted s1\n", out)
	require.Len(t, h.backend.RequestsTo("remove"), 1)

	_, err = h.run("sent", "--delete", "s1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no such notification")
}

func TestSentDeleteForbidden(t *testing.T) {
	h := newHarness(t)
	h.signIn()
	h.backend.SetSent(testutil.SentNotifications(1))
	h.backend.Fail("remove", http.StatusForbidden)

	_, err := h.run("sent", "--delete", "s1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "delete refused")
}

func TestStudentCannotSend(t *testing.T) {
	h := newHarness(t)
	sess := session.New(h.creds)
	require.NoError(t, sess.Login(session.Info{Token: testToken, UserID: "u-s", Role: model.RoleStudent}))

	_, err := h.run("sent")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Empty(t, h.backend.RequestsTo("sent"))
}

func directoryFixture(b *testutil.Backend) {
	b.SetGroups([]model.Group{
		{ID: "g-1", Name: "IT-21", StudentCount: 2},
		{ID: "g-2", Name: "Empty", StudentCount: 0},
	})
	b.SetUsers("students", []model.User{
		{UserID: "st-1", Email: "a@school.ru", FirstName: "Anna", LastName: "Petrova", Role: model.RoleStudent},
		{UserID: "st-2", Email: "b@school.ru", FirstName: "Boris", LastName: "Ivanov", Role: model.RoleStudent},
	})
	b.SetUsers("teachers", []model.User{
		{UserID: "u-me", Email: "me@school.ru", FirstName: "Olga", LastName: "Smirnova", Role: model.RoleTeacher},
	})
}

func TestSendToStudents(t *testing.T) {
	h := newHarness(t)
	h.signIn()
	directoryFixture(h.backend)

	out, err := h.run("send", "--title", " Exam moved ", "--message", "Room 204", "--type", "Urgent", "--to", "students")
	require.NoError(t, err)
	assert.Equal(t, "Sent \"Exam moved\" to students\n", out)

	reqs := h.backend.RequestsTo("send")
	require.Len(t, reqs, 1)
	form := reqs[0].Form
	assert.Equal(t, []string{"Exam moved"}, form["Title"])
	assert.Equal(t, []string{"Urgent"}, form["Type"])
	assert.ElementsMatch(t, []string{"st-1", "st-2"}, form["TargetUserIds"])
}

func TestSendToGroupWithImage(t *testing.T) {
	h := newHarness(t)
	h.signIn()
	directoryFixture(h.backend)

	img := filepath.Join(t.TempDir(), "poster.jpg")
	require.NoError(t, os.WriteFile(img, testutil.FakeJPEG, 0o600))

	out, err := h.run("send", "--title", "Trip", "--message", "Bus at 8", "--to", "group", "--group", "g-1", "--image", img)
	require.NoError(t, err)
	assert.Equal(t, "Sent \"Trip\" to group IT-21\n", out)

	reqs := h.backend.RequestsTo("send")
	require.Len(t, reqs, 1)
	assert.Equal(t, []string{"g-1"}, reqs[0].Form["TargetGroupId"])
	assert.Equal(t, testutil.FakeJPEG, reqs[0].Files["Image"])
}

func TestSendValidation(t *testing.T) {
	tests := map[string][]string{
		"blank title":    {"send", "--title", "  ", "--message", "m"},
		"unknown group":  {"send", "--title", "t", "--message", "m", "--to", "group", "--group", "g-9"},
		"empty group":    {"send", "--title", "t", "--message", "m", "--to", "group", "--group", "g-2"},
		"unknown user":   {"send", "--title", "t", "--message", "m", "--to", "specific", "--user", "nobody"},
		"admins refused": {"send", "--title", "t", "--message", "m", "--to", "administrators"},
		"missing image":  {"send", "--title", "t", "--message", "m", "--image", "/does/not/exist.png"},
	}
	for name, args := range tests {
		t.Run(name, func(t *testing.T) {
			h := newHarness(t)
			h.signIn()
			directoryFixture(h.backend)

			_, err := h.run(args...)
			require.Error(t, err)
			assert.Equal(t, ExitCommandError, GetExitCode(err))
			assert.Empty(t, h.backend.RequestsTo("send"))
		})
	}
}

func TestSendEdit(t *testing.T) {
	h := newHarness(t)
	h.signIn()
	directoryFixture(h.backend)

	out, err := h.run("send", "--edit", "s3", "--title", "Fixed", "--message", "m", "--to", "specific", "--user", "st-2")
	require.NoError(t, err)
	assert.Equal(t, "Updated s3\n", out)

	reqs := h.backend.RequestsTo("update")
	require.Len(t, reqs, 1)
	assert.Equal(t, "/api/notifications/s3", reqs[0].Path)
	assert.Equal(t, []string{"st-2"}, reqs[0].Form["TargetUserIds"])
	assert.Empty(t, h.backend.RequestsTo("send"))
}

func TestSendListRecipients(t *testing.T) {
	h := newHarness(t)
	h.signIn()
	directoryFixture(h.backend)

	out, err := h.run("send", "--list-recipients")
	require.NoError(t, err)
	assert.Contains(t, out, "IT-21")
	assert.Contains(t, out, "Anna Petrova")
	assert.NotContains(t, out, "me@school.ru")
}

func TestCache(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, os.WriteFile(filepath.Join(h.cfg.Cache.Dir, "notification_img_n1.jpg"), make([]byte, 2048), 0o600))

	out, err := h.run("cache", "size")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "Image cache: 2.0 KiB in "), out)

	out, err = h.run("cache", "purge")
	require.NoError(t, err)
	assert.Equal(t, "Removed 1 cached images\n", out)

	entries, err := os.ReadDir(h.cfg.Cache.Dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestWatchPrintsPushedNotifications(t *testing.T) {
	h := newHarness(t)
	h.signIn()
	h.backend.SetInbox(testutil.Notifications(1))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	out := &syncBuffer{}
	done := make(chan error, 1)
	go func() { done <- h.runTo(ctx, out, "watch", "--count", "1", "--bell=false") }()

	require.True(t, h.backend.Hub.WaitConnected(5*time.Second))
	h.backend.Hub.Send("NotificationRead", "n1")
	h.backend.Hub.Send("ReceiveNotification", model.Notification{
		ID: "n9", Title: "Fire drill", Message: "At noon", Type: model.NotificationUrgent,
		SenderName: "Dean's office", CreatedAt: time.Date(2024, 3, 2, 9, 0, 0, 0, time.UTC),
	})

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-ctx.Done():
		t.Fatal("watch did not return after --count notifications")
	}

	text := out.String()
	assert.True(t, strings.HasPrefix(text, "1 unread\n"), text)
	assert.Contains(t, text, "read n1\n")
	assert.Contains(t, text, "received n9 [Urgent] Dean's office: Fire drill\n")
	assert.Equal(t, 1, h.alerts.Len())
}

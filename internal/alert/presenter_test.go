package alert

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scfet/notification-client/internal/model"
	"github.com/scfet/notification-client/internal/testutil"
)

type captured struct {
	mu     sync.Mutex
	alerts []Alert
	fail   error
}

func (c *captured) Notify(_ context.Context, a Alert) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fail != nil {
		return c.fail
	}
	c.alerts = append(c.alerts, a)
	return nil
}

func newPresenter(t *testing.T) (*Presenter, *captured, *testutil.Backend) {
	t.Helper()
	b := testutil.NewBackend(t, "tok")
	sink := &captured{}
	p := NewPresenter(testutil.NewTestStore(t), t.TempDir(), sink,
		WithClock(func() time.Time { return time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC) }))
	return p, sink, b
}

func TestPresentBuildsAlert(t *testing.T) {
	p, sink, _ := newPresenter(t)

	shown := p.Present(context.Background(), model.Notification{
		ID: "n1", Title: "Exam", Message: "Room 204", SenderName: "Dean's office", Type: model.NotificationUrgent,
	})
	require.True(t, shown)
	require.Len(t, sink.alerts, 1)
	a := sink.alerts[0]
	assert.Equal(t, "New notification", a.Title)
	assert.Equal(t, "From Dean's office: Room 204", a.Body)
	assert.Equal(t, model.NotificationUrgent, a.Type)
	assert.Empty(t, a.ImagePath)
}

func TestPresentDownloadsImage(t *testing.T) {
	p, sink, b := newPresenter(t)
	ctx := context.Background()
	n := model.Notification{ID: "n1", Message: "see plan", ImageURL: b.FileURL("plan.jpeg")}

	require.True(t, p.Present(ctx, n))
	path := sink.alerts[0].ImagePath
	require.NotEmpty(t, path)
	assert.Equal(t, p.Dir(), filepath.Dir(path))
	assert.True(t, strings.HasPrefix(filepath.Base(path), "notification_img_"))
	assert.Equal(t, ".jpg", filepath.Ext(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, testutil.FakeJPEG, data)

	cached, err := p.store.ImageFor(ctx, "n1")
	require.NoError(t, err)
	assert.Equal(t, path, cached.Path)
	assert.EqualValues(t, len(testutil.FakeJPEG), cached.SizeBytes)
}

func TestPresentIgnoresImageFailure(t *testing.T) {
	p, sink, b := newPresenter(t)

	require.True(t, p.Present(context.Background(), model.Notification{ID: "n1", ImageURL: b.FileURL("missing.png")}))
	require.Len(t, sink.alerts, 1)
	assert.Empty(t, sink.alerts[0].ImagePath)

	size, err := p.CacheSize()
	require.NoError(t, err)
	assert.Zero(t, size)
}

func TestPresentOncePerNotification(t *testing.T) {
	p, sink, _ := newPresenter(t)
	ctx := context.Background()
	n := model.Notification{ID: "n1", Title: "Exam"}

	assert.True(t, p.Present(ctx, n))
	assert.False(t, p.Present(ctx, n))
	assert.True(t, p.Present(ctx, model.Notification{ID: "n2"}))
	assert.Len(t, sink.alerts, 2)
}

func TestPresentReportsNotifierFailure(t *testing.T) {
	p, sink, _ := newPresenter(t)
	sink.fail = errors.New("no display")

	assert.False(t, p.Present(context.Background(), model.Notification{ID: "n1"}))
}

func TestPresentRetriesAfterNotifierFailure(t *testing.T) {
	p, sink, _ := newPresenter(t)
	ctx := context.Background()
	n := model.Notification{ID: "n1", Title: "Exam"}

	sink.fail = errors.New("no display")
	assert.False(t, p.Present(ctx, n))

	sink.fail = nil
	assert.True(t, p.Present(ctx, n))
	assert.False(t, p.Present(ctx, n))
	assert.Len(t, sink.alerts, 1)
}

func TestCacheSizeAndPurge(t *testing.T) {
	p, _, b := newPresenter(t)
	ctx := context.Background()

	size, err := p.CacheSize()
	require.NoError(t, err)
	assert.Zero(t, size)

	require.True(t, p.Present(ctx, model.Notification{ID: "n1", ImageURL: b.FileURL("a.png")}))
	require.True(t, p.Present(ctx, model.Notification{ID: "n2", ImageURL: b.FileURL("b")}))
	require.NoError(t, os.WriteFile(filepath.Join(p.Dir(), "keep.txt"), []byte("x"), 0o644))

	size, err = p.CacheSize()
	require.NoError(t, err)
	assert.EqualValues(t, 2*len(testutil.FakeJPEG), size)

	removed, err := p.PurgeCache(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, removed)

	imgs, err := p.store.CachedImages(ctx)
	require.NoError(t, err)
	assert.Empty(t, imgs)
	assert.FileExists(t, filepath.Join(p.Dir(), "keep.txt"))
}

func TestPurgeMissingDir(t *testing.T) {
	p := NewPresenter(testutil.NewTestStore(t), filepath.Join(t.TempDir(), "absent"), &captured{})
	removed, err := p.PurgeCache(context.Background())
	require.NoError(t, err)
	assert.Zero(t, removed)
}

func TestExtension(t *testing.T) {
	assert.Equal(t, ".png", extension("http://h/x/a.PNG?v=1", ""))
	assert.Equal(t, ".jpg", extension("http://h/x/a.jpeg", ""))
	assert.Equal(t, ".webp", extension("http://h/x/a", "image/webp; q=1"))
	assert.Equal(t, ".jpg", extension("http://h/x/a", "application/octet-stream"))
}

func TestFormatSize(t *testing.T) {
	assert.Equal(t, "0 B", FormatSize(0))
	assert.Equal(t, "1.5 KiB", FormatSize(1536))
	assert.Equal(t, "0 B", FormatSize(-4))
}

func TestNotifiers(t *testing.T) {
	a := Alert{NotificationID: "n1", Type: model.NotificationInfo, Title: Title, Body: "From A: hi"}

	var buf bytes.Buffer
	require.NoError(t, BellNotifier{W: &buf}.Notify(context.Background(), a))
	assert.Equal(t, "\a[New notification] From A: hi\n", buf.String())

	logger, hook := logtest.NewNullLogger()
	require.NoError(t, LogNotifier{Log: logger}.Notify(context.Background(), a))
	require.Len(t, hook.Entries, 1)
	assert.Equal(t, logrus.InfoLevel, hook.LastEntry().Level)
	assert.Equal(t, "n1", hook.LastEntry().Data["notification_id"])

	sink := &captured{}
	failing := NotifierFunc(func(context.Context, Alert) error { return errors.New("x") })
	err := Multi{sink, failing}.Notify(context.Background(), a)
	assert.Error(t, err)
	assert.Len(t, sink.alerts, 1)
}

package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestMigrationsApplyOnce(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scfet.db")

	s, err := NewSQLiteStore(path)
	require.NoError(t, err)
	v, err := s.SchemaVersion()
	require.NoError(t, err)
	assert.Equal(t, len(migrations), v)
	require.NoError(t, s.Close())

	s, err = NewSQLiteStore(path)
	require.NoError(t, err)
	defer s.Close()
	v, err = s.SchemaVersion()
	require.NoError(t, err)
	assert.Equal(t, len(migrations), v)
}

func TestImageCacheIndex(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	_, err := s.ImageFor(ctx, "n1")
	assert.ErrorIs(t, err, ErrNotFound)

	older := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	require.NoError(t, s.RecordImage(ctx, CachedImage{
		NotificationID: "n1", SourceURL: "https://cdn/a.jpg", Path: "/tmp/a.jpg", SizeBytes: 10, FetchedAt: older,
	}))
	require.NoError(t, s.RecordImage(ctx, CachedImage{
		NotificationID: "n2", SourceURL: "https://cdn/b.jpg", Path: "/tmp/b.jpg", SizeBytes: 20, FetchedAt: older.Add(time.Hour),
	}))

	img, err := s.ImageFor(ctx, "n1")
	require.NoError(t, err)
	assert.Equal(t, "/tmp/a.jpg", img.Path)
	assert.EqualValues(t, 10, img.SizeBytes)

	all, err := s.CachedImages(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "n2", all[0].NotificationID)

	require.NoError(t, s.ClearImages(ctx))
	all, err = s.CachedImages(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestMarkPresentedIsFirstOnlyOnce(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	at := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

	first, err := s.MarkPresented(ctx, "n1", "Exam", at)
	require.NoError(t, err)
	assert.True(t, first)

	first, err = s.MarkPresented(ctx, "n1", "Exam", at.Add(time.Minute))
	require.NoError(t, err)
	assert.False(t, first)

	_, err = s.MarkPresented(ctx, "n2", "Trip", at.Add(48*time.Hour))
	require.NoError(t, err)

	n, err := s.PresentedSince(ctx, at.Add(24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	pruned, err := s.PrunePresented(ctx, at.Add(24*time.Hour))
	require.NoError(t, err)
	assert.EqualValues(t, 1, pruned)
}

func TestUnmarkPresentedAllowsAnotherAlert(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	at := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

	_, err := s.MarkPresented(ctx, "n1", "Exam", at)
	require.NoError(t, err)
	require.NoError(t, s.UnmarkPresented(ctx, "n1"))
	require.NoError(t, s.UnmarkPresented(ctx, "absent"))

	first, err := s.MarkPresented(ctx, "n1", "Exam", at)
	require.NoError(t, err)
	assert.True(t, first)
}

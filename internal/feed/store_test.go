package feed

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scfet/notification-client/internal/model"
	"github.com/scfet/notification-client/internal/testutil"
)

type fakeSource struct {
	mu    sync.Mutex
	items []model.Notification
	fail  error
	gates map[int]chan struct{}
	calls []model.Filter
}

func newFakeSource(items []model.Notification) *fakeSource {
	return &fakeSource{items: items, gates: map[int]chan struct{}{}}
}

// hold makes fetches of page block until the returned func is called.
func (f *fakeSource) hold(page int) func() {
	gate := make(chan struct{})
	f.mu.Lock()
	f.gates[page] = gate
	f.mu.Unlock()
	return func() { close(gate) }
}

func (f *fakeSource) setFail(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fail = err
}

func (f *fakeSource) calledPages() []int {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]int, len(f.calls))
	for i, c := range f.calls {
		out[i] = c.Page
	}
	return out
}

func (f *fakeSource) fetch(ctx context.Context, flt model.Filter) (*model.Page[model.Notification], error) {
	f.mu.Lock()
	f.calls = append(f.calls, flt)
	gate := f.gates[flt.Page]
	delete(f.gates, flt.Page)
	items := slices.Clone(f.items)
	fail := f.fail
	f.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if fail != nil {
		return nil, fail
	}

	size := flt.PageSize
	start := min((flt.Page-1)*size, len(items))
	end := min(start+size, len(items))
	return &model.Page[model.Notification]{
		Items:      items[start:end],
		TotalCount: len(items),
		Page:       flt.Page,
		PageSize:   size,
	}, nil
}

func ids(items []model.Notification) []string {
	out := make([]string, len(items))
	for i, n := range items {
		out[i] = n.ID
	}
	return out
}

func newTestStore(src *fakeSource) *Store[model.Notification] {
	return NewStore(src.fetch, model.DefaultFilter(), nil)
}

func waitUntil(t *testing.T, cond func() bool) {
	t.Helper()
	require.Eventually(t, cond, 2*time.Second, 5*time.Millisecond)
}

func TestStartLoadsFirstPage(t *testing.T) {
	src := newFakeSource(testutil.Notifications(7))
	s := newTestStore(src)

	require.NoError(t, s.Start(context.Background()))

	snap := s.Snapshot()
	assert.Equal(t, []string{"n1", "n2", "n3", "n4", "n5"}, ids(snap.Items))
	assert.Equal(t, 7, snap.TotalCount)
	assert.Equal(t, 2, snap.TotalPages)
	assert.True(t, snap.PaginationEnabled)
	assert.False(t, snap.Busy)
	assert.NoError(t, snap.Err)
}

func TestLoadMoreAppendsUntilExhausted(t *testing.T) {
	src := newFakeSource(testutil.Notifications(7))
	s := newTestStore(src)
	ctx := context.Background()
	require.NoError(t, s.Start(ctx))

	require.NoError(t, s.LoadMore(ctx))
	assert.Equal(t, []string{"n1", "n2", "n3", "n4", "n5", "n6", "n7"}, ids(s.Items()))
	assert.False(t, s.Snapshot().PaginationEnabled)
	assert.Equal(t, 2, s.Filter().Page)

	assert.ErrorIs(t, s.LoadMore(ctx), ErrNoMorePages)
	assert.Equal(t, []int{1, 2}, src.calledPages())
}

func TestLoadMoreSkipsDuplicates(t *testing.T) {
	src := newFakeSource(testutil.Notifications(10))
	s := newTestStore(src)
	ctx := context.Background()
	require.NoError(t, s.Start(ctx))

	// A new item pushed to the server shifts n5 onto page 2.
	fresh := model.Notification{ID: "n0", Title: "Fresh"}
	src.mu.Lock()
	src.items = append([]model.Notification{fresh}, src.items...)
	src.mu.Unlock()
	s.ApplyReceived(fresh)

	// Six items held, so the next page is 2.
	require.NoError(t, s.LoadMore(ctx))
	got := ids(s.Items())
	assert.Equal(t, []string{"n0", "n1", "n2", "n3", "n4", "n5", "n6", "n7", "n8", "n9"}, got)
}

func TestLoadMoreReachesPagesShiftedByPushes(t *testing.T) {
	src := newFakeSource(testutil.Notifications(10))
	s := newTestStore(src)
	ctx := context.Background()
	require.NoError(t, s.Start(ctx))

	var fresh []model.Notification
	for i := 0; i < 5; i++ {
		n := model.Notification{ID: fmt.Sprintf("p%d", i), Title: "Pushed"}
		fresh = append([]model.Notification{n}, fresh...)
		s.ApplyReceived(n)
	}
	src.mu.Lock()
	src.items = append(fresh, src.items...)
	src.mu.Unlock()

	// Ten held and the last page said two pages, but five pushes moved
	// n6..n10 onto page 3.
	require.NoError(t, s.LoadMore(ctx))
	assert.Equal(t, []int{1, 3}, src.calledPages())

	snap := s.Snapshot()
	assert.Len(t, snap.Items, 15)
	assert.Equal(t, "n10", snap.Items[14].ID)
	assert.False(t, snap.PaginationEnabled)
	assert.ErrorIs(t, s.LoadMore(ctx), ErrNoMorePages)
}

func TestLoadMoreRangeCountsRemovals(t *testing.T) {
	src := newFakeSource(testutil.Notifications(7))
	s := newTestStore(src)
	ctx := context.Background()
	require.NoError(t, s.Start(ctx))

	s.ApplyReceived(model.Notification{ID: "p1"})
	assert.True(t, s.ApplyRemoved("p1"))

	require.NoError(t, s.LoadMore(ctx))
	assert.Equal(t, []int{1, 2}, src.calledPages())
	assert.Len(t, s.Items(), 7)
}

func TestLoadMoreFailureRestoresPage(t *testing.T) {
	src := newFakeSource(testutil.Notifications(7))
	s := newTestStore(src)
	ctx := context.Background()
	require.NoError(t, s.Start(ctx))

	boom := errors.New("boom")
	src.setFail(boom)
	assert.ErrorIs(t, s.LoadMore(ctx), boom)

	snap := s.Snapshot()
	assert.Equal(t, 1, snap.Filter.Page)
	assert.ErrorIs(t, snap.Err, boom)
	assert.Len(t, snap.Items, 5)
	assert.True(t, snap.PaginationEnabled)

	src.setFail(nil)
	require.NoError(t, s.LoadMore(ctx))
	assert.Len(t, s.Items(), 7)
	assert.NoError(t, s.Snapshot().Err)
}

func TestStartFailureKeepsItems(t *testing.T) {
	src := newFakeSource(testutil.Notifications(3))
	s := newTestStore(src)
	ctx := context.Background()
	require.NoError(t, s.Start(ctx))

	src.setFail(errors.New("offline"))
	assert.Error(t, s.Refresh(ctx))
	assert.Len(t, s.Items(), 3)
	assert.Error(t, s.Snapshot().Err)
}

func TestConcurrentLoadsAreDropped(t *testing.T) {
	src := newFakeSource(testutil.Notifications(7))
	s := newTestStore(src)
	ctx := context.Background()

	release := src.hold(1)
	done := make(chan error, 1)
	go func() { done <- s.Start(ctx) }()
	waitUntil(t, func() bool { return s.Snapshot().Busy })

	assert.ErrorIs(t, s.Start(ctx), ErrInFlight)
	assert.ErrorIs(t, s.Refresh(ctx), ErrInFlight)
	assert.ErrorIs(t, s.LoadMore(ctx), ErrInFlight)
	assert.ErrorIs(t, s.ApplyFilter(ctx, model.DefaultFilter()), ErrInFlight)

	release()
	require.NoError(t, <-done)
	assert.Equal(t, []int{1}, src.calledPages())

	release = src.hold(2)
	go func() { done <- s.LoadMore(ctx) }()
	waitUntil(t, func() bool { return s.Snapshot().Paginating })
	assert.ErrorIs(t, s.LoadMore(ctx), ErrInFlight)
	release()
	require.NoError(t, <-done)
}

func TestLoadMoreDiscardedAfterRefresh(t *testing.T) {
	src := newFakeSource(testutil.Notifications(7))
	s := newTestStore(src)
	ctx := context.Background()
	require.NoError(t, s.Start(ctx))

	release := src.hold(2)
	done := make(chan error, 1)
	go func() { done <- s.LoadMore(ctx) }()
	waitUntil(t, func() bool { return s.Snapshot().Paginating })

	require.NoError(t, s.Refresh(ctx))
	release()
	assert.ErrorIs(t, <-done, ErrSuperseded)

	snap := s.Snapshot()
	assert.Equal(t, []string{"n1", "n2", "n3", "n4", "n5"}, ids(snap.Items))
	assert.Equal(t, 1, snap.Filter.Page)
	assert.True(t, snap.PaginationEnabled)
}

func TestApplyFilterForcesFirstPage(t *testing.T) {
	src := newFakeSource(testutil.Notifications(30))
	s := newTestStore(src)
	ctx := context.Background()
	require.NoError(t, s.Start(ctx))
	require.NoError(t, s.LoadMore(ctx))

	f, err := s.Filter().WithPageSize(20)
	require.NoError(t, err)
	f.Page = 4
	require.NoError(t, s.ApplyFilter(ctx, f))

	snap := s.Snapshot()
	assert.Equal(t, 1, snap.Filter.Page)
	assert.Equal(t, 20, snap.Filter.PageSize)
	assert.Len(t, snap.Items, 20)

	require.NoError(t, s.ResetFilter(ctx))
	assert.Equal(t, model.DefaultPageSize, s.Filter().PageSize)
	assert.Len(t, s.Items(), model.DefaultPageSize)
}

func TestApplyFilterRejectedKeepsFilter(t *testing.T) {
	src := newFakeSource(testutil.Notifications(30))
	s := newTestStore(src)
	ctx := context.Background()

	release := src.hold(1)
	done := make(chan error, 1)
	go func() { done <- s.Refresh(ctx) }()
	waitUntil(t, func() bool { return s.Snapshot().Refreshing })

	f, err := s.Filter().WithPageSize(20)
	require.NoError(t, err)
	assert.ErrorIs(t, s.ApplyFilter(ctx, f), ErrInFlight)
	assert.Equal(t, model.DefaultPageSize, s.Filter().PageSize)

	release()
	require.NoError(t, <-done)
	snap := s.Snapshot()
	assert.Equal(t, model.DefaultPageSize, snap.Filter.PageSize)
	assert.Len(t, snap.Items, model.DefaultPageSize)
	assert.True(t, snap.PaginationEnabled)
}

func TestStartDropsDuplicateIDs(t *testing.T) {
	items := testutil.Notifications(3)
	items = append(items, items[0])
	src := newFakeSource(items)
	s := newTestStore(src)

	require.NoError(t, s.Start(context.Background()))
	assert.Equal(t, []string{"n1", "n2", "n3"}, ids(s.Items()))
}

func TestApplyPushedChanges(t *testing.T) {
	src := newFakeSource(testutil.Notifications(3))
	s := newTestStore(src)
	require.NoError(t, s.Start(context.Background()))

	s.ApplyReceived(model.Notification{ID: "n9", Title: "New"})
	assert.Equal(t, []string{"n9", "n1", "n2", "n3"}, ids(s.Items()))

	s.ApplyReceived(model.Notification{ID: "n2", Title: "Edited"})
	assert.Equal(t, []string{"n9", "n1", "n2", "n3"}, ids(s.Items()), "duplicate merges in place")
	n, ok := s.Find("n2")
	require.True(t, ok)
	assert.Equal(t, "Edited", n.Title)

	assert.True(t, s.ApplyUpdated(model.Notification{ID: "n3", Title: "Moved"}))
	assert.False(t, s.ApplyUpdated(model.Notification{ID: "zz"}))
	assert.Equal(t, "n3", s.Items()[3].ID)

	assert.True(t, s.ApplyRemoved("n1"))
	assert.False(t, s.ApplyRemoved("n1"))
	assert.Equal(t, []string{"n9", "n2", "n3"}, ids(s.Items()))
}

func TestObserversSeeEveryChange(t *testing.T) {
	src := newFakeSource(testutil.Notifications(2))
	s := newTestStore(src)

	var mu sync.Mutex
	var seen []Snapshot[model.Notification]
	s.Subscribe(func(snap Snapshot[model.Notification]) {
		mu.Lock()
		seen = append(seen, snap)
		mu.Unlock()
	})

	require.NoError(t, s.Start(context.Background()))
	s.ApplyRemoved("n1")
	s.ApplyRemoved("absent")

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, seen, 3)
	assert.True(t, seen[0].Busy)
	assert.False(t, seen[1].Busy)
	assert.Len(t, seen[1].Items, 2)
	assert.Len(t, seen[2].Items, 1)
}

func TestClearResetsState(t *testing.T) {
	src := newFakeSource(testutil.Notifications(7))
	s := newTestStore(src)
	ctx := context.Background()
	f, err := model.DefaultFilter().WithPageSize(10)
	require.NoError(t, err)
	require.NoError(t, s.ApplyFilter(ctx, f))

	s.Clear()
	snap := s.Snapshot()
	assert.Empty(t, snap.Items)
	assert.Zero(t, snap.TotalCount)
	assert.False(t, snap.PaginationEnabled)
	assert.Equal(t, model.DefaultPageSize, snap.Filter.PageSize)
	assert.ErrorIs(t, s.LoadMore(ctx), ErrNoMorePages)
}

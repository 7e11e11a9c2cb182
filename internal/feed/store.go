// Package feed keeps a paged, server-ordered collection in sync with
// explicit fetches and with incremental push events.
package feed

import (
	"context"
	"errors"
	"slices"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/scfet/notification-client/internal/logging"
	"github.com/scfet/notification-client/internal/model"
)

// ErrInFlight is returned when an operation is dropped because a
// conflicting one is still running.
var ErrInFlight = errors.New("operation already in progress")

// ErrNoMorePages is returned by LoadMore when the last page is loaded.
var ErrNoMorePages = errors.New("no more pages")

// ErrSuperseded is returned by LoadMore when the collection was replaced
// while the page was being fetched. The page is dropped.
var ErrSuperseded = errors.New("collection replaced during load")

// Item is anything with a stable identity.
type Item interface {
	ItemID() string
}

// Fetcher loads one page for a filter.
type Fetcher[T Item] func(ctx context.Context, f model.Filter) (*model.Page[T], error)

// Snapshot is an immutable view of a Store.
type Snapshot[T Item] struct {
	Items             []T
	Filter            model.Filter
	TotalCount        int
	TotalPages        int
	PaginationEnabled bool
	Busy              bool
	Refreshing        bool
	Paginating        bool
	Err               error
}

// Store is the reconciling list. Its mutex is never held across a fetch.
type Store[T Item] struct {
	fetch      Fetcher[T]
	defaults   model.Filter
	log        logrus.FieldLogger
	merge      func(old, incoming T) T

	mu         sync.Mutex
	generation uint64
	filter     model.Filter
	items      []T
	last       *model.Page[T]
	pushed     int // net pushed inserts since last was fetched
	pagination bool
	busy       bool
	refreshing bool
	paginating bool
	err        error
	observers  []func(Snapshot[T])
}

// NewStore returns an empty Store using defaults as its initial and reset
// filter.
func NewStore[T Item](fetch Fetcher[T], defaults model.Filter, log logrus.FieldLogger) *Store[T] {
	defaults = defaults.Normalized()
	return &Store[T]{
		fetch:    fetch,
		defaults: defaults,
		filter:   defaults,
		log:      logging.Component(log, "feed"),
		merge:    func(_, incoming T) T { return incoming },
	}
}

// SetMerge sets how ApplyUpdated combines the stored and incoming item.
func (s *Store[T]) SetMerge(merge func(old, incoming T) T) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.merge = merge
}

// Subscribe registers fn to be called after every state change. fn runs
// on the goroutine that made the change and must not call back into the
// Store synchronously.
func (s *Store[T]) Subscribe(fn func(Snapshot[T])) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.observers = append(s.observers, fn)
}

// Snapshot returns the current state.
func (s *Store[T]) Snapshot() Snapshot[T] {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Items returns a copy of the ordered items.
func (s *Store[T]) Items() []T {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.items)
}

// Filter returns the current filter.
func (s *Store[T]) Filter() model.Filter {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.filter
}

// Find returns the item with id.
func (s *Store[T]) Find(id string) (T, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i := s.indexLocked(id); i >= 0 {
		return s.items[i], true
	}
	var zero T
	return zero, false
}

func (s *Store[T]) snapshotLocked() Snapshot[T] {
	snap := Snapshot[T]{
		Items:             slices.Clone(s.items),
		Filter:            s.filter,
		PaginationEnabled: s.pagination,
		Busy:              s.busy,
		Refreshing:        s.refreshing,
		Paginating:        s.paginating,
		Err:               s.err,
	}
	if s.last != nil {
		snap.TotalCount = s.last.TotalCount
		snap.TotalPages = s.last.Pages()
	}
	return snap
}

// unlockAndNotify releases the mutex, then calls observers.
func (s *Store[T]) unlockAndNotify() {
	snap := s.snapshotLocked()
	observers := slices.Clone(s.observers)
	s.mu.Unlock()
	for _, fn := range observers {
		fn(snap)
	}
}

func (s *Store[T]) indexLocked(id string) int {
	return slices.IndexFunc(s.items, func(it T) bool { return it.ItemID() == id })
}

// Start loads page 1 of the current filter and replaces the collection
// with it. A LoadMore still in flight is discarded when it completes.
func (s *Store[T]) Start(ctx context.Context) error {
	return s.start(ctx, nil)
}

// start swaps in next, when set, in the same critical section that claims
// the busy flag, so a rejected call leaves the filter untouched.
func (s *Store[T]) start(ctx context.Context, next *model.Filter) error {
	s.mu.Lock()
	if s.busy || s.refreshing {
		s.mu.Unlock()
		return ErrInFlight
	}
	s.busy = true
	s.generation++
	if next != nil {
		s.filter = *next
		s.pagination = false
	}
	s.filter.Page = 1
	f := s.filter
	s.unlockAndNotify()

	page, err := s.fetch(ctx, f)

	s.mu.Lock()
	s.busy = false
	s.replaceLocked(page, err)
	s.unlockAndNotify()
	return err
}

// Refresh refetches page 1 of the current filter. It is the pull-to-refresh
// path and is guarded separately from Start.
func (s *Store[T]) Refresh(ctx context.Context) error {
	s.mu.Lock()
	if s.refreshing || s.busy {
		s.mu.Unlock()
		return ErrInFlight
	}
	s.refreshing = true
	s.generation++
	s.filter.Page = 1
	f := s.filter
	s.unlockAndNotify()

	page, err := s.fetch(ctx, f)

	s.mu.Lock()
	s.refreshing = false
	s.replaceLocked(page, err)
	s.unlockAndNotify()
	return err
}

func (s *Store[T]) replaceLocked(page *model.Page[T], err error) {
	if err != nil {
		s.err = err
		s.log.WithError(err).Warn("load failed")
		return
	}
	if page == nil {
		page = &model.Page[T]{}
	}
	s.err = nil
	s.last = page
	s.pushed = 0
	s.items = dedup(page.Items)
	s.pagination = page.HasNext()
}

// ApplyFilter replaces the filter, forcing page 1, and reloads.
// On ErrInFlight the current filter is kept.
func (s *Store[T]) ApplyFilter(ctx context.Context, f model.Filter) error {
	f = f.Normalized()
	return s.start(ctx, &f)
}

// ResetFilter restores the default filter and reloads.
func (s *Store[T]) ResetFilter(ctx context.Context) error {
	return s.ApplyFilter(ctx, s.defaults)
}

// LoadMore fetches the next page and appends the items not already held.
func (s *Store[T]) LoadMore(ctx context.Context) error {
	s.mu.Lock()
	if s.paginating || s.busy || s.refreshing {
		s.mu.Unlock()
		return ErrInFlight
	}
	if !s.pagination {
		s.mu.Unlock()
		return ErrNoMorePages
	}
	size := s.filter.PageSize
	next := len(s.items)/size + 1
	if s.last != nil && next > pageCount(s.last.TotalCount+s.pushed, size) {
		s.pagination = false
		s.unlockAndNotify()
		return ErrNoMorePages
	}

	prevPage := s.filter.Page
	s.filter.Page = next
	s.paginating = true
	gen := s.generation
	f := s.filter
	s.unlockAndNotify()

	page, err := s.fetch(ctx, f)

	s.mu.Lock()
	s.paginating = false
	if gen != s.generation {
		s.log.WithField("page", next).Debug("discarding page fetched for a replaced collection")
		s.unlockAndNotify()
		return ErrSuperseded
	}
	if err != nil {
		s.filter.Page = prevPage
		s.err = err
		s.log.WithError(err).WithField("page", next).Warn("load more failed")
		s.unlockAndNotify()
		return err
	}
	if page == nil {
		page = &model.Page[T]{}
	}
	s.err = nil
	s.last = page
	s.pushed = 0
	for _, it := range page.Items {
		if s.indexLocked(it.ItemID()) < 0 {
			s.items = append(s.items, it)
		}
	}
	s.pagination = page.HasNext()
	s.unlockAndNotify()
	return nil
}

// ApplyReceived inserts a pushed item at the head of the collection. An
// item already present is updated in place instead.
func (s *Store[T]) ApplyReceived(item T) {
	s.mu.Lock()
	if i := s.indexLocked(item.ItemID()); i >= 0 {
		s.items[i] = s.merge(s.items[i], item)
	} else {
		s.items = slices.Insert(s.items, 0, item)
		s.pushed++
	}
	s.unlockAndNotify()
}

// ApplyRemoved deletes the item with id, if present.
func (s *Store[T]) ApplyRemoved(id string) bool {
	s.mu.Lock()
	i := s.indexLocked(id)
	if i < 0 {
		s.mu.Unlock()
		return false
	}
	s.items = slices.Delete(s.items, i, i+1)
	s.pushed--
	s.unlockAndNotify()
	return true
}

// ApplyUpdated replaces the item in place, keeping its position. Absent
// items are ignored.
func (s *Store[T]) ApplyUpdated(item T) bool {
	s.mu.Lock()
	i := s.indexLocked(item.ItemID())
	if i < 0 {
		s.mu.Unlock()
		return false
	}
	s.items[i] = s.merge(s.items[i], item)
	s.unlockAndNotify()
	return true
}

// Mutate applies fn to the item with id under the lock. fn reports
// whether it changed anything.
func (s *Store[T]) Mutate(id string, fn func(*T) bool) bool {
	s.mu.Lock()
	i := s.indexLocked(id)
	if i < 0 || !fn(&s.items[i]) {
		s.mu.Unlock()
		return false
	}
	s.unlockAndNotify()
	return true
}

// Clear drops every item and resets the filter, for sign-out.
func (s *Store[T]) Clear() {
	s.mu.Lock()
	s.generation++
	s.items = nil
	s.last = nil
	s.pushed = 0
	s.pagination = false
	s.err = nil
	s.filter = s.defaults
	s.unlockAndNotify()
}

// pageCount is the number of pages of size needed for total items.
func pageCount(total, size int) int {
	if total <= 0 || size <= 0 {
		return 0
	}
	return (total + size - 1) / size
}

// dedup keeps the first occurrence of each id.
func dedup[T Item](items []T) []T {
	seen := make(map[string]struct{}, len(items))
	out := make([]T, 0, len(items))
	for _, it := range items {
		if _, ok := seen[it.ItemID()]; ok {
			continue
		}
		seen[it.ItemID()] = struct{}{}
		out = append(out, it)
	}
	return out
}

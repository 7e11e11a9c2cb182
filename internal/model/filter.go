package model

import (
	"fmt"
	"slices"
	"time"
)

// SortBy selects the key the server orders a feed by.
type SortBy string

const (
	SortByCreatedAt SortBy = "CreatedAt"
	SortByTitle     SortBy = "Title"
)

// SortOrder selects the direction of the ordering.
type SortOrder string

const (
	SortAscending  SortOrder = "Ascending"
	SortDescending SortOrder = "Descending"
)

// Toggle returns the opposite direction.
func (o SortOrder) Toggle() SortOrder {
	if o == SortAscending {
		return SortDescending
	}
	return SortAscending
}

// PageSizes are the page sizes the backend accepts.
var PageSizes = []int{5, 10, 20}

// DefaultPageSize is used when no page size is configured.
const DefaultPageSize = 5

// Filter describes which window of a feed to request.
//
// Changing anything other than Page must go through the With* methods so
// that Page is reset to 1.
type Filter struct {
	Page      int
	PageSize  int
	StartDate *time.Time
	EndDate   *time.Time
	SortBy    SortBy
	SortOrder SortOrder
}

// DefaultFilter returns the first page, newest first.
func DefaultFilter() Filter {
	return Filter{
		Page:      1,
		PageSize:  DefaultPageSize,
		SortBy:    SortByCreatedAt,
		SortOrder: SortDescending,
	}
}

// ValidPageSize reports whether size is one of PageSizes.
func ValidPageSize(size int) bool {
	return slices.Contains(PageSizes, size)
}

// WithPageSize returns a copy using size, reset to page 1.
func (f Filter) WithPageSize(size int) (Filter, error) {
	if !ValidPageSize(size) {
		return f, fmt.Errorf("page size %d not in %v", size, PageSizes)
	}
	f.PageSize = size
	f.Page = 1
	return f, nil
}

// WithSort returns a copy ordered by key and order, reset to page 1.
func (f Filter) WithSort(key SortBy, order SortOrder) Filter {
	f.SortBy = key
	f.SortOrder = order
	f.Page = 1
	return f
}

// WithDateRange returns a copy limited to [start, end], reset to page 1.
// Nil bounds are open.
func (f Filter) WithDateRange(start, end *time.Time) Filter {
	f.StartDate = copyTime(start)
	f.EndDate = copyTime(end)
	f.Page = 1
	return f
}

// NextPageSize cycles through PageSizes.
func (f Filter) NextPageSize() int {
	i := slices.Index(PageSizes, f.PageSize)
	return PageSizes[(i+1)%len(PageSizes)]
}

// Normalized clamps Page and PageSize into valid ranges and fills
// missing sort fields with defaults.
func (f Filter) Normalized() Filter {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.PageSize <= 0 {
		f.PageSize = DefaultPageSize
	}
	if f.SortBy == "" {
		f.SortBy = SortByCreatedAt
	}
	if f.SortOrder == "" {
		f.SortOrder = SortDescending
	}
	return f
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/scfet/notification-client/internal/keys"
	"github.com/scfet/notification-client/internal/model"
)

// FilterState is the filter a list view edits, plus the date preset
// that produced its bounds.
type FilterState struct {
	Filter model.Filter
	Range  model.DateRange
}

// NewFilterState starts from f with no date bounds.
func NewFilterState(f model.Filter) FilterState {
	return FilterState{Filter: f, Range: model.RangeAll}
}

// HandleKey applies a filter keybinding. It reports whether msg was a
// filter key; every change resets the filter to page 1.
func (s FilterState) HandleKey(k *keys.KeyMap, msg tea.KeyMsg, defaults model.Filter, now time.Time) (FilterState, bool) {
	f := s.Filter
	switch {
	case key.Matches(msg, k.CycleSort):
		next := model.SortByTitle
		if f.SortBy == model.SortByTitle {
			next = model.SortByCreatedAt
		}
		s.Filter = f.WithSort(next, f.SortOrder)
	case key.Matches(msg, k.ToggleOrder):
		s.Filter = f.WithSort(f.SortBy, f.SortOrder.Toggle())
	case key.Matches(msg, k.PageSize):
		if sized, err := f.WithPageSize(f.NextPageSize()); err == nil {
			s.Filter = sized
		}
	case key.Matches(msg, k.DateRange):
		s.Range = s.Range.Next()
		start, end := s.Range.Resolve(now)
		s.Filter = f.WithDateRange(start, end)
	case key.Matches(msg, k.ResetFilter):
		return NewFilterState(defaults), true
	default:
		return s, false
	}
	return s, true
}

// Summary describes the filter for the status bar.
func (s FilterState) Summary() string {
	f := s.Filter
	parts := []string{
		fmt.Sprintf("sort %s %s", strings.ToLower(string(f.SortBy)), orderArrow(f.SortOrder)),
		fmt.Sprintf("%d/page", f.PageSize),
	}
	if s.Range != model.RangeAll {
		parts = append(parts, s.Range.Label())
	}
	return strings.Join(parts, " · ")
}

func orderArrow(o model.SortOrder) string {
	if o == model.SortAscending {
		return "↑"
	}
	return "↓"
}

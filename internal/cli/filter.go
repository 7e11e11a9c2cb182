package cli

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/scfet/notification-client/internal/feed"
	"github.com/scfet/notification-client/internal/model"
)

// filterFlags are the list flags shared by inbox and sent.
type filterFlags struct {
	pageSize  int
	sort      string
	order     string
	dateRange string
	all       bool
}

func (f *filterFlags) register(cmd *cobra.Command) {
	cmd.Flags().IntVar(&f.pageSize, "page-size", 0, "items per page (5, 10 or 20)")
	cmd.Flags().StringVar(&f.sort, "sort", "date", "sort key (date|title)")
	cmd.Flags().StringVar(&f.order, "order", "desc", "sort order (asc|desc)")
	cmd.Flags().StringVar(&f.dateRange, "range", string(model.RangeAll), "date preset (today, this_week, last_month, ...)")
	cmd.Flags().BoolVar(&f.all, "all", false, "load every page")
}

// build applies the flags to defaults, resolving date presets against now.
func (f *filterFlags) build(defaults model.Filter, now time.Time) (model.Filter, error) {
	out := defaults
	if f.pageSize != 0 {
		sized, err := out.WithPageSize(f.pageSize)
		if err != nil {
			return model.Filter{}, NewExitError(ExitCommandError, err.Error())
		}
		out = sized
	}

	var key model.SortBy
	switch strings.ToLower(f.sort) {
	case "date", "createdat":
		key = model.SortByCreatedAt
	case "title":
		key = model.SortByTitle
	default:
		return model.Filter{}, NewExitError(ExitCommandError, fmt.Sprintf("unknown sort key %q", f.sort))
	}
	var order model.SortOrder
	switch strings.ToLower(f.order) {
	case "desc", "descending":
		order = model.SortDescending
	case "asc", "ascending":
		order = model.SortAscending
	default:
		return model.Filter{}, NewExitError(ExitCommandError, fmt.Sprintf("unknown sort order %q", f.order))
	}
	out = out.WithSort(key, order)

	r := model.DateRange(strings.ToLower(f.dateRange))
	if !slices.Contains(model.DateRanges, r) || r == model.RangeCustom {
		return model.Filter{}, NewExitError(ExitCommandError, fmt.Sprintf("unknown date range %q", f.dateRange))
	}
	start, end := r.Resolve(now)
	return out.WithDateRange(start, end), nil
}

type loader interface {
	ApplyFilter(ctx context.Context, f model.Filter) error
	LoadMore(ctx context.Context) error
}

// maxPages stops --all against a server that never reports the last page.
const maxPages = 500

// load fetches page 1 for filter, then the remaining pages when all is set.
func load(ctx context.Context, l loader, filter model.Filter, all bool) error {
	if err := l.ApplyFilter(ctx, filter); err != nil {
		return err
	}
	for i := 0; all && i < maxPages; i++ {
		err := l.LoadMore(ctx)
		if errors.Is(err, feed.ErrNoMorePages) {
			return nil
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.UTC().Format("2006-01-02 15:04")
}
